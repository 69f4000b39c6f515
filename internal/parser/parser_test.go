package parser

import (
	"testing"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
)

// parseOK 解析源码并断言无错误
func parseOK(t *testing.T, source string) *ast.File {
	t.Helper()

	file, errs := ParseSource(source, "test.aml")
	if len(errs) > 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	return file
}

// firstClass 取文件中第一个命名空间下的第一个类声明
func firstClass(t *testing.T, file *ast.File) *ast.ClassDecl {
	t.Helper()

	ns, ok := file.Decls[0].(*ast.NamespaceDecl)
	if !ok {
		t.Fatalf("expected namespace declaration, got %T", file.Decls[0])
	}
	for _, d := range ns.Decls {
		if c, ok := d.(*ast.ClassDecl); ok {
			return c
		}
	}
	t.Fatal("no class declaration found")
	return nil
}

func TestParseNamespaceAndImport(t *testing.T) {
	file := parseOK(t, `
namespace App.Core {
	import Am.Lang
	import Am.Collections
}`)

	ns, ok := file.Decls[0].(*ast.NamespaceDecl)
	if !ok {
		t.Fatalf("expected namespace, got %T", file.Decls[0])
	}
	if ns.Name != "App.Core" {
		t.Errorf("namespace name: got %q, want App.Core", ns.Name)
	}
	if len(ns.Decls) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(ns.Decls))
	}

	imp := ns.Decls[0].(*ast.ImportDecl)
	if imp.Path != "Am.Lang" {
		t.Errorf("import path: got %q, want Am.Lang", imp.Path)
	}
}

func TestParseClassDecl(t *testing.T) {
	file := parseOK(t, `
namespace App {
	class Sprite : Node, Drawable {
		var x: Int = 0
		var name: String? = null
		static var count: Int = 0

		fun move(dx: Int): Void { this.x = this.x + dx; }
		fun move(dx: Long): Void { return; }
		static fun origin(): Sprite { return new Sprite(); }
		suspend fun load(path: String): Bool { return true; }
	}
}`)

	class := firstClass(t, file)
	if class.Name.Name != "Sprite" {
		t.Errorf("class name: got %q", class.Name.Name)
	}
	if len(class.Supers) != 2 {
		t.Fatalf("expected 2 supertypes, got %d", len(class.Supers))
	}
	if class.Supers[0].String() != "Node" || class.Supers[1].String() != "Drawable" {
		t.Errorf("supertypes mismatch: %v, %v", class.Supers[0], class.Supers[1])
	}

	var fields []*ast.FieldDecl
	var methods []*ast.FunDecl
	for _, m := range class.Members {
		switch d := m.(type) {
		case *ast.FieldDecl:
			fields = append(fields, d)
		case *ast.FunDecl:
			methods = append(methods, d)
		}
	}

	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	if !fields[2].IsStatic {
		t.Error("expected third field to be static")
	}
	if fields[1].Type.String() != "String?" {
		t.Errorf("nullable field type: got %q", fields[1].Type.String())
	}

	if len(methods) != 4 {
		t.Fatalf("expected 4 methods, got %d", len(methods))
	}
	if methods[0].Name.Name != "move" || methods[1].Name.Name != "move" {
		t.Error("expected two move overloads")
	}
	if !methods[2].IsStatic {
		t.Error("expected origin to be static")
	}
	if !methods[3].IsSuspend {
		t.Error("expected load to be suspend")
	}
}

func TestParseGenericClass(t *testing.T) {
	file := parseOK(t, `
namespace App {
	class List<T> {
		fun add(item: T): Void { return; }
		fun get(index: Int): T { return this.get(index); }
	}
}`)

	class := firstClass(t, file)
	if len(class.TypeParams) != 1 || class.TypeParams[0].Name != "T" {
		t.Fatalf("type params mismatch: %v", class.TypeParams)
	}
}

func TestParseInterface(t *testing.T) {
	file := parseOK(t, `
namespace App {
	interface Drawable {
		fun draw(): Void
		fun bounds(): Rect
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	iface, ok := ns.Decls[0].(*ast.InterfaceDecl)
	if !ok {
		t.Fatalf("expected interface, got %T", ns.Decls[0])
	}
	if len(iface.Methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(iface.Methods))
	}
	if iface.Methods[0].Body != nil {
		t.Error("interface method must not have a body")
	}
}

func TestParseDirectivesAttach(t *testing.T) {
	file := parseOK(t, `
namespace App {
	#require graphics
	#requireNot headless
	class Renderer { }

	#require netlib
	fun connect(): Void { return; }
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)

	class := ns.Decls[0].(*ast.ClassDecl)
	if len(class.Directives) != 2 {
		t.Fatalf("expected 2 directives on class, got %d", len(class.Directives))
	}
	if class.Directives[0].Kind != "require" || class.Directives[0].Feature.Name != "graphics" {
		t.Errorf("directive mismatch: %v", class.Directives[0])
	}
	if !class.Directives[1].IsNegated() || class.Directives[1].Feature.Name != "headless" {
		t.Errorf("negated directive mismatch: %v", class.Directives[1])
	}

	fun := ns.Decls[1].(*ast.FunDecl)
	if len(fun.Directives) != 1 || fun.Directives[0].Feature.Name != "netlib" {
		t.Errorf("function directive mismatch: %v", fun.Directives)
	}
}

func TestParseTypes(t *testing.T) {
	tests := []struct {
		annotation string
		rendered   string
	}{
		{"Int", "Int"},
		{"String?", "String?"},
		{"Int[]", "Int[]"},
		{"Int[]?", "Int[]?"},
		{"List<Int>", "List<Int>"},
		{"Map<String, Sprite?>", "Map<String, Sprite?>"},
		{"App.Core.Sprite", "App.Core.Sprite"},
		{"fun(Int): Bool", "fun(Int): Bool"},
		{"fun(Int, String): Void", "fun(Int, String): Void"},
	}

	for _, tt := range tests {
		source := "namespace A { fun f(x: " + tt.annotation + "): Void { return; } }"
		file := parseOK(t, source)

		ns := file.Decls[0].(*ast.NamespaceDecl)
		fun := ns.Decls[0].(*ast.FunDecl)

		if got := fun.Params[0].Type.String(); got != tt.rendered {
			t.Errorf("type %q: rendered as %q, want %q", tt.annotation, got, tt.rendered)
		}
	}
}

func TestParseStatements(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun main(): Void {
		var a: Int = 1;
		var b = a;
		a = a + 1;
		if (a > 0) { b = 1; } else if (a < 0) { b = 2; } else { b = 3; }
		while (a < 10) { a = a + 1; }
		for (i = 0 to 9) { b = b + i; }
		loop { break; }
		switch (a) {
			case 1:
				b = 1;
				break;
			case 2:
				b = 2;
			default:
				b = 0;
		}
		throw new Error("boom");
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)
	stmts := fun.Body.Stmts

	expected := []interface{}{
		&ast.VarStmt{}, &ast.VarStmt{}, &ast.AssignStmt{},
		&ast.IfStmt{}, &ast.WhileStmt{}, &ast.ForStmt{}, &ast.LoopStmt{},
		&ast.SwitchStmt{}, &ast.ThrowStmt{},
	}

	if len(stmts) != len(expected) {
		t.Fatalf("statement count mismatch: got %d, want %d", len(stmts), len(expected))
	}

	ifStmt := stmts[3].(*ast.IfStmt)
	elseIf, ok := ifStmt.Else.(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected else-if chain, got %T", ifStmt.Else)
	}
	if _, ok := elseIf.Else.(*ast.BlockStmt); !ok {
		t.Errorf("expected final else block, got %T", elseIf.Else)
	}

	forStmt := stmts[5].(*ast.ForStmt)
	if forStmt.Var.Name != "i" {
		t.Errorf("loop variable: got %q", forStmt.Var.Name)
	}

	switchStmt := stmts[7].(*ast.SwitchStmt)
	if len(switchStmt.Cases) != 3 {
		t.Fatalf("expected 3 case clauses, got %d", len(switchStmt.Cases))
	}
	if !switchStmt.Cases[2].IsDefault() {
		t.Error("expected last clause to be default")
	}
	if len(switchStmt.Cases[0].Body) != 2 {
		t.Errorf("case 1 body: got %d statements, want 2", len(switchStmt.Cases[0].Body))
	}
}

func TestParseExpressionPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"a == b && c != d", "((a == b) && (c != d))"},
		{"a || b && c", "(a || (b && c))"},
		{"!a && b", "((!a) && b)"},
		{"-a * b", "((-a) * b)"},
		{"a < b == c > d", "((a < b) == (c > d))"},
		{"a & b | c ^ d", "(((a & b) | c) ^ d)"},
		{"a << 2 + 1", "(a << (2 + 1))"},
		{"a.b.c", "a.b.c"},
		{"a?.b", "a?.b"},
		{"a.b(1)[2]", "a.b(1)[2]"},
		{"x is Node && y", "((x is Node) && y)"},
		{"x as Node as Drawable", "((x as Node) as Drawable)"},
	}

	for _, tt := range tests {
		source := "namespace A { fun f(): Void { var v = " + tt.input + "; } }"
		file := parseOK(t, source)

		ns := file.Decls[0].(*ast.NamespaceDecl)
		fun := ns.Decls[0].(*ast.FunDecl)
		varStmt := fun.Body.Stmts[0].(*ast.VarStmt)

		if got := varStmt.Value.String(); got != tt.expected {
			t.Errorf("input %q: got %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestParseNewExpressions(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun f(): Void {
		var s = new Sprite(1, 2);
		var l = new List<Int>();
		var a = new Int[10];
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)

	newExpr := fun.Body.Stmts[0].(*ast.VarStmt).Value.(*ast.NewExpr)
	if len(newExpr.Args) != 2 {
		t.Errorf("constructor args: got %d, want 2", len(newExpr.Args))
	}

	genericNew := fun.Body.Stmts[1].(*ast.VarStmt).Value.(*ast.NewExpr)
	if genericNew.Type.String() != "List<Int>" {
		t.Errorf("generic new type: got %q", genericNew.Type.String())
	}

	arrayNew := fun.Body.Stmts[2].(*ast.VarStmt).Value.(*ast.NewArrayExpr)
	if arrayNew.ElementType.String() != "Int" {
		t.Errorf("array element type: got %q", arrayNew.ElementType.String())
	}
}

func TestParseLambda(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun f(): Void {
		var g = (a: Int) => a + 1;
		var h = (a: Int, b: Int) => { return a + b; };
		var z = () => f();
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)

	exprLambda := fun.Body.Stmts[0].(*ast.VarStmt).Value.(*ast.LambdaExpr)
	if exprLambda.Expr == nil || exprLambda.Body != nil {
		t.Error("expected expression-bodied lambda")
	}
	if len(exprLambda.Params) != 1 || exprLambda.Params[0].Type.String() != "Int" {
		t.Errorf("lambda params mismatch: %v", exprLambda.Params)
	}

	blockLambda := fun.Body.Stmts[1].(*ast.VarStmt).Value.(*ast.LambdaExpr)
	if blockLambda.Body == nil || len(blockLambda.Params) != 2 {
		t.Error("expected two-parameter block-bodied lambda")
	}

	zeroLambda := fun.Body.Stmts[2].(*ast.VarStmt).Value.(*ast.LambdaExpr)
	if len(zeroLambda.Params) != 0 {
		t.Errorf("expected zero-parameter lambda, got %d params", len(zeroLambda.Params))
	}
}

func TestParseInterpolatedString(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun f(total: Int, s: Sprite): String {
		return "pos ${s.x + 1} of $total";
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)
	ret := fun.Body.Stmts[0].(*ast.ReturnStmt)

	interp, ok := ret.Value.(*ast.InterpStringLiteral)
	if !ok {
		t.Fatalf("expected interpolated string, got %T", ret.Value)
	}
	if len(interp.Parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(interp.Parts))
	}

	if text := interp.Parts[0].(*ast.StringLiteral); text.Value != "pos " {
		t.Errorf("part 0: got %q", text.Value)
	}

	infix, ok := interp.Parts[1].(*ast.InfixExpr)
	if !ok || infix.String() != "(s.x + 1)" {
		t.Errorf("part 1: got %v", interp.Parts[1])
	}
	// 插值表达式位置重定位回源文件
	if infix.Pos().Line != 4 {
		t.Errorf("part 1 line: got %d, want 4", infix.Pos().Line)
	}

	if ident, ok := interp.Parts[3].(*ast.Identifier); !ok || ident.Name != "total" {
		t.Errorf("part 3: got %v", interp.Parts[3])
	}
}

func TestParseScopeWithMocks(t *testing.T) {
	file := parseOK(t, `
namespace App {
	test rendersOffline() {
		scope {
			mock Network {
				fun fetch(url: String): String { return "cached"; }
			}
			var n = new Network();
			n.fetch("x");
		}
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	testFun := ns.Decls[0].(*ast.FunDecl)
	if !testFun.IsTest {
		t.Fatal("expected test declaration")
	}

	scope, ok := testFun.Body.Stmts[0].(*ast.ScopeStmt)
	if !ok {
		t.Fatalf("expected scope statement, got %T", testFun.Body.Stmts[0])
	}
	if len(scope.Mocks) != 1 || scope.Mocks[0].Name.Name != "Network" {
		t.Fatalf("mock mismatch: %v", scope.Mocks)
	}
	if len(scope.Mocks[0].Members) != 1 {
		t.Errorf("mock members: got %d, want 1", len(scope.Mocks[0].Members))
	}
	if len(scope.Stmts) != 2 {
		t.Errorf("scope body: got %d statements, want 2", len(scope.Stmts))
	}
}

func TestParseErrorRecovery(t *testing.T) {
	_, errs := ParseSource(`
namespace App {
	fun broken(): Void {
		var x = ;
		var y = 2;
		var z = @;
	}
	fun intact(): Void { return; }
}`, "test.aml")

	if len(errs) < 2 {
		t.Fatalf("expected at least 2 errors, got %d: %v", len(errs), errs)
	}
}

func TestParseInvalidAssignmentTarget(t *testing.T) {
	_, errs := ParseSource(`
namespace App {
	fun f(): Void {
		1 + 2 = 3;
	}
}`, "test.aml")

	if len(errs) == 0 {
		t.Fatal("expected error for invalid assignment target")
	}
}

func TestParseErrorLimit(t *testing.T) {
	// 构造一个充满错误的输入，错误数量必须有上限
	source := "namespace A { fun f(): Void { "
	for i := 0; i < 300; i++ {
		source += "var = ; "
	}
	source += "} }"

	_, errs := ParseSource(source, "test.aml")

	if len(errs) == 0 {
		t.Fatal("expected errors")
	}
	if len(errs) > maxParseErrors {
		t.Errorf("error count %d exceeds limit %d", len(errs), maxParseErrors)
	}
}

func TestParseConditionalExpr(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun f(c: Bool, x: Int): Void {
		var a = if (c) 1 else 2;
		var b = if (c) x else if (x > 0) 1 else 2;
		var s = if (c) 1 else 2 + 3;
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)

	first, ok := fun.Body.Stmts[0].(*ast.VarStmt).Value.(*ast.IfExpr)
	if !ok {
		t.Fatalf("expected conditional expression, got %T", fun.Body.Stmts[0].(*ast.VarStmt).Value)
	}
	if got := first.String(); got != "if (c) 1 else 2" {
		t.Errorf("conditional: got %q", got)
	}

	// else 分支可以再是条件表达式，右嵌套
	second := fun.Body.Stmts[1].(*ast.VarStmt).Value.(*ast.IfExpr)
	if _, ok := second.Else.(*ast.IfExpr); !ok {
		t.Errorf("expected nested conditional in else branch, got %T", second.Else)
	}

	// else 分支吸收整个右侧表达式
	third := fun.Body.Stmts[2].(*ast.VarStmt).Value.(*ast.IfExpr)
	if got := third.Else.String(); got != "(2 + 3)" {
		t.Errorf("else branch: got %q, want (2 + 3)", got)
	}
}

func TestParseConditionalExprRequiresElse(t *testing.T) {
	_, errs := ParseSource(`
namespace App {
	fun f(c: Bool): Void {
		var a = if (c) 1;
	}
}`, "test.aml")

	if len(errs) == 0 {
		t.Fatal("expected error for conditional expression without else")
	}
}

func TestParseChainedAssignment(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun f(): Void {
		var a = 0;
		var b = 0;
		var c = 0;
		a = b = c = 3;
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)

	assign, ok := fun.Body.Stmts[3].(*ast.AssignStmt)
	if !ok {
		t.Fatalf("expected assignment statement, got %T", fun.Body.Stmts[3])
	}

	// 右结合：a = (b = (c = 3))
	outer, ok := assign.Value.(*ast.AssignExpr)
	if !ok {
		t.Fatalf("expected nested assignment, got %T", assign.Value)
	}
	if outer.Target.String() != "b" {
		t.Errorf("middle target: got %q, want b", outer.Target.String())
	}
	inner, ok := outer.Value.(*ast.AssignExpr)
	if !ok {
		t.Fatalf("expected innermost assignment, got %T", outer.Value)
	}
	if inner.Target.String() != "c" || inner.Value.String() != "3" {
		t.Errorf("innermost assignment: got %q = %q", inner.Target.String(), inner.Value.String())
	}
}

func TestParseChainedAssignmentInvalidTarget(t *testing.T) {
	_, errs := ParseSource(`
namespace App {
	fun f(): Void {
		var a = 0;
		a = 1 + 2 = 3;
	}
}`, "test.aml")

	if len(errs) == 0 {
		t.Fatal("expected error for invalid chained assignment target")
	}
}

func TestParseCaseAfterDefault(t *testing.T) {
	file, errs := ParseSource(`
namespace App {
	fun f(x: Int): Void {
		switch (x) {
			case 1:
				break;
			default:
				break;
			case 2:
				break;
		}
	}
}`, "test.aml")

	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
	}

	// 出错的分支仍保留在语法树里，供绑定阶段兜底校验
	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)
	switchStmt := fun.Body.Stmts[0].(*ast.SwitchStmt)
	if len(switchStmt.Cases) != 3 {
		t.Errorf("expected 3 clauses in tree, got %d", len(switchStmt.Cases))
	}
}

func TestParseGenericCallVsComparison(t *testing.T) {
	file := parseOK(t, `
namespace App {
	fun f(a: Int, b: Int): Void {
		var cmp = a < b;
		var call = make<Int>(a);
	}
}`)

	ns := file.Decls[0].(*ast.NamespaceDecl)
	fun := ns.Decls[0].(*ast.FunDecl)

	cmp := fun.Body.Stmts[0].(*ast.VarStmt).Value
	if infix, ok := cmp.(*ast.InfixExpr); !ok || infix.Operator.Type != token.LT {
		t.Errorf("expected less-than comparison, got %v", cmp)
	}

	call := fun.Body.Stmts[1].(*ast.VarStmt).Value
	callExpr, ok := call.(*ast.CallExpr)
	if !ok {
		t.Fatalf("expected generic call, got %T", call)
	}
	if len(callExpr.TypeArgs) != 1 || callExpr.TypeArgs[0].String() != "Int" {
		t.Errorf("type args mismatch: %v", callExpr.TypeArgs)
	}
}
