package cgen

import (
	"fmt"
	"strings"
	"testing"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/binder"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/parser"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
)

// generate 解析、绑定并生成全部源码；绑定必须零错误
func generate(t *testing.T, sources ...string) *Output {
	t.Helper()
	out, err := tryGenerate(t, true, sources...)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return out
}

func tryGenerate(t *testing.T, wantClean bool, sources ...string) (*Output, error) {
	t.Helper()
	reporter := errors.NewReporter()
	builder := symbols.NewBuilder(reporter)

	files := make([]*ast.File, 0, len(sources))
	for i, code := range sources {
		file, errs := parser.ParseSource(code, fmt.Sprintf("test%d.aml", i))
		if len(errs) > 0 {
			t.Fatalf("parse error: %s", errs[0].Message)
		}
		builder.AddFile(file)
		files = append(files, file)
	}

	table := builder.Finish()
	bindings := binder.NewBindings()
	for _, file := range files {
		b := binder.New(table, reporter, nil)
		bindings.Merge(b.BindFile(file))
	}
	if wantClean && reporter.HasErrors() {
		t.Fatalf("unexpected bind errors: %s", reporter.Sorted()[0].Message)
	}

	return New(table, bindings).Generate(files)
}

// unit 第一个源文件的翻译单元
func unit(t *testing.T, out *Output) string {
	t.Helper()
	code, ok := out.Units["test0.aml"]
	if !ok {
		t.Fatalf("missing unit for test0.aml")
	}
	return code
}

// extractFunc 按签名前缀截取一个顶层函数定义
func extractFunc(t *testing.T, code, sig string) string {
	t.Helper()
	start := strings.Index(code, sig)
	if start < 0 {
		t.Fatalf("function %q not found in:\n%s", sig, code)
	}
	end := strings.Index(code[start:], "\n}\n")
	if end < 0 {
		t.Fatalf("unterminated function %q", sig)
	}
	return code[start : start+end+3]
}

func TestGenerateClassStruct(t *testing.T) {
	out := generate(t, `
namespace App {
	class Point {
		var x: Int
		var y: Int

		fun Point(x: Int, y: Int) {
			this.x = x;
			this.y = y;
		}
	}
}
`)
	header := out.ProgramHeader
	for _, want := range []string{
		"typedef struct App_Point {",
		"amrt_header hdr;",
		"int32_t x;",
		"int32_t y;",
		"struct App_Point* App_Point_new(int32_t x, int32_t y);",
		"void App_Point_dtor(void* self);",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q:\n%s", want, header)
		}
	}
}

func TestGenerateConstructor(t *testing.T) {
	out := generate(t, `
namespace App {
	class Point {
		var x: Int = 4

		fun Point(x: Int) {
			this.x = x;
		}
	}
}
`)
	code := unit(t, out)
	ctor := extractFunc(t, code, "struct App_Point* App_Point_new(int32_t x)")
	for _, want := range []string{
		"amrt_alloc(sizeof(struct App_Point), App_Point_dtor, &App_Point_type)",
		"self->x = 4;",
		"return self;",
	} {
		if !strings.Contains(ctor, want) {
			t.Errorf("constructor missing %q:\n%s", want, ctor)
		}
	}
}

func TestGenerateRefcountBalance(t *testing.T) {
	out := generate(t, `
namespace App {
	fun describe(name: String): Int {
		var copy: String = name;
		return copy.length;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "int32_t App_describe(amrt_string* name)")

	retains := strings.Count(fn, "amrt_retain(")
	releases := strings.Count(fn, "amrt_release(")
	if retains == 0 {
		t.Fatalf("expected retain calls in:\n%s", fn)
	}
	if retains != releases {
		t.Errorf("unbalanced refcounting: %d retains vs %d releases:\n%s", retains, releases, fn)
	}
}

func TestGenerateScopeReleasesInReverseOrder(t *testing.T) {
	out := generate(t, `
namespace App {
	fun pair(a: String, b: String) {
		var first: String = a;
		var second: String = b;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "void App_pair(amrt_string* a, amrt_string* b)")
	relSecond := strings.Index(fn, "amrt_release(second);")
	relFirst := strings.Index(fn, "amrt_release(first);")
	if relSecond < 0 || relFirst < 0 {
		t.Fatalf("missing scope releases:\n%s", fn)
	}
	if relSecond > relFirst {
		t.Errorf("releases not in reverse declaration order:\n%s", fn)
	}
}

func TestGenerateSwitchLowersToIfChain(t *testing.T) {
	out := generate(t, `
namespace App {
	fun pick(cmd: String): Int {
		switch (cmd) {
		case "start":
			return 1;
		case "stop":
			return 2;
		default:
			return 0;
		}
		return -1;
	}
}
`)
	code := unit(t, out)
	if strings.Contains(code, "switch (") {
		t.Errorf("C switch statement leaked into output:\n%s", code)
	}
	for _, want := range []string{"amrt_str_eq(", "} else if (", "} else {"} {
		if !strings.Contains(code, want) {
			t.Errorf("switch lowering missing %q:\n%s", want, code)
		}
	}
}

func TestGenerateSwitchOnIntUsesPlainCompare(t *testing.T) {
	out := generate(t, `
namespace App {
	fun name(code: Int): Int {
		switch (code) {
		case 1:
			return 10;
		case 2:
			return 20;
		}
		return 0;
	}
}
`)
	code := unit(t, out)
	if !strings.Contains(code, "== 1)") || !strings.Contains(code, "== 2)") {
		t.Errorf("expected integer comparisons in switch lowering:\n%s", code)
	}
	if strings.Contains(code, "amrt_str_eq") {
		t.Errorf("string comparison used for integer switch:\n%s", code)
	}
}

func TestGenerateInterpolation(t *testing.T) {
	out := generate(t, `
namespace App {
	fun greet(name: String, count: Int): String {
		return "Hello, $name! You have ${count + 1} items.";
	}
}
`)
	code := unit(t, out)
	for _, want := range []string{
		"amrt_sb_init(",
		`amrt_sb_cstr(`,
		"amrt_sb_str(",
		"amrt_sb_int(",
		"amrt_sb_build(",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("interpolation lowering missing %q:\n%s", want, code)
		}
	}
}

func TestGenerateMonomorphization(t *testing.T) {
	out := generate(t, `
namespace App {
	class Box<T> {
		var value: T?

		fun set(v: T) {
			this.value = v;
		}

		fun get(): T? {
			return this.value;
		}
	}

	class Main {
		fun run() {
			var ints = new Box<Int>();
			ints.set(42);
			var names = new Box<String>();
			names.set("x");
		}
	}
}
`)
	header := out.ProgramHeader
	for _, want := range []string{
		"typedef struct App_Box__Int {",
		"typedef struct App_Box__String {",
		"void App_Box__Int_set(struct App_Box__Int* self, int32_t v);",
		"void App_Box__String_set(struct App_Box__String* self, amrt_string* v);",
		"amrt_opt_int App_Box__Int_get(struct App_Box__Int* self);",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q:\n%s", want, header)
		}
	}
	if strings.Contains(header, "typedef struct App_Box {") {
		t.Errorf("generic declaration itself must not be emitted:\n%s", header)
	}
	code := unit(t, out)
	if !strings.Contains(code, "App_Box__Int_new(") {
		t.Errorf("instantiated constructor missing:\n%s", code)
	}
}

func TestGenerateInterfaceVtable(t *testing.T) {
	out := generate(t, `
namespace App {
	interface Drawable {
		fun draw(depth: Int)
	}

	class Sprite : Drawable {
		fun draw(depth: Int) {
		}
	}

	fun render(d: Drawable) {
		d.draw(1);
	}

	fun main() {
		render(new Sprite());
	}
}
`)
	header := out.ProgramHeader
	for _, want := range []string{
		"typedef struct App_Drawable_vtable {",
		"void (*draw)(void* self, int32_t",
		"extern const App_Drawable_vtable App_Sprite_as_App_Drawable;",
	} {
		if !strings.Contains(header, want) {
			t.Errorf("header missing %q:\n%s", want, header)
		}
	}
	code := unit(t, out)
	for _, want := range []string{
		"const App_Drawable_vtable App_Sprite_as_App_Drawable = {",
		".draw = ",
		".vt->draw(",
	} {
		if !strings.Contains(code, want) {
			t.Errorf("unit missing %q:\n%s", want, code)
		}
	}
}

func TestGenerateSafeCallIsConditional(t *testing.T) {
	out := generate(t, `
namespace App {
	class Logger {
		fun log(msg: String) {
		}
	}

	fun report(l: Logger?, msg: String) {
		l?.log(msg);
	}
}
`)
	fn := extractFunc(t, unit(t, out), "void App_report(")
	if !strings.Contains(fn, "!= NULL") {
		t.Errorf("safe call must null-check the receiver:\n%s", fn)
	}
	if !strings.Contains(fn, "App_Logger_log(") {
		t.Errorf("safe call must dispatch to the method:\n%s", fn)
	}
}

func TestGenerateNullableNarrowing(t *testing.T) {
	out := generate(t, `
namespace App {
	fun firstOr(v: Int?, fallback: Int): Int {
		if (v != null) {
			return v;
		}
		return fallback;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "int32_t App_firstOr(amrt_opt_int v, int32_t fallback)")
	if !strings.Contains(fn, "(v).has") {
		t.Errorf("nullable primitive check must read .has:\n%s", fn)
	}
	if !strings.Contains(fn, "(v).v") {
		t.Errorf("narrowed use must unwrap .v:\n%s", fn)
	}
}

func TestGenerateForLoopInclusiveBound(t *testing.T) {
	out := generate(t, `
namespace App {
	fun sum(limit: Int): Int {
		var total = 0;
		for (i = 0 to limit) {
			total = total + i;
		}
		return total;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "int32_t App_sum(int32_t limit)")
	if !strings.Contains(fn, "int32_t i = 0; i <= ") {
		t.Errorf("range loop must include the upper bound:\n%s", fn)
	}
}

func TestGenerateStaticFields(t *testing.T) {
	out := generate(t, `
namespace App {
	class Counter {
		static var total: Int = 7

		static fun bump() {
			Counter.total = Counter.total + 1;
		}
	}
}
`)
	code := unit(t, out)
	if !strings.Contains(code, "int32_t App_Counter_total;") {
		t.Errorf("static field definition missing:\n%s", code)
	}
	init := extractFunc(t, code, "void aml_unit_init_test0_aml(void)")
	if !strings.Contains(init, "App_Counter_total = 7;") {
		t.Errorf("static initializer missing:\n%s", init)
	}
	if !strings.Contains(out.Units["aml_init.c"], "aml_unit_init_test0_aml();") {
		t.Errorf("aml_static_init must call the unit initializer:\n%s", out.Units["aml_init.c"])
	}
}

func TestGenerateStringLiteralInterning(t *testing.T) {
	out := generate(t, `
namespace App {
	fun spin(n: Int): Void {
		for (i = 0 to n) {
			var s = "tick";
		}
		var again = "tick";
	}
}
`)
	code := unit(t, out)
	if !strings.Contains(code, "static amrt_string* __lit0;") {
		t.Errorf("interned literal declaration missing:\n%s", code)
	}

	// 相同字面量共享一个驻留变量，整个单元只分配一次
	if got := strings.Count(code, `amrt_lit("tick")`); got != 1 {
		t.Errorf("literal must be allocated once, got %d occurrences:\n%s", got, code)
	}

	init := extractFunc(t, code, "void aml_unit_init_test0_aml(void)")
	if !strings.Contains(init, `__lit0 = amrt_lit("tick");`) {
		t.Errorf("unit init must populate the interned literal:\n%s", init)
	}

	fn := extractFunc(t, code, "void App_spin(int32_t n)")
	if strings.Contains(fn, "amrt_lit") {
		t.Errorf("loop body must reference the interned variable, not allocate:\n%s", fn)
	}
	if !strings.Contains(fn, "__lit0") {
		t.Errorf("loop body must reference the interned literal:\n%s", fn)
	}
}

func TestGenerateConditionalExpr(t *testing.T) {
	out := generate(t, `
namespace App {
	fun pick(c: Bool, a: Int, b: Int): Int {
		return if (c) a else b;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "int32_t App_pick(bool c, int32_t a, int32_t b)")
	for _, want := range []string{
		"int32_t __t0 = 0;",
		"if (c) {",
		"__t0 = a;",
		"} else {",
		"__t0 = b;",
	} {
		if !strings.Contains(fn, want) {
			t.Errorf("conditional lowering missing %q:\n%s", want, fn)
		}
	}
}

func TestGenerateConditionalExprRefCounting(t *testing.T) {
	out := generate(t, `
namespace App {
	fun label(c: Bool): String {
		var s = if (c) "yes" else "no";
		return s;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "amrt_string* App_label(bool c)")
	if !strings.Contains(fn, "amrt_retain(__t0);") {
		t.Errorf("branches must retain the result:\n%s", fn)
	}
	if !strings.Contains(fn, "amrt_release(__t0);") {
		t.Errorf("scope exit must release the result:\n%s", fn)
	}
}

func TestGenerateChainedAssignment(t *testing.T) {
	out := generate(t, `
namespace App {
	fun set(x: Int): Int {
		var a = 0;
		var b = 0;
		a = b = x;
		return a;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "int32_t App_set(int32_t x)")
	if !strings.Contains(fn, "b = x;") || !strings.Contains(fn, "a = b;") {
		t.Errorf("chained assignment must store right to left:\n%s", fn)
	}
}

func TestGenerateTestRegistry(t *testing.T) {
	out, err := func() (*Output, error) {
		reporter := errors.NewReporter()
		builder := symbols.NewBuilder(reporter)
		file, errs := parser.ParseSource(`
namespace App {
	test checkMath() {
	}
}
`, "test0.aml")
		if len(errs) > 0 {
			t.Fatalf("parse error: %s", errs[0].Message)
		}
		file.IsTest = true
		builder.AddFile(file)
		table := builder.Finish()
		b := binder.New(table, reporter, nil)
		bindings := b.BindFile(file)
		if reporter.HasErrors() {
			t.Fatalf("bind error: %s", reporter.Sorted()[0].Message)
		}
		return New(table, bindings).Generate([]*ast.File{file})
	}()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	initUnit := out.Units["aml_init.c"]
	if !strings.Contains(initUnit, `{ "App.checkMath", App_checkMath }`) {
		t.Errorf("test registry entry missing:\n%s", initUnit)
	}
	if !strings.Contains(initUnit, "const int32_t aml_test_count = 1;") {
		t.Errorf("test count missing:\n%s", initUnit)
	}
}

func TestGenerateSuspendIsSynchronous(t *testing.T) {
	out := generate(t, `
namespace App {
	suspend fun fetch(url: String): Int {
		return url.length;
	}
}
`)
	fn := extractFunc(t, unit(t, out), "int32_t App_fetch(amrt_string* url)")
	if fn == "" {
		t.Fatal("suspend function must lower to a plain C function")
	}
}

func TestGenerateRejectsErrorPlaceholders(t *testing.T) {
	_, err := tryGenerate(t, false, `
namespace App {
	fun broken(): Int {
		return missing;
	}
}
`)
	if err == nil {
		t.Fatal("expected an internal error for error-typed expressions")
	}
	if !strings.Contains(err.Error(), "error-typed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateOverloadedMethodNames(t *testing.T) {
	out := generate(t, `
namespace App {
	class Calc {
		fun add(a: Int): Int {
			return a;
		}

		fun add(a: Int, b: Int): Int {
			return a + b;
		}
	}
}
`)
	header := out.ProgramHeader
	if !strings.Contains(header, "App_Calc_add__Int(") || !strings.Contains(header, "App_Calc_add__Int_Int(") {
		t.Errorf("overloads must get distinct C names:\n%s", header)
	}
}

func TestGenerateRuntimeHeaderShape(t *testing.T) {
	out := generate(t, `
namespace App {
	fun nop() {
	}
}
`)
	rt := out.RuntimeHeader
	for _, want := range []string{
		"int32_t rc;",
		"void (*dtor)(void* self);",
		"amrt_retain",
		"amrt_release",
		"amrt_opt_int",
		// 字符追加按 UTF-8 编码 16 位码元，不截断高字节
		"tmp[0] = (char)(0xE0 | (v >> 12));",
	} {
		if !strings.Contains(rt, want) {
			t.Errorf("runtime header missing %q", want)
		}
	}
}
