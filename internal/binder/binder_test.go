package binder

import (
	"fmt"
	"testing"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/parser"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

type src struct {
	code   string
	isTest bool
}

// bindAll 解析、建表并绑定全部源码
func bindAll(t *testing.T, features FeatureSet, sources ...src) (*Bindings, *errors.Reporter) {
	t.Helper()
	reporter := errors.NewReporter()
	builder := symbols.NewBuilder(reporter)

	files := make([]*ast.File, 0, len(sources))
	for i, s := range sources {
		file, errs := parser.ParseSource(s.code, fmt.Sprintf("test%d.aml", i))
		if len(errs) > 0 {
			t.Fatalf("parse error: %s", errs[0].Message)
		}
		file.IsTest = s.isTest
		builder.AddFile(file)
		files = append(files, file)
	}

	table := builder.Finish()
	bindings := NewBindings()
	for _, file := range files {
		b := New(table, reporter, features)
		bindings.Merge(b.BindFile(file))
	}
	return bindings, reporter
}

func bindOK(t *testing.T, features FeatureSet, sources ...src) *Bindings {
	t.Helper()
	bindings, reporter := bindAll(t, features, sources...)
	if reporter.HasErrors() {
		t.Fatalf("unexpected errors: %s", reporter.Sorted()[0].Message)
	}
	return bindings
}

func hasKind(reporter *errors.Reporter, kind errors.Kind) bool {
	for _, d := range reporter.All() {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func countKind(reporter *errors.Reporter, kind errors.Kind) int {
	n := 0
	for _, d := range reporter.All() {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

func TestBindSimpleClass(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Sprite {
		var x: Int
		var y: Int

		fun Sprite(x: Int, y: Int) {
			this.x = x;
			this.y = y;
		}

		fun move(dx: Int, dy: Int) {
			this.x = this.x + dx;
			this.y = this.y + dy;
		}
	}

	fun run() {
		var s = new Sprite(1, 2);
		s.move(3, 4);
	}
}
`})
}

func TestBindUnresolvedName(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var x = missing + 1;
	}
}
`})
	if !hasKind(reporter, errors.UnresolvedSymbol) {
		t.Error("expected UnresolvedSymbol")
	}
}

func TestBindNullSafetyViolation(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	class Sprite {
		var name: String?
	}

	fun run() {
		var s = new Sprite();
		var n: Int = s.name.length;
	}
}
`})
	if !hasKind(reporter, errors.NullSafetyViolation) {
		t.Error("expected NullSafetyViolation for unguarded nullable access")
	}
}

func TestBindNullGuardNarrowing(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Sprite {
		var name: String?
	}

	fun run() {
		var s = new Sprite();
		if (s.name != null) {
			var n: String = s.name;
		}
		var v: String? = null;
		if (v != null) {
			var m: Int = v.length;
		}
	}
}
`})
}

func TestBindGuardWithAndChain(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var s: String? = "hi";
		if (s != null && s.length > 0) {
			var n: String = s;
		}
	}
}
`})
}

func TestBindNarrowingInvalidatedByAssignment(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var s: String? = "hi";
		if (s != null) {
			s = null;
			var n: Int = s.length;
		}
	}
}
`})
	if !hasKind(reporter, errors.NullSafetyViolation) {
		t.Error("assignment should invalidate the narrowing")
	}
}

func TestBindSafeCall(t *testing.T) {
	bindings := bindOK(t, nil, src{code: `
namespace App {
	class Sprite {
		var name: String?
	}

	fun run() {
		var s: Sprite? = new Sprite();
		var n: String? = s?.name;
	}
}
`})

	// 安全访问的结果必须是可空类型
	found := false
	for _, typ := range bindings.ExprTypes {
		if nt, ok := typ.(*types.Nullable); ok && types.Same(nt.Elem, types.String) {
			found = true
		}
	}
	if !found {
		t.Error("safe access should produce a nullable result type")
	}
}

func TestBindNullableAssignmentRules(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var a: String? = "ok";
		var b: String = a;
	}
}
`})
	if !hasKind(reporter, errors.NullSafetyViolation) {
		t.Error("String? to String requires narrowing")
	}

	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var a: String = "ok";
		var b: String? = a;
		var c: String? = null;
	}
}
`})
}

func TestBindConditionalExpr(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var c = true;
		var a: Int = if (c) 1 else 2;
		var w: Long = if (c) 1 else 2L;
		var s: String? = if (c) "yes" else null;
	}
}
`})
}

func TestBindConditionalExprMismatch(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var c = true;
		var x = if (c) 1 else "two";
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("incompatible branches should report TypeMismatch")
	}
}

func TestBindConditionalExprNarrowing(t *testing.T) {
	// 条件的收窄在各自分支内生效，与 if 语句一致
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var s: String? = "hi";
		var n: Int = if (s != null) s.length else 0;
	}
}
`})
}

func TestBindChainedAssignment(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var a = 0;
		var b = 0;
		a = b = 3;
	}
}
`})
}

func TestBindChainedAssignmentMismatch(t *testing.T) {
	// 内层赋值的类型是其目标类型，继续参与外层赋值的检查
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var a: String = "x";
		var b = 0;
		a = b = 3;
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("outer assignment should reject the inner assignment's type")
	}
}

func TestBindOverloadPicksExact(t *testing.T) {
	bindings := bindOK(t, nil, src{code: `
namespace App {
	class Math {
		fun abs(x: Int): Int {
			return x;
		}

		fun abs(x: Long): Long {
			return x;
		}
	}

	fun run() {
		var m = new Math();
		var r: Int = m.abs(42);
	}
}
`})

	for _, callee := range bindings.Calls {
		if callee.Method != nil && callee.Method.Name == "abs" {
			if !types.Same(callee.Method.Params[0], types.Int) {
				t.Errorf("abs(Int) should win over abs(Long), got %s", callee.Method.Params[0])
			}
			return
		}
	}
	t.Fatal("abs call was not bound")
}

func TestBindOverloadWidening(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Math {
		fun half(x: Double): Double {
			return x;
		}
	}

	fun run() {
		var m = new Math();
		var r: Double = m.half(21);
	}
}
`})
}

func TestBindAmbiguousOverload(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun pick(a: Int, b: Long): Int {
		return a;
	}

	fun pick(a: Long, b: Int): Int {
		return b;
	}

	fun run() {
		var r: Int = pick(1, 2);
	}
}
`})
	if !hasKind(reporter, errors.AmbiguousOverload) {
		t.Error("tied overloads should report AmbiguousOverload")
	}
}

func TestBindSwitchOrdering(t *testing.T) {
	// 语法阶段已对 default 之后的 case 报错，但出错的分支保留在
	// 语法树里，绑定阶段兜底再校验一次
	file, errs := parser.ParseSource(`
namespace App {
	fun run() {
		var x = 2;
		switch (x) {
		case 1:
			x = 10;
		default:
			x = 30;
		case 2:
			x = 20;
		}
	}
}
`, "test0.aml")
	if len(errs) == 0 {
		t.Fatal("expected a parse error for case after default")
	}

	reporter := errors.NewReporter()
	builder := symbols.NewBuilder(reporter)
	builder.AddFile(file)
	table := builder.Finish()

	b := New(table, reporter, nil)
	b.BindFile(file)

	if !hasKind(reporter, errors.InvalidSwitchOrdering) {
		t.Error("case after default should report InvalidSwitchOrdering")
	}
}

func TestBindSwitchDuplicateCase(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var x = 2;
		switch (x) {
		case 1:
			x = 10;
		case 1:
			x = 20;
		}
	}
}
`})
	if !hasKind(reporter, errors.DuplicateCaseValue) {
		t.Error("duplicate case constant should report DuplicateCaseValue")
	}
}

func TestBindSwitchSubjectCompatibility(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		var x = 2;
		switch (x) {
		case "two":
			x = 20;
		}
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("String case on Int subject should report TypeMismatch")
	}
}

func TestBindTestLocationPolicy(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	test checkMath() {
		var x = 1 + 2;
	}
}
`})
	if !hasKind(reporter, errors.InvalidTestLocation) {
		t.Error("test outside a test root should report InvalidTestLocation")
	}

	bindOK(t, nil, src{isTest: true, code: `
namespace App {
	test checkMath() {
		var x = 1 + 2;
	}
}
`})
}

func TestBindFeatureGating(t *testing.T) {
	gated := `
namespace App {
	#require graphics
	class Surface {
		fun clear() {
		}
	}

	fun run() {
		var s = new Surface();
		s.clear();
	}
}
`
	_, reporter := bindAll(t, nil, src{code: gated})
	if !hasKind(reporter, errors.UnresolvedSymbol) {
		t.Error("gated-out class reference should report UnresolvedSymbol")
	}

	bindOK(t, FeatureSet{"graphics": true}, src{code: gated})
}

func TestBindFeatureGatingNegated(t *testing.T) {
	gated := `
namespace App {
	#requireNot graphics
	fun fallback(): Int {
		return 0;
	}

	fun run() {
		var x: Int = fallback();
	}
}
`
	bindOK(t, nil, src{code: gated})

	_, reporter := bindAll(t, FeatureSet{"graphics": true}, src{code: gated})
	if !hasKind(reporter, errors.UnresolvedSymbol) {
		t.Error("#requireNot declaration should vanish when the feature is enabled")
	}
}

func TestBindMockScope(t *testing.T) {
	bindOK(t, FeatureSet{}, src{isTest: true, code: `
namespace App {
	class Clock {
		fun tick(): Int {
			return 1;
		}
	}

	test frozenClock() {
		scope {
			mock Clock {
				fun now(): Int {
					return 42;
				}
			}
			var c = new Clock();
			var n: Int = c.now();
		}
		var d = new Clock();
		var t: Int = d.tick();
	}
}
`})
}

func TestBindMockScopeRestoresOriginal(t *testing.T) {
	_, reporter := bindAll(t, nil, src{isTest: true, code: `
namespace App {
	class Clock {
		fun tick(): Int {
			return 1;
		}
	}

	test frozenClock() {
		scope {
			mock Clock {
				fun now(): Int {
					return 42;
				}
			}
			var c = new Clock();
			var n: Int = c.now();
		}
		var d = new Clock();
		var n: Int = d.now();
	}
}
`})
	// scope 结束后替身失效，now() 不再可见
	if countKind(reporter, errors.UnresolvedSymbol) != 1 {
		t.Errorf("exactly the post-scope now() call should fail, got %d errors",
			countKind(reporter, errors.UnresolvedSymbol))
	}
}

func TestBindMissingOverride(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	interface Drawable {
		fun draw()
	}

	class Bad : Drawable {
	}
}
`})
	if !hasKind(reporter, errors.MissingOverride) {
		t.Error("unimplemented interface method should report MissingOverride")
	}

	bindOK(t, nil, src{code: `
namespace App {
	interface Drawable {
		fun draw()
	}

	class Good : Drawable {
		fun draw() {
		}
	}
}
`})
}

func TestBindOverrideThroughSuperclass(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	interface Drawable {
		fun draw()
	}

	class Base {
		fun draw() {
		}
	}

	class Child : Base, Drawable {
	}
}
`})
}

func TestBindForLoop(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var sum = 0;
		for (i = 0 to 9) {
			sum = sum + i;
		}
	}
}
`})

	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		for (i = "a" to 9) {
		}
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("non-numeric range bound should report TypeMismatch")
	}
}

func TestBindBreakOutsideLoop(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun run() {
		break;
	}
}
`})
	if !hasKind(reporter, errors.SyntaxError) {
		t.Error("break outside a loop should be rejected")
	}
}

func TestBindReturnChecks(t *testing.T) {
	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	fun answer(): Int {
		return "forty-two";
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("wrong return type should report TypeMismatch")
	}

	_, reporter = bindAll(t, nil, src{code: `
namespace App {
	fun noisy() {
		return 42;
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("value return in Void function should report TypeMismatch")
	}
}

func TestBindGenericUsage(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Box<T> {
		var value: T

		fun get(): T {
			return this.value;
		}

		fun set(value: T) {
			this.value = value;
		}
	}

	fun run() {
		var b: Box<Int> = new Box<Int>();
		b.set(42);
		var v: Int = b.get();
	}
}
`})

	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	class Box<T> {
		var value: T

		fun get(): T {
			return this.value;
		}
	}

	fun run() {
		var b: Box<Int> = new Box<Int>();
		var s: String = b.get();
	}
}
`})
	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("Box<Int>.get() result must not be assignable to String")
	}
}

func TestBindIsNarrowing(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Node {
		var id: Int
	}

	class Sprite : Node {
		var x: Int
	}

	fun run(n: Node) {
		if (n is Sprite) {
			var v: Int = n.x;
		}
	}
}
`})
}

func TestBindInterpolationIsString(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var name = "World";
		var count = 2;
		var msg: String = "Hello, $name! You have ${count + 1} items.";
	}
}
`})
}

func TestBindStringConcat(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	fun run() {
		var s: String = "n = " + 42;
	}
}
`})
}

func TestBindLambda(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Emitter {
		var handler: fun(Int): Int

		fun fire(value: Int): Int {
			return this.handler(value);
		}
	}

	fun run() {
		var e = new Emitter();
		e.handler = (a: Int) => a + 1;
		var r: Int = e.fire(41);
	}
}
`})
}

func TestBindStaticAccess(t *testing.T) {
	bindOK(t, nil, src{code: `
namespace App {
	class Counter {
		static var total: Int = 0

		static fun bump(): Int {
			return Counter.total + 1;
		}
	}

	fun run() {
		var n: Int = Counter.total;
		var m: Int = Counter.bump();
	}
}
`})

	_, reporter := bindAll(t, nil, src{code: `
namespace App {
	class Counter {
		var current: Int

		static fun bad(): Int {
			return current;
		}
	}
}
`})
	if !hasKind(reporter, errors.UnresolvedSymbol) {
		t.Error("instance field access from a static context should be rejected")
	}
}
