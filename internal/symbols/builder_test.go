package symbols

import (
	"fmt"
	"testing"

	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/parser"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// buildSources 解析若干源码并构建符号表
func buildSources(t *testing.T, sources ...string) (*Table, *errors.Reporter) {
	t.Helper()
	reporter := errors.NewReporter()
	builder := NewBuilder(reporter)
	for i, src := range sources {
		file, errs := parser.ParseSource(src, fmt.Sprintf("test%d.aml", i))
		if len(errs) > 0 {
			t.Fatalf("parse error: %s", errs[0].Message)
		}
		builder.AddFile(file)
	}
	return builder.Finish(), reporter
}

func buildOK(t *testing.T, sources ...string) *Table {
	t.Helper()
	table, reporter := buildSources(t, sources...)
	if reporter.HasErrors() {
		t.Fatalf("unexpected errors: %s", reporter.Sorted()[0].Message)
	}
	return table
}

func TestBuildClassAndFields(t *testing.T) {
	table := buildOK(t, `
namespace App.Core {
	class Sprite {
		var x: Int
		var y: Int
		var name: String?
		static var count: Int = 0

		fun move(dx: Int, dy: Int) {
		}
	}
}
`)

	sprite, ok := table.Class("App.Core.Sprite")
	if !ok {
		t.Fatal("App.Core.Sprite not found")
	}
	if sprite.IsInterface {
		t.Error("Sprite should not be an interface")
	}

	instance := sprite.InstanceFields()
	if len(instance) != 3 {
		t.Fatalf("instance fields = %d, want 3", len(instance))
	}
	if instance[0].Name != "x" || instance[1].Name != "y" || instance[2].Name != "name" {
		t.Errorf("field order = %s, %s, %s", instance[0].Name, instance[1].Name, instance[2].Name)
	}
	if !types.Same(instance[2].Type, types.MakeNullable(types.String)) {
		t.Errorf("name type = %s, want String?", instance[2].Type)
	}

	count := sprite.LookupField("count")
	if count == nil || !count.IsStatic {
		t.Error("count should be a static field")
	}
	if !types.Same(count.Type, types.Int) {
		t.Errorf("count type = %s, want Int", count.Type)
	}

	moves := sprite.LookupMethods("move")
	if len(moves) != 1 {
		t.Fatalf("move overloads = %d, want 1", len(moves))
	}
	if !types.Same(moves[0].Return, types.Void) {
		t.Errorf("move return = %s, want Void", moves[0].Return)
	}
}

func TestBuildConstructors(t *testing.T) {
	table := buildOK(t, `
namespace App {
	class Point {
		var x: Int
		var y: Int

		fun Point(x: Int, y: Int) {
			this.x = x;
			this.y = y;
		}

		fun Point() {
		}
	}

	class Empty {
	}
}
`)

	point, _ := table.Class("App.Point")
	ctors := point.Ctors()
	if len(ctors) != 2 {
		t.Fatalf("Point ctors = %d, want 2", len(ctors))
	}
	for _, c := range ctors {
		if !c.IsCtor {
			t.Error("constructor not flagged IsCtor")
		}
		if c.Return != types.Type(point) {
			t.Errorf("ctor return = %s, want App.Point", c.Return)
		}
	}

	// 无显式构造函数的类得到合成的零参默认构造函数
	empty, _ := table.Class("App.Empty")
	ctors = empty.Ctors()
	if len(ctors) != 1 {
		t.Fatalf("Empty ctors = %d, want 1", len(ctors))
	}
	if len(ctors[0].Params) != 0 || ctors[0].Decl != nil {
		t.Error("default constructor should be synthetic and zero-arg")
	}
}

func TestBuildInheritance(t *testing.T) {
	table := buildOK(t, `
namespace App {
	interface Drawable {
		fun draw()
	}

	class Node {
		var id: Int
	}

	class Sprite : Node, Drawable {
		var x: Int

		fun draw() {
		}
	}
}
`)

	sprite, _ := table.Class("App.Sprite")
	node, _ := table.Class("App.Node")
	drawable, _ := table.Class("App.Drawable")

	if sprite.Super != node {
		t.Error("Sprite.Super should be App.Node")
	}
	if len(sprite.Interfaces) != 1 || sprite.Interfaces[0] != drawable {
		t.Error("Sprite should implement App.Drawable")
	}
	if !drawable.IsInterface {
		t.Error("Drawable should be an interface")
	}

	// 实例字段布局：超类字段在前
	fields := sprite.InstanceFields()
	if len(fields) != 2 || fields[0].Name != "id" || fields[1].Name != "x" {
		t.Fatalf("unexpected field layout: %v", fieldNames(fields))
	}
}

func fieldNames(fields []*types.Field) []string {
	var names []string
	for _, f := range fields {
		names = append(names, f.Name)
	}
	return names
}

func TestBuildCrossFileResolution(t *testing.T) {
	table := buildOK(t, `
namespace App.Core {
	class Node {
		var id: Int
	}
}
`, `
namespace App.Game {
	import App.Core

	class Sprite : Node {
		var parent: Node?
	}
}
`)

	sprite, _ := table.Class("App.Game.Sprite")
	node, _ := table.Class("App.Core.Node")
	if sprite.Super != node {
		t.Error("import resolution failed: Sprite.Super should be App.Core.Node")
	}

	parent := sprite.LookupField("parent")
	inner := types.StripNullable(parent.Type)
	if inner != types.Type(node) {
		t.Errorf("parent type = %s, want App.Core.Node?", parent.Type)
	}
}

func TestBuildGenericClass(t *testing.T) {
	table := buildOK(t, `
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

	class Holder {
		var ints: Box<Int>
		var strings: Box<String>
		var nested: Box<Box<Int>>
	}
}
`)

	box, _ := table.Class("App.Box")
	if len(box.TypeParams) != 1 || box.TypeParams[0].Name != "T" {
		t.Fatal("Box should declare one type parameter T")
	}
	if value := box.LookupField("value"); value.Type != types.Type(box.TypeParams[0]) {
		t.Errorf("generic field type = %s, want T", value.Type)
	}

	holder, _ := table.Class("App.Holder")
	ints := holder.LookupField("ints").Type.(*types.Named)
	if ints.Generic != box {
		t.Error("Box<Int> should point back to the generic declaration")
	}
	if !types.Same(ints.TypeArgs[0], types.Int) {
		t.Errorf("type arg = %s, want Int", ints.TypeArgs[0])
	}

	// 实例成员已按实参替换
	if got := ints.LookupField("value").Type; !types.Same(got, types.Int) {
		t.Errorf("Box<Int>.value type = %s, want Int", got)
	}
	gets := ints.LookupMethods("get")
	if len(gets) != 1 || !types.Same(gets[0].Return, types.Int) {
		t.Error("Box<Int>.get should return Int")
	}

	// 同一实例化全局唯一
	if holder.LookupField("ints").Type != table.Instantiate(box, []types.Type{types.Int}) {
		t.Error("Box<Int> should be interned")
	}
	if holder.LookupField("strings").Type == holder.LookupField("ints").Type {
		t.Error("Box<Int> and Box<String> should be distinct")
	}

	nested := holder.LookupField("nested").Type.(*types.Named)
	if !types.Same(nested.TypeArgs[0], ints) {
		t.Errorf("nested arg = %s, want App.Box<Int>", nested.TypeArgs[0])
	}

	// 单态化注册表收录了全部实例
	insts := table.Instantiations()
	if len(insts) != 3 {
		t.Fatalf("instantiations = %d, want 3", len(insts))
	}
}

func TestBuildGenericSelfReference(t *testing.T) {
	table := buildOK(t, `
namespace App {
	class Node<T> {
		var value: T
		var next: Node<T>?
	}

	class List {
		var head: Node<Int>?
	}
}
`)

	list, _ := table.Class("App.List")
	head := types.StripNullable(list.LookupField("head").Type).(*types.Named)
	next := types.StripNullable(head.LookupField("next").Type).(*types.Named)
	if next != head {
		t.Error("Node<Int>.next should resolve to the same Node<Int> instance")
	}
}

func TestBuildGenericSupertype(t *testing.T) {
	table := buildOK(t, `
namespace App {
	class Collection<T> {
		fun add(item: T) {
		}
	}

	class IntStack : Collection<Int> {
	}
}
`)

	stack, _ := table.Class("App.IntStack")
	if stack.Super == nil {
		t.Fatal("IntStack should extend Collection<Int>")
	}
	if !types.Same(stack.Super.TypeArgs[0], types.Int) {
		t.Errorf("super type arg = %s, want Int", stack.Super.TypeArgs[0])
	}

	// 继承的方法签名已替换
	adds := stack.LookupMethods("add")
	if len(adds) != 1 || !types.Same(adds[0].Params[0], types.Int) {
		t.Error("IntStack.add should take Int through the instantiated super")
	}
}

func TestBuildFreeFunctions(t *testing.T) {
	table := buildOK(t, `
namespace App.Util {
	fun clamp(value: Int, lo: Int, hi: Int): Int {
		return value;
	}

	fun clamp(value: Double, lo: Double, hi: Double): Double {
		return value;
	}

	suspend fun fetch(url: String): String {
		return url;
	}
}
`)

	clamps := table.Functions("App.Util.clamp")
	if len(clamps) != 2 {
		t.Fatalf("clamp overloads = %d, want 2", len(clamps))
	}
	if !types.Same(clamps[0].Params[0], types.Int) || !types.Same(clamps[1].Params[0], types.Double) {
		t.Error("overload parameter types not resolved")
	}

	fetch := table.Functions("App.Util.fetch")
	if len(fetch) != 1 || !fetch[0].IsSuspend {
		t.Error("fetch should be a suspend function")
	}

	// 文件上下文解析
	fns := table.ResolveFunctions("clamp", "App.Util", nil)
	if len(fns) != 2 {
		t.Error("ResolveFunctions should find clamp in its own namespace")
	}
	fns = table.ResolveFunctions("clamp", "Other", []string{"App.Util"})
	if len(fns) != 2 {
		t.Error("ResolveFunctions should find clamp through imports")
	}
}

func TestBuildDuplicateClass(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class Sprite {
	}

	class Sprite {
	}
}
`)

	if !hasKind(reporter, errors.DuplicateSymbol) {
		t.Error("duplicate class should report DuplicateSymbol")
	}
}

func TestBuildDuplicateAcrossFiles(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class Sprite {
	}
}
`, `
namespace App {
	class Sprite {
	}
}
`)

	if !hasKind(reporter, errors.DuplicateSymbol) {
		t.Error("cross-file duplicate should report DuplicateSymbol")
	}
}

func TestBuildDuplicateOverload(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class Math {
		fun abs(x: Int): Int {
			return x;
		}

		fun abs(x: Int): Long {
			return 0L;
		}
	}
}
`)

	// 仅返回类型不同不构成重载
	if !hasKind(reporter, errors.DuplicateSymbol) {
		t.Error("same-parameter overload should report DuplicateSymbol")
	}
}

func TestBuildUnknownSupertype(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class Sprite : Missing {
	}
}
`)

	if !hasKind(reporter, errors.UnresolvedSymbol) {
		t.Error("unknown supertype should report UnresolvedSymbol")
	}
}

func TestBuildInheritanceCycle(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class A : B {
	}

	class B : A {
	}
}
`)

	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("inheritance cycle should be reported")
	}
}

func TestBuildMultipleBaseClasses(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class A {
	}

	class B {
	}

	class C : A, B {
	}
}
`)

	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("second base class should be rejected")
	}
}

func TestBuildTypeArgumentArity(t *testing.T) {
	_, reporter := buildSources(t, `
namespace App {
	class Box<T> {
	}

	class Bad {
		var b: Box<Int, String>
	}
}
`)

	if !hasKind(reporter, errors.TypeMismatch) {
		t.Error("wrong type argument count should be reported")
	}
}

func hasKind(reporter *errors.Reporter, kind errors.Kind) bool {
	for _, d := range reporter.All() {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
