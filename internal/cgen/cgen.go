package cgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/binder"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// C 代码生成器
// ============================================================================
//
// 输入是零错误的绑定结果：类型侧表、名称决议与单态化注册表。
// 输出为每个源文件一个 C 翻译单元，外加两份共享头：
//
//   amrt.h         引用计数运行时（固定文本，见 runtime.go）
//   aml_program.h  全程序结构体布局、vtable、类型信息与原型
//
// 降级规则：
//   类            → 带 {rc, dtor, type} 头部的结构体，超类字段前置内联
//   接口          → 胖指针 {self, vtable}，每个实现类一张静态派发表
//   泛型实例      → 按注册表逐实例特化（单态化），类型参数全替换
//   switch        → if/else 链；String 用 amrt_str_eq，对象用 amrt_obj_eq
//   字符串插值    → amrt_sb 缓冲的追加序列
//   可空基本类型  → amrt_opt_* 包装结构体；可空引用 → NULL
//
// 遇到 types.Error 占位或被门控裁剪却被引用的声明属于编译器自身
// 缺陷，立即以 error 中止该单元的生成。
//
// ============================================================================

// Output 生成结果
type Output struct {
	RuntimeHeader string            // amrt.h
	ProgramHeader string            // aml_program.h
	Units         map[string]string // 源文件名 → C 翻译单元
}

// Generator 按绑定结果产出 C 代码
type Generator struct {
	table    *symbols.Table
	bindings *binder.Bindings

	mockNames map[*types.Named]string // 替身类 → 唯一 C 名
	mockSeq   int
	lambdaSeq int

	// 当前单元的字符串字面量驻留表：字面量值 → 静态变量名。
	// 驻留变量由单元初始化函数赋值一次，求值处只读引用，
	// 循环内的字面量不再逐次分配。
	lits     map[string]string
	litOrder []string

	declClass map[ast.Declaration]*types.Named // 类/接口声明 → 描述符
	declFunc  map[*ast.FunDecl]*symbols.Function

	// 当前单态化上下文：泛型实例方法体内的类型参数映射
	substMap map[*types.TypeParam]types.Type
	instSelf *types.Named

	// 函数体生成状态
	w          *writer
	scope      *cscope
	tmpSeq     int
	curClass   *types.Named
	curReturn  types.Type
	inCtor     bool
	terminated bool // 最近一条语句是否必然转移控制流
	lambdas    []*lambdaWork
}

// New 创建生成器
func New(table *symbols.Table, bindings *binder.Bindings) *Generator {
	g := &Generator{
		table:     table,
		bindings:  bindings,
		mockNames: make(map[*types.Named]string),
		declClass: make(map[ast.Declaration]*types.Named),
		declFunc:  make(map[*ast.FunDecl]*symbols.Function),
	}
	for _, c := range table.Classes() {
		switch {
		case c.Decl != nil:
			g.declClass[c.Decl] = c
		case c.IDecl != nil:
			g.declClass[c.IDecl] = c
		}
	}
	for _, fn := range table.AllFunctions() {
		g.declFunc[fn.Decl] = fn
	}
	return g
}

// Generate 为全部文件产出 C 代码
func (g *Generator) Generate(files []*ast.File) (*Output, error) {
	out := &Output{
		RuntimeHeader: runtimeHeader,
		Units:         make(map[string]string, len(files)+1),
	}

	sorted := make([]*ast.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Filename < sorted[j].Filename })

	header, err := g.programHeader(sorted)
	if err != nil {
		return nil, err
	}
	out.ProgramHeader = header

	for _, file := range sorted {
		unit, err := g.generateUnit(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file.Filename, err)
		}
		out.Units[file.Filename] = unit
	}

	out.Units["aml_init.c"] = g.generateInitUnit(sorted)
	return out, nil
}

// unitID 文件名 → C 标识符片段
func unitID(filename string) string {
	var sb strings.Builder
	for _, r := range filename {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// generateInitUnit 产出 aml_init.c：静态字段初始化入口与测试注册表
func (g *Generator) generateInitUnit(files []*ast.File) string {
	w := newWriter()
	w.line(`#include "amrt.h"`)
	w.line(`#include "aml_program.h"`)
	w.blank()

	w.line("void aml_static_init(void) {")
	w.indent()
	for _, file := range files {
		w.line("aml_unit_init_%s();", unitID(file.Filename))
	}
	w.dedent()
	w.line("}")
	w.blank()

	tests := g.table.TestFunctions()
	w.line("const amrt_test aml_tests[] = {")
	w.indent()
	count := 0
	for _, fn := range tests {
		if g.bindings.Excluded[fn.Decl] {
			continue
		}
		w.line(`{ "%s", %s },`, fn.FQN, g.funcCName(fn))
		count++
	}
	w.dedent()
	w.line("};")
	w.blank()
	w.line("const int32_t aml_test_count = %d;", count)
	return w.String()
}

// ============================================================================
// 名称修饰
// ============================================================================

// mangle 全限定名 → C 标识符（App.Core.Sprite → App_Core_Sprite）
func mangle(fqn string) string {
	return strings.ReplaceAll(fqn, ".", "_")
}

// classCName 类/接口/泛型实例的 C 名
//
// 泛型实例追加实参修饰：List<Int> → App_List__Int。
func (g *Generator) classCName(named *types.Named) string {
	if name, ok := g.mockNames[named]; ok {
		return name
	}

	base := mangle(named.FQN)
	if len(named.TypeArgs) == 0 {
		return base
	}
	parts := make([]string, 0, len(named.TypeArgs))
	for _, arg := range named.TypeArgs {
		parts = append(parts, g.typeMangle(arg))
	}
	return base + "__" + strings.Join(parts, "__")
}

// registerMock 为替身类分配文件内唯一的 C 名
func (g *Generator) registerMock(named *types.Named) string {
	if name, ok := g.mockNames[named]; ok {
		return name
	}
	g.mockSeq++
	name := fmt.Sprintf("%s__mock%d", mangle(named.FQN), g.mockSeq)
	g.mockNames[named] = name
	return name
}

// typeMangle 类型在修饰名中的表示
func (g *Generator) typeMangle(t types.Type) string {
	switch tt := t.(type) {
	case *types.Primitive:
		return tt.String()
	case *types.Nullable:
		return "N" + g.typeMangle(tt.Elem)
	case *types.Array:
		return "A" + g.typeMangle(tt.Elem)
	case *types.Named:
		return g.classCName(tt)
	case *types.Func:
		parts := []string{"F"}
		for _, p := range tt.Params {
			parts = append(parts, g.typeMangle(p))
		}
		parts = append(parts, g.typeMangle(tt.Return))
		return strings.Join(parts, "_")
	}
	return "X"
}

// methodCName 方法的 C 名；重载集合内追加参数类型修饰区分
func (g *Generator) methodCName(m *types.Method) string {
	owner := m.Owner
	base := g.classCName(owner)

	name := m.Name
	if m.IsCtor {
		name = "new"
	}

	overloads := 0
	for _, other := range owner.Methods {
		if other.Name == m.Name && other.IsCtor == m.IsCtor {
			overloads++
		}
	}
	if overloads <= 1 {
		return base + "_" + name
	}

	parts := make([]string, 0, len(m.Params))
	for _, p := range m.Params {
		parts = append(parts, g.typeMangle(p))
	}
	suffix := strings.Join(parts, "_")
	if suffix == "" {
		suffix = "void"
	}
	return base + "_" + name + "__" + suffix
}

// funcCName 自由函数的 C 名
func (g *Generator) funcCName(fn *symbols.Function) string {
	base := mangle(fn.FQN)
	overloads := g.table.Functions(fn.FQN)
	if len(overloads) <= 1 {
		return base
	}
	parts := make([]string, 0, len(fn.Params))
	for _, p := range fn.Params {
		parts = append(parts, g.typeMangle(p))
	}
	suffix := strings.Join(parts, "_")
	if suffix == "" {
		suffix = "void"
	}
	return base + "__" + suffix
}

// staticFieldCName 静态字段对应的全局变量名
func (g *Generator) staticFieldCName(f *types.Field) string {
	return g.classCName(f.Owner) + "_" + f.Name
}

// ============================================================================
// 类型降级
// ============================================================================

// cType C 类型表示；函数类型需要声明子语法，统一经 cDecl 产出
func (g *Generator) cType(t types.Type) (string, error) {
	t = g.subst(t)

	switch tt := t.(type) {
	case *types.Primitive:
		switch tt.Kind() {
		case types.KindBool:
			return "bool", nil
		case types.KindChar:
			return "uint16_t", nil
		case types.KindInt:
			return "int32_t", nil
		case types.KindLong:
			return "int64_t", nil
		case types.KindFloat:
			return "float", nil
		case types.KindDouble:
			return "double", nil
		case types.KindString:
			return "amrt_string*", nil
		case types.KindVoid:
			return "void", nil
		case types.KindNull:
			return "void*", nil
		}

	case *types.Nullable:
		inner := g.subst(tt.Elem)
		if prim, ok := inner.(*types.Primitive); ok && prim.Kind() != types.KindString {
			return "amrt_opt_" + optSuffix(prim), nil
		}
		// 可空引用与可空字符串仍是指针，null 即 NULL
		return g.cType(inner)

	case *types.Array:
		return "amrt_array*", nil

	case *types.Named:
		if tt.IsInterface {
			return g.classCName(tt), nil // 胖指针按值传递
		}
		return "struct " + g.classCName(tt) + "*", nil

	case *types.Func:
		// 裸函数指针经 typedef 不必要，cDecl 直接展开
		return "", fmt.Errorf("function type requires a declarator context")
	}

	return "", fmt.Errorf("internal: no C lowering for type %s", t)
}

// cDecl 产出 "类型 名字" 形式的 C 声明，函数指针内嵌名字
func (g *Generator) cDecl(t types.Type, name string) (string, error) {
	t = g.subst(t)

	if fn, ok := t.(*types.Func); ok {
		ret, err := g.cType(fn.Return)
		if err != nil {
			return "", err
		}
		params := make([]string, 0, len(fn.Params))
		for _, p := range fn.Params {
			pt, err := g.cType(p)
			if err != nil {
				return "", err
			}
			params = append(params, pt)
		}
		if len(params) == 0 {
			params = append(params, "void")
		}
		return fmt.Sprintf("%s (*%s)(%s)", ret, name, strings.Join(params, ", ")), nil
	}

	ct, err := g.cType(t)
	if err != nil {
		return "", err
	}
	return ct + " " + name, nil
}

func optSuffix(p *types.Primitive) string {
	switch p.Kind() {
	case types.KindBool:
		return "bool"
	case types.KindChar:
		return "char"
	case types.KindInt:
		return "int"
	case types.KindLong:
		return "long"
	case types.KindFloat:
		return "float"
	case types.KindDouble:
		return "double"
	}
	return "int"
}

// isRefType 判断是否引用计数托管类型（对象、字符串、数组）
func (g *Generator) isRefType(t types.Type) bool {
	t = g.subst(t)
	switch tt := t.(type) {
	case *types.Primitive:
		return tt.Kind() == types.KindString
	case *types.Nullable:
		return g.isRefType(tt.Elem)
	case *types.Array:
		return true
	case *types.Named:
		return !tt.IsInterface
	}
	return false
}

// subst 在单态化上下文中替换类型参数
func (g *Generator) subst(t types.Type) types.Type {
	if len(g.substMap) == 0 {
		return t
	}
	return g.table.Canonicalize(types.Substitute(t, g.substMap))
}

// ============================================================================
// 共享程序头
// ============================================================================

// programHeader 产出 aml_program.h：结构体布局、vtable、类型信息
// 外部声明、静态字段外部声明与全部函数原型
func (g *Generator) programHeader(files []*ast.File) (string, error) {
	w := newWriter()
	w.line("#ifndef AML_PROGRAM_H")
	w.line("#define AML_PROGRAM_H")
	w.blank()
	w.line(`#include "amrt.h"`)
	w.blank()

	classes := g.emittableClasses()

	// 前向声明，字段可以互相引用
	w.comment("forward declarations")
	for _, c := range classes {
		if !c.IsInterface {
			w.line("struct %s;", g.classCName(c))
		}
	}
	w.blank()

	// 接口：vtable 与胖指针
	for _, c := range classes {
		if !c.IsInterface {
			continue
		}
		if err := g.emitInterfaceTypes(w, c); err != nil {
			return "", err
		}
	}

	// 类结构体：超类字段前置，布局前缀兼容
	for _, c := range classes {
		if c.IsInterface {
			continue
		}
		if err := g.emitClassStruct(w, c); err != nil {
			return "", err
		}
	}

	// 类型信息与静态字段的外部声明
	w.comment("type info")
	for _, c := range classes {
		if c.IsInterface {
			continue
		}
		w.line("extern const amrt_type %s_type;", g.classCName(c))
	}
	w.blank()

	// 每个实现类按接口一张派发表
	w.comment("dispatch tables")
	for _, c := range classes {
		if c.IsInterface {
			continue
		}
		for _, iface := range ifaceClosure(c) {
			w.line("extern const %s_vtable %s;", g.classCName(iface), g.vtableCName(c, iface))
		}
	}
	w.blank()

	if err := g.emitStaticFieldDecls(w, classes); err != nil {
		return "", err
	}

	// 原型
	if err := g.emitPrototypes(w, classes); err != nil {
		return "", err
	}

	// 翻译单元初始化与测试注册表
	for _, file := range files {
		w.line("void aml_unit_init_%s(void);", unitID(file.Filename))
	}
	w.line("void aml_static_init(void);")
	w.blank()
	w.line("extern const amrt_test aml_tests[];")
	w.line("extern const int32_t aml_test_count;")
	w.blank()

	w.line("#endif /* AML_PROGRAM_H */")
	return w.String(), nil
}

// vtableCName 类对某接口的派发表实例名
func (g *Generator) vtableCName(c, iface *types.Named) string {
	return g.classCName(c) + "_as_" + g.classCName(iface)
}

// ifaceClosure 类（含超类）实现的全部接口的传递闭包，去重保序
func ifaceClosure(c *types.Named) []*types.Named {
	var result []*types.Named
	seen := make(map[*types.Named]bool)

	var visit func(iface *types.Named)
	visit = func(iface *types.Named) {
		if seen[iface] {
			return
		}
		seen[iface] = true
		result = append(result, iface)
		for _, parent := range iface.Interfaces {
			visit(parent)
		}
	}

	for cur := c; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			visit(iface)
		}
	}
	return result
}

// emittableClasses 待生成的类集合：非泛型声明 + 全部单态化实例，
// 特性门控裁剪掉的除外，按 C 名排序保证输出确定
func (g *Generator) emittableClasses() []*types.Named {
	var result []*types.Named
	for _, c := range g.table.Classes() {
		if len(c.TypeParams) > 0 {
			continue // 泛型声明只通过实例出场
		}
		if g.excludedClass(c) {
			continue
		}
		result = append(result, c)
	}
	for _, inst := range g.table.Instantiations() {
		if hasTypeParams(inst) {
			continue // 实参含类型参数的中间实例（如 Node<T>）不落地
		}
		if g.excludedClass(inst.Generic) {
			continue
		}
		result = append(result, inst)
	}
	sort.Slice(result, func(i, j int) bool {
		return g.classCName(result[i]) < g.classCName(result[j])
	})
	return result
}

func (g *Generator) excludedClass(c *types.Named) bool {
	switch {
	case c.Decl != nil:
		return g.bindings.Excluded[c.Decl]
	case c.IDecl != nil:
		return g.bindings.Excluded[c.IDecl]
	}
	return false
}

func hasTypeParams(c *types.Named) bool {
	for _, arg := range c.TypeArgs {
		if containsTypeParam(arg) {
			return true
		}
	}
	return false
}

func containsTypeParam(t types.Type) bool {
	switch tt := t.(type) {
	case *types.TypeParam:
		return true
	case *types.Nullable:
		return containsTypeParam(tt.Elem)
	case *types.Array:
		return containsTypeParam(tt.Elem)
	case *types.Func:
		for _, p := range tt.Params {
			if containsTypeParam(p) {
				return true
			}
		}
		return containsTypeParam(tt.Return)
	case *types.Named:
		return hasTypeParams(tt)
	}
	return false
}

func (g *Generator) emitInterfaceTypes(w *writer, iface *types.Named) error {
	cname := g.classCName(iface)

	w.comment("interface %s", iface.String())
	w.line("typedef struct %s_vtable {", cname)
	w.indent()
	for _, m := range iface.Methods {
		ret, err := g.cType(m.Return)
		if err != nil {
			return err
		}
		params := []string{"void* self"}
		for _, p := range m.Params {
			pt, err := g.cType(p)
			if err != nil {
				return err
			}
			params = append(params, pt)
		}
		w.line("%s (*%s)(%s);", ret, m.Name, strings.Join(params, ", "))
	}
	w.dedent()
	w.line("} %s_vtable;", cname)
	w.blank()
	w.line("typedef struct %s {", cname)
	w.indent()
	w.line("void* self;")
	w.line("const %s_vtable* vt;", cname)
	w.dedent()
	w.line("} %s;", cname)
	w.blank()
	return nil
}

func (g *Generator) emitClassStruct(w *writer, c *types.Named) error {
	cname := g.classCName(c)

	w.comment("class %s", c.String())
	w.line("typedef struct %s {", cname)
	w.indent()
	w.line("amrt_header hdr;")

	prevSubst, prevSelf := g.substMap, g.instSelf
	g.enterInstance(c)
	for _, f := range c.InstanceFields() {
		decl, err := g.cDecl(f.Type, f.Name)
		if err != nil {
			return err
		}
		w.line("%s;", decl)
	}
	g.substMap, g.instSelf = prevSubst, prevSelf

	w.dedent()
	w.line("} %s;", cname)
	w.blank()
	return nil
}

// enterInstance 进入类的单态化上下文（非实例为空映射）
func (g *Generator) enterInstance(c *types.Named) {
	g.instSelf = c
	if c.Generic == nil {
		g.substMap = nil
		return
	}
	g.substMap = make(map[*types.TypeParam]types.Type, len(c.Generic.TypeParams))
	for i, tp := range c.Generic.TypeParams {
		g.substMap[tp] = c.TypeArgs[i]
	}
}

func (g *Generator) emitStaticFieldDecls(w *writer, classes []*types.Named) error {
	emitted := false
	for _, c := range classes {
		for _, f := range c.Fields {
			if !f.IsStatic {
				continue
			}
			if !emitted {
				w.comment("static fields")
				emitted = true
			}
			decl, err := g.cDecl(f.Type, g.staticFieldCName(f))
			if err != nil {
				return err
			}
			w.line("extern %s;", decl)
		}
	}
	if emitted {
		w.blank()
	}
	return nil
}

func (g *Generator) emitPrototypes(w *writer, classes []*types.Named) error {
	w.comment("prototypes")
	for _, c := range classes {
		if c.IsInterface {
			continue
		}
		prevSubst, prevSelf := g.substMap, g.instSelf
		g.enterInstance(c)
		for _, m := range c.Methods {
			if g.excludedMethod(m) {
				continue
			}
			sig, err := g.methodSignature(c, m)
			if err != nil {
				return err
			}
			w.line("%s;", sig)
		}
		w.line("void %s_dtor(void* self);", g.classCName(c))
		g.substMap, g.instSelf = prevSubst, prevSelf
	}

	for _, fn := range g.table.AllFunctions() {
		if g.bindings.Excluded[fn.Decl] {
			continue
		}
		sig, err := g.funcSignature(fn)
		if err != nil {
			return err
		}
		w.line("%s;", sig)
	}
	w.blank()
	return nil
}

func (g *Generator) excludedMethod(m *types.Method) bool {
	return m.Decl != nil && g.bindings.Excluded[m.Decl]
}

// methodSignature 方法的 C 签名
//
// 构造函数降级为 `<Class>* <Class>_new(args)`；实例方法第一参数
// 为 self；静态方法无 self。
func (g *Generator) methodSignature(owner *types.Named, m *types.Method) (string, error) {
	cname := g.classCName(owner)

	var ret string
	var err error
	if m.IsCtor {
		ret = "struct " + cname + "*"
	} else {
		ret, err = g.cType(m.Return)
		if err != nil {
			return "", err
		}
	}

	var params []string
	if !m.IsStatic && !m.IsCtor {
		params = append(params, "struct "+cname+"* self")
	}
	for i, p := range m.Params {
		name := fmt.Sprintf("p%d", i)
		if i < len(m.ParamNames) && m.ParamNames[i] != "" {
			name = m.ParamNames[i]
		}
		decl, err := g.cDecl(p, name)
		if err != nil {
			return "", err
		}
		params = append(params, decl)
	}
	if len(params) == 0 {
		params = append(params, "void")
	}
	return fmt.Sprintf("%s %s(%s)", ret, g.methodCName(m), strings.Join(params, ", ")), nil
}

func (g *Generator) funcSignature(fn *symbols.Function) (string, error) {
	ret, err := g.cType(fn.Return)
	if err != nil {
		return "", err
	}
	var params []string
	for i, p := range fn.Decl.Params {
		decl, err := g.cDecl(fn.Params[i], p.Name.Name)
		if err != nil {
			return "", err
		}
		params = append(params, decl)
	}
	if len(params) == 0 {
		params = append(params, "void")
	}
	return fmt.Sprintf("%s %s(%s)", ret, g.funcCName(fn), strings.Join(params, ", ")), nil
}

// ============================================================================
// 行写入器
// ============================================================================

type writer struct {
	sb    strings.Builder
	depth int
}

func newWriter() *writer {
	return &writer{}
}

func (w *writer) line(format string, args ...interface{}) {
	for i := 0; i < w.depth; i++ {
		w.sb.WriteString("    ")
	}
	if len(args) > 0 {
		fmt.Fprintf(&w.sb, format, args...)
	} else {
		w.sb.WriteString(format)
	}
	w.sb.WriteByte('\n')
}

func (w *writer) blank() {
	w.sb.WriteByte('\n')
}

func (w *writer) comment(format string, args ...interface{}) {
	w.line("/* "+format+" */", args...)
}

func (w *writer) indent()  { w.depth++ }
func (w *writer) dedent()  { w.depth-- }
func (w *writer) String() string { return w.sb.String() }
