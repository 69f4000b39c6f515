package symbols

import (
	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 符号表构建器
// ============================================================================
//
// 构建分两趟：
// 第一趟（AddFile）逐文件注册类、接口与自由函数的名称，
// 检测重复符号；此时成员签名尚未解析，因此前向引用与
// 跨文件引用天然可用。
// 第二趟（Finish）在所有名称就位后解析超类型列表、字段类型
// 与方法签名，合成默认构造函数，并检测继承环。
//
// 两趟均为单线程，作为并行解析与并行绑定之间的屏障阶段。
//
// ============================================================================

type fileCtx struct {
	file      *ast.File
	namespace string
	imports   []string
}

type pendingClass struct {
	named *types.Named
	class *ast.ClassDecl     // 与 iface 二选一
	iface *ast.InterfaceDecl
	ctx   fileCtx
}

type pendingFun struct {
	fn   *Function
	decl *ast.FunDecl
	ctx  fileCtx
}

// Builder 符号表构建器
type Builder struct {
	table    *Table
	reporter *errors.Reporter
	classes  []*pendingClass
	funs     []*pendingFun
}

// NewBuilder 创建构建器
func NewBuilder(reporter *errors.Reporter) *Builder {
	return &Builder{
		table:    NewTable(),
		reporter: reporter,
	}
}

// AddFile 注册单个文件的全部顶层声明（第一趟）
func (b *Builder) AddFile(file *ast.File) {
	b.addDecls(fileCtx{file: file}, file.Decls)
}

func (b *Builder) addDecls(ctx fileCtx, decls []ast.Declaration) {
	// 先收集导入：导入对整个命名空间块生效，与书写顺序无关
	for _, decl := range decls {
		if imp, ok := decl.(*ast.ImportDecl); ok {
			ctx.imports = append(ctx.imports, imp.Path)
		}
	}

	for _, decl := range decls {
		switch d := decl.(type) {
		case *ast.ImportDecl:
			// 已收集

		case *ast.NamespaceDecl:
			inner := ctx
			inner.namespace = qualify(ctx.namespace, d.Name)
			b.table.registerNamespace(inner.namespace)
			b.addDecls(inner, d.Decls)

		case *ast.ClassDecl:
			b.declareClass(ctx, d, nil)

		case *ast.InterfaceDecl:
			b.declareClass(ctx, nil, d)

		case *ast.FunDecl:
			b.declareFunction(ctx, d)
		}
	}
}

func (b *Builder) declareClass(ctx fileCtx, class *ast.ClassDecl, iface *ast.InterfaceDecl) {
	var name *ast.Identifier
	var typeParams []*ast.Identifier
	if class != nil {
		name = class.Name
		typeParams = class.TypeParams
	} else {
		name = iface.Name
		typeParams = iface.TypeParams
	}

	fqn := qualify(ctx.namespace, name.Name)
	if prev, ok := b.table.classes[fqn]; ok {
		b.reporter.Add(errors.New(errors.DuplicateSymbol, name.Pos(),
			"symbol '%s' is already declared", fqn).
			WithHint("previous declaration is at " + declPos(prev)))
		return
	}
	if len(b.table.functions[fqn]) > 0 {
		b.reporter.Addf(errors.DuplicateSymbol, name.Pos(),
			"symbol '%s' is already declared as a function", fqn)
		return
	}

	named := &types.Named{
		FQN:         fqn,
		IsInterface: iface != nil,
		Decl:        class,
		IDecl:       iface,
	}
	for _, tp := range typeParams {
		named.TypeParams = append(named.TypeParams, &types.TypeParam{
			Name:  tp.Name,
			Owner: fqn,
		})
	}

	b.table.classes[fqn] = named
	b.classes = append(b.classes, &pendingClass{named: named, class: class, iface: iface, ctx: ctx})
}

func (b *Builder) declareFunction(ctx fileCtx, decl *ast.FunDecl) {
	fqn := qualify(ctx.namespace, decl.Name.Name)
	if _, ok := b.table.classes[fqn]; ok {
		b.reporter.Addf(errors.DuplicateSymbol, decl.Name.Pos(),
			"symbol '%s' is already declared as a type", fqn)
		return
	}

	fn := &Function{
		Name:      decl.Name.Name,
		FQN:       fqn,
		Namespace: ctx.namespace,
		IsSuspend: decl.IsSuspend,
		IsTest:    decl.IsTest,
		Decl:      decl,
		File:      ctx.file,
		Imports:   ctx.imports,
	}
	b.table.functions[fqn] = append(b.table.functions[fqn], fn)
	b.funs = append(b.funs, &pendingFun{fn: fn, decl: decl, ctx: ctx})
}

// ============================================================================
// 第二趟：签名解析
// ============================================================================

// Finish 解析全部签名并返回冻结的符号表
func (b *Builder) Finish() *Table {
	// 超类型先于成员：成员解析可能实例化泛型超类
	for _, pc := range b.classes {
		b.resolveSupers(pc)
	}
	b.checkInheritanceCycles()

	for _, pc := range b.classes {
		b.resolveMembers(pc)
	}
	for _, pf := range b.funs {
		b.resolveFunction(pf)
	}

	b.table.freeze()
	return b.table
}

func (b *Builder) resolveSupers(pc *pendingClass) {
	r := b.newResolver(pc.ctx, pc.named.TypeParams)

	var supers []ast.TypeNode
	if pc.class != nil {
		supers = pc.class.Supers
	} else {
		supers = pc.iface.Supers
	}

	for _, s := range supers {
		t := r.resolve(s)
		if t == types.Error {
			continue
		}
		named, ok := t.(*types.Named)
		if !ok {
			b.reporter.Addf(errors.TypeMismatch, s.Pos(),
				"'%s' cannot be used as a supertype", t.String())
			continue
		}
		switch {
		case named.IsInterface:
			pc.named.Interfaces = append(pc.named.Interfaces, named)
		case pc.named.IsInterface:
			b.reporter.Addf(errors.TypeMismatch, s.Pos(),
				"interface '%s' cannot extend class '%s'", pc.named.FQN, named.FQN)
		case pc.named.Super != nil:
			b.reporter.Addf(errors.TypeMismatch, s.Pos(),
				"class '%s' already extends '%s'; only one base class is allowed",
				pc.named.FQN, pc.named.Super.FQN)
		default:
			pc.named.Super = named
		}
	}
}

// checkInheritanceCycles 检测并切断继承环，防止后续成员查找死循环
func (b *Builder) checkInheritanceCycles() {
	for _, pc := range b.classes {
		seen := map[*types.Named]bool{pc.named: true}
		for cur := pc.named.Super; cur != nil; cur = cur.Super {
			base := cur
			if base.Generic != nil {
				base = base.Generic
			}
			if seen[base] {
				b.reporter.Addf(errors.TypeMismatch, pc.named.Decl.Name.Pos(),
					"inheritance cycle detected involving '%s'", pc.named.FQN)
				pc.named.Super = nil
				break
			}
			seen[base] = true
		}
	}

	for _, pc := range b.classes {
		if !pc.named.IsInterface {
			continue
		}
		if ifaceReaches(pc.named, pc.named, map[*types.Named]bool{}) {
			b.reporter.Addf(errors.TypeMismatch, pc.iface.Name.Pos(),
				"inheritance cycle detected involving '%s'", pc.named.FQN)
			pc.named.Interfaces = nil
		}
	}
}

// ifaceReaches 判断从 cur 的父接口出发能否回到 target
func ifaceReaches(target, cur *types.Named, seen map[*types.Named]bool) bool {
	for _, i := range cur.Interfaces {
		base := i
		if base.Generic != nil {
			base = base.Generic
		}
		if base == target {
			return true
		}
		if !seen[base] {
			seen[base] = true
			if ifaceReaches(target, base, seen) {
				return true
			}
		}
	}
	return false
}

func (b *Builder) resolveMembers(pc *pendingClass) {
	r := b.newResolver(pc.ctx, pc.named.TypeParams)
	named := pc.named

	if pc.iface != nil {
		for _, m := range pc.iface.Methods {
			method := b.buildMethod(r, named, m)
			b.checkDuplicateMethod(named, method, m)
			named.Methods = append(named.Methods, method)
		}
		return
	}

	fieldIndex := 0
	for _, member := range pc.class.Members {
		switch m := member.(type) {
		case *ast.FieldDecl:
			if b.ownField(named, m.Name.Name) {
				b.reporter.Addf(errors.DuplicateSymbol, m.Name.Pos(),
					"field '%s' is already declared in '%s'", m.Name.Name, named.FQN)
				continue
			}
			field := &types.Field{
				Name:     m.Name.Name,
				Type:     b.fieldType(r, m),
				IsStatic: m.IsStatic,
				Decl:     m,
				Owner:    named,
			}
			if !m.IsStatic {
				field.Index = fieldIndex
				fieldIndex++
			}
			named.Fields = append(named.Fields, field)

		case *ast.FunDecl:
			method := b.buildMethod(r, named, m)
			b.checkDuplicateMethod(named, method, m)
			named.Methods = append(named.Methods, method)
		}
	}

	// 无显式构造函数时合成零参默认构造函数
	if len(named.Ctors()) == 0 {
		named.Methods = append(named.Methods, &types.Method{
			Name:   named.Name(),
			Return: named,
			IsCtor: true,
			Owner:  named,
		})
	}
}

// buildMethod 从声明构造方法描述符；与类同名的函数视为构造函数
func (b *Builder) buildMethod(r *resolver, owner *types.Named, decl *ast.FunDecl) *types.Method {
	method := &types.Method{
		Name:      decl.Name.Name,
		IsStatic:  decl.IsStatic,
		IsSuspend: decl.IsSuspend,
		Decl:      decl,
		Owner:     owner,
	}
	for _, p := range decl.Params {
		method.Params = append(method.Params, r.resolve(p.Type))
		method.ParamNames = append(method.ParamNames, p.Name.Name)
	}

	if decl.Name.Name == owner.Name() && !owner.IsInterface {
		method.IsCtor = true
		method.Return = owner
		if decl.ReturnType != nil {
			b.reporter.Addf(errors.TypeMismatch, decl.ReturnType.Pos(),
				"constructor '%s' cannot declare a return type", decl.Name.Name)
		}
		return method
	}

	if decl.ReturnType != nil {
		method.Return = r.resolve(decl.ReturnType)
	} else {
		method.Return = types.Void
	}
	return method
}

func (b *Builder) checkDuplicateMethod(owner *types.Named, method *types.Method, decl *ast.FunDecl) {
	for _, existing := range owner.Methods {
		if existing.Name == method.Name && sameParams(existing.Params, method.Params) {
			b.reporter.Add(errors.New(errors.DuplicateSymbol, decl.Name.Pos(),
				"'%s.%s' with these parameter types is already declared",
				owner.FQN, method.Name).
				WithHint("overloads must differ in parameter types"))
			return
		}
	}
}

// ownField 判断字段是否在本类（而非超类）声明
func (b *Builder) ownField(owner *types.Named, name string) bool {
	for _, f := range owner.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// fieldType 解析字段类型；无标注时从字面量初始化推断
func (b *Builder) fieldType(r *resolver, decl *ast.FieldDecl) types.Type {
	if decl.Type != nil {
		return r.resolve(decl.Type)
	}
	if t := literalType(decl.Value); t != nil {
		return t
	}
	b.reporter.Addf(errors.TypeMismatch, decl.Name.Pos(),
		"field '%s' requires a type annotation", decl.Name.Name)
	return types.Error
}

// literalType 字面量初始化表达式的推断，覆盖字段级常见形态；
// 其余表达式交由绑定阶段处理
func literalType(expr ast.Expression) types.Type {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		if e.IsLong {
			return types.Long
		}
		return types.Int
	case *ast.FloatLiteral:
		if e.IsFloat {
			return types.Float
		}
		return types.Double
	case *ast.StringLiteral, *ast.InterpStringLiteral:
		return types.String
	case *ast.BoolLiteral:
		return types.Bool
	case *ast.CharLiteral:
		return types.Char
	}
	return nil
}

func (b *Builder) resolveFunction(pf *pendingFun) {
	r := b.newResolver(pf.ctx, nil)
	fn := pf.fn

	for _, p := range pf.decl.Params {
		fn.Params = append(fn.Params, r.resolve(p.Type))
	}
	if pf.decl.ReturnType != nil {
		fn.Return = r.resolve(pf.decl.ReturnType)
	} else {
		fn.Return = types.Void
	}

	// 重载集内签名查重
	for _, other := range b.table.functions[fn.FQN] {
		if other == fn {
			break
		}
		if sameParams(other.Params, fn.Params) {
			b.reporter.Add(errors.New(errors.DuplicateSymbol, pf.decl.Name.Pos(),
				"function '%s' with these parameter types is already declared", fn.FQN).
				WithHint("overloads must differ in parameter types"))
			return
		}
	}
}

func sameParams(a, b []types.Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !types.Same(a[i], b[i]) {
			return false
		}
	}
	return true
}

func qualify(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func declPos(named *types.Named) string {
	switch {
	case named.Decl != nil:
		return named.Decl.Name.Pos().String()
	case named.IDecl != nil:
		return named.IDecl.Name.Pos().String()
	}
	return "<builtin>"
}

// ============================================================================
// 类型标注解析
// ============================================================================

type resolver struct {
	b          *Builder
	ctx        fileCtx
	typeParams map[string]*types.TypeParam
}

func (b *Builder) newResolver(ctx fileCtx, params []*types.TypeParam) *resolver {
	r := &resolver{b: b, ctx: ctx}
	if len(params) > 0 {
		r.typeParams = make(map[string]*types.TypeParam, len(params))
		for _, p := range params {
			r.typeParams[p.Name] = p
		}
	}
	return r
}

func (r *resolver) resolve(node ast.TypeNode) types.Type {
	switch t := node.(type) {
	case *ast.NullableType:
		return types.MakeNullable(r.resolve(t.Inner))

	case *ast.ArrayType:
		return &types.Array{Elem: r.resolve(t.ElementType)}

	case *ast.FunType:
		fn := &types.Func{Return: types.Void}
		for _, p := range t.Params {
			fn.Params = append(fn.Params, r.resolve(p))
		}
		if t.ReturnType != nil {
			fn.Return = r.resolve(t.ReturnType)
		}
		return fn

	case *ast.NamedType:
		return r.resolveNamed(t)
	}

	return types.Error
}

func (r *resolver) resolveNamed(t *ast.NamedType) types.Type {
	if len(t.TypeArgs) == 0 {
		if tp, ok := r.typeParams[t.Name]; ok {
			return tp
		}
		if p := types.LookupPrimitive(t.Name); p != nil {
			return p
		}
	}

	named, ok := r.b.table.ResolveClass(t.Name, r.ctx.namespace, r.ctx.imports)
	if !ok {
		r.b.reporter.Addf(errors.UnresolvedSymbol, t.Pos(),
			"unknown type '%s'", t.Name)
		return types.Error
	}

	if len(t.TypeArgs) != len(named.TypeParams) {
		r.b.reporter.Addf(errors.TypeMismatch, t.Pos(),
			"'%s' expects %d type argument(s), got %d",
			named.FQN, len(named.TypeParams), len(t.TypeArgs))
		return types.Error
	}
	if len(t.TypeArgs) == 0 {
		return named
	}

	args := make([]types.Type, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		args[i] = r.resolve(a)
		if args[i] == types.Error {
			return types.Error
		}
	}
	return r.b.table.Instantiate(named, args)
}
