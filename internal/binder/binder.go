package binder

import (
	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 绑定器
// ============================================================================
//
// 绑定器逐文件工作，依赖只读的全局符号表，因此多个文件可以
// 并行绑定。AST 在解析后不再修改：绑定结果（表达式类型、名称
// 解析目标、重载决议选中的签名）全部写入以节点指针为键的侧表
// （Bindings），合并后交给代码生成。
//
// 错误恢复策略：任何无法解析/检查的构造都记一条诊断并以
// types.Error 占位继续，保证一趟绑定报出文件内全部独立错误。
//
// ============================================================================

// FeatureSet 编译单元启用的特性集合
type FeatureSet map[string]bool

// Local 局部变量（含参数与循环变量）
type Local struct {
	Name string
	Type types.Type
	Decl ast.Node // *ast.VarStmt / *ast.Param / *ast.ForStmt
}

// Callee 一次调用决议出的目标
type Callee struct {
	Method *types.Method     // 方法调用（含构造函数调用之外的成员调用）
	Func   *symbols.Function // 自由函数调用
	Value  bool              // 函数类型值的间接调用（lambda）
}

// Bindings 绑定结果侧表
type Bindings struct {
	ExprTypes map[ast.Expression]types.Type
	Locals    map[*ast.Identifier]*Local
	FieldRefs map[ast.Expression]*types.Field // Identifier 或 MemberExpr
	Calls     map[*ast.CallExpr]*Callee
	Ctors     map[*ast.NewExpr]*types.Method
	IsTargets map[*ast.IsExpr]types.Type // is 表达式的目标类型
	Mocks     map[*ast.MockDecl]*types.Named
	Excluded  map[ast.Declaration]bool // 特性门控裁剪掉的声明
}

// NewBindings 创建空侧表
func NewBindings() *Bindings {
	return &Bindings{
		ExprTypes: make(map[ast.Expression]types.Type),
		Locals:    make(map[*ast.Identifier]*Local),
		FieldRefs: make(map[ast.Expression]*types.Field),
		Calls:     make(map[*ast.CallExpr]*Callee),
		Ctors:     make(map[*ast.NewExpr]*types.Method),
		IsTargets: make(map[*ast.IsExpr]types.Type),
		Mocks:     make(map[*ast.MockDecl]*types.Named),
		Excluded:  make(map[ast.Declaration]bool),
	}
}

// TypeOf 取表达式的绑定类型，未绑定返回 types.Error
func (b *Bindings) TypeOf(expr ast.Expression) types.Type {
	if t, ok := b.ExprTypes[expr]; ok {
		return t
	}
	return types.Error
}

// Merge 合并另一份侧表（各文件的节点键不相交，直接并入）
func (b *Bindings) Merge(other *Bindings) {
	for k, v := range other.ExprTypes {
		b.ExprTypes[k] = v
	}
	for k, v := range other.Locals {
		b.Locals[k] = v
	}
	for k, v := range other.FieldRefs {
		b.FieldRefs[k] = v
	}
	for k, v := range other.Calls {
		b.Calls[k] = v
	}
	for k, v := range other.Ctors {
		b.Ctors[k] = v
	}
	for k, v := range other.IsTargets {
		b.IsTargets[k] = v
	}
	for k, v := range other.Mocks {
		b.Mocks[k] = v
	}
	for k, v := range other.Excluded {
		b.Excluded[k] = v
	}
}

// flowFacts 流敏感收窄事实：访问路径 → 收窄后的类型
type flowFacts map[string]types.Type

// Binder 单文件绑定器
type Binder struct {
	table    *symbols.Table
	reporter *errors.Reporter
	features FeatureSet
	bindings *Bindings

	file      *ast.File
	namespace string
	imports   []string

	class   *types.Named // 当前类（自由函数为 nil）
	static  bool         // 当前函数是否 static
	suspend bool         // 当前函数是否 suspend
	returnT types.Type
	loops   int // 循环嵌套深度

	scopes []map[string]*Local
	facts  []flowFacts
	mocks  []map[string]*types.Named // scope 块的替身覆盖层（LIFO）
}

// New 创建绑定器
func New(table *symbols.Table, reporter *errors.Reporter, features FeatureSet) *Binder {
	if features == nil {
		features = FeatureSet{}
	}
	return &Binder{
		table:    table,
		reporter: reporter,
		features: features,
		bindings: NewBindings(),
	}
}

// BindFile 绑定单个文件，返回其侧表
func (b *Binder) BindFile(file *ast.File) *Bindings {
	b.file = file
	b.bindDecls("", nil, file.Decls)
	return b.bindings
}

func (b *Binder) bindDecls(namespace string, imports []string, decls []ast.Declaration) {
	for _, decl := range decls {
		if imp, ok := decl.(*ast.ImportDecl); ok {
			imports = append(imports, imp.Path)
		}
	}

	prevNS, prevImports := b.namespace, b.imports
	b.namespace, b.imports = namespace, imports
	defer func() { b.namespace, b.imports = prevNS, prevImports }()

	for _, decl := range decls {
		switch d := decl.(type) {
		case *ast.NamespaceDecl:
			inner := d.Name
			if namespace != "" {
				inner = namespace + "." + d.Name
			}
			b.bindDecls(inner, imports, d.Decls)
			b.namespace, b.imports = namespace, imports

		case *ast.ClassDecl:
			b.bindClass(d)

		case *ast.InterfaceDecl:
			if !b.enabled(d.Directives) {
				b.bindings.Excluded[d] = true
			}

		case *ast.FunDecl:
			b.bindFreeFunction(d)
		}
	}
}

// ============================================================================
// 特性门控
// ============================================================================

// enabled 判断声明在当前特性集合下是否保留
//
// 被裁剪的声明如同从未声明：引用它的一方得到 UnresolvedSymbol，
// 而不是特性相关的专门错误。
func (b *Binder) enabled(dirs []*ast.Directive) bool {
	for _, d := range dirs {
		have := b.features[d.Feature.Name]
		if d.IsNegated() {
			if have {
				return false
			}
		} else if !have {
			return false
		}
	}
	return true
}

// classEnabled 判断类/接口描述符是否保留
func (b *Binder) classEnabled(named *types.Named) bool {
	switch {
	case named.Decl != nil:
		return b.enabled(named.Decl.Directives)
	case named.IDecl != nil:
		return b.enabled(named.IDecl.Directives)
	}
	return true
}

// methodEnabled 判断方法是否保留（合成方法恒保留）
func (b *Binder) methodEnabled(m *types.Method) bool {
	if m.Decl == nil {
		return true
	}
	return b.enabled(m.Decl.Directives)
}

// ============================================================================
// 声明绑定
// ============================================================================

func (b *Binder) bindClass(decl *ast.ClassDecl) {
	if !b.enabled(decl.Directives) {
		b.bindings.Excluded[decl] = true
		return
	}

	fqn := decl.Name.Name
	if b.namespace != "" {
		fqn = b.namespace + "." + decl.Name.Name
	}
	named, ok := b.table.Class(fqn)
	if !ok || named.Decl != decl {
		// 重复声明中落败的一方（符号表保留首个），跳过避免级联
		return
	}

	b.checkOverrides(named, decl)

	prevClass := b.class
	b.class = named
	defer func() { b.class = prevClass }()

	for _, member := range decl.Members {
		switch m := member.(type) {
		case *ast.FieldDecl:
			b.bindFieldInit(named, m)
		case *ast.FunDecl:
			b.bindMethodBody(named, m)
		}
	}
}

func (b *Binder) bindFieldInit(owner *types.Named, decl *ast.FieldDecl) {
	if decl.Value == nil {
		return
	}
	field := fieldIn(owner, decl.Name.Name)
	if field == nil {
		return
	}

	b.static = decl.IsStatic
	b.pushScope()
	got := b.checkExpr(decl.Value)
	b.popScope()
	b.checkAssignable(got, field.Type, decl.Value)
}

func (b *Binder) bindMethodBody(owner *types.Named, decl *ast.FunDecl) {
	if !b.enabled(decl.Directives) {
		b.bindings.Excluded[decl] = true
		return
	}
	if decl.IsTest {
		b.reporter.Addf(errors.InvalidTestLocation, decl.Name.Pos(),
			"test declarations are not allowed inside classes")
		return
	}
	if decl.Body == nil {
		return
	}

	method := methodFor(owner, decl)
	if method == nil {
		return
	}

	b.static = method.IsStatic
	b.suspend = method.IsSuspend
	if method.IsCtor {
		b.returnT = types.Void
	} else {
		b.returnT = method.Return
	}

	b.pushScope()
	for i, p := range decl.Params {
		b.declareLocal(p.Name, method.Params[i], p)
	}
	b.bindBlock(decl.Body)
	b.popScope()
}

func (b *Binder) bindFreeFunction(decl *ast.FunDecl) {
	if !b.enabled(decl.Directives) {
		b.bindings.Excluded[decl] = true
		return
	}
	if decl.IsTest && !b.file.IsTest {
		b.reporter.Addf(errors.InvalidTestLocation, decl.Name.Pos(),
			"test '%s' must live under a test root", decl.Name.Name)
		// 位置违规仍然绑定函数体，后续错误照常报出
	}

	fn := b.lookupFunctionDecl(decl)
	if fn == nil || decl.Body == nil {
		return
	}

	b.class = nil
	b.static = true
	b.suspend = fn.IsSuspend
	b.returnT = fn.Return

	b.pushScope()
	for i, p := range decl.Params {
		b.declareLocal(p.Name, fn.Params[i], p)
	}
	b.bindBlock(decl.Body)
	b.popScope()
}

// lookupFunctionDecl 在重载集内定位本声明对应的函数符号
func (b *Binder) lookupFunctionDecl(decl *ast.FunDecl) *symbols.Function {
	fqn := decl.Name.Name
	if b.namespace != "" {
		fqn = b.namespace + "." + decl.Name.Name
	}
	for _, fn := range b.table.Functions(fqn) {
		if fn.Decl == decl {
			return fn
		}
	}
	return nil
}

func fieldIn(owner *types.Named, name string) *types.Field {
	for _, f := range owner.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func methodFor(owner *types.Named, decl *ast.FunDecl) *types.Method {
	for _, m := range owner.Methods {
		if m.Decl == decl {
			return m
		}
	}
	return nil
}

// ============================================================================
// 接口实现检查
// ============================================================================

// checkOverrides 校验类为其全部接口（含超类链与父接口传递闭包）
// 的每个方法提供了签名一致的实现
func (b *Binder) checkOverrides(named *types.Named, decl *ast.ClassDecl) {
	seen := map[*types.Named]bool{}
	var ifaces []*types.Named
	collectInterfaces(named, seen, &ifaces)

	for _, iface := range ifaces {
		for _, want := range iface.Methods {
			if b.findImplementation(named, want) == nil {
				b.reporter.Add(errors.New(errors.MissingOverride, decl.Name.Pos(),
					"class '%s' does not implement '%s.%s'",
					named.FQN, iface.FQN, want.Name).
					WithHint("required signature: " + want.Name + want.Signature().String()))
			}
		}
	}
}

func collectInterfaces(named *types.Named, seen map[*types.Named]bool, out *[]*types.Named) {
	for cur := named; cur != nil; cur = cur.Super {
		for _, iface := range cur.Interfaces {
			collectIface(iface, seen, out)
		}
	}
}

func collectIface(iface *types.Named, seen map[*types.Named]bool, out *[]*types.Named) {
	if seen[iface] {
		return
	}
	seen[iface] = true
	*out = append(*out, iface)
	for _, parent := range iface.Interfaces {
		collectIface(parent, seen, out)
	}
}

func (b *Binder) findImplementation(named *types.Named, want *types.Method) *types.Method {
	for _, m := range named.LookupMethods(want.Name) {
		if m.IsStatic || m.IsCtor {
			continue
		}
		if m.SameSignature(want) {
			return m
		}
	}
	return nil
}

// ============================================================================
// 作用域与流事实
// ============================================================================

func (b *Binder) pushScope() {
	b.scopes = append(b.scopes, map[string]*Local{})
}

func (b *Binder) popScope() {
	b.scopes = b.scopes[:len(b.scopes)-1]
}

func (b *Binder) declareLocal(name *ast.Identifier, t types.Type, decl ast.Node) *Local {
	scope := b.scopes[len(b.scopes)-1]
	if _, exists := scope[name.Name]; exists {
		b.reporter.Addf(errors.DuplicateSymbol, name.Pos(),
			"'%s' is already declared in this scope", name.Name)
	}
	local := &Local{Name: name.Name, Type: t, Decl: decl}
	scope[name.Name] = local
	b.bindings.Locals[name] = local
	return local
}

func (b *Binder) lookupLocal(name string) *Local {
	for i := len(b.scopes) - 1; i >= 0; i-- {
		if local, ok := b.scopes[i][name]; ok {
			return local
		}
	}
	return nil
}

func (b *Binder) pushFacts(f flowFacts) {
	if f == nil {
		f = flowFacts{}
	}
	b.facts = append(b.facts, f)
}

func (b *Binder) popFacts() {
	b.facts = b.facts[:len(b.facts)-1]
}

// factFor 查询路径当前生效的收窄类型，无则返回 nil
func (b *Binder) factFor(path string) types.Type {
	for i := len(b.facts) - 1; i >= 0; i-- {
		if t, ok := b.facts[i][path]; ok {
			return t
		}
	}
	return nil
}

// invalidateFacts 赋值后废止路径及其全部延伸路径的收窄
func (b *Binder) invalidateFacts(path string) {
	prefix := path + "."
	for _, frame := range b.facts {
		for key := range frame {
			if key == path || hasPrefix(key, prefix) {
				delete(frame, key)
			}
		}
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func mergeFacts(a, b flowFacts) flowFacts {
	if len(a) == 0 {
		return b
	}
	merged := flowFacts{}
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return merged
}

// ============================================================================
// 替身覆盖层
// ============================================================================

func (b *Binder) pushMocks(overlay map[string]*types.Named) {
	b.mocks = append(b.mocks, overlay)
}

func (b *Binder) popMocks() {
	b.mocks = b.mocks[:len(b.mocks)-1]
}

// mockFor 查询短名当前生效的替身类，后进者优先
func (b *Binder) mockFor(name string) *types.Named {
	for i := len(b.mocks) - 1; i >= 0; i-- {
		if named, ok := b.mocks[i][name]; ok {
			return named
		}
	}
	return nil
}

// resolveClassName 解析类名：替身覆盖层优先，随后查全局符号表；
// 特性门控裁剪掉的类视同不存在
func (b *Binder) resolveClassName(name string) (*types.Named, bool) {
	if mock := b.mockFor(name); mock != nil {
		return mock, true
	}
	named, ok := b.table.ResolveClass(name, b.namespace, b.imports)
	if !ok || !b.classEnabled(named) {
		return nil, false
	}
	return named, true
}

// ============================================================================
// 类型标注解析（绑定阶段）
// ============================================================================

func (b *Binder) resolveType(node ast.TypeNode) types.Type {
	switch t := node.(type) {
	case *ast.NullableType:
		return types.MakeNullable(b.resolveType(t.Inner))

	case *ast.ArrayType:
		return &types.Array{Elem: b.resolveType(t.ElementType)}

	case *ast.FunType:
		fn := &types.Func{Return: types.Void}
		for _, p := range t.Params {
			fn.Params = append(fn.Params, b.resolveType(p))
		}
		if t.ReturnType != nil {
			fn.Return = b.resolveType(t.ReturnType)
		}
		return fn

	case *ast.NamedType:
		return b.resolveNamedType(t)
	}

	return types.Error
}

func (b *Binder) resolveNamedType(t *ast.NamedType) types.Type {
	if len(t.TypeArgs) == 0 {
		if b.class != nil {
			for _, tp := range b.class.TypeParams {
				if tp.Name == t.Name {
					return tp
				}
			}
			if b.class.Generic != nil {
				for _, tp := range b.class.Generic.TypeParams {
					if tp.Name == t.Name {
						return tp
					}
				}
			}
		}
		if p := types.LookupPrimitive(t.Name); p != nil {
			return p
		}
	}

	named, ok := b.resolveClassName(t.Name)
	if !ok {
		b.reporter.Addf(errors.UnresolvedSymbol, t.Pos(), "unknown type '%s'", t.Name)
		return types.Error
	}

	generic := named
	if generic.Generic != nil {
		generic = generic.Generic
	}
	if len(t.TypeArgs) != len(generic.TypeParams) {
		b.reporter.Addf(errors.TypeMismatch, t.Pos(),
			"'%s' expects %d type argument(s), got %d",
			named.FQN, len(generic.TypeParams), len(t.TypeArgs))
		return types.Error
	}
	if len(t.TypeArgs) == 0 {
		return named
	}

	args := make([]types.Type, len(t.TypeArgs))
	for i, a := range t.TypeArgs {
		args[i] = b.resolveType(a)
		if args[i] == types.Error {
			return types.Error
		}
	}
	return b.table.Instantiate(generic, args)
}
