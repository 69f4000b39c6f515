package types

import (
	"strings"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
)

// ============================================================================
// 类型模型
// ============================================================================
//
// 类型对象在符号表构建阶段创建，绑定阶段只读共享。
// Named（类/接口描述符）在单线程的符号表构建阶段填充成员，
// 之后进入并行绑定阶段时视为不可变。
//
// 可空性是类型的一部分：T 与 T? 是不同的类型，T 可以隐式放宽为 T?，
// 反向需要流敏感收窄或显式转换。
//
// ============================================================================

// Kind 类型种类
type Kind int

const (
	KindBool Kind = iota
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindString
	KindVoid
	KindNull   // null 字面量的类型
	KindClass  // 类
	KindIface  // 接口
	KindArray  // T[]
	KindNullable
	KindFunc   // fun(...): R
	KindParam  // 泛型类型参数 T
	KindError  // 错误占位类型，吸收级联错误
)

// Type 是所有类型的接口
type Type interface {
	Kind() Kind
	String() string
}

// ============================================================================
// 原始类型
// ============================================================================

// Primitive 原始类型（含 String 与 Void）
type Primitive struct {
	kind Kind
	name string
}

func (t *Primitive) Kind() Kind     { return t.kind }
func (t *Primitive) String() string { return t.name }

// 原始类型单例。同种类的类型全局唯一，可用指针相等比较。
var (
	Bool   = &Primitive{KindBool, "Bool"}
	Char   = &Primitive{KindChar, "Char"}
	Int    = &Primitive{KindInt, "Int"}
	Long   = &Primitive{KindLong, "Long"}
	Float  = &Primitive{KindFloat, "Float"}
	Double = &Primitive{KindDouble, "Double"}
	String = &Primitive{KindString, "String"}
	Void   = &Primitive{KindVoid, "Void"}
	Null   = &Primitive{KindNull, "Null"}
)

// errType 错误占位类型
type errType struct{}

func (t *errType) Kind() Kind     { return KindError }
func (t *errType) String() string { return "<error>" }

// Error 错误占位类型单例
//
// 绑定阶段对已出错的子表达式使用该类型，它与任何类型兼容，
// 从而抑制同一处错误引发的级联诊断。
var Error Type = &errType{}

// LookupPrimitive 按名称查找原始类型，未命中返回 nil
func LookupPrimitive(name string) Type {
	switch name {
	case "Bool":
		return Bool
	case "Char":
		return Char
	case "Int":
		return Int
	case "Long":
		return Long
	case "Float":
		return Float
	case "Double":
		return Double
	case "String":
		return String
	case "Void":
		return Void
	}
	return nil
}

// ============================================================================
// 复合类型
// ============================================================================

// Nullable 可空类型 T?
type Nullable struct {
	Elem Type
}

func (t *Nullable) Kind() Kind     { return KindNullable }
func (t *Nullable) String() string { return t.Elem.String() + "?" }

// MakeNullable 构造 T?，已可空或为错误类型时原样返回
func MakeNullable(t Type) Type {
	switch t.Kind() {
	case KindNullable, KindNull, KindError:
		return t
	}
	return &Nullable{Elem: t}
}

// StripNullable 去掉可空包装，返回 T? 中的 T
func StripNullable(t Type) Type {
	if n, ok := t.(*Nullable); ok {
		return n.Elem
	}
	return t
}

// IsNullable 判断类型是否可持有 null
func IsNullable(t Type) bool {
	return t.Kind() == KindNullable || t.Kind() == KindNull
}

// Array 数组类型 T[]
type Array struct {
	Elem Type
}

func (t *Array) Kind() Kind     { return KindArray }
func (t *Array) String() string { return t.Elem.String() + "[]" }

// Func 函数类型 fun(P...): R
type Func struct {
	Params []Type
	Return Type
}

func (t *Func) Kind() Kind { return KindFunc }
func (t *Func) String() string {
	var params []string
	for _, p := range t.Params {
		params = append(params, p.String())
	}
	return "fun(" + strings.Join(params, ", ") + "): " + t.Return.String()
}

// TypeParam 泛型类型参数
//
// 同一声明的类型参数全局唯一，指针相等即类型相等。
type TypeParam struct {
	Name  string
	Owner string // 声明该参数的类/接口 FQN
}

func (t *TypeParam) Kind() Kind     { return KindParam }
func (t *TypeParam) String() string { return t.Name }

// ============================================================================
// 类与接口描述符
// ============================================================================

// Field 字段成员
type Field struct {
	Name     string
	Type     Type
	IsStatic bool
	Decl     *ast.FieldDecl // 非合成字段指向声明节点
	Owner    *Named
	Index    int // 实例字段的声明序（用于对象布局）
}

// Method 方法成员（含构造函数）
type Method struct {
	Name       string
	Params     []Type
	ParamNames []string
	Return     Type
	IsStatic   bool
	IsSuspend  bool
	IsCtor     bool
	Decl       *ast.FunDecl // 合成方法（如默认构造函数）为 nil
	Owner      *Named
}

// Signature 返回方法的函数类型
func (m *Method) Signature() *Func {
	return &Func{Params: m.Params, Return: m.Return}
}

// SameSignature 判断两个方法的参数与返回类型是否完全一致
func (m *Method) SameSignature(other *Method) bool {
	if len(m.Params) != len(other.Params) {
		return false
	}
	for i := range m.Params {
		if !Same(m.Params[i], other.Params[i]) {
			return false
		}
	}
	return Same(m.Return, other.Return)
}

// Named 类或接口描述符
//
// 也承载泛型实例化：泛型声明本身 TypeArgs 为 nil；
// 单态化实例（如 List<Int>）的 Generic 指回声明，TypeArgs 为实参。
type Named struct {
	FQN         string // 全限定名，如 App.Core.Sprite
	IsInterface bool
	TypeParams  []*TypeParam
	TypeArgs    []Type // 实例化实参，声明本身为 nil
	Generic     *Named // 实例化来源的泛型声明，非实例为 nil

	Super      *Named  // 超类，可为 nil
	Interfaces []*Named // 实现的接口

	Fields  []*Field
	Methods []*Method

	Decl *ast.ClassDecl     // 类声明节点（接口为 nil）
	IDecl *ast.InterfaceDecl // 接口声明节点（类为 nil）
}

func (t *Named) Kind() Kind {
	if t.IsInterface {
		return KindIface
	}
	return KindClass
}

func (t *Named) String() string {
	if len(t.TypeArgs) == 0 {
		return t.FQN
	}
	var args []string
	for _, a := range t.TypeArgs {
		args = append(args, a.String())
	}
	return t.FQN + "<" + strings.Join(args, ", ") + ">"
}

// Name 返回不含命名空间的短名
func (t *Named) Name() string {
	if i := strings.LastIndexByte(t.FQN, '.'); i >= 0 {
		return t.FQN[i+1:]
	}
	return t.FQN
}

// LookupField 沿继承链查找字段
func (t *Named) LookupField(name string) *Field {
	for c := t; c != nil; c = c.Super {
		for _, f := range c.Fields {
			if f.Name == name {
				return f
			}
		}
	}
	return nil
}

// LookupMethods 沿继承链与接口收集同名方法（供重载决议）
//
// 子类方法排在前面；与已收集方法签名完全一致的父类方法视为被覆写，跳过。
func (t *Named) LookupMethods(name string) []*Method {
	var result []*Method

	var collect func(c *Named)
	collect = func(c *Named) {
		if c == nil {
			return
		}
		for _, m := range c.Methods {
			if m.Name != name {
				continue
			}
			overridden := false
			for _, seen := range result {
				if m.SameSignature(seen) {
					overridden = true
					break
				}
			}
			if !overridden {
				result = append(result, m)
			}
		}
		collect(c.Super)
		for _, iface := range c.Interfaces {
			collect(iface)
		}
	}
	collect(t)

	return result
}

// Ctors 返回全部构造函数，无显式构造函数时返回 nil
func (t *Named) Ctors() []*Method {
	var result []*Method
	for _, m := range t.Methods {
		if m.IsCtor {
			result = append(result, m)
		}
	}
	return result
}

// InstanceFields 按声明序返回含继承的全部实例字段（超类字段在前）
func (t *Named) InstanceFields() []*Field {
	var result []*Field
	if t.Super != nil {
		result = t.Super.InstanceFields()
	}
	for _, f := range t.Fields {
		if !f.IsStatic {
			result = append(result, f)
		}
	}
	return result
}

// Implements 判断 t 是否（传递地）实现接口 iface
func (t *Named) Implements(iface *Named) bool {
	for c := t; c != nil; c = c.Super {
		for _, i := range c.Interfaces {
			if sameNamed(i, iface) || i.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// IsSubclassOf 判断 t 是否为 other 的子类（含自身）
func (t *Named) IsSubclassOf(other *Named) bool {
	for c := t; c != nil; c = c.Super {
		if sameNamed(c, other) {
			return true
		}
	}
	return false
}

// sameNamed 判断两个描述符表示同一类型（FQN 与类型实参一致）
func sameNamed(a, b *Named) bool {
	if a == b {
		return true
	}
	if a.FQN != b.FQN || len(a.TypeArgs) != len(b.TypeArgs) {
		return false
	}
	for i := range a.TypeArgs {
		if !Same(a.TypeArgs[i], b.TypeArgs[i]) {
			return false
		}
	}
	return true
}

// ============================================================================
// 类型等价与赋值兼容
// ============================================================================

// Same 判断两个类型严格相等
func Same(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	switch at := a.(type) {
	case *Nullable:
		bt, ok := b.(*Nullable)
		return ok && Same(at.Elem, bt.Elem)
	case *Array:
		bt, ok := b.(*Array)
		return ok && Same(at.Elem, bt.Elem)
	case *Func:
		bt, ok := b.(*Func)
		if !ok || len(at.Params) != len(bt.Params) {
			return false
		}
		for i := range at.Params {
			if !Same(at.Params[i], bt.Params[i]) {
				return false
			}
		}
		return Same(at.Return, bt.Return)
	case *Named:
		bt, ok := b.(*Named)
		return ok && sameNamed(at, bt)
	}

	return false
}

// wideningEdges 基本类型隐式放宽的直接边
var wideningEdges = map[Kind][]Kind{
	KindChar:  {KindInt},
	KindInt:   {KindLong, KindFloat},
	KindFloat: {KindDouble},
}

// wideningDist 放宽距离（传递闭包），初始化时由 BFS 计算
var wideningDist map[[2]Kind]int

func init() {
	wideningDist = make(map[[2]Kind]int)
	for from := range wideningEdges {
		dist := map[Kind]int{from: 0}
		queue := []Kind{from}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range wideningEdges[cur] {
				if _, seen := dist[next]; !seen {
					dist[next] = dist[cur] + 1
					queue = append(queue, next)
				}
			}
		}
		for to, d := range dist {
			if d > 0 {
				wideningDist[[2]Kind{from, to}] = d
			}
		}
	}
}

// WideningDistance 返回基本类型放宽的步数，不可放宽返回 -1
func WideningDistance(from, to Type) int {
	if d, ok := wideningDist[[2]Kind{from.Kind(), to.Kind()}]; ok {
		return d
	}
	return -1
}

// 转换成本基数。特异性排序只依赖大小关系：
// 精确匹配 < 可空包装 < 数值放宽 < 引用向上转型。
const (
	costExact  = 0
	costWrap   = 1   // T → T?
	costWiden  = 10  // 数值放宽，加放宽距离
	costUpcast = 100 // 向上转型，加继承深度
)

// ConversionCost 计算隐式转换成本
//
// 返回 -1 表示不可隐式转换。成本用于重载特异性排序，
// 数值越小越特异。
func ConversionCost(from, to Type) int {
	if from.Kind() == KindError || to.Kind() == KindError {
		return costExact
	}
	if Same(from, to) {
		return costExact
	}

	// null 字面量可赋给任何可空类型
	if from.Kind() == KindNull {
		if IsNullable(to) {
			return costExact
		}
		return -1
	}

	// T → T?（以及 S → T? 当 S → T 可行）
	if toN, ok := to.(*Nullable); ok {
		inner := ConversionCost(StripNullable(from), toN.Elem)
		if inner < 0 {
			return -1
		}
		if IsNullable(from) {
			return inner
		}
		return inner + costWrap
	}

	// T? → T 不允许隐式（需要收窄或显式转换）
	if IsNullable(from) {
		return -1
	}

	// 数值放宽
	if d := WideningDistance(from, to); d >= 0 {
		return costWiden + d
	}

	// 引用向上转型：子类→超类→接口
	fromN, fromOk := from.(*Named)
	toN, toOk := to.(*Named)
	if fromOk && toOk {
		if d := upcastDepth(fromN, toN); d >= 0 {
			return costUpcast + d
		}
	}

	// 数组协变不允许；函数类型要求严格相等（上面 Same 已覆盖）
	return -1
}

// upcastDepth 计算继承链上的向上转型深度，不可达返回 -1
func upcastDepth(from, to *Named) int {
	if to.IsInterface {
		if from.Implements(to) {
			return interfaceDepth(from, to)
		}
		if from.IsInterface && ifaceExtends(from, to) {
			return 1
		}
		return -1
	}

	depth := 0
	for c := from; c != nil; c = c.Super {
		if sameNamed(c, to) {
			return depth
		}
		depth++
	}
	return -1
}

// interfaceDepth 类到接口的层级
//
// 接口转换始终比同级的超类转换更不特异（基准偏移 2）。
func interfaceDepth(from, to *Named) int {
	depth := 2
	for c := from; c != nil; c = c.Super {
		for _, i := range c.Interfaces {
			if sameNamed(i, to) || i.Implements(to) {
				return depth
			}
		}
		depth++
	}
	return depth
}

// ifaceExtends 接口间的传递继承
func ifaceExtends(from, to *Named) bool {
	for _, i := range from.Interfaces {
		if sameNamed(i, to) || ifaceExtends(i, to) {
			return true
		}
	}
	return false
}

// Assignable 判断 from 类型的值能否隐式赋给 to 类型
func Assignable(from, to Type) bool {
	return ConversionCost(from, to) >= 0
}

// ExplicitCastable 判断 expr as T 是否合法
//
// 允许：全部隐式转换、数值收窄、向下转型（运行期检查）、T? → T。
func ExplicitCastable(from, to Type) bool {
	if Assignable(from, to) {
		return true
	}

	fromBase := StripNullable(from)
	toBase := StripNullable(to)

	// T? → T 显式断言
	if IsNullable(from) && Assignable(fromBase, toBase) {
		return true
	}

	// 数值间任意显式转换
	if isNumeric(fromBase) && isNumeric(toBase) {
		return true
	}

	// 向下转型（逆向的向上转型）
	fromN, fromOk := fromBase.(*Named)
	toN, toOk := toBase.(*Named)
	if fromOk && toOk {
		if upcastDepth(toN, fromN) >= 0 {
			return true
		}
		// 接口与非密封类之间的交叉转换运行期检查
		if fromN.IsInterface || toN.IsInterface {
			return true
		}
	}

	return false
}

// isNumeric 判断是否为数值类型（含 Char）
func isNumeric(t Type) bool {
	switch t.Kind() {
	case KindChar, KindInt, KindLong, KindFloat, KindDouble:
		return true
	}
	return false
}

// IsNumeric 判断是否为数值类型
func IsNumeric(t Type) bool { return isNumeric(t) }

// ============================================================================
// 泛型实例化（单态化替换）
// ============================================================================

// Substitute 将类型中出现的类型参数按映射替换
func Substitute(t Type, mapping map[*TypeParam]Type) Type {
	if len(mapping) == 0 {
		return t
	}

	switch tt := t.(type) {
	case *TypeParam:
		if repl, ok := mapping[tt]; ok {
			return repl
		}
		return t

	case *Nullable:
		return MakeNullable(Substitute(tt.Elem, mapping))

	case *Array:
		return &Array{Elem: Substitute(tt.Elem, mapping)}

	case *Func:
		params := make([]Type, len(tt.Params))
		for i, p := range tt.Params {
			params[i] = Substitute(p, mapping)
		}
		return &Func{Params: params, Return: Substitute(tt.Return, mapping)}

	case *Named:
		if len(tt.TypeArgs) == 0 {
			return t
		}
		args := make([]Type, len(tt.TypeArgs))
		changed := false
		for i, a := range tt.TypeArgs {
			args[i] = Substitute(a, mapping)
			if args[i] != a {
				changed = true
			}
		}
		if !changed {
			return t
		}
		clone := *tt
		clone.TypeArgs = args
		return &clone
	}

	return t
}
