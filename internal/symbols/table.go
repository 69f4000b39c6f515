package symbols

import (
	"sort"
	"strings"
	"sync"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 符号表
// ============================================================================
//
// 全局符号表以全限定名（FQN）为键，收录全部类、接口与自由函数。
//
// 生命周期分两个阶段：
// 1. 构建阶段（单线程屏障）：并行解析结束后，由 Builder 注册全部
//    声明并解析签名中的类型标注。
// 2. 查询阶段（并行绑定）：表冻结为只读，多个绑定工作协程无锁共享。
//
// ============================================================================

// Function 自由函数符号（含测试函数）
type Function struct {
	Name      string // 短名
	FQN       string // 全限定名
	Namespace string
	Params    []types.Type
	Return    types.Type
	IsSuspend bool
	IsTest    bool
	Decl      *ast.FunDecl
	File      *ast.File
	Imports   []string // 声明所在文件的导入列表（供绑定函数体时使用）
}

// Table 全局符号表
type Table struct {
	classes    map[string]*types.Named // FQN → 类/接口描述符
	functions  map[string][]*Function  // FQN → 自由函数重载集
	namespaces map[string]bool

	// 泛型实例化缓存（单态化注册表）。构建阶段新实例
	// 延迟填充成员，冻结后即时填充；并行绑定阶段由锁串行化。
	instMu sync.Mutex
	insts  map[string]*types.Named
	queue  []*types.Named // 构建阶段待填充的实例
	frozen bool
}

// NewTable 创建空符号表
func NewTable() *Table {
	return &Table{
		classes:    make(map[string]*types.Named),
		functions:  make(map[string][]*Function),
		namespaces: make(map[string]bool),
		insts:      make(map[string]*types.Named),
	}
}

func (t *Table) registerNamespace(ns string) {
	for {
		t.namespaces[ns] = true
		i := strings.LastIndexByte(ns, '.')
		if i < 0 {
			return
		}
		ns = ns[:i]
	}
}

// ============================================================================
// 查询
// ============================================================================

// Class 按全限定名取类/接口
func (t *Table) Class(fqn string) (*types.Named, bool) {
	c, ok := t.classes[fqn]
	return c, ok
}

// Functions 按全限定名取自由函数重载集
func (t *Table) Functions(fqn string) []*Function {
	return t.functions[fqn]
}

// HasNamespace 判断命名空间是否存在
func (t *Table) HasNamespace(ns string) bool {
	return t.namespaces[ns]
}

// ResolveClass 在给定文件上下文中解析类名
//
// 解析顺序:
// 1. 名称含 '.' 时按全限定名精确匹配
// 2. 当前命名空间下的短名
// 3. 各导入命名空间下的短名（按声明序，先匹配先赢）
// 4. 根命名空间下的名称
func (t *Table) ResolveClass(name, namespace string, imports []string) (*types.Named, bool) {
	if strings.ContainsRune(name, '.') {
		c, ok := t.classes[name]
		return c, ok
	}

	if namespace != "" {
		if c, ok := t.classes[namespace+"."+name]; ok {
			return c, true
		}
	}

	for _, imp := range imports {
		if c, ok := t.classes[imp+"."+name]; ok {
			return c, true
		}
	}

	c, ok := t.classes[name]
	return c, ok
}

// ResolveFunctions 在给定文件上下文中解析自由函数重载集
//
// 解析顺序与 ResolveClass 相同。
func (t *Table) ResolveFunctions(name, namespace string, imports []string) []*Function {
	if strings.ContainsRune(name, '.') {
		return t.functions[name]
	}

	if namespace != "" {
		if fns := t.functions[namespace+"."+name]; len(fns) > 0 {
			return fns
		}
	}

	for _, imp := range imports {
		if fns := t.functions[imp+"."+name]; len(fns) > 0 {
			return fns
		}
	}

	return t.functions[name]
}

// Classes 返回全部类/接口，按 FQN 排序（保证遍历顺序确定）
func (t *Table) Classes() []*types.Named {
	result := make([]*types.Named, 0, len(t.classes))
	for _, c := range t.classes {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FQN < result[j].FQN
	})
	return result
}

// AllFunctions 返回全部自由函数，按 FQN 与声明序排序
func (t *Table) AllFunctions() []*Function {
	fqns := make([]string, 0, len(t.functions))
	for fqn := range t.functions {
		fqns = append(fqns, fqn)
	}
	sort.Strings(fqns)

	var result []*Function
	for _, fqn := range fqns {
		result = append(result, t.functions[fqn]...)
	}
	return result
}

// TestFunctions 返回全部测试函数，按 FQN 排序
func (t *Table) TestFunctions() []*Function {
	var result []*Function
	for _, fn := range t.AllFunctions() {
		if fn.IsTest {
			result = append(result, fn)
		}
	}
	return result
}
