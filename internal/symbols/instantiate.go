package symbols

import (
	"sort"
	"strings"

	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 泛型单态化
// ============================================================================
//
// 每个泛型实例（如 List<Int>）在表内只存一份，按「FQN<实参…>」
// 为键缓存；代码生成阶段直接遍历该缓存为每个实例产出特化代码。
//
// 构建期的两难：解析超类型列表时可能引用尚未填充成员的泛型类
// （class Stack<T> : Collection<T>），因此构建阶段只登记空壳，
// 待全部泛型声明的成员就位后（freeze）统一填充；填充过程自身
// 也可能触发新的实例化，按队列循环直至收敛。
//
// ============================================================================

// Instantiate 取（或创建）泛型类/接口的单态化实例
//
// args 长度必须与声明的类型参数一致，由调用方保证。
func (t *Table) Instantiate(generic *types.Named, args []types.Type) *types.Named {
	t.instMu.Lock()
	defer t.instMu.Unlock()
	return t.instantiateLocked(generic, args)
}

func (t *Table) instantiateLocked(generic *types.Named, args []types.Type) *types.Named {
	if generic.Generic != nil {
		generic = generic.Generic
	}

	key := instKey(generic.FQN, args)
	if inst, ok := t.insts[key]; ok {
		return inst
	}

	inst := &types.Named{
		FQN:         generic.FQN,
		IsInterface: generic.IsInterface,
		TypeArgs:    args,
		Generic:     generic,
		Decl:        generic.Decl,
		IDecl:       generic.IDecl,
	}
	// 先入缓存再填充，自引用（class Node<T> { var next: Node<T>? }）
	// 会命中这条空壳而不会递归爆栈
	t.insts[key] = inst

	if t.frozen {
		t.fill(inst)
	} else {
		t.queue = append(t.queue, inst)
	}
	return inst
}

// freeze 填充构建阶段积压的实例并冻结符号表
func (t *Table) freeze() {
	t.instMu.Lock()
	defer t.instMu.Unlock()

	for len(t.queue) > 0 {
		pending := t.queue
		t.queue = nil
		for _, inst := range pending {
			t.fill(inst)
		}
	}
	t.frozen = true
}

// fill 将泛型声明的成员按类型实参替换后复制到实例
func (t *Table) fill(inst *types.Named) {
	generic := inst.Generic
	mapping := make(map[*types.TypeParam]types.Type, len(generic.TypeParams))
	for i, p := range generic.TypeParams {
		mapping[p] = inst.TypeArgs[i]
	}

	if generic.Super != nil {
		inst.Super = t.substNamed(generic.Super, mapping)
	}
	for _, iface := range generic.Interfaces {
		inst.Interfaces = append(inst.Interfaces, t.substNamed(iface, mapping))
	}

	for _, f := range generic.Fields {
		clone := *f
		clone.Type = t.subst(f.Type, mapping)
		clone.Owner = inst
		inst.Fields = append(inst.Fields, &clone)
	}

	for _, m := range generic.Methods {
		clone := *m
		clone.Owner = inst
		clone.Params = make([]types.Type, len(m.Params))
		for i, p := range m.Params {
			clone.Params[i] = t.subst(p, mapping)
		}
		if m.IsCtor {
			clone.Return = inst
		} else {
			clone.Return = t.subst(m.Return, mapping)
		}
		inst.Methods = append(inst.Methods, &clone)
	}
}

// subst 替换并规范化：嵌套的泛型实例重定向到缓存中的唯一实例
func (t *Table) subst(typ types.Type, mapping map[*types.TypeParam]types.Type) types.Type {
	return t.canonicalizeLocked(types.Substitute(typ, mapping))
}

func (t *Table) substNamed(n *types.Named, mapping map[*types.TypeParam]types.Type) *types.Named {
	result := t.subst(n, mapping)
	if named, ok := result.(*types.Named); ok {
		return named
	}
	return n
}

// Canonicalize 将类型中出现的泛型实例替换为缓存中的唯一实例
//
// 绑定阶段对替换结果统一调用，保证同一实例化在全编译单元内
// 指针唯一，单态化注册表因此不重不漏。
func (t *Table) Canonicalize(typ types.Type) types.Type {
	t.instMu.Lock()
	defer t.instMu.Unlock()
	return t.canonicalizeLocked(typ)
}

func (t *Table) canonicalizeLocked(typ types.Type) types.Type {
	switch tt := typ.(type) {
	case *types.Nullable:
		return types.MakeNullable(t.canonicalizeLocked(tt.Elem))

	case *types.Array:
		return &types.Array{Elem: t.canonicalizeLocked(tt.Elem)}

	case *types.Func:
		params := make([]types.Type, len(tt.Params))
		for i, p := range tt.Params {
			params[i] = t.canonicalizeLocked(p)
		}
		return &types.Func{Params: params, Return: t.canonicalizeLocked(tt.Return)}

	case *types.Named:
		if tt.Generic == nil || len(tt.TypeArgs) == 0 {
			return tt
		}
		args := make([]types.Type, len(tt.TypeArgs))
		for i, a := range tt.TypeArgs {
			args[i] = t.canonicalizeLocked(a)
		}
		return t.instantiateLocked(tt.Generic, args)
	}

	return typ
}

// Instantiations 返回全部单态化实例，按键排序
func (t *Table) Instantiations() []*types.Named {
	t.instMu.Lock()
	defer t.instMu.Unlock()

	keys := make([]string, 0, len(t.insts))
	for k := range t.insts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]*types.Named, 0, len(keys))
	for _, k := range keys {
		result = append(result, t.insts[k])
	}
	return result
}

func instKey(fqn string, args []types.Type) string {
	var sb strings.Builder
	sb.WriteString(fqn)
	sb.WriteByte('<')
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a.String())
	}
	sb.WriteByte('>')
	return sb.String()
}
