package binder

import (
	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 表达式检查
// ============================================================================

// checkExpr 检查表达式并返回其类型，结果同时写入侧表
func (b *Binder) checkExpr(expr ast.Expression) types.Type {
	t := b.checkExprInner(expr)
	b.bindings.ExprTypes[expr] = t
	return t
}

func (b *Binder) checkExprInner(expr ast.Expression) types.Type {
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

	case *ast.BoolLiteral:
		return types.Bool

	case *ast.CharLiteral:
		return types.Char

	case *ast.StringLiteral:
		return types.String

	case *ast.InterpStringLiteral:
		// 插值段可以是任意类型，生成阶段统一字符串化
		for _, part := range e.Parts {
			b.checkExpr(part)
		}
		return types.String

	case *ast.NullLiteral:
		return types.Null

	case *ast.ThisExpr:
		return b.checkThis(e)

	case *ast.SuperExpr:
		b.reporter.Addf(errors.SyntaxError, e.Pos(),
			"'super' can only be used for member access or calls")
		return types.Error

	case *ast.Identifier:
		return b.checkIdentifier(e)

	case *ast.ArrayLiteral:
		return b.checkArrayLiteral(e)

	case *ast.PrefixExpr:
		return b.checkPrefix(e)

	case *ast.InfixExpr:
		return b.checkInfix(e)

	case *ast.CastExpr:
		return b.checkCast(e)

	case *ast.IsExpr:
		b.checkIsExpr(e)
		return types.Bool

	case *ast.MemberExpr:
		return b.checkMember(e)

	case *ast.IndexExpr:
		return b.checkIndex(e)

	case *ast.CallExpr:
		return b.checkCall(e)

	case *ast.NewExpr:
		return b.checkNew(e)

	case *ast.NewArrayExpr:
		elem := b.resolveType(e.ElementType)
		size := b.checkExpr(e.Size)
		if size != types.Error && !types.Same(size, types.Int) && !types.Same(size, types.Long) {
			b.reporter.Addf(errors.TypeMismatch, e.Size.Pos(),
				"array size must be Int or Long, got '%s'", size)
		}
		return &types.Array{Elem: elem}

	case *ast.LambdaExpr:
		return b.checkLambda(e)

	case *ast.IfExpr:
		return b.checkIfExpr(e)

	case *ast.AssignExpr:
		return b.checkAssignExpr(e)
	}

	return types.Error
}

// checkIfExpr 检查条件表达式，结果类型为两分支的合并类型
//
// 条件产生的流收窄在各自分支内生效，与 if 语句一致。
func (b *Binder) checkIfExpr(e *ast.IfExpr) types.Type {
	whenTrue, whenFalse := b.checkCond(e.Cond)

	b.pushFacts(whenTrue)
	thenT := b.checkExpr(e.Then)
	b.popFacts()

	b.pushFacts(whenFalse)
	elseT := b.checkExpr(e.Else)
	b.popFacts()

	if thenT == types.Error || elseT == types.Error {
		return types.Error
	}

	if joined := joinBranches(thenT, elseT); joined != nil {
		return joined
	}

	b.reporter.Addf(errors.TypeMismatch, e.IfToken.Pos,
		"conditional branches have incompatible types '%s' and '%s'", thenT, elseT)
	return types.Error
}

// joinBranches 求条件表达式两分支的合并类型，无法合并时返回 nil
//
// 合并规则：同类型取其一；一侧为 null 则结果可空；数值取更宽者；
// 一侧可赋值给另一侧时取目标侧。
func joinBranches(a, c types.Type) types.Type {
	if types.Same(a, c) {
		return a
	}
	if a == types.Null {
		return types.MakeNullable(c)
	}
	if c == types.Null {
		return types.MakeNullable(a)
	}
	if types.IsNumeric(a) && types.IsNumeric(c) {
		return wider(a, c)
	}
	if types.Assignable(a, c) {
		return c
	}
	if types.Assignable(c, a) {
		return a
	}
	return nil
}

func (b *Binder) checkThis(e *ast.ThisExpr) types.Type {
	if b.class == nil {
		b.reporter.Addf(errors.UnresolvedSymbol, e.Pos(),
			"'this' is only valid inside a class")
		return types.Error
	}
	if b.static {
		b.reporter.Addf(errors.UnresolvedSymbol, e.Pos(),
			"'this' is not available in a static context")
		return types.Error
	}
	return b.class
}

// checkIdentifier 解析标识符：局部变量 → 当前类字段
//
// 解析到类名本身的标识符不在此处处理（仅在成员访问与调用的
// 接收者位置合法），落到这里一律按未解析符号报错。
func (b *Binder) checkIdentifier(e *ast.Identifier) types.Type {
	if local := b.lookupLocal(e.Name); local != nil {
		b.bindings.Locals[e] = local
		if narrowed := b.factFor(e.Name); narrowed != nil {
			return narrowed
		}
		return local.Type
	}

	if b.class != nil {
		if field := b.class.LookupField(e.Name); field != nil {
			if !field.IsStatic && b.static {
				b.reporter.Addf(errors.UnresolvedSymbol, e.Pos(),
					"instance field '%s' is not available in a static context", e.Name)
				return types.Error
			}
			b.bindings.FieldRefs[e] = field
			if narrowed := b.factFor(e.Name); narrowed != nil {
				return narrowed
			}
			return b.table.Canonicalize(field.Type)
		}
	}

	b.reporter.Addf(errors.UnresolvedSymbol, e.Pos(), "unresolved name '%s'", e.Name)
	return types.Error
}

func (b *Binder) checkArrayLiteral(e *ast.ArrayLiteral) types.Type {
	if len(e.Elements) == 0 {
		b.reporter.Addf(errors.TypeMismatch, e.Pos(),
			"cannot infer the element type of an empty array literal")
		return types.Error
	}

	elem := b.checkExpr(e.Elements[0])
	for _, el := range e.Elements[1:] {
		t := b.checkExpr(el)
		if elem == types.Error || t == types.Error {
			continue
		}
		if types.Assignable(t, elem) {
			continue
		}
		if types.Assignable(elem, t) {
			elem = t // 元素类型向更宽的一侧靠拢
			continue
		}
		b.reporter.Addf(errors.TypeMismatch, el.Pos(),
			"array element type '%s' is not compatible with '%s'", t, elem)
	}
	return &types.Array{Elem: elem}
}

func (b *Binder) checkPrefix(e *ast.PrefixExpr) types.Type {
	right := b.checkExpr(e.Right)
	if right == types.Error {
		return types.Error
	}

	switch e.Operator.Type {
	case token.NOT:
		if !types.Same(right, types.Bool) {
			b.reporter.Addf(errors.TypeMismatch, e.Pos(),
				"operator '!' requires Bool, got '%s'", right)
			return types.Error
		}
		return types.Bool

	case token.MINUS:
		if !types.IsNumeric(right) {
			b.reporter.Addf(errors.TypeMismatch, e.Pos(),
				"operator '-' requires a numeric operand, got '%s'", right)
			return types.Error
		}
		return right

	case token.BIT_NOT:
		if !types.Same(right, types.Int) && !types.Same(right, types.Long) {
			b.reporter.Addf(errors.TypeMismatch, e.Pos(),
				"operator '~' requires Int or Long, got '%s'", right)
			return types.Error
		}
		return right
	}

	return types.Error
}

func (b *Binder) checkInfix(e *ast.InfixExpr) types.Type {
	left := b.checkExpr(e.Left)
	right := b.checkExpr(e.Right)
	if left == types.Error || right == types.Error {
		return types.Error
	}

	op := e.Operator
	switch op.Type {
	case token.PLUS:
		// 任一侧为 String 即为拼接，另一侧在生成阶段字符串化
		if types.Same(left, types.String) || types.Same(right, types.String) {
			return types.String
		}
		return b.numericResult(left, right, e)

	case token.MINUS, token.STAR, token.SLASH, token.PERCENT:
		return b.numericResult(left, right, e)

	case token.LT, token.LE, token.GT, token.GE:
		if !comparable(left, right) {
			b.reporter.Addf(errors.TypeMismatch, op.Pos,
				"operator '%s' cannot compare '%s' and '%s'", op.Literal, left, right)
		}
		return types.Bool

	case token.EQ, token.NE:
		if !equatable(left, right) {
			b.reporter.Addf(errors.TypeMismatch, op.Pos,
				"operator '%s' cannot compare '%s' and '%s'", op.Literal, left, right)
		}
		return types.Bool

	case token.AND, token.OR:
		if !types.Same(left, types.Bool) || !types.Same(right, types.Bool) {
			b.reporter.Addf(errors.TypeMismatch, op.Pos,
				"operator '%s' requires Bool operands", op.Literal)
		}
		return types.Bool

	case token.BIT_AND, token.BIT_OR, token.BIT_XOR,
		token.LEFT_SHIFT, token.RIGHT_SHIFT:
		if !integral(left) || !integral(right) {
			b.reporter.Addf(errors.TypeMismatch, op.Pos,
				"operator '%s' requires Int or Long operands", op.Literal)
			return types.Error
		}
		return wider(left, right)
	}

	return types.Error
}

func (b *Binder) numericResult(left, right types.Type, e *ast.InfixExpr) types.Type {
	if !types.IsNumeric(left) || !types.IsNumeric(right) {
		b.reporter.Addf(errors.TypeMismatch, e.Operator.Pos,
			"operator '%s' requires numeric operands, got '%s' and '%s'",
			e.Operator.Literal, left, right)
		return types.Error
	}
	return wider(left, right)
}

// wider 取两数值类型中更宽的一个
func wider(a, c types.Type) types.Type {
	if types.WideningDistance(a, c) >= 0 {
		return c
	}
	return a
}

func integral(t types.Type) bool {
	return types.Same(t, types.Int) || types.Same(t, types.Long) || types.Same(t, types.Char)
}

// comparable 判断两类型可否做序比较
func comparable(a, c types.Type) bool {
	if types.IsNumeric(a) && types.IsNumeric(c) {
		return true
	}
	if types.Same(a, types.Char) && types.Same(c, types.Char) {
		return true
	}
	if types.Same(a, types.String) && types.Same(c, types.String) {
		return true
	}
	return false
}

// equatable 判断两类型可否做相等比较
func equatable(a, c types.Type) bool {
	if types.IsNumeric(a) && types.IsNumeric(c) {
		return true
	}
	if a == types.Null {
		return types.IsNullable(c) || c == types.Null
	}
	if c == types.Null {
		return types.IsNullable(a)
	}
	return types.Assignable(a, c) || types.Assignable(c, a) ||
		types.Same(types.StripNullable(a), types.StripNullable(c))
}

func (b *Binder) checkCast(e *ast.CastExpr) types.Type {
	from := b.checkExpr(e.Expr)
	to := b.resolveType(e.Type)
	if from == types.Error || to == types.Error {
		return types.Error
	}
	if !types.ExplicitCastable(from, to) {
		b.reporter.Addf(errors.TypeMismatch, e.AsToken.Pos,
			"cannot cast '%s' to '%s'", from, to)
		return types.Error
	}
	return to
}

func (b *Binder) checkIsExpr(e *ast.IsExpr) {
	from := b.checkExpr(e.Expr)
	to := b.resolveType(e.Type)
	b.bindings.IsTargets[e] = to
	if from == types.Error || to == types.Error {
		return
	}
	if !types.ExplicitCastable(from, to) && !types.ExplicitCastable(to, from) {
		b.reporter.Addf(errors.TypeMismatch, e.IsToken.Pos,
			"'%s' can never be an instance of '%s'", from, to)
	}
}

// ============================================================================
// 成员访问
// ============================================================================

// checkMember 成员访问决议
//
// 接收者可能是值（实例成员）、类名（静态成员）或命名空间前缀
// （更长的限定名）。按「值优先」顺序尝试。
func (b *Binder) checkMember(e *ast.MemberExpr) types.Type {
	// super.member 直接走超类
	if _, isSuper := e.Object.(*ast.SuperExpr); isSuper {
		return b.checkSuperMember(e)
	}

	// 类名/命名空间前缀形式的静态访问
	if named, ok := b.staticReceiver(e.Object); ok {
		return b.checkStaticMember(e, named)
	}

	objType := b.checkExpr(e.Object)
	if objType == types.Error {
		return types.Error
	}

	if path, ok := pathOf(e); ok {
		if narrowed := b.factFor(path); narrowed != nil {
			b.resolveInstanceMember(e, types.StripNullable(objType))
			return narrowed
		}
	}

	if types.IsNullable(objType) && !e.Safe {
		b.reporter.Add(errors.New(errors.NullSafetyViolation, e.Dot.Pos,
			"'%s' may be null; member access requires narrowing", e.Object).
			WithHint("guard with 'if (... != null)' or use the safe access operator '?.'"))
		objType = types.StripNullable(objType)
	} else if e.Safe {
		if !types.IsNullable(objType) {
			b.reporter.Addf(errors.TypeMismatch, e.Dot.Pos,
				"operator '?.' requires a nullable receiver, got '%s'", objType)
		}
		objType = types.StripNullable(objType)
	}

	result := b.resolveInstanceMember(e, objType)
	if e.Safe && result != types.Error {
		// 安全访问短路为 null，结果提升为可空
		return types.MakeNullable(result)
	}
	return result
}

// resolveInstanceMember 在接收者类型上查找实例字段
func (b *Binder) resolveInstanceMember(e *ast.MemberExpr, objType types.Type) types.Type {
	named, ok := objType.(*types.Named)
	if !ok {
		if _, isArr := objType.(*types.Array); isArr && e.Member.Name == "length" {
			return types.Int
		}
		if types.Same(objType, types.String) && e.Member.Name == "length" {
			return types.Int
		}
		b.reporter.Addf(errors.UnresolvedSymbol, e.Member.Pos(),
			"type '%s' has no member '%s'", objType, e.Member.Name)
		return types.Error
	}

	if field := named.LookupField(e.Member.Name); field != nil && !field.IsStatic {
		b.bindings.FieldRefs[e] = field
		return b.table.Canonicalize(field.Type)
	}

	// 成员是方法时必须被调用；裸方法引用不支持
	if len(b.visibleMethods(named, e.Member.Name, false)) > 0 {
		b.reporter.Addf(errors.TypeMismatch, e.Member.Pos(),
			"method '%s' must be called", e.Member.Name)
		return types.Error
	}

	b.reporter.Addf(errors.UnresolvedSymbol, e.Member.Pos(),
		"'%s' has no member '%s'", named.FQN, e.Member.Name)
	return types.Error
}

func (b *Binder) checkSuperMember(e *ast.MemberExpr) types.Type {
	if b.class == nil || b.static {
		b.reporter.Addf(errors.UnresolvedSymbol, e.Object.Pos(),
			"'super' is not available here")
		return types.Error
	}
	if b.class.Super == nil {
		b.reporter.Addf(errors.UnresolvedSymbol, e.Object.Pos(),
			"class '%s' has no superclass", b.class.FQN)
		return types.Error
	}
	b.bindings.ExprTypes[e.Object] = b.class.Super
	return b.resolveInstanceMember(e, b.class.Super)
}

// staticReceiver 判断表达式是否为类名（可带命名空间前缀）
//
// 任何可以按值解析的名字都不按类名处理，保证局部变量遮蔽类名。
func (b *Binder) staticReceiver(expr ast.Expression) (*types.Named, bool) {
	name, ok := dottedName(expr)
	if !ok {
		return nil, false
	}
	if root, _, split := splitRoot(name); split {
		if b.lookupLocal(root) != nil {
			return nil, false
		}
		if b.class != nil && b.class.LookupField(root) != nil {
			return nil, false
		}
	} else if b.lookupLocal(name) != nil {
		return nil, false
	} else if b.class != nil && b.class.LookupField(name) != nil {
		return nil, false
	}
	return b.resolveClassName(name)
}

func (b *Binder) checkStaticMember(e *ast.MemberExpr, named *types.Named) types.Type {
	if e.Safe {
		b.reporter.Addf(errors.TypeMismatch, e.Dot.Pos,
			"operator '?.' cannot be used on a class name")
	}

	if field := named.LookupField(e.Member.Name); field != nil && field.IsStatic {
		b.bindings.FieldRefs[e] = field
		return b.table.Canonicalize(field.Type)
	}
	if len(b.visibleMethods(named, e.Member.Name, true)) > 0 {
		b.reporter.Addf(errors.TypeMismatch, e.Member.Pos(),
			"method '%s' must be called", e.Member.Name)
		return types.Error
	}

	b.reporter.Addf(errors.UnresolvedSymbol, e.Member.Pos(),
		"'%s' has no static member '%s'", named.FQN, e.Member.Name)
	return types.Error
}

// dottedName 将纯标识符链还原为点分名
func dottedName(expr ast.Expression) (string, bool) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name, true
	case *ast.MemberExpr:
		if e.Safe {
			return "", false
		}
		prefix, ok := dottedName(e.Object)
		if !ok {
			return "", false
		}
		return prefix + "." + e.Member.Name, true
	}
	return "", false
}

func splitRoot(name string) (root, rest string, split bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}

// pathOf 计算表达式的收窄路径；不可追踪的表达式返回 false
func pathOf(expr ast.Expression) (string, bool) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name, true
	case *ast.ThisExpr:
		return "this", true
	case *ast.MemberExpr:
		if e.Safe {
			return "", false
		}
		prefix, ok := pathOf(e.Object)
		if !ok {
			return "", false
		}
		return prefix + "." + e.Member.Name, true
	}
	return "", false
}

// ============================================================================
// 下标访问
// ============================================================================

func (b *Binder) checkIndex(e *ast.IndexExpr) types.Type {
	objType := b.checkExpr(e.Object)
	idxType := b.checkExpr(e.Index)

	if idxType != types.Error && !types.Same(idxType, types.Int) && !types.Same(idxType, types.Long) {
		b.reporter.Addf(errors.TypeMismatch, e.Index.Pos(),
			"index must be Int or Long, got '%s'", idxType)
	}

	if objType == types.Error {
		return types.Error
	}
	if types.IsNullable(objType) {
		b.reporter.Addf(errors.NullSafetyViolation, e.LBracket.Pos,
			"'%s' may be null; indexing requires narrowing", e.Object)
		objType = types.StripNullable(objType)
	}

	switch t := objType.(type) {
	case *types.Array:
		return t.Elem
	}
	if types.Same(objType, types.String) {
		return types.Char
	}

	b.reporter.Addf(errors.TypeMismatch, e.LBracket.Pos,
		"type '%s' cannot be indexed", objType)
	return types.Error
}

// ============================================================================
// 调用与重载决议
// ============================================================================

// candidate 重载决议候选
type candidate struct {
	params []types.Type
	method *types.Method
	fn     *symbols.Function
}

func (b *Binder) checkCall(e *ast.CallExpr) types.Type {
	if len(e.TypeArgs) > 0 {
		for _, ta := range e.TypeArgs {
			b.resolveType(ta)
		}
		b.reporter.Addf(errors.TypeMismatch, e.LParen.Pos,
			"explicit type arguments are only supported on type names")
	}

	args := make([]types.Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = b.checkExpr(a)
	}

	switch callee := e.Callee.(type) {
	case *ast.Identifier:
		return b.checkNamedCall(e, callee, args)
	case *ast.MemberExpr:
		return b.checkMemberCall(e, callee, args)
	}

	// 函数类型值的间接调用
	calleeType := b.checkExpr(e.Callee)
	return b.checkValueCall(e, calleeType, args)
}

// checkNamedCall 裸名调用：当前类方法优先，其次可见的自由函数
func (b *Binder) checkNamedCall(e *ast.CallExpr, callee *ast.Identifier, args []types.Type) types.Type {
	// 局部变量持有函数值
	if local := b.lookupLocal(callee.Name); local != nil {
		b.bindings.Locals[callee] = local
		b.bindings.ExprTypes[callee] = local.Type
		return b.checkValueCall(e, local.Type, args)
	}

	var cands []candidate
	if b.class != nil {
		if !b.static {
			for _, m := range b.visibleMethods(b.class, callee.Name, false) {
				cands = append(cands, candidate{params: m.Params, method: m})
			}
		}
		// 静态方法在两种上下文中都可裸名调用
		for _, m := range b.visibleMethods(b.class, callee.Name, true) {
			cands = append(cands, candidate{params: m.Params, method: m})
		}
	}
	if len(cands) == 0 {
		for _, fn := range b.table.ResolveFunctions(callee.Name, b.namespace, b.imports) {
			if b.enabled(fn.Decl.Directives) {
				cands = append(cands, candidate{params: fn.Params, fn: fn})
			}
		}
	}

	if len(cands) == 0 {
		b.reporter.Addf(errors.UnresolvedSymbol, callee.Pos(),
			"unresolved function '%s'", callee.Name)
		return types.Error
	}

	best := b.resolveOverload(callee.Name, cands, args, e)
	if best == nil {
		return types.Error
	}
	return b.commitCall(e, best)
}

// checkMemberCall 成员调用：实例方法、静态方法或 super 调用
func (b *Binder) checkMemberCall(e *ast.CallExpr, callee *ast.MemberExpr, args []types.Type) types.Type {
	name := callee.Member.Name

	var recv *types.Named
	var static bool
	safe := callee.Safe

	if _, isSuper := callee.Object.(*ast.SuperExpr); isSuper {
		if b.class == nil || b.static || b.class.Super == nil {
			b.reporter.Addf(errors.UnresolvedSymbol, callee.Object.Pos(),
				"'super' is not available here")
			return types.Error
		}
		recv = b.class.Super
		b.bindings.ExprTypes[callee.Object] = recv
	} else if named, ok := b.staticReceiver(callee.Object); ok {
		recv = named
		static = true
	} else {
		objType := b.checkExpr(callee.Object)
		if objType == types.Error {
			return types.Error
		}

		if path, ok := pathOf(callee.Object); ok {
			if narrowed := b.factFor(path); narrowed != nil {
				objType = narrowed
			}
		}
		if types.IsNullable(objType) && !safe {
			b.reporter.Add(errors.New(errors.NullSafetyViolation, callee.Dot.Pos,
				"'%s' may be null; method call requires narrowing", callee.Object).
				WithHint("guard with 'if (... != null)' or use the safe access operator '?.'"))
		} else if safe && !types.IsNullable(objType) {
			b.reporter.Addf(errors.TypeMismatch, callee.Dot.Pos,
				"operator '?.' requires a nullable receiver, got '%s'", objType)
		}
		objType = types.StripNullable(objType)

		named, ok := objType.(*types.Named)
		if !ok {
			// 函数类型值的间接调用
			if _, isFn := objType.(*types.Func); isFn {
				return b.checkValueCall(e, objType, args)
			}
			b.reporter.Addf(errors.UnresolvedSymbol, callee.Member.Pos(),
				"type '%s' has no method '%s'", objType, name)
			return types.Error
		}
		recv = named
	}

	cands := make([]candidate, 0, 4)
	for _, m := range b.visibleMethods(recv, name, static) {
		cands = append(cands, candidate{params: m.Params, method: m})
	}
	if len(cands) == 0 {
		// 字段持有函数值的调用形式 obj.f(...)
		if field := recv.LookupField(name); field != nil && field.IsStatic == static {
			fieldType := b.table.Canonicalize(field.Type)
			b.bindings.FieldRefs[callee] = field
			b.bindings.ExprTypes[callee] = fieldType
			return b.checkValueCall(e, fieldType, args)
		}
		b.reporter.Addf(errors.UnresolvedSymbol, callee.Member.Pos(),
			"'%s' has no method '%s'", recv.FQN, name)
		return types.Error
	}

	best := b.resolveOverload(name, cands, args, e)
	if best == nil {
		return types.Error
	}

	result := b.commitCall(e, best)
	if safe && result != types.Error && !types.Same(result, types.Void) {
		return types.MakeNullable(result)
	}
	return result
}

// visibleMethods 收集接收者上名称匹配、静态性匹配且未被特性门控
// 裁剪的方法（构造函数除外）
func (b *Binder) visibleMethods(recv *types.Named, name string, static bool) []*types.Method {
	var result []*types.Method
	for _, m := range recv.LookupMethods(name) {
		if m.IsCtor || m.IsStatic != static {
			continue
		}
		if !b.methodEnabled(m) {
			continue
		}
		result = append(result, m)
	}
	return result
}

func (b *Binder) checkValueCall(e *ast.CallExpr, calleeType types.Type, args []types.Type) types.Type {
	if calleeType == types.Error {
		return types.Error
	}
	fn, ok := calleeType.(*types.Func)
	if !ok {
		b.reporter.Addf(errors.TypeMismatch, e.LParen.Pos,
			"type '%s' is not callable", calleeType)
		return types.Error
	}
	if len(args) != len(fn.Params) {
		b.reporter.Addf(errors.TypeMismatch, e.LParen.Pos,
			"call expects %d argument(s), got %d", len(fn.Params), len(args))
		return fn.Return
	}
	for i, arg := range args {
		b.checkAssignable(arg, fn.Params[i], e.Args[i])
	}
	b.bindings.Calls[e] = &Callee{Value: true}
	return fn.Return
}

// resolveOverload 特异性重载决议
//
// 按参数逐个累加转换代价（精确 < 可空包装 < 隐式拓宽 < 上转型），
// 总代价唯一最小者胜出；并列报 AmbiguousOverload，无可行者报
// TypeMismatch。实参已含 types.Error 时静默选第一个参数个数匹配的
// 候选，避免级联。
func (b *Binder) resolveOverload(name string, cands []candidate, args []types.Type, e *ast.CallExpr) *candidate {
	return b.resolveOverloadAt(name, cands, args, e.LParen.Pos)
}

func candidateCost(params, args []types.Type) int {
	if len(params) != len(args) {
		return -1
	}
	total := 0
	for i := range args {
		cost := types.ConversionCost(args[i], params[i])
		if cost < 0 {
			return -1
		}
		total += cost
	}
	return total
}

func (b *Binder) commitCall(e *ast.CallExpr, best *candidate) types.Type {
	if best.method != nil {
		b.bindings.Calls[e] = &Callee{Method: best.method}
		return b.table.Canonicalize(best.method.Return)
	}
	b.bindings.Calls[e] = &Callee{Func: best.fn}
	return best.fn.Return
}

func typeList(args []types.Type) string {
	result := "("
	for i, a := range args {
		if i > 0 {
			result += ", "
		}
		result += a.String()
	}
	return result + ")"
}

// ============================================================================
// 对象创建
// ============================================================================

func (b *Binder) checkNew(e *ast.NewExpr) types.Type {
	t := b.resolveType(e.Type)
	if t == types.Error {
		return types.Error
	}
	named, ok := t.(*types.Named)
	if !ok {
		b.reporter.Addf(errors.TypeMismatch, e.Type.Pos(),
			"'%s' is not a class type", t)
		return types.Error
	}
	if named.IsInterface {
		b.reporter.Addf(errors.TypeMismatch, e.Type.Pos(),
			"cannot instantiate interface '%s'", named.FQN)
		return types.Error
	}

	args := make([]types.Type, len(e.Args))
	for i, a := range e.Args {
		args[i] = b.checkExpr(a)
	}

	cands := make([]candidate, 0, 2)
	for _, ctor := range named.Ctors() {
		if b.methodEnabled(ctor) {
			cands = append(cands, candidate{params: ctor.Params, method: ctor})
		}
	}
	if len(cands) == 0 {
		b.reporter.Addf(errors.UnresolvedSymbol, e.Type.Pos(),
			"'%s' has no accessible constructor", named.FQN)
		return named
	}

	best := b.resolveOverloadAt(named.Name(), cands, args, e.LParen.Pos)
	if best == nil {
		return named
	}
	b.bindings.Ctors[e] = best.method
	return named
}

// resolveOverloadAt 与 resolveOverload 相同，但诊断位置由调用方给定
func (b *Binder) resolveOverloadAt(name string, cands []candidate, args []types.Type, pos token.Position) *candidate {
	for _, arg := range args {
		if arg == types.Error {
			for i := range cands {
				if len(cands[i].params) == len(args) {
					return &cands[i]
				}
			}
			return nil
		}
	}

	bestCost := -1
	bestIdx := -1
	tie := false
	for i := range cands {
		cost := candidateCost(cands[i].params, args)
		if cost < 0 {
			continue
		}
		switch {
		case bestIdx < 0 || cost < bestCost:
			bestIdx, bestCost, tie = i, cost, false
		case cost == bestCost:
			tie = true
		}
	}

	if bestIdx < 0 {
		b.reporter.Addf(errors.TypeMismatch, pos,
			"no overload of '%s' matches argument types %s", name, typeList(args))
		return nil
	}
	if tie {
		b.reporter.Add(errors.New(errors.AmbiguousOverload, pos,
			"call of '%s' with argument types %s is ambiguous", name, typeList(args)).
			WithHint("add explicit casts to select one overload"))
		return nil
	}
	return &cands[bestIdx]
}

// ============================================================================
// Lambda
// ============================================================================

func (b *Binder) checkLambda(e *ast.LambdaExpr) types.Type {
	fn := &types.Func{Return: types.Void}

	b.pushScope()
	for _, p := range e.Params {
		pt := b.resolveType(p.Type)
		fn.Params = append(fn.Params, pt)
		b.declareLocal(p.Name, pt, p)
	}

	prevReturn := b.returnT
	if e.Expr != nil {
		fn.Return = b.checkExpr(e.Expr)
	} else {
		fn.Return = lambdaReturnType(e.Body)
		b.returnT = fn.Return
		b.bindBlock(e.Body)
		b.returnT = prevReturn
	}
	b.popScope()

	return fn
}

// lambdaReturnType 从块体首个带值 return 推断返回类型
//
// 推断只看字面量形态的返回值；更复杂的情况需要显式块内一致的
// return 类型，由 bindBlock 的赋值检查兜底。
func lambdaReturnType(body *ast.BlockStmt) types.Type {
	ret := findReturn(body.Stmts)
	if ret == nil || ret.Value == nil {
		return types.Void
	}
	if t := literalType(ret.Value); t != nil {
		return t
	}
	return types.Void
}

func findReturn(stmts []ast.Statement) *ast.ReturnStmt {
	for _, s := range stmts {
		switch st := s.(type) {
		case *ast.ReturnStmt:
			return st
		case *ast.IfStmt:
			if r := findReturn(st.Then.Stmts); r != nil {
				return r
			}
		case *ast.BlockStmt:
			if r := findReturn(st.Stmts); r != nil {
				return r
			}
		}
	}
	return nil
}

// literalType 字面量的直接类型
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

// ============================================================================
// 赋值兼容检查
// ============================================================================

// checkAssignable 校验 from 可否隐式赋给 to；可空性违规单独成类
func (b *Binder) checkAssignable(from, to types.Type, at ast.Expression) {
	if from == types.Error || to == types.Error {
		return
	}
	if types.Assignable(from, to) {
		return
	}
	if types.Assignable(types.StripNullable(from), to) {
		b.reporter.Add(errors.New(errors.NullSafetyViolation, at.Pos(),
			"'%s' may be null and cannot be used as '%s'", from, to).
			WithHint("guard with 'if (... != null)' to narrow the type"))
		return
	}
	b.reporter.Addf(errors.TypeMismatch, at.Pos(),
		"cannot use '%s' as '%s'", from, to)
}
