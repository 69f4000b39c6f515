package cgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 表达式
// ============================================================================
//
// genExpr 返回一个可多次求值无副作用的 C 表达式片段：含副作用或
// 交付所有权的子表达式（调用、new、插值、数组字面量）先被提升为
// 临时变量并登记作用域释放，片段里只剩临时变量名。

// exprType 表达式的绑定类型（单态化上下文内做类型参数替换）
func (g *Generator) exprType(e ast.Expression) types.Type {
	return g.subst(g.bindings.TypeOf(e))
}

func (g *Generator) genExpr(e ast.Expression) (string, error) {
	if g.exprType(e).Kind() == types.KindError {
		return "", fmt.Errorf("internal: error-typed expression %s reached code generation", e.String())
	}

	switch ex := e.(type) {
	case *ast.IntLiteral:
		if ex.IsLong {
			return fmt.Sprintf("INT64_C(%d)", ex.Value), nil
		}
		return strconv.FormatInt(ex.Value, 10), nil

	case *ast.FloatLiteral:
		code := strconv.FormatFloat(ex.Value, 'g', -1, 64)
		if !strings.ContainsAny(code, ".eE") {
			code += ".0"
		}
		if ex.IsFloat {
			code += "f"
		}
		return code, nil

	case *ast.CharLiteral:
		return strconv.FormatUint(uint64(ex.Value), 10), nil

	case *ast.BoolLiteral:
		if ex.Value {
			return "true", nil
		}
		return "false", nil

	case *ast.NullLiteral:
		return "NULL", nil

	case *ast.StringLiteral:
		return g.internLit(ex.Value), nil

	case *ast.InterpStringLiteral:
		return g.genInterp(ex)

	case *ast.ThisExpr:
		return "self", nil

	case *ast.Identifier:
		return g.genIdentifier(ex)

	case *ast.ArrayLiteral:
		return g.genArrayLiteral(ex)

	case *ast.PrefixExpr:
		return g.genPrefix(ex)

	case *ast.InfixExpr:
		return g.genInfix(ex)

	case *ast.CastExpr:
		return g.genCast(ex)

	case *ast.IsExpr:
		return g.genIs(ex)

	case *ast.MemberExpr:
		return g.genMember(ex)

	case *ast.IndexExpr:
		return g.genIndex(ex)

	case *ast.CallExpr:
		return g.genCall(ex)

	case *ast.NewExpr:
		return g.genNew(ex)

	case *ast.NewArrayExpr:
		return g.genNewArray(ex)

	case *ast.LambdaExpr:
		return g.genLambda(ex)

	case *ast.IfExpr:
		return g.genIfExpr(ex)

	case *ast.AssignExpr:
		return g.genAssignExpr(ex)
	}
	return "", fmt.Errorf("internal: unknown expression %T", e)
}

// genCoerced 求值并转换到目标类型
func (g *Generator) genCoerced(e ast.Expression, want types.Type) (string, error) {
	code, err := g.genExpr(e)
	if err != nil {
		return "", err
	}
	return g.coerce(code, g.exprType(e), want)
}

// internLit 字符串字面量驻留：同一单元内相同值共享一个静态变量
//
// 变量在单元初始化函数里赋值一次，此处返回的片段无分配无副作用。
func (g *Generator) internLit(value string) string {
	if name, ok := g.lits[value]; ok {
		return name
	}
	name := fmt.Sprintf("__lit%d", len(g.litOrder))
	g.lits[value] = name
	g.litOrder = append(g.litOrder, value)
	return name
}

// cString C 字符串字面量转义
func cString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			if c < 0x20 || c >= 0x7f {
				fmt.Fprintf(&sb, `\%03o`, c)
			} else {
				sb.WriteByte(c)
			}
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// ============================================================================
// 名称与成员
// ============================================================================

func (g *Generator) genIdentifier(e *ast.Identifier) (string, error) {
	if local, ok := g.bindings.Locals[e]; ok {
		return g.narrowed(e.Name, g.subst(local.Type), g.exprType(e))
	}
	if field, ok := g.bindings.FieldRefs[e]; ok {
		code := "self->" + e.Name
		if field.IsStatic {
			code = g.staticFieldCName(field)
		}
		return g.narrowed(code, g.subst(field.Type), g.exprType(e))
	}
	return "", fmt.Errorf("internal: unbound identifier %s", e.Name)
}

// narrowed 声明类型与绑定类型不一致时补上空值拆包或向下转换
//
// 绑定侧的流敏感收窄只改类型视图，这里把视图差异落到 C 表示上。
func (g *Generator) narrowed(code string, declared, bound types.Type) (string, error) {
	if types.Same(declared, bound) {
		return code, nil
	}

	if nl, ok := declared.(*types.Nullable); ok {
		inner := g.subst(nl.Elem)
		if prim, ok := inner.(*types.Primitive); ok && prim.Kind() != types.KindString {
			if types.Same(inner, bound) {
				return "(" + code + ").v", nil
			}
		}
		declared = inner
	}

	declClass, dok := types.StripNullable(declared).(*types.Named)
	boundClass, bok := types.StripNullable(bound).(*types.Named)
	if dok && bok && !boundClass.IsInterface {
		if declClass.IsInterface {
			return fmt.Sprintf("((struct %s*)(%s).self)", g.classCName(boundClass), code), nil
		}
		if g.classCName(declClass) != g.classCName(boundClass) {
			return fmt.Sprintf("((struct %s*)(%s))", g.classCName(boundClass), code), nil
		}
	}
	return code, nil
}

func (g *Generator) genMember(e *ast.MemberExpr) (string, error) {
	if field, ok := g.bindings.FieldRefs[e]; ok && field.IsStatic {
		return g.narrowed(g.staticFieldCName(field), g.subst(field.Type), g.exprType(e))
	}
	if e.Safe {
		return g.genSafeMember(e)
	}

	objType := g.exprType(e.Object)
	if field, ok := g.bindings.FieldRefs[e]; ok {
		recv, err := g.genReceiver(e.Object, field.Owner)
		if err != nil {
			return "", err
		}
		return g.narrowed("("+recv+")->"+e.Member.Name, g.subst(field.Type), g.exprType(e))
	}

	// 内建 length
	obj, err := g.genExpr(e.Object)
	if err != nil {
		return "", err
	}
	switch types.StripNullable(objType).(type) {
	case *types.Array:
		return fmt.Sprintf("amrt_array_len(%s)", obj), nil
	}
	if prim, ok := types.StripNullable(objType).(*types.Primitive); ok && prim.Kind() == types.KindString {
		return fmt.Sprintf("amrt_str_len(%s)", obj), nil
	}
	return "", fmt.Errorf("internal: unbound member access %s", e.String())
}

// genSafeMember a?.b 安全访问：接收者提升后按空值分派
func (g *Generator) genSafeMember(e *ast.MemberExpr) (string, error) {
	obj, err := g.genExpr(e.Object)
	if err != nil {
		return "", err
	}
	objType := g.exprType(e.Object)
	recv := g.tmp()
	decl, err := g.cDecl(objType, recv)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", decl, obj)

	var value string
	var valueType types.Type
	if field, ok := g.bindings.FieldRefs[e]; ok {
		value = recv + "->" + e.Member.Name
		valueType = g.subst(field.Type)
	} else if prim, ok := types.StripNullable(objType).(*types.Primitive); ok && prim.Kind() == types.KindString {
		value = fmt.Sprintf("amrt_str_len(%s)", recv)
		valueType = types.Int
	} else if _, ok := types.StripNullable(objType).(*types.Array); ok {
		value = fmt.Sprintf("amrt_array_len(%s)", recv)
		valueType = types.Int
	} else {
		return "", fmt.Errorf("internal: unbound member access %s", e.String())
	}

	resType := g.exprType(e)
	wrapped, err := g.coerce(value, valueType, resType)
	if err != nil {
		return "", err
	}
	none, err := g.coerce("NULL", types.Null, resType)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("((%s == NULL) ? %s : %s)", recv, none, wrapped), nil
}

// genReceiver 接收者表达式转换为目标类的指针
func (g *Generator) genReceiver(obj ast.Expression, owner *types.Named) (string, error) {
	if _, ok := obj.(*ast.SuperExpr); ok {
		return fmt.Sprintf("((struct %s*)self)", g.classCName(owner)), nil
	}
	code, err := g.genExpr(obj)
	if err != nil {
		return "", err
	}
	return g.coerce(code, g.exprType(obj), owner)
}

func (g *Generator) genIndex(e *ast.IndexExpr) (string, error) {
	obj, err := g.genExpr(e.Object)
	if err != nil {
		return "", err
	}
	idx, err := g.genExpr(e.Index)
	if err != nil {
		return "", err
	}
	objType := types.StripNullable(g.exprType(e.Object))
	if arr, ok := objType.(*types.Array); ok {
		elemT, err := g.cType(g.subst(arr.Elem))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((%s*)(%s)->data)[%s]", elemT, obj, idx), nil
	}
	return fmt.Sprintf("amrt_str_at(%s, %s)", obj, idx), nil
}

// ============================================================================
// 运算符
// ============================================================================

func (g *Generator) genPrefix(e *ast.PrefixExpr) (string, error) {
	code, err := g.genExpr(e.Right)
	if err != nil {
		return "", err
	}
	switch e.Operator.Type {
	case token.NOT:
		return "(!(" + code + "))", nil
	case token.MINUS:
		return "(-(" + code + "))", nil
	case token.BIT_NOT:
		return "(~(" + code + "))", nil
	}
	return "", fmt.Errorf("internal: unknown prefix operator %s", e.Operator.Literal)
}

func (g *Generator) genInfix(e *ast.InfixExpr) (string, error) {
	switch e.Operator.Type {
	case token.AND, token.OR:
		return g.genShortCircuit(e)
	case token.EQ, token.NE:
		return g.genEquality(e)
	case token.PLUS:
		if prim, ok := types.StripNullable(g.exprType(e)).(*types.Primitive); ok && prim.Kind() == types.KindString {
			return g.genConcat(e)
		}
	}

	left, err := g.genExpr(e.Left)
	if err != nil {
		return "", err
	}
	right, err := g.genExpr(e.Right)
	if err != nil {
		return "", err
	}
	op := cOperator(e.Operator.Type)
	if op == "" {
		return "", fmt.Errorf("internal: unknown operator %s", e.Operator.Literal)
	}
	return fmt.Sprintf("(%s %s %s)", left, op, right), nil
}

func cOperator(t token.TokenType) string {
	switch t {
	case token.PLUS:
		return "+"
	case token.MINUS:
		return "-"
	case token.STAR:
		return "*"
	case token.SLASH:
		return "/"
	case token.PERCENT:
		return "%"
	case token.LT:
		return "<"
	case token.LE:
		return "<="
	case token.GT:
		return ">"
	case token.GE:
		return ">="
	case token.BIT_AND:
		return "&"
	case token.BIT_OR:
		return "|"
	case token.BIT_XOR:
		return "^"
	case token.LEFT_SHIFT:
		return "<<"
	case token.RIGHT_SHIFT:
		return ">>"
	}
	return ""
}

// genShortCircuit && 与 || 降级为条件赋值，右侧的副作用保持短路
func (g *Generator) genShortCircuit(e *ast.InfixExpr) (string, error) {
	left, err := g.genExpr(e.Left)
	if err != nil {
		return "", err
	}
	result := g.tmp()
	g.w.line("bool %s = %s;", result, left)

	if e.Operator.Type == token.AND {
		g.w.line("if (%s) {", result)
	} else {
		g.w.line("if (!%s) {", result)
	}
	g.w.indent()
	g.pushScope(false)
	right, err := g.genExpr(e.Right)
	if err == nil {
		g.w.line("%s = %s;", result, right)
	}
	g.popScope()
	g.w.dedent()
	g.w.line("}")
	return result, err
}

// genIfExpr 条件表达式降级为条件赋值，分支各占一个子作用域
//
// 结果临时变量在外层声明；引用类型的结果在分支内额外持有一次并
// 在外层登记释放，分支里提升的临时变量随分支作用域结束释放。
func (g *Generator) genIfExpr(e *ast.IfExpr) (string, error) {
	t := g.exprType(e)

	cond, err := g.genExpr(e.Cond)
	if err != nil {
		return "", err
	}

	result := g.tmp()
	decl, err := g.cDecl(t, result)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", decl, g.zeroValue(t))

	g.w.line("if (%s) {", cond)
	if err := g.genIfExprBranch(e.Then, t, result); err != nil {
		return "", err
	}
	g.w.line("} else {")
	if err := g.genIfExprBranch(e.Else, t, result); err != nil {
		return "", err
	}
	g.w.line("}")

	g.registerCleanup(g.releaseStmt(t, result))
	return result, nil
}

func (g *Generator) genIfExprBranch(branch ast.Expression, t types.Type, result string) error {
	g.w.indent()
	g.pushScope(false)
	code, err := g.genCoerced(branch, t)
	if err == nil {
		g.w.line("%s = %s;", result, code)
		if retain := g.retainStmt(t, result); retain != "" {
			g.w.line("%s", retain)
		}
	}
	g.popScope()
	g.w.dedent()
	return err
}

// genAssignExpr 链式赋值中的内层赋值，片段为存入目标后的值
//
// 返回的临时变量是借用：目标左值持有一份引用，为外层表达式保活。
func (g *Generator) genAssignExpr(e *ast.AssignExpr) (string, error) {
	lhs, lhsType, err := g.genAssignTarget(e.Target)
	if err != nil {
		return "", err
	}
	code, err := g.genCoerced(e.Value, lhsType)
	if err != nil {
		return "", err
	}

	if g.retainStmt(lhsType, "") == "" {
		g.w.line("%s = %s;", lhs, code)
		return lhs, nil
	}

	// 先持有新值再释放旧值，自赋值安全
	tmp := g.tmp()
	decl, err := g.cDecl(lhsType, tmp)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", decl, code)
	g.w.line("%s", g.retainStmt(lhsType, tmp))
	g.w.line("%s", g.releaseStmt(lhsType, lhs))
	g.w.line("%s = %s;", lhs, tmp)
	return tmp, nil
}
func (g *Generator) genEquality(e *ast.InfixExpr) (string, error) {
	neg := e.Operator.Type == token.NE

	if isNullLiteral(e.Left) || isNullLiteral(e.Right) {
		operand := e.Left
		if isNullLiteral(operand) {
			operand = e.Right
		}
		code, err := g.genExpr(operand)
		if err != nil {
			return "", err
		}
		return g.nullCheck(code, g.exprType(operand), neg)
	}

	left, err := g.genExpr(e.Left)
	if err != nil {
		return "", err
	}
	right, err := g.genExpr(e.Right)
	if err != nil {
		return "", err
	}
	lt := g.exprType(e.Left)
	rt := g.exprType(e.Right)

	if isStringType(lt) && isStringType(rt) {
		cmp := fmt.Sprintf("amrt_str_eq(%s, %s)", left, right)
		if neg {
			return "(!" + cmp + ")", nil
		}
		return "(" + cmp + ")", nil
	}

	lOpt, rOpt := isOptPrim(lt), isOptPrim(rt)
	switch {
	case lOpt && rOpt:
		cmp := fmt.Sprintf("((%s).has == (%s).has && (!(%s).has || (%s).v == (%s).v))", left, right, left, right, left)
		if neg {
			return "(!" + cmp + ")", nil
		}
		return cmp, nil
	case lOpt:
		return optVsPlain(left, right, neg), nil
	case rOpt:
		return optVsPlain(right, left, neg), nil
	}

	if isClassType(lt) || isClassType(rt) {
		left = "(void*)(" + left + ")"
		right = "(void*)(" + right + ")"
	}
	op := "=="
	if neg {
		op = "!="
	}
	return fmt.Sprintf("(%s %s %s)", left, op, right), nil
}

func optVsPlain(opt, plain string, neg bool) string {
	cmp := fmt.Sprintf("((%s).has && (%s).v == (%s))", opt, opt, plain)
	if neg {
		return "(!" + cmp + ")"
	}
	return cmp
}

// nullCheck 与 null 字面量的比较；neg 为 true 表示 !=
func (g *Generator) nullCheck(code string, t types.Type, neg bool) (string, error) {
	op := "=="
	if neg {
		op = "!="
	}
	if isOptPrim(t) {
		if neg {
			return fmt.Sprintf("((%s).has)", code), nil
		}
		return fmt.Sprintf("(!(%s).has)", code), nil
	}
	if named, ok := types.StripNullable(t).(*types.Named); ok && named.IsInterface {
		return fmt.Sprintf("((%s).self %s NULL)", code, op), nil
	}
	return fmt.Sprintf("((%s) %s NULL)", code, op), nil
}

func isNullLiteral(e ast.Expression) bool {
	_, ok := e.(*ast.NullLiteral)
	return ok
}

func isStringType(t types.Type) bool {
	prim, ok := types.StripNullable(t).(*types.Primitive)
	return ok && prim.Kind() == types.KindString
}

func isOptPrim(t types.Type) bool {
	nl, ok := t.(*types.Nullable)
	if !ok {
		return false
	}
	prim, ok := nl.Elem.(*types.Primitive)
	return ok && prim.Kind() != types.KindString
}

func isClassType(t types.Type) bool {
	named, ok := types.StripNullable(t).(*types.Named)
	return ok && !named.IsInterface
}

// ============================================================================
// 类型转换
// ============================================================================

func (g *Generator) genCast(e *ast.CastExpr) (string, error) {
	code, err := g.genExpr(e.Expr)
	if err != nil {
		return "", err
	}
	from := g.exprType(e.Expr)
	to := g.exprType(e)

	// 可空基本类型拆包
	if isOptPrim(from) && !isOptPrim(to) {
		code = "(" + code + ").v"
		from = types.StripNullable(from)
	}

	fromClass, fok := types.StripNullable(from).(*types.Named)
	toClass, tok := types.StripNullable(to).(*types.Named)
	if tok && !toClass.IsInterface {
		// 向下转换要做运行时检查
		if fok && fromClass.IsInterface {
			return fmt.Sprintf("((struct %s*)amrt_cast((%s).self, &%s_type))",
				g.classCName(toClass), code, g.classCName(toClass)), nil
		}
		if fok && !fromClass.IsSubclassOf(toClass) {
			return fmt.Sprintf("((struct %s*)amrt_cast(%s, &%s_type))",
				g.classCName(toClass), code, g.classCName(toClass)), nil
		}
	}
	return g.coerce(code, from, to)
}

func (g *Generator) genIs(e *ast.IsExpr) (string, error) {
	target, ok := g.bindings.IsTargets[e]
	if !ok {
		return "", fmt.Errorf("internal: unresolved is target in %s", e.String())
	}
	named, ok := types.StripNullable(g.subst(target)).(*types.Named)
	if !ok || named.IsInterface {
		return "", fmt.Errorf("internal: is target %s is not a class", target)
	}
	code, err := g.genExpr(e.Expr)
	if err != nil {
		return "", err
	}
	objType := g.exprType(e.Expr)
	if src, ok := types.StripNullable(objType).(*types.Named); ok && src.IsInterface {
		code = "(" + code + ").self"
	}
	return fmt.Sprintf("amrt_isa((void*)(%s), &%s_type)", code, g.classCName(named)), nil
}

// coerce 把 from 类型的值片段转换为 to 类型的表示
func (g *Generator) coerce(code string, from, to types.Type) (string, error) {
	from = g.subst(from)
	to = g.subst(to)
	if from.Kind() == types.KindError || to.Kind() == types.KindError {
		return "", fmt.Errorf("internal: error type reached code generation")
	}
	if types.Same(from, to) && !g.classReprDiffers(from, to) {
		return code, nil
	}

	// null 字面量
	if from.Kind() == types.KindNull {
		return g.coerce(g.nullValueFor(to), to, to)
	}

	// 目标可空
	if nl, ok := to.(*types.Nullable); ok {
		inner := g.subst(nl.Elem)
		if prim, ok := inner.(*types.Primitive); ok && prim.Kind() != types.KindString {
			if isOptPrim(from) {
				return code, nil
			}
			wrapped, err := g.coerce(code, from, inner)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("AMRT_SOME(%s, %s)", optSuffix(prim), wrapped), nil
		}
		return g.coerce(code, types.StripNullable(from), inner)
	}

	// 数值拓宽
	fp, fok := from.(*types.Primitive)
	tp, tok := to.(*types.Primitive)
	if fok && tok {
		if fp.Kind() == tp.Kind() {
			return code, nil
		}
		ct, err := g.cType(to)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("((%s)(%s))", ct, code), nil
	}

	fromNamed, fok2 := types.StripNullable(from).(*types.Named)
	toNamed, tok2 := to.(*types.Named)
	if tok2 {
		if toNamed.IsInterface {
			if !fok2 {
				return "", fmt.Errorf("internal: cannot convert %s to interface %s", from, to)
			}
			if fromNamed.IsInterface {
				if g.classCName(fromNamed) == g.classCName(toNamed) {
					return code, nil
				}
				return "", fmt.Errorf("internal: interface upcast %s to %s is not supported", from, to)
			}
			return fmt.Sprintf("((%s){ (void*)(%s), &%s })",
				g.classCName(toNamed), code, g.vtableCName(fromNamed, toNamed)), nil
		}
		if fok2 && g.classCName(fromNamed) != g.classCName(toNamed) {
			return fmt.Sprintf("((struct %s*)(%s))", g.classCName(toNamed), code), nil
		}
	}
	return code, nil
}

// classReprDiffers 同一语言类型但 C 表示不同（替身类与原类同名）
func (g *Generator) classReprDiffers(from, to types.Type) bool {
	f, fok := types.StripNullable(from).(*types.Named)
	t, tok := types.StripNullable(to).(*types.Named)
	return fok && tok && g.classCName(f) != g.classCName(t)
}

// nullValueFor null 字面量在目标类型下的 C 零值
func (g *Generator) nullValueFor(to types.Type) string {
	if isOptPrim(to) {
		nl := to.(*types.Nullable)
		return fmt.Sprintf("AMRT_NONE(%s)", optSuffix(nl.Elem.(*types.Primitive)))
	}
	if named, ok := types.StripNullable(to).(*types.Named); ok && named.IsInterface {
		return fmt.Sprintf("((%s){ NULL, NULL })", g.classCName(named))
	}
	return "NULL"
}

// ============================================================================
// 调用
// ============================================================================

func (g *Generator) genCall(e *ast.CallExpr) (string, error) {
	callee, ok := g.bindings.Calls[e]
	if !ok {
		return "", fmt.Errorf("internal: unbound call %s", e.String())
	}
	switch {
	case callee.Value:
		return g.genValueCall(e)
	case callee.Func != nil:
		return g.genFuncCall(e, callee.Func)
	case callee.Method != nil:
		return g.genMethodCall(e, callee.Method)
	}
	return "", fmt.Errorf("internal: empty callee for %s", e.String())
}

func (g *Generator) genFuncCall(e *ast.CallExpr, fn *symbols.Function) (string, error) {
	args, err := g.genArgs(e.Args, fn.Params)
	if err != nil {
		return "", err
	}
	return g.finishCall(fmt.Sprintf("%s(%s)", g.funcCName(fn), args), fn.Return)
}

func (g *Generator) genValueCall(e *ast.CallExpr) (string, error) {
	fnType, ok := types.StripNullable(g.calleeValueType(e.Callee)).(*types.Func)
	if !ok {
		return "", fmt.Errorf("internal: value call on non-function %s", e.Callee.String())
	}
	target, err := g.genExpr(e.Callee)
	if err != nil {
		return "", err
	}
	args, err := g.genArgs(e.Args, fnType.Params)
	if err != nil {
		return "", err
	}
	return g.finishCall(fmt.Sprintf("(%s)(%s)", target, args), fnType.Return)
}

// calleeValueType 函数值调用目标的声明类型
func (g *Generator) calleeValueType(callee ast.Expression) types.Type {
	switch c := callee.(type) {
	case *ast.Identifier:
		if local, ok := g.bindings.Locals[c]; ok {
			return g.subst(local.Type)
		}
		if field, ok := g.bindings.FieldRefs[c]; ok {
			return g.subst(field.Type)
		}
	case *ast.MemberExpr:
		if field, ok := g.bindings.FieldRefs[c]; ok {
			return g.subst(field.Type)
		}
	}
	return g.exprType(callee)
}

func (g *Generator) genMethodCall(e *ast.CallExpr, m *types.Method) (string, error) {
	member, isMember := e.Callee.(*ast.MemberExpr)

	// 静态方法：无接收者
	if m.IsStatic {
		impl := g.concreteStatic(m)
		args, err := g.genArgs(e.Args, impl.Params)
		if err != nil {
			return "", err
		}
		return g.finishCall(fmt.Sprintf("%s(%s)", g.methodCName(impl), args), impl.Return)
	}

	var recvExpr ast.Expression
	var recvType types.Type
	if isMember {
		recvExpr = member.Object
		recvType = g.exprType(member.Object)
	} else {
		recvType = g.instSelfType()
	}

	impl := m
	if recvNamed, ok := types.StripNullable(recvType).(*types.Named); ok {
		impl = g.concreteMethod(m, recvNamed)
	}

	// 接口派发
	if impl.Owner.IsInterface {
		return g.genIfaceCall(e, member, impl, recvType)
	}

	if isMember && member.Safe {
		return g.genSafeCall(e, impl, recvType, recvExpr)
	}

	var recv string
	var err error
	if recvExpr == nil {
		recv, err = g.coerce("self", recvType, impl.Owner)
	} else {
		recv, err = g.genReceiver(recvExpr, impl.Owner)
	}
	if err != nil {
		return "", err
	}

	args, err := g.genArgs(e.Args, impl.Params)
	if err != nil {
		return "", err
	}
	callArgs := recv
	if args != "" {
		callArgs += ", " + args
	}
	return g.finishCall(fmt.Sprintf("%s(%s)", g.methodCName(impl), callArgs), impl.Return)
}

// instSelfType 当前方法的 self 类型
func (g *Generator) instSelfType() types.Type {
	if g.curClass != nil {
		return g.curClass
	}
	return types.Error
}

// genIfaceCall 经胖指针派发表调用接口方法
func (g *Generator) genIfaceCall(e *ast.CallExpr, member *ast.MemberExpr, m *types.Method, recvType types.Type) (string, error) {
	var recvCode string
	var err error
	if member != nil {
		recvCode, err = g.genExpr(member.Object)
	} else {
		recvCode = "self"
	}
	if err != nil {
		return "", err
	}
	fat, err := g.coerce(recvCode, recvType, m.Owner)
	if err != nil {
		return "", err
	}

	recv := g.tmp()
	g.w.line("%s %s = %s;", g.classCName(m.Owner), recv, fat)

	args, err := g.genArgs(e.Args, m.Params)
	if err != nil {
		return "", err
	}
	callArgs := recv + ".self"
	if args != "" {
		callArgs += ", " + args
	}

	if member != nil && member.Safe {
		return g.genConditionalCall(
			fmt.Sprintf("%s.self != NULL", recv),
			fmt.Sprintf("%s.vt->%s(%s)", recv, m.Name, callArgs),
			m.Return, g.exprType(e))
	}
	return g.finishCall(fmt.Sprintf("%s.vt->%s(%s)", recv, m.Name, callArgs), m.Return)
}

// genSafeCall a?.m() 只有接收者非空才调用
func (g *Generator) genSafeCall(e *ast.CallExpr, m *types.Method, recvType types.Type, recvExpr ast.Expression) (string, error) {
	obj, err := g.genExpr(recvExpr)
	if err != nil {
		return "", err
	}
	recv := g.tmp()
	decl, err := g.cDecl(recvType, recv)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", decl, obj)

	casted, err := g.coerce(recv, recvType, m.Owner)
	if err != nil {
		return "", err
	}
	args, err := g.genArgs(e.Args, m.Params)
	if err != nil {
		return "", err
	}
	callArgs := casted
	if args != "" {
		callArgs += ", " + args
	}
	return g.genConditionalCall(
		fmt.Sprintf("%s != NULL", recv),
		fmt.Sprintf("%s(%s)", g.methodCName(m), callArgs),
		m.Return, g.exprType(e))
}

// genConditionalCall 条件成立才执行调用，结果折入可空表示
func (g *Generator) genConditionalCall(cond, call string, retType, resType types.Type) (string, error) {
	ret := g.subst(retType)
	if ret == types.Void {
		g.w.line("if (%s) {", cond)
		g.w.indent()
		g.w.line("%s;", call)
		g.w.dedent()
		g.w.line("}")
		return "", nil
	}

	result := g.tmp()
	decl, err := g.cDecl(resType, result)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", decl, g.nullValueFor(resType))
	g.w.line("if (%s) {", cond)
	g.w.indent()
	wrapped, err := g.coerce(call, ret, resType)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", result, wrapped)
	g.w.dedent()
	g.w.line("}")
	if rel := g.releaseStmt(resType, result); rel != "" {
		g.registerCleanup(rel)
	}
	return result, nil
}

// genArgs 按形参类型逐个转换实参
func (g *Generator) genArgs(args []ast.Expression, params []types.Type) (string, error) {
	parts := make([]string, 0, len(args))
	for i, arg := range args {
		want := types.Error
		if i < len(params) {
			want = g.subst(params[i])
		}
		code, err := g.genCoerced(arg, want)
		if err != nil {
			return "", err
		}
		parts = append(parts, code)
	}
	return strings.Join(parts, ", "), nil
}

// finishCall 托管返回值的调用提升为帧内临时变量
func (g *Generator) finishCall(call string, retType types.Type) (string, error) {
	ret := g.subst(retType)
	if ret == types.Void {
		return call, nil
	}
	if g.releaseStmt(ret, "") == "" {
		return call, nil
	}
	tmp := g.tmp()
	decl, err := g.cDecl(ret, tmp)
	if err != nil {
		return "", err
	}
	g.w.line("%s = %s;", decl, call)
	g.registerCleanup(g.releaseStmt(ret, tmp))
	return tmp, nil
}

// concreteMethod 把泛型声明上的方法映射到接收者实例上的对应方法
func (g *Generator) concreteMethod(m *types.Method, recv *types.Named) *types.Method {
	if recv == nil {
		return m
	}
	for cur := recv; cur != nil; cur = cur.Super {
		for _, mm := range cur.Methods {
			if mm.Decl != nil && mm.Decl == m.Decl {
				return mm
			}
			if m.Decl == nil && mm.Decl == nil && m.IsCtor && mm.IsCtor {
				return mm
			}
		}
		for _, iface := range cur.Interfaces {
			if found := g.concreteMethod(m, iface); found != m {
				return found
			}
		}
	}
	return m
}

// concreteStatic 静态方法的单态化映射
func (g *Generator) concreteStatic(m *types.Method) *types.Method {
	if g.instSelf == nil || g.instSelf.Generic == nil || m.Owner != g.instSelf.Generic {
		return m
	}
	return g.concreteMethod(m, g.instSelf)
}

// ============================================================================
// 对象与数组构造
// ============================================================================

func (g *Generator) genNew(e *ast.NewExpr) (string, error) {
	ctor, ok := g.bindings.Ctors[e]
	if !ok {
		return "", fmt.Errorf("internal: unbound constructor for %s", e.String())
	}
	impl := ctor
	if named, ok := types.StripNullable(g.exprType(e)).(*types.Named); ok {
		impl = g.concreteMethod(ctor, named)
	}
	args, err := g.genArgs(e.Args, impl.Params)
	if err != nil {
		return "", err
	}
	tmp := g.tmp()
	cname := g.classCName(impl.Owner)
	g.w.line("struct %s* %s = %s(%s);", cname, tmp, g.methodCName(impl), args)
	g.registerCleanup(fmt.Sprintf("amrt_release(%s);", tmp))
	return tmp, nil
}

func (g *Generator) genNewArray(e *ast.NewArrayExpr) (string, error) {
	arr, ok := types.StripNullable(g.exprType(e)).(*types.Array)
	if !ok {
		return "", fmt.Errorf("internal: new-array expression is not array-typed")
	}
	elem := g.subst(arr.Elem)
	size, err := g.genExpr(e.Size)
	if err != nil {
		return "", err
	}
	return g.allocArray(elem, fmt.Sprintf("(int32_t)(%s)", size))
}

func (g *Generator) allocArray(elem types.Type, size string) (string, error) {
	elemT, err := g.cType(elem)
	if err != nil {
		return "", err
	}
	tmp := g.tmp()
	g.w.line("amrt_array* %s = amrt_array_new((int32_t)sizeof(%s), %s, %v);",
		tmp, elemT, size, g.isRefType(elem))
	g.registerCleanup(fmt.Sprintf("amrt_release(%s);", tmp))
	return tmp, nil
}

func (g *Generator) genArrayLiteral(e *ast.ArrayLiteral) (string, error) {
	arr, ok := types.StripNullable(g.exprType(e)).(*types.Array)
	if !ok {
		return "", fmt.Errorf("internal: array literal is not array-typed")
	}
	elem := g.subst(arr.Elem)
	tmp, err := g.allocArray(elem, strconv.Itoa(len(e.Elements)))
	if err != nil {
		return "", err
	}
	elemT, err := g.cType(elem)
	if err != nil {
		return "", err
	}
	for i, el := range e.Elements {
		code, err := g.genCoerced(el, elem)
		if err != nil {
			return "", err
		}
		slot := fmt.Sprintf("((%s*)%s->data)[%d]", elemT, tmp, i)
		g.w.line("%s = %s;", slot, code)
		if retain := g.retainStmt(elem, slot); retain != "" {
			g.w.line("%s", retain)
		}
	}
	return tmp, nil
}

func (g *Generator) genLambda(e *ast.LambdaExpr) (string, error) {
	fn, ok := types.StripNullable(g.exprType(e)).(*types.Func)
	if !ok {
		return "", fmt.Errorf("internal: lambda is not function-typed")
	}
	g.lambdaSeq++
	name := fmt.Sprintf("__lambda%d", g.lambdaSeq)
	g.lambdas = append(g.lambdas, &lambdaWork{name: name, fn: fn, decl: e})
	return name, nil
}

// ============================================================================
// 字符串插值与连接
// ============================================================================

// genInterp 插值字符串降级为增长缓冲的追加序列
func (g *Generator) genInterp(e *ast.InterpStringLiteral) (string, error) {
	return g.buildString(e.Parts)
}

// genConcat String 的 + 连接，复用插值的缓冲降级
func (g *Generator) genConcat(e *ast.InfixExpr) (string, error) {
	lt := g.exprType(e.Left)
	rt := g.exprType(e.Right)
	if isStringType(lt) && !types.IsNullable(lt) && isStringType(rt) && !types.IsNullable(rt) {
		left, err := g.genExpr(e.Left)
		if err != nil {
			return "", err
		}
		right, err := g.genExpr(e.Right)
		if err != nil {
			return "", err
		}
		tmp := g.tmp()
		g.w.line("amrt_string* %s = amrt_str_concat(%s, %s);", tmp, left, right)
		g.registerCleanup(fmt.Sprintf("amrt_release(%s);", tmp))
		return tmp, nil
	}
	return g.buildString([]ast.Expression{e.Left, e.Right})
}

func (g *Generator) buildString(parts []ast.Expression) (string, error) {
	sb := g.tmp()
	g.w.line("amrt_sb %s;", sb)
	g.w.line("amrt_sb_init(&%s);", sb)
	for _, part := range parts {
		if err := g.appendValue(sb, part); err != nil {
			return "", err
		}
	}
	tmp := g.tmp()
	g.w.line("amrt_string* %s = amrt_sb_build(&%s);", tmp, sb)
	g.registerCleanup(fmt.Sprintf("amrt_release(%s);", tmp))
	return tmp, nil
}

// appendValue 按表达式类型发射一条缓冲追加语句
func (g *Generator) appendValue(sb string, e ast.Expression) error {
	if lit, ok := e.(*ast.StringLiteral); ok {
		g.w.line("amrt_sb_cstr(&%s, %s);", sb, cString(lit.Value))
		return nil
	}
	code, err := g.genExpr(e)
	if err != nil {
		return err
	}

	t := g.exprType(e)
	if isOptPrim(t) {
		inner := t.(*types.Nullable).Elem.(*types.Primitive)
		g.w.line("if ((%s).has) {", code)
		g.w.indent()
		g.appendPrim(sb, inner, "("+code+").v")
		g.w.dedent()
		g.w.line("} else {")
		g.w.indent()
		g.w.line(`amrt_sb_cstr(&%s, "null");`, sb)
		g.w.dedent()
		g.w.line("}")
		return nil
	}

	switch tt := types.StripNullable(t).(type) {
	case *types.Primitive:
		if tt.Kind() == types.KindString {
			g.w.line("amrt_sb_str(&%s, %s);", sb, code)
		} else {
			g.appendPrim(sb, tt, code)
		}
	case *types.Named:
		if tt.IsInterface {
			g.w.line("amrt_sb_obj(&%s, (%s).self);", sb, code)
			return nil
		}
		if str := g.toStringMethod(tt); str != nil {
			call, err := g.finishCall(fmt.Sprintf("%s(%s)", g.methodCName(str), code), types.String)
			if err != nil {
				return err
			}
			g.w.line("amrt_sb_str(&%s, %s);", sb, call)
		} else {
			g.w.line("amrt_sb_obj(&%s, (void*)(%s));", sb, code)
		}
	default:
		g.w.line("amrt_sb_obj(&%s, (void*)(%s));", sb, code)
	}
	return nil
}

func (g *Generator) appendPrim(sb string, prim *types.Primitive, code string) {
	switch prim.Kind() {
	case types.KindBool:
		g.w.line("amrt_sb_bool(&%s, %s);", sb, code)
	case types.KindChar:
		g.w.line("amrt_sb_char(&%s, %s);", sb, code)
	case types.KindInt, types.KindLong:
		g.w.line("amrt_sb_int(&%s, (int64_t)(%s));", sb, code)
	case types.KindFloat, types.KindDouble:
		g.w.line("amrt_sb_double(&%s, (double)(%s));", sb, code)
	}
}

// toStringMethod 查找无参 toString(): String
func (g *Generator) toStringMethod(named *types.Named) *types.Method {
	for cur := named; cur != nil; cur = cur.Super {
		for _, m := range cur.Methods {
			if m.Name == "toString" && !m.IsStatic && !m.IsCtor && len(m.Params) == 0 && m.Return == types.String {
				return m
			}
		}
	}
	return nil
}
