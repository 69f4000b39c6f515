package binder

import (
	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/errors"
	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 语句绑定
// ============================================================================

func (b *Binder) bindBlock(block *ast.BlockStmt) {
	b.pushScope()
	for _, stmt := range block.Stmts {
		b.bindStmt(stmt)
	}
	b.popScope()
}

func (b *Binder) bindStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		b.bindBlock(s)

	case *ast.VarStmt:
		b.bindVarStmt(s)

	case *ast.ExprStmt:
		b.checkExpr(s.Expr)

	case *ast.AssignStmt:
		b.bindAssign(s)

	case *ast.IfStmt:
		b.bindIf(s)

	case *ast.WhileStmt:
		b.bindWhile(s)

	case *ast.ForStmt:
		b.bindFor(s)

	case *ast.LoopStmt:
		b.loops++
		b.bindBlock(s.Body)
		b.loops--

	case *ast.SwitchStmt:
		b.bindSwitch(s)

	case *ast.ReturnStmt:
		b.bindReturn(s)

	case *ast.ThrowStmt:
		b.bindThrow(s)

	case *ast.BreakStmt:
		if b.loops == 0 {
			b.reporter.Addf(errors.SyntaxError, s.Pos(), "'break' outside a loop")
		}

	case *ast.ContinueStmt:
		if b.loops == 0 {
			b.reporter.Addf(errors.SyntaxError, s.Pos(), "'continue' outside a loop")
		}

	case *ast.ScopeStmt:
		b.bindScope(s)
	}
}

func (b *Binder) bindVarStmt(s *ast.VarStmt) {
	var declared types.Type

	switch {
	case s.Type != nil:
		declared = b.resolveType(s.Type)
		if s.Value != nil {
			got := b.checkExpr(s.Value)
			b.checkAssignable(got, declared, s.Value)
		}

	case s.Value != nil:
		declared = b.checkExpr(s.Value)
		if declared == types.Null {
			b.reporter.Add(errors.New(errors.TypeMismatch, s.Value.Pos(),
				"cannot infer the type of '%s' from a bare null", s.Name.Name).
				WithHint("annotate the variable with a nullable type, e.g. 'var x: String? = null'"))
			declared = types.Error
		}

	default:
		declared = types.Error
	}

	b.declareLocal(s.Name, declared, s)
}

func (b *Binder) bindAssign(s *ast.AssignStmt) {
	target := b.checkAssignTarget(s.Target)
	got := b.checkExpr(s.Value)
	if target != types.Error {
		b.checkAssignable(got, target, s.Value)
	}

	// 赋值废止目标路径（及其延伸）已建立的收窄
	if path, ok := pathOf(s.Target); ok {
		b.invalidateFacts(path)
	}
}

// checkAssignExpr 检查链式赋值中的内层赋值，表达式的类型即目标类型
func (b *Binder) checkAssignExpr(e *ast.AssignExpr) types.Type {
	target := b.checkAssignTarget(e.Target)
	got := b.checkExpr(e.Value)
	if target != types.Error {
		b.checkAssignable(got, target, e.Value)
	}

	if path, ok := pathOf(e.Target); ok {
		b.invalidateFacts(path)
	}

	return target
}

// checkAssignTarget 求赋值目标的声明类型（不应用流收窄）
func (b *Binder) checkAssignTarget(target ast.Expression) types.Type {
	switch t := target.(type) {
	case *ast.Identifier:
		if local := b.lookupLocal(t.Name); local != nil {
			b.bindings.Locals[t] = local
			b.bindings.ExprTypes[t] = local.Type
			return local.Type
		}
		if b.class != nil {
			if field := b.class.LookupField(t.Name); field != nil {
				if !field.IsStatic && b.static {
					b.reporter.Addf(errors.UnresolvedSymbol, t.Pos(),
						"instance field '%s' is not available in a static context", t.Name)
					return types.Error
				}
				b.bindings.FieldRefs[t] = field
				fieldType := b.table.Canonicalize(field.Type)
				b.bindings.ExprTypes[t] = fieldType
				return fieldType
			}
		}
		b.reporter.Addf(errors.UnresolvedSymbol, t.Pos(), "unresolved name '%s'", t.Name)
		return types.Error

	case *ast.MemberExpr:
		if t.Safe {
			b.reporter.Addf(errors.SyntaxError, t.Dot.Pos,
				"the safe access operator '?.' cannot appear in an assignment target")
			return types.Error
		}
		return b.checkExpr(t)

	case *ast.IndexExpr:
		return b.checkExpr(t)
	}

	b.reporter.Addf(errors.SyntaxError, target.Pos(), "invalid assignment target")
	return types.Error
}

func (b *Binder) bindIf(s *ast.IfStmt) {
	whenTrue, whenFalse := b.checkCond(s.Cond)

	b.pushFacts(whenTrue)
	b.bindBlock(s.Then)
	b.popFacts()

	if s.Else != nil {
		b.pushFacts(whenFalse)
		b.bindStmt(s.Else)
		b.popFacts()
	}
}

func (b *Binder) bindWhile(s *ast.WhileStmt) {
	whenTrue, _ := b.checkCond(s.Cond)

	b.loops++
	b.pushFacts(whenTrue)
	b.bindBlock(s.Body)
	b.popFacts()
	b.loops--
}

func (b *Binder) bindFor(s *ast.ForStmt) {
	from := b.checkExpr(s.From)
	to := b.checkExpr(s.To)

	loopVar := types.Type(types.Int)
	switch {
	case from == types.Error || to == types.Error:
		loopVar = types.Error
	case !types.IsNumeric(from) || !types.IsNumeric(to):
		b.reporter.Addf(errors.TypeMismatch, s.From.Pos(),
			"range bounds must be numeric, got '%s' and '%s'", from, to)
		loopVar = types.Error
	default:
		loopVar = wider(from, to)
	}

	b.loops++
	b.pushScope()
	b.declareLocal(s.Var, loopVar, s)
	b.bindBlock(s.Body)
	b.popScope()
	b.loops--
}

func (b *Binder) bindReturn(s *ast.ReturnStmt) {
	if s.Value == nil {
		if b.returnT != nil && !types.Same(b.returnT, types.Void) && b.returnT != types.Error {
			b.reporter.Addf(errors.TypeMismatch, s.Pos(),
				"missing return value; function returns '%s'", b.returnT)
		}
		return
	}

	got := b.checkExpr(s.Value)
	if b.returnT == nil || types.Same(b.returnT, types.Void) {
		b.reporter.Addf(errors.TypeMismatch, s.Value.Pos(),
			"unexpected return value in a Void function")
		return
	}
	b.checkAssignable(got, b.returnT, s.Value)
}

func (b *Binder) bindThrow(s *ast.ThrowStmt) {
	got := b.checkExpr(s.Value)
	if got == types.Error {
		return
	}
	if _, ok := types.StripNullable(got).(*types.Named); !ok {
		b.reporter.Addf(errors.TypeMismatch, s.Value.Pos(),
			"throw requires an object, got '%s'", got)
	}
}

// ============================================================================
// 条件与流收窄
// ============================================================================

// checkCond 检查 Bool 条件并返回真/假两分支各自生效的收窄事实
//
// 识别的形态：`x != null` / `x == null`、`x is T`、`!cond` 以及
// `&&`/`||` 的组合。`&&` 右操作数在左侧真事实生效的前提下检查，
// 因此 `x != null && x.f()` 可以一气呵成。
func (b *Binder) checkCond(cond ast.Expression) (whenTrue, whenFalse flowFacts) {
	switch e := cond.(type) {
	case *ast.PrefixExpr:
		if e.Operator.Type == token.NOT {
			t, f := b.checkCond(e.Right)
			b.bindings.ExprTypes[cond] = types.Bool
			return f, t
		}

	case *ast.InfixExpr:
		switch e.Operator.Type {
		case token.AND:
			t1, _ := b.checkCond(e.Left)
			b.pushFacts(t1)
			t2, _ := b.checkCond(e.Right)
			b.popFacts()
			b.bindings.ExprTypes[cond] = types.Bool
			return mergeFacts(t1, t2), nil

		case token.OR:
			_, f1 := b.checkCond(e.Left)
			b.pushFacts(f1)
			_, f2 := b.checkCond(e.Right)
			b.popFacts()
			b.bindings.ExprTypes[cond] = types.Bool
			return nil, mergeFacts(f1, f2)

		case token.NE, token.EQ:
			got := b.checkExpr(cond)
			if got != types.Error && !types.Same(got, types.Bool) {
				b.reporter.Addf(errors.TypeMismatch, cond.Pos(),
					"condition must be Bool, got '%s'", got)
			}
			return b.nullCompareFacts(e)
		}

	case *ast.IsExpr:
		b.checkExpr(cond)
		if path, ok := pathOf(e.Expr); ok {
			if narrowed := b.bindings.IsTargets[e]; narrowed != nil && narrowed != types.Error {
				return flowFacts{path: narrowed}, nil
			}
		}
		return nil, nil
	}

	got := b.checkExpr(cond)
	if got != types.Error && !types.Same(got, types.Bool) {
		b.reporter.Addf(errors.TypeMismatch, cond.Pos(),
			"condition must be Bool, got '%s'", got)
	}
	return nil, nil
}

// nullCompareFacts 从 `x != null` / `x == null` 提取收窄事实
func (b *Binder) nullCompareFacts(e *ast.InfixExpr) (whenTrue, whenFalse flowFacts) {
	var operand ast.Expression
	if _, ok := e.Right.(*ast.NullLiteral); ok {
		operand = e.Left
	} else if _, ok := e.Left.(*ast.NullLiteral); ok {
		operand = e.Right
	} else {
		return nil, nil
	}

	path, ok := pathOf(operand)
	if !ok {
		return nil, nil
	}
	declared := b.bindings.TypeOf(operand)
	if declared == types.Error || !types.IsNullable(declared) {
		return nil, nil
	}

	narrowed := flowFacts{path: types.StripNullable(declared)}
	if e.Operator.Type == token.NE {
		return narrowed, nil
	}
	return nil, narrowed
}

// ============================================================================
// switch 校验
// ============================================================================

// bindSwitch 绑定 switch：主语与 case 值类型兼容、default 置尾、
// 常量 case 不重复
func (b *Binder) bindSwitch(s *ast.SwitchStmt) {
	subject := b.checkExpr(s.Subject)

	seenDefault := false
	seenValues := map[interface{}]token.Position{}

	for _, clause := range s.Cases {
		if clause.IsDefault() {
			if seenDefault {
				b.reporter.Addf(errors.InvalidSwitchOrdering, clause.Pos(),
					"duplicate 'default' clause")
			}
			seenDefault = true
		} else {
			if seenDefault {
				b.reporter.Addf(errors.InvalidSwitchOrdering, clause.Pos(),
					"'case' clause after 'default'")
			}

			caseType := b.checkExpr(clause.Value)
			if subject != types.Error && caseType != types.Error &&
				!types.ExplicitCastable(caseType, subject) &&
				!types.ExplicitCastable(subject, caseType) {
				b.reporter.Addf(errors.TypeMismatch, clause.Value.Pos(),
					"case value type '%s' is not comparable with subject type '%s'",
					caseType, subject)
			}

			if key, constant := caseConstant(clause.Value); constant {
				if prev, dup := seenValues[key]; dup {
					b.reporter.Add(errors.New(errors.DuplicateCaseValue, clause.Value.Pos(),
						"duplicate case value %s", clause.Value.String()).
						WithHint("first occurrence is at " + prev.String()))
				} else {
					seenValues[key] = clause.Value.Pos()
				}
			}
		}

		// 每个分支独立作用域，分支体不隐式贯穿
		b.pushScope()
		for _, stmt := range clause.Body {
			b.bindStmt(stmt)
		}
		b.popScope()
	}
}

// caseConstant 求常量 case 值的查重键；非常量返回 false
func caseConstant(expr ast.Expression) (interface{}, bool) {
	switch e := expr.(type) {
	case *ast.IntLiteral:
		return e.Value, true
	case *ast.CharLiteral:
		// Char 与 Int 共享数值域，统一到 int64 查重
		return int64(e.Value), true
	case *ast.StringLiteral:
		return e.Value, true
	case *ast.BoolLiteral:
		return e.Value, true
	case *ast.PrefixExpr:
		if e.Operator.Type == token.MINUS {
			if lit, ok := e.Right.(*ast.IntLiteral); ok {
				return -lit.Value, true
			}
		}
	}
	return nil, false
}

// ============================================================================
// scope / mock 块
// ============================================================================

// bindScope 绑定替身生效块
//
// 块内先为每个 mock 构建替身类描述符并压入覆盖层，随后在覆盖层
// 生效的前提下绑定语句；块结束时按 LIFO 弹出，外层解析完全复原。
func (b *Binder) bindScope(s *ast.ScopeStmt) {
	overlay := make(map[string]*types.Named, len(s.Mocks))

	for _, mock := range s.Mocks {
		named := b.buildMock(mock)
		if named == nil {
			continue
		}
		b.bindings.Mocks[mock] = named
		overlay[mock.Name.Name] = named
	}

	b.pushMocks(overlay)
	b.pushScope()
	for _, stmt := range s.Stmts {
		b.bindStmt(stmt)
	}
	b.popScope()
	b.popMocks()
}

// buildMock 为 mock 声明构建替身类描述符并绑定其方法体
//
// 替身沿用原类的超类与接口（调用方仍可把替身当原类的亚型使用），
// 成员则完全来自 mock 体。
func (b *Binder) buildMock(mock *ast.MockDecl) *types.Named {
	orig, ok := b.resolveClassName(mock.Name.Name)
	if !ok {
		b.reporter.Addf(errors.UnresolvedSymbol, mock.Name.Pos(),
			"cannot mock unknown class '%s'", mock.Name.Name)
		return nil
	}
	if orig.IsInterface {
		b.reporter.Addf(errors.TypeMismatch, mock.Name.Pos(),
			"cannot mock interface '%s'", orig.FQN)
		return nil
	}
	if len(orig.TypeParams) > 0 {
		b.reporter.Addf(errors.TypeMismatch, mock.Name.Pos(),
			"cannot mock generic class '%s'", orig.FQN)
		return nil
	}

	named := &types.Named{
		FQN:        orig.FQN,
		Super:      orig.Super,
		Interfaces: orig.Interfaces,
		Decl:       orig.Decl,
	}

	fieldIndex := 0
	var methodDecls []*ast.FunDecl
	for _, member := range mock.Members {
		switch m := member.(type) {
		case *ast.FieldDecl:
			var fieldType types.Type
			if m.Type != nil {
				fieldType = b.resolveType(m.Type)
			} else if t := literalType(m.Value); t != nil {
				fieldType = t
			} else {
				b.reporter.Addf(errors.TypeMismatch, m.Name.Pos(),
					"field '%s' requires a type annotation", m.Name.Name)
				fieldType = types.Error
			}
			field := &types.Field{
				Name:     m.Name.Name,
				Type:     fieldType,
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
			method := &types.Method{
				Name:      m.Name.Name,
				IsStatic:  m.IsStatic,
				IsSuspend: m.IsSuspend,
				Decl:      m,
				Owner:     named,
			}
			for _, p := range m.Params {
				method.Params = append(method.Params, b.resolveType(p.Type))
				method.ParamNames = append(method.ParamNames, p.Name.Name)
			}
			if m.Name.Name == named.Name() {
				method.IsCtor = true
				method.Return = named
			} else if m.ReturnType != nil {
				method.Return = b.resolveType(m.ReturnType)
			} else {
				method.Return = types.Void
			}
			named.Methods = append(named.Methods, method)
			methodDecls = append(methodDecls, m)
		}
	}

	if len(named.Ctors()) == 0 {
		named.Methods = append(named.Methods, &types.Method{
			Name:   named.Name(),
			Return: named,
			IsCtor: true,
			Owner:  named,
		})
	}

	// 替身方法体在替身类上下文中绑定
	prevClass, prevStatic, prevSuspend, prevReturn := b.class, b.static, b.suspend, b.returnT
	b.class = named
	for _, decl := range methodDecls {
		b.bindMethodBody(named, decl)
	}
	b.class, b.static, b.suspend, b.returnT = prevClass, prevStatic, prevSuspend, prevReturn

	return named
}
