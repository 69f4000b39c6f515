package ast

import (
	"strings"

	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
)

// ============================================================================
// AST 节点定义
// ============================================================================
//
// 语法树在解析阶段一次性构建，之后不可变。绑定阶段不回写语法树，
// 类型、符号等推导结果存放在绑定器的旁表（side table）中，
// 以节点指针为键。这保证多个绑定工作协程可以共享同一棵语法树。
//
// ============================================================================

// Node 是所有 AST 节点的基接口
type Node interface {
	Pos() token.Position // 返回节点在源代码中的位置
	End() token.Position // 返回节点结束位置
	String() string      // 返回节点的字符串表示（用于调试）
}

// Expression 表示一个表达式节点
type Expression interface {
	Node
	exprNode()
}

// Statement 表示一个语句节点
type Statement interface {
	Node
	stmtNode()
}

// Declaration 表示一个声明节点
type Declaration interface {
	Node
	declNode()
}

// TypeNode 表示类型标注节点
type TypeNode interface {
	Node
	typeNode()
}

// ============================================================================
// 类型节点
// ============================================================================

// NamedType 具名类型引用 (Int, String, App.Core.Sprite, List<Int>)
//
// Name 为点分限定名原文，具体指向哪个类/接口由绑定阶段解析。
type NamedType struct {
	Token    token.Token // 首个名称 token
	Name     string      // 点分限定名（如 "App.Core.Sprite"）
	TypeArgs []TypeNode  // 泛型类型实参，可为 nil
}

func (t *NamedType) Pos() token.Position { return t.Token.Pos }
func (t *NamedType) End() token.Position {
	if n := len(t.TypeArgs); n > 0 {
		return t.TypeArgs[n-1].End()
	}
	return token.SpanFromToken(t.Token).End
}
func (t *NamedType) String() string {
	if len(t.TypeArgs) == 0 {
		return t.Name
	}
	var args []string
	for _, a := range t.TypeArgs {
		args = append(args, a.String())
	}
	return t.Name + "<" + strings.Join(args, ", ") + ">"
}
func (t *NamedType) typeNode() {}

// NullableType 可空类型 (T?)
type NullableType struct {
	Inner    TypeNode    // 内部类型
	Question token.Token // ? token（后缀）
}

func (t *NullableType) Pos() token.Position { return t.Inner.Pos() }
func (t *NullableType) End() token.Position { return token.SpanFromToken(t.Question).End }
func (t *NullableType) String() string      { return t.Inner.String() + "?" }
func (t *NullableType) typeNode()           {}

// ArrayType 数组类型 (T[])
type ArrayType struct {
	ElementType TypeNode    // 元素类型
	LBracket    token.Token // [ token
	RBracket    token.Token // ] token
}

func (t *ArrayType) Pos() token.Position { return t.ElementType.Pos() }
func (t *ArrayType) End() token.Position { return token.SpanFromToken(t.RBracket).End }
func (t *ArrayType) String() string      { return t.ElementType.String() + "[]" }
func (t *ArrayType) typeNode()           {}

// FunType 函数类型 (fun(Int, String): Bool)
type FunType struct {
	FunToken   token.Token // fun token
	Params     []TypeNode  // 参数类型列表
	ReturnType TypeNode    // 返回类型，可为 nil（视为 Void）
}

func (t *FunType) Pos() token.Position { return t.FunToken.Pos }
func (t *FunType) End() token.Position {
	if t.ReturnType != nil {
		return t.ReturnType.End()
	}
	return token.SpanFromToken(t.FunToken).End
}
func (t *FunType) String() string {
	var params []string
	for _, p := range t.Params {
		params = append(params, p.String())
	}
	result := "fun(" + strings.Join(params, ", ") + ")"
	if t.ReturnType != nil {
		result += ": " + t.ReturnType.String()
	}
	return result
}
func (t *FunType) typeNode() {}

// ============================================================================
// 表达式节点：字面量
// ============================================================================

// Identifier 标识符
type Identifier struct {
	Token token.Token
	Name  string
}

func (e *Identifier) Pos() token.Position { return e.Token.Pos }
func (e *Identifier) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *Identifier) String() string      { return e.Name }
func (e *Identifier) exprNode()           {}

// IntLiteral 整数字面量
type IntLiteral struct {
	Token  token.Token
	Value  int64
	IsLong bool // L 后缀
}

func (e *IntLiteral) Pos() token.Position { return e.Token.Pos }
func (e *IntLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *IntLiteral) String() string      { return e.Token.Literal }
func (e *IntLiteral) exprNode()           {}

// FloatLiteral 浮点数字面量
//
// 无后缀的浮点字面量为 Double；F 后缀为 Float。
type FloatLiteral struct {
	Token   token.Token
	Value   float64
	IsFloat bool // F 后缀（单精度）
}

func (e *FloatLiteral) Pos() token.Position { return e.Token.Pos }
func (e *FloatLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *FloatLiteral) String() string      { return e.Token.Literal }
func (e *FloatLiteral) exprNode()           {}

// CharLiteral 字符字面量（16 位码元）
type CharLiteral struct {
	Token token.Token
	Value uint16
}

func (e *CharLiteral) Pos() token.Position { return e.Token.Pos }
func (e *CharLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *CharLiteral) String() string      { return e.Token.Literal }
func (e *CharLiteral) exprNode()           {}

// StringLiteral 字符串字面量（无插值）
type StringLiteral struct {
	Token token.Token
	Value string
}

func (e *StringLiteral) Pos() token.Position { return e.Token.Pos }
func (e *StringLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *StringLiteral) String() string      { return e.Token.Literal }
func (e *StringLiteral) exprNode()           {}

// InterpStringLiteral 插值字符串
//
// Parts 为文本段（StringLiteral）与表达式段交替的序列，
// 表达式段由解析器对词法段原文重新解析得到。
type InterpStringLiteral struct {
	Token token.Token
	Parts []Expression
}

func (e *InterpStringLiteral) Pos() token.Position { return e.Token.Pos }
func (e *InterpStringLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *InterpStringLiteral) String() string      { return e.Token.Literal }
func (e *InterpStringLiteral) exprNode()           {}

// BoolLiteral 布尔字面量
type BoolLiteral struct {
	Token token.Token
	Value bool
}

func (e *BoolLiteral) Pos() token.Position { return e.Token.Pos }
func (e *BoolLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *BoolLiteral) String() string {
	if e.Value {
		return "true"
	}
	return "false"
}
func (e *BoolLiteral) exprNode() {}

// NullLiteral null 字面量
type NullLiteral struct {
	Token token.Token
}

func (e *NullLiteral) Pos() token.Position { return e.Token.Pos }
func (e *NullLiteral) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *NullLiteral) String() string      { return "null" }
func (e *NullLiteral) exprNode()           {}

// ThisExpr this 表达式
type ThisExpr struct {
	Token token.Token
}

func (e *ThisExpr) Pos() token.Position { return e.Token.Pos }
func (e *ThisExpr) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *ThisExpr) String() string      { return "this" }
func (e *ThisExpr) exprNode()           {}

// SuperExpr super 表达式
type SuperExpr struct {
	Token token.Token
}

func (e *SuperExpr) Pos() token.Position { return e.Token.Pos }
func (e *SuperExpr) End() token.Position { return token.SpanFromToken(e.Token).End }
func (e *SuperExpr) String() string      { return "super" }
func (e *SuperExpr) exprNode()           {}

// ArrayLiteral 数组字面量 [1, 2, 3]
type ArrayLiteral struct {
	LBracket token.Token
	Elements []Expression
	RBracket token.Token
}

func (e *ArrayLiteral) Pos() token.Position { return e.LBracket.Pos }
func (e *ArrayLiteral) End() token.Position { return token.SpanFromToken(e.RBracket).End }
func (e *ArrayLiteral) String() string {
	var elems []string
	for _, elem := range e.Elements {
		elems = append(elems, elem.String())
	}
	return "[" + strings.Join(elems, ", ") + "]"
}
func (e *ArrayLiteral) exprNode() {}

// ============================================================================
// 表达式节点：运算
// ============================================================================

// PrefixExpr 前缀表达式 (!x, -x, ~x)
type PrefixExpr struct {
	Operator token.Token
	Right    Expression
}

func (e *PrefixExpr) Pos() token.Position { return e.Operator.Pos }
func (e *PrefixExpr) End() token.Position { return e.Right.End() }
func (e *PrefixExpr) String() string      { return "(" + e.Operator.Literal + e.Right.String() + ")" }
func (e *PrefixExpr) exprNode()           {}

// InfixExpr 中缀表达式 (a + b, a == b, a && b)
type InfixExpr struct {
	Left     Expression
	Operator token.Token
	Right    Expression
}

func (e *InfixExpr) Pos() token.Position { return e.Left.Pos() }
func (e *InfixExpr) End() token.Position { return e.Right.End() }
func (e *InfixExpr) String() string {
	return "(" + e.Left.String() + " " + e.Operator.Literal + " " + e.Right.String() + ")"
}
func (e *InfixExpr) exprNode() {}

// CastExpr 类型转换 (expr as Type)
type CastExpr struct {
	Expr    Expression
	AsToken token.Token
	Type    TypeNode
}

func (e *CastExpr) Pos() token.Position { return e.Expr.Pos() }
func (e *CastExpr) End() token.Position { return e.Type.End() }
func (e *CastExpr) String() string      { return "(" + e.Expr.String() + " as " + e.Type.String() + ")" }
func (e *CastExpr) exprNode()           {}

// IsExpr 类型检查 (expr is Type)
type IsExpr struct {
	Expr    Expression
	IsToken token.Token
	Type    TypeNode
}

func (e *IsExpr) Pos() token.Position { return e.Expr.Pos() }
func (e *IsExpr) End() token.Position { return e.Type.End() }
func (e *IsExpr) String() string      { return "(" + e.Expr.String() + " is " + e.Type.String() + ")" }
func (e *IsExpr) exprNode()           {}

// ============================================================================
// 表达式节点：访问与调用
// ============================================================================

// MemberExpr 成员访问 (obj.member 或 obj?.member)
type MemberExpr struct {
	Object Expression
	Dot    token.Token // DOT 或 SAFE_DOT
	Safe   bool        // true 表示 ?. 安全访问
	Member *Identifier
}

func (e *MemberExpr) Pos() token.Position { return e.Object.Pos() }
func (e *MemberExpr) End() token.Position { return e.Member.End() }
func (e *MemberExpr) String() string {
	op := "."
	if e.Safe {
		op = "?."
	}
	return e.Object.String() + op + e.Member.String()
}
func (e *MemberExpr) exprNode() {}

// IndexExpr 下标访问 (arr[i])
type IndexExpr struct {
	Object   Expression
	LBracket token.Token
	Index    Expression
	RBracket token.Token
}

func (e *IndexExpr) Pos() token.Position { return e.Object.Pos() }
func (e *IndexExpr) End() token.Position { return token.SpanFromToken(e.RBracket).End }
func (e *IndexExpr) String() string      { return e.Object.String() + "[" + e.Index.String() + "]" }
func (e *IndexExpr) exprNode()           {}

// CallExpr 函数/方法调用
type CallExpr struct {
	Callee   Expression  // 被调用者（标识符或成员访问）
	TypeArgs []TypeNode  // 显式泛型类型实参，可为 nil
	LParen   token.Token // ( token
	Args     []Expression
	RParen   token.Token // ) token
}

func (e *CallExpr) Pos() token.Position { return e.Callee.Pos() }
func (e *CallExpr) End() token.Position { return token.SpanFromToken(e.RParen).End }
func (e *CallExpr) String() string {
	var args []string
	for _, a := range e.Args {
		args = append(args, a.String())
	}
	typeArgs := ""
	if len(e.TypeArgs) > 0 {
		var ts []string
		for _, t := range e.TypeArgs {
			ts = append(ts, t.String())
		}
		typeArgs = "<" + strings.Join(ts, ", ") + ">"
	}
	return e.Callee.String() + typeArgs + "(" + strings.Join(args, ", ") + ")"
}
func (e *CallExpr) exprNode() {}

// NewExpr 对象创建 (new Sprite(1, 2), new List<Int>())
type NewExpr struct {
	NewToken token.Token
	Type     TypeNode // 必须是 NamedType（可带泛型实参）
	LParen   token.Token
	Args     []Expression
	RParen   token.Token
}

func (e *NewExpr) Pos() token.Position { return e.NewToken.Pos }
func (e *NewExpr) End() token.Position { return token.SpanFromToken(e.RParen).End }
func (e *NewExpr) String() string {
	var args []string
	for _, a := range e.Args {
		args = append(args, a.String())
	}
	return "new " + e.Type.String() + "(" + strings.Join(args, ", ") + ")"
}
func (e *NewExpr) exprNode() {}

// NewArrayExpr 数组创建 (new Int[10])
type NewArrayExpr struct {
	NewToken    token.Token
	ElementType TypeNode
	LBracket    token.Token
	Size        Expression
	RBracket    token.Token
}

func (e *NewArrayExpr) Pos() token.Position { return e.NewToken.Pos }
func (e *NewArrayExpr) End() token.Position { return token.SpanFromToken(e.RBracket).End }
func (e *NewArrayExpr) String() string {
	return "new " + e.ElementType.String() + "[" + e.Size.String() + "]"
}
func (e *NewArrayExpr) exprNode() {}

// LambdaExpr lambda 表达式 ((a: Int) => a + 1)
//
// Body 与 Expr 二选一：块体 lambda 用 Body，表达式体 lambda 用 Expr。
type LambdaExpr struct {
	LParen token.Token // 参数列表起始 (
	Params []*Param
	Arrow  token.Token // => token
	Body   *BlockStmt  // 块体，可为 nil
	Expr   Expression  // 表达式体，可为 nil
}

func (e *LambdaExpr) Pos() token.Position { return e.LParen.Pos }
func (e *LambdaExpr) End() token.Position {
	if e.Body != nil {
		return e.Body.End()
	}
	return e.Expr.End()
}
func (e *LambdaExpr) String() string {
	var params []string
	for _, p := range e.Params {
		params = append(params, p.String())
	}
	body := "{...}"
	if e.Expr != nil {
		body = e.Expr.String()
	}
	return "(" + strings.Join(params, ", ") + ") => " + body
}
func (e *LambdaExpr) exprNode() {}

// IfExpr 条件表达式 (if (c) a else b)
//
// 两个分支都是必需的：作为表达式必须产出值，else 不可省略。
type IfExpr struct {
	IfToken token.Token
	Cond    Expression
	Then    Expression
	Else    Expression
}

func (e *IfExpr) Pos() token.Position { return e.IfToken.Pos }
func (e *IfExpr) End() token.Position { return e.Else.End() }
func (e *IfExpr) String() string {
	return "if (" + e.Cond.String() + ") " + e.Then.String() + " else " + e.Else.String()
}
func (e *IfExpr) exprNode() {}

// AssignExpr 赋值表达式 (a = b = 3 中的 b = 3)
//
// 赋值右结合：链式赋值解析为嵌套的 AssignExpr，值为右侧表达式的值。
type AssignExpr struct {
	Target Expression // 标识符、成员访问或下标访问
	Assign token.Token
	Value  Expression
}

func (e *AssignExpr) Pos() token.Position { return e.Target.Pos() }
func (e *AssignExpr) End() token.Position { return e.Value.End() }
func (e *AssignExpr) String() string      { return e.Target.String() + " = " + e.Value.String() }
func (e *AssignExpr) exprNode()           {}

// ============================================================================
// 语句节点
// ============================================================================

// BlockStmt 语句块 { ... }
type BlockStmt struct {
	LBrace token.Token
	Stmts  []Statement
	RBrace token.Token
}

func (s *BlockStmt) Pos() token.Position { return s.LBrace.Pos }
func (s *BlockStmt) End() token.Position { return token.SpanFromToken(s.RBrace).End }
func (s *BlockStmt) String() string      { return "{...}" }
func (s *BlockStmt) stmtNode()           {}

// VarStmt 局部变量声明 (var x: Int = 1; 或 var x = 1;)
type VarStmt struct {
	VarToken token.Token
	Name     *Identifier
	Type     TypeNode   // 显式类型标注，可为 nil（由初始化表达式推断）
	Value    Expression // 初始化表达式，带类型标注时可为 nil
}

func (s *VarStmt) Pos() token.Position { return s.VarToken.Pos }
func (s *VarStmt) End() token.Position {
	if s.Value != nil {
		return s.Value.End()
	}
	if s.Type != nil {
		return s.Type.End()
	}
	return s.Name.End()
}
func (s *VarStmt) String() string {
	result := "var " + s.Name.String()
	if s.Type != nil {
		result += ": " + s.Type.String()
	}
	if s.Value != nil {
		result += " = " + s.Value.String()
	}
	return result + ";"
}
func (s *VarStmt) stmtNode() {}

// ExprStmt 表达式语句
type ExprStmt struct {
	Expr Expression
}

func (s *ExprStmt) Pos() token.Position { return s.Expr.Pos() }
func (s *ExprStmt) End() token.Position { return s.Expr.End() }
func (s *ExprStmt) String() string      { return s.Expr.String() + ";" }
func (s *ExprStmt) stmtNode()           {}

// AssignStmt 赋值语句 (x = e; obj.field = e; arr[i] = e;)
type AssignStmt struct {
	Target Expression // 标识符、成员访问或下标访问
	Assign token.Token
	Value  Expression
}

func (s *AssignStmt) Pos() token.Position { return s.Target.Pos() }
func (s *AssignStmt) End() token.Position { return s.Value.End() }
func (s *AssignStmt) String() string      { return s.Target.String() + " = " + s.Value.String() + ";" }
func (s *AssignStmt) stmtNode()           {}

// IfStmt if 语句
//
// Else 可为 nil、*BlockStmt（else 块）或 *IfStmt（else if 链）。
type IfStmt struct {
	IfToken token.Token
	Cond    Expression
	Then    *BlockStmt
	Else    Statement
}

func (s *IfStmt) Pos() token.Position { return s.IfToken.Pos }
func (s *IfStmt) End() token.Position {
	if s.Else != nil {
		return s.Else.End()
	}
	return s.Then.End()
}
func (s *IfStmt) String() string { return "if (" + s.Cond.String() + ") {...}" }
func (s *IfStmt) stmtNode()      {}

// WhileStmt while 循环
type WhileStmt struct {
	WhileToken token.Token
	Cond       Expression
	Body       *BlockStmt
}

func (s *WhileStmt) Pos() token.Position { return s.WhileToken.Pos }
func (s *WhileStmt) End() token.Position { return s.Body.End() }
func (s *WhileStmt) String() string      { return "while (" + s.Cond.String() + ") {...}" }
func (s *WhileStmt) stmtNode()           {}

// ForStmt 区间循环 (for (i = 0 to 9) { ... })
//
// 循环变量在循环体内有效，区间两端均为含端点。
type ForStmt struct {
	ForToken token.Token
	Var      *Identifier
	From     Expression
	To       Expression
	Body     *BlockStmt
}

func (s *ForStmt) Pos() token.Position { return s.ForToken.Pos }
func (s *ForStmt) End() token.Position { return s.Body.End() }
func (s *ForStmt) String() string {
	return "for (" + s.Var.String() + " = " + s.From.String() + " to " + s.To.String() + ") {...}"
}
func (s *ForStmt) stmtNode() {}

// LoopStmt 无限循环 (loop { ... })
type LoopStmt struct {
	LoopToken token.Token
	Body      *BlockStmt
}

func (s *LoopStmt) Pos() token.Position { return s.LoopToken.Pos }
func (s *LoopStmt) End() token.Position { return s.Body.End() }
func (s *LoopStmt) String() string      { return "loop {...}" }
func (s *LoopStmt) stmtNode()           {}

// SwitchStmt switch 语句
//
// default 分支在语法上与 case 同级，解析后单独存放；
// 绑定阶段校验 default 必须位于末尾以及 case 值不重复。
type SwitchStmt struct {
	SwitchToken token.Token
	Subject     Expression
	LBrace      token.Token
	Cases       []*CaseClause
	RBrace      token.Token
}

func (s *SwitchStmt) Pos() token.Position { return s.SwitchToken.Pos }
func (s *SwitchStmt) End() token.Position { return token.SpanFromToken(s.RBrace).End }
func (s *SwitchStmt) String() string      { return "switch (" + s.Subject.String() + ") {...}" }
func (s *SwitchStmt) stmtNode()           {}

// CaseClause 单个 case 或 default 分支
type CaseClause struct {
	CaseToken token.Token // case 或 default token
	Value     Expression  // case 值，default 分支为 nil
	Colon     token.Token
	Body      []Statement
}

func (c *CaseClause) Pos() token.Position { return c.CaseToken.Pos }
func (c *CaseClause) End() token.Position {
	if n := len(c.Body); n > 0 {
		return c.Body[n-1].End()
	}
	return token.SpanFromToken(c.Colon).End
}
func (c *CaseClause) String() string {
	if c.Value == nil {
		return "default: ..."
	}
	return "case " + c.Value.String() + ": ..."
}

// IsDefault 判断是否为 default 分支
func (c *CaseClause) IsDefault() bool {
	return c.Value == nil
}

// ReturnStmt return 语句
type ReturnStmt struct {
	ReturnToken token.Token
	Value       Expression // 可为 nil（Void 函数）
}

func (s *ReturnStmt) Pos() token.Position { return s.ReturnToken.Pos }
func (s *ReturnStmt) End() token.Position {
	if s.Value != nil {
		return s.Value.End()
	}
	return token.SpanFromToken(s.ReturnToken).End
}
func (s *ReturnStmt) String() string {
	if s.Value != nil {
		return "return " + s.Value.String() + ";"
	}
	return "return;"
}
func (s *ReturnStmt) stmtNode() {}

// ThrowStmt throw 语句
type ThrowStmt struct {
	ThrowToken token.Token
	Value      Expression
}

func (s *ThrowStmt) Pos() token.Position { return s.ThrowToken.Pos }
func (s *ThrowStmt) End() token.Position { return s.Value.End() }
func (s *ThrowStmt) String() string      { return "throw " + s.Value.String() + ";" }
func (s *ThrowStmt) stmtNode()           {}

// BreakStmt break 语句
type BreakStmt struct {
	Token token.Token
}

func (s *BreakStmt) Pos() token.Position { return s.Token.Pos }
func (s *BreakStmt) End() token.Position { return token.SpanFromToken(s.Token).End }
func (s *BreakStmt) String() string      { return "break;" }
func (s *BreakStmt) stmtNode()           {}

// ContinueStmt continue 语句
type ContinueStmt struct {
	Token token.Token
}

func (s *ContinueStmt) Pos() token.Position { return s.Token.Pos }
func (s *ContinueStmt) End() token.Position { return token.SpanFromToken(s.Token).End }
func (s *ContinueStmt) String() string      { return "continue;" }
func (s *ContinueStmt) stmtNode()           {}

// ScopeStmt 替身生效块 (scope { mock X { ... } ... })
//
// 块内先列出 mock 声明，随后是普通语句。mock 声明对块内语句生效，
// 块结束后按 LIFO 顺序失效。
type ScopeStmt struct {
	ScopeToken token.Token
	LBrace     token.Token
	Mocks      []*MockDecl
	Stmts      []Statement
	RBrace     token.Token
}

func (s *ScopeStmt) Pos() token.Position { return s.ScopeToken.Pos }
func (s *ScopeStmt) End() token.Position { return token.SpanFromToken(s.RBrace).End }
func (s *ScopeStmt) String() string      { return "scope {...}" }
func (s *ScopeStmt) stmtNode()           {}

// ============================================================================
// 声明节点
// ============================================================================

// Directive 条件编译指令 (#require NAME / #requireNot NAME)
//
// 指令附着在紧随其后的类或函数声明上。
type Directive struct {
	Token   token.Token // DIRECTIVE token
	Kind    string      // "require" 或 "requireNot"
	Feature *Identifier // 特性名
}

func (d *Directive) Pos() token.Position { return d.Token.Pos }
func (d *Directive) End() token.Position { return d.Feature.End() }
func (d *Directive) String() string      { return "#" + d.Kind + " " + d.Feature.String() }

// IsNegated 判断是否为 #requireNot
func (d *Directive) IsNegated() bool {
	return d.Kind == "requireNot"
}

/// Param 函数参数 (name: Type)
type Param struct {
	Name *Identifier
	Type TypeNode
}

func (p *Param) Pos() token.Position { return p.Name.Pos() }
func (p *Param) End() token.Position { return p.Type.End() }
func (p *Param) String() string      { return p.Name.String() + ": " + p.Type.String() }

// File 单个源文件
type File struct {
	Filename string
	IsTest   bool // 是否位于测试根目录下
	Decls    []Declaration
}

func (f *File) Pos() token.Position {
	if len(f.Decls) > 0 {
		return f.Decls[0].Pos()
	}
	return token.Position{Filename: f.Filename, Line: 1, Column: 1}
}
func (f *File) End() token.Position {
	if n := len(f.Decls); n > 0 {
		return f.Decls[n-1].End()
	}
	return token.Position{Filename: f.Filename, Line: 1, Column: 1}
}
func (f *File) String() string { return "file " + f.Filename }

// NamespaceDecl 命名空间声明 (namespace App.Core { ... })
type NamespaceDecl struct {
	NamespaceToken token.Token
	Name           string // 点分限定名
	LBrace         token.Token
	Decls          []Declaration
	RBrace         token.Token
}

func (d *NamespaceDecl) Pos() token.Position { return d.NamespaceToken.Pos }
func (d *NamespaceDecl) End() token.Position { return token.SpanFromToken(d.RBrace).End }
func (d *NamespaceDecl) String() string      { return "namespace " + d.Name + " {...}" }
func (d *NamespaceDecl) declNode()           {}

// ImportDecl 导入声明 (import Am.Lang)
type ImportDecl struct {
	ImportToken token.Token
	Path        string // 点分命名空间路径
}

func (d *ImportDecl) Pos() token.Position { return d.ImportToken.Pos }
func (d *ImportDecl) End() token.Position { return token.SpanFromToken(d.ImportToken).End }
func (d *ImportDecl) String() string      { return "import " + d.Path }
func (d *ImportDecl) declNode()           {}

// ClassDecl 类声明
type ClassDecl struct {
	Directives []*Directive  // 附着的条件编译指令
	ClassToken token.Token
	Name       *Identifier
	TypeParams []*Identifier // 泛型类型参数 <T, U>，可为 nil
	Supers     []TypeNode    // 冒号后的超类型列表（类在前、接口在后，绑定阶段区分）
	LBrace     token.Token
	Members    []Declaration // FieldDecl 与 FunDecl
	RBrace     token.Token
}

func (d *ClassDecl) Pos() token.Position {
	if len(d.Directives) > 0 {
		return d.Directives[0].Pos()
	}
	return d.ClassToken.Pos
}
func (d *ClassDecl) End() token.Position { return token.SpanFromToken(d.RBrace).End }
func (d *ClassDecl) String() string      { return "class " + d.Name.String() + " {...}" }
func (d *ClassDecl) declNode()           {}

// InterfaceDecl 接口声明
//
// 接口方法无函数体。
type InterfaceDecl struct {
	Directives     []*Directive
	InterfaceToken token.Token
	Name           *Identifier
	TypeParams     []*Identifier
	Supers         []TypeNode // 父接口列表
	LBrace         token.Token
	Methods        []*FunDecl
	RBrace         token.Token
}

func (d *InterfaceDecl) Pos() token.Position {
	if len(d.Directives) > 0 {
		return d.Directives[0].Pos()
	}
	return d.InterfaceToken.Pos
}
func (d *InterfaceDecl) End() token.Position { return token.SpanFromToken(d.RBrace).End }
func (d *InterfaceDecl) String() string      { return "interface " + d.Name.String() + " {...}" }
func (d *InterfaceDecl) declNode()           {}

// FunDecl 函数/方法声明
//
// 顶层函数、类方法、接口方法（Body 为 nil）和测试函数共用此节点。
type FunDecl struct {
	Directives []*Directive
	FunToken   token.Token // fun 或 test token
	Name       *Identifier
	Params     []*Param
	ReturnType TypeNode   // 可为 nil（视为 Void）
	Body       *BlockStmt // 接口方法为 nil
	IsStatic   bool
	IsSuspend  bool
	IsTest     bool // test name() { ... } 声明
}

func (d *FunDecl) Pos() token.Position {
	if len(d.Directives) > 0 {
		return d.Directives[0].Pos()
	}
	return d.FunToken.Pos
}
func (d *FunDecl) End() token.Position {
	if d.Body != nil {
		return d.Body.End()
	}
	if d.ReturnType != nil {
		return d.ReturnType.End()
	}
	return d.Name.End()
}
func (d *FunDecl) String() string {
	var params []string
	for _, p := range d.Params {
		params = append(params, p.String())
	}
	kw := "fun"
	if d.IsTest {
		kw = "test"
	}
	result := kw + " " + d.Name.String() + "(" + strings.Join(params, ", ") + ")"
	if d.ReturnType != nil {
		result += ": " + d.ReturnType.String()
	}
	return result
}
func (d *FunDecl) declNode() {}

// FieldDecl 字段声明（类成员变量，static 字段为类级存储）
type FieldDecl struct {
	VarToken token.Token
	Name     *Identifier
	Type     TypeNode   // 可为 nil（由初始化表达式推断）
	Value    Expression // 初始化表达式，可为 nil
	IsStatic bool
}

func (d *FieldDecl) Pos() token.Position { return d.VarToken.Pos }
func (d *FieldDecl) End() token.Position {
	if d.Value != nil {
		return d.Value.End()
	}
	if d.Type != nil {
		return d.Type.End()
	}
	return d.Name.End()
}
func (d *FieldDecl) String() string {
	result := "var " + d.Name.String()
	if d.Type != nil {
		result += ": " + d.Type.String()
	}
	if d.Value != nil {
		result += " = " + d.Value.String()
	}
	return result
}
func (d *FieldDecl) declNode() {}

// MockDecl 类替身声明 (mock X { ...class body... })
//
// 仅出现在 scope 块内。替身类体与普通类体同构。
type MockDecl struct {
	MockToken token.Token
	Name      *Identifier   // 被替换的类名
	LBrace    token.Token
	Members   []Declaration // FieldDecl 与 FunDecl
	RBrace    token.Token
}

func (d *MockDecl) Pos() token.Position { return d.MockToken.Pos }
func (d *MockDecl) End() token.Position { return token.SpanFromToken(d.RBrace).End }
func (d *MockDecl) String() string      { return "mock " + d.Name.String() + " {...}" }
func (d *MockDecl) declNode()           {}
