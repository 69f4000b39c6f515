package token

import "fmt"

// ============================================================================
// Token 类型定义
// ============================================================================
//
// TokenType 使用 iota 自动编号，按类别分组：
// 1. 特殊标记（ILLEGAL, EOF, DIRECTIVE）
// 2. 字面量（标识符、数字、字符、字符串）
// 3. 运算符（算术、比较、逻辑、位运算）
// 4. 分隔符（括号、逗号、分号等）
// 5. 关键字（声明、控制流、测试等）
//
// 类型名（Int, String, ...）不是关键字：关键字集合全部小写，
// 类型名按普通标识符词法处理，由绑定器解析。
//
// ============================================================================

// TokenType 表示 Token 的类型
type TokenType int

const (
	// ----------------------------------------------------------
	// 特殊标记
	// ----------------------------------------------------------
	ILLEGAL   TokenType = iota // 非法字符（InvalidToken 标记）
	EOF                        // 文件结束
	DIRECTIVE                  // 条件编译指令 #require / #requireNot

	// ----------------------------------------------------------
	// 字面量
	// ----------------------------------------------------------
	IDENT         // 标识符（变量名、函数名、类型名）
	INT           // 整数字面量（十进制/十六进制/二进制）
	FLOAT         // 浮点数字面量（可带指数与 F/D 后缀）
	CHAR          // 字符字面量（16 位码元）
	STRING        // 字符串字面量（无插值）
	INTERP_STRING // 带插值段的字符串字面量

	// ----------------------------------------------------------
	// 算术运算符
	// ----------------------------------------------------------
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	ASSIGN  // =

	// ----------------------------------------------------------
	// 比较运算符
	// ----------------------------------------------------------
	EQ // ==
	NE // !=
	LT // <
	LE // <=
	GT // >
	GE // >=

	// ----------------------------------------------------------
	// 逻辑运算符
	// ----------------------------------------------------------
	AND // &&
	OR  // ||
	NOT // !

	// ----------------------------------------------------------
	// 位运算符
	// ----------------------------------------------------------
	BIT_AND     // &
	BIT_OR      // |
	BIT_XOR     // ^
	BIT_NOT     // ~
	LEFT_SHIFT  // <<
	RIGHT_SHIFT // >>

	// ----------------------------------------------------------
	// 分隔符
	// ----------------------------------------------------------
	LPAREN       // (
	RPAREN       // )
	LBRACE       // {
	RBRACE       // }
	LBRACKET     // [
	RBRACKET     // ]
	COMMA        // ,
	DOT          // .
	SEMICOLON    // ;
	COLON        // :
	QUESTION     // ?
	ARROW        // -> (函数类型返回值)
	DOUBLE_ARROW // => (lambda)
	SAFE_DOT     // ?. (安全调用)

	// ----------------------------------------------------------
	// 关键字
	// ----------------------------------------------------------
	keyword_beg // 关键字起始标记（不是实际 token）
	NAMESPACE   // namespace
	IMPORT      // import
	CLASS       // class
	INTERFACE   // interface
	FUN         // fun
	VAR         // var
	STATIC      // static
	NEW         // new
	IF          // if
	ELSE        // else
	WHILE       // while
	FOR         // for
	TO          // to (区间循环上界)
	LOOP        // loop (无限循环)
	SWITCH      // switch
	CASE        // case
	DEFAULT     // default
	RETURN      // return
	THROW       // throw
	BREAK       // break
	CONTINUE    // continue
	NULL        // null
	TRUE        // true
	FALSE       // false
	THIS        // this
	SUPER       // super
	IS          // is (类型检查)
	AS          // as (类型转换)
	TEST        // test (测试函数声明)
	MOCK        // mock (类替身声明)
	SCOPE       // scope (替身生效块)
	SUSPEND     // suspend (挂起函数修饰)
	keyword_end // 关键字结束标记（不是实际 token）
)

// ============================================================================
// Token 类型名称映射
// ============================================================================

var tokenNames = map[TokenType]string{
	ILLEGAL:   "ILLEGAL",
	EOF:       "EOF",
	DIRECTIVE: "DIRECTIVE",

	IDENT:         "IDENT",
	INT:           "INT",
	FLOAT:         "FLOAT",
	CHAR:          "CHAR",
	STRING:        "STRING",
	INTERP_STRING: "INTERP_STRING",

	PLUS:    "+",
	MINUS:   "-",
	STAR:    "*",
	SLASH:   "/",
	PERCENT: "%",
	ASSIGN:  "=",

	EQ: "==",
	NE: "!=",
	LT: "<",
	LE: "<=",
	GT: ">",
	GE: ">=",

	AND: "&&",
	OR:  "||",
	NOT: "!",

	BIT_AND:     "&",
	BIT_OR:      "|",
	BIT_XOR:     "^",
	BIT_NOT:     "~",
	LEFT_SHIFT:  "<<",
	RIGHT_SHIFT: ">>",

	LPAREN:       "(",
	RPAREN:       ")",
	LBRACE:       "{",
	RBRACE:       "}",
	LBRACKET:     "[",
	RBRACKET:     "]",
	COMMA:        ",",
	DOT:          ".",
	SEMICOLON:    ";",
	COLON:        ":",
	QUESTION:     "?",
	ARROW:        "->",
	DOUBLE_ARROW: "=>",
	SAFE_DOT:     "?.",

	NAMESPACE: "namespace",
	IMPORT:    "import",
	CLASS:     "class",
	INTERFACE: "interface",
	FUN:       "fun",
	VAR:       "var",
	STATIC:    "static",
	NEW:       "new",
	IF:        "if",
	ELSE:      "else",
	WHILE:     "while",
	FOR:       "for",
	TO:        "to",
	LOOP:      "loop",
	SWITCH:    "switch",
	CASE:      "case",
	DEFAULT:   "default",
	RETURN:    "return",
	THROW:     "throw",
	BREAK:     "break",
	CONTINUE:  "continue",
	NULL:      "null",
	TRUE:      "true",
	FALSE:     "false",
	THIS:      "this",
	SUPER:     "super",
	IS:        "is",
	AS:        "as",
	TEST:      "test",
	MOCK:      "mock",
	SCOPE:     "scope",
	SUSPEND:   "suspend",
}

// ============================================================================
// 关键字查找表
// ============================================================================
//
// keywords 将关键字字符串映射到对应的 TokenType。
// 关键字全部小写、大小写敏感；"Int" 不是关键字，"int" 也不是。
//
// ============================================================================

var keywords = map[string]TokenType{
	"namespace": NAMESPACE,
	"import":    IMPORT,
	"class":     CLASS,
	"interface": INTERFACE,
	"fun":       FUN,
	"var":       VAR,
	"static":    STATIC,
	"new":       NEW,
	"if":        IF,
	"else":      ELSE,
	"while":     WHILE,
	"for":       FOR,
	"to":        TO,
	"loop":      LOOP,
	"switch":    SWITCH,
	"case":      CASE,
	"default":   DEFAULT,
	"return":    RETURN,
	"throw":     THROW,
	"break":     BREAK,
	"continue":  CONTINUE,
	"null":      NULL,
	"true":      TRUE,
	"false":     FALSE,
	"this":      THIS,
	"super":     SUPER,
	"is":        IS,
	"as":        AS,
	"test":      TEST,
	"mock":      MOCK,
	"scope":     SCOPE,
	"suspend":   SUSPEND,
}

// LookupIdent 查找标识符是否为关键字
//
// 优化说明:
//   - 对于短关键字（2-4字符），使用 switch 语句直接匹配
//   - 短字符串的 switch 比 map 查找更快，因为避免了哈希计算
//   - 较长的关键字仍使用 map 查找
func LookupIdent(ident string) TokenType {
	switch len(ident) {
	case 2:
		switch ident {
		case "if":
			return IF
		case "to":
			return TO
		case "is":
			return IS
		case "as":
			return AS
		}
	case 3:
		switch ident {
		case "fun":
			return FUN
		case "var":
			return VAR
		case "new":
			return NEW
		case "for":
			return FOR
		}
	case 4:
		switch ident {
		case "else":
			return ELSE
		case "loop":
			return LOOP
		case "case":
			return CASE
		case "null":
			return NULL
		case "true":
			return TRUE
		case "this":
			return THIS
		case "test":
			return TEST
		case "mock":
			return MOCK
		}
	}

	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsKeyword 判断 TokenType 是否为关键字
func IsKeyword(t TokenType) bool {
	return t > keyword_beg && t < keyword_end
}

// String 返回 TokenType 的字符串表示
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// ============================================================================
// Position - 源代码位置
// ============================================================================

// Position 表示源代码中的位置
type Position struct {
	Filename string // 文件名
	Line     int    // 行号 (从1开始)
	Column   int    // 列号 (从1开始)
	Offset   int    // 字节偏移量 (从0开始)
}

// String 返回位置的字符串表示，格式为 "filename:line:column"
func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", p.Filename, p.Line, p.Column)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// IsValid 检查位置是否有效
func (p Position) IsValid() bool {
	return p.Line > 0
}

// ============================================================================
// Span - 源代码范围
// ============================================================================

// Span 表示源代码中的一个范围（开始到结束）
//
// 用于错误报告和代码高亮，可以精确定位问题代码的起止位置。
type Span struct {
	Start Position // 开始位置
	End   Position // 结束位置
}

// NewSpan 创建新的 Span
func NewSpan(start, end Position) Span {
	return Span{Start: start, End: end}
}

// SpanFromToken 从 Token 创建 Span
func SpanFromToken(t Token) Span {
	endPos := t.Pos
	endPos.Column += len(t.Literal)
	endPos.Offset += len(t.Literal)
	return Span{Start: t.Pos, End: endPos}
}

// ============================================================================
// 插值段
// ============================================================================

// InterpSegment 插值字符串的一个段
//
// 字符串在词法阶段被切分为交替的文本段与表达式段：
//   - "$name" 捕获一个紧随的标识符
//   - "${expr}" 捕获花括号配对的表达式区域（原文保留，语法阶段再按代码重新词法分析）
//
// 对于纯文本段 Expr 为空串，对于表达式段 Text 为空串。
// 所有段按顺序拼接（表达式段还原为 "$Expr" 或 "${Expr}" 占位）可重建原始字面量文本。
type InterpSegment struct {
	Text    string   // 文本段内容（已处理转义）
	Raw     string   // 文本段原文（未处理转义，用于还原）
	Expr    string   // 表达式段源码
	Simple  bool     // 表达式段是否为 $name 简写形式
	ExprPos Position // 表达式段在源文件中的起始位置
}

// IsExpr 判断该段是否为表达式段
func (s InterpSegment) IsExpr() bool {
	return s.Expr != ""
}

// ============================================================================
// Token - 词法单元
// ============================================================================

// Token 表示一个词法单元
//
// Token 是词法分析的产物，包含：
// - Type: token 类型（如 IDENT, INT, FUN 等）
// - Literal: 原始字面量文本
// - Value: 解析后的值（数字、字符串、插值段等）
// - Pos: 在源代码中的位置
//
// Token 一经产出即不可变。
type Token struct {
	Type    TokenType   // Token 类型
	Literal string      // 原始字面量
	Value   interface{} // 解析后的值 (int64 / float64 / uint16 / string / []InterpSegment)
	Pos     Position    // 位置信息
}

// String 返回 Token 的字符串表示（用于调试）
func (t Token) String() string {
	switch t.Type {
	case IDENT, INT, FLOAT, CHAR, STRING, INTERP_STRING, DIRECTIVE:
		return fmt.Sprintf("%s(%s) at %s", t.Type, t.Literal, t.Pos)
	default:
		return fmt.Sprintf("%s at %s", t.Type, t.Pos)
	}
}

// New 创建一个新的 Token
func New(tokenType TokenType, literal string, pos Position) Token {
	return Token{
		Type:    tokenType,
		Literal: literal,
		Pos:     pos,
	}
}

// NewWithValue 创建一个带值的 Token
//
// 用于数字、字符和字符串字面量，value 参数存储解析后的实际值。
func NewWithValue(tokenType TokenType, literal string, value interface{}, pos Position) Token {
	return Token{
		Type:    tokenType,
		Literal: literal,
		Value:   value,
		Pos:     pos,
	}
}
