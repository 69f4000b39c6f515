package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
)

// ============================================================================
// Lexer - 词法分析器
// ============================================================================
//
// 词法分析器负责将源代码字符串转换为 Token 序列。
//
// 错误策略：遇到无法识别的字符时，记录一条错误并产出 ILLEGAL 标记 token，
// 扫描继续进行。词法分析器从不中断，单次扫描即可收集文件中的全部词法错误。
//
// 性能优化说明：
// 1. ASCII 快速路径：大多数源代码字符是 ASCII，避免不必要的 UTF-8 解码
// 2. Token 切片预分配：根据源码长度预估 token 数量，减少切片扩容
// 3. 空白字符批量跳过：一次性跳过连续空白，减少循环次数
// 4. 字符串快速路径：无转义且无插值时直接切片，避免逐字符拷贝
// 5. 小整数快速解析：单位数整数直接计算，避免 strconv 调用
//
// ============================================================================

// Lexer 词法分析器结构体
type Lexer struct {
	source   string        // 源代码字符串
	filename string        // 源文件名（用于错误报告）
	tokens   []token.Token // 已扫描的 Token 列表

	start     int // 当前 Token 的起始位置（字节偏移）
	current   int // 当前扫描位置（字节偏移）
	line      int // 当前行号（从1开始）
	column    int // 当前列号（从1开始，按 rune 计数）
	lineStart int // 当前行的起始偏移（用于计算列号）

	startLine   int // 当前 Token 起始处的行号
	startColumn int // 当前 Token 起始处的列号

	errors []Error // 词法错误列表
}

// Error 表示词法分析错误
type Error struct {
	Pos     token.Position // 错误位置
	Message string         // 错误信息
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// ============================================================================
// 构造函数
// ============================================================================

// New 创建一个新的词法分析器
//
// 参数:
//   - source: 源代码字符串
//   - filename: 源文件名（用于错误报告）
//
// 优化说明:
//   - 预分配 tokens 切片容量，经验值为 源码长度/5
func New(source, filename string) *Lexer {
	estimatedTokens := len(source) / 5
	if estimatedTokens < 16 {
		estimatedTokens = 16
	}

	return &Lexer{
		source:   source,
		filename: filename,
		tokens:   make([]token.Token, 0, estimatedTokens),
		line:     1,
		column:   1,
	}
}

// ============================================================================
// 公共方法
// ============================================================================

// ScanTokens 扫描所有 tokens
//
// 这是词法分析的主入口，会扫描整个源代码并返回 Token 序列。
// 最后一个 Token 总是 EOF，表示文件结束。
func (l *Lexer) ScanTokens() []token.Token {
	for !l.isAtEnd() {
		l.start = l.current
		l.startLine = l.line
		l.startColumn = l.column
		l.scanToken()
	}

	l.tokens = append(l.tokens, token.Token{
		Type: token.EOF,
		Pos:  l.posAt(l.current),
	})

	return l.tokens
}

// Errors 返回所有词法错误
func (l *Lexer) Errors() []Error {
	return l.errors
}

// HasErrors 检查是否有错误
func (l *Lexer) HasErrors() bool {
	return len(l.errors) > 0
}

// ============================================================================
// 核心扫描逻辑
// ============================================================================

// scanToken 扫描单个 token
//
// 优化说明:
//   - switch 分支按字符出现频率排序
//   - 空白字符最常见，放在最前面
func (l *Lexer) scanToken() {
	ch := l.advance()

	switch ch {

	// ----------------------------------------------------------
	// 高频：空白字符
	// ----------------------------------------------------------
	case ' ', '\t', '\r':
		l.skipWhitespace()

	case '\n':
		l.newLine()
		l.skipWhitespace()

	// ----------------------------------------------------------
	// 高频：常用分隔符
	// ----------------------------------------------------------
	case '(':
		l.addToken(token.LPAREN)
	case ')':
		l.addToken(token.RPAREN)
	case '{':
		l.addToken(token.LBRACE)
	case '}':
		l.addToken(token.RBRACE)
	case '[':
		l.addToken(token.LBRACKET)
	case ']':
		l.addToken(token.RBRACKET)
	case ',':
		l.addToken(token.COMMA)
	case ';':
		l.addToken(token.SEMICOLON)
	case '.':
		l.addToken(token.DOT)
	case ':':
		l.addToken(token.COLON)

	// ----------------------------------------------------------
	// 高频：常用运算符（可能是多字符）
	// ----------------------------------------------------------
	case '=':
		// = 或 == 或 =>
		if l.match('=') {
			l.addToken(token.EQ)
		} else if l.match('>') {
			l.addToken(token.DOUBLE_ARROW)
		} else {
			l.addToken(token.ASSIGN)
		}

	case '+':
		l.addToken(token.PLUS)

	case '-':
		// - 或 ->
		if l.match('>') {
			l.addToken(token.ARROW)
		} else {
			l.addToken(token.MINUS)
		}

	case '*':
		l.addToken(token.STAR)

	case '/':
		// / 或 // 注释 或 /* 块注释
		if l.match('/') {
			l.lineComment()
		} else if l.match('*') {
			l.blockComment()
		} else {
			l.addToken(token.SLASH)
		}

	case '%':
		l.addToken(token.PERCENT)

	// ----------------------------------------------------------
	// 中频：比较和逻辑运算符
	// ----------------------------------------------------------
	case '!':
		if l.match('=') {
			l.addToken(token.NE)
		} else {
			l.addToken(token.NOT)
		}

	case '<':
		// < 或 <= 或 <<
		if l.match('=') {
			l.addToken(token.LE)
		} else if l.match('<') {
			l.addToken(token.LEFT_SHIFT)
		} else {
			l.addToken(token.LT)
		}

	case '>':
		// > 或 >= 或 >>
		if l.match('=') {
			l.addToken(token.GE)
		} else if l.match('>') {
			l.addToken(token.RIGHT_SHIFT)
		} else {
			l.addToken(token.GT)
		}

	case '&':
		if l.match('&') {
			l.addToken(token.AND)
		} else {
			l.addToken(token.BIT_AND)
		}

	case '|':
		if l.match('|') {
			l.addToken(token.OR)
		} else {
			l.addToken(token.BIT_OR)
		}

	case '?':
		// ? 或 ?.
		if l.match('.') {
			l.addToken(token.SAFE_DOT)
		} else {
			l.addToken(token.QUESTION)
		}

	// ----------------------------------------------------------
	// 低频：单字符运算符
	// ----------------------------------------------------------
	case '^':
		l.addToken(token.BIT_XOR)
	case '~':
		l.addToken(token.BIT_NOT)

	// ----------------------------------------------------------
	// 字面量
	// ----------------------------------------------------------
	case '"':
		l.string()
	case '\'':
		l.char()

	// ----------------------------------------------------------
	// 条件编译指令 #require / #requireNot
	// ----------------------------------------------------------
	case '#':
		l.directive()

	// ----------------------------------------------------------
	// 默认：标识符、数字或非法字符
	// ----------------------------------------------------------
	default:
		if isDigit(ch) {
			l.number()
		} else if isAlpha(ch) {
			l.identifier()
		} else {
			l.error(fmt.Sprintf("unexpected character %q", ch))
		}
	}
}

// ============================================================================
// 空白字符处理
// ============================================================================

// skipWhitespace 批量跳过连续的空白字符
func (l *Lexer) skipWhitespace() {
	for !l.isAtEnd() {
		ch := l.peekByte()

		switch ch {
		case ' ', '\t', '\r':
			l.advanceByte()
		case '\n':
			l.advanceByte()
			l.newLine()
		default:
			return
		}
	}
}

// ============================================================================
// 注释处理
// ============================================================================

// lineComment 处理单行注释 //
//
// 注释内容被丢弃，不生成 Token。不消费换行符，让主循环更新行号。
func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peekByte() != '\n' {
		l.advance()
	}
}

// blockComment 处理多行注释 /* */
//
// 块注释不嵌套：遇到第一个 */ 即结束。
// 到达文件末尾仍未闭合时记录错误。
func (l *Lexer) blockComment() {
	for !l.isAtEnd() {
		if l.peekByte() == '*' && l.peekNextByte() == '/' {
			l.advance()
			l.advance()
			return
		}

		if l.peekByte() == '\n' {
			l.advance()
			l.newLine()
			continue
		}

		l.advance()
	}

	l.error("unterminated block comment")
}

// ============================================================================
// 字符串处理
// ============================================================================

// string 处理字符串字面量（含插值）
//
// 字符串用双引号包围，支持转义字符：\n \r \t \\ \" \$ \0 \uXXXX
//
// 插值的两种形式在词法阶段切分为段序列：
//   - $name   捕获紧随 $ 的一个标识符
//   - ${expr} 捕获花括号配对的表达式区域，原文保留
//
// 无插值段时产出 STRING（Value 为 string），
// 有插值段时产出 INTERP_STRING（Value 为 []token.InterpSegment）。
//
// 优化说明:
//   - 快速路径：不含转义、插值时直接切片返回
func (l *Lexer) string() {
	startOffset := l.current

	// ==========================================================
	// 优化：快速扫描检查是否包含转义或插值
	// ==========================================================
	plain := true
	scanPos := l.current

	for scanPos < len(l.source) {
		b := l.source[scanPos]
		if b == '\\' || b == '$' {
			plain = false
			break
		}
		if b == '"' || b == '\n' {
			break
		}
		scanPos++
	}

	// ==========================================================
	// 快速路径：无转义无插值，直接切片
	// ==========================================================
	if plain {
		for l.current < scanPos {
			l.advance()
		}

		if l.isAtEnd() || l.peekByte() == '\n' {
			l.error("unterminated string literal")
			return
		}

		value := l.source[startOffset:l.current]
		l.advance() // 跳过结束引号

		l.addTokenWithValue(token.STRING, value)
		return
	}

	// ==========================================================
	// 慢速路径：逐字符处理转义与插值段
	// ==========================================================
	var segments []token.InterpSegment
	var text strings.Builder // 当前文本段（已处理转义）
	var raw strings.Builder  // 当前文本段原文

	// flushText 将累积的文本封存为一个文本段
	flushText := func() {
		if raw.Len() == 0 {
			return
		}
		segments = append(segments, token.InterpSegment{
			Text: text.String(),
			Raw:  raw.String(),
		})
		text.Reset()
		raw.Reset()
	}

	for !l.isAtEnd() {
		ch := l.peekByte()

		if ch == '"' {
			break
		}

		if ch == '\n' {
			l.error("unterminated string literal")
			return
		}

		// 处理转义字符
		if ch == '\\' {
			l.advanceByte()
			if l.isAtEnd() {
				l.error("unterminated string literal")
				return
			}

			escaped := l.advance()
			raw.WriteByte('\\')
			raw.WriteRune(escaped)

			switch escaped {
			case 'n':
				text.WriteByte('\n')
			case 'r':
				text.WriteByte('\r')
			case 't':
				text.WriteByte('\t')
			case '\\':
				text.WriteByte('\\')
			case '"':
				text.WriteByte('"')
			case '$':
				text.WriteByte('$') // 抑制插值
			case '0':
				text.WriteByte(0)
			case 'u':
				code, ok := l.unicodeEscape()
				if !ok {
					return
				}
				text.WriteRune(rune(code))
				raw.WriteString(l.source[l.current-4 : l.current])
			default:
				l.error(fmt.Sprintf("invalid escape sequence '\\%c'", escaped))
				return
			}
			continue
		}

		// 处理插值
		if ch == '$' {
			seg, ok, isInterp := l.interpSegment()
			if !ok {
				return
			}
			if isInterp {
				flushText()
				segments = append(segments, seg)
			} else {
				// 孤立的 $，按普通字符处理
				text.WriteByte('$')
				raw.WriteByte('$')
			}
			continue
		}

		r := l.advance()
		text.WriteRune(r)
		raw.WriteRune(r)
	}

	if l.isAtEnd() {
		l.error("unterminated string literal")
		return
	}

	l.advance() // 跳过结束引号

	// 无插值段：普通字符串
	hasExpr := false
	for _, s := range segments {
		if s.IsExpr() {
			hasExpr = true
			break
		}
	}

	if !hasExpr {
		l.addTokenWithValue(token.STRING, text.String())
		return
	}

	flushText()
	l.addTokenWithValue(token.INTERP_STRING, segments)
}

// interpSegment 扫描一个插值段
//
// 进入时当前字符为 '$'。返回值:
//   - seg: 扫描到的表达式段
//   - ok: 是否成功（花括号不配对等错误时为 false，且已记录错误）
//   - isInterp: 是否真的是插值（$ 后既非标识符也非 '{' 时为 false）
func (l *Lexer) interpSegment() (seg token.InterpSegment, ok bool, isInterp bool) {
	l.advanceByte() // 消费 '$'

	// ${expr} 形式：捕获花括号配对的表达式区域
	if l.peekByte() == '{' {
		l.advanceByte() // 消费 '{'

		exprPos := l.posAt(l.current)
		exprStart := l.current
		depth := 1

		for !l.isAtEnd() && depth > 0 {
			b := l.peekByte()

			if b == '\n' {
				l.error("unterminated string literal")
				return seg, false, true
			}

			// 表达式内的字符串字面量：花括号不参与配对
			if b == '"' {
				l.advanceByte()
				for !l.isAtEnd() && l.peekByte() != '"' && l.peekByte() != '\n' {
					if l.peekByte() == '\\' {
						l.advanceByte()
						if l.isAtEnd() {
							break
						}
					}
					l.advance()
				}
				if l.isAtEnd() || l.peekByte() == '\n' {
					l.error("unterminated string literal")
					return seg, false, true
				}
				l.advanceByte() // 结束引号
				continue
			}

			switch b {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					continue // 终止括号在循环外消费
				}
			}
			l.advance()
		}

		if depth > 0 {
			l.error("unbalanced '{' in string interpolation")
			return seg, false, true
		}

		expr := l.source[exprStart:l.current]
		l.advanceByte() // 消费 '}'

		if strings.TrimSpace(expr) == "" {
			l.error("empty interpolation expression")
			return seg, false, true
		}

		return token.InterpSegment{
			Expr:    expr,
			ExprPos: exprPos,
		}, true, true
	}

	// $name 简写形式：捕获一个标识符
	if isAlpha(l.peek()) {
		exprPos := l.posAt(l.current)
		exprStart := l.current

		for isAlphaNumeric(l.peek()) {
			l.advance()
		}

		return token.InterpSegment{
			Expr:    l.source[exprStart:l.current],
			Simple:  true,
			ExprPos: exprPos,
		}, true, true
	}

	// $ 后无标识符也无 '{'：不是插值
	return seg, true, false
}

// unicodeEscape 解析 \uXXXX 转义的 4 位十六进制码元
func (l *Lexer) unicodeEscape() (uint16, bool) {
	if l.current+4 > len(l.source) {
		l.error("invalid unicode escape: expected 4 hex digits")
		return 0, false
	}

	hex := l.source[l.current : l.current+4]
	value, err := strconv.ParseUint(hex, 16, 16)
	if err != nil {
		l.error(fmt.Sprintf("invalid unicode escape '\\u%s'", hex))
		return 0, false
	}

	l.current += 4
	l.column += 4
	return uint16(value), true
}

// ============================================================================
// 字符字面量
// ============================================================================

// char 处理字符字面量
//
// 字符用单引号包围，值为 16 位码元（UTF-16 code unit）。
// 支持转义：\n \r \t \\ \' \" \0 \uXXXX
func (l *Lexer) char() {
	if l.isAtEnd() || l.peekByte() == '\n' {
		l.error("unterminated character literal")
		return
	}

	if l.peekByte() == '\'' {
		l.advanceByte()
		l.error("empty character literal")
		return
	}

	var value uint16

	if l.peekByte() == '\\' {
		l.advanceByte()
		if l.isAtEnd() {
			l.error("unterminated character literal")
			return
		}

		escaped := l.advance()
		switch escaped {
		case 'n':
			value = '\n'
		case 'r':
			value = '\r'
		case 't':
			value = '\t'
		case '\\':
			value = '\\'
		case '\'':
			value = '\''
		case '"':
			value = '"'
		case '0':
			value = 0
		case 'u':
			code, ok := l.unicodeEscape()
			if !ok {
				return
			}
			value = code
		default:
			l.error(fmt.Sprintf("invalid escape sequence '\\%c'", escaped))
			return
		}
	} else {
		r := l.advance()
		if r > 0xFFFF {
			l.error("character literal out of range")
			return
		}
		value = uint16(r)
	}

	if l.isAtEnd() || l.peekByte() != '\'' {
		l.error("unterminated character literal")
		return
	}

	l.advanceByte() // 跳过结束引号
	l.addTokenWithValue(token.CHAR, value)
}

// ============================================================================
// 条件编译指令
// ============================================================================

// directive 处理 #require / #requireNot 指令
//
// 进入时 '#' 已被消费。指令名称紧随 '#'，不允许空白。
// Value 字段存储指令名（"require" 或 "requireNot"）。
func (l *Lexer) directive() {
	nameStart := l.current

	for isAlphaNumeric(l.peek()) {
		l.advance()
	}

	name := l.source[nameStart:l.current]

	switch name {
	case "require", "requireNot":
		l.addTokenWithValue(token.DIRECTIVE, name)
	case "":
		l.error("expected directive name after '#'")
	default:
		l.error(fmt.Sprintf("unknown directive '#%s'", name))
	}
}

// ============================================================================
// 数字处理
// ============================================================================

// number 处理数字字面量
//
// 支持以下格式：
//   - 十进制整数：123（可带 L 后缀表示长整数）
//   - 十六进制整数：0x1A2B
//   - 二进制整数：0b1010
//   - 浮点数：3.14（可带 F/D 后缀）
//   - 科学计数法：1.5e10, 2E-3
//
// F/D 后缀决定字面量的精度类型，后缀保留在 Literal 中供绑定阶段读取，
// Value 统一存储 float64。整数同理，Value 统一存储 int64。
//
// 优化说明:
//   - 单位数整数直接计算，避免 strconv.ParseInt 调用
func (l *Lexer) number() {
	firstDigit := l.source[l.start]

	// ==========================================================
	// 十六进制数 0x...
	// ==========================================================
	if firstDigit == '0' && (l.peekByte() == 'x' || l.peekByte() == 'X') {
		l.advance()

		digitStart := l.current
		for isHexDigit(l.peek()) {
			l.advance()
		}

		if l.current == digitStart {
			l.error("invalid hexadecimal literal: missing digits")
			return
		}

		literal := l.source[l.start:l.current]
		value, err := strconv.ParseInt(literal, 0, 64)
		if err != nil {
			l.error(fmt.Sprintf("invalid hexadecimal literal %q", literal))
			return
		}

		l.addTokenWithValue(token.INT, value)
		return
	}

	// ==========================================================
	// 二进制数 0b...
	// ==========================================================
	if firstDigit == '0' && (l.peekByte() == 'b' || l.peekByte() == 'B') {
		l.advance()

		digitStart := l.current
		for l.peekByte() == '0' || l.peekByte() == '1' {
			l.advance()
		}

		if l.current == digitStart {
			l.error("invalid binary literal: missing digits")
			return
		}

		literal := l.source[l.start:l.current]
		value, err := strconv.ParseInt(literal, 0, 64)
		if err != nil {
			l.error(fmt.Sprintf("invalid binary literal %q", literal))
			return
		}

		l.addTokenWithValue(token.INT, value)
		return
	}

	// ==========================================================
	// 十进制整数部分
	// ==========================================================
	for isDigit(l.peek()) {
		l.advance()
	}

	// ==========================================================
	// 检查小数部分
	// ==========================================================
	isFloat := false
	if l.peekByte() == '.' && isDigit(l.peekNextRune()) {
		isFloat = true
		l.advance() // 跳过 '.'

		for isDigit(l.peek()) {
			l.advance()
		}
	}

	// ==========================================================
	// 检查科学计数法 e/E
	// ==========================================================
	if l.peekByte() == 'e' || l.peekByte() == 'E' {
		isFloat = true
		l.advance()

		if l.peekByte() == '+' || l.peekByte() == '-' {
			l.advance()
		}

		if !isDigit(l.peek()) {
			l.error("invalid float literal: malformed exponent")
			return
		}

		for isDigit(l.peek()) {
			l.advance()
		}
	}

	// ==========================================================
	// 检查类型后缀
	// ==========================================================
	numEnd := l.current

	switch l.peekByte() {
	case 'F', 'D':
		// 精度后缀：10F 也是浮点字面量
		isFloat = true
		l.advance()
	case 'L':
		if isFloat {
			l.error("invalid suffix 'L' on float literal")
			return
		}
		l.advance()
	}

	// ==========================================================
	// 解析数值（后缀不参与数值解析）
	// ==========================================================
	literal := l.source[l.start:l.current]
	digits := l.source[l.start:numEnd]

	if isFloat {
		value, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			l.error(fmt.Sprintf("invalid float literal %q", literal))
			return
		}
		l.addTokenWithValue(token.FLOAT, value)
		return
	}

	// 单位数整数快速路径
	if len(literal) == 1 {
		l.addTokenWithValue(token.INT, int64(literal[0]-'0'))
		return
	}

	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		l.error(fmt.Sprintf("invalid integer literal %q", literal))
		return
	}
	l.addTokenWithValue(token.INT, value)
}

// ============================================================================
// 标识符处理
// ============================================================================

// identifier 处理标识符和关键字
//
// 标识符以字母或下划线开头，后跟字母、数字或下划线。
// 扫描完成后查找关键字表。类型名（Int, String...）首字母大写，
// 不在关键字表中，按普通标识符产出。
func (l *Lexer) identifier() {
	for isAlphaNumeric(l.peek()) {
		l.advance()
	}

	text := l.source[l.start:l.current]
	l.addToken(token.LookupIdent(text))
}

// ============================================================================
// 底层字符操作（带 ASCII 优化）
// ============================================================================

// isAtEnd 检查是否到达源代码末尾
func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

// advance 前进一个字符并返回它
//
// 通用版本，支持完整的 UTF-8 字符。ASCII 字符走快速路径。
func (l *Lexer) advance() rune {
	if l.current >= len(l.source) {
		return 0
	}

	b := l.source[l.current]

	if b < utf8.RuneSelf {
		l.current++
		l.column++
		return rune(b)
	}

	r, size := utf8.DecodeRuneInString(l.source[l.current:])
	l.current += size
	l.column++
	return r
}

// advanceByte 前进一个字节（仅用于已知是 ASCII 的情况）
func (l *Lexer) advanceByte() {
	l.current++
	l.column++
}

// peek 查看当前字符但不前进
func (l *Lexer) peek() rune {
	if l.current >= len(l.source) {
		return 0
	}

	b := l.source[l.current]

	if b < utf8.RuneSelf {
		return rune(b)
	}

	r, _ := utf8.DecodeRuneInString(l.source[l.current:])
	return r
}

// peekByte 查看当前字节（仅用于 ASCII 检查）
func (l *Lexer) peekByte() byte {
	if l.current >= len(l.source) {
		return 0
	}
	return l.source[l.current]
}

// peekNextByte 查看下一个字节（用于 */ 等双字符序列）
func (l *Lexer) peekNextByte() byte {
	if l.current+1 >= len(l.source) {
		return 0
	}
	return l.source[l.current+1]
}

// peekNextRune 查看下一个 rune（用于浮点数检测）
func (l *Lexer) peekNextRune() rune {
	if l.current+1 >= len(l.source) {
		return 0
	}

	b := l.source[l.current+1]
	if b < utf8.RuneSelf {
		return rune(b)
	}

	r, _ := utf8.DecodeRuneInString(l.source[l.current+1:])
	return r
}

// match 如果当前字符匹配则前进
func (l *Lexer) match(expected rune) bool {
	if l.current >= len(l.source) {
		return false
	}

	b := l.source[l.current]

	if b < utf8.RuneSelf {
		if rune(b) != expected {
			return false
		}
		l.current++
		l.column++
		return true
	}

	r, size := utf8.DecodeRuneInString(l.source[l.current:])
	if r != expected {
		return false
	}
	l.current += size
	l.column++
	return true
}

// ============================================================================
// 位置追踪
// ============================================================================

// newLine 处理换行，更新行号和列号计数器
func (l *Lexer) newLine() {
	l.line++
	l.column = 1
	l.lineStart = l.current
}

// currentPos 获取当前 token 的起始位置
//
// 列号必须使用扫描 token 前记录的 startColumn：列按 rune 计数，
// 而 start/current 是字节偏移，多字节 UTF-8 token 用字节差回推列号会偏大。
func (l *Lexer) currentPos() token.Position {
	return token.Position{
		Filename: l.filename,
		Line:     l.startLine,
		Column:   l.startColumn,
		Offset:   l.start,
	}
}

// posAt 获取指定偏移处的位置（行号按当前扫描状态计算）
func (l *Lexer) posAt(offset int) token.Position {
	return token.Position{
		Filename: l.filename,
		Line:     l.line,
		Column:   offset - l.lineStart + 1,
		Offset:   offset,
	}
}

// ============================================================================
// Token 生成
// ============================================================================

// addToken 添加一个无值的 Token
func (l *Lexer) addToken(tokenType token.TokenType) {
	literal := l.source[l.start:l.current]
	l.tokens = append(l.tokens, token.Token{
		Type:    tokenType,
		Literal: literal,
		Pos:     l.currentPos(),
	})
}

// addTokenWithValue 添加一个带值的 Token
//
// 用于数字、字符和字符串字面量，Value 字段存储解析后的值。
func (l *Lexer) addTokenWithValue(tokenType token.TokenType, value interface{}) {
	literal := l.source[l.start:l.current]
	l.tokens = append(l.tokens, token.Token{
		Type:    tokenType,
		Literal: literal,
		Value:   value,
		Pos:     l.currentPos(),
	})
}

// ============================================================================
// 错误处理
// ============================================================================

// error 记录一个词法错误
//
// 错误会被收集起来，不会中断扫描过程。
// 同时会生成一个 ILLEGAL token，使解析阶段可见错误位置。
func (l *Lexer) error(message string) {
	l.errors = append(l.errors, Error{
		Pos:     l.currentPos(),
		Message: message,
	})
	l.addToken(token.ILLEGAL)
}

// ============================================================================
// 字符分类函数
// ============================================================================

// isDigit 判断是否为数字 0-9
func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

// isHexDigit 判断是否为十六进制数字 0-9, a-f, A-F
func isHexDigit(ch rune) bool {
	return isDigit(ch) || (ch >= 'a' && ch <= 'f') || (ch >= 'A' && ch <= 'F')
}

// isAlpha 判断是否为字母或下划线
//
// 支持 Unicode 字母，允许标识符使用非 ASCII 字符。
func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		ch == '_' ||
		unicode.IsLetter(ch)
}

// isAlphaNumeric 判断是否为字母、数字或下划线
func isAlphaNumeric(ch rune) bool {
	return isAlpha(ch) || isDigit(ch)
}
