package lexer

import (
	"strings"
	"testing"

	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `+ - * / % = == != < <= > >= && || ! & | ^ ~ << >> ( ) { } [ ] , . ; : ? ?. -> =>`

	expected := []token.TokenType{
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT,
		token.ASSIGN, token.EQ, token.NE,
		token.LT, token.LE, token.GT, token.GE,
		token.AND, token.OR, token.NOT,
		token.BIT_AND, token.BIT_OR, token.BIT_XOR, token.BIT_NOT,
		token.LEFT_SHIFT, token.RIGHT_SHIFT,
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.LBRACKET, token.RBRACKET,
		token.COMMA, token.DOT, token.SEMICOLON, token.COLON,
		token.QUESTION, token.SAFE_DOT,
		token.ARROW, token.DOUBLE_ARROW,
		token.EOF,
	}

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(expected))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token[%d] type mismatch: got %s, want %s", i, tok.Type, expected[i])
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	input := `namespace import class interface fun var static new
	if else while for to loop switch case default
	return throw break continue null true false
	this super is as test mock scope suspend`

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	expected := []token.TokenType{
		token.NAMESPACE, token.IMPORT, token.CLASS, token.INTERFACE,
		token.FUN, token.VAR, token.STATIC, token.NEW,
		token.IF, token.ELSE, token.WHILE, token.FOR, token.TO, token.LOOP,
		token.SWITCH, token.CASE, token.DEFAULT,
		token.RETURN, token.THROW, token.BREAK, token.CONTINUE,
		token.NULL, token.TRUE, token.FALSE,
		token.THIS, token.SUPER, token.IS, token.AS,
		token.TEST, token.MOCK, token.SCOPE, token.SUSPEND,
		token.EOF,
	}

	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(expected))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token[%d] type mismatch: got %s, want %s (literal: %s)",
				i, tok.Type, expected[i], tok.Literal)
		}
	}
}

// 类型名首字母大写，按普通标识符词法处理，不是关键字。
func TestLexerTypeNamesAreIdentifiers(t *testing.T) {
	input := `Int Long Float Double Bool Char String Void myVar _tmp`

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	for i, tok := range tokens {
		if tok.Type == token.EOF {
			break
		}
		if tok.Type != token.IDENT {
			t.Errorf("token[%d] %q: got %s, want IDENT", i, tok.Literal, tok.Type)
		}
	}
}

func TestLexerNumbers(t *testing.T) {
	tests := []struct {
		input   string
		tokType token.TokenType
		value   interface{}
	}{
		{"123", token.INT, int64(123)},
		{"0", token.INT, int64(0)},
		{"42L", token.INT, int64(42)},
		{"3.14", token.FLOAT, 3.14},
		{"3.14F", token.FLOAT, 3.14},
		{"3.14D", token.FLOAT, 3.14},
		{"10F", token.FLOAT, 10.0},
		{"1e10", token.FLOAT, 1e10},
		{"2.5e-3", token.FLOAT, 2.5e-3},
		{"0xFF", token.INT, int64(255)},
		{"0b1010", token.INT, int64(10)},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.aml")
		tokens := l.ScanTokens()

		if l.HasErrors() {
			t.Errorf("input %q: unexpected errors: %v", tt.input, l.Errors())
			continue
		}

		if len(tokens) != 2 { // number + EOF
			t.Errorf("input %q: expected 2 tokens, got %d", tt.input, len(tokens))
			continue
		}

		tok := tokens[0]
		if tok.Type != tt.tokType {
			t.Errorf("input %q: type mismatch: got %s, want %s", tt.input, tok.Type, tt.tokType)
		}
		if tok.Literal != tt.input {
			t.Errorf("input %q: literal mismatch: got %q", tt.input, tok.Literal)
		}

		switch v := tt.value.(type) {
		case int64:
			if tok.Value.(int64) != v {
				t.Errorf("input %q: value mismatch: got %v, want %v", tt.input, tok.Value, v)
			}
		case float64:
			if tok.Value.(float64) != v {
				t.Errorf("input %q: value mismatch: got %v, want %v", tt.input, tok.Value, v)
			}
		}
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"hello"`, "hello"},
		{`""`, ""},
		{`"line1\nline2"`, "line1\nline2"},
		{`"tab\there"`, "tab\there"},
		{`"quote\"inside"`, `quote"inside`},
		{`"back\\slash"`, `back\slash`},
		{`"price: \$5"`, "price: $5"},
		{`"unicode A"`, "unicode A"},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.aml")
		tokens := l.ScanTokens()

		if l.HasErrors() {
			t.Errorf("input %q: unexpected errors: %v", tt.input, l.Errors())
			continue
		}

		if len(tokens) != 2 || tokens[0].Type != token.STRING {
			t.Errorf("input %q: expected single STRING token, got %v", tt.input, tokens)
			continue
		}

		if got := tokens[0].Value.(string); got != tt.expected {
			t.Errorf("input %q: value mismatch: got %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLexerCharLiterals(t *testing.T) {
	tests := []struct {
		input string
		value uint16
	}{
		{`'a'`, 'a'},
		{`'0'`, '0'},
		{`'\n'`, '\n'},
		{`'\t'`, '\t'},
		{`'\''`, '\''},
		{`'\\'`, '\\'},
		{`'\0'`, 0},
		{`'A'`, 0x41},
		{`'中'`, 0x4E2D},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.aml")
		tokens := l.ScanTokens()

		if l.HasErrors() {
			t.Errorf("input %q: unexpected errors: %v", tt.input, l.Errors())
			continue
		}

		if len(tokens) != 2 || tokens[0].Type != token.CHAR {
			t.Errorf("input %q: expected single CHAR token, got %v", tt.input, tokens)
			continue
		}

		if got := tokens[0].Value.(uint16); got != tt.value {
			t.Errorf("input %q: value mismatch: got %d, want %d", tt.input, got, tt.value)
		}
	}
}

func TestLexerInterpolation(t *testing.T) {
	input := `"Hello, $name! You have ${count + 1} items."`

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	if l.HasErrors() {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}
	if len(tokens) != 2 || tokens[0].Type != token.INTERP_STRING {
		t.Fatalf("expected single INTERP_STRING token, got %v", tokens)
	}

	segs := tokens[0].Value.([]token.InterpSegment)

	expected := []struct {
		text   string
		expr   string
		simple bool
	}{
		{text: "Hello, "},
		{expr: "name", simple: true},
		{text: "! You have "},
		{expr: "count + 1"},
		{text: " items."},
	}

	if len(segs) != len(expected) {
		t.Fatalf("segment count mismatch: got %d, want %d", len(segs), len(expected))
	}

	for i, want := range expected {
		seg := segs[i]
		if want.expr != "" {
			if !seg.IsExpr() || seg.Expr != want.expr || seg.Simple != want.simple {
				t.Errorf("segment[%d]: got {Expr:%q Simple:%v}, want {Expr:%q Simple:%v}",
					i, seg.Expr, seg.Simple, want.expr, want.simple)
			}
			if !seg.ExprPos.IsValid() {
				t.Errorf("segment[%d]: missing expression position", i)
			}
		} else {
			if seg.IsExpr() || seg.Text != want.text {
				t.Errorf("segment[%d]: got %q, want text %q", i, seg.Text, want.text)
			}
		}
	}
}

// 嵌套花括号与插值内的字符串字面量不破坏配对。
func TestLexerInterpolationBalancedBraces(t *testing.T) {
	tests := []struct {
		input string
		expr  string
	}{
		{`"v: ${list.map((x: Int) => { x * 2 })}"`, "list.map((x: Int) => { x * 2 })"},
		{`"v: ${fmt("{}")}"`, `fmt("{}")`},
	}

	for _, tt := range tests {
		l := New(tt.input, "test.aml")
		tokens := l.ScanTokens()

		if l.HasErrors() {
			t.Errorf("input %q: unexpected errors: %v", tt.input, l.Errors())
			continue
		}

		segs := tokens[0].Value.([]token.InterpSegment)
		var exprSeg *token.InterpSegment
		for i := range segs {
			if segs[i].IsExpr() {
				exprSeg = &segs[i]
				break
			}
		}

		if exprSeg == nil || exprSeg.Expr != tt.expr {
			t.Errorf("input %q: expression capture mismatch: got %v", tt.input, segs)
		}
	}
}

// 段序列按顺序还原应能重建引号之间的原始文本。
func TestLexerInterpolationRoundTrip(t *testing.T) {
	inputs := []string{
		`"a $x b"`,
		`"${a}${b}"`,
		`"pre ${a + b} mid $c post"`,
		`"esc \$x and ${y}"`,
	}

	for _, input := range inputs {
		l := New(input, "test.aml")
		tokens := l.ScanTokens()

		if l.HasErrors() {
			t.Errorf("input %q: unexpected errors: %v", input, l.Errors())
			continue
		}

		segs := tokens[0].Value.([]token.InterpSegment)

		var sb strings.Builder
		for _, seg := range segs {
			if seg.IsExpr() {
				if seg.Simple {
					sb.WriteString("$" + seg.Expr)
				} else {
					sb.WriteString("${" + seg.Expr + "}")
				}
			} else {
				sb.WriteString(seg.Raw)
			}
		}

		want := input[1 : len(input)-1]
		if sb.String() != want {
			t.Errorf("input %q: reconstruction mismatch: got %q, want %q", input, sb.String(), want)
		}
	}
}

func TestLexerUnbalancedInterpolation(t *testing.T) {
	l := New(`"bad ${a + b"`, "test.aml")
	tokens := l.ScanTokens()

	if !l.HasErrors() {
		t.Fatal("expected error for unbalanced interpolation brace")
	}

	// 错误后仍产出 ILLEGAL 标记并继续扫描到 EOF
	if tokens[len(tokens)-1].Type != token.EOF {
		t.Errorf("expected trailing EOF token, got %s", tokens[len(tokens)-1].Type)
	}
}

func TestLexerDirectives(t *testing.T) {
	input := `#require netlib
	#requireNot debug`

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	if l.HasErrors() {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}

	expected := []struct {
		typ     token.TokenType
		literal string
		value   string
	}{
		{token.DIRECTIVE, "#require", "require"},
		{token.IDENT, "netlib", ""},
		{token.DIRECTIVE, "#requireNot", "requireNot"},
		{token.IDENT, "debug", ""},
		{token.EOF, "", ""},
	}

	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(expected))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i].typ {
			t.Errorf("token[%d] type mismatch: got %s, want %s", i, tok.Type, expected[i].typ)
		}
		if expected[i].literal != "" && tok.Literal != expected[i].literal {
			t.Errorf("token[%d] literal mismatch: got %q, want %q", i, tok.Literal, expected[i].literal)
		}
		if expected[i].value != "" && tok.Value.(string) != expected[i].value {
			t.Errorf("token[%d] value mismatch: got %v, want %q", i, tok.Value, expected[i].value)
		}
	}
}

func TestLexerUnknownDirective(t *testing.T) {
	l := New(`#define x`, "test.aml")
	l.ScanTokens()

	if !l.HasErrors() {
		t.Fatal("expected error for unknown directive")
	}
}

func TestLexerComments(t *testing.T) {
	input := `a // line comment
	b /* block
	comment */ c`

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	if l.HasErrors() {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}

	var literals []string
	for _, tok := range tokens {
		if tok.Type == token.IDENT {
			literals = append(literals, tok.Literal)
		}
	}

	want := []string{"a", "b", "c"}
	if len(literals) != len(want) {
		t.Fatalf("identifier mismatch: got %v, want %v", literals, want)
	}
	for i := range want {
		if literals[i] != want[i] {
			t.Errorf("identifier[%d]: got %q, want %q", i, literals[i], want[i])
		}
	}
}

// 块注释不嵌套：第一个 */ 即结束注释。
func TestLexerBlockCommentNotNested(t *testing.T) {
	l := New(`/* outer /* inner */ x`, "test.aml")
	tokens := l.ScanTokens()

	if l.HasErrors() {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}

	if len(tokens) != 2 || tokens[0].Type != token.IDENT || tokens[0].Literal != "x" {
		t.Fatalf("expected identifier x after comment, got %v", tokens)
	}
}

func TestLexerUnterminatedBlockComment(t *testing.T) {
	l := New(`/* never closed`, "test.aml")
	l.ScanTokens()

	if !l.HasErrors() {
		t.Fatal("expected error for unterminated block comment")
	}
}

// 非法字符不中断扫描：产出 ILLEGAL 标记后继续。
func TestLexerErrorRecovery(t *testing.T) {
	l := New("var x ` = 1;", "test.aml")
	tokens := l.ScanTokens()

	if !l.HasErrors() {
		t.Fatal("expected error for illegal character")
	}

	expected := []token.TokenType{
		token.VAR, token.IDENT, token.ILLEGAL,
		token.ASSIGN, token.INT, token.SEMICOLON,
		token.EOF,
	}

	if len(tokens) != len(expected) {
		t.Fatalf("token count mismatch: got %d, want %d", len(tokens), len(expected))
	}

	for i, tok := range tokens {
		if tok.Type != expected[i] {
			t.Errorf("token[%d] type mismatch: got %s, want %s", i, tok.Type, expected[i])
		}
	}
}

func TestLexerPositions(t *testing.T) {
	input := "var x\nfun y"

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	expected := []struct {
		line, column int
	}{
		{1, 1}, // var
		{1, 5}, // x
		{2, 1}, // fun
		{2, 5}, // y
	}

	for i, want := range expected {
		pos := tokens[i].Pos
		if pos.Line != want.line || pos.Column != want.column {
			t.Errorf("token[%d] %q: got %d:%d, want %d:%d",
				i, tokens[i].Literal, pos.Line, pos.Column, want.line, want.column)
		}
		if pos.Filename != "test.aml" {
			t.Errorf("token[%d]: filename mismatch: %q", i, pos.Filename)
		}
	}
}

func TestLexerMultibytePositions(t *testing.T) {
	// 列号按 rune 计数：多字节字面量自身与其后续 token 的起始列都不受字节长度影响
	input := "var s = \"日本語\"\nvar n"

	l := New(input, "test.aml")
	tokens := l.ScanTokens()

	expected := []struct {
		line, column int
	}{
		{1, 1}, // var
		{1, 5}, // s
		{1, 7}, // =
		{1, 9}, // "日本語"
		{2, 1}, // var
		{2, 5}, // n
	}

	for i, want := range expected {
		pos := tokens[i].Pos
		if pos.Line != want.line || pos.Column != want.column {
			t.Errorf("token[%d] %q: got %d:%d, want %d:%d",
				i, tokens[i].Literal, pos.Line, pos.Column, want.line, want.column)
		}
	}
}

func TestLexerFullDeclaration(t *testing.T) {
	input := `namespace app

class Point(var x: Int, var y: Int) {
	fun length(): Double {
		return ((this.x * this.x + this.y * this.y) as Double);
	}
}`

	l := New(input, "test.aml")
	l.ScanTokens()

	if l.HasErrors() {
		t.Fatalf("unexpected errors: %v", l.Errors())
	}
}
