package parser

import (
	"fmt"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/lexer"
	"github.com/anderskjeldsen/am-lang-compiler/internal/token"
)

// ============================================================================
// Parser - 语法分析器
// ============================================================================
//
// 递归下降解析器，表达式部分采用优先级爬升（Pratt 解析）。
//
// 错误恢复策略：
// 1. 遇到语法错误时记录错误并进入 panic 模式
// 2. panic 模式下调用 synchronize() 跳到下一个语句边界（分号或右花括号）
// 3. 在语句边界退出 panic 模式，继续解析
// 4. 这样一次解析就能报告多个语法错误，而不是遇到第一个就停止
//
// 错误上限：超过 maxParseErrors 个错误后停止解析，避免在严重损坏的
// 输入上产生大量无意义的级联错误。
//
// ============================================================================

// maxParseErrors 单文件最大错误数量，超过后停止解析
const maxParseErrors = 50

// Parser 语法分析器结构体
type Parser struct {
	tokens   []token.Token
	pos      int // 当前 token 下标
	filename string

	errors    []Error
	panicMode bool // panic 模式下抑制级联错误
}

// Error 表示语法分析错误
type Error struct {
	Pos     token.Position // 错误位置
	Message string         // 错误信息
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// ============================================================================
// 运算符优先级
// ============================================================================

// 优先级从低到高。parseExpr(prec) 只消费优先级高于 prec 的中缀运算符。
const (
	PREC_NONE       = iota
	PREC_OR         // ||
	PREC_AND        // &&
	PREC_EQUALITY   // == !=
	PREC_COMPARISON // < <= > >= is as
	PREC_BIT_OR     // |
	PREC_BIT_XOR    // ^
	PREC_BIT_AND    // &
	PREC_SHIFT      // << >>
	PREC_TERM       // + -
	PREC_FACTOR     // * / %
	PREC_UNARY      // ! - ~
	PREC_POSTFIX    // 调用、下标、成员访问
)

// infixPrecedence 中缀运算符优先级表
var infixPrecedence = map[token.TokenType]int{
	token.OR:          PREC_OR,
	token.AND:         PREC_AND,
	token.EQ:          PREC_EQUALITY,
	token.NE:          PREC_EQUALITY,
	token.LT:          PREC_COMPARISON,
	token.LE:          PREC_COMPARISON,
	token.GT:          PREC_COMPARISON,
	token.GE:          PREC_COMPARISON,
	token.IS:          PREC_COMPARISON,
	token.AS:          PREC_COMPARISON,
	token.BIT_OR:      PREC_BIT_OR,
	token.BIT_XOR:     PREC_BIT_XOR,
	token.BIT_AND:     PREC_BIT_AND,
	token.LEFT_SHIFT:  PREC_SHIFT,
	token.RIGHT_SHIFT: PREC_SHIFT,
	token.PLUS:        PREC_TERM,
	token.MINUS:       PREC_TERM,
	token.STAR:        PREC_FACTOR,
	token.SLASH:       PREC_FACTOR,
	token.PERCENT:     PREC_FACTOR,
	token.LPAREN:      PREC_POSTFIX,
	token.LBRACKET:    PREC_POSTFIX,
	token.DOT:         PREC_POSTFIX,
	token.SAFE_DOT:    PREC_POSTFIX,
}

// ============================================================================
// 构造函数
// ============================================================================

// New 创建一个新的语法分析器
//
// tokens 必须以 EOF 结尾（词法分析器保证）。
func New(tokens []token.Token, filename string) *Parser {
	return &Parser{
		tokens:   tokens,
		filename: filename,
	}
}

// ParseSource 便捷入口：对源码字符串先词法后语法分析
//
// 词法错误会并入返回的错误列表。
func ParseSource(source, filename string) (*ast.File, []Error) {
	l := lexer.New(source, filename)
	tokens := l.ScanTokens()

	p := New(tokens, filename)
	for _, le := range l.Errors() {
		p.errors = append(p.errors, Error{Pos: le.Pos, Message: le.Message})
	}

	file := p.ParseFile()
	return file, p.Errors()
}

// ============================================================================
// 公共方法
// ============================================================================

// ParseFile 解析整个源文件
//
// 即使存在语法错误也会返回尽力构建的语法树，
// 调用方通过 Errors() 判断解析是否成功。
func (p *Parser) ParseFile() *ast.File {
	file := &ast.File{Filename: p.filename}

	for !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.isAtEnd() {
			break
		}

		decl := p.parseTopDecl()
		if decl != nil {
			file.Decls = append(file.Decls, decl)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	return file
}

// Errors 返回所有语法错误
func (p *Parser) Errors() []Error {
	return p.errors
}

// HasErrors 检查是否有错误
func (p *Parser) HasErrors() bool {
	return len(p.errors) > 0
}

// ============================================================================
// 顶层声明
// ============================================================================

// parseTopDecl 解析文件顶层声明（命名空间或命名空间体内容）
func (p *Parser) parseTopDecl() ast.Declaration {
	if p.check(token.NAMESPACE) {
		return p.parseNamespace()
	}
	return p.parseNamespaceMember()
}

// parseNamespace 解析命名空间声明
//
//	namespace App.Core { ... }
func (p *Parser) parseNamespace() ast.Declaration {
	nsToken := p.advance() // namespace

	name := p.parseQualifiedName()
	lbrace := p.expect(token.LBRACE, "expected '{' after namespace name")

	decl := &ast.NamespaceDecl{
		NamespaceToken: nsToken,
		Name:           name,
		LBrace:         lbrace,
	}

	for !p.check(token.RBRACE) && !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.check(token.RBRACE) || p.isAtEnd() {
			break
		}

		member := p.parseNamespaceMember()
		if member != nil {
			decl.Decls = append(decl.Decls, member)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	decl.RBrace = p.expect(token.RBRACE, "expected '}' to close namespace")
	return decl
}

// parseNamespaceMember 解析命名空间体内的单个声明
func (p *Parser) parseNamespaceMember() ast.Declaration {
	// 收集附着在声明前的条件编译指令
	directives := p.parseDirectives()

	switch p.peek().Type {
	case token.IMPORT:
		if len(directives) > 0 {
			p.errorAtCurrent("directives cannot be attached to import declarations")
		}
		return p.parseImport()

	case token.CLASS:
		return p.parseClass(directives)

	case token.INTERFACE:
		return p.parseInterface(directives)

	case token.FUN, token.STATIC, token.SUSPEND:
		return p.parseFun(directives, false)

	case token.TEST:
		return p.parseTestFun(directives)

	default:
		p.errorAtCurrent(fmt.Sprintf("unexpected token %s, expected declaration", p.peek().Type))
		p.advance()
		return nil
	}
}

// parseDirectives 解析声明前的一组 #require / #requireNot 指令
func (p *Parser) parseDirectives() []*ast.Directive {
	var directives []*ast.Directive

	for p.check(token.DIRECTIVE) {
		dirToken := p.advance()

		kind, _ := dirToken.Value.(string)
		nameToken := p.expect(token.IDENT, "expected feature name after directive")

		directives = append(directives, &ast.Directive{
			Token:   dirToken,
			Kind:    kind,
			Feature: &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		})
	}

	return directives
}

// parseImport 解析导入声明
//
//	import Am.Lang
func (p *Parser) parseImport() ast.Declaration {
	importToken := p.advance() // import
	path := p.parseQualifiedName()

	return &ast.ImportDecl{
		ImportToken: importToken,
		Path:        path,
	}
}

// parseQualifiedName 解析点分限定名 (App.Core.Sprite)
func (p *Parser) parseQualifiedName() string {
	first := p.expect(token.IDENT, "expected identifier")
	name := first.Literal

	for p.check(token.DOT) {
		p.advance()
		part := p.expect(token.IDENT, "expected identifier after '.'")
		name += "." + part.Literal
	}

	return name
}

// ============================================================================
// 类与接口声明
// ============================================================================

// parseClass 解析类声明
//
//	class Sprite<T> : Node, Drawable { ... }
func (p *Parser) parseClass(directives []*ast.Directive) ast.Declaration {
	classToken := p.advance() // class
	nameToken := p.expect(token.IDENT, "expected class name")

	decl := &ast.ClassDecl{
		Directives: directives,
		ClassToken: classToken,
		Name:       &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
	}

	decl.TypeParams = p.parseTypeParams()

	// 超类型列表
	if p.check(token.COLON) {
		p.advance()
		decl.Supers = append(decl.Supers, p.parseType())
		for p.check(token.COMMA) {
			p.advance()
			decl.Supers = append(decl.Supers, p.parseType())
		}
	}

	decl.LBrace = p.expect(token.LBRACE, "expected '{' to open class body")
	decl.Members = p.parseClassBody()
	decl.RBrace = p.expect(token.RBRACE, "expected '}' to close class body")

	return decl
}

// parseInterface 解析接口声明
//
//	interface Drawable { fun draw(): Void }
func (p *Parser) parseInterface(directives []*ast.Directive) ast.Declaration {
	ifaceToken := p.advance() // interface
	nameToken := p.expect(token.IDENT, "expected interface name")

	decl := &ast.InterfaceDecl{
		Directives:     directives,
		InterfaceToken: ifaceToken,
		Name:           &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
	}

	decl.TypeParams = p.parseTypeParams()

	if p.check(token.COLON) {
		p.advance()
		decl.Supers = append(decl.Supers, p.parseType())
		for p.check(token.COMMA) {
			p.advance()
			decl.Supers = append(decl.Supers, p.parseType())
		}
	}

	decl.LBrace = p.expect(token.LBRACE, "expected '{' to open interface body")

	for !p.check(token.RBRACE) && !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.check(token.RBRACE) || p.isAtEnd() {
			break
		}

		memberDirectives := p.parseDirectives()
		member := p.parseFun(memberDirectives, true)
		if fd, ok := member.(*ast.FunDecl); ok {
			decl.Methods = append(decl.Methods, fd)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	decl.RBrace = p.expect(token.RBRACE, "expected '}' to close interface body")
	return decl
}

// parseTypeParams 解析泛型类型参数列表 <T, U>，无则返回 nil
func (p *Parser) parseTypeParams() []*ast.Identifier {
	if !p.check(token.LT) {
		return nil
	}
	p.advance() // <

	var params []*ast.Identifier
	for {
		nameToken := p.expect(token.IDENT, "expected type parameter name")
		params = append(params, &ast.Identifier{Token: nameToken, Name: nameToken.Literal})

		if !p.check(token.COMMA) {
			break
		}
		p.advance()
	}

	p.expect(token.GT, "expected '>' to close type parameter list")
	return params
}

// parseClassBody 解析类体成员（字段与方法）
func (p *Parser) parseClassBody() []ast.Declaration {
	var members []ast.Declaration

	for !p.check(token.RBRACE) && !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.check(token.RBRACE) || p.isAtEnd() {
			break
		}

		member := p.parseClassMember()
		if member != nil {
			members = append(members, member)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	return members
}

// parseClassMember 解析单个类体成员
func (p *Parser) parseClassMember() ast.Declaration {
	directives := p.parseDirectives()

	isStatic := false
	if p.check(token.STATIC) {
		isStatic = true
		p.advance()
	}

	switch p.peek().Type {
	case token.VAR:
		if len(directives) > 0 {
			p.errorAtCurrent("directives cannot be attached to field declarations")
		}
		return p.parseField(isStatic)

	case token.FUN, token.SUSPEND:
		return p.parseFunTail(directives, isStatic, false)

	default:
		p.errorAtCurrent(fmt.Sprintf("unexpected token %s in class body", p.peek().Type))
		p.advance()
		return nil
	}
}

// parseField 解析字段声明
//
//	var x: Int = 0
//	static var count: Int = 0
//
// 字段声明后的分号可选。
func (p *Parser) parseField(isStatic bool) ast.Declaration {
	varToken := p.advance() // var
	nameToken := p.expect(token.IDENT, "expected field name")

	decl := &ast.FieldDecl{
		VarToken: varToken,
		Name:     &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		IsStatic: isStatic,
	}

	if p.check(token.COLON) {
		p.advance()
		decl.Type = p.parseType()
	}

	if p.check(token.ASSIGN) {
		p.advance()
		decl.Value = p.parseExpr(PREC_NONE)
	}

	if decl.Type == nil && decl.Value == nil {
		p.errorAt(nameToken.Pos, "field needs a type annotation or an initializer")
	}

	if p.check(token.SEMICOLON) {
		p.advance()
	}

	return decl
}

// ============================================================================
// 函数声明
// ============================================================================

// parseFun 解析函数声明（含 static / suspend 前缀修饰）
//
// iface 为 true 时为接口方法：无函数体，不允许修饰符。
func (p *Parser) parseFun(directives []*ast.Directive, iface bool) ast.Declaration {
	isStatic := false
	if p.check(token.STATIC) {
		if iface {
			p.errorAtCurrent("interface methods cannot be static")
		}
		isStatic = true
		p.advance()
	}

	return p.parseFunTail(directives, isStatic, iface)
}

// parseFunTail 解析 static 修饰之后的函数声明剩余部分
func (p *Parser) parseFunTail(directives []*ast.Directive, isStatic, iface bool) ast.Declaration {
	isSuspend := false
	if p.check(token.SUSPEND) {
		if iface {
			p.errorAtCurrent("interface methods cannot be suspend")
		}
		isSuspend = true
		p.advance()
	}

	funToken := p.expect(token.FUN, "expected 'fun'")
	nameToken := p.expect(token.IDENT, "expected function name")

	decl := &ast.FunDecl{
		Directives: directives,
		FunToken:   funToken,
		Name:       &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		IsStatic:   isStatic,
		IsSuspend:  isSuspend,
	}

	decl.Params = p.parseParamList()

	if p.check(token.COLON) {
		p.advance()
		decl.ReturnType = p.parseType()
	}

	if iface {
		// 接口方法无函数体
		return decl
	}

	if p.check(token.LBRACE) {
		decl.Body = p.parseBlock()
	} else {
		p.errorAtCurrent("expected '{' to open function body")
	}

	return decl
}

// parseTestFun 解析测试函数声明
//
//	test startsEmpty() { ... }
//
// 测试函数零参数、无返回类型。是否位于测试根目录由绑定阶段校验。
func (p *Parser) parseTestFun(directives []*ast.Directive) ast.Declaration {
	testToken := p.advance() // test
	nameToken := p.expect(token.IDENT, "expected test name")

	decl := &ast.FunDecl{
		Directives: directives,
		FunToken:   testToken,
		Name:       &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		IsTest:     true,
	}

	p.expect(token.LPAREN, "expected '(' after test name")
	if !p.check(token.RPAREN) {
		p.errorAtCurrent("test functions take no parameters")
	}
	p.expect(token.RPAREN, "expected ')' after test parameter list")

	if p.check(token.LBRACE) {
		decl.Body = p.parseBlock()
	} else {
		p.errorAtCurrent("expected '{' to open test body")
	}

	return decl
}

// parseParamList 解析形参列表 (a: Int, b: String)
func (p *Parser) parseParamList() []*ast.Param {
	p.expect(token.LPAREN, "expected '(' to open parameter list")

	var params []*ast.Param
	if !p.check(token.RPAREN) {
		for {
			param := p.parseParam()
			if param != nil {
				params = append(params, param)
			}

			if !p.check(token.COMMA) {
				break
			}
			p.advance()
		}
	}

	p.expect(token.RPAREN, "expected ')' to close parameter list")
	return params
}

// parseParam 解析单个形参 (name: Type)
func (p *Parser) parseParam() *ast.Param {
	nameToken := p.expect(token.IDENT, "expected parameter name")
	p.expect(token.COLON, "expected ':' after parameter name")
	typ := p.parseType()

	if typ == nil {
		return nil
	}

	return &ast.Param{
		Name: &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		Type: typ,
	}
}

// ============================================================================
// 类型标注
// ============================================================================

// parseType 解析类型标注
//
// 语法: (具名类型 | 函数类型) 后缀*
// 后缀: [] 数组、? 可空。后缀从左到右结合：Int[]? 是可空的 Int 数组。
func (p *Parser) parseType() ast.TypeNode {
	var base ast.TypeNode

	switch p.peek().Type {
	case token.FUN:
		base = p.parseFunType()

	case token.IDENT:
		base = p.parseNamedType()

	default:
		p.errorAtCurrent(fmt.Sprintf("unexpected token %s, expected type", p.peek().Type))
		return nil
	}

	if base == nil {
		return nil
	}

	// 后缀循环
	for {
		if p.check(token.LBRACKET) && p.peekNext().Type == token.RBRACKET {
			lbracket := p.advance()
			rbracket := p.advance()
			base = &ast.ArrayType{ElementType: base, LBracket: lbracket, RBracket: rbracket}
			continue
		}

		if p.check(token.QUESTION) {
			question := p.advance()
			base = &ast.NullableType{Inner: base, Question: question}
			continue
		}

		break
	}

	return base
}

// parseNamedType 解析具名类型引用（可带泛型实参）
func (p *Parser) parseNamedType() ast.TypeNode {
	first := p.peek()
	name := p.parseQualifiedName()

	typ := &ast.NamedType{Token: first, Name: name}

	if p.check(token.LT) {
		p.advance() // <
		for {
			arg := p.parseType()
			if arg == nil {
				break
			}
			typ.TypeArgs = append(typ.TypeArgs, arg)

			if !p.check(token.COMMA) {
				break
			}
			p.advance()
		}
		p.expect(token.GT, "expected '>' to close type argument list")
	}

	return typ
}

// parseFunType 解析函数类型 (fun(Int, String): Bool)
func (p *Parser) parseFunType() ast.TypeNode {
	funToken := p.advance() // fun
	p.expect(token.LPAREN, "expected '(' in function type")

	typ := &ast.FunType{FunToken: funToken}

	if !p.check(token.RPAREN) {
		for {
			param := p.parseType()
			if param == nil {
				break
			}
			typ.Params = append(typ.Params, param)

			if !p.check(token.COMMA) {
				break
			}
			p.advance()
		}
	}

	p.expect(token.RPAREN, "expected ')' in function type")

	if p.check(token.COLON) {
		p.advance()
		typ.ReturnType = p.parseType()
	}

	return typ
}

// ============================================================================
// 语句
// ============================================================================

// parseBlock 解析语句块
func (p *Parser) parseBlock() *ast.BlockStmt {
	lbrace := p.expect(token.LBRACE, "expected '{'")

	block := &ast.BlockStmt{LBrace: lbrace}

	for !p.check(token.RBRACE) && !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.check(token.RBRACE) || p.isAtEnd() {
			break
		}

		stmt := p.parseStatement()
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	block.RBrace = p.expect(token.RBRACE, "expected '}'")
	return block
}

// parseStatement 解析单个语句
func (p *Parser) parseStatement() ast.Statement {
	switch p.peek().Type {
	case token.VAR:
		return p.parseVarStmt()
	case token.IF:
		return p.parseIfStmt()
	case token.WHILE:
		return p.parseWhileStmt()
	case token.FOR:
		return p.parseForStmt()
	case token.LOOP:
		return p.parseLoopStmt()
	case token.SWITCH:
		return p.parseSwitchStmt()
	case token.RETURN:
		return p.parseReturnStmt()
	case token.THROW:
		return p.parseThrowStmt()
	case token.BREAK:
		stmt := &ast.BreakStmt{Token: p.advance()}
		p.expect(token.SEMICOLON, "expected ';' after break")
		return stmt
	case token.CONTINUE:
		stmt := &ast.ContinueStmt{Token: p.advance()}
		p.expect(token.SEMICOLON, "expected ';' after continue")
		return stmt
	case token.SCOPE:
		return p.parseScopeStmt()
	case token.LBRACE:
		return p.parseBlock()
	default:
		return p.parseSimpleStmt()
	}
}

// parseVarStmt 解析局部变量声明
//
//	var x: Int = 1;
//	var y = f();
func (p *Parser) parseVarStmt() ast.Statement {
	varToken := p.advance() // var
	nameToken := p.expect(token.IDENT, "expected variable name")

	stmt := &ast.VarStmt{
		VarToken: varToken,
		Name:     &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
	}

	if p.check(token.COLON) {
		p.advance()
		stmt.Type = p.parseType()
	}

	if p.check(token.ASSIGN) {
		p.advance()
		stmt.Value = p.parseExpr(PREC_NONE)
	}

	if stmt.Type == nil && stmt.Value == nil {
		p.errorAt(nameToken.Pos, "variable needs a type annotation or an initializer")
	}

	p.expect(token.SEMICOLON, "expected ';' after variable declaration")
	return stmt
}

// parseIfStmt 解析 if 语句（含 else if 链）
func (p *Parser) parseIfStmt() ast.Statement {
	ifToken := p.advance() // if
	p.expect(token.LPAREN, "expected '(' after 'if'")
	cond := p.parseExpr(PREC_NONE)
	p.expect(token.RPAREN, "expected ')' after condition")

	stmt := &ast.IfStmt{
		IfToken: ifToken,
		Cond:    cond,
		Then:    p.parseBlock(),
	}

	if p.check(token.ELSE) {
		p.advance()
		if p.check(token.IF) {
			stmt.Else = p.parseIfStmt()
		} else {
			stmt.Else = p.parseBlock()
		}
	}

	return stmt
}

// parseWhileStmt 解析 while 循环
func (p *Parser) parseWhileStmt() ast.Statement {
	whileToken := p.advance() // while
	p.expect(token.LPAREN, "expected '(' after 'while'")
	cond := p.parseExpr(PREC_NONE)
	p.expect(token.RPAREN, "expected ')' after condition")

	return &ast.WhileStmt{
		WhileToken: whileToken,
		Cond:       cond,
		Body:       p.parseBlock(),
	}
}

// parseForStmt 解析区间循环
//
//	for (i = 0 to 9) { ... }
func (p *Parser) parseForStmt() ast.Statement {
	forToken := p.advance() // for
	p.expect(token.LPAREN, "expected '(' after 'for'")

	nameToken := p.expect(token.IDENT, "expected loop variable name")
	p.expect(token.ASSIGN, "expected '=' after loop variable")
	from := p.parseExpr(PREC_NONE)
	p.expect(token.TO, "expected 'to' in for range")
	to := p.parseExpr(PREC_NONE)
	p.expect(token.RPAREN, "expected ')' after for range")

	return &ast.ForStmt{
		ForToken: forToken,
		Var:      &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		From:     from,
		To:       to,
		Body:     p.parseBlock(),
	}
}

// parseLoopStmt 解析无限循环
func (p *Parser) parseLoopStmt() ast.Statement {
	loopToken := p.advance() // loop
	return &ast.LoopStmt{
		LoopToken: loopToken,
		Body:      p.parseBlock(),
	}
}

// parseSwitchStmt 解析 switch 语句
//
//	switch (x) { case 1: ... case 2: ... default: ... }
//
// default 必须是最后一个分支，case 出现在 default 之后是语法错误。
// 出错的分支仍会进入语法树，绑定阶段据此再兜底校验一次。
func (p *Parser) parseSwitchStmt() ast.Statement {
	switchToken := p.advance() // switch
	p.expect(token.LPAREN, "expected '(' after 'switch'")
	subject := p.parseExpr(PREC_NONE)
	p.expect(token.RPAREN, "expected ')' after switch subject")

	stmt := &ast.SwitchStmt{
		SwitchToken: switchToken,
		Subject:     subject,
		LBrace:      p.expect(token.LBRACE, "expected '{' to open switch body"),
	}

	seenDefault := false

	for (p.check(token.CASE) || p.check(token.DEFAULT)) && len(p.errors) < maxParseErrors {
		if seenDefault && p.check(token.CASE) {
			p.errorAtCurrent("'case' clause after 'default'")
			p.panicMode = false // 分支本身仍可正常解析
		}

		clause := p.parseCaseClause()
		if clause != nil {
			if clause.IsDefault() {
				seenDefault = true
			}
			stmt.Cases = append(stmt.Cases, clause)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	stmt.RBrace = p.expect(token.RBRACE, "expected '}' to close switch body")
	return stmt
}

// parseCaseClause 解析单个 case 或 default 分支
//
// 分支体延伸到下一个 case/default 或右花括号。
func (p *Parser) parseCaseClause() *ast.CaseClause {
	caseToken := p.advance() // case 或 default

	clause := &ast.CaseClause{CaseToken: caseToken}

	if caseToken.Type == token.CASE {
		clause.Value = p.parseExpr(PREC_NONE)
	}

	clause.Colon = p.expect(token.COLON, "expected ':' after case label")

	for !p.check(token.CASE) && !p.check(token.DEFAULT) &&
		!p.check(token.RBRACE) && !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.check(token.CASE) || p.check(token.DEFAULT) || p.check(token.RBRACE) || p.isAtEnd() {
			break
		}

		stmt := p.parseStatement()
		if stmt != nil {
			clause.Body = append(clause.Body, stmt)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	return clause
}

// parseReturnStmt 解析 return 语句
func (p *Parser) parseReturnStmt() ast.Statement {
	returnToken := p.advance() // return

	stmt := &ast.ReturnStmt{ReturnToken: returnToken}

	if !p.check(token.SEMICOLON) {
		stmt.Value = p.parseExpr(PREC_NONE)
	}

	p.expect(token.SEMICOLON, "expected ';' after return")
	return stmt
}

// parseThrowStmt 解析 throw 语句
func (p *Parser) parseThrowStmt() ast.Statement {
	throwToken := p.advance() // throw
	value := p.parseExpr(PREC_NONE)
	p.expect(token.SEMICOLON, "expected ';' after throw")

	return &ast.ThrowStmt{ThrowToken: throwToken, Value: value}
}

// parseScopeStmt 解析替身生效块
//
//	scope { mock X { ... } stmt... }
//
// mock 声明必须位于块的开头。
func (p *Parser) parseScopeStmt() ast.Statement {
	scopeToken := p.advance() // scope
	lbrace := p.expect(token.LBRACE, "expected '{' after 'scope'")

	stmt := &ast.ScopeStmt{
		ScopeToken: scopeToken,
		LBrace:     lbrace,
	}

	for p.check(token.MOCK) && len(p.errors) < maxParseErrors {
		mock := p.parseMockDecl()
		if mock != nil {
			stmt.Mocks = append(stmt.Mocks, mock)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	for !p.check(token.RBRACE) && !p.isAtEnd() && len(p.errors) < maxParseErrors {
		p.skipIllegal()
		if p.check(token.RBRACE) || p.isAtEnd() {
			break
		}

		if p.check(token.MOCK) {
			p.errorAtCurrent("mock declarations must appear at the start of a scope block")
			p.parseMockDecl()
			continue
		}

		body := p.parseStatement()
		if body != nil {
			stmt.Stmts = append(stmt.Stmts, body)
		}

		if p.panicMode {
			p.synchronize()
		}
	}

	stmt.RBrace = p.expect(token.RBRACE, "expected '}' to close scope block")
	return stmt
}

// parseMockDecl 解析类替身声明
//
//	mock X { ...class body... }
func (p *Parser) parseMockDecl() *ast.MockDecl {
	mockToken := p.advance() // mock
	nameToken := p.expect(token.IDENT, "expected class name after 'mock'")

	decl := &ast.MockDecl{
		MockToken: mockToken,
		Name:      &ast.Identifier{Token: nameToken, Name: nameToken.Literal},
		LBrace:    p.expect(token.LBRACE, "expected '{' to open mock body"),
	}

	decl.Members = p.parseClassBody()
	decl.RBrace = p.expect(token.RBRACE, "expected '}' to close mock body")

	return decl
}

// parseSimpleStmt 解析表达式语句或赋值语句
func (p *Parser) parseSimpleStmt() ast.Statement {
	expr := p.parseExpr(PREC_NONE)
	if expr == nil {
		// 表达式解析失败，错误已记录
		return nil
	}

	if p.check(token.ASSIGN) {
		assign := p.advance()
		p.checkAssignTarget(expr)

		value := p.parseAssignValue()
		p.expect(token.SEMICOLON, "expected ';' after assignment")

		return &ast.AssignStmt{Target: expr, Assign: assign, Value: value}
	}

	p.expect(token.SEMICOLON, "expected ';' after expression")
	return &ast.ExprStmt{Expr: expr}
}

// parseAssignValue 解析赋值右侧，支持右结合的链式赋值
//
//	a = b = 3;  解析为  a = (b = 3)
func (p *Parser) parseAssignValue() ast.Expression {
	expr := p.parseExpr(PREC_NONE)
	if expr == nil {
		return nil
	}

	if !p.check(token.ASSIGN) {
		return expr
	}

	assign := p.advance()
	p.checkAssignTarget(expr)

	value := p.parseAssignValue()
	if value == nil {
		return nil
	}

	return &ast.AssignExpr{Target: expr, Assign: assign, Value: value}
}

// checkAssignTarget 校验赋值目标的语法形态
func (p *Parser) checkAssignTarget(expr ast.Expression) {
	switch expr.(type) {
	case *ast.Identifier, *ast.MemberExpr, *ast.IndexExpr:
		// 合法的赋值目标
	default:
		p.errorAt(expr.Pos(), "invalid assignment target")
	}
}

// ============================================================================
// 表达式（优先级爬升）
// ============================================================================

// parseExpr 解析优先级不低于 minPrec 的表达式
func (p *Parser) parseExpr(minPrec int) ast.Expression {
	left := p.parsePrefixExpr()
	if left == nil {
		return nil
	}

	for {
		prec, ok := infixPrecedence[p.peek().Type]
		if !ok || prec <= minPrec {
			break
		}

		left = p.parseInfixExpr(left)
		if left == nil {
			return nil
		}
	}

	return left
}

// parsePrefixExpr 解析前缀表达式和基本表达式
func (p *Parser) parsePrefixExpr() ast.Expression {
	switch p.peek().Type {
	case token.NOT, token.MINUS, token.BIT_NOT:
		op := p.advance()
		right := p.parseExpr(PREC_UNARY)
		if right == nil {
			return nil
		}
		return &ast.PrefixExpr{Operator: op, Right: right}

	default:
		return p.parsePrimary()
	}
}

// parseInfixExpr 解析一个中缀运算（左操作数已就绪）
func (p *Parser) parseInfixExpr(left ast.Expression) ast.Expression {
	switch p.peek().Type {

	case token.LPAREN:
		return p.parseCall(left, nil)

	case token.LBRACKET:
		lbracket := p.advance()
		index := p.parseExpr(PREC_NONE)
		rbracket := p.expect(token.RBRACKET, "expected ']' after index")
		return &ast.IndexExpr{Object: left, LBracket: lbracket, Index: index, RBracket: rbracket}

	case token.DOT, token.SAFE_DOT:
		dot := p.advance()
		memberToken := p.expect(token.IDENT, "expected member name after '.'")
		return &ast.MemberExpr{
			Object: left,
			Dot:    dot,
			Safe:   dot.Type == token.SAFE_DOT,
			Member: &ast.Identifier{Token: memberToken, Name: memberToken.Literal},
		}

	case token.AS:
		asToken := p.advance()
		typ := p.parseType()
		if typ == nil {
			return nil
		}
		return &ast.CastExpr{Expr: left, AsToken: asToken, Type: typ}

	case token.IS:
		isToken := p.advance()
		typ := p.parseType()
		if typ == nil {
			return nil
		}
		return &ast.IsExpr{Expr: left, IsToken: isToken, Type: typ}

	case token.LT:
		// 可能是显式泛型实参调用 f<Int>(x)，也可能是小于比较
		if typeArgs, ok := p.tryParseCallTypeArgs(); ok {
			return p.parseCall(left, typeArgs)
		}
		fallthrough

	default:
		op := p.advance()
		prec := infixPrecedence[op.Type]
		right := p.parseExpr(prec) // 左结合
		if right == nil {
			return nil
		}
		return &ast.InfixExpr{Left: left, Operator: op, Right: right}
	}
}

// parseCall 解析调用实参列表（TypeArgs 可为 nil）
func (p *Parser) parseCall(callee ast.Expression, typeArgs []ast.TypeNode) ast.Expression {
	lparen := p.expect(token.LPAREN, "expected '('")

	call := &ast.CallExpr{
		Callee:   callee,
		TypeArgs: typeArgs,
		LParen:   lparen,
	}

	if !p.check(token.RPAREN) {
		for {
			arg := p.parseExpr(PREC_NONE)
			if arg == nil {
				break
			}
			call.Args = append(call.Args, arg)

			if !p.check(token.COMMA) {
				break
			}
			p.advance()
		}
	}

	call.RParen = p.expect(token.RPAREN, "expected ')' to close argument list")
	return call
}

// tryParseCallTypeArgs 尝试将 '<' 解析为调用的泛型实参列表
//
// 回溯式解析：成功的条件是类型实参列表闭合后紧跟 '('。
// 不满足时回退到 '<' 处，按小于比较处理。
func (p *Parser) tryParseCallTypeArgs() ([]ast.TypeNode, bool) {
	saved := p.pos
	savedErrCount := len(p.errors)
	savedPanic := p.panicMode

	p.advance() // <

	var args []ast.TypeNode
	for {
		arg := p.parseType()
		if arg == nil || len(p.errors) > savedErrCount {
			break
		}
		args = append(args, arg)

		if !p.check(token.COMMA) {
			break
		}
		p.advance()
	}

	if len(p.errors) == savedErrCount && len(args) > 0 &&
		p.check(token.GT) && p.peekNext().Type == token.LPAREN {
		p.advance() // >
		return args, true
	}

	// 回退
	p.pos = saved
	p.errors = p.errors[:savedErrCount]
	p.panicMode = savedPanic
	return nil, false
}

// parsePrimary 解析基本表达式
func (p *Parser) parsePrimary() ast.Expression {
	switch p.peek().Type {

	case token.INT:
		tok := p.advance()
		value, _ := tok.Value.(int64)
		isLong := len(tok.Literal) > 0 && tok.Literal[len(tok.Literal)-1] == 'L'
		return &ast.IntLiteral{Token: tok, Value: value, IsLong: isLong}

	case token.FLOAT:
		tok := p.advance()
		value, _ := tok.Value.(float64)
		isFloat := len(tok.Literal) > 0 && tok.Literal[len(tok.Literal)-1] == 'F'
		return &ast.FloatLiteral{Token: tok, Value: value, IsFloat: isFloat}

	case token.CHAR:
		tok := p.advance()
		value, _ := tok.Value.(uint16)
		return &ast.CharLiteral{Token: tok, Value: value}

	case token.STRING:
		tok := p.advance()
		value, _ := tok.Value.(string)
		return &ast.StringLiteral{Token: tok, Value: value}

	case token.INTERP_STRING:
		return p.parseInterpString()

	case token.TRUE:
		return &ast.BoolLiteral{Token: p.advance(), Value: true}

	case token.FALSE:
		return &ast.BoolLiteral{Token: p.advance(), Value: false}

	case token.NULL:
		return &ast.NullLiteral{Token: p.advance()}

	case token.THIS:
		return &ast.ThisExpr{Token: p.advance()}

	case token.SUPER:
		return &ast.SuperExpr{Token: p.advance()}

	case token.NEW:
		return p.parseNewExpr()

	case token.IF:
		return p.parseIfExpr()

	case token.IDENT:
		tok := p.advance()
		return &ast.Identifier{Token: tok, Name: tok.Literal}

	case token.LBRACKET:
		return p.parseArrayLiteral()

	case token.LPAREN:
		return p.parseParenOrLambda()

	default:
		p.errorAtCurrent(fmt.Sprintf("unexpected token %s, expected expression", p.peek().Type))
		return nil
	}
}

// parseIfExpr 解析条件表达式 if (c) a else b
//
// 语句位置的 if 由 parseIfStmt 处理，这里只处理表达式位置；
// else 分支不可省略。分支本身可以再是条件表达式，天然右嵌套。
func (p *Parser) parseIfExpr() ast.Expression {
	ifToken := p.advance() // if
	p.expect(token.LPAREN, "expected '(' after 'if'")
	cond := p.parseExpr(PREC_NONE)
	p.expect(token.RPAREN, "expected ')' after condition")

	then := p.parseExpr(PREC_NONE)
	if then == nil {
		return nil
	}

	p.expect(token.ELSE, "expected 'else' in conditional expression")

	els := p.parseExpr(PREC_NONE)
	if els == nil {
		return nil
	}

	return &ast.IfExpr{IfToken: ifToken, Cond: cond, Then: then, Else: els}
}

// parseInterpString 解析插值字符串
//
// 词法阶段已将字符串切分为文本段与表达式段；
// 表达式段原文在此按代码重新词法并解析，位置重定位到源文件内。
func (p *Parser) parseInterpString() ast.Expression {
	tok := p.advance()

	segments, _ := tok.Value.([]token.InterpSegment)

	expr := &ast.InterpStringLiteral{Token: tok}

	for _, seg := range segments {
		if !seg.IsExpr() {
			expr.Parts = append(expr.Parts, &ast.StringLiteral{
				Token: token.Token{
					Type:    token.STRING,
					Literal: seg.Raw,
					Value:   seg.Text,
					Pos:     tok.Pos,
				},
				Value: seg.Text,
			})
			continue
		}

		sub := p.parseEmbeddedExpr(seg)
		if sub != nil {
			expr.Parts = append(expr.Parts, sub)
		}
	}

	return expr
}

// parseEmbeddedExpr 解析单个插值表达式段
func (p *Parser) parseEmbeddedExpr(seg token.InterpSegment) ast.Expression {
	subLexer := lexer.New(seg.Expr, p.filename)
	subTokens := subLexer.ScanTokens()

	// 将段内位置重定位到源文件（插值不跨行，只需平移列与偏移）
	for i := range subTokens {
		subTokens[i].Pos.Line = seg.ExprPos.Line
		subTokens[i].Pos.Column += seg.ExprPos.Column - 1
		subTokens[i].Pos.Offset += seg.ExprPos.Offset
	}

	sub := New(subTokens, p.filename)
	for _, le := range subLexer.Errors() {
		pos := le.Pos
		pos.Line = seg.ExprPos.Line
		pos.Column += seg.ExprPos.Column - 1
		pos.Offset += seg.ExprPos.Offset
		sub.errors = append(sub.errors, Error{Pos: pos, Message: le.Message})
	}

	result := sub.parseExpr(PREC_NONE)

	if !sub.isAtEnd() && len(sub.errors) == 0 {
		sub.errorAtCurrent("unexpected trailing tokens in interpolation expression")
	}

	p.errors = append(p.errors, sub.errors...)
	if len(sub.errors) > 0 {
		return nil
	}

	return result
}

// parseNewExpr 解析对象或数组创建表达式
//
//	new Sprite(1, 2)
//	new List<Int>()
//	new Int[10]
func (p *Parser) parseNewExpr() ast.Expression {
	newToken := p.advance() // new

	typ := p.parseNamedType()
	if typ == nil {
		return nil
	}

	// 数组创建: new T[size]
	if p.check(token.LBRACKET) {
		lbracket := p.advance()
		size := p.parseExpr(PREC_NONE)
		rbracket := p.expect(token.RBRACKET, "expected ']' after array size")

		return &ast.NewArrayExpr{
			NewToken:    newToken,
			ElementType: typ,
			LBracket:    lbracket,
			Size:        size,
			RBracket:    rbracket,
		}
	}

	expr := &ast.NewExpr{
		NewToken: newToken,
		Type:     typ,
		LParen:   p.expect(token.LPAREN, "expected '(' after type in new expression"),
	}

	if !p.check(token.RPAREN) {
		for {
			arg := p.parseExpr(PREC_NONE)
			if arg == nil {
				break
			}
			expr.Args = append(expr.Args, arg)

			if !p.check(token.COMMA) {
				break
			}
			p.advance()
		}
	}

	expr.RParen = p.expect(token.RPAREN, "expected ')' to close constructor arguments")
	return expr
}

// parseArrayLiteral 解析数组字面量 [1, 2, 3]
func (p *Parser) parseArrayLiteral() ast.Expression {
	lbracket := p.advance() // [

	lit := &ast.ArrayLiteral{LBracket: lbracket}

	if !p.check(token.RBRACKET) {
		for {
			elem := p.parseExpr(PREC_NONE)
			if elem == nil {
				break
			}
			lit.Elements = append(lit.Elements, elem)

			if !p.check(token.COMMA) {
				break
			}
			p.advance()
		}
	}

	lit.RBracket = p.expect(token.RBRACKET, "expected ']' to close array literal")
	return lit
}

// parseParenOrLambda 区分括号表达式与 lambda
//
//	(a + b)           括号表达式
//	(a: Int) => a + 1 lambda
//	() => f()         零参数 lambda
//
// 判别方式：'(' 后紧跟 ')' 或 "IDENT :" 时是 lambda。
func (p *Parser) parseParenOrLambda() ast.Expression {
	if p.isLambdaStart() {
		return p.parseLambda()
	}

	p.advance() // (
	expr := p.parseExpr(PREC_NONE)
	p.expect(token.RPAREN, "expected ')' to close grouping")
	return expr
}

// isLambdaStart 判断当前 '(' 是否开启 lambda 参数列表
func (p *Parser) isLambdaStart() bool {
	if p.peekNext().Type == token.RPAREN {
		// () => 才是 lambda，() 单独出现是错误，也按 lambda 解析报错
		return p.peekAt(2).Type == token.DOUBLE_ARROW
	}
	return p.peekNext().Type == token.IDENT && p.peekAt(2).Type == token.COLON
}

// parseLambda 解析 lambda 表达式
func (p *Parser) parseLambda() ast.Expression {
	lparen := p.peek()
	params := p.parseParamList()

	arrow := p.expect(token.DOUBLE_ARROW, "expected '=>' after lambda parameters")

	lambda := &ast.LambdaExpr{
		LParen: lparen,
		Params: params,
		Arrow:  arrow,
	}

	if p.check(token.LBRACE) {
		lambda.Body = p.parseBlock()
	} else {
		lambda.Expr = p.parseExpr(PREC_NONE)
	}

	return lambda
}

// ============================================================================
// 底层 token 操作
// ============================================================================

// isAtEnd 检查是否到达 token 流末尾
func (p *Parser) isAtEnd() bool {
	return p.peek().Type == token.EOF
}

// peek 查看当前 token
func (p *Parser) peek() token.Token {
	if p.pos >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos]
}

// peekNext 查看下一个 token
func (p *Parser) peekNext() token.Token {
	return p.peekAt(1)
}

// peekAt 查看当前位置之后第 n 个 token
func (p *Parser) peekAt(n int) token.Token {
	if p.pos+n >= len(p.tokens) {
		return token.Token{Type: token.EOF}
	}
	return p.tokens[p.pos+n]
}

// advance 前进并返回当前 token
func (p *Parser) advance() token.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// check 检查当前 token 类型
func (p *Parser) check(t token.TokenType) bool {
	return p.peek().Type == t
}

// expect 断言当前 token 类型并前进
//
// 类型不匹配时记录错误、进入 panic 模式，返回零值 token（位置为当前位置）。
func (p *Parser) expect(t token.TokenType, message string) token.Token {
	if p.check(t) {
		return p.advance()
	}

	p.errorAtCurrent(message)
	return token.Token{Type: t, Pos: p.peek().Pos}
}

// skipIllegal 跳过 ILLEGAL 标记 token
//
// 词法阶段已为其记录过错误，解析阶段静默跳过以避免级联错误。
func (p *Parser) skipIllegal() {
	for p.check(token.ILLEGAL) {
		p.advance()
	}
}

// ============================================================================
// 错误处理与恢复
// ============================================================================

// errorAtCurrent 在当前 token 位置记录错误
func (p *Parser) errorAtCurrent(message string) {
	p.errorAt(p.peek().Pos, message)
}

// errorAt 记录一条语法错误并进入 panic 模式
//
// panic 模式下的后续错误被抑制，直到 synchronize() 找到语句边界。
func (p *Parser) errorAt(pos token.Position, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true

	p.errors = append(p.errors, Error{Pos: pos, Message: message})
}

// synchronize 错误恢复：跳到下一个语句边界
//
// 消费 token 直到越过分号、停在右花括号或一个明确的语句/声明起始
// 关键字处，然后退出 panic 模式继续解析。
func (p *Parser) synchronize() {
	p.panicMode = false

	for !p.isAtEnd() {
		if p.pos > 0 && p.tokens[p.pos-1].Type == token.SEMICOLON {
			return
		}

		switch p.peek().Type {
		case token.RBRACE,
			token.NAMESPACE, token.IMPORT, token.CLASS, token.INTERFACE,
			token.FUN, token.TEST, token.VAR, token.STATIC,
			token.IF, token.WHILE, token.FOR, token.LOOP, token.SWITCH,
			token.RETURN, token.THROW, token.SCOPE:
			return
		}

		p.advance()
	}
}
