package cgen

import (
	"fmt"

	"github.com/anderskjeldsen/am-lang-compiler/internal/ast"
	"github.com/anderskjeldsen/am-lang-compiler/internal/symbols"
	"github.com/anderskjeldsen/am-lang-compiler/internal/types"
)

// ============================================================================
// 翻译单元与函数体生成
// ============================================================================

// cscope 引用计数作用域
//
// refs 记录本作用域持有的托管引用（局部变量与被提升的临时值）
// 对应的释放语句，作用域出口按逆序发射。
type cscope struct {
	parent *cscope
	refs   []string
	isLoop bool
}

// lambdaWork 待发射的 lambda 提升函数
type lambdaWork struct {
	name string
	fn   *types.Func
	decl *ast.LambdaExpr
}

// generateUnit 为单个源文件产出 C 翻译单元
func (g *Generator) generateUnit(file *ast.File) (string, error) {
	w := newWriter()
	prevW := g.w
	g.w = w
	defer func() { g.w = prevW }()

	g.lits = make(map[string]string)
	g.litOrder = nil

	// 替身类随使用处语句出现，但结构体和方法必须先落在文件作用域
	for _, mock := range g.collectMocks(file) {
		named, ok := g.bindings.Mocks[mock]
		if !ok {
			return "", fmt.Errorf("internal: unbound mock %s", mock.Name.Name)
		}
		if err := g.emitMockClass(named); err != nil {
			return "", err
		}
	}

	var statics []*types.Field
	err := g.walkDecls(file.Decls, func(decl ast.Declaration) error {
		switch d := decl.(type) {
		case *ast.ClassDecl:
			named, ok := g.declClass[d]
			if !ok || g.bindings.Excluded[d] {
				return nil
			}
			if len(named.TypeParams) > 0 {
				// 泛型按已注册实例逐一特化
				for _, inst := range g.table.Instantiations() {
					if inst.Generic != named || hasTypeParams(inst) {
						continue
					}
					if err := g.emitClassUnit(inst, &statics); err != nil {
						return err
					}
				}
				return nil
			}
			return g.emitClassUnit(named, &statics)

		case *ast.FunDecl:
			fn, ok := g.declFunc[d]
			if !ok || g.bindings.Excluded[d] {
				return nil
			}
			return g.emitFreeFunction(fn)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := g.emitUnitInit(file, statics); err != nil {
		return "", err
	}

	// 驻留表在全部函数体生成后才完整，文件头与驻留变量声明最后拼装
	out := newWriter()
	out.comment("generated from %s", file.Filename)
	out.line(`#include "amrt.h"`)
	out.line(`#include "aml_program.h"`)
	out.blank()
	if len(g.litOrder) > 0 {
		for _, val := range g.litOrder {
			out.line("static amrt_string* %s;", g.lits[val])
		}
		out.blank()
	}
	out.sb.WriteString(w.String())
	return out.String(), nil
}

// walkDecls 递归遍历命名空间，按源码顺序回调类与函数声明
func (g *Generator) walkDecls(decls []ast.Declaration, visit func(ast.Declaration) error) error {
	for _, decl := range decls {
		if ns, ok := decl.(*ast.NamespaceDecl); ok {
			if err := g.walkDecls(ns.Decls, visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(decl); err != nil {
			return err
		}
	}
	return nil
}

// collectMocks 扫描文件内全部函数体，收集 scope 块里的替身声明
func (g *Generator) collectMocks(file *ast.File) []*ast.MockDecl {
	var result []*ast.MockDecl

	var scanStmt func(stmt ast.Statement)
	scanStmts := func(stmts []ast.Statement) {
		for _, s := range stmts {
			scanStmt(s)
		}
	}
	scanStmt = func(stmt ast.Statement) {
		switch s := stmt.(type) {
		case *ast.BlockStmt:
			scanStmts(s.Stmts)
		case *ast.IfStmt:
			scanStmt(s.Then)
			if s.Else != nil {
				scanStmt(s.Else)
			}
		case *ast.WhileStmt:
			scanStmt(s.Body)
		case *ast.ForStmt:
			scanStmt(s.Body)
		case *ast.LoopStmt:
			scanStmt(s.Body)
		case *ast.SwitchStmt:
			for _, c := range s.Cases {
				scanStmts(c.Body)
			}
		case *ast.ScopeStmt:
			result = append(result, s.Mocks...)
			for _, m := range s.Mocks {
				for _, member := range m.Members {
					if fn, ok := member.(*ast.FunDecl); ok && fn.Body != nil {
						scanStmt(fn.Body)
					}
				}
			}
			scanStmts(s.Stmts)
		}
	}

	var scanDecl func(decl ast.Declaration)
	scanDecl = func(decl ast.Declaration) {
		switch d := decl.(type) {
		case *ast.NamespaceDecl:
			for _, inner := range d.Decls {
				scanDecl(inner)
			}
		case *ast.ClassDecl:
			for _, member := range d.Members {
				if fn, ok := member.(*ast.FunDecl); ok && fn.Body != nil {
					scanStmt(fn.Body)
				}
			}
		case *ast.FunDecl:
			if d.Body != nil {
				scanStmt(d.Body)
			}
		}
	}
	for _, decl := range file.Decls {
		scanDecl(decl)
	}
	return result
}

// ============================================================================
// 类发射
// ============================================================================

// emitClassUnit 发射一个类的单元侧内容：类型信息、派发表、析构、方法
func (g *Generator) emitClassUnit(c *types.Named, statics *[]*types.Field) error {
	g.enterInstance(c)
	defer g.leaveInstance()

	w := g.w
	cname := g.classCName(c)

	w.comment("==== %s ====", c.String())
	superRef := "NULL"
	if c.Super != nil {
		superRef = "&" + g.classCName(c.Super) + "_type"
	}
	w.line(`const amrt_type %s_type = { "%s", %s };`, cname, c.String(), superRef)
	w.blank()

	for _, f := range c.Fields {
		if !f.IsStatic {
			continue
		}
		decl, err := g.cDecl(f.Type, g.staticFieldCName(f))
		if err != nil {
			return err
		}
		w.line("%s;", decl)
		*statics = append(*statics, f)
	}

	if err := g.emitVtables(c); err != nil {
		return err
	}
	if err := g.emitDtor(c, false); err != nil {
		return err
	}

	for _, m := range c.Methods {
		if g.excludedMethod(m) {
			continue
		}
		if err := g.emitMethod(c, m, false); err != nil {
			return err
		}
	}
	return nil
}

// emitVtables 为类实现的每个接口发射一张静态派发表
func (g *Generator) emitVtables(c *types.Named) error {
	w := g.w
	for _, iface := range ifaceClosure(c) {
		w.line("const %s_vtable %s = {", g.classCName(iface), g.vtableCName(c, iface))
		w.indent()
		for _, want := range iface.Methods {
			impl := implFor(c, want)
			if impl == nil {
				return fmt.Errorf("internal: %s lacks implementation of %s.%s", c, iface, want.Name)
			}
			cast, err := g.vtableCast(want)
			if err != nil {
				return err
			}
			w.line(".%s = %s%s,", want.Name, cast, g.methodCName(impl))
		}
		w.dedent()
		w.line("};")
		w.blank()
	}
	return nil
}

// vtableCast 把具体方法指针转成接口槽位的 void* self 签名
func (g *Generator) vtableCast(m *types.Method) (string, error) {
	ret, err := g.cType(m.Return)
	if err != nil {
		return "", err
	}
	params := "void*"
	for _, p := range m.Params {
		pt, err := g.cType(p)
		if err != nil {
			return "", err
		}
		params += ", " + pt
	}
	return fmt.Sprintf("(%s (*)(%s))", ret, params), nil
}

// implFor 沿继承链查找接口方法的实现（子类优先）
func implFor(c *types.Named, want *types.Method) *types.Method {
	for cur := c; cur != nil; cur = cur.Super {
		for _, m := range cur.Methods {
			if m.Name == want.Name && !m.IsStatic && !m.IsCtor && len(m.Params) == len(want.Params) {
				return m
			}
		}
	}
	return nil
}

// emitDtor 发射析构函数：释放托管字段后回收对象
func (g *Generator) emitDtor(c *types.Named, fileStatic bool) error {
	w := g.w
	cname := g.classCName(c)
	prefix := ""
	if fileStatic {
		prefix = "static "
	}
	w.line("%svoid %s_dtor(void* __self) {", prefix, cname)
	w.indent()
	w.line("struct %s* self = (struct %s*)__self;", cname, cname)
	for _, f := range c.InstanceFields() {
		rel := g.releaseStmt(f.Type, "self->"+f.Name)
		if rel != "" {
			w.line("%s", rel)
		}
	}
	w.line("free(self);")
	w.dedent()
	w.line("}")
	w.blank()
	return nil
}

// releaseStmt 类型对应的释放语句；非托管类型返回空串
func (g *Generator) releaseStmt(t types.Type, code string) string {
	t = g.subst(t)
	if named, ok := t.(*types.Named); ok && named.IsInterface {
		return fmt.Sprintf("amrt_release(%s.self);", code)
	}
	if g.isRefType(t) {
		return fmt.Sprintf("amrt_release(%s);", code)
	}
	return ""
}

// retainStmt 类型对应的持有语句；非托管类型返回空串
func (g *Generator) retainStmt(t types.Type, code string) string {
	t = g.subst(t)
	if named, ok := t.(*types.Named); ok && named.IsInterface {
		return fmt.Sprintf("amrt_retain(%s.self);", code)
	}
	if g.isRefType(t) {
		return fmt.Sprintf("amrt_retain(%s);", code)
	}
	return ""
}

// emitMockClass 发射替身类：文件作用域的结构体、类型信息与方法
func (g *Generator) emitMockClass(named *types.Named) error {
	g.registerMock(named)
	g.enterInstance(named)
	defer g.leaveInstance()

	w := g.w
	cname := g.classCName(named)

	w.comment("scope mock for %s", named.FQN)
	w.line("struct %s;", cname)
	w.line("typedef struct %s {", cname)
	w.indent()
	w.line("amrt_header hdr;")
	for _, f := range named.InstanceFields() {
		decl, err := g.cDecl(f.Type, f.Name)
		if err != nil {
			return err
		}
		w.line("%s;", decl)
	}
	w.dedent()
	w.line("} %s;", cname)
	w.blank()
	w.line(`static const amrt_type %s_type = { "%s", NULL };`, cname, named.FQN)
	w.blank()

	if err := g.emitDtor(named, true); err != nil {
		return err
	}
	for _, m := range named.Methods {
		if err := g.emitMethod(named, m, true); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) leaveInstance() {
	g.substMap = nil
	g.instSelf = nil
}

// ============================================================================
// 函数发射
// ============================================================================

// emitMethod 发射方法定义（含构造函数与合成默认构造函数）
func (g *Generator) emitMethod(c *types.Named, m *types.Method, fileStatic bool) error {
	sig, err := g.methodSignature(c, m)
	if err != nil {
		return err
	}
	if fileStatic {
		sig = "static " + sig
	}

	return g.emitFunction(sig, func() error {
		g.curClass = c
		g.curReturn = g.subst(m.Return)
		g.inCtor = m.IsCtor

		if m.IsCtor {
			cname := g.classCName(c)
			g.w.line("struct %s* self = (struct %s*)amrt_alloc(sizeof(struct %s), %s_dtor, &%s_type);",
				cname, cname, cname, cname, cname)
			if err := g.emitFieldInits(c); err != nil {
				return err
			}
			g.curReturn = types.Void
		}

		// self 由调用方持有，不参与帧内计数
		for i, pt := range m.Params {
			name := fmt.Sprintf("p%d", i)
			if i < len(m.ParamNames) && m.ParamNames[i] != "" {
				name = m.ParamNames[i]
			}
			g.adoptParam(pt, name)
		}

		if m.Decl != nil && m.Decl.Body != nil {
			if err := g.genStmts(m.Decl.Body.Stmts); err != nil {
				return err
			}
		}
		if !g.terminated {
			g.emitScopeReleases(g.scope)
			if m.IsCtor {
				g.w.line("return self;")
			}
		}
		return nil
	})
}

// emitFieldInits 构造函数内按声明序执行字段初始化表达式
func (g *Generator) emitFieldInits(c *types.Named) error {
	for _, f := range c.InstanceFields() {
		if f.Decl == nil || f.Decl.Value == nil {
			continue
		}
		code, err := g.genCoerced(f.Decl.Value, f.Type)
		if err != nil {
			return err
		}
		g.w.line("self->%s = %s;", f.Name, code)
		if retain := g.retainStmt(f.Type, "self->"+f.Name); retain != "" {
			g.w.line("%s", retain)
		}
	}
	return nil
}

// emitFreeFunction 发射自由函数（含测试函数）
func (g *Generator) emitFreeFunction(fn *symbols.Function) error {
	sig, err := g.funcSignature(fn)
	if err != nil {
		return err
	}
	return g.emitFunction(sig, func() error {
		g.curClass = nil
		g.curReturn = fn.Return
		g.inCtor = false
		for i, p := range fn.Decl.Params {
			g.adoptParam(fn.Params[i], p.Name.Name)
		}
		if fn.Decl.Body != nil {
			if err := g.genStmts(fn.Decl.Body.Stmts); err != nil {
				return err
			}
		}
		if !g.terminated {
			g.emitScopeReleases(g.scope)
		}
		return nil
	})
}

// adoptParam 托管参数进入帧所有权，覆盖赋值与作用域出口才能统一处理
func (g *Generator) adoptParam(t types.Type, name string) {
	if retain := g.retainStmt(t, name); retain != "" {
		g.w.line("%s", retain)
		g.registerCleanup(g.releaseStmt(t, name))
	}
}

// emitFunction 发射一个函数定义，随后补上函数体内提升出的 lambda
func (g *Generator) emitFunction(sig string, body func() error) error {
	outer := g.w
	sub := newWriter()
	g.w = sub

	prevScope, prevTmp, prevLambdas := g.scope, g.tmpSeq, g.lambdas
	g.scope = &cscope{}
	g.tmpSeq = 0
	g.lambdas = nil
	g.terminated = false

	sub.line("%s {", sig)
	sub.indent()
	err := body()
	sub.dedent()
	sub.line("}")

	pending := g.lambdas
	g.scope, g.tmpSeq, g.lambdas = prevScope, prevTmp, prevLambdas
	g.w = outer
	if err != nil {
		return err
	}

	// 原型在前，主体在后，lambda 定义可以互相引用
	var lambdaDefs []string
	for len(pending) > 0 {
		work := pending[0]
		pending = pending[1:]
		def, more, err := g.emitLambdaDef(work)
		if err != nil {
			return err
		}
		lambdaDefs = append(lambdaDefs, def)
		outer.line("%s;", lambdaSig(g, work))
		pending = append(pending, more...)
	}
	if len(lambdaDefs) > 0 {
		outer.blank()
	}
	outer.sb.WriteString(sub.String())
	outer.blank()
	for _, def := range lambdaDefs {
		outer.sb.WriteString(def)
		outer.blank()
	}
	return nil
}

func lambdaSig(g *Generator, work *lambdaWork) string {
	ret, _ := g.cType(work.fn.Return)
	params := ""
	for i, p := range work.decl.Params {
		if i > 0 {
			params += ", "
		}
		decl, _ := g.cDecl(work.fn.Params[i], p.Name.Name)
		params += decl
	}
	if params == "" {
		params = "void"
	}
	return fmt.Sprintf("static %s %s(%s)", ret, work.name, params)
}

// emitLambdaDef 发射一个提升后的 lambda 函数体
func (g *Generator) emitLambdaDef(work *lambdaWork) (string, []*lambdaWork, error) {
	outer := g.w
	sub := newWriter()
	g.w = sub

	prevScope, prevTmp, prevLambdas := g.scope, g.tmpSeq, g.lambdas
	prevReturn, prevCtor := g.curReturn, g.inCtor
	g.scope = &cscope{}
	g.tmpSeq = 0
	g.lambdas = nil
	g.terminated = false
	g.curReturn = work.fn.Return
	g.inCtor = false

	sub.line("%s {", lambdaSig(g, work))
	sub.indent()
	for i, p := range work.decl.Params {
		g.adoptParam(work.fn.Params[i], p.Name.Name)
	}
	var err error
	if work.decl.Expr != nil {
		var code string
		code, err = g.genCoerced(work.decl.Expr, work.fn.Return)
		if err == nil {
			if work.fn.Return == types.Void {
				sub.line("(void)(%s);", code)
				g.emitScopeReleases(g.scope)
			} else {
				g.genReturnValue(code)
			}
		}
	} else if work.decl.Body != nil {
		err = g.genStmts(work.decl.Body.Stmts)
		if err == nil && !g.terminated {
			g.emitScopeReleases(g.scope)
		}
	}
	sub.dedent()
	sub.line("}")

	more := g.lambdas
	g.scope, g.tmpSeq, g.lambdas = prevScope, prevTmp, prevLambdas
	g.curReturn, g.inCtor = prevReturn, prevCtor
	g.w = outer
	if err != nil {
		return "", nil, err
	}
	return sub.String(), more, nil
}

// emitUnitInit 发射单元初始化函数：先为驻留字面量赋值，再按声明序
// 执行静态字段初始化
//
// 静态字段初始化器自身也可能驻留新字面量，其函数体先生成到子写入
// 器，待驻留表定稿后再拼装整个函数。
func (g *Generator) emitUnitInit(file *ast.File, statics []*types.Field) error {
	w := g.w
	sub := newWriter()
	sub.indent()
	g.w = sub

	prevScope, prevTmp := g.scope, g.tmpSeq
	g.scope = &cscope{}
	g.tmpSeq = 0
	g.curClass = nil
	g.curReturn = types.Void
	g.inCtor = false

	for _, f := range statics {
		if f.Decl == nil || f.Decl.Value == nil {
			continue
		}
		name := g.staticFieldCName(f)
		code, err := g.genCoerced(f.Decl.Value, f.Type)
		if err != nil {
			g.scope, g.tmpSeq = prevScope, prevTmp
			g.w = w
			return err
		}
		sub.line("%s = %s;", name, code)
		if retain := g.retainStmt(f.Type, name); retain != "" {
			sub.line("%s", retain)
		}
	}
	g.emitScopeReleases(g.scope)
	g.scope, g.tmpSeq = prevScope, prevTmp
	g.w = w

	w.line("void aml_unit_init_%s(void) {", unitID(file.Filename))
	w.indent()
	for _, val := range g.litOrder {
		w.line("%s = amrt_lit(%s);", g.lits[val], cString(val))
	}
	w.sb.WriteString(sub.String())
	w.dedent()
	w.line("}")
	w.blank()
	return nil
}

// ============================================================================
// 作用域与控制流
// ============================================================================

func (g *Generator) pushScope(isLoop bool) {
	g.scope = &cscope{parent: g.scope, isLoop: isLoop}
}

func (g *Generator) popScope() {
	// 控制流已经转移时出口释放是死代码，return 等路径各自发射过
	if !g.terminated {
		g.emitScopeReleases(g.scope)
	}
	g.scope = g.scope.parent
}

// registerCleanup 在当前作用域登记一条出口释放语句
func (g *Generator) registerCleanup(release string) {
	if release != "" {
		g.scope.refs = append(g.scope.refs, release)
	}
}

// emitScopeReleases 逆声明序发射单个作用域的释放语句
func (g *Generator) emitScopeReleases(s *cscope) {
	for i := len(s.refs) - 1; i >= 0; i-- {
		g.w.line("%s", s.refs[i])
	}
}

// emitUnwind 发射到目标为止的全部释放语句
//
// toLoop 为 true 时释放最内层循环体内的作用域（不含循环自身的
// 作用域，break 落点在循环之后、循环作用域的释放语句之前）；
// 否则释放整条作用域链，用于 return。
func (g *Generator) emitUnwind(toLoop bool) {
	for s := g.scope; s != nil; s = s.parent {
		if toLoop && s.isLoop {
			return
		}
		g.emitScopeReleases(s)
	}
}

// tmp 分配一个函数内唯一的临时变量名
func (g *Generator) tmp() string {
	name := fmt.Sprintf("__t%d", g.tmpSeq)
	g.tmpSeq++
	return name
}

// ============================================================================
// 语句
// ============================================================================

func (g *Generator) genStmts(stmts []ast.Statement) error {
	for _, s := range stmts {
		if err := g.genStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) genStmt(stmt ast.Statement) error {
	g.terminated = false
	switch s := stmt.(type) {
	case *ast.BlockStmt:
		return g.genNestedBlock(s.Stmts, false)
	case *ast.VarStmt:
		return g.genVarStmt(s)
	case *ast.ExprStmt:
		return g.genExprStmt(s)
	case *ast.AssignStmt:
		return g.genAssign(s)
	case *ast.IfStmt:
		return g.genIf(s)
	case *ast.WhileStmt:
		return g.genWhile(s)
	case *ast.ForStmt:
		return g.genFor(s)
	case *ast.LoopStmt:
		return g.genLoop(s)
	case *ast.SwitchStmt:
		return g.genSwitch(s)
	case *ast.ReturnStmt:
		err := g.genReturn(s)
		g.terminated = true
		return err
	case *ast.ThrowStmt:
		err := g.genThrow(s)
		g.terminated = true
		return err
	case *ast.BreakStmt:
		g.emitUnwind(true)
		g.w.line("break;")
		g.terminated = true
		return nil
	case *ast.ContinueStmt:
		g.emitUnwind(true)
		g.w.line("continue;")
		g.terminated = true
		return nil
	case *ast.ScopeStmt:
		return g.genNestedBlock(s.Stmts, false)
	}
	return fmt.Errorf("internal: unknown statement %T", stmt)
}

// genNestedBlock 大括号包裹的嵌套作用域
func (g *Generator) genNestedBlock(stmts []ast.Statement, isLoop bool) error {
	g.w.line("{")
	g.w.indent()
	g.pushScope(isLoop)
	err := g.genStmts(stmts)
	g.popScope()
	g.w.dedent()
	g.w.line("}")
	return err
}

func (g *Generator) genVarStmt(s *ast.VarStmt) error {
	local, ok := g.bindings.Locals[s.Name]
	if !ok {
		return fmt.Errorf("internal: unbound local %s", s.Name.Name)
	}
	t := g.subst(local.Type)
	if t.Kind() == types.KindError {
		return fmt.Errorf("internal: error-typed local %s reached code generation", s.Name.Name)
	}

	decl, err := g.cDecl(t, s.Name.Name)
	if err != nil {
		return err
	}

	var code string
	if s.Value != nil {
		code, err = g.genCoerced(s.Value, t)
		if err != nil {
			return err
		}
	} else {
		code = g.zeroValue(t)
	}
	g.w.line("%s = %s;", decl, code)
	if retain := g.retainStmt(t, s.Name.Name); retain != "" {
		g.w.line("%s", retain)
		g.registerCleanup(g.releaseStmt(t, s.Name.Name))
	}
	return nil
}

// zeroValue 类型的 C 零值
func (g *Generator) zeroValue(t types.Type) string {
	t = g.subst(t)
	switch tt := t.(type) {
	case *types.Primitive:
		switch tt.Kind() {
		case types.KindBool:
			return "false"
		case types.KindString:
			return "NULL"
		case types.KindFloat, types.KindDouble:
			return "0.0"
		default:
			return "0"
		}
	case *types.Nullable:
		inner := g.subst(tt.Elem)
		if prim, ok := inner.(*types.Primitive); ok && prim.Kind() != types.KindString {
			return fmt.Sprintf("AMRT_NONE(%s)", optSuffix(prim))
		}
		return g.zeroValue(inner)
	case *types.Named:
		if tt.IsInterface {
			return "{0}"
		}
		return "NULL"
	}
	return "NULL" // 数组与函数指针
}

func (g *Generator) genExprStmt(s *ast.ExprStmt) error {
	code, err := g.genExpr(s.Expr)
	if err != nil {
		return err
	}
	if code == "" {
		// 安全调用的条件语句已经发射完毕
		return nil
	}
	if g.exprType(s.Expr) == types.Void {
		g.w.line("%s;", code)
	} else {
		g.w.line("(void)(%s);", code)
	}
	return nil
}

func (g *Generator) genAssign(s *ast.AssignStmt) error {
	lhs, lhsType, err := g.genAssignTarget(s.Target)
	if err != nil {
		return err
	}
	code, err := g.genCoerced(s.Value, lhsType)
	if err != nil {
		return err
	}

	retain := g.retainStmt(lhsType, "")
	if retain == "" {
		g.w.line("%s = %s;", lhs, code)
		return nil
	}

	// 先持有新值再释放旧值，自赋值安全
	tmp := g.tmp()
	decl, err := g.cDecl(lhsType, tmp)
	if err != nil {
		return err
	}
	g.w.line("%s = %s;", decl, code)
	g.w.line("%s", g.retainStmt(lhsType, tmp))
	g.w.line("%s", g.releaseStmt(lhsType, lhs))
	g.w.line("%s = %s;", lhs, tmp)
	return nil
}

// genAssignTarget 产出赋值目标的左值表达式与声明类型
func (g *Generator) genAssignTarget(target ast.Expression) (string, types.Type, error) {
	switch t := target.(type) {
	case *ast.Identifier:
		if local, ok := g.bindings.Locals[t]; ok {
			return t.Name, g.subst(local.Type), nil
		}
		if field, ok := g.bindings.FieldRefs[t]; ok {
			if field.IsStatic {
				return g.staticFieldCName(field), g.subst(field.Type), nil
			}
			return "self->" + t.Name, g.subst(field.Type), nil
		}

	case *ast.MemberExpr:
		field, ok := g.bindings.FieldRefs[t]
		if !ok {
			break
		}
		if field.IsStatic {
			return g.staticFieldCName(field), g.subst(field.Type), nil
		}
		recv, err := g.genReceiver(t.Object, field.Owner)
		if err != nil {
			return "", nil, err
		}
		tmp := g.tmp()
		g.w.line("struct %s* %s = %s;", g.classCName(field.Owner), tmp, recv)
		return tmp + "->" + t.Member.Name, g.subst(field.Type), nil

	case *ast.IndexExpr:
		arrType := g.exprType(t.Object)
		arr, ok := types.StripNullable(arrType).(*types.Array)
		if !ok {
			break
		}
		elem := g.subst(arr.Elem)
		arrCode, err := g.genExpr(t.Object)
		if err != nil {
			return "", nil, err
		}
		idxCode, err := g.genExpr(t.Index)
		if err != nil {
			return "", nil, err
		}
		arrTmp, idxTmp := g.tmp(), g.tmp()
		g.w.line("amrt_array* %s = %s;", arrTmp, arrCode)
		g.w.line("int32_t %s = (int32_t)(%s);", idxTmp, idxCode)
		elemT, err := g.cType(elem)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("((%s*)%s->data)[%s]", elemT, arrTmp, idxTmp), elem, nil
	}
	return "", nil, fmt.Errorf("internal: invalid assignment target %T", target)
}

func (g *Generator) genIf(s *ast.IfStmt) error {
	cond, err := g.genExpr(s.Cond)
	if err != nil {
		return err
	}
	g.w.line("if (%s) {", cond)
	g.w.indent()
	g.pushScope(false)
	err = g.genStmts(s.Then.Stmts)
	g.popScope()
	g.w.dedent()
	if err != nil {
		return err
	}
	if s.Else != nil {
		g.w.line("} else {")
		g.w.indent()
		g.pushScope(false)
		err = g.genStmt(s.Else)
		g.popScope()
		g.w.dedent()
		if err != nil {
			return err
		}
	}
	g.w.line("}")
	g.terminated = false
	return nil
}

// genWhile while 降级为 for(;;)
//
// 条件里可能有被提升的临时值，必须每次迭代重新求值并释放，
// 所以条件落在循环体内的独立作用域里。
func (g *Generator) genWhile(s *ast.WhileStmt) error {
	g.pushScope(true)
	g.w.line("for (;;) {")
	g.w.indent()
	g.pushScope(false)

	cond, err := g.genExpr(s.Cond)
	if err == nil {
		g.w.line("if (!(%s)) {", cond)
		g.w.indent()
		g.emitUnwind(true)
		g.w.line("break;")
		g.w.dedent()
		g.w.line("}")
		err = g.genStmts(s.Body.Stmts)
	}

	g.popScope()
	g.w.dedent()
	g.w.line("}")
	g.popScope()
	g.terminated = false
	return err
}

func (g *Generator) genFor(s *ast.ForStmt) error {
	local, ok := g.bindings.Locals[s.Var]
	if !ok {
		return fmt.Errorf("internal: unbound loop variable %s", s.Var.Name)
	}
	t := g.subst(local.Type)
	ct, err := g.cType(t)
	if err != nil {
		return err
	}

	g.w.line("{")
	g.w.indent()
	g.pushScope(true)

	from, err := g.genCoerced(s.From, t)
	if err == nil {
		var to string
		to, err = g.genCoerced(s.To, t)
		if err == nil {
			bound := g.tmp()
			g.w.line("%s %s = %s;", ct, bound, to)
			g.w.line("for (%s %s = %s; %s <= %s; %s++) {", ct, s.Var.Name, from, s.Var.Name, bound, s.Var.Name)
			g.w.indent()
			g.pushScope(false)
			err = g.genStmts(s.Body.Stmts)
			g.popScope()
			g.w.dedent()
			g.w.line("}")
		}
	}

	g.popScope()
	g.w.dedent()
	g.w.line("}")
	g.terminated = false
	return err
}

func (g *Generator) genLoop(s *ast.LoopStmt) error {
	g.pushScope(true)
	g.w.line("for (;;) {")
	g.w.indent()
	g.pushScope(false)
	err := g.genStmts(s.Body.Stmts)
	g.popScope()
	g.w.dedent()
	g.w.line("}")
	g.popScope()
	g.terminated = false
	return err
}

// genSwitch switch 降级为 if/else 链
//
// String 比较走 amrt_str_eq，有 equals 方法的类走该方法，
// 其余对象退化为指针同一性。无贯穿语义，分支体各居一个作用域。
func (g *Generator) genSwitch(s *ast.SwitchStmt) error {
	g.w.line("{")
	g.w.indent()
	g.pushScope(false)

	err := g.genSwitchBody(s)

	g.popScope()
	g.w.dedent()
	g.w.line("}")
	g.terminated = false
	return err
}

func (g *Generator) genSwitchBody(s *ast.SwitchStmt) error {
	subjType := g.exprType(s.Subject)
	code, err := g.genExpr(s.Subject)
	if err != nil {
		return err
	}
	subj := g.tmp()
	decl, err := g.cDecl(subjType, subj)
	if err != nil {
		return err
	}
	g.w.line("%s = %s;", decl, code)

	first := true
	var defaultClause *ast.CaseClause
	for _, clause := range s.Cases {
		if clause.IsDefault() {
			defaultClause = clause
			continue
		}
		caseCode, err := g.genCoerced(clause.Value, subjType)
		if err != nil {
			return err
		}
		cmp := g.switchCompare(subjType, subj, caseCode)
		if first {
			g.w.line("if (%s) {", cmp)
			first = false
		} else {
			g.w.line("} else if (%s) {", cmp)
		}
		g.w.indent()
		g.pushScope(false)
		if err := g.genStmts(clause.Body); err != nil {
			return err
		}
		g.popScope()
		g.w.dedent()
	}
	if defaultClause != nil {
		if first {
			g.w.line("{")
		} else {
			g.w.line("} else {")
		}
		g.w.indent()
		g.pushScope(false)
		if err := g.genStmts(defaultClause.Body); err != nil {
			return err
		}
		g.popScope()
		g.w.dedent()
	}
	if !first || defaultClause != nil {
		g.w.line("}")
	}
	return nil
}

// switchCompare 主体与 case 值的相等比较
func (g *Generator) switchCompare(subjType types.Type, subj, caseCode string) string {
	t := types.StripNullable(g.subst(subjType))
	if prim, ok := t.(*types.Primitive); ok && prim.Kind() == types.KindString {
		return fmt.Sprintf("amrt_str_eq(%s, %s)", subj, caseCode)
	}
	if named, ok := t.(*types.Named); ok && !named.IsInterface {
		if eq := equalsMethod(named); eq != nil {
			return fmt.Sprintf("%s(%s, %s)", g.methodCName(eq), subj, caseCode)
		}
		return fmt.Sprintf("amrt_obj_eq(%s, %s)", subj, caseCode)
	}
	return fmt.Sprintf("(%s == %s)", subj, caseCode)
}

// equalsMethod 查找单参数 equals 方法
func equalsMethod(named *types.Named) *types.Method {
	for cur := named; cur != nil; cur = cur.Super {
		for _, m := range cur.Methods {
			if m.Name == "equals" && !m.IsStatic && !m.IsCtor && len(m.Params) == 1 && m.Return == types.Bool {
				return m
			}
		}
	}
	return nil
}

func (g *Generator) genReturn(s *ast.ReturnStmt) error {
	if s.Value == nil {
		g.emitUnwind(false)
		if g.inCtor {
			g.w.line("return self;")
		} else {
			g.w.line("return;")
		}
		return nil
	}
	code, err := g.genCoerced(s.Value, g.curReturn)
	if err != nil {
		return err
	}
	g.genReturnValue(code)
	return nil
}

// genReturnValue 结果按 +1 所有权交给调用方
func (g *Generator) genReturnValue(code string) {
	ret := g.tmp()
	decl, _ := g.cDecl(g.curReturn, ret)
	g.w.line("%s = %s;", decl, code)
	if retain := g.retainStmt(g.curReturn, ret); retain != "" {
		g.w.line("%s", retain)
	}
	g.emitUnwind(false)
	g.w.line("return %s;", ret)
}

func (g *Generator) genThrow(s *ast.ThrowStmt) error {
	code, err := g.genExpr(s.Value)
	if err != nil {
		return err
	}
	g.w.line("amrt_throw(%s);", code)
	return nil
}
