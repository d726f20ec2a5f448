// Package parser implements a single-pass, recursive-descent parser over
// the token stream internal/lexer produces. Binding happens as the parser
// recognizes each declaration: every call into internal/symtab happens
// inline, so by the time a later identifier is parsed its declaration has
// already been registered and the reference resolves immediately.
//
// The expression parser is a cascading ladder of one method per precedence
// level, and the statement and top-level parsers dispatch on the leading
// keyword; each level produces an internal/expr or internal/ast node bound
// against internal/symtab directly, rather than an unresolved AST node
// awaiting a later binding pass.
package parser

import (
	"fmt"

	"codeberg.org/saruga/abcc/internal/ast"
	"codeberg.org/saruga/abcc/internal/expr"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/lexer"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/types"
)

// Parser recognizes one file's token stream and builds its Program, binding
// every declaration and reference into syms as it goes.
type Parser struct {
	lex  *lexer.Lexer
	strs *intern.Store
	syms *symtab.Table
	ctx  *expr.Context

	tok      lexer.Token // current token
	look     lexer.Token // one-token lookahead
	haveLook bool

	blockCounter    int
	compoundCounter int
}

// New creates a parser reading from lex, interning identifiers in strs,
// binding declarations into syms, and using ctx's type registry and
// diagnostic sink for every semantic check along the way.
func New(lex *lexer.Lexer, strs *intern.Store, syms *symtab.Table, ctx *expr.Context) *Parser {
	p := &Parser{lex: lex, strs: strs, syms: syms, ctx: ctx}
	p.tok = p.lex.Next()
	return p
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) peek() lexer.Token {
	if !p.haveLook {
		p.look = p.lex.Next()
		p.haveLook = true
	}
	return p.look
}

func (p *Parser) advance() lexer.Token {
	cur := p.tok
	if p.haveLook {
		p.tok = p.look
		p.haveLook = false
	} else {
		p.tok = p.lex.Next()
	}
	return cur
}

func (p *Parser) at(k lexer.Kind) bool { return p.tok.Kind == k }

// accept consumes the current token and returns true if it matches k.
func (p *Parser) accept(k lexer.Kind) bool {
	if p.tok.Kind != k {
		return false
	}
	p.advance()
	return true
}

// expect consumes and returns the current token, or raises a fatal
// diagnostic if it isn't of kind k.
func (p *Parser) expect(k lexer.Kind) lexer.Token {
	if p.tok.Kind != k {
		p.ctx.Diags.Fatal(p.tok.Range, "expected %s, got %s", k.String(), p.tok.Kind.String())
	}
	return p.advance()
}

func spanFrom(start source.Range, end source.Range) source.Range {
	return source.Range{Start: start.Start, End: end.End}
}

func (p *Parser) rangeSince(start source.Range) source.Range {
	return source.Range{Start: start.Start, End: p.tok.Range.Start}
}

// ---------------------------------------------------------------------------
// Builtin type seeding
// ---------------------------------------------------------------------------

// SeedBuiltinTypes registers the primitive type names in the root scope as
// ordinary KindType entries. keyword table reserves no tokens
// for them (the grammar's `type := ident | ...` resolves a type name by
// ordinary identifier lookup, ), so every primitive name a
// program can spell is a ordinary pre-bound identifier rather than a
// keyword, and must be seeded once before the first file is parsed.
func SeedBuiltinTypes(strs *intern.Store, syms *symtab.Table, reg *types.Registry) {
	seed := func(name string, t types.Type) {
		syms.AddType(strs.Create(name), t, nil)
	}
	seed("void", reg.Void())
	seed("bool", reg.Bool())
	seed("char", reg.Char())
	seed("i8", reg.Int(8, true))
	seed("i16", reg.Int(16, true))
	seed("i32", reg.Int(32, true))
	seed("i64", reg.Int(64, true))
	seed("u8", reg.Int(8, false))
	seed("u16", reg.Int(16, false))
	seed("u32", reg.Int(32, false))
	seed("u64", reg.Int(64, false))
	seed("f32", reg.Float(types.Single))
	seed("f64", reg.Float(types.Double))
}

// ---------------------------------------------------------------------------
// Entry point
// ---------------------------------------------------------------------------

// Parse consumes the whole token stream and returns the file's Program.
func Parse(lex *lexer.Lexer, strs *intern.Store, syms *symtab.Table, ctx *expr.Context) *ast.Program {
	p := New(lex, strs, syms, ctx)
	var decls []ast.TopLevel
	for !p.at(lexer.EOF) {
		decls = append(decls, p.parseToplevel()...)
	}
	return &ast.Program{Decls: decls}
}

func (p *Parser) parseToplevel() []ast.TopLevel {
	switch p.tok.Kind {
	case lexer.KwStatic:
		p.advance()
		return p.parseStaticToplevel()
	case lexer.KwFn:
		return []ast.TopLevel{p.parseFuncDeclOrDef(true)}
	case lexer.KwExtern:
		return p.parseExternDecl()
	case lexer.KwGlobal:
		return p.parseGlobalDef(true)
	case lexer.KwType:
		return p.parseTypeAliasDecl()
	case lexer.KwStruct, lexer.KwUnion:
		return []ast.TopLevel{p.parseAggregateDeclTop()}
	case lexer.KwEnum:
		return []ast.TopLevel{p.parseEnumDecl()}
	default:
		p.ctx.Diags.Fatal(p.tok.Range, "expected a top-level declaration, got %s", p.tok.Kind.String())
		return nil
	}
}

// parseStaticToplevel handles the `static` prefix: internal linkage for the
// `fn`/`global` declaration that follows, wired through the same External
// flag FuncDecl/FuncDef/GlobalVarDecl already carry for extern prototypes.
func (p *Parser) parseStaticToplevel() []ast.TopLevel {
	switch p.tok.Kind {
	case lexer.KwFn:
		return []ast.TopLevel{p.parseFuncDeclOrDef(false)}
	case lexer.KwGlobal:
		return p.parseGlobalDef(false)
	default:
		p.ctx.Diags.Fatal(p.tok.Range, "'static' must precede 'fn' or 'global', got %s", p.tok.Kind.String())
		return nil
	}
}

// ---------------------------------------------------------------------------
// Function declarations / definitions
// ---------------------------------------------------------------------------

type paramInfo struct {
	name intern.String
	typ  types.Type
}

// parseParamList parses `[params]` : `param {"," param}
// ["," "..."]`, where each param is `[ident] ":" type` — the name is
// optional so extern prototypes and fn-typed values can omit it.
func (p *Parser) parseParamList() (params []paramInfo, varargs bool) {
	if p.at(lexer.RParen) {
		return nil, false
	}
	for {
		if p.accept(lexer.Ellipsis) {
			varargs = true
			break
		}
		var name intern.String
		if p.at(lexer.Ident) {
			tok := p.advance()
			name = p.strs.Create(tok.Cooked)
		}
		p.expect(lexer.Colon)
		t := p.parseType(true)
		params = append(params, paramInfo{name: name, typ: t})
		if !p.accept(lexer.Comma) {
			break
		}
	}
	return params, varargs
}

// funcSignature holds a parsed `fn ident "(" [params] ")" [":" type]` head,
// shared by fn-decl-or-def and extern-decl's fn-header alternative.
type funcSignature struct {
	rng     source.Range
	nameTok lexer.Token
	name    intern.String
	params  []paramInfo
	varargs bool
	ret     types.Type
	fnType  types.Type
}

func (p *Parser) parseFuncSignature() funcSignature {
	start := p.tok.Range
	p.expect(lexer.KwFn)
	nameTok := p.expect(lexer.Ident)
	name := p.strs.Create(nameTok.Cooked)
	p.expect(lexer.LParen)
	params, varargs := p.parseParamList()
	p.expect(lexer.RParen)
	ret := p.ctx.Types.Void()
	if p.accept(lexer.Colon) {
		ret = p.parseType(false)
	}
	ptypes := make([]types.Type, len(params))
	for i, pi := range params {
		ptypes[i] = pi.typ
	}
	fnType := p.ctx.Types.Function(ret, ptypes, varargs)
	return funcSignature{rng: start, nameTok: nameTok, name: name, params: params, varargs: varargs, ret: ret, fnType: fnType}
}

// compatibleFuncRedecl allows a repeated declaration of the same function
// signature to stand (a forward prototype followed by its definition, or a
// repeated prototype), duplicate-compatible rule.
func compatibleFuncRedecl(sig funcSignature) func(*symtab.Entry) bool {
	return func(existing *symtab.Entry) bool {
		return existing.IsFunc && existing.Type == sig.fnType
	}
}

func (p *Parser) parseFuncDeclOrDef(external bool) ast.TopLevel {
	sig := p.parseFuncSignature()
	entry, res := p.syms.AddDeclaration(sig.name, sig.fnType, true, compatibleFuncRedecl(sig))
	if res == symtab.Incompatible {
		p.ctx.Diags.Fatal(sig.nameTok.Range, "redeclaration of %q with a different signature", sig.name.Text())
	}

	if p.accept(lexer.Semicolon) {
		return ast.NewFuncDecl(p.rangeSince(sig.rng), entry, external)
	}

	p.syms.Push(sig.name.Text())
	paramNames := make([]string, len(sig.params))
	for i, pi := range sig.params {
		pname := pi.name
		if !pname.IsValid() {
			pname = p.strs.Create(fmt.Sprintf("_%d", i))
		}
		paramNames[i] = pname.Text()
		p.syms.AddDeclaration(pname, pi.typ, false, nil)
	}
	body := p.parseBlock()
	p.syms.Pop()
	return ast.NewFuncDef(p.rangeSince(sig.rng), entry, paramNames, external, body)
}

// ---------------------------------------------------------------------------
// extern-decl
// ---------------------------------------------------------------------------

func (p *Parser) parseExternDecl() []ast.TopLevel {
	start := p.tok.Range
	p.expect(lexer.KwExtern)
	if p.at(lexer.KwFn) {
		sig := p.parseFuncSignature()
		entry, res := p.syms.AddDeclaration(sig.name, sig.fnType, true, compatibleFuncRedecl(sig))
		if res == symtab.Incompatible {
			p.ctx.Diags.Fatal(sig.nameTok.Range, "redeclaration of %q with a different signature", sig.name.Text())
		}
		p.expect(lexer.Semicolon)
		return []ast.TopLevel{ast.NewFuncDecl(p.rangeSince(start), entry, true)}
	}

	var names []lexer.Token
	names = append(names, p.expect(lexer.Ident))
	for p.accept(lexer.Comma) {
		names = append(names, p.expect(lexer.Ident))
	}
	p.expect(lexer.Colon)
	t := p.parseType(false)
	p.expect(lexer.Semicolon)

	out := make([]ast.TopLevel, 0, len(names))
	for _, nameTok := range names {
		name := p.strs.Create(nameTok.Cooked)
		entry, res := p.syms.AddDeclaration(name, t, false, func(existing *symtab.Entry) bool {
			return !existing.IsFunc && existing.Type == t
		})
		if res == symtab.Incompatible {
			p.ctx.Diags.Fatal(nameTok.Range, "redeclaration of %q with a different type", name.Text())
		}
		out = append(out, ast.NewExternVarDecl(spanFrom(start, nameTok.Range), entry))
	}
	return out
}

// ---------------------------------------------------------------------------
// global-def (with a `const` supplement — see DESIGN.md)
// ---------------------------------------------------------------------------

func (p *Parser) parseGlobalDef(external bool) []ast.TopLevel {
	start := p.tok.Range
	p.expect(lexer.KwGlobal)
	isConst := p.accept(lexer.KwConst)

	var out []ast.TopLevel
	for {
		nameTok := p.expect(lexer.Ident)
		name := p.strs.Create(nameTok.Cooked)
		p.expect(lexer.Colon)
		t := p.parseType(false)
		var initExpr expr.Expr
		if p.accept(lexer.Assign) {
			initExpr = p.parseInitializer(t)
		}

		if isConst {
			if initExpr == nil {
				p.ctx.Diags.Fatal(nameTok.Range, "const global %q requires an initializer", name.Text())
			}
			v, ok := initExpr.LoadConstant()
			if !ok {
				p.ctx.Diags.Fatal(nameTok.Range, "const global %q initializer is not a compile-time constant", name.Text())
			}
			entry, res := p.syms.AddExpression(name, t, v, nil)
			if res == symtab.Incompatible {
				p.ctx.Diags.Fatal(nameTok.Range, "redeclaration of %q", name.Text())
			}
			out = append(out, ast.NewConstDecl(nameTok.Range, []*symtab.Entry{entry}))
		} else {
			entry, res := p.syms.AddDeclaration(name, t, false, func(existing *symtab.Entry) bool {
				return !existing.IsFunc && existing.Type == t
			})
			if res == symtab.Incompatible {
				p.ctx.Diags.Fatal(nameTok.Range, "redeclaration of %q with a different type", name.Text())
			}
			out = append(out, ast.NewGlobalVarDecl(nameTok.Range, entry, initExpr, external))
		}
		if !p.accept(lexer.Comma) {
			break
		}
	}
	p.expect(lexer.Semicolon)
	return out
}

// ---------------------------------------------------------------------------
// type-alias
// ---------------------------------------------------------------------------

func (p *Parser) parseTypeAliasDecl() []ast.TopLevel {
	p.expect(lexer.KwType)
	var out []ast.TopLevel
	for {
		nameTok := p.expect(lexer.Ident)
		name := p.strs.Create(nameTok.Cooked)
		p.expect(lexer.Assign)
		t := p.parseType(false)
		aliasType := p.ctx.Types.Alias(name, t)
		_, res := p.syms.AddType(name, aliasType, nil)
		if res == symtab.Incompatible {
			p.ctx.Diags.Fatal(nameTok.Range, "redeclaration of type %q", name.Text())
		}
		out = append(out, ast.NewTypeAliasDecl(nameTok.Range, name.Text(), aliasType))
		if !p.accept(lexer.Comma) {
			break
		}
	}
	p.expect(lexer.Semicolon)
	return out
}

// ---------------------------------------------------------------------------
// struct-decl / union (union is a supplement — see DESIGN.md)
// ---------------------------------------------------------------------------

// parseAggregateDecl assumes the leading "struct"/"union" keyword has
// already been consumed. If the named aggregate is already bound in the
// current scope (a forward declaration being completed), its existing type
// is reused instead of allocating a new one, per the struct completion
// ordering describes.
func (p *Parser) parseAggregateDecl(start source.Range, isUnion bool) (types.Type, string) {
	nameTok := p.expect(lexer.Ident)
	name := p.strs.Create(nameTok.Cooked)

	var t types.Type
	if entry, ok := p.syms.Find(name.Text(), symtab.CurrentOnly); ok && entry.Kind == symtab.KindType {
		t = entry.Type
	} else {
		t = p.ctx.Types.CreateIncompleteStruct(name)
		p.syms.AddType(name, t, func(existing *symtab.Entry) bool { return existing.Kind == symtab.KindType })
	}

	if p.accept(lexer.LBrace) {
		var members []types.Member
		for !p.at(lexer.RBrace) {
			var memberNames []intern.String
			first := p.expect(lexer.Ident)
			memberNames = append(memberNames, p.strs.Create(first.Cooked))
			for p.accept(lexer.Comma) {
				tok := p.expect(lexer.Ident)
				memberNames = append(memberNames, p.strs.Create(tok.Cooked))
			}
			p.expect(lexer.Colon)
			mt := p.parseType(false)
			for _, mn := range memberNames {
				members = append(members, types.Member{Name: mn, Type: mt})
			}
			p.expect(lexer.Semicolon)
		}
		p.expect(lexer.RBrace)

		var ok bool
		if isUnion {
			ok = p.ctx.Types.CompleteUnion(t, members)
		} else {
			ok = p.ctx.Types.Complete(t, members)
		}
		if !ok {
			kw := "struct"
			if isUnion {
				kw = "union"
			}
			p.ctx.Diags.Fatal(start, "conflicting redefinition of %s %q", kw, name.Text())
		}
	}
	return t, name.Text()
}

func (p *Parser) parseAggregateDeclTop() ast.TopLevel {
	start := p.tok.Range
	isUnion := p.tok.Kind == lexer.KwUnion
	p.advance()
	t, name := p.parseAggregateDecl(start, isUnion)
	p.expect(lexer.Semicolon)
	return ast.NewStructDecl(p.rangeSince(start), name, t)
}

// ---------------------------------------------------------------------------
// enum-decl
// ---------------------------------------------------------------------------

func (p *Parser) parseEnumDecl() ast.TopLevel {
	start := p.tok.Range
	p.expect(lexer.KwEnum)
	nameTok := p.expect(lexer.Ident)
	name := p.strs.Create(nameTok.Cooked)

	underlying := p.ctx.Types.Int(32, true)
	if p.accept(lexer.Colon) {
		underlying = p.parseType(false)
	}
	t := p.ctx.Types.CreateIncompleteEnum(name, underlying)
	p.syms.AddType(name, t, nil)

	if p.accept(lexer.Semicolon) {
		return ast.NewEnumDecl(p.rangeSince(start), name.Text(), t, nil)
	}

	p.expect(lexer.LBrace)
	var items []ast.EnumItem
	var next int64
	for !p.at(lexer.RBrace) {
		itemTok := p.expect(lexer.Ident)
		val := next
		if p.accept(lexer.Assign) {
			e := p.parseAssignExpr()
			v, ok := e.LoadConstant()
			if !ok {
				p.ctx.Diags.Fatal(itemTok.Range, "enum constant %q initializer is not a compile-time constant", itemTok.Cooked)
			}
			val = v
		}
		items = append(items, ast.EnumItem{Name: itemTok.Cooked, Value: val})
		p.syms.AddExpression(p.strs.Create(itemTok.Cooked), t, val, nil)
		next = val + 1
		if !p.accept(lexer.Comma) {
			break
		}
	}
	p.expect(lexer.RBrace)
	p.expect(lexer.Semicolon)
	p.ctx.Types.CompleteEnum(t)
	return ast.NewEnumDecl(p.rangeSince(start), name.Text(), t, items)
}

// ---------------------------------------------------------------------------
// type
// ---------------------------------------------------------------------------

// parseType parses `["readonly"] unqualified-type`. paramContext relaxes
// the leading array dimension to be optional.
func (p *Parser) parseType(paramContext bool) types.Type {
	isReadonly := p.accept(lexer.KwReadonly)
	t := p.parseUnqualifiedType(paramContext)
	if isReadonly {
		t = p.ctx.Types.GetConst(t)
	}
	return t
}

func (p *Parser) isTypeStartTok(tok lexer.Token) bool {
	switch tok.Kind {
	case lexer.KwReadonly, lexer.KwArray, lexer.KwFn, lexer.KwStruct, lexer.KwUnion, lexer.Arrow:
		return true
	case lexer.Ident:
		entry, ok := p.syms.Find(tok.Cooked, symtab.AnyEnclosing)
		return ok && entry.Kind == symtab.KindType
	}
	return false
}

func (p *Parser) parseUnqualifiedType(paramContext bool) types.Type {
	switch p.tok.Kind {
	case lexer.Arrow:
		p.advance()
		to := p.parseType(false)
		return p.ctx.Types.Pointer(to)

	case lexer.KwArray:
		p.advance()
		var dims []expr.Expr
		first := true
		p.expect(lexer.LBracket)
		for {
			var dim expr.Expr
			if !p.at(lexer.RBracket) {
				dim = p.parseExpr()
			} else if !(first && paramContext) {
				p.ctx.Diags.Fatal(p.tok.Range, "array dimension required here")
			}
			p.expect(lexer.RBracket)
			dims = append(dims, dim)
			first = false
			if !p.at(lexer.LBracket) {
				break
			}
			p.advance()
		}
		p.expect(lexer.KwOf)
		elem := p.parseType(false)
		result := elem
		for i := len(dims) - 1; i >= 0; i-- {
			if dims[i] == nil {
				result = p.ctx.Types.Array(result, -1)
				continue
			}
			n, ok := dims[i].LoadConstant()
			if !ok {
				p.ctx.Diags.Fatal(dims[i].Range(), "array dimension must be a compile-time constant")
			}
			result = p.ctx.Types.Array(result, int(n))
		}
		return result

	case lexer.KwFn:
		p.advance()
		p.expect(lexer.LParen)
		params, varargs := p.parseParamList()
		p.expect(lexer.RParen)
		ret := p.ctx.Types.Void()
		if p.accept(lexer.Colon) {
			ret = p.parseType(false)
		}
		ptypes := make([]types.Type, len(params))
		for i, pi := range params {
			ptypes[i] = pi.typ
		}
		return p.ctx.Types.Function(ret, ptypes, varargs)

	case lexer.KwStruct, lexer.KwUnion:
		isUnion := p.tok.Kind == lexer.KwUnion
		start := p.tok.Range
		p.advance()
		t, _ := p.parseAggregateDecl(start, isUnion)
		return t

	case lexer.Ident:
		nameTok := p.advance()
		name := p.strs.Create(nameTok.Cooked)
		entry, ok := p.syms.Find(name.Text(), symtab.AnyEnclosing)
		if !ok || entry.Kind != symtab.KindType {
			p.ctx.Diags.Fatal(nameTok.Range, "%q is not a type", name.Text())
		}
		return entry.Type

	default:
		p.ctx.Diags.Fatal(p.tok.Range, "expected a type, got %s", p.tok.Kind.String())
		return p.ctx.Types.Void()
	}
}

// ---------------------------------------------------------------------------
// Statements
//
// local-def is omitted from the `statement` production
// itself, an omission treated here as a summary gap rather than an
// exclusion: it is dispatched alongside the other statement forms, since a
// block with no way to declare a local would make the `local` keyword and
// var-decl grammar pointless.
// ---------------------------------------------------------------------------

func (p *Parser) blockPrefix() string {
	p.blockCounter++
	return fmt.Sprintf("block%d", p.blockCounter)
}

func (p *Parser) parseBlock() *ast.Block {
	start := p.tok.Range
	p.expect(lexer.LBrace)
	p.syms.Push(p.blockPrefix())
	var stmts []ast.Stmt
	for !p.at(lexer.RBrace) {
		stmts = append(stmts, p.parseStatement())
	}
	p.syms.Pop()
	p.expect(lexer.RBrace)
	return ast.NewBlock(p.rangeSince(start), stmts)
}

func (p *Parser) parseStatement() ast.Stmt {
	switch p.tok.Kind {
	case lexer.LBrace:
		return p.parseBlock()
	case lexer.KwIf:
		return p.parseIf()
	case lexer.KwWhile:
		return p.parseWhile()
	case lexer.KwDo:
		return p.parseDoWhile()
	case lexer.KwFor:
		return p.parseFor()
	case lexer.KwSwitch:
		return p.parseSwitch()
	case lexer.KwReturn:
		return p.parseReturn()
	case lexer.KwBreak:
		rng := p.tok.Range
		p.advance()
		p.expect(lexer.Semicolon)
		return ast.NewBreak(rng)
	case lexer.KwContinue:
		rng := p.tok.Range
		p.advance()
		p.expect(lexer.Semicolon)
		return ast.NewContinue(rng)
	case lexer.KwGoto:
		rng := p.tok.Range
		p.advance()
		label := p.expect(lexer.Ident)
		p.expect(lexer.Semicolon)
		return ast.NewGoto(rng, label.Cooked)
	case lexer.KwLabel:
		rng := p.tok.Range
		p.advance()
		name := p.expect(lexer.Ident)
		p.expect(lexer.Colon)
		return ast.NewLabelStmt(rng, name.Cooked)
	case lexer.KwLocal:
		return p.parseLocalStmt(true)
	case lexer.Ident:
		if p.peek().Kind == lexer.Colon {
			rng := p.tok.Range
			name := p.advance()
			p.advance()
			return ast.NewLabelStmt(rng, name.Cooked)
		}
	}
	e := p.parseExpr()
	rng := e.Range()
	p.expect(lexer.Semicolon)
	return ast.NewExprStmt(rng, e)
}

func (p *Parser) parseIf() ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwIf)
	p.expect(lexer.LParen)
	cond := p.parseExpr()
	p.expect(lexer.RParen)
	then := p.parseBlock()
	var els ast.Stmt
	if p.accept(lexer.KwElse) {
		if p.at(lexer.KwIf) {
			els = p.parseIf()
		} else {
			els = p.parseBlock()
		}
	}
	return ast.NewIf(p.rangeSince(start), cond, then, els)
}

func (p *Parser) parseWhile() ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwWhile)
	p.expect(lexer.LParen)
	cond := p.parseExpr()
	p.expect(lexer.RParen)
	body := p.parseBlock()
	return ast.NewWhile(p.rangeSince(start), cond, body)
}

func (p *Parser) parseDoWhile() ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwDo)
	body := p.parseBlock()
	p.expect(lexer.KwWhile)
	p.expect(lexer.LParen)
	cond := p.parseExpr()
	p.expect(lexer.RParen)
	p.expect(lexer.Semicolon)
	return ast.NewDoWhile(p.rangeSince(start), body, cond)
}

// parseLocalStmt parses `"local" var-decl {"," var-decl}`, consuming the
// trailing ";" only when standalone (a for-loop's init clause supplies its
// own separator instead — for production would otherwise
// require two semicolons back to back).
func (p *Parser) parseLocalStmt(consumeSemicolon bool) ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwLocal)
	isConst := p.accept(lexer.KwConst)

	var decls []ast.VarDecl
	var constEntries []*symtab.Entry
	for {
		nameTok := p.expect(lexer.Ident)
		name := p.strs.Create(nameTok.Cooked)
		p.expect(lexer.Colon)
		t := p.parseType(false)
		var initExpr expr.Expr
		if p.accept(lexer.Assign) {
			initExpr = p.parseInitializer(t)
		}
		if isConst {
			if initExpr == nil {
				p.ctx.Diags.Fatal(nameTok.Range, "const local %q requires an initializer", name.Text())
			}
			v, ok := initExpr.LoadConstant()
			if !ok {
				p.ctx.Diags.Fatal(nameTok.Range, "const local %q initializer is not a compile-time constant", name.Text())
			}
			entry, res := p.syms.AddExpression(name, t, v, nil)
			if res == symtab.Incompatible {
				p.ctx.Diags.Fatal(nameTok.Range, "redeclaration of %q", name.Text())
			}
			constEntries = append(constEntries, entry)
		} else {
			entry, res := p.syms.AddDeclaration(name, t, false, nil)
			if res == symtab.Incompatible {
				p.ctx.Diags.Fatal(nameTok.Range, "redeclaration of %q", name.Text())
			}
			decls = append(decls, ast.VarDecl{Entry: entry, Init: initExpr})
		}
		if !p.accept(lexer.Comma) {
			break
		}
	}
	if consumeSemicolon {
		p.expect(lexer.Semicolon)
	}
	if isConst {
		return ast.NewConstDecl(p.rangeSince(start), constEntries)
	}
	return ast.NewLocalDecl(p.rangeSince(start), decls)
}

func (p *Parser) parseFor() ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwFor)
	p.expect(lexer.LParen)

	var init ast.Stmt
	if p.at(lexer.KwLocal) {
		init = p.parseLocalStmt(false)
	} else if !p.at(lexer.Semicolon) {
		e := p.parseExpr()
		init = ast.NewExprStmt(e.Range(), e)
	}
	p.expect(lexer.Semicolon)

	var cond expr.Expr
	if !p.at(lexer.Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(lexer.Semicolon)

	var update expr.Expr
	if !p.at(lexer.RParen) {
		update = p.parseExpr()
	}
	p.expect(lexer.RParen)

	body := p.parseBlock()
	return ast.NewFor(p.rangeSince(start), init, cond, update, body)
}

func (p *Parser) parseSwitch() ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwSwitch)
	p.expect(lexer.LParen)
	tag := p.parseExpr()
	p.expect(lexer.RParen)
	p.expect(lexer.LBrace)

	var cases []ast.CaseLabel
	var body []ast.Stmt
	seen := map[int64]bool{}
	sawDefault := false
	for !p.at(lexer.RBrace) {
		switch p.tok.Kind {
		case lexer.KwCase:
			caseTok := p.tok
			p.advance()
			e := p.parseAssignExpr()
			v, ok := e.LoadConstant()
			if !ok {
				p.ctx.Diags.Fatal(caseTok.Range, "case label must be a compile-time constant")
			}
			if seen[v] {
				p.ctx.Diags.Fatal(caseTok.Range, "duplicate case value '%d'", v)
			}
			seen[v] = true
			p.expect(lexer.Colon)
			cases = append(cases, ast.CaseLabel{Value: v, BodyIndex: len(body)})
		case lexer.KwDefault:
			defTok := p.tok
			p.advance()
			p.expect(lexer.Colon)
			if sawDefault {
				p.ctx.Diags.Fatal(defTok.Range, "multiple default labels in one switch")
			}
			sawDefault = true
			cases = append(cases, ast.CaseLabel{IsDefault: true, BodyIndex: len(body)})
		default:
			body = append(body, p.parseStatement())
		}
	}
	p.expect(lexer.RBrace)
	return ast.NewSwitch(p.rangeSince(start), tag, cases, body)
}

func (p *Parser) parseReturn() ast.Stmt {
	start := p.tok.Range
	p.expect(lexer.KwReturn)
	var v expr.Expr
	if !p.at(lexer.Semicolon) {
		v = p.parseExpr()
	}
	p.expect(lexer.Semicolon)
	return ast.NewReturn(start, v)
}

// ---------------------------------------------------------------------------
// Initializers
// ---------------------------------------------------------------------------

// coerce implicitly converts e to the target type to, matching the check
// internal/expr's own unexported implicit-cast helper performs — exposed
// here through the registry's public Convert plus expr.NewImplicitCast
// since declaration initializers (unlike assignment expressions) are not
// themselves Expr nodes that could call the unexported helper directly.
func (p *Parser) coerce(e expr.Expr, to types.Type, rng source.Range) expr.Expr {
	if e.Type() == to {
		return e
	}
	if !p.ctx.Types.Convert(e.Type(), to) {
		p.ctx.Diags.Fatal(rng, "cannot implicitly convert %s to %s", p.ctx.Types.String(e.Type()), p.ctx.Types.String(to))
	}
	return expr.NewImplicitCast(p.ctx, rng, e, to)
}

func (p *Parser) nextCompoundSlot() string {
	p.compoundCounter++
	return fmt.Sprintf(".compound%d", p.compoundCounter)
}

// parseInitializer parses `initializer := expr | "{" [init-items] "}"`,
// coercing a bare expr form to the target type.
func (p *Parser) parseInitializer(t types.Type) expr.Expr {
	if p.at(lexer.LBrace) {
		return p.parseInitializerList(t)
	}
	rng := p.tok.Range
	e := p.parseAssignExpr()
	return p.coerce(e, t, rng)
}

// parseInitializerList parses the brace form, tracking a structural cursor
// over t's members/elements: excess sub-initializers are fatal, missing
// trailing ones are filled with a typed zero.
func (p *Parser) parseInitializerList(t types.Type) expr.Expr {
	rng := p.tok.Range
	p.expect(lexer.LBrace)

	kind := p.ctx.Types.Kind(t)
	var memberTypes []types.Type
	isArray := kind == types.KindArray
	if kind == types.KindStruct {
		for _, m := range p.ctx.Types.Members(t) {
			memberTypes = append(memberTypes, m.Type)
		}
	} else if isArray {
		if n, bound := p.ctx.Types.ArrayLen(t); bound {
			for i := 0; i < n; i++ {
				memberTypes = append(memberTypes, p.ctx.Types.Elem(t))
			}
		}
	} else {
		memberTypes = []types.Type{t}
	}

	var items []expr.Expr
	cursor := 0
	if !p.at(lexer.RBrace) {
		for {
			var elemType types.Type
			switch {
			case cursor < len(memberTypes):
				elemType = memberTypes[cursor]
			case isArray:
				elemType = p.ctx.Types.Elem(t)
			default:
				p.ctx.Diags.Fatal(p.tok.Range, "excess initializer for %s", p.ctx.Types.String(t))
			}
			items = append(items, p.parseInitializer(elemType))
			cursor++
			if !p.accept(lexer.Comma) || p.at(lexer.RBrace) {
				break
			}
		}
	}
	for cursor < len(memberTypes) {
		items = append(items, p.zeroExprFor(memberTypes[cursor], rng))
		cursor++
	}
	p.expect(lexer.RBrace)
	return expr.NewCompoundLiteral(p.ctx, rng, p.nextCompoundSlot(), t, items)
}

// zeroExprFor builds a typed-zero expression for t, recursing through
// aggregate/array members so every compound literal's item list is fully
// populated, initializer-list design note.
func (p *Parser) zeroExprFor(t types.Type, rng source.Range) expr.Expr {
	switch p.ctx.Types.Kind(t) {
	case types.KindInt:
		return p.coerce(expr.NewIntLiteral(p.ctx, rng, 0, !p.ctx.Types.IntSigned(t)), t, rng)
	case types.KindFloat:
		return p.coerce(expr.NewFloatLiteral(p.ctx, rng, 0), t, rng)
	case types.KindPointer:
		return p.coerce(expr.NewNullptrLiteral(p.ctx, rng), t, rng)
	case types.KindStruct:
		members := p.ctx.Types.Members(t)
		items := make([]expr.Expr, len(members))
		for i, m := range members {
			items[i] = p.zeroExprFor(m.Type, rng)
		}
		return expr.NewCompoundLiteral(p.ctx, rng, p.nextCompoundSlot(), t, items)
	case types.KindArray:
		n, bound := p.ctx.Types.ArrayLen(t)
		if !bound {
			n = 0
		}
		items := make([]expr.Expr, n)
		for i := range items {
			items[i] = p.zeroExprFor(p.ctx.Types.Elem(t), rng)
		}
		return expr.NewCompoundLiteral(p.ctx, rng, p.nextCompoundSlot(), t, items)
	default:
		return p.coerce(expr.NewIntLiteral(p.ctx, rng, 0, false), t, rng)
	}
}

// ---------------------------------------------------------------------------
// Expressions — cascading precedence-climbing levels, /§4.7
// ---------------------------------------------------------------------------

// parseExpr parses the full expression grammar including the comma
// operator, used everywhere a standalone `expr` slot appears (if/while
// conditions, return values, for-loop clauses, array dimensions,
// subscripts). Case labels, enum values and initializers take a single
// parseAssignExpr instead. Comma-separated lists with their own syntactic
// meaning (call arguments, parameter types) instead loop over
// parseAssignExpr directly.
func (p *Parser) parseExpr() expr.Expr {
	first := p.parseAssignExpr()
	if !p.at(lexer.Comma) {
		return first
	}
	items := []expr.Expr{first}
	for p.accept(lexer.Comma) {
		items = append(items, p.parseAssignExpr())
	}
	return expr.NewComma(p.ctx, first.Range(), items)
}

var assignOps = map[lexer.Kind]expr.BinaryOp{
	lexer.Assign:     expr.Assign,
	lexer.PlusEq:     expr.CompoundAdd,
	lexer.MinusEq:    expr.CompoundSub,
	lexer.StarEq:     expr.CompoundMul,
	lexer.SlashEq:    expr.CompoundDiv,
	lexer.PercentEq:  expr.CompoundMod,
	lexer.AmpEq:      expr.CompoundAnd,
	lexer.PipeEq:     expr.CompoundOr,
	lexer.CaretEq:    expr.CompoundXor,
	lexer.ShlEq:      expr.CompoundShl,
	lexer.ShrEq:      expr.CompoundShr,
}

// parseAssignExpr implements precedence level 2, right-associative.
func (p *Parser) parseAssignExpr() expr.Expr {
	lhs := p.parseConditionalExpr()
	op, ok := assignOps[p.tok.Kind]
	if !ok {
		return lhs
	}
	rng := p.tok.Range
	p.advance()
	rhs := p.parseAssignExpr()
	return expr.NewBinary(p.ctx, rng, op, lhs, rhs)
}

// parseConditionalExpr implements precedence level 1, recognizing both the
// `?:` form and the `then`/`else` alternate spelling — both route to the
// same Conditional node, since expr.NewConditional's contract depends only
// on the cond/then/else triple, not on which surface syntax produced it.
func (p *Parser) parseConditionalExpr() expr.Expr {
	cond := p.parseLogicalOrExpr()
	switch p.tok.Kind {
	case lexer.Question:
		rng := p.tok.Range
		p.advance()
		thenE := p.parseExpr()
		p.expect(lexer.Colon)
		elseE := p.parseConditionalExpr()
		return expr.NewConditional(p.ctx, rng, cond, thenE, elseE)
	case lexer.KwThen:
		rng := p.tok.Range
		p.advance()
		thenE := p.parseExpr()
		p.expect(lexer.KwElse)
		elseE := p.parseConditionalExpr()
		return expr.NewConditional(p.ctx, rng, cond, thenE, elseE)
	}
	return cond
}

func (p *Parser) parseLogicalOrExpr() expr.Expr {
	lhs := p.parseLogicalAndExpr()
	for p.at(lexer.PipePipe) {
		rng := p.tok.Range
		p.advance()
		rhs := p.parseLogicalAndExpr()
		lhs = expr.NewBinary(p.ctx, rng, expr.LogOr, lhs, rhs)
	}
	return lhs
}

func (p *Parser) parseLogicalAndExpr() expr.Expr {
	lhs := p.parseBitwiseOrExpr()
	for p.at(lexer.AmpAmp) {
		rng := p.tok.Range
		p.advance()
		rhs := p.parseBitwiseOrExpr()
		lhs = expr.NewBinary(p.ctx, rng, expr.LogAnd, lhs, rhs)
	}
	return lhs
}

func (p *Parser) parseBitwiseOrExpr() expr.Expr {
	lhs := p.parseBitwiseXorExpr()
	for p.at(lexer.Pipe) {
		rng := p.tok.Range
		p.advance()
		rhs := p.parseBitwiseXorExpr()
		lhs = expr.NewBinary(p.ctx, rng, expr.BitOr, lhs, rhs)
	}
	return lhs
}

func (p *Parser) parseBitwiseXorExpr() expr.Expr {
	lhs := p.parseBitwiseAndExpr()
	for p.at(lexer.Caret) {
		rng := p.tok.Range
		p.advance()
		rhs := p.parseBitwiseAndExpr()
		lhs = expr.NewBinary(p.ctx, rng, expr.BitXor, lhs, rhs)
	}
	return lhs
}

func (p *Parser) parseBitwiseAndExpr() expr.Expr {
	lhs := p.parseEqualityExpr()
	for p.at(lexer.Amp) {
		rng := p.tok.Range
		p.advance()
		rhs := p.parseEqualityExpr()
		lhs = expr.NewBinary(p.ctx, rng, expr.BitAnd, lhs, rhs)
	}
	return lhs
}

func (p *Parser) parseEqualityExpr() expr.Expr {
	lhs := p.parseRelationalExpr()
	for {
		var op expr.BinaryOp
		switch p.tok.Kind {
		case lexer.EqEq:
			op = expr.Eq
		case lexer.NotEq:
			op = expr.Ne
		default:
			return lhs
		}
		rng := p.tok.Range
		p.advance()
		rhs := p.parseRelationalExpr()
		lhs = expr.NewBinary(p.ctx, rng, op, lhs, rhs)
	}
}

func (p *Parser) parseRelationalExpr() expr.Expr {
	lhs := p.parseShiftExpr()
	for {
		var op expr.BinaryOp
		switch p.tok.Kind {
		case lexer.Lt:
			op = expr.Lt
		case lexer.LtEq:
			op = expr.Le
		case lexer.Gt:
			op = expr.Gt
		case lexer.GtEq:
			op = expr.Ge
		default:
			return lhs
		}
		rng := p.tok.Range
		p.advance()
		rhs := p.parseShiftExpr()
		lhs = expr.NewBinary(p.ctx, rng, op, lhs, rhs)
	}
}

func (p *Parser) parseShiftExpr() expr.Expr {
	lhs := p.parseAdditiveExpr()
	for {
		var op expr.BinaryOp
		switch p.tok.Kind {
		case lexer.Shl:
			op = expr.Shl
		case lexer.Shr:
			op = expr.Shr
		default:
			return lhs
		}
		rng := p.tok.Range
		p.advance()
		rhs := p.parseAdditiveExpr()
		lhs = expr.NewBinary(p.ctx, rng, op, lhs, rhs)
	}
}

func (p *Parser) parseAdditiveExpr() expr.Expr {
	lhs := p.parseMultiplicativeExpr()
	for {
		var op expr.BinaryOp
		switch p.tok.Kind {
		case lexer.Plus:
			op = expr.Add
		case lexer.Minus:
			op = expr.Sub
		default:
			return lhs
		}
		rng := p.tok.Range
		p.advance()
		rhs := p.parseMultiplicativeExpr()
		lhs = expr.NewBinary(p.ctx, rng, op, lhs, rhs)
	}
}

func (p *Parser) parseMultiplicativeExpr() expr.Expr {
	lhs := p.parseCastExpr()
	for {
		var op expr.BinaryOp
		switch p.tok.Kind {
		case lexer.Star:
			op = expr.Mul
		case lexer.Slash:
			op = expr.Div
		case lexer.Percent:
			op = expr.Mod
		default:
			return lhs
		}
		rng := p.tok.Range
		p.advance()
		rhs := p.parseCastExpr()
		lhs = expr.NewBinary(p.ctx, rng, op, lhs, rhs)
	}
}

// parseCastExpr implements precedence level 14: explicit cast `"(" type ")"
// cast-expr` and both forms of `sizeof`.
func (p *Parser) parseCastExpr() expr.Expr {
	if p.at(lexer.KwSizeof) {
		rng := p.tok.Range
		p.advance()
		if p.at(lexer.LParen) && p.isTypeStartTok(p.peek()) {
			p.advance()
			t := p.parseType(false)
			p.expect(lexer.RParen)
			return expr.NewSizeofType(p.ctx, rng, t)
		}
		operand := p.parseUnaryExpr()
		return expr.NewSizeofExpr(p.ctx, rng, operand)
	}
	if p.at(lexer.LParen) && p.isTypeStartTok(p.peek()) {
		rng := p.tok.Range
		p.advance()
		t := p.parseType(false)
		p.expect(lexer.RParen)
		operand := p.parseCastExpr()
		return expr.NewExplicitCast(p.ctx, rng, operand, t)
	}
	return p.parseUnaryExpr()
}

// parseUnaryExpr implements precedence level 15: prefix `& * ! - ~ ++ --`,
// `assert`, falling through to postfix application at the bottom.
func (p *Parser) parseUnaryExpr() expr.Expr {
	switch p.tok.Kind {
	case lexer.Amp:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.Addr, p.parseCastExpr())
	case lexer.Star:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.Deref, p.parseCastExpr())
	case lexer.Bang:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.Not, p.parseCastExpr())
	case lexer.Minus:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.Neg, p.parseCastExpr())
	case lexer.Tilde:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.BitNot, p.parseCastExpr())
	case lexer.PlusPlus:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.PreInc, p.parseUnaryExpr())
	case lexer.MinusMinus:
		rng := p.tok.Range
		p.advance()
		return expr.NewUnary(p.ctx, rng, expr.PreDec, p.parseUnaryExpr())
	case lexer.KwAssert:
		return p.parseAssert()
	}
	return p.parsePostfixExpr()
}

// parseAssert parses `"assert" "(" expr ")"`, expanding to a Binary(LogOr)
// of the condition with a call to the runtime `__assert` helper a program
// using assert must declare (and ultimately link against).
func (p *Parser) parseAssert() expr.Expr {
	rng := p.tok.Range
	p.expect(lexer.KwAssert)
	p.expect(lexer.LParen)
	inner := p.parseExpr()
	p.expect(lexer.RParen)

	entry, ok := p.syms.Find("__assert", symtab.AnyEnclosing)
	if !ok {
		p.ctx.Diags.Fatal(rng, "assert used without a declared '__assert' helper")
	}
	fnIdent := expr.NewIdent(p.ctx, rng, p.strs.Create("__assert"), entry)
	fileLit := expr.NewStringLiteral(p.ctx, rng, rng.Start.File.Text())
	lineLit := expr.NewIntLiteral(p.ctx, rng, int64(rng.Start.Line), false)
	return expr.NewAssert(p.ctx, rng, inner, fnIdent, fileLit, lineLit)
}

// parsePostfixExpr applies member access, calls, subscripting, and
// post-inc/dec left-to-right over a primary expression.
func (p *Parser) parsePostfixExpr() expr.Expr {
	e := p.parsePrimaryExpr()
	for {
		switch p.tok.Kind {
		case lexer.Dot:
			rng := p.tok.Range
			p.advance()
			name := p.expect(lexer.Ident)
			e = expr.NewMember(p.ctx, rng, e, p.strs.Create(name.Cooked), false)
		case lexer.Arrow:
			rng := p.tok.Range
			p.advance()
			name := p.expect(lexer.Ident)
			e = expr.NewMember(p.ctx, rng, e, p.strs.Create(name.Cooked), true)
		case lexer.LParen:
			rng := p.tok.Range
			p.advance()
			var args []expr.Expr
			if !p.at(lexer.RParen) {
				for {
					args = append(args, p.parseAssignExpr())
					if !p.accept(lexer.Comma) {
						break
					}
				}
			}
			p.expect(lexer.RParen)
			e = expr.NewCall(p.ctx, rng, e, args)
		case lexer.LBracket:
			rng := p.tok.Range
			p.advance()
			idx := p.parseExpr()
			p.expect(lexer.RBracket)
			e = expr.NewBinary(p.ctx, rng, expr.Index, e, idx)
		case lexer.PlusPlus:
			rng := p.tok.Range
			p.advance()
			e = expr.NewUnary(p.ctx, rng, expr.PostInc, e)
		case lexer.MinusMinus:
			rng := p.tok.Range
			p.advance()
			e = expr.NewUnary(p.ctx, rng, expr.PostDec, e)
		default:
			return e
		}
	}
}

func (p *Parser) parsePrimaryExpr() expr.Expr {
	tok := p.tok
	switch tok.Kind {
	case lexer.IntLiteral:
		p.advance()
		return expr.NewIntLiteral(p.ctx, tok.Range, tok.IntValue, tok.IsUnsigned)
	case lexer.FloatLiteral:
		p.advance()
		return expr.NewFloatLiteral(p.ctx, tok.Range, tok.FloatValue)
	case lexer.StringLiteral:
		p.advance()
		return expr.NewStringLiteral(p.ctx, tok.Range, tok.Cooked)
	case lexer.CharLiteral:
		p.advance()
		return expr.NewIntLiteral(p.ctx, tok.Range, tok.IntValue, false)
	case lexer.KwNullptr:
		p.advance()
		return expr.NewNullptrLiteral(p.ctx, tok.Range)
	case lexer.Ident:
		p.advance()
		name := p.strs.Create(tok.Cooked)
		entry, ok := p.syms.Find(name.Text(), symtab.AnyEnclosing)
		if !ok {
			p.ctx.Diags.Fatal(tok.Range, "use of undeclared identifier %q", name.Text())
		}
		return expr.NewIdent(p.ctx, tok.Range, name, entry)
	case lexer.LParen:
		p.advance()
		e := p.parseExpr()
		p.expect(lexer.RParen)
		return e
	default:
		p.ctx.Diags.Fatal(tok.Range, "expected an expression, got %s", tok.Kind.String())
		return expr.NewIntLiteral(p.ctx, tok.Range, 0, false)
	}
}
