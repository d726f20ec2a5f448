// Package ast defines the syntax tree nodes the parser builds and the
// driver walks to emit IR. Every node carries its own
// source range, an Apply method implementing the "visit self, then
// recurse into owned children if told to" contract, and a Codegen method
// driving internal/irgen. Expression nodes themselves live in
// internal/expr, which already implements the codegen/flat-printer
// contract this package needs from them.
package ast

import (
	"fmt"
	"strings"

	llvmir "github.com/llir/llvm/ir"
	llvmconstant "github.com/llir/llvm/ir/constant"
	llvmtypes "github.com/llir/llvm/ir/types"

	"codeberg.org/saruga/abcc/internal/expr"
	"codeberg.org/saruga/abcc/internal/irgen"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/types"
)

// Node is the common shape every tree element satisfies.
type Node interface {
	Range() source.Range
}

// Stmt is a statement inside a function body.
type Stmt interface {
	Node
	// Apply calls visit on the receiver first; if visit returns true, Apply
	// recurses into each owned child statement in declaration order.
	// Loop/switch nodes use this only for the goto/label
	// discovery pass; break/continue/return resolve directly against the
	// Context's loop stack at codegen time instead of a separate patching
	// pass, since codegen already visits the tree top-down in the same
	// order a patching pass would.
	Apply(visit func(Node) bool)
	Codegen(ctx *Context, b *irgen.Builder)
	Print(indent int) string
}

// TopLevel is one top-level declaration or definition.
type TopLevel interface {
	Node
	Codegen(ctx *Context, b *irgen.Builder)
	Print(indent int) string
}

// Context threads the expression layer's services plus the statement
// layer's own per-function bookkeeping (the loop/switch break-continue
// stack and the current function's label table) through Codegen calls.
type Context struct {
	*expr.Context

	breakStack    []*llvmir.Block
	continueStack []*llvmir.Block
	labels        map[string]*llvmir.Block
}

func NewContext(ec *expr.Context) *Context {
	return &Context{Context: ec}
}

func (c *Context) pushLoop(brk, cont *llvmir.Block) {
	c.breakStack = append(c.breakStack, brk)
	c.continueStack = append(c.continueStack, cont)
}

// pushSwitch is like pushLoop but leaves the continue target to whatever
// enclosing loop already set: continue always targets the nearest loop,
// never a switch.
func (c *Context) pushSwitch(brk *llvmir.Block) {
	var cont *llvmir.Block
	if len(c.continueStack) > 0 {
		cont = c.continueStack[len(c.continueStack)-1]
	}
	c.breakStack = append(c.breakStack, brk)
	c.continueStack = append(c.continueStack, cont)
}

func (c *Context) popScope() {
	c.breakStack = c.breakStack[:len(c.breakStack)-1]
	c.continueStack = c.continueStack[:len(c.continueStack)-1]
}

func (c *Context) currentBreak() *llvmir.Block {
	return c.breakStack[len(c.breakStack)-1]
}

func (c *Context) currentContinue() *llvmir.Block {
	return c.continueStack[len(c.continueStack)-1]
}

func indentStr(n int) string { return strings.Repeat("  ", n) }

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is the root node: the parsed file's top-level declarations in
// source order.
type Program struct {
	Decls []TopLevel
}

func (p *Program) Codegen(ctx *Context, b *irgen.Builder) {
	for _, d := range p.Decls {
		d.Codegen(ctx, b)
	}
}

func (p *Program) Print() string {
	var sb strings.Builder
	for _, d := range p.Decls {
		sb.WriteString(d.Print(0))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Function declaration / definition
// ---------------------------------------------------------------------------

// FuncDecl is a bare function header, `;`-terminated with no body.
type FuncDecl struct {
	rng      source.Range
	Entry    *symtab.Entry
	External bool
}

func NewFuncDecl(rng source.Range, entry *symtab.Entry, external bool) *FuncDecl {
	return &FuncDecl{rng: rng, Entry: entry, External: external}
}

func (d *FuncDecl) Range() source.Range { return d.rng }
func (d *FuncDecl) Codegen(ctx *Context, b *irgen.Builder) {
	fnType := ctx.Lower.Lower(d.Entry.Type).(*llvmtypes.FuncType)
	b.FunctionDeclaration(d.Entry.MangledID.Text(), fnType, d.External)
}
func (d *FuncDecl) Print(indent int) string {
	return fmt.Sprintf("%sfn %s(...);", indentStr(indent), d.Entry.Name.Text())
}

// FuncDef is a function header plus its body.
type FuncDef struct {
	rng        source.Range
	Entry      *symtab.Entry
	ParamNames []string
	External   bool
	Body       *Block
}

func NewFuncDef(rng source.Range, entry *symtab.Entry, paramNames []string, external bool, body *Block) *FuncDef {
	return &FuncDef{rng: rng, Entry: entry, ParamNames: paramNames, External: external, Body: body}
}

func (d *FuncDef) Range() source.Range { return d.rng }
func (d *FuncDef) Codegen(ctx *Context, b *irgen.Builder) {
	fnType := ctx.Lower.Lower(d.Entry.Type).(*llvmtypes.FuncType)
	b.FunctionDefinitionBegin(d.Entry.MangledID.Text(), fnType, d.ParamNames, d.External)

	ctx.labels = make(map[string]*llvmir.Block)
	collectLabels(ctx, b, d.Body)

	d.Body.Codegen(ctx, b)
	if err := b.FunctionDefinitionEnd(); err != nil {
		ctx.Diags.Fatal(d.rng, "function %q: %v", d.Entry.Name.Text(), err)
	}
}
func (d *FuncDef) Print(indent int) string {
	return fmt.Sprintf("%sfn %s(...) %s", indentStr(indent), d.Entry.Name.Text(), d.Body.Print(indent))
}

// collectLabels walks body once, pre-creating an unattached block for
// every labeled statement so forward gotos have something to jump to
// before their target is reached in the top-down codegen pass.
func collectLabels(ctx *Context, b *irgen.Builder, body Stmt) {
	body.Apply(func(n Node) bool {
		if l, ok := n.(*LabelStmt); ok {
			ctx.labels[l.Name] = b.GetLabel(".label." + l.Name)
		}
		return true
	})
}

// ---------------------------------------------------------------------------
// Extern / global variable declarations
// ---------------------------------------------------------------------------

// ExternVarDecl is one name in an `extern ident-list : type;` form.
type ExternVarDecl struct {
	rng   source.Range
	Entry *symtab.Entry
}

func NewExternVarDecl(rng source.Range, entry *symtab.Entry) *ExternVarDecl {
	return &ExternVarDecl{rng: rng, Entry: entry}
}

func (d *ExternVarDecl) Range() source.Range { return d.rng }
func (d *ExternVarDecl) Codegen(ctx *Context, b *irgen.Builder) {
	b.ExternalVariableDeclaration(d.Entry.MangledID.Text(), ctx.Lower.Lower(d.Entry.Type))
}
func (d *ExternVarDecl) Print(indent int) string {
	return fmt.Sprintf("%sextern %s;", indentStr(indent), d.Entry.Name.Text())
}

// GlobalVarDecl is one `global name: type [= init];` declarator. External is
// false only when the declaration carried a leading `static`.
type GlobalVarDecl struct {
	rng      source.Range
	Entry    *symtab.Entry
	Init     expr.Expr // nil if none
	External bool
}

func NewGlobalVarDecl(rng source.Range, entry *symtab.Entry, init expr.Expr, external bool) *GlobalVarDecl {
	return &GlobalVarDecl{rng: rng, Entry: entry, Init: init, External: external}
}

func (d *GlobalVarDecl) Range() source.Range { return d.rng }
func (d *GlobalVarDecl) Codegen(ctx *Context, b *irgen.Builder) {
	lt := ctx.Lower.Lower(d.Entry.Type)
	init := globalConstant(ctx, lt, d.Init)
	b.GlobalVariableDefinition(d.Entry.MangledID.Text(), lt, init, d.External)
}
func (d *GlobalVarDecl) Print(indent int) string {
	return fmt.Sprintf("%sglobal %s;", indentStr(indent), d.Entry.Name.Text())
}

// globalConstant folds init to an LLVM constant for a global initializer.
// Literal operands fold directly; anything else (a non-constant, or a
// compound expression the constant folder does not reduce) falls back to
// a typed zero, matching how an uninitialized global is already handled.
func globalConstant(ctx *Context, lt llvmtypes.Type, init expr.Expr) llvmconstant.Constant {
	if init == nil {
		return zeroConstant(lt)
	}
	switch lit := init.(type) {
	case *expr.IntLiteral:
		return llvmconstant.NewInt(lt.(*llvmtypes.IntType), lit.Value)
	case *expr.FloatLiteral:
		return llvmconstant.NewFloat(lt.(*llvmtypes.FloatType), lit.Value)
	}
	if v, ok := init.LoadConstant(); ok {
		if it, isInt := lt.(*llvmtypes.IntType); isInt {
			return llvmconstant.NewInt(it, v)
		}
	}
	return zeroConstant(lt)
}

func zeroConstant(lt llvmtypes.Type) llvmconstant.Constant {
	return llvmconstant.NewZeroInitializer(lt)
}

// ---------------------------------------------------------------------------
// Type alias / struct / enum (printing only — the registry already holds
// the resolved type by the time the parser builds these nodes)
// ---------------------------------------------------------------------------

type TypeAliasDecl struct {
	rng   source.Range
	Name  string
	Alias types.Type
}

func NewTypeAliasDecl(rng source.Range, name string, alias types.Type) *TypeAliasDecl {
	return &TypeAliasDecl{rng: rng, Name: name, Alias: alias}
}

func (d *TypeAliasDecl) Range() source.Range                   { return d.rng }
func (d *TypeAliasDecl) Codegen(ctx *Context, b *irgen.Builder) {}
func (d *TypeAliasDecl) Print(indent int) string {
	return fmt.Sprintf("%stype %s = ...;", indentStr(indent), d.Name)
}

type StructDecl struct {
	rng  source.Range
	Name string
	Type types.Type
}

func NewStructDecl(rng source.Range, name string, t types.Type) *StructDecl {
	return &StructDecl{rng: rng, Name: name, Type: t}
}

func (d *StructDecl) Range() source.Range                   { return d.rng }
func (d *StructDecl) Codegen(ctx *Context, b *irgen.Builder) {}
func (d *StructDecl) Print(indent int) string {
	return fmt.Sprintf("%sstruct %s;", indentStr(indent), d.Name)
}

type EnumItem struct {
	Name  string
	Value int64
}

type EnumDecl struct {
	rng   source.Range
	Name  string
	Type  types.Type
	Items []EnumItem
}

func NewEnumDecl(rng source.Range, name string, t types.Type, items []EnumItem) *EnumDecl {
	return &EnumDecl{rng: rng, Name: name, Type: t, Items: items}
}

func (d *EnumDecl) Range() source.Range                   { return d.rng }
func (d *EnumDecl) Codegen(ctx *Context, b *irgen.Builder) {}
func (d *EnumDecl) Print(indent int) string {
	names := make([]string, len(d.Items))
	for i, it := range d.Items {
		names[i] = fmt.Sprintf("%s = %d", it.Name, it.Value)
	}
	return fmt.Sprintf("%senum %s { %s };", indentStr(indent), d.Name, strings.Join(names, ", "))
}

// ConstDecl binds one or more names to a compile-time constant value
// (`const` prefix on a global-def or local-def, a supplement to the `static`
// top-level linkage marker — neither has a grammar production of its own).
// Entries are already registered in the symbol table via
// Table.AddExpression by the time this node is built, so Codegen is a
// no-op: every later reference resolves through the Ident node's
// ConstValue, never through a loaded memory slot.
type ConstDecl struct {
	rng     source.Range
	Entries []*symtab.Entry
}

func NewConstDecl(rng source.Range, entries []*symtab.Entry) *ConstDecl {
	return &ConstDecl{rng: rng, Entries: entries}
}

func (d *ConstDecl) Range() source.Range                   { return d.rng }
func (d *ConstDecl) Apply(visit func(Node) bool)            { visit(d) }
func (d *ConstDecl) Codegen(ctx *Context, b *irgen.Builder) {}
func (d *ConstDecl) Print(indent int) string {
	names := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		names[i] = fmt.Sprintf("%s = %d", e.Name.Text(), e.ConstValue)
	}
	return fmt.Sprintf("%sconst %s;", indentStr(indent), strings.Join(names, ", "))
}

// ---------------------------------------------------------------------------
// Local variable declaration (as a statement)
// ---------------------------------------------------------------------------

// VarDecl is one `ident: type [= init]` declarator in a local-def list.
type VarDecl struct {
	Entry *symtab.Entry
	Init  expr.Expr // nil if none
}

// LocalDecl is a `local var-decl {, var-decl} ;` statement.
type LocalDecl struct {
	rng   source.Range
	Decls []VarDecl
}

func NewLocalDecl(rng source.Range, decls []VarDecl) *LocalDecl {
	return &LocalDecl{rng: rng, Decls: decls}
}

func (s *LocalDecl) Range() source.Range         { return s.rng }
func (s *LocalDecl) Apply(visit func(Node) bool) { visit(s) }
func (s *LocalDecl) Codegen(ctx *Context, b *irgen.Builder) {
	for _, d := range s.Decls {
		lt := ctx.Lower.Lower(d.Entry.Type)
		slot := b.LocalVariableDefinition(d.Entry.MangledID.Text(), lt)
		if d.Init != nil {
			b.Store(d.Init.LoadValue(b), slot)
		}
	}
}
func (s *LocalDecl) Print(indent int) string {
	names := make([]string, len(s.Decls))
	for i, d := range s.Decls {
		names[i] = d.Entry.Name.Text()
	}
	return fmt.Sprintf("%slocal %s;", indentStr(indent), strings.Join(names, ", "))
}

// ---------------------------------------------------------------------------
// Block
// ---------------------------------------------------------------------------

type Block struct {
	rng   source.Range
	Stmts []Stmt
}

func NewBlock(rng source.Range, stmts []Stmt) *Block {
	return &Block{rng: rng, Stmts: stmts}
}

func (s *Block) Range() source.Range { return s.rng }
func (s *Block) Apply(visit func(Node) bool) {
	if !visit(s) {
		return
	}
	for _, st := range s.Stmts {
		st.Apply(visit)
	}
}
func (s *Block) Codegen(ctx *Context, b *irgen.Builder) {
	for _, st := range s.Stmts {
		st.Codegen(ctx, b)
	}
}
func (s *Block) Print(indent int) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for _, st := range s.Stmts {
		sb.WriteString(st.Print(indent + 1))
		sb.WriteString("\n")
	}
	sb.WriteString(indentStr(indent) + "}")
	return sb.String()
}

// ---------------------------------------------------------------------------
// Expression statement
// ---------------------------------------------------------------------------

type ExprStmt struct {
	rng source.Range
	X   expr.Expr
}

func NewExprStmt(rng source.Range, x expr.Expr) *ExprStmt { return &ExprStmt{rng: rng, X: x} }

func (s *ExprStmt) Range() source.Range         { return s.rng }
func (s *ExprStmt) Apply(visit func(Node) bool) { visit(s) }
func (s *ExprStmt) Codegen(ctx *Context, b *irgen.Builder) {
	s.X.LoadValue(b)
}
func (s *ExprStmt) Print(indent int) string {
	return fmt.Sprintf("%s%s;", indentStr(indent), s.X.Flat(0))
}

// ---------------------------------------------------------------------------
// if / else
// ---------------------------------------------------------------------------

type If struct {
	rng  source.Range
	Cond expr.Expr
	Then Stmt
	Else Stmt // nil, *If, or *Block
}

func NewIf(rng source.Range, cond expr.Expr, then, els Stmt) *If {
	return &If{rng: rng, Cond: cond, Then: then, Else: els}
}

func (s *If) Range() source.Range { return s.rng }
func (s *If) Apply(visit func(Node) bool) {
	if !visit(s) {
		return
	}
	s.Then.Apply(visit)
	if s.Else != nil {
		s.Else.Apply(visit)
	}
}
func (s *If) Codegen(ctx *Context, b *irgen.Builder) {
	thenL := b.GetLabel(".if.then")
	endL := b.GetLabel(".if.end")
	if s.Else == nil {
		s.Cond.Condition(b, thenL, endL)
		b.DefineLabel(thenL)
		s.Then.Codegen(ctx, b)
		b.Jump(endL)
		b.DefineLabel(endL)
		return
	}
	elseL := b.GetLabel(".if.else")
	s.Cond.Condition(b, thenL, elseL)
	b.DefineLabel(thenL)
	s.Then.Codegen(ctx, b)
	b.Jump(endL)
	b.DefineLabel(elseL)
	s.Else.Codegen(ctx, b)
	b.Jump(endL)
	b.DefineLabel(endL)
}
func (s *If) Print(indent int) string {
	out := fmt.Sprintf("%sif (%s) %s", indentStr(indent), s.Cond.Flat(0), s.Then.Print(indent))
	if s.Else != nil {
		out += " else " + strings.TrimLeft(s.Else.Print(indent), " ")
	}
	return out
}

// ---------------------------------------------------------------------------
// while / do-while / for
// ---------------------------------------------------------------------------

type While struct {
	rng  source.Range
	Cond expr.Expr
	Body Stmt
}

func NewWhile(rng source.Range, cond expr.Expr, body Stmt) *While {
	return &While{rng: rng, Cond: cond, Body: body}
}

func (s *While) Range() source.Range { return s.rng }
func (s *While) Apply(visit func(Node) bool) {
	if !visit(s) {
		return
	}
	s.Body.Apply(visit)
}
func (s *While) Codegen(ctx *Context, b *irgen.Builder) {
	condL := b.GetLabel(".while.cond")
	bodyL := b.GetLabel(".while.body")
	endL := b.GetLabel(".while.end")
	b.Jump(condL)
	b.DefineLabel(condL)
	s.Cond.Condition(b, bodyL, endL)
	b.DefineLabel(bodyL)
	ctx.pushLoop(endL, condL)
	s.Body.Codegen(ctx, b)
	ctx.popScope()
	b.Jump(condL)
	b.DefineLabel(endL)
}
func (s *While) Print(indent int) string {
	return fmt.Sprintf("%swhile (%s) %s", indentStr(indent), s.Cond.Flat(0), s.Body.Print(indent))
}

type DoWhile struct {
	rng  source.Range
	Body Stmt
	Cond expr.Expr
}

func NewDoWhile(rng source.Range, body Stmt, cond expr.Expr) *DoWhile {
	return &DoWhile{rng: rng, Body: body, Cond: cond}
}

func (s *DoWhile) Range() source.Range { return s.rng }
func (s *DoWhile) Apply(visit func(Node) bool) {
	if !visit(s) {
		return
	}
	s.Body.Apply(visit)
}
func (s *DoWhile) Codegen(ctx *Context, b *irgen.Builder) {
	bodyL := b.GetLabel(".do.body")
	condL := b.GetLabel(".do.cond")
	endL := b.GetLabel(".do.end")
	b.Jump(bodyL)
	b.DefineLabel(bodyL)
	ctx.pushLoop(endL, condL)
	s.Body.Codegen(ctx, b)
	ctx.popScope()
	b.Jump(condL)
	b.DefineLabel(condL)
	s.Cond.Condition(b, bodyL, endL)
	b.DefineLabel(endL)
}
func (s *DoWhile) Print(indent int) string {
	return fmt.Sprintf("%sdo %s while (%s);", indentStr(indent), s.Body.Print(indent), s.Cond.Flat(0))
}

type For struct {
	rng    source.Range
	Init   Stmt // *LocalDecl, *ExprStmt, or nil
	Cond   expr.Expr
	Update expr.Expr
	Body   Stmt
}

func NewFor(rng source.Range, init Stmt, cond, update expr.Expr, body Stmt) *For {
	return &For{rng: rng, Init: init, Cond: cond, Update: update, Body: body}
}

func (s *For) Range() source.Range { return s.rng }
func (s *For) Apply(visit func(Node) bool) {
	if !visit(s) {
		return
	}
	if s.Init != nil {
		s.Init.Apply(visit)
	}
	s.Body.Apply(visit)
}
func (s *For) Codegen(ctx *Context, b *irgen.Builder) {
	condL := b.GetLabel(".for.cond")
	bodyL := b.GetLabel(".for.body")
	updateL := b.GetLabel(".for.update")
	endL := b.GetLabel(".for.end")
	if s.Init != nil {
		s.Init.Codegen(ctx, b)
	}
	b.Jump(condL)
	b.DefineLabel(condL)
	if s.Cond != nil {
		s.Cond.Condition(b, bodyL, endL)
	} else {
		b.Jump(bodyL)
	}
	b.DefineLabel(bodyL)
	ctx.pushLoop(endL, updateL)
	s.Body.Codegen(ctx, b)
	ctx.popScope()
	b.Jump(updateL)
	b.DefineLabel(updateL)
	if s.Update != nil {
		s.Update.LoadValue(b)
	}
	b.Jump(condL)
	b.DefineLabel(endL)
}
func (s *For) Print(indent int) string {
	init := ""
	if s.Init != nil {
		init = strings.TrimRight(strings.TrimLeft(s.Init.Print(0), " "), ";")
	}
	cond, update := "", ""
	if s.Cond != nil {
		cond = s.Cond.Flat(0)
	}
	if s.Update != nil {
		update = s.Update.Flat(0)
	}
	return fmt.Sprintf("%sfor (%s; %s; %s) %s", indentStr(indent), init, cond, update, s.Body.Print(indent))
}

// ---------------------------------------------------------------------------
// switch
// ---------------------------------------------------------------------------

// CaseLabel marks where one `case expr:`/`default:` clause begins within
// Switch.Body's flattened, fall-through statement list.
type CaseLabel struct {
	Value     int64
	IsDefault bool
	BodyIndex int
}

type Switch struct {
	rng   source.Range
	Tag   expr.Expr
	Cases []CaseLabel
	Body  []Stmt
}

func NewSwitch(rng source.Range, tag expr.Expr, cases []CaseLabel, body []Stmt) *Switch {
	return &Switch{rng: rng, Tag: tag, Cases: cases, Body: body}
}

func (s *Switch) Range() source.Range { return s.rng }
func (s *Switch) Apply(visit func(Node) bool) {
	if !visit(s) {
		return
	}
	for _, st := range s.Body {
		st.Apply(visit)
	}
}

// Codegen lowers the switch to a jump table: one label per
// case/default clause, with C-style fallthrough between clauses left to
// the body's own statement order (no implicit break is ever inserted).
func (s *Switch) Codegen(ctx *Context, b *irgen.Builder) {
	endLabel := b.GetLabel(".switch.end")
	ctx.pushSwitch(endLabel)
	defer ctx.popScope()

	tagVal := s.Tag.LoadValue(b)
	lt := ctx.Lower.Lower(s.Tag.Type()).(*llvmtypes.IntType)

	caseLabels := make([]*llvmir.Block, len(s.Cases))
	for i := range s.Cases {
		caseLabels[i] = b.GetLabel(fmt.Sprintf(".switch.case%d", i))
	}

	defaultLabel := endLabel
	var irCases []irgen.SwitchCase
	for i, c := range s.Cases {
		if c.IsDefault {
			defaultLabel = caseLabels[i]
			continue
		}
		irCases = append(irCases, irgen.SwitchCase{Value: llvmconstant.NewInt(lt, c.Value), Label: caseLabels[i]})
	}
	b.Switch(tagVal, defaultLabel, irCases)

	nextCase := 0
	for i, stmt := range s.Body {
		for nextCase < len(s.Cases) && s.Cases[nextCase].BodyIndex == i {
			b.DefineLabel(caseLabels[nextCase])
			nextCase++
		}
		stmt.Codegen(ctx, b)
	}
	for nextCase < len(s.Cases) {
		b.DefineLabel(caseLabels[nextCase])
		nextCase++
	}
	b.DefineLabel(endLabel)
}
func (s *Switch) Print(indent int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sswitch (%s) {\n", indentStr(indent), s.Tag.Flat(0))
	for _, st := range s.Body {
		sb.WriteString(st.Print(indent + 1))
		sb.WriteString("\n")
	}
	sb.WriteString(indentStr(indent) + "}")
	return sb.String()
}

// ---------------------------------------------------------------------------
// return / break / continue / goto / label
// ---------------------------------------------------------------------------

type Return struct {
	rng   source.Range
	Value expr.Expr // nil for a bare `return;`
}

func NewReturn(rng source.Range, value expr.Expr) *Return { return &Return{rng: rng, Value: value} }

func (s *Return) Range() source.Range         { return s.rng }
func (s *Return) Apply(visit func(Node) bool) { visit(s) }
func (s *Return) Codegen(ctx *Context, b *irgen.Builder) {
	if s.Value != nil {
		if slot := b.RetValSlot(); slot != nil {
			b.Store(s.Value.LoadValue(b), slot)
		}
	}
	b.Jump(b.Leave())
}
func (s *Return) Print(indent int) string {
	if s.Value == nil {
		return indentStr(indent) + "return;"
	}
	return fmt.Sprintf("%sreturn %s;", indentStr(indent), s.Value.Flat(0))
}

type Break struct{ rng source.Range }

func NewBreak(rng source.Range) *Break { return &Break{rng: rng} }

func (s *Break) Range() source.Range                  { return s.rng }
func (s *Break) Apply(visit func(Node) bool)           { visit(s) }
func (s *Break) Codegen(ctx *Context, b *irgen.Builder) { b.Jump(ctx.currentBreak()) }
func (s *Break) Print(indent int) string               { return indentStr(indent) + "break;" }

type Continue struct{ rng source.Range }

func NewContinue(rng source.Range) *Continue { return &Continue{rng: rng} }

func (s *Continue) Range() source.Range                  { return s.rng }
func (s *Continue) Apply(visit func(Node) bool)           { visit(s) }
func (s *Continue) Codegen(ctx *Context, b *irgen.Builder) { b.Jump(ctx.currentContinue()) }
func (s *Continue) Print(indent int) string               { return indentStr(indent) + "continue;" }

type Goto struct {
	rng   source.Range
	Label string
}

func NewGoto(rng source.Range, label string) *Goto { return &Goto{rng: rng, Label: label} }

func (s *Goto) Range() source.Range         { return s.rng }
func (s *Goto) Apply(visit func(Node) bool) { visit(s) }
func (s *Goto) Codegen(ctx *Context, b *irgen.Builder) {
	target, ok := ctx.labels[s.Label]
	if !ok {
		ctx.Diags.Fatal(s.rng, "goto target %q has no matching label in this function", s.Label)
		return
	}
	b.Jump(target)
}
func (s *Goto) Print(indent int) string { return fmt.Sprintf("%sgoto %s;", indentStr(indent), s.Label) }

type LabelStmt struct {
	rng  source.Range
	Name string
}

func NewLabelStmt(rng source.Range, name string) *LabelStmt { return &LabelStmt{rng: rng, Name: name} }

func (s *LabelStmt) Range() source.Range         { return s.rng }
func (s *LabelStmt) Apply(visit func(Node) bool) { visit(s) }
func (s *LabelStmt) Codegen(ctx *Context, b *irgen.Builder) {
	b.DefineLabel(ctx.labels[s.Name])
}
func (s *LabelStmt) Print(indent int) string { return fmt.Sprintf("%s%s:", indentStr(indent), s.Name) }
