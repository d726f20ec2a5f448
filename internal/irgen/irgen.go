// Package irgen is the single boundary between the front end and the
// external LLVM backend. It wraps github.com/llir/llvm's pure-Go IR
// builder behind the narrow set of operations the expression and
// statement layers need: function scaffolding, locals, globals, constants,
// casts, arithmetic/comparison/bitwise instructions, branching, and pointer
// arithmetic. Nothing outside this package imports llir/llvm directly.
package irgen

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// BinOp enumerates the arithmetic, comparison, and bitwise operators the
// expression layer can ask the builder to emit.
type BinOp uint8

const (
	Add BinOp = iota
	Sub
	SMul
	SDiv
	UDiv
	SMod
	UMod
	FAdd
	FSub
	FMul
	FDiv
	Eq
	Ne
	SLt
	ULt
	SLe
	ULe
	SGt
	UGt
	SGe
	UGe
	FEq
	FNe
	FLt
	FLe
	FGt
	FGe
	And
	Or
	Xor
	Shl
	LShr
	AShr
)

// FileType selects what Print emits.
type FileType uint8

const (
	FileTypeIR FileType = iota
	FileTypeAssembly
	FileTypeObject
)

// Builder is the mutable IR-construction context for one compilation unit.
// Exactly one is alive per compilation: the driver never shares a Builder
// across files.
type Builder struct {
	module       *ir.Module
	optLevel     int
	targetTriple string

	fn         *ir.Func
	leaveLabel *ir.Block
	retType    types.Type
	retValSlot value.Value
	cur        *ir.Block
	closed     bool

	locals     map[string]value.Value
	localTypes map[string]types.Type
	globals    map[string]*ir.Global
	funcs      map[string]*ir.Func

	strCounter int
}

// New creates a fresh module and configures the target triple to the host
// default. When optLevel > 0, Print runs `opt` with
// the {instcombine, reassociate, gvn, simplifycfg} pipeline before handing
// the module to llc — llir/llvm only builds IR, it does not carry an
// optimizer, so the pass pipeline is applied out-of-process exactly where
// the backend itself is already shelled out to.
func New(moduleName string, optLevel int) *Builder {
	m := ir.NewModule()
	m.SourceFilename = moduleName
	triple := hostTriple()
	m.TargetTriple = triple
	return &Builder{
		module:       m,
		optLevel:     optLevel,
		targetTriple: triple,
		locals:       make(map[string]value.Value),
		localTypes:   make(map[string]types.Type),
		globals:      make(map[string]*ir.Global),
		funcs:        make(map[string]*ir.Func),
	}
}

func hostTriple() string {
	arch := runtime.GOARCH
	switch arch {
	case "amd64":
		arch = "x86_64"
	case "arm64":
		arch = "aarch64"
	}
	switch runtime.GOOS {
	case "linux":
		return arch + "-unknown-linux-gnu"
	case "darwin":
		return arch + "-apple-darwin"
	default:
		return arch + "-unknown-unknown"
	}
}

// Module exposes the underlying module for tests that print IR text.
func (b *Builder) Module() *ir.Module { return b.module }

// ---- Function scaffolding ----------------------------------------------

// FunctionDeclaration registers (or re-registers) a function signature
// without a body. A prior external declaration may not be downgraded to
// internal linkage.
func (b *Builder) FunctionDeclaration(id string, fnType *types.FuncType, external bool) *ir.Func {
	if f, ok := b.funcs[id]; ok {
		if f.Linkage == enum.LinkageExternal && !external {
			return f // never downgrade
		}
		return f
	}
	params := make([]*ir.Param, len(fnType.Params))
	for i, pt := range fnType.Params {
		params[i] = ir.NewParam(fmt.Sprintf(".param%d", i), pt)
	}
	f := b.module.NewFunc(id, fnType.RetType, params...)
	if external {
		f.Linkage = enum.LinkageExternal
	} else {
		f.Linkage = enum.LinkageInternal
	}
	f.Sig.Variadic = fnType.Variadic
	b.funcs[id] = f
	return f
}

// FunctionDefinitionBegin opens a function body: creates the entry block,
// allocates and stores parameter slots, allocates `.retVal` for non-void
// returns (zero-initialized when id is "main"), and resets the local table.
func (b *Builder) FunctionDefinitionBegin(id string, fnType *types.FuncType, paramNames []string, external bool) {
	f := b.FunctionDeclaration(id, fnType, external)
	for i, name := range paramNames {
		if i < len(f.Params) {
			f.Params[i].LocalIdent = ir.LocalIdent{LocalName: name}
		}
	}

	entry := f.NewBlock("entry")
	b.fn = f
	// leaveLabel is deliberately left unattached (like GetLabel's blocks)
	// until FunctionDefinitionEnd appends it — f.NewBlock would splice it
	// into the block list immediately after entry, ahead of every body
	// block the statement layer is about to emit.
	b.leaveLabel = &ir.Block{LocalIdent: ir.LocalIdent{LocalName: ".leave"}, Parent: f}
	b.retType = fnType.RetType
	b.cur = entry
	b.closed = false
	b.locals = make(map[string]value.Value)
	b.localTypes = make(map[string]types.Type)

	for i, name := range paramNames {
		if i >= len(f.Params) {
			continue
		}
		slot := entry.NewAlloca(fnType.Params[i])
		entry.NewStore(f.Params[i], slot)
		b.locals[name] = slot
		b.localTypes[name] = fnType.Params[i]
	}

	if _, isVoid := fnType.RetType.(*types.VoidType); !isVoid {
		b.retValSlot = entry.NewAlloca(fnType.RetType)
		if id == "main" {
			entry.NewStore(b.ZeroValue(fnType.RetType), b.retValSlot)
		}
	} else {
		b.retValSlot = nil
	}
}

// FunctionDefinitionEnd closes the current block into leaveLabel, emits the
// function's single return instruction, and verifies the function body is
// well-formed (every block terminated).
func (b *Builder) FunctionDefinitionEnd() error {
	if !b.closed {
		b.cur.NewBr(b.leaveLabel)
	}
	b.fn.Blocks = append(b.fn.Blocks, b.leaveLabel)
	if b.retValSlot != nil {
		v := b.leaveLabel.NewLoad(b.retType, b.retValSlot)
		b.leaveLabel.NewRet(v)
	} else {
		b.leaveLabel.NewRet(nil)
	}
	return b.verify()
}

// Leave returns the current function's terminal label; a `return` statement
// jumps here rather than emitting its own ret instruction, so every
// function has exactly one.
func (b *Builder) Leave() *ir.Block { return b.leaveLabel }

// RetValSlot returns the current function's implicit return-value slot, or
// nil for a void function.
func (b *Builder) RetValSlot() value.Value { return b.retValSlot }

func (b *Builder) verify() error {
	for _, blk := range b.fn.Blocks {
		if blk.Term == nil {
			return fmt.Errorf("function %q: block %q has no terminator", b.fn.Name(), blk.Name())
		}
	}
	return nil
}

// ---- Locals --------------------------------------------------------------

// LocalVariableDefinition hoists an alloca into the function's entry block
// regardless of the current codegen cursor.
func (b *Builder) LocalVariableDefinition(name string, typ types.Type) value.Value {
	entry := b.fn.Blocks[0]
	slot := entry.NewAlloca(typ)
	// NewAlloca appends to the end of entry.Insts; splice it to the front so
	// every hoisted local sits above any instructions already emitted into
	// entry, regardless of where in the function this call happened.
	last := len(entry.Insts) - 1
	copy(entry.Insts[1:], entry.Insts[:last])
	entry.Insts[0] = slot
	b.locals[name] = slot
	b.localTypes[name] = typ
	return slot
}

func (b *Builder) Store(val, addr value.Value) {
	b.emit(func(blk *ir.Block) { blk.NewStore(val, addr) })
}

func (b *Builder) Fetch(addr value.Value, typ types.Type) value.Value {
	return b.curBlock().NewLoad(typ, addr)
}

// LoadAddress resolves name by searching locals, then globals, then
// functions, returning a pointer value.
func (b *Builder) LoadAddress(name string) (value.Value, bool) {
	if v, ok := b.locals[name]; ok {
		return v, true
	}
	if g, ok := b.globals[name]; ok {
		return g, true
	}
	if f, ok := b.funcs[name]; ok {
		return f, true
	}
	return nil, false
}

// ---- Globals --------------------------------------------------------------

func (b *Builder) ExternalVariableDeclaration(id string, typ types.Type) *ir.Global {
	if g, ok := b.globals[id]; ok {
		return g
	}
	g := b.module.NewGlobal(id, typ)
	g.Linkage = enum.LinkageExternal
	b.globals[id] = g
	return g
}

// GlobalVariableDefinition is idempotent: it may follow an extern
// declaration of the same id and installs the initializer on it.
func (b *Builder) GlobalVariableDefinition(id string, typ types.Type, init constant.Constant, external bool) *ir.Global {
	g, ok := b.globals[id]
	if !ok {
		g = b.module.NewGlobal(id, typ)
		b.globals[id] = g
	}
	g.Init = init
	if external {
		g.Linkage = enum.LinkageExternal
	} else {
		g.Linkage = enum.LinkageInternal
	}
	return g
}

// ---- Constants --------------------------------------------------------------

func (b *Builder) ConstInt(typ *types.IntType, v int64) *constant.Int {
	return constant.NewInt(typ, v)
}

func (b *Builder) ConstFloat(typ *types.FloatType, v float64) *constant.Float {
	return constant.NewFloat(typ, v)
}

// ConstString materializes a private global holding s plus a NUL
// terminator and returns its address.
func (b *Builder) ConstString(s string) value.Value {
	name := fmt.Sprintf(".str.%d", b.strCounter)
	b.strCounter++
	data := constant.NewCharArrayFromString(s + "\x00")
	g := b.module.NewGlobalDef(name, data)
	g.Linkage = enum.LinkagePrivate
	g.Immutable = true
	zero := constant.NewInt(types.I32, 0)
	return constant.NewGetElementPtr(data.Typ, g, zero, zero)
}

// ZeroValue returns a zero-valued constant for any representable type.
func (b *Builder) ZeroValue(typ types.Type) constant.Constant {
	return constant.NewZeroInitializer(typ)
}

// ---- Casts --------------------------------------------------------------

// Cast dispatches on the from/to type-kind pair: integer widen (zext/sext by
// fromSigned), integer narrow (trunc), fp widen/narrow (fpext/fptrunc),
// int<->fp (using the integer side's signedness), pointer<->pointer and
// array<->array no-ops (bitcast). Anything else is a caller programming
// error — the front end's own Convert/ExplicitCast predicates must have
// already rejected it.
func (b *Builder) Cast(val value.Value, from, to types.Type, fromSigned bool) value.Value {
	blk := b.curBlock()
	switch f := from.(type) {
	case *types.IntType:
		switch t := to.(type) {
		case *types.IntType:
			switch {
			case f.BitSize == t.BitSize:
				return val
			case f.BitSize < t.BitSize:
				if fromSigned {
					return blk.NewSExt(val, t)
				}
				return blk.NewZExt(val, t)
			default:
				return blk.NewTrunc(val, t)
			}
		case *types.FloatType:
			if fromSigned {
				return blk.NewSIToFP(val, t)
			}
			return blk.NewUIToFP(val, t)
		}
	case *types.FloatType:
		switch t := to.(type) {
		case *types.FloatType:
			if floatRank(f) < floatRank(t) {
				return blk.NewFPExt(val, t)
			}
			return blk.NewFPTrunc(val, t)
		case *types.IntType:
			if fromSigned {
				return blk.NewFPToSI(val, t)
			}
			return blk.NewFPToUI(val, t)
		}
	case *types.PointerType:
		if _, ok := to.(*types.PointerType); ok {
			return blk.NewBitCast(val, to)
		}
	case *types.ArrayType:
		if _, ok := to.(*types.ArrayType); ok {
			return blk.NewBitCast(val, to)
		}
	}
	panic(fmt.Sprintf("irgen: unsupported cast from %s to %s", from, to))
}

func floatRank(t *types.FloatType) int {
	if t.Kind == types.FloatKindDouble {
		return 2
	}
	return 1
}

// ---- Arithmetic / comparison / bitwise ----------------------------------

func (b *Builder) Binary(op BinOp, x, y value.Value) value.Value {
	blk := b.curBlock()
	switch op {
	case Add:
		return blk.NewAdd(x, y)
	case Sub:
		return blk.NewSub(x, y)
	case SMul:
		return blk.NewMul(x, y)
	case SDiv:
		return blk.NewSDiv(x, y)
	case UDiv:
		return blk.NewUDiv(x, y)
	case SMod:
		return blk.NewSRem(x, y)
	case UMod:
		return blk.NewURem(x, y)
	case FAdd:
		return blk.NewFAdd(x, y)
	case FSub:
		return blk.NewFSub(x, y)
	case FMul:
		return blk.NewFMul(x, y)
	case FDiv:
		return blk.NewFDiv(x, y)
	case Eq:
		return blk.NewICmp(enum.IPredEQ, x, y)
	case Ne:
		return blk.NewICmp(enum.IPredNE, x, y)
	case SLt:
		return blk.NewICmp(enum.IPredSLT, x, y)
	case ULt:
		return blk.NewICmp(enum.IPredULT, x, y)
	case SLe:
		return blk.NewICmp(enum.IPredSLE, x, y)
	case ULe:
		return blk.NewICmp(enum.IPredULE, x, y)
	case SGt:
		return blk.NewICmp(enum.IPredSGT, x, y)
	case UGt:
		return blk.NewICmp(enum.IPredUGT, x, y)
	case SGe:
		return blk.NewICmp(enum.IPredSGE, x, y)
	case UGe:
		return blk.NewICmp(enum.IPredUGE, x, y)
	case FEq:
		return blk.NewFCmp(enum.FPredOEQ, x, y)
	case FNe:
		return blk.NewFCmp(enum.FPredONE, x, y)
	case FLt:
		return blk.NewFCmp(enum.FPredOLT, x, y)
	case FLe:
		return blk.NewFCmp(enum.FPredOLE, x, y)
	case FGt:
		return blk.NewFCmp(enum.FPredOGT, x, y)
	case FGe:
		return blk.NewFCmp(enum.FPredOGE, x, y)
	case And:
		return blk.NewAnd(x, y)
	case Or:
		return blk.NewOr(x, y)
	case Xor:
		return blk.NewXor(x, y)
	case Shl:
		return blk.NewShl(x, y)
	case LShr:
		return blk.NewLShr(x, y)
	case AShr:
		return blk.NewAShr(x, y)
	}
	panic("irgen: unknown binary operator")
}

// ---- Calls ------------------------------------------------------------------

// Call emits a direct call to callee (a *ir.Func or any other pointer-typed
// function value) with args, returning the call instruction as its result
// (for a void callee this is a void-typed value that callers must not use
// as an operand).
func (b *Builder) Call(callee value.Value, args ...value.Value) value.Value {
	return b.curBlock().NewCall(callee, args...)
}

// ---- Branching ------------------------------------------------------------

// GetLabel creates an unattached block; DefineLabel attaches it to the
// function and moves the cursor, auto-inserting a jump from any still-open
// prior block.
func (b *Builder) GetLabel(name string) *ir.Block {
	return &ir.Block{LocalIdent: ir.LocalIdent{LocalName: name}, Parent: b.fn}
}

func (b *Builder) DefineLabel(l *ir.Block) {
	if !b.closed {
		b.cur.NewBr(l)
	}
	l.Parent = b.fn
	b.fn.Blocks = append(b.fn.Blocks, l)
	b.cur = l
	b.closed = false
}

func (b *Builder) Jump(l *ir.Block) {
	b.emit(func(blk *ir.Block) { blk.NewBr(l) })
	b.closed = true
}

func (b *Builder) CondJump(cond value.Value, trueLabel, falseLabel *ir.Block) {
	b.emit(func(blk *ir.Block) { blk.NewCondBr(cond, trueLabel, falseLabel) })
	b.closed = true
}

// SwitchCase pairs one matched constant with the block it jumps to.
type SwitchCase struct {
	Value *constant.Int
	Label *ir.Block
}

// Switch emits a jump-table dispatch over cond, falling back to
// defaultLabel when no case matches.
func (b *Builder) Switch(cond value.Value, defaultLabel *ir.Block, cases []SwitchCase) {
	irCases := make([]*ir.Case, len(cases))
	for i, c := range cases {
		irCases[i] = ir.NewCase(c.Value, c.Label)
	}
	b.emit(func(blk *ir.Block) { blk.NewSwitch(cond, defaultLabel, irCases...) })
	b.closed = true
}

// OpenUnreachable opens a synthetic `.unreachable` block when a statement's
// entry block is already closed, so subsequent codegen stays well-formed.
func (b *Builder) OpenUnreachable() {
	b.cur = b.fn.NewBlock(".unreachable")
	b.closed = false
}

func (b *Builder) curBlock() *ir.Block {
	if b.closed {
		b.OpenUnreachable()
	}
	return b.cur
}

func (b *Builder) emit(f func(blk *ir.Block)) {
	f(b.curBlock())
}

// ---- Pointer arithmetic ----------------------------------------------------

// PointerIncrement computes base + index*sizeof(refType) via getelementptr.
func (b *Builder) PointerIncrement(refType types.Type, base value.Value, index value.Value) value.Value {
	return b.curBlock().NewGetElementPtr(refType, base, index)
}

// PointerToIndex computes the address of member memberIndex within the
// aggregate at base.
func (b *Builder) PointerToIndex(aggType types.Type, base value.Value, memberIndex int) value.Value {
	zero := constant.NewInt(types.I32, 0)
	idx := constant.NewInt(types.I32, int64(memberIndex))
	return b.curBlock().NewGetElementPtr(aggType, base, zero, idx)
}

// ---- Output -----------------------------------------------------------------

// Print runs the module-default optimization pipeline (when configured),
// then writes IR text, assembly, or an object file to path.
func (b *Builder) Print(path string, ft FileType) error {
	text := b.module.String()
	if b.optLevel > 0 {
		optimized, err := runOpt(text)
		if err == nil {
			text = optimized
		}
	}
	switch ft {
	case FileTypeIR:
		return os.WriteFile(path, []byte(text), 0o644)
	case FileTypeAssembly:
		return runLLC(text, path, "-filetype=asm")
	case FileTypeObject:
		return runLLC(text, path, "-filetype=obj")
	}
	return fmt.Errorf("irgen: unknown file type %d", ft)
}

func runOpt(irText string) (string, error) {
	cmd := exec.Command("opt", "-S",
		"-passes=instcombine,reassociate,gvn,simplifycfg")
	cmd.Stdin = newReader(irText)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func runLLC(irText, path, flag string) error {
	cmd := exec.Command("llc", flag, "-o", path, "-")
	cmd.Stdin = newReader(irText)
	return cmd.Run()
}

func newReader(s string) io.Reader { return strings.NewReader(s) }
