// Package api provides the public API for the compiler.
//
// This package is intended for programmatic use of the front end and
// code generator without shelling out to the cmd/abcc binary. For CLI
// usage, see cmd/abcc.
package api

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/saruga/abcc/internal/ast"
	"codeberg.org/saruga/abcc/internal/diag"
	"codeberg.org/saruga/abcc/internal/expr"
	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/irgen"
	"codeberg.org/saruga/abcc/internal/lexer"
	"codeberg.org/saruga/abcc/internal/parser"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/symtab"
	"codeberg.org/saruga/abcc/internal/types"
)

// OutputKind selects what Compile produces.
type OutputKind int

const (
	OutputObject OutputKind = iota
	OutputAssembly
	OutputLLVMIR
	// OutputASTDump skips codegen entirely; Result.Code holds the printed AST.
	OutputASTDump
)

// Options controls one compilation.
type Options struct {
	// IncludeDirs are searched, in order, for bracketed @<file> includes.
	IncludeDirs []string

	// Optimize turns on the opt pass pipeline before the file is emitted.
	Optimize bool

	// Output selects what form Compile produces.
	Output OutputKind
}

// Result is the outcome of compiling one file.
type Result struct {
	// Code is the emitted IR text, assembly text, or printed AST,
	// depending on Options.Output. Empty when Output is OutputObject,
	// since object files are binary.
	Code string

	// ObjectPath is set instead of Code when Options.Output is
	// OutputObject: the path of the written .o file.
	ObjectPath string

	// Diagnostics holds every non-fatal diagnostic recorded while
	// compiling. A fatal diagnostic does not appear here: it terminates
	// the call before Compile can return (see Sink.Fatal).
	Diagnostics []string
}

// Compile runs path through the full front end and, unless Output is
// OutputASTDump, through code generation, returning the requested form.
//
// A fatal diagnostic (a genuine syntax or type error) is not reported
// through Result or error: it is printed to stderr and the process exits
// with status 1, the same contract internal/driver relies on. Callers
// that need to recover from a malformed input rather than exit should
// pre-validate with a separate process.
func Compile(path string, opts Options) (Result, error) {
	strs := intern.NewStore()
	reg := types.NewRegistry(strs)

	r := source.NewReader(strs, opts.IncludeDirs)
	if err := r.OpenRoot(path); err != nil {
		return Result{}, fmt.Errorf("opening %s: %w", path, err)
	}

	var diags []string
	sink := diag.NewSink(func(f intern.String) string {
		data, _ := os.ReadFile(f.Text())
		return string(data)
	})
	m := source.NewMacros()
	lex := lexer.New(r, m, strs, sink)
	syms := symtab.New(strs)
	ec := &expr.Context{Types: reg, Diags: sink, Lower: expr.NewTypeLowering(reg)}
	parser.SeedBuiltinTypes(strs, syms, reg)

	prog := parser.Parse(lex, strs, syms, ec)
	for _, d := range sink.All() {
		diags = append(diags, sink.Format(d))
	}

	if opts.Output == OutputASTDump {
		return Result{Code: prog.Print(), Diagnostics: diags}, nil
	}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	optLevel := 0
	if opts.Optimize {
		optLevel = 1
	}
	b := irgen.New(moduleName, optLevel)
	astCtx := ast.NewContext(ec)
	prog.Codegen(astCtx, b)

	switch opts.Output {
	case OutputLLVMIR:
		tmp, err := printToTemp(b, irgen.FileTypeIR, ".ll")
		if err != nil {
			return Result{Diagnostics: diags}, err
		}
		defer os.Remove(tmp)
		data, err := os.ReadFile(tmp)
		if err != nil {
			return Result{Diagnostics: diags}, err
		}
		return Result{Code: string(data), Diagnostics: diags}, nil
	case OutputAssembly:
		tmp, err := printToTemp(b, irgen.FileTypeAssembly, ".s")
		if err != nil {
			return Result{Diagnostics: diags}, err
		}
		defer os.Remove(tmp)
		data, err := os.ReadFile(tmp)
		if err != nil {
			return Result{Diagnostics: diags}, err
		}
		return Result{Code: string(data), Diagnostics: diags}, nil
	default:
		objPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".o"
		if err := b.Print(objPath, irgen.FileTypeObject); err != nil {
			return Result{Diagnostics: diags}, err
		}
		return Result{ObjectPath: objPath, Diagnostics: diags}, nil
	}
}

func printToTemp(b *irgen.Builder, ft irgen.FileType, ext string) (string, error) {
	f, err := os.CreateTemp("", "abcc-*"+ext)
	if err != nil {
		return "", err
	}
	path := f.Name()
	f.Close()
	if err := b.Print(path, ft); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
