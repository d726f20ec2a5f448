// Package driver implements abcc's command-line surface: argument parsing,
// source-to-object compilation via internal/parser and internal/ast, and
// the file-recognition/linking contract for .abc, .s, and .o inputs.
//
// Some flags (-I, -L, -l) are "prefix or separate" GCC-style flags the
// standard flag package cannot express (flag.Parse only matches a flag
// name exactly, never a value glued onto it), so ParseArgs scans os.Args
// itself instead of using flag.FlagSet — the same manual-scan shape
// compiler driver front ends use everywhere.
package driver

import (
	"fmt"
	"os"
	"os/exec"
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

// Mode selects what the driver produces from each compiled input.
type Mode uint8

const (
	// ModeLink compiles every input and links the results into one
	// executable, the default when no single-output flag is given.
	ModeLink Mode = iota
	ModeObject
	ModeAssembly
	ModeLLVM
)

// Options is the parsed command line.
type Options struct {
	Inputs      []string
	Output      string
	Mode        Mode
	IncludeDirs []string
	LibDirs     []string
	Libs        []string
	Optimize    bool
	MakeDeps    bool
	MakePhony   bool
	MakeTarget  string
	MakeFile    string
	PrintAST    bool
	Help        bool
}

// ParseArgs scans args (normally os.Args[1:]) into an Options.
func ParseArgs(args []string) (*Options, error) {
	opts := &Options{}
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--help":
			opts.Help = true
		case a == "-o":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-o requires an argument")
			}
			opts.Output = args[i]
		case a == "-c":
			opts.Mode = ModeObject
		case a == "-S":
			opts.Mode = ModeAssembly
		case a == "--emit-llvm":
			opts.Mode = ModeLLVM
		case a == "-O":
			opts.Optimize = true
		case a == "-MD":
			opts.MakeDeps = true
		case a == "-MP":
			opts.MakePhony = true
		case a == "-MT":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-MT requires an argument")
			}
			opts.MakeTarget = args[i]
		case a == "-MF":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-MF requires an argument")
			}
			opts.MakeFile = args[i]
		case a == "--print-ast":
			opts.PrintAST = true
		case a == "-I":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-I requires an argument")
			}
			opts.IncludeDirs = append(opts.IncludeDirs, args[i])
		case strings.HasPrefix(a, "-I") && a != "-I":
			opts.IncludeDirs = append(opts.IncludeDirs, a[2:])
		case a == "-L":
			i++
			if i >= len(args) {
				return nil, fmt.Errorf("-L requires an argument")
			}
			opts.LibDirs = append(opts.LibDirs, args[i])
		case strings.HasPrefix(a, "-L") && a != "-L":
			opts.LibDirs = append(opts.LibDirs, a[2:])
		case strings.HasPrefix(a, "-l") && a != "-l":
			opts.Libs = append(opts.Libs, a[2:])
		case strings.HasPrefix(a, "-"):
			return nil, fmt.Errorf("unrecognized option %q", a)
		default:
			opts.Inputs = append(opts.Inputs, a)
		}
	}
	return opts, nil
}

// abcInputs returns the .abc files among opts.Inputs.
func (o *Options) abcInputs() []string {
	var out []string
	for _, in := range o.Inputs {
		if strings.EqualFold(filepath.Ext(in), ".abc") {
			out = append(out, in)
		}
	}
	return out
}

// Validate enforces the single-output-with-multiple-inputs rule.
func (o *Options) Validate() error {
	if len(o.Inputs) == 0 && !o.Help {
		return fmt.Errorf("no input files")
	}
	singleOutput := o.Output != "" && o.Mode != ModeLink || o.Mode == ModeAssembly || o.Mode == ModeLLVM
	if singleOutput && len(o.abcInputs()) > 1 {
		return fmt.Errorf("cannot use a single output with more than one input file")
	}
	return nil
}

func defaultExt(m Mode) string {
	switch m {
	case ModeAssembly:
		return ".s"
	case ModeLLVM:
		return ".ll"
	default:
		return ".o"
	}
}

func fileType(m Mode) irgen.FileType {
	switch m {
	case ModeAssembly:
		return irgen.FileTypeAssembly
	case ModeLLVM:
		return irgen.FileTypeIR
	default:
		return irgen.FileTypeObject
	}
}

// Run executes the full driver pipeline and returns a process exit code.
// Any fatal diagnostic raised while compiling a file exits the process
// directly from within internal/diag, so a return of 1 from Run only
// ever covers driver-level failures (arguments, file I/O, emission,
// assembling and linking).
func Run(opts *Options) int {
	if opts.Help {
		printUsage()
		return 0
	}
	if err := opts.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "abcc: %v\n", err)
		return 1
	}

	var objects []string
	var nonABC []string
	var allIncludes []string

	for _, in := range opts.Inputs {
		switch strings.ToLower(filepath.Ext(in)) {
		case ".abc":
			out, includes, err := compileOne(in, opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "abcc: %v\n", err)
				return 1
			}
			allIncludes = append(allIncludes, includes...)
			if opts.PrintAST {
				continue
			}
			if opts.Mode != ModeLink {
				continue // single-input-per-output already wrote the final file
			}
			objects = append(objects, out)
		case ".s":
			obj := swapExt(in, ".o")
			if err := runTool("cc", "-c", in, "-o", obj); err != nil {
				fmt.Fprintf(os.Stderr, "abcc: assembling %s: %v\n", in, err)
				return 1
			}
			objects = append(objects, obj)
		case ".o":
			objects = append(objects, in)
		default:
			nonABC = append(nonABC, in)
		}
	}

	if opts.MakeDeps {
		if err := writeDepsFile(opts, allIncludes); err != nil {
			fmt.Fprintf(os.Stderr, "abcc: writing dependency file: %v\n", err)
			return 1
		}
	}

	if opts.PrintAST || opts.Mode != ModeLink {
		return 0
	}

	out := opts.Output
	if out == "" {
		out = "a.out"
	}
	args := append([]string{}, objects...)
	args = append(args, nonABC...)
	for _, d := range opts.LibDirs {
		args = append(args, "-L"+d)
	}
	for _, l := range opts.Libs {
		args = append(args, "-l"+l)
	}
	args = append(args, "-o", out)
	if err := runTool("cc", args...); err != nil {
		fmt.Fprintf(os.Stderr, "abcc: linking: %v\n", err)
		return 1
	}
	return 0
}

// compileOne runs one .abc file through the front end and, unless PrintAST
// is set, through codegen into its final per-flag output (or an object
// file staged for linking when Mode is ModeLink). It returns that output
// path plus the set of files the macro layer opened while reading it.
func compileOne(path string, opts *Options) (outPath string, includes []string, err error) {
	strs := intern.NewStore()
	reg := types.NewRegistry(strs)

	r := source.NewReader(strs, opts.IncludeDirs)
	if err := r.OpenRoot(path); err != nil {
		return "", nil, fmt.Errorf("opening %s: %w", path, err)
	}

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
	includes = r.IncludedFiles()

	if opts.PrintAST {
		fmt.Print(prog.Print())
		return "", includes, nil
	}

	moduleName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	optLevel := 0
	if opts.Optimize {
		optLevel = 1
	}
	b := irgen.New(moduleName, optLevel)
	astCtx := ast.NewContext(ec)
	prog.Codegen(astCtx, b)

	out := opts.Output
	mode := opts.Mode
	if out == "" || mode == ModeLink {
		ext := defaultExt(mode)
		if mode == ModeLink {
			ext = ".o"
		}
		out = swapExt(path, ext)
	}
	if err := b.Print(out, fileType(mode)); err != nil {
		return "", includes, fmt.Errorf("emitting %s: %w", out, err)
	}
	return out, includes, nil
}

func swapExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func runTool(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// writeDepsFile emits a make-style rule for the -MD/-MP/-MT/-MF group:
// "target: prereq...", one prereq per included file, plus a phony no-op
// rule per prerequisite when -MP is set (so a deleted header doesn't
// break an incremental build).
func writeDepsFile(opts *Options, includes []string) error {
	target := opts.MakeTarget
	if target == "" {
		target = opts.Output
	}
	if target == "" {
		target = "a.out"
	}
	depFile := opts.MakeFile
	if depFile == "" {
		depFile = swapExt(target, ".d")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:", target)
	for _, f := range includes {
		fmt.Fprintf(&sb, " \\\n  %s", f)
	}
	sb.WriteString("\n")
	if opts.MakePhony {
		for _, f := range includes {
			fmt.Fprintf(&sb, "%s:\n", f)
		}
	}
	return os.WriteFile(depFile, []byte(sb.String()), 0o644)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: abcc [options] <input.abc>...")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -o path              write output to path")
	fmt.Fprintln(os.Stderr, "  -c                   emit an object file")
	fmt.Fprintln(os.Stderr, "  -S                   emit assembly")
	fmt.Fprintln(os.Stderr, "  --emit-llvm          emit textual LLVM IR")
	fmt.Fprintln(os.Stderr, "  -Idir, -I dir        add an include-search path")
	fmt.Fprintln(os.Stderr, "  -Ldir, -llib         pass through to the linker")
	fmt.Fprintln(os.Stderr, "  -O                   turn on optimization")
	fmt.Fprintln(os.Stderr, "  -MD -MP -MT t -MF f  make-style dependency emission")
	fmt.Fprintln(os.Stderr, "  --print-ast          print the parsed AST instead of compiling")
	fmt.Fprintln(os.Stderr, "  --help               print this message")
}
