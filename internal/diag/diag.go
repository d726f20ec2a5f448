// Package diag is the location-anchored diagnostic sink: every diagnostic
// is rendered with a one-line message plus source context, and any
// error-severity diagnostic is fatal — it terminates the process after
// printing, since a partially-built AST is never emitted.
package diag

import (
	"fmt"
	"os"
	"strings"

	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/source"
)

// Severity is the level of a diagnostic.
type Severity uint8

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Diagnostic is a single reported message.
type Diagnostic struct {
	Severity Severity
	Message  string
	Range    source.Range
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Range.Start, d.Severity, d.Message)
}

// Sink collects diagnostics and owns the fatal-exit contract. It is
// constructed once per compilation unit and is handed to every stage that can report
// errors: the lexer (which also reports the macro layer's errors), the
// parser, and the expression constructors.
type Sink struct {
	all       []Diagnostic
	sources   map[intern.String]*source.LineIndex
	rawSource func(intern.String) string
	exit      func(code int) // overridable in tests
}

// NewSink creates an empty diagnostic sink. rawSource, given a file handle,
// must return that file's full text so Format can render the
// offending line; a driver typically backs this with a map it already
// populated while reading files.
func NewSink(rawSource func(intern.String) string) *Sink {
	return &Sink{
		sources:   make(map[intern.String]*source.LineIndex),
		rawSource: rawSource,
		exit:      os.Exit,
	}
}

// setExit lets tests observe a "would have exited" signal instead of
// actually terminating the test binary.
func (s *Sink) setExit(f func(int)) { s.exit = f }

func (s *Sink) lineIndex(file intern.String) *source.LineIndex {
	if idx, ok := s.sources[file]; ok {
		return idx
	}
	idx := source.NewLineIndex(s.rawSource(file))
	s.sources[file] = idx
	return idx
}

// Add records a diagnostic without affecting control flow.
func (s *Sink) Add(d Diagnostic) {
	s.all = append(s.all, d)
}

// Warn records a non-fatal warning at r.
func (s *Sink) Warn(r source.Range, format string, args ...any) {
	s.Add(Diagnostic{Severity: Warning, Message: fmt.Sprintf(format, args...), Range: r})
	fmt.Fprint(os.Stderr, s.Format(s.all[len(s.all)-1]))
}

// Note records an informational note, typically attached to a prior fatal
// error to point at a related declaration.
func (s *Sink) Note(r source.Range, format string, args ...any) {
	s.Add(Diagnostic{Severity: Note, Message: fmt.Sprintf(format, args...), Range: r})
	fmt.Fprint(os.Stderr, s.Format(s.all[len(s.all)-1]))
}

// Fatal records an error diagnostic, prints that diagnostic (warnings and
// notes were already printed when they were recorded), and terminates the process with status 1. It never returns — every
// error path here is fatal, with no partial recovery.
func (s *Sink) Fatal(r source.Range, format string, args ...any) {
	d := Diagnostic{Severity: Error, Message: fmt.Sprintf(format, args...), Range: r}
	s.Add(d)
	fmt.Fprint(os.Stderr, s.Format(d))
	s.exit(1)
	panic("unreachable: exit func must not return")
}

// Format renders one diagnostic with source context and a caret, the
// line-plus-caret shape this tree has used for diagnostics all along.
func (s *Sink) Format(d Diagnostic) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s: %s\n", d.Range.Start, d.Severity, d.Message)

	if s.rawSource != nil && d.Range.Start.File.IsValid() {
		idx := s.lineIndex(d.Range.Start.File)
		line := idx.Line(d.Range.Start.Line)
		if line != "" {
			fmt.Fprintf(&sb, "    %s\n", line)
			caretCol := d.Range.Start.Col - 1
			if caretCol < 0 {
				caretCol = 0
			}
			sb.WriteString("    " + strings.Repeat(" ", caretCol) + "^\n")
		}
	}
	return sb.String()
}

// HasErrors reports whether any error-severity diagnostic was recorded.
// By the time a caller could observe an error here, Fatal has already
// exited the process.
func (s *Sink) HasErrors() bool {
	for _, d := range s.all {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// All returns every diagnostic recorded so far.
func (s *Sink) All() []Diagnostic {
	return s.all
}
