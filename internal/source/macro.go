package source

import "fmt"

// Macros implements the `@`-directive preprocessor layer: `@define` and
// `@ifdef`/`@endif`, applied at token-stream level between the reader and
// the lexer. The lexer drives this type: it recognizes a leading `@` plus
// a directive keyword and hands the rest of the line to
// Define/BeginIfdef/EndIfdef; plain identifier tokens are passed through
// Rewrite before being handed to the parser.
type Macros struct {
	defs map[string]string
	// expanding guards identifier-rewrite recursion.
	expanding map[string]bool
	// suppressed is true while inside a false @ifdef branch; the caller
	// discards tokens entirely in that state rather than passing them on.
	// Only one level of @ifdef is supported, so this is a flag, not a
	// stack: BeginIfdef returns an error for a nested @ifdef, which the
	// caller reports as fatal.
	inIfdef    bool
	suppressed bool
}

// NewMacros creates an empty macro table, outside any @ifdef branch.
func NewMacros() *Macros {
	return &Macros{defs: make(map[string]string), expanding: make(map[string]bool)}
}

// Define registers NAME -> replacement. Re-defining an existing name is an
// error; replacement may be empty.
func (m *Macros) Define(name, replacement string) error {
	if _, exists := m.defs[name]; exists {
		return fmt.Errorf("redefinition of macro %q", name)
	}
	m.defs[name] = replacement
	return nil
}

// IsDefined reports whether name has an @define binding.
func (m *Macros) IsDefined(name string) bool {
	_, ok := m.defs[name]
	return ok
}

// BeginIfdef opens a conditional block gated on whether name is defined. It
// is an error to call this while already inside one, since nested @ifdef
// is unsupported.
func (m *Macros) BeginIfdef(name string) error {
	if m.inIfdef {
		return fmt.Errorf("nested @ifdef is not supported")
	}
	m.inIfdef = true
	m.suppressed = !m.IsDefined(name)
	return nil
}

// EndIfdef closes the block opened by BeginIfdef. It is an error to call
// this outside one.
func (m *Macros) EndIfdef() error {
	if !m.inIfdef {
		return fmt.Errorf("@endif without matching @ifdef")
	}
	m.inIfdef = false
	m.suppressed = false
	return nil
}

// Suppressed reports whether the lexer should discard tokens right now
// because they fall in a false @ifdef branch.
func (m *Macros) Suppressed() bool { return m.suppressed }

// Rewrite applies the macro table to a bare identifier's text, chaining
// through further definitions, and reports ok=false if a cycle was detected
// (the original, pre-expansion name is returned unchanged in that case, per
// "cycles are broken by a per-expansion expanded set").
func (m *Macros) Rewrite(name string) (result string, ok bool) {
	if _, defined := m.defs[name]; !defined {
		return name, true
	}
	if m.expanding[name] {
		return name, false
	}
	m.expanding[name] = true
	defer delete(m.expanding, name)

	replacement := m.defs[name]
	if replacement == "" {
		return "", true // expands to nothing; caller consumes the token silently
	}
	if next, nextOK := m.Rewrite(replacement); nextOK {
		return next, true
	}
	return name, false
}
