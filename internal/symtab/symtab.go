// Package symtab implements the symbol table: a stack of lexical scopes
// with mangled, globally-unique identifiers for every declaration below
// the root scope.
//
// The scope shape (parent pointer, name-to-member map, child list) is
// adapted from a two-pass design — where declarations are recorded while
// walking an already-built AST — into a single-pass one, where the parser
// calls straight into this package as it recognizes each declaration.
package symtab

import (
	"fmt"

	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/types"
)

// EntryKind classifies what a Entry names.
type EntryKind uint8

const (
	KindDecl EntryKind = iota // a variable, parameter, or function
	KindType                  // a struct/enum/alias type name
	KindExpr                  // an enum constant or other compile-time constant name
)

// Entry is one symbol-table slot.
type Entry struct {
	MangledID intern.String
	Name      intern.String
	Kind      EntryKind
	Type      types.Type
	IsFunc    bool
	// ConstValue holds an enum constant's or const-declared variable's
	// compile-time value; unused for ordinary variables.
	ConstValue int64
}

// Scope is one lexical level: function body, block, or the file-level root.
type Scope struct {
	parent   *Scope
	children []*Scope
	members  map[string]*Entry
	isRoot   bool
	// counter is this scope's next disambiguating suffix for mangling,
	// shared by every name declared directly in this scope.
	counter int
	prefix  string
}

// Table is a stack of scopes, always with at least the root scope pushed.
type Table struct {
	strings *intern.Store
	root    *Scope
	current *Scope
}

// New creates a table with an empty root (file) scope. Root-scope names are
// never mangled — they are the externally-visible function/global names
// linker-facing contract requires to stay stable.
func New(strings *intern.Store) *Table {
	root := &Scope{members: make(map[string]*Entry), isRoot: true}
	return &Table{strings: strings, root: root, current: root}
}

// Push opens a new nested scope, named by prefix for mangling purposes
// (e.g. a function's name, so its locals mangle as ".funcname.x.0").
func (t *Table) Push(prefix string) *Scope {
	s := &Scope{parent: t.current, members: make(map[string]*Entry), prefix: prefix}
	t.current.children = append(t.current.children, s)
	t.current = s
	return s
}

// Pop closes the innermost scope and returns to its parent. Popping the
// root scope is a programming error and panics.
func (t *Table) Pop() {
	if t.current.parent == nil {
		panic("symtab: cannot pop the root scope")
	}
	t.current = t.current.parent
}

// Current returns the innermost open scope.
func (t *Table) Current() *Scope { return t.current }

// Root returns the file-level scope.
func (t *Table) Root() *Scope { return t.root }

// mangle produces ".prefix.name.counter" for any scope below the root, and
// the bare name at the root.
func (s *Scope) mangle(name string) string {
	if s.isRoot {
		return name
	}
	id := fmt.Sprintf(".%s.%s.%d", s.prefix, name, s.counter)
	s.counter++
	return id
}

// Lookup selects how far up the scope chain a find walks.
type Lookup uint8

const (
	// CurrentOnly restricts the search to the innermost scope — used for
	// duplicate-declaration checks.
	CurrentOnly Lookup = iota
	// AnyEnclosing searches the current scope and every ancestor, the
	// ordinary name-resolution rule.
	AnyEnclosing
)

// Find resolves name starting from the table's current scope.
func (t *Table) Find(name string, how Lookup) (*Entry, bool) {
	return t.current.find(name, how)
}

func (s *Scope) find(name string, how Lookup) (*Entry, bool) {
	if e, ok := s.members[name]; ok {
		return e, true
	}
	if how == AnyEnclosing && s.parent != nil {
		return s.parent.find(name, how)
	}
	return nil, false
}

// addResult reports how an addition was resolved.
type addResult uint8

const (
	// Added means the entry is new.
	Added addResult = iota
	// Compatible means an identical redeclaration was allowed to stand —
	// e.g. a repeated forward function prototype with the same signature.
	Compatible
	// Incompatible means name was already bound to something that
	// conflicts; the caller turns this into a fatal diagnostic at the new
	// declaration (an Entry records no location of its own).
	Incompatible
)

// AddDeclaration records a variable, parameter, or function in the current
// scope. compatible is called only when name already exists in this scope;
// it must report whether the new declaration is an allowed redeclaration
// (e.g. a matching extern prototype) of the existing one.
func (t *Table) AddDeclaration(name intern.String, typ types.Type, isFunc bool, compatible func(existing *Entry) bool) (*Entry, addResult) {
	return t.current.add(t.strings, name, KindDecl, typ, isFunc, 0, compatible)
}

// AddType records a struct/enum/alias type name in the current scope.
func (t *Table) AddType(name intern.String, typ types.Type, compatible func(existing *Entry) bool) (*Entry, addResult) {
	return t.current.add(t.strings, name, KindType, typ, false, 0, compatible)
}

// AddExpression records a compile-time-constant name (an enum constant, or
// a const-declared variable) in the current scope.
func (t *Table) AddExpression(name intern.String, typ types.Type, value int64, compatible func(existing *Entry) bool) (*Entry, addResult) {
	return t.current.add(t.strings, name, KindExpr, typ, false, value, compatible)
}

func (s *Scope) add(strings *intern.Store, name intern.String, kind EntryKind, typ types.Type, isFunc bool, value int64, compatible func(existing *Entry) bool) (*Entry, addResult) {
	key := name.Text()
	if existing, ok := s.members[key]; ok {
		if compatible != nil && compatible(existing) {
			return existing, Compatible
		}
		return existing, Incompatible
	}
	mangled := strings.Create(s.mangle(key))
	e := &Entry{MangledID: mangled, Name: name, Kind: kind, Type: typ, IsFunc: isFunc, ConstValue: value}
	s.members[key] = e
	return e, Added
}
