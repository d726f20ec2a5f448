package source_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/saruga/abcc/internal/intern"
	"codeberg.org/saruga/abcc/internal/source"
	"codeberg.org/saruga/abcc/internal/test"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReaderTracksTabAlignedColumns(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.abc", "a\tb\n")
	r := source.NewReader(intern.NewStore(), nil)
	if err := r.OpenRoot(path); err != nil {
		t.Fatal(err)
	}

	_, pos1, _ := r.NextCh() // 'a' at col 1
	test.AssertEqual(t, pos1.Col, 1)
	_, pos2, _ := r.NextCh() // '\t' at col 2, advances to col 9
	test.AssertEqual(t, pos2.Col, 2)
	_, pos3, _ := r.NextCh() // 'b' now at col 9
	test.AssertEqual(t, pos3.Col, 9)
}

func TestReaderPopsExhaustedFrame(t *testing.T) {
	dir := t.TempDir()
	path := writeTemp(t, dir, "a.abc", "xy")
	r := source.NewReader(intern.NewStore(), nil)
	r.OpenRoot(path)

	r.NextCh()
	r.NextCh()
	test.AssertEqual(t, r.AtEOF(), false) // frame still pushed until next pull notices EOF

	_, _, ok := r.NextCh()
	test.AssertEqual(t, ok, false)
	test.AssertEqual(t, r.AtEOF(), true)
}

func TestIncludeOnceSkipsSecondOpen(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "header.abc", "H")
	root := writeTemp(t, dir, "root.abc", "R")

	r := source.NewReader(intern.NewStore(), []string{dir})
	r.OpenRoot(root)

	included, err := r.OpenInclude("header.abc", true)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, included, true)

	includedAgain, err := r.OpenInclude("header.abc", true)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, includedAgain, false)
}

func TestQuotedIncludeResolvesRelativeToIncludingFile(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	os.Mkdir(sub, 0o755)
	writeTemp(t, sub, "local.abc", "L")
	root := writeTemp(t, sub, "root.abc", "R")

	r := source.NewReader(intern.NewStore(), nil)
	r.OpenRoot(root)
	included, err := r.OpenInclude("local.abc", false)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, included, true)
}
