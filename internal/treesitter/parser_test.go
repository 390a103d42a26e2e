package treesitter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xonecas/refscope/internal/decl"
)

const goSource = `package main

import "fmt"

const Version = "1.0"

type Server struct {
	addr string
}

type (
	ID    int
	Alias = string
)

func main() {
	fmt.Println("hello")
}

func (s *Server) Start() error {
	return nil
}

func (l List[T]) Len() int { return 0 }
`

func TestParseSource_Go(t *testing.T) {
	idx, err := ParseSource(context.Background(), "/src/main.go", []byte(goSource))
	if err != nil {
		t.Fatalf("ParseSource: %v", err)
	}
	if idx.Package != "main" {
		t.Errorf("package = %q, want main", idx.Package)
	}
	want := []decl.Declaration{
		{Kind: decl.KindImport, StartLine: 2, EndLine: 2},
		{Kind: decl.KindUnclassified, StartLine: 4, EndLine: 4},
		{Kind: decl.KindType, StartLine: 6, EndLine: 8, Name: "Server"},
		{Kind: decl.KindType, StartLine: 10, EndLine: 13, Name: "ID"},
		{Kind: decl.KindFunction, StartLine: 15, EndLine: 17, Name: "main"},
		{Kind: decl.KindMethod, StartLine: 19, EndLine: 21, Name: "Server.Start"},
		{Kind: decl.KindMethod, StartLine: 23, EndLine: 23, Name: "List.Len"},
	}
	if diff := cmp.Diff(want, idx.Declarations); diff != "" {
		t.Fatalf("declarations mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSource_Unsupported(t *testing.T) {
	idx, err := ParseSource(context.Background(), "test.py", []byte("print('hello')"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.Declarations) != 0 {
		t.Errorf("expected no declarations for unsupported language, got %d", len(idx.Declarations))
	}
}

func TestProvider_MissingFile(t *testing.T) {
	_, err := Provider{}.Declarations(context.Background(), filepath.Join(t.TempDir(), "nope.go"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWarm(t *testing.T) {
	root := t.TempDir()
	write := func(rel, body string) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(".gitignore", "gen/\n")
	write("a.go", "package a\n\nfunc A() {}\n")
	write("sub/b.go", "package sub\n\ntype B struct{}\n")
	write("gen/c.go", "package gen\n")
	write("notes.txt", "not go\n")

	cache := decl.NewCache(Provider{}, 0)
	n, err := Warm(context.Background(), cache, root)
	if err != nil {
		t.Fatalf("Warm: %v", err)
	}
	if n != 2 || cache.Len() != 2 {
		t.Fatalf("warmed %d files (cache %d), want 2", n, cache.Len())
	}
	idx, err := cache.Get(context.Background(), filepath.Join(root, "sub", "b.go"))
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := idx.Query(2); !ok || d.Description() != "Type: B" {
		t.Errorf("Query(2) = %+v, %v", d, ok)
	}
}
