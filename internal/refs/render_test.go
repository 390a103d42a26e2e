package refs

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/x/exp/golden"
)

func TestRender(t *testing.T) {
	b, locs := fixture(t)
	forest := b.Build(context.Background(), locs)

	var buf bytes.Buffer
	if err := Render(context.Background(), &buf, forest, &fakeLines{}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	golden.RequireEqual(t, buf.Bytes())
}

func TestMarshalForest(t *testing.T) {
	b, locs := fixture(t)
	forest := b.Build(context.Background(), locs[:2])

	data, err := MarshalForest(context.Background(), forest, &fakeLines{})
	if err != nil {
		t.Fatalf("MarshalForest: %v", err)
	}
	var got []struct {
		Label    string `json:"label"`
		Count    int    `json:"count"`
		Children []struct {
			Label    string    `json:"label"`
			Location *Location `json:"location"`
		} `json:"children"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, data)
	}
	if len(got) != 2 || got[0].Label != "Declaration" || got[0].Count != 1 {
		t.Fatalf("roots = %+v", got)
	}
	leaf := got[0].Children[0]
	if leaf.Label != "line 10 of a.go" || leaf.Location == nil || *leaf.Location != locs[0] {
		t.Errorf("leaf = %+v", leaf)
	}
}

func TestFileLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.go")
	if err := os.WriteFile(path, []byte("package f\r\n\r\n\tfunc F() {}\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines := NewFileLines()
	ctx := context.Background()

	got, err := lines.Line(ctx, path, 2)
	if err != nil {
		t.Fatalf("Line: %v", err)
	}
	if got != "\tfunc F() {}" {
		t.Errorf("Line(2) = %q", got)
	}
	if _, err := lines.Line(ctx, path, 10); err == nil {
		t.Error("expected out of range error")
	}

	// Cached text survives the file changing until Forget.
	if err := os.WriteFile(path, []byte("changed\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got, _ := lines.Line(ctx, path, 0); got != "package f" {
		t.Errorf("cached Line(0) = %q", got)
	}
	lines.Forget(path)
	if got, _ := lines.Line(ctx, path, 0); got != "changed" {
		t.Errorf("Line(0) after Forget = %q", got)
	}
	if err := os.WriteFile(path, []byte("again\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines.Reset()
	if got, _ := lines.Line(ctx, path, 0); got != "again" {
		t.Errorf("Line(0) after Reset = %q", got)
	}
	if _, err := lines.Line(ctx, filepath.Join(t.TempDir(), "missing.go"), 0); err == nil {
		t.Error("expected error for missing file")
	}
}
