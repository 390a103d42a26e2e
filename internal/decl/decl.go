// Package decl maintains per-file declaration indexes: ordered line ranges
// tagged with a coarse kind (function, method, type, import) and an optional
// name, built from a compact line-oriented summary and cached per path.
package decl

import (
	"sort"
)

// Kind tags a declaration. Tags outside the known set are carried verbatim.
type Kind string

const (
	KindFunction     Kind = "Function"
	KindMethod       Kind = "Method"
	KindType         Kind = "Type"
	KindImport       Kind = "Import"
	KindUnclassified Kind = "Unclassified"
)

// Declaration is one labeled line range of a source file.
type Declaration struct {
	Kind      Kind
	StartLine int // 0-indexed, inclusive
	EndLine   int // 0-indexed, inclusive
	Name      string
}

// Description returns "Kind" or "Kind: Name".
func (d Declaration) Description() string {
	if d.Name == "" {
		return string(d.Kind)
	}
	return string(d.Kind) + ": " + d.Name
}

// Contains reports whether line falls inside the declaration's range.
func (d Declaration) Contains(line int) bool {
	return d.StartLine <= line && line <= d.EndLine
}

func (d Declaration) span() int { return d.EndLine - d.StartLine }

// FileIndex holds the declarations of one file.
type FileIndex struct {
	Path         string
	Package      string
	Declarations []Declaration
}

// NewFileIndex builds an index from declarations in parse order. Inverted
// ranges are dropped and the rest are stably sorted by start line, so parse
// order survives among declarations starting on the same line.
func NewFileIndex(path, pkg string, decls []Declaration) *FileIndex {
	kept := make([]Declaration, 0, len(decls))
	for _, d := range decls {
		if d.StartLine > d.EndLine {
			continue
		}
		kept = append(kept, d)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].StartLine < kept[j].StartLine
	})
	return &FileIndex{Path: path, Package: pkg, Declarations: kept}
}

// Query returns the declaration containing line. When ranges nest, the
// innermost one wins; equal spans go to the earliest in parse order.
func (f *FileIndex) Query(line int) (Declaration, bool) {
	if f == nil {
		return Declaration{}, false
	}
	best := -1
	for i, d := range f.Declarations {
		if d.StartLine > line {
			break
		}
		if !d.Contains(line) {
			continue
		}
		if best < 0 || d.span() < f.Declarations[best].span() {
			best = i
		}
	}
	if best < 0 {
		return Declaration{}, false
	}
	return f.Declarations[best], true
}
