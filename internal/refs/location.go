// Package refs classifies "find references" results against per-file
// declaration indexes and groups them into a presentation forest:
// bucket → directory → file → scope → occurrence.
package refs

import "fmt"

// Location identifies one reference occurrence. Lines and columns are
// 0-indexed, as delivered by the language server.
type Location struct {
	Path        string `json:"path"`
	StartLine   int    `json:"start_line"`
	StartColumn int    `json:"start_column"`
	EndLine     int    `json:"end_line"`
	EndColumn   int    `json:"end_column"`
}

// String formats the location as path:line:col, 1-indexed.
func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.Path, l.StartLine+1, l.StartColumn+1)
}
