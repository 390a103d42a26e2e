// Package treesitter provides tree-sitter based declaration extraction: an
// in-process stand-in for the external declaration-summary helper.
package treesitter

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/refscope/internal/decl"
)

// Provider parses files in-process. It satisfies decl.Provider.
type Provider struct{}

// Declarations reads path from disk and extracts its top-level declarations.
func (Provider) Declarations(ctx context.Context, path string) (*decl.FileIndex, error) {
	start := time.Now()
	idx, err := ParseFile(ctx, path)
	if err != nil {
		return nil, &decl.ParseError{Path: path, Err: err}
	}
	log.Debug().Str("file", path).Int("decls", len(idx.Declarations)).Dur("took", time.Since(start)).Msg("treesitter: parsed")
	return idx, nil
}
