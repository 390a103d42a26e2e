package treesitter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/refscope/internal/decl"
	"github.com/xonecas/refscope/internal/filesearch"
)

// maxWarmFileSize skips generated or vendored giants during warm-up.
const maxWarmFileSize = 1 << 20

// Warm walks root and loads every supported file into cache, so the first
// reference query does not pay for parsing. Respects .gitignore via
// filesearch.GitignoreMatcher. Returns the number of files loaded.
func Warm(ctx context.Context, cache *decl.Cache, root string) (int, error) {
	matcher, err := filesearch.NewGitignoreMatcher(filepath.Join(root, ".gitignore"))
	if err != nil {
		matcher, _ = filesearch.NewGitignoreMatcher("")
	}

	loaded := 0
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}

		// Skip .git and gitignored paths.
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			if matcher.Matches(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if matcher.Matches(rel, false) || !Supported(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxWarmFileSize {
			return nil
		}

		if _, err := cache.Get(ctx, path); err != nil {
			log.Debug().Err(err).Str("file", path).Msg("treesitter: warm skipped")
			return nil
		}
		loaded++
		return nil
	})
	log.Debug().Str("root", root).Int("files", loaded).Msg("treesitter: cache warmed")
	return loaded, err
}
