// Package filesearch matches workspace paths against .gitignore rules, so
// the cache warm-up and the file watcher skip what git skips.
package filesearch

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// GitignoreMatcher matches paths against gitignore patterns.
type GitignoreMatcher struct {
	patterns []*gitignorePattern
}

type gitignorePattern struct {
	glob     string // doublestar glob relative to the .gitignore directory
	negation bool
	dirOnly  bool
}

// NewGitignoreMatcher creates a new gitignore matcher from a .gitignore file.
// A missing file or an empty path yields a matcher that matches nothing.
func NewGitignoreMatcher(gitignorePath string) (*GitignoreMatcher, error) {
	matcher := &GitignoreMatcher{}

	if gitignorePath == "" {
		return matcher, nil
	}

	file, err := os.Open(gitignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return matcher, nil
		}
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if pattern := parseGitignorePattern(line); pattern != nil {
			matcher.patterns = append(matcher.patterns, pattern)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return matcher, nil
}

// Matches checks if a path, relative to the .gitignore directory, is
// ignored. The last matching pattern decides.
func (m *GitignoreMatcher) Matches(p string, isDir bool) bool {
	if m == nil || len(m.patterns) == 0 {
		return false
	}

	p = filepath.ToSlash(p)

	var lastMatch bool
	for _, pattern := range m.patterns {
		if pattern.matches(p, isDir) {
			lastMatch = !pattern.negation
		}
	}
	return lastMatch
}

// matches reports whether p itself or any of its parent directories matches.
func (g *gitignorePattern) matches(p string, isDir bool) bool {
	if (!g.dirOnly || isDir) && doublestar.MatchUnvalidated(g.glob, p) {
		return true
	}
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if doublestar.MatchUnvalidated(g.glob, dir) {
			return true
		}
	}
	return false
}

// parseGitignorePattern converts a gitignore line to a doublestar glob.
// Patterns containing a slash are anchored to the .gitignore directory;
// the rest match at any depth.
func parseGitignorePattern(pattern string) *gitignorePattern {
	g := &gitignorePattern{}

	if strings.HasPrefix(pattern, "!") {
		g.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		g.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if pattern == "" {
		return nil
	}

	if strings.Contains(pattern, "/") {
		g.glob = strings.TrimPrefix(pattern, "/")
	} else {
		g.glob = "**/" + pattern
	}
	if !doublestar.ValidatePattern(g.glob) {
		return nil
	}
	return g
}
