package highlight

import (
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// extLanguages covers extensions Chroma's filename globs get wrong or miss.
var extLanguages = map[string]string{
	".h":    "c",
	".hpp":  "cpp",
	".jsx":  "jsx",
	".tsx":  "tsx",
	".zsh":  "bash",
	".conf": "nginx",
}

// DetectLanguage returns the Chroma lexer name for path, or "" when none
// applies.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extLanguages[ext]; ok {
		return lang
	}
	if lex := lexers.Match(filepath.Base(path)); lex != nil {
		return strings.ToLower(lex.Config().Name)
	}
	return ""
}
