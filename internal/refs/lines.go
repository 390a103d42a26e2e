package refs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileLines is a LineSource reading files from disk. Each file is read once
// and kept until Reset, so one presentation cycle sees consistent text.
type FileLines struct {
	mu    sync.Mutex
	files map[string][]string
}

// NewFileLines returns an empty FileLines.
func NewFileLines() *FileLines {
	return &FileLines{files: make(map[string][]string)}
}

// Line returns line (0-indexed) of path without its line terminator.
func (f *FileLines) Line(_ context.Context, path string, line int) (string, error) {
	lines, err := f.load(path)
	if err != nil {
		return "", err
	}
	if line < 0 || line >= len(lines) {
		return "", fmt.Errorf("%s: line %d out of range (%d lines)", path, line+1, len(lines))
	}
	return lines[line], nil
}

func (f *FileLines) load(path string) ([]string, error) {
	f.mu.Lock()
	lines, ok := f.files[path]
	f.mu.Unlock()
	if ok {
		return lines, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines = strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.files[path]; ok {
		return cached, nil
	}
	f.files[path] = lines
	return lines, nil
}

// Forget drops the cached text of path.
func (f *FileLines) Forget(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
}

// Reset drops all cached text.
func (f *FileLines) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = make(map[string][]string)
}
