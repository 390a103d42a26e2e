// Package watcher turns file changes under the workspace roots into
// declaration cache invalidations.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/xonecas/refscope/internal/filesearch"
)

const (
	defaultDebounce = 200 * time.Millisecond
	maxBatchSize    = 256
)

// Config selects what is watched.
type Config struct {
	Roots []string
	// Ignore holds doublestar patterns matched against paths relative to
	// their root. A pattern ending in /** also skips the directory itself.
	Ignore   []string
	Debounce time.Duration
}

// Watcher reports changed files under a set of roots, debounced. Hidden
// entries and .gitignore'd paths are skipped.
type Watcher struct {
	cfg        Config
	fsWatcher  *fsnotify.Watcher
	fsMu       sync.Mutex
	debouncer  *debouncer
	invalidate func(path string)
	gitignores map[string]*filesearch.GitignoreMatcher

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New watches every root recursively. invalidate is called once per
// changed path per debounce window, from the watcher's goroutine.
func New(cfg Config, invalidate func(path string)) (*Watcher, error) {
	for _, pattern := range cfg.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.New("watcher: invalid ignore pattern " + pattern)
		}
	}
	cfg.Roots = append([]string(nil), cfg.Roots...)
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		cfg:        cfg,
		fsWatcher:  fsWatcher,
		invalidate: invalidate,
		gitignores: make(map[string]*filesearch.GitignoreMatcher),
	}
	w.debouncer = newDebouncer(cfg.Debounce, maxBatchSize, w.flush)

	for i, root := range cfg.Roots {
		root = filepath.Clean(root)
		w.cfg.Roots[i] = root

		matcher, err := filesearch.NewGitignoreMatcher(filepath.Join(root, ".gitignore"))
		if err != nil {
			log.Warn().Err(err).Str("root", root).Msg("watcher: unreadable .gitignore")
			matcher, _ = filesearch.NewGitignoreMatcher("")
		}
		w.gitignores[root] = matcher

		if err := w.addTree(root); err != nil {
			_ = fsWatcher.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addToWatcher(path string) error {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Add(path)
}

// addTree watches dir and every directory below it that is not ignored.
func (w *Watcher) addTree(dir string) error {
	if err := w.addToWatcher(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Debug().Err(err).Str("dir", dir).Msg("watcher: read dir")
		return nil
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		full := filepath.Join(dir, entry.Name())
		if w.shouldIgnore(full, true) {
			continue
		}
		if err := w.addTree(full); err != nil {
			log.Debug().Err(err).Str("dir", full).Msg("watcher: watch dir")
		}
	}
	return nil
}

// Start processes events until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.handleEvents(ctx)
	log.Debug().Strs("roots", w.cfg.Roots).Msg("watcher: started")
}

func (w *Watcher) handleEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watcher: fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !w.shouldIgnore(event.Name, true) {
				if err := w.addTree(event.Name); err != nil {
					log.Debug().Err(err).Str("dir", event.Name).Msg("watcher: watch new dir")
				}
			}
			return
		}
	}

	if w.shouldIgnore(event.Name, false) {
		return
	}
	log.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("watcher: change")
	w.debouncer.add(event.Name)
}

func (w *Watcher) flush(paths []string) {
	log.Debug().Int("count", len(paths)).Msg("watcher: invalidating")
	for _, p := range paths {
		w.invalidate(p)
	}
}

// root returns the deepest watched root containing path.
func (w *Watcher) root(path string) (string, string, bool) {
	best, bestRel := "", ""
	for _, root := range w.cfg.Roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		if len(root) > len(best) {
			best, bestRel = root, rel
		}
	}
	return best, filepath.ToSlash(bestRel), best != ""
}

func (w *Watcher) shouldIgnore(path string, isDir bool) bool {
	root, rel, ok := w.root(path)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	for _, pattern := range w.cfg.Ignore {
		if match, _ := doublestar.Match(pattern, rel); match {
			return true
		}
		if dirPattern, ok := strings.CutSuffix(pattern, "/**"); ok && isDir {
			if match, _ := doublestar.Match(dirPattern, rel); match {
				return true
			}
		}
	}
	return w.gitignores[root].Matches(rel, isDir)
}

// Stop ends event processing, flushes pending changes and releases the
// underlying watches.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.debouncer.stop()
		return w.close()
	}
	w.running = false
	w.cancel()
	done := w.done
	w.mu.Unlock()

	<-done
	w.debouncer.stop()
	return w.close()
}

func (w *Watcher) close() error {
	w.fsMu.Lock()
	defer w.fsMu.Unlock()
	return w.fsWatcher.Close()
}
