package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	tea "charm.land/bubbletea/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xonecas/refscope/internal/config"
	"github.com/xonecas/refscope/internal/decl"
	"github.com/xonecas/refscope/internal/lsp"
	"github.com/xonecas/refscope/internal/panel"
	"github.com/xonecas/refscope/internal/refs"
	"github.com/xonecas/refscope/internal/treesitter"
	"github.com/xonecas/refscope/internal/watcher"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatTUI  = "tui"
)

var flagNoDecl bool

var refsCmd = &cobra.Command{
	Use:   "refs <file:line:col>",
	Short: "Find and classify the references of the symbol at a position",
	Long:  "Asks the language server for the references of the symbol at file:line:col and groups them. Line and column are 1-based, as editors show them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRefs,
}

func init() {
	refsCmd.Flags().StringVar(&flagFormat, "format", formatText, "output format: text|json|tui")
	refsCmd.Flags().BoolVar(&flagNoDecl, "no-decl", false, "leave the declaration out of the results")
}

func validateFormat(f string) error {
	switch f {
	case formatText, formatJSON, formatTUI:
		return nil
	}
	return fmt.Errorf("invalid --format %q: must be text, json or tui", f)
}

func runRefs(cmd *cobra.Command, args []string) error {
	if err := validateFormat(flagFormat); err != nil {
		return err
	}
	path, line, col, err := parsePosition(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cache, err := newCache(cfg)
	if err != nil {
		return err
	}
	ws, err := newWorkspace(cfg)
	if err != nil {
		return err
	}
	if cfg.Cache.Warm {
		warm(ctx, cache, ws)
	}

	mgr := lsp.NewManager()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.StopAll(stopCtx)
	}()

	start := time.Now()
	locs, err := mgr.References(ctx, path, line, col, !flagNoDecl)
	if err != nil {
		return fmt.Errorf("references: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	log.Info().Int("count", len(locs)).Dur("took", time.Since(start)).Str("file", path).Msg("refscope: references received")

	prefetch(ctx, cache, locs)
	builder := refs.NewBuilder(refs.NewClassifier(cache), ws)
	if flagNoDecl {
		builder = builder.WithoutDeclaration()
	}
	forest := builder.Build(ctx, locs)
	if forest == nil && ctx.Err() != nil {
		return ctx.Err()
	}

	lines := refs.NewFileLines()
	out := cmd.OutOrStdout()
	switch flagFormat {
	case formatJSON:
		data, err := refs.MarshalForest(ctx, forest, lines)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	case formatTUI:
		return runPanel(ctx, forest, lines, cache, ws, symbolAt(ctx, lines, path, line, col))
	default:
		if len(forest) == 0 {
			fmt.Fprintln(out, "no references")
			return nil
		}
		return refs.Render(ctx, out, forest, lines)
	}
}

// parsePosition splits "file:line:col" (1-based) into an absolute path and
// 0-based line and column.
func parsePosition(arg string) (string, int, int, error) {
	rest, colStr, ok := cutLast(arg, ":")
	if !ok {
		return "", 0, 0, fmt.Errorf("position %q: want file:line:col", arg)
	}
	file, lineStr, ok := cutLast(rest, ":")
	if !ok || file == "" {
		return "", 0, 0, fmt.Errorf("position %q: want file:line:col", arg)
	}
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return "", 0, 0, fmt.Errorf("position %q: invalid line %q", arg, lineStr)
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return "", 0, 0, fmt.Errorf("position %q: invalid column %q", arg, colStr)
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", 0, 0, err
	}
	return abs, line - 1, col - 1, nil
}

func cutLast(s, sep string) (string, string, bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}

// symbolAt returns the identifier under the 0-based position, for titles.
func symbolAt(ctx context.Context, lines refs.LineSource, path string, line, col int) string {
	text, err := lines.Line(ctx, path, line)
	if err != nil || col >= len(text) {
		return filepath.Base(path)
	}
	isIdent := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }
	start, end := col, col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !isIdent(r) {
			break
		}
		start -= size
	}
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !isIdent(r) {
			break
		}
		end += size
	}
	if start == end {
		return filepath.Base(path)
	}
	return text[start:end]
}

func newProvider(c *config.Config) (decl.Provider, error) {
	if c.Parser.Provider == config.ProviderExec {
		return decl.NewExecProvider(c.Parser.Command, c.Parser.TimeoutOrDefault())
	}
	return treesitter.Provider{}, nil
}

func newCache(c *config.Config) (*decl.Cache, error) {
	p, err := newProvider(c)
	if err != nil {
		return nil, err
	}
	return decl.NewCache(p, c.Cache.MaxEntries), nil
}

// newWorkspace uses the configured roots, or the working directory.
func newWorkspace(c *config.Config) (refs.Workspace, error) {
	if len(c.Workspace.Roots) > 0 {
		return refs.Workspace{Roots: c.Workspace.Roots}, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return refs.Workspace{}, fmt.Errorf("getting cwd: %w", err)
	}
	return refs.Workspace{Roots: []string{wd}}, nil
}

func warm(ctx context.Context, cache *decl.Cache, ws refs.Workspace) {
	for _, root := range ws.Roots {
		if _, err := treesitter.Warm(ctx, cache, root); err != nil {
			log.Warn().Err(err).Str("root", root).Msg("refscope: warm-up stopped")
		}
	}
}

// prefetch loads the declaration index of every file in locs in parallel,
// so classification only hits the cache.
func prefetch(ctx context.Context, cache *decl.Cache, locs []refs.Location) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	seen := make(map[string]bool)
	for _, loc := range locs {
		if seen[loc.Path] {
			continue
		}
		seen[loc.Path] = true
		path := loc.Path
		g.Go(func() error {
			if _, err := cache.Get(gctx, path); err != nil {
				log.Debug().Err(err).Str("file", path).Msg("refscope: prefetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func runPanel(ctx context.Context, forest []*refs.Node, lines *refs.FileLines, cache *decl.Cache, ws refs.Workspace, title string) error {
	if cfg.Watch.IsEnabled() {
		w, err := watcher.New(watcher.Config{
			Roots:    ws.Roots,
			Ignore:   cfg.Watch.Ignore,
			Debounce: cfg.Watch.DebounceOrDefault(),
		}, func(path string) {
			cache.Invalidate(path)
			lines.Forget(path)
		})
		if err != nil {
			log.Warn().Err(err).Msg("refscope: file watching disabled")
		} else {
			w.Start(ctx)
			defer w.Stop()
		}
	}

	m := panel.New(ctx, forest, panel.Options{
		Title:     title,
		Theme:     cfg.UI.SyntaxThemeOrDefault(),
		Icons:     cfg.UI.Icons,
		Lines:     lines,
		Navigator: panel.EditorNavigator{},
	})
	_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
	return err
}
