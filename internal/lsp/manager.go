package lsp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	powernapconfig "github.com/charmbracelet/x/powernap/pkg/config"
	powernap "github.com/charmbracelet/x/powernap/pkg/lsp"
	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/xonecas/refscope/internal/refs"
)

// ErrNoServer is returned when no language server handles a file.
var ErrNoServer = errors.New("lsp: no language server available")

// skipAutoStart lists generic commands that should not be auto-started.
// These interpreters/runners may trigger package downloads or run wrong binaries.
var skipAutoStart = map[string]bool{
	"npx":     true,
	"node":    true,
	"python":  true,
	"python3": true,
	"java":    true,
	"ruby":    true,
	"perl":    true,
	"dotnet":  true,
	"bun":     true,
}

// Manager manages LSP server lifecycles keyed by server name.
type Manager struct {
	cfgMgr *powernapconfig.Manager

	mu      sync.Mutex
	clients map[string]*Client // serverName -> client
	broken  map[string]bool    // servers that failed to start

	starts singleflight.Group // one start per server name at a time
	start  func(ctx context.Context, s serverToStart) (*Client, error)
}

// NewManager creates a manager with powernap's built-in server defaults.
func NewManager() *Manager {
	// Silence powernap's slog output; stderr belongs to the CLI and the panel.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cm := powernapconfig.NewManager()
	_ = cm.LoadDefaults()
	m := &Manager{
		cfgMgr:  cm,
		clients: make(map[string]*Client),
		broken:  make(map[string]bool),
	}
	m.start = func(ctx context.Context, s serverToStart) (*Client, error) {
		return m.startClient(ctx, s.name, s.cfg, s.root, s.cmdPath)
	}
	return m
}

// References asks every server handling path for the references of the
// symbol at the 0-indexed line and col. The first server returning a
// non-empty result wins so the order of its answer is preserved.
func (m *Manager) References(ctx context.Context, absPath string, line, col int, includeDecl bool) ([]refs.Location, error) {
	clients := m.ensureClients(ctx, absPath)
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoServer, filepath.Base(absPath))
	}

	var errs []error
	for _, c := range clients {
		locs, err := c.references(ctx, absPath, line, col, includeDecl)
		if err != nil {
			log.Warn().Err(err).Str("server", c.serverID).Msg("lsp: references")
			errs = append(errs, err)
			continue
		}
		log.Debug().Str("server", c.serverID).Int("count", len(locs)).Str("file", absPath).Msg("lsp: references received")
		if len(locs) > 0 {
			return locs, nil
		}
	}
	if len(errs) == len(clients) {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}

// StopAll gracefully shuts down all running LSP servers.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.mu.Unlock()

	for _, c := range clients {
		if err := c.close(ctx); err != nil {
			log.Error().Err(err).Str("server", c.serverID).Msg("lsp: stopAll")
		}
	}
}

// serverToStart holds info needed to start an LSP server outside the lock.
type serverToStart struct {
	name    string
	cfg     *powernapconfig.ServerConfig
	root    string
	cmdPath string
}

// ensureClients finds or starts LSP servers for the given file.
func (m *Manager) ensureClients(ctx context.Context, absPath string) []*Client {
	lang := string(powernap.DetectLanguage(absPath))
	if lang == "" {
		log.Debug().Str("file", absPath).Msg("lsp: unknown language, skipping")
		return nil
	}

	log.Debug().Str("file", absPath).Str("lang", lang).Msg("lsp: ensureClients")

	servers := m.cfgMgr.GetServers()

	// Phase 1: under lock, collect existing clients and identify servers to start.
	m.mu.Lock()
	var result []*Client
	var pending []serverToStart

	for name, cfg := range servers {
		if !matchesFileType(cfg, lang) {
			continue
		}
		if m.broken[name] {
			continue
		}
		if c, ok := m.clients[name]; ok {
			result = append(result, c)
			continue
		}
		if skipAutoStart[cfg.Command] {
			m.broken[name] = true
			continue
		}
		cmdPath := lookPath(cfg.Command)
		if cmdPath == "" {
			m.broken[name] = true
			continue
		}
		root := findRoot(absPath, cfg.RootMarkers)
		if root == "" {
			root, _ = os.Getwd()
		}
		pending = append(pending, serverToStart{name: name, cfg: cfg, root: root, cmdPath: cmdPath})
	}
	m.mu.Unlock()

	// Phase 2: start servers without holding the lock (blocking I/O).
	return append(result, m.startPending(ctx, pending)...)
}

// startPending starts each server in pending. Concurrent callers asking for
// the same server share one start and receive the same client.
func (m *Manager) startPending(ctx context.Context, pending []serverToStart) []*Client {
	var started []*Client
	for _, s := range pending {
		v, err, _ := m.starts.Do(s.name, func() (any, error) {
			m.mu.Lock()
			c, ok := m.clients[s.name]
			broken := m.broken[s.name]
			m.mu.Unlock()
			if ok {
				return c, nil
			}
			if broken {
				return nil, fmt.Errorf("server %s failed to start earlier", s.name)
			}

			c, err := m.start(ctx, s)

			m.mu.Lock()
			defer m.mu.Unlock()
			if err != nil {
				log.Error().Err(err).Str("server", s.name).Msg("lsp: start failed")
				m.broken[s.name] = true
				return nil, err
			}
			m.clients[s.name] = c
			return c, nil
		})
		if err != nil {
			continue
		}
		started = append(started, v.(*Client))
	}
	return started
}

// startClient spawns and initializes a single LSP server. Called without m.mu held.
func (m *Manager) startClient(ctx context.Context, name string, cfg *powernapconfig.ServerConfig, root, cmdPath string) (*Client, error) {
	rootURI := string(protocol.URIFromPath(root))

	pcfg := powernap.ClientConfig{
		Command:     cmdPath,
		Args:        cfg.Args,
		RootURI:     rootURI,
		Environment: cfg.Environment,
		Settings:    cfg.Settings,
		InitOptions: cfg.InitOptions,
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: rootURI, Name: filepath.Base(root)},
		},
	}

	c, err := newClient(name, pcfg)
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := c.initialize(initCtx); err != nil {
		_ = c.close(ctx)
		return nil, fmt.Errorf("initialize: %w", err)
	}

	log.Info().Str("server", name).Str("root", root).Str("cmd", cmdPath).Msg("lsp: server started")
	return c, nil
}

// matchesFileType checks if a server config handles the given language ID.
func matchesFileType(cfg *powernapconfig.ServerConfig, lang string) bool {
	for _, ft := range cfg.FileTypes {
		if ft == lang {
			return true
		}
	}
	return false
}

// findRoot walks up from the file looking for any of the root markers.
func findRoot(absPath string, markers []string) string {
	dir := filepath.Dir(absPath)
	for {
		for _, marker := range markers {
			matches, _ := filepath.Glob(filepath.Join(dir, marker))
			if len(matches) > 0 {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// lookPath finds a command binary, checking PATH first, then common
// language-specific bin directories that may not be in PATH.
func lookPath(command string) string {
	if p, err := exec.LookPath(command); err == nil {
		return p
	}

	// Extra directories where language toolchains install binaries.
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	var extras []string

	// Go: $GOBIN or $GOPATH/bin or ~/go/bin
	if gobin := os.Getenv("GOBIN"); gobin != "" {
		extras = append(extras, gobin)
	}
	if gopath := os.Getenv("GOPATH"); gopath != "" {
		extras = append(extras, filepath.Join(gopath, "bin"))
	}
	extras = append(extras, filepath.Join(home, "go", "bin"))

	// Rust: ~/.cargo/bin
	extras = append(extras, filepath.Join(home, ".cargo", "bin"))

	// Local bin
	extras = append(extras, filepath.Join(home, ".local", "bin"))

	for _, dir := range extras {
		p := filepath.Join(dir, command)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	return ""
}
