// Package lsp wraps powernap to ask language servers for references.
package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	powernap "github.com/charmbracelet/x/powernap/pkg/lsp"
	"github.com/charmbracelet/x/powernap/pkg/lsp/protocol"

	"github.com/xonecas/refscope/internal/refs"
)

// Client wraps a powernap LSP client with open-document tracking.
type Client struct {
	inner    *powernap.Client
	serverID string

	mu       sync.Mutex
	versions map[string]int // uri -> document version
}

// newClient spawns an LSP server and returns a wrapped client.
func newClient(serverID string, cfg powernap.ClientConfig) (*Client, error) {
	inner, err := powernap.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("lsp: start %s: %w", serverID, err)
	}

	c := &Client{
		inner:    inner,
		serverID: serverID,
		versions: make(map[string]int),
	}

	// Stub handlers so the server doesn't error on common requests.
	inner.RegisterHandler("window/workDoneProgress/create",
		func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
			return nil, nil
		},
	)
	inner.RegisterNotificationHandler("$/progress",
		func(_ context.Context, _ string, _ json.RawMessage) {},
	)
	inner.RegisterNotificationHandler("window/logMessage",
		func(_ context.Context, _ string, _ json.RawMessage) {},
	)
	inner.RegisterNotificationHandler("textDocument/publishDiagnostics",
		func(_ context.Context, _ string, _ json.RawMessage) {},
	)
	inner.RegisterHandler("client/registerCapability",
		func(_ context.Context, _ string, _ json.RawMessage) (any, error) {
			return nil, nil
		},
	)

	return c, nil
}

// initialize sends initialize+initialized to the server.
func (c *Client) initialize(ctx context.Context) error {
	return c.inner.Initialize(ctx, false)
}

// openFile sends textDocument/didOpen once per file. Servers answer
// reference queries only for documents they know about.
func (c *Client) openFile(ctx context.Context, absPath string) error {
	uri := string(protocol.URIFromPath(absPath))

	c.mu.Lock()
	_, alreadyOpen := c.versions[uri]
	c.mu.Unlock()
	if alreadyOpen {
		return nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("lsp: read %s: %w", absPath, err)
	}

	lang := powernap.DetectLanguage(absPath)

	c.mu.Lock()
	c.versions[uri] = 0
	c.mu.Unlock()

	return c.inner.NotifyDidOpenTextDocument(ctx, uri, string(lang), 0, string(data))
}

// references runs textDocument/references at a 0-indexed position.
func (c *Client) references(ctx context.Context, absPath string, line, col int, includeDecl bool) ([]refs.Location, error) {
	if err := c.openFile(ctx, absPath); err != nil {
		return nil, err
	}
	locs, err := c.inner.FindReferences(ctx, absPath, line, col, includeDecl)
	if err != nil {
		return nil, fmt.Errorf("lsp: references from %s: %w", c.serverID, err)
	}
	return toLocations(locs), nil
}

// close gracefully shuts down the LSP server.
func (c *Client) close(ctx context.Context) error {
	if err := c.inner.Shutdown(ctx); err != nil {
		c.inner.Kill()
		return fmt.Errorf("lsp: shutdown %s: %w", c.serverID, err)
	}
	return c.inner.Exit()
}

// toLocations converts server locations, preserving order. Locations with
// URIs that are not local files are dropped.
func toLocations(in []protocol.Location) []refs.Location {
	out := make([]refs.Location, 0, len(in))
	for _, l := range in {
		path, ok := uriToPath(string(l.URI))
		if !ok {
			continue
		}
		out = append(out, refs.Location{
			Path:        path,
			StartLine:   int(l.Range.Start.Line),
			StartColumn: int(l.Range.Start.Character),
			EndLine:     int(l.Range.End.Line),
			EndColumn:   int(l.Range.End.Character),
		})
	}
	return out
}

func uriToPath(uri string) (string, bool) {
	rest, ok := strings.CutPrefix(uri, "file://")
	if !ok {
		return "", false
	}
	path, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return path, true
}
