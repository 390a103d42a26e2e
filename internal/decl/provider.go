package decl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"mvdan.cc/sh/v3/shell"
)

// DefaultTimeout bounds a single external summary invocation.
const DefaultTimeout = 5 * time.Second

// Provider produces the declarations of one source file.
type Provider interface {
	Declarations(ctx context.Context, path string) (*FileIndex, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, path string) (*FileIndex, error)

// Declarations calls f.
func (f ProviderFunc) Declarations(ctx context.Context, path string) (*FileIndex, error) {
	return f(ctx, path)
}

// ExecProvider runs an external helper that prints a declaration summary for
// the file path appended to Args.
type ExecProvider struct {
	Args    []string
	Timeout time.Duration
}

// NewExecProvider splits a shell-quoted command line into an ExecProvider.
// Environment variables in the command are expanded.
func NewExecProvider(command string, timeout time.Duration) (*ExecProvider, error) {
	args, err := shell.Fields(command, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("parser command %q: %w", command, err)
	}
	if len(args) == 0 {
		return nil, errors.New("parser command is empty")
	}
	return &ExecProvider{Args: args, Timeout: timeout}, nil
}

// Declarations runs the helper synchronously and parses its output.
func (p *ExecProvider) Declarations(ctx context.Context, path string) (*FileIndex, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := append(append([]string(nil), p.Args[1:]...), path)
	cmd := exec.CommandContext(ctx, p.Args[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%s: %w", p.Args[0], ctx.Err())
		} else if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%s: %w: %s", p.Args[0], err, msg)
		} else {
			err = fmt.Errorf("%s: %w", p.Args[0], err)
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	log.Debug().Str("file", path).Dur("took", time.Since(start)).Msg("decl: external summary")

	return ParseSummary(path, &stdout)
}
