package decl

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingProvider(calls *atomic.Int32) Provider {
	return ProviderFunc(func(_ context.Context, path string) (*FileIndex, error) {
		calls.Add(1)
		return ParseSummary(path, strings.NewReader("p\nFunction,1,3,F"))
	})
}

func TestCache_GetOncePerPath(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingProvider(&calls), 0)
	ctx := context.Background()

	a, err := c.Get(ctx, "/a.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := c.Get(ctx, "/a.go")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a != b {
		t.Error("second Get returned a different index")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("provider calls = %d, want 1", n)
	}

	c.Invalidate("/a.go")
	if _, err := c.Get(ctx, "/a.go"); err != nil {
		t.Fatalf("Get after Invalidate: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("provider calls after Invalidate = %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}

	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Len after Purge = %d, want 0", c.Len())
	}
}

func TestCache_FailureNotCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("boom")
	c := NewCache(ProviderFunc(func(context.Context, string) (*FileIndex, error) {
		calls.Add(1)
		return nil, boom
	}), 0)

	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), "/x.go")
		if !errors.Is(err, ErrParseFailure) {
			t.Fatalf("err = %v, want ErrParseFailure", err)
		}
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want wrapped cause", err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("provider calls = %d, want 2", n)
	}
}

func TestCache_ConcurrentMissesShareCall(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := NewCache(ProviderFunc(func(_ context.Context, path string) (*FileIndex, error) {
		calls.Add(1)
		<-release
		return NewFileIndex(path, "p", nil), nil
	}), 0)

	var wg sync.WaitGroup
	results := make([]*FileIndex, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := c.Get(context.Background(), "/same.go")
			if err != nil {
				t.Errorf("Get: %v", err)
			}
			results[i] = idx
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("provider calls = %d, want 1", n)
	}
	for _, idx := range results {
		if idx != results[0] {
			t.Fatal("callers observed different indexes")
		}
	}
}

func TestCache_InvalidateDuringParse(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	c := NewCache(ProviderFunc(func(_ context.Context, path string) (*FileIndex, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return NewFileIndex(path, "p", nil), nil
	}), 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Get(context.Background(), "/race.go"); err != nil {
			t.Errorf("Get: %v", err)
		}
	}()
	<-started
	c.Invalidate("/race.go")
	close(release)
	<-done

	if c.Len() != 0 {
		t.Fatal("stale result was cached")
	}
	if _, err := c.Get(context.Background(), "/race.go"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("provider calls = %d, want 2", n)
	}
}

// blockingProvider blocks its first call until release is closed and answers
// it with package "old"; later calls answer "new" at once.
func blockingProvider(calls *atomic.Int32, started, release chan struct{}) Provider {
	return ProviderFunc(func(ctx context.Context, path string) (*FileIndex, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return NewFileIndex(path, "old", nil), nil
		}
		return NewFileIndex(path, "new", nil), nil
	})
}

func TestCache_GetAfterInvalidateStartsNewParse(t *testing.T) {
	for _, reset := range []struct {
		name string
		fn   func(*Cache)
	}{
		{"invalidate", func(c *Cache) { c.Invalidate("/f.go") }},
		{"purge", func(c *Cache) { c.Purge() }},
	} {
		t.Run(reset.name, func(t *testing.T) {
			var calls atomic.Int32
			started, release := make(chan struct{}), make(chan struct{})
			c := NewCache(blockingProvider(&calls, started, release), 0)
			ctx := context.Background()

			first := make(chan *FileIndex, 1)
			go func() {
				idx, err := c.Get(ctx, "/f.go")
				if err != nil {
					t.Errorf("first Get: %v", err)
				}
				first <- idx
			}()
			<-started
			reset.fn(c)

			idx, err := c.Get(ctx, "/f.go")
			if err != nil {
				t.Fatalf("Get after %s: %v", reset.name, err)
			}
			if idx.Package != "new" {
				t.Errorf("Get after %s: package = %q, want new", reset.name, idx.Package)
			}
			close(release)
			if old := <-first; old == nil || old.Package != "old" {
				t.Errorf("first Get = %+v, want package old", old)
			}

			if n := calls.Load(); n != 2 {
				t.Errorf("provider calls = %d, want 2", n)
			}
			if idx, _ := c.Get(ctx, "/f.go"); idx.Package != "new" {
				t.Errorf("cached package = %q, want new", idx.Package)
			}
			if n := calls.Load(); n != 2 {
				t.Errorf("provider calls after cached Get = %d, want 2", n)
			}
		})
	}
}

func TestCache_CancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	started, release := make(chan struct{}), make(chan struct{})
	c := NewCache(blockingProvider(&calls, started, release), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, "/f.go")
		cancelled <- err
	}()
	<-started

	joined := make(chan *FileIndex, 1)
	go func() {
		idx, err := c.Get(context.Background(), "/f.go")
		if err != nil {
			t.Errorf("joined Get: %v", err)
		}
		joined <- idx
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled Get err = %v, want context.Canceled", err)
	}
	close(release)
	if idx := <-joined; idx == nil || idx.Package != "old" {
		t.Fatalf("joined Get = %+v, want package old", idx)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestCache_InvalidationStateIsReleased(t *testing.T) {
	var calls atomic.Int32
	started, release := make(chan struct{}), make(chan struct{})
	c := NewCache(blockingProvider(&calls, started, release), 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		c.Invalidate("/idle.go")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(ctx, "/f.go")
	}()
	<-started
	c.Invalidate("/f.go")
	close(release)
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.gens) != 0 || len(c.inflight) != 0 {
		t.Errorf("gens = %v, inflight = %v; want both empty", c.gens, c.inflight)
	}
}

func TestCache_Eviction(t *testing.T) {
	var calls atomic.Int32
	c := NewCache(countingProvider(&calls), 2)
	ctx := context.Background()
	for _, p := range []string{"/1.go", "/2.go", "/3.go"} {
		if _, err := c.Get(ctx, p); err != nil {
			t.Fatalf("Get(%s): %v", p, err)
		}
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, err := c.Get(ctx, "/1.go"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 4 {
		t.Fatalf("provider calls = %d, want 4 after evicted re-fetch", n)
	}
}

func TestExecProvider(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	p := &ExecProvider{Args: []string{"sh", "-c", `printf 'mainpkg\nFunction,10,20,%s\nbad\n' "$(basename "$1")"`, "sh"}}
	idx, err := p.Declarations(context.Background(), "/tmp/foo.go")
	if err != nil {
		t.Fatalf("Declarations: %v", err)
	}
	if idx.Package != "mainpkg" || len(idx.Declarations) != 1 {
		t.Fatalf("index = %+v", idx)
	}
	if got := idx.Declarations[0].Description(); got != "Function: foo.go" {
		t.Errorf("description = %q", got)
	}
}

func TestExecProvider_Failures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	tests := []struct {
		name    string
		script  string
		timeout time.Duration
		want    string
	}{
		{"exit", "echo broken >&2; exit 3", 0, "broken"},
		{"timeout", "sleep 5", 100 * time.Millisecond, "deadline"},
		{"empty", "true", 0, "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &ExecProvider{Args: []string{"sh", "-c", tt.script, "sh"}, Timeout: tt.timeout}
			_, err := p.Declarations(context.Background(), "/tmp/x.go")
			if !errors.Is(err, ErrParseFailure) {
				t.Fatalf("err = %v, want ErrParseFailure", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNewExecProvider(t *testing.T) {
	t.Setenv("REFSCOPE_TEST_BIN", "/opt/bin/helper")
	p, err := NewExecProvider(`$REFSCOPE_TEST_BIN -src "a b"`, 0)
	if err != nil {
		t.Fatalf("NewExecProvider: %v", err)
	}
	want := []string{"/opt/bin/helper", "-src", "a b"}
	if strings.Join(p.Args, "|") != strings.Join(want, "|") {
		t.Errorf("args = %q, want %q", p.Args, want)
	}
	if _, err := NewExecProvider("   ", 0); err == nil {
		t.Error("expected error for empty command")
	}
}
