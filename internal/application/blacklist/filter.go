package blacklist

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/techservice/notifier/internal/domain"
)

// Source opens the line-oriented blacklist. Open returns domain.ErrNotFound
// when no list exists.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Filter is a case-insensitive set of refused recipient addresses.
// It is filled once at startup and only read afterwards.
type Filter struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

func NewFilter() *Filter {
	return &Filter{blocked: make(map[string]struct{})}
}

// Load replaces the set with the contents of src. A missing source leaves
// the filter empty.
func (f *Filter) Load(ctx context.Context, src Source) (int, error) {
	rc, err := src.Open(ctx)
	if errors.Is(err, domain.ErrNotFound) {
		slog.Info("no blacklist found, all recipients allowed")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open blacklist: %w", err)
	}
	defer rc.Close()
	return f.LoadFrom(rc)
}

// LoadFrom reads one address per line. Blank lines and lines starting
// with '#' are skipped.
func (f *Filter) LoadFrom(r io.Reader) (int, error) {
	set := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set[strings.ToLower(line)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read blacklist: %w", err)
	}
	f.mu.Lock()
	f.blocked = set
	f.mu.Unlock()
	slog.Info("blacklist loaded", "count", len(set))
	return len(set), nil
}

func (f *Filter) IsBlocked(address string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.blocked[strings.ToLower(strings.TrimSpace(address))]
	return ok
}

func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.blocked)
}
