package filesource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/techservice/notifier/internal/domain"
)

// BlacklistSource reads the blacklist from a local file.
type BlacklistSource struct {
	path string
}

func NewBlacklistSource(path string) *BlacklistSource {
	return &BlacklistSource{path: path}
}

func (s *BlacklistSource) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blacklist %s: %w", s.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("open blacklist: %w", err)
	}
	return f, nil
}
