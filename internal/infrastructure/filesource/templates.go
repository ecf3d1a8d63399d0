package filesource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/techservice/notifier/internal/domain"
)

const templateExt = ".html"

// TemplateSource keeps one <name>.html file per template in a directory.
type TemplateSource struct {
	dir string
}

func NewTemplateSource(dir string) *TemplateSource {
	return &TemplateSource{dir: dir}
}

func (s *TemplateSource) Load(_ context.Context) ([]domain.Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("template dir %s: %w", s.dir, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read template dir: %w", err)
	}
	var out []domain.Template
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != templateExt {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		out = append(out, domain.ParseTemplate(strings.TrimSuffix(e.Name(), templateExt), string(b)))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no templates in %s: %w", s.dir, domain.ErrNotFound)
	}
	return out, nil
}

func (s *TemplateSource) Save(_ context.Context, templates []domain.Template) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create template dir: %w", err)
	}
	for _, t := range templates {
		p := filepath.Join(s.dir, t.Name+templateExt)
		if err := os.WriteFile(p, []byte(domain.FormatTemplate(t)), 0o644); err != nil {
			return fmt.Errorf("write template %s: %w", t.Name, err)
		}
	}
	return nil
}
