package filesource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techservice/notifier/internal/domain"
)

func TestTemplateSource_MissingDir(t *testing.T) {
	src := NewTemplateSource(filepath.Join(t.TempDir(), "absent"))
	_, err := src.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTemplateSource_SaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "templates")
	src := NewTemplateSource(dir)
	in := []domain.Template{
		{Name: "service-completed", Subject: "Request {RequestId} completed", Body: "<p>{Resolution}</p>"},
		{Name: "default", Subject: "Notification", Body: "{Message}"},
	}
	require.NoError(t, src.Save(context.Background(), in))

	out, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, in, out)
}

func TestTemplateSource_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain.html"), []byte("<p>{Message}</p>"), 0o644))

	out, err := NewTemplateSource(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.Template{Name: "plain", Subject: domain.DefaultSubject, Body: "<p>{Message}</p>"}, out[0])
}

func TestBlacklistSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), "blacklist.txt")
	_, err := NewBlacklistSource(p).Open(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, os.WriteFile(p, []byte("spam@example.com\n"), 0o644))
	rc, err := NewBlacklistSource(p).Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "spam@example.com\n", string(b))
}
