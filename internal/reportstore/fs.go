package reportstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FSWriter хранит отчёты в локальном каталоге: <root>/<runID>/<name>.
type FSWriter struct {
	root string
}

// NewFSWriter создаёт писатель поверх каталога root.
func NewFSWriter(root string) *FSWriter {
	return &FSWriter{root: root}
}

func (w *FSWriter) Store(_ context.Context, runID uuid.UUID, name string, r io.Reader) (string, error) {
	dir := filepath.Join(w.root, runID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write report %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
