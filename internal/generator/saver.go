package generator

import (
	"fmt"
	"os"
	"path/filepath"
)

// Saver stores a generated document under the given file name.
type Saver interface {
	Save(name string, pdf []byte) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(name string, pdf []byte) error

// Save calls f.
func (f SaverFunc) Save(name string, pdf []byte) error {
	return f(name, pdf)
}

// DirSaver writes documents into Dir, replacing an existing file of the same name.
type DirSaver struct {
	Dir string
}

// Save writes pdf to Dir/name through a temporary file.
func (s DirSaver) Save(name string, pdf []byte) error {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".barcodes-*.pdf")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(pdf); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// Path returns where Save places name.
func (s DirSaver) Path(name string) string {
	if s.Dir == "" {
		return name
	}
	return filepath.Join(s.Dir, name)
}
