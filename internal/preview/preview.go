// Package preview turns binary payloads (render artifacts, pending upload
// images) into disposable on-disk handles that views can display.
package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nguyentranbao-ct/catalog-console/internal/config"
)

type Dir struct {
	Path string
}

func NewDir(p string) (*Dir, error) {
	if p == "" {
		p = filepath.Join(os.TempDir(), "catalog-previews")
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return nil, fmt.Errorf("create preview dir %s: %w", p, err)
	}
	return &Dir{Path: p}, nil
}

func NewDirFromConfig(conf *config.Config) (*Dir, error) {
	return NewDir(conf.Preview.Dir)
}

// Handle is a file holding one payload. It must be released once the
// payload is superseded.
type Handle struct {
	Path        string
	ContentType string
	Size        int64

	once sync.Once
	err  error
}

// Write stores data in a fresh file named after prefix and the sniffed
// content type.
func (d *Dir) Write(prefix string, data []byte) (*Handle, error) {
	mt := mimetype.Detect(data)
	f, err := os.CreateTemp(d.Path, prefix+"-*"+mt.Extension())
	if err != nil {
		return nil, fmt.Errorf("create preview file: %w", err)
	}
	name := f.Name()
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(name)
		return nil, fmt.Errorf("write preview file %s: %w", name, err)
	}
	return &Handle{
		Path:        name,
		ContentType: mt.String(),
		Size:        int64(len(data)),
	}, nil
}

func (h *Handle) Read() ([]byte, error) {
	return os.ReadFile(h.Path)
}

// Release removes the backing file. It is safe to call more than once and
// on a nil handle.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
			h.err = fmt.Errorf("release preview %s: %w", h.Path, err)
		}
	})
	return h.err
}
