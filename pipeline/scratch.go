package pipeline

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/wudi/pdfhtml/background"
)

// scratchDir is a page's temporary directory. Writes beyond limit bytes
// fail with background.ErrScratchFull; a negative limit disables the cap.
type scratchDir struct {
	dir   string
	limit int64
	used  atomic.Int64
}

func newScratch(root string, page int, limitKiB int) (*scratchDir, error) {
	dir, err := os.MkdirTemp(root, fmt.Sprintf("page-%d-", page))
	if err != nil {
		return nil, fmt.Errorf("pipeline: scratch for page %d: %w", page, err)
	}
	limit := int64(-1)
	if limitKiB >= 0 {
		limit = int64(limitKiB) * 1024
	}
	return &scratchDir{dir: dir, limit: limit}, nil
}

func (s *scratchDir) Create(name string) (io.WriteCloser, error) {
	if s.limit >= 0 && s.used.Load() >= s.limit {
		return nil, background.ErrScratchFull
	}
	f, err := os.Create(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, err
	}
	return &limitedFile{f: f, s: s}, nil
}

func (s *scratchDir) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
}

// Used is the number of bytes written so far.
func (s *scratchDir) Used() int64 { return s.used.Load() }

func (s *scratchDir) remove() error { return os.RemoveAll(s.dir) }

type limitedFile struct {
	f *os.File
	s *scratchDir
}

func (l *limitedFile) Write(p []byte) (int, error) {
	if l.s.limit >= 0 && l.s.used.Load()+int64(len(p)) > l.s.limit {
		return 0, background.ErrScratchFull
	}
	n, err := l.f.Write(p)
	l.s.used.Add(int64(n))
	return n, err
}

func (l *limitedFile) Close() error { return l.f.Close() }
