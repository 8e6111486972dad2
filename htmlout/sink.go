package htmlout

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

var ErrBadName = errors.New("htmlout: invalid output name")

// Sink receives every output file: documents, stylesheets, fonts, images
// and the manifest. Names are slash-separated and relative.
type Sink interface {
	WriteAsset(name string, data []byte) error
}

// DirSink writes files under a directory. Rewriting a name with identical
// content is a no-op.
type DirSink struct {
	Dir string

	mu   sync.Mutex
	sums map[string][blake2b.Size256]byte
}

func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("htmlout: create %s: %w", dir, err)
	}
	return &DirSink{Dir: dir, sums: make(map[string][blake2b.Size256]byte)}, nil
}

func (s *DirSink) WriteAsset(name string, data []byte) error {
	clean := path.Clean(name)
	if name == "" || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrBadName, name)
	}
	sum := blake2b.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sums == nil {
		s.sums = make(map[string][blake2b.Size256]byte)
	}
	if prev, ok := s.sums[clean]; ok && prev == sum {
		return nil
	}
	full := filepath.Join(s.Dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("htmlout: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("htmlout: write %s: %w", clean, err)
	}
	s.sums[clean] = sum
	return nil
}

// MemorySink keeps files in memory.
type MemorySink struct {
	mu    sync.Mutex
	Files map[string][]byte
}

func NewMemorySink() *MemorySink { return &MemorySink{Files: make(map[string][]byte)} }

func (s *MemorySink) WriteAsset(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Files == nil {
		s.Files = make(map[string][]byte)
	}
	s.Files[name] = bytes.Clone(data)
	return nil
}

// File returns a written file.
func (s *MemorySink) File(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.Files[name]
	return b, ok
}
