package fonts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultAutoHinter is run when auto hinting is on and no tool is named.
const DefaultAutoHinter = "ttfautohint"

// Hinter runs an external hinting program as "tool input output" on a
// produced TrueType file.
type Hinter struct {
	Path   string
	TmpDir string
	Runner CommandRunner
}

// hinter picks the hinting program of a conversion, if any.
func (o Options) hinter() (Hinter, bool) {
	path := o.HintTool
	if path == "" && o.AutoHint {
		path = DefaultAutoHinter
	}
	if path == "" {
		return Hinter{}, false
	}
	return Hinter{Path: path, TmpDir: o.TmpDir, Runner: o.Runner}, true
}

func (h Hinter) Hint(ctx context.Context, ttf []byte) ([]byte, error) {
	dir, err := os.MkdirTemp(h.TmpDir, "pdfhtml-hint-*")
	if err != nil {
		return nil, fmt.Errorf("fonts: create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "in.ttf")
	output := filepath.Join(dir, "out.ttf")
	if err := os.WriteFile(input, ttf, 0o600); err != nil {
		return nil, fmt.Errorf("fonts: write font: %w", err)
	}
	runner := h.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	if stderr, err := runner.Run(ctx, h.Path, input, output); err != nil {
		return nil, fmt.Errorf("%w: %s: %s: %v", ErrToolFailed, h.Path, strings.TrimSpace(stderr), err)
	}
	hinted, err := os.ReadFile(output)
	if err != nil || len(hinted) == 0 {
		return nil, fmt.Errorf("%w: %s produced no output", ErrToolFailed, h.Path)
	}
	if _, err := parseSFNT(hinted); err != nil {
		return nil, fmt.Errorf("%w: %s output: %v", ErrToolFailed, h.Path, err)
	}
	return hinted, nil
}
