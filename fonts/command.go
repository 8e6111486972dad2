package fonts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CommandRunner runs an external program. It exists so tests can stand in
// for real subprocesses.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

// Placeholders expanded in CommandTool arguments.
const (
	ArgInput     = "{input}"
	ArgOutput    = "{output}"
	ArgGlyphs    = "{glyphs}"
	ArgFormat    = "{format}"
	ArgLigatures = "{ligatures}"
)

// PyftsubsetArgs drives fontTools' pyftsubset with glyph ids preserved.
var PyftsubsetArgs = []string{
	ArgInput,
	"--output-file=" + ArgOutput,
	"--gids=" + ArgGlyphs,
	"--retain-gids",
	"--notdef-outline",
	"--no-hinting",
	"--layout-features=",
}

// CommandTool runs an external subsetter in a private temp directory. The
// program must keep glyph ids; its output is then remapped in process, so
// the display cmap and widths are the same as with NativeTool. CFF output
// keeps its outlines as produced.
//
// When LigatureArgs is set the tool receives a rule file through the
// {ligatures} placeholder, one rule per line ("gid U+0066 U+0069"), and is
// trusted to apply them.
type CommandTool struct {
	Path         string
	Args         []string
	LigatureArgs []string
	TmpDir       string
	Runner       CommandRunner
}

// NewPyftsubset returns a CommandTool for pyftsubset on PATH.
func NewPyftsubset(tmpDir string) *CommandTool {
	return &CommandTool{Path: "pyftsubset", Args: PyftsubsetArgs, TmpDir: tmpDir, Runner: ExecRunner{}}
}

func (t *CommandTool) Subset(ctx context.Context, req SubsetRequest) (SubsetResult, error) {
	dir, err := os.MkdirTemp(t.TmpDir, "pdfhtml-font-*")
	if err != nil {
		return SubsetResult{}, fmt.Errorf("fonts: create workspace: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "in.font")
	output := filepath.Join(dir, "out.ttf")
	if err := os.WriteFile(input, req.Program, 0o600); err != nil {
		return SubsetResult{}, fmt.Errorf("fonts: write program: %w", err)
	}

	ids := make([]string, 0, len(req.Glyphs)+1)
	ids = append(ids, "0")
	for _, g := range req.Glyphs {
		if g != 0 {
			ids = append(ids, strconv.FormatUint(uint64(g), 10))
		}
	}
	vars := map[string]string{
		ArgInput:  input,
		ArgOutput: output,
		ArgGlyphs: strings.Join(ids, ","),
		ArgFormat: FormatTTF,
	}

	args := t.Args
	withLigatures := len(req.Ligatures) > 0 && len(t.LigatureArgs) > 0 && !req.DropLigatures
	if withLigatures {
		rules := filepath.Join(dir, "ligatures.txt")
		if err := os.WriteFile(rules, ligatureFile(req.Ligatures), 0o600); err != nil {
			return SubsetResult{}, fmt.Errorf("fonts: write ligatures: %w", err)
		}
		vars[ArgLigatures] = rules
		args = append(append([]string(nil), args...), t.LigatureArgs...)
	}

	runner := t.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	stderr, err := runner.Run(ctx, t.Path, expand(args, vars)...)
	if err != nil {
		return SubsetResult{}, fmt.Errorf("%w: %s: %s: %v", ErrToolFailed, t.Path, strings.TrimSpace(stderr), err)
	}
	produced, err := os.ReadFile(output)
	if err != nil {
		return SubsetResult{}, fmt.Errorf("%w: %s produced no output: %v", ErrToolFailed, t.Path, err)
	}

	remap := req
	remap.Program = produced
	data, err := subsetSFNT(remap, true)
	if err != nil {
		return SubsetResult{}, err
	}
	res, err := encodeResult(data, remap)
	if err != nil {
		return SubsetResult{}, err
	}
	res.LigaturesApplied = len(req.Ligatures) == 0 || withLigatures
	return res, nil
}

func expand(args []string, vars map[string]string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		for k, v := range vars {
			a = strings.ReplaceAll(a, k, v)
		}
		out[i] = a
	}
	return out
}

func ligatureFile(rules []LigatureRule) []byte {
	sorted := append([]LigatureRule(nil), rules...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Glyph < sorted[j].Glyph })
	var b bytes.Buffer
	for _, r := range sorted {
		b.WriteString(strconv.FormatUint(uint64(r.Glyph), 10))
		for _, c := range r.Sequence {
			fmt.Fprintf(&b, " U+%04X", c)
		}
		b.WriteByte('\n')
	}
	return b.Bytes()
}
