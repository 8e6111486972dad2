package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/wudi/pdfhtml/config"
)

// ErrUsage marks command-line mistakes.
var ErrUsage = errors.New("usage error")

type options struct {
	input   string
	destDir string
	config  config.Config
	verbose bool
	quiet   bool
}

// configPath finds --config before the full parse so that file values sit
// under the flags.
func configPath(args []string) (string, error) {
	fs := flag.NewFlagSet("pdf2html", flag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}
	path := fs.StringP("config", "c", "", "")
	if err := fs.Parse(args); err != nil && !errors.Is(err, flag.ErrHelp) {
		return "", fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return *path, nil
}

// parseFlags reads args (without the program name) over the defaults or
// the config file named by --config.
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	path, err := configPath(args)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	o := &options{}
	fs := flag.NewFlagSet("pdf2html", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pdf2html [flags] <trace.json>")
		fs.PrintDefaults()
	}
	fs.StringP("config", "c", path, "YAML config file")
	fs.StringVarP(&o.destDir, "dest-dir", "o", ".", "output directory")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "debug logging")
	fs.BoolVarP(&o.quiet, "quiet", "q", false, "only log errors")

	fs.IntVarP(&cfg.FirstPage, "first-page", "f", cfg.FirstPage, "first page to convert")
	fs.IntVarP(&cfg.LastPage, "last-page", "l", cfg.LastPage, "last page to convert (0 = last)")
	fs.Float64Var(&cfg.Zoom, "zoom", cfg.Zoom, "zoom ratio")
	fs.Float64Var(&cfg.FitWidth, "fit-width", cfg.FitWidth, "fit width to this many pixels")
	fs.Float64Var(&cfg.FitHeight, "fit-height", cfg.FitHeight, "fit height to this many pixels")
	fs.BoolVar(&cfg.UseCropBox, "use-cropbox", cfg.UseCropBox, "use the crop box instead of the media box")
	fs.Float64Var(&cfg.DPI, "dpi", cfg.DPI, "resolution for graphics")

	fs.BoolVar(&cfg.EmbedCSS, "embed-css", cfg.EmbedCSS, "embed the stylesheet")
	fs.BoolVar(&cfg.EmbedFont, "embed-font", cfg.EmbedFont, "embed font files")
	fs.BoolVar(&cfg.EmbedImage, "embed-image", cfg.EmbedImage, "embed image files")
	fs.BoolVar(&cfg.EmbedJavascript, "embed-javascript", cfg.EmbedJavascript, "embed the page loader script")
	fs.BoolVar(&cfg.EmbedOutline, "embed-outline", cfg.EmbedOutline, "embed the outline")
	fs.BoolVar(&cfg.SplitPages, "split-pages", cfg.SplitPages, "write each page to its own file")

	fs.BoolVar(&cfg.ProcessNonText, "process-nontext", cfg.ProcessNonText, "render graphics in addition to text")
	fs.BoolVar(&cfg.ProcessOutline, "process-outline", cfg.ProcessOutline, "emit the outline")
	fs.BoolVar(&cfg.ProcessType3, "process-type3", cfg.ProcessType3, "convert Type 3 fonts")
	fs.BoolVar(&cfg.Printing, "printing", cfg.Printing, "add print styles")
	fs.BoolVar(&cfg.Fallback, "fallback", cfg.Fallback, "render text of failed fonts into the background")
	fs.IntVar(&cfg.TmpFileSizeLimit, "tmp-file-size-limit", cfg.TmpFileSizeLimit, "scratch space per page in KiB (-1 = no limit)")

	fs.BoolVar(&cfg.EmbedExternalFont, "embed-external-font", cfg.EmbedExternalFont, "embed fonts referenced by name")
	fs.StringVar(&cfg.FontFormat, "font-format", cfg.FontFormat, "font format: woff or ttf")
	fs.StringVar(&cfg.FontTool, "font-tool", cfg.FontTool, "font subsetter: native or pyftsubset")
	fs.BoolVar(&cfg.DecomposeLigature, "decompose-ligature", cfg.DecomposeLigature, "decompose ligatures in the text layer")
	fs.BoolVar(&cfg.TurnOffLigatures, "turn-off-ligatures", cfg.TurnOffLigatures, "disable ligatures in fonts and CSS")
	fs.BoolVar(&cfg.AutoHint, "auto-hint", cfg.AutoHint, "hint fonts")
	fs.StringVar(&cfg.ExternalHintTool, "external-hint-tool", cfg.ExternalHintTool, "external font hinting tool")
	fs.BoolVar(&cfg.StretchNarrowGlyph, "stretch-narrow-glyph", cfg.StretchNarrowGlyph, "stretch narrow glyphs")
	fs.BoolVar(&cfg.SqueezeWideGlyph, "squeeze-wide-glyph", cfg.SqueezeWideGlyph, "squeeze wide glyphs")
	fs.BoolVar(&cfg.OverrideFSType, "override-fstype", cfg.OverrideFSType, "clear the font embedding restrictions")

	fs.Float64Var(&cfg.HorizontalEpsilon, "heps", cfg.HorizontalEpsilon, "horizontal merge tolerance in pixels")
	fs.Float64Var(&cfg.VerticalEpsilon, "veps", cfg.VerticalEpsilon, "vertical merge tolerance in pixels")
	fs.Float64Var(&cfg.SpaceThreshold, "space-threshold", cfg.SpaceThreshold, "gap in em that inserts a space")
	fs.Float64Var(&cfg.FontSizeMultiplier, "font-size-multiplier", cfg.FontSizeMultiplier, "font size multiplier")
	fs.BoolVar(&cfg.SpaceAsOffset, "space-as-offset", cfg.SpaceAsOffset, "treat space glyphs as offsets")
	fs.IntVar(&cfg.ToUnicode, "tounicode", cfg.ToUnicode, "ToUnicode handling: -1 ignore, 0 auto, 1 force")
	fs.BoolVar(&cfg.OptimizeText, "optimize-text", cfg.OptimizeText, "merge runs across spaces")
	fs.IntVar(&cfg.PositionPrecision, "position-precision", cfg.PositionPrecision, "decimals kept in positions (-1 = all)")

	fs.IntVar(&cfg.CorrectTextVisibility, "correct-text-visibility", cfg.CorrectTextVisibility, "0 off, 1 hide covered text, 2 also overlay partial covers")
	fs.Float64Var(&cfg.CoveredTextDPI, "covered-text-dpi", cfg.CoveredTextDPI, "resolution of partial-cover overlays")
	fs.StringVar(&cfg.BackgroundImageFormat, "bg-format", cfg.BackgroundImageFormat, "background format: png, jpg or svg")
	fs.IntVar(&cfg.SVGNodeCountLimit, "svg-node-count-limit", cfg.SVGNodeCountLimit, "rasterize svg backgrounds above this many nodes (-1 = no limit)")
	fs.BoolVar(&cfg.SVGEmbedBitmap, "svg-embed-bitmap", cfg.SVGEmbedBitmap, "embed bitmaps in svg backgrounds")

	fs.StringVar(&cfg.OwnerPassword, "owner-password", cfg.OwnerPassword, "owner password")
	fs.StringVar(&cfg.UserPassword, "user-password", cfg.UserPassword, "user password")
	fs.BoolVar(&cfg.DRM, "drm", cfg.DRM, "enforce copy restrictions")

	fs.BoolVar(&cfg.CleanTmp, "clean-tmp", cfg.CleanTmp, "remove temporary files")
	fs.StringVar(&cfg.TmpDir, "tmp-dir", cfg.TmpDir, "temporary directory")
	fs.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "parallel pages (0 = GOMAXPROCS)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "keep temporary files and log debug output")
	fs.BoolVar(&cfg.Proof, "proof", cfg.Proof, "also draw text into the background")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if fs.NArg() != 1 {
		return nil, fmt.Errorf("%w: expected one input trace, got %d", ErrUsage, fs.NArg())
	}
	o.input = fs.Arg(0)
	o.config = cfg
	return o, nil
}
