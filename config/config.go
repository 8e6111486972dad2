// Package config holds the immutable parameter set consumed by the page
// pipeline. A Config is assembled as plain data, validated once with
// Validate and then passed by value; nothing downstream mutates it.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

// Sentinel errors for config operations.
var (
	ErrInvalid       = errors.New("config: invalid value")
	ErrConfigParse   = errors.New("config: failed to parse")
	ErrInputTooLarge = errors.New("config: input exceeds maximum size")
)

// MaxInputSize limits YAML input (1MB).
var MaxInputSize = 1 << 20

// Visibility correction modes.
const (
	VisibilityOff     = 0
	VisibilityFull    = 1
	VisibilityPartial = 2
)

// Font subsetting tools.
const (
	FontToolNative     = "native"
	FontToolPyftsubset = "pyftsubset"
)

// ToUnicode handling.
const (
	ToUnicodeIgnore = -1
	ToUnicodeAuto   = 0
	ToUnicodeForce  = 1
)

type Config struct {
	// Page range, 1-based and inclusive. LastPage 0 means the last page.
	FirstPage int `yaml:"firstPage"`
	LastPage  int `yaml:"lastPage"`

	Zoom       float64 `yaml:"zoom"`
	FitWidth   float64 `yaml:"fitWidth"`
	FitHeight  float64 `yaml:"fitHeight"`
	UseCropBox bool    `yaml:"useCropBox"`
	DPI        float64 `yaml:"dpi"`

	EmbedCSS        bool `yaml:"embedCSS"`
	EmbedFont       bool `yaml:"embedFont"`
	EmbedImage      bool `yaml:"embedImage"`
	EmbedJavascript bool `yaml:"embedJavascript"`
	EmbedOutline    bool `yaml:"embedOutline"`
	SplitPages      bool `yaml:"splitPages"`

	ProcessNonText bool `yaml:"processNonText"`
	ProcessOutline bool `yaml:"processOutline"`
	ProcessType3   bool `yaml:"processType3"`
	Printing       bool `yaml:"printing"`
	Fallback       bool `yaml:"fallback"`

	// TmpFileSizeLimit caps scratch bytes per page in KiB; negative disables.
	TmpFileSizeLimit int `yaml:"tmpFileSizeLimit"`

	// FontTool is FontToolNative or FontToolPyftsubset.
	FontTool           string `yaml:"fontTool"`
	EmbedExternalFont  bool   `yaml:"embedExternalFont"`
	FontFormat         string `yaml:"fontFormat"`
	DecomposeLigature  bool   `yaml:"decomposeLigature"`
	TurnOffLigatures   bool   `yaml:"turnOffLigatures"`
	AutoHint           bool   `yaml:"autoHint"`
	ExternalHintTool   string `yaml:"externalHintTool"`
	StretchNarrowGlyph bool   `yaml:"stretchNarrowGlyph"`
	SqueezeWideGlyph   bool   `yaml:"squeezeWideGlyph"`
	OverrideFSType     bool   `yaml:"overrideFstype"`

	HorizontalEpsilon  float64 `yaml:"hEps"`
	VerticalEpsilon    float64 `yaml:"vEps"`
	SpaceThreshold     float64 `yaml:"spaceThreshold"`
	FontSizeMultiplier float64 `yaml:"fontSizeMultiplier"`
	SpaceAsOffset      bool    `yaml:"spaceAsOffset"`
	ToUnicode          int     `yaml:"toUnicode"`
	OptimizeText       bool    `yaml:"optimizeText"`
	// PositionPrecision rounds emitted positions to this many decimals; negative keeps full precision.
	PositionPrecision int `yaml:"positionPrecision"`

	CorrectTextVisibility int     `yaml:"correctTextVisibility"`
	CoveredTextDPI        float64 `yaml:"coveredTextDPI"`
	// VisibilityPixelThreshold is the per-channel difference (0-255) above
	// which a pixel counts as changed between the two renders.
	VisibilityPixelThreshold int `yaml:"visibilityPixelThreshold"`
	// VisibilityTolerance is the fraction of ink pixels ignored at either
	// end when deciding full visibility or full occlusion.
	VisibilityTolerance float64 `yaml:"visibilityTolerance"`

	BackgroundImageFormat string `yaml:"bgFormat"`
	SVGNodeCountLimit     int    `yaml:"svgNodeCountLimit"`
	SVGEmbedBitmap        bool   `yaml:"svgEmbedBitmap"`

	OwnerPassword string `yaml:"ownerPassword"`
	UserPassword  string `yaml:"userPassword"`
	DRM           bool   `yaml:"drm"`

	CleanTmp bool   `yaml:"cleanTmp"`
	TmpDir   string `yaml:"tmpDir"`
	Workers  int    `yaml:"workers"`
	Debug    bool   `yaml:"debug"`
	// Proof draws text into the background as well as the text layer.
	Proof bool `yaml:"proof"`
}

// Default returns the stock parameter set.
func Default() Config {
	return Config{
		FirstPage:                1,
		LastPage:                 0,
		Zoom:                     1,
		DPI:                      144,
		UseCropBox:               true,
		EmbedCSS:                 true,
		EmbedFont:                true,
		EmbedImage:               true,
		EmbedJavascript:          true,
		EmbedOutline:             true,
		ProcessNonText:           true,
		ProcessOutline:           true,
		Printing:                 true,
		Fallback:                 true,
		TmpFileSizeLimit:         -1,
		FontTool:                 FontToolNative,
		EmbedExternalFont:        true,
		FontFormat:               "woff",
		HorizontalEpsilon:        1,
		VerticalEpsilon:          1,
		SpaceThreshold:           0.125,
		FontSizeMultiplier:       1,
		ToUnicode:                ToUnicodeAuto,
		OptimizeText:             false,
		PositionPrecision:        3,
		CorrectTextVisibility:    VisibilityFull,
		CoveredTextDPI:           300,
		VisibilityPixelThreshold: 16,
		VisibilityTolerance:      0.02,
		BackgroundImageFormat:    "png",
		SVGNodeCountLimit:        -1,
		SVGEmbedBitmap:           true,
		DRM:                      false,
		CleanTmp:                 true,
		Workers:                  0,
	}
}

// Validate checks every field once. It reports all problems together.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.FirstPage < 1 {
		bad("firstPage %d < 1", c.FirstPage)
	}
	if c.LastPage != 0 && c.LastPage < c.FirstPage {
		bad("lastPage %d before firstPage %d", c.LastPage, c.FirstPage)
	}
	if !positive(c.Zoom) {
		bad("zoom must be positive")
	}
	if c.FitWidth < 0 || c.FitHeight < 0 {
		bad("fit dimensions must not be negative")
	}
	if !positive(c.DPI) {
		bad("dpi must be positive")
	}
	if c.HorizontalEpsilon < 0 || c.VerticalEpsilon < 0 {
		bad("epsilons must not be negative")
	}
	if c.SpaceThreshold < 0 {
		bad("spaceThreshold must not be negative")
	}
	if !positive(c.FontSizeMultiplier) {
		bad("fontSizeMultiplier must be positive")
	}
	if c.ToUnicode < ToUnicodeIgnore || c.ToUnicode > ToUnicodeForce {
		bad("toUnicode %d not in -1..1", c.ToUnicode)
	}
	if c.CorrectTextVisibility < VisibilityOff || c.CorrectTextVisibility > VisibilityPartial {
		bad("correctTextVisibility %d not in 0..2", c.CorrectTextVisibility)
	}
	if c.CorrectTextVisibility == VisibilityPartial && !positive(c.CoveredTextDPI) {
		bad("coveredTextDPI must be positive")
	}
	if c.VisibilityPixelThreshold < 0 || c.VisibilityPixelThreshold > 255 {
		bad("visibilityPixelThreshold %d not in 0..255", c.VisibilityPixelThreshold)
	}
	if c.VisibilityTolerance < 0 || c.VisibilityTolerance >= 0.5 {
		bad("visibilityTolerance %v not in [0,0.5)", c.VisibilityTolerance)
	}
	switch strings.ToLower(c.FontFormat) {
	case "woff", "ttf":
	default:
		bad("fontFormat %q not supported", c.FontFormat)
	}
	switch c.FontTool {
	case FontToolNative, FontToolPyftsubset:
	default:
		bad("fontTool %q not supported", c.FontTool)
	}
	switch strings.ToLower(c.BackgroundImageFormat) {
	case "png", "jpg", "jpeg", "svg":
	default:
		bad("bgFormat %q not supported", c.BackgroundImageFormat)
	}
	if c.Workers < 0 {
		bad("workers must not be negative")
	}
	return errors.Join(errs...)
}

// PageScale is the CSS pixels per PDF point for a page of the given size.
// Fit dimensions, when set, shrink or grow the zoom so the page fits.
func (c Config) PageScale(width, height float64) float64 {
	scale := c.Zoom
	var fit []float64
	if c.FitWidth > 0 && width > 0 {
		fit = append(fit, c.FitWidth/width)
	}
	if c.FitHeight > 0 && height > 0 {
		fit = append(fit, c.FitHeight/height)
	}
	if len(fit) > 0 {
		scale = fit[0]
		for _, f := range fit[1:] {
			scale = math.Min(scale, f)
		}
	}
	return scale
}

// VisibilityDPI is the DPI used for the two auxiliary renders.
func (c Config) VisibilityDPI() float64 {
	if c.CorrectTextVisibility == VisibilityPartial {
		return c.CoveredTextDPI
	}
	return c.DPI
}

// LigatureMode resolves the two ligature flags; turning ligatures off wins.
func (c Config) LigatureMode() (decompose, off bool) {
	if c.TurnOffLigatures {
		return false, true
	}
	return c.DecomposeLigature, false
}

// Parse decodes YAML over the defaults, rejecting unknown fields.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if len(data) > MaxInputSize {
		return cfg, fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	if len(data) == 0 {
		return cfg, nil
	}
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) }
