package background

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Raster formats.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpg"
	FormatSVG  = "svg"
)

// JPEGQuality is used for jpg backgrounds.
const JPEGQuality = 90

// AssetWriter stores a file next to the HTML output.
type AssetWriter interface {
	WriteAsset(name string, data []byte) error
}

// Placement decides how binary payloads are referenced from the output:
// inline as data URIs, or as sibling files named by content hash. The same
// content is written once however many pages use it.
type Placement struct {
	Embed  bool
	Assets AssetWriter

	mu      sync.Mutex
	written map[string]bool
}

func NewPlacement(embed bool, assets AssetWriter) *Placement {
	return &Placement{Embed: embed, Assets: assets, written: make(map[string]bool)}
}

// Place returns the URL under which data is reachable.
func (p *Placement) Place(data []byte, mime, ext string) (string, error) {
	if p.Embed || p.Assets == nil {
		return DataURI(data, mime), nil
	}
	name := AssetName(data, ext)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.written == nil {
		p.written = make(map[string]bool)
	}
	if err := p.write(name, data); err != nil {
		return "", err
	}
	return name, nil
}

func (p *Placement) write(name string, data []byte) error {
	if p.written[name] {
		return nil
	}
	if err := p.Assets.WriteAsset(name, data); err != nil {
		return fmt.Errorf("background: write %s: %w", name, err)
	}
	p.written[name] = true
	return nil
}

// PlaceImage encodes img as PNG and places it.
func (p *Placement) PlaceImage(img image.Image) (string, error) {
	data, mime, ext, err := Encode(img, FormatPNG)
	if err != nil {
		return "", err
	}
	return p.Place(data, mime, ext)
}

// ImagePlacer turns an image into a URL the output can reference.
type ImagePlacer interface {
	PlaceImage(img image.Image) (string, error)
}

// Batch hands out final URLs but holds sibling files back until Commit, so
// an abandoned SVG leaves nothing behind in the output.
type Batch struct {
	p       *Placement
	pending map[string][]byte
	order   []string
}

// Batch starts a deferred placement.
func (p *Placement) Batch() *Batch {
	return &Batch{p: p, pending: make(map[string][]byte)}
}

func (b *Batch) Place(data []byte, mime, ext string) (string, error) {
	if b.p.Embed || b.p.Assets == nil {
		return DataURI(data, mime), nil
	}
	name := AssetName(data, ext)
	if _, ok := b.pending[name]; !ok {
		b.pending[name] = data
		b.order = append(b.order, name)
	}
	return name, nil
}

func (b *Batch) PlaceImage(img image.Image) (string, error) {
	data, mime, ext, err := Encode(img, FormatPNG)
	if err != nil {
		return "", err
	}
	return b.Place(data, mime, ext)
}

// Pending is the number of files waiting for Commit.
func (b *Batch) Pending() int { return len(b.order) }

// Commit writes the held files.
func (b *Batch) Commit() error {
	b.p.mu.Lock()
	defer b.p.mu.Unlock()
	if b.p.written == nil {
		b.p.written = make(map[string]bool)
	}
	for _, name := range b.order {
		if err := b.p.write(name, b.pending[name]); err != nil {
			return err
		}
	}
	b.pending, b.order = nil, nil
	return nil
}

// AssetName is the content-addressed file name of data.
func AssetName(data []byte, ext string) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:10]) + "." + ext
}

func DataURI(data []byte, mime string) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Encode writes img in a raster format.
func Encode(img image.Image, format string) (data []byte, mime, ext string, err error) {
	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case FormatJPEG, "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
		mime, ext = "image/jpeg", "jpg"
	default:
		err = png.Encode(&buf, img)
		mime, ext = "image/png", "png"
	}
	if err != nil {
		return nil, "", "", fmt.Errorf("background: encode %s: %w", ext, err)
	}
	return buf.Bytes(), mime, ext, nil
}
