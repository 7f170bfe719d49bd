package vision

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/dreamup/touchbot/internal/agent"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Template is a decoded grayscale search pattern with an optional binary mask.
type Template struct {
	Name string
	Gray *image.Gray
	// Mask holds one entry per pixel in row-major order; nil means every pixel counts.
	Mask []bool
}

// Size returns the template width and height.
func (t *Template) Size() (int, int) {
	b := t.Gray.Bounds()
	return b.Dx(), b.Dy()
}

// LoadOptions controls how a template file is turned into a Template.
type LoadOptions struct {
	// UseMask derives the mask from the alpha channel (alpha > 0).
	UseMask bool
	// Scale resizes the template before matching. Zero or one keeps the original size.
	Scale float64
}

// LoadTemplate decodes path and converts it for matching.
func LoadTemplate(path string, opts LoadOptions) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, agent.NewTemplateLoadError(path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, agent.NewTemplateLoadError(path, err)
	}
	return NewTemplate(path, img, opts)
}

// NewTemplate builds a Template from an already decoded image.
func NewTemplate(name string, img image.Image, opts LoadOptions) (*Template, error) {
	if opts.UseMask && !hasAlpha(img) {
		return nil, agent.NewTemplateLoadError(name, fmt.Errorf("mask requested but image has no alpha channel"))
	}

	if opts.Scale > 0 && opts.Scale != 1 {
		b := img.Bounds()
		w := int(float64(b.Dx()) * opts.Scale)
		h := int(float64(b.Dy()) * opts.Scale)
		if w < 1 || h < 1 {
			return nil, agent.NewTemplateLoadError(name, fmt.Errorf("scale %.3f collapses %dx%d template", opts.Scale, b.Dx(), b.Dy()))
		}
		dst := image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
		img = dst
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, agent.NewTemplateLoadError(name, fmt.Errorf("empty image"))
	}

	t := &Template{Name: name, Gray: Grayscale(img)}
	if opts.UseMask {
		t.Mask = make([]bool, 0, b.Dx()*b.Dy())
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				_, _, _, a := img.At(x, y).RGBA()
				t.Mask = append(t.Mask, a > 0)
			}
		}
	}
	return t, nil
}

// Grayscale converts img to 8-bit luma using BT.601 weights on the
// unpremultiplied color, so transparent template pixels keep their color.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := out.Pix[(y-b.Min.Y)*out.Stride:]
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			row[x-b.Min.X] = uint8((19595*uint32(c.R) + 38470*uint32(c.G) + 7471*uint32(c.B) + 1<<15) >> 16)
		}
	}
	return out
}

// hasAlpha reports whether the decoded image carries an alpha channel.
// PNG truecolor without alpha decodes to *image.RGBA, so that type only
// counts when some pixel is actually translucent.
func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.NYCbCrA, *image.Alpha, *image.Alpha16:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case *image.RGBA:
		return !m.Opaque()
	case *image.RGBA64:
		return !m.Opaque()
	default:
		return false
	}
}

// TemplateCache memoizes decoded templates by path and load options.
type TemplateCache struct {
	mu    sync.RWMutex
	items map[templateKey]*Template
}

type templateKey struct {
	path string
	opts LoadOptions
}

// NewTemplateCache creates an empty cache.
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{items: make(map[templateKey]*Template)}
}

// Get returns the cached template for path, loading it on first use.
// Load failures are not cached.
func (c *TemplateCache) Get(path string, opts LoadOptions) (*Template, error) {
	key := templateKey{path: path, opts: opts}

	c.mu.RLock()
	t := c.items[key]
	c.mu.RUnlock()
	if t != nil {
		return t, nil
	}

	t, err := LoadTemplate(path, opts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if existing := c.items[key]; existing != nil {
		t = existing
	} else {
		c.items[key] = t
	}
	c.mu.Unlock()
	return t, nil
}
