package imagepkg

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/youruser/canvasapp/internal/canvas"
)

// Surface is the drawing target for one output image. It is owned by the
// goroutine composing that image and must not be shared.
type Surface struct {
	img *image.NRGBA
}

// NewSurface returns a surface the size of bg with bg painted at (0, 0).
func NewSurface(bg image.Image) *Surface {
	return &Surface{img: imaging.Clone(bg)}
}

func (s *Surface) Image() *image.NRGBA {
	return s.img
}

// Renderer paints layers onto a surface.
type Renderer struct {
	assets      AssetFetcher
	fonts       *FontBook
	defaultSize float64
	maxPixels   int64
	textColor   color.Color
}

// NewRenderer returns a Renderer. Text layers without a font size use
// defaultSize. maxPixels bounds resize targets and glyph sizes; 0 disables
// the check.
func NewRenderer(assets AssetFetcher, fonts *FontBook, defaultSize float64, maxPixels int64) *Renderer {
	return &Renderer{
		assets:      assets,
		fonts:       fonts,
		defaultSize: defaultSize,
		maxPixels:   maxPixels,
		textColor:   color.Black,
	}
}

// Draw paints l onto s. Image layers fetch their source first; nothing is
// painted if the fetch fails.
func (r *Renderer) Draw(ctx context.Context, s *Surface, family string, l canvas.Layer) error {
	switch l := l.(type) {
	case canvas.TextLayer:
		return r.DrawText(s, family, l)
	case canvas.ImageLayer:
		return r.DrawImage(ctx, s, l)
	default:
		return fmt.Errorf("%w: %T", canvas.ErrUnsupportedLayer, l)
	}
}

// DrawText paints a single line with its baseline origin at (X, Y).
func (r *Renderer) DrawText(s *Surface, family string, l canvas.TextLayer) error {
	size := l.FontSize
	if size <= 0 {
		size = r.defaultSize
	}
	if err := r.checkArea(size, size); err != nil {
		return fmt.Errorf("font size %g: %w", size, err)
	}
	face, err := r.fonts.Face(family, size)
	if err != nil {
		return err
	}
	defer face.Close()

	d := &font.Drawer{
		Dst:  s.img,
		Src:  image.NewUniform(r.textColor),
		Face: face,
		Dot:  fixed.Point26_6{X: toFixed(l.X), Y: toFixed(l.Y)},
	}
	d.DrawString(l.Text)
	return nil
}

// DrawImage paints the layer's image at (X, Y), resized to Width x Height
// where those are set.
func (r *Renderer) DrawImage(ctx context.Context, s *Surface, l canvas.ImageLayer) error {
	if err := r.checkArea(l.Width, l.Height); err != nil {
		return fmt.Errorf("%s resized to %gx%g: %w", l.Source, l.Width, l.Height, err)
	}
	img, err := r.assets.Fetch(ctx, l.Source)
	if err != nil {
		return err
	}

	b := img.Bounds()
	wf, hf := l.Width, l.Height
	if round(wf) <= 0 {
		wf = float64(b.Dx())
	}
	if round(hf) <= 0 {
		hf = float64(b.Dy())
	}
	if err := r.checkArea(wf, hf); err != nil {
		return fmt.Errorf("%s resized to %gx%g: %w", l.Source, wf, hf, err)
	}
	w, h := round(wf), round(hf)
	if w != b.Dx() || h != b.Dy() {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	s.img = imaging.Overlay(s.img, img, image.Pt(round(l.X), round(l.Y)), 1.0)
	return nil
}

// checkArea rejects w*h above the pixel budget. The product is taken in
// float space so oversized requests never reach an int conversion.
func (r *Renderer) checkArea(w, h float64) error {
	if r.maxPixels <= 0 || w <= 0 || h <= 0 {
		return nil
	}
	if w*h > float64(r.maxPixels) {
		return ErrPixelLimit
	}
	return nil
}

func round(v float64) int {
	return int(math.Round(v))
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
