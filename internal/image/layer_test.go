package imagepkg

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youruser/canvasapp/internal/canvas"
)

func newTestRenderer(t *testing.T, srv *assetServer) *Renderer {
	t.Helper()
	return NewRenderer(NewFetcher(srv.Client(), FetchOptions{}), NewFontBook(t.TempDir()), 16, 0)
}

func TestLaterLayerPaintsOver(t *testing.T) {
	srv := newAssetServer(t, map[string][]byte{
		"/red.png":  pngBytes(t, 10, 10, red),
		"/blue.png": pngBytes(t, 10, 10, blue),
	})
	r := newTestRenderer(t, srv)
	s := NewSurface(imaging.New(50, 50, white))
	ctx := context.Background()

	require.NoError(t, r.Draw(ctx, s, "", canvas.ImageLayer{Source: srv.URL + "/red.png", X: 5, Y: 5}))
	require.NoError(t, r.Draw(ctx, s, "", canvas.ImageLayer{Source: srv.URL + "/blue.png", X: 5, Y: 5}))

	assert.Equal(t, blue, nrgbaAt(s.Image(), 10, 10))
	assert.Equal(t, white, nrgbaAt(s.Image(), 4, 4))
	assert.Equal(t, white, nrgbaAt(s.Image(), 15, 15))
}

func TestDrawImageScalesEachAxisIndependently(t *testing.T) {
	srv := newAssetServer(t, map[string][]byte{"/green.png": pngBytes(t, 4, 4, green)})
	r := newTestRenderer(t, srv)
	s := NewSurface(imaging.New(50, 50, white))

	require.NoError(t, r.DrawImage(context.Background(), s, canvas.ImageLayer{
		Source: srv.URL + "/green.png", Width: 20, X: 0, Y: 30,
	}))

	assert.Equal(t, green, nrgbaAt(s.Image(), 19, 33))
	assert.Equal(t, white, nrgbaAt(s.Image(), 20, 31), "width scaled to 20")
	assert.Equal(t, white, nrgbaAt(s.Image(), 5, 34), "height stays native 4")
	assert.Equal(t, 50, s.Image().Bounds().Dx(), "surface keeps background size")
}

func TestDrawImageFailureLeavesSurfaceUntouched(t *testing.T) {
	srv := newAssetServer(t, nil)
	r := newTestRenderer(t, srv)
	s := NewSurface(imaging.New(8, 8, white))
	before := imaging.Clone(s.Image())

	err := r.DrawImage(context.Background(), s, canvas.ImageLayer{Source: srv.URL + "/gone.png"})
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, before.Pix, s.Image().Pix)

	err = r.DrawImage(context.Background(), s, canvas.ImageLayer{})
	assert.ErrorIs(t, err, ErrEmptyReference)
}

func TestRendererPixelLimit(t *testing.T) {
	srv := newAssetServer(t, map[string][]byte{"/green.png": pngBytes(t, 4, 4, green)})
	r := NewRenderer(NewFetcher(srv.Client(), FetchOptions{}), NewFontBook(t.TempDir()), 16, 100)
	s := NewSurface(imaging.New(50, 50, white))
	before := imaging.Clone(s.Image())
	ctx := context.Background()

	err := r.DrawImage(ctx, s, canvas.ImageLayer{Source: srv.URL + "/green.png", Width: 1e12, Height: 1e12})
	assert.ErrorIs(t, err, ErrPixelLimit)
	assert.Zero(t, srv.hits.Load(), "oversized request rejected before fetching")

	// 30 x native 4 = 120 pixels
	err = r.DrawImage(ctx, s, canvas.ImageLayer{Source: srv.URL + "/green.png", Width: 30})
	assert.ErrorIs(t, err, ErrPixelLimit)

	err = r.DrawText(s, "", canvas.TextLayer{Text: "W", FontSize: 11})
	assert.ErrorIs(t, err, ErrPixelLimit)

	assert.Equal(t, before.Pix, s.Image().Pix)
	require.NoError(t, r.DrawImage(ctx, s, canvas.ImageLayer{Source: srv.URL + "/green.png", Width: 25}))
	require.NoError(t, r.DrawText(s, "", canvas.TextLayer{Text: "W", FontSize: 10, Y: 20}))
}

func TestDrawTextUsesFallbackFont(t *testing.T) {
	r := newTestRenderer(t, newAssetServer(t, nil))
	s := NewSurface(imaging.New(200, 60, white))

	require.NoError(t, r.DrawText(s, "no-such-family", canvas.TextLayer{Text: "Hi", FontSize: 32, X: 10, Y: 40}))

	dark := 0
	img := s.Image()
	for y := 0; y < 60; y++ {
		for x := 0; x < 200; x++ {
			if c := nrgbaAt(img, x, y); c.R < 0x80 {
				dark++
				// glyphs sit above the baseline and right of the origin
				assert.GreaterOrEqual(t, x, 10)
				assert.LessOrEqual(t, y, 41)
			}
		}
	}
	assert.Greater(t, dark, 20)
}

func TestDrawTextDefaultSize(t *testing.T) {
	r := newTestRenderer(t, newAssetServer(t, nil))
	s := NewSurface(imaging.New(100, 40, white))

	require.NoError(t, r.DrawText(s, "", canvas.TextLayer{Text: "W", X: 2, Y: 30}))

	minY := 40
	img := s.Image()
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			if nrgbaAt(img, x, y).R < 0x80 && y < minY {
				minY = y
			}
		}
	}
	// a 16px cap height is roughly 11-12px above the baseline
	assert.Greater(t, minY, 30-16)
	assert.Less(t, minY, 30)
}

func TestFontBook(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.ttf"), []byte("not a font"), 0o644))
	b := NewFontBook(root)

	_, err := b.Font("broken")
	assert.ErrorIs(t, err, ErrFont)

	_, err = b.Font("../escape")
	assert.ErrorIs(t, err, ErrFont)
	assert.ErrorIs(t, err, canvas.ErrInvalidName)

	f1, err := b.Font("missing")
	require.NoError(t, err)
	f2, err := b.Font("")
	require.NoError(t, err)
	assert.Same(t, f1, f2, "missing families share the fallback")

	face, err := b.Face("missing", 24)
	require.NoError(t, err)
	assert.Greater(t, face.Metrics().Height.Ceil(), 20)
	require.NoError(t, face.Close())
}
