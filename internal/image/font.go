package imagepkg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"github.com/youruser/canvasapp/internal/canvas"
	"github.com/youruser/canvasapp/internal/logging"
)

var fontExts = []string{".ttf", ".otf"}

// FontBook loads font families from {root}/{family}.ttf (or .otf) and keeps
// the parsed fonts for the life of the process. Families with no file on
// disk are served by the embedded Go Regular font.
type FontBook struct {
	root string

	mu    sync.RWMutex
	fonts map[string]*opentype.Font

	fallbackOnce sync.Once
	fallback     *opentype.Font
	fallbackErr  error
}

func NewFontBook(root string) *FontBook {
	return &FontBook{root: root, fonts: make(map[string]*opentype.Font)}
}

// Face returns a face rendering family at size pixels. Callers close it.
func (b *FontBook) Face(family string, size float64) (font.Face, error) {
	f, err := b.Font(family)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s at %vpx: %w", ErrFont, family, size, err)
	}
	return face, nil
}

func (b *FontBook) Font(family string) (*opentype.Font, error) {
	b.mu.RLock()
	f, ok := b.fonts[family]
	b.mu.RUnlock()
	if ok {
		return f, nil
	}

	f, err := b.load(family)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.fonts[family] = f
	b.mu.Unlock()
	return f, nil
}

func (b *FontBook) load(family string) (*opentype.Font, error) {
	if family == "" {
		return b.defaultFont()
	}
	if err := canvas.ValidateName(family); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFont, err)
	}
	for _, ext := range fontExts {
		path := filepath.Join(b.root, family+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFont, path, err)
		}
		f, err := opentype.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrFont, path, err)
		}
		logging.Info("font loaded", "family", family, "path", path)
		return f, nil
	}
	logging.Warn("font not found, using fallback", "family", family, "root", b.root)
	return b.defaultFont()
}

func (b *FontBook) defaultFont() (*opentype.Font, error) {
	b.fallbackOnce.Do(func() {
		b.fallback, b.fallbackErr = opentype.Parse(goregular.TTF)
	})
	if b.fallbackErr != nil {
		return nil, fmt.Errorf("%w: fallback: %w", ErrFont, b.fallbackErr)
	}
	return b.fallback, nil
}
