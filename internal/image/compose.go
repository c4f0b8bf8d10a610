package imagepkg

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/youruser/canvasapp/internal/canvas"
	"github.com/youruser/canvasapp/internal/logging"
	"github.com/youruser/canvasapp/internal/output"
)

// Composer renders every ImageSpec of a request into one batch folder.
type Composer struct {
	assets      AssetFetcher
	renderer    *Renderer
	folders     *output.Folders
	defaultFont string
}

func NewComposer(assets AssetFetcher, renderer *Renderer, folders *output.Folders, defaultFont string) *Composer {
	return &Composer{
		assets:      assets,
		renderer:    renderer,
		folders:     folders,
		defaultFont: defaultFont,
	}
}

// Compose renders the images of req one after another. The first failure
// aborts the batch and no RenderedBatch is returned; files already written
// for earlier images stay on disk.
func (c *Composer) Compose(ctx context.Context, req canvas.CompositionRequest) (canvas.RenderedBatch, error) {
	if req.BackgroundSource == "" {
		return canvas.RenderedBatch{}, fmt.Errorf("background: %w", ErrEmptyReference)
	}
	family := req.FontFamily
	if family == "" {
		family = c.defaultFont
	}

	start := time.Now()
	batch := canvas.RenderedBatch{
		FolderID:    c.folders.NewID(),
		OutputPaths: make([]string, 0, len(req.Images)),
	}
	for _, spec := range req.Images {
		p, err := c.composeOne(ctx, batch.FolderID, family, req.BackgroundSource, spec)
		if err != nil {
			logging.Warn("compose failed", "folder", batch.FolderID, "file", spec.FileName, "error", err)
			return canvas.RenderedBatch{}, fmt.Errorf("%s: %w", spec.FileName, err)
		}
		batch.OutputPaths = append(batch.OutputPaths, p)
	}

	logging.Info("batch composed", "folder", batch.FolderID, "images", len(batch.OutputPaths),
		"duration_ms", time.Since(start).Milliseconds())
	return batch, nil
}

func (c *Composer) composeOne(ctx context.Context, folderID, family, bgSrc string, spec canvas.ImageSpec) (string, error) {
	bg, err := c.assets.Fetch(ctx, bgSrc)
	if err != nil {
		return "", fmt.Errorf("background: %w", err)
	}
	s := NewSurface(bg)

	for i, l := range spec.Layers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := c.renderer.Draw(ctx, s, family, l); err != nil {
			return "", fmt.Errorf("layer %d: %w", i, err)
		}
	}

	dir, err := c.folders.Ensure(folderID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrExport, err)
	}
	name := spec.FileName + ".png"
	if err := exportPNG(filepath.Join(dir, name), s.Image()); err != nil {
		return "", err
	}
	return c.folders.PublicPath(folderID, name), nil
}

// exportPNG writes img to path, replacing any existing file, and returns only
// once the data is synced and the file closed.
func exportPNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExport, err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("%w: encode %s: %w", ErrExport, path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrExport, path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrExport, path, err)
	}
	return nil
}
