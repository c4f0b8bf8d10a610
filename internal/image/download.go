package imagepkg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/youruser/canvasapp/internal/logging"
	"github.com/youruser/canvasapp/internal/util"
)

// AssetFetcher resolves an image reference into a decoded image.
type AssetFetcher interface {
	Fetch(ctx context.Context, ref string) (image.Image, error)
}

// FetchOptions bounds what a Fetcher will load. Zero values disable the
// corresponding limit.
type FetchOptions struct {
	Timeout  time.Duration
	MaxBytes int64
	// MaxPixels caps width*height of a source, checked before decoding.
	MaxPixels int64
	// LocalRoot enables file:// and plain path references for files below
	// it. Relative paths are resolved against it. Empty disables local reads.
	LocalRoot string
}

// Fetcher loads images from http(s) URLs, qr: references and, when a local
// root is configured, files below that root. Nothing is cached; every call
// reads the source again.
type Fetcher struct {
	client *http.Client
	opts   FetchOptions
}

func NewFetcher(client *http.Client, opts FetchOptions) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, opts: opts}
}

// Fetch buffers the whole source before decoding it.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (image.Image, error) {
	if ref == "" {
		return nil, ErrEmptyReference
	}
	b, err := f.load(ctx, ref)
	if err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, ref, err)
	}
	if limit := f.opts.MaxPixels; limit > 0 && int64(cfg.Width)*int64(cfg.Height) > limit {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrPixelLimit, ref, cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, ref, err)
	}
	logging.Debug("image loaded", "ref", ref, "bytes", len(b),
		"width", img.Bounds().Dx(), "height", img.Bounds().Dy())
	return img, nil
}

func (f *Fetcher) load(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, qrScheme):
		b, err := GenerateQRPNG(strings.TrimPrefix(ref, qrScheme), qrSize)
		if err != nil {
			return nil, &FetchError{URL: ref, Err: err}
		}
		return b, nil

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if f.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
			defer cancel()
		}
		b, err := util.GetBytes(ctx, f.client, ref, f.opts.MaxBytes)
		if err != nil {
			fe := &FetchError{URL: ref, Err: err}
			var se *util.StatusError
			if errors.As(err, &se) {
				fe.StatusCode = se.StatusCode
			}
			return nil, fe
		}
		return b, nil

	case strings.HasPrefix(ref, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, &FetchError{URL: ref, Err: err}
		}
		return f.readFile(ref, u.Path)

	default:
		return f.readFile(ref, ref)
	}
}

func (f *Fetcher) readFile(ref, path string) ([]byte, error) {
	p, err := f.localPath(path)
	if err != nil {
		return nil, &FetchError{URL: ref, Err: err}
	}
	if f.opts.MaxBytes > 0 {
		if info, err := os.Stat(p); err == nil && info.Size() > f.opts.MaxBytes {
			return nil, &FetchError{URL: ref, Err: util.ErrTooLarge}
		}
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, &FetchError{URL: ref, Err: err}
	}
	return b, nil
}

// localPath resolves path, symlinks included, and checks that it stays
// below the local root. The lexical check runs first so paths outside the
// root are rejected without touching the filesystem.
func (f *Fetcher) localPath(path string) (string, error) {
	if f.opts.LocalRoot == "" {
		return "", ErrLocalReference
	}
	root, err := filepath.Abs(f.opts.LocalRoot)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	path = filepath.Clean(path)
	if !within(root, path) {
		return "", fmt.Errorf("%w: %s is outside %s", ErrLocalReference, path, root)
	}

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	if !within(realRoot, resolved) {
		return "", fmt.Errorf("%w: %s resolves outside %s", ErrLocalReference, path, root)
	}
	return resolved, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
