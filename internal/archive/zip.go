// Package archive packs a rendered batch folder into a zip file.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/youruser/canvasapp/internal/logging"
	"github.com/youruser/canvasapp/internal/output"
	"github.com/youruser/canvasapp/internal/util"
)

// DefaultLevel trades a little size for noticeably less CPU than flate.BestCompression.
const DefaultLevel = 7

// ErrArchive wraps every failure that invalidates an archive.
var ErrArchive = errors.New("archive failed")

// Result describes a finalized archive.
type Result struct {
	// Path is the public path of the zip.
	Path string
	// SourceDeleted is true only when the batch folder was requested for
	// deletion and is gone.
	SourceDeleted bool
}

type Archiver struct {
	folders    *output.Folders
	root       string
	prefix     string
	level      int
	now        func() time.Time
	removeTree func(string) error
}

// New returns an Archiver reading batch folders from folders and writing
// archives to zipRoot, served publicly under {publicPrefix}/zip.
func New(folders *output.Folders, zipRoot, publicPrefix string, level int) *Archiver {
	if level < flate.BestSpeed || level > flate.BestCompression {
		level = DefaultLevel
	}
	return &Archiver{
		folders:    folders,
		root:       zipRoot,
		prefix:     publicPrefix,
		level:      level,
		now:        time.Now,
		removeTree: util.RemoveTree,
	}
}

// Archive writes {zipRoot}/{name}.zip holding the contents of batch folderID,
// with entry names relative to the folder. An empty name uses the current
// millisecond timestamp. The zip is built in a temporary file and renamed
// into place once closed and synced, so a failure leaves any earlier archive
// of the same name untouched. When deleteSource is set the batch folder is
// removed afterwards; failing to remove it is logged and reported in the
// Result, not returned as an error.
func (a *Archiver) Archive(ctx context.Context, name, folderID string, deleteSource bool) (Result, error) {
	if name == "" {
		name = strconv.FormatInt(a.now().UnixMilli(), 10)
	}
	if err := util.EnsureDir(a.root); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}

	src := a.folders.Path(folderID)
	dst := filepath.Join(a.root, name+".zip")
	written, err := a.write(ctx, src, dst)
	if err != nil {
		logging.Error("archive failed", "folder", folderID, "zip", dst, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	logging.Info("archive finalized", "folder", folderID, "zip", dst, "bytes", written)

	res := Result{Path: path.Join(a.prefix, "zip", name+".zip")}
	if deleteSource {
		if err := a.removeTree(src); err != nil {
			logging.Warn("could not delete source folder", "folder", src, "error", err)
		} else {
			res.SourceDeleted = true
			logging.Info("source folder deleted", "folder", src)
		}
	}
	return res, nil
}

func (a *Archiver) write(ctx context.Context, src, dst string) (written int64, err error) {
	f, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return 0, err
	}
	tmp := f.Name()
	defer func() {
		if err == nil {
			return
		}
		f.Close()
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			logging.Warn("could not remove partial archive", "zip", tmp, "error", rmErr)
		}
	}()

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, a.level)
	})

	if err = addDir(ctx, zw, src); err != nil {
		zw.Close()
		return 0, err
	}
	if err = zw.Close(); err != nil {
		return 0, err
	}
	if err = f.Chmod(0o644); err != nil {
		return 0, err
	}
	if err = f.Sync(); err != nil {
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err = f.Close(); err != nil {
		return 0, err
	}
	if err = os.Rename(tmp, dst); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// addDir adds everything below root. Entries that vanish while walking are
// skipped with a warning, as is a root that does not exist.
func addDir(ctx context.Context, zw *zip.Writer, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logging.Warn("archive entry not found", "entry", p)
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return addEntry(zw, p, filepath.ToSlash(rel), d)
	})
}

func addEntry(zw *zip.Writer, p, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if errors.Is(err, fs.ErrNotExist) {
		logging.Warn("archive entry not found", "entry", p)
		return nil
	}
	if err != nil {
		return err
	}

	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	if d.IsDir() {
		hdr.Name += "/"
		_, err := zw.CreateHeader(hdr)
		return err
	}
	if !info.Mode().IsRegular() {
		logging.Warn("skipping non-regular archive entry", "entry", p, "mode", info.Mode().String())
		return nil
	}

	in, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		logging.Warn("archive entry not found", "entry", p)
		return nil
	}
	if err != nil {
		return err
	}
	defer in.Close()

	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
