// Package output lays out rendered batches on disk: one folder per batch
// under a fixed images root, addressed publicly as {prefix}/{folderId}/{file}.
package output

import (
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/youruser/canvasapp/internal/util"
)

type Folders struct {
	root   string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	last int64
}

// New returns a folder manager rooted at root. publicPrefix is the URL path
// under which root is served, e.g. "/public".
func New(root, publicPrefix string) *Folders {
	return &Folders{root: root, prefix: publicPrefix, now: time.Now}
}

// NewID returns a millisecond timestamp. Ids handed out by one Folders are
// strictly increasing, so two batches started in the same millisecond still
// get distinct folders.
func (f *Folders) NewID() string {
	ms := f.now().UnixMilli()

	f.mu.Lock()
	if ms <= f.last {
		ms = f.last + 1
	}
	f.last = ms
	f.mu.Unlock()

	return strconv.FormatInt(ms, 10)
}

// Ensure creates the folder for id if needed and returns its path.
func (f *Folders) Ensure(id string) (string, error) {
	dir := f.Path(id)
	if err := util.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

func (f *Folders) Path(id string) string {
	return filepath.Join(f.root, id)
}

func (f *Folders) Root() string {
	return f.root
}

// PublicPath is the URL path a client uses to download file from batch id.
func (f *Folders) PublicPath(id, file string) string {
	return path.Join(f.prefix, id, file)
}
