// Package canvas holds the request and result types of the composition
// pipeline along with their JSON wire format.
package canvas

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedLayer is returned when a layer carries an unknown type tag.
	ErrUnsupportedLayer = errors.New("unsupported layer")
	// ErrInvalidName is returned for file or archive names that are empty or
	// would escape their folder.
	ErrInvalidName = errors.New("invalid name")
)

// CompositionRequest describes one batch of output images sharing a
// background and font.
type CompositionRequest struct {
	BackgroundSource string
	FontFamily       string
	Images           []ImageSpec
	// Zip is nil when no archive was requested.
	Zip *ZipOptions
}

// ImageSpec produces one output file, FileName + ".png".
type ImageSpec struct {
	FileName string
	Layers   []Layer
}

type ZipOptions struct {
	ArchiveName        string
	DeleteSourceFolder bool
}

// RenderedBatch is the result of composing a request.
type RenderedBatch struct {
	FolderID    string   `json:"folderId"`
	OutputPaths []string `json:"outputPaths"`
}

// Layer is implemented by TextLayer and ImageLayer only.
type Layer interface {
	layer()
}

// TextLayer paints Text with its baseline origin at (X, Y).
type TextLayer struct {
	Text     string
	FontSize float64
	X, Y     float64
}

// ImageLayer paints the image found at Source with its top-left corner at
// (X, Y). A zero Width or Height keeps the native size on that axis.
type ImageLayer struct {
	Source        string
	Width, Height float64
	X, Y          float64
}

func (TextLayer) layer()  {}
func (ImageLayer) layer() {}

// ValidateName checks that name can be used as a single path element.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
