package imagepkg

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyReference is returned before any I/O when an image reference is "".
	ErrEmptyReference = errors.New("image reference is empty")
	// ErrFetch matches every *FetchError.
	ErrFetch = errors.New("image fetch failed")
	// ErrDecode is returned when fetched bytes are not a supported image.
	ErrDecode = errors.New("image decode failed")
	// ErrExport is returned when a rendered image cannot be written to disk.
	ErrExport = errors.New("image export failed")
	// ErrPixelLimit is returned when a source or a requested size exceeds
	// the configured pixel budget.
	ErrPixelLimit = errors.New("pixel limit exceeded")
	// ErrLocalReference is returned for file references that are disabled or
	// point outside the local root.
	ErrLocalReference = errors.New("local image reference not allowed")
	// ErrFont is returned when a font file exists but cannot be used.
	ErrFont = errors.New("font load failed")
)

// FetchError describes a reference that could not be loaded. StatusCode is
// set for HTTP responses other than 200 and is 0 otherwise.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}
