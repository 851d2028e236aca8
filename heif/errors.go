package heif

import (
	"errors"
	"fmt"

	"github.com/isore/isore/heif/bmff"
)

// Failure classes. Errors returned by this package wrap one of these, so
// callers can tell a corrupt file from a file using something not yet
// supported.
var (
	// ErrNotFound indicates that a lookup that must succeed found nothing.
	ErrNotFound = errors.New("heif: not found")

	// ErrMalformed indicates corrupt or inconsistent structure: a required
	// sibling box is absent, an index is out of range, counts disagree.
	ErrMalformed = errors.New("heif: malformed input")

	// ErrUnsupported indicates valid input using a feature this package does
	// not implement, such as multiple extents.
	ErrUnsupported = errors.New("heif: unsupported feature")

	// ErrOutOfBounds indicates a byte range extending past its source buffer.
	ErrOutOfBounds = errors.New("heif: byte range out of bounds")

	// ErrMissingReference indicates that an item lacks a required reference.
	ErrMissingReference = errors.New("heif: missing reference")
)

// ErrNoEXIF is returned by File.EXIF when a file does not contain an EXIF item.
var ErrNoEXIF = fmt.Errorf("%w: no EXIF item", ErrNotFound)

// ErrUnknownItem is returned by File.ItemByID for unknown items.
var ErrUnknownItem = fmt.Errorf("%w: unknown item", ErrNotFound)

// Warning reports a data-quality problem that did not stop the operation.
type Warning struct {
	ItemID  uint32
	Kind    bmff.BoxType // reference type involved, if any
	Count   int          // number of candidates seen
	Message string
}

func (w *Warning) Error() string {
	return fmt.Sprintf("heif: item %d: %s", w.ItemID, w.Message)
}
