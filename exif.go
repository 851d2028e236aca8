package isore

import (
	"bytes"
	"fmt"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/isore/isore/heif"
)

// Exif is a decoded "Exif" item.
type Exif struct {
	ItemID uint32
	TIFF   []byte // item payload from the TIFF header on
	Data   *exif.Exif
}

// Fields returns every tag by name, rendered as text.
func (e *Exif) Fields() map[string]string {
	w := fieldWalker{}
	_ = e.Data.Walk(w)
	return w
}

type fieldWalker map[string]string

func (w fieldWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	w[string(name)] = tag.String()
	return nil
}

func decodeExif(it *heif.Item) (*Exif, error) {
	data, err := it.Data()
	if err != nil {
		return nil, err
	}
	raw, err := heif.TIFFHeader(data)
	if err != nil {
		return nil, err
	}
	x, err := exif.Decode(bytes.NewReader(raw))
	if x == nil {
		return nil, fmt.Errorf("%w: Exif item %d: %v", heif.ErrMalformed, it.ID, err)
	}
	return &Exif{ItemID: it.ID, TIFF: raw, Data: x}, nil
}

// ExtractExif returns the EXIF data of a HEIF file, starting at the TIFF
// header. It can be parsed with exif.Decode.
func ExtractExif(buf []byte) ([]byte, error) {
	f, err := heif.Open(buf)
	if err != nil {
		return nil, err
	}
	return f.EXIF()
}
