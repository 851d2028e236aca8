// Package isore decodes the items of HEIF files: uncompressed images,
// image grids, Exif and textual metadata. Compressed images are handed
// to a pluggable Codec.
package isore

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/isore/isore/heif"
)

// Decode decodes the primary item of a HEIF file. Without a codec only
// uncompressed images and grids of them can be decoded.
func Decode(r io.Reader) (image.Image, error) {
	f, err := open(r)
	if err != nil {
		return nil, err
	}
	it, err := f.PrimaryItem()
	if err != nil {
		return nil, err
	}
	return DecodeImage(context.Background(), NewDecoder(), f, it.ID)
}

// DecodeImage decodes an image item with d and returns it as an
// image.Image.
func DecodeImage(ctx context.Context, d *Decoder, f *heif.File, itemID uint32) (image.Image, error) {
	dec, err := d.DecodeItem(ctx, f, itemID)
	if err != nil {
		return nil, err
	}
	switch v := dec.(type) {
	case *RawImage:
		return v.Image(), nil
	case *CompositeImage:
		return v.Image()
	case *CodedImage:
		raw, err := d.DecodeCoded(ctx, v)
		if err != nil {
			return nil, err
		}
		return raw.Image(), nil
	}
	return nil, fmt.Errorf("%w: item %d is not an image", heif.ErrUnsupported, itemID)
}

func DecodeConfig(r io.Reader) (image.Config, error) {
	var config image.Config

	f, err := open(r)
	if err != nil {
		return config, err
	}
	it, err := f.PrimaryItem()
	if err != nil {
		return config, err
	}

	width, height, ok := it.SpatialExtents()
	if !ok {
		if it.Type() != heif.ItemTypeGrid {
			return config, fmt.Errorf("%w: primary item %d has no ispe property", heif.ErrMalformed, it.ID)
		}
		data, err := it.Data()
		if err != nil {
			return config, err
		}
		g, err := ParseGridDescriptor(data)
		if err != nil {
			return config, err
		}
		width, height = g.OutputWidth, g.OutputHeight
	}

	config = image.Config{
		ColorModel: color.NRGBAModel,
		Width:      width,
		Height:     height,
	}
	return config, nil
}

func open(r io.Reader) (*heif.File, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return heif.Open(b)
}

func init() {
	// "ftyp" at the 5th byte, as libheif checks.
	image.RegisterFormat("heif", "????ftyp", Decode, DecodeConfig)
}
