package isore

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/isore/isore/heif"
)

// RawImage is an uncompressed 8-bit image with interleaved bands:
// 1 (gray), 3 (RGB) or 4 (RGBA).
type RawImage struct {
	Pixels []byte
	Width  int
	Height int
	Bands  int
}

// NewRawImage validates the buffer size against the dimensions.
func NewRawImage(pixels []byte, width, height, bands int) (*RawImage, error) {
	switch bands {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("%w: %d bands", heif.ErrUnsupported, bands)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: image size %dx%d", heif.ErrMalformed, width, height)
	}
	if len(pixels) != width*height*bands {
		return nil, fmt.Errorf("%w: %d bytes for a %dx%dx%d image", heif.ErrMalformed, len(pixels), width, height, bands)
	}
	return &RawImage{Pixels: pixels, Width: width, Height: height, Bands: bands}, nil
}

// Image returns the pixels as an image.Image. Gray and RGBA images share
// the pixel buffer.
func (r *RawImage) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Bands {
	case 1:
		return &image.Gray{Pix: r.Pixels, Stride: r.Width, Rect: rect}
	case 4:
		return &image.NRGBA{Pix: r.Pixels, Stride: 4 * r.Width, Rect: rect}
	}
	img := image.NewNRGBA(rect)
	for i, j := 0, 0; i+2 < len(r.Pixels); i, j = i+3, j+4 {
		img.Pix[j] = r.Pixels[i]
		img.Pix[j+1] = r.Pixels[i+1]
		img.Pix[j+2] = r.Pixels[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

// CompositeImage is a grid item: its descriptor and its tiles in
// row-major order.
type CompositeImage struct {
	GridDescriptor
	ItemID uint32
	Tiles  []*RawImage
}

// Tile returns the tile at row, col.
func (c *CompositeImage) Tile(row, col int) *RawImage {
	return c.Tiles[row*c.Columns+col]
}

// tilePitch is the size of a grid cell. Decoded tiles are authoritative;
// the descriptor's integer division is used before any tile is known.
func (c *CompositeImage) tilePitch() (int, int) {
	if len(c.Tiles) > 0 {
		return c.Tiles[0].Width, c.Tiles[0].Height
	}
	return c.TileWidth, c.TileHeight
}

// TileRect returns the part of the output covered by the tile at row, col.
// Tiles of the last row and column may be cropped by the output size.
func (c *CompositeImage) TileRect(row, col int) image.Rectangle {
	tw, th := c.tilePitch()
	r := image.Rect(col*tw, row*th, (col+1)*tw, (row+1)*th)
	return r.Intersect(image.Rect(0, 0, c.OutputWidth, c.OutputHeight))
}

// Image stitches the tiles and crops the result to the output size.
func (c *CompositeImage) Image() (image.Image, error) {
	if len(c.Tiles) != c.Rows*c.Columns {
		return nil, fmt.Errorf("%w: grid has %d tiles, want %d", heif.ErrMalformed, len(c.Tiles), c.Rows*c.Columns)
	}
	first := c.Tiles[0]
	for _, t := range c.Tiles[1:] {
		if t.Width != first.Width || t.Height != first.Height || t.Bands != first.Bands {
			return nil, fmt.Errorf("%w: inconsistent tile dimensions %dx%dx%d and %dx%dx%d", heif.ErrMalformed,
				first.Width, first.Height, first.Bands, t.Width, t.Height, t.Bands)
		}
	}
	if first.Width*c.Columns < c.OutputWidth || first.Height*c.Rows < c.OutputHeight {
		return nil, fmt.Errorf("%w: %dx%d tiles of %dx%d do not cover the %dx%d output", heif.ErrMalformed,
			c.Columns, c.Rows, first.Width, first.Height, c.OutputWidth, c.OutputHeight)
	}

	bounds := image.Rect(0, 0, c.OutputWidth, c.OutputHeight)
	var dst draw.Image
	if first.Bands == 1 {
		dst = image.NewGray(bounds)
	} else {
		dst = image.NewNRGBA(bounds)
	}
	for row := 0; row < c.Rows; row++ {
		for col := 0; col < c.Columns; col++ {
			r := c.TileRect(row, col)
			if r.Empty() {
				continue
			}
			draw.Draw(dst, r, c.Tile(row, col).Image(), image.Point{}, draw.Src)
		}
	}
	return dst, nil
}
