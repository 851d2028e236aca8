package isore

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/isore/isore/heif"
	"github.com/isore/isore/heif/bmff"
)

var typeDimg = bmff.BoxType{'d', 'i', 'm', 'g'}

// GridDescriptor is the payload of a "grid" item.
type GridDescriptor struct {
	Version uint8
	Flags   uint8

	Rows, Columns             int
	OutputWidth, OutputHeight int

	// Nominal tile size by integer division. When the output size is not
	// a multiple of the grid, the last row and column are cropped; see
	// CompositeImage.TileRect.
	TileWidth, TileHeight int
}

// ParseGridDescriptor parses the grid payload. Bit 0 of the flags selects
// 32-bit instead of 16-bit output dimensions.
func ParseGridDescriptor(data []byte) (GridDescriptor, error) {
	if len(data) < 8 {
		return GridDescriptor{}, fmt.Errorf("%w: grid descriptor of %d bytes", heif.ErrMalformed, len(data))
	}
	g := GridDescriptor{
		Version: data[0],
		Flags:   data[1],
		Rows:    int(data[2]) + 1,
		Columns: int(data[3]) + 1,
	}

	if g.Flags&1 != 0 {
		if len(data) < 12 {
			return GridDescriptor{}, fmt.Errorf("%w: grid descriptor with 32-bit fields of %d bytes", heif.ErrMalformed, len(data))
		}
		g.OutputWidth = int(binary.BigEndian.Uint32(data[4:8]))
		g.OutputHeight = int(binary.BigEndian.Uint32(data[8:12]))
	} else {
		g.OutputWidth = int(binary.BigEndian.Uint16(data[4:6]))
		g.OutputHeight = int(binary.BigEndian.Uint16(data[6:8]))
	}

	g.TileWidth = g.OutputWidth / g.Columns
	g.TileHeight = g.OutputHeight / g.Rows
	return g, nil
}

// TileResolver turns a tile item into pixels.
type TileResolver interface {
	ResolveTile(ctx context.Context, f *heif.File, itemID uint32) (*RawImage, error)
}

// TileResolverFunc adapts a function to TileResolver.
type TileResolverFunc func(ctx context.Context, f *heif.File, itemID uint32) (*RawImage, error)

func (fn TileResolverFunc) ResolveTile(ctx context.Context, f *heif.File, itemID uint32) (*RawImage, error) {
	return fn(ctx, f, itemID)
}

// ReconstructGrid resolves the tiles of grid item gridID, whose payload
// is the grid descriptor. Tiles are taken from the item's single "dimg"
// reference in row-major order. Either every tile is resolved or an
// error is returned.
func ReconstructGrid(ctx context.Context, f *heif.File, gridID uint32, payload []byte, tiles TileResolver) (*CompositeImage, error) {
	g, err := ParseGridDescriptor(payload)
	if err != nil {
		return nil, err
	}

	dimg, err := f.SingleReference(gridID, typeDimg)
	if err != nil {
		return nil, err
	}
	if len(dimg.To) != g.Rows*g.Columns {
		return nil, fmt.Errorf("%w: grid item %d is %dx%d but references %d tiles", heif.ErrMalformed,
			gridID, g.Rows, g.Columns, len(dimg.To))
	}

	out := &CompositeImage{GridDescriptor: g, ItemID: gridID, Tiles: make([]*RawImage, 0, len(dimg.To))}
	for _, id := range dimg.To {
		tile, err := tiles.ResolveTile(ctx, f, id)
		if err != nil {
			return nil, fmt.Errorf("grid item %d: tile %d: %w", gridID, id, err)
		}
		out.Tiles = append(out.Tiles, tile)
	}
	return out, nil
}
