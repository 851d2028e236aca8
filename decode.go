package isore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/isore/isore/heif"
)

// ErrNoCodec is returned when a coded image must be decoded and no Codec
// was configured.
var ErrNoCodec = errors.New("isore: no codec for coded image items")

// Decoded is the result of decoding one item. It is one of *Text,
// *RawImage, *CompositeImage, *CodedImage, *Exif or *Unsupported.
type Decoded interface {
	decodedItem()
}

func (*Text) decodedItem()           {}
func (*RawImage) decodedItem()       {}
func (*CompositeImage) decodedItem() {}
func (*CodedImage) decodedItem()     {}
func (*Exif) decodedItem()           {}
func (*Unsupported) decodedItem()    {}

// Text is a textual "mime" item.
type Text struct {
	ItemID      uint32
	ContentType string
	Text        string
}

// CodedImage is a compressed image item with the configuration its codec
// needs. The payload is not decoded.
type CodedImage struct {
	ItemID uint32
	Type   heif.ItemType

	// Config is the decoder configuration: hvcC parameter sets in Annex B
	// form for HEVC, the configOBUs for AV1, empty for JPEG.
	Config  []byte
	Payload []byte

	Width, Height int // from ispe; 0 if absent
}

// Unsupported describes an item that is valid but not decoded.
type Unsupported struct {
	ItemID uint32
	Type   string
	Reason string
}

// Codec decodes compressed image items.
type Codec interface {
	DecodeCoded(ctx context.Context, img *CodedImage) (*RawImage, error)
}

// CodecFunc adapts a function to Codec.
type CodecFunc func(ctx context.Context, img *CodedImage) (*RawImage, error)

func (fn CodecFunc) DecodeCoded(ctx context.Context, img *CodedImage) (*RawImage, error) {
	return fn(ctx, img)
}

// Decoder turns items into Decoded values. A Decoder holds no per-file
// state and may be shared.
type Decoder struct {
	codec  Codec
	text   TextFormatter
	logger *slog.Logger
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithCodec sets the codec used for hvc1, av01 and jpeg tiles.
func WithCodec(c Codec) Option {
	return func(d *Decoder) {
		d.codec = c
	}
}

// WithTextFormatter replaces PlainText for textual mime items.
func WithTextFormatter(tf TextFormatter) Option {
	return func(d *Decoder) {
		d.text = tf
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		d.logger = l
	}
}

func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{text: PlainText{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DecodeItem decodes item itemID of f according to its type.
//
// Valid items of a type that is not decoded yield *Unsupported and a nil
// error. Coded images are returned undecoded as *CodedImage; see
// DecodeCoded.
func (d *Decoder) DecodeItem(ctx context.Context, f *heif.File, itemID uint32) (Decoded, error) {
	it, err := f.ItemByID(itemID)
	if err != nil {
		return nil, err
	}
	typ := it.Type()
	d.logger.Debug("decoding item", "item", itemID, "type", it.Info.ItemType)

	switch typ {
	case heif.ItemTypeMime:
		if !isTextual(it.Info.ContentType) {
			return &Unsupported{ItemID: itemID, Type: it.Info.ItemType, Reason: "content type " + it.Info.ContentType}, nil
		}
		return result(d.decodeText(it))
	case heif.ItemTypeExif:
		return result(decodeExif(it))
	case heif.ItemTypeUnci:
		return result(decodeUncompressed(it))
	case heif.ItemTypeGrid:
		data, err := it.Data()
		if err != nil {
			return nil, err
		}
		return result(ReconstructGrid(ctx, f, itemID, data, d))
	case heif.ItemTypeHvc1, heif.ItemTypeAv01, heif.ItemTypeJpeg:
		return result(codedImage(it))
	case heif.ItemTypeURI:
		return &Unsupported{ItemID: itemID, Type: it.Info.ItemType, Reason: "uri item " + it.Info.ItemURIType}, nil
	case heif.ItemTypeUnknown:
	}
	return &Unsupported{ItemID: itemID, Type: it.Info.ItemType, Reason: "item type"}, nil
}

// result keeps a nil pointer from becoming a non-nil Decoded on error.
func result[T Decoded](v T, err error) (Decoded, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Decoder) decodeText(it *heif.Item) (*Text, error) {
	data, err := it.Data()
	if err != nil {
		return nil, err
	}
	s, err := d.text.FormatText(data)
	if err != nil {
		return nil, fmt.Errorf("%w: item %d: %v", heif.ErrMalformed, it.ID, err)
	}
	return &Text{ItemID: it.ID, ContentType: it.Info.ContentType, Text: s}, nil
}

// DecodeCoded decodes a coded image with the configured codec.
func (d *Decoder) DecodeCoded(ctx context.Context, img *CodedImage) (*RawImage, error) {
	if d.codec == nil {
		return nil, fmt.Errorf("%w: item %d (%s)", ErrNoCodec, img.ItemID, img.Type)
	}
	raw, err := d.codec.DecodeCoded(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("isore: decoding item %d: %w", img.ItemID, err)
	}
	return raw, nil
}

// ResolveTile decodes a grid tile.
func (d *Decoder) ResolveTile(ctx context.Context, f *heif.File, itemID uint32) (*RawImage, error) {
	it, err := f.ItemByID(itemID)
	if err != nil {
		return nil, err
	}
	switch it.Type() {
	case heif.ItemTypeUnci:
		return decodeUncompressed(it)
	case heif.ItemTypeHvc1, heif.ItemTypeAv01, heif.ItemTypeJpeg:
		c, err := codedImage(it)
		if err != nil {
			return nil, err
		}
		return d.DecodeCoded(ctx, c)
	default:
		return nil, fmt.Errorf("%w: tile item %d has type %q", heif.ErrUnsupported, itemID, it.Info.ItemType)
	}
}

func codedImage(it *heif.Item) (*CodedImage, error) {
	c := &CodedImage{ItemID: it.ID, Type: it.Type()}
	switch c.Type {
	case heif.ItemTypeHvc1:
		hvcc, ok := it.HevcConfig()
		if !ok {
			return nil, fmt.Errorf("%w: hvc1 item %d has no hvcC property", heif.ErrMalformed, it.ID)
		}
		c.Config = hvcc.AsHeader()
	case heif.ItemTypeAv01:
		av1c, ok := it.Av1Config()
		if !ok {
			return nil, fmt.Errorf("%w: av01 item %d has no av1C property", heif.ErrMalformed, it.ID)
		}
		c.Config = av1c.ConfigOBUs()
	}
	c.Width, c.Height, _ = it.SpatialExtents()

	data, err := it.Data()
	if err != nil {
		return nil, err
	}
	c.Payload = data
	return c, nil
}
