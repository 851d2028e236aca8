package isore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isore/isore/heif"
	"github.com/isore/isore/heif/bmff"
	ht "github.com/isore/isore/internal/heiftest"
)

func decodeOne(t *testing.T, f *ht.File, opts ...Option) (Decoded, error) {
	t.Helper()
	return NewDecoder(opts...).DecodeItem(context.Background(), openFile(t, f), f.Items[0].ID)
}

func unciFile(data []byte, props ...[]byte) *ht.File {
	idx := make([]uint8, len(props))
	for i := range props {
		idx[i] = uint8(i + 1)
	}
	return &ht.File{
		Primary: 1,
		Items:   []ht.Item{{ID: 1, Type: "unci", Data: data, Props: idx}},
		Props:   props,
	}
}

func TestDecodeUncompressed(t *testing.T) {
	rgb := ht.Cmpd(bmff.ComponentRed, bmff.ComponentGreen, bmff.ComponentBlue)

	tests := []struct {
		name  string
		file  *ht.File
		want  []byte
		bands int
	}{
		{
			name:  "pixel interleaved",
			file:  unciFile([]byte{1, 2, 3, 4, 5, 6}, ht.Ispe(2, 1), rgb, ht.UncC("", bmff.InterleavePixel, 0, 1, 2)),
			want:  []byte{1, 2, 3, 4, 5, 6},
			bands: 3,
		},
		{
			name: "component interleaved",
			// planes stored as B, G, R
			file:  unciFile([]byte{30, 31, 20, 21, 10, 11}, ht.Ispe(2, 1), rgb, ht.UncC("", bmff.InterleaveComponent, 2, 1, 0)),
			want:  []byte{10, 20, 30, 11, 21, 31},
			bands: 3,
		},
		{
			name:  "profile without cmpd",
			file:  unciFile([]byte{9, 8, 7, 6, 5, 4, 3, 2}, ht.Ispe(1, 2), ht.UncCProfile("abgr")),
			want:  []byte{6, 7, 8, 9, 2, 3, 4, 5},
			bands: 4,
		},
		{
			name:  "monochrome",
			file:  unciFile([]byte{1, 2, 3, 4}, ht.Ispe(2, 2), ht.Cmpd(bmff.ComponentY), ht.UncC("", 0, 0)),
			want:  []byte{1, 2, 3, 4},
			bands: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := decodeOne(t, tt.file)
			require.NoError(t, err)
			raw, ok := d.(*RawImage)
			require.True(t, ok, "got %T", d)
			assert.Equal(t, tt.bands, raw.Bands)
			assert.Equal(t, tt.want, raw.Pixels)
		})
	}
}

func TestDecodeUncompressedErrors(t *testing.T) {
	rgb := ht.Cmpd(bmff.ComponentRed, bmff.ComponentGreen, bmff.ComponentBlue)
	tests := []struct {
		name string
		file *ht.File
		want error
	}{
		{"missing cmpd", unciFile(make([]byte, 3), ht.Ispe(1, 1), ht.UncC("", 0, 0, 1, 2)), heif.ErrMalformed},
		{"missing ispe", unciFile(make([]byte, 3), rgb, ht.UncC("", 0, 0, 1, 2)), heif.ErrMalformed},
		{"missing uncC", unciFile(make([]byte, 3), ht.Ispe(1, 1), rgb), heif.ErrMalformed},
		{"short data", unciFile(make([]byte, 5), ht.Ispe(2, 1), rgb, ht.UncC("", 0, 0, 1, 2)), heif.ErrMalformed},
		{"cmpd index out of range", unciFile(make([]byte, 3), ht.Ispe(1, 1), rgb, ht.UncC("", 0, 0, 1, 5)), heif.ErrMalformed},
		{"unknown profile", unciFile(make([]byte, 3), ht.Ispe(1, 1), ht.UncCProfile("yuv2")), heif.ErrUnsupported},
		{"YCbCr", unciFile(make([]byte, 3), ht.Ispe(1, 1), ht.Cmpd(bmff.ComponentY, bmff.ComponentCb, bmff.ComponentCr), ht.UncC("", 0, 0, 1, 2)), heif.ErrUnsupported},
		{"two components", unciFile(make([]byte, 2), ht.Ispe(1, 1), rgb, ht.UncC("", 0, 0, 1)), heif.ErrUnsupported},
		{"size overflows", unciFile([]byte{1, 2, 3, 4}, ht.Ispe(1<<31, 1<<31), ht.UncCProfile("rgba")), heif.ErrMalformed},
		{"size exceeds data", unciFile([]byte{1, 2, 3, 4}, ht.Ispe(1<<16, 1<<16), ht.UncCProfile("rgba")), heif.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				d   Decoded
				err error
			)
			require.NotPanics(t, func() { d, err = decodeOne(t, tt.file) })
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, d)
		})
	}
}

func mimeFile(contentType string, data []byte) *ht.File {
	return &ht.File{Items: []ht.Item{{ID: 5, Type: "mime", ContentType: contentType, Data: data}}}
}

func TestDecodeText(t *testing.T) {
	d, err := decodeOne(t, mimeFile("text/plain; charset=utf-8", []byte("hello\x00")))
	require.NoError(t, err)
	text, ok := d.(*Text)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, "hello", text.Text)
	assert.Equal(t, uint32(5), text.ItemID)

	d, err = decodeOne(t, mimeFile("application/json", []byte{0xff, 0xfe, 'h', 0, 'i', 0}))
	require.NoError(t, err)
	assert.Equal(t, "hi", d.(*Text).Text, "UTF-16 with byte order mark")

	xmp := `<?xml version="1.0"?><x:xmpmeta xmlns:x="adobe:ns:meta/"><rdf:RDF><rdf:Description about=""/></rdf:RDF></x:xmpmeta>`
	d, err = decodeOne(t, mimeFile("application/rdf+xml", []byte(xmp)), WithTextFormatter(XMLIndent{Indent: "  "}))
	require.NoError(t, err)
	out := d.(*Text).Text
	assert.True(t, strings.HasPrefix(out, `<?xml version="1.0"?>`))
	assert.Contains(t, out, `<x:xmpmeta xmlns:x="adobe:ns:meta/">`)
	assert.Contains(t, out, "\n  <rdf:RDF>")
	assert.Contains(t, out, "\n    <rdf:Description about=\"\">")

	d, err = decodeOne(t, mimeFile("image/png", []byte{0x89, 'P'}))
	require.NoError(t, err)
	assert.IsType(t, &Unsupported{}, d)
}

func TestDecodeTextCustomFormatter(t *testing.T) {
	upper := TextFormatterFunc(func(data []byte) (string, error) {
		return strings.ToUpper(string(data)), nil
	})
	d, err := decodeOne(t, mimeFile("text/plain", []byte("hello")), WithTextFormatter(upper))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", d.(*Text).Text)

	failing := TextFormatterFunc(func([]byte) (string, error) {
		return "", errors.New("bad text")
	})
	d, err = decodeOne(t, mimeFile("text/plain", []byte("hello")), WithTextFormatter(failing))
	assert.ErrorIs(t, err, heif.ErrMalformed)
	assert.Nil(t, d)
}

func TestXMLIndentPassesThroughOtherText(t *testing.T) {
	s, err := XMLIndent{Indent: "\t"}.FormatText([]byte(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, s)

	_, err = XMLIndent{}.FormatText([]byte("<a><b></a>"))
	assert.Error(t, err)
}

func TestIsTextual(t *testing.T) {
	for ct, want := range map[string]bool{
		"application/rdf+xml":      true,
		"application/xml":          true,
		"text/plain":               true,
		"TEXT/HTML; charset=utf-8": true,
		"application/json":         true,
		"application/ld+json":      true,
		"image/jpeg":               false,
		"application/octet-stream": false,
		"":                         false,
	} {
		assert.Equal(t, want, isTextual(ct), ct)
	}
}

// minimalTIFF is a little-endian TIFF with one IFD holding Make "Go".
var minimalTIFF = []byte{
	'I', 'I', 0x2a, 0x00, 0x08, 0x00, 0x00, 0x00,
	0x01, 0x00,
	0x0f, 0x01, 0x02, 0x00, 0x03, 0x00, 0x00, 0x00, 'G', 'o', 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

func TestDecodeExif(t *testing.T) {
	f := &ht.File{Items: []ht.Item{{ID: 2, Type: "Exif", Data: ht.Cat(ht.U32(6), []byte("Exif\x00\x00"), minimalTIFF)}}}
	d, err := decodeOne(t, f)
	require.NoError(t, err)
	x, ok := d.(*Exif)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, minimalTIFF, x.TIFF)

	tag, err := x.Data.Get(exif.Make)
	require.NoError(t, err)
	maker, err := tag.StringVal()
	require.NoError(t, err)
	assert.Equal(t, "Go", maker)
	assert.Contains(t, x.Fields()["Make"], "Go")

	raw, err := ExtractExif(f.Bytes())
	require.NoError(t, err)
	assert.Equal(t, minimalTIFF, raw)

	bad := &ht.File{Items: []ht.Item{{ID: 2, Type: "Exif", Data: ht.Cat(ht.U32(0), []byte("not a tiff"))}}}
	_, err = decodeOne(t, bad)
	assert.ErrorIs(t, err, heif.ErrMalformed)
}

func TestDecodeCodedAndUnsupported(t *testing.T) {
	f := &ht.File{
		Items: []ht.Item{
			{ID: 1, Type: "jpeg", Data: []byte{0xff, 0xd8}, Props: []uint8{1}},
			{ID: 2, Type: "av01", Data: []byte{0}},
			{ID: 3, Type: "iovl", Data: []byte{0}},
			{ID: 4, Type: "uri ", ContentType: "urn:example", NoLocation: true},
		},
		Props: [][]byte{ht.Ispe(8, 6)},
	}
	hf := openFile(t, f)
	dec := NewDecoder()
	ctx := context.Background()

	d, err := dec.DecodeItem(ctx, hf, 1)
	require.NoError(t, err)
	coded, ok := d.(*CodedImage)
	require.True(t, ok, "got %T", d)
	assert.Equal(t, heif.ItemTypeJpeg, coded.Type)
	assert.Equal(t, []byte{0xff, 0xd8}, coded.Payload)
	assert.Empty(t, coded.Config)
	assert.Equal(t, []int{8, 6}, []int{coded.Width, coded.Height})

	_, err = dec.DecodeCoded(ctx, coded)
	assert.ErrorIs(t, err, ErrNoCodec)

	_, err = dec.DecodeItem(ctx, hf, 2)
	assert.ErrorIs(t, err, heif.ErrMalformed, "av01 without av1C")

	for _, id := range []uint32{3, 4} {
		d, err = dec.DecodeItem(ctx, hf, id)
		require.NoError(t, err)
		u, ok := d.(*Unsupported)
		require.True(t, ok, "got %T", d)
		assert.Equal(t, id, u.ItemID)
	}

	_, err = dec.DecodeItem(ctx, hf, 99)
	assert.ErrorIs(t, err, heif.ErrUnknownItem)
}
