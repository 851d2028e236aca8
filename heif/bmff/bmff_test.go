package bmff

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ht "github.com/isore/isore/internal/heiftest"
)

func TestReadBoxHeaders(t *testing.T) {
	large := ht.Cat(ht.U32(1), []byte("free"), ht.U64(20), []byte("abcd"))
	uuidBox := ht.Box("uuid", []byte("0123456789abcdef"), []byte("xy"))
	toEnd := ht.Cat(ht.U32(0), []byte("mdat"), []byte("payload"))
	buf := ht.Cat(ht.Box("free", []byte("ab")), large, uuidBox, toEnd)

	r := NewReader(buf)
	boxes, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, boxes, 4)

	assert.Equal(t, "free", boxes[0].Type().String())
	assert.Equal(t, int64(10), boxes[0].Size())
	assert.Equal(t, []byte("ab"), boxes[0].Body())

	assert.Equal(t, int64(10), boxes[1].Start())
	assert.Equal(t, int64(16), boxes[1].HeaderSize())
	assert.Equal(t, []byte("abcd"), boxes[1].Body())

	assert.Equal(t, TypeUUID, boxes[2].Type())
	assert.Equal(t, int64(24), boxes[2].HeaderSize())
	assert.Equal(t, []byte("xy"), boxes[2].Body())
	ut, ok := boxes[2].(interface{ UserType() ([16]byte, bool) }).UserType()
	require.True(t, ok)
	assert.Equal(t, "0123456789abcdef", string(ut[:]))

	assert.Equal(t, int64(0), boxes[3].Size(), "size 0 runs to the end of the file")
	assert.Equal(t, []byte("payload"), boxes[3].Body())
}

func TestReadBoxTruncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"short header", []byte{0, 0, 0}},
		{"declared past end", ht.Cat(ht.U32(100), []byte("free"), []byte("ab"))},
		{"size smaller than header", ht.Cat(ht.U32(4), []byte("free"))},
		{"missing 64-bit size", ht.Cat(ht.U32(1), []byte("free"), ht.U32(0))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(tt.buf).ReadAll()
			assert.Error(t, err)
		})
	}

	_, err := NewReader(nil).ReadBox()
	assert.ErrorIs(t, err, io.EOF)
}

func parse(t *testing.T, raw []byte) Box {
	t.Helper()
	b, err := NewReader(raw).ReadBox()
	require.NoError(t, err)
	p, err := b.Parse()
	require.NoError(t, err)
	return p
}

func TestParseUnknownBox(t *testing.T) {
	b, err := NewReader(ht.Box("colr", []byte("nclx"))).ReadBox()
	require.NoError(t, err)
	_, err = b.Parse()
	assert.ErrorIs(t, err, ErrUnknownBox)
	assert.False(t, Known(b.Type()))
	assert.True(t, Known(TypeMeta))
}

func TestParseItemLocationBox(t *testing.T) {
	t.Run("version 0", func(t *testing.T) {
		raw := ht.FullBox("iloc", 0, 0,
			ht.U8(0x44), ht.U8(0x00), ht.U16(1),
			ht.U16(7), ht.U16(0), ht.U16(2),
			ht.U32(100), ht.U32(10), ht.U32(200), ht.U32(20))
		iloc := parse(t, raw).(*ItemLocationBox)
		require.Len(t, iloc.Items, 1)
		e := iloc.Items[0]
		assert.Equal(t, uint32(7), e.ItemID)
		assert.Equal(t, uint8(0), e.ConstructionMethod)
		assert.Equal(t, uint64(0), e.BaseOffset)
		assert.Equal(t, []OffsetLength{{100, 10}, {200, 20}}, e.Extents)
	})

	t.Run("version 2 with 64-bit fields", func(t *testing.T) {
		raw := ht.FullBox("iloc", 2, 0,
			ht.U8(0x88), ht.U8(0x84), ht.U32(1),
			ht.U32(70000), ht.U16(1), ht.U16(0), ht.U64(1<<33),
			ht.U16(1), ht.U32(3), ht.U64(5), ht.U64(6))
		iloc := parse(t, raw).(*ItemLocationBox)
		require.Len(t, iloc.Items, 1)
		e := iloc.Items[0]
		assert.Equal(t, uint32(70000), e.ItemID)
		assert.Equal(t, uint8(1), e.ConstructionMethod)
		assert.Equal(t, uint64(1<<33), e.BaseOffset)
		assert.Equal(t, []OffsetLength{{5, 6}}, e.Extents)
	})

	t.Run("invalid field size", func(t *testing.T) {
		b, err := NewReader(ht.FullBox("iloc", 1, 0, ht.U8(0x34), ht.U8(0x00), ht.U16(0))).ReadBox()
		require.NoError(t, err)
		_, err = b.Parse()
		assert.Error(t, err)
	})
}

func TestParseItemInfoEntry(t *testing.T) {
	v0 := parse(t, ht.FullBox("infe", 0, 0, ht.U16(3), ht.U16(0), ht.Str("xmp"), ht.Str("application/rdf+xml"))).(*ItemInfoEntry)
	assert.Equal(t, uint32(3), v0.ItemID)
	assert.Equal(t, "mime", v0.ItemType)
	assert.Equal(t, "application/rdf+xml", v0.ContentType)

	v2 := parse(t, ht.FullBox("infe", 2, 1, ht.U16(4), ht.U16(0), []byte("hvc1"), ht.Str(""))).(*ItemInfoEntry)
	assert.Equal(t, "hvc1", v2.ItemType)
	assert.True(t, v2.Hidden())

	v3 := parse(t, ht.FullBox("infe", 3, 0, ht.U32(1<<20), ht.U16(0), []byte("uri "), ht.Str("n"), ht.Str("urn:x"))).(*ItemInfoEntry)
	assert.Equal(t, uint32(1<<20), v3.ItemID)
	assert.Equal(t, "urn:x", v3.ItemURIType)
}

func TestParseItemPropertyAssociation(t *testing.T) {
	raw := ht.FullBox("ipma", 0, 1, ht.U32(1),
		ht.U16(1), ht.U8(2), ht.U16(0x8102), ht.U16(3))
	ipma := parse(t, raw).(*ItemPropertyAssociation)
	require.Len(t, ipma.Entries, 1)
	assert.Equal(t, []ItemProperty{{Essential: true, Index: 0x102}, {Index: 3}}, ipma.Entries[0].Associations)
}

func TestParseItemReferenceBox(t *testing.T) {
	raw := ht.FullBox("iref", 1, 0,
		ht.Box("dimg", ht.U32(1), ht.U16(2), ht.U32(2), ht.U32(3)),
		ht.Box("thmb", ht.U32(4), ht.U16(1), ht.U32(1)))
	iref := parse(t, raw).(*ItemReferenceBox)
	require.Len(t, iref.ItemRefs, 2)
	assert.Equal(t, "dimg", iref.ItemRefs[0].Type().String())
	assert.Equal(t, []uint32{2, 3}, iref.ItemRefs[0].ToItemIDs)

	children := iref.ChildBoxes()
	require.Len(t, children, 2)
	p, err := children[1].Parse()
	require.NoError(t, err)
	assert.Same(t, iref.ItemRefs[1], p)
}

func TestParseUncompressed(t *testing.T) {
	v1 := parse(t, ht.UncCProfile("rgba")).(*UncompressedConfig)
	assert.Equal(t, uint8(1), v1.Version)
	assert.Equal(t, "rgba", v1.Profile)
	assert.Empty(t, v1.Components)

	v0 := parse(t, ht.UncC("rgb3", InterleavePixel, 0, 1, 2)).(*UncompressedConfig)
	assert.Equal(t, InterleavePixel, v0.InterleaveType)
	require.Len(t, v0.Components, 3)
	assert.Equal(t, UncompressedComponent{Index: 2, BitDepthMinusOne: 7}, v0.Components[2])

	cmpd := parse(t, ht.Cmpd(ComponentRed, ComponentGreen, ComponentBlue)).(*ComponentDefinition)
	assert.Equal(t, []uint16{4, 5, 6}, cmpd.Types)
}

func TestParseIdatKeepsBody(t *testing.T) {
	idat := parse(t, ht.Box("idat", []byte{1, 2, 3})).(*ItemDataBox)
	assert.Equal(t, []byte{1, 2, 3}, idat.Data)
}
