/*
Copyright 2018 The go4 Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package bmff reads ISO BMFF boxes, as used by HEIF, etc.
//
// This is not so much as a generic BMFF reader as it is a BMFF reader
// as needed by HEIF. Only the boxes needed to locate items, their
// properties and their references have explicit parsers; everything
// else is returned unparsed with its raw body.
//
// The reader works on a whole file held in memory. Every box remembers
// where it starts in that buffer and how large its header is.
package bmff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// NewReader returns a Reader over the top-level boxes of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

type Reader struct {
	buf         []byte
	pos         int
	base        int64 // absolute offset of buf[0] in the file
	noMoreBoxes bool  // a box with size 0 (the final box) was seen
}

type BoxType [4]byte

// Common box types.
var (
	TypeFtyp = BoxType{'f', 't', 'y', 'p'}
	TypeMeta = BoxType{'m', 'e', 't', 'a'}
	TypeMdat = BoxType{'m', 'd', 'a', 't'}
	TypeUUID = BoxType{'u', 'u', 'i', 'd'}
)

func (t BoxType) String() string { return string(t[:]) }

func (t BoxType) EqualString(s string) bool {
	// Could be cleaner, but see https://github.com/golang/go/issues/24765
	return len(s) == 4 && s[0] == t[0] && s[1] == t[1] && s[2] == t[2] && s[3] == t[3]
}

// Box represents a BMFF box.
type Box interface {
	Size() int64 // as declared; 0 means the box extends to the end of the file
	Type() BoxType

	// Start is the offset of the box header within the source buffer.
	Start() int64
	// HeaderSize is the number of bytes before the body: size, type,
	// optional largesize and optional uuid user type.
	HeaderSize() int64

	// Parse parses the box, populating the fields
	// in the returned concrete type.
	//
	// If Parse has already been called, Parse returns the cached result.
	// If the box type is unknown, the returned error is ErrUnknownBox.
	Parse() (Box, error)

	// Body returns the inner bytes of the box, ignoring the header.
	// The body may start with the 4 byte header of a "Full Box" if the
	// box's type derives from a full box. Most users will use Parse
	// instead.
	Body() []byte
}

// Container is implemented by parsed boxes that hold child boxes.
// ChildBoxes returns them in file order; entries may be parsed or not.
type Container interface {
	ChildBoxes() []Box
}

// ErrUnknownBox is returned by Box.Parse for unrecognized box types.
var ErrUnknownBox = errors.New("bmff: unknown box")

type parserFunc func(b *box, br *bufReader) (Box, error)

func boxType(s string) BoxType {
	if len(s) != 4 {
		panic("bogus boxType length")
	}
	return BoxType{s[0], s[1], s[2], s[3]}
}

var parsers map[BoxType]parserFunc

func init() {
	parsers = map[BoxType]parserFunc{
		boxType("dinf"): parseContainerBox,
		boxType("dref"): parseDataReferenceBox,
		boxType("edts"): parseContainerBox,
		boxType("ftyp"): parseFileTypeBox,
		boxType("hdlr"): parseHandlerBox,
		boxType("iinf"): parseItemInfoBox,
		boxType("infe"): parseItemInfoEntry,
		boxType("iloc"): parseItemLocationBox,
		boxType("ipco"): parseItemPropertyContainerBox,
		boxType("ipma"): parseItemPropertyAssociation,
		boxType("iprp"): parseItemPropertiesBox,
		boxType("irot"): parseImageRotation,
		boxType("imir"): parseImageMirror,
		boxType("ispe"): parseImageSpatialExtentsProperty,
		boxType("mdia"): parseContainerBox,
		boxType("meta"): parseMetaBox,
		boxType("minf"): parseContainerBox,
		boxType("moov"): parseContainerBox,
		boxType("pitm"): parsePrimaryItemBox,
		boxType("idat"): parseItemDataBox,
		boxType("iref"): parseItemReferenceBox,
		boxType("hvcC"): parseItemHevcConfigBox,
		boxType("av1C"): parseItemAv1ConfigBox,
		boxType("stbl"): parseContainerBox,
		boxType("trak"): parseContainerBox,
		boxType("uncC"): parseUncompressedConfig,
		boxType("cmpd"): parseComponentDefinition,
	}
}

// Known reports whether the package has a parser for t.
func Known(t BoxType) bool {
	_, ok := parsers[t]
	return ok
}

type box struct {
	size     int64 // as declared
	boxType  BoxType
	start    int64
	hdrSize  int64
	userType [16]byte // only for "uuid" boxes
	body     []byte
	parsed   Box // if non-nil, the Parsed result
}

func (b *box) Size() int64       { return b.size }
func (b *box) Type() BoxType     { return b.boxType }
func (b *box) Start() int64      { return b.start }
func (b *box) HeaderSize() int64 { return b.hdrSize }
func (b *box) Body() []byte      { return b.body }

// UserType returns the extended type of a "uuid" box.
func (b *box) UserType() ([16]byte, bool) {
	return b.userType, b.boxType == TypeUUID
}

func (b *box) Parse() (Box, error) {
	if b.parsed != nil {
		return b.parsed, nil
	}
	parser, ok := parsers[b.Type()]
	if !ok {
		return nil, ErrUnknownBox
	}
	v, err := parser(b, &bufReader{buf: b.body, base: b.start + b.hdrSize})
	if err != nil {
		return nil, fmt.Errorf("bmff: parsing %q box at offset %d: %w", b.boxType, b.start, err)
	}
	b.parsed = v
	return v, nil
}

type FullBox struct {
	*box
	Version uint8
	Flags   uint32 // 24 bits
}

// ReadBox reads the next box.
//
// At the end, the error is io.EOF.
func (r *Reader) ReadBox() (Box, error) {
	if r.noMoreBoxes || r.pos >= len(r.buf) {
		return nil, io.EOF
	}
	rest := r.buf[r.pos:]
	if len(rest) < 8 {
		return nil, fmt.Errorf("bmff: %d trailing bytes at offset %d are too short for a box header: %w",
			len(rest), r.base+int64(r.pos), io.ErrUnexpectedEOF)
	}
	box := &box{
		size:    int64(binary.BigEndian.Uint32(rest[:4])),
		start:   r.base + int64(r.pos),
		hdrSize: 8,
	}
	copy(box.boxType[:], rest[4:8])

	// Special cases for size:
	length := box.size
	switch box.size {
	case 1:
		// 1 means it's actually a 64-bit size, after the type.
		if len(rest) < 16 {
			return nil, fmt.Errorf("bmff: box %q lacks its 64-bit size: %w", box.boxType, io.ErrUnexpectedEOF)
		}
		box.size = int64(binary.BigEndian.Uint64(rest[8:16]))
		if box.size < 0 {
			// Go uses int64 for sizes typically, but BMFF uses uint64.
			// We assume for now that nobody actually uses boxes larger
			// than int64.
			return nil, fmt.Errorf("bmff: unexpectedly large box %q", box.boxType)
		}
		box.hdrSize = 16
		length = box.size
	case 0:
		// 0 means unknown & to read to end of file. No more boxes.
		r.noMoreBoxes = true
		length = int64(len(rest))
	}
	if box.boxType == TypeUUID {
		if int64(len(rest)) < box.hdrSize+16 {
			return nil, fmt.Errorf("bmff: uuid box lacks its user type: %w", io.ErrUnexpectedEOF)
		}
		copy(box.userType[:], rest[box.hdrSize:box.hdrSize+16])
		box.hdrSize += 16
	}
	if length < box.hdrSize {
		return nil, fmt.Errorf("bmff: box header for %q has size %d, smaller than its %d byte header", box.boxType, length, box.hdrSize)
	}
	if length > int64(len(rest)) {
		return nil, fmt.Errorf("bmff: box %q at offset %d declares %d bytes but only %d remain: %w",
			box.boxType, box.start, length, len(rest), io.ErrUnexpectedEOF)
	}
	box.body = rest[box.hdrSize:length:length]
	r.pos += int(length)
	return box, nil
}

// ReadAll reads every remaining box.
func (r *Reader) ReadAll() ([]Box, error) {
	var boxes []Box
	for {
		b, err := r.ReadBox()
		if err == io.EOF {
			return boxes, nil
		}
		if err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
}

func readFullBox(outer *box, br *bufReader) (fb FullBox, err error) {
	fb.box = outer
	// Parse FullBox header.
	v, err := br.readUint32()
	if err != nil {
		return FullBox{}, fmt.Errorf("failed to read 4 bytes of FullBox: %v", err)
	}
	fb.Version = uint8(v >> 24)
	fb.Flags = v & 0xffffff
	return fb, nil
}

type FileTypeBox struct {
	*box
	MajorBrand   string   // 4 bytes
	MinorVersion string   // 4 bytes
	Compatible   []string // all 4 bytes
}

func parseFileTypeBox(outer *box, br *bufReader) (Box, error) {
	ft := &FileTypeBox{box: outer}
	ft.MajorBrand, _ = br.readFourCC()
	ft.MinorVersion, _ = br.readFourCC()
	for br.remaining() >= 4 {
		c, _ := br.readFourCC()
		ft.Compatible = append(ft.Compatible, c)
	}
	if !br.ok() {
		return nil, br.err
	}
	return ft, nil
}

type MetaBox struct {
	FullBox
	Children []Box
}

func (mb *MetaBox) ChildBoxes() []Box { return mb.Children }

func parseMetaBox(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	mb := &MetaBox{FullBox: fb}
	return mb, br.parseAppendBoxes(&mb.Children)
}

// ContainerBox is a plain box whose body is only child boxes
// ("moov", "trak", "dinf", ...).
type ContainerBox struct {
	*box
	Children []Box
}

func (cb *ContainerBox) ChildBoxes() []Box { return cb.Children }

func parseContainerBox(outer *box, br *bufReader) (Box, error) {
	cb := &ContainerBox{box: outer}
	return cb, br.parseAppendBoxes(&cb.Children)
}

func (br *bufReader) parseAppendBoxes(dst *[]Box) error {
	if br.err != nil {
		return br.err
	}
	boxr := &Reader{buf: br.buf[br.pos:], base: br.base + int64(br.pos)}
	for {
		inner, err := boxr.ReadBox()
		if err == io.EOF {
			br.pos = len(br.buf)
			return nil
		}
		if err != nil {
			br.err = err
			return err
		}
		*dst = append(*dst, inner)
	}
}

// ItemInfoEntry represents an "infe" box.
//
// Versions 0 and 1 carry no item type; they describe MIME content and
// are reported with ItemType "mime".
type ItemInfoEntry struct {
	FullBox

	ItemID          uint32
	ProtectionIndex uint16
	ItemType        string // always 4 bytes

	Name string

	// If Type == "mime":
	ContentType     string
	ContentEncoding string

	// If Type == "uri ":
	ItemURIType string
}

// Hidden reports whether the item is flagged as not intended for display.
func (ie *ItemInfoEntry) Hidden() bool { return ie.Flags&1 != 0 }

func parseItemInfoEntry(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	ie := &ItemInfoEntry{FullBox: fb}

	if fb.Version < 2 {
		id, _ := br.readUint16()
		ie.ItemID = uint32(id)
		ie.ProtectionIndex, _ = br.readUint16()
		ie.ItemType = "mime"
		ie.Name, _ = br.readString()
		ie.ContentType, _ = br.readString()
		if br.anyRemain() {
			ie.ContentEncoding, _ = br.readString()
		}
		// Version 1 extensions follow; they are not needed.
		if !br.ok() {
			return nil, br.err
		}
		return ie, nil
	}

	if fb.Version == 2 {
		id, _ := br.readUint16()
		ie.ItemID = uint32(id)
	} else {
		ie.ItemID, _ = br.readUint32()
	}
	ie.ProtectionIndex, _ = br.readUint16()
	ie.ItemType, _ = br.readFourCC()
	ie.Name, _ = br.readString()

	switch ie.ItemType {
	case "mime":
		ie.ContentType, _ = br.readString()
		if br.anyRemain() {
			ie.ContentEncoding, _ = br.readString()
		}
	case "uri ":
		ie.ItemURIType, _ = br.readString()
	}
	if !br.ok() {
		return nil, br.err
	}
	return ie, nil
}

// ItemInfoBox represents an "iinf" box.
type ItemInfoBox struct {
	FullBox
	Count     uint32
	Children  []Box
	ItemInfos []*ItemInfoEntry
}

func (ib *ItemInfoBox) ChildBoxes() []Box { return ib.Children }

func parseItemInfoBox(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	ib := &ItemInfoBox{FullBox: fb}

	if ib.Version >= 1 {
		ib.Count, _ = br.readUint32()
	} else {
		count, _ := br.readUint16()
		ib.Count = uint32(count)
	}

	br.parseAppendBoxes(&ib.Children)
	if !br.ok() {
		return nil, br.err
	}
	for _, box := range ib.Children {
		pb, err := box.Parse()
		if err == ErrUnknownBox {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error parsing ItemInfoEntry in ItemInfoBox: %w", err)
		}
		if iie, ok := pb.(*ItemInfoEntry); ok {
			ib.ItemInfos = append(ib.ItemInfos, iie)
		}
	}
	return ib, nil
}

// ItemReferenceBox represents an "iref" box.
type ItemReferenceBox struct {
	FullBox
	ItemRefs []*ItemReferenceEntry
}

func (ib *ItemReferenceBox) ChildBoxes() []Box {
	out := make([]Box, len(ib.ItemRefs))
	for i, r := range ib.ItemRefs {
		out[i] = r
	}
	return out
}

// ItemReferenceEntry is one reference of an "iref" box. Its box type is
// the reference type, e.g. "dimg", "thmb" or "cdsc".
type ItemReferenceEntry struct {
	*box
	FromItemID uint32
	Count      uint16
	ToItemIDs  []uint32
}

func parseItemReferenceBox(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	ib := &ItemReferenceBox{FullBox: fb}

	var itemRefs []Box
	br.parseAppendBoxes(&itemRefs)
	if !br.ok() {
		return nil, br.err
	}
	for _, b := range itemRefs {
		inner := b.(*box)
		ie, err := parseItemReferenceEntry(inner, &bufReader{buf: inner.body, base: inner.start + inner.hdrSize}, ib.Version)
		if err != nil {
			return nil, fmt.Errorf("error parsing ItemReferenceEntry in ItemReferenceBox: %w", err)
		}
		inner.parsed = ie
		ib.ItemRefs = append(ib.ItemRefs, ie)
	}
	return ib, nil
}

func parseItemReferenceEntry(outer *box, br *bufReader, version uint8) (*ItemReferenceEntry, error) {
	ie := &ItemReferenceEntry{box: outer}

	readID := func() uint32 {
		if version == 0 {
			id, _ := br.readUint16()
			return uint32(id)
		}
		id, _ := br.readUint32()
		return id
	}
	ie.FromItemID = readID()
	ie.Count, _ = br.readUint16()
	for i := 0; i < int(ie.Count) && br.ok(); i++ {
		ie.ToItemIDs = append(ie.ToItemIDs, readID())
	}
	if !br.ok() {
		return nil, br.err
	}
	return ie, nil
}

// bufReader reads big-endian fields from an in-memory box body.
type bufReader struct {
	buf  []byte
	pos  int
	base int64 // absolute offset of buf[0]
	err  error // sticky error
}

// ok reports whether all previous reads have been error-free.
func (br *bufReader) ok() bool { return br.err == nil }

func (br *bufReader) anyRemain() bool {
	return br.err == nil && br.pos < len(br.buf)
}

func (br *bufReader) remaining() int {
	if br.err != nil {
		return 0
	}
	return len(br.buf) - br.pos
}

// next consumes n bytes.
func (br *bufReader) next(n int) ([]byte, error) {
	if br.err != nil {
		return nil, br.err
	}
	if n < 0 || len(br.buf)-br.pos < n {
		br.err = fmt.Errorf("need %d bytes at offset %d, have %d: %w",
			n, br.base+int64(br.pos), len(br.buf)-br.pos, io.ErrUnexpectedEOF)
		return nil, br.err
	}
	b := br.buf[br.pos : br.pos+n]
	br.pos += n
	return b, nil
}

func (br *bufReader) rest() []byte {
	if br.err != nil {
		return nil
	}
	b := br.buf[br.pos:]
	br.pos = len(br.buf)
	return b
}

func (br *bufReader) readUintN(bits uint8) (uint64, error) {
	if br.err != nil {
		return 0, br.err
	}
	switch bits {
	case 0:
		return 0, nil
	case 8:
		v, err := br.readUint8()
		return uint64(v), err
	case 16:
		v, err := br.readUint16()
		return uint64(v), err
	case 32:
		v, err := br.readUint32()
		return uint64(v), err
	case 64:
		return br.readUint64()
	default:
		br.err = fmt.Errorf("invalid uintn read size %d", bits)
		return 0, br.err
	}
}

func (br *bufReader) readUint8() (uint8, error) {
	b, err := br.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (br *bufReader) readUint16() (uint16, error) {
	b, err := br.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (br *bufReader) readUint32() (uint32, error) {
	b, err := br.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (br *bufReader) readUint64() (uint64, error) {
	b, err := br.next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (br *bufReader) readFourCC() (string, error) {
	b, err := br.next(4)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (br *bufReader) readString() (string, error) {
	if br.err != nil {
		return "", br.err
	}
	for i := br.pos; i < len(br.buf); i++ {
		if br.buf[i] == 0 {
			s := string(br.buf[br.pos:i])
			br.pos = i + 1
			return s, nil
		}
	}
	br.err = fmt.Errorf("unexpected non-null terminated string")
	return "", br.err
}

// HEIF: ipco
type ItemPropertyContainerBox struct {
	*box
	Properties []Box // of ItemProperty or ItemFullProperty
}

func (ipc *ItemPropertyContainerBox) ChildBoxes() []Box { return ipc.Properties }

func parseItemPropertyContainerBox(outer *box, br *bufReader) (Box, error) {
	ipc := &ItemPropertyContainerBox{box: outer}
	return ipc, br.parseAppendBoxes(&ipc.Properties)
}

// HEIF: iprp
type ItemPropertiesBox struct {
	*box
	Children          []Box
	PropertyContainer *ItemPropertyContainerBox
	Associations      []*ItemPropertyAssociation
}

func (ip *ItemPropertiesBox) ChildBoxes() []Box { return ip.Children }

func parseItemPropertiesBox(outer *box, br *bufReader) (Box, error) {
	ip := &ItemPropertiesBox{
		box: outer,
	}

	if err := br.parseAppendBoxes(&ip.Children); err != nil {
		return nil, err
	}
	for _, box := range ip.Children {
		boxp, err := box.Parse()
		if err == ErrUnknownBox {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %q in ItemPropertiesBox: %w", box.Type(), err)
		}
		switch v := boxp.(type) {
		case *ItemPropertyContainerBox:
			if ip.PropertyContainer == nil {
				ip.PropertyContainer = v
			}
		case *ItemPropertyAssociation:
			ip.Associations = append(ip.Associations, v)
		}
	}
	return ip, nil
}

type ItemPropertyAssociation struct {
	FullBox
	EntryCount uint32
	Entries    []ItemPropertyAssociationItem
}

// not a box
type ItemProperty struct {
	Essential bool
	Index     uint16
}

// not a box
type ItemPropertyAssociationItem struct {
	ItemID            uint32
	AssociationsCount int            // as declared
	Associations      []ItemProperty // as parsed
}

func parseItemPropertyAssociation(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	ipa := &ItemPropertyAssociation{FullBox: fb}
	count, _ := br.readUint32()
	ipa.EntryCount = count

	for i := uint64(0); i < uint64(count) && br.ok(); i++ {
		var itemID uint32
		if fb.Version < 1 {
			itemID16, _ := br.readUint16()
			itemID = uint32(itemID16)
		} else {
			itemID, _ = br.readUint32()
		}
		assocCount, _ := br.readUint8()
		ipai := ItemPropertyAssociationItem{
			ItemID:            itemID,
			AssociationsCount: int(assocCount),
		}
		for j := 0; j < int(assocCount) && br.ok(); j++ {
			first, _ := br.readUint8()
			essential := first&(1<<7) != 0
			first &^= byte(1 << 7)

			var index uint16
			if fb.Flags&1 != 0 {
				second, _ := br.readUint8()
				index = uint16(first)<<8 | uint16(second)
			} else {
				index = uint16(first)
			}
			ipai.Associations = append(ipai.Associations, ItemProperty{
				Essential: essential,
				Index:     index,
			})
		}
		ipa.Entries = append(ipa.Entries, ipai)
	}
	if !br.ok() {
		return nil, br.err
	}
	return ipa, nil
}

type ImageSpatialExtentsProperty struct {
	FullBox
	ImageWidth  uint32
	ImageHeight uint32
}

func parseImageSpatialExtentsProperty(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	w, _ := br.readUint32()
	h, err := br.readUint32()
	if err != nil {
		return nil, err
	}
	return &ImageSpatialExtentsProperty{
		FullBox:     fb,
		ImageWidth:  w,
		ImageHeight: h,
	}, nil
}

type OffsetLength struct {
	Offset, Length uint64
}

// not a box
type ItemLocationBoxEntry struct {
	ItemID             uint32
	ConstructionMethod uint8 // actually uint4
	DataReferenceIndex uint16
	BaseOffset         uint64 // uint32 or uint64, depending on encoding
	ExtentCount        uint16
	Extents            []OffsetLength
}

// box "iloc"
type ItemLocationBox struct {
	FullBox

	offsetSize, lengthSize, baseOffsetSize, indexSize uint8 // actually uint4

	ItemCount uint32
	Items     []ItemLocationBoxEntry
}

func parseItemLocationBox(outer *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(outer, br)
	if err != nil {
		return nil, err
	}
	if fb.Version > 2 {
		return nil, fmt.Errorf("unsupported iloc version %d", fb.Version)
	}
	ilb := &ItemLocationBox{
		FullBox: fb,
	}
	sizes, err := br.next(2)
	if err != nil {
		return nil, err
	}
	ilb.offsetSize = sizes[0] >> 4
	ilb.lengthSize = sizes[0] & 15
	ilb.baseOffsetSize = sizes[1] >> 4
	if fb.Version > 0 {
		ilb.indexSize = sizes[1] & 15
	}
	for _, s := range []uint8{ilb.offsetSize, ilb.lengthSize, ilb.baseOffsetSize, ilb.indexSize} {
		if s != 0 && s != 4 && s != 8 {
			return nil, fmt.Errorf("invalid iloc field size %d", s)
		}
	}

	if fb.Version < 2 {
		n, _ := br.readUint16()
		ilb.ItemCount = uint32(n)
	} else {
		ilb.ItemCount, _ = br.readUint32()
	}

	for i := uint32(0); br.ok() && i < ilb.ItemCount; i++ {
		var ent ItemLocationBoxEntry
		if fb.Version < 2 {
			id, _ := br.readUint16()
			ent.ItemID = uint32(id)
		} else {
			ent.ItemID, _ = br.readUint32()
		}
		if fb.Version > 0 {
			cmeth, _ := br.readUint16()
			ent.ConstructionMethod = byte(cmeth & 15)
		}
		ent.DataReferenceIndex, _ = br.readUint16()
		ent.BaseOffset, _ = br.readUintN(ilb.baseOffsetSize * 8)
		ent.ExtentCount, _ = br.readUint16()
		for j := 0; br.ok() && j < int(ent.ExtentCount); j++ {
			var ol OffsetLength
			// extent_index is only meaningful with construction method 2.
			br.readUintN(ilb.indexSize * 8)
			ol.Offset, _ = br.readUintN(ilb.offsetSize * 8)
			ol.Length, _ = br.readUintN(ilb.lengthSize * 8)
			ent.Extents = append(ent.Extents, ol)
		}
		ilb.Items = append(ilb.Items, ent)
	}
	if !br.ok() {
		return nil, br.err
	}
	return ilb, nil
}

// a "hdlr" box.
type HandlerBox struct {
	FullBox
	HandlerType string // always 4 bytes; usually "pict" for iOS Camera images
	Name        string
}

func parseHandlerBox(gen *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(gen, br)
	if err != nil {
		return nil, err
	}
	hb := &HandlerBox{
		FullBox: fb,
	}
	buf, err := br.next(20)
	if err != nil {
		return nil, err
	}
	hb.HandlerType = string(buf[4:8])

	// Some writers omit the terminating NUL of an empty name.
	if br.anyRemain() {
		hb.Name, _ = br.readString()
	}
	return hb, br.err
}

// a "dref" box.
type DataReferenceBox struct {
	FullBox
	EntryCount uint32
	Children   []Box
}

func (drb *DataReferenceBox) ChildBoxes() []Box { return drb.Children }

func parseDataReferenceBox(gen *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(gen, br)
	if err != nil {
		return nil, err
	}
	drb := &DataReferenceBox{FullBox: fb}
	drb.EntryCount, _ = br.readUint32()
	return drb, br.parseAppendBoxes(&drb.Children)
}

// "pitm" box
type PrimaryItemBox struct {
	FullBox
	ItemID uint32
}

func parsePrimaryItemBox(gen *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(gen, br)
	if err != nil {
		return nil, err
	}
	pib := &PrimaryItemBox{FullBox: fb}
	if fb.Version == 0 {
		id, _ := br.readUint16()
		pib.ItemID = uint32(id)
	} else {
		pib.ItemID, _ = br.readUint32()
	}
	if !br.ok() {
		return nil, br.err
	}
	return pib, nil
}

// ItemDataBox is an "idat" box. It is a plain box: Data is the whole body.
type ItemDataBox struct {
	*box
	Data []byte
}

func parseItemDataBox(gen *box, br *bufReader) (Box, error) {
	return &ItemDataBox{box: gen, Data: br.rest()}, nil
}

// ImageRotation is a HEIF "irot" rotation property.
type ImageRotation struct {
	*box
	Angle uint8 // 1 means 90 degrees counter-clockwise, 2 means 180 counter-clockwise
}

func parseImageRotation(gen *box, br *bufReader) (Box, error) {
	v, err := br.readUint8()
	if err != nil {
		return nil, err
	}
	return &ImageRotation{box: gen, Angle: v & 3}, nil
}

// ImageMirror is a HEIF "imir" mirror property.
const (
	MirrorVertical   uint8 = 0
	MirrorHorizontal uint8 = 1
)

type ImageMirror struct {
	*box
	Mirror uint8
}

func parseImageMirror(gen *box, br *bufReader) (Box, error) {
	v, err := br.readUint8()
	if err != nil {
		return nil, err
	}
	return &ImageMirror{box: gen, Mirror: v & 1}, nil
}

// ItemHevcConfigBox is a HEIF "hvcC" property
type hevcConfig struct {
	version                          uint8
	generalProfileSpace              uint8
	generalTierFlag                  uint8
	generalProfileIdc                uint8
	generalProfileCompatibilityFlags uint32

	generalLevelIdc uint8

	minSpatialSegmentationIdc uint16
	parallelismType           uint8
	chromaFormat              uint8
	bitDepthLuma              uint8
	bitDepthChroma            uint8
	avgFrameRate              uint16

	constantFrameRate uint8
	numTemporalLayers uint8
	temporalIdNested  uint8
}

type hevcNalArray struct {
	completeness uint8
	unitType     uint8
	units        [][]byte
}

type ItemHevcConfigBox struct {
	*box
	config   hevcConfig
	nalArray []*hevcNalArray
}

// ChromaFormat returns chroma_format_idc (0 monochrome, 1 4:2:0, 2 4:2:2, 3 4:4:4).
func (ib *ItemHevcConfigBox) ChromaFormat() uint8 { return ib.config.chromaFormat }

// BitDepthLuma returns the luma bit depth.
func (ib *ItemHevcConfigBox) BitDepthLuma() uint8 { return ib.config.bitDepthLuma + 8 }

// AsHeader returns the parameter set NAL units, each prefixed with its
// 4-byte big-endian length, ready to be pushed to a decoder ahead of the
// item's own NAL units.
func (ib *ItemHevcConfigBox) AsHeader() []byte {
	var out []byte
	for _, na := range ib.nalArray {
		for _, unit := range na.units {
			out = binary.BigEndian.AppendUint32(out, uint32(len(unit)))
			out = append(out, unit...)
		}
	}

	return out
}

func parseItemHevcConfigBox(gen *box, br *bufReader) (Box, error) {
	ib := &ItemHevcConfigBox{box: gen}

	c := &ib.config
	c.version, _ = br.readUint8()

	ch, _ := br.readUint8()
	c.generalProfileSpace = (ch >> 6) & 3
	c.generalTierFlag = (ch >> 5) & 1
	c.generalProfileIdc = ch & 0x1F

	c.generalProfileCompatibilityFlags, _ = br.readUint32()

	// general_constraint_indicator_flags
	br.next(6)

	c.generalLevelIdc, _ = br.readUint8()
	c.minSpatialSegmentationIdc, _ = br.readUint16()
	c.minSpatialSegmentationIdc &= 0x0FFF
	c.parallelismType, _ = br.readUint8()
	c.parallelismType &= 3
	c.chromaFormat, _ = br.readUint8()
	c.chromaFormat &= 3
	c.bitDepthLuma, _ = br.readUint8()
	c.bitDepthLuma &= 7
	c.bitDepthChroma, _ = br.readUint8()
	c.bitDepthChroma &= 7
	c.avgFrameRate, _ = br.readUint16()

	ch, _ = br.readUint8()
	c.constantFrameRate = (ch >> 6) & 0x03
	c.numTemporalLayers = (ch >> 3) & 0x07
	c.temporalIdNested = (ch >> 2) & 1

	numArrays, err := br.readUint8()
	if err != nil {
		return nil, err
	}

	for i := 0; i < int(numArrays) && br.ok(); i++ {
		ch, _ := br.readUint8()

		na := &hevcNalArray{}
		na.completeness = (ch >> 7) & 1
		na.unitType = ch & 0x3F

		numUnits, _ := br.readUint16()
		for j := 0; j < int(numUnits) && br.ok(); j++ {
			size, _ := br.readUint16()
			if size == 0 { // ignore empty NAL units
				continue
			}
			unit, err := br.next(int(size))
			if err != nil {
				return nil, err
			}
			na.units = append(na.units, unit)
		}

		ib.nalArray = append(ib.nalArray, na)
	}

	if !br.ok() {
		return nil, br.err
	}

	return ib, nil
}

type av1Config struct {
	marker                           uint8  // must be 1
	version                          uint8  // must be 1
	seqProfile                       uint8  // 3 bits
	seqLevelIdx0                     uint8  // 5 bits
	seqTier0                         uint8  // 1 bit
	highBitdepth                     uint8  // 1 bit
	twelveBit                        uint8  // 1 bit
	monochrome                       uint8  // 1 bit
	chromaSubsamplingX               uint8  // 1 bit
	chromaSubsamplingY               uint8  // 1 bit
	chromaSamplePosition             uint8  // 2 bits
	initialPresentationDelayPresent  uint8  // 1 bit
	initialPresentationDelayMinusOne uint8  // 4 bits (optional)
	configOBUs                       []byte // remaining bytes
}

type ItemAv1ConfigBox struct {
	*box
	config av1Config
}

// ConfigOBUs returns the configuration OBUs carried by the box, which a
// decoder expects ahead of the item data.
func (ib *ItemAv1ConfigBox) ConfigOBUs() []byte { return ib.config.configOBUs }

// Monochrome reports whether the sequence has no chroma planes.
func (ib *ItemAv1ConfigBox) Monochrome() bool { return ib.config.monochrome == 1 }

func parseItemAv1ConfigBox(gen *box, br *bufReader) (Box, error) {
	ib := &ItemAv1ConfigBox{box: gen}
	c := &ib.config

	hdr, err := br.next(4)
	if err != nil {
		return nil, err
	}
	c.marker = (hdr[0] >> 7) & 1
	c.version = hdr[0] & 0x7F

	c.seqProfile = (hdr[1] >> 5) & 0x07
	c.seqLevelIdx0 = hdr[1] & 0x1F

	c.seqTier0 = (hdr[2] >> 7) & 1
	c.highBitdepth = (hdr[2] >> 6) & 1
	c.twelveBit = (hdr[2] >> 5) & 1
	c.monochrome = (hdr[2] >> 4) & 1
	c.chromaSubsamplingX = (hdr[2] >> 3) & 1
	c.chromaSubsamplingY = (hdr[2] >> 2) & 1
	c.chromaSamplePosition = hdr[2] & 0x03

	c.initialPresentationDelayPresent = (hdr[3] >> 4) & 1
	if c.initialPresentationDelayPresent == 1 {
		c.initialPresentationDelayMinusOne = hdr[3] & 0x0F
	}

	c.configOBUs = br.rest()
	return ib, nil
}
