// Package heiftest builds small HEIF files in memory for tests.
package heiftest

import (
	"encoding/binary"
)

// Box returns a plain box of type typ wrapping body.
func Box(typ string, body ...[]byte) []byte {
	if len(typ) != 4 {
		panic("heiftest: box type must be 4 bytes")
	}
	n := 8
	for _, b := range body {
		n += len(b)
	}
	out := binary.BigEndian.AppendUint32(make([]byte, 0, n), uint32(n))
	out = append(out, typ...)
	for _, b := range body {
		out = append(out, b...)
	}
	return out
}

// FullBox returns a box whose body starts with a version and 24-bit flags.
func FullBox(typ string, version uint8, flags uint32, body ...[]byte) []byte {
	hdr := U32(uint32(version)<<24 | flags&0xffffff)
	return Box(typ, append([][]byte{hdr}, body...)...)
}

func U8(v uint8) []byte   { return []byte{v} }
func U16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }
func U32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }
func U64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

// Str returns s as a NUL-terminated string.
func Str(s string) []byte { return append([]byte(s), 0) }

// Cat concatenates byte slices.
func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Ispe returns an image spatial extents property.
func Ispe(width, height uint32) []byte {
	return FullBox("ispe", 0, 0, U32(width), U32(height))
}

// Irot returns an image rotation property.
func Irot(angle uint8) []byte { return Box("irot", U8(angle)) }

// UncCProfile returns a version 1 "uncC" property naming only a profile.
func UncCProfile(profile string) []byte {
	return FullBox("uncC", 1, 0, []byte(profile))
}

// UncC returns a version 0 "uncC" property describing 8-bit unsigned
// components that refer to the given "cmpd" indices. An empty profile is
// written as four NUL bytes.
func UncC(profile string, interleave uint8, cmpdIndices ...uint16) []byte {
	p := make([]byte, 4)
	copy(p, profile)
	body := Cat(p, U32(uint32(len(cmpdIndices))))
	for _, idx := range cmpdIndices {
		body = Cat(body, U16(idx), U8(7), U8(0), U8(0))
	}
	body = Cat(body,
		U8(0),          // sampling_type
		U8(interleave), // interleave_type
		U8(0),          // block_size
		U8(0),          // flags
		U32(0),         // pixel_size
		U32(0),         // row_align_size
		U32(0),         // tile_align_size
		U32(0),         // num_tile_cols_minus_one
		U32(0),         // num_tile_rows_minus_one
	)
	return FullBox("uncC", 0, 0, body)
}

// Cmpd returns a component definition box.
func Cmpd(types ...uint16) []byte {
	body := U32(uint32(len(types)))
	for _, t := range types {
		body = Cat(body, U16(t))
	}
	return Box("cmpd", body)
}

// Grid returns an image grid descriptor. wide selects 32-bit dimensions.
func Grid(rows, columns uint8, width, height uint32, wide bool) []byte {
	if wide {
		return Cat(U8(0), U8(1), U8(rows-1), U8(columns-1), U32(width), U32(height))
	}
	return Cat(U8(0), U8(0), U8(rows-1), U8(columns-1), U16(uint16(width)), U16(uint16(height)))
}

// Item describes one item of a File.
type Item struct {
	ID          uint32
	Type        string
	Name        string
	ContentType string // for "mime" items; the URI type of "uri " items
	Hidden      bool

	Data []byte

	// Method is the declared construction method. Data is stored in the
	// "idat" box for method 1 and in "mdat" otherwise.
	Method uint8

	// Extents splits Data into that many extents; 0 means one.
	Extents int
	// ExtraLength is added to the declared length of the last extent.
	ExtraLength uint64
	// ZeroLength declares the last extent with length 0.
	ZeroLength bool

	DataReferenceIndex uint16
	NoLocation         bool

	// Props are 1-based indices into File.Props.
	Props []uint8
}

// Ref is one "iref" entry.
type Ref struct {
	Type string
	From uint32
	To   []uint32
}

// File describes a HEIF file: ftyp, meta, then mdat.
type File struct {
	Brand   string
	Primary uint32
	Items   []Item
	Props   [][]byte
	Refs    []Ref
	// Extra boxes appended to the meta box after the standard ones.
	Extra [][]byte
	// Trailing boxes appended to the file after mdat.
	Trailing [][]byte
}

type extent struct{ offset, length uint64 }

type location struct {
	item    Item
	inIdat  bool
	extents []extent
}

// Bytes serializes the file.
func (f *File) Bytes() []byte {
	brand := f.Brand
	if brand == "" {
		brand = "heic"
	}
	ftyp := Box("ftyp", []byte(brand), U32(0), []byte("mif1"), []byte(brand))

	var mdat, idat []byte
	var locs []location
	for _, it := range f.Items {
		if it.NoLocation {
			continue
		}
		dst := &mdat
		if it.Method == 1 {
			dst = &idat
		}
		start := uint64(len(*dst))
		*dst = append(*dst, it.Data...)

		n := it.Extents
		if n < 1 {
			n = 1
		}
		chunk := uint64(len(it.Data)) / uint64(n)
		loc := location{item: it, inIdat: it.Method == 1}
		for i := 0; i < n; i++ {
			e := extent{offset: start + uint64(i)*chunk, length: chunk}
			if i == n-1 {
				e.length = uint64(len(it.Data)) - uint64(i)*chunk + it.ExtraLength
				if it.ZeroLength {
					e.length = 0
				}
			}
			loc.extents = append(loc.extents, e)
		}
		locs = append(locs, loc)
	}

	meta := f.meta(locs, idat, 0)
	mdatStart := uint64(len(ftyp) + len(meta) + 8)
	meta = f.meta(locs, idat, mdatStart)

	out := Cat(ftyp, meta, Box("mdat", mdat))
	for _, b := range f.Trailing {
		out = append(out, b...)
	}
	return out
}

func (f *File) meta(locs []location, idat []byte, mdatStart uint64) []byte {
	children := [][]byte{
		FullBox("hdlr", 0, 0, U32(0), []byte("pict"), U32(0), U32(0), U32(0), Str("")),
	}
	if f.Primary != 0 {
		children = append(children, FullBox("pitm", 0, 0, U16(uint16(f.Primary))))
	}

	iinf := U16(uint16(len(f.Items)))
	for _, it := range f.Items {
		var flags uint32
		if it.Hidden {
			flags = 1
		}
		body := Cat(U16(uint16(it.ID)), U16(0), []byte(it.Type), Str(it.Name))
		if it.Type == "mime" || it.Type == "uri " {
			body = Cat(body, Str(it.ContentType))
		}
		iinf = Cat(iinf, FullBox("infe", 2, flags, body))
	}
	children = append(children, FullBox("iinf", 0, 0, iinf))

	iloc := Cat(U8(0x44), U8(0x40), U16(uint16(len(locs))))
	for _, l := range locs {
		base := mdatStart
		if l.inIdat {
			base = 0
		}
		iloc = Cat(iloc,
			U16(uint16(l.item.ID)),
			U16(uint16(l.item.Method)),
			U16(l.item.DataReferenceIndex),
			U32(uint32(base)),
			U16(uint16(len(l.extents))),
		)
		for _, e := range l.extents {
			iloc = Cat(iloc, U32(uint32(e.offset)), U32(uint32(e.length)))
		}
	}
	children = append(children, FullBox("iloc", 1, 0, iloc))

	var assoc [][]byte
	for _, it := range f.Items {
		if len(it.Props) == 0 {
			continue
		}
		entry := Cat(U16(uint16(it.ID)), U8(uint8(len(it.Props))))
		for _, p := range it.Props {
			entry = Cat(entry, U8(p))
		}
		assoc = append(assoc, entry)
	}
	if len(f.Props) > 0 || len(assoc) > 0 {
		ipma := FullBox("ipma", 0, 0, U32(uint32(len(assoc))), Cat(assoc...))
		children = append(children, Box("iprp", Box("ipco", f.Props...), ipma))
	}

	if len(f.Refs) > 0 {
		var refs [][]byte
		for _, r := range f.Refs {
			body := Cat(U16(uint16(r.From)), U16(uint16(len(r.To))))
			for _, to := range r.To {
				body = Cat(body, U16(uint16(to)))
			}
			refs = append(refs, Box(r.Type, body))
		}
		children = append(children, FullBox("iref", 0, 0, refs...))
	}

	if len(idat) > 0 {
		children = append(children, Box("idat", idat))
	}
	children = append(children, f.Extra...)
	return FullBox("meta", 0, 0, children...)
}

// RGB returns width*height*3 bytes where every pixel is (r, g, b).
func RGB(width, height int, r, g, b byte) []byte {
	out := make([]byte, 0, width*height*3)
	for i := 0; i < width*height; i++ {
		out = append(out, r, g, b)
	}
	return out
}
