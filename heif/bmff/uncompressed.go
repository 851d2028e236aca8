package bmff

// Component types of a "cmpd" box (ISO/IEC 23001-17).
const (
	ComponentMonochrome uint16 = 0
	ComponentY          uint16 = 1
	ComponentCb         uint16 = 2
	ComponentCr         uint16 = 3
	ComponentRed        uint16 = 4
	ComponentGreen      uint16 = 5
	ComponentBlue       uint16 = 6
	ComponentAlpha      uint16 = 7
)

// Interleave types of an "uncC" box.
const (
	InterleaveComponent uint8 = 0
	InterleavePixel     uint8 = 1
)

// UncompressedComponent describes one component of an "uncC" box. Index
// refers to an entry of the item's "cmpd" box.
type UncompressedComponent struct {
	Index            uint16
	BitDepthMinusOne uint8
	Format           uint8 // 0 unsigned integer, 1 float, 2 complex
	AlignSize        uint8
}

// UncompressedConfig is an "uncC" property.
//
// Version 1 carries only a profile; its component layout is implied by
// the profile and no "cmpd" box is needed. Other versions than 0 and 1
// are returned with only the FullBox header set.
type UncompressedConfig struct {
	FullBox
	Profile    string
	Components []UncompressedComponent

	SamplingType   uint8
	InterleaveType uint8
	BlockSize      uint8

	ComponentsLittleEndian bool
	BlockPadLSB            bool
	BlockLittleEndian      bool
	BlockReversed          bool
	PadUnknown             bool

	PixelSize           uint32
	RowAlignSize        uint32
	TileAlignSize       uint32
	NumTileColsMinusOne uint32
	NumTileRowsMinusOne uint32
}

func parseUncompressedConfig(gen *box, br *bufReader) (Box, error) {
	fb, err := readFullBox(gen, br)
	if err != nil {
		return nil, err
	}
	uc := &UncompressedConfig{FullBox: fb}
	switch fb.Version {
	case 1:
		uc.Profile, _ = br.readFourCC()
		return uc, br.err
	case 0:
	default:
		return uc, nil
	}

	uc.Profile, _ = br.readFourCC()
	count, _ := br.readUint32()
	for i := uint32(0); i < count && br.ok(); i++ {
		var c UncompressedComponent
		c.Index, _ = br.readUint16()
		c.BitDepthMinusOne, _ = br.readUint8()
		c.Format, _ = br.readUint8()
		c.AlignSize, _ = br.readUint8()
		uc.Components = append(uc.Components, c)
	}
	uc.SamplingType, _ = br.readUint8()
	uc.InterleaveType, _ = br.readUint8()
	uc.BlockSize, _ = br.readUint8()
	flags, _ := br.readUint8()
	uc.ComponentsLittleEndian = flags&0x80 != 0
	uc.BlockPadLSB = flags&0x40 != 0
	uc.BlockLittleEndian = flags&0x20 != 0
	uc.BlockReversed = flags&0x10 != 0
	uc.PadUnknown = flags&0x08 != 0
	uc.PixelSize, _ = br.readUint32()
	uc.RowAlignSize, _ = br.readUint32()
	uc.TileAlignSize, _ = br.readUint32()
	uc.NumTileColsMinusOne, _ = br.readUint32()
	uc.NumTileRowsMinusOne, _ = br.readUint32()
	if !br.ok() {
		return nil, br.err
	}
	return uc, nil
}

// ComponentDefinition is a "cmpd" box. It is a plain box, not a full box.
type ComponentDefinition struct {
	*box
	Types []uint16
	URIs  []string // parallel to Types; empty unless Types[i] >= 0x8000
}

func parseComponentDefinition(gen *box, br *bufReader) (Box, error) {
	cd := &ComponentDefinition{box: gen}
	count, _ := br.readUint32()
	for i := uint32(0); i < count && br.ok(); i++ {
		t, _ := br.readUint16()
		var uri string
		if t >= 0x8000 {
			uri, _ = br.readString()
		}
		cd.Types = append(cd.Types, t)
		cd.URIs = append(cd.URIs, uri)
	}
	if !br.ok() {
		return nil, br.err
	}
	return cd, nil
}
