package isore

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/isore/isore/heif"
	"github.com/isore/isore/heif/bmff"
)

// uncLayout says where each output band comes from: src[b] is the
// position of band b among the stored components.
type uncLayout struct {
	src        []int
	stored     int
	interleave uint8
}

// Profiles of uncC version 1, which carry no component list.
var uncProfiles = map[string][]uint16{
	"rgb3": {bmff.ComponentRed, bmff.ComponentGreen, bmff.ComponentBlue},
	"rgba": {bmff.ComponentRed, bmff.ComponentGreen, bmff.ComponentBlue, bmff.ComponentAlpha},
	"abgr": {bmff.ComponentAlpha, bmff.ComponentBlue, bmff.ComponentGreen, bmff.ComponentRed},
}

func uncompressedLayout(itemID uint32, uc *bmff.UncompressedConfig, cmpd *bmff.ComponentDefinition) (uncLayout, error) {
	var types []uint16
	l := uncLayout{interleave: bmff.InterleavePixel}

	switch uc.Version {
	case 1:
		var ok bool
		if types, ok = uncProfiles[uc.Profile]; !ok {
			return uncLayout{}, fmt.Errorf("%w: item %d: uncC profile %q", heif.ErrUnsupported, itemID, uc.Profile)
		}
	case 0:
		if cmpd == nil {
			return uncLayout{}, fmt.Errorf("%w: item %d: uncC version 0 without a cmpd property", heif.ErrMalformed, itemID)
		}
		switch {
		case uc.SamplingType != 0:
			return uncLayout{}, fmt.Errorf("%w: item %d: sampling type %d", heif.ErrUnsupported, itemID, uc.SamplingType)
		case uc.InterleaveType > bmff.InterleavePixel:
			return uncLayout{}, fmt.Errorf("%w: item %d: interleave type %d", heif.ErrUnsupported, itemID, uc.InterleaveType)
		case uc.BlockSize != 0, uc.PixelSize != 0, uc.RowAlignSize > 1:
			return uncLayout{}, fmt.Errorf("%w: item %d: padded or blocked samples", heif.ErrUnsupported, itemID)
		case uc.NumTileColsMinusOne != 0 || uc.NumTileRowsMinusOne != 0:
			return uncLayout{}, fmt.Errorf("%w: item %d: tiled uncompressed image", heif.ErrUnsupported, itemID)
		}
		l.interleave = uc.InterleaveType
		for _, c := range uc.Components {
			if c.BitDepthMinusOne != 7 || c.Format != 0 || c.AlignSize > 1 {
				return uncLayout{}, fmt.Errorf("%w: item %d: component of %d bits, format %d",
					heif.ErrUnsupported, itemID, int(c.BitDepthMinusOne)+1, c.Format)
			}
			if int(c.Index) >= len(cmpd.Types) {
				return uncLayout{}, fmt.Errorf("%w: item %d: component index %d but cmpd defines %d",
					heif.ErrMalformed, itemID, c.Index, len(cmpd.Types))
			}
			types = append(types, cmpd.Types[c.Index])
		}
	default:
		return uncLayout{}, fmt.Errorf("%w: item %d: uncC version %d", heif.ErrUnsupported, itemID, uc.Version)
	}

	pos := make(map[uint16]int, len(types))
	for i, t := range types {
		if _, dup := pos[t]; !dup {
			pos[t] = i
		}
	}
	want := bandOrder(len(types), pos)
	if want == nil {
		return uncLayout{}, fmt.Errorf("%w: item %d: component types %v", heif.ErrUnsupported, itemID, types)
	}
	for _, t := range want {
		i, ok := pos[t]
		if !ok {
			return uncLayout{}, fmt.Errorf("%w: item %d: component types %v", heif.ErrUnsupported, itemID, types)
		}
		l.src = append(l.src, i)
	}
	l.stored = len(types)
	return l, nil
}

// bandOrder returns the component types of the output bands for n stored
// components.
func bandOrder(n int, pos map[uint16]int) []uint16 {
	switch n {
	case 1:
		if _, ok := pos[bmff.ComponentY]; ok {
			return []uint16{bmff.ComponentY}
		}
		return []uint16{bmff.ComponentMonochrome}
	case 3:
		return []uint16{bmff.ComponentRed, bmff.ComponentGreen, bmff.ComponentBlue}
	case 4:
		return []uint16{bmff.ComponentRed, bmff.ComponentGreen, bmff.ComponentBlue, bmff.ComponentAlpha}
	}
	return nil
}

// decodeUncompressed decodes an "unci" item holding 8-bit unsigned
// components without tiling.
func decodeUncompressed(it *heif.Item) (*RawImage, error) {
	ispe, ok := heif.FindProperty[*bmff.ImageSpatialExtentsProperty](it.Properties)
	if !ok {
		return nil, fmt.Errorf("%w: unci item %d has no ispe property", heif.ErrMalformed, it.ID)
	}
	uc, ok := heif.FindProperty[*bmff.UncompressedConfig](it.Properties)
	if !ok {
		return nil, fmt.Errorf("%w: unci item %d has no uncC property", heif.ErrMalformed, it.ID)
	}
	cmpd, _ := heif.FindProperty[*bmff.ComponentDefinition](it.Properties)

	l, err := uncompressedLayout(it.ID, uc, cmpd)
	if err != nil {
		return nil, err
	}

	w, h := int(ispe.ImageWidth), int(ispe.ImageHeight)
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: unci item %d is %dx%d", heif.ErrMalformed, it.ID, w, h)
	}
	data, err := it.Data()
	if err != nil {
		return nil, err
	}
	bands := len(l.src)
	plane, hi := bits.Mul64(uint64(w), uint64(h))
	need, hiNeed := bits.Mul64(plane, uint64(l.stored))
	size, hiSize := bits.Mul64(plane, uint64(bands))
	if hi|hiNeed|hiSize != 0 || size > math.MaxInt {
		return nil, fmt.Errorf("%w: unci item %d of %dx%d with %d components is too large",
			heif.ErrMalformed, it.ID, w, h, l.stored)
	}
	if uint64(len(data)) < need {
		return nil, fmt.Errorf("%w: unci item %d holds %d bytes, %dx%d with %d components needs %d",
			heif.ErrMalformed, it.ID, len(data), w, h, l.stored, need)
	}

	pix := make([]byte, size)
	n := int(plane)
	switch l.interleave {
	case bmff.InterleavePixel:
		for p := 0; p < n; p++ {
			for b, s := range l.src {
				pix[p*bands+b] = data[p*l.stored+s]
			}
		}
	default:
		for b, s := range l.src {
			src := data[s*n : (s+1)*n]
			for p, v := range src {
				pix[p*bands+b] = v
			}
		}
	}
	return NewRawImage(pix, w, h, bands)
}
