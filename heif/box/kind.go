package box

import "github.com/isore/isore/heif/bmff"

// Kind is the closed set of box kinds the tree understands. Anything
// else is KindUnknown and keeps its raw type code and bytes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindFtyp
	KindMeta
	KindHdlr
	KindPitm
	KindIinf
	KindInfe
	KindIloc
	KindIprp
	KindIpco
	KindIpma
	KindIref
	KindItemRef // child of iref; Node.Type holds the reference type
	KindIdat
	KindIspe
	KindIrot
	KindImir
	KindHvcC
	KindAv1C
	KindUncC
	KindCmpd
	KindMdat
	KindMoov
	KindTrak
	KindMdia
	KindMinf
	KindStbl
	KindEdts
	KindDinf
	KindDref
	KindFree
	KindUUID
)

var kindCodes = map[Kind]string{
	KindFtyp: "ftyp",
	KindMeta: "meta",
	KindHdlr: "hdlr",
	KindPitm: "pitm",
	KindIinf: "iinf",
	KindInfe: "infe",
	KindIloc: "iloc",
	KindIprp: "iprp",
	KindIpco: "ipco",
	KindIpma: "ipma",
	KindIref: "iref",
	KindIdat: "idat",
	KindIspe: "ispe",
	KindIrot: "irot",
	KindImir: "imir",
	KindHvcC: "hvcC",
	KindAv1C: "av1C",
	KindUncC: "uncC",
	KindCmpd: "cmpd",
	KindMdat: "mdat",
	KindMoov: "moov",
	KindTrak: "trak",
	KindMdia: "mdia",
	KindMinf: "minf",
	KindStbl: "stbl",
	KindEdts: "edts",
	KindDinf: "dinf",
	KindDref: "dref",
	KindFree: "free",
	KindUUID: "uuid",
}

var kindsByType = func() map[bmff.BoxType]Kind {
	m := make(map[bmff.BoxType]Kind, len(kindCodes))
	for k, s := range kindCodes {
		m[bmff.BoxType{s[0], s[1], s[2], s[3]}] = k
	}
	m[bmff.BoxType{'s', 'k', 'i', 'p'}] = KindFree
	return m
}()

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindItemRef:
		return "item reference"
	}
	if s, ok := kindCodes[k]; ok {
		return s
	}
	return "invalid"
}

// KindOf classifies a box type. Children of an "iref" box are item
// references whatever their type code.
func KindOf(t bmff.BoxType, parent Kind) Kind {
	if parent == KindIref {
		return KindItemRef
	}
	return kindsByType[t]
}
