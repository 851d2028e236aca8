package heif

import (
	"fmt"
	"math/bits"

	"github.com/isore/isore/heif/bmff"
	"github.com/isore/isore/heif/box"
)

// Meta is a handle on a "meta" box of a tree. All item queries are
// answered from the boxes directly under it.
type Meta struct {
	t  *box.Tree
	id box.NodeID
}

// NewMeta returns a handle on node id, which must be a "meta" box.
func NewMeta(t *box.Tree, id box.NodeID) (Meta, error) {
	if _, err := t.Expect(id, box.KindMeta); err != nil {
		return Meta{}, err
	}
	return Meta{t: t, id: id}, nil
}

// Tree returns the tree the handle points into.
func (m Meta) Tree() *box.Tree { return m.t }

// Node returns the meta box itself.
func (m Meta) Node() *box.Node { return m.t.Node(m.id) }

func (m Meta) child(k box.Kind) (*box.Node, bool) {
	id, ok := m.t.Child(m.id, k)
	if !ok {
		return nil, false
	}
	return m.t.Node(id), true
}

// ConstructionMethod selects the buffer an item's offsets are relative to.
type ConstructionMethod uint8

const (
	FileOffset     ConstructionMethod = 0 // whole file
	ItemDataOffset ConstructionMethod = 1 // payload of the meta box's idat
	ItemOffset     ConstructionMethod = 2 // other items; not supported
)

func (c ConstructionMethod) String() string {
	switch c {
	case FileOffset:
		return "file"
	case ItemDataOffset:
		return "idat"
	case ItemOffset:
		return "item"
	}
	return fmt.Sprintf("method(%d)", uint8(c))
}

// ByteRange is the resolved location of an item's data.
type ByteRange struct {
	Offset uint64 // within the source buffer
	Length uint64
	Method ConstructionMethod

	// Data aliases the source buffer; it must not be modified.
	Data []byte
}

// Location returns the iloc entry of an item. ok is false if the meta box
// has no iloc or the item has no entry.
func (m Meta) Location(itemID uint32) (loc *bmff.ItemLocationBoxEntry, ok bool) {
	n, ok := m.child(box.KindIloc)
	if !ok {
		return nil, false
	}
	iloc := n.Box.(*bmff.ItemLocationBox)
	for i := range iloc.Items {
		if iloc.Items[i].ItemID == itemID {
			return &iloc.Items[i], true
		}
	}
	return nil, false
}

// Locate resolves the bytes of an item. file is the whole file the tree
// was built from.
//
// ok is false, with a nil error, when the item has no location: that is
// valid for items without data. Items split over several extents are not
// supported and fail with ErrUnsupported.
func (m Meta) Locate(file []byte, itemID uint32) (r ByteRange, ok bool, err error) {
	loc, ok := m.Location(itemID)
	if !ok {
		return ByteRange{}, false, nil
	}
	if n := len(loc.Extents); n != 1 {
		return ByteRange{}, true, fmt.Errorf("%w: item %d has %d extents, only 1 is supported", ErrUnsupported, itemID, n)
	}
	if loc.DataReferenceIndex != 0 {
		return ByteRange{}, true, fmt.Errorf("%w: item %d refers to external data (data_reference_index %d)", ErrUnsupported, itemID, loc.DataReferenceIndex)
	}

	var src []byte
	method := ConstructionMethod(loc.ConstructionMethod)
	switch method {
	case FileOffset:
		src = file
	case ItemDataOffset:
		idat, ok := m.child(box.KindIdat)
		if !ok {
			return ByteRange{}, true, fmt.Errorf("%w: item %d uses construction method 1 but meta has no idat box", ErrMalformed, itemID)
		}
		src = idat.Payload
	default:
		return ByteRange{}, true, fmt.Errorf("%w: item %d uses construction method %d", ErrUnsupported, itemID, loc.ConstructionMethod)
	}

	ext := loc.Extents[0]
	offset, carry := bits.Add64(loc.BaseOffset, ext.Offset, 0)
	if carry != 0 {
		return ByteRange{}, true, fmt.Errorf("%w: item %d offset overflows", ErrOutOfBounds, itemID)
	}
	length := ext.Length
	end, carry := bits.Add64(offset, length, 0)
	if carry != 0 || end > uint64(len(src)) {
		return ByteRange{}, true, fmt.Errorf("%w: item %d spans [%d, %d) of a %d byte %s buffer",
			ErrOutOfBounds, itemID, offset, offset+length, len(src), method)
	}
	return ByteRange{
		Offset: offset,
		Length: length,
		Method: method,
		Data:   src[offset:end:end],
	}, true, nil
}

// PropertiesOf returns the property boxes associated with an item, in the
// order the association lists them.
//
// ok is false, with a nil error, when no association names the item.
// Index 0 means "no property" and is skipped.
func (m Meta) PropertiesOf(itemID uint32) (props []*box.Node, ok bool, err error) {
	iprp, hasIprp := m.child(box.KindIprp)
	if !hasIprp {
		return nil, false, nil
	}
	var entry *bmff.ItemPropertyAssociationItem
	for _, id := range m.t.ChildrenOf(iprp.ID, box.KindIpma) {
		ipma := m.t.Node(id).Box.(*bmff.ItemPropertyAssociation)
		for i := range ipma.Entries {
			if ipma.Entries[i].ItemID == itemID {
				entry = &ipma.Entries[i]
				break
			}
		}
		if entry != nil {
			break
		}
	}
	if entry == nil {
		return nil, false, nil
	}

	ipcoID, hasIpco := m.t.Child(iprp.ID, box.KindIpco)
	if !hasIpco {
		return nil, true, fmt.Errorf("%w: item %d has property associations but iprp has no ipco box", ErrMalformed, itemID)
	}
	all := m.t.Node(ipcoID).Children
	props = make([]*box.Node, 0, len(entry.Associations))
	for _, a := range entry.Associations {
		if a.Index == 0 {
			continue
		}
		if int(a.Index) > len(all) {
			return nil, true, fmt.Errorf("%w: item %d refers to property %d but ipco holds %d", ErrMalformed, itemID, a.Index, len(all))
		}
		props = append(props, m.t.Node(all[a.Index-1]))
	}
	return props, true, nil
}

// ItemReference is one typed edge from an item to other items.
type ItemReference struct {
	From uint32
	Kind bmff.BoxType
	To   []uint32
	Node box.NodeID
}

func (m Meta) references(match func(*bmff.ItemReferenceEntry) bool, kinds []bmff.BoxType) []ItemReference {
	iref, ok := m.child(box.KindIref)
	if !ok {
		return nil
	}
	var out []ItemReference
	for _, id := range iref.Children {
		n := m.t.Node(id)
		e, ok := n.Box.(*bmff.ItemReferenceEntry)
		if !ok || !match(e) || !kindMatches(n.Type, kinds) {
			continue
		}
		out = append(out, ItemReference{From: e.FromItemID, Kind: n.Type, To: e.ToItemIDs, Node: id})
	}
	return out
}

func kindMatches(t bmff.BoxType, kinds []bmff.BoxType) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == t {
			return true
		}
	}
	return false
}

// ReferencesFrom returns the references whose source is itemID, in file
// order, optionally restricted to the given reference types.
func (m Meta) ReferencesFrom(itemID uint32, kinds ...bmff.BoxType) []ItemReference {
	return m.references(func(e *bmff.ItemReferenceEntry) bool {
		return e.FromItemID == itemID
	}, kinds)
}

// ReferencesTo returns the references that point at itemID.
func (m Meta) ReferencesTo(itemID uint32, kinds ...bmff.BoxType) []ItemReference {
	return m.references(func(e *bmff.ItemReferenceEntry) bool {
		for _, to := range e.ToItemIDs {
			if to == itemID {
				return true
			}
		}
		return false
	}, kinds)
}

// SingleReference returns the one reference of type kind from itemID.
// With none the error wraps ErrMissingReference. With several, the first
// in file order is returned together with a warning.
func (m Meta) SingleReference(itemID uint32, kind bmff.BoxType) (ItemReference, *Warning, error) {
	refs := m.ReferencesFrom(itemID, kind)
	switch len(refs) {
	case 0:
		return ItemReference{}, nil, fmt.Errorf("%w: item %d has no %q reference", ErrMissingReference, itemID, kind)
	case 1:
		return refs[0], nil, nil
	}
	return refs[0], &Warning{
		ItemID:  itemID,
		Kind:    kind,
		Count:   len(refs),
		Message: fmt.Sprintf("%d %q references, using the first", len(refs), kind),
	}, nil
}

// ItemInfo returns the infe entry of an item.
func (m Meta) ItemInfo(itemID uint32) (*bmff.ItemInfoEntry, box.NodeID, bool) {
	iinf, ok := m.child(box.KindIinf)
	if !ok {
		return nil, box.NoParent, false
	}
	for _, id := range iinf.Children {
		n := m.t.Node(id)
		if n.HasItemID && n.ItemID == itemID {
			return n.Box.(*bmff.ItemInfoEntry), id, true
		}
	}
	return nil, box.NoParent, false
}

// ItemInfos returns every infe entry in file order.
func (m Meta) ItemInfos() []*bmff.ItemInfoEntry {
	iinf, ok := m.child(box.KindIinf)
	if !ok {
		return nil
	}
	var out []*bmff.ItemInfoEntry
	for _, id := range iinf.Children {
		if ie, ok := m.t.Node(id).Box.(*bmff.ItemInfoEntry); ok {
			out = append(out, ie)
		}
	}
	return out
}

// PrimaryItemID returns the id named by the pitm box.
func (m Meta) PrimaryItemID() (uint32, bool) {
	n, ok := m.child(box.KindPitm)
	if !ok {
		return 0, false
	}
	return n.Box.(*bmff.PrimaryItemBox).ItemID, true
}

// FindProperty returns the first property of type T in props.
func FindProperty[T bmff.Box](props []*box.Node) (T, bool) {
	for _, p := range props {
		if v, ok := p.Box.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}
