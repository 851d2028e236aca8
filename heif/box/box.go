// Package box holds the normalized box tree of a HEIF file.
//
// A Tree is an arena of Nodes addressed by NodeID. Children are owned
// by the tree and listed in file order; a node refers to its parent by
// index only. A tree is never modified after Build returns, so it may be
// shared between goroutines.
package box

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/isore/isore/heif/bmff"
)

// NodeID addresses a node within its Tree.
type NodeID int

// NoParent is the Parent of root nodes.
const NoParent NodeID = -1

// ErrKindMismatch is returned by Tree.Expect when a node has another kind.
var ErrKindMismatch = errors.New("box: kind mismatch")

// Node is one box. Its fields must not be modified.
type Node struct {
	ID   NodeID
	Kind Kind
	Type bmff.BoxType

	Start      int64 // offset of the header in the file
	HeaderSize int64
	Size       int64 // as declared; 0 means "to end of file"

	// Payload holds the raw body of mdat, idat and unparsed boxes.
	// It aliases the file buffer.
	Payload []byte

	// ItemID is set on "infe" nodes only.
	ItemID    uint32
	HasItemID bool

	// UserType is the extended type of "uuid" boxes.
	UserType uuid.UUID

	// Box is the parsed box, or nil for unknown types.
	Box bmff.Box

	Parent   NodeID
	Children []NodeID
}

// Is reports whether n has kind k.
func (n *Node) Is(k Kind) bool { return n.Kind == k }

// Opaque reports whether the node carries no parsed fields.
func (n *Node) Opaque() bool { return n.Box == nil }

// Tree is the normalized box tree of one file.
type Tree struct {
	nodes []Node
	roots []NodeID
}

// Parse tokenizes buf and builds its tree.
func Parse(buf []byte) (*Tree, error) {
	boxes, err := bmff.NewReader(buf).ReadAll()
	if err != nil {
		return nil, err
	}
	return Build(boxes)
}

// Build normalizes tokenizer output into a Tree, preserving order.
// Boxes the tokenizer does not know become opaque nodes.
func Build(roots []bmff.Box) (*Tree, error) {
	t := &Tree{}
	for _, b := range roots {
		if _, err := t.add(b, NoParent, KindUnknown); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tree) add(b bmff.Box, parent NodeID, parentKind Kind) (NodeID, error) {
	pb, err := b.Parse()
	if errors.Is(err, bmff.ErrUnknownBox) {
		pb, err = nil, nil
	}
	if err != nil {
		return 0, err
	}

	id := NodeID(len(t.nodes))
	n := Node{
		ID:         id,
		Kind:       KindOf(b.Type(), parentKind),
		Type:       b.Type(),
		Start:      b.Start(),
		HeaderSize: b.HeaderSize(),
		Size:       b.Size(),
		Box:        pb,
		Parent:     parent,
	}
	switch v := pb.(type) {
	case nil:
		n.Payload = b.Body()
	case *bmff.ItemDataBox:
		n.Payload = v.Data
	case *bmff.ItemInfoEntry:
		n.ItemID, n.HasItemID = v.ItemID, true
	}
	if ut, ok := b.(interface{ UserType() ([16]byte, bool) }); ok {
		if raw, isUUID := ut.UserType(); isUUID {
			n.UserType = uuid.UUID(raw)
		}
	}

	t.nodes = append(t.nodes, n)
	if parent == NoParent {
		t.roots = append(t.roots, id)
	} else {
		t.nodes[parent].Children = append(t.nodes[parent].Children, id)
	}

	if c, ok := pb.(bmff.Container); ok {
		for _, child := range c.ChildBoxes() {
			if _, err := t.add(child, id, n.Kind); err != nil {
				return 0, err
			}
		}
	}
	return id, nil
}

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Roots returns the top-level boxes in file order.
func (t *Tree) Roots() []NodeID { return t.roots }

// Node returns the node with the given id, or nil if there is none.
func (t *Tree) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(t.nodes) {
		return nil
	}
	return &t.nodes[id]
}

// Parent returns the parent of id, if any.
func (t *Tree) Parent(id NodeID) (NodeID, bool) {
	n := t.Node(id)
	if n == nil || n.Parent == NoParent {
		return NoParent, false
	}
	return n.Parent, true
}

// Child returns the first direct child of id with kind k.
func (t *Tree) Child(id NodeID, k Kind) (NodeID, bool) {
	n := t.Node(id)
	if n == nil {
		return NoParent, false
	}
	for _, c := range n.Children {
		if t.nodes[c].Kind == k {
			return c, true
		}
	}
	return NoParent, false
}

// ChildrenOf returns every direct child of id with kind k, in file order.
func (t *Tree) ChildrenOf(id NodeID, k Kind) []NodeID {
	n := t.Node(id)
	if n == nil {
		return nil
	}
	var out []NodeID
	for _, c := range n.Children {
		if t.nodes[c].Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// FindRoot returns the first top-level box with kind k.
func (t *Tree) FindRoot(k Kind) (NodeID, bool) {
	for _, r := range t.roots {
		if t.nodes[r].Kind == k {
			return r, true
		}
	}
	return NoParent, false
}

// Expect returns the node id if it has kind k. Otherwise the error wraps
// ErrKindMismatch.
func (t *Tree) Expect(id NodeID, k Kind) (*Node, error) {
	n := t.Node(id)
	if n == nil {
		return nil, fmt.Errorf("%w: expected a %s box but node %d does not exist", ErrKindMismatch, k, id)
	}
	if n.Kind != k {
		return nil, fmt.Errorf("%w: expected a %s box but got %q (%s)", ErrKindMismatch, k, n.Type, n.Kind)
	}
	return n, nil
}

// Walk visits every node depth-first in file order. Returning a non-nil
// error from fn stops the walk.
func (t *Tree) Walk(fn func(n *Node, depth int) error) error {
	var visit func(id NodeID, depth int) error
	visit = func(id NodeID, depth int) error {
		n := &t.nodes[id]
		if err := fn(n, depth); err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := visit(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range t.roots {
		if err := visit(r, 0); err != nil {
			return err
		}
	}
	return nil
}
