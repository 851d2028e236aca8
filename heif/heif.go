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

// Package heif reads HEIF containers, as found in Apple HEIC/HEVC images.
// This package does not decode images; it locates items, their properties
// and their references.
//
// This package is a work in progress and makes no API compatibility
// promises.
package heif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"github.com/isore/isore/heif/bmff"
	"github.com/isore/isore/heif/box"
)

// File represents a HEIF file held in memory.
//
// A File is not modified after Open returns; its methods may be called
// concurrently.
type File struct {
	buf  []byte
	tree *box.Tree
	meta Meta

	logger *slog.Logger
	warn   func(*Warning)
}

// Option configures a File.
type Option func(*File)

// WithLogger sets the logger used for data-quality warnings when no
// warning handler is installed.
func WithLogger(l *slog.Logger) Option {
	return func(f *File) {
		f.logger = l
	}
}

// WithWarningHandler installs fn to receive data-quality warnings.
func WithWarningHandler(fn func(*Warning)) Option {
	return func(f *File) {
		f.warn = fn
	}
}

// Open parses buf and returns a handle to access it. buf must hold the
// whole file and must not be modified while the File is in use.
func Open(buf []byte, opts ...Option) (*File, error) {
	f := &File{buf: buf, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}

	tree, err := box.Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	f.tree = tree

	metaID, ok := tree.FindRoot(box.KindMeta)
	if !ok {
		return nil, fmt.Errorf("%w: file has no top-level meta box", ErrMalformed)
	}
	if f.meta, err = NewMeta(tree, metaID); err != nil {
		return nil, err
	}
	return f, nil
}

// Bytes returns the file contents.
func (f *File) Bytes() []byte { return f.buf }

// Tree returns the box tree.
func (f *File) Tree() *box.Tree { return f.tree }

// Meta returns the top-level meta box.
func (f *File) Meta() Meta { return f.meta }

// FileType returns the ftyp box, if the file has one.
func (f *File) FileType() (*bmff.FileTypeBox, bool) {
	id, ok := f.tree.FindRoot(box.KindFtyp)
	if !ok {
		return nil, false
	}
	return f.tree.Node(id).Box.(*bmff.FileTypeBox), true
}

func (f *File) report(w *Warning) {
	if f.warn != nil {
		f.warn(w)
		return
	}
	f.logger.Warn("heif data quality", "item", w.ItemID, "type", w.Kind.String(), "count", w.Count, "msg", w.Message)
}

// Locate resolves the bytes of an item. See Meta.Locate.
func (f *File) Locate(itemID uint32) (ByteRange, bool, error) {
	return f.meta.Locate(f.buf, itemID)
}

// PropertiesOf returns the properties of an item. See Meta.PropertiesOf.
func (f *File) PropertiesOf(itemID uint32) ([]*box.Node, bool, error) {
	return f.meta.PropertiesOf(itemID)
}

// ReferencesFrom returns the references from an item.
func (f *File) ReferencesFrom(itemID uint32, kinds ...bmff.BoxType) []ItemReference {
	return f.meta.ReferencesFrom(itemID, kinds...)
}

// ReferencesTo returns the references pointing at an item.
func (f *File) ReferencesTo(itemID uint32, kinds ...bmff.BoxType) []ItemReference {
	return f.meta.ReferencesTo(itemID, kinds...)
}

// SingleReference is Meta.SingleReference, reporting any warning to the
// file's warning handler or logger.
func (f *File) SingleReference(itemID uint32, kind bmff.BoxType) (ItemReference, error) {
	ref, w, err := f.meta.SingleReference(itemID, kind)
	if w != nil {
		f.report(w)
	}
	return ref, err
}

// Item represents an item in a HEIF file.
type Item struct {
	f *File

	ID         uint32
	Node       box.NodeID
	Info       *bmff.ItemInfoEntry
	Location   *bmff.ItemLocationBoxEntry // nil if the item has no data
	Properties []*box.Node
	References []ItemReference
}

// Type classifies the item's declared type.
func (it *Item) Type() ItemType { return ParseItemType(it.Info.ItemType) }

// Reference returns the first reference of the given type.
func (it *Item) Reference(name string) (ItemReference, bool) {
	for _, r := range it.References {
		if r.Kind.EqualString(name) {
			return r, true
		}
	}
	return ItemReference{}, false
}

// Data returns the item's bytes.
func (it *Item) Data() ([]byte, error) {
	r, ok, err := it.f.Locate(it.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: item %d has no location", ErrMalformed, it.ID)
	}
	return r.Data, nil
}

// SpatialExtents returns the item's spatial extents property values, if present,
// not correcting from any camera rotation metadata.
func (it *Item) SpatialExtents() (width, height int, ok bool) {
	if p, ok := FindProperty[*bmff.ImageSpatialExtentsProperty](it.Properties); ok {
		return int(p.ImageWidth), int(p.ImageHeight), true
	}
	return
}

// HevcConfig returns the hvcC box
func (it *Item) HevcConfig() (*bmff.ItemHevcConfigBox, bool) {
	return FindProperty[*bmff.ItemHevcConfigBox](it.Properties)
}

// Av1Config returns the av1C box
func (it *Item) Av1Config() (*bmff.ItemAv1ConfigBox, bool) {
	return FindProperty[*bmff.ItemAv1ConfigBox](it.Properties)
}

// Rotations returns the number of 90 degree rotations counter-clockwise that this
// image should be rendered at, in the range [0,3].
func (it *Item) Rotations() int {
	if p, ok := FindProperty[*bmff.ImageRotation](it.Properties); ok {
		return int(p.Angle)
	}
	return 0
}

// Mirror returns the mirroring axis: 0 = vertical, 1 = horizontal
func (it *Item) Mirror() int {
	if p, ok := FindProperty[*bmff.ImageMirror](it.Properties); ok {
		return int(p.Mirror)
	}
	return 0
}

// VisualDimensions returns the item's width and height after correcting
// for any rotations.
func (it *Item) VisualDimensions() (width, height int, ok bool) {
	width, height, ok = it.SpatialExtents()
	if it.Rotations()%2 == 1 {
		width, height = height, width
	}
	return
}

// PrimaryItem returns the HEIF file's primary item.
func (f *File) PrimaryItem() (*Item, error) {
	id, ok := f.meta.PrimaryItemID()
	if !ok {
		return nil, fmt.Errorf("%w: HEIF file lacks primary item box", ErrMalformed)
	}
	return f.ItemByID(id)
}

// ItemByID by returns the file's Item of a given ID.
// If the ID is unknown, the returned error is ErrUnknownItem.
func (f *File) ItemByID(id uint32) (*Item, error) {
	info, node, ok := f.meta.ItemInfo(id)
	if !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownItem, id)
	}
	it := &Item{
		f:    f,
		ID:   id,
		Node: node,
		Info: info,
	}
	it.Location, _ = f.meta.Location(id)
	it.References = f.meta.ReferencesFrom(id)

	props, _, err := f.meta.PropertiesOf(id)
	if err != nil {
		return nil, err
	}
	it.Properties = props
	return it, nil
}

// Items returns every item of the file in iinf order.
func (f *File) Items() ([]*Item, error) {
	var items []*Item
	for _, info := range f.meta.ItemInfos() {
		it, err := f.ItemByID(info.ItemID)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// EXIFItemID returns the item ID of the EXIF part, or 0 if not found.
func (f *File) EXIFItemID() uint32 {
	for _, ife := range f.meta.ItemInfos() {
		if ife.ItemType == "Exif" {
			return ife.ItemID
		}
	}
	return 0
}

// EXIF returns the raw EXIF data from the file, starting at the TIFF header.
// The error is ErrNoEXIF if the file did not contain EXIF.
//
// The raw EXIF data can be parsed by the
// github.com/rwcarlsen/goexif/exif package's Decode function.
func (f *File) EXIF() ([]byte, error) {
	exifID := f.EXIFItemID()
	if exifID == 0 {
		return nil, ErrNoEXIF
	}
	it, err := f.ItemByID(exifID)
	if err != nil {
		return nil, err
	}
	data, err := it.Data()
	if err != nil {
		return nil, err
	}
	return TIFFHeader(data)
}

// TIFFHeader strips the prefix of an Exif item: a 4-byte offset to the
// TIFF header, and the "Exif\0\0" marker some writers leave in place.
func TIFFHeader(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: Exif item of %d bytes lacks its header offset", ErrMalformed, len(data))
	}
	off := uint64(binary.BigEndian.Uint32(data[:4]))
	if off > uint64(len(data)-4) {
		return nil, fmt.Errorf("%w: Exif TIFF header offset %d beyond %d byte item", ErrOutOfBounds, off, len(data))
	}
	tiff := data[4+off:]
	if len(tiff) >= 6 && string(tiff[:6]) == "Exif\x00\x00" {
		tiff = tiff[6:]
	}
	return tiff, nil
}

// ItemType is the closed set of item types this module dispatches on.
type ItemType uint8

const (
	ItemTypeUnknown ItemType = iota
	ItemTypeHvc1
	ItemTypeAv01
	ItemTypeJpeg
	ItemTypeGrid
	ItemTypeUnci
	ItemTypeMime
	ItemTypeExif
	ItemTypeURI
)

var itemTypeCodes = [...]string{
	ItemTypeUnknown: "",
	ItemTypeHvc1:    "hvc1",
	ItemTypeAv01:    "av01",
	ItemTypeJpeg:    "jpeg",
	ItemTypeGrid:    "grid",
	ItemTypeUnci:    "unci",
	ItemTypeMime:    "mime",
	ItemTypeExif:    "Exif",
	ItemTypeURI:     "uri ",
}

// ParseItemType classifies an infe item type code.
func ParseItemType(code string) ItemType {
	for t, c := range itemTypeCodes {
		if c != "" && c == code {
			return ItemType(t)
		}
	}
	return ItemTypeUnknown
}

func (t ItemType) String() string {
	if t == ItemTypeUnknown || int(t) >= len(itemTypeCodes) {
		return "unknown"
	}
	return itemTypeCodes[t]
}

// IsNotFound reports whether err means something was absent rather than
// broken.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
