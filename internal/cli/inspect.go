package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isore/isore/heif"
	"github.com/isore/isore/heif/bmff"
	"github.com/isore/isore/heif/box"
	"github.com/isore/isore/internal/output"
)

// TreeReport lists every box of a file depth-first.
type TreeReport struct {
	Boxes []BoxEntry `json:"boxes" yaml:"boxes"`
}

type BoxEntry struct {
	Depth    int     `json:"depth" yaml:"depth"`
	Type     string  `json:"type" yaml:"type"`
	Kind     string  `json:"kind" yaml:"kind"`
	Offset   int64   `json:"offset" yaml:"offset"`
	Size     int64   `json:"size" yaml:"size"`
	ItemID   *uint32 `json:"item_id,omitempty" yaml:"item_id,omitempty"`
	UserType string  `json:"user_type,omitempty" yaml:"user_type,omitempty"`
}

func (r *TreeReport) Header() []string { return []string{"BOX", "KIND", "OFFSET", "SIZE", "ITEM"} }

func (r *TreeReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Boxes))
	for _, b := range r.Boxes {
		name := strings.Repeat("  ", b.Depth) + b.Type
		if b.UserType != "" {
			name += " " + b.UserType
		}
		item := ""
		if b.ItemID != nil {
			item = strconv.FormatUint(uint64(*b.ItemID), 10)
		}
		rows = append(rows, []string{name, b.Kind, strconv.FormatInt(b.Offset, 10), strconv.FormatInt(b.Size, 10), item})
	}
	return rows
}

func buildTreeReport(t *box.Tree) *TreeReport {
	r := &TreeReport{}
	_ = t.Walk(func(n *box.Node, depth int) error {
		e := BoxEntry{
			Depth:  depth,
			Type:   n.Type.String(),
			Kind:   n.Kind.String(),
			Offset: n.Start,
			Size:   n.Size,
		}
		if n.HasItemID {
			id := n.ItemID
			e.ItemID = &id
		}
		if n.Is(box.KindUUID) {
			e.UserType = n.UserType.String()
		}
		r.Boxes = append(r.Boxes, e)
		return nil
	})
	return r
}

func newTreeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree FILE",
		Short: "Print the box tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), a.cfg.OutputFormat, buildTreeReport(f.Tree()))
		},
	}
}

// ItemsReport lists the items of a file.
type ItemsReport struct {
	Primary uint32      `json:"primary,omitempty" yaml:"primary,omitempty"`
	Items   []ItemEntry `json:"items" yaml:"items"`
}

type ItemEntry struct {
	ID          uint32   `json:"id" yaml:"id"`
	Type        string   `json:"type" yaml:"type"`
	Name        string   `json:"name,omitempty" yaml:"name,omitempty"`
	ContentType string   `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Primary     bool     `json:"primary,omitempty" yaml:"primary,omitempty"`
	Hidden      bool     `json:"hidden,omitempty" yaml:"hidden,omitempty"`
	Method      string   `json:"method,omitempty" yaml:"method,omitempty"`
	Offset      uint64   `json:"offset" yaml:"offset"`
	Length      uint64   `json:"length" yaml:"length"`
	Width       int      `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int      `json:"height,omitempty" yaml:"height,omitempty"`
	Properties  []string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (r *ItemsReport) Header() []string {
	return []string{"ID", "TYPE", "NAME", "LOCATION", "SIZE", "DIMENSIONS", "PROPERTIES", "NOTES"}
}

func (r *ItemsReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Items))
	for _, it := range r.Items {
		loc := ""
		if it.Method != "" {
			loc = fmt.Sprintf("%s+%d", it.Method, it.Offset)
		}
		dims := ""
		if it.Width > 0 {
			dims = fmt.Sprintf("%dx%d", it.Width, it.Height)
		}
		var notes []string
		if it.Primary {
			notes = append(notes, "primary")
		}
		if it.Hidden {
			notes = append(notes, "hidden")
		}
		if it.ContentType != "" {
			notes = append(notes, it.ContentType)
		}
		if it.Error != "" {
			notes = append(notes, it.Error)
		}
		rows = append(rows, []string{
			strconv.FormatUint(uint64(it.ID), 10), it.Type, it.Name, loc,
			strconv.FormatUint(it.Length, 10), dims, strings.Join(it.Properties, ","), strings.Join(notes, "; "),
		})
	}
	return rows
}

func buildItemsReport(f *heif.File) *ItemsReport {
	r := &ItemsReport{}
	r.Primary, _ = f.Meta().PrimaryItemID()
	for _, info := range f.Meta().ItemInfos() {
		e := ItemEntry{
			ID:          info.ItemID,
			Type:        info.ItemType,
			Name:        info.Name,
			ContentType: info.ContentType,
			Primary:     info.ItemID == r.Primary,
			Hidden:      info.Hidden(),
		}
		var errs []string
		if loc, ok, err := f.Locate(info.ItemID); err != nil {
			errs = append(errs, err.Error())
		} else if ok {
			e.Method, e.Offset, e.Length = loc.Method.String(), loc.Offset, loc.Length
		}
		props, _, err := f.PropertiesOf(info.ItemID)
		if err != nil {
			errs = append(errs, err.Error())
		}
		for _, p := range props {
			e.Properties = append(e.Properties, p.Type.String())
		}
		if ispe, ok := heif.FindProperty[*bmff.ImageSpatialExtentsProperty](props); ok {
			e.Width, e.Height = int(ispe.ImageWidth), int(ispe.ImageHeight)
		}
		e.Error = strings.Join(errs, "; ")
		r.Items = append(r.Items, e)
	}
	return r
}

func newItemsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "items FILE",
		Short: "List items and their locations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), a.cfg.OutputFormat, buildItemsReport(f))
		},
	}
}

// PropsReport lists the properties of one item in association order.
type PropsReport struct {
	ItemID     uint32      `json:"item_id" yaml:"item_id"`
	Properties []PropEntry `json:"properties" yaml:"properties"`
}

type PropEntry struct {
	Type   string `json:"type" yaml:"type"`
	Kind   string `json:"kind" yaml:"kind"`
	Size   int64  `json:"size" yaml:"size"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

func (r *PropsReport) Header() []string { return []string{"#", "TYPE", "KIND", "SIZE", "DETAIL"} }

func (r *PropsReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.Properties))
	for i, p := range r.Properties {
		rows = append(rows, []string{strconv.Itoa(i + 1), p.Type, p.Kind, strconv.FormatInt(p.Size, 10), p.Detail})
	}
	return rows
}

// describeProperty summarizes the fields of the property boxes the
// tree parses.
func describeProperty(n *box.Node) string {
	switch p := n.Box.(type) {
	case *bmff.ImageSpatialExtentsProperty:
		return fmt.Sprintf("%dx%d", p.ImageWidth, p.ImageHeight)
	case *bmff.ImageRotation:
		return fmt.Sprintf("%d degrees counter-clockwise", int(p.Angle)*90)
	case *bmff.ImageMirror:
		return fmt.Sprintf("axis %d", p.Mirror)
	case *bmff.ItemHevcConfigBox:
		return fmt.Sprintf("chroma format %d, %d-bit luma", p.ChromaFormat(), p.BitDepthLuma())
	case *bmff.ItemAv1ConfigBox:
		return fmt.Sprintf("monochrome %t, %d config bytes", p.Monochrome(), len(p.ConfigOBUs()))
	case *bmff.UncompressedConfig:
		return fmt.Sprintf("version %d, profile %q, %d components", p.Version, strings.TrimRight(p.Profile, "\x00"), len(p.Components))
	case *bmff.ComponentDefinition:
		types := make([]string, len(p.Types))
		for i, t := range p.Types {
			types[i] = strconv.Itoa(int(t))
		}
		return "components " + strings.Join(types, ",")
	}
	return ""
}

func newPropsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "props FILE [ITEM]",
		Short: "List the properties of an item (default: primary item)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			id, err := itemArg(f, args, 1)
			if err != nil {
				return err
			}
			props, ok, err := f.PropertiesOf(id)
			if err != nil {
				return err
			}
			if !ok {
				a.logger.Debug("item has no property associations", "item", id)
			}
			r := &PropsReport{ItemID: id, Properties: []PropEntry{}}
			for _, p := range props {
				r.Properties = append(r.Properties, PropEntry{
					Type:   p.Type.String(),
					Kind:   p.Kind.String(),
					Size:   p.Size,
					Detail: describeProperty(p),
				})
			}
			return output.Write(cmd.OutOrStdout(), a.cfg.OutputFormat, r)
		},
	}
}

// RefsReport lists references from, or to, one item.
type RefsReport struct {
	ItemID     uint32     `json:"item_id" yaml:"item_id"`
	Direction  string     `json:"direction" yaml:"direction"`
	References []RefEntry `json:"references" yaml:"references"`
}

type RefEntry struct {
	Type string   `json:"type" yaml:"type"`
	From uint32   `json:"from" yaml:"from"`
	To   []uint32 `json:"to" yaml:"to"`
}

func (r *RefsReport) Header() []string { return []string{"TYPE", "FROM", "TO"} }

func (r *RefsReport) Rows() [][]string {
	rows := make([][]string, 0, len(r.References))
	for _, ref := range r.References {
		to := make([]string, len(ref.To))
		for i, id := range ref.To {
			to[i] = strconv.FormatUint(uint64(id), 10)
		}
		rows = append(rows, []string{ref.Type, strconv.FormatUint(uint64(ref.From), 10), strings.Join(to, ",")})
	}
	return rows
}

func newRefsCommand(a *app) *cobra.Command {
	var (
		types   []string
		reverse bool
	)
	cmd := &cobra.Command{
		Use:   "refs FILE [ITEM]",
		Short: "List the references of an item (default: primary item)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			id, err := itemArg(f, args, 1)
			if err != nil {
				return err
			}
			var kinds []bmff.BoxType
			for _, t := range types {
				if len(t) != 4 {
					return fmt.Errorf("reference type %q is not four characters", t)
				}
				kinds = append(kinds, bmff.BoxType{t[0], t[1], t[2], t[3]})
			}

			r := &RefsReport{ItemID: id, Direction: "from", References: []RefEntry{}}
			refs := f.ReferencesFrom(id, kinds...)
			if reverse {
				r.Direction = "to"
				refs = f.ReferencesTo(id, kinds...)
			}
			for _, ref := range refs {
				r.References = append(r.References, RefEntry{Type: ref.Kind.String(), From: ref.From, To: ref.To})
			}
			return output.Write(cmd.OutOrStdout(), a.cfg.OutputFormat, r)
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "only references of these types (e.g. dimg,thmb)")
	cmd.Flags().BoolVar(&reverse, "to", false, "list references pointing at the item instead")
	return cmd
}
