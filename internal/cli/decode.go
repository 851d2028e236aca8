package cli

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/nfnt/resize"
	"github.com/spf13/cobra"

	"github.com/isore/isore"
	"github.com/isore/isore/heif"
	"github.com/isore/isore/internal/output"
)

func newExtractCommand(a *app) *cobra.Command {
	var (
		dest string
		tiff bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE [ITEM]",
		Short: "Write the raw bytes of an item (default: primary item)",
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
			loc, ok, err := f.Locate(id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("item %d has no data", id)
			}
			data := loc.Data
			if tiff {
				if data, err = heif.TIFFHeader(data); err != nil {
					return err
				}
			}
			a.logger.Debug("extracting item", "item", id, "method", loc.Method.String(), "offset", loc.Offset, "length", loc.Length)
			return writeOut(cmd, dest, func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&dest, "dest", "d", "", "destination file (default stdout)")
	cmd.Flags().BoolVar(&tiff, "tiff", false, "strip the Exif header offset, leaving TIFF data")
	return cmd
}

// DecodeReport summarizes a decoded item.
type DecodeReport struct {
	ItemID      uint32            `json:"item_id" yaml:"item_id"`
	Result      string            `json:"result" yaml:"result"`
	Type        string            `json:"type,omitempty" yaml:"type,omitempty"`
	Width       int               `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int               `json:"height,omitempty" yaml:"height,omitempty"`
	Bands       int               `json:"bands,omitempty" yaml:"bands,omitempty"`
	GridRows    int               `json:"rows,omitempty" yaml:"rows,omitempty"`
	Columns     int               `json:"columns,omitempty" yaml:"columns,omitempty"`
	ContentType string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Text        string            `json:"text,omitempty" yaml:"text,omitempty"`
	Fields      map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
	Reason      string            `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (r *DecodeReport) Header() []string { return []string{"FIELD", "VALUE"} }

func (r *DecodeReport) Rows() [][]string {
	rows := [][]string{
		{"item", strconv.FormatUint(uint64(r.ItemID), 10)},
		{"result", r.Result},
	}
	add := func(k, v string) {
		if v != "" && v != "0" {
			rows = append(rows, []string{k, v})
		}
	}
	add("type", r.Type)
	add("width", strconv.Itoa(r.Width))
	add("height", strconv.Itoa(r.Height))
	add("bands", strconv.Itoa(r.Bands))
	add("rows", strconv.Itoa(r.GridRows))
	add("columns", strconv.Itoa(r.Columns))
	add("content type", r.ContentType)
	add("reason", r.Reason)
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		rows = append(rows, []string{k, r.Fields[k]})
	}
	return rows
}

func buildDecodeReport(id uint32, d isore.Decoded) *DecodeReport {
	r := &DecodeReport{ItemID: id}
	switch v := d.(type) {
	case *isore.Text:
		r.Result, r.ContentType, r.Text = "text", v.ContentType, v.Text
	case *isore.RawImage:
		r.Result, r.Width, r.Height, r.Bands = "image", v.Width, v.Height, v.Bands
	case *isore.CompositeImage:
		r.Result, r.Width, r.Height = "grid", v.OutputWidth, v.OutputHeight
		r.GridRows, r.Columns = v.Rows, v.Columns
		if len(v.Tiles) > 0 {
			r.Bands = v.Tiles[0].Bands
		}
	case *isore.CodedImage:
		r.Result, r.Type, r.Width, r.Height = "coded", v.Type.String(), v.Width, v.Height
		r.Reason = "compressed image; no codec is built in"
	case *isore.Exif:
		r.Result, r.Fields = "exif", v.Fields()
	case *isore.Unsupported:
		r.Result, r.Type, r.Reason = "unsupported", v.Type, v.Reason
	}
	return r
}

func newDecodeCommand(a *app) *cobra.Command {
	var (
		pngPath   string
		thumbnail uint
	)
	cmd := &cobra.Command{
		Use:   "decode FILE [ITEM]",
		Short: "Decode an item (default: primary item)",
		Long: `Decode an item according to its type. Text items are printed,
Exif items are listed tag by tag, uncompressed images and grids of them
can be written as PNG with --png, optionally scaled down with --thumbnail.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.open(args[0])
			if err != nil {
				return err
			}
			id, err := itemArg(f, args, 1)
			if err != nil {
				return err
			}

			opts := []isore.Option{isore.WithLogger(a.logger)}
			if a.cfg.XMLIndent != "" {
				opts = append(opts, isore.WithTextFormatter(isore.XMLIndent{Indent: a.cfg.XMLIndent}))
			}
			dec := isore.NewDecoder(opts...)
			d, err := dec.DecodeItem(cmd.Context(), f, id)
			if err != nil {
				return err
			}

			if pngPath != "" {
				img, err := decodedImage(d)
				if err != nil {
					return fmt.Errorf("item %d: %w", id, err)
				}
				if thumbnail > 0 {
					img = resize.Thumbnail(thumbnail, thumbnail, img, resize.Bilinear)
				}
				return writeOut(cmd, pngPath, func(w io.Writer) error {
					return png.Encode(w, img)
				})
			}

			if t, ok := d.(*isore.Text); ok && a.cfg.OutputFormat == "table" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Text)
				return err
			}
			return output.Write(cmd.OutOrStdout(), a.cfg.OutputFormat, buildDecodeReport(id, d))
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write the decoded image as PNG to this file (- for stdout)")
	cmd.Flags().UintVar(&thumbnail, "thumbnail", 0, "scale the PNG to fit within this many pixels, keeping the aspect ratio")
	return cmd
}

func decodedImage(d isore.Decoded) (image.Image, error) {
	switch v := d.(type) {
	case *isore.RawImage:
		return v.Image(), nil
	case *isore.CompositeImage:
		return v.Image()
	case *isore.CodedImage:
		return nil, fmt.Errorf("%w: %s", isore.ErrNoCodec, v.Type)
	}
	return nil, fmt.Errorf("%w: not an image", heif.ErrUnsupported)
}

// writeOut runs write against dest, or stdout when dest is "" or "-".
func writeOut(cmd *cobra.Command, dest string, write func(io.Writer) error) error {
	if dest == "" || dest == "-" {
		return write(cmd.OutOrStdout())
	}
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
