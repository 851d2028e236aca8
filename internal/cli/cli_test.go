package cli

import (
	"bytes"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	ht "github.com/isore/isore/internal/heiftest"
)

// writeSample writes a file with a 1x2 grid of unci tiles (item 1) and
// an XMP item (5) describing it.
func writeSample(t *testing.T) string {
	t.Helper()
	f := &ht.File{
		Primary: 1,
		Items: []ht.Item{
			{ID: 1, Type: "grid", Data: ht.Grid(1, 2, 3, 1, false), Method: 1, Props: []uint8{1}},
			{ID: 2, Type: "unci", Hidden: true, Data: ht.RGB(2, 1, 255, 0, 0), Props: []uint8{2, 3}},
			{ID: 3, Type: "unci", Hidden: true, Data: ht.RGB(2, 1, 0, 0, 255), Props: []uint8{2, 3}},
			{ID: 5, Type: "mime", ContentType: "application/rdf+xml", Data: []byte("<x><y/></x>")},
		},
		Props: [][]byte{ht.Ispe(3, 1), ht.Ispe(2, 1), ht.UncCProfile("rgb3")},
		Refs: []ht.Ref{
			{Type: "dimg", From: 1, To: []uint32{2, 3}},
			{Type: "cdsc", From: 5, To: []uint32{1}},
		},
	}
	path := filepath.Join(t.TempDir(), "sample.heif")
	require.NoError(t, os.WriteFile(path, f.Bytes(), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTreeCommand(t *testing.T) {
	out, err := run(t, "tree", writeSample(t))
	require.NoError(t, err)
	assert.Contains(t, out, "BOX")
	assert.Contains(t, out, "\nmeta ")
	assert.Contains(t, out, "\n  iinf ")
	assert.Contains(t, out, "\n    dimg ")
}

func TestItemsCommand(t *testing.T) {
	out, err := run(t, "items", "-o", "json", writeSample(t))
	require.NoError(t, err)

	var r ItemsReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, uint32(1), r.Primary)
	require.Len(t, r.Items, 4)

	grid := r.Items[0]
	assert.True(t, grid.Primary)
	assert.Equal(t, "idat", grid.Method)
	assert.Equal(t, []string{"ispe"}, grid.Properties)
	assert.Equal(t, 3, grid.Width)

	tile := r.Items[1]
	assert.True(t, tile.Hidden)
	assert.Equal(t, "file", tile.Method)
	assert.Equal(t, uint64(6), tile.Length)
	assert.Empty(t, tile.Error)
}

func TestPropsCommand(t *testing.T) {
	out, err := run(t, "props", "-o", "yaml", writeSample(t), "2")
	require.NoError(t, err)

	var r PropsReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &r))
	assert.Equal(t, uint32(2), r.ItemID)
	require.Len(t, r.Properties, 2)
	assert.Equal(t, "ispe", r.Properties[0].Type)
	assert.Equal(t, "2x1", r.Properties[0].Detail)
	assert.Equal(t, "uncC", r.Properties[1].Type)
}

func TestRefsCommand(t *testing.T) {
	path := writeSample(t)

	out, err := run(t, "refs", "-o", "json", path)
	require.NoError(t, err)
	var r RefsReport
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	require.Len(t, r.References, 1)
	assert.Equal(t, "dimg", r.References[0].Type)
	assert.Equal(t, []uint32{2, 3}, r.References[0].To)

	out, err = run(t, "refs", "-o", "json", "--to", "--type", "cdsc", path, "1")
	require.NoError(t, err)
	r = RefsReport{}
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "to", r.Direction)
	require.Len(t, r.References, 1)
	assert.Equal(t, uint32(5), r.References[0].From)

	_, err = run(t, "refs", "--type", "toolong", path)
	assert.Error(t, err)
}

func TestExtractCommand(t *testing.T) {
	path := writeSample(t)
	dest := filepath.Join(t.TempDir(), "tile.bin")
	_, err := run(t, "extract", "--dest", dest, path, "3")
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, ht.RGB(2, 1, 0, 0, 255), got)

	out, err := run(t, "extract", path, "1")
	require.NoError(t, err)
	assert.Equal(t, string(ht.Grid(1, 2, 3, 1, false)), out)

	_, err = run(t, "extract", path, "abc")
	assert.Error(t, err)
}

func TestDecodeCommand(t *testing.T) {
	path := writeSample(t)

	pngPath := filepath.Join(t.TempDir(), "grid.png")
	_, err := run(t, "decode", "--png", pngPath, path)
	require.NoError(t, err)
	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
	r, _, b, _ := img.At(2, 0).RGBA()
	assert.Equal(t, []uint32{0, 0xffff}, []uint32{r, b}, "third pixel comes from the second tile")

	thumb := filepath.Join(t.TempDir(), "thumb.png")
	_, err = run(t, "decode", "--png", thumb, "--thumbnail", "1", path)
	require.NoError(t, err)
	tf, err := os.Open(thumb)
	require.NoError(t, err)
	defer tf.Close()
	small, err := png.Decode(tf)
	require.NoError(t, err)
	assert.Equal(t, 1, small.Bounds().Dx(), "3x1 fits within 1x1")

	out, err := run(t, "decode", "-o", "json", path)
	require.NoError(t, err)
	var rep DecodeReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "grid", rep.Result)
	assert.Equal(t, 2, rep.Columns)

	out, err = run(t, "decode", path, "5")
	require.NoError(t, err)
	assert.Contains(t, out, "<x>\n  <y></y>\n</x>")

	_, err = run(t, "decode", "--png", pngPath, path, "5")
	assert.Error(t, err, "text is not an image")
}

func TestGlobalFlags(t *testing.T) {
	path := writeSample(t)

	_, err := run(t, "items", "-o", "xml", path)
	assert.ErrorContains(t, err, "unsupported output format")

	cfgPath := filepath.Join(t.TempDir(), "isore-config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("max_file_size: 10\n"), 0o644))
	_, err = run(t, "--config", cfgPath, "items", path)
	assert.ErrorContains(t, err, "max_file_size")

	_, err = run(t, "items", filepath.Join(t.TempDir(), "missing.heif"))
	assert.Error(t, err)
}
