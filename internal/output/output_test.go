package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type report struct {
	Names []string `json:"names" yaml:"names"`
}

func (r report) Header() []string { return []string{"NAME", "LEN"} }

func (r report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Names))
	for _, n := range r.Names {
		rows = append(rows, []string{n, "x"})
	}
	return rows
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "table", report{Names: []string{"ftyp", "meta"}}))
	assert.Equal(t, "NAME  LEN\n----  ---\nftyp  x\nmeta  x\n", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, "", report{}))
	assert.Equal(t, "No entries.\n", buf.String())
}

func TestWriteEncoded(t *testing.T) {
	in := report{Names: []string{"iloc"}}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", in))
	var got report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, in, got)

	buf.Reset()
	require.NoError(t, Write(&buf, "yaml", in))
	assert.Equal(t, "names:\n  - iloc\n", buf.String())

	assert.ErrorContains(t, Write(&buf, "xml", in), "unsupported output format")
}

func TestFormatsAreWritable(t *testing.T) {
	for _, format := range Formats {
		var buf bytes.Buffer
		assert.NoError(t, Write(&buf, format, report{Names: []string{"ftyp"}}), format)
		assert.NotEmpty(t, buf.String(), format)
	}
}
