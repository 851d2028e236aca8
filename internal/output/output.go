// Package output renders CLI reports as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Formats lists the supported output formats.
var Formats = []string{"table", "json", "yaml"}

// Tabular is a report that can be printed as a table. JSON and YAML
// output encode the report value itself.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// Write renders report to w in the given format.
func Write(w io.Writer, format string, report Tabular) error {
	switch format {
	case "json":
		return formatJSON(w, report)
	case "yaml":
		return formatYAML(w, report)
	case "table", "":
		return formatTable(w, report)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func formatTable(w io.Writer, report Tabular) error {
	rows := report.Rows()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No entries.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := report.Header()
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	dashes := make([]string, len(header))
	for i, h := range header {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	return tw.Flush()
}

func formatJSON(w io.Writer, report Tabular) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func formatYAML(w io.Writer, report Tabular) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(report); err != nil {
		return err
	}
	return encoder.Close()
}
