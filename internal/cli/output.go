package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// Table is the tabular rendering of a result.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Printer writes command results in the selected format.
type Printer struct {
	format string
	w      io.Writer
}

// NewPrinter returns a Printer; unknown formats fall back to table.
func NewPrinter(w io.Writer, format string) *Printer {
	switch f := strings.ToLower(format); f {
	case FormatJSON, FormatYAML:
		return &Printer{format: f, w: w}
	default:
		return &Printer{format: FormatTable, w: w}
	}
}

// Print renders data as JSON or YAML, or t as an aligned table.
func (p *Printer) Print(data any, t Table) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(toPlain(data)); err != nil {
			return err
		}
		return enc.Close()
	}

	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(p.w, "No results.")
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(t.Headers, "\t"))
	for _, row := range t.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// toPlain round-trips data through JSON so YAML output uses the same field
// names as the API.
func toPlain(data any) any {
	b, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return data
	}
	return out
}
