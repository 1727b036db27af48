// Package formatting renders controller metadata for the command line as a
// table, JSON or YAML.
package formatting

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"poller/internal/orchestrator"
	pstrings "poller/pkg/strings"
)

// errorColumnWidth bounds the LAST ERROR column.
const errorColumnWidth = 60

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Color  bool // Enable colored output
}

// ParseFormat maps a flag value to an OutputFormat.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// Write renders controllers to w in the requested format.
func Write(w io.Writer, controllers []orchestrator.Metadata, opts Options) error {
	switch opts.Format {
	case FormatJSON:
		_, err := fmt.Fprintln(w, PrettyJSON(controllers))
		return err
	case FormatYAML:
		return writeYAML(w, controllers)
	default:
		writeTable(w, controllers, opts.Color)
		return nil
	}
}

// PrettyJSON formats any value as indented JSON, falling back to %v when it
// cannot be marshaled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// writeYAML goes through JSON so that field names and duration encoding
// match the JSON output.
func writeYAML(w io.Writer, controllers []orchestrator.Metadata) error {
	raw, err := json.Marshal(controllers)
	if err != nil {
		return fmt.Errorf("encoding controllers: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("decoding controllers: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func writeTable(w io.Writer, controllers []orchestrator.Metadata, color bool) {
	paint := func(c text.Color, s string) string {
		if !color {
			return s
		}
		return c.Sprint(s)
	}

	if len(controllers) == 0 {
		fmt.Fprintln(w, paint(text.FgYellow, "No controllers found"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		paint(text.FgHiCyan, "ID"),
		paint(text.FgHiCyan, "NAME"),
		paint(text.FgHiCyan, "STATE"),
		paint(text.FgHiCyan, "CREATED"),
		paint(text.FgHiCyan, "LAST START"),
		paint(text.FgHiCyan, "LAST STOP"),
		paint(text.FgHiCyan, "LAST ERROR"),
	})

	for _, md := range controllers {
		t.AppendRow(table.Row{
			md.ID,
			md.Name,
			paint(stateColor(md.State), md.State.String()),
			md.CreatedTime.Format(time.RFC3339),
			formatTime(md.LastStartTime),
			formatTime(md.LastStopTime),
			pstrings.Truncate(md.LastError, errorColumnWidth),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(controllers)})
	t.Render()
}

func stateColor(s orchestrator.State) text.Color {
	switch s {
	case orchestrator.StateRunning:
		return text.FgHiGreen
	case orchestrator.StateStopped:
		return text.FgHiYellow
	case orchestrator.StateDeleted:
		return text.FgHiRed
	default:
		return text.FgHiWhite
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
