// Package render provides centralized output rendering for the warnwin CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Color handling:
//   - --no-color affects table output only
//   - TUI mode is unaffected by --no-color (uses its own styling)
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/warnwin/cli/reader"
	"github.com/pithecene-io/warnwin/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}

	tty := isTTY(os.Stdout)
	if format == "" {
		if tty {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color") || !tty,
		out:     os.Stdout,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI initiates TUI mode for the given view type.
// TUI is opt-in and read-only.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Renderer) renderTable(data any) error {
	switch d := data.(type) {
	case *reader.ListResponse:
		fmt.Fprintf(r.out, "frame %d, %d active", d.Frame, len(d.Items))
		if d.Alert != "" {
			fmt.Fprintf(r.out, ", alert %s", d.Alert)
		}
		fmt.Fprint(r.out, "\n\n")
		return r.renderSliceTable(reflect.ValueOf(d.Items))
	case *reader.StatsResponse:
		fmt.Fprintf(r.out, "active:  %d\nuptime:  %s\n", d.Active, d.Uptime)
		return r.renderStructTable(d.Stats)
	}

	// Handle slice of items
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		return r.renderSliceTable(v)
	}

	// Handle single struct/map
	return r.renderStructTable(data)
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		fmt.Fprintln(r.out, "(no results)")
		return nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	for i := 0; i < v.Len(); i++ {
		names, values := r.row(v.Index(i))
		if i == 0 {
			fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t")))
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	// Colour whole lines after alignment so escape codes do not skew
	// column widths.
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	for i, line := range lines {
		if i > 0 && !r.noColor {
			if urgency, ok := fieldByName(v.Index(i-1), "urgency"); ok {
				line = tui.UrgencyStyle(urgency).Render(line)
			}
		}
		fmt.Fprintln(r.out, line)
	}
	return nil
}

func (r *Renderer) renderStructTable(data any) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	v := indirect(reflect.ValueOf(data))
	if v.Kind() != reflect.Struct && v.Kind() != reflect.Map {
		fmt.Fprintf(w, "%v\n", data)
		return nil
	}
	names, values := r.row(v)
	for i := range names {
		fmt.Fprintf(w, "%s:\t%s\n", names[i], values[i])
	}
	return nil
}

// row flattens a struct into its field names and formatted values, in
// declaration order. Maps are flattened in sorted key order.
func (r *Renderer) row(v reflect.Value) (names, values []string) {
	v = indirect(v)
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			names = append(names, fieldName(t.Field(i)))
			values = append(values, r.formatValue(v.Field(i)))
		}
	case reflect.Map:
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			names = append(names, fmt.Sprint(k.Interface()))
			values = append(values, r.formatValue(v.MapIndex(k)))
		}
	default:
		values = append(values, fmt.Sprint(v.Interface()))
	}
	return names, values
}

// fieldName prefers the json tag name.
func fieldName(f reflect.StructField) string {
	if tag, _, _ := strings.Cut(f.Tag.Get("json"), ","); tag != "" && tag != "-" {
		return tag
	}
	return strings.ToLower(f.Name)
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Ptr && !v.IsNil() {
		v = v.Elem()
	}
	return v
}

func (r *Renderer) formatValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		return ""
	}
	v = indirect(v)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		return formatCounts(v)
	case reflect.Struct:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// formatCounts renders small maps inline as k=v pairs in key order.
func formatCounts(v reflect.Value) string {
	if v.Len() == 0 {
		return "{}"
	}
	if v.Len() > 8 {
		return fmt.Sprintf("{%d keys}", v.Len())
	}
	pairs := make([]string, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		pairs = append(pairs, fmt.Sprintf("%v=%v", iter.Key().Interface(), iter.Value().Interface()))
	}
	sort.Strings(pairs)
	return strings.Join(pairs, " ")
}

// fieldByName returns the string value of the struct field tagged json:name.
func fieldByName(v reflect.Value, name string) (string, bool) {
	v = indirect(v)
	if v.Kind() != reflect.Struct {
		return "", false
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if fieldName(t.Field(i)) == name && v.Field(i).Kind() == reflect.String {
			return v.Field(i).String(), true
		}
	}
	return "", false
}

// isTTY returns true if the file is a terminal.
func isTTY(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
