package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grouplab/inetwork/pkg/discovery"
	"github.com/grouplab/inetwork/pkg/wire"
)

// RenderMessage formats one received message on a single line:
//
//	15:04:05.000 reading [internal] celsius=21.5 unit="C"
func RenderMessage(at time.Time, msg *wire.Message) string {
	var b strings.Builder
	b.WriteString(TimestampStyle.Render(at.Format("15:04:05.000")))
	b.WriteByte(' ')
	b.WriteString(MessageNameStyle.Render(msg.Name()))
	if msg.IsInternal() {
		b.WriteByte(' ')
		b.WriteString(InternalTagStyle.Render("[internal]"))
	}
	for _, f := range renderFields(msg.Content()) {
		b.WriteByte(' ')
		b.WriteString(f)
	}
	return b.String()
}

func renderFields(r *wire.Record) []string {
	out := make([]string, 0, r.Len())
	for _, d := range r.Fields() {
		out = append(out, FieldKeyStyle.Render(d.Name+"=")+FieldValueStyle.Render(FormatValue(r, d)))
	}
	return out
}

// FormatValue renders a field value for display. Binary values show only
// their length.
func FormatValue(r *wire.Record, d wire.Descriptor) string {
	v, err := r.GetValue(d.Name)
	if err != nil {
		return "<" + err.Error() + ">"
	}
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case *wire.Record:
		if x == nil {
			return "null"
		}
		return "{" + strings.Join(plainFields(x), " ") + "}"
	default:
		return fmt.Sprint(x)
	}
}

func plainFields(r *wire.Record) []string {
	out := make([]string, 0, r.Len())
	for _, d := range r.Fields() {
		out = append(out, d.Name+"="+FormatValue(r, d))
	}
	return out
}

// RenderEvent formats a connection or subscription event line
func RenderEvent(at time.Time, text string) string {
	return TimestampStyle.Render(at.Format("15:04:05.000")) + " " +
		EventStyle.Render(EventMarker+" "+text)
}

// RenderResults lists discovery results as an aligned table
func RenderResults(results []discovery.Result) string {
	if len(results) == 0 {
		return HintStyle.Render("  no servers found")
	}

	rows := [][]string{{"NAME", "TYPE", "ADDRESS", "SOURCE"}}
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = "(unnamed)"
		}
		rows = append(rows, []string{name, r.Type.String(), r.Address(), r.Source})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	lines := make([]string, 0, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = cell + strings.Repeat(" ", widths[j]-len(cell))
		}
		line := "  " + strings.TrimRight(strings.Join(cells, "  "), " ")
		if i == 0 {
			line = TableHeaderStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
