package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Palette holds the colors used by the renderers. A zero Palette is not
// usable; call NewPalette.
type Palette struct {
	Title *color.Color
	Key   *color.Color
	Muted *color.Color
	Good  *color.Color
	Warn  *color.Color
	Bad   *color.Color
}

// NewPalette returns the standard palette, optionally without colors
func NewPalette(noColor bool) *Palette {
	p := &Palette{
		Title: color.New(color.Bold, color.FgCyan),
		Key:   color.New(color.FgCyan),
		Muted: color.New(color.FgHiBlack),
		Good:  color.New(color.FgGreen, color.Bold),
		Warn:  color.New(color.FgYellow),
		Bad:   color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.Title, p.Key, p.Muted, p.Good, p.Warn, p.Bad} {
			c.DisableColor()
		}
	}
	return p
}

// Table renders rows under a header line with aligned columns
type Table struct {
	writer  io.Writer
	headers []string
	rows    [][]string
	palette *Palette
}

// NewTable creates a table with the given headers
func NewTable(w io.Writer, headers []string, noColor bool) *Table {
	return &Table{
		writer:  w,
		headers: headers,
		palette: NewPalette(noColor),
	}
}

// AddRow adds a row; missing cells render empty and extra cells are dropped
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, header := range t.headers {
		widths[i] = width(header)
	}
	for _, row := range t.rows {
		for i, c := range row {
			if i < len(widths) && width(c) > widths[i] {
				widths[i] = width(c)
			}
		}
	}

	last := len(widths) - 1
	for i, header := range t.headers {
		t.palette.Title.Fprint(t.writer, cell(header, widths[i], i == last))
		if i < last {
			fmt.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	for i, w := range widths {
		t.palette.Muted.Fprint(t.writer, strings.Repeat("─", w))
		if i < last {
			t.palette.Muted.Fprint(t.writer, "  ")
		}
	}
	fmt.Fprintln(t.writer)

	for _, row := range t.rows {
		for i := range widths {
			var c string
			if i < len(row) {
				c = row[i]
			}
			fmt.Fprint(t.writer, cell(c, widths[i], i == last))
			if i < last {
				fmt.Fprint(t.writer, "  ")
			}
		}
		fmt.Fprintln(t.writer)
	}
}

func cell(s string, w int, last bool) string {
	if last {
		return s
	}
	return padRight(s, w)
}

func width(s string) int {
	return utf8.RuneCountInString(s)
}

// padRight pads s with spaces on the right to reach the target width
func padRight(s string, w int) string {
	if n := width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

// KeyValueTable renders aligned "key: value" lines
type KeyValueTable struct {
	writer  io.Writer
	keys    []string
	values  []string
	palette *Palette
}

// NewKeyValueTable creates a key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{writer: w, palette: NewPalette(noColor)}
}

// AddRow adds a pair
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// AddRowIf adds a pair when value is not empty
func (t *KeyValueTable) AddRowIf(key, value string) {
	if value != "" {
		t.AddRow(key, value)
	}
}

// Render writes the table
func (t *KeyValueTable) Render() {
	maxKey := 0
	for _, k := range t.keys {
		if width(k) > maxKey {
			maxKey = width(k)
		}
	}
	for i, k := range t.keys {
		t.palette.Key.Fprint(t.writer, padRight(k+":", maxKey+1))
		fmt.Fprintf(t.writer, " %s\n", t.values[i])
	}
}

// List renders bulleted or numbered items
type List struct {
	writer   io.Writer
	items    []string
	numbered bool
	palette  *Palette
}

// NewList creates a list
func NewList(w io.Writer, numbered, noColor bool) *List {
	return &List{writer: w, numbered: numbered, palette: NewPalette(noColor)}
}

// AddItem adds an item
func (l *List) AddItem(item string) {
	l.items = append(l.items, item)
}

// Render writes the list
func (l *List) Render() {
	for i, item := range l.items {
		if l.numbered {
			l.palette.Key.Fprintf(l.writer, "%d. ", i+1)
		} else {
			l.palette.Key.Fprint(l.writer, "• ")
		}
		fmt.Fprintln(l.writer, item)
	}
}

// Divider renders a horizontal line, 80 columns when w is zero
func Divider(out io.Writer, w int, noColor bool) {
	if w == 0 {
		w = 80
	}
	NewPalette(noColor).Muted.Fprintln(out, strings.Repeat("─", w))
}

// Header renders an underlined title
func Header(w io.Writer, title string, noColor bool) {
	NewPalette(noColor).Title.Fprintln(w, title)
	Divider(w, width(title), noColor)
}
