package ui

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

var ansiEscape = regexp.MustCompile("\x1b\\[[0-9;]*m")

// visibleWidth is the on-screen width of s: ANSI color codes take no room
// and multi-byte symbols like ✓ take one column
func visibleWidth(s string) int {
	return utf8.RuneCountInString(ansiEscape.ReplaceAllString(s, ""))
}

// padRight pads s with spaces up to width visible columns
func padRight(s string, width int) string {
	if n := visibleWidth(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

// Table renders rows under a header and separator, columns aligned
type Table struct {
	w       io.Writer
	headers []string
	rows    [][]string
	noColor bool
}

// TableOptions configures a Table
type TableOptions struct {
	NoColor bool
}

// NewTable creates a table with the given column headers
func NewTable(w io.Writer, headers []string, opts *TableOptions) *Table {
	t := &Table{w: w, headers: headers}
	if opts != nil {
		t.noColor = opts.NoColor
	}
	return t
}

// AddRow appends a row. Cells beyond the header count are dropped.
func (t *Table) AddRow(cells ...string) {
	if len(cells) > len(t.headers) {
		cells = cells[:len(t.headers)]
	}
	t.rows = append(t.rows, cells)
}

// Render writes the table. A table without headers renders nothing.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleWidth(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], visibleWidth(cell))
		}
	}

	head := color.New(color.Bold, color.FgCyan)
	rule := color.New(color.FgHiBlack)
	if t.noColor {
		head.DisableColor()
		rule.DisableColor()
	}

	t.line(t.headers, widths, head.Sprint)

	seps := make([]string, len(widths))
	for i, n := range widths {
		seps[i] = strings.Repeat("─", n)
	}
	t.line(seps, widths, rule.Sprint)

	for _, row := range t.rows {
		t.line(row, widths, fmt.Sprint)
	}
}

// line writes one row. The last cell is not padded so lines carry no
// trailing spaces.
func (t *Table) line(cells []string, widths []int, style func(...interface{}) string) {
	var b strings.Builder
	for i, cell := range cells {
		if i > 0 {
			b.WriteString("  ")
		}
		if i < len(cells)-1 {
			cell = padRight(cell, widths[i])
		}
		b.WriteString(style(cell))
	}
	fmt.Fprintln(t.w, strings.TrimRight(b.String(), " "))
}

// KeyValueTable renders "Key: value" lines with the values aligned
type KeyValueTable struct {
	w       io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewKeyValueTable creates an empty key-value table
func NewKeyValueTable(w io.Writer, noColor bool) *KeyValueTable {
	return &KeyValueTable{w: w, noColor: noColor}
}

// AddRow appends a key and its value
func (t *KeyValueTable) AddRow(key, value string) {
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Render writes the table
func (t *KeyValueTable) Render() {
	width := 0
	for _, k := range t.keys {
		width = max(width, visibleWidth(k)+1)
	}

	cyan := color.New(color.FgCyan)
	if t.noColor {
		cyan.DisableColor()
	}
	for i, k := range t.keys {
		cyan.Fprint(t.w, padRight(k+":", width))
		fmt.Fprintf(t.w, " %s\n", t.values[i])
	}
}

// Section is a bold title followed by indented lines and a blank line
type Section struct {
	w       io.Writer
	title   string
	lines   []string
	noColor bool
}

// NewSection creates a section with the given title
func NewSection(w io.Writer, title string, noColor bool) *Section {
	return &Section{w: w, title: title, noColor: noColor}
}

// AddLine appends a line. Embedded newlines are indented too.
func (s *Section) AddLine(line string) {
	s.lines = append(s.lines, strings.Split(line, "\n")...)
}

// Render writes the section
func (s *Section) Render() {
	bold := color.New(color.Bold, color.FgCyan)
	if s.noColor {
		bold.DisableColor()
	}
	bold.Fprintln(s.w, s.title)
	for _, line := range s.lines {
		fmt.Fprintf(s.w, "  %s\n", line)
	}
	fmt.Fprintln(s.w)
}

// List renders bulleted or numbered items
type List struct {
	w        io.Writer
	items    []string
	numbered bool
	bullet   string
	noColor  bool
}

// ListOptions configures a List
type ListOptions struct {
	Numbered bool
	// Bullet replaces the default "•" marker
	Bullet  string
	NoColor bool
}

// NewList creates an empty list
func NewList(w io.Writer, opts ListOptions) *List {
	bullet := opts.Bullet
	if bullet == "" {
		bullet = "•"
	}
	return &List{w: w, numbered: opts.Numbered, bullet: bullet, noColor: opts.NoColor}
}

// AddItem appends an item
func (l *List) AddItem(item string) {
	l.items = append(l.items, item)
}

// Render writes the list
func (l *List) Render() {
	cyan := color.New(color.FgCyan)
	if l.noColor {
		cyan.DisableColor()
	}
	for i, item := range l.items {
		marker := l.bullet
		if l.numbered {
			marker = fmt.Sprintf("%d.", i+1)
		}
		fmt.Fprintf(l.w, "%s %s\n", cyan.Sprint(marker), item)
	}
}

// Divider writes a horizontal rule of width columns, 80 when width is 0
func Divider(w io.Writer, width int, noColor bool) {
	if width == 0 {
		width = 80
	}
	gray := color.New(color.FgHiBlack)
	if noColor {
		gray.DisableColor()
	}
	gray.Fprintln(w, strings.Repeat("─", width))
}

// Header writes a bold title underlined to its own width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	if noColor {
		bold.DisableColor()
	}
	bold.Fprintln(w, title)
	Divider(w, visibleWidth(title), noColor)
}
