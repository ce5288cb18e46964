// Package ui renders subrun's console output
package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	columnStyle = lipgloss.NewStyle().Bold(true)
)

// UI writes styled messages. Errors go to the err writer, everything else
// to out.
type UI struct {
	out io.Writer
	err io.Writer
}

// NewUI creates a UI writing to out and err
func NewUI(out, err io.Writer) *UI {
	return &UI{out: out, err: err}
}

func emit(w io.Writer, style lipgloss.Style, mark, msg string) {
	if mark != "" {
		msg = mark + " " + msg
	}
	fmt.Fprintln(w, style.Render(msg))
}

// Error prints an error message
func (ui *UI) Error(msg string) { emit(ui.err, failStyle, "✗", msg) }

// Info prints an informational message
func (ui *UI) Info(msg string) { emit(ui.out, infoStyle, "ℹ", msg) }

// Subtle prints a muted message
func (ui *UI) Subtle(msg string) { emit(ui.out, mutedStyle, "", msg) }

// Println prints msg unstyled
func (ui *UI) Println(msg string) {
	fmt.Fprintln(ui.out, msg)
}

// KeyValue prints an indented key: value line
func (ui *UI) KeyValue(key, value string) {
	fmt.Fprintf(ui.out, "  %s: %s\n", mutedStyle.Render(key), value)
}

// RunSummary prints the outcome of one child process. ok selects the
// success style; a negative returnCode is reported as a signal.
func (ui *UI) RunSummary(command string, returnCode int, duration string, ok bool) {
	status := fmt.Sprintf("exited with %d", returnCode)
	if returnCode < 0 {
		status = fmt.Sprintf("killed by signal %d", -returnCode)
	}
	line := fmt.Sprintf("%s %s (%s)", command, status, duration)
	if ok {
		emit(ui.out, okStyle, "✓", line)
		return
	}
	emit(ui.out, noticeStyle, "⚠", line)
}

// MaxCellWidth caps column width; longer cells are truncated with "…"
const MaxCellWidth = 60

// Table collects rows and prints them aligned
type Table struct {
	ui      *UI
	columns []string
	rows    [][]string
}

// NewTable starts a table with the given column titles
func (ui *UI) NewTable(columns ...string) *Table {
	return &Table{ui: ui, columns: columns}
}

// AddRow appends a row. Missing cells render empty and extra cells are
// dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(cells) {
			row[i] = truncate(cells[i], MaxCellWidth)
		}
	}
	t.rows = append(t.rows, row)
}

// Render writes the table
func (t *Table) Render() {
	if len(t.columns) == 0 {
		return
	}

	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = lipgloss.Width(c)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	t.ui.Println(columnStyle.Render(t.line(t.columns, widths)))
	for _, row := range t.rows {
		t.ui.Println(t.line(row, widths))
	}
}

func (t *Table) line(cells []string, widths []int) string {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		padded[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
	}
	return strings.TrimRight(strings.Join(padded, "  "), " ")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
