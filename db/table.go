package db

import (
	"fmt"
	"io"
	"strings"
)

// SimpleTable renders rows as a boxed ASCII grid.
type SimpleTable struct {
	writer  io.Writer
	headers []string
	rows    [][]string
}

func NewTable(w io.Writer) *SimpleTable {
	return &SimpleTable{writer: w}
}

func (t *SimpleTable) Header(headers []string) {
	t.headers = headers
}

func (t *SimpleTable) Row(row []string) {
	t.rows = append(t.rows, row)
}

func (t *SimpleTable) Bulk(rows [][]string) {
	t.rows = append(t.rows, rows...)
}

func (t *SimpleTable) Render() {
	if len(t.headers) == 0 && len(t.rows) == 0 {
		return
	}

	widths := t.widths()
	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("-", w+2)
	}
	separator := "+" + strings.Join(rule, "+") + "+"

	fmt.Fprintln(t.writer, separator)
	if len(t.headers) > 0 {
		fmt.Fprintln(t.writer, formatCells(t.headers, widths))
		fmt.Fprintln(t.writer, separator)
	}
	for _, row := range t.rows {
		fmt.Fprintln(t.writer, formatCells(row, widths))
	}
	fmt.Fprintln(t.writer, separator)
}

func (t *SimpleTable) widths() []int {
	cols := len(t.headers)
	for _, row := range t.rows {
		cols = max(cols, len(row))
	}

	widths := make([]int, cols)
	for _, row := range append([][]string{t.headers}, t.rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell), 1)
		}
	}
	return widths
}

func formatCells(row []string, widths []int) string {
	var b strings.Builder
	b.WriteString("|")
	for i, w := range widths {
		cell := ""
		if i < len(row) {
			cell = row[i]
		}
		fmt.Fprintf(&b, " %-*s |", w, cell)
	}
	return b.String()
}
