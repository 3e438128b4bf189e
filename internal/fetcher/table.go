package fetcher

import (
	"strings"
)

// Table is a parsed tabular file: a header row and the data rows beneath it.
type Table struct {
	Header []string
	Rows   [][]string
	// Lines holds the 1-based file line (CSV) or sheet row (XLSX) of each entry in
	// Rows. Readers fill it; blank and banner rows they drop leave gaps.
	Lines []int

	index map[string]int
}

// NewTable builds a Table and its normalized column index.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, col := range header {
		key := NormalizeColumn(col)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	return t
}

// NormalizeColumn lowercases a header and drops everything but letters and digits,
// so "GICS Sector", "gics_sector" and "Gics-Sector" all map to "gicssector".
func NormalizeColumn(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return -1
		}
	}, s)
}

// Line returns the source line of row i. Tables built without line numbers assume
// a header on line 1 and no gaps.
func (t *Table) Line(i int) int {
	if i < len(t.Lines) {
		return t.Lines[i]
	}
	return i + 2
}

// Has reports whether any of the named columns exists.
func (t *Table) Has(names ...string) bool {
	_, ok := t.col(names...)
	return ok
}

// Get returns the trimmed value of the first named column present in the header.
// Missing columns and short rows yield "".
func (t *Table) Get(row []string, names ...string) string {
	idx, ok := t.col(names...)
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (t *Table) col(names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := t.index[NormalizeColumn(n)]; ok {
			return idx, true
		}
	}
	return 0, false
}
