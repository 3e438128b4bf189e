package fetcher

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// CSVOptions configures the CSV reader.
type CSVOptions struct {
	Delimiter  rune // default ','
	Comment    rune // comment character (0 = none)
	LazyQuotes bool
	SkipRows   int // rows to skip before the header (title banners in agency exports)
}

// ReadCSV parses delimited text into a Table. The first row after SkipRows is the header.
// Blank lines are dropped and every field is trimmed.
func ReadCSV(r io.Reader, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	if opts.Comment != 0 {
		reader.Comment = opts.Comment
	}
	reader.LazyQuotes = opts.LazyQuotes
	reader.FieldsPerRecord = -1 // allow variable fields

	var header []string
	var rows [][]string
	var lines []int
	skipped := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if skipped < opts.SkipRows {
			skipped++
			continue
		}
		for i, field := range record {
			record[i] = strings.TrimSpace(field)
		}
		if blank(record) {
			continue
		}
		if header == nil {
			header = record
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}

	if header == nil {
		return nil, eris.New("csv: no header row")
	}
	t := NewTable(header, rows)
	t.Lines = lines
	return t, nil
}

// ReadCSVFile opens path and parses it with ReadCSV.
func ReadCSVFile(path string, opts CSVOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: parse %s", path)
	}
	return t, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if f != "" {
			return false
		}
	}
	return true
}
