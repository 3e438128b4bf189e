package panel

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/esg-research/internal/model"
)

// NA marks a missing value on disk.
const NA = "NA"

// Output file names inside the output directory.
const (
	PanelCSV      = "panel.csv"
	ProvenanceCSV = "provenance.csv"
	PanelXLSX     = "panel.xlsx"
)

// FormatValue renders a value with the shortest representation that round-trips,
// in plain decimal below 1e21 and exponent form above.
func FormatValue(v *float64) string {
	if v == nil {
		return NA
	}
	if math.Abs(*v) < 1e21 {
		return strconv.FormatFloat(*v, 'f', -1, 64)
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}

// panelHeader returns the panel's column names. Treatment columns appear only
// once treatment has been attached.
func panelHeader(p *model.Panel) []string {
	h := []string{"firm_key", "year", "sector"}
	for _, m := range p.Metrics {
		h = append(h, string(m))
	}
	if p.Treatment != nil {
		h = append(h, "exposure_score", "exposure_z", "treated", "post_period")
	}
	return h
}

func panelRecord(p *model.Panel, r model.PanelRow) []string {
	rec := []string{r.FirmKey, strconv.Itoa(r.Year), r.Sector}
	for _, m := range p.Metrics {
		rec = append(rec, FormatValue(r.Values[m]))
	}
	if p.Treatment != nil {
		rec = append(rec, FormatValue(r.Exposure), FormatValue(r.ExposureZ), r.Treated.String(), boolString(r.PostPeriod))
	}
	return rec
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// WriteCSV writes the panel. Identical panels produce identical bytes.
func WriteCSV(w io.Writer, p *model.Panel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(panelHeader(p)); err != nil {
		return eris.Wrap(err, "panel: write header")
	}
	for _, r := range p.Rows {
		if err := cw.Write(panelRecord(p, r)); err != nil {
			return eris.Wrapf(err, "panel: write row %s/%d", r.FirmKey, r.Year)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "panel: flush csv")
}

var provenanceHeader = []string{
	"firm_key", "year", "metric",
	"winner_source", "winner_value",
	"discarded_source", "discarded_value", "discarded_confidence", "discarded_priority",
}

func provenanceRecords(p *model.Panel) [][]string {
	var out [][]string
	for _, pr := range p.Provenance {
		for _, d := range pr.Discarded {
			out = append(out, []string{
				pr.FirmKey, strconv.Itoa(pr.Year), string(pr.Metric),
				pr.WinnerSource, FormatValue(pr.WinnerValue),
				d.Source, FormatValue(d.Value), string(d.Confidence), strconv.Itoa(d.Priority),
			})
		}
	}
	return out
}

// WriteProvenanceCSV writes one line per discarded source value.
func WriteProvenanceCSV(w io.Writer, p *model.Panel) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(provenanceHeader); err != nil {
		return eris.Wrap(err, "panel: write provenance header")
	}
	if err := cw.WriteAll(provenanceRecords(p)); err != nil {
		return eris.Wrap(err, "panel: write provenance")
	}
	return nil
}

// WriteXLSX writes a workbook with "panel" and "provenance" sheets. Values
// are numeric cells; missing values are left empty.
func WriteXLSX(path string, p *model.Panel) error {
	f := xlsx.NewFile()

	sheet, err := f.AddSheet("panel")
	if err != nil {
		return eris.Wrap(err, "panel: add panel sheet")
	}
	addStringRow(sheet, panelHeader(p))
	for _, r := range p.Rows {
		row := sheet.AddRow()
		row.AddCell().SetString(r.FirmKey)
		row.AddCell().SetInt(r.Year)
		row.AddCell().SetString(r.Sector)
		for _, m := range p.Metrics {
			addFloatCell(row, r.Values[m])
		}
		if p.Treatment != nil {
			addFloatCell(row, r.Exposure)
			addFloatCell(row, r.ExposureZ)
			row.AddCell().SetString(r.Treated.String())
			row.AddCell().SetBool(r.PostPeriod)
		}
	}

	prov, err := f.AddSheet("provenance")
	if err != nil {
		return eris.Wrap(err, "panel: add provenance sheet")
	}
	addStringRow(prov, provenanceHeader)
	for _, rec := range provenanceRecords(p) {
		addStringRow(prov, rec)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "panel: save %s", path)
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addFloatCell(row *xlsx.Row, v *float64) {
	c := row.AddCell()
	if v != nil {
		c.SetFloat(*v)
	}
}

// WriteFiles writes panel.csv, provenance.csv and, when withXLSX is set,
// panel.xlsx into dir. It returns the paths written.
func WriteFiles(dir string, p *model.Panel, withXLSX bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "panel: create %s", dir)
	}

	var written []string
	for _, out := range []struct {
		name  string
		write func(io.Writer, *model.Panel) error
	}{
		{PanelCSV, WriteCSV},
		{ProvenanceCSV, WriteProvenanceCSV},
	} {
		path := filepath.Join(dir, out.name)
		if err := writeFile(path, func(w io.Writer) error { return out.write(w, p) }); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if withXLSX {
		path := filepath.Join(dir, PanelXLSX)
		if err := WriteXLSX(path, p); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "panel: create %s", path)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "panel: close %s", path)
}
