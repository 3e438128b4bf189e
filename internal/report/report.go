// Package report writes the run artifacts: regression results, the drop
// summary, and the run manifest used to replicate a run.
package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/esg-research/internal/model"
)

// Output file names.
const (
	ResultsCSV      = "results.csv"
	ResultsJSON     = "results.json"
	SummaryJSON     = "summary.json"
	RunYAML         = "run.yaml"
	UnresolvedCSV   = "unresolved.csv"
	TreatmentCSV    = "treatment.csv"
	DescriptiveJSON = "descriptive.json"
)

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// Summary is the serialized form of a run summary. ByStage and Total add up
// row counts only; ByUnit totals every unit separately.
type Summary struct {
	RunID   string               `json:"run_id"`
	Entries []model.SummaryEntry `json:"entries"`
	ByStage map[model.Stage]int  `json:"by_stage"`
	ByUnit  map[model.Unit]int   `json:"by_unit"`
	Total   int                  `json:"total_rows"`
}

// NewSummary snapshots s.
func NewSummary(s *model.RunSummary) Summary {
	out := Summary{Entries: s.Entries(), ByStage: make(map[model.Stage]int), ByUnit: make(map[model.Unit]int)}
	if s != nil {
		out.RunID = s.RunID
	}
	if out.Entries == nil {
		out.Entries = []model.SummaryEntry{}
	}
	for _, e := range out.Entries {
		out.ByUnit[e.Unit] += e.Count
		if e.Unit != model.UnitRows {
			continue
		}
		out.ByStage[e.Stage] += e.Count
		out.Total += e.Count
	}
	return out
}

// WriteSummary writes summary.json into dir.
func WriteSummary(dir string, s *model.RunSummary) (string, error) {
	path := filepath.Join(dir, SummaryJSON)
	return path, WriteJSON(path, NewSummary(s))
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "report: marshal %s", filepath.Base(path))
	}
	return writeFile(path, append(data, '\n'))
}

var resultsHeader = []string{
	"spec", "metric", "term", "coef", "std_err", "t_stat", "p_value", "stars",
	"n", "dropped", "clusters", "r_squared", "se_type", "post_start_year",
}

// WriteResults writes results.csv and results.json into dir, in the order given.
func WriteResults(dir string, results []model.Result) ([]string, error) {
	if results == nil {
		results = []model.Result{}
	}
	csvPath := filepath.Join(dir, ResultsCSV)
	if err := writeCSV(csvPath, resultRecords(results)); err != nil {
		return nil, err
	}
	jsonPath := filepath.Join(dir, ResultsJSON)
	if err := WriteJSON(jsonPath, results); err != nil {
		return nil, err
	}
	return []string{csvPath, jsonPath}, nil
}

func resultRecords(results []model.Result) [][]string {
	records := [][]string{resultsHeader}
	for _, r := range results {
		records = append(records, []string{
			r.Spec,
			string(r.Metric),
			r.Term,
			formatFloat(r.Coef),
			formatFloat(r.StdErr),
			formatFloat(r.TStat),
			formatFloat(r.PValue),
			model.Stars(r.PValue),
			strconv.Itoa(r.N),
			strconv.Itoa(r.Dropped),
			strconv.Itoa(r.Clusters),
			formatFloat(r.RSquared),
			r.SEType,
			strconv.Itoa(r.Cutoff),
		})
	}
	return records
}

// Manifest is run.yaml: what was run, with which parameters, producing which files.
type Manifest struct {
	RunID      string               `yaml:"run_id" json:"run_id"`
	Command    string               `yaml:"command" json:"command"`
	StartedAt  time.Time            `yaml:"started_at" json:"started_at"`
	FinishedAt time.Time            `yaml:"finished_at" json:"finished_at"`
	Parameters any                  `yaml:"parameters" json:"parameters"`
	Treatment  *model.TreatmentInfo `yaml:"treatment,omitempty" json:"treatment,omitempty"`
	Sources    any                  `yaml:"sources,omitempty" json:"sources,omitempty"`
	Stages     any                  `yaml:"stages,omitempty" json:"stages,omitempty"`
	Outputs    []string             `yaml:"outputs" json:"outputs"`
	Summary    []model.SummaryEntry `yaml:"summary" json:"summary"`
}

// WriteManifest writes run.yaml into dir.
func WriteManifest(dir string, m Manifest) (string, error) {
	path := filepath.Join(dir, RunYAML)
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "report: marshal run manifest")
	}
	return path, writeFile(path, data)
}

// ReadManifest reads a run.yaml written by WriteManifest.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "report: read %s", path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "report: parse %s", path)
	}
	return &m, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

func writeCSV(path string, records [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := csv.NewWriter(f).WriteAll(records); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "report: create dir for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
