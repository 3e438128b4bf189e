package treatment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/esg-research/internal/fetcher"
)

func tsv(t *testing.T, lines ...string) *fetcher.Table {
	t.Helper()
	tbl, err := fetcher.ReadCSV(strings.NewReader(strings.Join(lines, "\n")+"\n"), fetcher.CSVOptions{Delimiter: '\t'})
	require.NoError(t, err)
	return tbl
}

const onetHeader = "O*NET-SOC Code\tElement ID\tElement Name\tScale ID\tData Value"

func TestBuildOccupations(t *testing.T) {
	t.Parallel()

	abilities := tsv(t, onetHeader,
		// Programmer: heavy on written comprehension.
		"15-1251.00\t1.A.1.a.2\tWritten Comprehension\tIM\t4.0",
		"15-1251.00\t1.A.4.a.4\tStamina\tIM\t1.0",
		"15-1251.00\t1.A.1.a.2\tWritten Comprehension\tLV\t6.0",
		// Roofer: heavy on stamina.
		"47-2181.00\t1.A.1.a.2\tWritten Comprehension\tIM\t1.0",
		"47-2181.00\t1.A.4.a.4\tStamina\tIM\t4.0",
		// Unweighted element only.
		"99-0000.00\t9.Z\tUnknown\tIM\t3.0",
	)
	activities := tsv(t, onetHeader,
		"15-1251.00\t4.A.3.b.1\tWorking with Computers\tIM\t5.0",
		"13-2011.00\t4.A.2.a.4\tAnalyzing Data\tIM\t4.0",
	)

	occs, err := BuildOccupations(abilities, activities, map[string]string{"15-1251.00": "Computer Programmers"})
	require.NoError(t, err)
	require.Len(t, occs, 3)

	assert.Equal(t, "13-2011.00", occs[0].Code)
	assert.Equal(t, "Financials", occs[0].Sector)
	assert.Nil(t, occs[0].Ability)
	assert.InDelta(t, 0.90, occs[0].Raw, 1e-9)

	prog := occs[1]
	assert.Equal(t, "Computer Programmers", prog.Title)
	assert.Equal(t, "Information Technology", prog.Sector)
	// (4×0.95 + 1×0.05) / 5 = 0.77; activity 0.90; mean 0.835.
	assert.InDelta(t, 0.77, *prog.Ability, 1e-9)
	assert.InDelta(t, 0.90, *prog.Activity, 1e-9)
	assert.InDelta(t, 0.835, prog.Raw, 1e-9)

	roofer := occs[2]
	// (1×0.95 + 4×0.05) / 5 = 0.23
	assert.InDelta(t, 0.23, roofer.Raw, 1e-9)
	assert.Nil(t, roofer.Activity)

	assert.InDelta(t, 100, occs[0].Score, 1e-9)
	assert.InDelta(t, 0, roofer.Score, 1e-9)
	assert.InDelta(t, (0.835-0.23)/(0.90-0.23)*100, prog.Score, 1e-9)
}

func TestBuildOccupations_Errors(t *testing.T) {
	t.Parallel()

	empty := tsv(t, onetHeader)
	_, err := BuildOccupations(empty, empty, nil)
	assert.Error(t, err)

	bad := tsv(t, "code\tvalue", "1\t2")
	_, err = BuildOccupations(bad, empty, nil)
	assert.ErrorContains(t, err, "missing column")
}

func TestBuildSectors(t *testing.T) {
	t.Parallel()

	occs := []Occupation{
		{Code: "15-1", Sector: "Information Technology", Score: 80, Ability: floatp(0.9)},
		{Code: "15-2", Sector: "Information Technology", Score: 60, Ability: floatp(0.7)},
		{Code: "51-1", Sector: "Materials", Score: 20},
		{Code: "99-1", Score: 50},
	}
	sectors := BuildSectors(occs)

	names := make([]string, len(sectors))
	for i, s := range sectors {
		names[i] = s.Sector
	}
	assert.Equal(t, []string{"Energy", "Information Technology", "Materials", "Utilities"}, names)

	it := sectors[1]
	assert.InDelta(t, 70, it.Exposure, 1e-9)
	assert.InDelta(t, 14.142135623730951, it.Std, 1e-9)
	assert.Equal(t, 2, it.Occupations)
	assert.InDelta(t, 0.8, it.Ability, 1e-9)

	assert.Equal(t, 0.0, sectors[2].Std)
	assert.Equal(t, 45.0, sectors[0].Exposure)
	assert.Equal(t, 42.0, sectors[3].Exposure)
}

func TestBuildFromDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "Abilities.txt", onetHeader+"\n15-1251.00\t1.A.1.a.2\tWritten Comprehension\tIM\t4.0\n47-2181.00\t1.A.4.a.4\tStamina\tIM\t4.0\n")
	writeFile(t, dir, "onet_work_activities.txt", onetHeader+"\n15-1251.00\t4.A.3.b.1\tWorking with Computers\tIM\t5.0\n")

	occs, sectors, err := BuildFromDir(dir)
	require.NoError(t, err)
	assert.Len(t, occs, 2)
	assert.Len(t, sectors, 4) // IT, Industrials, Energy, Utilities

	out := filepath.Join(dir, "out")
	require.NoError(t, WriteSectorCSV(filepath.Join(out, "ai_exposure_by_sector.csv"), sectors))
	require.NoError(t, WriteOccupationCSV(filepath.Join(out, "ai_exposure_by_occupation.csv"), occs))

	x, err := LoadIndex(filepath.Join(out, "ai_exposure_by_sector.csv"))
	require.NoError(t, err)
	assert.Equal(t, 100.0, x.Sector["information technology"])
	assert.Equal(t, 0.0, x.Sector["industrials"])

	data, err := os.ReadFile(filepath.Join(out, "ai_exposure_by_occupation.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "15-1251.00,,Information Technology,0.9500,0.9000,0.9250,100.00")
}

func TestBuildFromDir_Missing(t *testing.T) {
	t.Parallel()

	_, _, err := BuildFromDir(t.TempDir())
	assert.ErrorContains(t, err, "onet_abilities.txt")
}

func floatp(v float64) *float64 { return &v }
