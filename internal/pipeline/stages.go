package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/fetcher"
	"github.com/sells-group/esg-research/internal/model"
	"github.com/sells-group/esg-research/internal/panel"
	"github.com/sells-group/esg-research/internal/report"
	"github.com/sells-group/esg-research/internal/resolve"
	"github.com/sells-group/esg-research/internal/source"
	"github.com/sells-group/esg-research/internal/store"
	"github.com/sells-group/esg-research/internal/treatment"
)

// OccupationCSV is written next to the sector exposure file.
const OccupationCSV = "ai_exposure_by_occupation.csv"

// Roster loads the roster file, falling back to the firms already in the store.
func (p *Pipeline) Roster(ctx context.Context) (*resolve.Roster, error) {
	if path := p.cfg.Paths.Roster; exists(path) {
		return resolve.LoadRoster(path)
	}
	if p.store == nil {
		return nil, eris.Errorf("pipeline: roster %s not found", p.cfg.Paths.Roster)
	}
	firms, err := p.store.ListFirms(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list firms")
	}
	if len(firms) == 0 {
		return nil, eris.Errorf("pipeline: roster %s not found and store has no firms", p.cfg.Paths.Roster)
	}
	return resolve.NewRoster(firms)
}

// BuildRoster loads the roster file, optionally fills missing CIKs from EDGAR's
// ticker directory, writes it back and stores the firms. Returns the number of
// CIKs filled.
func (p *Pipeline) BuildRoster(ctx context.Context, enrich bool) (*resolve.Roster, int, error) {
	path := p.cfg.Paths.Roster
	roster, err := resolve.LoadRoster(path)
	if err != nil {
		return nil, 0, err
	}

	filled := 0
	if enrich {
		if p.edgar == nil {
			return nil, 0, eris.New("pipeline: roster enrichment needs an EDGAR client")
		}
		companies, err := p.edgar.CompanyTickers(ctx)
		if err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: fetch company tickers")
		}
		entries := make([]resolve.TickerEntry, len(companies))
		for i, c := range companies {
			entries[i] = resolve.TickerEntry{CIK: c.CIK, Ticker: c.Ticker, Title: c.Title}
		}
		filled = roster.Enrich(entries)
		if err := resolve.WriteRoster(path, roster); err != nil {
			return nil, 0, err
		}
	}

	if p.store != nil {
		if err := p.store.UpsertFirms(ctx, roster.Firms()); err != nil {
			return nil, 0, eris.Wrap(err, "pipeline: store roster")
		}
	}
	zap.L().Info("pipeline: roster ready", zap.Int("firms", roster.Len()), zap.Int("ciks_filled", filled))
	return roster, filled, nil
}

// DefaultSources returns the registered sources that can run with the current
// configuration: file sources with a path or URL, and edgar_ai when an EDGAR
// client is set.
func (p *Pipeline) DefaultSources(reg *source.Registry) []string {
	var out []string
	for _, s := range reg.All() {
		if s.Kind() == source.KindAPI {
			if s.Name() == source.NameEDGARAI && p.edgar != nil {
				out = append(out, s.Name())
			}
			continue
		}
		if sc, ok := p.cfg.Sources[s.Name()]; ok && (sc.Path != "" || sc.URL != "") {
			out = append(out, s.Name())
		}
	}
	return out
}

// Ingest runs the selected sources (all runnable sources when names is empty)
// into the store and writes unresolved.csv.
func (p *Pipeline) Ingest(ctx context.Context, names []string) ([]source.LoadResult, error) {
	if err := p.requireStore(); err != nil {
		return nil, err
	}
	roster, err := p.Roster(ctx)
	if err != nil {
		return nil, err
	}
	aliases, err := resolve.LoadAliases(p.cfg.Paths.Aliases)
	if err != nil {
		return nil, err
	}
	resolver := resolve.NewResolver(roster, aliases, resolve.Options{
		FuzzyThreshold: p.cfg.Resolve.FuzzyThreshold,
		Summary:        p.summary,
	})

	reg := source.NewRegistry(p.cfg)
	if len(names) == 0 {
		names = p.DefaultSources(reg)
		if len(names) == 0 {
			return nil, eris.Wrap(model.ErrNoResolvableInput, "pipeline: no sources configured")
		}
	}

	env := source.Env{
		Fetcher: p.fetcher,
		EDGAR:   p.edgar,
		Roster:  roster,
		Summary: p.summary,
		TempDir: p.cfg.Paths.TempDir,
	}
	engine := source.NewEngine(p.store, resolver, reg, env, p.runID)
	results, runErr := engine.Run(ctx, source.RunOpts{Sources: names})

	unresolved := filepath.Join(p.cfg.Paths.OutputDir, report.UnresolvedCSV)
	if err := resolver.WriteUnresolved(unresolved); err != nil {
		return results, err
	}
	p.output(unresolved)
	return results, runErr
}

// BuildExposure builds the sector exposure index from the O*NET files in
// treatment.onet_dir, downloading the O*NET database first when download is set
// and files are missing. Writes the sector file to treatment.exposure_file and
// the occupation file beside it.
func (p *Pipeline) BuildExposure(ctx context.Context, download bool) ([]treatment.SectorExposure, error) {
	dir := p.cfg.Treatment.ONETDir
	if download {
		if err := p.ensureONET(ctx, dir); err != nil {
			return nil, err
		}
	}
	occs, sectors, err := treatment.BuildFromDir(dir)
	if err != nil {
		return nil, err
	}

	sectorPath := p.cfg.Treatment.ExposureFile
	if err := treatment.WriteSectorCSV(sectorPath, sectors); err != nil {
		return nil, err
	}
	occPath := filepath.Join(filepath.Dir(sectorPath), OccupationCSV)
	if err := treatment.WriteOccupationCSV(occPath, occs); err != nil {
		return nil, err
	}
	p.output(sectorPath, occPath)
	return sectors, nil
}

// ensureONET extracts any missing O*NET file from the database archive.
func (p *Pipeline) ensureONET(ctx context.Context, dir string) error {
	groups := [][]string{treatment.AbilitiesFiles, treatment.ActivitiesFiles, treatment.OccupationsFiles}
	var missing [][]string
	for _, names := range groups {
		if _, err := treatment.FindONETFile(dir, names); err != nil {
			missing = append(missing, names)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if p.fetcher == nil || p.cfg.Treatment.ONETURL == "" {
		return eris.New("pipeline: o*net files missing and no download configured (treatment.onet_url)")
	}

	if err := os.MkdirAll(p.cfg.Paths.TempDir, 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create temp dir")
	}
	archive := filepath.Join(p.cfg.Paths.TempDir, "onet.zip")
	n, err := p.fetcher.DownloadToFile(ctx, p.cfg.Treatment.ONETURL, archive)
	if err != nil {
		return eris.Wrap(err, "pipeline: download o*net database")
	}
	zap.L().Info("pipeline: downloaded o*net database", zap.Int64("bytes", n))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "pipeline: create %s", dir)
	}
	staging := filepath.Join(dir, ".extract")
	defer os.RemoveAll(staging) //nolint:errcheck
	for _, names := range missing {
		// Archive entries use the O*NET names; the renamed copies come first in the list.
		entry := names[len(names)-1]
		path, err := fetcher.ExtractZIPMatch(archive, entry, staging)
		if err != nil {
			return eris.Wrapf(err, "pipeline: extract %s", entry)
		}
		if err := os.Rename(path, filepath.Join(dir, entry)); err != nil {
			return eris.Wrapf(err, "pipeline: move %s into %s", entry, dir)
		}
	}
	return nil
}

// Panel assembles the firm-year panel from every observation in the store.
func (p *Pipeline) Panel(ctx context.Context) (*model.Panel, error) {
	if err := p.requireStore(); err != nil {
		return nil, err
	}
	obs, err := p.store.ListObservations(ctx, store.ObservationFilter{})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list observations")
	}
	firms, err := p.store.ListFirms(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list firms")
	}
	asm := panel.NewAssembler(panel.Options{
		SourcePriority: p.cfg.Panel.SourcePriority,
		Summary:        p.summary,
	})
	return asm.Assemble(obs, firms)
}

// WritePanel writes the panel, provenance and optional workbook.
func (p *Pipeline) WritePanel(pl *model.Panel) error {
	paths, err := panel.WriteFiles(p.cfg.Paths.OutputDir, pl, p.cfg.Panel.WriteXLSX)
	if err != nil {
		return err
	}
	p.output(paths...)
	return nil
}

// ExposureIndex loads treatment.exposure_file, building it from O*NET files
// when it does not exist yet.
func (p *Pipeline) ExposureIndex(ctx context.Context) (*treatment.Index, error) {
	path := p.cfg.Treatment.ExposureFile
	if !exists(path) {
		zap.L().Info("pipeline: exposure file missing, building from o*net", zap.String("path", path))
		if _, err := p.BuildExposure(ctx, false); err != nil {
			return nil, eris.Wrapf(err, "pipeline: exposure file %s", path)
		}
	}
	return treatment.LoadIndex(path)
}

// Treat attaches exposure and treatment flags to pl and writes treatment.csv.
func (p *Pipeline) Treat(ctx context.Context, pl *model.Panel) ([]model.TreatmentAssignment, error) {
	idx, err := p.ExposureIndex(ctx)
	if err != nil {
		return nil, err
	}
	cutoff, err := p.cfg.Treatment.Cutoff()
	if err != nil {
		return nil, err
	}
	as, err := treatment.Apply(pl, idx, treatment.Params{
		Threshold: p.cfg.Treatment.Threshold,
		Cutoff:    cutoff,
		Level:     p.cfg.Treatment.ExposureLevel,
		Summary:   p.summary,
	})
	if err != nil {
		return nil, err
	}
	path := filepath.Join(p.cfg.Paths.OutputDir, report.TreatmentCSV)
	if err := treatment.WriteAssignmentsCSV(path, as); err != nil {
		return nil, err
	}
	p.output(path)
	return as, nil
}
