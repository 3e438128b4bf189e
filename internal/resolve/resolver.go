// Package resolve maps raw source identifiers (ticker, CIK, company name) onto the
// canonical firm roster.
package resolve

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/esg-research/internal/model"
)

// DefaultFuzzyThreshold is the minimum normalized-name similarity for a fuzzy match.
const DefaultFuzzyThreshold = 0.85

// tieEpsilon treats similarity scores this close as equal.
const tieEpsilon = 1e-9

// Method records which pass matched a record.
type Method string

const (
	MethodCIK    Method = "cik"
	MethodTicker Method = "ticker"
	MethodAlias  Method = "alias"
	MethodFuzzy  Method = "fuzzy"
)

// Resolution is the outcome of resolving one record. FirmKey is empty when unresolved.
type Resolution struct {
	FirmKey string
	Method  Method
	Score   float64
	Reason  model.Reason // set only when unresolved
}

// Resolved reports whether a firm was found.
func (r Resolution) Resolved() bool { return r.FirmKey != "" }

// UnresolvedRecord is a record the resolver gave up on, kept for manual review.
type UnresolvedRecord struct {
	Record    model.RawRecord
	Reason    model.Reason
	Candidate string // best fuzzy candidate, if any
	Score     float64
}

// Options tunes a Resolver.
type Options struct {
	FuzzyThreshold float64
	Summary        *model.RunSummary
}

// Resolver runs the CIK → ticker → alias → fuzzy-name cascade against a roster.
type Resolver struct {
	roster    *Roster
	aliases   Aliases
	threshold float64
	summary   *model.RunSummary
	log       *zap.Logger

	mu         sync.Mutex
	fuzzyCache map[string]candidateResolution
	unresolved []UnresolvedRecord
}

// NewResolver creates a resolver over roster. A nil alias table means no aliases.
func NewResolver(roster *Roster, aliases Aliases, opts Options) *Resolver {
	threshold := opts.FuzzyThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Resolver{
		roster:     roster,
		aliases:    aliases,
		threshold:  threshold,
		summary:    opts.Summary,
		log:        zap.L().With(zap.String("component", "resolver")),
		fuzzyCache: make(map[string]candidateResolution),
	}
}

// Resolve maps a raw record to a firm key. It never fails: records that cannot be
// matched come back unresolved with a reason, are logged, and are kept for
// WriteUnresolved.
func (r *Resolver) Resolve(rec model.RawRecord) Resolution {
	res := r.match(rec)
	if res.Resolved() {
		return res.Resolution
	}

	r.mu.Lock()
	r.unresolved = append(r.unresolved, UnresolvedRecord{
		Record:    rec,
		Reason:    res.Reason,
		Candidate: res.candidate,
		Score:     res.Score,
	})
	r.mu.Unlock()

	r.summary.Add(model.StageResolve, res.Reason, 1)
	r.log.Warn("unresolved record",
		zap.String("source", rec.Source),
		zap.Int("line", rec.Line),
		zap.String("identifiers", rec.Identifiers()),
		zap.String("reason", string(res.Reason)),
	)
	return Resolution{Reason: res.Reason, Score: res.Score}
}

func (r *Resolver) match(rec model.RawRecord) candidateResolution {
	res := r.cascade(rec)
	// a CIK that names several share classes is ambiguous unless a later pass settled it
	if !res.Resolved() && res.Reason == model.ReasonUnresolved {
		if keys, shared := r.roster.sharedCIK[model.PadCIK(rec.CIK)]; shared {
			res.Reason = model.ReasonAmbiguous
			if res.candidate == "" {
				res.candidate = keys[0]
			}
		}
	}
	return res
}

func (r *Resolver) cascade(rec model.RawRecord) candidateResolution {
	if cik := model.PadCIK(rec.CIK); cik != "" {
		if i, ok := r.roster.byCIK[cik]; ok {
			return hit(r.roster.firms[i].Key, MethodCIK, 1)
		}
	}
	if t := NormalizeTicker(rec.Ticker); t != "" {
		if i, ok := r.roster.byTicker[t]; ok {
			return hit(r.roster.firms[i].Key, MethodTicker, 1)
		}
	}

	name := NormalizeName(rec.Name)
	if name == "" {
		return candidateResolution{Resolution: Resolution{Reason: model.ReasonUnresolved}}
	}
	if target, ok := r.aliases[name]; ok {
		if i, ok := r.roster.byKey[target]; ok {
			return hit(r.roster.firms[i].Key, MethodAlias, 1)
		}
		if i, ok := r.roster.byTicker[NormalizeTicker(target)]; ok {
			return hit(r.roster.firms[i].Key, MethodAlias, 1)
		}
	}
	return r.fuzzy(name)
}

// fuzzy scores name against every roster name. A unique best score at or above the
// threshold wins; a shared best score is ambiguous and never guessed.
func (r *Resolver) fuzzy(name string) candidateResolution {
	r.mu.Lock()
	cached, ok := r.fuzzyCache[name]
	r.mu.Unlock()
	if ok {
		return cached
	}

	best, bestScore, tied := -1, 0.0, false
	for _, e := range r.roster.names {
		score := levenshtein.Similarity(name, e.norm, nil)
		switch {
		case best < 0 || score > bestScore+tieEpsilon:
			best, bestScore, tied = e.idx, score, false
		case math.Abs(score-bestScore) <= tieEpsilon && r.roster.firms[e.idx].Key != r.roster.firms[best].Key:
			tied = true
		}
	}

	var out candidateResolution
	switch {
	case best < 0 || bestScore < r.threshold:
		out = candidateResolution{Resolution: Resolution{Reason: model.ReasonUnresolved, Score: bestScore}}
		if best >= 0 {
			out.candidate = r.roster.firms[best].Key
		}
	case tied:
		out = candidateResolution{
			Resolution: Resolution{Reason: model.ReasonAmbiguous, Score: bestScore},
			candidate:  r.roster.firms[best].Key,
		}
	default:
		out = hit(r.roster.firms[best].Key, MethodFuzzy, bestScore)
	}

	r.mu.Lock()
	r.fuzzyCache[name] = out
	r.mu.Unlock()
	return out
}

// candidateResolution carries the closest rejected candidate alongside an unresolved outcome.
type candidateResolution struct {
	Resolution
	candidate string
}

func hit(key string, m Method, score float64) candidateResolution {
	return candidateResolution{Resolution: Resolution{FirmKey: key, Method: m, Score: score}}
}

// Unresolved returns the records that failed to resolve, in arrival order.
func (r *Resolver) Unresolved() []UnresolvedRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UnresolvedRecord, len(r.unresolved))
	copy(out, r.unresolved)
	return out
}

// WriteUnresolved writes the unresolved records as a review CSV.
func (r *Resolver) WriteUnresolved(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "resolve: create unresolved directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "resolve: create unresolved file")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	_ = w.Write([]string{"source", "line", "ticker", "cik", "name", "year", "metric", "reason", "candidate", "score"})
	for _, u := range r.Unresolved() {
		score := ""
		if u.Candidate != "" {
			score = strconv.FormatFloat(u.Score, 'f', 4, 64)
		}
		_ = w.Write([]string{
			u.Record.Source,
			strconv.Itoa(u.Record.Line),
			u.Record.Ticker,
			u.Record.CIK,
			u.Record.Name,
			strconv.Itoa(u.Record.Year),
			string(u.Record.Metric),
			string(u.Reason),
			u.Candidate,
			score,
		})
	}
	w.Flush()
	return eris.Wrap(w.Error(), "resolve: write unresolved")
}
