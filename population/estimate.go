package population

import (
	"fmt"
	"math"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/logging"
)

// PICRow is one line of the PPI / PIC table: the model keeping the
// Individuals most present clusters as distinct individuals
type PICRow struct {
	Individuals    int
	Cluster        int
	DaysOfPresence int
	PresenceIndex  float64
	PPI            float64
	LogLikelihood  float64
	PIC            float64
}

// Estimate is the outcome of population estimation
type Estimate struct {
	Individuals int
	Residents   int
	Table       []PICRow
}

// Estimator turns the PPI table into an individual count. days is the
// length of the observation window.
type Estimator interface {
	Estimate(rows []PICRow, days int) (Estimate, error)
}

// PopulationPresenceIndex lists clusters in presence order. Row k carries the
// share of days on which at least one of the k most present clusters was heard.
func PopulationPresenceIndex(indices []PresenceIndex, m PresenceMatrix) []PICRow {
	days := m.Days()
	covered := make([]bool, days)
	nCovered := 0

	rows := make([]PICRow, 0, len(indices))
	for k, pi := range indices {
		if r := m.row(pi.Cluster); r >= 0 {
			for d, c := range m.Counts[r] {
				if c > 0 && !covered[d] {
					covered[d] = true
					nCovered++
				}
			}
		}

		ppi := 0.0
		if days > 0 {
			ppi = float64(nCovered) / float64(days)
		}
		rows = append(rows, PICRow{
			Individuals:    k + 1,
			Cluster:        pi.Cluster,
			DaysOfPresence: pi.DaysOfPresence,
			PresenceIndex:  pi.Index,
			PPI:            ppi,
		})
	}
	return rows
}

// PICEstimator models daily presence as Bernoulli trials. For k individuals
// the k most present clusters keep their own rate and the remaining clusters
// share one pooled rate. PIC(k) = -2 LL(k) + 2 p(k), p(k) being the number of
// rates, and the estimate is the k of lowest PIC (smallest k on ties).
type PICEstimator struct{}

// Estimate implements Estimator
func (PICEstimator) Estimate(rows []PICRow, days int) (Estimate, error) {
	if len(rows) == 0 {
		return Estimate{}, nil
	}
	if days <= 0 {
		return Estimate{}, fmt.Errorf("observation window must span at least one day, got %d", days)
	}

	total := len(rows)
	table := make([]PICRow, total)
	copy(table, rows)

	best := 0
	for k := 1; k <= total; k++ {
		ll := 0.0
		for _, r := range rows[:k] {
			ll += bernoulliLL(r.DaysOfPresence, days, float64(r.DaysOfPresence)/float64(days))
		}

		params := k
		if rest := rows[k:]; len(rest) > 0 {
			pooled := 0
			for _, r := range rest {
				pooled += r.DaysOfPresence
			}
			q := float64(pooled) / float64(len(rest)*days)
			for _, r := range rest {
				ll += bernoulliLL(r.DaysOfPresence, days, q)
			}
			params++
		}

		row := &table[k-1]
		row.LogLikelihood = ll
		row.PIC = -2*ll + 2*float64(params)
		if row.PIC < table[best].PIC {
			best = k - 1
		}
	}

	return Estimate{
		Individuals: table[best].Individuals,
		Table:       table,
	}, nil
}

// bernoulliLL is the log-likelihood of `present` successes out of `days`
// trials at rate p, with 0*log(0) taken as 0
func bernoulliLL(present, days int, p float64) float64 {
	absent := days - present
	ll := 0.0
	if present > 0 {
		ll += float64(present) * math.Log(p)
	}
	if absent > 0 {
		ll += float64(absent) * math.Log(1-p)
	}
	return ll
}

// Report gathers every population table of a run
type Report struct {
	Dates    []audio.Date
	Daily    []DailyCount
	Presence PresenceMatrix
	Indices  []PresenceIndex
	Estimate Estimate
}

// Analyzer composes the population tables with an Estimator
type Analyzer struct {
	estimator Estimator
	logger    logging.Logger
}

// NewAnalyzer creates an analyzer; nil selects PICEstimator
func NewAnalyzer(estimator Estimator) *Analyzer {
	if estimator == nil {
		estimator = PICEstimator{}
	}
	return &Analyzer{
		estimator: estimator,
		logger:    logging.WithFields(logging.Fields{"component": "population"}),
	}
}

// Run computes the full report. It fails with ErrDateFormat when any file
// lacks a date.
func (a *Analyzer) Run(labels clustering.Labels, files []string) (*Report, error) {
	if len(labels) != len(files) {
		return nil, fmt.Errorf("%d labels for %d files", len(labels), len(files))
	}

	dates, err := AttachDates(files)
	if err != nil {
		return nil, err
	}
	return a.RunWithDates(labels, dates)
}

// RunWithDates computes the report from already known dates
func (a *Analyzer) RunWithDates(labels clustering.Labels, dates []audio.Date) (*Report, error) {
	if len(labels) != len(dates) {
		return nil, fmt.Errorf("%d labels for %d dates", len(labels), len(dates))
	}

	presence := Presence(labels, dates)
	indices := PresenceIndices(presence)

	est, err := a.estimator.Estimate(PopulationPresenceIndex(indices, presence), presence.Days())
	if err != nil {
		return nil, fmt.Errorf("population estimate failed: %w", err)
	}
	est.Residents = Residents(indices)

	a.logger.Info("Population estimated", logging.Fields{
		"days":        presence.Days(),
		"clusters":    len(indices),
		"individuals": est.Individuals,
		"residents":   est.Residents,
	})

	return &Report{
		Dates:    dates,
		Daily:    DailyCounts(labels, dates),
		Presence: presence,
		Indices:  indices,
		Estimate: est,
	}, nil
}

// Run computes the report with the default PIC estimator
func Run(labels clustering.Labels, files []string) (*Report, error) {
	return NewAnalyzer(nil).Run(labels, files)
}
