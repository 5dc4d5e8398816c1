// Package population turns cluster labels and recording dates into daily
// presence tables, per-cluster presence indices and an estimate of the number
// of individuals.
package population

import (
	"fmt"
	"sort"
	"strings"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/internal/errors"
)

// ResidentThreshold is the presence index above which a cluster counts as resident
const ResidentThreshold = 0.01

// ErrDateFormat is returned when recording filenames do not carry a date.
// Population estimation is skipped but clustering results remain valid.
var ErrDateFormat = errors.NewStd("filenames must carry the recording date as YYYYMMDD in their second underscore-separated field, e.g. site_20230619_001.wav")

// DateFormatError lists the files whose date could not be parsed
type DateFormatError struct {
	Files []string
}

func (e *DateFormatError) Error() string {
	return fmt.Sprintf("%v: %s", ErrDateFormat, strings.Join(e.Files, ", "))
}

func (e *DateFormatError) Unwrap() error {
	return ErrDateFormat
}

// DailyCount is the number of sounds of one cluster on one day
type DailyCount struct {
	Date    audio.Date
	Cluster int
	Count   int
}

// PresenceMatrix holds per-cluster sound counts on every day of the
// observation window, days without sounds included as zeros
type PresenceMatrix struct {
	Clusters []int
	Dates    []audio.Date
	Counts   [][]int // Counts[cluster index][date index]
}

// Days is the number of days spanned by the window
func (m PresenceMatrix) Days() int {
	return len(m.Dates)
}

// DaysPresent counts the days with at least one sound for cluster row ci
func (m PresenceMatrix) DaysPresent(ci int) int {
	n := 0
	for _, c := range m.Counts[ci] {
		if c > 0 {
			n++
		}
	}
	return n
}

// Sounds totals the sounds of cluster row ci
func (m PresenceMatrix) Sounds(ci int) int {
	n := 0
	for _, c := range m.Counts[ci] {
		n += c
	}
	return n
}

// row returns the row of cluster id, or -1
func (m PresenceMatrix) row(cluster int) int {
	for i, c := range m.Clusters {
		if c == cluster {
			return i
		}
	}
	return -1
}

// PresenceIndex summarises how regularly a cluster is heard
type PresenceIndex struct {
	Cluster        int
	DaysOfPresence int
	NumberOfSounds int
	Index          float64
}

// AttachDates parses the date of every file. All offending files are reported at once.
func AttachDates(files []string) ([]audio.Date, error) {
	dates := make([]audio.Date, len(files))
	var bad []string
	for i, f := range files {
		d, err := audio.ParseFilenameDate(f)
		if err != nil {
			bad = append(bad, f)
			continue
		}
		dates[i] = d
	}

	if len(bad) > 0 {
		return nil, errors.New(&DateFormatError{Files: bad}).
			Component("population").
			Category(errors.CategoryDateFormat).
			Context("invalid_files", len(bad)).
			Build()
	}
	return dates, nil
}

// DailyCounts counts sounds per (day, cluster), sorted by date then cluster.
// Noise is excluded.
func DailyCounts(labels clustering.Labels, dates []audio.Date) []DailyCount {
	type key struct {
		date    audio.Date
		cluster int
	}
	counts := make(map[key]int)
	for i, c := range labels {
		if c == clustering.Noise {
			continue
		}
		counts[key{dates[i], c}]++
	}

	out := make([]DailyCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, DailyCount{Date: k.date, Cluster: k.cluster, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].Cluster < out[j].Cluster
	})
	return out
}

// Presence builds the matrix over every day from the first to the last
// recording, inclusive. Clusters are listed in ascending id order.
func Presence(labels clustering.Labels, dates []audio.Date) PresenceMatrix {
	if len(dates) == 0 {
		return PresenceMatrix{}
	}

	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if last.Before(d) {
			last = d
		}
	}

	span := first.DaysUntil(last) + 1
	m := PresenceMatrix{
		Clusters: labels.Clusters(),
		Dates:    make([]audio.Date, span),
	}
	for i := 0; i < span; i++ {
		m.Dates[i] = first.AddDays(i)
	}

	m.Counts = make([][]int, len(m.Clusters))
	for i := range m.Counts {
		m.Counts[i] = make([]int, span)
	}
	for i, c := range labels {
		if c == clustering.Noise {
			continue
		}
		m.Counts[m.row(c)][first.DaysUntil(dates[i])]++
	}
	return m
}

// PresenceIndices computes days of presence / days spanned for every cluster,
// sorted by descending index. Ties keep ascending cluster order.
func PresenceIndices(m PresenceMatrix) []PresenceIndex {
	days := m.Days()
	out := make([]PresenceIndex, len(m.Clusters))
	for i, c := range m.Clusters {
		present := m.DaysPresent(i)
		idx := 0.0
		if days > 0 {
			idx = float64(present) / float64(days)
		}
		out[i] = PresenceIndex{
			Cluster:        c,
			DaysOfPresence: present,
			NumberOfSounds: m.Sounds(i),
			Index:          idx,
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index > out[j].Index })
	return out
}

// Residents counts clusters whose presence index exceeds ResidentThreshold
func Residents(indices []PresenceIndex) int {
	n := 0
	for _, pi := range indices {
		if pi.Index > ResidentThreshold {
			n++
		}
	}
	return n
}
