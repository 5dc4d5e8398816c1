package population

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/internal/errors"
)

func day(d int) audio.Date {
	return audio.Date{Year: 2023, Month: time.June, Day: d}
}

var (
	sampleFiles = []string{
		"site_20230601_001.wav",
		"site_20230601_002.wav",
		"site_20230603_003.wav",
		"site_20230604_004.wav",
		"site_20230604_005.wav",
	}
	sampleLabels = clustering.Labels{0, 1, 0, clustering.Noise, 0}
)

func TestAttachDates(t *testing.T) {
	dates, err := AttachDates(sampleFiles)
	require.NoError(t, err)
	assert.Equal(t, []audio.Date{day(1), day(1), day(3), day(4), day(4)}, dates)
}

func TestAttachDatesReportsEveryBadFile(t *testing.T) {
	files := []string{"site_20230601_001.wav", "recording.wav", "site_2023-06-01_x.wav"}
	_, err := AttachDates(files)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrDateFormat)
	assert.True(t, errors.IsCategory(err, errors.CategoryDateFormat))

	var dfe *DateFormatError
	require.ErrorAs(t, err, &dfe)
	assert.Equal(t, []string{"recording.wav", "site_2023-06-01_x.wav"}, dfe.Files)
}

func TestDailyCounts(t *testing.T) {
	dates, err := AttachDates(sampleFiles)
	require.NoError(t, err)

	got := DailyCounts(sampleLabels, dates)
	assert.Equal(t, []DailyCount{
		{Date: day(1), Cluster: 0, Count: 1},
		{Date: day(1), Cluster: 1, Count: 1},
		{Date: day(3), Cluster: 0, Count: 1},
		{Date: day(4), Cluster: 0, Count: 1},
	}, got)
}

func TestPresenceHasExplicitZeroDays(t *testing.T) {
	dates, err := AttachDates(sampleFiles)
	require.NoError(t, err)

	m := Presence(sampleLabels, dates)
	assert.Equal(t, []int{0, 1}, m.Clusters)
	assert.Equal(t, []audio.Date{day(1), day(2), day(3), day(4)}, m.Dates)
	assert.Equal(t, [][]int{{1, 0, 1, 1}, {1, 0, 0, 0}}, m.Counts)
	assert.Equal(t, 4, m.Days())
	assert.Equal(t, 3, m.DaysPresent(0))
	assert.Equal(t, 3, m.Sounds(0))
}

func TestPresenceEmpty(t *testing.T) {
	m := Presence(nil, nil)
	assert.Zero(t, m.Days())
	assert.Empty(t, PresenceIndices(m))
}

func TestPresenceIndices(t *testing.T) {
	dates, err := AttachDates(sampleFiles)
	require.NoError(t, err)

	got := PresenceIndices(Presence(sampleLabels, dates))
	assert.Equal(t, []PresenceIndex{
		{Cluster: 0, DaysOfPresence: 3, NumberOfSounds: 3, Index: 0.75},
		{Cluster: 1, DaysOfPresence: 1, NumberOfSounds: 1, Index: 0.25},
	}, got)
}

func TestPresenceIndicesBoundsAndStableOrder(t *testing.T) {
	// clusters 2, 0 and 1 are all present on both days
	labels := clustering.Labels{2, 0, 1, 2, 0, 1, 3}
	dates := []audio.Date{day(1), day(1), day(1), day(2), day(2), day(2), day(2)}

	got := PresenceIndices(Presence(labels, dates))
	require.Len(t, got, 4)
	for _, pi := range got {
		assert.GreaterOrEqual(t, pi.Index, 0.0)
		assert.LessOrEqual(t, pi.Index, 1.0)
	}
	assert.Equal(t, []int{0, 1, 2, 3}, []int{got[0].Cluster, got[1].Cluster, got[2].Cluster, got[3].Cluster})
	assert.Equal(t, 1.0, got[0].Index)
	assert.Equal(t, 0.5, got[3].Index)
}

func TestResidents(t *testing.T) {
	indices := []PresenceIndex{{Index: 0.5}, {Index: 0.02}, {Index: 0.01}, {Index: 0}}
	assert.Equal(t, 2, Residents(indices))
}

func TestPopulationPresenceIndexIsCumulative(t *testing.T) {
	dates, err := AttachDates(sampleFiles)
	require.NoError(t, err)

	m := Presence(sampleLabels, dates)
	rows := PopulationPresenceIndex(PresenceIndices(m), m)
	require.Len(t, rows, 2)

	assert.Equal(t, 1, rows[0].Individuals)
	assert.Equal(t, 0, rows[0].Cluster)
	assert.Equal(t, 0.75, rows[0].PPI)

	assert.Equal(t, 2, rows[1].Individuals)
	assert.Equal(t, 1, rows[1].Cluster)
	// cluster 1 is only heard on a day already covered by cluster 0
	assert.Equal(t, 0.75, rows[1].PPI)
}

func TestPICEstimator(t *testing.T) {
	rows := []PICRow{
		{Individuals: 1, DaysOfPresence: 10},
		{Individuals: 2, DaysOfPresence: 10},
		{Individuals: 3, DaysOfPresence: 1},
	}

	est, err := PICEstimator{}.Estimate(rows, 10)
	require.NoError(t, err)
	require.Len(t, est.Table, 3)

	llTail := math.Log(0.1) + 9*math.Log(0.9)
	assert.InDelta(t, 10*math.Log(0.55)+math.Log(0.55)+9*math.Log(0.45), est.Table[0].LogLikelihood, 1e-9)
	assert.InDelta(t, llTail, est.Table[1].LogLikelihood, 1e-9)
	assert.InDelta(t, llTail, est.Table[2].LogLikelihood, 1e-9)
	assert.InDelta(t, -2*llTail+6, est.Table[1].PIC, 1e-9)

	// k = 2 and k = 3 tie, the smaller count wins
	assert.Equal(t, 2, est.Individuals)
}

func TestPICEstimatorEdgeCases(t *testing.T) {
	est, err := PICEstimator{}.Estimate(nil, 5)
	require.NoError(t, err)
	assert.Zero(t, est.Individuals)

	_, err = PICEstimator{}.Estimate([]PICRow{{Individuals: 1, DaysOfPresence: 1}}, 0)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	report, err := Run(sampleLabels, sampleFiles)
	require.NoError(t, err)

	assert.Len(t, report.Dates, len(sampleFiles))
	assert.Len(t, report.Daily, 4)
	assert.Equal(t, 4, report.Presence.Days())
	assert.Len(t, report.Indices, 2)
	assert.Equal(t, 2, report.Estimate.Residents)
	assert.Equal(t, 1, report.Estimate.Individuals)
	assert.Len(t, report.Estimate.Table, 2)
}

func TestRunUndatedFiles(t *testing.T) {
	_, err := Run(clustering.Labels{0, 1}, []string{"a.wav", "b.wav"})
	assert.ErrorIs(t, err, ErrDateFormat)
}

func TestRunLengthMismatch(t *testing.T) {
	_, err := Run(clustering.Labels{0}, sampleFiles)
	assert.Error(t, err)
}

type fixedEstimator struct{ n int }

func (f fixedEstimator) Estimate(rows []PICRow, days int) (Estimate, error) {
	return Estimate{Individuals: f.n, Table: rows}, nil
}

func TestAnalyzerUsesCustomEstimator(t *testing.T) {
	report, err := NewAnalyzer(fixedEstimator{n: 7}).Run(sampleLabels, sampleFiles)
	require.NoError(t, err)
	assert.Equal(t, 7, report.Estimate.Individuals)
	assert.Equal(t, 2, report.Estimate.Residents)
}
