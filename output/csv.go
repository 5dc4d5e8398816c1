// Package output persists the results of a run: CSV tables, keypoint images
// and the parameter snapshot.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/reefpulse/LagoPObs/audio"
	"github.com/reefpulse/LagoPObs/clustering"
	"github.com/reefpulse/LagoPObs/population"
)

// File names written to the output directory
const (
	ClusteringResultsFile  = "clustering_results.csv"
	DailyCountsFile        = "number_of_clusters_per_day.csv"
	PresenceMatrixFile     = "number_of_sounds_per_cluster_per_date.csv"
	PresenceIndexFile      = "presence_index.csv"
	PICTableFile           = "PPI_PIC.csv"
	PopulationEstimateFile = "population_estimate.csv"
	RunConfigFile          = "run_config.yaml"
)

var (
	clusteringHeader = []string{"File", "Cluster"}
	dailyHeader      = []string{"Date", "Cluster", "Count"}
	presenceHeader   = []string{"Cluster", "Days_of_presence", "Number_of_sounds", "Presence_index"}
	picHeader        = []string{"Individuals", "Cluster", "Days_of_presence", "Presence_index", "PPI", "Log_likelihood", "PIC"}
	estimateHeader   = []string{"Estimated_individuals", "Resident_individuals"}
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// writeTable writes through a temporary file renamed into place, so a failed
// attempt never leaves a truncated table behind
func writeTable(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// readTable returns the data rows after checking the header
func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	got, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: empty file", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if header != nil {
		if len(got) != len(header) {
			return nil, fmt.Errorf("%s: header %v, want %v", path, got, header)
		}
		for i := range header {
			if got[i] != header[i] {
				return nil, fmt.Errorf("%s: header %v, want %v", path, got, header)
			}
		}
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return append([][]string{got}, rows...), nil
}

func atoi(path string, line int, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s line %d: %w", path, line, err)
	}
	return v, nil
}

func atof(path string, line int, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s line %d: %w", path, line, err)
	}
	return v, nil
}

// WriteClusteringResults writes one (File, Cluster) row per recording, in batch order
func WriteClusteringResults(path string, files []string, labels clustering.Labels) error {
	if len(files) != len(labels) {
		return fmt.Errorf("%d files for %d labels", len(files), len(labels))
	}
	rows := make([][]string, len(files))
	for i, f := range files {
		rows[i] = []string{f, strconv.Itoa(labels[i])}
	}
	return writeTable(path, clusteringHeader, rows)
}

// ReadClusteringResults reads a table written by WriteClusteringResults
func ReadClusteringResults(path string) ([]string, clustering.Labels, error) {
	rows, err := readTable(path, clusteringHeader)
	if err != nil {
		return nil, nil, err
	}

	files := make([]string, 0, len(rows)-1)
	labels := make(clustering.Labels, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != 2 {
			return nil, nil, fmt.Errorf("%s line %d: %d fields", path, i+2, len(row))
		}
		c, err := atoi(path, i+2, row[1])
		if err != nil {
			return nil, nil, err
		}
		files = append(files, row[0])
		labels = append(labels, c)
	}
	return files, labels, nil
}

// WriteDailyCounts writes (Date, Cluster, Count) rows
func WriteDailyCounts(path string, counts []population.DailyCount) error {
	rows := make([][]string, len(counts))
	for i, c := range counts {
		rows[i] = []string{c.Date.String(), strconv.Itoa(c.Cluster), strconv.Itoa(c.Count)}
	}
	return writeTable(path, dailyHeader, rows)
}

// ReadDailyCounts reads a table written by WriteDailyCounts
func ReadDailyCounts(path string) ([]population.DailyCount, error) {
	rows, err := readTable(path, dailyHeader)
	if err != nil {
		return nil, err
	}

	out := make([]population.DailyCount, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != 3 {
			return nil, fmt.Errorf("%s line %d: %d fields", path, line, len(row))
		}
		d, err := audio.ParseDate(row[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		cluster, err := atoi(path, line, row[1])
		if err != nil {
			return nil, err
		}
		count, err := atoi(path, line, row[2])
		if err != nil {
			return nil, err
		}
		out = append(out, population.DailyCount{Date: d, Cluster: cluster, Count: count})
	}
	return out, nil
}

// WritePresenceMatrix writes the wide form: one row per cluster, one column per day
func WritePresenceMatrix(path string, m population.PresenceMatrix) error {
	header := make([]string, 0, len(m.Dates)+1)
	header = append(header, "Cluster")
	for _, d := range m.Dates {
		header = append(header, d.String())
	}

	rows := make([][]string, len(m.Clusters))
	for i, c := range m.Clusters {
		row := make([]string, 0, len(m.Dates)+1)
		row = append(row, strconv.Itoa(c))
		for _, n := range m.Counts[i] {
			row = append(row, strconv.Itoa(n))
		}
		rows[i] = row
	}
	return writeTable(path, header, rows)
}

// ReadPresenceMatrix reads a table written by WritePresenceMatrix
func ReadPresenceMatrix(path string) (population.PresenceMatrix, error) {
	rows, err := readTable(path, nil)
	if err != nil {
		return population.PresenceMatrix{}, err
	}

	header := rows[0]
	if header[0] != "Cluster" {
		return population.PresenceMatrix{}, fmt.Errorf("%s: first column is %q, want Cluster", path, header[0])
	}

	var m population.PresenceMatrix
	for _, h := range header[1:] {
		d, err := audio.ParseDate(h)
		if err != nil {
			return population.PresenceMatrix{}, fmt.Errorf("%s header: %w", path, err)
		}
		m.Dates = append(m.Dates, d)
	}

	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(header) {
			return population.PresenceMatrix{}, fmt.Errorf("%s line %d: %d fields, want %d", path, line, len(row), len(header))
		}
		c, err := atoi(path, line, row[0])
		if err != nil {
			return population.PresenceMatrix{}, err
		}
		counts := make([]int, len(m.Dates))
		for j, s := range row[1:] {
			if counts[j], err = atoi(path, line, s); err != nil {
				return population.PresenceMatrix{}, err
			}
		}
		m.Clusters = append(m.Clusters, c)
		m.Counts = append(m.Counts, counts)
	}
	return m, nil
}

// WritePresenceIndex writes the presence table in the given (descending) order
func WritePresenceIndex(path string, indices []population.PresenceIndex) error {
	rows := make([][]string, len(indices))
	for i, pi := range indices {
		rows[i] = []string{
			strconv.Itoa(pi.Cluster),
			strconv.Itoa(pi.DaysOfPresence),
			strconv.Itoa(pi.NumberOfSounds),
			formatFloat(pi.Index),
		}
	}
	return writeTable(path, presenceHeader, rows)
}

// ReadPresenceIndex reads a table written by WritePresenceIndex
func ReadPresenceIndex(path string) ([]population.PresenceIndex, error) {
	rows, err := readTable(path, presenceHeader)
	if err != nil {
		return nil, err
	}

	out := make([]population.PresenceIndex, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != 4 {
			return nil, fmt.Errorf("%s line %d: %d fields", path, line, len(row))
		}
		var pi population.PresenceIndex
		if pi.Cluster, err = atoi(path, line, row[0]); err != nil {
			return nil, err
		}
		if pi.DaysOfPresence, err = atoi(path, line, row[1]); err != nil {
			return nil, err
		}
		if pi.NumberOfSounds, err = atoi(path, line, row[2]); err != nil {
			return nil, err
		}
		if pi.Index, err = atof(path, line, row[3]); err != nil {
			return nil, err
		}
		out = append(out, pi)
	}
	return out, nil
}

// WritePICTable writes one row per candidate number of individuals
func WritePICTable(path string, table []population.PICRow) error {
	rows := make([][]string, len(table))
	for i, r := range table {
		rows[i] = []string{
			strconv.Itoa(r.Individuals),
			strconv.Itoa(r.Cluster),
			strconv.Itoa(r.DaysOfPresence),
			formatFloat(r.PresenceIndex),
			formatFloat(r.PPI),
			formatFloat(r.LogLikelihood),
			formatFloat(r.PIC),
		}
	}
	return writeTable(path, picHeader, rows)
}

// ReadPICTable reads a table written by WritePICTable
func ReadPICTable(path string) ([]population.PICRow, error) {
	rows, err := readTable(path, picHeader)
	if err != nil {
		return nil, err
	}

	out := make([]population.PICRow, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(picHeader) {
			return nil, fmt.Errorf("%s line %d: %d fields", path, line, len(row))
		}
		var r population.PICRow
		if r.Individuals, err = atoi(path, line, row[0]); err != nil {
			return nil, err
		}
		if r.Cluster, err = atoi(path, line, row[1]); err != nil {
			return nil, err
		}
		if r.DaysOfPresence, err = atoi(path, line, row[2]); err != nil {
			return nil, err
		}
		if r.PresenceIndex, err = atof(path, line, row[3]); err != nil {
			return nil, err
		}
		if r.PPI, err = atof(path, line, row[4]); err != nil {
			return nil, err
		}
		if r.LogLikelihood, err = atof(path, line, row[5]); err != nil {
			return nil, err
		}
		if r.PIC, err = atof(path, line, row[6]); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// WritePopulationEstimate writes the single-row summary
func WritePopulationEstimate(path string, est population.Estimate) error {
	return writeTable(path, estimateHeader, [][]string{{
		strconv.Itoa(est.Individuals),
		strconv.Itoa(est.Residents),
	}})
}

// ReadPopulationEstimate reads a table written by WritePopulationEstimate.
// The PIC table is not part of it.
func ReadPopulationEstimate(path string) (population.Estimate, error) {
	rows, err := readTable(path, estimateHeader)
	if err != nil {
		return population.Estimate{}, err
	}
	if len(rows) != 2 || len(rows[1]) != 2 {
		return population.Estimate{}, fmt.Errorf("%s: want exactly one row of 2 fields", path)
	}

	var est population.Estimate
	if est.Individuals, err = atoi(path, 2, rows[1][0]); err != nil {
		return population.Estimate{}, err
	}
	if est.Residents, err = atoi(path, 2, rows[1][1]); err != nil {
		return population.Estimate{}, err
	}
	return est, nil
}
