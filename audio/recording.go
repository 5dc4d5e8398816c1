// Package audio holds the recording model of a batch and the WAV ingestion
// used by the command line front end.
package audio

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/reefpulse/LagoPObs/internal/errors"
)

// ErrNoDate is returned when a filename does not carry a YYYYMMDD date in its second field.
var ErrNoDate = errors.NewStd("filename does not encode a YYYYMMDD date in its second field")

// ErrNoRecordings is returned when a batch holds no analyzable recording.
var ErrNoRecordings = errors.NewStd("no recordings to analyze")

// Recording is one decoded source file. It is never modified once created.
type Recording struct {
	Samples    []float64 `json:"-"`
	SampleRate int       `json:"sample_rate"`
	Filename   string    `json:"filename"`
	Date       *Date     `json:"date,omitempty"`
}

// Duration returns the recording length
func (r *Recording) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(r.Samples)) / float64(r.SampleRate) * float64(time.Second))
}

// NewRecording builds a Recording and parses its date from the filename when possible.
// A missing date is not an error here; population estimation reports it.
func NewRecording(filename string, samples []float64, sampleRate int) *Recording {
	rec := &Recording{
		Samples:    samples,
		SampleRate: sampleRate,
		Filename:   filename,
	}
	if d, err := ParseFilenameDate(filename); err == nil {
		rec.Date = &d
	}
	return rec
}

// Date is a calendar day without time zone
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DateOf returns the calendar day of t
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "YYYY-MM-DD"
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// ParseFilenameDate extracts the date from the second underscore separated field,
// e.g. site1_20230619_call.wav -> 2023-06-19.
func ParseFilenameDate(filename string) (Date, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))

	fields := strings.Split(base, "_")
	if len(fields) < 2 {
		return Date{}, fmt.Errorf("%s: %w", filename, ErrNoDate)
	}

	field := fields[1]
	if len(field) != 8 {
		return Date{}, fmt.Errorf("%s: %w", filename, ErrNoDate)
	}

	t, err := time.Parse("20060102", field)
	if err != nil {
		return Date{}, fmt.Errorf("%s: %w", filename, ErrNoDate)
	}

	return DateOf(t), nil
}

// Time returns midnight UTC of the day
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats the day as YYYY-MM-DD
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Before reports whether d is earlier than other
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// AddDays returns the day n days after d
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// DaysUntil returns the number of days from d to other (negative if other is earlier)
func (d Date) DaysUntil(other Date) int {
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

// Compare returns -1, 0 or +1
func (d Date) Compare(other Date) int {
	return d.Time().Compare(other.Time())
}
