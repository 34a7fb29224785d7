// Package record owns the append-only CSV log of averaged readings.
//
// The log has a single writer (the poll loop) and any number of readers
// that reopen and parse the whole file on each pass. Every append opens the
// file, writes exactly one row with a single write call, syncs and closes
// it, so a crash loses at most the row in flight.
package record

import (
	"math"
	"strconv"
	"strings"
	"time"

	"codeberg.org/mutker/housemon/internal/sensor"
)

const (
	// Extension is the only accepted record file extension.
	Extension = ".csv"
	// TimeLayout is the ISO-8601 layout used for the time column.
	TimeLayout = "2006-01-02T15:04:05"

	rotatedSuffix   = "Old"
	decimals        = 4
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

// Header is the first row of every record file.
var Header = []string{"time", "temperature(C)", "humidity(%)", "avtemp(C)", "avHum(%)"}

// AveragedRecord is a reading plus the rolling averages at that point.
type AveragedRecord struct {
	sensor.Reading
	AvgTemperature float64 `json:"avg_temperature"`
	AvgHumidity    float64 `json:"avg_humidity"`
}

// NewAveragedRecord builds the stored form of a reading: the timestamp is
// truncated to whole seconds and all values are rounded to four decimals.
func NewAveragedRecord(r sensor.Reading, avgTemperature, avgHumidity float64) AveragedRecord {
	return AveragedRecord{
		Reading: sensor.Reading{
			Timestamp:   r.Timestamp.Truncate(time.Second),
			Temperature: Round(r.Temperature),
			Humidity:    Round(r.Humidity),
		},
		AvgTemperature: Round(avgTemperature),
		AvgHumidity:    Round(avgHumidity),
	}
}

// Round rounds v to the stored precision.
func Round(v float64) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

func (r AveragedRecord) row() []string {
	return []string{
		r.Timestamp.Format(TimeLayout),
		formatFloat(r.Temperature),
		formatFloat(r.Humidity),
		formatFloat(r.AvgTemperature),
		formatFloat(r.AvgHumidity),
	}
}

// formatFloat writes the shortest decimal form of v, keeping at least one
// fractional digit so whole values stay recognisable as floats.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(Round(v), 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
