package record

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/sensor"
)

// Version identifies a state of the record file. Readers compare versions to
// notice appends they were not notified about.
type Version struct {
	Size    int64
	ModTime time.Time
}

// Stat returns the current Version of the file at path.
func Stat(path string) (Version, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Version{}, errors.New().Wrap(errors.ErrRecordRead, err)
	}
	return Version{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Load reads every complete row of the file at path. A trailing line
// without a newline belongs to an append in progress and is ignored, as are
// rows that do not parse.
func Load(path string) ([]AveragedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrRecordRead, err)
	}

	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		data = data[:i+1]
	} else {
		data = nil
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrRecordRead, err)
	}

	records := make([]AveragedRecord, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == Header[0] {
			continue
		}
		r, err := parseRow(row)
		if err != nil {
			continue
		}
		records = append(records, r)
	}

	return records, nil
}

func parseRow(row []string) (AveragedRecord, error) {
	if len(row) != len(Header) {
		return AveragedRecord{}, fmt.Errorf("expected %d fields, got %d", len(Header), len(row))
	}

	ts, err := time.ParseInLocation(TimeLayout, row[0], time.Local)
	if err != nil {
		return AveragedRecord{}, err
	}

	values := make([]float64, 4)
	for i := range values {
		if values[i], err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return AveragedRecord{}, err
		}
	}

	return AveragedRecord{
		Reading: sensor.Reading{
			Timestamp:   ts,
			Temperature: values[0],
			Humidity:    values[1],
		},
		AvgTemperature: values[2],
		AvgHumidity:    values[3],
	}, nil
}

// Tail returns at most the last n records.
func Tail(records []AveragedRecord, n int) []AveragedRecord {
	if n <= 0 || len(records) <= n {
		return records
	}
	return records[len(records)-n:]
}

// Equal reports whether v and o describe the same file state.
func (v Version) Equal(o Version) bool {
	return v.Size == o.Size && v.ModTime.Equal(o.ModTime)
}
