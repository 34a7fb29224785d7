package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/sensor"
)

var headerLine = "time,temperature(C),humidity(%),avtemp(C),avHum(%)\n"

func sample(ts time.Time, temp, hum, avgT, avgH float64) AveragedRecord {
	return NewAveragedRecord(sensor.Reading{Timestamp: ts, Temperature: temp, Humidity: hum}, avgT, avgH)
}

func TestOpenCreatesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())
	assert.Empty(t, s.Rotated())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))
}

func TestOpenRejectsExtension(t *testing.T) {
	for _, name := range []string{"records.txt", "records", "records.csv.bak"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			_, err := Open(path)
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
			assert.Equal(t, errors.ErrInvalidRecordFile, errors.CodeOf(err))

			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "nothing should be created")
		})
	}
}

func TestOpenRotatesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.csv")
	rotated := filepath.Join(dir, "recordsOld.csv")
	assert.Equal(t, rotated, RotatedPath(path))

	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, rotated, s.Rotated())

	old, err := os.ReadFile(rotated)
	require.NoError(t, err)
	assert.Equal(t, "first\n", string(old))

	// A second rotation overwrites the previous Old file.
	require.NoError(t, s.Append(sample(time.Now(), 20, 40, 20, 40)))
	_, err = Open(path)
	require.NoError(t, err)

	old, err = os.ReadFile(rotated)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(old), headerLine))
	assert.Equal(t, 2, strings.Count(string(old), "\n"))

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(current))
}

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	s, err := Open(path)
	require.NoError(t, err)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)
	want := []AveragedRecord{
		sample(base, 21.5, 45.25, 21.5, 45.25),
		sample(base.Add(5*time.Minute), 22.5, 46.75, 22, 46),
		sample(base.Add(10*time.Minute), -3.123456, 99.99999, 13.61, 63.6666666),
	}
	for _, r := range want {
		require.NoError(t, s.Append(r))
	}
	assert.Equal(t, 3, s.Rows())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "2024-03-01T12:00:00,21.5,45.25,21.5,45.25", lines[1])
	assert.Equal(t, "2024-03-01T12:05:00,22.5,46.75,22.0,46.0", lines[2])
	assert.Equal(t, "2024-03-01T12:10:00,-3.1235,100.0,13.61,63.6667", lines[3])

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range want {
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		assert.InDelta(t, want[i].Temperature, got[i].Temperature, 1e-9)
		assert.InDelta(t, want[i].Humidity, got[i].Humidity, 1e-9)
		assert.InDelta(t, want[i].AvgTemperature, got[i].AvgTemperature, 1e-9)
		assert.InDelta(t, want[i].AvgHumidity, got[i].AvgHumidity, 1e-9)
	}
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{21, "21.0"},
		{-4, "-4.0"},
		{0, "0.0"},
		{21.5, "21.5"},
		{99.99999, "100.0"},
		{-3.123456, "-3.1235"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatFloat(tt.in), "formatFloat(%v)", tt.in)
	}
}

func TestNewAveragedRecordTruncatesTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 999_000_000, time.Local)
	r := sample(ts, 1.00004, 2.00006, 3, 4)
	assert.Equal(t, 0, r.Timestamp.Nanosecond())
	assert.InDelta(t, 1.0, r.Temperature, 1e-9)
	assert.InDelta(t, 2.0001, r.Humidity, 1e-9)
}

func TestLoadIgnoresPartialAndMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	content := headerLine +
		"2024-03-01T12:00:00,21,40,21,40\n" +
		"garbage,row\n" +
		"2024-03-01T12:05:00,abc,40,21,40\n" +
		"2024-03-01T12:10:00,23,44,22,42\n" +
		"2024-03-01T12:15:00,2"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 21.0, got[0].Temperature, 1e-9)
	assert.InDelta(t, 22.0, got[1].AvgTemperature, 1e-9)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrRecordRead, errors.CodeOf(err))
}

func TestAppendAfterRemovalFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	err = s.Append(sample(time.Now(), 20, 40, 20, 40))
	require.Error(t, err)
	assert.True(t, errors.IsIO(err))
}

func TestStatChangesOnAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	s, err := Open(path)
	require.NoError(t, err)

	before, err := Stat(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(sample(time.Now(), 20, 40, 20, 40)))
	after, err := Stat(path)
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.Greater(t, after.Size, before.Size)
}

func TestTail(t *testing.T) {
	records := make([]AveragedRecord, 5)
	for i := range records {
		records[i].Temperature = float64(i)
	}
	assert.Len(t, Tail(records, 0), 5)
	assert.Len(t, Tail(records, 10), 5)
	tail := Tail(records, 2)
	require.Len(t, tail, 2)
	assert.InDelta(t, 3.0, tail[0].Temperature, 1e-9)
}
