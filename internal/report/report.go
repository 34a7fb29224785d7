// Package report renders the last day of records as an HTML table and a
// JSON summary.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/record"
)

const (
	DefaultTablePath   = "defaultTable.htm"
	DefaultSummaryPath = "summary.json"
	DefaultTarget      = 21.0

	daySeconds      = 24 * 60 * 60
	defaultFilePerm = 0o644
)

// Rows returns how many records cover one day at the given polling delay.
func Rows(delaySeconds int) int {
	if delaySeconds <= 0 {
		return 1
	}
	return max(daySeconds/delaySeconds, 1)
}

// Config selects the outputs and the summary parameters.
type Config struct {
	TablePath   string
	SummaryPath string
	// Rows is the number of most recent records kept in the outputs.
	Rows int
	// Target is the comfort temperature; the summary counts readings above it.
	Target float64
}

// Stats are the aggregates of one measured quantity.
type Stats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// Summary is the JSON document written next to the table.
type Summary struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Count       int                    `json:"count"`
	Target      float64                `json:"target"`
	AboveTarget int                    `json:"above_target"`
	Latest      *record.AveragedRecord `json:"latest,omitempty"`
	Temperature Stats                  `json:"temperature"`
	Humidity    Stats                  `json:"humidity"`
}

// Renderer writes report artifacts. It implements consumer.Handler.
type Renderer struct {
	cfg   Config
	clock func() time.Time
	log   logger.Logger
}

// New returns a Renderer, filling in defaults for empty fields.
func New(cfg Config) *Renderer {
	if cfg.TablePath == "" {
		cfg.TablePath = DefaultTablePath
	}
	if cfg.SummaryPath == "" {
		cfg.SummaryPath = DefaultSummaryPath
	}
	if cfg.Rows <= 0 {
		cfg.Rows = Rows(300)
	}
	return &Renderer{cfg: cfg, clock: time.Now, log: logger.For("report")}
}

func (*Renderer) Name() string {
	return "report"
}

// Handle renders records. It never blocks on ctx; rendering is short.
func (r *Renderer) Handle(_ context.Context, records []record.AveragedRecord) error {
	return r.Render(records)
}

// RenderFile loads the record file at path and renders it once.
func (r *Renderer) RenderFile(path string) error {
	records, err := record.Load(path)
	if err != nil {
		return err
	}
	return r.Render(records)
}

// Render writes the table and the summary for the last Rows records.
func (r *Renderer) Render(records []record.AveragedRecord) error {
	errFactory := errors.New()
	records = record.Tail(records, r.cfg.Rows)
	summary := Summarize(records, r.cfg.Target, r.clock())

	var table bytes.Buffer
	if err := tableTemplate.Execute(&table, tableData{Summary: summary, Records: records}); err != nil {
		return errFactory.Wrap(errors.ErrReportWrite, err)
	}
	if err := writeAtomic(r.cfg.TablePath, table.Bytes()); err != nil {
		return errFactory.Wrap(errors.ErrReportWrite, err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return errFactory.Wrap(errors.ErrReportWrite, err)
	}
	if err := writeAtomic(r.cfg.SummaryPath, append(data, '\n')); err != nil {
		return errFactory.Wrap(errors.ErrReportWrite, err)
	}

	r.log.Debug().
		Int("records", summary.Count).
		Int("above_target", summary.AboveTarget).
		Str("table", r.cfg.TablePath).
		Str("summary", r.cfg.SummaryPath).
		Msg("Report rendered")

	return nil
}

// Summarize aggregates records. Values are rounded to record precision.
func Summarize(records []record.AveragedRecord, target float64, now time.Time) Summary {
	s := Summary{
		GeneratedAt: now.Truncate(time.Second),
		Count:       len(records),
		Target:      target,
	}
	if len(records) == 0 {
		return s
	}

	latest := records[len(records)-1]
	s.Latest = &latest

	temperature := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	humidity := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, rec := range records {
		accumulate(&temperature, rec.Temperature)
		accumulate(&humidity, rec.Humidity)
		if rec.Temperature > target {
			s.AboveTarget++
		}
	}

	n := float64(len(records))
	temperature.Mean = record.Round(temperature.Mean / n)
	humidity.Mean = record.Round(humidity.Mean / n)
	s.Temperature = temperature
	s.Humidity = humidity

	return s
}

// accumulate folds v into s, using Mean as a running sum.
func accumulate(s *Stats, v float64) {
	s.Min = math.Min(s.Min, v)
	s.Max = math.Max(s.Max, v)
	s.Mean += v
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}
