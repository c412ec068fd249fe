// Per-step CSV telemetry.

package sim

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
)

// StepRecord is one telemetry row: migration volume, local population, and
// which solve path the constraint system took this step.
type StepRecord struct {
	Step          int64  `csv:"step"`
	Migrated      int    `csv:"migrated"`
	LocalTotal    int    `csv:"local_total"`
	ConstraintNnz int    `csv:"constraint_nnz"`
	SolvePath     string `csv:"solve_path"`
}

// TelemetryWriter streams StepRecords to steps.csv in the output directory,
// writing the header once and appending rows as the run progresses.
type TelemetryWriter struct {
	file          *os.File
	headerWritten bool
}

// NewTelemetryWriter creates the output directory and opens steps.csv for
// writing. An empty directory disables telemetry and returns a nil writer.
func NewTelemetryWriter(dir string) (*TelemetryWriter, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "steps.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating telemetry file: %w", err)
	}
	return &TelemetryWriter{file: f}, nil
}

// Write appends one record, emitting the CSV header on the first call.
// A nil writer discards records.
func (w *TelemetryWriter) Write(rec StepRecord) error {
	if w == nil {
		return nil
	}
	rows := []*StepRecord{&rec}
	if !w.headerWritten {
		if err := gocsv.Marshal(rows, w.file); err != nil {
			return fmt.Errorf("writing telemetry header row: %w", err)
		}
		w.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(rows, w.file); err != nil {
		return fmt.Errorf("writing telemetry row: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file. Safe on a nil writer.
func (w *TelemetryWriter) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	return w.file.Close()
}
