// Package routefile loads a route's meters and reading history from a static
// CSV dataset.
package routefile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strings"

	"github.com/couchcryptid/meter-route-service/internal/domain"
)

// ErrUnknownMeter is returned for a meter that is not in the dataset.
var ErrUnknownMeter = errors.New("meter not in route dataset")

// Parse reads meters from r.
//
// Expected header: ID,ADDRESS followed by one column per period key
// ("2024-Enero", ...). Cells are kept as raw strings, placeholders
// included; the history parser decides what they mean. Rows without an ID
// or repeating an earlier ID are skipped and returned as a joined error.
func Parse(r io.Reader) ([]domain.MeterRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if len(header) < 2 || !strings.EqualFold(header[0], "ID") || !strings.EqualFold(header[1], "ADDRESS") {
		return nil, fmt.Errorf("unexpected header %q (want %q)", strings.Join(header, ","), "ID,ADDRESS,...")
	}

	var (
		meters  []domain.MeterRecord
		rowErrs []error
		seen    = make(map[string]bool)
		rowNum  = 1
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: read: %w", rowNum, err))
			continue
		}

		id := strings.TrimSpace(row[0])
		if id == "" {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: missing meter id", rowNum))
			continue
		}
		if seen[id] {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: duplicate meter id %q", rowNum, id))
			continue
		}
		seen[id] = true

		m := domain.MeterRecord{ID: id, History: make(map[string]any, len(header)-2)}
		if len(row) > 1 {
			m.Address = strings.TrimSpace(row[1])
		}
		for col := 2; col < len(header) && col < len(row); col++ {
			m.History[header[col]] = strings.TrimSpace(row[col])
		}
		meters = append(meters, m)
	}

	if meters == nil {
		meters = []domain.MeterRecord{}
	}
	return meters, errors.Join(rowErrs...)
}

// Dataset serves a parsed route file in place of the persistence service's
// read side.
type Dataset struct {
	meters []domain.MeterRecord
	byID   map[string]int
}

// Load parses the file at path. Like Parse, it may return a usable dataset
// together with row errors; it fails outright only when no meter was read.
func Load(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open route file %q: %w", path, err)
	}
	defer f.Close()

	meters, parseErr := Parse(f)
	if len(meters) == 0 {
		if parseErr == nil {
			parseErr = errors.New("no meters")
		}
		return nil, fmt.Errorf("parse route file %q: %w", path, parseErr)
	}
	ds := New(meters)
	if parseErr != nil {
		return ds, fmt.Errorf("parse route file %q: %w", path, parseErr)
	}
	return ds, nil
}

// New wraps already parsed meters.
func New(meters []domain.MeterRecord) *Dataset {
	ds := &Dataset{meters: meters, byID: make(map[string]int, len(meters))}
	for i, m := range meters {
		ds.byID[m.ID] = i
	}
	return ds
}

// FetchRouteMeters returns the dataset's meters in file order.
func (d *Dataset) FetchRouteMeters(_ context.Context, _ string) ([]domain.MeterRecord, error) {
	out := make([]domain.MeterRecord, len(d.meters))
	copy(out, d.meters)
	return out, nil
}

// FetchMeterHistory returns a copy of one meter's raw history.
func (d *Dataset) FetchMeterHistory(_ context.Context, meterID, _ string) (map[string]any, error) {
	i, ok := d.byID[meterID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMeter, meterID)
	}
	return maps.Clone(d.meters[i].History), nil
}
