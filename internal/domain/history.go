package domain

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Placeholder is the textual marker for a reading with no numeric value.
const Placeholder = "---"

// MeterRecord is immutable reference data for one physical meter.
// History maps period keys ("2024-Enero") to raw values: numbers, numeric
// strings, or the "---" / "NO DATA" sentinels.
type MeterRecord struct {
	ID      string         `json:"id"`
	Address string         `json:"address"`
	History map[string]any `json:"history,omitempty"`
}

// HistoryEntry is one parsed period. A nil Value means the period exists but
// has no usable reading.
type HistoryEntry struct {
	Period PeriodKey `json:"period"`
	Value  *float64  `json:"value"`
}

// HasValue reports whether the entry carries a numeric reading.
func (e HistoryEntry) HasValue() bool { return e.Value != nil }

// History is a sequence of entries ordered oldest to newest.
type History []HistoryEntry

// Reversed returns a copy ordered newest to oldest.
func (h History) Reversed() History {
	out := make(History, len(h))
	for i, e := range h {
		out[len(h)-1-i] = e
	}
	return out
}

// Anchor returns the most recent entry with a numeric value.
func (h History) Anchor() (HistoryEntry, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].HasValue() {
			return h[i], true
		}
	}
	return HistoryEntry{}, false
}

// Latest returns the newest entry regardless of value.
func (h History) Latest() (HistoryEntry, bool) {
	if len(h) == 0 {
		return HistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// ParseHistory converts a raw history mapping into a History ordered oldest
// to newest. Keys that are not valid period keys (e.g. "ID", "ADDRESS", or an
// unknown month name) are skipped. Raw keys are visited in sorted order so
// that two spellings of the same period resolve deterministically, the last
// one winning.
func ParseHistory(raw map[string]any) History {
	if len(raw) == 0 {
		return History{}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	byPeriod := make(map[PeriodKey]*float64, len(keys))
	for _, k := range keys {
		period, err := ParsePeriodKey(k)
		if err != nil {
			continue
		}
		byPeriod[period] = parseHistoryValue(raw[k])
	}

	out := make(History, 0, len(byPeriod))
	for p, v := range byPeriod {
		out = append(out, HistoryEntry{Period: p, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out
}

// parseHistoryValue decodes a raw stored value, returning nil for sentinels
// and anything non-numeric.
func parseHistoryValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(t)
		if s == "" || s == Placeholder || strings.EqualFold(s, "NO DATA") {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
