package domain

import "math"

// averageWindow is the number of most recent retained deltas averaged.
const averageWindow = 5

// ConsumptionSummary is derived from a meter's history for one target period.
type ConsumptionSummary struct {
	PerPeriodDeltas    []float64     `json:"perPeriodDeltas"`
	AverageConsumption float64       `json:"averageConsumption"`
	EstimatedReading   *float64      `json:"estimatedReading"`
	PeriodsEstimated   int           `json:"periodsEstimated"`
	Anchor             *HistoryEntry `json:"anchor,omitempty"`
}

// DisplayAverage returns the average rounded to one decimal. The estimate is
// always computed from the unrounded value.
func (s ConsumptionSummary) DisplayAverage() float64 {
	return math.Round(s.AverageConsumption*10) / 10
}

// ComputeSummary derives consumption figures from an oldest-to-newest history.
//
// Deltas are taken between consecutive entries that both carry a value;
// negative deltas (rollback or meter replacement) are discarded. The average
// is the mean of the last five retained deltas. The estimate projects the
// anchor (most recent valued entry) forward by an inclusive month count to
// target, never fewer than one period.
func ComputeSummary(entries History, target PeriodKey) ConsumptionSummary {
	deltas := make([]float64, 0, len(entries))
	for i := 1; i < len(entries); i++ {
		older, newer := entries[i-1], entries[i]
		if !older.HasValue() || !newer.HasValue() {
			continue
		}
		d := *newer.Value - *older.Value
		if d < 0 {
			continue
		}
		deltas = append(deltas, d)
	}

	summary := ConsumptionSummary{
		PerPeriodDeltas:    deltas,
		AverageConsumption: trailingMean(deltas, averageWindow),
	}

	anchor, ok := entries.Anchor()
	if !ok {
		return summary
	}
	summary.Anchor = &anchor

	periods := anchor.Period.MonthsUntil(target) + 1
	if periods < 1 {
		periods = 1
	}
	estimate := math.Round(*anchor.Value + summary.AverageConsumption*float64(periods))
	summary.EstimatedReading = &estimate
	summary.PeriodsEstimated = periods
	return summary
}

func trailingMean(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	if len(values) > window {
		values = values[len(values)-window:]
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
