package domain

import (
	"math"
	"time"
)

// SubmissionInput is everything known about one meter when the route is finalized.
type SubmissionInput struct {
	Meter    MeterRecord
	Session  ReadingSession
	Previous PreviousReading
}

// SubmissionRow is one meter line of the finalized route payload.
type SubmissionRow struct {
	MeterID         string              `json:"meterId"`
	Address         string              `json:"address"`
	PreviousReading PreviousReading     `json:"previousReading"`
	CurrentReading  string              `json:"currentReading"`
	Consumption     *float64            `json:"consumption"`
	Verification    *VerificationRecord `json:"verification"`
}

// SubmissionStats aggregates consumption over rows where both the current and
// previous readings are numeric.
type SubmissionStats struct {
	TotalMeters      int     `json:"totalMeters"`
	CompletedMeters  int     `json:"completedMeters"`
	SkippedMeters    int     `json:"skippedMeters"`
	TotalConsumption float64 `json:"totalConsumption"`
	AvgConsumption   float64 `json:"avgConsumption"`
	MaxConsumption   float64 `json:"maxConsumption"`
	MinConsumption   float64 `json:"minConsumption"`
}

// Submission is the payload handed to the persistence and notification collaborators.
type Submission struct {
	SubmissionID string          `json:"submissionId"`
	RouteID      string          `json:"routeId"`
	Period       PeriodKey       `json:"period"`
	SubmittedAt  time.Time       `json:"submittedAt"`
	Rows         []SubmissionRow `json:"rows"`
	Stats        SubmissionStats `json:"stats"`
	Narratives   []string        `json:"narratives"`
}

// BuildSubmission assembles the route payload. Only confirmed readings are
// reported as current; everything else is the placeholder and counts as skipped.
func BuildSubmission(id, routeID string, period PeriodKey, inputs []SubmissionInput) Submission {
	sub := Submission{
		SubmissionID: id,
		RouteID:      routeID,
		Period:       period,
		SubmittedAt:  clock.Now().UTC(),
		Rows:         make([]SubmissionRow, 0, len(inputs)),
		Narratives:   []string{},
	}

	var consumptions []float64
	for _, in := range inputs {
		row := SubmissionRow{
			MeterID:         in.Meter.ID,
			Address:         in.Meter.Address,
			PreviousReading: in.Previous,
			CurrentReading:  Placeholder,
		}

		if in.Session.IsConfirmed && in.Session.InputText != "" {
			sub.Stats.CompletedMeters++
			row.CurrentReading = in.Session.InputText
			if current, err := ParseReading(in.Session.InputText); err == nil && in.Previous.Value != nil {
				c := current - *in.Previous.Value
				row.Consumption = &c
				consumptions = append(consumptions, c)
			}
			if in.Session.Verification != nil {
				v := *in.Session.Verification
				row.Verification = &v
				sub.Narratives = append(sub.Narratives, v.Narrative(in.Meter.ID, in.Meter.Address))
			}
		}
		sub.Rows = append(sub.Rows, row)
	}

	sub.Stats.TotalMeters = len(inputs)
	sub.Stats.SkippedMeters = sub.Stats.TotalMeters - sub.Stats.CompletedMeters
	fillConsumptionStats(&sub.Stats, consumptions)
	return sub
}

func fillConsumptionStats(stats *SubmissionStats, values []float64) {
	if len(values) == 0 {
		return
	}
	stats.MinConsumption = math.Inf(1)
	stats.MaxConsumption = math.Inf(-1)
	for _, v := range values {
		stats.TotalConsumption += v
		stats.MinConsumption = math.Min(stats.MinConsumption, v)
		stats.MaxConsumption = math.Max(stats.MaxConsumption, v)
	}
	stats.AvgConsumption = math.Round(stats.TotalConsumption/float64(len(values))*100) / 100
}
