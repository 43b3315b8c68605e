package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrDetailsMismatch is returned when a record's details do not belong to its classification.
var ErrDetailsMismatch = errors.New("verification details do not match classification")

// VerificationDetails is the classification-specific payload of a
// VerificationRecord. Exactly one implementation exists per non-normal
// classification.
type VerificationDetails interface {
	Kind() Classification
}

// NegativeDetails records the figures acknowledged for a reading below the previous one.
type NegativeDetails struct {
	CurrentReading  float64 `json:"currentReading"`
	PreviousReading float64 `json:"previousReading"`
}

func (NegativeDetails) Kind() Classification { return ClassificationNegative }

// HighDetails records the figures acknowledged for an unusually high consumption.
type HighDetails struct {
	CurrentReading     float64 `json:"currentReading"`
	PreviousReading    float64 `json:"previousReading"`
	AverageConsumption float64 `json:"averageConsumption"`
}

func (HighDetails) Kind() Classification { return ClassificationHigh }

// LowDetails holds the answers collected for a low consumption. Only the
// fields of the branch taken are set; the others stay nil/empty and are
// omitted from JSON.
type LowDetails struct {
	AnsweredDoor     bool   `json:"answeredDoor"`
	HadIssues        *bool  `json:"hadIssues,omitempty"`
	IssueDescription string `json:"issueDescription,omitempty"`
	ResidenceMonths  string `json:"residenceMonths,omitempty"`
	LooksLivedIn     *bool  `json:"looksLivedIn,omitempty"`
}

func (LowDetails) Kind() Classification { return ClassificationLow }

// PreviousReading is a previous-period value that may be the "---" placeholder.
type PreviousReading struct {
	Value *float64
}

// KnownPrevious wraps a numeric previous reading.
func KnownPrevious(v float64) PreviousReading { return PreviousReading{Value: &v} }

func (p PreviousReading) String() string {
	if p.Value == nil {
		return Placeholder
	}
	return formatNumber(*p.Value)
}

func (p PreviousReading) MarshalJSON() ([]byte, error) {
	if p.Value == nil {
		return json.Marshal(Placeholder)
	}
	return json.Marshal(*p.Value)
}

func (p *PreviousReading) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	p.Value = parseHistoryValue(raw)
	return nil
}

// VerificationRecord is written once when a non-normal reading is confirmed.
type VerificationRecord struct {
	Classification  Classification
	Details         VerificationDetails
	Consumption     float64
	PreviousReading PreviousReading
	Timestamp       string
}

type verificationWire struct {
	Classification  Classification  `json:"classification"`
	Details         json.RawMessage `json:"details"`
	Consumption     float64         `json:"consumption"`
	PreviousReading PreviousReading `json:"previousReading"`
	Timestamp       string          `json:"timestamp"`
}

// NewVerificationRecord stamps a record with the package clock.
func NewVerificationRecord(details VerificationDetails, consumption float64, previous PreviousReading) VerificationRecord {
	return VerificationRecord{
		Classification:  details.Kind(),
		Details:         details,
		Consumption:     consumption,
		PreviousReading: previous,
		Timestamp:       clock.Now().UTC().Format(time.RFC3339),
	}
}

// Validate checks the record's internal consistency.
func (r VerificationRecord) Validate() error {
	if !r.Classification.Valid() {
		return fmt.Errorf("unknown classification %q", r.Classification)
	}
	if !r.Classification.RequiresVerification() {
		return fmt.Errorf("verification for classification %q", r.Classification)
	}
	if r.Details == nil || r.Details.Kind() != r.Classification {
		return ErrDetailsMismatch
	}
	return nil
}

func (r VerificationRecord) MarshalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	details, err := json.Marshal(r.Details)
	if err != nil {
		return nil, fmt.Errorf("marshal verification details: %w", err)
	}
	return json.Marshal(verificationWire{
		Classification:  r.Classification,
		Details:         details,
		Consumption:     r.Consumption,
		PreviousReading: r.PreviousReading,
		Timestamp:       r.Timestamp,
	})
}

func (r *VerificationRecord) UnmarshalJSON(b []byte) error {
	var w verificationWire
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("decode verification: %w", err)
	}

	var details VerificationDetails
	switch w.Classification {
	case ClassificationNegative:
		var d NegativeDetails
		if err := json.Unmarshal(w.Details, &d); err != nil {
			return fmt.Errorf("decode negative details: %w", err)
		}
		details = d
	case ClassificationHigh:
		var d HighDetails
		if err := json.Unmarshal(w.Details, &d); err != nil {
			return fmt.Errorf("decode high details: %w", err)
		}
		details = d
	case ClassificationLow:
		var d LowDetails
		if err := json.Unmarshal(w.Details, &d); err != nil {
			return fmt.Errorf("decode low details: %w", err)
		}
		details = d
	default:
		return fmt.Errorf("decode verification: unknown classification %q", w.Classification)
	}

	*r = VerificationRecord{
		Classification:  w.Classification,
		Details:         details,
		Consumption:     w.Consumption,
		PreviousReading: w.PreviousReading,
		Timestamp:       w.Timestamp,
	}
	return nil
}

// Narrative renders the one-line Spanish explanation included in the route report.
func (r VerificationRecord) Narrative(meterID, address string) string {
	prefix := fmt.Sprintf("Medidor %s (%s): ", meterID, address)
	consumption := formatNumber(r.Consumption)

	switch d := r.Details.(type) {
	case NegativeDetails:
		return prefix + fmt.Sprintf("lectura %s menor a la anterior %s (diferencia %s m³), confirmada por el lector.",
			formatNumber(d.CurrentReading), formatNumber(d.PreviousReading), consumption)
	case HighDetails:
		return prefix + fmt.Sprintf("consumo alto de %s m³ frente a un promedio de %s m³, confirmado por el lector.",
			consumption, formatNumber(d.AverageConsumption))
	case LowDetails:
		var b strings.Builder
		b.WriteString(prefix)
		b.WriteString(fmt.Sprintf("consumo bajo de %s m³. ", consumption))
		if d.AnsweredDoor {
			b.WriteString("El residente atendió la puerta")
			if d.HadIssues != nil && *d.HadIssues {
				b.WriteString("; reporta problemas con el agua")
				if d.IssueDescription != "" {
					b.WriteString(": " + d.IssueDescription)
				}
			} else {
				b.WriteString("; no reporta problemas con el agua")
			}
			b.WriteString(fmt.Sprintf("; reside hace %s meses.", d.ResidenceMonths))
		} else {
			b.WriteString("Nadie atendió la puerta")
			if d.LooksLivedIn != nil && *d.LooksLivedIn {
				b.WriteString("; la casa parece habitada.")
			} else {
				b.WriteString("; la casa no parece habitada.")
			}
		}
		return b.String()
	default:
		return prefix + "verificación sin detalles."
	}
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
