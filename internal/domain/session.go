package domain

// ReadingSession is the per-meter state of one route session.
// Verification is set only while IsConfirmed is true and the confirming
// classification was non-normal.
type ReadingSession struct {
	MeterID      string              `json:"meterId"`
	InputText    string              `json:"inputText"`
	IsConfirmed  bool                `json:"isConfirmed"`
	Verification *VerificationRecord `json:"verification"`
}

// HasPendingInput reports whether text was entered but not confirmed.
func (s ReadingSession) HasPendingInput() bool {
	return s.InputText != "" && !s.IsConfirmed
}
