package domain

// Classification is the risk category of a candidate reading.
type Classification string

const (
	ClassificationNormal   Classification = "normal"
	ClassificationNegative Classification = "negative"
	ClassificationLow      Classification = "low"
	ClassificationHigh     Classification = "high"
)

const (
	// HighConsumptionRatio flags consumption strictly above this multiple of the average.
	HighConsumptionRatio = 1.6
	// LowConsumptionLimit flags consumption strictly below this absolute value.
	LowConsumptionLimit = 4.0
	// ZeroBaselineTolerance is the consumption accepted without warning when
	// the meter has no prior consumption.
	ZeroBaselineTolerance = 5.0
)

// RequiresVerification reports whether the classification gates confirmation.
func (c Classification) RequiresVerification() bool {
	switch c {
	case ClassificationNegative, ClassificationLow, ClassificationHigh:
		return true
	default:
		return false
	}
}

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	return c == ClassificationNormal || c.RequiresVerification()
}

// Classify places a candidate reading into a risk category.
//
// Checks run in a fixed order and the first match wins: negative, high,
// zero-baseline tolerance, low, normal. A missing previous reading (first
// ever reading) is always normal. Input validation is the caller's job.
func Classify(candidate float64, previous *float64, average float64) Classification {
	if previous == nil {
		return ClassificationNormal
	}
	consumption := candidate - *previous
	switch {
	case consumption < 0:
		return ClassificationNegative
	case average > 0 && consumption > average*HighConsumptionRatio:
		return ClassificationHigh
	case average == 0 && consumption <= ZeroBaselineTolerance:
		return ClassificationNormal
	case consumption < LowConsumptionLimit:
		return ClassificationLow
	default:
		return ClassificationNormal
	}
}
