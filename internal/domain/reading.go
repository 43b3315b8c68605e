package domain

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	ErrEmptyReading    = errors.New("reading is empty")
	ErrNotNumeric      = errors.New("reading is not a number")
	ErrNegativeReading = errors.New("reading is negative")
)

// ValidationError reports user input that was rejected before any state
// change. It unwraps to one of the Err*Reading sentinels.
type ValidationError struct {
	Input string
	Err   error
}

func (e *ValidationError) Error() string {
	return "invalid reading " + strconv.Quote(e.Input) + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ParseReading validates reading text and returns its numeric value.
func ParseReading(text string) (float64, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, &ValidationError{Input: text, Err: ErrEmptyReading}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Input: text, Err: ErrNotNumeric}
	}
	if v < 0 {
		return 0, &ValidationError{Input: text, Err: ErrNegativeReading}
	}
	return v, nil
}
