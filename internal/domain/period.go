package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned when a period key cannot be parsed.
var ErrInvalidPeriod = errors.New("invalid period key")

// monthNames lists the Spanish month names in calendar order. Index 0 is January.
var monthNames = [12]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// PeriodKey identifies one monthly reading slot.
type PeriodKey struct {
	Year  int
	Month time.Month
}

// NewPeriodKey builds a PeriodKey, rejecting months outside 1–12.
func NewPeriodKey(year int, month time.Month) (PeriodKey, error) {
	if month < time.January || month > time.December {
		return PeriodKey{}, fmt.Errorf("%w: month %d out of range", ErrInvalidPeriod, month)
	}
	return PeriodKey{Year: year, Month: month}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) PeriodKey {
	return PeriodKey{Year: t.Year(), Month: t.Month()}
}

// CurrentPeriod returns the period of the package clock's current time.
func CurrentPeriod() PeriodKey {
	return PeriodOf(clock.Now())
}

// ParsePeriodKey parses "<year>-<monthName>", e.g. "2024-Enero".
// Month names are matched case-insensitively.
func ParsePeriodKey(s string) (PeriodKey, error) {
	s = strings.TrimSpace(s)
	yearPart, monthPart, ok := strings.Cut(s, "-")
	if !ok {
		return PeriodKey{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	year, err := strconv.Atoi(strings.TrimSpace(yearPart))
	if err != nil || year <= 0 {
		return PeriodKey{}, fmt.Errorf("%w: bad year in %q", ErrInvalidPeriod, s)
	}
	month, ok := lookupMonth(monthPart)
	if !ok {
		return PeriodKey{}, fmt.Errorf("%w: unknown month in %q", ErrInvalidPeriod, s)
	}
	return NewPeriodKey(year, month)
}

func lookupMonth(name string) (time.Month, bool) {
	name = strings.TrimSpace(name)
	for i, m := range monthNames {
		if strings.EqualFold(m, name) {
			return time.Month(i + 1), true
		}
	}
	return 0, false
}

// MonthName returns the Spanish month name.
func (p PeriodKey) MonthName() string {
	if p.Month < time.January || p.Month > time.December {
		return ""
	}
	return monthNames[p.Month-1]
}

// String serializes the key as "<year>-<monthName>".
func (p PeriodKey) String() string {
	return fmt.Sprintf("%d-%s", p.Year, p.MonthName())
}

// IsZero reports whether the key is unset.
func (p PeriodKey) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// Compare orders by year, then month. It returns -1, 0 or +1.
func (p PeriodKey) Compare(o PeriodKey) int {
	switch {
	case p.Year < o.Year:
		return -1
	case p.Year > o.Year:
		return 1
	case p.Month < o.Month:
		return -1
	case p.Month > o.Month:
		return 1
	default:
		return 0
	}
}

// Before reports whether p is strictly earlier than o.
func (p PeriodKey) Before(o PeriodKey) bool { return p.Compare(o) < 0 }

// MonthsUntil returns the signed number of months from p to o.
func (p PeriodKey) MonthsUntil(o PeriodKey) int {
	return (o.Year-p.Year)*12 + int(o.Month) - int(p.Month)
}

// MarshalText implements encoding.TextMarshaler.
func (p PeriodKey) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return []byte{}, nil
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PeriodKey) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = PeriodKey{}
		return nil
	}
	k, err := ParsePeriodKey(string(b))
	if err != nil {
		return err
	}
	*p = k
	return nil
}
