package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriodKey(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		p, err := ParsePeriodKey("2024-Enero")
		require.NoError(t, err)
		assert.Equal(t, PeriodKey{Year: 2024, Month: time.January}, p)
		assert.Equal(t, "2024-Enero", p.String())
	})

	t.Run("case insensitive month", func(t *testing.T) {
		p, err := ParsePeriodKey(" 2023-septiembre ")
		require.NoError(t, err)
		assert.Equal(t, PeriodKey{Year: 2023, Month: time.September}, p)
	})

	t.Run("unknown month", func(t *testing.T) {
		_, err := ParsePeriodKey("2024-January")
		require.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("non-period column", func(t *testing.T) {
		_, err := ParsePeriodKey("ADDRESS")
		require.ErrorIs(t, err, ErrInvalidPeriod)
	})

	t.Run("bad year", func(t *testing.T) {
		_, err := ParsePeriodKey("abc-Marzo")
		require.ErrorIs(t, err, ErrInvalidPeriod)
	})
}

func TestPeriodKey_Compare(t *testing.T) {
	jan24 := PeriodKey{Year: 2024, Month: time.January}
	dec23 := PeriodKey{Year: 2023, Month: time.December}
	mar24 := PeriodKey{Year: 2024, Month: time.March}

	assert.Equal(t, 1, jan24.Compare(dec23))
	assert.Equal(t, -1, jan24.Compare(mar24))
	assert.Equal(t, 0, jan24.Compare(PeriodKey{Year: 2024, Month: time.January}))
	assert.True(t, dec23.Before(jan24))
	assert.Equal(t, 3, dec23.MonthsUntil(mar24))
	assert.Equal(t, -2, mar24.MonthsUntil(jan24))
}

func TestPeriodKey_TextRoundTrip(t *testing.T) {
	type wrapper struct {
		Period PeriodKey `json:"period"`
	}
	data, err := json.Marshal(wrapper{Period: PeriodKey{Year: 2024, Month: time.March}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"period":"2024-Marzo"}`, string(data))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"period":"2022-Diciembre"}`), &w))
	assert.Equal(t, PeriodKey{Year: 2022, Month: time.December}, w.Period)
}

func TestNewPeriodKey_RejectsOutOfRange(t *testing.T) {
	_, err := NewPeriodKey(2024, 13)
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCurrentPeriod_UsesClock(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC)))
	defer SetClock(nil)

	assert.Equal(t, PeriodKey{Year: 2024, Month: time.June}, CurrentPeriod())
}
