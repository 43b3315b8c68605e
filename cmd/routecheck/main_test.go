package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/domain"
	"github.com/stretchr/testify/assert"
)

var march2024 = domain.PeriodKey{Year: 2024, Month: time.March}

func TestRun_CleanRoute(t *testing.T) {
	in := strings.NewReader("ID,ADDRESS,2024-Enero,2024-Febrero\nM-1,Calle 1,100,110\nM-2,Calle 2,200,203.5\n")
	var out bytes.Buffer

	code := run(&out, in, march2024)

	assert.Equal(t, 0, code)
	got := out.String()
	assert.Contains(t, got, "Route check for 2024-Marzo (2 meters)")
	assert.Regexp(t, `M-1\s+Calle 1\s+110\s+2024-Febrero\s+10\.0\s+130`, got)
	assert.Regexp(t, `M-2\s+Calle 2\s+203\.5\s+2024-Febrero\s+3\.5\s+211`, got)
	assert.Contains(t, got, "Meter history")
	assert.NotContains(t, got, "WARN")
}

func TestRun_ReportsProblems(t *testing.T) {
	in := strings.NewReader("ID,ADDRESS,2024-Enero,2024-Febrero\n" +
		"M-1,Calle 1,100,90\n" +
		",Sin id,1,2\n" +
		"M-2,Calle 2,---,NO DATA\n" +
		"M-1,Repetido,1,2\n")
	var out bytes.Buffer

	code := run(&out, in, march2024)

	assert.Equal(t, 2, code)
	got := out.String()
	assert.Contains(t, got, "row 3: missing meter id")
	assert.Contains(t, got, `row 5: duplicate meter id "M-1"`)
	assert.Contains(t, got, "M-1: reading drops from 100 (2024-Enero) to 90 (2024-Febrero)")
	assert.Contains(t, got, "M-2: no usable history")
	assert.Regexp(t, `M-2\s+Calle 2\s+---\s+---\s+0\.0\s+---`, got)
}

func TestRun_ReportsMissingLatestReading(t *testing.T) {
	in := strings.NewReader("ID,ADDRESS,2023-Diciembre,2024-Enero,2024-Febrero\nM-3,Calle 3,90,100,---\n")
	var out bytes.Buffer

	code := run(&out, in, march2024)

	assert.Equal(t, 2, code)
	got := out.String()
	assert.Contains(t, got, "M-3: latest period 2024-Febrero has no reading; estimate projects from 2024-Enero")
	assert.Regexp(t, `M-3\s+Calle 3\s+100\s+2024-Enero\s+10\.0\s+130`, got)
}

func TestRun_NoMeters(t *testing.T) {
	var out bytes.Buffer
	code := run(&out, strings.NewReader("NOMBRE,DIRECCION\n"), march2024)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "unexpected header")
}
