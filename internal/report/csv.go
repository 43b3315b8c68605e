// Package report renders a finalized submission as the CSV attached to the
// end-of-route email.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/couchcryptid/meter-route-service/internal/domain"
)

var header = []string{"ID", "DIRECCION", "LECTURA_ANTERIOR", "LECTURA_ACTUAL", "CONSUMO", "VERIFICACION"}

// WriteCSV writes one line per meter followed by a blank line and the
// aggregate statistics. Meters without a numeric consumption get "---".
func WriteCSV(w io.Writer, sub domain.Submission) error {
	cw := csv.NewWriter(w)

	records := make([][]string, 0, len(sub.Rows)+10)
	records = append(records, header)
	for _, row := range sub.Rows {
		consumption := domain.Placeholder
		if row.Consumption != nil {
			consumption = formatFloat(*row.Consumption)
		}
		verification := ""
		if row.Verification != nil {
			verification = string(row.Verification.Classification)
		}
		records = append(records, []string{
			row.MeterID,
			row.Address,
			row.PreviousReading.String(),
			row.CurrentReading,
			consumption,
			verification,
		})
	}

	s := sub.Stats
	records = append(records,
		[]string{},
		[]string{"RUTA", sub.RouteID},
		[]string{"PERIODO", sub.Period.String()},
		[]string{"TOTAL_MEDIDORES", strconv.Itoa(s.TotalMeters)},
		[]string{"COMPLETADOS", strconv.Itoa(s.CompletedMeters)},
		[]string{"OMITIDOS", strconv.Itoa(s.SkippedMeters)},
		[]string{"CONSUMO_TOTAL", formatFloat(s.TotalConsumption)},
		[]string{"CONSUMO_PROMEDIO", formatFloat(s.AvgConsumption)},
		[]string{"CONSUMO_MAXIMO", formatFloat(s.MaxConsumption)},
		[]string{"CONSUMO_MINIMO", formatFloat(s.MinConsumption)},
	)

	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write report csv: %w", err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
