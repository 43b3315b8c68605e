// Command genmock generates a reproducible mock route: a route dataset CSV for
// ROUTE_FILE and a JSON fixture shaped like the persistence service's
// GET /routes/{id}/meters response. The CSV is read back through the route
// file parser so the fixture matches what the service will load.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -route-id route-1 -meters 25 -months 12 -period 2024-Marzo \
//	  -csv-out data/mock/route-1.csv \
//	  -json-out data/mock/route-1_meters.json
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/meter-route-service/internal/adapter/routefile"
	"github.com/couchcryptid/meter-route-service/internal/domain"
)

var streets = []string{"Av. Central", "Calle Los Pinos", "Calle 5 de Mayo", "Pasaje El Roble", "Av. Libertad", "Calle Las Flores"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	routeID := flag.String("route-id", "route-1", "route identifier")
	meterCount := flag.Int("meters", 25, "number of meters on the route")
	months := flag.Int("months", 12, "months of history before the target period")
	periodFlag := flag.String("period", "2024-Marzo", "target period; history ends the month before")
	seed := flag.Uint64("seed", 42, "random seed")
	csvOut := flag.String("csv-out", "", "output path for the route dataset CSV")
	jsonOut := flag.String("json-out", "", "output path for the persistence meters JSON fixture")
	flag.Parse()

	if *csvOut == "" || *jsonOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -csv-out, -json-out")
	}
	if *meterCount < 1 || *months < 1 {
		return fmt.Errorf("-meters and -months must be positive")
	}
	target, err := domain.ParsePeriodKey(*periodFlag)
	if err != nil {
		return fmt.Errorf("invalid -period: %w", err)
	}

	periods := historyPeriods(target, *months)
	rows := generate(rand.New(rand.NewPCG(*seed, *seed)), *meterCount, periods)

	if err := writeCSV(*csvOut, periods, rows); err != nil {
		return fmt.Errorf("writing route CSV: %w", err)
	}
	log.Printf("wrote route CSV: %s", *csvOut)

	f, err := os.Open(*csvOut)
	if err != nil {
		return err
	}
	defer f.Close()
	meters, err := routefile.Parse(f)
	if err != nil {
		return fmt.Errorf("generated CSV does not parse: %w", err)
	}

	if err := writeJSON(*jsonOut, meters); err != nil {
		return fmt.Errorf("writing meters fixture: %w", err)
	}
	log.Printf("wrote meters fixture for %s: %s", *routeID, *jsonOut)

	printStats(meters, target)
	return nil
}

// historyPeriods returns the n months before target, oldest first.
func historyPeriods(target domain.PeriodKey, n int) []domain.PeriodKey {
	start := time.Date(target.Year, target.Month, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.PeriodKey, n)
	for i := range n {
		out[i] = domain.PeriodOf(start.AddDate(0, i-n, 0))
	}
	return out
}

// generate builds one row per meter. Roughly one meter in ten has gaps, one
// in twenty was replaced mid-history, and one in fifteen has no history.
func generate(rng *rand.Rand, n int, periods []domain.PeriodKey) [][]string {
	rows := make([][]string, 0, n)
	for i := range n {
		id := fmt.Sprintf("MED-%04d", i+1)
		address := fmt.Sprintf("%s %d", streets[i%len(streets)], 100+rng.IntN(900))
		row := []string{id, address}

		switch {
		case rng.IntN(15) == 0:
			for range periods {
				row = append(row, domain.Placeholder)
			}
		default:
			reading := float64(rng.IntN(5000))
			monthly := 5 + rng.Float64()*40
			gaps := rng.IntN(10) == 0
			replaced := rng.IntN(20) == 0
			for j := range periods {
				if replaced && j == len(periods)/2 {
					reading = float64(rng.IntN(20))
				}
				reading += math.Round(monthly * (0.6 + rng.Float64()*0.8))
				if gaps && rng.IntN(4) == 0 {
					row = append(row, "NO DATA")
					continue
				}
				row = append(row, strconv.FormatFloat(reading, 'f', -1, 64))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func writeCSV(path string, periods []domain.PeriodKey, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := []string{"ID", "ADDRESS"}
	for _, p := range periods {
		header = append(header, p.String())
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

func printStats(meters []domain.MeterRecord, target domain.PeriodKey) {
	var noHistory, withGaps int
	var sumAvg float64
	for _, m := range meters {
		h := domain.ParseHistory(m.History)
		if _, ok := h.Anchor(); !ok {
			noHistory++
			continue
		}
		for _, e := range h {
			if !e.HasValue() {
				withGaps++
				break
			}
		}
		sumAvg += domain.ComputeSummary(h, target).AverageConsumption
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Meters: %d\n", len(meters))
	fmt.Printf("Without history: %d\n", noHistory)
	fmt.Printf("With gaps: %d\n", withGaps)
	if n := len(meters) - noHistory; n > 0 {
		fmt.Printf("Mean average consumption: %.1f\n", sumAvg/float64(n))
	}
}
