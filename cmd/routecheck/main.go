// Command routecheck loads a route dataset CSV and reports, per meter, the
// previous reading, the average consumption and the estimated reading for a
// target period. It also flags data problems: rejected rows, meters without
// any usable history, and meter rollbacks.
//
// Usage:
//
//	go run ./cmd/routecheck -file data/route-1.csv -period 2024-Marzo
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/couchcryptid/meter-route-service/internal/adapter/routefile"
	"github.com/couchcryptid/meter-route-service/internal/domain"
)

// phase tracks pass/fail for one group of checks.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	file := flag.String("file", "", "route dataset CSV (ID,ADDRESS,<year>-<Mes>...)")
	period := flag.String("period", "", "target period, e.g. 2024-Marzo (default: current month)")
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	target := domain.CurrentPeriod()
	if *period != "" {
		p, err := domain.ParsePeriodKey(*period)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		target = p
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	code := run(os.Stdout, f, target)
	f.Close()
	os.Exit(code)
}

func run(out io.Writer, in io.Reader, target domain.PeriodKey) int {
	meters, parseErr := routefile.Parse(in)

	rows := &phase{name: "Route file rows"}
	for _, err := range flatten(parseErr) {
		rows.errorf("%v", err)
	}
	if len(meters) == 0 {
		fmt.Fprintf(out, "FATAL: no meters read\n")
		for _, e := range rows.errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
		return 1
	}

	history := &phase{name: "Meter history"}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(out, "=== Route check for %s (%d meters) ===\n\n", target, len(meters))
	fmt.Fprintln(tw, "ID\tADDRESS\tPREVIOUS\tPERIOD\tAVERAGE\tESTIMATE")
	for _, m := range meters {
		h := domain.ParseHistory(m.History)
		checkHistory(history, m.ID, h, target)

		s := domain.ComputeSummary(h, target)
		previous, anchorPeriod, estimate := domain.Placeholder, domain.Placeholder, domain.Placeholder
		if s.Anchor != nil {
			previous = formatFloat(*s.Anchor.Value)
			anchorPeriod = s.Anchor.Period.String()
		}
		if s.EstimatedReading != nil {
			estimate = formatFloat(*s.EstimatedReading)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%s\n",
			m.ID, m.Address, previous, anchorPeriod, s.DisplayAverage(), estimate)
	}
	tw.Flush() //nolint:errcheck // stdout

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range []*phase{rows, history} {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("WARN (%d)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-24s %s\n", p.name, status)
	}
	for _, p := range []*phase{rows, history} {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for _, e := range p.errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
	}

	if !allPassed {
		return 2
	}
	return 0
}

func checkHistory(p *phase, meterID string, h domain.History, target domain.PeriodKey) {
	anchor, ok := h.Anchor()
	if !ok {
		p.errorf("%s: no usable history; the first reading will be accepted unchecked", meterID)
		return
	}
	if !anchor.Period.Before(target) {
		p.errorf("%s: history already has %s, not before target %s", meterID, anchor.Period, target)
	}
	if latest, _ := h.Latest(); !latest.HasValue() {
		p.errorf("%s: latest period %s has no reading; estimate projects from %s", meterID, latest.Period, anchor.Period)
	}

	var last *domain.HistoryEntry
	for i := range h {
		if !h[i].HasValue() {
			continue
		}
		if last != nil && *h[i].Value < *last.Value {
			p.errorf("%s: reading drops from %s (%s) to %s (%s)", meterID,
				formatFloat(*last.Value), last.Period, formatFloat(*h[i].Value), h[i].Period)
		}
		last = &h[i]
	}
}

// flatten unpacks an errors.Join result into its parts.
func flatten(err error) []error {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		return joined.Unwrap()
	}
	return []error{err}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
