// Package domain models water-meter route readings and the rules used to
// validate them against a meter's history.
//
// # Data Source
//
// Each meter carries a sparse monthly history keyed by period. The static
// route dataset and the persistence service both deliver it as a flat
// mapping that also contains non-period columns:
//
//	{"ID": "M-104", "ADDRESS": "Calle 5 #12", "2024-Enero": 100, "2024-Febrero": "---"}
//
// # Period Keys
//
// Keys have the form "<year>-<monthName>" with Spanish month names:
//
//	Enero Febrero Marzo Abril Mayo Junio Julio Agosto Septiembre Octubre Noviembre Diciembre
//
// Month names are matched case-insensitively. Keys with an unknown month or a
// malformed year are skipped rather than rejected. Ordering is by year, then
// month. [History] is always oldest to newest; use [History.Reversed] for the
// newest-first view.
//
// Unknown values:
//
//	"---" and "NO DATA" (any case) mark a period with no reading. Any other
//	non-numeric value is treated the same way. Such entries stay in the
//	history with a nil value so that they break consumption deltas.
//
// # Consumption
//
// A delta is the difference between two consecutive valued periods. Negative
// deltas come from meter rollbacks or replacements and are dropped. The
// average is the mean of the five most recent retained deltas.
//
// The estimate projects the most recent valued reading (the anchor) forward:
//
//	periods  = months(anchor → target) + 1, at least 1
//	estimate = round(anchor + average × periods)
//
// The inclusive "+1" is a business rule. The average is rounded to one
// decimal only for display ([ConsumptionSummary.DisplayAverage]).
//
// # Classification
//
// Consumption (candidate − previous) is classified in this order:
//
//	negative  consumption < 0
//	high      average > 0 and consumption > average × 1.6
//	normal    average = 0 and consumption ≤ 5 (zero-baseline tolerance)
//	low       consumption < 4
//	normal    everything else, including a meter with no previous reading
//
// Non-normal readings need a [VerificationRecord] before they count as
// confirmed. Its details are a tagged union, one type per classification.
package domain
