package imaging

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/flightplan-orchestrator/core"
	"github.com/signalsfoundry/flightplan-orchestrator/model"
)

// DefaultMaxOffNadirDeg is the off-nadir limit applied when callers do not
// supply one.
const DefaultMaxOffNadirDeg = 10.0

// MaxTLEAge is the element age beyond which results carry a warning.
const MaxTLEAge = 48 * time.Hour

// Advice is the caller-facing judgement of an opportunity.
type Advice struct {
	Acceptable bool
	Message    string
}

// Advise compares opp against the off-nadir limit. A nil opportunity is never
// acceptable.
func Advise(opp *Opportunity, maxOffNadirDeg float64) Advice {
	if maxOffNadirDeg <= 0 {
		maxOffNadirDeg = DefaultMaxOffNadirDeg
	}
	if opp == nil {
		return Advice{Message: "No imaging opportunity found: the target is not visible within the search window."}
	}
	if opp.OffNadirDeg > maxOffNadirDeg {
		return Advice{Message: fmt.Sprintf(
			"No imaging opportunity found within the off-nadir limit of %.1f degrees. Best one found was %.2f degrees off-nadir.",
			maxOffNadirDeg, opp.OffNadirDeg,
		)}
	}
	return Advice{Acceptable: true, Message: fmt.Sprintf("Imaging opportunity found at %.2f degrees off-nadir.", opp.OffNadirDeg)}
}

// TLEAgeWarning returns a warning when the satellite's elements are older
// than MaxTLEAge at now, or "" otherwise. The element epoch is used when
// the refresh time is unknown.
func TLEAgeWarning(sat *model.Satellite, now time.Time) string {
	if sat == nil {
		return ""
	}
	updated := sat.TLEUpdatedAt
	if updated.IsZero() {
		updated = core.TLEEpoch(sat.TLELine1)
	}
	if updated.IsZero() {
		return ""
	}
	age := now.Sub(updated)
	if age <= MaxTLEAge {
		return ""
	}
	return fmt.Sprintf("TLE data is %.0f hours old; predictions may be inaccurate.", age.Hours())
}
