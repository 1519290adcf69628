package models

import "fmt"

// Band is the urgency classification attached to an estimate so the
// presentation layer can color rows without re-deriving thresholds.
type Band string

const (
	BandImminent Band = "imminent"
	BandSoon     Band = "soon"
	BandOk       Band = "ok"
	BandUnknown  Band = "unknown"
)

// EstimateKind discriminates the three estimate variants.
type EstimateKind int

const (
	// KindUnresolved: the trip is scheduled to serve the stop but there is
	// neither a usable scheduled time nor a live position to rank it by.
	KindUnresolved EstimateKind = iota
	// KindScheduled: ETA in minutes derived from the static timetable.
	KindScheduled
	// KindApproaching: stop count derived from a live GPS match, used only
	// when no scheduled time exists for the trip at the target stop.
	KindApproaching
)

// Estimate is a tagged variant: exactly one of {minutes, stops} is carried,
// never both. This replaces the two-nullable-fields representation and its
// "both set" / "both null" ambiguity.
type Estimate struct {
	kind  EstimateKind
	value int
}

// ScheduledIn builds a schedule-based estimate of the given minutes.
func ScheduledIn(minutes int) Estimate {
	return Estimate{kind: KindScheduled, value: minutes}
}

// ApproachingBy builds a GPS-based estimate of the given stop count.
func ApproachingBy(stops int) Estimate {
	return Estimate{kind: KindApproaching, value: stops}
}

// Unresolved builds the no-signal estimate.
func Unresolved() Estimate {
	return Estimate{kind: KindUnresolved}
}

func (e Estimate) Kind() EstimateKind { return e.kind }

// Minutes returns the schedule-based ETA, if this is a Scheduled estimate.
func (e Estimate) Minutes() (int, bool) {
	if e.kind != KindScheduled {
		return 0, false
	}
	return e.value, true
}

// Stops returns the stops-away count, if this is an Approaching estimate.
func (e Estimate) Stops() (int, bool) {
	if e.kind != KindApproaching {
		return 0, false
	}
	return e.value, true
}

// Band classifies the estimate's urgency.
func (e Estimate) Band() Band {
	switch e.kind {
	case KindScheduled:
		switch {
		case e.value <= 2:
			return BandImminent
		case e.value <= 5:
			return BandSoon
		default:
			return BandOk
		}
	case KindApproaching:
		switch {
		case e.value <= 2:
			return BandImminent
		case e.value <= 5:
			return BandSoon
		default:
			return BandOk
		}
	default:
		return BandUnknown
	}
}

// Label renders the estimate for display: "3 min", "here", "2 stops",
// or "on route" when unresolved.
func (e Estimate) Label() string {
	switch e.kind {
	case KindScheduled:
		return fmt.Sprintf("%d min", e.value)
	case KindApproaching:
		if e.value == 0 {
			return "here"
		}
		if e.value == 1 {
			return "1 stop"
		}
		return fmt.Sprintf("%d stops", e.value)
	default:
		return "on route"
	}
}
