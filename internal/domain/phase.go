package domain

import "fmt"

// Phase is a planning horizon controlling which device statuses are visible
type Phase string

const (
	PhaseAsIs   Phase = "AS_IS"
	PhaseToBe   Phase = "TO_BE"
	PhaseFuture Phase = "FUTURE"
)

// Phases lists every phase in planning order
var Phases = []Phase{PhaseAsIs, PhaseToBe, PhaseFuture}

// Status4D is a device's lifecycle/visibility tag
type Status4D string

const (
	StatusExistingRetained Status4D = "EXISTING_RETAINED"
	StatusExistingRemoved  Status4D = "EXISTING_REMOVED"
	StatusProposed         Status4D = "PROPOSED"
	StatusFuture           Status4D = "FUTURE"
	StatusModified         Status4D = "MODIFIED"
)

// phaseVisibility maps each phase to the statuses present in its view.
// EXISTING_REMOVED stays in the as-is view until the removal is carried out;
// planned equipment only appears from the phase it is planned for onwards.
var phaseVisibility = map[Phase]map[Status4D]bool{
	PhaseAsIs: {
		StatusExistingRetained: true,
		StatusExistingRemoved:  true,
		StatusModified:         true,
	},
	PhaseToBe: {
		StatusExistingRetained: true,
		StatusModified:         true,
		StatusProposed:         true,
	},
	PhaseFuture: {
		StatusExistingRetained: true,
		StatusModified:         true,
		StatusProposed:         true,
		StatusFuture:           true,
	},
}

// ParsePhase validates a phase string
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if _, ok := phaseVisibility[p]; !ok {
		return "", fmt.Errorf("%w: unknown phase %q", ErrValidation, s)
	}
	return p, nil
}

// Valid reports whether p is a known phase
func (p Phase) Valid() bool {
	_, ok := phaseVisibility[p]
	return ok
}

// Shows reports whether a device with the given status is present in this phase's view
func (p Phase) Shows(s Status4D) bool {
	return phaseVisibility[p][s]
}

// ParseStatus4D validates a status string
func ParseStatus4D(s string) (Status4D, error) {
	st := Status4D(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status4D %q", ErrValidation, s)
	}
	return st, nil
}

// Valid reports whether s is a known status
func (s Status4D) Valid() bool {
	switch s {
	case StatusExistingRetained, StatusExistingRemoved, StatusProposed, StatusFuture, StatusModified:
		return true
	}
	return false
}

// VisibleIn returns the phases, in planning order, whose view contains status s
func (s Status4D) VisibleIn() []Phase {
	var out []Phase
	for _, p := range Phases {
		if p.Shows(s) {
			out = append(out, p)
		}
	}
	return out
}

// ProposedStatusFor returns the status a forked device receives when proposed into phase p.
// The as-is phase records observed state and cannot receive proposals.
func ProposedStatusFor(p Phase) (Status4D, error) {
	switch p {
	case PhaseToBe:
		return StatusProposed, nil
	case PhaseFuture:
		return StatusFuture, nil
	case PhaseAsIs:
		return "", fmt.Errorf("%w: cannot propose equipment into %s", ErrValidation, p)
	}
	return "", fmt.Errorf("%w: unknown phase %q", ErrValidation, p)
}

// Presence is the physical expectation a status implies for a verification scan
type Presence int

const (
	PresenceEither Presence = iota
	PresenceExpected
	PresenceAbsent
)

// ExpectedPresence returns whether equipment with status s should be physically installed today
func (s Status4D) ExpectedPresence() Presence {
	switch s {
	case StatusExistingRetained, StatusModified:
		return PresenceExpected
	case StatusProposed, StatusFuture:
		return PresenceAbsent
	}
	return PresenceEither
}
