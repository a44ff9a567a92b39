package cert

import (
	"errors"
	"fmt"
)

// =============================================================================
// Lifecycle State Machine
// =============================================================================

// State is a certificate's position in the issuance lifecycle.
type State string

const (
	// StateNone: no certificate exists for the domain.
	StateNone State = "none"
	// StatePending: a proof-of-control challenge is outstanding.
	StatePending State = "pending-challenge"
	// StateValidated: the challenge passed; the order is being finalized.
	StateValidated State = "validated"
	// StateActive: the certificate is stored and served.
	StateActive State = "active"
	// StateRenewalDue: the certificate is within the renewal window.
	StateRenewalDue State = "renewal-due"
	// StateExpired: the certificate expired or was revoked.
	StateExpired State = "expired"
)

// Event drives state transitions.
type Event string

const (
	// EventRequest: first request for an unresolved domain, or a renewal
	// restart.
	EventRequest Event = "request"
	// EventChallengePassed: the proof-of-control challenge succeeded.
	EventChallengePassed Event = "challenge-passed"
	// EventChallengeFailed: the challenge failed; retried on the next
	// triggering request.
	EventChallengeFailed Event = "challenge-failed"
	// EventStored: the finalized certificate was persisted.
	EventStored Event = "stored"
	// EventRenewalWindow: the time threshold before expiry was crossed.
	EventRenewalWindow Event = "renewal-window"
	// EventExpired: the certificate expired or was revoked before renewal.
	EventExpired Event = "expired"
)

// ErrIllegalTransition is returned by Next for undefined transitions.
var ErrIllegalTransition = errors.New("illegal certificate state transition")

// TransitionError reports the state/event pair that has no defined transition.
type TransitionError struct {
	From  State
	Event Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("no transition from %q on %q", e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// transitions is the full lifecycle:
//
//	none ──request──▶ pending ──passed──▶ validated ──stored──▶ active
//	  ▲                  │                                        │
//	  └────failed────────┘                             renewal-window
//	                                                              ▼
//	            pending ◀──request── renewal-due ──expired──▶ expired
var transitions = map[State]map[Event]State{
	StateNone: {
		EventRequest: StatePending,
	},
	StatePending: {
		EventChallengePassed: StateValidated,
		EventChallengeFailed: StateNone,
	},
	StateValidated: {
		EventStored: StateActive,
	},
	StateActive: {
		EventRenewalWindow: StateRenewalDue,
		EventExpired:       StateExpired,
	},
	StateRenewalDue: {
		EventRequest: StatePending,
		EventExpired: StateExpired,
	},
	StateExpired: {
		EventRequest: StatePending,
	},
}

// Next returns the state reached from the given state on the given event.
// Undefined pairs return a TransitionError wrapping ErrIllegalTransition.
func Next(from State, event Event) (State, error) {
	if to, ok := transitions[from][event]; ok {
		return to, nil
	}
	return from, &TransitionError{From: from, Event: event}
}
