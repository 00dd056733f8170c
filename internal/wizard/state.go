// Package wizard implements the certificate request wizard: a four step
// state machine (issuer, subject, dates, extensions) that guards forward
// navigation and hands the finished request to an Issuer.
package wizard

import (
	"fmt"

	"github.com/remiblancher/certwizard/internal/request"
	"github.com/remiblancher/certwizard/internal/validation"
)

// State is a wizard step.
type State int

// Wizard steps, in navigation order.
const (
	StateIssuer State = iota
	StateSubject
	StateDates
	StateExtensions
)

var stateNames = [...]string{
	StateIssuer:     "ISSUER",
	StateSubject:    "SUBJECT",
	StateDates:      "DATES",
	StateExtensions: "EXTENSIONS",
}

// String returns the step name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// ParseState parses a step name as returned by String.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if n == name {
			return State(i), nil
		}
	}
	return 0, fmt.Errorf("unknown wizard state %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// transition describes one step: the check run before leaving forward and
// the neighbouring steps.
type transition struct {
	guard    func(*request.Request) error
	next     func(*request.Request) (State, bool)
	previous func() (State, bool)
}

func always(s State) func(*request.Request) (State, bool) {
	return func(*request.Request) (State, bool) { return s, true }
}

func never(*request.Request) (State, bool) { return 0, false }

func back(s State) func() (State, bool) {
	return func() (State, bool) { return s, true }
}

func none() (State, bool) { return 0, false }

func noGuard(*request.Request) error { return nil }

var transitions = [...]transition{
	StateIssuer: {
		guard:    func(r *request.Request) error { return validation.CommonName("issuer.commonName", r.Issuer.CommonName) },
		next:     always(StateSubject),
		previous: none,
	},
	StateSubject: {
		guard:    func(r *request.Request) error { return validation.CommonName("subject.commonName", r.Subject.CommonName) },
		next:     always(StateDates),
		previous: back(StateIssuer),
	},
	StateDates: {
		guard: noGuard,
		next: func(r *request.Request) (State, bool) {
			return StateExtensions, r.Version == request.Version3
		},
		previous: back(StateSubject),
	},
	StateExtensions: {
		guard:    noGuard,
		next:     never,
		previous: back(StateDates),
	},
}

// Status is the lifecycle of a wizard session.
type Status int

// Session lifecycle values.
const (
	StatusActive Status = iota
	StatusFinished
	StatusCancelled
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusFinished:
		return "FINISHED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	for _, v := range []Status{StatusActive, StatusFinished, StatusCancelled} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown wizard status %q", text)
}

// Navigation is the snapshot posted to listeners after navigation changes.
// First is set on the issuer step; Last is set whenever there is no next step.
type Navigation struct {
	State       State  `json:"state"`
	Status      Status `json:"status"`
	HasNext     bool   `json:"hasNext"`
	HasPrevious bool   `json:"hasPrevious"`
	First       bool   `json:"first"`
	Last        bool   `json:"last"`
}
