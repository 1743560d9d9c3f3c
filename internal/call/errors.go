package call

import (
	"errors"
	"fmt"
)

var (
	ErrResourceUnavailable = errors.New("local media or transport unavailable")
	ErrInvalidRemoteState  = errors.New("no live transport for remote description")
	ErrInvalidCandidate    = errors.New("invalid network candidate")
	ErrChannel             = errors.New("signaling channel error")
	ErrBusy                = errors.New("remote participant is busy")
	ErrNoRemote            = errors.New("no remote participant bound")
)

// Error is a failure contained at a transition boundary.
type Error struct {
	Op      string
	Peer    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Peer != "" {
		msg += " " + e.Peer
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, peer string, err error) *Error {
	return &Error{Op: op, Peer: peer, Err: err}
}

func WrapError(op, peer string, err error, details string) *Error {
	return &Error{Op: op, Peer: peer, Err: err, Details: details}
}

// Kind names the taxonomy bucket of err, for metrics and logs.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrResourceUnavailable):
		return "resource_unavailable"
	case errors.Is(err, ErrInvalidRemoteState):
		return "invalid_remote_state"
	case errors.Is(err, ErrInvalidCandidate):
		return "invalid_candidate"
	case errors.Is(err, ErrChannel):
		return "channel"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNoRemote):
		return "no_remote"
	}
	return "other"
}
