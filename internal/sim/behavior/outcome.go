package behavior

import (
	"errors"
	"fmt"
)

// ErrDecline is the control-flow signal "this branch has no viable option".
// It is never a fault: Selector moves on to the next child and Sequence stops.
var ErrDecline = errors.New("behavior: declined")

// ErrResumedTwice is returned when a node calls its continuation more than once.
var ErrResumedTwice = errors.New("behavior: continuation resumed twice")

// Declinef wraps ErrDecline with a reason.
func Declinef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDecline, fmt.Sprintf(format, args...))
}

func IsDecline(err error) bool { return errors.Is(err, ErrDecline) }

type Status uint8

const (
	StatusSuccess Status = iota + 1
	StatusDecline
	StatusFault
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDecline:
		return "decline"
	case StatusFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Outcome is the result of one node evaluation. Err carries the decline
// reason or the fault.
type Outcome struct {
	Status Status
	Err    error
}

func Success() Outcome { return Outcome{Status: StatusSuccess} }

func Decline(reason error) Outcome {
	if reason == nil {
		reason = ErrDecline
	}
	return Outcome{Status: StatusDecline, Err: reason}
}

func Fault(err error) Outcome { return Outcome{Status: StatusFault, Err: err} }

// OutcomeOf classifies an action error: nil succeeds, a wrapped ErrDecline
// declines, anything else faults.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return Success()
	case IsDecline(err):
		return Decline(err)
	default:
		return Fault(err)
	}
}

func (o Outcome) Ok() bool { return o.Status == StatusSuccess }

// Done receives an evaluation's outcome. Whatever it returns travels back to
// the code that resumed the evaluation (usually a timeline callback), which is
// how faults reach the scheduler.
type Done func(Outcome) error
