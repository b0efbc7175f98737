package updater

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is a step of the update state machine.
type State int

const (
	Idle State = iota
	Validating
	Mounting
	Processing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Mounting:
		return "mounting"
	case Processing:
		return "processing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome summarizes a run.
type Outcome int

const (
	// NoUpdate: no signature or no commands. Nothing was touched.
	NoUpdate Outcome = iota
	// Rejected: the table was unusable. Nothing was touched.
	Rejected
	// Failed: the table was consumed but the update stopped early. Flash
	// may be partially updated.
	Failed
	// Completed: every command ran.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case NoUpdate:
		return "no update"
	case Rejected:
		return "rejected"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result reports what a run did.
type Result struct {
	Outcome  Outcome
	Written  int // write entries completed
	Skipped  int // unknown entries skipped
	Blocks   int // blocks committed
	Consumed bool
}

// Step names the operation a StepError failed in.
type Step string

const (
	StepLoad    Step = "read table"
	StepConsume Step = "erase table"
	StepMount   Step = "mount"
	StepCheck   Step = "check destination"
	StepOpen    Step = "open"
	StepSeek    Step = "seek"
	StepRead    Step = "read"
	StepCommit  Step = "commit"
)

// StepError reports the step and entry an update stopped at.
type StepError struct {
	Step  Step
	Entry int // -1 outside entry processing
	Err   error
}

func (e *StepError) Error() string {
	if e.Entry < 0 {
		return fmt.Sprintf("ota %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("ota entry %d %s: %v", e.Entry, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors causer.
func (e *StepError) Cause() error {
	return errors.Cause(e.Err)
}
