package doctxn

import "fmt"

// State is a Transaction's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateWaitingToRetry
	// Terminal states, mutually exclusive.
	StateDone
	StateExhausted
	StateTimedOut
	StateFailed
	StateCancelled
)

var stateNames = [...]string{"idle", "attempting", "waiting", "done", "exhausted", "timeout", "failed", "cancelled"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether s ends the Transaction.
func (s State) Terminal() bool {
	return s >= StateDone
}

// Outcome is the single terminal result of a Transaction.
type Outcome struct {
	// Kind is one of the terminal states.
	Kind State
	// Document is the final document, set when Kind is StateDone.
	Document Document
	// Attempts is the number of attempts made.
	Attempts int
	// Err describes every outcome other than StateDone.
	Err error
}

// Result maps the outcome to the usual Go (value, error) pair.
func (o Outcome) Result() (Document, error) {
	if o.Kind == StateDone {
		return o.Document, nil
	}
	if o.Err == nil {
		return nil, fmt.Errorf("transaction ended as %s", o.Kind)
	}
	return nil, o.Err
}
