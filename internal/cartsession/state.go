package cartsession

import "fmt"

// State is the reconciliation state of a session
type State int

const (
	// Clean means the snapshot matches the last confirmed store state
	Clean State = iota
	// Dirty means optimistic edits are waiting for the debounce window
	Dirty
	// Flushing means a batch of edits is in flight
	Flushing
	// Reconciling means the session is re-reading the store
	Reconciling
)

func (s State) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Flushing:
		return "flushing"
	case Reconciling:
		return "reconciling"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON output
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type event int

const (
	evMutate        event = iota // optimistic edit recorded
	evPendingClear               // all pending edits dropped without a write
	evFlushStart                 // debounce fired or explicit flush
	evFlushSucceeded             // store confirmed the batch
	evFlushFailed                // store rejected the batch; rollback done
	evRefreshStart               // wholesale re-read begins
	evRefreshDone                // re-read finished (successfully or not)
)

func (e event) String() string {
	switch e {
	case evMutate:
		return "mutate"
	case evPendingClear:
		return "pending-clear"
	case evFlushStart:
		return "flush-start"
	case evFlushSucceeded:
		return "flush-succeeded"
	case evFlushFailed:
		return "flush-failed"
	case evRefreshStart:
		return "refresh-start"
	case evRefreshDone:
		return "refresh-done"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// transitions lists every legal (state, event) pair
var transitions = map[State]map[event]State{
	Clean: {
		evMutate:       Dirty,
		evRefreshStart: Reconciling,
	},
	Dirty: {
		evMutate:       Dirty,
		evPendingClear: Clean,
		evFlushStart:   Flushing,
		evRefreshStart: Reconciling,
	},
	Flushing: {
		evMutate:         Flushing,
		evPendingClear:   Flushing,
		evFlushSucceeded: Clean,
		evFlushFailed:    Reconciling,
		evRefreshStart:   Reconciling,
	},
	Reconciling: {
		evMutate:       Reconciling,
		evPendingClear: Reconciling,
		evRefreshStart: Reconciling,
		evRefreshDone:  Clean,
	},
}

// next returns the state reached from s on e
func next(s State, e event) (State, error) {
	to, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("illegal transition: %s on %s", s, e)
	}
	return to, nil
}
