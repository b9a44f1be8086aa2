package rawvalidation

import "fmt"

// State is the validation state of one raw file. States only move forward:
// a file passes the name check, then the column-count check, then the
// null-column check, and any failure is terminal.
type State int

const (
	StateUnvalidated State = iota
	StateNameValid
	StateNameInvalid
	StateColumnCountValid
	StateColumnCountInvalid
	StateNoAllNullColumns
	StateHasAllNullColumn
)

var stateNames = map[State]string{
	StateUnvalidated:        "unvalidated",
	StateNameValid:          "name_valid",
	StateNameInvalid:        "name_invalid",
	StateColumnCountValid:   "column_count_valid",
	StateColumnCountInvalid: "column_count_invalid",
	StateNoAllNullColumns:   "no_all_null_columns",
	StateHasAllNullColumn:   "has_all_null_column",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// transitions lists the allowed successors of each state. States absent
// from the map have no successors.
var transitions = map[State][]State{
	StateUnvalidated:      {StateNameValid, StateNameInvalid},
	StateNameValid:        {StateColumnCountValid, StateColumnCountInvalid},
	StateColumnCountValid: {StateNoAllNullColumns, StateHasAllNullColumn},
}

// Quarantined reports whether s is a failed state.
func (s State) Quarantined() bool {
	return s == StateNameInvalid || s == StateColumnCountInvalid || s == StateHasAllNullColumn
}

// Accepted reports whether s is the state of a file that passed every check.
func (s State) Accepted() bool {
	return s == StateNoAllNullColumns
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// TransitionError reports a transition the state machine does not allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid validation transition %s -> %s", e.From, e.To)
}

// Transition checks that a file may move from one state to another.
func Transition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}
