package rawvalidation

import "sync"

// Reason names the condition that quarantined a file.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNamePattern   Reason = "name_pattern"
	ReasonDateStamp     Reason = "date_stamp_width"
	ReasonTimeStamp     Reason = "time_stamp_width"
	ReasonColumnCount   Reason = "column_count"
	ReasonAllNullColumn Reason = "all_null_column"
	ReasonNoDataRows    Reason = "no_data_rows"
	ReasonUnreadable    Reason = "unreadable"
)

// FileOutcome is the recorded validation result of one file.
type FileOutcome struct {
	Name   string
	State  State
	Reason Reason
	Detail string
}

// Ledger records the state of every file seen during a validation pass.
// Only the first disqualifying reason of a file is kept.
type Ledger struct {
	mu    sync.Mutex
	files map[string]*FileOutcome
	order []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{files: make(map[string]*FileOutcome)}
}

// State returns the current state of name. Unknown files are unvalidated.
func (l *Ledger) State(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.files[name]; ok {
		return f.State
	}
	return StateUnvalidated
}

// Advance moves name to state to, recording reason when to is a failed state.
func (l *Ledger) Advance(name string, to State, reason Reason, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.files[name]
	if !ok {
		f = &FileOutcome{Name: name, State: StateUnvalidated}
		l.files[name] = f
		l.order = append(l.order, name)
	}
	if err := Transition(f.State, to); err != nil {
		return err
	}
	f.State = to
	if to.Quarantined() && f.Reason == ReasonNone {
		f.Reason = reason
		f.Detail = detail
	}
	return nil
}

// adopt registers a file found in a partition without a recorded history,
// placing it at the state implied by its location.
func (l *Ledger) adopt(name string, at State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.files[name]; ok {
		return
	}
	l.files[name] = &FileOutcome{Name: name, State: at}
	l.order = append(l.order, name)
}

// Outcomes returns every recorded file in first-seen order.
func (l *Ledger) Outcomes() []FileOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]FileOutcome, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, *l.files[name])
	}
	return out
}
