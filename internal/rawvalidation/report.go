package rawvalidation

// Report summarizes a validation pass.
type Report struct {
	Accepted    []FileOutcome
	Quarantined []FileOutcome
}

// Report builds the summary of the current pass from the ledger. Files
// still between checks are omitted.
func (v *Validator) Report() *Report {
	r := &Report{}
	for _, f := range v.ledger.Outcomes() {
		switch {
		case f.State.Accepted():
			r.Accepted = append(r.Accepted, f)
		case f.State.Quarantined():
			r.Quarantined = append(r.Quarantined, f)
		}
	}
	return r
}

// AcceptedNames returns the names of the accepted files.
func (r *Report) AcceptedNames() []string {
	names := make([]string, len(r.Accepted))
	for i, f := range r.Accepted {
		names[i] = f.Name
	}
	return names
}

// QuarantinedNames returns the names of the quarantined files.
func (r *Report) QuarantinedNames() []string {
	names := make([]string, len(r.Quarantined))
	for i, f := range r.Quarantined {
		names[i] = f.Name
	}
	return names
}
