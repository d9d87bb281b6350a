package types

// PollKind tells a partial poll answer from a final one
type PollKind int

const (
	// PollPartial means tests are still running
	PollPartial PollKind = iota
	// PollFinal means the run has finished
	PollFinal
)

func (k PollKind) String() string {
	switch k {
	case PollPartial:
		return "partial"
	case PollFinal:
		return "final"
	default:
		return "unknown"
	}
}

// PollResponse is the answer to a single results query. It can only be built
// through NewPartial or NewFinal so callers never have to infer the kind from
// the payload.
type PollResponse struct {
	kind    PollKind
	results ResultSet
}

// NewPartial wraps the outcomes collected so far by a running test run
func NewPartial(rs ResultSet) PollResponse {
	return PollResponse{kind: PollPartial, results: rs}
}

// NewFinal wraps the complete outcomes of a finished test run
func NewFinal(rs ResultSet) PollResponse {
	return PollResponse{kind: PollFinal, results: rs}
}

func (p PollResponse) Kind() PollKind     { return p.kind }
func (p PollResponse) IsFinal() bool      { return p.kind == PollFinal }
func (p PollResponse) Results() ResultSet { return p.results }
