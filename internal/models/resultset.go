package models

import "sync"

// ResultSet is an insertion-ordered, name-keyed multimap of test outcomes
// for a single try. Names are not unique: repeated attempts at the same
// test within a try accumulate, in the order they were recorded. Insertion
// order is preserved for deterministic reporting.
//
// ResultSet is safe for concurrent use; worker loops on different devices
// append into the same set.
type ResultSet struct {
	mu       sync.Mutex
	outcomes []TestOutcome
	byName   map[string][]int // name -> indexes into outcomes
	order    []string         // distinct names, first-seen order
}

// NewResultSet creates an empty ResultSet.
func NewResultSet() *ResultSet {
	return &ResultSet{
		byName: make(map[string][]int),
	}
}

// AddOutcome appends one outcome. No deduplication is performed.
func (rs *ResultSet) AddOutcome(o TestOutcome) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.add(o)
}

// AddOutcomes appends outcomes in order, atomically with respect to
// concurrent readers.
func (rs *ResultSet) AddOutcomes(os []TestOutcome) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for _, o := range os {
		rs.add(o)
	}
}

func (rs *ResultSet) add(o TestOutcome) {
	if _, seen := rs.byName[o.Name]; !seen {
		rs.order = append(rs.order, o.Name)
	}
	rs.byName[o.Name] = append(rs.byName[o.Name], len(rs.outcomes))
	rs.outcomes = append(rs.outcomes, o)
}

// AllOutcomesFor returns every recorded outcome for the exact name, in
// insertion order. Returns nil when the name was never recorded.
func (rs *ResultSet) AllOutcomesFor(name string) []TestOutcome {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	idxs := rs.byName[name]
	if len(idxs) == 0 {
		return nil
	}
	out := make([]TestOutcome, len(idxs))
	for i, idx := range idxs {
		out[i] = rs.outcomes[idx]
	}
	return out
}

// LastOutcomeFor returns the most recently recorded outcome for the exact
// name, if any.
func (rs *ResultSet) LastOutcomeFor(name string) (TestOutcome, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	idxs := rs.byName[name]
	if len(idxs) == 0 {
		return TestOutcome{}, false
	}
	return rs.outcomes[idxs[len(idxs)-1]], true
}

// Names returns the distinct recorded names in first-seen order.
func (rs *ResultSet) Names() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]string(nil), rs.order...)
}

// Outcomes returns a snapshot of all outcomes in insertion order.
func (rs *ResultSet) Outcomes() []TestOutcome {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]TestOutcome(nil), rs.outcomes...)
}

// UnknownOutcomes returns the outcomes still in a provisional state
// (UNKNOWN or NOTRUN). Used after a cancelled try to convert stragglers
// into TIMEOUT.
func (rs *ResultSet) UnknownOutcomes() []TestOutcome {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var out []TestOutcome
	for _, o := range rs.outcomes {
		if o.Status == StatusUnknown || o.Status == StatusNotRun {
			out = append(out, o)
		}
	}
	return out
}

// MarkUnknownAsTimeout rewrites every provisional outcome in place to
// TIMEOUT, so the set contains only terminal states. Returns how many
// outcomes were rewritten.
func (rs *ResultSet) MarkUnknownAsTimeout() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	n := 0
	for i := range rs.outcomes {
		if rs.outcomes[i].Status == StatusUnknown || rs.outcomes[i].Status == StatusNotRun {
			rs.outcomes[i].Status = StatusTimeout
			n++
		}
	}
	return n
}

// ResolveProvisional rewrites the most recent outcome for name to the given
// status, but only while that outcome is still provisional. Batch entries
// whose member tests report under their own names are settled this way.
// Returns false when the name is unknown or already terminal.
func (rs *ResultSet) ResolveProvisional(name string, status Status) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	idxs := rs.byName[name]
	if len(idxs) == 0 {
		return false
	}
	last := idxs[len(idxs)-1]
	if rs.outcomes[last].Status != StatusUnknown && rs.outcomes[last].Status != StatusNotRun {
		return false
	}
	rs.outcomes[last].Status = status
	return true
}

// Len returns the number of recorded outcomes.
func (rs *ResultSet) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.outcomes)
}

// AggregatedResultSet is the ordered sequence of per-try ResultSets for one
// run. A pass on a later try does not delete the earlier failing outcome;
// both are retained, but "did it ultimately pass" queries use only the most
// recent try's outcome for a given name.
type AggregatedResultSet struct {
	tries []*ResultSet
}

// Append adds a completed try's ResultSet to the aggregate.
func (ag *AggregatedResultSet) Append(rs *ResultSet) {
	ag.tries = append(ag.tries, rs)
}

// Tries returns the per-try result sets, oldest first.
func (ag *AggregatedResultSet) Tries() []*ResultSet {
	return ag.tries
}

// NumTries returns how many tries were recorded.
func (ag *AggregatedResultSet) NumTries() int {
	return len(ag.tries)
}

// FinalOutcomes returns the most recent outcome per name, in the order
// names were first seen across tries.
func (ag *AggregatedResultSet) FinalOutcomes() []TestOutcome {
	latest := make(map[string]TestOutcome)
	var order []string
	for _, rs := range ag.tries {
		for _, name := range rs.Names() {
			if _, seen := latest[name]; !seen {
				order = append(order, name)
			}
			if o, ok := rs.LastOutcomeFor(name); ok {
				latest[name] = o
			}
		}
	}
	out := make([]TestOutcome, 0, len(order))
	for _, name := range order {
		out = append(out, latest[name])
	}
	return out
}

// FinalOutcomeFor returns the most recent outcome recorded for the exact
// name across all tries.
func (ag *AggregatedResultSet) FinalOutcomeFor(name string) (TestOutcome, bool) {
	for i := len(ag.tries) - 1; i >= 0; i-- {
		if o, ok := ag.tries[i].LastOutcomeFor(name); ok {
			return o, true
		}
	}
	return TestOutcome{}, false
}

// Passed reports whether every name's final outcome succeeded.
func (ag *AggregatedResultSet) Passed() bool {
	for _, o := range ag.FinalOutcomes() {
		if !o.Status.Succeeded() {
			return false
		}
	}
	return true
}

// Summary counts final outcomes by status.
func (ag *AggregatedResultSet) Summary() map[Status]int {
	sum := make(map[Status]int)
	for _, o := range ag.FinalOutcomes() {
		sum[o.Status]++
	}
	return sum
}
