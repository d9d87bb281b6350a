package types

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// TestStatus represents the possible outcomes of a single test
type TestStatus string

const (
	TestStatusSuccess TestStatus = "SUCCESS"
	TestStatusFailure TestStatus = "FAILURE"
	TestStatusSkipped TestStatus = "SKIPPED"
)

// IsValid reports whether the status is one of the known outcomes
func (s TestStatus) IsValid() bool {
	switch s {
	case TestStatusSuccess, TestStatusFailure, TestStatusSkipped:
		return true
	}
	return false
}

// TestOutcome captures the result of one executed test
type TestOutcome struct {
	Name           string     `json:"name"`
	Status         TestStatus `json:"status"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	DurationMillis int64      `json:"durationMillis"`
}

// NewTestOutcome builds a normalised outcome. The error message is only kept
// for failures and negative durations are clamped to zero.
func NewTestOutcome(name string, status TestStatus, errorMessage string, duration time.Duration) TestOutcome {
	o := TestOutcome{
		Name:           name,
		Status:         status,
		ErrorMessage:   errorMessage,
		DurationMillis: duration.Milliseconds(),
	}
	if o.DurationMillis < 0 {
		o.DurationMillis = 0
	}
	if status != TestStatusFailure {
		o.ErrorMessage = ""
	}
	return o
}

func (o TestOutcome) IsSuccess() bool { return o.Status == TestStatusSuccess }
func (o TestOutcome) IsFailure() bool { return o.Status == TestStatusFailure }
func (o TestOutcome) IsSkipped() bool { return o.Status == TestStatusSkipped }

// Duration returns the outcome duration as a time.Duration
func (o TestOutcome) Duration() time.Duration {
	return time.Duration(o.DurationMillis) * time.Millisecond
}

// Validate checks the outcome against the wire contract
func (o TestOutcome) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("test outcome name cannot be empty")
	}
	if !o.Status.IsValid() {
		return fmt.Errorf("test outcome %q has unknown status %q", o.Name, o.Status)
	}
	if o.DurationMillis < 0 {
		return fmt.Errorf("test outcome %q has negative duration %d", o.Name, o.DurationMillis)
	}
	return nil
}

// UnmarshalJSON decodes an outcome and rejects anything outside the contract
func (o *TestOutcome) UnmarshalJSON(data []byte) error {
	type plain TestOutcome
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	decoded := TestOutcome(p)
	if err := decoded.Validate(); err != nil {
		return err
	}
	if decoded.Status != TestStatusFailure {
		decoded.ErrorMessage = ""
	}
	*o = decoded
	return nil
}

// Counts are the aggregate figures of a ResultSet
type Counts struct {
	Total   int `json:"total" yaml:"total"`
	Passed  int `json:"passed" yaml:"passed"`
	Failed  int `json:"failed" yaml:"failed"`
	Skipped int `json:"skipped" yaml:"skipped"`
}

// Percentage returns part as a percentage of the total
func (c Counts) Percentage(part int) float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(part) / float64(c.Total) * 100
}

// ResultSet is an ordered collection of outcomes in completion order.
// Counts are always derived from the outcomes, never stored.
type ResultSet struct {
	outcomes []TestOutcome
}

// NewResultSet creates a result set holding a copy of the given outcomes
func NewResultSet(outcomes ...TestOutcome) ResultSet {
	rs := ResultSet{outcomes: make([]TestOutcome, 0, len(outcomes))}
	rs.outcomes = append(rs.outcomes, outcomes...)
	return rs
}

// Append adds outcomes at the end of the set. Copies of the set taken
// before the call never observe the new outcomes.
func (rs *ResultSet) Append(outcomes ...TestOutcome) {
	rs.outcomes = append(slices.Clip(rs.outcomes), outcomes...)
}

// Outcomes returns a copy of the outcomes
func (rs ResultSet) Outcomes() []TestOutcome {
	out := make([]TestOutcome, len(rs.outcomes))
	copy(out, rs.outcomes)
	return out
}

func (rs ResultSet) Len() int { return len(rs.outcomes) }

// Counts folds over the outcomes and returns the aggregate figures
func (rs ResultSet) Counts() Counts {
	var c Counts
	for _, o := range rs.outcomes {
		c.Total++
		switch o.Status {
		case TestStatusSuccess:
			c.Passed++
		case TestStatusFailure:
			c.Failed++
		case TestStatusSkipped:
			c.Skipped++
		}
	}
	return c
}

// Duration is the sum of all outcome durations
func (rs ResultSet) Duration() time.Duration {
	var d time.Duration
	for _, o := range rs.outcomes {
		d += o.Duration()
	}
	return d
}

// Status returns the aggregate status of the set: failure if any test failed,
// skipped if nothing passed but something was skipped, success otherwise.
func (rs ResultSet) Status() TestStatus {
	c := rs.Counts()
	if c.Failed > 0 {
		return TestStatusFailure
	}
	if c.Skipped > 0 && c.Passed == 0 {
		return TestStatusSkipped
	}
	return TestStatusSuccess
}

// Failures returns the failed outcomes in completion order
func (rs ResultSet) Failures() []TestOutcome {
	var failed []TestOutcome
	for _, o := range rs.outcomes {
		if o.IsFailure() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Names returns the test names in completion order
func (rs ResultSet) Names() []string {
	names := make([]string, 0, len(rs.outcomes))
	for _, o := range rs.outcomes {
		names = append(names, o.Name)
	}
	return names
}

// Contains reports whether a test with the given name is in the set
func (rs ResultSet) Contains(name string) bool {
	for _, o := range rs.outcomes {
		if o.Name == name {
			return true
		}
	}
	return false
}

// IsSupersetOf reports whether every test name in other is also in rs
func (rs ResultSet) IsSupersetOf(other ResultSet) bool {
	names := make(map[string]struct{}, len(rs.outcomes))
	for _, o := range rs.outcomes {
		names[o.Name] = struct{}{}
	}
	for _, o := range other.outcomes {
		if _, ok := names[o.Name]; !ok {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON array of outcomes
func (rs ResultSet) MarshalJSON() ([]byte, error) {
	if rs.outcomes == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rs.outcomes)
}

// UnmarshalJSON decodes a JSON array of outcomes
func (rs *ResultSet) UnmarshalJSON(data []byte) error {
	var outcomes []TestOutcome
	if err := json.Unmarshal(data, &outcomes); err != nil {
		return err
	}
	rs.outcomes = slices.Clip(outcomes)
	if rs.outcomes == nil {
		rs.outcomes = []TestOutcome{}
	}
	return nil
}
