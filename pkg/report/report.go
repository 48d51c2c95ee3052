// Package report holds the result types of a fixture conformance run.
// They are plain data with JSON tags so other tools can consume a run.
package report

import "time"

// Status is the outcome of one check.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one property or scenario.
type Result struct {
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
	// Signals holds the text of every sig the guest sent during the check.
	Signals []string `json:"signals,omitempty"`
}

// Summary aggregates the results of one run against one fixture.
type Summary struct {
	Fixture string   `json:"fixture"`
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
}

// Add appends a result and updates the counters.
func (s *Summary) Add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Status {
	case StatusPassed:
		s.Passed++
	case StatusFailed:
		s.Failed++
	case StatusSkipped:
		s.Skipped++
	}
}

// OK reports whether no check failed.
func (s *Summary) OK() bool {
	return s.Failed == 0
}

// Get returns the result with the given name.
func (s *Summary) Get(name string) (Result, bool) {
	for _, r := range s.Results {
		if r.Name == name {
			return r, true
		}
	}
	return Result{}, false
}
