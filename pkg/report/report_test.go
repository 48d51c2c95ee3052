package report

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(Result{Name: "P1", Status: StatusPassed})
	s.Add(Result{Name: "S5", Status: StatusFailed, Detail: "no timeout"})
	s.Add(Result{Name: "S6", Status: StatusSkipped})
	s.Add(Result{Name: "P2", Status: StatusPassed})

	if s.Passed != 2 || s.Failed != 1 || s.Skipped != 1 {
		t.Errorf("counters = %d/%d/%d, want 2/1/1", s.Passed, s.Failed, s.Skipped)
	}
	if len(s.Results) != 4 {
		t.Errorf("len(Results) = %d, want 4", len(s.Results))
	}
	if s.OK() {
		t.Error("OK() should be false with a failed result")
	}

	r, ok := s.Get("S5")
	if !ok || r.Detail != "no timeout" {
		t.Errorf("Get(S5) = %+v, %v", r, ok)
	}
	if _, ok := s.Get("P9"); ok {
		t.Error("Get(P9) should not find anything")
	}
}

func TestSummaryOKWhenEmpty(t *testing.T) {
	var s Summary
	if !s.OK() {
		t.Error("an empty summary has no failures")
	}
}

func TestResultJSON(t *testing.T) {
	r := Result{
		Name:     "S6",
		Status:   StatusPassed,
		Duration: 15 * time.Millisecond,
		Signals:  []string{"panicked at x.go:1:\nboom\n"},
	}

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if fields["status"] != "passed" {
		t.Errorf("status = %v, want passed", fields["status"])
	}
	if _, ok := fields["detail"]; ok {
		t.Error("empty detail should be omitted")
	}
	if fields["duration"] != float64(15*time.Millisecond) {
		t.Errorf("duration = %v, want %d", fields["duration"], 15*time.Millisecond)
	}
}
