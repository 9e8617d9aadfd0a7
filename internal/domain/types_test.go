package domain

import "testing"

func TestCanTransition_ForwardOnly(t *testing.T) {
	// Failure is only reachable through processing; a pending job that will
	// never publish is simply left pending until someone deletes it.
	allowed := map[[2]Status]bool{
		{StatusPending, StatusProcessing}:   true,
		{StatusProcessing, StatusCompleted}: true,
		{StatusProcessing, StatusFailed}:    true,
	}

	all := []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}
	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			want := allowed[[2]Status{from, to}]
			if got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_TerminalStatesNeverMove(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusFailed} {
		for _, to := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
			if CanTransition(from, to) {
				t.Errorf("terminal state %s must not transition to %s", from, to)
			}
		}
	}
}

func TestCanTransition_NothingReturnsToPending(t *testing.T) {
	for _, from := range []Status{StatusProcessing, StatusCompleted, StatusFailed} {
		if CanTransition(from, StatusPending) {
			t.Errorf("%s -> pending must be illegal", from)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("queued").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestJobHasContent(t *testing.T) {
	var j Job
	if j.HasContent() {
		t.Error("job with nil title should have no content")
	}
	empty := ""
	j.Title = &empty
	if j.HasContent() {
		t.Error("job with empty title should have no content")
	}
	title := "A Title"
	j.Title = &title
	if !j.HasContent() {
		t.Error("job with title should have content")
	}
}
