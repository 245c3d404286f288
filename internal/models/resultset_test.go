package models

import (
	"testing"
)

func TestResultSet_InsertionOrderPreserved(t *testing.T) {
	rs := NewResultSet()
	rs.AddOutcome(TestOutcome{Name: "b", Status: StatusPass})
	rs.AddOutcome(TestOutcome{Name: "a", Status: StatusFail})
	rs.AddOutcome(TestOutcome{Name: "b", Status: StatusFail})

	names := rs.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("names = %v, want [b a]", names)
	}

	outcomes := rs.Outcomes()
	if len(outcomes) != 3 {
		t.Fatalf("len = %d, want 3", len(outcomes))
	}
	if outcomes[0].Name != "b" || outcomes[1].Name != "a" || outcomes[2].Name != "b" {
		t.Fatalf("insertion order lost: %v", outcomes)
	}
}

func TestResultSet_AllOutcomesForAccumulates(t *testing.T) {
	// Multiple outcomes for the same name accumulate within a try,
	// e.g. crash, then pass on a rerun.
	rs := NewResultSet()
	rs.AddOutcomes([]TestOutcome{
		{Name: "t1", Status: StatusCrash},
		{Name: "t1", Status: StatusPass},
	})

	all := rs.AllOutcomesFor("t1")
	if len(all) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(all))
	}
	if all[0].Status != StatusCrash || all[1].Status != StatusPass {
		t.Fatalf("order lost: %v", all)
	}

	last, ok := rs.LastOutcomeFor("t1")
	if !ok || last.Status != StatusPass {
		t.Fatalf("last = %v, want PASS", last)
	}

	if rs.AllOutcomesFor("missing") != nil {
		t.Fatal("expected nil for unknown name")
	}
}

func TestResultSet_UnknownOutcomes(t *testing.T) {
	rs := NewResultSet()
	rs.AddOutcome(TestOutcome{Name: "a", Status: StatusNotRun})
	rs.AddOutcome(TestOutcome{Name: "b", Status: StatusPass})
	rs.AddOutcome(TestOutcome{Name: "c", Status: StatusUnknown})

	unknown := rs.UnknownOutcomes()
	if len(unknown) != 2 {
		t.Fatalf("got %d provisional outcomes, want 2", len(unknown))
	}

	n := rs.MarkUnknownAsTimeout()
	if n != 2 {
		t.Fatalf("rewrote %d outcomes, want 2", n)
	}
	for _, o := range rs.Outcomes() {
		if !o.Status.Terminal() {
			t.Errorf("%s still non-terminal: %s", o.Name, o.Status)
		}
	}
	if o, _ := rs.LastOutcomeFor("b"); o.Status != StatusPass {
		t.Errorf("pass outcome rewritten: %s", o.Status)
	}
}

func TestResultSet_ResolveProvisional(t *testing.T) {
	rs := NewResultSet()
	rs.AddOutcome(TestOutcome{Name: "Suite.*", Status: StatusNotRun})
	rs.AddOutcome(TestOutcome{Name: "done", Status: StatusPass})

	if !rs.ResolveProvisional("Suite.*", StatusPass) {
		t.Fatal("provisional entry should resolve")
	}
	if o, _ := rs.LastOutcomeFor("Suite.*"); o.Status != StatusPass {
		t.Fatalf("resolved status = %s, want PASS", o.Status)
	}

	// Terminal entries are never rewritten.
	if rs.ResolveProvisional("done", StatusFail) {
		t.Error("terminal entry must not resolve")
	}
	if rs.ResolveProvisional("missing", StatusFail) {
		t.Error("unknown name must not resolve")
	}
}

func TestAggregatedResultSet_LaterTryShadowsEarlier(t *testing.T) {
	try1 := NewResultSet()
	try1.AddOutcome(TestOutcome{Name: "t1", Status: StatusFail})
	try1.AddOutcome(TestOutcome{Name: "t2", Status: StatusPass})

	try2 := NewResultSet()
	try2.AddOutcome(TestOutcome{Name: "t1", Status: StatusPass})

	ag := &AggregatedResultSet{}
	ag.Append(try1)
	ag.Append(try2)

	// The earlier failing outcome is retained.
	if o, _ := ag.Tries()[0].LastOutcomeFor("t1"); o.Status != StatusFail {
		t.Errorf("try 1 t1 = %s, want FAIL", o.Status)
	}
	// But the final view uses the most recent try.
	if o, _ := ag.FinalOutcomeFor("t1"); o.Status != StatusPass {
		t.Errorf("final t1 = %s, want PASS", o.Status)
	}
	if !ag.Passed() {
		t.Error("expected aggregate to pass")
	}

	sum := ag.Summary()
	if sum[StatusPass] != 2 {
		t.Errorf("summary = %v, want 2 PASS", sum)
	}
}

func TestStatus_Classification(t *testing.T) {
	tests := []struct {
		status    Status
		terminal  bool
		succeeded bool
	}{
		{StatusPass, true, true},
		{StatusSkip, true, true},
		{StatusFail, true, false},
		{StatusCrash, true, false},
		{StatusTimeout, true, false},
		{StatusNotRun, false, false},
		{StatusUnknown, false, false},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if got := tt.status.Succeeded(); got != tt.succeeded {
			t.Errorf("%s.Succeeded() = %v, want %v", tt.status, got, tt.succeeded)
		}
	}
}

func TestTestItem_IsWildcard(t *testing.T) {
	if !(TestItem{Name: "Suite.*"}).IsWildcard() {
		t.Error("Suite.* should be a wildcard")
	}
	if (TestItem{Name: "Suite.One"}).IsWildcard() {
		t.Error("Suite.One should not be a wildcard")
	}
	if (TestItem{}).IsWildcard() {
		t.Error("empty name should not be a wildcard")
	}
}
