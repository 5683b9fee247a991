package audit

import (
	"testing"
	"time"

	"github.com/ppiankov/governor/internal/model"
)

func seedLog(t *testing.T) *Log {
	t.Helper()
	l := NewLog()
	l.Record(Event{Action: "assess", Operation: "op-1", RiskLevel: model.RiskLow, Success: true})
	l.Record(Event{Action: "assess", Operation: "op-2", RiskLevel: model.RiskHigh, Success: true, AssessmentID: "as-1"})
	l.Record(Event{Action: "create_plan", Operation: "plan-1", RiskLevel: model.RiskHigh, Success: true, PlanID: "p-1"})
	l.Record(Event{Action: "execute_step", Operation: "step-1", RiskLevel: model.RiskHigh, Success: false, PlanID: "p-1", Error: "boom"})
	return l
}

func TestEntriesMostRecentFirst(t *testing.T) {
	l := seedLog(t)

	entries := l.Entries(Filter{})
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Fatal("entries not in descending timestamp order")
		}
	}
	if entries[0].Operation != "step-1" {
		t.Errorf("expected most recent entry first, got %s", entries[0].Operation)
	}
}

func TestPaginationAfterFiltering(t *testing.T) {
	l := seedLog(t)

	// Filter to the three high-risk entries, then paginate.
	all := l.Entries(Filter{RiskLevel: model.RiskHigh})
	if len(all) != 3 {
		t.Fatalf("expected 3 high-risk entries, got %d", len(all))
	}

	page := l.Entries(Filter{RiskLevel: model.RiskHigh, Offset: 1, Limit: 1})
	if len(page) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(page))
	}
	// Offset/limit must slice the filtered+sorted sequence.
	if page[0].ID != all[1].ID {
		t.Error("pagination did not slice the filtered order")
	}

	if got := l.Entries(Filter{Offset: 10}); got != nil {
		t.Errorf("expected nil past the end, got %d entries", len(got))
	}
}

func TestFilterByLinkAndOutcome(t *testing.T) {
	l := seedLog(t)

	byPlan := l.Entries(Filter{PlanID: "p-1"})
	if len(byPlan) != 2 {
		t.Errorf("expected 2 entries for plan p-1, got %d", len(byPlan))
	}

	byAssessment := l.Entries(Filter{AssessmentID: "as-1"})
	if len(byAssessment) != 1 {
		t.Errorf("expected 1 entry for assessment as-1, got %d", len(byAssessment))
	}

	failures := l.Entries(Filter{FailuresOnly: true})
	if len(failures) != 1 || failures[0].Error == nil || *failures[0].Error != "boom" {
		t.Errorf("unexpected failures result: %+v", failures)
	}

	successes := l.Entries(Filter{SuccessOnly: true})
	if len(successes) != 3 {
		t.Errorf("expected 3 successes, got %d", len(successes))
	}
}

func TestFilterByTimeRange(t *testing.T) {
	l := seedLog(t)

	if got := l.Entries(Filter{Since: time.Now().Add(time.Minute)}); len(got) != 0 {
		t.Errorf("expected no entries in the future, got %d", len(got))
	}
	if got := l.Entries(Filter{Until: time.Now().Add(time.Minute)}); len(got) != 4 {
		t.Errorf("expected all entries before future cutoff, got %d", len(got))
	}
}

func TestRecordDefaultsRiskLevel(t *testing.T) {
	l := NewLog()
	e := l.Record(Event{Action: "log_action", Operation: "x", RiskLevel: "bogus", Success: true})
	if e.RiskLevel != model.RiskMedium {
		t.Errorf("expected medium default, got %s", e.RiskLevel)
	}
	if e.Details == nil {
		t.Error("expected details map to default, not stay nil")
	}
	if e.AssessmentID != nil || e.PlanID != nil || e.StepID != nil || e.Error != nil {
		t.Error("expected empty optional fields to be recorded as absent")
	}
}

func TestStats(t *testing.T) {
	l := NewLog()
	empty := l.Stats()
	if empty.Total != 0 {
		t.Errorf("expected 0 total, got %d", empty.Total)
	}
	if empty.SuccessRate != nil {
		t.Error("expected nil success rate on empty log")
	}

	l = seedLog(t)
	st := l.Stats()
	if st.Total != 4 {
		t.Errorf("expected total 4, got %d", st.Total)
	}
	if st.ByRiskLevel["high"] != 3 || st.ByRiskLevel["low"] != 1 {
		t.Errorf("unexpected risk histogram: %v", st.ByRiskLevel)
	}
	if st.ByAction["assess"] != 2 {
		t.Errorf("unexpected action histogram: %v", st.ByAction)
	}
	if st.SuccessRate == nil || *st.SuccessRate != 0.75 {
		t.Errorf("expected success rate 0.75, got %v", st.SuccessRate)
	}
}

func TestEntryLookupAndClear(t *testing.T) {
	l := seedLog(t)
	want := l.Entries(Filter{})[0]

	got, ok := l.Entry(want.ID)
	if !ok || got.ID != want.ID {
		t.Fatal("expected to find entry by id")
	}
	if _, ok := l.Entry("missing"); ok {
		t.Error("expected miss for unknown id")
	}

	l.Clear()
	if l.Count(Filter{}) != 0 {
		t.Error("expected empty log after clear")
	}
}
