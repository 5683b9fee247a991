// Package audit implements the append-only, in-memory governance log.
// Entries are never mutated or deleted; the log is the system of record
// for history queries. An append never fails — missing optional fields
// default instead of erroring, and audit writes survive any other
// operation's failure.
package audit

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/governor/internal/model"
)

// Event is the input for one log append. Zero-value optional fields are
// recorded as absent.
type Event struct {
	Action       string
	Operation    string
	RiskLevel    model.RiskLevel
	Details      map[string]any
	AssessmentID string
	PlanID       string
	StepID       string
	Success      bool
	Error        string
}

// Log is an append-only ordered sequence of audit entries.
type Log struct {
	mu      sync.Mutex
	entries []*model.AuditEntry
}

// NewLog creates an empty audit log.
func NewLog() *Log {
	return &Log{}
}

// Record appends an entry built from the event and returns it. Unknown or
// empty risk levels default to medium.
func (l *Log) Record(ev Event) *model.AuditEntry {
	level, ok := model.ParseRiskLevel(string(ev.RiskLevel))
	if !ok {
		level = model.RiskMedium
	}
	details := ev.Details
	if details == nil {
		details = map[string]any{}
	}

	entry := &model.AuditEntry{
		ID:           uuid.NewString(),
		Action:       ev.Action,
		Operation:    ev.Operation,
		RiskLevel:    level,
		Details:      details,
		AssessmentID: model.Opt(ev.AssessmentID),
		PlanID:       model.Opt(ev.PlanID),
		StepID:       model.Opt(ev.StepID),
		Success:      ev.Success,
		Error:        model.Opt(ev.Error),
		CreatedAt:    time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return entry
}

// Filter selects and paginates audit entries. Zero values mean "no
// constraint"; Limit 0 means unlimited. An empty RiskLevel matches every
// entry, which is also where an unparseable level filter string lands.
type Filter struct {
	RiskLevel    model.RiskLevel
	Action       string
	Since        time.Time
	Until        time.Time
	AssessmentID string
	PlanID       string
	SuccessOnly  bool
	FailuresOnly bool
	Offset       int
	Limit        int
}

func (f Filter) matches(e *model.AuditEntry) bool {
	if f.RiskLevel != "" && e.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	if f.AssessmentID != "" && (e.AssessmentID == nil || *e.AssessmentID != f.AssessmentID) {
		return false
	}
	if f.PlanID != "" && (e.PlanID == nil || *e.PlanID != f.PlanID) {
		return false
	}
	if f.SuccessOnly && !e.Success {
		return false
	}
	if f.FailuresOnly && e.Success {
		return false
	}
	return true
}

// Entries returns matching entries, most recent first, with offset and
// limit applied after filtering and sorting.
func (l *Log) Entries(f Filter) []*model.AuditEntry {
	l.mu.Lock()
	var matched []*model.AuditEntry
	for _, e := range l.entries {
		if f.matches(e) {
			matched = append(matched, e)
		}
	}
	l.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched
}

// Count returns the number of entries matching the filter, ignoring
// pagination.
func (l *Log) Count(f Filter) int {
	f.Offset = 0
	f.Limit = 0
	return len(l.Entries(f))
}

// Entry looks up a single entry by id.
func (l *Log) Entry(id string) (*model.AuditEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Stats summarizes the log. SuccessRate is nil when the log is empty.
type Stats struct {
	Total       int
	ByRiskLevel map[string]int
	ByAction    map[string]int
	SuccessRate *float64
}

// Stats computes totals, per-level and per-action histograms, and the
// overall success rate.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Stats{
		ByRiskLevel: map[string]int{},
		ByAction:    map[string]int{},
	}
	st.Total = len(l.entries)
	if st.Total == 0 {
		return st
	}

	succeeded := 0
	for _, e := range l.entries {
		st.ByRiskLevel[string(e.RiskLevel)]++
		st.ByAction[e.Action]++
		if e.Success {
			succeeded++
		}
	}
	rate := float64(succeeded) / float64(st.Total)
	st.SuccessRate = &rate
	return st
}

// Clear removes all entries. Used on session reset only.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
