// Package session holds the in-memory state for one governance session:
// assessments, plans, and approvals. The store is an explicit dependency
// passed into every consumer; there are no package-level instances.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/governor/internal/model"
)

// Store is the keyed in-memory state for a single session. All state lives
// for the process lifetime only.
type Store struct {
	mu          sync.Mutex
	sessionID   string
	assessments map[string]*model.Assessment
	plans       map[string]*model.Plan
	approvals   map[string]*model.Approval
}

// New creates an empty store with a fresh session id.
func New() *Store {
	return &Store{
		sessionID:   uuid.NewString(),
		assessments: make(map[string]*model.Assessment),
		plans:       make(map[string]*model.Plan),
		approvals:   make(map[string]*model.Approval),
	}
}

// SessionID returns the current session identifier.
func (s *Store) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// PutAssessment stores an assessment and returns its id.
func (s *Store) PutAssessment(a *model.Assessment) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[a.ID] = a
	return a.ID
}

// Assessment looks up an assessment by id.
func (s *Store) Assessment(id string) (*model.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assessments[id]
	return a, ok
}

// Assessments returns all stored assessments.
func (s *Store) Assessments() []*model.Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Assessment, 0, len(s.assessments))
	for _, a := range s.assessments {
		out = append(out, a)
	}
	return out
}

// PutPlan stores a plan and returns its id.
func (s *Store) PutPlan(p *model.Plan) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	return p.ID
}

// Plan looks up a plan by id.
func (s *Store) Plan(id string) (*model.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[id]
	return p, ok
}

// Plans returns all stored plans.
func (s *Store) Plans() []*model.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out
}

// ActivePlans returns plans that are awaiting approval or in progress.
func (s *Store) ActivePlans() []*model.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Plan
	for _, p := range s.plans {
		if p.Status == model.PlanAwaitingApproval || p.Status == model.PlanInProgress {
			out = append(out, p)
		}
	}
	return out
}

// UpdatePlanStatus sets a plan's status. Entering a terminal status stamps
// the completion time.
func (s *Store) UpdatePlanStatus(planID string, status model.PlanStatus) (*model.Plan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, false
	}
	now := time.Now()
	p.Status = status
	p.UpdatedAt = now
	if status.Terminal() && p.CompletedAt == nil {
		p.CompletedAt = &now
	}
	return p, true
}

// UpdateStepStatus sets a step's status, result, and error. Completion or
// failure stamps the execution time.
func (s *Store) UpdateStepStatus(planID, stepID string, status model.StepStatus, result, errMsg *string) (*model.PlanStep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return nil, false
	}
	step := p.Step(stepID)
	if step == nil {
		return nil, false
	}
	step.Status = status
	step.Result = result
	step.Error = errMsg
	if status == model.StepCompleted || status == model.StepFailed {
		now := time.Now()
		step.ExecutedAt = &now
	}
	p.UpdatedAt = time.Now()
	return step, true
}

// PutApproval stores an approval record and returns its id.
func (s *Store) PutApproval(a *model.Approval) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = a
	return a.ID
}

// Approval looks up an approval by id.
func (s *Store) Approval(id string) (*model.Approval, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.approvals[id]
	return a, ok
}

// ApprovalsFor returns every approval recorded against the target.
func (s *Store) ApprovalsFor(kind model.TargetKind, targetID string) []*model.Approval {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Approval
	for _, a := range s.approvals {
		if a.TargetKind == kind && a.TargetID == targetID {
			out = append(out, a)
		}
	}
	return out
}

// IsApproved reports the decision of the most recent approval for the
// target. No approvals at all means not approved.
func (s *Store) IsApproved(kind model.TargetKind, targetID string) bool {
	approvals := s.ApprovalsFor(kind, targetID)
	if len(approvals) == 0 {
		return false
	}
	latest := approvals[0]
	for _, a := range approvals[1:] {
		if a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	return latest.Approved
}

// Reset clears all session state and regenerates the session id.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments = make(map[string]*model.Assessment)
	s.plans = make(map[string]*model.Plan)
	s.approvals = make(map[string]*model.Approval)
	s.sessionID = uuid.NewString()
}

// Summary describes the current session state.
type Summary struct {
	SessionID   string
	Assessments int
	Plans       int
	ActivePlans int
	Approvals   int
}

// Summarize returns counts of the session's contents.
func (s *Store) Summarize() Summary {
	active := len(s.ActivePlans())
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		SessionID:   s.sessionID,
		Assessments: len(s.assessments),
		Plans:       len(s.plans),
		ActivePlans: active,
		Approvals:   len(s.approvals),
	}
}
