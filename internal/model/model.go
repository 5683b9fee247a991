// Package model defines the governance entities: assessments, plans and
// their steps, approvals, and audit entries. Every entity serializes to a
// flat key-value record with RFC 3339 timestamps and lowercase enum names.
package model

import (
	"time"

	"github.com/ppiankov/governor/internal/classify"
)

// RiskLevel classifies an assessed operation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel maps a string to a RiskLevel. The boolean reports whether
// the input named a known level.
func ParseRiskLevel(s string) (RiskLevel, bool) {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium, RiskHigh:
		return RiskLevel(s), true
	default:
		return "", false
	}
}

// StepStatus is the lifecycle state of a single plan step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepApproved  StepStatus = "approved"
	StepDenied    StepStatus = "denied"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// PlanStatus is the lifecycle state of an execution plan.
type PlanStatus string

const (
	PlanDraft            PlanStatus = "draft"
	PlanAwaitingApproval PlanStatus = "awaiting_approval"
	PlanInProgress       PlanStatus = "in_progress"
	PlanCompleted        PlanStatus = "completed"
	PlanAborted          PlanStatus = "aborted"
	PlanFailed           PlanStatus = "failed"
)

// Terminal reports whether the plan status is a terminal state.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanAborted || s == PlanFailed
}

// TargetKind names what an approval applies to.
type TargetKind string

const (
	TargetAssessment TargetKind = "assessment"
	TargetPlan       TargetKind = "plan"
	TargetStep       TargetKind = "step"
)

// Factor is one classification dimension's contribution to a risk score.
type Factor struct {
	Type        string
	Weight      float64
	Description string
}

// Factors records how an assessment's score was composed.
type Factors struct {
	Resource    Factor
	Action      Factor
	Scope       Factor
	Calculation string
}

// ToMap serializes the factors record. The resource dimension carries a
// base score, the other two carry multipliers.
func (f Factors) ToMap() map[string]any {
	dim := func(weightKey string, fa Factor) map[string]any {
		return map[string]any{
			"type":        fa.Type,
			weightKey:     fa.Weight,
			"description": fa.Description,
		}
	}
	return map[string]any{
		"resource":    dim("base_score", f.Resource),
		"action":      dim("multiplier", f.Action),
		"scope":       dim("multiplier", f.Scope),
		"calculation": f.Calculation,
	}
}

// Assessment is the immutable result of scoring one proposed operation.
type Assessment struct {
	ID              string
	Operation       string
	Description     string
	ResourceType    classify.ResourceType
	ActionType      classify.ActionType
	Scope           classify.ScopeType
	RiskScore       float64
	RiskLevel       RiskLevel
	Factors         Factors
	Recommendations []string
	CreatedAt       time.Time
}

// ToMap serializes the assessment to a flat record.
func (a *Assessment) ToMap() map[string]any {
	return map[string]any{
		"id":              a.ID,
		"operation":       a.Operation,
		"description":     a.Description,
		"resource_type":   string(a.ResourceType),
		"action_type":     string(a.ActionType),
		"scope":           string(a.Scope),
		"risk_score":      a.RiskScore,
		"risk_level":      string(a.RiskLevel),
		"factors":         a.Factors.ToMap(),
		"recommendations": a.Recommendations,
		"timestamp":       a.CreatedAt.Format(time.RFC3339),
	}
}

// PlanStep is one unit of work within a plan. Rollback, Result, and Error
// are pointers so that absent stays distinguishable from empty.
type PlanStep struct {
	ID              string
	Order           int
	Description     string
	Operation       string
	ExpectedOutcome string
	RollbackAction  *string
	Status          StepStatus
	Result          *string
	Error           *string
	ExecutedAt      *time.Time
}

// ToMap serializes the step to a flat record.
func (s *PlanStep) ToMap() map[string]any {
	return map[string]any{
		"id":               s.ID,
		"order":            s.Order,
		"description":      s.Description,
		"operation":        s.Operation,
		"expected_outcome": s.ExpectedOutcome,
		"rollback_action":  strOrNil(s.RollbackAction),
		"status":           string(s.Status),
		"result":           strOrNil(s.Result),
		"error":            strOrNil(s.Error),
		"executed_at":      timeOrNil(s.ExecutedAt),
	}
}

// Plan is an ordered, approvable sequence of steps guarding a high-risk
// operation. Step order is fixed at creation.
type Plan struct {
	ID               string
	Name             string
	Description      string
	AssessmentID     string
	Steps            []*PlanStep
	Status           PlanStatus
	CurrentStepIndex int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CompletedAt      *time.Time
}

// CurrentStep returns the step at the current index, or nil when the index
// is out of range.
func (p *Plan) CurrentStep() *PlanStep {
	if p.CurrentStepIndex >= 0 && p.CurrentStepIndex < len(p.Steps) {
		return p.Steps[p.CurrentStepIndex]
	}
	return nil
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(stepID string) *PlanStep {
	for _, s := range p.Steps {
		if s.ID == stepID {
			return s
		}
	}
	return nil
}

// ToMap serializes the plan and its steps to a flat record.
func (p *Plan) ToMap() map[string]any {
	steps := make([]map[string]any, len(p.Steps))
	for i, s := range p.Steps {
		steps[i] = s.ToMap()
	}
	return map[string]any{
		"id":                 p.ID,
		"name":               p.Name,
		"description":        p.Description,
		"assessment_id":      p.AssessmentID,
		"steps":              steps,
		"status":             string(p.Status),
		"current_step_index": p.CurrentStepIndex,
		"created_at":         p.CreatedAt.Format(time.RFC3339),
		"updated_at":         p.UpdatedAt.Format(time.RFC3339),
		"completed_at":       timeOrNil(p.CompletedAt),
	}
}

// Approval is an immutable record of an accept/deny decision. Multiple
// approvals may exist for one target; the latest by timestamp wins.
type Approval struct {
	ID         string
	TargetKind TargetKind
	TargetID   string
	Approved   bool
	Reason     *string
	Conditions []string
	ApprovedBy string
	CreatedAt  time.Time
}

// ToMap serializes the approval to a flat record.
func (a *Approval) ToMap() map[string]any {
	return map[string]any{
		"id":          a.ID,
		"target_type": string(a.TargetKind),
		"target_id":   a.TargetID,
		"approved":    a.Approved,
		"reason":      strOrNil(a.Reason),
		"conditions":  a.Conditions,
		"approved_by": a.ApprovedBy,
		"timestamp":   a.CreatedAt.Format(time.RFC3339),
	}
}

// AuditEntry is one immutable line in the append-only governance log.
type AuditEntry struct {
	ID           string
	Action       string
	Operation    string
	RiskLevel    RiskLevel
	Details      map[string]any
	AssessmentID *string
	PlanID       *string
	StepID       *string
	Success      bool
	Error        *string
	CreatedAt    time.Time
}

// ToMap serializes the entry to a flat record.
func (e *AuditEntry) ToMap() map[string]any {
	return map[string]any{
		"id":            e.ID,
		"action":        e.Action,
		"operation":     e.Operation,
		"risk_level":    string(e.RiskLevel),
		"details":       e.Details,
		"assessment_id": strOrNil(e.AssessmentID),
		"plan_id":       strOrNil(e.PlanID),
		"step_id":       strOrNil(e.StepID),
		"success":       e.Success,
		"error":         strOrNil(e.Error),
		"timestamp":     e.CreatedAt.Format(time.RFC3339),
	}
}

// Opt returns a pointer to s, or nil when s is empty. Callers use it to
// carry optional strings without sentinel values.
func Opt(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
