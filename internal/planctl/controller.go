// Package planctl owns the plan and step state machine: creation,
// submission, approval and denial, execution bookkeeping, abort with
// rollback suggestions, and status aggregation.
package planctl

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/session"
)

// DefaultExpectedOutcome fills in for step definitions that omit one.
const DefaultExpectedOutcome = "Step completed successfully"

// StepDef is the caller-supplied definition of one plan step.
type StepDef struct {
	Description     string
	Operation       string
	ExpectedOutcome string
	RollbackAction  string
}

// Controller drives plans through their lifecycle. Multi-step transitions
// run under the controller mutex so that a concurrent complete and abort
// cannot interleave.
type Controller struct {
	mu    sync.Mutex
	store *session.Store
}

// New creates a controller over the given store.
func New(store *session.Store) *Controller {
	return &Controller{store: store}
}

// CreatePlan builds a draft plan from step definitions. Step order is the
// 1-based position in defs. Definitions missing a description or operation
// are rejected so a half-specified plan never reaches approval.
func (c *Controller) CreatePlan(name, description, assessmentID string, defs []StepDef) (*model.Plan, error) {
	if len(defs) == 0 {
		return nil, &model.ValidationError{Msg: "at least one step is required"}
	}

	steps := make([]*model.PlanStep, len(defs))
	for i, def := range defs {
		if def.Description == "" {
			return nil, &model.ValidationError{Msg: fmt.Sprintf("step %d missing description", i+1)}
		}
		if def.Operation == "" {
			return nil, &model.ValidationError{Msg: fmt.Sprintf("step %d missing operation", i+1)}
		}
		outcome := def.ExpectedOutcome
		if outcome == "" {
			outcome = DefaultExpectedOutcome
		}
		steps[i] = &model.PlanStep{
			ID:              uuid.NewString(),
			Order:           i + 1,
			Description:     def.Description,
			Operation:       def.Operation,
			ExpectedOutcome: outcome,
			RollbackAction:  model.Opt(def.RollbackAction),
			Status:          model.StepPending,
		}
	}

	now := time.Now()
	plan := &model.Plan{
		ID:           uuid.NewString(),
		Name:         name,
		Description:  description,
		AssessmentID: assessmentID,
		Steps:        steps,
		Status:       model.PlanDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	c.store.PutPlan(plan)
	return plan, nil
}

// SubmitForApproval moves a draft plan to awaiting_approval.
func (c *Controller) SubmitForApproval(planID string) (*model.Plan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}
	if plan.Status != model.PlanDraft {
		return nil, &model.InvalidStateError{Op: "submit plan", State: string(plan.Status)}
	}

	plan, _ = c.store.UpdatePlanStatus(planID, model.PlanAwaitingApproval)
	return plan, nil
}

// ApprovePlan records a plan-level approval, moves the plan to in_progress,
// and marks every step approved.
func (c *Controller) ApprovePlan(planID, reason string) (*model.Plan, *model.Approval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}

	approval := c.recordApproval(model.TargetPlan, planID, true, reason)

	plan, _ = c.store.UpdatePlanStatus(planID, model.PlanInProgress)
	for _, step := range plan.Steps {
		step.Status = model.StepApproved
	}
	return plan, approval, nil
}

// DenyPlan records a plan-level denial and aborts the plan.
func (c *Controller) DenyPlan(planID, reason string) (*model.Plan, *model.Approval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}

	approval := c.recordApproval(model.TargetPlan, planID, false, reason)
	plan, _ = c.store.UpdatePlanStatus(planID, model.PlanAborted)
	return plan, approval, nil
}

// ApproveStep records a step-scoped approval and marks the step approved.
// Plan status is untouched.
func (c *Controller) ApproveStep(planID, stepID, reason string) (*model.PlanStep, *model.Approval, error) {
	return c.decideStep(planID, stepID, reason, true)
}

// DenyStep records a step-scoped denial and marks the step denied.
// Plan status is untouched.
func (c *Controller) DenyStep(planID, stepID, reason string) (*model.PlanStep, *model.Approval, error) {
	return c.decideStep(planID, stepID, reason, false)
}

func (c *Controller) decideStep(planID, stepID, reason string, approved bool) (*model.PlanStep, *model.Approval, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}
	step := plan.Step(stepID)
	if step == nil {
		return nil, nil, &model.NotFoundError{Kind: "step", ID: stepID}
	}

	approval := c.recordApproval(model.TargetStep, stepID, approved, reason)

	status := model.StepApproved
	if !approved {
		status = model.StepDenied
	}
	step, _ = c.store.UpdateStepStatus(planID, stepID, status, step.Result, step.Error)
	return step, approval, nil
}

// StartStepExecution marks a step as executing.
func (c *Controller) StartStepExecution(planID, stepID string) (*model.PlanStep, error) {
	step, ok := c.store.UpdateStepStatus(planID, stepID, model.StepExecuting, nil, nil)
	if !ok {
		return nil, &model.NotFoundError{Kind: "step", ID: stepID}
	}
	return step, nil
}

// CompleteStep marks a step completed with its result. When every step is
// completed or skipped the plan itself completes.
func (c *Controller) CompleteStep(planID, stepID, result string) (*model.PlanStep, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}

	step, ok := c.store.UpdateStepStatus(planID, stepID, model.StepCompleted, model.Opt(result), nil)
	if !ok {
		return nil, &model.NotFoundError{Kind: "step", ID: stepID}
	}

	allDone := true
	for _, s := range plan.Steps {
		if s.Status != model.StepCompleted && s.Status != model.StepSkipped {
			allDone = false
			break
		}
	}
	if allDone {
		c.store.UpdatePlanStatus(planID, model.PlanCompleted)
	}
	return step, nil
}

// FailStep marks a step failed with its error and fails the whole plan.
// There is no partial-success state.
func (c *Controller) FailStep(planID, stepID, errMsg string) (*model.PlanStep, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	step, ok := c.store.UpdateStepStatus(planID, stepID, model.StepFailed, nil, model.Opt(errMsg))
	if !ok {
		return nil, &model.NotFoundError{Kind: "step", ID: stepID}
	}
	c.store.UpdatePlanStatus(planID, model.PlanFailed)
	return step, nil
}

// SkipStep marks a step skipped without executing it.
func (c *Controller) SkipStep(planID, stepID string) (*model.PlanStep, error) {
	step, ok := c.store.UpdateStepStatus(planID, stepID, model.StepSkipped, nil, nil)
	if !ok {
		return nil, &model.NotFoundError{Kind: "step", ID: stepID}
	}
	return step, nil
}

// RollbackSuggestion names one completed step that should be undone.
type RollbackSuggestion struct {
	StepID          string
	StepOrder       int
	StepDescription string
	RollbackAction  string
}

// AbortSummary reports the result of aborting a plan.
type AbortSummary struct {
	PlanID              string
	Reason              string
	RollbackSuggestions []RollbackSuggestion
	CompletedSteps      int
	SkippedSteps        int
}

// AbortPlan aborts a plan. Completed steps that carry a rollback action are
// returned as suggestions in reverse completion order (undo last first);
// steps still pending or approved are skipped; completed steps keep their
// status.
func (c *Controller) AbortPlan(planID, reason string) (*AbortSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}

	var suggestions []RollbackSuggestion
	for _, step := range plan.Steps {
		if step.Status == model.StepCompleted && step.RollbackAction != nil {
			suggestions = append(suggestions, RollbackSuggestion{
				StepID:          step.ID,
				StepOrder:       step.Order,
				StepDescription: step.Description,
				RollbackAction:  *step.RollbackAction,
			})
		}
	}
	for i, j := 0, len(suggestions)-1; i < j; i, j = i+1, j-1 {
		suggestions[i], suggestions[j] = suggestions[j], suggestions[i]
	}

	for _, step := range plan.Steps {
		if step.Status == model.StepPending || step.Status == model.StepApproved {
			c.store.UpdateStepStatus(planID, step.ID, model.StepSkipped, step.Result, step.Error)
		}
	}
	c.store.UpdatePlanStatus(planID, model.PlanAborted)

	completed, skipped := 0, 0
	for _, step := range plan.Steps {
		switch step.Status {
		case model.StepCompleted:
			completed++
		case model.StepSkipped:
			skipped++
		}
	}

	return &AbortSummary{
		PlanID:              planID,
		Reason:              reason,
		RollbackSuggestions: suggestions,
		CompletedSteps:      completed,
		SkippedSteps:        skipped,
	}, nil
}

// Status is the aggregated view of a plan.
type Status struct {
	Plan        *model.Plan
	CurrentStep *model.PlanStep
	StepCounts  map[string]int
	Progress    string
	IsActive    bool
}

// PlanStatus returns the plan, its current step, a status histogram over
// steps, and an activity flag.
func (c *Controller) PlanStatus(planID string) (*Status, error) {
	plan, ok := c.store.Plan(planID)
	if !ok {
		return nil, &model.NotFoundError{Kind: "plan", ID: planID}
	}

	counts := map[string]int{
		string(model.StepPending):   0,
		string(model.StepApproved):  0,
		string(model.StepDenied):    0,
		string(model.StepExecuting): 0,
		string(model.StepCompleted): 0,
		string(model.StepFailed):    0,
		string(model.StepSkipped):   0,
	}
	for _, step := range plan.Steps {
		counts[string(step.Status)]++
	}

	return &Status{
		Plan:        plan,
		CurrentStep: plan.CurrentStep(),
		StepCounts:  counts,
		Progress:    fmt.Sprintf("%d/%d", counts[string(model.StepCompleted)], len(plan.Steps)),
		IsActive:    plan.Status == model.PlanAwaitingApproval || plan.Status == model.PlanInProgress,
	}, nil
}

func (c *Controller) recordApproval(kind model.TargetKind, targetID string, approved bool, reason string) *model.Approval {
	approval := &model.Approval{
		ID:         uuid.NewString(),
		TargetKind: kind,
		TargetID:   targetID,
		Approved:   approved,
		Reason:     model.Opt(reason),
		ApprovedBy: "user",
		CreatedAt:  time.Now(),
	}
	c.store.PutApproval(approval)
	return approval
}
