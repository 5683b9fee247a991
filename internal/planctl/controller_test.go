package planctl

import (
	"errors"
	"testing"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/session"
)

func newPlan(t *testing.T, c *Controller, defs ...StepDef) *model.Plan {
	t.Helper()
	if len(defs) == 0 {
		defs = []StepDef{
			{Description: "backup table", Operation: "pg_dump -t user_sessions > backup.sql", RollbackAction: "rm backup.sql"},
			{Description: "delete stale rows", Operation: "DELETE FROM user_sessions WHERE stale", RollbackAction: "psql < backup.sql"},
			{Description: "verify row count", Operation: "SELECT count(*) FROM user_sessions"},
		}
	}
	plan, err := c.CreatePlan("cleanup", "remove stale sessions", "as-1", defs)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return plan
}

func TestCreatePlanValidation(t *testing.T) {
	c := New(session.New())

	tests := []struct {
		name string
		defs []StepDef
	}{
		{"no steps", nil},
		{"missing description", []StepDef{{Operation: "ls"}}},
		{"missing operation", []StepDef{{Description: "list files"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreatePlan("p", "d", "as-1", tt.defs)
			var verr *model.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreatePlanDefaults(t *testing.T) {
	c := New(session.New())
	plan := newPlan(t, c)

	if plan.Status != model.PlanDraft {
		t.Errorf("status = %q, want draft", plan.Status)
	}
	for i, step := range plan.Steps {
		if step.Order != i+1 {
			t.Errorf("step %d order = %d", i, step.Order)
		}
		if step.Status != model.StepPending {
			t.Errorf("step %d status = %q", i, step.Status)
		}
	}
	if plan.Steps[2].ExpectedOutcome != DefaultExpectedOutcome {
		t.Errorf("expected outcome = %q", plan.Steps[2].ExpectedOutcome)
	}
	if plan.Steps[2].RollbackAction != nil {
		t.Errorf("rollback = %v, want nil", *plan.Steps[2].RollbackAction)
	}
}

func TestSubmitForApprovalRequiresDraft(t *testing.T) {
	store := session.New()
	c := New(store)
	plan := newPlan(t, c)

	updated, err := c.SubmitForApproval(plan.ID)
	if err != nil {
		t.Fatalf("SubmitForApproval: %v", err)
	}
	if updated.Status != model.PlanAwaitingApproval {
		t.Errorf("status = %q, want awaiting_approval", updated.Status)
	}

	_, err = c.SubmitForApproval(plan.ID)
	var serr *model.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("resubmit err = %v, want InvalidStateError", err)
	}

	_, err = c.SubmitForApproval("missing")
	var nerr *model.NotFoundError
	if !errors.As(err, &nerr) {
		t.Fatalf("missing plan err = %v, want NotFoundError", err)
	}
}

func TestApprovePlanMarksAllSteps(t *testing.T) {
	store := session.New()
	c := New(store)
	plan := newPlan(t, c)

	updated, approval, err := c.ApprovePlan(plan.ID, "looks safe")
	if err != nil {
		t.Fatalf("ApprovePlan: %v", err)
	}
	if updated.Status != model.PlanInProgress {
		t.Errorf("status = %q, want in_progress", updated.Status)
	}
	for _, step := range updated.Steps {
		if step.Status != model.StepApproved {
			t.Errorf("step %d status = %q, want approved", step.Order, step.Status)
		}
	}
	if !approval.Approved || approval.TargetKind != model.TargetPlan {
		t.Errorf("approval = %+v", approval)
	}
	if !store.IsApproved(model.TargetPlan, plan.ID) {
		t.Error("store does not report plan approved")
	}
}

func TestDenyPlanAborts(t *testing.T) {
	c := New(session.New())
	plan := newPlan(t, c)

	updated, approval, err := c.DenyPlan(plan.ID, "too risky")
	if err != nil {
		t.Fatalf("DenyPlan: %v", err)
	}
	if updated.Status != model.PlanAborted {
		t.Errorf("status = %q, want aborted", updated.Status)
	}
	if updated.CompletedAt == nil {
		t.Error("completion time not stamped")
	}
	if approval.Approved {
		t.Error("denial recorded as approved")
	}
}

func TestStepDecisionsLeavePlanAlone(t *testing.T) {
	c := New(session.New())
	plan := newPlan(t, c)

	step, approval, err := c.ApproveStep(plan.ID, plan.Steps[0].ID, "")
	if err != nil {
		t.Fatalf("ApproveStep: %v", err)
	}
	if step.Status != model.StepApproved {
		t.Errorf("step status = %q", step.Status)
	}
	if approval.TargetKind != model.TargetStep || approval.TargetID != step.ID {
		t.Errorf("approval = %+v", approval)
	}

	denied, _, err := c.DenyStep(plan.ID, plan.Steps[1].ID, "wrong query")
	if err != nil {
		t.Fatalf("DenyStep: %v", err)
	}
	if denied.Status != model.StepDenied {
		t.Errorf("denied step status = %q", denied.Status)
	}

	if plan.Status != model.PlanDraft {
		t.Errorf("plan status = %q, step decisions must not move the plan", plan.Status)
	}
}

func TestCompleteAllStepsCompletesPlan(t *testing.T) {
	store := session.New()
	c := New(store)
	plan := newPlan(t, c)
	c.ApprovePlan(plan.ID, "")

	for _, step := range plan.Steps {
		if _, err := c.StartStepExecution(plan.ID, step.ID); err != nil {
			t.Fatalf("StartStepExecution: %v", err)
		}
		if _, err := c.CompleteStep(plan.ID, step.ID, "ok"); err != nil {
			t.Fatalf("CompleteStep: %v", err)
		}
	}

	got, _ := store.Plan(plan.ID)
	if got.Status != model.PlanCompleted {
		t.Errorf("plan status = %q, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completion time not stamped")
	}
	first := *got.CompletedAt

	// A redundant terminal transition must not restamp completion.
	store.UpdatePlanStatus(plan.ID, model.PlanCompleted)
	if !got.CompletedAt.Equal(first) {
		t.Error("completion time restamped")
	}
}

func TestFailStepFailsPlan(t *testing.T) {
	store := session.New()
	c := New(store)
	plan := newPlan(t, c)
	c.ApprovePlan(plan.ID, "")

	c.StartStepExecution(plan.ID, plan.Steps[0].ID)
	c.CompleteStep(plan.ID, plan.Steps[0].ID, "done")

	step, err := c.FailStep(plan.ID, plan.Steps[1].ID, "constraint violation")
	if err != nil {
		t.Fatalf("FailStep: %v", err)
	}
	if step.Status != model.StepFailed {
		t.Errorf("step status = %q", step.Status)
	}
	if step.Error == nil || *step.Error != "constraint violation" {
		t.Errorf("step error = %v", step.Error)
	}

	got, _ := store.Plan(plan.ID)
	if got.Status != model.PlanFailed {
		t.Errorf("plan status = %q, want failed even with steps pending", got.Status)
	}
}

func TestAbortPlanRollbackSuggestions(t *testing.T) {
	store := session.New()
	c := New(store)
	plan := newPlan(t, c)
	c.ApprovePlan(plan.ID, "")

	// S1 completed with rollback, S2 completed without, S3 stays approved.
	c.CompleteStep(plan.ID, plan.Steps[0].ID, "backup done")
	noRollback := plan.Steps[1]
	noRollback.RollbackAction = nil
	c.CompleteStep(plan.ID, noRollback.ID, "rows deleted")

	summary, err := c.AbortPlan(plan.ID, "operator abort")
	if err != nil {
		t.Fatalf("AbortPlan: %v", err)
	}

	if len(summary.RollbackSuggestions) != 1 {
		t.Fatalf("suggestions = %+v, want only the step with a rollback", summary.RollbackSuggestions)
	}
	if summary.RollbackSuggestions[0].StepID != plan.Steps[0].ID {
		t.Errorf("suggestion step = %q", summary.RollbackSuggestions[0].StepID)
	}
	if summary.CompletedSteps != 2 || summary.SkippedSteps != 1 {
		t.Errorf("counts = %d completed / %d skipped", summary.CompletedSteps, summary.SkippedSteps)
	}

	got, _ := store.Plan(plan.ID)
	if got.Status != model.PlanAborted {
		t.Errorf("plan status = %q", got.Status)
	}
	if got.Steps[0].Status != model.StepCompleted || got.Steps[1].Status != model.StepCompleted {
		t.Error("completed steps must keep their status")
	}
	if got.Steps[2].Status != model.StepSkipped {
		t.Errorf("pending step status = %q, want skipped", got.Steps[2].Status)
	}
}

func TestAbortReversesRollbackOrder(t *testing.T) {
	c := New(session.New())
	plan := newPlan(t, c)
	c.ApprovePlan(plan.ID, "")
	for _, step := range plan.Steps {
		c.CompleteStep(plan.ID, step.ID, "ok")
	}

	summary, err := c.AbortPlan(plan.ID, "")
	if err != nil {
		t.Fatalf("AbortPlan: %v", err)
	}
	// Steps 1 and 2 carry rollbacks; undo last-completed first.
	if len(summary.RollbackSuggestions) != 2 {
		t.Fatalf("suggestions = %+v", summary.RollbackSuggestions)
	}
	if summary.RollbackSuggestions[0].StepOrder != 2 || summary.RollbackSuggestions[1].StepOrder != 1 {
		t.Errorf("rollback order = %d, %d; want 2, 1",
			summary.RollbackSuggestions[0].StepOrder, summary.RollbackSuggestions[1].StepOrder)
	}
}

func TestPlanStatusAggregation(t *testing.T) {
	c := New(session.New())
	plan := newPlan(t, c)

	status, err := c.PlanStatus(plan.ID)
	if err != nil {
		t.Fatalf("PlanStatus: %v", err)
	}
	if status.IsActive {
		t.Error("draft plan reported active")
	}
	if status.Progress != "0/3" {
		t.Errorf("progress = %q", status.Progress)
	}
	if status.CurrentStep == nil || status.CurrentStep.ID != plan.Steps[0].ID {
		t.Errorf("current step = %+v", status.CurrentStep)
	}

	c.ApprovePlan(plan.ID, "")
	c.CompleteStep(plan.ID, plan.Steps[0].ID, "ok")

	status, _ = c.PlanStatus(plan.ID)
	if !status.IsActive {
		t.Error("in_progress plan not reported active")
	}
	if status.Progress != "1/3" {
		t.Errorf("progress = %q", status.Progress)
	}
	if status.StepCounts["completed"] != 1 || status.StepCounts["approved"] != 2 {
		t.Errorf("counts = %v", status.StepCounts)
	}

	if _, err := c.PlanStatus("missing"); err == nil {
		t.Error("expected not-found error")
	}
}
