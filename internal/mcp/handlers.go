package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/governor/internal/audit"
	"github.com/ppiankov/governor/internal/deviation"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/planctl"
)

// --- Input/Output types ---

// AssessInput defines parameters for the governor_assess tool.
type AssessInput struct {
	Operation   string `json:"operation" jsonschema:"the operation to assess (command, action description, etc.)"`
	Description string `json:"description,omitempty" jsonschema:"human-readable description of what the operation does"`
	Context     string `json:"context,omitempty" jsonschema:"additional context (file paths, URLs, targets, etc.)"`
}

// AssessOutput contains the risk assessment result.
type AssessOutput struct {
	AssessmentID     string         `json:"assessment_id,omitempty"`
	Operation        string         `json:"operation,omitempty"`
	RiskLevel        string         `json:"risk_level,omitempty"`
	RiskScore        float64        `json:"risk_score,omitempty"`
	Factors          map[string]any `json:"factors,omitempty"`
	Recommendations  []string       `json:"recommendations,omitempty"`
	NextSteps        string         `json:"next_steps,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
	RequiresPlan     bool           `json:"requires_plan"`
}

// ApproveInput defines parameters for the governor_approve tool.
type ApproveInput struct {
	TargetType string `json:"target_type" jsonschema:"what the decision applies to: assessment, plan, or step"`
	TargetID   string `json:"target_id" jsonschema:"id of the assessment, plan, or step"`
	Approved   bool   `json:"approved" jsonschema:"true to approve, false to deny"`
	Reason     string `json:"reason,omitempty" jsonschema:"optional reason for the decision"`
}

// TargetAssessment summarizes the assessment a decision applied to.
type TargetAssessment struct {
	Operation string `json:"operation"`
	RiskLevel string `json:"risk_level"`
}

// TargetPlan summarizes the plan a decision applied to.
type TargetPlan struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	StepsCount int    `json:"steps_count"`
}

// TargetStep summarizes the step a decision applied to.
type TargetStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ApproveOutput confirms a recorded decision.
type ApproveOutput struct {
	TargetType string            `json:"target_type,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	Approved   bool              `json:"approved"`
	Reason     string            `json:"reason,omitempty"`
	ApprovalID string            `json:"approval_id,omitempty"`
	Assessment *TargetAssessment `json:"assessment,omitempty"`
	Plan       *TargetPlan       `json:"plan,omitempty"`
	Step       *TargetStep       `json:"step,omitempty"`
	PlanID     string            `json:"plan_id,omitempty"`
	NextSteps  string            `json:"next_steps,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// LogActionInput defines parameters for the governor_log_action tool.
type LogActionInput struct {
	Action    string         `json:"action" jsonschema:"the action type (e.g. modify_file, call_api, update_config)"`
	Operation string         `json:"operation" jsonschema:"description of the specific operation"`
	RiskLevel string         `json:"risk_level,omitempty" jsonschema:"risk level: low, medium, or high (default medium)"`
	Details   map[string]any `json:"details,omitempty" jsonschema:"additional details to log"`
	Success   *bool          `json:"success,omitempty" jsonschema:"whether the action succeeded (default true)"`
	Error     string         `json:"error,omitempty" jsonschema:"error message if the action failed"`
}

// LogActionOutput confirms the audit entry.
type LogActionOutput struct {
	EntryID   string `json:"entry_id"`
	Logged    bool   `json:"logged"`
	Action    string `json:"action"`
	Operation string `json:"operation"`
	RiskLevel string `json:"risk_level"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
}

// StepInput is one step definition for governor_create_plan.
type StepInput struct {
	Description     string `json:"description" jsonschema:"what the step does"`
	Operation       string `json:"operation" jsonschema:"the actual command or operation"`
	ExpectedOutcome string `json:"expected_outcome,omitempty" jsonschema:"what should happen on success"`
	RollbackAction  string `json:"rollback_action,omitempty" jsonschema:"how to undo this step"`
}

// CreatePlanInput defines parameters for the governor_create_plan tool.
type CreatePlanInput struct {
	AssessmentID string      `json:"assessment_id" jsonschema:"id of the risk assessment that triggered plan creation"`
	Name         string      `json:"name" jsonschema:"short name for the plan"`
	Description  string      `json:"description" jsonschema:"detailed description of what the plan accomplishes"`
	Steps        []StepInput `json:"steps" jsonschema:"ordered step definitions"`
	AutoSubmit   *bool       `json:"auto_submit,omitempty" jsonschema:"automatically submit for approval (default true)"`
}

// PlanStepSummary is one step's identity in a create-plan response.
type PlanStepSummary struct {
	StepID      string `json:"step_id"`
	Order       int    `json:"order"`
	Description string `json:"description"`
	HasRollback bool   `json:"has_rollback"`
}

// CreatePlanOutput describes the created plan.
type CreatePlanOutput struct {
	PlanID       string            `json:"plan_id,omitempty"`
	Name         string            `json:"name,omitempty"`
	Description  string            `json:"description,omitempty"`
	Status       string            `json:"status,omitempty"`
	AssessmentID string            `json:"assessment_id,omitempty"`
	Steps        []PlanStepSummary `json:"steps,omitempty"`
	NextSteps    string            `json:"next_steps,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ExecuteStepInput defines parameters for the governor_execute_step tool.
type ExecuteStepInput struct {
	PlanID          string `json:"plan_id" jsonschema:"id of the plan containing the step"`
	StepID          string `json:"step_id" jsonschema:"id of the step to execute"`
	ActualOperation string `json:"actual_operation,omitempty" jsonschema:"the operation that was actually executed"`
	ActualOutcome   string `json:"actual_outcome,omitempty" jsonschema:"the actual result of execution"`
	Skip            bool   `json:"skip,omitempty" jsonschema:"set true to skip this step"`
}

// ExecutedStep reports the state of a step after execution.
type ExecutedStep struct {
	StepID           string `json:"step_id"`
	Order            int    `json:"order,omitempty"`
	Description      string `json:"description"`
	Status           string `json:"status"`
	PlannedOperation string `json:"planned_operation,omitempty"`
	ActualOperation  string `json:"actual_operation,omitempty"`
	ExpectedOutcome  string `json:"expected_outcome,omitempty"`
	ActualOutcome    string `json:"actual_outcome,omitempty"`
}

// NextStep points the caller at the next step to execute.
type NextStep struct {
	StepID      string `json:"step_id"`
	Order       int    `json:"order,omitempty"`
	Description string `json:"description"`
	Operation   string `json:"operation,omitempty"`
	Status      string `json:"status"`
}

// ExecuteStepOutput is the result of one step execution.
type ExecuteStepOutput struct {
	Step            *ExecutedStep  `json:"step,omitempty"`
	Skipped         bool           `json:"skipped,omitempty"`
	Success         bool           `json:"success"`
	DeviationReport map[string]any `json:"deviation_report,omitempty"`
	NextStep        *NextStep      `json:"next_step,omitempty"`
	NextSteps       string         `json:"next_steps,omitempty"`
	PlanStatus      string         `json:"plan_status,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// CheckStatusInput defines parameters for the governor_check_status tool.
type CheckStatusInput struct {
	PlanID                string `json:"plan_id,omitempty" jsonschema:"id of a specific plan to check"`
	AssessmentID          string `json:"assessment_id,omitempty" jsonschema:"id of a specific assessment to check"`
	IncludeSessionSummary bool   `json:"include_session_summary,omitempty" jsonschema:"include an overview of all session state"`
}

// CheckStatusOutput carries the requested status views.
type CheckStatusOutput struct {
	Plan       map[string]any `json:"plan,omitempty"`
	Assessment map[string]any `json:"assessment,omitempty"`
	Session    map[string]any `json:"session,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// AbortInput defines parameters for the governor_abort tool.
type AbortInput struct {
	PlanID string `json:"plan_id" jsonschema:"id of the plan to abort"`
	Reason string `json:"reason,omitempty" jsonschema:"reason for aborting the plan"`
}

// RollbackStep names one completed step to undo.
type RollbackStep struct {
	StepID          string `json:"step_id"`
	StepOrder       int    `json:"step_order"`
	StepDescription string `json:"step_description"`
	RollbackAction  string `json:"rollback_action"`
}

// AbortOutput confirms the abort and carries rollback guidance.
type AbortOutput struct {
	Aborted              bool           `json:"aborted"`
	PlanID               string         `json:"plan_id,omitempty"`
	PlanName             string         `json:"plan_name,omitempty"`
	Reason               string         `json:"reason,omitempty"`
	CompletedSteps       int            `json:"completed_steps"`
	SkippedSteps         int            `json:"skipped_steps"`
	RollbackSuggestions  []RollbackStep `json:"rollback_suggestions"`
	RollbackInstructions string         `json:"rollback_instructions,omitempty"`
	RollbackGuide        []string       `json:"rollback_guide,omitempty"`
	Error                string         `json:"error,omitempty"`
}

// HistoryInput defines parameters for the governor_get_history tool.
type HistoryInput struct {
	Limit        int    `json:"limit,omitempty" jsonschema:"maximum number of entries to return (default 20)"`
	Offset       int    `json:"offset,omitempty" jsonschema:"number of entries to skip for pagination"`
	RiskLevel    string `json:"risk_level,omitempty" jsonschema:"filter by risk level: low, medium, or high"`
	Action       string `json:"action,omitempty" jsonschema:"filter by action type (e.g. assess, approve, execute_step)"`
	PlanID       string `json:"plan_id,omitempty" jsonschema:"filter by plan id"`
	AssessmentID string `json:"assessment_id,omitempty" jsonschema:"filter by assessment id"`
	SuccessOnly  bool   `json:"success_only,omitempty" jsonschema:"only show successful actions"`
	FailuresOnly bool   `json:"failures_only,omitempty" jsonschema:"only show failed actions"`
	IncludeStats bool   `json:"include_stats,omitempty" jsonschema:"include aggregate audit statistics"`
}

// HistoryStats aggregates the audit log.
type HistoryStats struct {
	TotalEntries int            `json:"total_entries"`
	ByRiskLevel  map[string]int `json:"by_risk_level"`
	ByAction     map[string]int `json:"by_action"`
	SuccessRate  *float64       `json:"success_rate"`
}

// HistoryOutput is a page of the audit trail.
type HistoryOutput struct {
	Entries    []map[string]any `json:"entries"`
	Returned   int              `json:"returned"`
	Total      int              `json:"total"`
	Offset     int              `json:"offset"`
	Limit      int              `json:"limit"`
	Filters    []string         `json:"filters,omitempty"`
	Stats      *HistoryStats    `json:"stats,omitempty"`
	HasMore    bool             `json:"has_more"`
	NextOffset *int             `json:"next_offset,omitempty"`
}

// --- Handlers ---

func (s *Server) handleAssess(ctx context.Context, req *mcpsdk.CallToolRequest, input AssessInput) (*mcpsdk.CallToolResult, AssessOutput, error) {
	assessment := s.currentAssessor().Assess(input.Operation, input.Description, input.Context)
	s.store.PutAssessment(assessment)

	s.auditLog.Record(audit.Event{
		Action:    "assess",
		Operation: input.Operation,
		RiskLevel: assessment.RiskLevel,
		Details: map[string]any{
			"description": input.Description,
			"context":     input.Context,
			"risk_score":  assessment.RiskScore,
		},
		AssessmentID: assessment.ID,
		Success:      true,
	})

	out := AssessOutput{
		AssessmentID:    assessment.ID,
		Operation:       input.Operation,
		RiskLevel:       string(assessment.RiskLevel),
		RiskScore:       assessment.RiskScore,
		Factors:         assessment.Factors.ToMap(),
		Recommendations: assessment.Recommendations,
	}

	switch assessment.RiskLevel {
	case model.RiskLow:
		out.NextSteps = "Operation can proceed without additional approval."
	case model.RiskMedium:
		out.NextSteps = fmt.Sprintf(
			"User confirmation required. Use governor_approve with target_type='assessment' and target_id='%s' to record approval.",
			assessment.ID)
		out.RequiresApproval = true
	default:
		out.NextSteps = fmt.Sprintf(
			"Create a structured execution plan. Use governor_create_plan with assessment_id='%s' to create a plan with detailed steps.",
			assessment.ID)
		out.RequiresApproval = true
		out.RequiresPlan = true
	}

	return nil, out, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	out := ApproveOutput{
		TargetType: input.TargetType,
		TargetID:   input.TargetID,
		Approved:   input.Approved,
		Reason:     input.Reason,
	}

	switch input.TargetType {
	case "assessment":
		return s.approveAssessment(input, out)
	case "plan":
		return s.approvePlan(input, out)
	case "step":
		return s.approveStep(input, out)
	default:
		out.Error = fmt.Sprintf("Invalid target_type: %s. Must be 'assessment', 'plan', or 'step'.", input.TargetType)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
}

func (s *Server) approveAssessment(input ApproveInput, out ApproveOutput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	assessment, ok := s.store.Assessment(input.TargetID)
	if !ok {
		out.Error = fmt.Sprintf("Assessment not found: %s", input.TargetID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	approval := &model.Approval{
		ID:         uuid.NewString(),
		TargetKind: model.TargetAssessment,
		TargetID:   input.TargetID,
		Approved:   input.Approved,
		Reason:     model.Opt(input.Reason),
		ApprovedBy: "user",
		CreatedAt:  time.Now(),
	}
	s.store.PutApproval(approval)

	action := "approve"
	if !input.Approved {
		action = "deny"
	}
	s.auditLog.Record(audit.Event{
		Action:       action,
		Operation:    assessment.Operation,
		RiskLevel:    assessment.RiskLevel,
		Details:      map[string]any{"reason": input.Reason},
		AssessmentID: input.TargetID,
		Success:      true,
	})

	out.ApprovalID = approval.ID
	out.Assessment = &TargetAssessment{
		Operation: assessment.Operation,
		RiskLevel: string(assessment.RiskLevel),
	}
	switch {
	case input.Approved && assessment.RiskLevel == model.RiskHigh:
		out.NextSteps = fmt.Sprintf(
			"Assessment approved. Since this is HIGH risk, create a plan using governor_create_plan with assessment_id='%s'.",
			input.TargetID)
	case input.Approved:
		out.NextSteps = "Approved. You may proceed with the operation."
	default:
		out.NextSteps = "Denied. Operation should not proceed."
	}
	return nil, out, nil
}

func (s *Server) approvePlan(input ApproveInput, out ApproveOutput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var (
		plan     *model.Plan
		approval *model.Approval
		err      error
	)
	if input.Approved {
		plan, approval, err = s.controller.ApprovePlan(input.TargetID, input.Reason)
	} else {
		plan, approval, err = s.controller.DenyPlan(input.TargetID, input.Reason)
	}
	if err != nil {
		out.Error = fmt.Sprintf("Plan not found: %s", input.TargetID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	action := "approve_plan"
	if !input.Approved {
		action = "deny_plan"
	}
	s.auditLog.Record(audit.Event{
		Action:    action,
		Operation: plan.Name,
		RiskLevel: s.planRiskLevel(plan),
		Details:   map[string]any{"reason": input.Reason},
		PlanID:    input.TargetID,
		Success:   true,
	})

	out.ApprovalID = approval.ID
	out.Plan = &TargetPlan{
		Name:       plan.Name,
		Status:     string(plan.Status),
		StepsCount: len(plan.Steps),
	}

	switch {
	case input.Approved && len(plan.Steps) > 0:
		first := plan.Steps[0]
		out.NextSteps = fmt.Sprintf(
			"Plan approved. Execute steps in order using governor_execute_step. First step: %s (step_id: %s)",
			first.Description, first.ID)
	case input.Approved:
		out.NextSteps = "Plan approved but has no steps."
	default:
		out.NextSteps = "Plan denied. Consider revising or abandoning the operation."
	}
	return nil, out, nil
}

func (s *Server) approveStep(input ApproveInput, out ApproveOutput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	// Step approvals arrive without a plan id; locate the owning plan.
	var owner *model.Plan
	for _, p := range s.store.Plans() {
		if p.Step(input.TargetID) != nil {
			owner = p
			break
		}
	}
	if owner == nil {
		out.Error = fmt.Sprintf("Step not found: %s", input.TargetID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	var (
		step     *model.PlanStep
		approval *model.Approval
		err      error
	)
	if input.Approved {
		step, approval, err = s.controller.ApproveStep(owner.ID, input.TargetID, input.Reason)
	} else {
		step, approval, err = s.controller.DenyStep(owner.ID, input.TargetID, input.Reason)
	}
	if err != nil {
		out.Error = fmt.Sprintf("Failed to update step: %s", input.TargetID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	action := "approve_step"
	if !input.Approved {
		action = "deny_step"
	}
	s.auditLog.Record(audit.Event{
		Action:    action,
		Operation: step.Operation,
		RiskLevel: s.planRiskLevel(owner),
		Details:   map[string]any{"reason": input.Reason, "step_description": step.Description},
		PlanID:    owner.ID,
		StepID:    input.TargetID,
		Success:   true,
	})

	out.ApprovalID = approval.ID
	out.Step = &TargetStep{
		Order:       step.Order,
		Description: step.Description,
		Status:      string(step.Status),
	}
	out.PlanID = owner.ID

	if input.Approved {
		out.NextSteps = fmt.Sprintf(
			"Step approved. Execute using governor_execute_step with plan_id='%s' and step_id='%s'.",
			owner.ID, input.TargetID)
	} else {
		out.NextSteps = "Step denied. Consider skipping or aborting the plan."
	}
	return nil, out, nil
}

func (s *Server) handleLogAction(ctx context.Context, req *mcpsdk.CallToolRequest, input LogActionInput) (*mcpsdk.CallToolResult, LogActionOutput, error) {
	level, ok := model.ParseRiskLevel(strings.ToLower(input.RiskLevel))
	if !ok {
		level = model.RiskMedium
	}
	success := input.Success == nil || *input.Success

	entry := s.auditLog.Record(audit.Event{
		Action:    input.Action,
		Operation: input.Operation,
		RiskLevel: level,
		Details:   input.Details,
		Success:   success,
		Error:     input.Error,
	})

	return nil, LogActionOutput{
		EntryID:   entry.ID,
		Logged:    true,
		Action:    input.Action,
		Operation: input.Operation,
		RiskLevel: string(level),
		Success:   success,
		Timestamp: entry.CreatedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleCreatePlan(ctx context.Context, req *mcpsdk.CallToolRequest, input CreatePlanInput) (*mcpsdk.CallToolResult, CreatePlanOutput, error) {
	var out CreatePlanOutput

	assessment, ok := s.store.Assessment(input.AssessmentID)
	if !ok {
		out.Error = fmt.Sprintf("Assessment not found: %s", input.AssessmentID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	defs := make([]planctl.StepDef, len(input.Steps))
	for i, step := range input.Steps {
		defs[i] = planctl.StepDef{
			Description:     step.Description,
			Operation:       step.Operation,
			ExpectedOutcome: step.ExpectedOutcome,
			RollbackAction:  step.RollbackAction,
		}
	}

	plan, err := s.controller.CreatePlan(input.Name, input.Description, input.AssessmentID, defs)
	if err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			out.Error = verr.Msg
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, out, err
	}

	s.auditLog.Record(audit.Event{
		Action:    "create_plan",
		Operation: input.Name,
		RiskLevel: assessment.RiskLevel,
		Details: map[string]any{
			"description": input.Description,
			"steps_count": len(input.Steps),
		},
		AssessmentID: input.AssessmentID,
		PlanID:       plan.ID,
		Success:      true,
	})

	autoSubmit := input.AutoSubmit == nil || *input.AutoSubmit
	if autoSubmit {
		if _, err := s.controller.SubmitForApproval(plan.ID); err != nil {
			return nil, out, err
		}
		s.auditLog.Record(audit.Event{
			Action:    "submit_plan",
			Operation: input.Name,
			RiskLevel: assessment.RiskLevel,
			PlanID:    plan.ID,
			Success:   true,
		})
	}

	out = CreatePlanOutput{
		PlanID:       plan.ID,
		Name:         plan.Name,
		Description:  plan.Description,
		Status:       string(plan.Status),
		AssessmentID: input.AssessmentID,
		Steps:        make([]PlanStepSummary, len(plan.Steps)),
	}
	for i, step := range plan.Steps {
		out.Steps[i] = PlanStepSummary{
			StepID:      step.ID,
			Order:       step.Order,
			Description: step.Description,
			HasRollback: step.RollbackAction != nil,
		}
	}

	if autoSubmit {
		out.NextSteps = fmt.Sprintf(
			"Plan submitted for approval. Use governor_approve with target_type='plan' and target_id='%s' to approve or deny.",
			plan.ID)
	} else {
		out.NextSteps = "Plan created in draft. Call governor_create_plan with auto_submit=True or manually submit for approval."
	}
	return nil, out, nil
}

func (s *Server) handleExecuteStep(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecuteStepInput) (*mcpsdk.CallToolResult, ExecuteStepOutput, error) {
	var out ExecuteStepOutput

	plan, ok := s.store.Plan(input.PlanID)
	if !ok {
		out.Error = fmt.Sprintf("Plan not found: %s", input.PlanID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	step := plan.Step(input.StepID)
	if step == nil {
		out.Error = fmt.Sprintf("Step not found: %s", input.StepID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	stepIndex := step.Order - 1

	riskLevel := s.planRiskLevel(plan)

	if input.Skip {
		s.controller.SkipStep(input.PlanID, input.StepID)
		s.auditLog.Record(audit.Event{
			Action:    "skip_step",
			Operation: step.Operation,
			RiskLevel: riskLevel,
			Details:   map[string]any{"step_description": step.Description},
			PlanID:    input.PlanID,
			StepID:    input.StepID,
			Success:   true,
		})

		out = ExecuteStepOutput{
			Step: &ExecutedStep{
				StepID:      input.StepID,
				Status:      string(model.StepSkipped),
				Description: step.Description,
			},
			Skipped:    true,
			PlanStatus: string(plan.Status),
		}
		if stepIndex+1 < len(plan.Steps) {
			next := plan.Steps[stepIndex+1]
			out.NextStep = &NextStep{
				StepID:      next.ID,
				Description: next.Description,
				Status:      string(next.Status),
			}
		}
		return nil, out, nil
	}

	if step.Status != model.StepApproved && step.Status != model.StepPending {
		out.Error = fmt.Sprintf("Step cannot be executed. Current status: %s", step.Status)
		out.Step = executedStepView(step, input)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	s.controller.StartStepExecution(input.PlanID, input.StepID)

	actualOperation := input.ActualOperation
	if actualOperation == "" {
		actualOperation = step.Operation
	}
	report := deviation.Detect(step, actualOperation, input.ActualOutcome)

	s.auditLog.Record(audit.Event{
		Action:    "execute_step",
		Operation: step.Operation,
		RiskLevel: riskLevel,
		Details: map[string]any{
			"step_description":   step.Description,
			"actual_operation":   input.ActualOperation,
			"actual_outcome":     input.ActualOutcome,
			"deviation_detected": report.HasDeviation,
			"deviation_severity": string(report.Severity),
		},
		PlanID:  input.PlanID,
		StepID:  input.StepID,
		Success: report.Severity != deviation.SeverityCritical,
	})

	var stepStatus model.StepStatus
	success := report.Severity != deviation.SeverityCritical
	if success {
		result := input.ActualOutcome
		if result == "" {
			result = "Completed"
		}
		s.controller.CompleteStep(input.PlanID, input.StepID, result)
		stepStatus = model.StepCompleted
	} else {
		s.controller.FailStep(input.PlanID, input.StepID, "Critical deviation detected")
		stepStatus = model.StepFailed
	}

	plan, _ = s.store.Plan(input.PlanID)

	out = ExecuteStepOutput{
		Step: &ExecutedStep{
			StepID:           input.StepID,
			Order:            step.Order,
			Description:      step.Description,
			Status:           string(stepStatus),
			PlannedOperation: step.Operation,
			ActualOperation:  actualOperation,
			ExpectedOutcome:  step.ExpectedOutcome,
			ActualOutcome:    input.ActualOutcome,
		},
		Success:         success,
		DeviationReport: report.ToMap(),
		PlanStatus:      string(plan.Status),
	}

	if success && stepIndex+1 < len(plan.Steps) {
		next := plan.Steps[stepIndex+1]
		out.NextStep = &NextStep{
			StepID:      next.ID,
			Order:       next.Order,
			Description: next.Description,
			Operation:   next.Operation,
			Status:      string(next.Status),
		}
		out.NextSteps = fmt.Sprintf(
			"Proceed to next step: %s. Use governor_execute_step with step_id='%s'.",
			next.Description, next.ID)
	} else {
		switch plan.Status {
		case model.PlanCompleted:
			out.NextSteps = "Plan completed successfully. All steps executed."
		case model.PlanFailed:
			out.NextSteps = fmt.Sprintf(
				"Plan failed due to critical deviation. Use governor_abort with plan_id='%s' for rollback suggestions.",
				input.PlanID)
		default:
			out.NextSteps = "No more steps in plan."
		}
	}

	return nil, out, nil
}

func (s *Server) handleCheckStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckStatusInput) (*mcpsdk.CallToolResult, CheckStatusOutput, error) {
	var out CheckStatusOutput

	if input.PlanID != "" {
		out.Plan = s.planStatusView(input.PlanID)
	}
	if input.AssessmentID != "" {
		out.Assessment = s.assessmentStatusView(input.AssessmentID)
	}
	if input.IncludeSessionSummary {
		out.Session = s.sessionSummaryView()
	}

	if input.PlanID == "" && input.AssessmentID == "" && !input.IncludeSessionSummary {
		out.Message = "No specific item requested. Use plan_id, assessment_id, or include_session_summary=true to get status information."
		out.Session = s.sessionCounts()
	}

	return nil, out, nil
}

func (s *Server) handleAbort(ctx context.Context, req *mcpsdk.CallToolRequest, input AbortInput) (*mcpsdk.CallToolResult, AbortOutput, error) {
	var out AbortOutput

	plan, ok := s.store.Plan(input.PlanID)
	if !ok {
		out.Error = fmt.Sprintf("Plan not found: %s", input.PlanID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	summary, err := s.controller.AbortPlan(input.PlanID, input.Reason)
	if err != nil {
		out.Error = fmt.Sprintf("Failed to abort plan: %s", input.PlanID)
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}

	s.auditLog.Record(audit.Event{
		Action:    "abort_plan",
		Operation: plan.Name,
		RiskLevel: s.planRiskLevel(plan),
		Details: map[string]any{
			"reason":          input.Reason,
			"completed_steps": summary.CompletedSteps,
			"skipped_steps":   summary.SkippedSteps,
		},
		PlanID:  input.PlanID,
		Success: true,
	})

	reason := input.Reason
	if reason == "" {
		reason = "No reason provided"
	}

	out = AbortOutput{
		Aborted:             true,
		PlanID:              input.PlanID,
		PlanName:            plan.Name,
		Reason:              reason,
		CompletedSteps:      summary.CompletedSteps,
		SkippedSteps:        summary.SkippedSteps,
		RollbackSuggestions: make([]RollbackStep, len(summary.RollbackSuggestions)),
	}
	for i, sg := range summary.RollbackSuggestions {
		out.RollbackSuggestions[i] = RollbackStep{
			StepID:          sg.StepID,
			StepOrder:       sg.StepOrder,
			StepDescription: sg.StepDescription,
			RollbackAction:  sg.RollbackAction,
		}
	}

	if len(summary.RollbackSuggestions) > 0 {
		out.RollbackInstructions = "To rollback, execute these actions in the order shown (reverse of original execution order):"
		for i, sg := range summary.RollbackSuggestions {
			out.RollbackGuide = append(out.RollbackGuide,
				fmt.Sprintf("%d. Undo '%s': %s", i+1, sg.StepDescription, sg.RollbackAction))
		}
	} else {
		out.RollbackInstructions = "No rollback actions available. Either no steps were completed or completed steps did not have rollback actions defined."
	}

	return nil, out, nil
}

func (s *Server) handleGetHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input HistoryInput) (*mcpsdk.CallToolResult, HistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 20
	}

	// An unrecognized risk level filter silently means no filter.
	levelFilter, _ := model.ParseRiskLevel(strings.ToLower(input.RiskLevel))

	filter := audit.Filter{
		RiskLevel:    levelFilter,
		Action:       input.Action,
		AssessmentID: input.AssessmentID,
		PlanID:       input.PlanID,
		SuccessOnly:  input.SuccessOnly,
		FailuresOnly: input.FailuresOnly,
		Offset:       input.Offset,
		Limit:        limit,
	}

	entries := s.auditLog.Entries(filter)
	total := s.auditLog.Count(filter)

	out := HistoryOutput{
		Entries:  make([]map[string]any, len(entries)),
		Returned: len(entries),
		Total:    total,
		Offset:   input.Offset,
		Limit:    limit,
	}
	for i, e := range entries {
		out.Entries[i] = e.ToMap()
	}

	if input.RiskLevel != "" {
		out.Filters = append(out.Filters, "risk_level="+input.RiskLevel)
	}
	if input.Action != "" {
		out.Filters = append(out.Filters, "action="+input.Action)
	}
	if input.PlanID != "" {
		out.Filters = append(out.Filters, "plan_id="+input.PlanID)
	}
	if input.AssessmentID != "" {
		out.Filters = append(out.Filters, "assessment_id="+input.AssessmentID)
	}
	if input.SuccessOnly {
		out.Filters = append(out.Filters, "success_only=true")
	}
	if input.FailuresOnly {
		out.Filters = append(out.Filters, "failures_only=true")
	}

	if input.IncludeStats {
		stats := s.auditLog.Stats()
		out.Stats = &HistoryStats{
			TotalEntries: stats.Total,
			ByRiskLevel:  stats.ByRiskLevel,
			ByAction:     stats.ByAction,
			SuccessRate:  stats.SuccessRate,
		}
	}

	if input.Offset+len(entries) < total {
		out.HasMore = true
		next := input.Offset + limit
		out.NextOffset = &next
	}

	return nil, out, nil
}

// --- Helpers ---

// planRiskLevel resolves the risk level of the assessment behind a plan,
// defaulting to high when the assessment is gone.
func (s *Server) planRiskLevel(plan *model.Plan) model.RiskLevel {
	if assessment, ok := s.store.Assessment(plan.AssessmentID); ok {
		return assessment.RiskLevel
	}
	return model.RiskHigh
}

func executedStepView(step *model.PlanStep, input ExecuteStepInput) *ExecutedStep {
	actualOperation := input.ActualOperation
	if actualOperation == "" {
		actualOperation = step.Operation
	}
	return &ExecutedStep{
		StepID:           step.ID,
		Order:            step.Order,
		Description:      step.Description,
		Status:           string(step.Status),
		PlannedOperation: step.Operation,
		ActualOperation:  actualOperation,
		ExpectedOutcome:  step.ExpectedOutcome,
		ActualOutcome:    input.ActualOutcome,
	}
}

func (s *Server) planStatusView(planID string) map[string]any {
	plan, ok := s.store.Plan(planID)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Plan not found: %s", planID)}
	}

	status, err := s.controller.PlanStatus(planID)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Plan not found: %s", planID)}
	}

	steps := make([]map[string]any, len(plan.Steps))
	for i, st := range plan.Steps {
		steps[i] = map[string]any{
			"id":          st.ID,
			"order":       st.Order,
			"description": st.Description,
			"status":      string(st.Status),
		}
	}

	view := map[string]any{
		"id":            plan.ID,
		"name":          plan.Name,
		"description":   plan.Description,
		"status":        string(plan.Status),
		"assessment_id": plan.AssessmentID,
		"total_steps":   len(plan.Steps),
		"step_counts":   status.StepCounts,
		"current_step":  nil,
		"steps":         steps,
		"created_at":    plan.CreatedAt.Format(time.RFC3339),
		"updated_at":    plan.UpdatedAt.Format(time.RFC3339),
	}
	if cur := status.CurrentStep; cur != nil {
		view["current_step"] = map[string]any{
			"id":          cur.ID,
			"order":       cur.Order,
			"description": cur.Description,
			"status":      string(cur.Status),
		}
	}
	if latest := s.latestApproval(model.TargetPlan, planID); latest != nil {
		view["approval"] = approvalView(latest)
	}
	return view
}

func (s *Server) assessmentStatusView(assessmentID string) map[string]any {
	assessment, ok := s.store.Assessment(assessmentID)
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Assessment not found: %s", assessmentID)}
	}

	view := assessment.ToMap()
	if latest := s.latestApproval(model.TargetAssessment, assessmentID); latest != nil {
		view["approval"] = approvalView(latest)
	}
	return view
}

func (s *Server) sessionSummaryView() map[string]any {
	summary := s.store.Summarize()

	activePlans := s.store.ActivePlans()
	activeInfo := make([]map[string]any, len(activePlans))
	for i, p := range activePlans {
		activeInfo[i] = map[string]any{
			"id":     p.ID,
			"name":   p.Name,
			"status": string(p.Status),
		}
	}

	assessments := s.store.Assessments()
	sort.Slice(assessments, func(i, j int) bool {
		return assessments[i].CreatedAt.After(assessments[j].CreatedAt)
	})
	if len(assessments) > 5 {
		assessments = assessments[:5]
	}
	recent := make([]map[string]any, len(assessments))
	for i, a := range assessments {
		op := a.Operation
		if len(op) > 50 {
			op = op[:50] + "..."
		}
		recent[i] = map[string]any{
			"id":         a.ID,
			"operation":  op,
			"risk_level": string(a.RiskLevel),
			"timestamp":  a.CreatedAt.Format(time.RFC3339),
		}
	}

	return map[string]any{
		"session_id": summary.SessionID,
		"counts": map[string]any{
			"assessments":  summary.Assessments,
			"plans":        summary.Plans,
			"active_plans": summary.ActivePlans,
			"approvals":    summary.Approvals,
		},
		"active_plans":       activeInfo,
		"recent_assessments": recent,
	}
}

func (s *Server) sessionCounts() map[string]any {
	summary := s.store.Summarize()
	return map[string]any{
		"session_id":         summary.SessionID,
		"assessments_count":  summary.Assessments,
		"plans_count":        summary.Plans,
		"active_plans_count": summary.ActivePlans,
		"approvals_count":    summary.Approvals,
	}
}

func (s *Server) latestApproval(kind model.TargetKind, targetID string) *model.Approval {
	approvals := s.store.ApprovalsFor(kind, targetID)
	if len(approvals) == 0 {
		return nil
	}
	latest := approvals[0]
	for _, a := range approvals[1:] {
		if a.CreatedAt.After(latest.CreatedAt) {
			latest = a
		}
	}
	return latest
}

func approvalView(a *model.Approval) map[string]any {
	view := map[string]any{
		"approved":  a.Approved,
		"reason":    nil,
		"timestamp": a.CreatedAt.Format(time.RFC3339),
	}
	if a.Reason != nil {
		view["reason"] = *a.Reason
	}
	return view
}
