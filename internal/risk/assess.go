// Package risk scores operations on a resource/action/scope factor model
// and maps the product to a risk level with actionable recommendations.
package risk

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/governor/internal/classify"
	"github.com/ppiankov/governor/internal/model"
)

// Assessor scores operations. Safe for concurrent use: assessment is pure
// and the config is read-only after construction.
type Assessor struct {
	cfg *Config
}

// NewAssessor creates an assessor. A nil config uses defaults.
func NewAssessor(cfg *Config) *Assessor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Assessor{cfg: cfg}
}

// Assess classifies an operation and produces a scored assessment.
// description may be empty; a default is derived from the action type.
// context supplies extra signal for resource and scope classification.
func (a *Assessor) Assess(operation, description, context string) *model.Assessment {
	resource, baseScore := classify.Resource(operation, context)
	action, actionMult := classify.Action(operation)
	scope, scopeMult := classify.Scope(operation, context)

	score := baseScore * actionMult * scopeMult
	level := a.level(score)

	if description == "" {
		description = defaultDescription(action, operation)
	}

	factors := model.Factors{
		Resource: model.Factor{
			Type:        string(resource),
			Weight:      baseScore,
			Description: resource.Description(),
		},
		Action: model.Factor{
			Type:        string(action),
			Weight:      actionMult,
			Description: action.Description(),
		},
		Scope: model.Factor{
			Type:        string(scope),
			Weight:      scopeMult,
			Description: scope.Description(),
		},
		Calculation: fmt.Sprintf("%g × %g × %g = %g", baseScore, actionMult, scopeMult, score),
	}

	return &model.Assessment{
		ID:              uuid.NewString(),
		Operation:       operation,
		Description:     description,
		ResourceType:    resource,
		ActionType:      action,
		Scope:           scope,
		RiskScore:       score,
		RiskLevel:       level,
		Factors:         factors,
		Recommendations: recommendations(level, resource, action, scope),
		CreatedAt:       time.Now().UTC(),
	}
}

func (a *Assessor) level(score float64) model.RiskLevel {
	switch {
	case score < a.cfg.Thresholds.LowMax:
		return model.RiskLow
	case score <= a.cfg.Thresholds.MediumMax:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

func defaultDescription(action classify.ActionType, operation string) string {
	verb := map[classify.ActionType]string{
		classify.ActionRead:    "Reading",
		classify.ActionWrite:   "Writing/modifying",
		classify.ActionDelete:  "Deleting",
		classify.ActionExecute: "Executing",
	}[action]
	if verb == "" {
		verb = "Performing"
	}
	op := operation
	if len(op) > 100 {
		op = op[:100] + "..."
	}
	return verb + ": " + op
}

func recommendations(level model.RiskLevel, resource classify.ResourceType, action classify.ActionType, scope classify.ScopeType) []string {
	var recs []string

	switch level {
	case model.RiskLow:
		recs = append(recs, "Operation can proceed without additional approval")
	case model.RiskMedium:
		recs = append(recs, "User confirmation required before proceeding")
		if resource == classify.ResourceExternalAPI {
			recs = append(recs, "Verify API endpoint and credentials are correct")
		}
		if action == classify.ActionWrite {
			recs = append(recs, "Consider creating a backup before modification")
		}
	case model.RiskHigh:
		recs = append(recs,
			"Create a structured execution plan with step-by-step approval",
			"Document rollback procedures for each step",
		)
		if resource == classify.ResourceDatabase {
			recs = append(recs,
				"Ensure database backup exists before proceeding",
				"Consider running in a transaction with rollback capability",
			)
		}
		if resource == classify.ResourceSensitiveFile {
			recs = append(recs,
				"Verify credential handling follows security best practices",
				"Ensure sensitive data is not logged or exposed",
			)
		}
		if resource == classify.ResourceSystemCommand {
			recs = append(recs,
				"Review command for unintended side effects",
				"Consider running in isolated/sandboxed environment first",
			)
		}
		if action == classify.ActionDelete {
			recs = append(recs,
				"Confirm deletion targets are correct",
				"Verify backup exists before deletion",
			)
		}
		if scope == classify.ScopeSystem {
			recs = append(recs,
				"Assess impact on dependent systems",
				"Consider staged rollout if possible",
			)
		}
	}

	return recs
}
