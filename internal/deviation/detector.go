// Package deviation compares planned plan steps against what actually ran
// and reports how far execution drifted from the plan.
package deviation

import (
	"fmt"
	"strings"

	"github.com/ppiankov/governor/internal/model"
)

// Severity grades how far execution drifted from the plan.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityNone:     0,
	SeverityMinor:    1,
	SeverityMajor:    2,
	SeverityCritical: 3,
}

// Finding is one detected discrepancy between plan and execution.
type Finding struct {
	Type       string
	Severity   Severity
	Planned    string
	Actual     string
	Similarity *float64
	Message    string
}

// ToMap serializes the finding to a flat record.
func (f Finding) ToMap() map[string]any {
	m := map[string]any{
		"type":           f.Type,
		"deviation_type": string(f.Severity),
		"message":        f.Message,
	}
	switch f.Type {
	case "operation_deviation":
		m["planned"] = f.Planned
		m["actual"] = f.Actual
		if f.Similarity != nil {
			m["similarity"] = *f.Similarity
		}
	case "outcome_deviation":
		m["expected"] = f.Planned
		m["actual"] = f.Actual
	}
	return m
}

// Report is the result of comparing one step's planned and actual execution.
type Report struct {
	StepID          string
	HasDeviation    bool
	Severity        Severity
	Findings        []Finding
	Recommendations []string
}

// ToMap serializes the report to a flat record.
func (r *Report) ToMap() map[string]any {
	findings := make([]map[string]any, len(r.Findings))
	for i, f := range r.Findings {
		findings[i] = f.ToMap()
	}
	return map[string]any{
		"step_id":         r.StepID,
		"has_deviation":   r.HasDeviation,
		"severity":        string(r.Severity),
		"deviations":      findings,
		"recommendations": r.Recommendations,
	}
}

// errorIndicators in an actual outcome mark the execution as failed
// regardless of operation similarity.
var errorIndicators = []string{
	"error", "failed", "exception", "traceback",
	"denied", "forbidden", "unauthorized", "timeout",
	"not found", "does not exist", "cannot", "unable",
}

var successIndicators = []string{
	"success", "completed", "done", "created",
	"updated", "deleted", "ok", "passed",
}

// Detect compares a planned step against the operation that actually ran
// and its outcome. The operation and outcome checks are independent; the
// report severity is the worst finding.
func Detect(step *model.PlanStep, actualOperation, actualOutcome string) *Report {
	var findings []Finding

	if f := checkOperation(step.Operation, actualOperation); f != nil {
		findings = append(findings, *f)
	}
	if f := checkOutcome(step.ExpectedOutcome, actualOutcome); f != nil {
		findings = append(findings, *f)
	}

	severity := SeverityNone
	for _, f := range findings {
		if severityRank[f.Severity] > severityRank[severity] {
			severity = f.Severity
		}
	}

	return &Report{
		StepID:          step.ID,
		HasDeviation:    len(findings) > 0,
		Severity:        severity,
		Findings:        findings,
		Recommendations: recommendations(findings, severity),
	}
}

// checkOperation compares the planned and actual operation text by token-set
// similarity. Similarity of 0.9 or above counts as no deviation.
func checkOperation(planned, actual string) *Finding {
	if planned == "" || actual == "" {
		return nil
	}

	plannedNorm := normalize(planned)
	actualNorm := normalize(actual)
	if plannedNorm == actualNorm {
		return nil
	}

	sim := similarity(plannedNorm, actualNorm)
	if sim >= 0.9 {
		return nil
	}

	severity := SeverityMajor
	if sim >= 0.7 {
		severity = SeverityMinor
	}

	return &Finding{
		Type:       "operation_deviation",
		Severity:   severity,
		Planned:    planned,
		Actual:     actual,
		Similarity: &sim,
		Message:    fmt.Sprintf("Operation differs from plan (similarity: %s)", percent(sim)),
	}
}

// checkOutcome scans the actual outcome for error indicators, then checks
// whether an expected success materialized.
func checkOutcome(expected, actual string) *Finding {
	if expected == "" || actual == "" {
		return nil
	}

	expectedLower := strings.ToLower(expected)
	actualLower := strings.ToLower(actual)

	for _, ind := range errorIndicators {
		if strings.Contains(actualLower, ind) {
			return &Finding{
				Type:     "outcome_deviation",
				Severity: SeverityCritical,
				Planned:  expected,
				Actual:   actual,
				Message:  "Execution resulted in error or failure",
			}
		}
	}

	expectedSuccess := containsAny(expectedLower, successIndicators)
	actualSuccess := containsAny(actualLower, successIndicators)
	if expectedSuccess && !actualSuccess {
		return &Finding{
			Type:     "outcome_deviation",
			Severity: SeverityMajor,
			Planned:  expected,
			Actual:   actual,
			Message:  "Expected success but outcome is unclear",
		}
	}

	return nil
}

// normalize lowercases and collapses all whitespace runs to single spaces.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// similarity is the Jaccard index over the word sets of two normalized texts.
func similarity(a, b string) float64 {
	wordsA := tokenSet(a)
	wordsB := tokenSet(b)

	if len(wordsA) == 0 && len(wordsB) == 0 {
		return 1.0
	}
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		set[w] = true
	}
	return set
}

func recommendations(findings []Finding, severity Severity) []string {
	if severity == SeverityNone {
		return []string{"Execution proceeded as planned"}
	}

	var recs []string
	switch severity {
	case SeverityCritical:
		recs = append(recs,
			"STOP: Critical deviation detected",
			"Review error output and assess impact",
			"Consider rolling back completed steps",
		)
	case SeverityMajor:
		recs = append(recs,
			"CAUTION: Significant deviation from plan",
			"Verify actual outcome before proceeding",
			"Consider updating plan if deviation is acceptable",
		)
	case SeverityMinor:
		recs = append(recs,
			"NOTE: Minor deviation detected",
			"Review changes and confirm acceptability",
		)
	}

	for _, f := range findings {
		if f.Type == "operation_deviation" && f.Similarity != nil {
			recs = append(recs, "Operation similarity: "+percent(*f.Similarity))
		}
	}
	return recs
}

// percent formats a ratio the way the reports display it, with one decimal.
func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
