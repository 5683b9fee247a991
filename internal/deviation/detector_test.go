package deviation

import (
	"strings"
	"testing"

	"github.com/ppiankov/governor/internal/model"
)

func step(operation, expected string) *model.PlanStep {
	return &model.PlanStep{
		ID:              "step-1",
		Order:           1,
		Description:     "test step",
		Operation:       operation,
		ExpectedOutcome: expected,
	}
}

func TestDetectNoDeviation(t *testing.T) {
	s := step("DELETE FROM user_sessions WHERE stale", "Stale rows removed")

	report := Detect(s, "DELETE FROM user_sessions WHERE stale", "Stale rows removed")

	if report.HasDeviation {
		t.Errorf("findings = %+v, want none", report.Findings)
	}
	if report.Severity != SeverityNone {
		t.Errorf("severity = %q", report.Severity)
	}
	if len(report.Recommendations) != 1 || report.Recommendations[0] != "Execution proceeded as planned" {
		t.Errorf("recommendations = %v", report.Recommendations)
	}
	if report.StepID != "step-1" {
		t.Errorf("step id = %q", report.StepID)
	}
}

func TestDetectNormalizationIgnoresCaseAndWhitespace(t *testing.T) {
	s := step("rm  -rf   /tmp/cache", "")

	report := Detect(s, "RM -RF /tmp/cache", "")
	if report.HasDeviation {
		t.Errorf("case/whitespace difference flagged: %+v", report.Findings)
	}
}

func TestDetectOperationSimilarityBands(t *testing.T) {
	tests := []struct {
		name     string
		planned  string
		actual   string
		severity Severity
	}{
		{
			// 9 of 10 tokens shared: similarity 9/11 ≈ 0.82
			name:     "small drift is minor",
			planned:  "a b c d e f g h i j",
			actual:   "a b c d e f g h i x",
			severity: SeverityMinor,
		},
		{
			name:     "large drift is major",
			planned:  "pg_dump -t user_sessions",
			actual:   "rm -rf /var/lib/postgresql",
			severity: SeverityMajor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := Detect(step(tt.planned, ""), tt.actual, "")
			if !report.HasDeviation {
				t.Fatal("no deviation found")
			}
			if report.Severity != tt.severity {
				t.Errorf("severity = %q, want %q", report.Severity, tt.severity)
			}
			f := report.Findings[0]
			if f.Type != "operation_deviation" || f.Similarity == nil {
				t.Errorf("finding = %+v", f)
			}
		})
	}
}

func TestDetectHighSimilarityPasses(t *testing.T) {
	// 19 of 20 tokens shared: similarity 19/21 ≈ 0.905, above the 0.9 band.
	tokens := strings.Fields("a b c d e f g h i j k l m n o p q r s t")
	planned := strings.Join(tokens, " ")
	tokens[19] = "x"
	actual := strings.Join(tokens, " ")

	report := Detect(step(planned, ""), actual, "")
	if report.HasDeviation {
		t.Errorf("similarity above 0.9 flagged: %+v", report.Findings)
	}
}

func TestDetectErrorOutcomeIsCritical(t *testing.T) {
	s := step("psql -c 'DELETE FROM t'", "Rows deleted")

	// Identical operation, but the outcome carries an error indicator.
	report := Detect(s, s.Operation, "ERROR: permission denied for table t")

	if report.Severity != SeverityCritical {
		t.Fatalf("severity = %q, want critical", report.Severity)
	}
	f := report.Findings[0]
	if f.Type != "outcome_deviation" {
		t.Errorf("finding type = %q", f.Type)
	}
	if f.Message != "Execution resulted in error or failure" {
		t.Errorf("message = %q", f.Message)
	}
	if report.Recommendations[0] != "STOP: Critical deviation detected" {
		t.Errorf("recommendations = %v", report.Recommendations)
	}
}

func TestDetectExpectedSuccessMissing(t *testing.T) {
	s := step("run migrate", "Migration completed")

	report := Detect(s, "run migrate", "output written to log")

	if report.Severity != SeverityMajor {
		t.Fatalf("severity = %q, want major", report.Severity)
	}
	if report.Findings[0].Message != "Expected success but outcome is unclear" {
		t.Errorf("message = %q", report.Findings[0].Message)
	}
}

func TestDetectSeverityIsWorstFinding(t *testing.T) {
	s := step("pg_dump -t user_sessions", "Backup created")

	// Major operation drift plus a critical outcome.
	report := Detect(s, "rm -rf /backups", "command failed with exit 1")

	if report.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical", report.Severity)
	}
	if len(report.Findings) != 2 {
		t.Errorf("findings = %+v, want both axes", report.Findings)
	}
	if !containsPrefix(report.Recommendations, "Operation similarity: ") {
		t.Errorf("similarity line missing: %v", report.Recommendations)
	}
}

func TestDetectEmptyActualSkipsChecks(t *testing.T) {
	s := step("ls /tmp", "Listing printed")

	report := Detect(s, "", "")
	if report.HasDeviation {
		t.Errorf("empty actuals flagged: %+v", report.Findings)
	}
}

func containsPrefix(ss []string, prefix string) bool {
	for _, s := range ss {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
