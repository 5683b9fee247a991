package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/risk"
)

var (
	assessDescription string
	assessContext     string
	assessRiskConfig  string
)

func init() {
	rootCmd.AddCommand(assessCmd)
	assessCmd.Flags().StringVarP(&assessDescription, "description", "d", "", "What the operation is intended to accomplish")
	assessCmd.Flags().StringVarP(&assessContext, "context", "c", "", "Additional context for classification")
	assessCmd.Flags().StringVar(&assessRiskConfig, "risk-config", "", "Path to risk threshold YAML (default ~/.governor/risk.yaml)")
}

var assessCmd = &cobra.Command{
	Use:   "assess <operation>",
	Short: "Score a single operation and print the assessment",
	Long: "One-shot risk assessment without starting a server. Classifies the\n" +
		"operation by resource, action, and scope, scores it against the\n" +
		"configured thresholds, and prints the full assessment as JSON.",
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func runAssess(cmd *cobra.Command, args []string) error {
	cfg, err := risk.LoadConfig(assessRiskConfig)
	if err != nil {
		return err
	}

	assessment := risk.NewAssessor(cfg).Assess(args[0], assessDescription, assessContext)

	out, err := json.MarshalIndent(assessment.ToMap(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
