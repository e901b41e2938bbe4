package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/guidepath/guidepath/pkg/bootstrap"
	"github.com/guidepath/guidepath/pkg/composer"
)

var composeVars []string

var composeCmd = &cobra.Command{
	Use:   "compose <workflow-id> <customer-id>",
	Short: "Compose a workflow for a customer and print the slides as JSON",
	Long: `Compose resolves the workflow definition from the definitions directory or the store,
hydrates it against the customer's current data and prints the result.

Example:
  guidepathctl compose renewal-prep 6f1c2a5e-3b7d-4c1a-9e2f-0a1b2c3d4e5f --var quarter=Q3
`,
	Args: cobra.ExactArgs(2),
	RunE: runCompose,
}

func init() {
	composeCmd.Flags().StringArrayVar(&composeVars, "var", nil, "Template variable as key=value (repeatable)")
}

func runCompose(cmd *cobra.Command, args []string) error {
	customerID, err := uuid.Parse(args[1])
	if err != nil {
		return fmt.Errorf("invalid customer id: %w", err)
	}
	vars := make(map[string]interface{}, len(composeVars))
	for _, kv := range composeVars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return fmt.Errorf("invalid --var %q, want key=value", kv)
		}
		vars[key] = value
	}

	st, err := bootstrap.OpenStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	files, err := bootstrap.LoadDefinitionFiles(cfg.Workflow, logger)
	if err != nil {
		return err
	}
	composition, err := bootstrap.NewComposer(files, st, logger).Compose(cmd.Context(), composer.ComposeInput{
		WorkflowID: args[0],
		CustomerID: customerID,
		Variables:  vars,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(composition)
}
