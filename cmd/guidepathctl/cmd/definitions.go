package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/guidepath/guidepath/pkg/composer"
)

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Work with workflow definition files",
}

var validateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Check every definition in a directory against the built-in stages",
	Long: `Validate loads every *.yaml and *.yml file in the directory and checks that each stage
exists, that merged stage config satisfies the stage schema and that every condition compiles.

Example:
  guidepathctl definitions validate ./definitions
`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

var listCmd = &cobra.Command{
	Use:   "list [dir]",
	Short: "List the definitions in a directory with their stages",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the built-in stage ids definitions may reference",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		for _, id := range composer.NewDefaultStageRegistry().IDs() {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
	},
}

func init() {
	definitionsCmd.AddCommand(validateCmd)
	definitionsCmd.AddCommand(listCmd)
	definitionsCmd.AddCommand(stagesCmd)
}

func definitionsDir(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return cfg.Workflow.DefinitionsDir
}

func runList(cmd *cobra.Command, args []string) error {
	registry := composer.NewDefinitionRegistry()
	if _, err := registry.LoadDir(definitionsDir(args)); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, def := range registry.List() {
		stages := make([]string, 0, len(def.Stages))
		for _, ref := range def.Stages {
			stages = append(stages, ref.Stage)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", def.ID, def.Name, strings.Join(stages, ","))
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	paths, err := composer.DefinitionFiles(definitionsDir(args))
	if err != nil {
		return err
	}

	comp := composer.New(composer.NewDefaultStageRegistry(), composer.NewDefinitionRegistry(), nil, logger)
	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range paths {
		def, err := composer.ReadDefinitionFile(path)
		if err == nil {
			err = comp.ValidateDefinition(def)
		}
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "ok   %s (%s, %d stages)\n", path, def.ID, len(def.Stages))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, len(paths))
	}
	return nil
}
