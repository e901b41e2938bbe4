package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/logging"
)

var (
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "guidepathctl",
	Short: "Administer guidepath workflows",
	Long: `guidepathctl runs schema migrations, validates workflow definition files, composes
workflows against live customer data and issues actor tokens.

Configuration is read from config.yaml and GUIDEPATH_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.Logging)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(definitionsCmd)
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(tokenCmd)
}
