package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guidepath/guidepath/pkg/auth"
)

var (
	tokenName  string
	tokenRoles []string
)

var tokenCmd = &cobra.Command{
	Use:   "token <actor-id>",
	Short: "Issue an actor token signed with auth.jwt_secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not set")
		}
		token, err := auth.NewTokenManager(cfg.Auth).Generate(args[0], tokenName, tokenRoles...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Display name carried in the token")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", nil, "Role granted to the actor (repeatable)")
}
