package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fullstackauth/fsauth/internal/cli/commands"
)

var version = "dev" // Will be set during build

// NewRootCmd builds the fsauth command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fsauth",
		Short: "fsauth - sign in to a full-stack auth backend",
		Long: `fsauth is a terminal client for the authentication service.

It keeps one session per backend, shares sign-in and sign-out with other
fsauth processes on this machine, and walks you through verification,
password reset and code-confirmed account changes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fsauth version %s\n", version)
		},
	})

	rootCmd.AddCommand(commands.NewLoginCmd())
	rootCmd.AddCommand(commands.NewLogoutCmd())
	rootCmd.AddCommand(commands.NewRegisterCmd())
	rootCmd.AddCommand(commands.NewVerifyCmd())
	rootCmd.AddCommand(commands.NewResendVerificationCmd())
	rootCmd.AddCommand(commands.NewPasswordCmd())
	rootCmd.AddCommand(commands.NewEmailCmd())
	rootCmd.AddCommand(commands.NewProfileCmd())
	rootCmd.AddCommand(commands.NewOAuthCmd())
	rootCmd.AddCommand(commands.NewStatusCmd())
	rootCmd.AddCommand(commands.NewWatchCmd())

	return rootCmd
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
