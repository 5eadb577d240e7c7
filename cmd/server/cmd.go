package main

import (
	"fmt"
	"strings"

	"github.com/jason-s-yu/musicquiz/internal/auth"
	"github.com/jason-s-yu/musicquiz/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "quizd",
		Short:   "Real-time multiplayer music trivia server.",
		Args:    cobra.ExactArgs(0),
		Version: releaseVersion,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Bind(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.PersistentFlags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	config.RegisterServerFlags(fs, cfg)
	config.RegisterStorageFlags(fs, cfg)

	cmd.AddCommand(newAdminTokenCmd(cfg))

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("quizd v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

// newAdminTokenCmd prints a bearer token for the /admin endpoints signed with --admin-secret.
func newAdminTokenCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "admin-token",
		Short: "Print a bearer token for the admin endpoints.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewIssuer(cfg.AdminSecret, cfg.AdminTokenTTL).CreateJWT(auth.AdminSubject)
			if err != nil {
				return fmt.Errorf("--admin-secret must be set: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
