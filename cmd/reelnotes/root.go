package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/reelnotes/backend/internal/app"
	"github.com/reelnotes/backend/internal/config"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	loadConfig := func() (config.Config, error) {
		path := configFlag
		if path == "" {
			path = os.Getenv("REELNOTES_CONFIG_PATH")
		}
		return config.LoadFrom(path)
	}

	rootCmd := &cobra.Command{
		Use:           "reelnotes",
		Short:         "ReelNotes video feedback backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (overrides REELNOTES_CONFIG_PATH)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.Serve(cmd.Context(), cfg)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}
			return app.Migrate(cmd.Context(), cfg, command, cmd.OutOrStdout())
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed <name>",
		Short: "Load a seed file such as dev",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return app.Seed(cmd.Context(), cfg, args[0], cmd.OutOrStdout())
		},
	})

	return rootCmd
}
