// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"draftledger/internal/config"
)

// appConfig is loaded once by the root command before any subcommand runs.
var appConfig *config.Config

var (
	serveProvider string
	migrateStatus bool
	policiesJSON  bool
	revisionsJSON bool
)

var (
	rootCmd = &cobra.Command{
		Use:          "draftledger",
		Short:        "Versioned blog drafts with policy-scoped edits",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			appConfig = cfg
			setupLogger(os.Stdout, cfg.Env)
			return nil
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe, // serve.go
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrate, // migrate.go
	}

	policiesCmd = &cobra.Command{
		Use:   "policies",
		Short: "List the named policies loaded from POLICY_FILE",
		Args:  cobra.NoArgs,
		RunE:  runPolicies, // policies.go
	}

	revisionsCmd = &cobra.Command{
		Use:   "revisions <post-id>",
		Short: "Print a post's revision ledger",
		Args:  cobra.ExactArgs(1),
		RunE:  runRevisions, // revisions.go
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "generation provider to use, overriding AI_PROVIDER")
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print migration status instead of migrating")
	policiesCmd.Flags().BoolVar(&policiesJSON, "json", false, "output as JSON")
	revisionsCmd.Flags().BoolVar(&revisionsJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(serveCmd, migrateCmd, policiesCmd, revisionsCmd)
}
