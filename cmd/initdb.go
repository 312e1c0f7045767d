/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/SunSc05/siyuantao-backend-sub001/config"
	"github.com/SunSc05/siyuantao-backend-sub001/internal/provision"
	"github.com/spf13/cobra"
)

var (
	initdbDBName          string
	initdbDropExisting    bool
	initdbContinueOnError bool
	initdbSchemaDir       string
)

// initdbCmd represents the initdb command.
var initdbCmd = &cobra.Command{
	Use:   "initdb",
	Short: "Provision the database: schema, procedures, triggers, seed accounts",
	Long: `Provision the database for the user subsystem.

Ensures the target database exists, checks role privileges, deploys tables,
stored procedures and triggers from the schema directory, and seeds the
fixed admin accounts. Every step is idempotent, so the command is safe to
re-run after a partial failure.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}

		orch := provision.New(cfg.Database, provision.Options{
			DBName:          initdbDBName,
			DropExisting:    initdbDropExisting,
			ContinueOnError: initdbContinueOnError,
			SchemaDir:       initdbSchemaDir,
		}, log)

		if err := orch.Run(cmd.Context()); err != nil {
			log.Error("provisioning failed", "error", err)
			os.Exit(1)
		}
		log.Info("provisioning complete")
	},
}

func init() {
	rootCmd.AddCommand(initdbCmd)

	initdbCmd.Flags().StringVar(&initdbDBName, "db-name", "", "target database name (overrides DB_NAME)")
	initdbCmd.Flags().BoolVar(&initdbDropExisting, "drop-existing", false, "drop and recreate the target database first")
	initdbCmd.Flags().BoolVar(&initdbContinueOnError, "continue-on-error", false, "log and skip failed schema batches instead of aborting")
	initdbCmd.Flags().StringVar(&initdbSchemaDir, "schema-dir", "sql", "directory holding tables/, procedures/ and triggers/")
}
