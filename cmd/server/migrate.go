package main

import (
	"github.com/spf13/cobra"

	"github.com/raffchen/inventory/internal/db"
)

var downSteps int

var (
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
	}
	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.MigrateUp(cfg.Database)
		},
	}
	migrateDownCmd = &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.MigrateDown(cfg.Database, downSteps)
		},
	}
)

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}
