package main

import (
	"github.com/spf13/cobra"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/app"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create Postgres tables and Mongo indexes",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	settings, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), settings)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Migrate(cmd.Context()); err != nil {
		return err
	}
	a.Log.Info("migrations applied")
	return nil
}
