package main

import (
	"github.com/spf13/cobra"

	"collabscout/internal/store"
)

// DBMigrateResult is db:migrate's line-delimited JSON output. store.Open
// runs every pending migration internally, so this verb is just confirming
// the database is at the latest schema version.
type DBMigrateResult struct {
	DBPath  string `json:"db_path"`
	Migrated bool  `json:"migrated"`
}

var dbMigrateCmd = &cobra.Command{
	Use:   "db:migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(app.cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()
		return emitJSON(DBMigrateResult{DBPath: app.cfg.DBPath, Migrated: true})
	},
}

// DBVacuumResult is db:vacuum's line-delimited JSON output.
type DBVacuumResult struct {
	DBPath   string `json:"db_path"`
	Vacuumed bool   `json:"vacuumed"`
}

var dbVacuumCmd = &cobra.Command{
	Use:   "db:vacuum",
	Short: "Reclaim space in the SQLite file",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := requireStore(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := cmdContext(cmd)
		defer cancel()

		if err := st.Vacuum(ctx); err != nil {
			return err
		}
		return emitJSON(DBVacuumResult{DBPath: app.cfg.DBPath, Vacuumed: true})
	},
}
