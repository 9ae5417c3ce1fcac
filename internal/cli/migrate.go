package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/streamkeeper/internal/infra/storage/sqlstore"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply archive database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Database.URL == "" {
			return errors.New("database.url is not configured")
		}

		ctx := context.Background()
		db, err := sqlstore.NewDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			_ = db.Close()
		}()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		slog.Info("Archive database is up to date", "driver", cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
