package cli

import (
	"context"
	"errors"

	"github.com/preetsinghmakkar/MentorLink/internal/config"
	"github.com/preetsinghmakkar/MentorLink/internal/repositories"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return errors.New("migrate requires STORE_DRIVER=postgres")
	}

	ctx := context.Background()
	db, err := repositories.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repositories.Migrate(ctx, db); err != nil {
		return err
	}
	log.Info().Msg("schema is up to date")
	return nil
}
