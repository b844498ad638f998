package main

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Vovarama1992/chat-relay/internal/chat"
	"github.com/Vovarama1992/chat-relay/internal/config"
)

func NewMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the conversation and message tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := chat.Migrate(cmd.Context(), db); err != nil {
				return errors.Wrap(err, "migrate")
			}
			log.Info("schema is up to date")
			return nil
		},
	}
}
