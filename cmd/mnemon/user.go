package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemonlabs/mnemon/internal/config"
	"github.com/mnemonlabs/mnemon/store/sqlite"
)

func createUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-user",
		Short: "Register a user and mint an API token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store := sqlite.New(cfg.MetadataStorage.Path)
			defer store.Close()
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			metadata := sqlite.NewMetadataStore(store.DB())

			userID, err := metadata.CreateUser(cmd.Context())
			if err != nil {
				return err
			}
			token, err := metadata.CreateToken(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Printf("user:  %s\ntoken: %s\n", userID, token)
			return nil
		},
	}
}
