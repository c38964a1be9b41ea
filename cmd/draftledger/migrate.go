// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"draftledger/internal/config"
	"draftledger/internal/database"
)

func runMigrate(_ *cobra.Command, _ []string) error {
	if appConfig.StoreBackend != config.StorePostgres {
		return fmt.Errorf("migrate needs STORE_BACKEND=%s", config.StorePostgres)
	}
	db, err := database.Connect(appConfig.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateStatus {
		return database.MigrationStatus(db)
	}
	return database.Migrate(db)
}
