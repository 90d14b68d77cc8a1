package main

import (
	"github.com/campushq/backend/storage/database"
)

var migrateRunFunc = database.RunMigrationCommand // mockable

func (cli *commandLine) migrate(command string, args ...string) error {
	return migrateRunFunc(cli.db, command, args...)
}
