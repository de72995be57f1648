package scoremigrations

import "github.com/uptrace/bun/migrate"

// Migrations depend on the entry module's events and entries tables.
var Migrations = migrate.NewMigrations()

func init() {
	if err := Migrations.DiscoverCaller(); err != nil {
		panic(err)
	}
}
