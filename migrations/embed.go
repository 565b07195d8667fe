// Package migrations embeds the run history schema into the binary.
//
// Importing the package registers the files with the database package, so
// fleetrunner can migrate without the SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/fleet-runner/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
