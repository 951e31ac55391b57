// Package migrations embeds the SQL schema so the binary carries it.
package migrations

import (
	"embed"

	"github.com/nerrad567/homestate-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
