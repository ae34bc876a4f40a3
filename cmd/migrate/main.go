package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-blindbox/internal/config"
	"ms-blindbox/internal/database/migrations"
)

// Standalone migration tool: applies the schema, optionally the catalog
// seed data, or rolls everything back.
func main() {
	var (
		dir  = flag.String("dir", "./migrations", "migrations directory")
		seed = flag.Bool("seed", false, "apply catalog seed data as well")
		down = flag.Bool("down", false, "roll back all migrations")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.PingContext(context.Background()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: *dir,
		AutoMigrate:   true,
		SeedData:      *seed,
	})
	defer runner.Close()

	switch {
	case *down:
		if err := runner.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		log.Println("Rolled back all migrations.")
	case *seed:
		if err := runner.MigrateUp(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Applied schema and seed migrations.")
	default:
		if err := runner.RunMigrations(); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Applied schema migrations.")
	}
}
