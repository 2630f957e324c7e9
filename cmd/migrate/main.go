package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/pflag"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-raffle/internal/config"
	"ms-raffle/internal/database/migrations"
	"ms-raffle/internal/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var dsn, dir string
	var up, down bool
	var steps int

	flagSet := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	flagSet.StringVar(&dsn, "dsn", "", "postgres connection string (default: built from DB_* variables)")
	flagSet.StringVar(&dir, "dir", "", "migrations directory (default: DB_MIGRATIONS_DIR)")
	flagSet.BoolVar(&up, "up", false, "apply all pending migrations")
	flagSet.BoolVar(&down, "down", false, "roll back all migrations")
	flagSet.IntVarP(&steps, "steps", "n", 0, "apply n migrations, negative rolls back")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	selected := 0
	for _, set := range []bool{up, down, steps != 0} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		return fmt.Errorf("exactly one of --up, --down or --steps is required")
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dsn == "" {
		dsn = cfg.Database.DSN()
	}
	if dir == "" {
		dir = cfg.Database.MigrationDir
	}

	log := logger.NewWithWriter("migrate", os.Stdout)

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	runner := migrations.NewRunner(bun.NewDB(sqldb, pgdialect.New()), migrations.Options{Dir: dir}, log)
	defer runner.Close()

	switch {
	case up:
		return runner.MigrateUp()
	case down:
		return runner.MigrateDown()
	default:
		return runner.Steps(steps)
	}
}
