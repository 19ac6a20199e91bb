package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/joho/godotenv"

	"draw2story/internal/infra"
	"draw2story/migrations"
)

const usage = `usage: migrate [-steps n] [-force version] up|down|version`

func main() {
	var (
		stepsFlag int
		forceFlag int
	)
	flag.IntVar(&stepsFlag, "steps", 0, "number of migrations to apply (up) or revert (down); 0 means all for up and one for down")
	flag.IntVar(&forceFlag, "force", -1, "mark the schema as this version without running migrations")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	logger := infra.NewLogger("cli").With().Str("cmd", "migrate").Logger()

	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		exitWithError(fmt.Errorf("failed to open embedded migrations: %w", err))
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to initialize migrations: %w", err))
	}
	defer m.Close()

	if forceFlag >= 0 {
		if err := m.Force(forceFlag); err != nil {
			exitWithError(fmt.Errorf("failed to force version %d: %w", forceFlag, err))
		}
		logger.Info().Int("version", forceFlag).Msg("schema version forced")
		return
	}

	switch command := flag.Arg(0); command {
	case "up":
		if stepsFlag > 0 {
			err = m.Steps(stepsFlag)
		} else {
			err = m.Up()
		}
	case "down":
		steps := stepsFlag
		if steps <= 0 {
			steps = 1
		}
		err = m.Steps(-steps)
	case "version", "":
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		exitWithError(fmt.Errorf("migration failed: %w", err))
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info().Msg("no migrations applied")
	case err != nil:
		exitWithError(fmt.Errorf("failed to read schema version: %w", err))
	default:
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
