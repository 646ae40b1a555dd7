package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}
	// The pgx/v5 migrate driver expects a pgx5:// scheme.
	driverURL := databaseURL
	if strings.HasPrefix(driverURL, "postgres://") {
		driverURL = "pgx5://" + strings.TrimPrefix(driverURL, "postgres://")
	}

	source := strings.TrimSpace(os.Getenv("MIGRATIONS_PATH"))
	if source == "" {
		source = "file://db/migrations"
	}

	m, err := migrate.New(source, driverURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise migrations")
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			logger.Error().AnErr("source", sourceErr).AnErr("db", dbErr).Msg("close migration resources")
		}
	}()

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("apply migrations")
		}
		logger.Info().Msg("migrations applied")
	case "down":
		steps := 1
		if len(os.Args) > 2 {
			parsed, err := strconv.Atoi(os.Args[2])
			if err != nil || parsed <= 0 {
				logger.Fatal().Str("arg", os.Args[2]).Msg("down expects a positive step count")
			}
			steps = parsed
		}
		if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal().Err(err).Msg("revert migrations")
		}
		logger.Info().Int("steps", steps).Msg("migrations reverted")
	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			if errors.Is(err, migrate.ErrNilVersion) {
				logger.Info().Msg("no migrations applied yet")
				return
			}
			logger.Fatal().Err(err).Msg("read migration version")
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("migration state")
	case "force":
		if len(os.Args) < 3 {
			logger.Fatal().Msg("force expects a version")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			logger.Fatal().Str("arg", os.Args[2]).Msg("force expects a numeric version")
		}
		if err := m.Force(version); err != nil {
			logger.Fatal().Err(err).Msg("force migration version")
		}
		logger.Info().Int("version", version).Msg("migration version forced")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: migrate <up|down [n]|version|force <v>>")
}
