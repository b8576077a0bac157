package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/joaocarlostuc75/ciliosdeluxo/libs/config"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/db"
	"github.com/joaocarlostuc75/ciliosdeluxo/libs/runtime"
	"github.com/joaocarlostuc75/ciliosdeluxo/migrations"
)

const usage = `usage: migrate [-database-url URL] <command>

commands:
  up             apply all pending migrations
  down [N]       roll back N migrations (default 1)
  force V        set the version without running migrations
  version        print the current version
`

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Str("component", "migrate").Logger()

	if err := runtime.LoadDotEnv(); err != nil {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	databaseURL := flag.String("database-url", config.String("DATABASE_URL", ""), "postgres connection string")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	if *databaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is required")
	}
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := db.NewMigrator(*databaseURL, migrations.FS)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise migrator")
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if len(args) > 1 {
			steps, err = strconv.Atoi(args[1])
			if err != nil || steps <= 0 {
				logger.Fatal().Str("arg", args[1]).Msg("down expects a positive step count")
			}
		}
		err = m.Down(steps)
	case "force":
		if len(args) < 2 {
			logger.Fatal().Msg("force expects a version")
		}
		v, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			logger.Fatal().Err(convErr).Msg("invalid version")
		}
		err = m.Force(v)
	case "version":
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", args[0]).Msg("migration failed")
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to read version")
	}
	logger.Info().Uint("version", version).Bool("dirty", dirty).Str("command", args[0]).Msg("done")
}
