package main

import (
	"database/sql"
	"flag"
	"os"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/loanflow-server/loanflow-server/internal/config"
)

func main() {
	var configFile, schemaFile string
	flag.StringVar(&configFile, "config", "config/loanflow-server.yml", "Configuration file path")
	flag.StringVar(&schemaFile, "schema", "migrations/schema.sql", "Schema file path")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	schema, err := os.ReadFile(schemaFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", schemaFile).Msg("Failed to read schema")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}

	if _, err := db.Exec(string(schema)); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	log.Info().Str("file", schemaFile).Msg("Schema applied")
}
