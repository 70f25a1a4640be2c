package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/metagame/metagame/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	dbConfig := dbconfig.NewConfigFromEnv()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	database, err := dbConfig.Open(ctx)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")
	return database, nil
}
