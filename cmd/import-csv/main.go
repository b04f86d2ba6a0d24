package main

import (
	"context"
	"flag"
	"os"
	"time"

	"modelhub/internal/catalog"
	"modelhub/internal/logging"
	"modelhub/pkg/database"
)

func main() {
	var (
		in     = flag.String("in", "data/listings.csv", "input CSV path")
		dbPath = flag.String("db", "", "catalog database path (default ~/.modelhub/catalog.db)")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(database.Config{Path: *dbPath})
	if err != nil {
		logging.Fatal().Err(err).Msg("open catalog")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logging.Fatal().Err(err).Msg("db migrate failed")
	}

	f, err := os.Open(*in)
	if err != nil {
		logging.Fatal().Err(err).Msg("open input")
	}
	defer f.Close()

	listings, err := catalog.ReadCSV(f)
	if err != nil {
		logging.Fatal().Err(err).Str("file", *in).Msg("parse csv")
	}
	if err := catalog.NewRepo(db).Upsert(ctx, listings); err != nil {
		logging.Fatal().Err(err).Msg("import failed")
	}

	logging.Info().Int("listings", len(listings)).Str("file", *in).Msg("imported catalog")
}
