package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"modelhub/internal/catalog"
	"modelhub/internal/logging"
	"modelhub/pkg/database"
)

func main() {
	var (
		out    = flag.String("out", "data/listings.csv", "output CSV path")
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

	listings, err := catalog.NewRepo(db).All(ctx)
	if err != nil {
		logging.Fatal().Err(err).Msg("read catalog")
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		logging.Fatal().Err(err).Msg("create output dir")
	}
	f, err := os.Create(*out)
	if err != nil {
		logging.Fatal().Err(err).Msg("create output")
	}
	defer f.Close()

	if err := catalog.WriteCSV(f, listings); err != nil {
		logging.Fatal().Err(err).Msg("export failed")
	}
	logging.Info().Int("listings", len(listings)).Str("file", *out).Msg("exported catalog")
}
