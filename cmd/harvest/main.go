package main

import (
	"context"
	"flag"
	"time"

	"modelhub/internal/app"
	"modelhub/internal/catalog"
	"modelhub/internal/logging"
	"modelhub/pkg/utils"
)

func main() {
	var (
		pages    = flag.Int("pages", 3, "trending pages to pull per source")
		pageSize = flag.Int("size", 20, "listings per page")
		timeout  = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Parse()

	cfg, err := utils.LoadConfig()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	cfg.Sources.Local.Enabled = true

	a, err := app.New(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("bootstrap")
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	listings := catalog.NewHarvester(a.Agg.Sources(), *pages, *pageSize).FetchAll(ctx)
	if err := catalog.NewRepo(a.DB).Upsert(ctx, listings); err != nil {
		logging.Fatal().Err(err).Msg("save failed")
	}
	logging.Info().Int("listings", len(listings)).Msg("catalog populated")
}
