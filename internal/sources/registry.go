package sources

import (
	"database/sql"

	"modelhub/internal/aggregate"
	"modelhub/internal/catalog"
	"modelhub/internal/logging"
	"modelhub/pkg/utils"
)

func upstreamConfig(s utils.UpstreamSettings) UpstreamConfig {
	return UpstreamConfig{
		BaseURL:         s.BaseURL,
		Timeout:         s.Timeout,
		RateLimit:       s.RateLimit,
		Burst:           s.Burst,
		BreakerFailures: s.BreakerFailures,
		BreakerCooldown: s.BreakerCooldown,
	}
}

// Build creates the enabled adapters in their fixed registration order:
// thingiverse, printables, myminifactory, makerworld, local. The local
// catalog is skipped when db is nil.
func Build(cfg utils.SourcesConfig, db *sql.DB) []aggregate.Source {
	var out []aggregate.Source

	if c := cfg.Thingiverse; c.Transport.Enabled {
		out = append(out, NewThingiverse(c.Token, upstreamConfig(c.Transport)))
	}
	if c := cfg.Printables; c.Transport.Enabled {
		out = append(out, NewPrintables(upstreamConfig(c.Transport)))
	}
	if c := cfg.MyMiniFactory; c.Transport.Enabled {
		out = append(out, NewMyMiniFactory(MyMiniFactoryAuth{
			APIKey:       c.APIKey,
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     c.TokenURL,
		}, upstreamConfig(c.Transport)))
	}
	if c := cfg.MakerWorld; c.Transport.Enabled {
		out = append(out, NewMakerWorld(c.BuildIDTTL, upstreamConfig(c.Transport)))
	}
	if cfg.Local.Enabled && db != nil {
		out = append(out, catalog.NewSource(catalog.NewRepo(db)))
	}

	names := make([]string, 0, len(out))
	for _, s := range out {
		names = append(names, s.Name())
	}
	logging.Info().Strs("sources", names).Msg("sources registered")
	return out
}
