package app

import (
	"path/filepath"
	"testing"

	"modelhub/pkg/utils"
)

func TestNewWithLocalCatalogOnly(t *testing.T) {
	cfg := utils.DefaultConfig()
	cfg.Logging.Level = "disabled"
	cfg.Database.Path = filepath.Join(t.TempDir(), "catalog.db")
	cfg.Sources.Thingiverse.Transport.Enabled = false
	cfg.Sources.Printables.Transport.Enabled = false
	cfg.Sources.MyMiniFactory.Transport.Enabled = false
	cfg.Sources.MakerWorld.Transport.Enabled = false

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.DB == nil {
		t.Fatal("catalog database not opened")
	}
	names := a.Agg.SourceNames()
	if len(names) != 1 || names[0] != "local" {
		t.Fatalf("sources = %v", names)
	}
}

func TestNewWithoutCatalog(t *testing.T) {
	cfg := utils.DefaultConfig()
	cfg.Logging.Level = "disabled"
	cfg.Sources.Local.Enabled = false

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.DB != nil || a.Close() != nil {
		t.Fatal("expected no database")
	}
	if len(a.Agg.SourceNames()) != 4 {
		t.Fatalf("sources = %v", a.Agg.SourceNames())
	}
}
