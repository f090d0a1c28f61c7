package config

import (
	"os"
	"path/filepath"
	"testing"

	"turtlcore/internal/store"
)

func TestLoadDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir(), "turtl")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataFolder != ":memory:" {
		t.Fatalf("DataFolder = %q", cfg.DataFolder)
	}
	if !cfg.Sync.EnableIncoming || !cfg.Sync.EnableOutgoing {
		t.Fatalf("Sync defaults not applied: %+v", cfg.Sync)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
data_folder: /tmp/turtl-data
api:
  endpoint: https://api.turtlapp.com/v2
loglevel: debug
sync:
  enable_incoming: true
  enable_outgoing: false
`
	if err := os.WriteFile(filepath.Join(dir, "turtl.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(dir, "turtl")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataFolder != "/tmp/turtl-data" {
		t.Fatalf("DataFolder = %q", cfg.DataFolder)
	}
	if cfg.API.Endpoint != "https://api.turtlapp.com/v2" {
		t.Fatalf("API.Endpoint = %q", cfg.API.Endpoint)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q", cfg.LogLevel)
	}
	if !cfg.Sync.EnableIncoming || cfg.Sync.EnableOutgoing {
		t.Fatalf("Sync = %+v", cfg.Sync)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "loglevel: info\n"
	if err := os.WriteFile(filepath.Join(dir, "turtl.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("TURTL_LOGLEVEL", "warn")

	cfg, err := Load(dir, "turtl")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want env override", cfg.LogLevel)
	}
}

func TestStoreSchemaMergesWithoutShadowingBase(t *testing.T) {
	cfg := Default()
	cfg.Schema = map[string][]indexDef{
		"notes": {{Name: "by_custom", Fields: []string{"custom_field"}}},
	}
	base := store.Schema{
		"notes": []store.IndexDef{{Name: "by_board", Fields: []string{"board_id"}}},
	}

	merged := cfg.StoreSchema(base)
	if len(merged["notes"]) != 2 {
		t.Fatalf("merged notes indexes = %+v", merged["notes"])
	}

	cfg.Schema["notes"] = append(cfg.Schema["notes"], indexDef{Name: "by_board", Fields: []string{"x"}})
	merged = cfg.StoreSchema(base)
	var byBoardCount int
	for _, d := range merged["notes"] {
		if d.Name == "by_board" {
			byBoardCount++
		}
	}
	if byBoardCount != 1 {
		t.Fatalf("by_board should not be duplicated/shadowed, got %d", byBoardCount)
	}
}
