package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "worldgen.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region() != region.DefaultSize || cfg.GenMode() != gen.ModeDefault {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.SettingsKey != "world" {
		t.Fatalf("settings_key: got %q", cfg.SettingsKey)
	}
	if cfg.SaveRoot != filepath.Join("data", "worlds", "world_1") {
		t.Fatalf("save_root: got %q", cfg.SaveRoot)
	}
	if lvl, err := cfg.ZstdLevel(); err != nil || lvl != zstd.SpeedDefault {
		t.Fatalf("zstd level: %v %v", lvl, err)
	}
}

func TestLoad_File(t *testing.T) {
	p := writeConfig(t, `
world_id: test_world
save_root: /tmp/vs/save
region_size: 8
mode: flat
compression: best
verify_writes: true
workers: 3
index:
  enabled: true
  path: /tmp/vs/index.sqlite
journal:
  enabled: true
  dir: /tmp/vs/journal
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorldID != "test_world" || cfg.Region() != region.Size8 || cfg.GenMode() != gen.ModeFlat {
		t.Fatalf("got %+v", cfg)
	}
	if !cfg.VerifyWrites || cfg.Workers != 3 || !cfg.Journal.Enabled {
		t.Fatalf("got %+v", cfg)
	}
	if lvl, _ := cfg.ZstdLevel(); lvl != zstd.SpeedBestCompression {
		t.Fatalf("zstd level: %v", lvl)
	}
}

func TestLoad_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"region size": "region_size: 12\n",
		"unknown key": "tick_rate_hz: 5\n",
		"bad mode":    "mode: caves\n",
		"workers":     "workers: 0\n",
		"nested key":  "index:\n  url: x\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected schema error", name)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VOXELSEED_SAVE_ROOT", filepath.Join(dir, "save"))
	t.Setenv("VOXELSEED_INDEX_PATH", filepath.Join(dir, "idx.sqlite"))
	t.Setenv("VOXELSEED_REGION_SIZE", "8")
	t.Setenv("VOXELSEED_JOURNAL_ENABLED", "true")

	cfg, err := Load(writeConfig(t, "region_size: 16\nsave_root: elsewhere\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SaveRoot != filepath.Join(dir, "save") {
		t.Fatalf("save_root: got %q", cfg.SaveRoot)
	}
	if cfg.Index.Path != filepath.Join(dir, "idx.sqlite") {
		t.Fatalf("index.path: got %q", cfg.Index.Path)
	}
	if cfg.Region() != region.Size8 || !cfg.Journal.Enabled {
		t.Fatalf("got %+v", cfg)
	}
}

func TestValidate_IndexInsideSaveRoot(t *testing.T) {
	cfg := Defaults()
	cfg.SaveRoot = filepath.Join(t.TempDir(), "save")
	cfg.Index.Path = filepath.Join(cfg.SaveRoot, "index.sqlite")
	cfg.Normalize()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "outside save_root") {
		t.Fatalf("got %v", err)
	}

	cfg.Index.Path = cfg.SaveRoot + "-index.sqlite"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sibling path should be allowed: %v", err)
	}
}

func TestValidate_SettingsKey(t *testing.T) {
	cfg := Defaults()
	cfg.SettingsKey = "../world"
	cfg.Normalize()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for path-like settings_key")
	}
}
