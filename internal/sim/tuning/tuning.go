// Package tuning loads the worldgen configuration: a YAML file checked
// against an embedded JSON schema, then VOXELSEED_* environment overrides.
package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/klauspost/compress/zstd"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

const EnvPrefix = "VOXELSEED_"

type Tuning struct {
	WorldID      string `yaml:"world_id" env:"WORLD_ID"`
	SaveRoot     string `yaml:"save_root" env:"SAVE_ROOT"`
	SettingsKey  string `yaml:"settings_key" env:"SETTINGS_KEY"`
	RegionSize   int    `yaml:"region_size" env:"REGION_SIZE"`
	Mode         string `yaml:"mode" env:"MODE"`
	Compression  string `yaml:"compression" env:"COMPRESSION"`
	VerifyWrites bool   `yaml:"verify_writes" env:"VERIFY_WRITES"`
	Workers      int    `yaml:"workers" env:"WORKERS"`

	Index   IndexConfig   `yaml:"index" envPrefix:"INDEX_"`
	Journal JournalConfig `yaml:"journal" envPrefix:"JOURNAL_"`
}

type IndexConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Dir     string `yaml:"dir" env:"DIR"`
}

//go:embed worldgen.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("worldgen.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

func Defaults() Tuning {
	return Tuning{
		WorldID:     "world_1",
		RegionSize:  int(region.DefaultSize),
		Mode:        string(gen.ModeDefault),
		Compression: "default",
		Workers:     runtime.GOMAXPROCS(0),
		Index:       IndexConfig{Enabled: true},
		Journal:     JournalConfig{Enabled: false},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return t, err
		}
		if err := ValidateDocument(raw); err != nil {
			return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return t, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := env.ParseWithOptions(&t, env.Options{Prefix: EnvPrefix}); err != nil {
		return t, fmt.Errorf("parse env: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// ValidateDocument checks a raw YAML document against the embedded schema.
func ValidateDocument(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// Round-trip through JSON so the validator sees JSON types.
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	return s.Validate(v)
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.WorldID = strings.TrimSpace(t.WorldID)
	t.Mode = strings.ToLower(strings.TrimSpace(t.Mode))
	t.Compression = strings.ToLower(strings.TrimSpace(t.Compression))
	t.SettingsKey = strings.TrimSpace(t.SettingsKey)
	if t.SettingsKey == "" {
		t.SettingsKey = "world"
	}
	if t.Mode == "" {
		t.Mode = string(gen.ModeDefault)
	}
	if t.Compression == "" {
		t.Compression = "default"
	}
	if t.RegionSize == 0 {
		t.RegionSize = int(region.DefaultSize)
	}
	if t.Workers <= 0 {
		t.Workers = 1
	}
	if strings.TrimSpace(t.SaveRoot) == "" {
		t.SaveRoot = filepath.Join("data", "worlds", t.WorldID)
	}
	if strings.TrimSpace(t.Index.Path) == "" {
		t.Index.Path = filepath.Join("data", "index", t.WorldID+".sqlite")
	}
	if strings.TrimSpace(t.Journal.Dir) == "" {
		t.Journal.Dir = filepath.Join("data", "journal", t.WorldID)
	}
}

func (t Tuning) Validate() error {
	if t.WorldID == "" {
		return fmt.Errorf("world_id must not be empty")
	}
	if _, err := region.ParseSize(t.RegionSize); err != nil {
		return err
	}
	if _, err := gen.ParseMode(t.Mode); err != nil {
		return err
	}
	if _, err := t.ZstdLevel(); err != nil {
		return err
	}
	if t.Workers < 1 {
		return fmt.Errorf("workers must be >= 1")
	}
	if strings.ContainsAny(t.SettingsKey, `/\`) || t.SettingsKey == "." || t.SettingsKey == ".." {
		return fmt.Errorf("settings_key %q must be a plain file name", t.SettingsKey)
	}
	root, err := filepath.Abs(t.SaveRoot)
	if err != nil {
		return fmt.Errorf("save_root: %w", err)
	}
	if t.Index.Enabled && within(root, t.Index.Path) {
		return fmt.Errorf("index.path %q must live outside save_root", t.Index.Path)
	}
	if t.Journal.Enabled && within(root, t.Journal.Dir) {
		return fmt.Errorf("journal.dir %q must live outside save_root", t.Journal.Dir)
	}
	return nil
}

func within(root, p string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (t Tuning) ZstdLevel() (zstd.EncoderLevel, error) {
	ok, lvl := zstd.EncoderLevelFromString(t.Compression)
	if !ok {
		return 0, fmt.Errorf("unknown compression %q", t.Compression)
	}
	return lvl, nil
}

func (t Tuning) Region() region.Size { return region.Size(t.RegionSize) }

func (t Tuning) GenMode() gen.Mode { return gen.Mode(t.Mode) }
