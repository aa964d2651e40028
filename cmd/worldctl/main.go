package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"voxelseed.ai/internal/persistence/chunkstore"
	"voxelseed.ai/internal/persistence/indexdb"
	persistlog "voxelseed.ai/internal/persistence/log"
	"voxelseed.ai/internal/persistence/settings"
	"voxelseed.ai/internal/sim/tuning"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

const defaultConfig = "./configs/worldgen.yaml"

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	logger := log.New(os.Stderr, "[worldctl] ", log.LstdFlags|log.Lmicroseconds)
	os.Exit(run(os.Args[1:], os.Stdout, logger))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: worldctl [-config path] [-save_root dir] <command> [flags]

commands:
  seed <value>   print the derived seed values and the first rng draws
  new            create world settings
  gen            generate and save a rectangle of chunks
  inspect        show settings, save usage and the region index
  region         list saved chunks in one region
  reset          delete every saved file of the world`)
}

func run(args []string, stdout io.Writer, logger *log.Logger) int {
	fset := flag.NewFlagSet("worldctl", flag.ContinueOnError)
	fset.SetOutput(stdout)
	var (
		configPath = fset.String("config", defaultConfig, "worldgen config path")
		saveRoot   = fset.String("save_root", "", "override save_root from the config")
	)
	fset.Usage = func() { usage(stdout) }
	if err := fset.Parse(args); err != nil {
		return 2
	}
	rest := fset.Args()
	if len(rest) == 0 {
		usage(stdout)
		return 2
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "seed" {
		return reportErr(logger, cmdSeed(cmdArgs, stdout))
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Printf("load config: %v", err)
		return 1
	}
	if s := strings.TrimSpace(*saveRoot); s != "" {
		cfg.SaveRoot = s
		if err := cfg.Validate(); err != nil {
			logger.Printf("config: %v", err)
			return 1
		}
	}

	a := &app{cfg: cfg, out: stdout, logger: logger}
	switch cmd {
	case "new":
		err = a.cmdNew(cmdArgs)
	case "gen":
		err = a.cmdGen(cmdArgs)
	case "inspect":
		err = a.cmdInspect(cmdArgs)
	case "region":
		err = a.cmdRegion(cmdArgs)
	case "reset":
		err = a.cmdReset(cmdArgs)
	default:
		logger.Printf("unknown command %q", cmd)
		usage(stdout)
		return 2
	}
	a.close()
	return reportErr(logger, err)
}

func reportErr(logger *log.Logger, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	logger.Printf("%v", err)
	return 1
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (tuning.Tuning, error) {
	if path == defaultConfig {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return tuning.Load("")
		}
	}
	return tuning.Load(path)
}

// app wires the stores for one command. The observed store is opened lazily
// because the index needs the world's region size.
type app struct {
	cfg    tuning.Tuning
	out    io.Writer
	logger *log.Logger

	cs       *chunkstore.Store
	settings *settings.Store
	idx      *indexdb.SQLiteIndex
	journal  *persistlog.Journal
}

// plainSettings reads settings without index or journal attached.
func (a *app) plainSettings() (*chunkstore.Store, *settings.Store) {
	cs := chunkstore.New(a.cfg.SaveRoot, chunkstore.WithLogger(a.logger))
	return cs, settings.New(cs, a.cfg.SettingsKey, a.logger)
}

func (a *app) open(size region.Size) error {
	level, err := a.cfg.ZstdLevel()
	if err != nil {
		return err
	}
	opts := []chunkstore.Option{
		chunkstore.WithLogger(a.logger),
		chunkstore.WithCompression(level),
		chunkstore.WithVerify(a.cfg.VerifyWrites),
	}
	if a.cfg.Index.Enabled {
		idx, err := indexdb.OpenSQLite(a.cfg.Index.Path, size, a.logger)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		a.idx = idx
		opts = append(opts, chunkstore.WithObserver(idx))
	}
	if a.cfg.Journal.Enabled {
		a.journal = persistlog.NewJournal(a.cfg.Journal.Dir, a.logger)
		opts = append(opts, chunkstore.WithObserver(a.journal))
	}
	a.cs = chunkstore.New(a.cfg.SaveRoot, opts...)
	a.settings = settings.New(a.cs, a.cfg.SettingsKey, a.logger)
	return nil
}

// openWorld opens the stores for an existing world.
func (a *app) openWorld() (settings.WorldSettings, error) {
	_, ss := a.plainSettings()
	ws, err := ss.Read()
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return ws, fmt.Errorf("no world under %s; run 'worldctl new' first", a.cfg.SaveRoot)
		}
		return ws, err
	}
	return ws, a.open(ws.RegionSize)
}

func (a *app) close() {
	if a.idx != nil {
		if err := a.idx.Close(); err != nil {
			a.logger.Printf("close index: %v", err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Printf("close journal: %v", err)
		}
	}
}

func removeIndex(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
