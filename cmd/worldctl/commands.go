package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"voxelseed.ai/internal/persistence/record"
	"voxelseed.ai/internal/persistence/settings"
	"voxelseed.ai/internal/sim/world/rng"
	"voxelseed.ai/internal/sim/world/seed"
	"voxelseed.ai/internal/sim/world/terrain/gen"
	"voxelseed.ai/internal/sim/world/terrain/region"
	"voxelseed.ai/internal/sim/world/terrain/store"
)

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func cmdSeed(args []string, out io.Writer) error {
	fs := newFlagSet("seed", out)
	n := fs.Int("n", 5, "number of unit floats to print")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("seed: want exactly one value, got %d", fs.NArg())
	}
	s := seed.Parse(fs.Arg(0))
	fmt.Fprintf(out, "name  %q\nint   %d\nlong  %d\n", s.Name, s.Int, s.Long)
	r := rng.New(s)
	for i := 0; i < *n; i++ {
		fmt.Fprintf(out, "%d     %s\n", i, strconv.FormatFloat(r.NextUnitFloat(), 'g', -1, 64))
	}
	return nil
}

func (a *app) cmdNew(args []string) error {
	fs := newFlagSet("new", a.out)
	var (
		seedValue = fs.String("seed", "", "world seed (any string; integers are canonicalised)")
		modeFlag  = fs.String("mode", a.cfg.Mode, "generation mode: default|flat")
		sizeFlag  = fs.Int("region", a.cfg.RegionSize, "region size in chunks: 8|16")
		force     = fs.Bool("force", false, "replace an existing world and delete its saves")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *seedValue == "" {
		return errors.New("new: -seed is required")
	}
	mode, err := gen.ParseMode(*modeFlag)
	if err != nil {
		return err
	}
	size, err := region.ParseSize(*sizeFlag)
	if err != nil {
		return err
	}

	plain, ss := a.plainSettings()
	old, exists := ss.Load()
	keys, err := plain.Keys()
	if err != nil {
		return err
	}
	if exists || len(keys) > 0 {
		if !*force {
			if exists {
				return fmt.Errorf("new: world %s already exists (seed %q); use -force to replace it", old.WorldID, old.Seed.Name)
			}
			return fmt.Errorf("new: %s holds %d saved files but no world settings; use -force to clear it", a.cfg.SaveRoot, len(keys))
		}
		if err := plain.DeleteAll(); err != nil {
			return fmt.Errorf("new: clear old world: %w", err)
		}
		if exists {
			a.logger.Printf("replaced world %s", old.WorldID)
		}
	}
	// A new world starts with an empty index, possibly of another region size.
	if a.cfg.Index.Enabled {
		if err := removeIndex(a.cfg.Index.Path); err != nil {
			return fmt.Errorf("new: clear old index: %w", err)
		}
	}

	if err := a.open(size); err != nil {
		return err
	}
	ws, err := a.settings.Replace(*seedValue, mode, size)
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}
	fmt.Fprintf(a.out, "created world %s\n", ws.WorldID)
	printSettings(a.out, ws)
	return nil
}

func printSettings(out io.Writer, ws settings.WorldSettings) {
	fmt.Fprintf(out, "seed    %s\nmode    %s\nregion  %d\ncreated %s\n",
		ws.Seed, ws.Mode, int(ws.RegionSize), ws.CreatedAt.Format("2006-01-02 15:04:05 MST"))
}

func (a *app) cmdGen(args []string) error {
	fs := newFlagSet("gen", a.out)
	var (
		x0        = fs.Int("x0", 0, "first chunk x")
		y0        = fs.Int("y0", 0, "first chunk y")
		x1        = fs.Int("x1", 0, "last chunk x (inclusive)")
		y1        = fs.Int("y1", 0, "last chunk y (inclusive)")
		overwrite = fs.Bool("overwrite", false, "regenerate chunks that already have saved data")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *x1 < *x0 || *y1 < *y0 {
		return fmt.Errorf("gen: empty rectangle (%d,%d)..(%d,%d)", *x0, *y0, *x1, *y1)
	}
	ws, err := a.openWorld()
	if err != nil {
		return err
	}
	params := ws.GenParams()

	var (
		mu        sync.Mutex
		perRegion = map[region.RegionCoord]int{}
		generated atomic.Int64
		skipped   atomic.Int64
	)
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(a.cfg.Workers)
	for y := *y0; y <= *y1; y++ {
		for x := *x0; x <= *x1; x++ {
			c := region.ChunkCoord{X: x, Y: y}
			g.Go(func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if !*overwrite {
					if rec, err := a.cs.Read(record.ChunkKey(c)); err == nil && !rec.IsEmpty() {
						skipped.Add(1)
						return nil
					}
				}
				if err := store.GenerateAndSave(a.cs, params, c); err != nil {
					return err
				}
				generated.Add(1)
				mu.Lock()
				perRegion[params.RegionSize.RegionOf(c)]++
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("gen: %w", err)
	}

	regions := make([]region.RegionCoord, 0, len(perRegion))
	for r := range perRegion {
		regions = append(regions, r)
	}
	sortRegions(regions)
	for _, r := range regions {
		fmt.Fprintf(a.out, "%-10s %s chunks\n", r, humanize.Comma(int64(perRegion[r])))
	}
	fmt.Fprintf(a.out, "generated %s, skipped %s\n", humanize.Comma(generated.Load()), humanize.Comma(skipped.Load()))
	return nil
}

func sortRegions(rs []region.RegionCoord) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].X != rs[j].X {
			return rs[i].X < rs[j].X
		}
		return rs[i].Y < rs[j].Y
	})
}

func (a *app) cmdInspect(args []string) error {
	fs := newFlagSet("inspect", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ws, err := a.openWorld()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "world   %s\nroot    %s\n", ws.WorldID, absPath(a.cs.Root()))
	printSettings(a.out, ws)

	keys, err := a.cs.Keys()
	if err != nil {
		return err
	}
	chunks := 0
	for _, k := range keys {
		if k.IsChunk() {
			chunks++
		}
	}
	files, bytes, err := a.cs.Usage()
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "chunks  %s\nnamed   %s\ndisk    %s in %s files\n",
		humanize.Comma(int64(chunks)), humanize.Comma(int64(len(keys)-chunks)),
		humanize.Bytes(uint64(bytes)), humanize.Comma(int64(files)))

	if a.idx == nil {
		fmt.Fprintln(a.out, "index   disabled")
		return nil
	}
	regs, err := a.idx.Regions(context.Background())
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	fmt.Fprintf(a.out, "index   %d regions\n", len(regs))
	for _, r := range regs {
		fmt.Fprintf(a.out, "  %-10s %4d chunks %10s\n", r.Region, r.Chunks, humanize.Bytes(uint64(r.Bytes)))
	}
	if st := a.idx.Stats(); st.DropTotal > 0 {
		fmt.Fprintf(a.out, "index dropped %d events; it may be incomplete\n", st.DropTotal)
	}
	return nil
}

func (a *app) cmdRegion(args []string) error {
	fs := newFlagSet("region", a.out)
	var (
		rx = fs.Int("x", 0, "region x")
		ry = fs.Int("y", 0, "region y")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	ws, err := a.openWorld()
	if err != nil {
		return err
	}
	r := region.RegionCoord{X: *rx, Y: *ry}

	var coords []region.ChunkCoord
	if a.idx != nil {
		rows, err := a.idx.ChunksInRegion(context.Background(), r)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		for _, row := range rows {
			coords = append(coords, row.Chunk)
		}
	} else {
		keys, err := a.cs.Keys()
		if err != nil {
			return err
		}
		for _, c := range ws.RegionSize.Chunks(r) {
			for _, k := range keys {
				if kc, ok := k.Chunk(); ok && kc == c {
					coords = append(coords, c)
					break
				}
			}
		}
	}

	fmt.Fprintf(a.out, "region %s (%d of %d chunks saved)\n", r, len(coords), int(ws.RegionSize)*int(ws.RegionSize))
	for _, c := range coords {
		digest, mode, ok := store.Summary(a.cs, c)
		if !ok {
			fmt.Fprintf(a.out, "  %-10s unreadable\n", c)
			continue
		}
		fmt.Fprintf(a.out, "  %-10s %-8s %s\n", c, mode, digest[:16])
	}
	return nil
}

func (a *app) cmdReset(args []string) error {
	fs := newFlagSet("reset", a.out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	_, ss := a.plainSettings()
	size := a.cfg.Region()
	if ws, ok := ss.Load(); ok {
		size = ws.RegionSize
	}
	if err := a.open(size); err != nil {
		// The save files can be removed even when the index cannot be opened.
		a.logger.Printf("%v", err)
		plain, _ := a.plainSettings()
		if err := plain.DeleteAll(); err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		fmt.Fprintf(a.out, "reset ok: removed %s (index not updated)\n", absPath(a.cfg.SaveRoot))
		return nil
	}
	if err := a.cs.DeleteAll(); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	if a.idx != nil {
		a.idx.Flush()
	}
	fmt.Fprintf(a.out, "reset ok: removed %s\n", absPath(a.cfg.SaveRoot))
	return nil
}
