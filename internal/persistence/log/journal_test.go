package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxelseed.ai/internal/persistence/chunkstore"
	"voxelseed.ai/internal/persistence/record"
	"voxelseed.ai/internal/sim/world/terrain/region"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJournal_RecordsStoreOperations(t *testing.T) {
	dir := t.TempDir()
	j := NewJournal(filepath.Join(dir, "journal"), nil)
	j.w.now = func() time.Time { return time.Date(2026, 5, 6, 7, 30, 0, 0, time.UTC) }

	root := filepath.Join(dir, "world")
	cs := chunkstore.New(root, chunkstore.WithObserver(j))

	rec := cs.NewRecord(record.ChunkKey(region.ChunkCoord{X: 0, Y: 0}))
	rec.SetInt("h", 1)
	if !cs.Save(rec) {
		t.Fatalf("save")
	}
	cs.Load(record.ChunkKey(region.ChunkCoord{X: 1, Y: 1}))
	if err := os.WriteFile(filepath.Join(root, "2_2"), []byte("garbage!"), 0o644); err != nil {
		t.Fatal(err)
	}
	cs.Load(record.ChunkKey(region.ChunkCoord{X: 2, Y: 2}))
	if err := cs.DeleteAll(); err != nil {
		t.Fatal(err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, filepath.Join(dir, "journal", "journal-2026-05-06-07.jsonl.zst"))
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %v", len(lines), lines)
	}
	var got []Entry
	for _, l := range lines {
		var e Entry
		if err := json.Unmarshal([]byte(l), &e); err != nil {
			t.Fatalf("line %q: %v", l, err)
		}
		got = append(got, e)
	}
	if got[0].Op != "save" || got[0].Key != "0_0" || got[0].Entries != 1 || got[0].Checksum == "" {
		t.Fatalf("save entry: %+v", got[0])
	}
	if got[1].Op != "load" || got[1].Key != "2_2" || !strings.Contains(got[1].Error, "undecodable") {
		t.Fatalf("load entry: %+v", got[1])
	}
	if got[2].Op != "delete_all" || got[2].Path != root || got[2].Error != "" {
		t.Fatalf("delete entry: %+v", got[2])
	}
	if j.WriteFailures() != 0 {
		t.Fatalf("write failures: %d", j.WriteFailures())
	}
}

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "journal")
	now := time.Date(2026, 5, 6, 7, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Write(map[string]int{"n": 3}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	// Reopening the same hour appends another frame.
	if err := w.Write(map[string]int{"n": 4}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	names, err := filepath.Glob(filepath.Join(dir, "journal-*.jsonl.zst"))
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(names)
	if len(names) != 2 {
		t.Fatalf("files: %v", names)
	}
	if n := len(readLines(t, names[0])); n != 1 {
		t.Fatalf("%s: %d lines", names[0], n)
	}
	if lines := readLines(t, names[1]); len(lines) != 3 || lines[2] != `{"n":4}` {
		t.Fatalf("%s: %v", names[1], lines)
	}
}
