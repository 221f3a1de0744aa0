package journal

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/bazaar/internal/catalog"
	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/engine"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvents() []engine.Event {
	return []engine.Event{
		{Tick: 1, Category: engine.CategoryTrade, Kind: "buy_stock", NpcID: 1, BusinessID: 100000001, Amount: 50, Price: 100, Total: 5000, Description: "Alice bought 50 shares of Business0"},
		{Tick: 1, Category: engine.CategoryRejection, Kind: "buy_product", NpcID: 2, BusinessID: 100000001, Product: "Widget", Amount: 9, Error: "insufficient supply", Description: "Bob: insufficient supply"},
		{Tick: 2, Category: engine.CategoryListing, Kind: "found", NpcID: 1, BusinessID: 100000002, Description: "Alice founded Alice Venture 1"},
	}
}

func TestSaveAndReadEvents(t *testing.T) {
	db := openTestDB(t)
	if err := db.BeginRun("run-a", 7, `{"npcs":2}`); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := db.BeginRun("run-b", 8, `{}`); err != nil {
		t.Fatalf("begin: %v", err)
	}
	events := sampleEvents()
	if err := db.SaveEvents("run-a", events); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.SaveEvents("run-b", events[:1]); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.RecentEvents("run-a", 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("recent = %d, want 2", len(got))
	}
	// Newest first.
	if got[0] != events[2] || got[1] != events[1] {
		t.Fatalf("recent = %+v", got)
	}

	counts, err := db.CategoryCounts("run-a")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[engine.CategoryTrade] != 1 || counts[engine.CategoryRejection] != 1 || counts[engine.CategoryListing] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestSaveEventsEmptyIsNoop(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveEvents("nobody", nil); err != nil {
		t.Fatalf("save nil: %v", err)
	}
}

func TestRunsLifecycle(t *testing.T) {
	db := openTestDB(t)
	if err := db.BeginRun("run-a", 7, `{}`); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := db.BeginRun("run-a", 7, `{}`); err == nil {
		t.Fatalf("duplicate run accepted")
	}
	if err := db.FinishRun("run-a", 42); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := db.FinishRun("missing", 1); !errors.Is(err, ErrUnknownRun) {
		t.Fatalf("expected ErrUnknownRun, got %v", err)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-a" || runs[0].Seed != 7 {
		t.Fatalf("runs = %+v", runs)
	}
	if !runs[0].FinishedAt.Valid || runs[0].LastTick.Int64 != 42 {
		t.Fatalf("run not finished: %+v", runs[0])
	}
}

func TestPriceHistory(t *testing.T) {
	db := openTestDB(t)
	_ = db.BeginRun("run-a", 1, `{}`)
	for tick, price := range []float64{100, 104, 97} {
		q := []economy.Quote{
			{ID: 100000001, Name: "Business0", StockPrice: price, StockDemand: 1, Balance: 10000, Products: 2},
			{ID: 100000002, Name: "Business1", StockPrice: 50, StockDemand: 1, Balance: 10000, Products: 1},
		}
		if err := db.SaveQuotes("run-a", uint64(tick+1), q); err != nil {
			t.Fatalf("save quotes: %v", err)
		}
	}

	points, err := db.PriceHistory("run-a", 100000001)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("points = %d, want 3", len(points))
	}
	for i, want := range []float64{100, 104, 97} {
		if points[i].Tick != uint64(i+1) || !points[i].StockPrice.Valid || points[i].StockPrice.Float64 != want {
			t.Fatalf("point %d = %+v", i, points[i])
		}
	}
}

func TestJSONLWriterRotatesAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLWriter(dir, "events", 10)
	for tick := uint64(1); tick <= 25; tick++ {
		if err := w.Write(tick, map[string]uint64{"tick": tick}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	segments, err := w.Segments()
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %v, want 3", segments)
	}

	var ticks []uint64
	for _, path := range segments {
		err := ReadJSONL(path, func(line json.RawMessage) error {
			var v map[string]uint64
			if err := json.Unmarshal(line, &v); err != nil {
				return err
			}
			ticks = append(ticks, v["tick"])
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
	}
	if len(ticks) != 25 {
		t.Fatalf("read %d lines, want 25", len(ticks))
	}
	for i, tick := range ticks {
		if tick != uint64(i+1) {
			t.Fatalf("line %d has tick %d", i, tick)
		}
	}
}

func TestRecorderWritesBothSinks(t *testing.T) {
	db := openTestDB(t)
	dir := t.TempDir()
	rec := NewRecorder(db, NewJSONLWriter(dir, "bazaar", 0), quietLogger())
	if rec.RunID == "" {
		t.Fatalf("no run id")
	}

	if err := rec.Begin(7, map[string]int{"npcs": 2}); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := rec.Events(1, sampleEvents()); err != nil {
		t.Fatalf("events: %v", err)
	}
	quotes := []economy.Quote{{ID: 100000001, Name: "Business0", StockPrice: 101}}
	if err := rec.Snapshot(1, quotes, engine.SimStats{Population: 2, Listed: 1}); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if err := rec.Finish(1); err != nil {
		t.Fatalf("finish: %v", err)
	}

	stored, err := db.RecentEvents(rec.RunID, 10)
	if err != nil || len(stored) != 3 {
		t.Fatalf("stored events = %d, err %v", len(stored), err)
	}

	segments, _ := filepath.Glob(filepath.Join(dir, "bazaar-*.jsonl.zst"))
	if len(segments) != 1 {
		t.Fatalf("segments = %v", segments)
	}
	var entries []Entry
	err = ReadJSONL(segments[0], func(line json.RawMessage) error {
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries = %d, want 4", len(entries))
	}
	last := entries[3]
	if last.Type != "snapshot" || last.RunID != rec.RunID || last.Stats == nil || last.Stats.Population != 2 {
		t.Fatalf("snapshot entry = %+v", last)
	}
	if entries[0].Event == nil || entries[0].Event.Kind != "buy_stock" {
		t.Fatalf("first entry = %+v", entries[0])
	}
}

func TestRecorderWithoutSinks(t *testing.T) {
	rec := NewRecorder(nil, nil, quietLogger())
	if err := rec.Begin(1, nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := rec.Events(1, sampleEvents()); err != nil {
		t.Fatalf("events: %v", err)
	}
	if err := rec.Finish(1); err != nil {
		t.Fatalf("finish: %v", err)
	}
}

func TestEntryEncodesNonFiniteAsNull(t *testing.T) {
	entry := Entry{
		RunID:  "run-a",
		Type:   "snapshot",
		Tick:   1020,
		Event:  &engine.Event{Tick: 1020, Kind: "buy_stock", Price: math.Inf(1), Total: 12.5, Description: "x"},
		Quotes: []economy.Quote{{ID: 100000001, Name: "Business0", StockPrice: 101, GoodsPrice: math.Inf(-1)}},
		Stats:  &engine.SimStats{Population: 3, MeanPriceDrift: math.NaN(), Diverged: 4},
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"price":null`, `"goods_price":null`, `"mean_price_drift":null`, `"total":12.5`} {
		if !strings.Contains(string(raw), want) {
			t.Fatalf("%s missing from %s", want, raw)
		}
	}

	var back Entry
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Event.Price != 0 || back.Event.Total != 12.5 {
		t.Fatalf("event = %+v", back.Event)
	}
	if back.Quotes[0].StockPrice != 101 || back.Stats.Population != 3 || back.Stats.Diverged != 4 {
		t.Fatalf("entry = %+v", back)
	}
}

func TestSQLiteStoresNonFiniteAsNull(t *testing.T) {
	db := openTestDB(t)
	_ = db.BeginRun("run-a", 1, `{}`)

	events := []engine.Event{{Tick: 5, Category: engine.CategoryRejection, Kind: "buy_stock", Price: math.NaN(), Total: math.Inf(1), Description: "x"}}
	if err := db.SaveEvents("run-a", events); err != nil {
		t.Fatalf("save events: %v", err)
	}
	got, err := db.RecentEvents("run-a", 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent = %v, err %v", got, err)
	}
	if !math.IsNaN(got[0].Price) || !math.IsNaN(got[0].Total) {
		t.Fatalf("read back price=%v total=%v", got[0].Price, got[0].Total)
	}

	quotes := []economy.Quote{{ID: 100000001, Name: "Business0", StockPrice: math.Inf(1), Balance: 10000, GoodsPrice: math.NaN()}}
	if err := db.SaveQuotes("run-a", 5, quotes); err != nil {
		t.Fatalf("save quotes: %v", err)
	}
	points, err := db.PriceHistory("run-a", 100000001)
	if err != nil || len(points) != 1 {
		t.Fatalf("history = %v, err %v", points, err)
	}
	p := points[0]
	if p.StockPrice.Valid || p.GoodsPrice.Valid || !p.Balance.Valid || p.Balance.Float64 != 10000 {
		t.Fatalf("point = %+v", p)
	}
}

// Product demand compounds every tick and overflows after roughly a thousand
// ticks; the journal has to keep recording past that point.
func TestRecorderSurvivesLongRun(t *testing.T) {
	const ticks, every = 2400, 20

	db := openTestDB(t)
	dir := t.TempDir()
	rec := NewRecorder(db, NewJSONLWriter(dir, "bazaar", 0), quietLogger())
	sim := engine.NewSimulation(engine.Config{Seed: 7, Businesses: 3, Npcs: 1, Catalog: catalog.DefaultGenConfig()}, quietLogger())
	if err := rec.Begin(sim.Seed, nil); err != nil {
		t.Fatalf("begin: %v", err)
	}

	var pending []engine.Event
	diverged := false
	for tick := uint64(1); tick <= ticks; tick++ {
		pending = append(pending, sim.Step(tick)...)
		if tick%every != 0 {
			continue
		}
		if err := rec.Events(tick, pending); err != nil {
			t.Fatalf("tick %d: events: %v", tick, err)
		}
		pending = pending[:0]
		stats := sim.Report(tick)
		if err := rec.Snapshot(tick, sim.Quotes(), stats); err != nil {
			t.Fatalf("tick %d: snapshot: %v", tick, err)
		}
		if stats.Diverged > 0 {
			diverged = true
		}
	}
	if err := rec.Finish(ticks); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if !diverged {
		t.Fatalf("market never overflowed in %d ticks", ticks)
	}

	segments, err := filepath.Glob(filepath.Join(dir, "bazaar-*.jsonl.zst"))
	if err != nil || len(segments) != 3 {
		t.Fatalf("segments = %v, err %v", segments, err)
	}
	snapshots := 0
	for _, path := range segments {
		err := ReadJSONL(path, func(line json.RawMessage) error {
			var e Entry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			if e.Type == "snapshot" {
				snapshots++
			}
			return nil
		})
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
	}
	if snapshots != ticks/every {
		t.Fatalf("snapshots = %d, want %d", snapshots, ticks/every)
	}

	points, err := db.PriceHistory(rec.RunID, sim.Quotes()[0].ID)
	if err != nil || len(points) == 0 {
		t.Fatalf("history = %d points, err %v", len(points), err)
	}
}
