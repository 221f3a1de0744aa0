package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/engine"
)

// Entry is one line of the JSONL stream.
type Entry struct {
	RunID  string           `json:"run_id"`
	Type   string           `json:"type"` // "event" or "snapshot"
	Tick   uint64           `json:"tick"`
	Event  *engine.Event    `json:"event,omitempty"`
	Quotes []economy.Quote  `json:"quotes,omitempty"`
	Stats  *engine.SimStats `json:"stats,omitempty"`
}

// Recorder fans a run's output out to whichever sinks are configured.
// Either sink may be nil.
type Recorder struct {
	RunID string

	db    *DB
	jsonl *JSONLWriter
	log   *slog.Logger
}

// NewRecorder creates a recorder tagged with a fresh run ID.
func NewRecorder(db *DB, jsonl *JSONLWriter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Recorder{
		RunID: id,
		db:    db,
		jsonl: jsonl,
		log:   logger.With("run", id),
	}
}

// Begin registers the run with its seed and settings.
func (r *Recorder) Begin(seed int64, settings any) error {
	if r.db == nil {
		return nil
	}
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := r.db.BeginRun(r.RunID, seed, string(raw)); err != nil {
		return err
	}
	r.log.Info("journal run started", "seed", seed)
	return nil
}

// Events records one tick's events.
func (r *Recorder) Events(tick uint64, events []engine.Event) error {
	if r.db != nil {
		if err := r.db.SaveEvents(r.RunID, events); err != nil {
			return fmt.Errorf("journal events: %w", err)
		}
	}
	if r.jsonl != nil {
		for i := range events {
			entry := Entry{RunID: r.RunID, Type: "event", Tick: tick, Event: &events[i]}
			if err := r.jsonl.Write(tick, entry); err != nil {
				return fmt.Errorf("journal events: %w", err)
			}
		}
	}
	return nil
}

// Snapshot records the listed businesses' quotes and the market statistics.
func (r *Recorder) Snapshot(tick uint64, quotes []economy.Quote, stats engine.SimStats) error {
	if r.db != nil {
		if err := r.db.SaveQuotes(r.RunID, tick, quotes); err != nil {
			return fmt.Errorf("journal snapshot: %w", err)
		}
	}
	if r.jsonl != nil {
		entry := Entry{RunID: r.RunID, Type: "snapshot", Tick: tick, Quotes: quotes, Stats: &stats}
		if err := r.jsonl.Write(tick, entry); err != nil {
			return fmt.Errorf("journal snapshot: %w", err)
		}
		if err := r.jsonl.Flush(); err != nil {
			return fmt.Errorf("journal snapshot: %w", err)
		}
	}
	return nil
}

// Finish stamps the run and closes the JSONL stream. The database stays open.
func (r *Recorder) Finish(lastTick uint64) error {
	var errs []error
	if r.jsonl != nil {
		errs = append(errs, r.jsonl.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.FinishRun(r.RunID, lastTick))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.log.Info("journal run finished", "last_tick", lastTick)
	return nil
}
