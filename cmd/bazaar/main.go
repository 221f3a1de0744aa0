// Command bazaar runs the agent market simulation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/bazaar/internal/catalog"
	"github.com/talgya/bazaar/internal/config"
	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/engine"
	"github.com/talgya/bazaar/internal/journal"
)

func main() {
	root := &cobra.Command{
		Use:          "bazaar",
		Short:        "Agent-based market simulation",
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newRunsCmd(),
		newEventsCmd(),
		newPricesCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type runFlags struct {
	configPath string
	seed       int64
	ticks      int
	journalDB  string
	jsonlDir   string
	logLevel   string
	top        int
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a market simulation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd, f)
			if err != nil {
				return err
			}
			return runSimulation(cmd.Context(), cfg, f.top)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "scenario YAML file")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().IntVar(&f.ticks, "ticks", 0, "ticks to run (0 runs until interrupted)")
	cmd.Flags().StringVar(&f.journalDB, "journal-db", "", "SQLite journal path")
	cmd.Flags().StringVar(&f.jsonlDir, "jsonl-dir", "", "directory for compressed JSONL event segments")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	cmd.Flags().IntVar(&f.top, "top", 10, "standings rows to print")
	return cmd
}

// loadRunConfig layers the scenario file, environment and explicit flags.
func loadRunConfig(cmd *cobra.Command, f runFlags) (config.Config, error) {
	var cfg config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.ApplyEnv()
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("ticks") {
		cfg.Ticks = f.ticks
	}
	if flags.Changed("journal-db") {
		cfg.Journal.SQLitePath = f.journalDB
	}
	if flags.Changed("jsonl-dir") {
		cfg.Journal.JSONLDir = f.jsonlDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if cfg.Ticks < 0 {
		return cfg, fmt.Errorf("%w: negative ticks", config.ErrInvalidScenario)
	}
	return cfg, cfg.Check()
}

func runSimulation(parent context.Context, cfg config.Config, top int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Journal ───────────────────────────────────────────────────────
	var db *journal.DB
	if cfg.Journal.SQLitePath != "" {
		var err error
		db, err = journal.Open(cfg.Journal.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()
		slog.Info("journal opened", "path", cfg.Journal.SQLitePath)
	}
	var jsonl *journal.JSONLWriter
	if cfg.Journal.JSONLDir != "" {
		jsonl = journal.NewJSONLWriter(cfg.Journal.JSONLDir, "bazaar", journal.DefaultSegmentTicks)
	}
	rec := journal.NewRecorder(db, jsonl, logger)

	// ── Market ────────────────────────────────────────────────────────
	sim := engine.NewSimulation(engine.Config{
		Seed:           cfg.Seed,
		Businesses:     cfg.Businesses,
		Npcs:           cfg.Npcs,
		ArrivalEvery:   cfg.ArrivalEvery,
		InitialSavings: cfg.InitialSavings,
		Catalog: catalog.GenConfig{
			MinProducts: cfg.Catalog.MinProducts,
			MaxProducts: cfg.Catalog.MaxProducts,
			BasePrice:   cfg.Catalog.BasePrice,
		},
	}, logger)

	// Journal the resolved seed rather than a configured 0.
	cfg.Seed = sim.Seed
	if err := rec.Begin(sim.Seed, cfg); err != nil {
		return err
	}
	if err := rec.Snapshot(0, sim.Quotes(), sim.Stats); err != nil {
		return err
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine(uint64(cfg.Ticks))
	eng.Interval = cfg.TickInterval
	eng.ReportEvery = uint64(cfg.ReportEvery)

	var journalErr error
	eng.OnTick = func(tick uint64) {
		events := sim.Step(tick)
		if err := rec.Events(tick, events); err != nil {
			journalErr = err
			eng.Stop()
		}
	}
	eng.OnReport = func(tick uint64) {
		stats := sim.Report(tick)
		if err := rec.Snapshot(tick, sim.Quotes(), stats); err != nil && journalErr == nil {
			journalErr = err
			eng.Stop()
		}
	}

	runErr := eng.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		slog.Warn("interrupted", "tick", eng.Tick)
		runErr = nil
	}

	if err := rec.Finish(eng.Tick); err != nil {
		slog.Error("journal finish failed", "error", err)
	}
	if err := errors.Join(runErr, journalErr); err != nil {
		return err
	}

	printStandings(sim.Seed, eng.Tick, sim.Standings(), top)
	printMarket(sim.Quotes())
	if db != nil {
		printInfo(fmt.Sprintf("journal run %s", rec.RunID))
	}
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>",
		Short: "Check a scenario file against the schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Parse(raw)
			if err != nil {
				printError(err.Error())
				return err
			}
			printSuccess(fmt.Sprintf("%s is valid: %d businesses, %d npcs, %d ticks", args[0], cfg.Businesses, cfg.Npcs, cfg.Ticks))
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List runs recorded in a SQLite journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := journal.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.Runs()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				printWarn("no runs recorded")
				return nil
			}
			for _, r := range runs {
				counts, err := db.CategoryCounts(r.ID)
				if err != nil {
					return err
				}
				printRun(r, counts)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "bazaar.db", "SQLite journal path")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		dbPath string
		runID  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "events [segment.jsonl.zst]",
		Short: "Print journaled events from a JSONL segment or a SQLite run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return printSegment(args[0], limit)
			}
			if runID == "" {
				return errors.New("pass a segment file or --run with --db")
			}
			db, err := journal.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			events, err := db.RecentEvents(runID, limit)
			if err != nil {
				return err
			}
			for i := len(events) - 1; i >= 0; i-- {
				printEvent(events[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "bazaar.db", "SQLite journal path")
	cmd.Flags().StringVar(&runID, "run", "", "run ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to print")
	return cmd
}

func newPricesCmd() *cobra.Command {
	var (
		dbPath     string
		runID      string
		businessID string
	)
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Print a business's journaled price history",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(businessID, 10, 64)
			if err != nil || id < int64(economy.MinBusinessID) || id > int64(economy.MaxBusinessID) {
				return fmt.Errorf("invalid business ID %q", businessID)
			}
			db, err := journal.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			points, err := db.PriceHistory(runID, economy.BusinessID(id))
			if err != nil {
				return err
			}
			if len(points) == 0 {
				printWarn(fmt.Sprintf("no price points for business %d in run %s", id, runID))
				return nil
			}
			printPrices(points)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "bazaar.db", "SQLite journal path")
	cmd.Flags().StringVar(&runID, "run", "", "run ID")
	cmd.Flags().StringVar(&businessID, "business", "", "business ID")
	_ = cmd.MarkFlagRequired("run")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}
