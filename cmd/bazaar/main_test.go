package main

import (
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/journal"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	db, err := journal.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.BeginRun("run-a", 1, `{}`); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for tick, price := range []float64{100, 112, math.Inf(1)} {
		q := []economy.Quote{{ID: 100000001, Name: "Business0", StockPrice: price, Balance: 10000, Products: 2, GoodsPrice: 12}}
		if err := db.SaveQuotes("run-a", uint64(tick*20), q); err != nil {
			t.Fatalf("save quotes: %v", err)
		}
	}
	return path
}

func TestPricesCommand(t *testing.T) {
	path := seedJournal(t)

	cases := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"history", []string{"--db", path, "--run", "run-a", "--business", "100000001"}, false},
		{"unknown business", []string{"--db", path, "--run", "run-a", "--business", "100000002"}, false},
		{"malformed id", []string{"--db", path, "--run", "run-a", "--business", "abc"}, true},
		{"id out of range", []string{"--db", path, "--run", "run-a", "--business", "42"}, true},
		{"missing run", []string{"--db", path, "--business", "100000001"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := newPricesCmd()
			cmd.SetArgs(tc.args)
			cmd.SetOut(io.Discard)
			cmd.SetErr(io.Discard)
			err := cmd.Execute()
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
