// Simulation ties the market and its traders together and runs them each tick.
package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/talgya/bazaar/internal/agents"
	"github.com/talgya/bazaar/internal/catalog"
	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/entropy"
)

// maxRecentEvents bounds the in-memory event buffer.
const maxRecentEvents = 1000

// Config sizes a run.
type Config struct {
	Seed           int64
	Businesses     int // Listed at start
	Npcs           int // Spawned at start
	ArrivalEvery   int // One business and one Npc join every N ticks; 0 disables
	InitialSavings float64
	Catalog        catalog.GenConfig
}

// Simulation holds the complete market state and wires systems together.
// It is the agents.Exchange every Npc trades against.
type Simulation struct {
	Seed     int64
	Npcs     []*agents.Npc
	Events   []Event // Most recent events, oldest first
	LastTick uint64
	Stats    SimStats

	cfg       Config
	ids       *economy.IDPool
	market    *economy.Registry
	npcIndex  map[agents.NpcID]*agents.Npc
	spawner   *agents.Spawner
	catalog   *catalog.Generator
	chartered uint64               // Businesses chartered so far; the next one's ordinal
	retiring  []economy.BusinessID // Delisted since the last Step finished
	cooling   []economy.BusinessID // Released at the end of the next Step
	window    windowCounts
	log       *slog.Logger
}

// Event is a notable occurrence in the market.
type Event struct {
	Tick        uint64  `json:"tick"`
	Category    string  `json:"category"` // "trade", "rejection", "listing", "population"
	Kind        string  `json:"kind"`
	NpcID       uint64  `json:"npc_id,omitempty"`
	BusinessID  int     `json:"business_id,omitempty"`
	Product     string  `json:"product,omitempty"`
	Amount      int     `json:"amount,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Total       float64 `json:"total,omitempty"`
	Error       string  `json:"error,omitempty"`
	Description string  `json:"description"`
}

// Event categories.
const (
	CategoryTrade      = "trade"
	CategoryRejection  = "rejection"
	CategoryListing    = "listing"
	CategoryPopulation = "population"
)

// SimStats tracks aggregate market statistics.
type SimStats struct {
	Population     int     `json:"population"`
	Listed         int     `json:"listed"`
	TotalCash      float64 `json:"total_cash"`
	TotalSavings   float64 `json:"total_savings"`
	MeanStockPrice float64 `json:"mean_stock_price"`
	MeanPriceDrift float64 `json:"mean_price_drift"` // Across every listed product
	Diverged       int     `json:"diverged"`         // NaN or infinite values left out of the figures above
	Trades         int     `json:"trades"`           // Since the last report
	Rejections     int     `json:"rejections"`       // Since the last report
	Founded        int     `json:"founded"`          // Since the last report
	Disposed       int     `json:"disposed"`         // Since the last report
}

type windowCounts struct {
	trades, rejections, founded, disposed int
}

// NewSimulation creates a market with cfg.Businesses listed businesses and
// cfg.Npcs traders. A zero seed picks a random one.
func NewSimulation(cfg Config, logger *slog.Logger) *Simulation {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Seed == 0 {
		cfg.Seed = entropy.NewSeed()
	}
	cfg.Catalog.Seed = cfg.Seed

	s := &Simulation{
		Seed:     cfg.Seed,
		cfg:      cfg,
		ids:      economy.NewIDPool(entropy.Derive(cfg.Seed, entropy.SaltIDs, 0)),
		market:   economy.NewRegistry(),
		npcIndex: make(map[agents.NpcID]*agents.Npc),
		spawner:  agents.NewSpawner(agents.SpawnConfig{Seed: cfg.Seed, InitialSavings: cfg.InitialSavings}, logger),
		catalog:  catalog.NewGenerator(cfg.Catalog),
		log:      logger,
	}

	for i := 0; i < cfg.Businesses; i++ {
		s.market.List(s.Charter(fmt.Sprintf("Business%d", i)))
	}
	for _, n := range s.spawner.SpawnPopulation(cfg.Npcs) {
		s.addNpc(n)
	}
	s.updateStats()

	logger.Info("market opened", "seed", cfg.Seed, "businesses", s.market.Len(), "npcs", len(s.Npcs))
	return s
}

// Active lists the businesses open for trading, in listing order.
func (s *Simulation) Active() []*economy.Business {
	return s.market.Active()
}

// Lookup resolves a listed business by ID.
func (s *Simulation) Lookup(id economy.BusinessID) (*economy.Business, bool) {
	return s.market.Lookup(id)
}

// Charter creates a business with a fresh ID, its own random stream and a
// generated catalogue. It is not listed.
func (s *Simulation) Charter(name string) *economy.Business {
	ordinal := s.chartered
	s.chartered++

	b := economy.NewBusiness(s.ids.Allocate(), name, "", entropy.Derive(s.Seed, entropy.SaltBusinesses, ordinal))
	added := s.catalog.Stock(b, ordinal)
	b.Description = fmt.Sprintf("Dealer in %d goods", len(added))
	return b
}

// Npc returns the trader with the given ID.
func (s *Simulation) Npc(id agents.NpcID) (*agents.Npc, bool) {
	n, ok := s.npcIndex[id]
	return n, ok
}

// Step runs one tick: arrivals, every business's price step, then every
// Npc's decisions in spawn order. Returns the events the tick produced.
func (s *Simulation) Step(tick uint64) []Event {
	s.LastTick = tick
	var events []Event

	if s.cfg.ArrivalEvery > 0 && tick%uint64(s.cfg.ArrivalEvery) == 0 {
		events = append(events, s.arrive(tick)...)
	}

	for _, b := range s.market.Active() {
		b.Update()
	}

	for _, n := range s.Npcs {
		report := n.Update(s)
		events = append(events, s.settle(tick, n, report)...)
	}

	s.releaseRetired()
	s.remember(events)
	return events
}

// settle applies an Npc's listing changes and turns its actions into events.
// Founded businesses are listed straight away so later Npcs see them this
// tick.
func (s *Simulation) settle(tick uint64, n *agents.Npc, report agents.Report) []Event {
	events := make([]Event, 0, len(report.Actions))
	for _, a := range report.Actions {
		events = append(events, actionEvent(tick, a))
		if a.Rejected() {
			s.window.rejections++
		} else if a.Kind == agents.ActionBuyStock || a.Kind == agents.ActionSellStock || a.Kind == agents.ActionBuyProduct {
			s.window.trades++
		}
	}

	for _, b := range report.Founded {
		s.market.List(b)
		s.window.founded++
		s.log.Debug("business listed", "business", b.Name, "business_id", b.ID(), "owner", n.Name)
	}
	for _, id := range report.Disposed {
		if b, ok := s.delist(id); ok {
			s.window.disposed++
			events = append(events, Event{
				Tick:        tick,
				Category:    CategoryListing,
				Kind:        "delist",
				NpcID:       uint64(n.ID),
				BusinessID:  int(id),
				Description: fmt.Sprintf("%s was delisted", b.Name),
			})
		}
	}
	return events
}

func actionEvent(tick uint64, a agents.Action) Event {
	e := Event{
		Tick:        tick,
		Category:    CategoryTrade,
		Kind:        a.Kind.String(),
		NpcID:       uint64(a.NpcID),
		BusinessID:  int(a.BusinessID),
		Product:     a.Product,
		Amount:      a.Amount,
		Price:       a.Price,
		Total:       a.Total,
		Description: a.Detail,
	}
	switch {
	case a.Rejected():
		e.Category = CategoryRejection
		e.Error = a.Err.Error()
	case a.Kind == agents.ActionFound || a.Kind == agents.ActionDispose || a.Kind == agents.ActionWriteOff:
		e.Category = CategoryListing
	}
	return e
}

// delist removes a business from the market. Positions in it are written
// off by their holders on their next update, so the ID stays allocated
// until a full Npc pass has run after the delisting.
func (s *Simulation) delist(id economy.BusinessID) (*economy.Business, bool) {
	b, ok := s.market.Delist(id)
	if !ok {
		return nil, false
	}
	s.retiring = append(s.retiring, id)
	s.log.Info("business delisted", "business", b.Name, "business_id", id)
	return b, true
}

// releaseRetired runs at the end of a Step. IDs delisted before that Step's
// Npc pass are now unreferenced and go back to the pool.
func (s *Simulation) releaseRetired() {
	for _, id := range s.cooling {
		s.ids.Release(id)
	}
	s.cooling, s.retiring = s.retiring, nil
}

// arrive lists one new business and spawns one new Npc.
func (s *Simulation) arrive(tick uint64) []Event {
	b := s.Charter(fmt.Sprintf("Business%d", s.chartered))
	s.market.List(b)
	n := s.spawner.Spawn()
	s.addNpc(n)

	s.log.Info("arrivals", "tick", tick, "business", b.Name, "npc", n.Name)
	return []Event{
		{Tick: tick, Category: CategoryListing, Kind: "list", BusinessID: int(b.ID()),
			Description: fmt.Sprintf("%s opened for trading", b.Name)},
		{Tick: tick, Category: CategoryPopulation, Kind: "arrive", NpcID: uint64(n.ID),
			Description: fmt.Sprintf("%s entered the market", n.Name)},
	}
}

func (s *Simulation) addNpc(n *agents.Npc) {
	s.Npcs = append(s.Npcs, n)
	s.npcIndex[n.ID] = n
}

// RemoveNpc takes an Npc out of the market and delists every business it
// owns. Returns the delisted IDs.
func (s *Simulation) RemoveNpc(id agents.NpcID) ([]economy.BusinessID, bool) {
	n, ok := s.npcIndex[id]
	if !ok {
		return nil, false
	}
	delete(s.npcIndex, id)
	for i, cur := range s.Npcs {
		if cur == n {
			s.Npcs = append(s.Npcs[:i], s.Npcs[i+1:]...)
			break
		}
	}

	var delisted []economy.BusinessID
	for _, bid := range n.Dissolve() {
		if _, ok := s.delist(bid); ok {
			delisted = append(delisted, bid)
		}
	}
	s.log.Info("npc removed", "npc", n.Name, "delisted", len(delisted))
	return delisted, true
}

func (s *Simulation) remember(events []Event) {
	s.Events = append(s.Events, events...)
	if len(s.Events) > maxRecentEvents {
		s.Events = append([]Event(nil), s.Events[len(s.Events)-maxRecentEvents:]...)
	}
}

// Quotes returns a snapshot of every listed business.
func (s *Simulation) Quotes() []economy.Quote {
	active := s.market.Active()
	quotes := make([]economy.Quote, 0, len(active))
	for _, b := range active {
		quotes = append(quotes, b.Quote())
	}
	return quotes
}

// Report refreshes Stats, logs a market report and resets the per-window
// counters.
func (s *Simulation) Report(tick uint64) SimStats {
	s.updateStats()
	s.log.Info("market report",
		"tick", tick,
		"npcs", s.Stats.Population,
		"listed", s.Stats.Listed,
		"total_cash", fmt.Sprintf("%.2f", s.Stats.TotalCash),
		"total_savings", fmt.Sprintf("%.2f", s.Stats.TotalSavings),
		"mean_stock_price", fmt.Sprintf("%.2f", s.Stats.MeanStockPrice),
		"mean_price_drift", fmt.Sprintf("%.3f", s.Stats.MeanPriceDrift),
		"diverged", s.Stats.Diverged,
		"trades", s.Stats.Trades,
		"rejections", s.Stats.Rejections,
		"founded", s.Stats.Founded,
		"disposed", s.Stats.Disposed,
	)
	stats := s.Stats
	s.window = windowCounts{}
	return stats
}

// updateStats aggregates finite values only. Product demand compounds every
// tick, so long runs overflow to infinity and then NaN; each such value is
// counted in Diverged instead.
func (s *Simulation) updateStats() {
	var cash, savings, price, drift mean
	for _, n := range s.Npcs {
		cash.add(n.Balance())
		savings.add(n.Savings())
	}

	active := s.market.Active()
	for _, b := range active {
		price.add(b.StockPrice())
		for _, name := range b.ProductNames() {
			p, _ := b.Product(name)
			drift.add(p.PriceDrift())
		}
	}

	s.Stats = SimStats{
		Population:     len(s.Npcs),
		Listed:         len(active),
		TotalCash:      cash.sum,
		TotalSavings:   savings.sum,
		MeanStockPrice: price.value(),
		MeanPriceDrift: drift.value(),
		Diverged:       cash.skipped + savings.skipped + price.skipped + drift.skipped,
		Trades:         s.window.trades,
		Rejections:     s.window.rejections,
		Founded:        s.window.founded,
		Disposed:       s.window.disposed,
	}
}

type mean struct {
	sum     float64
	n       int
	skipped int
}

func (m *mean) add(v float64) {
	next := m.sum + v
	if math.IsNaN(next) || math.IsInf(next, 0) {
		m.skipped++
		return
	}
	m.sum = next
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum / float64(m.n)
}

// Standing is one Npc's position in the final ranking.
type Standing struct {
	NpcID     agents.NpcID
	Name      string
	Cash      float64
	Savings   float64
	Portfolio float64 // Shares marked at current stock prices
	Score     int
	Owned     int
}

// NetWorth is cash plus savings plus portfolio value.
func (st Standing) NetWorth() float64 {
	return st.Cash + st.Savings + st.Portfolio
}

// Standings ranks Npcs by net worth, highest first. Ties keep spawn order.
func (s *Simulation) Standings() []Standing {
	out := make([]Standing, 0, len(s.Npcs))
	for _, n := range s.Npcs {
		out = append(out, Standing{
			NpcID:     n.ID,
			Name:      n.Name,
			Cash:      n.Balance(),
			Savings:   n.Savings(),
			Portfolio: n.PortfolioValue(s),
			Score:     n.Score(),
			Owned:     len(n.Owned()),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NetWorth() > out[j].NetWorth()
	})
	return out
}
