// Package agents provides the Npc data model and its trading decisions:
// stock buys and profit-taking sells, product purchases, and founding or
// disposing of businesses.
package agents

import (
	"log/slog"
	"sort"

	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/entropy"
)

// NpcID is a unique identifier for an Npc.
type NpcID uint64

// Opening state and rates shared by every Npc.
const (
	InitialBalance = 10000.0
	InterestRate   = 0.05 // Savings growth per tick
)

// Exchange is the market an Npc trades against during a tick.
type Exchange interface {
	// Active lists the businesses open for trading, in listing order.
	Active() []*economy.Business
	// Lookup resolves a holding to a listed business.
	Lookup(id economy.BusinessID) (*economy.Business, bool)
	// Charter creates a business with a fresh identity. The caller decides
	// whether it gets listed.
	Charter(name string) *economy.Business
}

// Npc is a trader holding cash, savings, a stock portfolio and the
// businesses it founded.
type Npc struct {
	ID   NpcID
	Name string

	balance float64
	savings float64
	score   int

	holdings  map[economy.BusinessID]int     // Shares held; zero entries are removed
	costBasis map[economy.BusinessID]float64 // Price paid per share at the last purchase

	owned   []*economy.Business
	founded int // Businesses founded over the Npc's life, for naming

	pending []Action
	rng     entropy.Source
	log     *slog.Logger
}

// NewNpc creates an Npc with the default opening balance.
func NewNpc(id NpcID, name string, rng entropy.Source, logger *slog.Logger) *Npc {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Npc{
		ID:        id,
		Name:      name,
		balance:   InitialBalance,
		holdings:  make(map[economy.BusinessID]int),
		costBasis: make(map[economy.BusinessID]float64),
		rng:       rng,
		log:       logger.With("npc", name),
	}
}

func (n *Npc) Balance() float64 { return n.balance }
func (n *Npc) Savings() float64 { return n.savings }
func (n *Npc) Score() int       { return n.score }

// SetSavings seeds the savings account. Used at spawn time only.
func (n *Npc) SetSavings(amount float64) {
	n.savings = amount
}

// Position returns the shares held in a business.
func (n *Npc) Position(id economy.BusinessID) (int, bool) {
	shares, ok := n.holdings[id]
	return shares, ok
}

// CostBasisOf returns the per-share price of the last purchase in a business.
func (n *Npc) CostBasisOf(id economy.BusinessID) (float64, bool) {
	price, ok := n.costBasis[id]
	return price, ok
}

// Holdings returns a copy of the portfolio.
func (n *Npc) Holdings() map[economy.BusinessID]int {
	out := make(map[economy.BusinessID]int, len(n.holdings))
	for id, shares := range n.holdings {
		out[id] = shares
	}
	return out
}

// heldIDs returns portfolio keys in ascending order so decisions replay
// identically for a given seed.
func (n *Npc) heldIDs() []economy.BusinessID {
	ids := make([]economy.BusinessID, 0, len(n.holdings))
	for id := range n.holdings {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PortfolioValue marks every position to the current stock price.
// Positions in businesses the exchange no longer lists count as zero.
func (n *Npc) PortfolioValue(ex Exchange) float64 {
	total := 0.0
	for _, id := range n.heldIDs() {
		if b, ok := ex.Lookup(id); ok {
			total += float64(n.holdings[id]) * b.StockPrice()
		}
	}
	return total
}

// Owned returns the founded businesses still owned, in founding order.
func (n *Npc) Owned() []*economy.Business {
	out := make([]*economy.Business, len(n.owned))
	copy(out, n.owned)
	return out
}

// OwnedNames returns the names of owned businesses.
func (n *Npc) OwnedNames() []string {
	names := make([]string, 0, len(n.owned))
	for _, b := range n.owned {
		names = append(names, b.Name)
	}
	return names
}

// OwnedBusiness finds an owned business by name.
func (n *Npc) OwnedBusiness(name string) (*economy.Business, bool) {
	for _, b := range n.owned {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}

// Dissolve releases every owned business and returns their IDs so the
// owner of the market can delist them. The Npc owns nothing afterwards.
func (n *Npc) Dissolve() []economy.BusinessID {
	ids := make([]economy.BusinessID, 0, len(n.owned))
	for _, b := range n.owned {
		ids = append(ids, b.ID())
	}
	n.owned = nil
	return ids
}
