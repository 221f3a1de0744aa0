// Npc behavior: one decision pass per tick.
// Every step is best-effort: a rejected trade is recorded and the pass
// moves on.
package agents

import (
	"fmt"

	"github.com/talgya/bazaar/internal/economy"
)

// Decision thresholds. Each is the roll that must be exceeded.
const (
	SellChance    = 0.5
	BuyStockRoll  = 0.5
	ShoppingRoll  = 0.5
	FoundingRoll  = 0.7
	DisposalRoll  = 0.9
	MaxBasketSize = 10

	// maxOrderShares caps a single stock order so near-zero prices cannot
	// overflow the share count.
	maxOrderShares = 1_000_000_000
)

// Action is one recorded outcome of an Npc decision.
type Action struct {
	NpcID      NpcID
	Kind       ActionKind
	BusinessID economy.BusinessID
	Product    string
	Amount     int
	Price      float64 // Per share, or units on hand for product purchases
	Total      float64 // Cash moved
	Err        error   // Non-nil when the action was rejected
	Detail     string  // Human-readable description for event log
}

// Rejected reports whether the action failed.
func (a Action) Rejected() bool {
	return a.Err != nil
}

// ActionKind enumerates what an Npc can do.
type ActionKind uint8

const (
	ActionBuyStock ActionKind = iota
	ActionSellStock
	ActionBuyProduct
	ActionFound
	ActionDispose
	ActionWriteOff // Position lost to a delisting
)

func (k ActionKind) String() string {
	switch k {
	case ActionBuyStock:
		return "buy_stock"
	case ActionSellStock:
		return "sell_stock"
	case ActionBuyProduct:
		return "buy_product"
	case ActionFound:
		return "found"
	case ActionDispose:
		return "dispose"
	case ActionWriteOff:
		return "write_off"
	default:
		return "unknown"
	}
}

// Report is what an Npc hands back to the market owner after a tick.
type Report struct {
	Actions  []Action
	Founded  []*economy.Business  // To be listed by the market owner
	Disposed []economy.BusinessID // To be delisted by the market owner
}

// Update runs one tick of decisions against ex. It never lists or delists
// businesses itself; those changes come back in the Report.
func (n *Npc) Update(ex Exchange) Report {
	var report Report

	n.savings += n.savings * InterestRate

	n.takeProfits(ex)

	active := ex.Active()
	n.buyStocks(active)

	roll := n.rng.Float64()
	if roll > ShoppingRoll {
		n.shop(active)
	}
	if roll > FoundingRoll {
		report.Founded = append(report.Founded, n.found(ex))
	}
	if roll > DisposalRoll && len(n.owned) > 0 {
		report.Disposed = append(report.Disposed, n.dispose())
	}

	report.Actions = n.DrainActions()
	return report
}

// takeProfits sells part of each position trading above its cost basis.
func (n *Npc) takeProfits(ex Exchange) {
	for _, id := range n.heldIDs() {
		b, ok := ex.Lookup(id)
		if !ok {
			n.writeOff(id)
			continue
		}
		roll := n.rng.Float64()
		if b.StockPrice() > n.costBasis[id] && roll > SellChance {
			amount := int(float64(n.holdings[id]) * roll)
			if amount > 0 {
				_, _ = n.SellStock(b, amount)
			}
		}
	}
}

// buyStocks rolls once per business for a position sized against the
// current balance.
func (n *Npc) buyStocks(active []*economy.Business) {
	for _, b := range active {
		roll := n.rng.Float64()
		if roll <= BuyStockRoll {
			continue
		}
		price := b.StockPrice()
		if price <= 0 {
			continue
		}
		size := n.rng.Float64() * n.balance / price
		if size > maxOrderShares {
			size = maxOrderShares
		}
		_, _ = n.BuyStock(b, int(size))
	}
}

// shop buys a random quantity of one random product from every business
// that has a catalogue.
func (n *Npc) shop(active []*economy.Business) {
	for _, b := range active {
		names := b.ProductNames()
		if len(names) == 0 {
			continue
		}
		idx := int(n.rng.Float64() * float64(len(names)))
		amount := int(n.rng.Float64() * MaxBasketSize)
		_, _ = n.Buy(b, names[idx], amount)
	}
}

func (n *Npc) found(ex Exchange) *economy.Business {
	n.founded++
	name := fmt.Sprintf("%s Venture %d", n.Name, n.founded)
	b := ex.Charter(name)
	n.owned = append(n.owned, b)

	n.log.Info("business founded", "business", b.Name, "business_id", b.ID())
	n.record(Action{Kind: ActionFound, BusinessID: b.ID(),
		Detail: fmt.Sprintf("%s founded %s", n.Name, b.Name)})
	return b
}

func (n *Npc) dispose() economy.BusinessID {
	idx := int(n.rng.Float64() * float64(len(n.owned)))
	b := n.owned[idx]
	n.owned = append(n.owned[:idx], n.owned[idx+1:]...)

	n.log.Info("business disposed", "business", b.Name, "business_id", b.ID())
	n.record(Action{Kind: ActionDispose, BusinessID: b.ID(),
		Detail: fmt.Sprintf("%s disposed of %s", n.Name, b.Name)})
	return b.ID()
}
