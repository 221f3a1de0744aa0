package agents

import (
	"fmt"
	"math"

	"github.com/talgya/bazaar/internal/economy"
)

// stockScore is the score awarded for a stock trade of amount shares at price.
func stockScore(price float64, amount int) int {
	return int(2 * math.Sqrt(price) * math.Log2(float64(amount)))
}

// BuyStock buys amount shares of b at the current stock price and records
// that price as the new cost basis. Returns the shares bought.
func (n *Npc) BuyStock(b *economy.Business, amount int) (int, error) {
	price := b.StockPrice()
	if amount <= 0 {
		return 0, n.reject(ActionBuyStock, b, "", amount, price, fmt.Errorf("buy %d shares of %s: %w", amount, b.Name, ErrInvalidAmount))
	}
	cost := float64(amount) * price
	if cost > n.balance {
		return 0, n.reject(ActionBuyStock, b, "", amount, price, fmt.Errorf("buy %d shares of %s: %w", amount, b.Name, ErrInsufficientFunds))
	}

	n.holdings[b.ID()] += amount
	n.costBasis[b.ID()] = price
	n.balance -= cost
	n.score += stockScore(price, amount)

	n.log.Debug("bought stock", "business", b.Name, "amount", amount, "price", price)
	n.record(Action{Kind: ActionBuyStock, BusinessID: b.ID(), Amount: amount, Price: price, Total: cost,
		Detail: fmt.Sprintf("%s bought %d shares of %s", n.Name, amount, b.Name)})
	return amount, nil
}

// SellStock sells amount shares of b at the current stock price. Selling
// the whole position closes it. Returns the shares sold.
func (n *Npc) SellStock(b *economy.Business, amount int) (int, error) {
	price := b.StockPrice()
	if amount <= 0 {
		return 0, n.reject(ActionSellStock, b, "", amount, price, fmt.Errorf("sell %d shares of %s: %w", amount, b.Name, ErrInvalidAmount))
	}
	held, ok := n.holdings[b.ID()]
	if !ok {
		return 0, n.reject(ActionSellStock, b, "", amount, price, fmt.Errorf("sell shares of %s: %w", b.Name, ErrNoPosition))
	}
	if held < amount {
		return 0, n.reject(ActionSellStock, b, "", amount, price, fmt.Errorf("sell %d of %d shares of %s: %w", amount, held, b.Name, ErrInsufficientShares))
	}

	proceeds := float64(amount) * price
	n.holdings[b.ID()] = held - amount
	n.balance += proceeds
	n.score += stockScore(price, amount)

	n.log.Debug("sold stock", "business", b.Name, "amount", amount, "price", price)
	if price < b.InitialStockPrice() {
		n.log.Debug("stock trading below listing price", "business", b.Name, "price", price)
	}
	n.record(Action{Kind: ActionSellStock, BusinessID: b.ID(), Amount: amount, Price: price, Total: proceeds,
		Detail: fmt.Sprintf("%s sold %d shares of %s", n.Name, amount, b.Name)})

	if n.holdings[b.ID()] == 0 {
		n.closePosition(b.ID())
		n.log.Debug("position closed", "business", b.Name)
	}
	return amount, nil
}

// Buy purchases amount units of product from b. The bill is amount times
// the units on hand before the sale, and the seller's treasury is credited
// with it. Returns the amount paid.
func (n *Npc) Buy(b *economy.Business, product string, amount int) (float64, error) {
	if amount <= 0 {
		return 0, n.reject(ActionBuyProduct, b, product, amount, 0, fmt.Errorf("buy %d %s: %w", amount, product, ErrInvalidAmount))
	}
	supply := b.Supply(product)
	if supply == 0 {
		return 0, n.reject(ActionBuyProduct, b, product, amount, 0, fmt.Errorf("buy %s from %s: %w", product, b.Name, ErrProductUnavailable))
	}
	if supply < amount {
		return 0, n.reject(ActionBuyProduct, b, product, amount, 0, fmt.Errorf("buy %d %s from %s with %d on hand: %w", amount, product, b.Name, supply, ErrInsufficientSupply))
	}
	cost := float64(amount * supply)
	if cost > n.balance {
		return 0, n.reject(ActionBuyProduct, b, product, amount, float64(supply), fmt.Errorf("buy %d %s: %w", amount, product, ErrInsufficientFunds))
	}

	remaining := supply - amount
	if err := b.SetSupply(product, remaining); err != nil {
		return 0, n.reject(ActionBuyProduct, b, product, amount, float64(supply), fmt.Errorf("buy %d %s: %w", amount, product, err))
	}
	n.balance -= cost
	b.AddBalance(cost)
	n.score += amount * remaining

	n.log.Debug("bought product", "business", b.Name, "product", product, "amount", amount, "cost", cost)
	n.record(Action{Kind: ActionBuyProduct, BusinessID: b.ID(), Product: product, Amount: amount, Price: float64(supply), Total: cost,
		Detail: fmt.Sprintf("%s bought %d %s from %s", n.Name, amount, product, b.Name)})
	return cost, nil
}

func (n *Npc) closePosition(id economy.BusinessID) {
	delete(n.holdings, id)
	delete(n.costBasis, id)
}

// writeOff drops a position in a business that is no longer listed.
func (n *Npc) writeOff(id economy.BusinessID) {
	shares := n.holdings[id]
	n.closePosition(id)
	n.log.Info("position written off", "business_id", id, "shares", shares)
	n.record(Action{Kind: ActionWriteOff, BusinessID: id, Amount: shares,
		Detail: fmt.Sprintf("%s wrote off %d shares of delisted business %d", n.Name, shares, id)})
}

func (n *Npc) reject(kind ActionKind, b *economy.Business, product string, amount int, price float64, err error) error {
	n.log.Debug("trade rejected", "kind", kind.String(), "business", b.Name, "err", err)
	n.record(Action{Kind: kind, BusinessID: b.ID(), Product: product, Amount: amount, Price: price, Err: err,
		Detail: fmt.Sprintf("%s: %v", n.Name, err)})
	return err
}

func (n *Npc) record(a Action) {
	a.NpcID = n.ID
	n.pending = append(n.pending, a)
}

// DrainActions returns and clears the actions recorded since the last drain.
func (n *Npc) DrainActions() []Action {
	out := n.pending
	n.pending = nil
	return out
}
