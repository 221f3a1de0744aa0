// Package economy provides businesses: stock price, product catalogue and
// the per-tick market dynamics that perturb them.
package economy

import (
	"errors"
	"sort"

	"github.com/talgya/bazaar/internal/entropy"
)

// BusinessID is the stable identity of a business. Portfolios and ledgers
// key on it rather than on the business value itself.
type BusinessID int

// Starting values for every business and product.
const (
	InitialStockPrice  = 100.0
	InitialStockDemand = 1.0
	InitialBalance     = 10000.0

	InitialSupply       = 50
	InitialDemand       = 50.0
	InitialResupplyRate = 50.0

	// PriceSensitivity scales the supply/demand gap into a price move.
	PriceSensitivity = 0.1
	// DemandShockChance is the roll a tick must beat for stock demand to move.
	DemandShockChance = 0.2
	// ShockAmplitude bounds the shared random factor to [-ShockAmplitude, ShockAmplitude).
	ShockAmplitude = 5.0
)

var (
	ErrDuplicateProduct = errors.New("product already exists")
	ErrUnknownProduct   = errors.New("unknown product")
)

// Business is a listed company with a tradable stock and a product catalogue.
type Business struct {
	Name        string
	Description string

	id          BusinessID
	stockPrice  float64
	stockDemand float64
	balance     float64
	score       int

	products map[string]*Product
	rng      entropy.Source
}

// NewBusiness creates a business with the default opening state. rng drives
// every Update; pass a seeded source for reproducible runs.
func NewBusiness(id BusinessID, name, description string, rng entropy.Source) *Business {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	return &Business{
		Name:        name,
		Description: description,
		id:          id,
		stockPrice:  InitialStockPrice,
		stockDemand: InitialStockDemand,
		balance:     InitialBalance,
		products:    make(map[string]*Product),
		rng:         rng,
	}
}

func (b *Business) ID() BusinessID       { return b.id }
func (b *Business) StockPrice() float64  { return b.stockPrice }
func (b *Business) StockDemand() float64 { return b.stockDemand }
func (b *Business) Balance() float64     { return b.balance }
func (b *Business) Score() int           { return b.score }

// InitialStockPrice returns the listing price every business opens at.
func (b *Business) InitialStockPrice() float64 { return InitialStockPrice }

// AddBalance credits (or, when negative, debits) the treasury. No floor.
func (b *Business) AddBalance(amount float64) {
	b.balance += amount
}

// Supply returns the units on hand for product, or 0 if it is not sold here.
func (b *Business) Supply(product string) int {
	if p, ok := b.products[product]; ok {
		return p.Supply
	}
	return 0
}

// SetSupply overwrites the supply of an existing product. It refuses to
// create a product so the catalogue never holds partial entries.
func (b *Business) SetSupply(product string, amount int) error {
	p, ok := b.products[product]
	if !ok {
		return ErrUnknownProduct
	}
	p.Supply = amount
	return nil
}

// AddProduct introduces a product at price with default supply, demand and
// resupply rate. An existing product is left untouched.
func (b *Business) AddProduct(name string, price float64) error {
	if _, ok := b.products[name]; ok {
		return ErrDuplicateProduct
	}
	b.products[name] = &Product{
		Name:         name,
		Price:        price,
		initialPrice: price,
		Supply:       InitialSupply,
		Demand:       InitialDemand,
		ResupplyRate: InitialResupplyRate,
	}
	return nil
}

// RemoveProduct drops a product and all its attributes. Reports whether it existed.
func (b *Business) RemoveProduct(name string) bool {
	if _, ok := b.products[name]; !ok {
		return false
	}
	delete(b.products, name)
	return true
}

// Product returns a copy of the named product.
func (b *Business) Product(name string) (Product, bool) {
	p, ok := b.products[name]
	if !ok {
		return Product{}, false
	}
	return *p, true
}

// ProductCount returns the catalogue size.
func (b *Business) ProductCount() int {
	return len(b.products)
}

// ProductNames returns the catalogue in sorted order.
func (b *Business) ProductNames() []string {
	names := make([]string, 0, len(b.products))
	for name := range b.products {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProductPrices returns current prices in ProductNames order.
func (b *Business) ProductPrices() []float64 {
	names := b.ProductNames()
	prices := make([]float64, len(names))
	for i, name := range names {
		prices[i] = b.products[name].Price
	}
	return prices
}

// Update advances the business by one tick. A single roll and a single
// random factor are drawn; the stock and every product share that factor.
func (b *Business) Update() {
	roll := b.rng.Float64()
	factor := b.rng.Float64()*2*ShockAmplitude - ShockAmplitude

	// Demand may swing negative here; the price absorbs the full swing
	// before demand is floored.
	if roll > DemandShockChance {
		b.stockDemand += factor * b.stockDemand
	}
	b.stockPrice += b.stockDemand
	if b.stockPrice < 0 {
		b.stockPrice = 0
	}
	if b.stockDemand < 0 {
		b.stockDemand = 0
	}

	for _, p := range b.products {
		p.Demand += factor * p.Demand
	}

	for _, p := range b.products {
		if p.Supply > 0 {
			p.Price += (p.Demand - float64(p.Supply)) * PriceSensitivity
		}
	}

	// Resupply truncates toward zero and can drain supply below zero.
	for _, p := range b.products {
		p.Supply += int(p.ResupplyRate * factor)
	}
}

// Quote is a point-in-time view of a business for reports and journals.
type Quote struct {
	ID          BusinessID `json:"id"`
	Name        string     `json:"name"`
	StockPrice  float64    `json:"stock_price"`
	StockDemand float64    `json:"stock_demand"`
	Balance     float64    `json:"balance"`
	Products    int        `json:"products"`
	GoodsPrice  float64    `json:"goods_price"` // Mean current product price
}

// Quote captures the current state.
func (b *Business) Quote() Quote {
	q := Quote{
		ID:          b.id,
		Name:        b.Name,
		StockPrice:  b.stockPrice,
		StockDemand: b.stockDemand,
		Balance:     b.balance,
		Products:    len(b.products),
	}
	prices := b.ProductPrices()
	for _, p := range prices {
		q.GoodsPrice += p
	}
	if len(prices) > 0 {
		q.GoodsPrice /= float64(len(prices))
	}
	return q
}
