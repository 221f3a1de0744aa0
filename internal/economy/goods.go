package economy

// Product is one line of a business catalogue.
type Product struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`         // Current price
	Supply       int     `json:"supply"`        // Units on hand; may go negative after a bad resupply
	Demand       float64 `json:"demand"`        // Latent demand, perturbed every tick
	ResupplyRate float64 `json:"resupply_rate"` // Scaled by the tick's random factor

	initialPrice float64
}

// InitialPrice returns the price the product was introduced at.
func (p Product) InitialPrice() float64 {
	return p.initialPrice
}

// PriceDrift returns how far the price has moved from its introduction
// price, as a ratio (0 = unchanged). Zero-priced products report 0.
func (p Product) PriceDrift() float64 {
	if p.initialPrice == 0 {
		return 0
	}
	return p.Price/p.initialPrice - 1
}
