// Package catalog generates starting product catalogues using layered
// simplex noise, so neighbouring businesses carry related goods and prices.
package catalog

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/bazaar/internal/economy"
	"github.com/talgya/bazaar/internal/entropy"
)

// GenConfig holds catalogue generation parameters.
type GenConfig struct {
	Seed        int64
	MinProducts int     // Products per business, inclusive bounds
	MaxProducts int
	BasePrice   float64 // Prices fall in [0.5, 1.5) × BasePrice
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:        42,
		MinProducts: 1,
		MaxProducts: 4,
		BasePrice:   10,
	}
}

// Goods is the pool product names are drawn from.
var Goods = []string{
	"Widget", "Gadget", "Sprocket", "Gizmo", "Lantern", "Rope",
	"Grain", "Timber", "Cloth", "Tonic", "Ingot", "Pottery",
}

// Generator stocks businesses with products.
type Generator struct {
	cfg     GenConfig
	breadth opensimplex.Noise // How many products a business carries
	offset  opensimplex.Noise // Where in the goods pool its line starts
	price   opensimplex.Noise
}

// NewGenerator creates a generator. Bounds are normalised so that
// 1 <= MinProducts <= MaxProducts <= len(Goods).
func NewGenerator(cfg GenConfig) *Generator {
	if cfg.MinProducts < 1 {
		cfg.MinProducts = 1
	}
	if cfg.MaxProducts > len(Goods) {
		cfg.MaxProducts = len(Goods)
	}
	if cfg.MaxProducts < cfg.MinProducts {
		cfg.MaxProducts = cfg.MinProducts
	}
	if cfg.BasePrice <= 0 {
		cfg.BasePrice = DefaultGenConfig().BasePrice
	}

	seed := cfg.Seed + entropy.SaltCatalog
	return &Generator{
		cfg:     cfg,
		breadth: opensimplex.NewNormalized(seed),
		offset:  opensimplex.NewNormalized(seed + 1),
		price:   opensimplex.NewNormalized(seed + 2),
	}
}

// Line is one generated catalogue entry.
type Line struct {
	Name  string
	Price float64
}

// Lines returns the catalogue for the business with the given ordinal.
// The same ordinal always yields the same catalogue for a seed.
func (g *Generator) Lines(ordinal uint64) []Line {
	// Sample along a diagonal so consecutive ordinals are correlated.
	x := float64(ordinal) * 0.37
	y := float64(ordinal) * 0.21

	span := g.cfg.MaxProducts - g.cfg.MinProducts + 1
	count := g.cfg.MinProducts + int(octaveNoise(g.breadth, x, y, 2, 1.0, 0.5)*float64(span))
	if count > g.cfg.MaxProducts {
		count = g.cfg.MaxProducts
	}

	start := int(g.offset.Eval2(x, y) * float64(len(Goods)))
	lines := make([]Line, 0, count)
	for i := 0; i < count; i++ {
		name := Goods[(start+i)%len(Goods)]
		level := octaveNoise(g.price, x, float64(i)*0.83, 3, 1.0, 0.5)
		price := g.cfg.BasePrice * (0.5 + level)
		lines = append(lines, Line{Name: name, Price: math.Round(price*100) / 100})
	}
	return lines
}

// Stock adds the generated catalogue to b and returns the names added.
func (g *Generator) Stock(b *economy.Business, ordinal uint64) []string {
	var added []string
	for _, line := range g.Lines(ordinal) {
		if err := b.AddProduct(line.Name, line.Price); err != nil {
			continue
		}
		added = append(added, line.Name)
	}
	return added
}

// octaveNoise sums several octaves of noise, normalised back to [0, 1).
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
