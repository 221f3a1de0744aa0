package economy

import "github.com/talgya/bazaar/internal/entropy"

// ID range drawn from when allocating business identities.
const (
	MinBusinessID BusinessID = 100000000
	MaxBusinessID BusinessID = 999999999
)

// maxDraws bounds random probing before the pool falls back to a linear scan.
const maxDraws = 64

// IDPool hands out business IDs from a collision-checked random pool.
// One pool belongs to one simulation run.
type IDPool struct {
	rng  entropy.Source
	used map[BusinessID]struct{}
}

// NewIDPool creates an empty pool drawing from rng.
func NewIDPool(rng entropy.Source) *IDPool {
	if rng == nil {
		rng = entropy.Crypto{}
	}
	return &IDPool{rng: rng, used: make(map[BusinessID]struct{})}
}

// Allocate returns an ID not currently held by any live business.
func (p *IDPool) Allocate() BusinessID {
	span := float64(MaxBusinessID - MinBusinessID + 1)
	candidate := MinBusinessID
	for i := 0; i < maxDraws; i++ {
		candidate = MinBusinessID + BusinessID(p.rng.Float64()*span)
		if candidate > MaxBusinessID {
			candidate = MaxBusinessID
		}
		if _, taken := p.used[candidate]; !taken {
			p.used[candidate] = struct{}{}
			return candidate
		}
	}

	// Degenerate source: walk forward from the last draw.
	for {
		candidate++
		if candidate > MaxBusinessID {
			candidate = MinBusinessID
		}
		if _, taken := p.used[candidate]; !taken {
			p.used[candidate] = struct{}{}
			return candidate
		}
	}
}

// Release returns id to the pool once its business is gone.
func (p *IDPool) Release(id BusinessID) {
	delete(p.used, id)
}

// InUse returns the number of live IDs.
func (p *IDPool) InUse() int {
	return len(p.used)
}

// Registry is the ordered set of listed businesses with an ID lookup table.
type Registry struct {
	order []*Business
	index map[BusinessID]*Business
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{index: make(map[BusinessID]*Business)}
}

// List appends b to the active set. Listing an already listed ID is a no-op.
func (r *Registry) List(b *Business) bool {
	if _, ok := r.index[b.ID()]; ok {
		return false
	}
	r.order = append(r.order, b)
	r.index[b.ID()] = b
	return true
}

// Delist removes the business with id, preserving the order of the rest.
func (r *Registry) Delist(id BusinessID) (*Business, bool) {
	b, ok := r.index[id]
	if !ok {
		return nil, false
	}
	delete(r.index, id)
	for i, cur := range r.order {
		if cur.ID() == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return b, true
}

// Lookup resolves an ID to a listed business.
func (r *Registry) Lookup(id BusinessID) (*Business, bool) {
	b, ok := r.index[id]
	return b, ok
}

// Active returns a snapshot of the listed businesses in listing order.
func (r *Registry) Active() []*Business {
	out := make([]*Business, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of listed businesses.
func (r *Registry) Len() int {
	return len(r.order)
}
