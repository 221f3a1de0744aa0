// Npc spawning: sequential IDs, generated names and an independent random
// stream per Npc derived from the run seed.
package agents

import (
	"log/slog"
	"math/rand"

	"github.com/talgya/bazaar/internal/entropy"
)

// SpawnConfig controls the opening state of spawned Npcs.
type SpawnConfig struct {
	Seed           int64
	InitialSavings float64
}

// Spawner creates Npcs for the simulation.
type Spawner struct {
	cfg    SpawnConfig
	rng    *rand.Rand
	nextID NpcID
	log    *slog.Logger
}

// NewSpawner creates an Npc spawner for one run.
func NewSpawner(cfg SpawnConfig, logger *slog.Logger) *Spawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Spawner{
		cfg:    cfg,
		rng:    entropy.Derive(cfg.Seed, entropy.SaltNpcs, 0),
		nextID: 1,
		log:    logger,
	}
}

// Spawn creates one Npc with a generated name.
func (s *Spawner) Spawn() *Npc {
	return s.SpawnNamed(s.generateName())
}

// SpawnNamed creates one Npc with the given name.
func (s *Spawner) SpawnNamed(name string) *Npc {
	id := s.nextID
	s.nextID++

	n := NewNpc(id, name, entropy.Derive(s.cfg.Seed, entropy.SaltNpcs, uint64(id)), s.log)
	n.SetSavings(s.cfg.InitialSavings)
	return n
}

// SpawnPopulation creates count Npcs.
func (s *Spawner) SpawnPopulation(count int) []*Npc {
	npcs := make([]*Npc, 0, count)
	for i := 0; i < count; i++ {
		npcs = append(npcs, s.Spawn())
	}
	return npcs
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	last := lastNames[s.rng.Intn(len(lastNames))]
	return first + " " + last
}

// Name pools for procedural generation.
var firstNames = []string{
	"Aldric", "Bram", "Cedric", "Doran", "Erik", "Finn", "Gareth",
	"Halvard", "Ivan", "Jasper", "Kael", "Leif", "Magnus", "Nils",
	"Astrid", "Brenna", "Calla", "Daria", "Elara", "Freya", "Greta",
	"Helene", "Iris", "Juno", "Kira", "Lena", "Mira", "Nessa",
}

var lastNames = []string{
	"Voss", "Thornwood", "Blackwood", "Ashford", "Ironhand", "Dunmore",
	"Greenvale", "Stormcrow", "Frostborn", "Hearthstone", "Millward",
	"Copperfield", "Ravenmoor", "Silverdale", "Stoneheart", "Deepwell",
	"Brightwater", "Redforge", "Goldhaven", "Riverstone", "Mercer",
}
