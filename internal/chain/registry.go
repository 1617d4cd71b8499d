package chain

import (
	"sort"

	"controlline/internal/config"
)

// Chain is one executable automation pipeline.
type Chain struct {
	ID          string `json:"id"`
	Kind        string `json:"kind" enum:"reglament,debug"`
	Profile     string `json:"profile,omitempty"`
	Description string `json:"description,omitempty"`
}

const DebugChainID = "debug.log"

// Registry is the static chain table, built once at startup from the
// client catalog: one monthly chain per distinct profile, plus a debug
// chain that produces no side effects.
type Registry struct {
	chains map[string]Chain
}

func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{chains: map[string]Chain{}}
	for _, client := range cfg.Clients.Catalog {
		id := "reglament." + client.Profile + ".monthly"
		if _, ok := r.chains[id]; ok {
			continue
		}
		r.chains[id] = Chain{
			ID:          id,
			Kind:        "reglament",
			Profile:     client.Profile,
			Description: "Monthly obligation calendar for profile " + client.Profile,
		}
	}
	r.chains[DebugChainID] = Chain{
		ID:          DebugChainID,
		Kind:        "debug",
		Description: "Log-only chain for wiring checks",
	}
	return r
}

func (r *Registry) Get(id string) (Chain, bool) {
	c, ok := r.chains[id]
	return c, ok
}

func (r *Registry) List() []Chain {
	res := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		res = append(res, c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}
