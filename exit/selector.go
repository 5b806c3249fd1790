package exit

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/state"
	"github.com/gaissmai/bart"
)

// Offer is a candidate priced against the current routing table
type Offer struct {
	Candidate state.ExitCandidate
	// Price is nil when no installed route reaches the exit
	Price *big.Int
}

func (o Offer) Reachable() bool {
	return o.Price != nil
}

// routeTable indexes installed routes by prefix for longest prefix match
func routeTable(snap *babel.Snapshot) *bart.Table[*big.Int] {
	tbl := new(bart.Table[*big.Int])
	for _, r := range snap.Routes {
		if !r.Installed || !r.Prefix.IsValid() || r.Price == nil {
			continue
		}
		tbl.Insert(r.Prefix.Masked(), r.Price)
	}
	return tbl
}

// PriceExits prices every candidate by the installed route that covers its address
func PriceExits(candidates []state.ExitCandidate, snap *babel.Snapshot) []Offer {
	tbl := routeTable(snap)
	offers := make([]Offer, len(candidates))
	for i, c := range candidates {
		offers[i] = Offer{Candidate: c}
		if price, ok := tbl.Lookup(c.ExitIP.Unmap()); ok {
			offers[i].Price = price
		}
	}
	sort.SliceStable(offers, func(i, j int) bool {
		return better(offers[i], offers[j])
	})
	return offers
}

// better orders offers: reachable first, then by price, registration port and address
func better(a, b Offer) bool {
	if a.Reachable() != b.Reachable() {
		return a.Reachable()
	}
	if a.Reachable() {
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c < 0
		}
	}
	ca, cb := a.Candidate, b.Candidate
	if ca.RegistrationPort != cb.RegistrationPort {
		return ca.RegistrationPort < cb.RegistrationPort
	}
	if c := ca.ExitIP.Compare(cb.ExitIP); c != 0 {
		return c < 0
	}
	return ca.WgListenPort < cb.WgListenPort
}

// ChooseBestExit picks the cheapest reachable candidate. A single candidate is returned
// without reading the routing table.
func ChooseBestExit(ctx context.Context, candidates []state.ExitCandidate, source babel.Source) (state.ExitCandidate, error) {
	switch len(candidates) {
	case 0:
		return state.ExitCandidate{}, &state.ConfigurationError{Msg: "no exit candidates to choose from"}
	case 1:
		return candidates[0], nil
	}
	snap, err := source.Snapshot(ctx)
	if err != nil {
		return state.ExitCandidate{}, fmt.Errorf("reading routes for exit selection: %w", err)
	}
	return PriceExits(candidates, snap)[0].Candidate, nil
}
