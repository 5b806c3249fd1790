package meter

import (
	"fmt"
	"math/big"
	"net/netip"
	"sort"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/counter"
	"github.com/encodeous/tollmesh/ledger"
	"github.com/encodeous/tollmesh/state"
)

// Neighbour is a directly connected peer and the local interface it is reached through
type Neighbour struct {
	Identity state.Identity
	Iface    string
}

// NeighboursFromConfig converts configured neighbours
func NeighboursFromConfig(cfg []state.NeighbourCfg) []Neighbour {
	out := make([]Neighbour, len(cfg))
	for i, n := range cfg {
		out[i] = Neighbour{Identity: n.Identity, Iface: n.Interface}
	}
	return out
}

// PriceTable is the price per byte to reach each destination host, including our own fee
type PriceTable map[netip.Addr]*big.Int

// BuildPriceTable prices every installed host route at its advertised price plus localFee.
// ownIP, if valid, is priced at zero.
func BuildPriceTable(routes []babel.Route, localFee *big.Int, ownIP netip.Addr) PriceTable {
	fee := localFee
	if fee == nil {
		fee = new(big.Int)
	}
	pt := make(PriceTable)
	for _, r := range routes {
		if !r.Installed || !r.IsHost() || r.Price == nil {
			continue
		}
		pt[r.Prefix.Addr().Unmap()] = new(big.Int).Add(r.Price, fee)
	}
	if ownIP.IsValid() {
		pt[ownIP.Unmap()] = new(big.Int)
	}
	return pt
}

type AnomalyKind int

const (
	// UnknownDestination means no installed host route prices the destination
	UnknownDestination AnomalyKind = iota
	// UnknownInterface means no neighbour is configured on the interface
	UnknownInterface
)

func (k AnomalyKind) String() string {
	if k == UnknownInterface {
		return "unknown interface"
	}
	return "unknown destination"
}

// Anomaly is a counter entry that could not be attributed to a neighbour. It is skipped.
type Anomaly struct {
	Kind    AnomalyKind
	Inbound bool
	Key     counter.Key
	Bytes   uint64
}

func (a Anomaly) direction() string {
	if a.Inbound {
		return "inbound"
	}
	return "outbound"
}

func (a Anomaly) Error() string {
	return fmt.Sprintf("%s: %s %d bytes for %s", a.Kind, a.direction(), a.Bytes, a.Key)
}

// Anomaly identifies the entry independently of its byte count
func (a Anomaly) Anomaly() string {
	return fmt.Sprintf("%s/%s/%s", a.Kind, a.direction(), a.Key)
}

var _ state.DataAnomaly = Anomaly{}

// Input is everything one accounting interval is computed from
type Input struct {
	Snapshot   *babel.Snapshot
	OwnIP      netip.Addr
	Counters   counter.Tables
	Neighbours []Neighbour
}

type Result struct {
	// Updates has one entry per neighbour, ordered by interface name
	Updates   []ledger.Update
	Anomalies []Anomaly
	Prices    PriceTable
}

// Calculate attributes the interval's traffic to neighbours.
//
// Traffic received from a neighbour costs it the full price of the destination. Traffic sent
// to a neighbour earns it the destination price less our own fee. Entries that cannot be
// priced or attributed are reported as anomalies and contribute nothing.
func Calculate(in Input) Result {
	var routes []babel.Route
	var fee *big.Int
	if in.Snapshot != nil {
		routes = in.Snapshot.Routes
		fee = in.Snapshot.Fee()
	}
	if fee == nil {
		fee = new(big.Int)
	}
	prices := BuildPriceTable(routes, fee, in.OwnIP)

	neighbours := append([]Neighbour(nil), in.Neighbours...)
	sort.SliceStable(neighbours, func(i, j int) bool {
		return neighbours[i].Iface < neighbours[j].Iface
	})

	byIface := make(map[string]state.Identity, len(neighbours))
	debts := make(map[state.Identity]*big.Int, len(neighbours))
	order := make([]state.Identity, 0, len(neighbours))
	for _, n := range neighbours {
		byIface[n.Iface] = n.Identity
		if _, ok := debts[n.Identity]; !ok {
			debts[n.Identity] = new(big.Int)
			order = append(order, n.Identity)
		}
	}

	res := Result{Prices: prices}
	if len(neighbours) == 0 {
		return res
	}

	own := in.OwnIP.Unmap()
	resolve := func(k counter.Key, bytes uint64, inbound bool) (*big.Int, *big.Int, bool) {
		// traffic for this node is free in both directions
		if own.IsValid() && k.Dest.Unmap() == own {
			return nil, nil, false
		}
		price, ok := prices[k.Dest.Unmap()]
		if !ok {
			res.Anomalies = append(res.Anomalies, Anomaly{Kind: UnknownDestination, Inbound: inbound, Key: k, Bytes: bytes})
			return nil, nil, false
		}
		id, ok := byIface[k.Iface]
		if !ok {
			res.Anomalies = append(res.Anomalies, Anomaly{Kind: UnknownInterface, Inbound: inbound, Key: k, Bytes: bytes})
			return nil, nil, false
		}
		return price, debts[id], true
	}

	inbound := in.Counters.Inbound()
	for _, k := range inbound.Keys() {
		bytes := inbound[k]
		price, debt, ok := resolve(k, bytes, true)
		if !ok {
			continue
		}
		amt := new(big.Int).SetUint64(bytes)
		debt.Sub(debt, amt.Mul(amt, price))
	}

	outbound := in.Counters.Outbound()
	for _, k := range outbound.Keys() {
		bytes := outbound[k]
		price, debt, ok := resolve(k, bytes, false)
		if !ok {
			continue
		}
		margin := new(big.Int).Sub(price, fee)
		amt := new(big.Int).SetUint64(bytes)
		debt.Add(debt, amt.Mul(amt, margin))
	}

	res.Updates = make([]ledger.Update, 0, len(order))
	for _, id := range order {
		res.Updates = append(res.Updates, ledger.Update{From: id, Amount: debts[id]})
	}
	return res
}
