package babel

import (
	"fmt"
	"math/big"
	"net/netip"
)

// Greeting is the banner the daemon sends when a control connection is opened
type Greeting struct {
	Protocol string // BABEL or ALTHEA
	Version  string // protocol version from the banner
	Daemon   string // daemon build from the version line
	Host     string
	MyID     string
}

type Interface struct {
	Name string
	Up   bool
	IPv6 netip.Addr
	IPv4 netip.Addr
}

type Neighbour struct {
	ID      string
	Address netip.Addr
	Iface   string
	Reach   uint16
	RxCost  uint64
	TxCost  uint64
	Rtt     float64
	RttCost uint64
	Cost    uint64
}

// XRoute is a route exported by this node
type XRoute struct {
	Prefix netip.Prefix
	From   netip.Prefix
	Metric uint64
}

type Route struct {
	ID        string
	Prefix    netip.Prefix
	From      netip.Prefix
	Installed bool
	RouterID  string
	Metric    uint64
	RefMetric uint64
	Price     *big.Int
	Fee       *big.Int
	Via       netip.Addr
	Iface     string
}

// IsHost reports whether the route covers exactly one address
func (r *Route) IsHost() bool {
	return r.Prefix.IsValid() && r.Prefix.Bits() == r.Prefix.Addr().BitLen()
}

func (r Route) String() string {
	return fmt.Sprintf("%s via %s%%%s price %s installed %t", r.Prefix, r.Via, r.Iface, r.Price, r.Installed)
}

// Snapshot is one full dump of the daemon's tables
type Snapshot struct {
	Interfaces []Interface
	Neighbours []Neighbour
	XRoutes    []XRoute
	Routes     []Route
	LocalFee   *big.Int
	LocalPrice *big.Int
}

// Fee returns the price this node charges to relay traffic, or nil if the daemon did not say
func (s *Snapshot) Fee() *big.Int {
	if s.LocalFee != nil {
		return s.LocalFee
	}
	return s.LocalPrice
}

// InstalledRoutes returns only the routes currently used for forwarding
func (s *Snapshot) InstalledRoutes() []Route {
	out := make([]Route, 0, len(s.Routes))
	for _, r := range s.Routes {
		if r.Installed {
			out = append(out, r)
		}
	}
	return out
}

// NeighbourAddrs maps interface names to the link-local addresses of the neighbours seen on them
func (s *Snapshot) NeighbourAddrs() map[string][]netip.Addr {
	out := make(map[string][]netip.Addr)
	for _, n := range s.Neighbours {
		out[n.Iface] = append(out[n.Iface], n.Address)
	}
	return out
}
