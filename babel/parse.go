package babel

import (
	"math/big"
	"net/netip"
	"strconv"
	"strings"

	"github.com/encodeous/tollmesh/state"
)

// record is the "<key> <value> ..." tail of an add line
type record struct {
	line string
	id   string
	kv   map[string]string
}

func newRecord(line string, fields []string) (*record, error) {
	if len(fields) < 1 {
		return nil, state.NewProtocolError(line, "record has no id")
	}
	rest := fields[1:]
	if len(rest)%2 != 0 {
		return nil, state.NewProtocolError(line, "key %q has no value", rest[len(rest)-1])
	}
	r := &record{line: line, id: fields[0], kv: make(map[string]string, len(rest)/2)}
	for i := 0; i < len(rest); i += 2 {
		r.kv[rest[i]] = rest[i+1]
	}
	return r, nil
}

func (r *record) str(key string, required bool) (string, bool, error) {
	v, ok := r.kv[key]
	if !ok && required {
		return "", false, state.NewProtocolError(r.line, "missing field %q", key)
	}
	return v, ok, nil
}

func (r *record) uint(key string, required bool) (uint64, error) {
	v, ok, err := r.str(key, required)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, state.NewProtocolError(r.line, "field %q must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func (r *record) amount(key string, required bool) (*big.Int, error) {
	v, ok, err := r.str(key, required)
	if err != nil || !ok {
		return nil, err
	}
	return parseAmount(r.line, key, v)
}

func parseAmount(line, key, v string) (*big.Int, error) {
	// SetString also accepts a leading sign
	if v == "" || strings.TrimLeft(v, "0123456789") != "" {
		return nil, state.NewProtocolError(line, "field %q must be a non-negative integer, got %q", key, v)
	}
	n, ok := new(big.Int).SetString(v, 10)
	if !ok {
		return nil, state.NewProtocolError(line, "field %q must be a non-negative integer, got %q", key, v)
	}
	return n, nil
}

func (r *record) addr(key string, required bool) (netip.Addr, error) {
	v, ok, err := r.str(key, required)
	if err != nil || !ok {
		return netip.Addr{}, err
	}
	a, err := netip.ParseAddr(v)
	if err != nil {
		return netip.Addr{}, state.NewProtocolError(r.line, "field %q is not an address: %v", key, err)
	}
	return a, nil
}

func (r *record) prefix(key string, required bool) (netip.Prefix, error) {
	v, ok, err := r.str(key, required)
	if err != nil || !ok {
		return netip.Prefix{}, err
	}
	p, err := netip.ParsePrefix(v)
	if err != nil {
		return netip.Prefix{}, state.NewProtocolError(r.line, "field %q is not a prefix: %v", key, err)
	}
	return p, nil
}

func (r *record) bool(key string, required bool) (bool, error) {
	v, ok, err := r.str(key, required)
	if err != nil || !ok {
		return false, err
	}
	switch v {
	case "yes", "true":
		return true, nil
	case "no", "false":
		return false, nil
	}
	return false, state.NewProtocolError(r.line, "field %q must be yes or no, got %q", key, v)
}

func parseInterface(r *record) (Interface, error) {
	var err error
	itf := Interface{Name: r.id}
	if itf.Up, err = r.bool("up", false); err != nil {
		return itf, err
	}
	if itf.IPv6, err = r.addr("ipv6", false); err != nil {
		return itf, err
	}
	if itf.IPv4, err = r.addr("ipv4", false); err != nil {
		return itf, err
	}
	return itf, nil
}

func parseNeighbour(r *record) (Neighbour, error) {
	var err error
	n := Neighbour{ID: r.id}
	if n.Address, err = r.addr("address", true); err != nil {
		return n, err
	}
	if n.Iface, _, err = r.str("if", true); err != nil {
		return n, err
	}
	if v, ok := r.kv["reach"]; ok {
		reach, perr := strconv.ParseUint(v, 16, 16)
		if perr != nil {
			return n, state.NewProtocolError(r.line, "field \"reach\" must be hex, got %q", v)
		}
		n.Reach = uint16(reach)
	}
	if v, ok := r.kv["rtt"]; ok {
		rtt, perr := strconv.ParseFloat(v, 64)
		if perr != nil || rtt < 0 {
			return n, state.NewProtocolError(r.line, "field \"rtt\" must be a non-negative number, got %q", v)
		}
		n.Rtt = rtt
	}
	for key, dst := range map[string]*uint64{
		"rxcost":  &n.RxCost,
		"txcost":  &n.TxCost,
		"rttcost": &n.RttCost,
		"cost":    &n.Cost,
	} {
		if *dst, err = r.uint(key, false); err != nil {
			return n, err
		}
	}
	return n, nil
}

func parseXRoute(r *record) (XRoute, error) {
	var err error
	x := XRoute{}
	if x.Prefix, err = r.prefix("prefix", true); err != nil {
		return x, err
	}
	if x.From, err = r.prefix("from", false); err != nil {
		return x, err
	}
	if x.Metric, err = r.uint("metric", false); err != nil {
		return x, err
	}
	return x, nil
}

func parseRoute(r *record) (Route, error) {
	var err error
	rt := Route{ID: r.id}
	if rt.Prefix, err = r.prefix("prefix", true); err != nil {
		return rt, err
	}
	if rt.From, err = r.prefix("from", false); err != nil {
		return rt, err
	}
	if rt.Installed, err = r.bool("installed", true); err != nil {
		return rt, err
	}
	rt.RouterID = r.kv["id"]
	if rt.Metric, err = r.uint("metric", false); err != nil {
		return rt, err
	}
	if rt.RefMetric, err = r.uint("refmetric", false); err != nil {
		return rt, err
	}
	if rt.Price, err = r.amount("price", true); err != nil {
		return rt, err
	}
	if rt.Fee, err = r.amount("fee", false); err != nil {
		return rt, err
	}
	if rt.Via, err = r.addr("via", false); err != nil {
		return rt, err
	}
	rt.Iface = r.kv["if"]
	return rt, nil
}

// parseLine applies one line of a dump to snap. It never sees the terminating "ok".
func parseLine(line string, snap *Snapshot) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "add":
		if len(fields) < 2 {
			return state.NewProtocolError(line, "add without a record kind")
		}
		switch fields[1] {
		case "interface", "neighbour", "xroute", "route":
		default:
			// newer daemons may export kinds we do not know about
			return nil
		}
		r, err := newRecord(line, fields[2:])
		if err != nil {
			return err
		}
		switch fields[1] {
		case "interface":
			itf, err := parseInterface(r)
			if err != nil {
				return err
			}
			snap.Interfaces = append(snap.Interfaces, itf)
		case "neighbour":
			n, err := parseNeighbour(r)
			if err != nil {
				return err
			}
			snap.Neighbours = append(snap.Neighbours, n)
		case "xroute":
			x, err := parseXRoute(r)
			if err != nil {
				return err
			}
			snap.XRoutes = append(snap.XRoutes, x)
		case "route":
			rt, err := parseRoute(r)
			if err != nil {
				return err
			}
			snap.Routes = append(snap.Routes, rt)
		}
	case "change", "flush":
		// monitor records, a dump is a complete table
	case "local":
		if len(fields) < 2 {
			return state.NewProtocolError(line, "local without a key")
		}
		switch fields[1] {
		case "fee", "price":
		default:
			return nil
		}
		if len(fields) != 3 {
			return state.NewProtocolError(line, "local %s takes exactly one value", fields[1])
		}
		v, err := parseAmount(line, fields[1], fields[2])
		if err != nil {
			return err
		}
		if fields[1] == "fee" {
			snap.LocalFee = v
		} else {
			snap.LocalPrice = v
		}
	default:
		return state.NewProtocolError(line, "unexpected keyword %q", fields[0])
	}
	return nil
}
