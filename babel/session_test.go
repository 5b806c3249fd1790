package babel

import (
	"bytes"
	"io"
	"math/big"
	"net/netip"
	"strings"
	"testing"

	"github.com/encodeous/tollmesh/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeting = "BABEL 1.0\nversion babeld-1.12-pricing\nhost meshnode\nmy-id ba:27:eb:ff:fe:09:06:dd\nok\n"

const table = `local fee 1024
add interface wlan0 up true ipv6 fe80::1a8b:ec1:8542:1bd8 ipv4 10.28.119.131
add interface wg0 up true ipv6 fe80::2cee:2fff:7380:8354 ipv4 10.0.236.201
add interface wg9 up false
add neighbour 14f19a8 address fe80::2cee:2fff:648:8796 if wg0 reach ffff rxcost 256 txcost 256 rtt 26.723 rttcost 912 cost 1168
add neighbour 14f0640 address fe80::e841:e384:491e:8eb9 if wlan0 reach 9ff7 rxcost 512 txcost 256 rtt 19.323 rttcost 508 cost 1020
add xroute 10.28.119.131/32-::/0 prefix 10.28.119.131/32 from ::/0 metric 0
add route 14f0820 prefix fd00::7/128 from ::/0 installed yes id ba:27:eb:ff:fe:5b:fe:c7 metric 1596 price 3072 fee 3072 refmetric 638 via fe80::e841:e384:491e:8eb9 if wlan0
add route 14f07a0 prefix fd00::7/128 from ::/0 installed no id ba:27:eb:ff:fe:5b:fe:c7 metric 1569 price 5032 fee 5032 refmetric 752 via fe80::2cee:2fff:648:8796 if wg0
add route 14f06d8 prefix fd00::/64 from ::/0 installed yes id ba:27:eb:ff:fe:c1:2d:d5 metric 817 price 4008 fee 4008 refmetric 0 via fe80::2cee:2fff:648:8796 if wg0
ok
`

type mockStream struct {
	r io.Reader
	w bytes.Buffer
}

func (m *mockStream) Read(p []byte) (int, error)  { return m.r.Read(p) }
func (m *mockStream) Write(p []byte) (int, error) { return m.w.Write(p) }

func newMock(parts ...string) *mockStream {
	return &mockStream{r: strings.NewReader(strings.Join(parts, ""))}
}

func startedSession(t *testing.T, parts ...string) (*Session, *mockStream) {
	t.Helper()
	m := newMock(append([]string{greeting}, parts...)...)
	s := NewSession(m)
	_, err := s.Start()
	require.NoError(t, err)
	return s, m
}

func assertProtocolError(t *testing.T, err error) *state.ProtocolError {
	t.Helper()
	var pe *state.ProtocolError
	require.ErrorAs(t, err, &pe)
	return pe
}

func TestStartSession(t *testing.T) {
	s := NewSession(newMock(greeting))
	g, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, &Greeting{
		Protocol: "BABEL",
		Version:  "1.0",
		Daemon:   "babeld-1.12-pricing",
		Host:     "meshnode",
		MyID:     "ba:27:eb:ff:fe:09:06:dd",
	}, g)
	assert.Same(t, g, s.Greeting())
}

func TestStartSession_LegacyBanner(t *testing.T) {
	s := NewSession(newMock("ALTHEA 0.1\nok\n"))
	g, err := s.Start()
	require.NoError(t, err)
	assert.Equal(t, "ALTHEA", g.Protocol)
}

func TestStartSession_Malformed(t *testing.T) {
	for name, input := range map[string]string{
		"empty":         "",
		"wrong banner":  "HELLO 1.0\nok\n",
		"no version":    "BABEL\nok\n",
		"truncated":     "BABEL 1.0\nversion x\n",
		"refused":       "BABEL 1.0\nno\n",
		"garbage":       "\x00\x01\x02\n",
		"blank first":   "\nBABEL 1.0\nok\n",
		"extra in line": "BABEL 1.0 extra\nok\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewSession(newMock(input)).Start()
			assertProtocolError(t, err)
		})
	}
}

func TestReadSnapshot_NotStarted(t *testing.T) {
	_, err := NewSession(newMock(table)).ReadSnapshot()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestReadSnapshot(t *testing.T) {
	s, m := startedSession(t, table)
	snap, err := s.ReadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "dump\n", m.w.String())

	assert.Equal(t, 0, big.NewInt(1024).Cmp(snap.LocalFee))
	assert.Equal(t, 0, big.NewInt(1024).Cmp(snap.Fee()))
	assert.Nil(t, snap.LocalPrice)

	assert.Equal(t, []Interface{
		{Name: "wlan0", Up: true, IPv6: netip.MustParseAddr("fe80::1a8b:ec1:8542:1bd8"), IPv4: netip.MustParseAddr("10.28.119.131")},
		{Name: "wg0", Up: true, IPv6: netip.MustParseAddr("fe80::2cee:2fff:7380:8354"), IPv4: netip.MustParseAddr("10.0.236.201")},
		{Name: "wg9"},
	}, snap.Interfaces)

	require.Len(t, snap.Neighbours, 2)
	assert.Equal(t, Neighbour{
		ID:      "14f19a8",
		Address: netip.MustParseAddr("fe80::2cee:2fff:648:8796"),
		Iface:   "wg0",
		Reach:   0xffff,
		RxCost:  256,
		TxCost:  256,
		Rtt:     26.723,
		RttCost: 912,
		Cost:    1168,
	}, snap.Neighbours[0])

	assert.Equal(t, []XRoute{{
		Prefix: netip.MustParsePrefix("10.28.119.131/32"),
		From:   netip.MustParsePrefix("::/0"),
	}}, snap.XRoutes)

	require.Len(t, snap.Routes, 3)
	want := Route{
		ID:        "14f0820",
		Prefix:    netip.MustParsePrefix("fd00::7/128"),
		From:      netip.MustParsePrefix("::/0"),
		Installed: true,
		RouterID:  "ba:27:eb:ff:fe:5b:fe:c7",
		Metric:    1596,
		RefMetric: 638,
		Price:     big.NewInt(3072),
		Fee:       big.NewInt(3072),
		Via:       netip.MustParseAddr("fe80::e841:e384:491e:8eb9"),
		Iface:     "wlan0",
	}
	opt := cmp.Comparer(func(a, b *big.Int) bool { return a.Cmp(b) == 0 })
	if diff := cmp.Diff(want, snap.Routes[0], opt, cmp.Comparer(func(a, b netip.Addr) bool { return a == b }), cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })); diff != "" {
		t.Errorf("route mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, snap.Routes[0].IsHost())
	assert.False(t, snap.Routes[1].Installed)
	assert.False(t, snap.Routes[2].IsHost())

	assert.Len(t, snap.InstalledRoutes(), 2)
	assert.Equal(t, map[string][]netip.Addr{
		"wg0":   {netip.MustParseAddr("fe80::2cee:2fff:648:8796")},
		"wlan0": {netip.MustParseAddr("fe80::e841:e384:491e:8eb9")},
	}, snap.NeighbourAddrs())
}

func TestReadSnapshot_SkipsUnknownRecords(t *testing.T) {
	s, _ := startedSession(t, `add filter 1 type redistribute action deny
add route 1 prefix fd00::2/128 installed yes price 10 colour blue via fe80::1 if wg0
change neighbour 14f19a8 address fe80::2 if wg0 reach ffff
flush route 2 prefix fd00::9/128
local price 7
local ipv4-enabled true

ok
`)
	snap, err := s.ReadSnapshot()
	require.NoError(t, err)
	require.Len(t, snap.Routes, 1)
	assert.Equal(t, 0, big.NewInt(10).Cmp(snap.Routes[0].Price))
	assert.Nil(t, snap.LocalFee)
	assert.Equal(t, 0, big.NewInt(7).Cmp(snap.Fee()))
}

func TestReadSnapshot_MalformedKeyword(t *testing.T) {
	next := "add route 1 prefix fd00::2/128 installed yes price 10\nok\n"
	s, _ := startedSession(t, table[:len(table)-3]+"addd route 1 prefix fd00::2/128 installed yes price 10\nok\n", next)

	_, err := s.ReadSnapshot()
	pe := assertProtocolError(t, err)
	assert.Contains(t, pe.Line, "addd route")

	// the bad response was consumed in full, the session is still usable
	snap, err := s.ReadSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Routes, 1)
}

func TestReadSnapshot_BadNumbers(t *testing.T) {
	for name, line := range map[string]string{
		"negative price":     "add route 1 prefix fd00::2/128 installed yes price -5",
		"text price":         "add route 1 prefix fd00::2/128 installed yes price lots",
		"negative metric":    "add route 1 prefix fd00::2/128 installed yes price 1 metric -1",
		"float fee":          "add route 1 prefix fd00::2/128 installed yes price 1 fee 1.5",
		"negative local fee": "local fee -1",
		"signed local fee":   "local fee +5",
		"signed price":       "add route 1 prefix fd00::2/128 installed yes price +5",
		"signed metric":      "add route 1 prefix fd00::2/128 installed yes price 1 metric +5",
		"missing local fee":  "local fee",
		"negative cost":      "add neighbour 1 address fe80::1 if wg0 cost -3",
		"bad reach":          "add neighbour 1 address fe80::1 if wg0 reach zz",
		"bad rtt":            "add neighbour 1 address fe80::1 if wg0 rtt fast",
		"missing price":      "add route 1 prefix fd00::2/128 installed yes",
		"missing prefix":     "add route 1 installed yes price 1",
		"bad installed":      "add route 1 prefix fd00::2/128 installed maybe price 1",
		"bad prefix":         "add route 1 prefix fd00::2 installed yes price 1",
		"dangling key":       "add route 1 prefix fd00::2/128 installed yes price",
		"bare add":           "add",
	} {
		t.Run(name, func(t *testing.T) {
			s, _ := startedSession(t, line+"\nok\n")
			_, err := s.ReadSnapshot()
			assertProtocolError(t, err)
		})
	}
}

func TestReadSnapshot_Truncated(t *testing.T) {
	s, _ := startedSession(t, "local fee 10\nadd route 1 prefix fd00::2/128 install")
	_, err := s.ReadSnapshot()
	pe := assertProtocolError(t, err)
	assert.Contains(t, pe.Msg, "truncated")
}

func TestReadSnapshot_Refused(t *testing.T) {
	s, _ := startedSession(t, "no\n")
	_, err := s.ReadSnapshot()
	assertProtocolError(t, err)
}

func TestReadSnapshot_HugePrice(t *testing.T) {
	s, _ := startedSession(t, "add route 1 prefix 10.0.0.5/32 installed yes price 340282366920938463463374607431768211456\nok\n")
	snap, err := s.ReadSnapshot()
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("340282366920938463463374607431768211456", 10)
	assert.Equal(t, 0, want.Cmp(snap.Routes[0].Price))
	assert.True(t, snap.Routes[0].IsHost())
}
