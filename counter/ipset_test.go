package counter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/encodeous/tollmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	saves map[string]string
	fail  string
}

func (f *fakeRunner) Run(ctx context.Context, name string, arg ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := name + " " + strings.Join(arg, " ")
	f.calls = append(f.calls, call)
	if f.fail != "" && strings.Contains(call, f.fail) {
		return nil, errors.New("exit status 1")
	}
	if len(arg) == 2 && arg[0] == "save" {
		return []byte(f.saves[arg[1]]), nil
	}
	return nil, nil
}

const inputSave = `create tollmesh_input hash:net,iface family inet6 hashsize 1024 maxelem 65536 counters
add tollmesh_input fd00::6,wg1 packets 3 bytes 420
add tollmesh_input 10.0.0.5,wg0 packets 10 bytes 1000
add tollmesh_input 10.0.0.5/32,wg0 packets 1 bytes 24
add other_set fd00::7,wg0 packets 1 bytes 99
`

func TestIpsetReadCounters(t *testing.T) {
	r := &fakeRunner{saves: map[string]string{"tollmesh_input": inputSave}}
	c := &IpsetCollector{Runner: r, Path: "ipset", Prefix: "tollmesh"}

	tbl, err := c.ReadCounters(context.Background(), Input)
	require.NoError(t, err)
	assert.Equal(t, Table{
		{a6, "wg1"}: 420,
		{a5, "wg0"}: 1024,
	}, tbl)
	assert.Equal(t, []string{"ipset save tollmesh_input"}, r.calls)

	require.NoError(t, c.ResetCounters(context.Background(), Input))
	assert.Equal(t, "ipset flush tollmesh_input", r.calls[1])
}

func TestIpsetReadCounters_Errors(t *testing.T) {
	for name, save := range map[string]string{
		"no interface":  "add tollmesh_output fd00::6 packets 1 bytes 2\n",
		"no counters":   "add tollmesh_output fd00::6,wg0\n",
		"bad bytes":     "add tollmesh_output fd00::6,wg0 packets 1 bytes -2\n",
		"bad address":   "add tollmesh_output nothere,wg0 packets 1 bytes 2\n",
		"network entry": "add tollmesh_output fd00::/64,wg0 packets 1 bytes 2\n",
	} {
		t.Run(name, func(t *testing.T) {
			r := &fakeRunner{saves: map[string]string{"tollmesh_output": save}}
			c := &IpsetCollector{Runner: r, Path: "ipset", Prefix: "tollmesh"}
			_, err := c.ReadCounters(context.Background(), Output)
			var te *state.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, []string{"ipset save tollmesh_output"}, r.calls)
		})
	}
}

func TestIpsetReadCounters_ExecFailure(t *testing.T) {
	r := &fakeRunner{fail: "save"}
	c := &IpsetCollector{Runner: r, Path: "ipset", Prefix: "tollmesh"}
	_, err := c.ReadCounters(context.Background(), ForwardInput)
	var te *state.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "save tollmesh_fwd_input", te.Op)
	assert.True(t, state.IsRetryable(err))
}

func TestIpsetInit(t *testing.T) {
	r := &fakeRunner{}
	c := NewIpsetCollector(state.CounterSettings{SetPrefix: "mesh", IpsetPath: "/usr/sbin/ipset"}, nil)
	c.Runner = r
	require.NoError(t, c.Init(context.Background()))
	require.Len(t, r.calls, 4)
	assert.Equal(t, "/usr/sbin/ipset create mesh_input hash:net,iface family inet6 counters -exist", r.calls[0])
	assert.Equal(t, "/usr/sbin/ipset create mesh_fwd_output hash:net,iface family inet6 counters -exist", r.calls[3])
}

func TestIpsetDefaults(t *testing.T) {
	c := NewIpsetCollector(state.CounterSettings{}, nil)
	assert.Equal(t, "ipset", c.Path)
	assert.Equal(t, "tollmesh_fwd_input", c.SetName(ForwardInput))
}

func TestIpsetReadAll(t *testing.T) {
	r := &fakeRunner{saves: map[string]string{
		"tollmesh_input":      "add tollmesh_input 10.0.0.5,wg0 packets 1 bytes 1000\n",
		"tollmesh_fwd_output": "add tollmesh_fwd_output 10.0.0.5,wg0 packets 1 bytes 2000\n",
	}}
	c := &IpsetCollector{Runner: r, Path: "ipset", Prefix: "tollmesh"}
	ts, err := ReadAll(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), ts.Inbound()[Key{a5, "wg0"}])
	assert.Equal(t, uint64(2000), ts.Outbound()[Key{a5, "wg0"}])
	assert.Len(t, r.calls, 8)
}

func TestIpsetReadAll_NoFlushUntilAllRead(t *testing.T) {
	r := &fakeRunner{
		saves: map[string]string{
			"tollmesh_input": "add tollmesh_input 10.0.0.5,wg0 packets 1 bytes 1000\n",
		},
		fail: "save tollmesh_fwd_output",
	}
	c := &IpsetCollector{Runner: r, Path: "ipset", Prefix: "tollmesh"}
	_, err := ReadAll(context.Background(), c)
	var te *state.TransportError
	require.ErrorAs(t, err, &te)
	for _, call := range r.calls {
		assert.NotContains(t, call, "flush")
	}
}
