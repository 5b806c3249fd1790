package counter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"

	"github.com/encodeous/tollmesh/state"
)

// Runner runs an external command and returns its standard output
type Runner interface {
	Run(ctx context.Context, name string, arg ...string) ([]byte, error)
}

// ExecRunner runs commands on the host
type ExecRunner struct {
	Log *slog.Logger
}

func (e ExecRunner) Run(ctx context.Context, name string, arg ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if e.Log != nil {
		e.Log.Debug("exec command", "cmd", name, "arg", arg, "stderr", stderr.String())
	}
	if err != nil {
		return nil, fmt.Errorf("error executing command: %s %s. %w. Output: %s", name, arg, err, stderr.String())
	}
	return out, nil
}

// IpsetCollector reads counters from four hash:net,iface sets maintained by the firewall
type IpsetCollector struct {
	Runner Runner
	Path   string
	Prefix string
}

func NewIpsetCollector(cfg state.CounterSettings, log *slog.Logger) *IpsetCollector {
	path := cfg.IpsetPath
	if path == "" {
		path = "ipset"
	}
	prefix := cfg.SetPrefix
	if prefix == "" {
		prefix = state.DefaultSetPrefix
	}
	return &IpsetCollector{
		Runner: ExecRunner{Log: log},
		Path:   path,
		Prefix: prefix,
	}
}

func (c *IpsetCollector) SetName(d Direction) string {
	return c.Prefix + "_" + d.String()
}

// Init creates the sets if they do not exist yet
func (c *IpsetCollector) Init(ctx context.Context) error {
	for _, d := range Directions {
		_, err := c.Runner.Run(ctx, c.Path, "create", c.SetName(d), "hash:net,iface", "family", "inet6", "counters", "-exist")
		if err != nil {
			return &state.TransportError{Op: "create " + c.SetName(d), Err: err}
		}
	}
	return nil
}

// ReadCounters saves the set. The set keeps counting until ResetCounters flushes it.
func (c *IpsetCollector) ReadCounters(ctx context.Context, d Direction) (Table, error) {
	set := c.SetName(d)
	out, err := c.Runner.Run(ctx, c.Path, "save", set)
	if err != nil {
		return nil, &state.TransportError{Op: "save " + set, Err: err}
	}
	tbl, err := parseSave(set, out)
	if err != nil {
		return nil, &state.TransportError{Op: "parse " + set, Err: err}
	}
	return tbl, nil
}

func (c *IpsetCollector) ResetCounters(ctx context.Context, d Direction) error {
	set := c.SetName(d)
	if _, err := c.Runner.Run(ctx, c.Path, "flush", set); err != nil {
		return &state.TransportError{Op: "flush " + set, Err: err}
	}
	return nil
}

// parseSave reads `ipset save` output. Only add lines for the named set are used.
//
//	create tollmesh_input hash:net,iface family inet6 hashsize 1024 maxelem 65536 counters
//	add tollmesh_input fd00::5,wg0 packets 12 bytes 3400
func parseSave(set string, out []byte) (Table, error) {
	tbl := make(Table)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || fields[0] != "add" || fields[1] != set {
			continue
		}
		member, iface, ok := strings.Cut(fields[2], ",")
		if !ok || iface == "" {
			return nil, fmt.Errorf("member %q has no interface", fields[2])
		}
		dest, err := parseMember(member)
		if err != nil {
			return nil, err
		}
		var bytesSeen uint64
		found := false
		opts := fields[3:]
		for i := 0; i+1 < len(opts); i++ {
			if opts[i] == "bytes" {
				bytesSeen, err = strconv.ParseUint(opts[i+1], 10, 64)
				if err != nil {
					return nil, fmt.Errorf("member %q has bad byte count %q", fields[2], opts[i+1])
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("member %q has no byte counter, is the set created with counters?", fields[2])
		}
		tbl[Key{Dest: dest, Iface: iface}] += bytesSeen
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tbl, nil
}

func parseMember(member string) (netip.Addr, error) {
	if !strings.Contains(member, "/") {
		return netip.ParseAddr(member)
	}
	p, err := netip.ParsePrefix(member)
	if err != nil {
		return netip.Addr{}, err
	}
	if p.Bits() != p.Addr().BitLen() {
		return netip.Addr{}, fmt.Errorf("member %q is not a host", member)
	}
	return p.Addr(), nil
}
