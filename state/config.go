package state

import (
	"fmt"
	"math/big"
	"net/netip"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// Identity is how a peer is known to the ledger
type Identity struct {
	MeshIP      netip.Addr  `yaml:"mesh_ip"`
	WgPublicKey WgPublicKey `yaml:"wg_public_key"`
	EthAddress  EthAddress  `yaml:"eth_address"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.MeshIP, i.WgPublicKey)
}

// Amount is an arbitrary precision quantity of money. It is written as a quoted decimal so that
// values beyond 64 bits survive yaml tooling, and read from either form.
type Amount big.Int

func NewAmount(v int64) *Amount {
	return (*Amount)(big.NewInt(v))
}

func (a *Amount) Big() *big.Int {
	if a == nil {
		return new(big.Int)
	}
	return (*big.Int)(a)
}

func (a *Amount) MarshalYAML() ([]byte, error) {
	return []byte(strconv.Quote(a.Big().String())), nil
}

func (a *Amount) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	if _, ok := (*big.Int)(a).SetString(s, 10); !ok {
		return fmt.Errorf("%q is not an integer amount", s)
	}
	return nil
}

type NetworkSettings struct {
	OwnIP        netip.Addr   `yaml:"own_ip"`
	BabelAddr    string       `yaml:"babel_addr,omitempty"` // control socket of the routing daemon
	WgPrivateKey WgPrivateKey `yaml:"wg_private_key"`
}

type PaymentSettings struct {
	EthAddress     EthAddress `yaml:"eth_address"`
	PayThreshold   *Amount    `yaml:"pay_threshold,omitempty"`   // we owe a neighbour more than this, settle
	CloseThreshold *Amount    `yaml:"close_threshold,omitempty"` // a neighbour owes us more than this, cut them off
}

type CounterSettings struct {
	SetPrefix string `yaml:"set_prefix,omitempty"` // ipset names are <prefix>_<direction>
	IpsetPath string `yaml:"ipset_path,omitempty"`
}

type IntervalSettings struct {
	Accounting    time.Duration `yaml:"accounting,omitempty"`
	ExitSelection time.Duration `yaml:"exit_selection,omitempty"`
	TickTimeout   time.Duration `yaml:"tick_timeout,omitempty"`
	Persist       time.Duration `yaml:"persist,omitempty"`
}

// NeighbourCfg binds a directly connected peer to the local interface its traffic arrives on
type NeighbourCfg struct {
	Identity  `yaml:",inline"`
	Interface string `yaml:"interface"`
}

type ExitRegistrationDetails struct {
	ZipCode string `yaml:"zip_code,omitempty"`
	Email   string `yaml:"email,omitempty"`
	Country string `yaml:"country,omitempty"`
}

// ExitDetails are filled in once the exit accepted our registration
type ExitDetails struct {
	OwnInternalIP    netip.Addr  `yaml:"own_internal_ip"`
	ServerInternalIP netip.Addr  `yaml:"server_internal_ip"`
	Netmask          uint8       `yaml:"netmask"`
	EthAddress       EthAddress  `yaml:"eth_address"`
	WgPublicKey      WgPublicKey `yaml:"wg_public_key"`
	WgExitPort       uint16      `yaml:"wg_exit_port"`
	ExitPrice        *Amount     `yaml:"exit_price"`
}

// ExitCandidate is a gateway that offers onward connectivity out of the mesh
type ExitCandidate struct {
	ExitIP           netip.Addr              `yaml:"exit_ip"`
	RegistrationPort uint16                  `yaml:"registration_port"`
	WgListenPort     uint16                  `yaml:"wg_listen_port"`
	Details          *ExitDetails            `yaml:"details,omitempty"`
	RegDetails       ExitRegistrationDetails `yaml:"reg_details,omitempty"`
}

// ExitKey identifies an exit within the candidate set
type ExitKey struct {
	IP   netip.Addr
	Port uint16
}

func (c ExitCandidate) Key() ExitKey {
	return ExitKey{IP: c.ExitIP, Port: c.RegistrationPort}
}

func (c ExitCandidate) String() string {
	return fmt.Sprintf("%s:%d", c.ExitIP, c.RegistrationPort)
}

// Identity returns the ledger identity of the exit, if it has been registered
func (c ExitCandidate) Identity() (Identity, bool) {
	if c.Details == nil {
		return Identity{}, false
	}
	return Identity{
		MeshIP:      c.ExitIP,
		WgPublicKey: c.Details.WgPublicKey,
		EthAddress:  c.Details.EthAddress,
	}, true
}

// Settings is the full on-disk configuration of a node
type Settings struct {
	Name        string           `yaml:"name,omitempty"`
	LogPath     string           `yaml:"log_path,omitempty"`
	Network     NetworkSettings  `yaml:"network"`
	Payment     PaymentSettings  `yaml:"payment"`
	Counters    CounterSettings  `yaml:"counters,omitempty"`
	Intervals   IntervalSettings `yaml:"intervals,omitempty"`
	Neighbours  []NeighbourCfg   `yaml:"neighbours,omitempty"`
	Exits       []ExitCandidate  `yaml:"exits,omitempty"`
	CurrentExit *ExitCandidate   `yaml:"current_exit,omitempty"`
}

func (s *Settings) ApplyDefaults() {
	if s.Name == "" {
		s.Name = DefaultName
	}
	if s.Network.BabelAddr == "" {
		s.Network.BabelAddr = DefaultBabelAddr
	}
	if s.Counters.SetPrefix == "" {
		s.Counters.SetPrefix = DefaultSetPrefix
	}
	if s.Counters.IpsetPath == "" {
		s.Counters.IpsetPath = "ipset"
	}
	if s.Intervals.Accounting == 0 {
		s.Intervals.Accounting = AccountingDelay
	}
	if s.Intervals.ExitSelection == 0 {
		s.Intervals.ExitSelection = ExitSelectionDelay
	}
	if s.Intervals.TickTimeout == 0 {
		s.Intervals.TickTimeout = TickTimeout
	}
	if s.Intervals.Persist == 0 {
		s.Intervals.Persist = PersistDelay
	}
}

// Identity returns this node's own ledger identity
func (s *Settings) Identity() Identity {
	return Identity{
		MeshIP:      s.Network.OwnIP,
		WgPublicKey: s.Network.WgPrivateKey.Pubkey(),
		EthAddress:  s.Payment.EthAddress,
	}
}

func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	s.ApplyDefaults()
	return &s, nil
}

func LoadSettings(file string) (*Settings, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	s, err := ParseSettings(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	return s, nil
}

func (s *Settings) Write(file string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	err = os.MkdirAll(path.Dir(file), 0700)
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0600)
}
