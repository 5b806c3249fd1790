package ledger

import (
	"context"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/encodeous/tollmesh/state"
)

// Action is what the keeper suggests doing about a balance
type Action int

const (
	Nothing Action = iota
	// Pay means we owe the neighbour more than the pay threshold
	Pay
	// Suspend means the neighbour owes us more than the close threshold
	Suspend
)

func (a Action) String() string {
	switch a {
	case Pay:
		return "pay"
	case Suspend:
		return "suspend"
	}
	return "nothing"
}

// Balance is the running total with one neighbour
type Balance struct {
	Identity state.Identity
	Amount   *big.Int
	Action   Action
}

// Keeper accumulates updates into running balances. Settlement is left to the caller.
type Keeper struct {
	mu       sync.Mutex
	balances map[state.Identity]*big.Int
	payment  state.PaymentSettings
	log      *slog.Logger
}

func NewKeeper(payment state.PaymentSettings, log *slog.Logger) *Keeper {
	return &Keeper{
		balances: make(map[state.Identity]*big.Int),
		payment:  payment.Clone(),
		log:      log,
	}
}

func (k *Keeper) Send(batch []Update) {
	for _, u := range batch {
		k.Apply(u)
	}
}

// Apply adds u to the balance of its neighbour and returns the suggested action
func (k *Keeper) Apply(u Update) Action {
	k.mu.Lock()
	defer k.mu.Unlock()
	bal, ok := k.balances[u.From]
	if !ok {
		bal = new(big.Int)
		k.balances[u.From] = bal
	}
	if u.Amount != nil {
		bal.Add(bal, u.Amount)
	}
	act := k.action(bal)
	if act != Nothing && k.log != nil {
		k.log.Info("balance crossed threshold", "neighbour", u.From.MeshIP, "balance", bal.String(), "action", act)
	}
	return act
}

func (k *Keeper) action(bal *big.Int) Action {
	if t := k.payment.PayThreshold; t != nil && new(big.Int).Neg(bal).Cmp(t.Big()) > 0 {
		return Pay
	}
	if t := k.payment.CloseThreshold; t != nil && bal.Cmp(t.Big()) > 0 {
		return Suspend
	}
	return Nothing
}

// Balance returns a copy of the running total for id
func (k *Keeper) Balance(id state.Identity) *big.Int {
	k.mu.Lock()
	defer k.mu.Unlock()
	if bal, ok := k.balances[id]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Balances returns every running total, ordered by mesh address
func (k *Keeper) Balances() []Balance {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]Balance, 0, len(k.balances))
	for id, bal := range k.balances {
		out = append(out, Balance{Identity: id, Amount: new(big.Int).Set(bal), Action: k.action(bal)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Identity.MeshIP.Less(out[j].Identity.MeshIP)
	})
	return out
}

// Consume applies batches from c until ctx is done or c is closed
func (k *Keeper) Consume(ctx context.Context, c <-chan []Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-c:
			if !ok {
				return
			}
			k.Send(batch)
		}
	}
}
