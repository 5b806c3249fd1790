package core

import (
	"context"

	"github.com/encodeous/tollmesh/ledger"
	"github.com/encodeous/tollmesh/state"
)

// Books receives debt updates from the accounting task and keeps the running balances
type Books struct {
	Sink   *ledger.ChannelSink
	Keeper *ledger.Keeper
}

func NewBooks(s *state.Env) *Books {
	log := s.Log.WithGroup("ledger")
	return &Books{
		Sink:   ledger.NewChannelSink(state.LedgerBuffer, log),
		Keeper: ledger.NewKeeper(s.Settings.Payment(), log),
	}
}

func (b *Books) Init(s *state.State) error {
	s.Log.Debug("init ledger")
	s.Go(func(ctx context.Context) {
		b.Keeper.Consume(ctx, b.Sink.C)
	})
	return nil
}

func (b *Books) Cleanup(s *state.State) error {
	for _, bal := range b.Keeper.Balances() {
		s.Log.Info("balance", "neighbour", bal.Identity.MeshIP, "amount", bal.Amount.String(), "action", bal.Action)
	}
	return nil
}
