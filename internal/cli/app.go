package cli

import (
	"github.com/roach88/tradeledger/internal/holdings"
	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/records"
	"github.com/roach88/tradeledger/internal/sequence"
	"github.com/roach88/tradeledger/internal/store"
)

// app wires the store-backed components for one command run.
type app struct {
	store    *store.Store
	seq      *sequence.Store
	ledger   *ledger.Ledger
	records  *records.Repository
	holdings *holdings.Repository
	service  *holdings.Service
}

func openApp(opts *RootOptions) (*app, error) {
	cfg := opts.Config
	log := opts.Logger

	log.Debug("opening database", "path", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	seq := sequence.New(st)
	rec := records.New(st, seq,
		records.WithLogger(log),
		records.WithMaxLimit(cfg.Pager.MaxLimit),
	)
	repo := holdings.NewRepository(st, nil)
	buy, sell := cfg.Reconcile.TradeTypes()

	return &app{
		store:    st,
		seq:      seq,
		ledger:   ledger.New(st, ledger.WithLogger(log)),
		records:  rec,
		holdings: repo,
		service:  holdings.NewService(repo, rec, holdings.WithTradeTypes(buy, sell), holdings.WithLogger(log)),
	}, nil
}

func (a *app) Close(opts *RootOptions) {
	if err := a.store.Close(); err != nil {
		opts.Logger.Error("error closing database", "error", err)
	}
}
