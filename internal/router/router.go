// Package router installs the log filters for every monitored contract and
// feeds matched logs through the decoder into dispatch. It listens for
// session replacements from the connection manager and reinstalls the whole
// filter set on each new session.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/curvewatch/curvewatch/internal/chain"
	"github.com/curvewatch/curvewatch/internal/decode"
	"github.com/curvewatch/curvewatch/internal/dispatch"
)

// SessionManager is the slice of the connection manager the router needs.
type SessionManager interface {
	Sessions() <-chan chain.Provider
	NotifyError(ctx context.Context, err error)
}

// Sink consumes decoded events. Satisfied by *dispatch.Dispatcher.
type Sink interface {
	Dispatch(ctx context.Context, ev decode.Event) dispatch.Outcome
}

// Config holds the monitored contract set.
type Config struct {
	ManagerV1 common.Address
	ManagerV2 common.Address

	// Pairs are external DEX pair addresses watched for third-party Swap
	// events.
	Pairs []common.Address

	Logger *slog.Logger
}

// Router owns the filter subscriptions on the current session.
type Router struct {
	manager SessionManager
	sink    Sink
	reg     registry
	logger  *slog.Logger
}

// New builds a Router for the configured contracts.
func New(manager SessionManager, sink Sink, cfg Config) (*Router, error) {
	reg, err := buildRegistry(cfg.ManagerV1, cfg.ManagerV2, cfg.Pairs)
	if err != nil {
		return nil, fmt.Errorf("build filter registry: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		manager: manager,
		sink:    sink,
		reg:     reg,
		logger:  logger.With("component", "router"),
	}, nil
}

// FilterCount reports how many (address, signature) filters the router
// installs per session.
func (r *Router) FilterCount() int {
	return len(r.reg.bindings())
}

// Run consumes session replacements until ctx is cancelled. Each new
// session gets the full filter set installed; the previous session's pumps
// wind down with their cancelled context.
func (r *Router) Run(ctx context.Context) error {
	var cancelPrev context.CancelFunc
	defer func() {
		if cancelPrev != nil {
			cancelPrev()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case session := <-r.manager.Sessions():
			if cancelPrev != nil {
				cancelPrev()
			}
			sessionCtx, cancel := context.WithCancel(ctx)
			cancelPrev = cancel

			if err := r.install(sessionCtx, session); err != nil {
				r.logger.Error("filter install failed", "error", err)
				go r.manager.NotifyError(ctx, err)
			}
		}
	}
}

// install subscribes one filter per registry binding on the session.
func (r *Router) install(ctx context.Context, session chain.Provider) error {
	bindings := r.reg.bindings()
	for _, b := range bindings {
		query := ethereum.FilterQuery{
			Addresses: []common.Address{b.address},
			Topics:    [][]common.Hash{{b.event.ID}},
		}

		ch := make(chan types.Log, 256)
		sub, err := session.SubscribeLogs(ctx, query, ch)
		if err != nil {
			return fmt.Errorf("subscribe %s on %s: %w", b.event.Name, b.address.Hex(), err)
		}

		go r.pump(ctx, b, sub, ch)
	}

	r.logger.Info("filters installed", "count", len(bindings))
	return nil
}

// pump forwards one filter's logs until the session dies or ctx ends.
func (r *Router) pump(ctx context.Context, b binding, sub ethereum.Subscription, ch <-chan types.Log) {
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err == nil || ctx.Err() != nil {
				return
			}
			r.logger.Warn("subscription error",
				"event", b.event.Name,
				"address", b.address.Hex(),
				"error", err,
			)
			// Reconnect runs its own retry loop; don't hold the pump.
			go r.manager.NotifyError(ctx, err)
			return
		case lg := <-ch:
			// Handlers run concurrently so one slow enrichment never
			// blocks the next log of this filter.
			go r.handle(ctx, b, lg)
		}
	}
}

// handle decodes and dispatches one log. Any failure here is contained to
// this log: a malformed entry must never terminate the subscription.
func (r *Router) handle(ctx context.Context, b binding, lg types.Log) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("log handler panic",
				"event", b.event.Name,
				"tx", lg.TxHash.Hex(),
				"panic", rec,
			)
		}
	}()

	if b.kind == decode.KindPairSwap {
		r.logSwap(b, lg)
		return
	}

	raw := unpackArgs(b.event, lg)
	meta := decode.Meta{
		Signature: lg.TxHash.Hex(),
		Slot:      lg.BlockNumber,
	}

	ev, err := decode.Decode(b.kind, b.version, raw, meta)
	if err != nil {
		r.logger.Error("decode failed",
			"event", b.event.Name,
			"version", b.version.String(),
			"tx", lg.TxHash.Hex(),
			"error", err,
		)
		return
	}

	r.sink.Dispatch(ctx, ev)
}

// logSwap reports third-party pair activity; swaps are observed, never
// published.
func (r *Router) logSwap(b binding, lg types.Log) {
	r.logger.Info("pair swap",
		"pair", b.address.Hex(),
		"tx", lg.TxHash.Hex(),
		"block", lg.BlockNumber,
	)
}

// unpackArgs produces the decoder's raw argument set. The named map is
// best-effort: when it cannot be built the positional values alone drive
// the decode tables.
func unpackArgs(event abi.Event, lg types.Log) decode.RawArgs {
	named := make(map[string]any)
	if err := event.Inputs.UnpackIntoMap(named, lg.Data); err != nil {
		named = nil
	}
	positional, err := event.Inputs.Unpack(lg.Data)
	if err != nil {
		positional = nil
	}
	return decode.RawArgs{Named: named, Positional: positional}
}
