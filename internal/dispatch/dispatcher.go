// Package dispatch enriches decoded events with block time, market cap and
// migration metadata, then publishes the canonical record to its bus topic.
// Every failure on this path degrades the record instead of failing it:
// monitoring availability wins over strictness.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/curvewatch/curvewatch/internal/blockcache"
	"github.com/curvewatch/curvewatch/internal/bus"
	"github.com/curvewatch/curvewatch/internal/decode"
)

// AuxCaller issues the read-only contract calls enrichment needs.
type AuxCaller interface {
	TotalSupply(ctx context.Context, token common.Address) (*big.Int, error)
	TokenFounder(ctx context.Context, token common.Address) (common.Address, error)
	TokenPool(ctx context.Context, token common.Address) (common.Address, error)
}

// Degradation reasons reported on an Outcome.
const (
	DegradedBlockTime  = "block_time_fallback"
	DegradedMarketCap  = "market_cap_unavailable"
	DegradedFounder    = "founder_unavailable"
	DegradedPool       = "pool_unavailable"
	DegradedPublish    = "publish_failed"
	DegradedRandomKey  = "random_publish_key"
	DegradedBadAddress = "token_address_unusable"
)

// Outcome is the typed result of one dispatch: where the record went and
// which enrichment steps fell back to a sentinel.
type Outcome struct {
	Topic     string
	Published bool
	Degraded  []string
}

func (o *Outcome) degrade(reason string) {
	o.Degraded = append(o.Degraded, reason)
}

// DegradedBy reports whether the outcome carries the given reason.
func (o Outcome) DegradedBy(reason string) bool {
	for _, r := range o.Degraded {
		if r == reason {
			return true
		}
	}
	return false
}

// Dispatcher wires the enrichment dependencies together.
type Dispatcher struct {
	cache     *blockcache.Cache
	caller    AuxCaller
	publisher bus.Publisher
	index     *TokenIndex
	logger    *slog.Logger

	// now is the wall clock, swappable in tests.
	now func() time.Time
}

// Config assembles a Dispatcher.
type Config struct {
	Cache     *blockcache.Cache
	Caller    AuxCaller
	Publisher bus.Publisher
	Index     *TokenIndex
	Logger    *slog.Logger
	Now       func() time.Time
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Index == nil {
		cfg.Index = NewTokenIndex()
	}
	return &Dispatcher{
		cache:     cfg.Cache,
		caller:    cfg.Caller,
		publisher: cfg.Publisher,
		index:     cfg.Index,
		logger:    cfg.Logger.With("component", "dispatcher"),
		now:       cfg.Now,
	}
}

// Index exposes the created-token index.
func (d *Dispatcher) Index() *TokenIndex {
	return d.index
}

// Dispatch enriches one decoded event and publishes it. The returned
// Outcome names every degradation taken; errors never propagate past here.
func (d *Dispatcher) Dispatch(ctx context.Context, ev decode.Event) Outcome {
	var outcome Outcome

	stamp := d.now().UTC().Format(time.RFC3339)

	switch e := ev.(type) {
	case *decode.TokenCreate:
		e.BlockTime = d.resolveBlockTime(ctx, e.Slot, &outcome)
		e.KafkaTimestamp = stamp
		// Only real addresses enter the index; a degraded token field
		// would poison every later random pick.
		if _, ok := parseAddress(e.Token); ok {
			d.index.Append(e.Token, d.now())
		} else {
			outcome.degrade(DegradedBadAddress)
		}
		d.publish(ctx, bus.TopicTokenCreated, &e.Common, e, &outcome)

	case *decode.TokenTrade:
		e.BlockTime = d.resolveBlockTime(ctx, e.Slot, &outcome)
		e.KafkaTimestamp = stamp
		d.enrichMarketCap(ctx, e, &outcome)
		d.publish(ctx, bus.TopicTokenTrade, &e.Common, e, &outcome)

	case *decode.TokenMigration:
		e.BlockTime = d.resolveBlockTime(ctx, e.Slot, &outcome)
		e.KafkaTimestamp = stamp
		d.enrichMigration(ctx, e, &outcome)
		d.publish(ctx, bus.TopicTokenMigrated, &e.Common, e, &outcome)

	case *decode.TradeStop:
		e.KafkaTimestamp = stamp
		d.logger.Info("trade stopped",
			"token", e.Token,
			"signature", e.Signature,
			"slot", e.Slot,
		)

	default:
		d.logger.Warn("event kind has no dispatch path", "kind", ev.EventKind().String())
	}

	return outcome
}

// resolveBlockTime returns the event block's unix-seconds timestamp from
// the cache, falling back to the current wall clock when the block stays
// unfetchable.
func (d *Dispatcher) resolveBlockTime(ctx context.Context, slot uint64, outcome *Outcome) int64 {
	ms, err := d.cache.GetOrFetch(ctx, slot)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Warn("block time unavailable, using wall clock",
				"slot", slot,
				"error", err,
			)
		}
		outcome.degrade(DegradedBlockTime)
		return d.now().Unix()
	}
	return ms / 1000
}

// enrichMarketCap computes market cap for priced (schema V2) trades. A
// zero price skips the supply call entirely.
func (d *Dispatcher) enrichMarketCap(ctx context.Context, trade *decode.TokenTrade, outcome *Outcome) {
	if trade.Price <= 0 {
		return
	}

	token, ok := parseAddress(trade.Token)
	if !ok {
		outcome.degrade(DegradedBadAddress)
		return
	}

	supply, err := d.caller.TotalSupply(ctx, token)
	if err != nil {
		d.logger.Warn("total supply call failed, market cap stays 0",
			"token", trade.Token,
			"error", err,
		)
		outcome.degrade(DegradedMarketCap)
		return
	}

	trade.MarketCap = trade.Price * decode.ScaleFloat(supply, decode.TokenDecimals)
}

// enrichMigration resolves founder and pool addresses, substituting the
// sentinel for whichever call fails.
func (d *Dispatcher) enrichMigration(ctx context.Context, mig *decode.TokenMigration, outcome *Outcome) {
	token, ok := parseAddress(mig.Token)
	if !ok {
		outcome.degrade(DegradedBadAddress)
		return
	}

	if founder, err := d.caller.TokenFounder(ctx, token); err != nil {
		d.logger.Warn("founder call failed", "token", mig.Token, "error", err)
		outcome.degrade(DegradedFounder)
	} else {
		mig.Founder = founder.Hex()
	}

	if pool, err := d.caller.TokenPool(ctx, token); err != nil {
		d.logger.Warn("pool call failed", "token", mig.Token, "error", err)
		outcome.degrade(DegradedPool)
	} else {
		mig.Pool = pool.Hex()
	}
}

// publish serializes and produces the record. Bus failures are logged and
// swallowed so monitoring continues without the bus.
func (d *Dispatcher) publish(ctx context.Context, topic string, env *decode.Common, record any, outcome *Outcome) {
	outcome.Topic = topic

	payload, err := json.Marshal(record)
	if err != nil {
		d.logger.Error("marshal record failed", "topic", topic, "error", err)
		outcome.degrade(DegradedPublish)
		return
	}

	key := env.Signature
	if key == "" {
		key = fmt.Sprintf("%s-%s", topic, uuid.NewString())
		outcome.degrade(DegradedRandomKey)
	}

	if err := d.publisher.Publish(ctx, topic, key, payload); err != nil {
		d.logger.Error("publish failed, record dropped",
			"topic", topic,
			"key", key,
			"error", err,
		)
		outcome.degrade(DegradedPublish)
		return
	}

	outcome.Published = true
	d.logger.Info("published",
		"topic", topic,
		"key", key,
		"slot", env.Slot,
	)
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
