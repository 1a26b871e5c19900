// Package chain owns the streaming connection to the chain node: the
// provider capability consumed by the rest of the pipeline and the
// lifecycle manager that keeps a single live session across failures.
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Provider is the capability surface the pipeline needs from a chain node
// session. Implemented by ethclient over a websocket endpoint; faked in
// tests.
type Provider interface {
	// SubscribeLogs installs a log filter on the streaming session.
	SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)

	// BlockNumber returns the current chain height. Doubles as the
	// lightweight liveness probe.
	BlockNumber(ctx context.Context) (uint64, error)

	// HeaderByNumber fetches a block header (nil = latest).
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// CallContract executes a read-only contract call.
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// Close tears the session down. Best-effort, safe to call twice.
	Close()
}

// Dialer opens a new session. Swappable so tests can inject failures.
type Dialer func(ctx context.Context, url string) (Provider, error)

type ethProvider struct {
	client *ethclient.Client
}

// Dial opens a websocket session to the given endpoint.
func Dial(ctx context.Context, url string) (Provider, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return &ethProvider{client: client}, nil
}

func (p *ethProvider) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return p.client.SubscribeFilterLogs(ctx, q, ch)
}

func (p *ethProvider) BlockNumber(ctx context.Context) (uint64, error) {
	return p.client.BlockNumber(ctx)
}

func (p *ethProvider) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return p.client.HeaderByNumber(ctx, number)
}

func (p *ethProvider) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return p.client.CallContract(ctx, msg, blockNumber)
}

func (p *ethProvider) Close() {
	p.client.Close()
}
