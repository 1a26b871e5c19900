package router

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/curvewatch/curvewatch/internal/chain"
	"github.com/curvewatch/curvewatch/internal/decode"
	"github.com/curvewatch/curvewatch/internal/dispatch"
)

var (
	managerV1Addr = common.HexToAddress("0x1110000000000000000000000000000000000001")
	managerV2Addr = common.HexToAddress("0x2220000000000000000000000000000000000002")
	pairAddr      = common.HexToAddress("0x3330000000000000000000000000000000000003")
)

type fakeSub struct {
	errCh    chan error
	unsubbed atomic.Bool
}

func (s *fakeSub) Unsubscribe()      { s.unsubbed.Store(true) }
func (s *fakeSub) Err() <-chan error { return s.errCh }

type installedFilter struct {
	query ethereum.FilterQuery
	ch    chan<- types.Log
	sub   *fakeSub
}

type fakeSession struct {
	mu      sync.Mutex
	filters []installedFilter
}

func (f *fakeSession) SubscribeLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	sub := &fakeSub{errCh: make(chan error, 1)}
	f.mu.Lock()
	f.filters = append(f.filters, installedFilter{query: q, ch: ch, sub: sub})
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeSession) BlockNumber(ctx context.Context) (uint64, error) { return 1, nil }

func (f *fakeSession) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSession) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSession) Close() {}

func (f *fakeSession) installedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.filters)
}

// find returns the filter channel for one (address, topic) pair.
func (f *fakeSession) find(addr common.Address, topic common.Hash) (installedFilter, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, flt := range f.filters {
		if len(flt.query.Addresses) == 1 && flt.query.Addresses[0] == addr &&
			len(flt.query.Topics) == 1 && len(flt.query.Topics[0]) == 1 && flt.query.Topics[0][0] == topic {
			return flt, true
		}
	}
	return installedFilter{}, false
}

type fakeManager struct {
	sessions chan chain.Provider
	notified atomic.Int64
}

func newFakeManager() *fakeManager {
	return &fakeManager{sessions: make(chan chain.Provider, 1)}
}

func (m *fakeManager) Sessions() <-chan chain.Provider { return m.sessions }

func (m *fakeManager) NotifyError(ctx context.Context, err error) { m.notified.Add(1) }

type recordingSink struct {
	events chan decode.Event
}

func (s *recordingSink) Dispatch(ctx context.Context, ev decode.Event) dispatch.Outcome {
	s.events <- ev
	return dispatch.Outcome{Published: true}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startRouter(t *testing.T) (*Router, *fakeManager, *recordingSink, context.CancelFunc) {
	t.Helper()
	mgr := newFakeManager()
	sink := &recordingSink{events: make(chan decode.Event, 16)}
	r, err := New(mgr, sink, Config{
		ManagerV1: managerV1Addr,
		ManagerV2: managerV2Addr,
		Pairs:     []common.Address{pairAddr},
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = r.Run(ctx) }()
	return r, mgr, sink, cancel
}

// bindingFor digs the registry binding out for crafting test logs.
func bindingFor(t *testing.T, r *Router, addr common.Address, kind decode.Kind) binding {
	t.Helper()
	for _, b := range r.reg.bindings() {
		if b.address == addr && b.kind == kind {
			return b
		}
	}
	t.Fatalf("no binding for kind %v on %s", kind, addr.Hex())
	return binding{}
}

func TestRouter_InstallsAllFilters(t *testing.T) {
	r, mgr, _, cancel := startRouter(t)
	defer cancel()

	// 5 events per manager generation plus one watched pair.
	if r.FilterCount() != 11 {
		t.Fatalf("filter count = %d, want 11", r.FilterCount())
	}

	session := &fakeSession{}
	mgr.sessions <- session

	waitFor(t, "filter install", func() bool { return session.installedCount() == 11 })
}

func TestRouter_DecodesAndDispatchesLog(t *testing.T) {
	r, mgr, sink, cancel := startRouter(t)
	defer cancel()

	session := &fakeSession{}
	mgr.sessions <- session
	waitFor(t, "filter install", func() bool { return session.installedCount() == 11 })

	b := bindingFor(t, r, managerV2Addr, decode.KindTokenCreate)
	supply, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	data, err := b.event.Inputs.Pack(
		common.HexToAddress("0xAAA0000000000000000000000000000000000001"),
		common.HexToAddress("0xBBB0000000000000000000000000000000000002"),
		"Pepe",
		"PEPE",
		supply,
		"ipfs://meta",
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	flt, ok := session.find(managerV2Addr, b.event.ID)
	if !ok {
		t.Fatal("no filter installed for v2 TokenCreate")
	}
	flt.ch <- types.Log{
		Address:     managerV2Addr,
		Topics:      []common.Hash{b.event.ID},
		Data:        data,
		BlockNumber: 777,
		TxHash:      common.HexToHash("0xfeed"),
	}

	select {
	case ev := <-sink.events:
		create, ok := ev.(*decode.TokenCreate)
		if !ok {
			t.Fatalf("dispatched %T, want *TokenCreate", ev)
		}
		if create.Name != "Pepe" || create.InitialSupply != "1000000" {
			t.Errorf("decoded create = %+v", create)
		}
		if create.Slot != 777 {
			t.Errorf("slot = %d, want 777", create.Slot)
		}
		if create.URI != "ipfs://meta" {
			t.Errorf("uri = %q", create.URI)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
	}
}

func TestRouter_MalformedLogDoesNotKillSubscription(t *testing.T) {
	r, mgr, sink, cancel := startRouter(t)
	defer cancel()

	session := &fakeSession{}
	mgr.sessions <- session
	waitFor(t, "filter install", func() bool { return session.installedCount() == 11 })

	b := bindingFor(t, r, managerV1Addr, decode.KindTokenPurchase)
	flt, _ := session.find(managerV1Addr, b.event.ID)

	// Garbage payload: unpacking fails, decoding degrades to sentinels.
	flt.ch <- types.Log{
		Address:     managerV1Addr,
		Topics:      []common.Hash{b.event.ID},
		Data:        []byte{0x01, 0x02},
		BlockNumber: 1,
		TxHash:      common.HexToHash("0xbad"),
	}

	select {
	case ev := <-sink.events:
		trade, ok := ev.(*decode.TokenTrade)
		if !ok {
			t.Fatalf("dispatched %T", ev)
		}
		if trade.Token != decode.NotAvailable {
			t.Errorf("token = %q, want N/A", trade.Token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("malformed log was dropped instead of degraded")
	}

	// The subscription still delivers the next, well-formed log.
	amount := new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	data, err := b.event.Inputs.Pack(
		common.HexToAddress("0xBBB0000000000000000000000000000000000002"),
		common.HexToAddress("0xCCC0000000000000000000000000000000000003"),
		amount,
		big.NewInt(0),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	flt.ch <- types.Log{
		Address:     managerV1Addr,
		Topics:      []common.Hash{b.event.ID},
		Data:        data,
		BlockNumber: 2,
		TxHash:      common.HexToHash("0x900d"),
	}

	select {
	case ev := <-sink.events:
		if ev.(*decode.TokenTrade).Amount != "5" {
			t.Errorf("amount = %q, want 5", ev.(*decode.TokenTrade).Amount)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription stopped after malformed log")
	}
}

func TestRouter_SubscriptionErrorNotifiesManager(t *testing.T) {
	r, mgr, _, cancel := startRouter(t)
	defer cancel()

	session := &fakeSession{}
	mgr.sessions <- session
	waitFor(t, "filter install", func() bool { return session.installedCount() == 11 })

	b := bindingFor(t, r, managerV2Addr, decode.KindTokenSale)
	flt, _ := session.find(managerV2Addr, b.event.ID)
	flt.sub.errCh <- errors.New("transport reset")

	waitFor(t, "manager notification", func() bool { return mgr.notified.Load() >= 1 })
}

func TestRouter_ReinstallsOnSessionReplacement(t *testing.T) {
	_, mgr, _, cancel := startRouter(t)
	defer cancel()

	first := &fakeSession{}
	mgr.sessions <- first
	waitFor(t, "first install", func() bool { return first.installedCount() == 11 })

	second := &fakeSession{}
	mgr.sessions <- second
	waitFor(t, "reinstall on new session", func() bool { return second.installedCount() == 11 })

	// Old session pumps unsubscribe as their context is cancelled.
	waitFor(t, "old filters released", func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		for _, flt := range first.filters {
			if !flt.sub.unsubbed.Load() {
				return false
			}
		}
		return true
	})
}

func TestRouter_PairSwapLoggedNotDispatched(t *testing.T) {
	r, mgr, sink, cancel := startRouter(t)
	defer cancel()

	session := &fakeSession{}
	mgr.sessions <- session
	waitFor(t, "filter install", func() bool { return session.installedCount() == 11 })

	b := bindingFor(t, r, pairAddr, decode.KindPairSwap)
	flt, ok := session.find(pairAddr, b.event.ID)
	if !ok {
		t.Fatal("no filter installed for pair swap")
	}
	flt.ch <- types.Log{
		Address:     pairAddr,
		Topics:      []common.Hash{b.event.ID},
		BlockNumber: 5,
		TxHash:      common.HexToHash("0x5afe"),
	}

	select {
	case ev := <-sink.events:
		t.Fatalf("swap dispatched as %T, want log-only", ev)
	case <-time.After(100 * time.Millisecond):
	}
}
