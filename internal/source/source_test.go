package source

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"dormantwatch/internal/registry"
)

type fakeSub struct {
	errCh chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errCh }

type fakeChain struct {
	mu          sync.Mutex
	head        uint64
	backfill    []types.Log
	filterCalls int
	liveCh      chan<- types.Log
	sub         *fakeSub
}

func (c *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	return c.head, nil
}

func (c *fakeChain) FilterLogs(_ context.Context, fromBlock, toBlock uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filterCalls++

	out := make([]types.Log, 0, len(c.backfill))
	for _, log := range c.backfill {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

func (c *fakeChain) SubscribeLogs(_ context.Context, _ []common.Address, _ []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.liveCh = ch
	c.sub = &fakeSub{errCh: make(chan error, 1)}
	return c.sub, nil
}

func logAt(t *testing.T, block uint64, index uint) types.Log {
	t.Helper()
	parsed, err := registry.ABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}
	contract := common.HexToAddress("0xaaaa")
	return types.Log{
		Address:     common.HexToAddress("0x1234"),
		Topics:      []common.Hash{parsed.Events["ContractAdded"].ID, common.BytesToHash(contract.Bytes())},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block)),
		Index:       index,
	}
}

func TestSubscribeBackfillsGapThenStreams(t *testing.T) {
	chain := &fakeChain{
		head: 11,
		backfill: []types.Log{
			logAt(t, 10, 0),
			logAt(t, 11, 0),
		},
	}

	adapter, err := NewAdapter(chain, common.HexToAddress("0x1234"), registry.EventNames(), nil)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := adapter.Subscribe(ctx, FromBlock(10))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	expect := func(want SignalKind, wantBlock uint64) Message {
		t.Helper()
		select {
		case msg := <-msgs:
			if want != "" && msg.Signal != want {
				t.Fatalf("signal = %q, want %q (err=%v)", msg.Signal, want, msg.Err)
			}
			if want == "" {
				if msg.Raw == nil {
					t.Fatalf("expected raw event at block %d, got signal %q", wantBlock, msg.Signal)
				}
				if msg.Raw.BlockNumber != wantBlock {
					t.Fatalf("raw block = %d, want %d", msg.Raw.BlockNumber, wantBlock)
				}
				if msg.Raw.EventName != "ContractAdded" {
					t.Fatalf("event name = %q, want ContractAdded", msg.Raw.EventName)
				}
			}
			return msg
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message")
			return Message{}
		}
	}

	expect(SignalConnected, 0)
	expect("", 10)
	expect("", 11)

	// Live event after the backfill.
	chain.mu.Lock()
	live := chain.liveCh
	sub := chain.sub
	chain.mu.Unlock()
	live <- logAt(t, 12, 0)
	expect("", 12)

	// Transport error surfaces as an Errored signal, then the channel
	// closes. Never a silent termination.
	sub.errCh <- errors.New("connection reset")
	msg := expect(SignalErrored, 0)
	if msg.Err == nil {
		t.Fatalf("errored signal carries no cause")
	}

	select {
	case _, ok := <-msgs:
		if ok {
			t.Fatalf("expected channel close after errored signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after errored signal")
	}
}

func TestSubscribeLatestSkipsBackfill(t *testing.T) {
	chain := &fakeChain{head: 100, backfill: []types.Log{logAt(t, 50, 0)}}

	adapter, err := NewAdapter(chain, common.HexToAddress("0x1234"), registry.EventNames(), nil)
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := adapter.Subscribe(ctx, Latest())
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case msg := <-msgs:
		if msg.Signal != SignalConnected {
			t.Fatalf("first message = %+v, want connected signal", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for connected signal")
	}

	chain.mu.Lock()
	calls := chain.filterCalls
	chain.mu.Unlock()
	if calls != 0 {
		t.Fatalf("latest position triggered %d backfill calls", calls)
	}
}

func TestNewAdapterRejectsUnknownEvent(t *testing.T) {
	if _, err := NewAdapter(&fakeChain{}, common.Address{}, []string{"NoSuchEvent"}, nil); err == nil {
		t.Fatalf("expected error for unknown event name")
	}
}
