package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"dormantwatch/internal/model"
	"dormantwatch/internal/registry"
)

// SignalKind marks a connection-lifecycle transition on the event sequence.
type SignalKind string

const (
	SignalConnected    SignalKind = "connected"
	SignalDisconnected SignalKind = "disconnected"
	SignalErrored      SignalKind = "errored"
)

// Message is one element of the event sequence: either a raw event or a
// lifecycle signal. Exactly one of Raw and Signal is set.
type Message struct {
	Raw    *model.RawEvent
	Signal SignalKind
	Err    error
}

// Position selects where a subscription starts.
type Position struct {
	Latest bool
	Block  uint64
}

// Latest subscribes to events after subscription start only.
func Latest() Position { return Position{Latest: true} }

// FromBlock resumes from a specific block height (inclusive).
func FromBlock(block uint64) Position { return Position{Block: block} }

// ChainSource is the slice of the chain client the adapter needs.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, addresses []common.Address, topic0 []common.Hash, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Subscriber produces an infinite sequence of messages. The returned channel
// is not restartable: after a Disconnected or Errored signal the channel
// closes and a fresh Subscribe call is required.
type Subscriber interface {
	Subscribe(ctx context.Context, from Position) (<-chan Message, error)
}

// Adapter owns the live subscription to the registry contract's logs. It is
// the only component holding the connection handle.
type Adapter struct {
	chain       ChainSource
	address     common.Address
	topic0      []common.Hash
	topicToName map[string]string
	logger      *zap.Logger
}

// NewAdapter builds an adapter subscribed to the named registry events.
func NewAdapter(chainClient ChainSource, address common.Address, eventNames []string, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := registry.ABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	topic0 := make([]common.Hash, 0, len(eventNames))
	topicToName := make(map[string]string, len(eventNames))
	for _, name := range eventNames {
		event, ok := parsed.Events[name]
		if !ok {
			return nil, fmt.Errorf("unknown registry event: %s", name)
		}
		topic0 = append(topic0, event.ID)
		topicToName[strings.ToLower(event.ID.Hex())] = name
	}

	return &Adapter{
		chain:       chainClient,
		address:     address,
		topic0:      topic0,
		topicToName: topicToName,
		logger:      logger,
	}, nil
}

// Subscribe starts the sequence. With a block-height position it first
// replays the gap between that height and the current head via eth_getLogs,
// then attaches the live subscription, so no event minted during an outage
// is skipped. Transport errors always surface as an Errored signal before
// the channel closes; the sequence never terminates silently.
func (a *Adapter) Subscribe(ctx context.Context, from Position) (<-chan Message, error) {
	liveCh := make(chan types.Log, 256)
	sub, err := a.chain.SubscribeLogs(ctx, []common.Address{a.address}, a.topic0, liveCh)
	if err != nil {
		return nil, fmt.Errorf("subscribe logs: %w", err)
	}

	var backfill []types.Log
	if !from.Latest {
		head, err := a.chain.LatestBlockNumber(ctx)
		if err != nil {
			sub.Unsubscribe()
			return nil, fmt.Errorf("latest block: %w", err)
		}
		if from.Block <= head {
			backfill, err = a.chain.FilterLogs(ctx, from.Block, head, []common.Address{a.address}, a.topic0)
			if err != nil {
				sub.Unsubscribe()
				return nil, fmt.Errorf("backfill logs: %w", err)
			}
		}
	}

	out := make(chan Message, 64)
	go a.pump(ctx, sub, liveCh, backfill, out)
	return out, nil
}

func (a *Adapter) pump(ctx context.Context, sub ethereum.Subscription, liveCh <-chan types.Log, backfill []types.Log, out chan<- Message) {
	defer close(out)
	defer sub.Unsubscribe()

	send := func(msg Message) bool {
		select {
		case out <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Message{Signal: SignalConnected}) {
		return
	}

	for _, log := range backfill {
		if !send(Message{Raw: a.toRawEvent(log)}) {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			send(Message{Signal: SignalDisconnected, Err: ctx.Err()})
			return
		case err := <-sub.Err():
			if err == nil {
				send(Message{Signal: SignalDisconnected})
				return
			}
			a.logger.Warn("subscription dropped", zap.Error(err))
			send(Message{Signal: SignalErrored, Err: err})
			return
		case log, ok := <-liveCh:
			if !ok {
				send(Message{Signal: SignalDisconnected})
				return
			}
			if log.Removed {
				continue
			}
			if !send(Message{Raw: a.toRawEvent(log)}) {
				return
			}
		}
	}
}

func (a *Adapter) toRawEvent(log types.Log) *model.RawEvent {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	name := ""
	if len(log.Topics) > 0 {
		name = a.topicToName[strings.ToLower(log.Topics[0].Hex())]
	}

	return &model.RawEvent{
		EventName:   name,
		Address:     log.Address.Hex(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Topics:      topics,
		Data:        "0x" + common.Bytes2Hex(log.Data),
	}
}
