package monitor

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"dormantwatch/internal/model"
	"dormantwatch/internal/registry"
)

// Classifier maps raw events to typed alerts and suppresses duplicates.
// It has exactly one consumer: the supervisor's streaming loop.
type Classifier struct {
	abi    abi.ABI
	window *DedupWindow
	logger *zap.Logger
}

// NewClassifier builds a classifier with a dedup window of the given capacity.
func NewClassifier(dedupCapacity int, logger *zap.Logger) (*Classifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := registry.ABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	return &Classifier{
		abi:    parsed,
		window: NewDedupWindow(dedupCapacity),
		logger: logger,
	}, nil
}

// Classify returns the typed alert for a raw event, or false when the event
// was already seen within the dedup window. Unparseable events classify as
// DecodeFailed rather than being dropped.
func (c *Classifier) Classify(raw model.RawEvent) (model.AlertEvent, bool) {
	if c.window.Seen(raw.IdentityKey()) {
		c.logger.Debug("duplicate event suppressed",
			zap.String("identity", raw.IdentityKey()),
			zap.Uint64("block", raw.BlockNumber),
		)
		return model.AlertEvent{}, false
	}

	alert, err := c.decode(raw)
	if err != nil {
		c.logger.Warn("event decode failed",
			zap.String("identity", raw.IdentityKey()),
			zap.String("event", raw.EventName),
			zap.Error(err),
		)
		rawCopy := raw
		return model.AlertEvent{
			Kind:        model.KindDecodeFailed,
			BlockNumber: raw.BlockNumber,
			TxHash:      raw.TxHash,
			LogIndex:    raw.LogIndex,
			Raw:         &rawCopy,
		}, true
	}
	return alert, true
}

func (c *Classifier) decode(raw model.RawEvent) (model.AlertEvent, error) {
	base := model.AlertEvent{
		BlockNumber: raw.BlockNumber,
		TxHash:      raw.TxHash,
		LogIndex:    raw.LogIndex,
	}

	switch raw.EventName {
	case "ContractActivated":
		reactivated, err := c.decodeActivated(raw)
		if err != nil {
			return model.AlertEvent{}, err
		}
		base.Kind = model.KindReactivation
		base.Reactivated = reactivated
		return base, nil
	case "ContractAdded":
		contract, err := c.decodeIndexedAddress(raw, "ContractAdded")
		if err != nil {
			return model.AlertEvent{}, err
		}
		base.Kind = model.KindContractAdded
		base.Added = &model.ContractRef{Contract: contract.Hex()}
		return base, nil
	case "ContractRemoved":
		contract, err := c.decodeIndexedAddress(raw, "ContractRemoved")
		if err != nil {
			return model.AlertEvent{}, err
		}
		base.Kind = model.KindContractRemoved
		base.Removed = &model.ContractRef{Contract: contract.Hex()}
		return base, nil
	case "ConfigChanged":
		change, err := c.decodeConfigChanged(raw)
		if err != nil {
			return model.AlertEvent{}, err
		}
		base.Kind = model.KindConfigChanged
		base.Config = change
		return base, nil
	default:
		return model.AlertEvent{}, fmt.Errorf("unknown event name: %q", raw.EventName)
	}
}

func (c *Classifier) decodeActivated(raw model.RawEvent) (*model.Reactivation, error) {
	event := c.abi.Events["ContractActivated"]

	contract, err := singleIndexedAddress(event, raw.Topics)
	if err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, raw.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 4 {
		return nil, fmt.Errorf("unexpected activated values: %d", len(values))
	}

	previous, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("previous balance: %w", err)
	}
	current, err := asBigInt(values[1])
	if err != nil {
		return nil, fmt.Errorf("current balance: %w", err)
	}
	dormantSince, err := asBigInt(values[2])
	if err != nil {
		return nil, fmt.Errorf("dormant since: %w", err)
	}
	at, err := asBigInt(values[3])
	if err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}

	return &model.Reactivation{
		Contract:        contract.Hex(),
		PreviousBalance: previous,
		CurrentBalance:  current,
		DormantSince:    dormantSince.Uint64(),
		At:              at.Uint64(),
	}, nil
}

func (c *Classifier) decodeIndexedAddress(raw model.RawEvent, name string) (common.Address, error) {
	return singleIndexedAddress(c.abi.Events[name], raw.Topics)
}

func (c *Classifier) decodeConfigChanged(raw model.RawEvent) (*model.ConfigChange, error) {
	event := c.abi.Events["ConfigChanged"]

	operator, err := singleIndexedAddress(event, raw.Topics)
	if err != nil {
		return nil, err
	}

	values, err := unpackNonIndexed(event, raw.Data)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("unexpected config values: %d", len(values))
	}
	channelID, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("channel id: %w", err)
	}

	return &model.ConfigChange{
		Operator:  operator.Hex(),
		ChannelID: channelID.Uint64(),
	}, nil
}

func singleIndexedAddress(event abi.Event, topics []string) (common.Address, error) {
	if len(topics) != 2 {
		return common.Address{}, fmt.Errorf("%s: expected 2 topics, got %d", event.Name, len(topics))
	}
	data, err := hexutil.Decode(topics[1])
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid topic: %w", err)
	}
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("topic length %d", len(data))
	}
	return common.BytesToAddress(data[12:]), nil
}

func unpackNonIndexed(event abi.Event, dataHex string) ([]interface{}, error) {
	data, err := hexutil.Decode(dataHex)
	if err != nil {
		return nil, fmt.Errorf("invalid data: %w", err)
	}
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}
