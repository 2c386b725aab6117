package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"dormantwatch/internal/chain"
	"dormantwatch/internal/model"
)

// Registry provides read-only access to the dormancy-registry contract.
// All writes happen on-chain, outside this system.
type Registry struct {
	chain   *chain.Client
	address common.Address
}

// New builds a registry handle for the contract at address.
func New(chainClient *chain.Client, address common.Address) *Registry {
	return &Registry{chain: chainClient, address: address}
}

// Address returns the registry contract address.
func (r *Registry) Address() common.Address {
	return r.address
}

// MonitoredCount returns the number of contracts under monitoring.
func (r *Registry) MonitoredCount(ctx context.Context) (uint64, error) {
	values, err := r.call(ctx, "getMonitoredContractsCount")
	if err != nil {
		return 0, err
	}
	count, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("monitored count: %w", err)
	}
	return count.Uint64(), nil
}

// ContractInfo returns the registry's view of one monitored contract.
func (r *Registry) ContractInfo(ctx context.Context, contract common.Address) (model.MonitoredContract, error) {
	values, err := r.call(ctx, "getContractInfo", contract)
	if err != nil {
		return model.MonitoredContract{}, err
	}
	if len(values) != 5 {
		return model.MonitoredContract{}, fmt.Errorf("unexpected contract info values: %d", len(values))
	}

	address, err := asAddress(values[0])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("contract address: %w", err)
	}
	active, err := asBool(values[1])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("is active: %w", err)
	}
	lastActivity, err := asBigInt(values[2])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("last activity time: %w", err)
	}
	addedTime, err := asBigInt(values[3])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("added time: %w", err)
	}
	dormant, err := asBool(values[4])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("dormant: %w", err)
	}

	return model.MonitoredContract{
		Address:          address.Hex(),
		Active:           active,
		Dormant:          dormant,
		LastActivityTime: lastActivity.Uint64(),
		AddedTime:        addedTime.Uint64(),
	}, nil
}

// MonitoredContractAt returns the monitored contract at the given index.
func (r *Registry) MonitoredContractAt(ctx context.Context, index uint64) (model.MonitoredContract, error) {
	values, err := r.call(ctx, "monitoredContracts", new(big.Int).SetUint64(index))
	if err != nil {
		return model.MonitoredContract{}, err
	}
	if len(values) != 4 {
		return model.MonitoredContract{}, fmt.Errorf("unexpected monitored contract values: %d", len(values))
	}

	address, err := asAddress(values[0])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("contract address: %w", err)
	}
	active, err := asBool(values[1])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("is active: %w", err)
	}
	lastActivity, err := asBigInt(values[2])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("last activity time: %w", err)
	}
	addedTime, err := asBigInt(values[3])
	if err != nil {
		return model.MonitoredContract{}, fmt.Errorf("added time: %w", err)
	}

	return model.MonitoredContract{
		Address:          address.Hex(),
		Active:           active,
		LastActivityTime: lastActivity.Uint64(),
		AddedTime:        addedTime.Uint64(),
	}, nil
}

// IsDormant reports whether the registry considers the contract dormant.
func (r *Registry) IsDormant(ctx context.Context, contract common.Address) (bool, error) {
	values, err := r.call(ctx, "isDormant", contract)
	if err != nil {
		return false, err
	}
	return asBool(values[0])
}

// InactivityPeriod returns the configured dormancy threshold in seconds.
func (r *Registry) InactivityPeriod(ctx context.Context) (uint64, error) {
	values, err := r.call(ctx, "inactivityPeriod")
	if err != nil {
		return 0, err
	}
	period, err := asBigInt(values[0])
	if err != nil {
		return 0, fmt.Errorf("inactivity period: %w", err)
	}
	return period.Uint64(), nil
}

func (r *Registry) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := r.address
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := r.chain.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
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

func asBool(value interface{}) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("unsupported bool type %T", value)
	}
	return b, nil
}
