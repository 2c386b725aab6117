package query

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"dormantwatch/internal/model"
	"dormantwatch/internal/render"
)

// StateReader exposes the supervisor's current lifecycle state.
type StateReader interface {
	State() string
	LastConfirmed() uint64
}

// ChainReader is the slice of the chain client the responder needs.
type ChainReader interface {
	GetChainID(ctx context.Context) (*big.Int, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// RegistryReader is the registry contract's read-only view surface.
type RegistryReader interface {
	MonitoredCount(ctx context.Context) (uint64, error)
	ContractInfo(ctx context.Context, contract common.Address) (model.MonitoredContract, error)
	MonitoredContractAt(ctx context.Context, index uint64) (model.MonitoredContract, error)
	IsDormant(ctx context.Context, contract common.Address) (bool, error)
	InactivityPeriod(ctx context.Context) (uint64, error)
}

// Responder answers synchronous operator commands with read-only calls
// against the registry. Stateless per request; it never touches the event
// pipeline's mutable state.
type Responder struct {
	chain       ChainReader
	registry    RegistryReader
	state       StateReader
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewResponder builds a responder. state may be nil when no supervisor runs
// (one-shot CLI queries).
func NewResponder(chainClient ChainReader, reg RegistryReader, state StateReader, callTimeout time.Duration, logger *zap.Logger) *Responder {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Responder{
		chain:       chainClient,
		registry:    reg,
		state:       state,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// Respond maps one operator command to a response. The empty response with
// ok=false means the command is unrecognized and should be silently ignored.
func (r *Responder) Respond(ctx context.Context, command string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 {
		return "", false
	}

	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	args := fields[1:]

	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	switch name {
	case "status":
		return r.status(ctx), true
	case "contracts":
		return r.contracts(ctx), true
	case "info":
		return r.info(ctx, args), true
	case "dormancy":
		return r.dormancy(ctx), true
	case "help", "start":
		return helpText(), true
	default:
		return "", false
	}
}

func (r *Responder) status(ctx context.Context) string {
	height, err := r.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Sprintf("Status unavailable: %v", err)
	}

	count, err := r.registry.MonitoredCount(ctx)
	if err != nil {
		return fmt.Sprintf("Status unavailable: %v", err)
	}

	var sb strings.Builder
	if chainID, err := r.chain.GetChainID(ctx); err == nil {
		fmt.Fprintf(&sb, "Chain ID: %s\n", chainID)
	}
	fmt.Fprintf(&sb, "Chain height: %d\n", height)
	fmt.Fprintf(&sb, "Monitored contracts: %d\n", count)
	if r.state != nil {
		fmt.Fprintf(&sb, "Pipeline: %s\n", r.state.State())
		if confirmed := r.state.LastConfirmed(); confirmed > 0 {
			fmt.Fprintf(&sb, "Last confirmed block: %d\n", confirmed)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Responder) contracts(ctx context.Context) string {
	count, err := r.registry.MonitoredCount(ctx)
	if err != nil {
		return fmt.Sprintf("Contract list unavailable: %v", err)
	}
	if count == 0 {
		return "No contracts under monitoring."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Monitoring %d contracts:\n", count)
	for i := uint64(0); i < count; i++ {
		contract, err := r.registry.MonitoredContractAt(ctx, i)
		if err != nil {
			fmt.Fprintf(&sb, "%d. unavailable: %v\n", i+1, err)
			continue
		}
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, contract.Address, activityLabel(contract))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Responder) info(ctx context.Context, args []string) string {
	if len(args) != 1 {
		return "Usage: info <address>"
	}
	// Validate before issuing any chain call.
	if !common.IsHexAddress(args[0]) {
		return fmt.Sprintf("Invalid address: %s", args[0])
	}
	address := common.HexToAddress(args[0])

	contract, err := r.registry.ContractInfo(ctx, address)
	if err != nil {
		return fmt.Sprintf("Contract info unavailable: %v", err)
	}

	// The isDormant view is authoritative; the struct snapshot can lag one
	// activity probe behind it.
	if dormant, err := r.registry.IsDormant(ctx, address); err == nil {
		contract.Dormant = dormant
	} else {
		r.logger.Debug("dormancy lookup failed", zap.String("address", address.Hex()), zap.Error(err))
	}

	if balance, err := r.chain.BalanceAt(ctx, address, nil); err != nil {
		r.logger.Debug("balance lookup failed", zap.String("address", address.Hex()), zap.Error(err))
	} else {
		contract.LastKnownBalance = balance
		contract.BalanceObservedAt = uint64(time.Now().Unix())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Contract: %s\n", contract.Address)
	fmt.Fprintf(&sb, "Status: %s\n", activityLabel(contract))
	fmt.Fprintf(&sb, "Last activity: %s\n", render.FormatTimestamp(contract.LastActivityTime))
	fmt.Fprintf(&sb, "Added: %s\n", render.FormatTimestamp(contract.AddedTime))
	if contract.LastKnownBalance != nil {
		fmt.Fprintf(&sb, "Balance: %s ETH as of %s\n",
			render.FormatEther(contract.LastKnownBalance),
			render.FormatTimestamp(contract.BalanceObservedAt))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (r *Responder) dormancy(ctx context.Context) string {
	period, err := r.registry.InactivityPeriod(ctx)
	if err != nil {
		return fmt.Sprintf("Dormancy settings unavailable: %v", err)
	}
	return fmt.Sprintf("Dormancy threshold: %s of inactivity", (time.Duration(period) * time.Second).String())
}

func activityLabel(contract model.MonitoredContract) string {
	switch {
	case contract.Dormant:
		return "dormant"
	case contract.Active:
		return "active"
	default:
		return "inactive"
	}
}

func helpText() string {
	return strings.Join([]string{
		"Commands:",
		"status - chain height and pipeline state",
		"contracts - list monitored contracts",
		"info <address> - details for one contract",
		"dormancy - configured inactivity threshold",
		"help - this message",
	}, "\n")
}
