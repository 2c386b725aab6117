package health

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dormantwatch/internal/chain"
	"dormantwatch/internal/registry"
	"dormantwatch/internal/sink"
)

// StateReader exposes the supervisor's current lifecycle state.
type StateReader interface {
	State() string
	LastConfirmed() uint64
}

// Monitor emits a periodic structured liveness record covering the chain,
// the pipeline state, and the notification sink. It is a liveness signal,
// not an alerting path: it never sends alerts of its own.
type Monitor struct {
	chain    *chain.Client
	registry *registry.Registry
	sink     sink.Sink
	state    StateReader
	interval time.Duration
	logger   *zap.Logger
}

// New builds a health monitor firing on the given interval (default 5m).
func New(chainClient *chain.Client, reg *registry.Registry, alertSink sink.Sink, state StateReader, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		chain:    chainClient,
		registry: reg,
		sink:     alertSink,
		state:    state,
		interval: interval,
		logger:   logger,
	}
}

// Run probes on a fixed interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	fields := make([]zap.Field, 0, 6)

	height, err := m.chain.LatestBlockNumber(probeCtx)
	if err != nil {
		fields = append(fields, zap.NamedError("chain_error", err))
	} else {
		fields = append(fields, zap.Uint64("chain_height", height))
	}

	if m.registry != nil {
		count, err := m.registry.MonitoredCount(probeCtx)
		if err != nil {
			fields = append(fields, zap.NamedError("registry_error", err))
		} else {
			fields = append(fields, zap.Uint64("monitored_contracts", count))
		}
	}

	if m.state != nil {
		fields = append(fields,
			zap.String("pipeline_state", m.state.State()),
			zap.Uint64("last_confirmed", m.state.LastConfirmed()),
		)
	}

	if m.sink != nil {
		if err := m.sink.Ping(probeCtx); err != nil {
			fields = append(fields, zap.NamedError("sink_error", err))
		} else {
			fields = append(fields, zap.Bool("sink_reachable", true))
		}
	}

	m.logger.Info("health", fields...)
}
