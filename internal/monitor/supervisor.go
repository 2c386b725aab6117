package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dormantwatch/internal/model"
	"dormantwatch/internal/source"
)

// State is the supervisor's position in its reconnect state machine.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateDisconnected State = "disconnected"
	StateErrored      State = "errored"
)

// Supervisor owns the event source's lifecycle. On disconnect or error it
// waits a backoff delay and resubscribes from the last confirmed block
// height, never from "latest", trading duplicate events (absorbed by the
// dedup window) for zero gaps. Once a stream has been established the loop
// retries forever; before that, subscribe failures are fatal after the
// bounded startup budget.
type Supervisor struct {
	src             source.Subscriber
	classifier      *Classifier
	backoff         Backoff
	initial         source.Position
	startupAttempts int
	logger          *zap.Logger

	// streamed flips once the first stream connects; touched only by the
	// Run goroutine.
	streamed bool

	mu            sync.RWMutex
	state         State
	lastConfirmed uint64
}

// NewSupervisor builds a supervisor streaming from the given start position.
// startupAttempts bounds subscribe failures before the first established
// stream.
func NewSupervisor(src source.Subscriber, classifier *Classifier, backoff Backoff, initial source.Position, startupAttempts int, logger *zap.Logger) *Supervisor {
	if startupAttempts < 1 {
		startupAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		src:             src,
		classifier:      classifier,
		backoff:         backoff,
		initial:         initial,
		startupAttempts: startupAttempts,
		logger:          logger,
		state:           StateIdle,
	}
}

// State returns the current lifecycle state for the health monitor.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastConfirmed returns the block number of the most recently classified
// event, zero before the first classification.
func (s *Supervisor) LastConfirmed() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastConfirmed
}

// Run streams events into alerts until ctx is cancelled. The alerts channel
// is closed on return.
func (s *Supervisor) Run(ctx context.Context, alerts chan<- model.AlertEvent) error {
	defer close(alerts)
	defer s.setState(StateIdle)

	pos := s.initial
	attempt := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(StateConnecting)
		msgs, err := s.src.Subscribe(ctx, pos)
		if err != nil {
			s.setState(StateErrored)
			attempt++
			if !s.streamed && attempt >= s.startupAttempts {
				return fmt.Errorf("initial subscription not established after %d attempts: %w", attempt, err)
			}
			delay := s.backoff.Next(attempt)
			s.logger.Warn("subscribe failed",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
			)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			continue
		}

		endState := s.stream(ctx, msgs, alerts, &attempt)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(endState)
		attempt++
		delay := s.backoff.Next(attempt)
		s.logger.Info("resubscribing",
			zap.String("state", string(endState)),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", delay),
			zap.Uint64("last_confirmed", s.LastConfirmed()),
		)
		if !sleep(ctx, delay) {
			return ctx.Err()
		}

		if confirmed := s.LastConfirmed(); confirmed > 0 {
			pos = source.FromBlock(confirmed)
		}
	}
}

// stream consumes one subscription until it ends, returning the state the
// supervisor should transition to.
func (s *Supervisor) stream(ctx context.Context, msgs <-chan source.Message, alerts chan<- model.AlertEvent, attempt *int) State {
	end := StateDisconnected
	for msg := range msgs {
		switch {
		case msg.Raw != nil:
			alert, ok := s.classifier.Classify(*msg.Raw)
			if !ok {
				continue
			}
			select {
			case alerts <- alert:
			case <-ctx.Done():
				return StateDisconnected
			}
			s.confirm(msg.Raw.BlockNumber)
			*attempt = 0
		case msg.Signal == source.SignalConnected:
			s.streamed = true
			s.setState(StateStreaming)
			s.logger.Info("subscription established")
		case msg.Signal == source.SignalDisconnected:
			end = StateDisconnected
		case msg.Signal == source.SignalErrored:
			s.logger.Warn("subscription errored", zap.Error(msg.Err))
			end = StateErrored
		}
	}
	return end
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) confirm(block uint64) {
	s.mu.Lock()
	if block > s.lastConfirmed {
		s.lastConfirmed = block
	}
	s.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
