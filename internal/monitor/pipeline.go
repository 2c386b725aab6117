package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"dormantwatch/internal/model"
)

// Dispatcher consumes classified alerts until the channel closes.
type Dispatcher interface {
	Run(ctx context.Context, alerts <-chan model.AlertEvent)
}

// Task is an independent long-running component (health monitor, command
// listener) supervised alongside the event pipeline.
type Task interface {
	Run(ctx context.Context) error
}

// Pipeline wires the supervisor to the dispatcher and runs the independent
// tasks. It holds all handles explicitly; there are no ambient singletons.
type Pipeline struct {
	supervisor *Supervisor
	dispatcher Dispatcher
	tasks      []Task
	grace      time.Duration
	logger     *zap.Logger
}

// NewPipeline builds the pipeline. grace bounds the dispatch drain on
// shutdown.
func NewPipeline(supervisor *Supervisor, dispatcher Dispatcher, grace time.Duration, logger *zap.Logger, tasks ...Task) *Pipeline {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		supervisor: supervisor,
		dispatcher: dispatcher,
		tasks:      tasks,
		grace:      grace,
		logger:     logger,
	}
}

// Run blocks until ctx is cancelled, then drains in-flight dispatches up to
// the grace period before returning. Cancellation is a clean exit.
func (p *Pipeline) Run(ctx context.Context) error {
	alerts := make(chan model.AlertEvent, 64)

	// Dispatch outlives ctx so in-flight alerts can finish during the
	// drain window.
	dispatchCtx, cancelDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelDispatch()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		p.dispatcher.Run(dispatchCtx, alerts)
	}()

	var wg sync.WaitGroup
	for _, task := range p.tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			if err := task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn("task exited", zap.Error(err))
			}
		}(task)
	}

	err := p.supervisor.Run(ctx, alerts)

	select {
	case <-dispatchDone:
	case <-time.After(p.grace):
		p.logger.Warn("dispatch drain timed out", zap.Duration("grace", p.grace))
		cancelDispatch()
		<-dispatchDone
	}

	wg.Wait()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
