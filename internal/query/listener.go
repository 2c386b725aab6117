package query

import (
	"context"
	"time"

	"go.uber.org/zap"

	"dormantwatch/internal/sink"
)

// Transport receives operator commands and carries replies back.
type Transport interface {
	Updates(ctx context.Context, offset int64, timeout time.Duration) ([]sink.Update, error)
	SendTo(ctx context.Context, chatID int64, text string, mode sink.Mode) error
}

// Listener long-polls the transport for operator commands and answers them
// through the responder. Runs independently of the event pipeline.
type Listener struct {
	transport   Transport
	responder   *Responder
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewListener builds a command listener.
func NewListener(transport Transport, responder *Responder, pollTimeout time.Duration, logger *zap.Logger) *Listener {
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		transport:   transport,
		responder:   responder,
		pollTimeout: pollTimeout,
		logger:      logger,
	}
}

// Run polls until ctx is cancelled. The first poll asks for the live tail
// only, so commands queued while the process was down are discarded rather
// than re-answered. Poll errors are logged and retried after a short pause;
// they never terminate the listener.
func (l *Listener) Run(ctx context.Context) error {
	offset, err := l.tail(ctx)
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := l.transport.Updates(ctx, offset, l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("command poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}

			response, ok := l.responder.Respond(ctx, update.Text)
			if !ok {
				// Unrecognized commands are ignored, not errored.
				continue
			}
			if err := l.transport.SendTo(ctx, update.ChatID, response, sink.ModePlain); err != nil {
				l.logger.Warn("command reply failed",
					zap.Int64("chat_id", update.ChatID),
					zap.Error(err),
				)
			}
		}
	}
}

// tail returns the offset just past the newest pending update. Offset -1
// with a zero timeout fetches at most the last stale update without
// blocking.
func (l *Listener) tail(ctx context.Context) (int64, error) {
	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		updates, err := l.transport.Updates(ctx, -1, 0)
		if err != nil {
			l.logger.Warn("command poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		var offset int64
		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}
		}
		return offset, nil
	}
}
