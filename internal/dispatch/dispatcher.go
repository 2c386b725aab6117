package dispatch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dormantwatch/internal/model"
	"dormantwatch/internal/render"
	"dormantwatch/internal/sink"
)

// Recorder receives delivery records for the audit trail. Failures are
// logged and never block the pipeline.
type Recorder interface {
	PutDelivery(ctx context.Context, record model.DeliveryRecord) error
}

// Config holds dispatcher settings.
type Config struct {
	// Concurrency bounds in-flight alerts so a slow sink does not stall
	// event intake. Dispatch order may differ from classification order.
	Concurrency int

	// SendTimeout bounds each outbound sink call.
	SendTimeout time.Duration
}

// Dispatcher delivers rendered alerts to the notification sink. It attempts
// the primary body, retries once with the fallback on sink rejection, and
// records Failed otherwise. The retry budget is fixed: pipeline liveness
// outranks single-alert delivery.
type Dispatcher struct {
	cfg      Config
	sink     sink.Sink
	recorder Recorder
	logger   *zap.Logger
}

// New builds a dispatcher. recorder may be nil.
func New(cfg Config, alertSink sink.Sink, recorder Recorder, logger *zap.Logger) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg, sink: alertSink, recorder: recorder, logger: logger}
}

// Run consumes alerts until the channel closes, then drains in-flight sends
// and returns. Cancelling ctx aborts outstanding sink calls.
func (d *Dispatcher) Run(ctx context.Context, alerts <-chan model.AlertEvent) {
	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for alert := range alerts {
				d.handle(ctx, alert)
			}
		}()
	}
	wg.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, alert model.AlertEvent) {
	record := d.Dispatch(ctx, alert)

	switch record.Outcome {
	case model.Delivered:
		d.logger.Info("alert delivered",
			zap.String("kind", string(alert.Kind)),
			zap.String("identity", alert.IdentityKey()),
		)
	case model.DeliveredFallback:
		d.logger.Warn("alert delivered via fallback",
			zap.String("kind", string(alert.Kind)),
			zap.String("identity", alert.IdentityKey()),
			zap.String("primary_error", record.LastError),
		)
	case model.Failed:
		d.logger.Error("alert delivery failed",
			zap.String("kind", string(alert.Kind)),
			zap.String("identity", alert.IdentityKey()),
			zap.Int("attempts", record.Attempts),
			zap.String("last_error", record.LastError),
		)
	}

	if d.recorder != nil {
		if err := d.recorder.PutDelivery(ctx, record); err != nil {
			d.logger.Warn("delivery record write failed",
				zap.String("identity", alert.IdentityKey()),
				zap.Error(err),
			)
		}
	}
}

// Dispatch delivers one alert and reports the delivery record. At most two
// sink calls are made: primary, then fallback on primary rejection.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.AlertEvent) model.DeliveryRecord {
	rendered := render.Alert(alert)
	record := model.DeliveryRecord{Alert: alert}

	record.Attempts++
	primaryErr := d.send(ctx, rendered.Primary, sink.ModeMarkdown)
	if primaryErr == nil {
		record.Outcome = model.Delivered
		return record
	}
	record.LastError = primaryErr.Error()

	record.Attempts++
	fallbackErr := d.send(ctx, rendered.Fallback, sink.ModePlain)
	if fallbackErr == nil {
		record.Outcome = model.DeliveredFallback
		return record
	}

	record.Outcome = model.Failed
	record.LastError = fallbackErr.Error()
	return record
}

func (d *Dispatcher) send(ctx context.Context, text string, mode sink.Mode) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()
	return d.sink.Send(sendCtx, text, mode)
}
