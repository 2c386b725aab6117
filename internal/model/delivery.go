package model

// Outcome reports how a dispatch attempt ended.
type Outcome string

const (
	Delivered         Outcome = "delivered"
	DeliveredFallback Outcome = "delivered_fallback"
	Failed            Outcome = "failed"
)

// DeliveryRecord tracks one alert through the dispatcher. Ephemeral: created
// when the alert reaches the dispatcher, discarded after success or after the
// retry budget is exhausted.
type DeliveryRecord struct {
	Alert     AlertEvent `json:"alert"`
	Attempts  int        `json:"attempts"`
	Outcome   Outcome    `json:"outcome"`
	LastError string     `json:"last_error,omitempty"`
}
