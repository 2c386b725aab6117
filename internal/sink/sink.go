package sink

import "context"

// Mode selects the formatting the sink should apply to a message. The sink
// may reject ModeMarkdown for malformed markup; that rejection is the
// trigger for the dispatcher's plain-text fallback.
type Mode string

const (
	ModeMarkdown Mode = "Markdown"
	ModePlain    Mode = ""
)

// Sink is the notification channel receiving rendered alerts.
type Sink interface {
	// Send delivers one message to the configured channel.
	Send(ctx context.Context, text string, mode Mode) error

	// Ping checks sink reachability without sending a message.
	Ping(ctx context.Context) error
}
