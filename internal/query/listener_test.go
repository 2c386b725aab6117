package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"dormantwatch/internal/sink"
)

type polled struct {
	offset  int64
	timeout time.Duration
}

type reply struct {
	chatID int64
	text   string
}

// fakeTransport scripts one update batch per poll.
type fakeTransport struct {
	mu      sync.Mutex
	polls   []polled
	replies []reply
	script  func(call int, offset int64) []sink.Update
}

func (f *fakeTransport) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]sink.Update, error) {
	f.mu.Lock()
	call := len(f.polls)
	f.polls = append(f.polls, polled{offset: offset, timeout: timeout})
	f.mu.Unlock()

	batch := f.script(call, offset)
	if batch == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return batch, nil
}

func (f *fakeTransport) SendTo(_ context.Context, chatID int64, text string, _ sink.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{chatID: chatID, text: text})
	return nil
}

func (f *fakeTransport) snapshot() ([]polled, []reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	polls := make([]polled, len(f.polls))
	copy(polls, f.polls)
	replies := make([]reply, len(f.replies))
	copy(replies, f.replies)
	return polls, replies
}

func TestListenerStartsFromLiveTail(t *testing.T) {
	transport := &fakeTransport{}
	transport.script = func(call int, _ int64) []sink.Update {
		switch call {
		case 0:
			// Backlog from before the process started.
			return []sink.Update{
				{ID: 41, ChatID: 9, Text: "status"},
				{ID: 42, ChatID: 9, Text: "help"},
			}
		case 1:
			return []sink.Update{{ID: 43, ChatID: 9, Text: "help"}}
		default:
			return nil
		}
	}

	listener := NewListener(transport, detachedResponder(), time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		_, replies := transport.snapshot()
		if len(replies) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("no reply delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	polls, replies := transport.snapshot()

	if polls[0].offset != -1 || polls[0].timeout != 0 {
		t.Fatalf("priming poll = %+v, want offset -1 with zero timeout", polls[0])
	}
	if polls[1].offset != 43 {
		t.Fatalf("first live poll offset = %d, want 43 (past the backlog)", polls[1].offset)
	}

	// The backlog commands are discarded; only the live one is answered.
	if len(replies) != 1 {
		t.Fatalf("replies = %+v, want exactly one", replies)
	}
	if replies[0].chatID != 9 || replies[0].text == "" {
		t.Fatalf("reply = %+v", replies[0])
	}
}

func TestListenerAdvancesOffsetPastAnsweredUpdates(t *testing.T) {
	transport := &fakeTransport{}
	transport.script = func(call int, _ int64) []sink.Update {
		switch call {
		case 0:
			return []sink.Update{}
		case 1:
			return []sink.Update{
				{ID: 10, ChatID: 3, Text: "help"},
				{ID: 11, ChatID: 3, Text: "frobnicate"},
			}
		default:
			return nil
		}
	}

	listener := NewListener(transport, detachedResponder(), time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		polls, _ := transport.snapshot()
		if len(polls) >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("listener never reached the third poll")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	polls, replies := transport.snapshot()
	if polls[2].offset != 12 {
		t.Fatalf("offset after batch = %d, want 12", polls[2].offset)
	}
	// Unrecognized commands advance the offset without a reply.
	if len(replies) != 1 {
		t.Fatalf("replies = %+v, want only the help reply", replies)
	}
}
