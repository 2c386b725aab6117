package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"
)

type apiCall struct {
	method string
	form   url.Values
}

func newAPIServer(t *testing.T, handler func(method string, form url.Values) (int, string)) (*httptest.Server, func() []apiCall) {
	t.Helper()

	var mu sync.Mutex
	var calls []apiCall

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		// Path shape: /bot<token>/<method>
		method := r.URL.Path[len("/bottest-token/"):]

		mu.Lock()
		calls = append(calls, apiCall{method: method, form: r.PostForm})
		mu.Unlock()

		status, body := handler(method, r.PostForm)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))

	return server, func() []apiCall {
		mu.Lock()
		defer mu.Unlock()
		out := make([]apiCall, len(calls))
		copy(out, calls)
		return out
	}
}

func TestSendSetsParseModeForMarkdownOnly(t *testing.T) {
	server, calls := newAPIServer(t, func(string, url.Values) (int, string) {
		return http.StatusOK, `{"ok":true,"result":{}}`
	})
	defer server.Close()

	tg := NewTelegram("test-token", "42", WithBaseURL(server.URL))

	if err := tg.Send(context.Background(), "*bold*", ModeMarkdown); err != nil {
		t.Fatalf("markdown send: %v", err)
	}
	if err := tg.Send(context.Background(), "plain", ModePlain); err != nil {
		t.Fatalf("plain send: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("calls = %d, want 2", len(got))
	}
	if got[0].method != "sendMessage" || got[0].form.Get("parse_mode") != "Markdown" {
		t.Fatalf("markdown call = %+v", got[0])
	}
	if got[1].form.Has("parse_mode") {
		t.Fatalf("plain send carries parse_mode %q", got[1].form.Get("parse_mode"))
	}
	if got[0].form.Get("chat_id") != "42" {
		t.Fatalf("chat_id = %q, want 42", got[0].form.Get("chat_id"))
	}
}

func TestSendSurfacesAPIRejection(t *testing.T) {
	server, _ := newAPIServer(t, func(_ string, form url.Values) (int, string) {
		if form.Get("parse_mode") == "Markdown" {
			return http.StatusBadRequest, `{"ok":false,"description":"can't parse entities"}`
		}
		return http.StatusOK, `{"ok":true,"result":{}}`
	})
	defer server.Close()

	tg := NewTelegram("test-token", "42", WithBaseURL(server.URL))

	err := tg.Send(context.Background(), "*broken_", ModeMarkdown)
	if err == nil {
		t.Fatalf("expected error for rejected markdown")
	}

	// The same payload without markup goes through.
	if err := tg.Send(context.Background(), "broken", ModePlain); err != nil {
		t.Fatalf("plain retry: %v", err)
	}
}

func TestPing(t *testing.T) {
	server, calls := newAPIServer(t, func(method string, _ url.Values) (int, string) {
		if method != "getMe" {
			return http.StatusNotFound, `{"ok":false,"description":"unknown method"}`
		}
		return http.StatusOK, `{"ok":true,"result":{"id":1,"username":"watchbot"}}`
	})
	defer server.Close()

	tg := NewTelegram("test-token", "42", WithBaseURL(server.URL))
	if err := tg.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if got := calls(); len(got) != 1 || got[0].method != "getMe" {
		t.Fatalf("calls = %+v", got)
	}
}

func TestUpdatesParsesBatchAndSkipsNonMessages(t *testing.T) {
	batch := `{"ok":true,"result":[
		{"update_id":7,"message":{"text":"status","chat":{"id":100}}},
		{"update_id":8},
		{"update_id":9,"message":{"text":"info 0xabc","chat":{"id":100}}}
	]}`

	server, calls := newAPIServer(t, func(method string, _ url.Values) (int, string) {
		if method != "getUpdates" {
			t.Errorf("unexpected method %q", method)
		}
		return http.StatusOK, batch
	})
	defer server.Close()

	tg := NewTelegram("test-token", "42", WithBaseURL(server.URL))

	updates, err := tg.Updates(context.Background(), 7, 30*time.Second)
	if err != nil {
		t.Fatalf("updates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("updates = %+v, want 2 messages", updates)
	}
	if updates[0].ID != 7 || updates[0].Text != "status" || updates[0].ChatID != 100 {
		t.Fatalf("first update = %+v", updates[0])
	}
	if updates[1].ID != 9 || updates[1].Text != "info 0xabc" {
		t.Fatalf("second update = %+v", updates[1])
	}

	got := calls()
	if got[0].form.Get("offset") != "7" {
		t.Fatalf("offset = %q, want 7", got[0].form.Get("offset"))
	}
	if got[0].form.Get("timeout") != "30" {
		t.Fatalf("timeout = %q, want 30", got[0].form.Get("timeout"))
	}
	var allowed []string
	if err := json.Unmarshal([]byte(got[0].form.Get("allowed_updates")), &allowed); err != nil || len(allowed) != 1 || allowed[0] != "message" {
		t.Fatalf("allowed_updates = %q", got[0].form.Get("allowed_updates"))
	}
}
