package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram delivers messages through the Telegram Bot API and long-polls
// chat updates for operator commands.
type Telegram struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
}

// Option configures a Telegram sink.
type Option func(*Telegram)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(base string) Option {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(base, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(t *Telegram) { t.client = client }
}

// NewTelegram builds a sink posting to the given chat.
func NewTelegram(token, chatID string, opts ...Option) *Telegram {
	t := &Telegram{
		client:  &http.Client{Timeout: 35 * time.Second},
		baseURL: defaultAPIBase,
		token:   token,
		chatID:  chatID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Update is one incoming chat message from getUpdates.
type Update struct {
	ID     int64
	ChatID int64
	Text   string
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Send posts one message to the configured chat.
func (t *Telegram) Send(ctx context.Context, text string, mode Mode) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	if mode != ModePlain {
		form.Set("parse_mode", string(mode))
	}

	_, err := t.post(ctx, "sendMessage", form)
	return err
}

// SendTo posts a message to an arbitrary chat, used for command replies.
func (t *Telegram) SendTo(ctx context.Context, chatID int64, text string, mode Mode) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)
	if mode != ModePlain {
		form.Set("parse_mode", string(mode))
	}

	_, err := t.post(ctx, "sendMessage", form)
	return err
}

// Ping performs an identity call against the Bot API.
func (t *Telegram) Ping(ctx context.Context) error {
	_, err := t.post(ctx, "getMe", url.Values{})
	return err
}

// Updates long-polls chat updates after the given offset. The poll blocks
// server-side for up to timeout before returning an empty batch.
func (t *Telegram) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	form := url.Values{}
	form.Set("offset", strconv.FormatInt(offset, 10))
	form.Set("timeout", strconv.Itoa(int(timeout.Seconds())))
	form.Set("allowed_updates", `["message"]`)

	result, err := t.post(ctx, "getUpdates", form)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		UpdateID int64 `json:"update_id"`
		Message  *struct {
			Text string `json:"text"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("parse updates: %w", err)
	}

	updates := make([]Update, 0, len(raw))
	for _, u := range raw {
		if u.Message == nil {
			continue
		}
		updates = append(updates, Update{
			ID:     u.UpdateID,
			ChatID: u.Message.Chat.ID,
			Text:   u.Message.Text,
		})
	}
	return updates, nil
}

func (t *Telegram) post(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	var api apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&api); err != nil {
		return nil, fmt.Errorf("telegram %s: HTTP %d: %w", method, resp.StatusCode, err)
	}
	if !api.OK {
		return nil, fmt.Errorf("telegram %s: %s", method, api.Description)
	}
	return api.Result, nil
}
