package runners

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/petrijr/relay/pkg/api"
)

// DefaultChatBaseURL is the Telegram bot API endpoint the chat runner
// talks to unless a different base is injected.
const DefaultChatBaseURL = "https://api.telegram.org"

// Chat sends a rendered message through a Telegram-style bot API.
//
// Config keys:
//
//	token    bot credential (required)
//	chat_id  destination chat (required)
//	text     rendered message text (required)
//	critical bool; a failed send fails the whole run
type Chat struct {
	client  *http.Client
	baseURL string
}

var _ api.Runner = (*Chat)(nil)

// NewChat creates the chat runner. A nil client gets a 10s timeout default;
// an empty baseURL falls back to DefaultChatBaseURL.
func NewChat(client *http.Client, baseURL string) *Chat {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultChatBaseURL
	}
	return &Chat{client: client, baseURL: baseURL}
}

func (c *Chat) Run(ctx context.Context, config map[string]any, execCtx map[string]any) (api.NodeResult, error) {
	critical := configBool(config, "critical")

	token := configString(config, "token")
	chatID := configString(config, "chat_id")
	text := configString(config, "text")
	if token == "" || chatID == "" || text == "" {
		return failure(critical, map[string]any{"error": "chat: token, chat_id and text are required"}), nil
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return failure(critical, map[string]any{"error": "chat: " + err.Error()}), nil
	}

	url := c.baseURL + "/bot" + token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return failure(critical, map[string]any{"error": "chat: " + err.Error()}), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return failure(critical, map[string]any{"error": err.Error()}), nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(body),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.NodeResult{Success: false, Fatal: critical, Output: output}, nil
	}
	return api.NodeResult{Success: true, Output: output}, nil
}
