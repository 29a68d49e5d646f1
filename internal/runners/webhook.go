package runners

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/petrijr/relay/pkg/api"
)

// maxWebhookResponse bounds how much of a response body is captured into
// the node output.
const maxWebhookResponse = 1 << 20

// Webhook issues an outbound HTTP call described by the node config.
//
// Config keys (all rendered before the runner sees them):
//
//	url       target URL (required)
//	method    HTTP method, default POST
//	headers   map of header name to value
//	body      request body; maps and slices are serialized as JSON
//	critical  bool; a failing call fails the whole run
//
// Success is a 2xx response. Transport errors and non-2xx statuses are
// non-fatal failures unless the node is marked critical.
type Webhook struct {
	client *http.Client
}

// NewWebhook creates the webhook runner. If client is nil a default client
// with a 10s timeout is used; the timeout is the runner's guard against a
// stuck endpoint blocking the run's counter protocol.
func NewWebhook(client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{client: client}
}

var _ api.Runner = (*Webhook)(nil)

func (w *Webhook) Run(ctx context.Context, config map[string]any, execCtx map[string]any) (api.NodeResult, error) {
	critical := configBool(config, "critical")

	url := configString(config, "url")
	if url == "" {
		return failure(critical, map[string]any{"error": "webhook: missing url"}), nil
	}

	method := strings.ToUpper(configString(config, "method"))
	if method == "" {
		method = http.MethodPost
	}

	body, contentType, err := encodeBody(config["body"])
	if err != nil {
		return failure(critical, map[string]any{"error": "webhook: " + err.Error()}), nil
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return failure(critical, map[string]any{"error": "webhook: " + err.Error()}), nil
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if headers, ok := config["headers"].(map[string]any); ok {
		for name, value := range headers {
			if s, ok := value.(string); ok {
				req.Header.Set(name, s)
			}
		}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return failure(critical, map[string]any{"error": err.Error()}), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if err != nil {
		return failure(critical, map[string]any{"error": err.Error()}), nil
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(respBody),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return api.NodeResult{Success: false, Fatal: critical, Output: output}, nil
	}
	return api.NodeResult{Success: true, Output: output}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}
		return strings.NewReader(b), "", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func failure(fatal bool, output map[string]any) api.NodeResult {
	return api.NodeResult{Success: false, Fatal: fatal, Output: output}
}
