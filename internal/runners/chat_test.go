package runners

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

func TestChat_SendMessage(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewChat(srv.Client(), srv.URL)
	config := map[string]any{
		"token":   "bot-token",
		"chat_id": "chat-9",
		"text":    "job j-1 entered stage S2",
	}

	res, err := c.Run(context.Background(), config, nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, http.StatusOK, res.Output["status_code"])

	require.Equal(t, "/botbot-token/sendMessage", gotPath)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &sent))
	require.Equal(t, "chat-9", sent["chat_id"])
	require.Equal(t, "job j-1 entered stage S2", sent["text"])
}

func TestChat_AuthErrorIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewChat(srv.Client(), srv.URL)
	config := map[string]any{"token": "bad", "chat_id": "c", "text": "hi"}

	res, err := c.Run(context.Background(), config, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.False(t, res.Fatal)
	require.Equal(t, http.StatusUnauthorized, res.Output["status_code"])
}

func TestChat_MissingConfig(t *testing.T) {
	c := NewChat(nil, "")

	res, err := c.Run(context.Background(), map[string]any{"chat_id": "c"}, nil)
	require.NoError(t, err)
	require.False(t, res.Success)
	require.NotEmpty(t, res.Output["error"])
}
