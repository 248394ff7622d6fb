package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "sjsage522/promobot/pkg/errors"
)

type capturedCall struct {
	path    string
	payload map[string]interface{}
}

func telegramServer(t *testing.T, status int, body string) (*httptest.Server, *[]capturedCall) {
	t.Helper()
	var calls []capturedCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		calls = append(calls, capturedCall{path: r.URL.Path, payload: payload})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestPublishText(t *testing.T) {
	srv, calls := telegramServer(t, http.StatusOK, `{"ok":true}`)
	p := NewTelegramPublisher(srv.URL, "123:abc", "-100200", nil)

	require.NoError(t, p.PublishText(context.Background(), "<b>hola</b>", "https://mercadolibre.com/sec/x"))
	require.Len(t, *calls, 1)

	c := (*calls)[0]
	assert.Equal(t, "/bot123:abc/sendMessage", c.path)
	assert.Equal(t, "-100200", c.payload["chat_id"])
	assert.Equal(t, "<b>hola</b>", c.payload["text"])
	assert.Equal(t, "HTML", c.payload["parse_mode"])

	markup := c.payload["reply_markup"].(map[string]interface{})
	row := markup["inline_keyboard"].([]interface{})[0].([]interface{})
	btn := row[0].(map[string]interface{})
	assert.Equal(t, "Ver oferta", btn["text"])
	assert.Equal(t, "https://mercadolibre.com/sec/x", btn["url"])
}

func TestPublishPhotoWithoutButton(t *testing.T) {
	srv, calls := telegramServer(t, http.StatusOK, `{"ok":true}`)
	p := NewTelegramPublisher(srv.URL+"/", "tok", "42", nil)

	require.NoError(t, p.PublishPhoto(context.Background(), "https://http2.mlstatic.com/a.jpg", "cap", ""))
	c := (*calls)[0]
	assert.Equal(t, "/bottok/sendPhoto", c.path)
	assert.Equal(t, "https://http2.mlstatic.com/a.jpg", c.payload["photo"])
	assert.Equal(t, "cap", c.payload["caption"])
	assert.NotContains(t, c.payload, "reply_markup")
}

func TestPublishFailures(t *testing.T) {
	srv, _ := telegramServer(t, http.StatusBadRequest, `{"ok":false,"description":"Bad Request: wrong file identifier"}`)
	p := NewTelegramPublisher(srv.URL, "tok", "42", nil)
	err := p.PublishPhoto(context.Background(), "x", "y", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypePublisher))
	assert.Contains(t, err.Error(), "wrong file identifier")

	limited, _ := telegramServer(t, http.StatusTooManyRequests, `{"ok":false,"parameters":{"retry_after":7}}`)
	p = NewTelegramPublisher(limited.URL, "tok", "42", nil)
	err = p.PublishText(context.Background(), "x", "")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeRateLimit))

	unconfigured := NewTelegramPublisher(srv.URL, "", "42", nil)
	err = unconfigured.PublishText(context.Background(), "x", "")
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeConfiguration))
}

func TestNetworkErrorHidesToken(t *testing.T) {
	p := NewTelegramPublisher("http://127.0.0.1:1", "secret-token", "42", &http.Client{Timeout: time.Second})
	err := p.PublishText(context.Background(), "x", "")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeNetwork))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestNotifier(t *testing.T) {
	srv, calls := telegramServer(t, http.StatusOK, `{"ok":true}`)
	n := NewTelegramNotifier(srv.URL, "tok", "777", nil)
	n.now = func() time.Time { return time.Date(2024, 1, 1, 9, 5, 7, 0, time.UTC) }

	require.NoError(t, n.Notify(context.Background(), LevelWarning, "Sin publicaciones", "0 ofertas <ok>"))
	text := (*calls)[0].payload["text"].(string)
	assert.True(t, strings.HasPrefix(text, "🟡 WARNING | 09:05:07"))
	assert.Contains(t, text, "<b>Sin publicaciones</b>")
	assert.Contains(t, text, "0 ofertas &lt;ok&gt;")
	assert.Equal(t, "777", (*calls)[0].payload["chat_id"])

	silent := NewTelegramNotifier(srv.URL, "", "", nil)
	assert.NoError(t, silent.Notify(context.Background(), LevelError, "x", "y"))
	assert.Len(t, *calls, 1)
}

func TestLevelEmoji(t *testing.T) {
	assert.Equal(t, "🔴", LevelError.Emoji())
	assert.Equal(t, "🟢", LevelSuccess.Emoji())
	assert.Equal(t, "🔵", LevelInfo.Emoji())
	assert.Equal(t, "❓", Level("DEBUG").Emoji())
}
