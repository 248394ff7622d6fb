package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sjsage522/promobot/config"
	"sjsage522/promobot/internal/affiliate"
	"sjsage522/promobot/services/worker"
)

const listingHTML = `<html><body>
<div class="poly-card" data-item-id="MLM123">
  <img src="https://http2.mlstatic.com/D_1.webp">
  <a class="poly-component__title" href="https://articulo.mercadolibre.com.mx/MLM-123-audifonos#polycard">Audífonos Sony WH-CH520</a>
  <div class="poly-price__current"><span class="andes-money-amount__fraction">1,199</span></div>
  <s class="andes-money-amount--previous"><span class="andes-money-amount__fraction">2,000</span></s>
  <span class="poly-reviews__rating">4.6</span><span class="poly-reviews__total">(820)</span>
</div>
<div class="poly-card" data-item-id="MLM456">
  <a class="poly-component__title" href="https://articulo.mercadolibre.com.mx/MLM-456-colchon">Colchón matrimonial ortopédico</a>
  <div class="poly-price__current"><span class="andes-money-amount__fraction">3,000</span></div>
  <s class="andes-money-amount--previous"><span class="andes-money-amount__fraction">5,000</span></s>
  <span class="poly-reviews__rating">4.8</span><span class="poly-reviews__total">(1,500)</span>
</div>
</body></html>`

type telegramCall struct {
	Method  string
	ChatID  string
	Photo   string
	Text    string
	Caption string
	Button  string
}

type telegramRecorder struct {
	mu    sync.Mutex
	calls []telegramCall
}

func (r *telegramRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		ChatID      string `json:"chat_id"`
		Text        string `json:"text"`
		Photo       string `json:"photo"`
		Caption     string `json:"caption"`
		ReplyMarkup struct {
			InlineKeyboard [][]struct {
				URL string `json:"url"`
			} `json:"inline_keyboard"`
		} `json:"reply_markup"`
	}
	_ = json.NewDecoder(req.Body).Decode(&payload)

	call := telegramCall{
		Method:  req.URL.Path[strings.LastIndex(req.URL.Path, "/")+1:],
		ChatID:  payload.ChatID,
		Photo:   payload.Photo,
		Text:    payload.Text,
		Caption: payload.Caption,
	}
	if kb := payload.ReplyMarkup.InlineKeyboard; len(kb) > 0 && len(kb[0]) > 0 {
		call.Button = kb[0][0].URL
	}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	fmt.Fprint(w, `{"ok":true,"result":{}}`)
}

func (r *telegramRecorder) to(chat string) []telegramCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telegramCall
	for _, c := range r.calls {
		if c.ChatID == chat {
			out = append(out, c)
		}
	}
	return out
}

func testConfig(dataDir, offersURL, telegramURL string) *config.Config {
	return &config.Config{
		Environment:    "test",
		DataDir:        dataDir,
		StoreBackend:   config.StoreBackendFile,
		MinDiscount:    0.30,
		TopN:           5,
		Pages:          2,
		ActiveStart:    0,
		ActiveEnd:      24,
		MinTicket:      100,
		TitleCacheSize: 500,
		OffersURL:      offersURL,
		MinPrice:       300,
		MaxPrice:       20000,
		SourceBlock:    time.Minute,
		Validator: config.ValidatorConfig{
			HistoryTolerance:     0.05,
			PriceBeforeTolerance: 0.10,
			HardRejectPct:        80,
			SuspiciousPct:        60,
			MinGenuinePct:        20,
			TrustedReviews:       500,
			TrustedRating:        4.5,
			MinSuspiciousReviews: 100,
		},
		AffiliateEnabled:       false,
		AffiliatePrefix:        affiliate.DefaultPrefix,
		SessionPath:            filepath.Join(dataDir, "ml_session.json"),
		TelegramToken:          "123:abc",
		TelegramChatID:         "@ofertas",
		TelegramPersonalChatID: "42",
		TelegramAPIURL:         telegramURL,
		AuditDBEnabled:         true,
	}
}

func TestEndToEndCycle(t *testing.T) {
	pageDelay = 0

	listing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Query().Get("page") != "" {
			fmt.Fprint(w, "<html><body></body></html>")
			return
		}
		fmt.Fprint(w, listingHTML)
	}))
	defer listing.Close()

	tg := &telegramRecorder{}
	tgServer := httptest.NewServer(tg)
	defer tgServer.Close()

	dataDir := t.TempDir()
	cfg := testConfig(dataDir, listing.URL+"/ofertas", tgServer.URL)
	require.NoError(t, cfg.Validate())
	ctx := context.Background()

	// first cycle publishes the audio deal and blocks the mattress
	s, err := initializeServices(ctx, cfg)
	require.NoError(t, err)
	summary, err := worker.NewWorker(s.Orchestrator(), 0).RunOnce(ctx)
	require.NoError(t, err)
	s.Cleanup()

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Published)

	posts := tg.to("@ofertas")
	require.Len(t, posts, 1)
	assert.Equal(t, "sendPhoto", posts[0].Method)
	assert.Equal(t, "https://http2.mlstatic.com/D_1.webp", posts[0].Photo)
	assert.Equal(t, "https://articulo.mercadolibre.com.mx/MLM-123-audifonos", posts[0].Button)
	assert.Contains(t, posts[0].Caption, "$1,199 MXN")

	alerts := tg.to("42")
	require.Len(t, alerts, 1)
	assert.Contains(t, alerts[0].Text, "Bot ejecutado exitosamente")
	assert.Contains(t, alerts[0].Text, "Publicadas: 1 ofertas")

	published, err := os.ReadFile(filepath.Join(dataDir, "ofertas_publicadas.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(published), "MLM123")
	blocked, err := os.ReadFile(filepath.Join(dataDir, "bloqueos.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(blocked), "colchon")

	db, err := openAuditDB(cfg)
	require.NoError(t, err)
	st, err := db.TodayStats(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
	assert.Equal(t, 1, st.Plain)
	require.NoError(t, db.Close())

	// a restarted bot remembers what it already posted
	s, err = initializeServices(ctx, cfg)
	require.NoError(t, err)
	defer s.Cleanup()
	summary, err = worker.NewWorker(s.Orchestrator(), 0).RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Published)
	assert.Len(t, tg.to("@ofertas"), 1)
	alerts = tg.to("42")
	require.Len(t, alerts, 3)
	assert.Contains(t, alerts[1].Text, "Sin ofertas")
}

func TestReadURLsAndWriteLinks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("# productos\nhttps://a.mx/MLM-1\n\n  https://a.mx/MLM-2  \n"), 0o644))

	urls, err := readURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.mx/MLM-1", "https://a.mx/MLM-2"}, urls)

	var sb strings.Builder
	require.NoError(t, writeLinksCSV(&sb, []affiliate.BatchResult{
		{URL: urls[0], Link: "https://mercadolibre.com/sec/1x", Affiliate: true},
		{URL: urls[1], Link: urls[1]},
	}))
	assert.Equal(t, "url,link,affiliate\n"+
		"https://a.mx/MLM-1,https://mercadolibre.com/sec/1x,true\n"+
		"https://a.mx/MLM-2,https://a.mx/MLM-2,false\n", sb.String())
}

func TestPurgeRequiresKeyOrAll(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetArgs([]string{"purge"})
	cmd.SetOut(&strings.Builder{})
	cmd.SetErr(&strings.Builder{})
	err := cmd.ExecuteContext(context.Background())
	assert.Error(t, err)
}
