package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"sjsage522/promobot/logger"
	"sjsage522/promobot/pkg/errors"
)

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type messagePayload struct {
	ChatID                string       `json:"chat_id"`
	Text                  string       `json:"text,omitempty"`
	Photo                 string       `json:"photo,omitempty"`
	Caption               string       `json:"caption,omitempty"`
	ParseMode             string       `json:"parse_mode"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *replyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// TelegramPublisher posts HTML messages to one chat
type TelegramPublisher struct {
	client *http.Client
	apiURL string
	token  string
	chatID string
	log    *logger.Logger
}

// NewTelegramPublisher creates a publisher for chatID. client may be nil.
func NewTelegramPublisher(apiURL, token, chatID string, client *http.Client) *TelegramPublisher {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &TelegramPublisher{
		client: client,
		apiURL: strings.TrimRight(apiURL, "/"),
		token:  token,
		chatID: chatID,
		log:    logger.ForPublisher().WithStr("chat", chatID),
	}
}

// PublishText sends a text message with an optional button
func (t *TelegramPublisher) PublishText(ctx context.Context, text, buttonURL string) error {
	return t.call(ctx, "sendMessage", messagePayload{
		ChatID:      t.chatID,
		Text:        text,
		ParseMode:   "HTML",
		ReplyMarkup: button(buttonURL),
	})
}

// PublishPhoto sends a photo with an HTML caption and an optional button
func (t *TelegramPublisher) PublishPhoto(ctx context.Context, imageURL, caption, buttonURL string) error {
	return t.call(ctx, "sendPhoto", messagePayload{
		ChatID:      t.chatID,
		Photo:       imageURL,
		Caption:     caption,
		ParseMode:   "HTML",
		ReplyMarkup: button(buttonURL),
	})
}

func button(url string) *replyMarkup {
	if url == "" {
		return nil
	}
	return &replyMarkup{InlineKeyboard: [][]inlineButton{{{Text: ButtonText, URL: url}}}}
}

func (t *TelegramPublisher) call(ctx context.Context, method string, payload messagePayload) error {
	if t.token == "" || t.chatID == "" {
		return errors.NewConfiguration("telegram token or chat id missing", nil)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.NewPublisher("telegram", "encode payload", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.apiURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.NewPublisher("telegram", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL carries the token
		return errors.NewNetwork("telegram", method+" request failed", stripToken(err, t.token))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var apiResp apiResponse
	_ = json.Unmarshal(raw, &apiResp)
	desc := apiResp.Description
	if desc == "" {
		desc = strings.TrimSpace(string(raw))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return errors.NewRateLimit("telegram", time.Duration(apiResp.Parameters.RetryAfter)*time.Second)
	}
	return errors.NewPublisher("telegram", fmt.Sprintf("%s HTTP %d: %s", method, resp.StatusCode, desc), nil)
}

func stripToken(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "<token>"))
}

// TelegramNotifier sends operator alerts to a personal chat. Without
// credentials alerts are only logged.
type TelegramNotifier struct {
	pub *TelegramPublisher
	now func() time.Time
}

// NewTelegramNotifier creates a notifier for the personal chat
func NewTelegramNotifier(apiURL, token, personalChatID string, client *http.Client) *TelegramNotifier {
	n := &TelegramNotifier{now: time.Now}
	if token != "" && personalChatID != "" {
		n.pub = NewTelegramPublisher(apiURL, token, personalChatID, client)
	}
	return n
}

// FormatAlert renders an alert message
func FormatAlert(level Level, title, message string, at time.Time) string {
	return fmt.Sprintf("%s %s | %s\n\n<b>%s</b>\n\n%s",
		level.Emoji(), level, at.Format("15:04:05"),
		html.EscapeString(title), html.EscapeString(message))
}

// Notify sends an alert
func (n *TelegramNotifier) Notify(ctx context.Context, level Level, title, message string) error {
	log := logger.ForPublisher().WithStr("level", string(level))
	if n.pub == nil {
		log.Info().Str("title", title).Msg(message)
		return nil
	}
	if err := n.pub.PublishText(ctx, FormatAlert(level, title, message, n.now()), ""); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Alert not delivered")
		return err
	}
	return nil
}
