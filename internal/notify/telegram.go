// Package notify delivers found orders and status texts to Telegram
// chats. The identity string is the chat id.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"orderscout/internal/extract"
	"orderscout/internal/logging"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxDescription = 300
)

// Telegram implements ports.NotificationSink over the Bot API.
type Telegram struct {
	client *resty.Client
	token  string
	// OrderURL is the listing-page prefix an order id is appended to
	// for the inline button. Empty disables the button.
	orderURL string
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageReq struct {
	ChatID    string       `json:"chat_id"`
	Text      string       `json:"text"`
	ParseMode string       `json:"parse_mode"`
	Markup    *replyMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegram builds the sink. baseURL is overridable for tests, empty
// means the public API.
func NewTelegram(token, baseURL, orderURL string) *Telegram {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(2).
		SetHeader("Content-Type", "application/json")
	return &Telegram{client: client, token: token, orderURL: orderURL}
}

// DeliverOrder sends one order card.
func (t *Telegram) DeliverOrder(ctx context.Context, identity string, order extract.Order) error {
	req := sendMessageReq{
		ChatID:    identity,
		Text:      t.formatOrder(order),
		ParseMode: "HTML",
	}
	if t.orderURL != "" && order.ID != "" && !strings.HasPrefix(order.ID, "card_") {
		req.Markup = &replyMarkup{InlineKeyboard: [][]inlineButton{{
			{Text: "Открыть заказ", URL: t.orderURL + order.ID},
		}}}
	}
	return t.send(ctx, req)
}

// DeliverStatus sends a plain status line.
func (t *Telegram) DeliverStatus(ctx context.Context, identity, status string) error {
	return t.send(ctx, sendMessageReq{ChatID: identity, Text: status})
}

func (t *Telegram) send(ctx context.Context, req sendMessageReq) error {
	var reply apiResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&reply).
		SetError(&reply).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("telegram send: http %d: %s", resp.StatusCode(), reply.Description)
	}
	logging.Notify("delivered message to chat %s", req.ChatID)
	return nil
}

func (t *Telegram) formatOrder(order extract.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(order.Title))
	if order.Price != "" && order.Price != "0" {
		fmt.Fprintf(&b, "💰 %s ₽\n", html.EscapeString(order.Price))
	}
	if order.CreatedText != "" {
		fmt.Fprintf(&b, "🕐 %s\n", html.EscapeString(order.CreatedText))
	}
	if desc := truncate(order.Description, maxDescription); desc != "" {
		fmt.Fprintf(&b, "\n%s", html.EscapeString(desc))
	}
	return b.String()
}

// truncate cuts s to at most max runes, appending an ellipsis when
// anything was dropped.
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
