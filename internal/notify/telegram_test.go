package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"orderscout/internal/extract"
)

type capturedRequest struct {
	Path string
	Body sendMessageReq
}

// botServer fakes the Telegram API and records every sendMessage call.
type botServer struct {
	mu       sync.Mutex
	requests []capturedRequest
	fail     bool
	srv      *httptest.Server
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	b := &botServer{}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		b.mu.Lock()
		b.requests = append(b.requests, capturedRequest{Path: r.URL.Path, Body: req})
		fail := b.fail
		b.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(apiResponse{OK: false, Description: "chat not found"})
			return
		}
		json.NewEncoder(w).Encode(apiResponse{OK: true})
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *botServer) last(t *testing.T) capturedRequest {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		t.Fatal("no request captured")
	}
	return b.requests[len(b.requests)-1]
}

func TestDeliverStatus(t *testing.T) {
	bot := newBotServer(t)
	sink := NewTelegram("token123", bot.srv.URL, "")

	err := sink.DeliverStatus(context.Background(), "4242", "Подписка неактивна.")
	if err != nil {
		t.Fatalf("DeliverStatus: %v", err)
	}

	req := bot.last(t)
	if req.Path != "/bottoken123/sendMessage" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Body.ChatID != "4242" || req.Body.Text != "Подписка неактивна." {
		t.Errorf("payload = %+v", req.Body)
	}
	if req.Body.Markup != nil {
		t.Error("status message carried a keyboard")
	}
}

func TestDeliverOrderFormatsCard(t *testing.T) {
	bot := newBotServer(t)
	sink := NewTelegram("token123", bot.srv.URL, "https://m.example.com/order/")

	order := extract.Order{
		ID:          "order-55",
		Title:       "Нужен юрист <срочно>",
		Price:       "5000",
		Description: "Проверить договор аренды.",
		CreatedText: "только что",
	}
	if err := sink.DeliverOrder(context.Background(), "4242", order); err != nil {
		t.Fatalf("DeliverOrder: %v", err)
	}

	body := bot.last(t).Body
	if !strings.Contains(body.Text, "&lt;срочно&gt;") {
		t.Errorf("title not HTML-escaped: %q", body.Text)
	}
	if !strings.Contains(body.Text, "5000") || !strings.Contains(body.Text, "только что") {
		t.Errorf("card missing fields: %q", body.Text)
	}
	if body.Markup == nil || len(body.Markup.InlineKeyboard) != 1 {
		t.Fatal("order card missing the open-order button")
	}
	if got := body.Markup.InlineKeyboard[0][0].URL; got != "https://m.example.com/order/order-55" {
		t.Errorf("button url = %s", got)
	}
}

func TestDeliverOrderSyntheticIDGetsNoButton(t *testing.T) {
	bot := newBotServer(t)
	sink := NewTelegram("token123", bot.srv.URL, "https://m.example.com/order/")

	order := extract.Order{ID: "card_deadbeef", Title: "Нужен юрист"}
	if err := sink.DeliverOrder(context.Background(), "4242", order); err != nil {
		t.Fatalf("DeliverOrder: %v", err)
	}
	if bot.last(t).Body.Markup != nil {
		t.Error("synthetic id produced a button to a non-existent page")
	}
}

func TestDeliverOrderTruncatesDescription(t *testing.T) {
	bot := newBotServer(t)
	sink := NewTelegram("token123", bot.srv.URL, "")

	order := extract.Order{
		ID:          "order-1",
		Title:       "Нужен юрист",
		Description: strings.Repeat("длинное описание ", 50),
	}
	if err := sink.DeliverOrder(context.Background(), "4242", order); err != nil {
		t.Fatalf("DeliverOrder: %v", err)
	}
	body := bot.last(t).Body
	if !strings.Contains(body.Text, "…") {
		t.Error("long description not truncated with ellipsis")
	}
}

func TestSendErrorSurfacesDescription(t *testing.T) {
	bot := newBotServer(t)
	bot.fail = true
	sink := NewTelegram("token123", bot.srv.URL, "")

	err := sink.DeliverStatus(context.Background(), "4242", "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("err = %v, want api description surfaced", err)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"короткое", 300, "короткое"},
		{"  с пробелами  ", 300, "с пробелами"},
		{"абвгд", 3, "абв…"},
		{"", 10, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
