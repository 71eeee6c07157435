package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTickServer(t *testing.T, ticks []tickMessage) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, tick := range ticks {
			payload, _ := json.Marshal(tick)
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		// keep the connection open briefly so the reader has time to drain it.
		time.Sleep(200 * time.Millisecond)
	}))
	return server
}

func TestWebSocketProviderCachesPushedPrices(t *testing.T) {
	server := newTickServer(t, []tickMessage{{Symbol: "AAPL", Price: 123.45}})
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	provider := NewWebSocketProvider("stream", wsURL, nil)
	defer provider.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if price, err := provider.FetchSpotPrice(context.Background(), "AAPL"); err == nil {
			if price != 123.45 {
				t.Fatalf("price = %v, want 123.45", price)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("price never arrived from the stream")
}

func TestWebSocketProviderFetchBarsUnsupported(t *testing.T) {
	provider := NewWebSocketProvider("stream", "ws://127.0.0.1:0", nil)
	defer provider.Close()

	if _, err := provider.FetchBars(context.Background(), "AAPL", 10); err == nil {
		t.Fatal("expected FetchBars to be unsupported")
	}
}

func TestWebSocketProviderFetchSpotPriceErrorsBeforeAnyTick(t *testing.T) {
	provider := NewWebSocketProvider("stream", "ws://127.0.0.1:0", nil)
	defer provider.Close()

	if _, err := provider.FetchSpotPrice(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected an error before any tick has arrived")
	}
}
