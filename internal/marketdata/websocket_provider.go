package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// tickMessage is one push update from a streaming quote venue.
type tickMessage struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// WebSocketProvider maintains a live spot-price cache fed by a streaming
// venue, for providers where polling FetchSpotPrice would lag a fast
// market. It does not serve bars: FetchBars always errs, which makes
// fetchWithFallback move on to the next provider in the chain — spec
// §4.1 needs a bar history provider regardless, since the system is
// poll-based for detection (spec: "operates on periodic polling");
// this provider only sharpens the spot price used for outcome sampling.
// Grounded on the teacher's internal/data/market_data.go
// MarketDataService (binanceWS *websocket.Conn, priceCache map+RWMutex,
// reconnect-on-drop reader loop).
type WebSocketProvider struct {
	name   string
	url    string
	logger *zap.Logger

	mu     sync.RWMutex
	prices map[string]float64

	conn   *websocket.Conn
	connMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWebSocketProvider creates a provider and immediately starts its
// background reader. Call Close to stop it.
func NewWebSocketProvider(name, streamURL string, logger *zap.Logger) *WebSocketProvider {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WebSocketProvider{
		name:   name,
		url:    streamURL,
		logger: logger,
		prices: make(map[string]float64),
		ctx:    ctx,
		cancel: cancel,
	}
	go p.run()
	return p
}

func (p *WebSocketProvider) Name() string { return p.name }

// FetchBars is unsupported; a streaming quote venue has no bar history
// to replay, so this always defers to the next provider in the chain.
func (p *WebSocketProvider) FetchBars(_ context.Context, _ string, _ int) ([]types.Bar, error) {
	return nil, fmt.Errorf("marketdata: %s does not provide bar history", p.name)
}

// FetchSpotPrice returns the latest pushed price for symbol, if any has
// arrived since the connection was established.
func (p *WebSocketProvider) FetchSpotPrice(_ context.Context, symbol string) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("marketdata: %s has no live price for %s yet", p.name, symbol)
	}
	return price, nil
}

// Close stops the reader loop and closes the connection.
func (p *WebSocketProvider) Close() {
	p.cancel()
	p.connMu.Lock()
	if p.conn != nil {
		p.conn.Close()
	}
	p.connMu.Unlock()
}

func (p *WebSocketProvider) run() {
	backoff := time.Second
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if err := p.connectAndRead(); err != nil && p.logger != nil {
			p.logger.Warn("websocket provider disconnected, retrying",
				zap.String("provider", p.name), zap.Error(err), zap.Duration("backoff", backoff))
		}

		select {
		case <-p.ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (p *WebSocketProvider) connectAndRead() error {
	u, err := url.Parse(p.url)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(p.ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	p.connMu.Lock()
	p.conn = conn
	p.connMu.Unlock()
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var tick tickMessage
		if err := json.Unmarshal(raw, &tick); err != nil {
			continue
		}
		p.mu.Lock()
		p.prices[tick.Symbol] = tick.Price
		p.mu.Unlock()
	}
}
