package realtime

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/sirupsen/logrus"
)

const (
	defaultUpstreamURL    = "wss://advanced-trade-ws.coinbase.com"
	defaultReconnectDelay = 1500 * time.Millisecond
	defaultPingInterval   = 25 * time.Second
)

var DefaultAllowlist = []string{"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE", "MATIC", "LTC", "DOT", "LINK", "AVAX", "ARB", "OP", "APT", "ATOM", "BCH"}

// Upstream is the subset of *websocket.Conn the feed relies on.
type Upstream interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Upstream, error)

// TickSink receives ticks and reports live subscriber counts.
type TickSink interface {
	Deliver(symbol string, frame []byte)
	SubscriberCount(symbol string) int
}

type FeedConfig struct {
	URL            string
	Allowlist      []string
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

type feedEntry struct {
	count  int
	ctx    context.Context
	cancel context.CancelFunc
}

// FeedManager keeps one ticker connection per subscribed symbol.
type FeedManager struct {
	mu      sync.Mutex
	entries map[string]*feedEntry
	allow   map[string]bool
	cfg     FeedConfig
	dial    DialFunc
	sink    TickSink
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func DialWebsocket(ctx context.Context, url string) (Upstream, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func NewFeedManager(cfg FeedConfig, sink TickSink, dial DialFunc) *FeedManager {
	if cfg.URL == "" {
		cfg.URL = defaultUpstreamURL
	}
	if len(cfg.Allowlist) == 0 {
		cfg.Allowlist = DefaultAllowlist
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if dial == nil {
		dial = DialWebsocket
	}

	allow := map[string]bool{}
	for _, s := range cfg.Allowlist {
		allow[strings.ToUpper(s)] = true
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FeedManager{
		entries: map[string]*feedEntry{},
		allow:   allow,
		cfg:     cfg,
		dial:    dial,
		sink:    sink,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Acquire and Release take the reference count from the sink, which has
// already recorded the (un)subscription, so the count follows the live
// subscribers even across a pending reconnect.
func (m *FeedManager) Acquire(symbol string) {
	if !m.allow[symbol] {
		logrus.WithField("symbol", symbol).Debug("skip upstream, symbol not in allowlist")
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	live := m.sink.SubscriberCount(symbol)
	if entry, ok := m.entries[symbol]; ok {
		m.syncLocked(entry, symbol, live)
		return
	}
	if live > 0 {
		m.startLocked(symbol, live)
	}
}

func (m *FeedManager) Release(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[symbol]
	if !ok {
		return
	}
	m.syncLocked(entry, symbol, m.sink.SubscriberCount(symbol))
}

func (m *FeedManager) syncLocked(entry *feedEntry, symbol string, live int) {
	entry.count = live
	if entry.count <= 0 {
		delete(m.entries, symbol)
		entry.cancel()
	}
}

// Count is the reference count of symbol, zero when no connection is held.
func (m *FeedManager) Count(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[symbol]; ok {
		return entry.count
	}
	return 0
}

func (m *FeedManager) startLocked(symbol string, count int) {
	ctx, cancel := context.WithCancel(m.ctx)
	entry := &feedEntry{count: count, ctx: ctx, cancel: cancel}
	m.entries[symbol] = entry

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(entry, symbol)
	}()
}

func (m *FeedManager) run(entry *feedEntry, symbol string) {
	logger := logrus.WithField("symbol", symbol)

	conn, err := m.dial(entry.ctx, m.cfg.URL)
	if err != nil {
		if entry.ctx.Err() == nil {
			logger.Warnf("upstream dial failed: %v", err)
			m.dropped(entry, symbol)
		}
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-entry.ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	sub, _ := json.Marshal(map[string]any{
		"type":        "subscribe",
		"channel":     "ticker",
		"product_ids": []string{symbol + "-USD"},
	})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		if entry.ctx.Err() == nil {
			logger.Warnf("upstream subscribe failed: %v", err)
			m.dropped(entry, symbol)
		}
		return
	}
	logger.Info("upstream open")

	go m.ping(entry.ctx, stop, conn, logger)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if entry.ctx.Err() != nil {
				return
			}
			logger.Warnf("upstream closed: %v", err)
			m.dropped(entry, symbol)
			return
		}
		m.handleMessage(symbol, data)
	}
}

func (m *FeedManager) ping(ctx context.Context, stop <-chan struct{}, conn Upstream, logger *logrus.Entry) {
	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Warnf("upstream ping failed: %v", err)
				return
			}
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}
}

type tickerMessage struct {
	Channel string `json:"channel"`
	Events  []struct {
		Tickers []map[string]any `json:"tickers"`
	} `json:"events"`
}

var priceFields = []string{"price", "mark_price", "best_ask", "best_bid", "last_price"}

func (m *FeedManager) handleMessage(symbol string, data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Channel != "ticker" {
		return
	}
	for _, ev := range msg.Events {
		for _, t := range ev.Tickers {
			var price *float64
			for _, field := range priceFields {
				if price = util.Float(t[field]); price != nil {
					break
				}
			}
			if price == nil {
				continue
			}
			frame, err := json.Marshal(Tick{Type: "tick", Symbol: symbol, Price: *price, T: m.now().UnixMilli()})
			if err != nil {
				continue
			}
			m.sink.Deliver(symbol, frame)
		}
	}
}

// dropped discards a failed entry and schedules a reconnect while subscribers remain.
func (m *FeedManager) dropped(entry *feedEntry, symbol string) {
	m.mu.Lock()
	if m.entries[symbol] == entry {
		delete(m.entries, symbol)
	}
	entry.cancel()
	m.mu.Unlock()

	if m.ctx.Err() != nil || m.sink.SubscriberCount(symbol) == 0 {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case <-time.After(m.cfg.ReconnectDelay):
		case <-m.ctx.Done():
			return
		}
		m.reconnect(symbol)
	}()
}

func (m *FeedManager) reconnect(symbol string) {
	live := m.sink.SubscriberCount(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil || live == 0 {
		return
	}
	if _, ok := m.entries[symbol]; ok {
		return
	}
	logrus.WithFields(logrus.Fields{"symbol": symbol, "subscribers": live}).Info("upstream reconnecting")
	m.startLocked(symbol, live)
}

// Close stops every upstream connection and waits for them to exit.
func (m *FeedManager) Close() {
	m.mu.Lock()
	m.cancel()
	m.entries = map[string]*feedEntry{}
	m.mu.Unlock()
	m.wg.Wait()
}
