package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GoPolymarket/burngate/internal/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	DefaultWSURL    = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	ReconnBaseDelay = 1 * time.Second
	ReconnMaxDelay  = 30 * time.Second
	PingPeriod      = 15 * time.Second // Keep-alive interval
)

// MarketService keeps live order books for the subscribed tokens over the
// market websocket. The buyback venue and the feed oracle read from it.
type MarketService struct {
	url         string
	conn        *websocket.Conn
	mu          sync.RWMutex
	writeMu     sync.Mutex
	books       map[string]*Orderbook
	subs        []string // TokenIDs we want to subscribe to
	ctx         context.Context
	cancel      context.CancelFunc
	isConnected bool
	log         *slog.Logger
}

func NewMarketService(url string) *MarketService {
	if url == "" {
		url = DefaultWSURL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MarketService{
		url:    url,
		books:  make(map[string]*Orderbook),
		subs:   make([]string, 0),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.Component("market"),
	}
}

// Start launches the connection loop in a background goroutine
func (s *MarketService) Start() {
	go s.runLoop()
}

func (s *MarketService) Stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

// Subscribe adds tokenIDs to the subscription list and updates the connection if active
func (s *MarketService) Subscribe(tokenIDs []string) {
	s.mu.Lock()
	var added []string
	for _, id := range tokenIDs {
		if _, ok := s.books[id]; ok {
			continue
		}
		s.subs = append(s.subs, id)
		s.books[id] = NewOrderbook(id)
		added = append(added, id)
	}
	connected := s.isConnected
	s.mu.Unlock()

	if len(added) > 0 && connected {
		if err := s.sendSubscribe(added); err != nil {
			s.log.Error("subscribe failed", "error", err)
		}
	}
}

func (s *MarketService) GetBook(tokenID string) *Orderbook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[tokenID]
}

func (s *MarketService) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected
}

func (s *MarketService) runLoop() {
	delay := ReconnBaseDelay

	for {
		if s.ctx.Err() != nil {
			return
		}

		conn, err := s.connect()
		if err != nil {
			s.log.Error("connection failed", "error", err, "retry_in", delay)
			select {
			case <-s.ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > ReconnMaxDelay {
				delay = ReconnMaxDelay
			}
			continue
		}

		delay = ReconnBaseDelay
		s.mu.Lock()
		s.conn = conn
		s.isConnected = true
		allSubs := append([]string(nil), s.subs...)
		s.mu.Unlock()

		if len(allSubs) > 0 {
			if err := s.sendSubscribe(allSubs); err != nil {
				s.log.Error("failed to resubscribe", "error", err)
				s.disconnect(conn)
				continue
			}
		}

		s.readLoop(conn)
		s.disconnect(conn)
	}
}

func (s *MarketService) disconnect(conn *websocket.Conn) {
	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
		s.isConnected = false
	}
	s.mu.Unlock()
}

func (s *MarketService) connect() (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return nil, err
	}

	// Zombie check: no data or pong within PingPeriod + buffer means the link is dead.
	readTimeout := PingPeriod + 10*time.Second
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go s.pinger(conn)
	return conn, nil
}

func (s *MarketService) pinger(conn *websocket.Conn) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

type WSMessage struct {
	EventType string          `json:"event_type"` // "book" or "price_change"
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []PriceLevelRaw `json:"bids"`
	Asks      []PriceLevelRaw `json:"asks"`
	Hash      string          `json:"hash"` // If present, it's a snapshot
}

type PriceLevelRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

func (m WSMessage) tokenID() string {
	if m.AssetID != "" {
		return m.AssetID
	}
	return m.Market
}

func (s *MarketService) readLoop(conn *websocket.Conn) {
	readTimeout := PingPeriod + 10*time.Second

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.log.Error("read error", "error", err)
			}
			return
		}
		s.handleMessage(message)
	}
}

func (s *MarketService) handleMessage(message []byte) {
	var msgs []WSMessage
	// 服务端通常推送数组，偶尔是单个对象
	if err := json.Unmarshal(message, &msgs); err != nil {
		var single WSMessage
		if err2 := json.Unmarshal(message, &single); err2 != nil {
			return
		}
		msgs = []WSMessage{single}
	}
	for _, m := range msgs {
		if m.EventType == "book" && m.tokenID() != "" {
			s.processBookMessage(m)
		}
	}
}

func (s *MarketService) processBookMessage(msg WSMessage) {
	book := s.GetBook(msg.tokenID())
	if book == nil {
		return
	}

	bids, err := parseLevels(msg.Bids)
	if err != nil {
		s.log.Warn("dropping malformed book message", "token_id", msg.tokenID(), "error", err)
		return
	}
	asks, err := parseLevels(msg.Asks)
	if err != nil {
		s.log.Warn("dropping malformed book message", "token_id", msg.tokenID(), "error", err)
		return
	}
	if msg.Hash != "" {
		book.Snapshot(bids, asks)
		return
	}
	for _, b := range bids {
		book.apply(SideBuy, b)
	}
	for _, a := range asks {
		book.apply(SideSell, a)
	}
}

func (s *MarketService) sendSubscribe(tokenIDs []string) error {
	msg := map[string]interface{}{
		"type":         "subscribe",
		"assets_ids":   tokenIDs,
		"channel_name": "book",
	}

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(msg)
}
