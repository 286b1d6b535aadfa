package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"AlphaPull/internal/domain/models"
)

// DefaultStreamURL is the Binance combined-stream WebSocket endpoint.
const DefaultStreamURL = "wss://stream.binance.com:9443/stream"

// Stream implements ObservationStream over Binance trade WebSockets.
// Incoming trades are bucketed into minute OHLCV candles; a candle is
// emitted once the next minute's first trade arrives, so emitted
// observations are closed and immutable.
type Stream struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration

	conn      *websocket.Conn
	connected bool
	buckets   map[string]*candleBucket
}

type candleBucket struct {
	minute time.Time
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

// NewStream creates a live observation stream for the given symbols.
func NewStream(url string, symbols []string, reconnectDelay, pingInterval time.Duration) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 15 * time.Second
	}
	return &Stream{
		url:            url,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		buckets:        make(map[string]*candleBucket),
	}
}

// Connect dials the combined stream for all configured symbols.
func (s *Stream) Connect(ctx context.Context) error {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	u := fmt.Sprintf("%s?streams=%s", s.url, strings.Join(streams, "/"))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	s.conn = conn
	s.connected = true
	return nil
}

type streamEnvelope struct {
	Stream string      `json:"stream"`
	Data   streamTrade `json:"data"`
}

type streamTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"` // ms
}

// Read emits closed minute candles and errors.
func (s *Stream) Read(ctx context.Context) (<-chan models.Observation, <-chan error) {
	out := make(chan models.Observation, 256)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.conn != nil {
					_ = s.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if s.conn == nil {
				errs <- fmt.Errorf("binance stream not connected")
				return
			}
			_, b, err := s.conn.ReadMessage()
			if err != nil {
				errs <- fmt.Errorf("binance stream read: %w", err)
				if err := s.reconnect(ctx); err != nil {
					return
				}
				continue
			}
			var env streamEnvelope
			if err := json.Unmarshal(b, &env); err != nil {
				continue // non-trade frame
			}
			if obs, ok := s.ingestTrade(env.Data); ok {
				select {
				case out <- obs:
				default:
					// drop on backpressure
				}
			}
		}
	}()

	return out, errs
}

// ingestTrade folds one trade into its minute bucket. When the trade
// opens a new minute, the previous bucket is returned as a closed
// observation.
func (s *Stream) ingestTrade(t streamTrade) (models.Observation, bool) {
	px, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return models.Observation{}, false
	}
	qty, _ := strconv.ParseFloat(t.Quantity, 64)
	minute := time.UnixMilli(t.TradeTime).UTC().Truncate(time.Minute)

	b := s.buckets[t.Symbol]
	if b == nil {
		s.buckets[t.Symbol] = &candleBucket{minute: minute, open: px, high: px, low: px, close: px, volume: qty}
		return models.Observation{}, false
	}
	if minute.Equal(b.minute) {
		if px > b.high {
			b.high = px
		}
		if px < b.low {
			b.low = px
		}
		b.close = px
		b.volume += qty
		return models.Observation{}, false
	}

	closed := models.Observation{
		Symbol:    t.Symbol,
		Timestamp: b.minute,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
		Source:    "binance-ws",
	}
	s.buckets[t.Symbol] = &candleBucket{minute: minute, open: px, high: px, low: px, close: px, volume: qty}
	return closed, true
}

// reconnect closes and redials after the configured delay.
func (s *Stream) reconnect(ctx context.Context) error {
	_ = s.Close()
	t := time.NewTimer(s.reconnectDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	return s.Connect(ctx)
}

// Close closes the WebSocket connection.
func (s *Stream) Close() error {
	s.connected = false
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (s *Stream) IsConnected() bool { return s.connected }
