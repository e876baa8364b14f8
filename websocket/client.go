package websocket

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client represents a WebSocket client for the exchange combined stream
type Client struct {
	url        string
	conn       *websocket.Conn
	header     http.Header
	writeMu    sync.Mutex
	pingCancel context.CancelFunc // Cancel function for ping goroutine
}

// NewClient creates a new WebSocket client
func NewClient(url string) *Client {
	header := make(http.Header)
	header.Set("User-Agent", "crypto-signal-engine")

	return &Client{
		url:    url,
		header: header,
	}
}

// StreamURL builds the combined stream URL for every symbol and timeframe pair,
// e.g. wss://host/stream?streams=btcusdt@kline_1h/ethusdt@kline_1h
func StreamURL(base string, symbols, timeframes []string) (string, error) {
	if len(symbols) == 0 || len(timeframes) == 0 {
		return "", fmt.Errorf("at least one symbol and timeframe are required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid stream url %q: %w", base, err)
	}

	streams := make([]string, 0, len(symbols)*len(timeframes))
	for _, symbol := range symbols {
		for _, tf := range timeframes {
			streams = append(streams, fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), tf))
		}
	}

	// Stream names contain '@' and '/', which the exchange expects unescaped
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

// Connect establishes WebSocket connection
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, c.header)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	// Answer server pings so the exchange keeps the stream open
	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	c.conn = conn
	log.Printf("✅ Connected to %s", c.url)
	return nil
}

// StartPing starts periodic ping to keep connection alive
func (c *Client) StartPing(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.pingCancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.writeControl(websocket.PingMessage); err != nil {
					log.Println("Failed to send ping:", err)
					return
				}
			}
		}
	}()
}

func (c *Client) writeControl(messageType int) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return c.conn.WriteControl(messageType, nil, time.Now().Add(writeWait))
}

// WriteTextMessage sends a text message to the WebSocket connection thread-safely
func (c *Client) WriteTextMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// ReadMessage reads one raw frame from the WebSocket
func (c *Client) ReadMessage() ([]byte, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("connection is nil")
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the WebSocket connection
func (c *Client) Close() error {
	if c.pingCancel != nil {
		c.pingCancel()
	}

	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
