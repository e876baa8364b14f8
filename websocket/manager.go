package websocket

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"crypto-signal-engine/metrics"
)

const (
	pingInterval   = 25 * time.Second
	healthInterval = 60 * time.Second
	staleAfter     = 5 * time.Minute
)

// ConnectionManager handles WebSocket connection lifecycle, health monitoring, and reconnection.
type ConnectionManager struct {
	wsURL   string
	metrics *metrics.Metrics

	mu          sync.Mutex
	client      *Client
	lastMsgTime time.Time
}

// NewConnectionManager creates a new ConnectionManager for a combined stream URL.
func NewConnectionManager(wsURL string, m *metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		wsURL:       wsURL,
		metrics:     m,
		lastMsgTime: time.Now(),
	}
}

// Connect establishes the initial WebSocket connection.
func (cm *ConnectionManager) Connect() error {
	fmt.Println("🔌 Connecting to market data WebSocket...")
	client := NewClient(cm.wsURL)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("market data WebSocket connection failed: %w", err)
	}

	cm.mu.Lock()
	cm.client = client
	cm.lastMsgTime = time.Now()
	cm.mu.Unlock()

	fmt.Println("✅ Market data WebSocket connected!")
	return nil
}

// StartPing starts the keep-alive pinger.
func (cm *ConnectionManager) StartPing(interval time.Duration) {
	if client := cm.current(); client != nil {
		client.StartPing(interval)
	}
}

func (cm *ConnectionManager) current() *Client {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.client
}

// ReadMessage reads a raw frame from the WebSocket.
func (cm *ConnectionManager) ReadMessage() ([]byte, error) {
	client := cm.current()
	if client == nil {
		return nil, fmt.Errorf("client not connected")
	}
	msg, err := client.ReadMessage()
	if err == nil {
		cm.mu.Lock()
		cm.lastMsgTime = time.Now()
		cm.mu.Unlock()
	}
	return msg, err
}

// LastMessage returns when the last frame was received
func (cm *ConnectionManager) LastMessage() time.Time {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastMsgTime
}

// Close closes the connection.
func (cm *ConnectionManager) Close() error {
	if client := cm.current(); client != nil {
		return client.Close()
	}
	return nil
}

// Reconnect closes the current connection and dials again.
func (cm *ConnectionManager) Reconnect() error {
	_ = cm.Close()
	cm.metrics.ObserveFeedReconnect()

	if err := cm.Connect(); err != nil {
		return err
	}

	cm.StartPing(pingInterval)
	log.Println("✅ Reconnection successful")
	return nil
}

// RunHealthMonitor starts a background loop to check connection health.
func (cm *ConnectionManager) RunHealthMonitor(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	log.Println("💓 WebSocket health monitoring started")

	for {
		select {
		case <-ctx.Done():
			log.Println("🛑 WebSocket health monitoring stopped")
			return
		case <-ticker.C:
			timeSinceLastMessage := time.Since(cm.LastMessage())

			// Closed klines arrive at least once per bucket; silence means a dead stream
			if timeSinceLastMessage > staleAfter {
				log.Printf("⚠️  No WebSocket message received for %v, reconnecting...", timeSinceLastMessage.Round(time.Second))

				if err := cm.Reconnect(); err != nil {
					log.Printf("❌ WebSocket reconnection failed: %v", err)
				} else {
					log.Println("✅ WebSocket reconnected successfully")
				}
			} else {
				log.Printf("💓 WebSocket healthy, last message %v ago", timeSinceLastMessage.Round(time.Second))
			}
		}
	}
}
