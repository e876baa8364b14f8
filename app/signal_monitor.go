package app

import (
	"context"
	"errors"
	"log"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/signals"
	"crypto-signal-engine/metrics"
)

// SignalMonitor periodically advances every non-terminal prediction
type SignalMonitor struct {
	signals   *signals.Repository
	lifecycle *LifecycleManager
	interval  time.Duration
	metrics   *metrics.Metrics
	done      chan bool
	now       func() time.Time
}

// NewSignalMonitor creates a new signal monitor
func NewSignalMonitor(sig *signals.Repository, lifecycle *LifecycleManager, interval time.Duration) *SignalMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SignalMonitor{
		signals:   sig,
		lifecycle: lifecycle,
		interval:  interval,
		done:      make(chan bool),
		now:       time.Now,
	}
}

// SetMetrics attaches collectors for the open signal gauge
func (sm *SignalMonitor) SetMetrics(m *metrics.Metrics) {
	sm.metrics = m
}

// Start begins the monitoring loop
func (sm *SignalMonitor) Start() {
	log.Println("📊 Signal Monitor started")

	ticker := time.NewTicker(sm.interval)
	defer ticker.Stop()

	// Run immediately on start
	sm.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			sm.RunOnce(context.Background())
		case <-sm.done:
			log.Println("📊 Signal Monitor stopped")
			return
		}
	}
}

// Stop gracefully stops the monitor
func (sm *SignalMonitor) Stop() {
	close(sm.done)
}

// RunOnce checks every non-terminal prediction and returns how many were resolved
func (sm *SignalMonitor) RunOnce(ctx context.Context) int {
	checked, resolved := 0, 0
	var lastID int64
	for {
		open, err := sm.signals.GetNonTerminal(ctx, lastID, database.MonitorBatchSize)
		if err != nil {
			log.Printf("❌ Error getting open predictions: %v", err)
			return resolved
		}
		if len(open) == 0 {
			break
		}

		now := sm.now()
		for i := range open {
			done, err := sm.lifecycle.Check(ctx, &open[i], now)
			if err != nil {
				if !errors.Is(err, database.ErrTransitionConflict) {
					log.Printf("❌ Error checking prediction %d: %v", open[i].ID, err)
				}
				continue
			}
			if done {
				resolved++
			}
		}

		checked += len(open)
		lastID = open[len(open)-1].ID
		if len(open) < database.MonitorBatchSize {
			break
		}
	}

	sm.metrics.SetActiveSignals(checked - resolved)
	if resolved > 0 {
		log.Printf("✅ Signal monitoring completed: %d of %d resolved", resolved, checked)
	}
	return resolved
}
