package app

import (
	"context"
	"log"
	"time"

	"crypto-signal-engine/database"
	"crypto-signal-engine/database/analytics"
)

// foldWorker drains results past its cursor on a ticker or when nudged
type foldWorker struct {
	name      string
	analytics *analytics.Repository
	apply     analytics.FoldFunc
	interval  time.Duration
	done      chan bool
	nudge     chan struct{}
}

func newFoldWorker(name string, repo *analytics.Repository, interval time.Duration, apply analytics.FoldFunc) *foldWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &foldWorker{
		name:      name,
		analytics: repo,
		apply:     apply,
		interval:  interval,
		done:      make(chan bool),
		nudge:     make(chan struct{}, 1),
	}
}

func (w *foldWorker) start(label string) {
	log.Printf("%s started", label)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.drain(context.Background())

	for {
		select {
		case <-ticker.C:
			w.drain(context.Background())
		case <-w.nudge:
			w.drain(context.Background())
		case <-w.done:
			log.Printf("%s stopped", label)
			return
		}
	}
}

func (w *foldWorker) stop() {
	close(w.done)
}

// Nudge requests a fold soon without blocking the caller
func (w *foldWorker) Nudge() {
	select {
	case w.nudge <- struct{}{}:
	default:
	}
}

// drain folds batches until the cursor catches up and returns the total folded
func (w *foldWorker) drain(ctx context.Context) int {
	total := 0
	for {
		n, err := w.analytics.Fold(ctx, w.name, database.FoldBatchSize, w.apply)
		if err != nil {
			log.Printf("❌ Fold %s failed: %v", w.name, err)
			return total
		}
		total += n
		if n < database.FoldBatchSize {
			return total
		}
	}
}
