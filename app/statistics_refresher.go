package app

import (
	"context"
	"log"
	"time"
)

// StatisticsRefreshInterval is how often the daily model rollup is rebuilt
const StatisticsRefreshInterval = 5 * time.Minute

// StatisticsStore refreshes the model_statistics_daily rollup
type StatisticsStore interface {
	RefreshModelStatistics(ctx context.Context) error
}

// StatisticsRefresher periodically refreshes the model statistics materialized view
type StatisticsRefresher struct {
	store StatisticsStore
	done  chan bool
}

// NewStatisticsRefresher creates a new statistics refresher
func NewStatisticsRefresher(store StatisticsStore) *StatisticsRefresher {
	return &StatisticsRefresher{
		store: store,
		done:  make(chan bool),
	}
}

// Start begins the refresh loop
func (sr *StatisticsRefresher) Start() {
	log.Println("🔄 Statistics Refresher started")

	ticker := time.NewTicker(StatisticsRefreshInterval)
	defer ticker.Stop()

	// Initial run
	sr.refreshView()

	for {
		select {
		case <-ticker.C:
			sr.refreshView()
		case <-sr.done:
			log.Println("🔄 Statistics Refresher stopped")
			return
		}
	}
}

// Stop stops the refresh loop
func (sr *StatisticsRefresher) Stop() {
	close(sr.done)
}

// refreshView refreshes the materialized view
func (sr *StatisticsRefresher) refreshView() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := sr.store.RefreshModelStatistics(ctx); err != nil {
		log.Printf("⚠️ Failed to refresh model statistics view: %v", err)
		return
	}
	log.Println("✅ Model statistics view refreshed")
}
