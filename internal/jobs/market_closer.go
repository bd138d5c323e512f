package jobs

import (
	"context"
	"log"
	"time"

	"prediclaw/internal/services"
)

// MarketCloser periodically sweeps open markets past their deadline to
// closed. The sweep is idempotent and only flips status; the lazy close on
// access covers markets touched between ticks.
type MarketCloser struct {
	markets  *services.MarketService
	interval time.Duration
	stopChan chan struct{}
}

// NewMarketCloser creates a new market closer job
func NewMarketCloser(markets *services.MarketService, interval time.Duration) *MarketCloser {
	return &MarketCloser{
		markets:  markets,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the close sweep loop
func (mc *MarketCloser) Start() {
	log.Printf("[MarketCloser] Starting close sweep (interval: %v)", mc.interval)

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.sweep()
		case <-mc.stopChan:
			log.Println("[MarketCloser] Stopping close sweep")
			return
		}
	}
}

// Stop stops the close sweep loop
func (mc *MarketCloser) Stop() {
	close(mc.stopChan)
}

func (mc *MarketCloser) sweep() {
	closed, err := mc.markets.CloseExpired(context.Background())
	if err != nil {
		log.Printf("[MarketCloser] Error closing expired markets: %v", err)
		return
	}
	if closed > 0 {
		log.Printf("[MarketCloser] Closed %d expired markets", closed)
	}
}
