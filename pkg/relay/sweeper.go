package relay

import (
	"context"
	"time"

	"github.com/openeq/pixelstream/pkg/logger"
)

// Sweeper periodically evicts idle sessions from the hub.
type Sweeper struct {
	hub      *Hub
	interval time.Duration
	done     chan struct{}
	log      *logger.Logger
}

func NewSweeper(hub *Hub, interval time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{hub: hub, interval: interval, done: make(chan struct{}), log: log}
}

func (s *Sweeper) Run() {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.hub.SweepIdle()
			case <-s.done:
				return
			}
		}
	}()
}

func (s *Sweeper) Shutdown(context.Context) error {
	close(s.done)
	return nil
}

func (s *Sweeper) String() string { return "sweeper" }
