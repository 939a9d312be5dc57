/*
scheduler.go - Automated idle-group expiry scheduler

PURPOSE:
  Periodically closes tip groups that have had no activity since a
  cutoff. A crew that walks out without leaving their pool would
  otherwise keep an open group absorbing credits forever.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A group is idle when its open segment started before now-IdleAfter
    and no credit has landed on the group since
  - Expiry closes the group through the group engine, so the segment
    timeline stays contiguous and auditable

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - IdleAfter: Inactivity window before a group is closed (default: 12 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewGroupExpiryScheduler(groups)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ExpireGroups endpoint (manual expiry with explicit cutoff)
  - tips/group.go: ExpireIdle
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
)

// GroupExpiryScheduler handles automated closing of abandoned tip groups.
type GroupExpiryScheduler struct {
	Groups        *tips.GroupEngine
	CheckInterval time.Duration
	IdleAfter     time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewGroupExpiryScheduler creates a new scheduler.
func NewGroupExpiryScheduler(groups *tips.GroupEngine) *GroupExpiryScheduler {
	return &GroupExpiryScheduler{
		Groups:        groups,
		CheckInterval: 15 * time.Minute,
		IdleAfter:     12 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (s *GroupExpiryScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Scheduler] Started with check interval: %v, idle window: %v", s.CheckInterval, s.IdleAfter)
}

// Stop stops the scheduler.
func (s *GroupExpiryScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (s *GroupExpiryScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.checkAndExpire()

	for {
		select {
		case <-s.ticker.C:
			s.checkAndExpire()
		case <-s.stop:
			return
		}
	}
}

func (s *GroupExpiryScheduler) checkAndExpire() {
	ctx := context.Background()
	cutoff := time.Now().Add(-s.IdleAfter)

	closed, err := s.Groups.ExpireIdle(ctx, cutoff)
	if err != nil {
		log.Printf("[Scheduler] Error expiring idle groups: %v", err)
		return
	}
	if closed > 0 {
		log.Printf("[Scheduler] Closed %d idle group(s) with no activity since %v", closed, cutoff)
	}
}
