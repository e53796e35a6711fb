package autosave

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codehive/backend/internal/room"
)

// DefaultInterval bounds write amplification under fast typing: edits mark
// slots dirty in memory and reach the database at most once per interval.
const DefaultInterval = 2 * time.Second

// Service flushes dirty Room Store slots to the database on a fixed
// interval, keeping persistence I/O off the broadcast path.
type Service struct {
	store    *room.Store
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(store *room.Store, interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		store:    store,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	log.Info().Dur("interval", s.interval).Msg("autosave service started")
}

// Stop flushes once more and waits for the loop to exit.
func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.store.FlushDirty()
	log.Info().Msg("autosave service stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.store.FlushDirty(); n > 0 {
				log.Debug().Int("slots", n).Msg("autosaved dirty slots")
			}
		}
	}
}
