package limits

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// sweeper - периодическая задача очистки, принадлежит компоненту, чьё состояние она чистит.
// Stop идемпотентен и дожидается завершения текущего прохода.
type sweeper struct {
	name     string
	interval time.Duration
	fn       func() int
	logger   *zap.Logger

	mu      sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

const minSweepInterval = 10 * time.Millisecond

func newSweeper(name string, interval time.Duration, fn func() int, logger *zap.Logger) *sweeper {
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	return &sweeper{name: name, interval: interval, fn: fn, logger: logger}
}

func (s *sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stop)
}

func (s *sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *sweeper) loop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.fn(); removed > 0 {
				s.logger.Debug("sweep finished", zap.String("component", s.name), zap.Int("removed", removed))
			}
		case <-stop:
			return
		}
	}
}
