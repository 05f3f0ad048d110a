package chatsync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"support-chat/internal/domain/conversation"
	"support-chat/pkg/logger"
)

// StatusFetcher re-reads a conversation's status for the backstop poll.
type StatusFetcher func(ctx context.Context) (conversation.Status, error)

// StatusSync keeps one conversation's displayed status in line with the
// store. Push events and the poller both feed Observe; whichever reports
// closed first wins and the other becomes a no-op. Closed is terminal: the
// poller stops for good and later observations are ignored.
type StatusSync struct {
	fetch    StatusFetcher
	onChange func(conversation.Status)
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	status  conversation.Status
	gen     uint64
	stop    chan struct{}
	polling bool
	done    bool
}

func NewStatusSync(initial conversation.Status, interval time.Duration, fetch StatusFetcher, onChange func(conversation.Status), l *logger.Logger) *StatusSync {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &StatusSync{
		fetch:    fetch,
		onChange: onChange,
		interval: interval,
		log:      logger.OrNop(l),
		status:   initial,
		done:     initial == conversation.StatusClosed,
	}
}

// Start launches the poller when the status is open. It runs until closed is
// observed, Stop is called or ctx ends.
func (s *StatusSync) Start(ctx context.Context) {
	s.mu.Lock()
	if s.done || s.polling || s.status != conversation.StatusOpen {
		s.mu.Unlock()
		return
	}
	s.polling = true
	s.stop = make(chan struct{})
	gen := s.gen
	stop := s.stop
	s.mu.Unlock()

	go s.poll(ctx, gen, stop)
}

func (s *StatusSync) poll(ctx context.Context, gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finishPoll(gen)
			return
		case <-stop:
			return
		case <-ticker.C:
			if !s.live(gen) {
				return
			}
			status, err := s.fetch(ctx)
			if err != nil {
				s.log.Ctx(ctx).Debug("status poll failed", zap.Error(err))
				continue
			}
			if status != conversation.StatusClosed {
				continue
			}
			if s.observe(gen, status) {
				s.log.Ctx(ctx).Info("closure detected by poll")
			}
		}
	}
}

// Observe applies an authoritative status. It reports whether the local
// status changed.
func (s *StatusSync) Observe(status conversation.Status) bool {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	return s.observe(gen, status)
}

func (s *StatusSync) observe(gen uint64, status conversation.Status) bool {
	if !status.Valid() {
		return false
	}
	s.mu.Lock()
	if s.done || s.gen != gen || s.status == status {
		s.mu.Unlock()
		return false
	}
	s.status = status
	if status == conversation.StatusClosed {
		s.haltLocked()
	}
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange(status)
	}
	return true
}

// Stop cancels the poller without waiting for it. A tick already in flight
// is discarded. Idempotent.
func (s *StatusSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haltLocked()
}

func (s *StatusSync) haltLocked() {
	s.done = true
	s.gen++
	if s.polling {
		close(s.stop)
		s.polling = false
	}
}

func (s *StatusSync) finishPoll(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.polling {
		close(s.stop)
		s.polling = false
	}
}

func (s *StatusSync) live(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.done && s.gen == gen
}

func (s *StatusSync) Status() conversation.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Polling reports whether the poller is running.
func (s *StatusSync) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polling
}
