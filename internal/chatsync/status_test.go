package chatsync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"support-chat/internal/domain/conversation"
)

type scriptedFetch struct {
	mu     sync.Mutex
	status conversation.Status
	calls  atomic.Int32
}

func (f *scriptedFetch) fetch(ctx context.Context) (conversation.Status, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, nil
}

func (f *scriptedFetch) set(s conversation.Status) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

type changeLog struct {
	mu   sync.Mutex
	seen []conversation.Status
}

func (c *changeLog) record(s conversation.Status) {
	c.mu.Lock()
	c.seen = append(c.seen, s)
	c.mu.Unlock()
}

func (c *changeLog) list() []conversation.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]conversation.Status{}, c.seen...)
}

func TestStatusSyncPollDetectsClosure(t *testing.T) {
	f := &scriptedFetch{status: conversation.StatusOpen}
	changes := &changeLog{}
	s := NewStatusSync(conversation.StatusOpen, 5*time.Millisecond, f.fetch, changes.record, nil)
	s.Start(context.Background())
	defer s.Stop()

	eventually(t, time.Second, func() bool { return f.calls.Load() >= 2 }, "poller never ticked")
	f.set(conversation.StatusClosed)
	eventually(t, time.Second, func() bool { return s.Status() == conversation.StatusClosed }, "closure not detected")

	if s.Polling() {
		t.Fatal("poller still running after closure")
	}
	after := f.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if f.calls.Load() != after {
		t.Fatalf("poller fired after closure: %d -> %d", after, f.calls.Load())
	}
	if got := changes.list(); len(got) != 1 || got[0] != conversation.StatusClosed {
		t.Fatalf("expected a single closed change, got %v", got)
	}
}

func TestStatusSyncPushClosureCancelsPoll(t *testing.T) {
	f := &scriptedFetch{status: conversation.StatusOpen}
	changes := &changeLog{}
	s := NewStatusSync(conversation.StatusOpen, 5*time.Millisecond, f.fetch, changes.record, nil)
	s.Start(context.Background())

	eventually(t, time.Second, func() bool { return f.calls.Load() >= 1 }, "poller never ticked")
	if !s.Observe(conversation.StatusClosed) {
		t.Fatal("push closure not applied")
	}
	if s.Polling() {
		t.Fatal("poller still running")
	}

	// The poll now agreeing is a no-op, and so is a repeated push.
	f.set(conversation.StatusClosed)
	if s.Observe(conversation.StatusClosed) {
		t.Fatal("second closure applied")
	}
	after := f.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if f.calls.Load() > after+1 {
		t.Fatalf("poller kept firing: %d -> %d", after, f.calls.Load())
	}
	if got := changes.list(); len(got) != 1 {
		t.Fatalf("expected one change, got %v", got)
	}
}

func TestStatusSyncClosedIsTerminal(t *testing.T) {
	changes := &changeLog{}
	s := NewStatusSync(conversation.StatusOpen, time.Hour, func(context.Context) (conversation.Status, error) {
		return conversation.StatusOpen, nil
	}, changes.record, nil)

	s.Observe(conversation.StatusClosed)
	if s.Observe(conversation.StatusOpen) {
		t.Fatal("reopen applied after closure")
	}
	s.Start(context.Background())
	if s.Polling() {
		t.Fatal("poller restarted after closure")
	}
	if s.Status() != conversation.StatusClosed {
		t.Fatalf("status: %s", s.Status())
	}
}

func TestStatusSyncStopIsSynchronous(t *testing.T) {
	f := &scriptedFetch{status: conversation.StatusOpen}
	changes := &changeLog{}
	s := NewStatusSync(conversation.StatusOpen, 2*time.Millisecond, f.fetch, changes.record, nil)
	s.Start(context.Background())
	eventually(t, time.Second, func() bool { return f.calls.Load() >= 1 }, "poller never ticked")

	s.Stop()
	s.Stop()
	if s.Polling() {
		t.Fatal("poller running after Stop")
	}
	f.set(conversation.StatusClosed)
	after := f.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if f.calls.Load() > after+1 {
		t.Fatalf("poller kept firing after Stop: %d -> %d", after, f.calls.Load())
	}
	if len(changes.list()) != 0 {
		t.Fatalf("tick after Stop changed status: %v", changes.list())
	}
}

func TestStatusSyncStartsOnlyWhenOpen(t *testing.T) {
	f := &scriptedFetch{status: conversation.StatusClosed}
	s := NewStatusSync(conversation.StatusClosed, time.Millisecond, f.fetch, nil, nil)
	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	if s.Polling() || f.calls.Load() != 0 {
		t.Fatalf("poller ran for a closed conversation: polling=%v calls=%d", s.Polling(), f.calls.Load())
	}
}
