package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"support-chat/internal/chatsync"
	"support-chat/internal/client"
	"support-chat/internal/domain/conversation"
	"support-chat/internal/domain/message"
	"support-chat/pkg/logger"
)

type remote struct {
	store *client.StoreClient
	bus   *client.BusClient
	user  uuid.UUID
}

func connect(ctx context.Context) (*remote, error) {
	server, token, err := resolveEndpoint()
	if err != nil {
		return nil, err
	}
	store, err := client.NewStoreClient(server, token)
	if err != nil {
		return nil, err
	}
	bus, err := client.DialBus(ctx, server, token, logger.Nop())
	if err != nil {
		return nil, err
	}
	return &remote{store: store, bus: bus, user: store.UserID()}, nil
}

func (r *remote) Close() {
	_ = r.bus.Close()
}

func sessionOptions() chatsync.Options {
	return chatsync.Options{
		PollInterval: time.Duration(flagPoll) * time.Millisecond,
		Logger:       logger.Nop(),
	}
}

// transcript prints each message once, in the order the session holds them.
type transcript struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[uuid.UUID]bool
	self    uuid.UUID
	status  conversation.Status
}

func newTranscript(self uuid.UUID) *transcript {
	return &transcript{out: os.Stdout, printed: make(map[uuid.UUID]bool), self: self}
}

func (t *transcript) show(msgs []message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range msgs {
		if t.printed[m.ID] {
			continue
		}
		t.printed[m.ID] = true
		who := "customer"
		if m.IsAdmin {
			who = "support"
		}
		if m.SenderID == t.self {
			who += " (you)"
		}
		fmt.Fprintf(t.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), who, m.Content)
	}
}

// showStatus prints a notice when the conversation becomes closed.
func (t *transcript) showStatus(s conversation.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s == "" || s == t.status {
		return
	}
	t.status = s
	if s == conversation.StatusClosed {
		fmt.Fprintln(t.out, "-- conversation closed; type /new to start another")
	}
}

func (t *transcript) reset() {
	t.mu.Lock()
	t.printed = make(map[uuid.UUID]bool)
	t.status = ""
	t.mu.Unlock()
}

func (t *transcript) notice(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, "-- "+format+"\n", args...)
}

// readLines calls fn for each non-empty input line until fn returns false,
// stdin ends or ctx is done.
func readLines(ctx context.Context, fn func(line string) bool) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if !fn(line) {
				return
			}
		}
	}
}
