package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/CosmoTheDev/repomaint-agent/models"
)

// subscriber is one GET /events connection. An empty topic set receives
// everything.
type subscriber struct {
	frames chan []byte
	topics map[string]bool
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.topics) == 0 || s.topics[t.Topic()]
}

// Broadcaster fans pipeline events out to /events subscribers. Frames to a
// subscriber whose buffer is full are dropped.
type Broadcaster struct {
	seq  atomic.Uint64
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewBroadcaster returns a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[*subscriber]struct{})}
}

// subscribe registers a subscriber for topics (all when empty). The caller
// must unsubscribe when the connection closes.
func (b *Broadcaster) subscribe(topics ...string) *subscriber {
	s := &subscriber{frames: make(chan []byte, 32), topics: make(map[string]bool, len(topics))}
	for _, t := range topics {
		if t = strings.TrimSpace(t); t != "" {
			s.topics[t] = true
		}
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *Broadcaster) unsubscribe(s *subscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// TaskFinished is a pool OnFinish hook publishing task.<status> events.
func (b *Broadcaster) TaskFinished(task models.Task) {
	b.send(TaskEventType(task.Status), newTaskEvent(task))
}

// send stamps the next sequence number and fans the frame out.
func (b *Broadcaster) send(typ EventType, payload any) {
	evt := SSEEvent{Seq: b.seq.Add(1), Type: typ, Payload: payload}
	frame, err := encodeFrame(evt)
	if err != nil {
		slog.Warn("Failed to encode SSE event", "type", typ, "error", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if !s.wants(typ) {
			continue
		}
		select {
		case s.frames <- frame:
		default:
			slog.Debug("Dropping SSE frame for slow subscriber", "type", typ, "seq", evt.Seq)
		}
	}
}

// encodeFrame renders evt in SSE wire format with id and event fields so
// browsers can addEventListener per type.
func encodeFrame(evt SSEEvent) ([]byte, error) {
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Type, raw), nil
}
