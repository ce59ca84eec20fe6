package events

import (
	"context"
	"log/slog"
	"sync"
)

// DefaultHistorySize matches the console buffer the dashboard displays.
const DefaultHistorySize = 100

// Recorder receives pipeline events. Components depend on this rather than
// on *History so tests can observe what was recorded.
type Recorder interface {
	Record(ctx context.Context, event *Event)
}

// History is a bounded, append-only buffer of recent operations. When full,
// the oldest entry is evicted. It is safe for concurrent use.
type History struct {
	mu     sync.Mutex
	buf    []*Event
	start  int // index of the oldest entry
	count  int
	total  int
	logger *slog.Logger
}

// NewHistory creates a history holding at most size events. Every recorded
// event is also written to logger (slog.Default() when nil).
func NewHistory(size int, logger *slog.Logger) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &History{
		buf:    make([]*Event, size),
		logger: logger,
	}
}

// Record appends an event, evicting the oldest one if the buffer is full.
func (h *History) Record(ctx context.Context, event *Event) {
	if event == nil {
		return
	}

	h.mu.Lock()
	if h.count < len(h.buf) {
		h.buf[(h.start+h.count)%len(h.buf)] = event
		h.count++
	} else {
		h.buf[h.start] = event
		h.start = (h.start + 1) % len(h.buf)
	}
	h.total++
	h.mu.Unlock()

	attrs := []any{
		slog.String("event", string(event.Type)),
	}
	if event.ProposalID != "" {
		attrs = append(attrs, slog.String("proposal_id", event.ProposalID))
	}
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	h.logger.Log(ctx, levelFor(event.Severity), event.Message, attrs...)
}

// Recent returns up to limit events, newest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []*Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.start + h.count - 1 - i) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}

// Len returns the number of retained events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Total returns how many events were ever recorded, including evicted ones.
func (h *History) Total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.total
}

// Capacity returns the maximum number of retained events.
func (h *History) Capacity() int {
	return len(h.buf)
}

func levelFor(s EventSeverity) slog.Level {
	switch s {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Discard is a Recorder that drops every event.
var Discard Recorder = discard{}

type discard struct{}

func (discard) Record(context.Context, *Event) {}
