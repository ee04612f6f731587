package playback

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// historyCapacity bounds the transition history and diagnostic rings.
const historyCapacity = 100

// CoordinatorMetrics are cumulative counters for one coordinator
// instance. They never drive behavior.
type CoordinatorMetrics struct {
	TotalProcessed    int64
	TransitionCount   int64
	RejectionCount    int64
	SideEffectErrors  int64
	AvgProcessingTime time.Duration
	LastEventAt       time.Time
	StartedAt         time.Time
}

// TransitionHistoryEntry records one validated event and its verdict.
type TransitionHistoryEntry struct {
	Time    time.Time
	Event   EventType
	From    State
	To      State
	Allowed bool
	Reason  string
}

// DiagnosticEvent is a coarser trail of what the coordinator saw,
// including context values useful when reading incident logs.
type DiagnosticEvent struct {
	Time     time.Time
	Event    EventType
	State    State
	Allowed  bool
	Reason   string
	Position float64
}

// ring is a fixed-capacity append-only buffer that keeps the most
// recent entries.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) append(v T) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

// items returns entries oldest first.
func (r *ring[T]) items() []T {
	if !r.full {
		out := make([]T, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	out = append(out, r.buf[:r.next]...)
	return out
}

// observeProcessing folds one processing duration into the metrics.
func (m *CoordinatorMetrics) observeProcessing(d time.Duration, now time.Time) {
	m.TotalProcessed++
	m.LastEventAt = now
	// Cumulative moving average.
	m.AvgProcessingTime += (d - m.AvgProcessingTime) / time.Duration(m.TotalProcessed)
}

// formatDiagnostics renders a human-readable report of the coordinator's
// state, metrics and recent history.
func formatDiagnostics(rt string, observer bool, ctx StateContext, m CoordinatorMetrics, history []TransitionHistoryEntry, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "coordinator diagnostics (%s context)\n", rt)
	fmt.Fprintf(&b, "  state: %s (previous %s)\n", ctx.CurrentState, ctx.PreviousState)
	if ctx.CurrentTrack != nil {
		fmt.Fprintf(&b, "  track: %s (%s)\n", ctx.CurrentTrack.Title, ctx.CurrentTrack.Key())
	} else {
		b.WriteString("  track: none\n")
	}
	fmt.Fprintf(&b, "  position: %.1fs / %.1fs\n", ctx.Position, ctx.Duration)
	if ctx.SessionID != "" {
		fmt.Fprintf(&b, "  session: %s (started %s)\n", ctx.SessionID, humanize.Time(ctx.SessionStartTime))
	}
	if ctx.LastError != "" {
		fmt.Fprintf(&b, "  last error: %s\n", ctx.LastError)
	}
	fmt.Fprintf(&b, "  observer mode: %v\n", observer)

	fmt.Fprintf(&b, "  uptime: %s\n", humanize.RelTime(m.StartedAt, now, "", ""))
	fmt.Fprintf(&b, "  events: %s processed, %s transitions, %s rejected, %s side-effect errors\n",
		humanize.Comma(m.TotalProcessed),
		humanize.Comma(m.TransitionCount),
		humanize.Comma(m.RejectionCount),
		humanize.Comma(m.SideEffectErrors))
	fmt.Fprintf(&b, "  avg processing: %s\n", m.AvgProcessingTime)
	if !m.LastEventAt.IsZero() {
		fmt.Fprintf(&b, "  last event: %s\n", humanize.Time(m.LastEventAt))
	}

	fmt.Fprintf(&b, "  recent transitions (%d):\n", len(history))
	for _, h := range history {
		if h.Allowed {
			fmt.Fprintf(&b, "    %s %s: %s -> %s\n", h.Time.Format(time.TimeOnly), h.Event, h.From, h.To)
		} else {
			fmt.Fprintf(&b, "    %s %s: rejected in %s (%s)\n", h.Time.Format(time.TimeOnly), h.Event, h.From, h.Reason)
		}
	}

	return b.String()
}
