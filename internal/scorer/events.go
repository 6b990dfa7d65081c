package scorer

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event is one step in a local scorer process's life: spawn_start,
// spawn_exit, spawn_timeout or spawn_error.
type Event struct {
	Name   string
	PID    int
	Fields map[string]any
}

// EventPublisher is notified by LocalRunner as processes start and end.
// Publish is called on the scoring goroutine and must return quickly.
type EventPublisher interface {
	Publish(Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes events to a zerolog logger at debug level and counts
// them in riskd_local_process_events_total.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "local_scorer").Logger()}
}

func (p *LogPublisher) Publish(e Event) {
	processEventsTotal.WithLabelValues(e.Name).Inc()
	ev := p.logger.Debug().Str("event", e.Name)
	if e.PID > 0 {
		ev = ev.Int("pid", e.PID)
	}
	ev.Fields(e.Fields).Msg("scorer process")
}

// MemoryPublisher records events for inspection in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Names returns the event names in publish order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.events))
	for i, e := range p.events {
		names[i] = e.Name
	}
	return names
}
