package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/weaverlabs/weaver/pkg/domain"
	"github.com/weaverlabs/weaver/pkg/observability"
)

// EventType discriminates workflow events.
type EventType string

const (
	// EventStatusUpdate signals a task lifecycle transition
	EventStatusUpdate EventType = "status_update"
	// EventLogMessage carries one agent audit line
	EventLogMessage EventType = "log_message"
)

// Event is one workflow notification. Status is set for status updates;
// Agent and Message are set for log messages.
type Event struct {
	Type      EventType         `json:"type"`
	TaskID    string            `json:"task_id"`
	Status    domain.TaskStatus `json:"status,omitempty"`
	Agent     domain.AgentType  `json:"agent,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Observer receives workflow events. Notify is called synchronously from
// the workflow goroutine; slow observers slow the workflow down.
type Observer interface {
	Notify(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// Notify implements Observer
func (f ObserverFunc) Notify(event Event) {
	f(event)
}

// Notifier fans events out to registered observers. Delivery follows
// registration order. Events are not replayed: an observer registered
// mid-run sees only what happens after registration.
type Notifier struct {
	mu        sync.RWMutex
	observers []*registration
	logger    observability.Logger
}

// registration wraps an observer so identical observers registered twice
// stay distinguishable when one of them unregisters.
type registration struct {
	observer Observer
}

// NewNotifier creates an empty notifier
func NewNotifier(logger observability.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Register adds an observer and returns a function that removes it again.
// Unregistering is idempotent; transient consumers such as event streams
// must call it when they stop reading or the dead observer lingers for the
// life of the notifier.
func (n *Notifier) Register(observer Observer) (unregister func()) {
	if observer == nil {
		return func() {}
	}
	entry := &registration{observer: observer}
	n.mu.Lock()
	n.observers = append(n.observers, entry)
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(entry) })
	}
}

func (n *Notifier) remove(entry *registration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, obs := range n.observers {
		if obs == entry {
			n.observers = append(n.observers[:i], n.observers[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every observer in registration order. A
// panicking observer is isolated: the remaining observers still receive
// the event.
func (n *Notifier) Publish(event Event) {
	n.mu.RLock()
	observers := make([]*registration, len(n.observers))
	copy(observers, n.observers)
	n.mu.RUnlock()

	for _, entry := range observers {
		n.deliver(entry.observer, event)
	}
}

func (n *Notifier) deliver(obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil && n.logger != nil {
			n.logger.Warn(context.Background(), "observer panicked", map[string]interface{}{
				"event_type": string(event.Type),
				"task_id":    event.TaskID,
				"panic":      r,
			})
		}
	}()
	obs.Notify(event)
}
