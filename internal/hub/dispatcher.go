package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"bustrack/internal/metrics"
)

// Handler receives the raw payload of one inbound event.
type Handler func(payload json.RawMessage)

// Dispatcher maps event names to handlers. Registering an event name again
// replaces the previous handler (last-writer-wins); there is exactly one
// handler per event name per connection.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      zerolog.Logger
}

func newDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{}, log: log}
}

func (d *Dispatcher) on(event string, h Handler) {
	d.mu.Lock()
	d.handlers[event] = h
	d.mu.Unlock()
}

// off is safe to call for an event that was never registered.
func (d *Dispatcher) off(event string) {
	d.mu.Lock()
	delete(d.handlers, event)
	d.mu.Unlock()
}

// dispatch delivers an event to the currently registered handler, if any.
// It is called only from the connection's read pump, so handlers for one
// connection observe events in receipt order.
func (d *Dispatcher) dispatch(event string, payload json.RawMessage) {
	d.mu.RLock()
	h := d.handlers[event]
	d.mu.RUnlock()
	metrics.EventsReceived.WithLabelValues(event).Inc()
	if h == nil {
		d.log.Debug().Str("event", event).Msg("no handler registered, dropping event")
		return
	}
	h(payload)
}
