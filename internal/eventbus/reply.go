package eventbus

import (
	"sync"

	"github.com/agentcore/runtime/pkg/models"
)

// HTTPSink is the per-request destination an HTTP streaming handler
// registers for the duration of one SSE response, so a chunk can be
// fed to it directly without ever touching the bus (spec.md §4.8).
type HTTPSink chan models.Chunk

// Router implements the reply-channel fan-out rule of spec.md §4.8:
// a ReplyTarget of Kind WebSocket publishes ChatResponse events on the
// Bus; a ReplyTarget of Kind Http instead feeds a private channel bound
// to the request id, so HTTP clients never observe bus-delivered
// duplicates and WebSocket clients need no request-id plumbing.
type Router struct {
	Bus *Bus

	mu    sync.RWMutex
	http  map[string]HTTPSink
}

// NewRouter builds a Router over bus.
func NewRouter(bus *Bus) *Router {
	return &Router{Bus: bus, http: map[string]HTTPSink{}}
}

// RegisterHTTP binds requestID to an SSE writer's feed channel for the
// duration of one HTTP streaming request.
func (r *Router) RegisterHTTP(requestID string, sink HTTPSink) func() {
	r.mu.Lock()
	r.http[requestID] = sink
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.http, requestID)
		r.mu.Unlock()
	}
}

// Deliver routes one chunk for sessionID to target, applying the rule:
// WebSocket targets publish a ChatResponse event on the bus; Http
// targets write directly to the registered sink.
func (r *Router) Deliver(sessionID string, target models.ReplyTarget, chunk models.Chunk) {
	switch target.Kind {
	case models.ReplyWebSocket:
		r.Bus.Publish(models.Event{
			Kind:      models.EventChatResponse,
			SessionID: sessionID,
			Chunk:     chunk,
		})
	case models.ReplyHTTP:
		r.mu.RLock()
		sink, ok := r.http[target.RequestID]
		r.mu.RUnlock()
		if ok {
			select {
			case sink <- chunk:
			default:
			}
		}
	}
}
