package transport

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stockledger/internal/eventbus"
	"stockledger/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval keeps idle streams alive through proxies
	HeartbeatInterval = 25 * time.Second

	eventBuffer = 32
)

// Subscriber is the read side of the change bus
type Subscriber interface {
	SubscribeAll(h eventbus.Handler) (unsubscribe func())
}

// EventHandler streams bus topics to clients as server-sent events
type EventHandler struct {
	bus       Subscriber
	heartbeat time.Duration
	logger    *zap.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(bus Subscriber, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:       bus,
		heartbeat: HeartbeatInterval,
		logger:    logger,
		closing:   make(chan struct{}),
	}
}

// Close ends every open stream. http.Server.Shutdown does not cancel running
// requests, so the server calls this when it starts shutting down.
func (h *EventHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// RegisterRoutes registers the event stream on an authenticated router
func (h *EventHandler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.Stream)
}

// Stream writes one "data: TOPIC" frame per published change until the
// client goes away. Slow clients drop events rather than block publishers.
func (h *EventHandler) Stream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// The server write timeout would otherwise cut the stream.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Debug("Could not clear write deadline", zap.Error(err))
	}

	events := make(chan eventbus.Topic, eventBuffer)
	unsubscribe := h.bus.SubscribeAll(func(topic eventbus.Topic) {
		select {
		case events <- topic:
		default:
			h.logger.Warn("Dropping event for slow client", zap.String("topic", string(topic)))
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		h.logger.Error("Streaming unsupported", zap.Error(err))
		return
	}

	userID, _ := middleware.GetUserID(r.Context())
	h.logger.Debug("Event stream opened", zap.String("user_id", userID.String()))
	defer h.logger.Debug("Event stream closed", zap.String("user_id", userID.String()))

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			return
		case topic := <-events:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", topic); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
