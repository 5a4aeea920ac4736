package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cwbudde/bayestune/internal/tuner"
)

// StepEvent is pushed to stream subscribers after every step
type StepEvent struct {
	SessionID string      `json:"sessionId"`
	State     tuner.State `json:"state"`
	Done      bool        `json:"done"`
	Iteration int         `json:"iteration"`
	Params    []float64   `json:"params,omitempty"`
	Y         *float64    `json:"y,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// EventBroadcaster manages SSE connections per session
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan StepEvent]bool // sessionID -> set of client channels
	lastEvent map[string]StepEvent               // sessionID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan StepEvent]bool),
		lastEvent: make(map[string]StepEvent),
	}
}

// Subscribe adds a client to receive events for a session
func (eb *EventBroadcaster) Subscribe(sessionID string) chan StepEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan StepEvent, 10)

	if eb.clients[sessionID] == nil {
		eb.clients[sessionID] = make(map[chan StepEvent]bool)
	}
	eb.clients[sessionID][ch] = true

	// Replay the last event for reconnecting clients
	if last, ok := eb.lastEvent[sessionID]; ok {
		select {
		case ch <- last:
		default:
		}
	}

	slog.Debug("SSE client subscribed", "session", sessionID, "total_clients", len(eb.clients[sessionID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(sessionID string, ch chan StepEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		if _, subscribed := clients[ch]; subscribed {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(eb.clients, sessionID)
		}
	}

	slog.Debug("SSE client unsubscribed", "session", sessionID)
}

// Broadcast sends an event to all subscribed clients for a session
func (eb *EventBroadcaster) Broadcast(event StepEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.SessionID] = event

	for ch := range eb.clients[event.SessionID] {
		select {
		case ch <- event:
		default:
			// Slow client, drop rather than block the step
			slog.Warn("SSE channel full, skipping event", "session", event.SessionID)
		}
	}
}

// CleanupSession closes all client channels and forgets the cached event
func (eb *EventBroadcaster) CleanupSession(sessionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, sessionID)
	}

	delete(eb.lastEvent, sessionID)
	slog.Debug("Cleaned up SSE resources", "session", sessionID)
}

// handleSessionStream handles GET /api/v1/sessions/{id}/events
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	status, err := s.sessions.Status(r.Context(), sessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	eventChan := s.sessions.broadcaster.Subscribe(sessionID)
	defer s.sessions.broadcaster.Unsubscribe(sessionID, eventChan)

	initial := StepEvent{
		SessionID: sessionID,
		State:     status.State,
		Done:      status.State == tuner.StateExhausted,
		Iteration: status.Observations,
		Timestamp: time.Now(),
	}
	if err := writeSSEEvent(w, initial); err != nil {
		s.logger.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", "session", sessionID)
			return

		case event, ok := <-eventChan:
			if !ok {
				// Session was reset
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				s.logger.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event StepEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
