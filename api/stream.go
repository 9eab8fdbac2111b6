/*
stream.go - Server-sent events for payroll run progress

PURPOSE:
  Lets a client follow a background run without polling. The RunRegistry
  publishes every accepted run event to the Hub; StreamRun forwards them to
  the browser as SSE frames.

WIRE FORMAT:
  event: snapshot     current run state, sent once on connect
  event: progress     {"run_id": "...", "kind": "progress", "percent": 42}
  event: completed    final frame, then the stream ends
  event: invalid      final frame, with the validation issues
  event: failed       final frame, with the failure message
  event: superseded   final frame, a newer run replaced this one
  event: ping         keepalive

DELIVERY:
  Publish never blocks the run. A slow subscriber may miss progress frames;
  it never misses the end, because the hub closes every subscriber channel
  once a run is over and StreamRun then writes the final state.
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/payroll-engine/payroll"
)

const (
	subscriberBuffer  = 16
	keepaliveInterval = 15 * time.Second
)

// =============================================================================
// HUB
// =============================================================================

// StreamEvent is one frame for the subscribers of a run.
type StreamEvent struct {
	Event string
	Data  any
}

// Hub fans run events out to SSE subscribers, keyed by run ID.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[payroll.RunID]map[chan StreamEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[payroll.RunID]map[chan StreamEvent]struct{}),
	}
}

// Subscribe registers a subscriber for a run and returns its channel and a
// cleanup function. The channel is closed by cleanup or by Close.
func (h *Hub) Subscribe(runID payroll.RunID) (<-chan StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan StreamEvent, subscriberBuffer)
	if h.subscribers[runID] == nil {
		h.subscribers[runID] = make(map[chan StreamEvent]struct{})
	}
	h.subscribers[runID][ch] = struct{}{}

	cleanup := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subscribers[runID][ch]; !ok {
			return // already closed by Close
		}
		delete(h.subscribers[runID], ch)
		close(ch)
		if len(h.subscribers[runID]) == 0 {
			delete(h.subscribers, runID)
		}
	}
	return ch, cleanup
}

// Publish sends an event to every subscriber of a run, skipping full channels.
func (h *Hub) Publish(runID payroll.RunID, event StreamEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[runID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close ends every subscription of a run.
func (h *Hub) Close(runID payroll.RunID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[runID] {
		close(ch)
	}
	delete(h.subscribers, runID)
}

// SubscriberCount returns the number of active subscribers for a run.
func (h *Hub) SubscriberCount(runID payroll.RunID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[runID])
}

// =============================================================================
// HANDLER
// =============================================================================

// StreamRun streams a run's events.
// GET /api/payroll/runs/{id}/events
func (h *Handler) StreamRun(w http.ResponseWriter, r *http.Request) {
	runID := payroll.RunID(chi.URLParam(r, "id"))

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported", nil)
		return
	}

	// Subscribe before reading the snapshot so no final event slips between.
	events, cleanup := h.Hub.Subscribe(runID)
	defer cleanup()

	view, err := h.Runs.Get(runID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	writeFrame(w, "snapshot", toRunDTO(view, false))
	flusher.Flush()
	if view.Status.Terminal() {
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Run is over; the last frame may have been dropped.
				if view, err := h.Runs.Get(runID); err == nil {
					writeFrame(w, string(view.Status), toRunDTO(view, false))
					flusher.Flush()
				}
				return
			}
			writeFrame(w, event.Event, event.Data)
			flusher.Flush()
			if event.Event != string(payroll.EventProgress) {
				return
			}

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeFrame(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
