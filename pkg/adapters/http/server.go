package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/aretw0/fetpipe/pkg/observability"
	"github.com/aretw0/fetpipe/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Server exposes stored runs and live stage events.
type Server struct {
	Store   ports.RunStore
	Streams *StreamManager
}

// NewHandler creates the status API. metrics may be nil, in which case only /healthz is served
// next to the run routes.
func NewHandler(store ports.RunStore, streams *StreamManager, metrics *observability.Metrics) http.Handler {
	if streams == nil {
		streams = NewStreamManager()
	}
	server := &Server{Store: store, Streams: streams}

	r := chi.NewRouter()
	if metrics != nil {
		metrics.Routes(r)
	} else {
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("ok\n"))
		})
	}
	r.Get("/runs", server.ListRuns)
	r.Get("/runs/{runID}", server.GetRun)
	r.Get("/events", server.SubscribeEvents)
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Store.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		slog.Error("ListRuns failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, ids)
}

// GetRun handles GET /runs/{runID}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.Store.Load(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			http.Error(w, fmt.Sprintf("Run %s not found", runID), http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		slog.Error("GetRun failed", "run_id", runID, "error", err)
		return
	}
	writeJSON(w, run)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

// Event is the wire form of a stage event.
type Event struct {
	Timestamp time.Time        `json:"timestamp"`
	Type      domain.EventType `json:"type"`
	RunID     string           `json:"run_id"`
	Node      string           `json:"node"`
	Duration  string           `json:"duration,omitempty"`
	Error     string           `json:"error,omitempty"`
}

func eventFromDomain(ev *domain.StageEvent) Event {
	e := Event{Timestamp: ev.Timestamp, Type: ev.Type, RunID: ev.RunID, Node: ev.Node}
	if ev.Duration > 0 {
		e.Duration = ev.Duration.String()
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

// StreamManager fans stage events out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan string]struct{} // run ID ("" for every run) -> channels
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan string]struct{}),
	}
}

// Subscribe registers a subscriber for runID, or for every run when runID is empty.
func (sm *StreamManager) Subscribe(runID string) (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 16)
	if _, ok := sm.subscribers[runID]; !ok {
		sm.subscribers[runID] = make(map[chan string]struct{})
	}
	sm.subscribers[runID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[runID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, runID)
			}
		}
	}
}

// Broadcast sends ev to the subscribers of its run and to the global subscribers.
func (sm *StreamManager) Broadcast(ev *domain.StageEvent) {
	payload, err := json.Marshal(eventFromDomain(ev))
	if err != nil {
		slog.Error("StreamManager: event encode failed", "error", err)
		return
	}
	msg := string(payload)

	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, key := range []string{ev.RunID, ""} {
		for ch := range sm.subscribers[key] {
			select {
			case ch <- msg:
			default:
				// Slow client.
				slog.Warn("SSE: Client buffer full, dropping event", "run_id", ev.RunID, "node", ev.Node)
			}
		}
	}
}

// Hooks returns engine hooks that broadcast every stage event.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	broadcast := func(_ context.Context, ev *domain.StageEvent) { sm.Broadcast(ev) }
	return domain.LifecycleHooks{
		OnStageStart:  broadcast,
		OnStageFinish: broadcast,
		OnStageSkip:   broadcast,
	}
}

// SubscribeEvents handles GET /events (SSE). The optional run_id query filters one run.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		slog.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	runID := r.URL.Query().Get("run_id")
	slog.Info("SSE: Subscribing to stage events", "run_id", runID)
	ch, cancel := s.Streams.Subscribe(runID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: stage\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
