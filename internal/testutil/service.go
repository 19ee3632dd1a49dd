package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/vk/genflow/internal/backend"
	"github.com/vk/genflow/internal/workflow"
)

// FakeService is an in-process job-execution service. Every submitted job
// finishes immediately: its events are pushed to the submitting session and
// its history lists one image for OutputNode.
type FakeService struct {
	URL string
	// OutputNode is the node reported as producing the image.
	OutputNode string

	mu         sync.Mutex
	jobs       []*workflow.Graph
	failures   map[int]string
	sessions   map[string]chan backend.Event
	history    map[string]backend.JobResult
	interrupts int
}

// NewFakeService starts a FakeService that is shut down with the test.
func NewFakeService(t *testing.T) *FakeService {
	t.Helper()
	f := &FakeService{
		OutputNode: "9",
		failures:   make(map[int]string),
		sessions:   make(map[string]chan backend.Event),
		history:    make(map[string]backend.JobResult),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /job", f.handleJob)
	mux.HandleFunc("GET /job-history/{id}", f.handleHistory)
	mux.HandleFunc("GET /artifact", f.handleArtifact)
	mux.HandleFunc("POST /interrupt", f.handleInterrupt)
	mux.HandleFunc("GET /events", f.handleEvents)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	f.URL = srv.URL
	return f
}

// FailJob makes the n-th submitted job (counting from 1) report an
// execution error.
func (f *FakeService) FailJob(n int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[n] = msg
}

// Jobs returns the graphs submitted so far.
func (f *FakeService) Jobs() []*workflow.Graph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*workflow.Graph(nil), f.jobs...)
}

// Interrupts returns how many interrupts were received.
func (f *FakeService) Interrupts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupts
}

func event(kind string, data any) backend.Event {
	raw, _ := json.Marshal(data)
	return backend.Event{Type: kind, Data: raw}
}

func (f *FakeService) handleJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph     *workflow.Graph `json:"graph"`
		SessionID string          `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Graph == nil {
		http.Error(w, "invalid job", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.jobs = append(f.jobs, req.Graph)
	n := len(f.jobs)
	jobID := fmt.Sprintf("job-%d", n)
	events := f.sessions[req.SessionID]

	var push []backend.Event
	if msg, failed := f.failures[n]; failed {
		push = append(push, event(backend.EventExecutionError, backend.ExecutionErrorData{
			JobID: jobID, NodeID: f.OutputNode, NodeType: "SaveImage", Exception: msg,
		}))
	} else {
		f.history[jobID] = backend.JobResult{Outputs: map[string]backend.NodeOutput{
			f.OutputNode: {Images: []backend.ImageRef{{Filename: jobID + ".png", Type: "output"}}},
		}}
		node := f.OutputNode
		push = append(push,
			event(backend.EventExecuting, backend.ExecutingData{JobID: jobID, Node: &node}),
			event(backend.EventExecuting, backend.ExecutingData{JobID: jobID}),
		)
	}
	f.mu.Unlock()

	if events == nil {
		http.Error(w, "no event stream for session", http.StatusBadRequest)
		return
	}
	fmt.Fprintf(w, `{"job_id": %q}`, jobID)
	for _, ev := range push {
		events <- ev
	}
}

func (f *FakeService) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	rec, ok := f.history[id]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]backend.JobResult{id: rec})
}

func (f *FakeService) handleArtifact(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "png:"+r.URL.Query().Get("filename"))
}

func (f *FakeService) handleInterrupt(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	f.interrupts++
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *FakeService) handleEvents(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	events := make(chan backend.Event, 16)

	// Register before the handshake completes so a submission that follows
	// the dial always finds the stream.
	f.mu.Lock()
	f.sessions[session] = events
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		if f.sessions[session] == events {
			delete(f.sessions, session)
		}
		f.mu.Unlock()
	}()

	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
