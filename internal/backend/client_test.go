package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/genflow/internal/workflow"
)

// fakeService mimics the job-execution service over HTTP and a websocket
// event stream.
type fakeService struct {
	t *testing.T

	mu              sync.Mutex
	submitted       []submitRequest
	sessions        []string
	submitStatus    int
	interruptStatus int
	interrupts      int
	events          []Event
	closeAfterSend  bool
	history         map[string]string
	artifactQueries []string
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{
		t:               t,
		submitStatus:    http.StatusOK,
		interruptStatus: http.StatusOK,
		history:         map[string]string{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /job", f.handleJob)
	mux.HandleFunc("GET /job-history/{id}", f.handleHistory)
	mux.HandleFunc("GET /artifact", f.handleArtifact)
	mux.HandleFunc("POST /interrupt", f.handleInterrupt)
	mux.HandleFunc("GET /events", f.handleEvents)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeService) handleJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Graph     json.RawMessage `json:"graph"`
		SessionID string          `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g, err := workflow.Parse(req.Graph)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, submitRequest{Graph: g, SessionID: req.SessionID})
	if f.submitStatus != http.StatusOK {
		http.Error(w, "node 4 is invalid", f.submitStatus)
		return
	}
	fmt.Fprintf(w, `{"job_id": "job-%d"}`, len(f.submitted))
}

func (f *fakeService) handleHistory(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	body, ok := f.history[r.PathValue("id")]
	f.mu.Unlock()
	if !ok {
		fmt.Fprint(w, `{}`)
		return
	}
	fmt.Fprint(w, body)
}

func (f *fakeService) handleArtifact(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.artifactQueries = append(f.artifactQueries, r.URL.RawQuery)
	f.mu.Unlock()
	if r.URL.Query().Get("filename") == "missing.png" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, "PNG:"+r.URL.Query().Get("filename"))
}

func (f *fakeService) handleInterrupt(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	w.WriteHeader(f.interruptStatus)
}

func (f *fakeService) handleEvents(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.sessions = append(f.sessions, r.URL.Query().Get("session"))
	events := append([]Event(nil), f.events...)
	closeAfter := f.closeAfterSend
	f.mu.Unlock()

	for _, ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
	if closeAfter {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// locked runs fn under the service lock so tests can inspect recorded calls.
func (f *fakeService) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func executing(jobID string, node *string) Event {
	data, _ := json.Marshal(ExecutingData{JobID: jobID, Node: node})
	return Event{Type: EventExecuting, Data: data}
}

func nodeID(id string) *string { return &id }

func newTestClient(t *testing.T, srv *httptest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL:           srv.URL,
		ConnectTimeout:    2 * time.Second,
		CompletionTimeout: 2 * time.Second,
		SettleDelay:       -1,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "defaults", cfg: Config{BaseURL: "http://127.0.0.1:8188"}},
		{name: "socketio", cfg: Config{BaseURL: "https://gpu.example.com/api", Transport: TransportSocketIO}},
		{name: "bad scheme", cfg: Config{BaseURL: "ftp://example.com"}, wantErr: "scheme must be http or https"},
		{name: "bad transport", cfg: Config{BaseURL: "http://example.com", Transport: "carrier-pigeon"}, wantErr: "unknown event transport"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := New(tc.cfg)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, c.SessionID())
			assert.Equal(t, DefaultCompletionTimeout, c.cfg.CompletionTimeout)
			assert.Equal(t, DefaultSettleDelay, c.cfg.SettleDelay)
		})
	}
}

func TestClient_EventsURL(t *testing.T) {
	c, err := New(Config{BaseURL: "https://gpu.example.com/comfy/"})
	require.NoError(t, err)
	got := c.eventsURL()
	assert.Equal(t, "wss://gpu.example.com/comfy/events?session="+c.SessionID(), got)

	c, err = New(Config{BaseURL: "http://127.0.0.1:8188"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(c.eventsURL(), "ws://127.0.0.1:8188/events?session="))
}

func TestClient_Submit(t *testing.T) {
	f, srv := newFakeService(t)
	c := newTestClient(t, srv, nil)
	g := workflow.New(workflow.NewNode("1", "EmptyLatentImage", "").Set("width", workflow.Int(640)))

	jobID, err := c.Submit(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	var submitted []submitRequest
	f.locked(func() { submitted = f.submitted })
	require.Len(t, submitted, 1)
	assert.Equal(t, c.SessionID(), submitted[0].SessionID)
	n, ok := submitted[0].Graph.Node("1")
	require.True(t, ok)
	in, ok := n.Input("width")
	require.True(t, ok)
	width, ok := in.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(640), width)
}

func TestClient_SubmitRejected(t *testing.T) {
	f, srv := newFakeService(t)
	f.submitStatus = http.StatusBadRequest
	c := newTestClient(t, srv, nil)

	_, err := c.Submit(context.Background(), workflow.New())
	require.ErrorIs(t, err, ErrSubmission)

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, http.StatusBadRequest, subErr.StatusCode)
	assert.Contains(t, subErr.Body, "node 4 is invalid")
}

func TestClient_AwaitCompletion(t *testing.T) {
	f, srv := newFakeService(t)
	f.events = []Event{
		{Type: EventStatus, Data: json.RawMessage(`{"status": {"exec_info": {"queue_remaining": 1}}}`)},
		executing("job-1", nodeID("3")),
		executing("other-job", nil),
		{Type: EventProgress, Data: json.RawMessage(`{"value": 5, "max": 20}`)},
		executing("job-1", nil),
	}
	f.history["job-1"] = `{"job-1": {"outputs": {"9": {"images": [{"filename": "a.png", "subfolder": "", "type": "output"}]}}}}`
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	stream, err := c.Connect(ctx)
	require.NoError(t, err)
	defer stream.Close()

	jobID, err := c.Submit(ctx, workflow.New())
	require.NoError(t, err)

	result, err := c.AwaitCompletion(ctx, stream, jobID)
	require.NoError(t, err)

	want := map[string]NodeOutput{"9": {Images: []ImageRef{{Filename: "a.png", Type: "output"}}}}
	if diff := cmp.Diff(want, result.Outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"9"}, result.NodeIDs())
	f.locked(func() {
		assert.Equal(t, []string{c.SessionID()}, f.sessions)
	})
}

func TestClient_AwaitCompletionBareHistoryRecord(t *testing.T) {
	f, srv := newFakeService(t)
	f.events = []Event{executing("job-1", nil)}
	f.history["job-1"] = `{"outputs": {"12": {"images": [{"filename": "b.png", "subfolder": "x", "type": "output"}]}}}`
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	stream, err := c.Connect(ctx)
	require.NoError(t, err)
	defer stream.Close()

	result, err := c.AwaitCompletion(ctx, stream, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, "x", result.Outputs["12"].Images[0].Subfolder)
}

func TestClient_AwaitCompletionFailures(t *testing.T) {
	testCases := []struct {
		name       string
		events     []Event
		closeAfter bool
		history    string
		wantErrIs  error
	}{
		{
			name:      "no completion event",
			events:    []Event{executing("job-1", nodeID("3"))},
			wantErrIs: ErrExecutionTimeout,
		},
		{
			name: "backend reports failure",
			events: []Event{
				executing("job-1", nodeID("3")),
				{Type: EventExecutionError, Data: json.RawMessage(`{"job_id": "job-1", "node_id": "3", "node_type": "KSampler", "exception_message": "out of memory"}`)},
			},
			wantErrIs: ErrExecution,
		},
		{
			name:       "stream closes early",
			events:     []Event{executing("job-1", nodeID("3"))},
			closeAfter: true,
			wantErrIs:  ErrConnection,
		},
		{
			name:      "history missing after completion",
			events:    []Event{executing("job-1", nil)},
			wantErrIs: ErrExecution,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, srv := newFakeService(t)
			f.events = tc.events
			f.closeAfterSend = tc.closeAfter
			c := newTestClient(t, srv, func(cfg *Config) {
				cfg.CompletionTimeout = 200 * time.Millisecond
			})
			ctx := context.Background()

			stream, err := c.Connect(ctx)
			require.NoError(t, err)
			defer stream.Close()

			_, err = c.AwaitCompletion(ctx, stream, "job-1")
			require.ErrorIs(t, err, tc.wantErrIs)
		})
	}
}

func TestClient_ExecutionErrorCarriesNode(t *testing.T) {
	f, srv := newFakeService(t)
	f.events = []Event{
		{Type: EventExecutionError, Data: json.RawMessage(`{"job_id": "job-1", "node_id": "31", "node_type": "VAEEncode", "exception_message": "bad pixels"}`)},
	}
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	stream, err := c.Connect(ctx)
	require.NoError(t, err)
	defer stream.Close()

	_, err = c.AwaitCompletion(ctx, stream, "job-1")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "31", execErr.Node)
	assert.Contains(t, execErr.Error(), "bad pixels")
}

func TestClient_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	c := newTestClient(t, srv, nil)

	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnection)
}

func TestClient_Interrupt(t *testing.T) {
	f, srv := newFakeService(t)
	c := newTestClient(t, srv, nil)

	require.NoError(t, c.Interrupt(context.Background()))
	f.locked(func() {
		assert.Equal(t, 1, f.interrupts)
		f.interruptStatus = http.StatusServiceUnavailable
	})
	err := c.Interrupt(context.Background())
	require.ErrorIs(t, err, ErrInterrupt)
}

func TestClient_FetchArtifact(t *testing.T) {
	f, srv := newFakeService(t)
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	data, err := c.FetchArtifact(ctx, ImageRef{Filename: "a.png", Subfolder: "sub"})
	require.NoError(t, err)
	assert.Equal(t, "PNG:a.png", string(data))
	f.locked(func() {
		assert.Equal(t, []string{"filename=a.png&subfolder=sub&type=output"}, f.artifactQueries)
	})

	_, err = c.FetchArtifact(ctx, ImageRef{Filename: "missing.png"})
	require.ErrorIs(t, err, ErrExecution)
}
