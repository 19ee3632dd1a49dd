package backend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/workflow"
)

// Transport selects how the event stream is carried.
type Transport string

const (
	TransportWebSocket Transport = "websocket"
	TransportSocketIO  Transport = "socketio"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultCompletionTimeout = 60 * time.Second
	DefaultSettleDelay       = time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultEventBuffer       = 64
)

// maxErrorBody bounds how much of an error response is kept in errors.
const maxErrorBody = 4 << 10

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. http://127.0.0.1:8188.
	BaseURL   string
	Transport Transport

	ConnectTimeout    time.Duration
	CompletionTimeout time.Duration
	// SettleDelay is waited after the completion event before the history
	// lookup; the service records history slightly after it reports idle.
	// A negative value disables the wait.
	SettleDelay    time.Duration
	RequestTimeout time.Duration

	InsecureSkipVerify bool
	// EventBuffer bounds the per-connection event channel.
	EventBuffer int
}

func (c Config) withDefaults() Config {
	if c.Transport == "" {
		c.Transport = TransportWebSocket
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.CompletionTimeout <= 0 {
		c.CompletionTimeout = DefaultCompletionTimeout
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	return c
}

// Client talks to one job-execution service under a single session identity.
// It is safe for concurrent use, but the service correlates events per
// session, so callers should run one job at a time per Client.
type Client struct {
	cfg       Config
	base      *url.URL
	http      *http.Client
	sessionID string
}

// New validates cfg and creates a client with a fresh session id.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid backend url %q: scheme must be http or https", cfg.BaseURL)
	}
	switch cfg.Transport {
	case TransportWebSocket, TransportSocketIO:
	default:
		return nil, fmt.Errorf("unknown event transport %q", cfg.Transport)
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		cfg:       cfg,
		base:      base,
		http:      &http.Client{Timeout: cfg.RequestTimeout, Transport: transport},
		sessionID: uuid.NewString(),
	}, nil
}

// SessionID returns the identity under which jobs and events are correlated.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Close releases idle HTTP connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) endpoint(elem string, query url.Values) string {
	u := *c.base
	u.Path = path.Join("/", c.base.Path, elem)
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func readErrorBody(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return strings.TrimSpace(string(data))
}

type submitRequest struct {
	Graph     *workflow.Graph `json:"graph"`
	SessionID string          `json:"session_id"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit enqueues g on the service and returns the job id.
func (c *Client) Submit(ctx context.Context, g *workflow.Graph) (string, error) {
	logger := ctxlog.FromContext(ctx)

	resp, err := c.do(ctx, http.MethodPost, c.endpoint("job", nil), submitRequest{Graph: g, SessionID: c.sessionID})
	if err != nil {
		return "", &SubmissionError{Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Body: readErrorBody(resp.Body)}
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Msg: fmt.Sprintf("failed to decode response: %v", err)}
	}
	if out.JobID == "" {
		return "", &SubmissionError{StatusCode: resp.StatusCode, Msg: "response carries no job_id"}
	}

	logger.Debug("Job submitted.", "job_id", out.JobID, "nodes", g.Len())
	return out.JobID, nil
}

// ImageRef identifies an artifact produced by a job.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// NodeOutput lists the artifacts produced by one node.
type NodeOutput struct {
	Images []ImageRef `json:"images"`
}

// JobResult is the history record of a finished job.
type JobResult struct {
	JobID   string                `json:"-"`
	Outputs map[string]NodeOutput `json:"outputs"`
}

// NodeIDs returns the ids of the nodes that produced output, in a stable order.
func (r *JobResult) NodeIDs() []string {
	ids := make([]string, 0, len(r.Outputs))
	for id := range r.Outputs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// History fetches the result record of a job. The service may answer with the
// record itself or with an object keyed by job id; both are accepted.
func (c *Client) History(ctx context.Context, jobID string) (*JobResult, error) {
	resp, err := c.do(ctx, http.MethodGet, c.endpoint(path.Join("job-history", jobID), nil), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history lookup returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}

	record, keyed := raw[jobID]
	if !keyed {
		if _, ok := raw["outputs"]; !ok {
			return nil, fmt.Errorf("job %s is not in the history", jobID)
		}
		record, err = json.Marshal(raw)
		if err != nil {
			return nil, err
		}
	}

	result := &JobResult{JobID: jobID}
	if err := json.Unmarshal(record, result); err != nil {
		return nil, fmt.Errorf("failed to decode history record: %w", err)
	}
	if result.Outputs == nil {
		result.Outputs = map[string]NodeOutput{}
	}
	return result, nil
}

// FetchArtifact downloads an artifact produced by a job.
func (c *Client) FetchArtifact(ctx context.Context, ref ImageRef) ([]byte, error) {
	kind := ref.Type
	if kind == "" {
		kind = "output"
	}
	query := url.Values{
		"filename":  {ref.Filename},
		"subfolder": {ref.Subfolder},
		"type":      {kind},
	}

	resp, err := c.do(ctx, http.MethodGet, c.endpoint("artifact", query), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: artifact %s returned status %d", ErrExecution, ref.Filename, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", ref.Filename, err)
	}
	return data, nil
}

// Interrupt asks the service to abort the job it is currently executing.
func (c *Client) Interrupt(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, c.endpoint("interrupt", nil), nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupt, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrInterrupt, resp.StatusCode, readErrorBody(resp.Body))
	}
	ctxlog.FromContext(ctx).Info("Backend interrupt acknowledged.")
	return nil
}
