package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/genflow/internal/backend"
	"github.com/vk/genflow/internal/workflow"
)

const textTemplate = `{
  "1": {"operation_type": "CLIPTextEncode", "title": "Positive Prompt", "inputs": {"text": "", "clip": ["4", 1]}},
  "2": {"operation_type": "CLIPTextEncode", "title": "Negative Prompt", "inputs": {"text": "blurry", "clip": ["4", 1]}},
  "3": {"operation_type": "KSampler", "inputs": {"seed": 0, "steps": 20, "model": ["4", 0], "positive": ["1", 0], "negative": ["2", 0], "latent_image": ["5", 0]}},
  "4": {"operation_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "model.safetensors"}},
  "5": {"operation_type": "EmptyLatentImage", "inputs": {"width": 512, "height": 512, "batch_size": 1}},
  "6": {"operation_type": "VAEDecode", "inputs": {"samples": ["3", 0], "vae": ["4", 2]}},
  "7": {"operation_type": "SaveImage", "inputs": {"images": ["6", 0]}}
}`

const referenceTemplate = `{
  "1": {"operation_type": "CLIPTextEncode", "title": "Positive Prompt", "inputs": {"text": ""}},
  "10": {"operation_type": "LoadImage", "title": "Load image one", "inputs": {"image": "placeholder.png"}},
  "11": {"operation_type": "LoadImage", "title": "Load image two", "inputs": {"image": "placeholder.png"}},
  "12": {"operation_type": "ImageStitch", "inputs": {"image1": ["10", 0], "image2": ["11", 0]}},
  "13": {"operation_type": "RandomNoise", "inputs": {"noise_seed": 0}},
  "20": {"operation_type": "SaveImage", "inputs": {"images": ["12", 0]}}
}`

type fakeTemplates struct {
	mu        sync.Mutex
	graphs    map[string]*workflow.Graph
	requested []string
}

func newFakeTemplates(t *testing.T, templates map[string]string) *fakeTemplates {
	t.Helper()
	f := &fakeTemplates{graphs: make(map[string]*workflow.Graph)}
	for name, body := range templates {
		g, err := workflow.Parse([]byte(body))
		require.NoError(t, err)
		f.graphs[name] = g
	}
	return f
}

func (f *fakeTemplates) Load(_ context.Context, name string) (*workflow.Graph, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, name)
	g, ok := f.graphs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrNotFound, name)
	}
	return g.Clone(), nil
}

type fakeStream struct {
	events chan backend.Event
	once   sync.Once
}

func (s *fakeStream) Events() <-chan backend.Event { return s.events }

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.events) })
	return nil
}

// fakeBackend runs jobs instantly unless await says otherwise. Jobs are
// numbered from 1 in submission order.
type fakeBackend struct {
	mu           sync.Mutex
	submitted    []*workflow.Graph
	streams      []*fakeStream
	interrupts   int
	interruptErr error
	fetched      []backend.ImageRef

	// await overrides the result of job n.
	await func(ctx context.Context, n int) (*backend.JobResult, error)
}

func (f *fakeBackend) Connect(context.Context) (backend.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeStream{events: make(chan backend.Event)}
	f.streams = append(f.streams, s)
	return s, nil
}

func (f *fakeBackend) Submit(_ context.Context, g *workflow.Graph) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, g.Clone())
	return fmt.Sprintf("job-%d", len(f.submitted)), nil
}

func (f *fakeBackend) AwaitCompletion(ctx context.Context, _ backend.Stream, jobID string) (*backend.JobResult, error) {
	var n int
	if _, err := fmt.Sscanf(jobID, "job-%d", &n); err != nil {
		return nil, err
	}
	if f.await != nil {
		if res, err := f.await(ctx, n); res != nil || err != nil {
			return res, err
		}
	}
	return imageResult(jobID, "7"), nil
}

func (f *fakeBackend) Interrupt(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.interrupts++
	return f.interruptErr
}

func (f *fakeBackend) FetchArtifact(_ context.Context, ref backend.ImageRef) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, ref)
	if ref.Filename == "" {
		return nil, errors.New("no filename")
	}
	return []byte("png:" + ref.Filename), nil
}

func (f *fakeBackend) submittedGraphs() []*workflow.Graph {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*workflow.Graph(nil), f.submitted...)
}

func (f *fakeBackend) interruptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.interrupts
}

func imageResult(jobID string, nodes ...string) *backend.JobResult {
	res := &backend.JobResult{JobID: jobID, Outputs: map[string]backend.NodeOutput{}}
	for _, node := range nodes {
		res.Outputs[node] = backend.NodeOutput{Images: []backend.ImageRef{{Filename: jobID + "_" + node + ".png", Type: "output"}}}
	}
	return res
}

// sequentialSeeds returns 101, 102, ...
func sequentialSeeds() func() int64 {
	var mu sync.Mutex
	next := int64(100)
	return func() int64 {
		mu.Lock()
		defer mu.Unlock()
		next++
		return next
	}
}

func newTestManager(t *testing.T, templates *fakeTemplates, b *fakeBackend, mutate func(*Options)) *Manager {
	t.Helper()
	opts := Options{
		Templates: templates,
		Backend:   b,
		Seeds:     sequentialSeeds(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	m, err := NewManager(context.Background(), opts)
	require.NoError(t, err)
	return m
}

func inputString(t *testing.T, g *workflow.Graph, node, input string) string {
	t.Helper()
	n, ok := g.Node(node)
	require.True(t, ok, "node %s missing", node)
	v, ok := n.Input(input)
	require.True(t, ok, "input %s.%s missing", node, input)
	s, ok := v.AsString()
	require.True(t, ok, "input %s.%s is not a string", node, input)
	return s
}

func inputInt(t *testing.T, g *workflow.Graph, node, input string) int64 {
	t.Helper()
	n, ok := g.Node(node)
	require.True(t, ok, "node %s missing", node)
	v, ok := n.Input(input)
	require.True(t, ok, "input %s.%s missing", node, input)
	i, ok := v.AsInt()
	require.True(t, ok, "input %s.%s is not an int", node, input)
	return i
}
