package config

import (
	"time"

	"github.com/vk/genflow/internal/backend"
)

// Defaults used for settings absent from every configuration file.
const (
	DefaultBackendURL        = "http://127.0.0.1:8188"
	DefaultWorkflowDir       = "workflow"
	DefaultWorkflow          = "default_workflow.json"
	DefaultReferenceWorkflow = "flux-kontext-multi-images.json"
	DefaultProjectsPath      = "projects"
)

// Config is the assembled service configuration.
type Config struct {
	Backend   Backend
	Workflows Workflows
	Storage   Storage
	Styles    StyleCatalog
}

// Backend configures the job-execution service client.
type Backend struct {
	URL                string
	Transport          backend.Transport
	ConnectTimeout     time.Duration
	CompletionTimeout  time.Duration
	SettleDelay        time.Duration
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
}

// ClientConfig converts the block into a backend client configuration.
func (b Backend) ClientConfig() backend.Config {
	return backend.Config{
		BaseURL:            b.URL,
		Transport:          b.Transport,
		ConnectTimeout:     b.ConnectTimeout,
		CompletionTimeout:  b.CompletionTimeout,
		SettleDelay:        b.SettleDelay,
		RequestTimeout:     b.RequestTimeout,
		InsecureSkipVerify: b.InsecureSkipVerify,
	}
}

// Workflows locates the graph templates.
type Workflows struct {
	Dir     string
	Default string
	// Reference is the template used instead of the requested one when a
	// batch carries reference images and ReferenceImageMode is on.
	Reference          string
	ReferenceImageMode bool
}

// Storage locates project content and, optionally, an upload target.
type Storage struct {
	ProjectsPath string
	UploadURL    string
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Backend: Backend{
			URL:               DefaultBackendURL,
			Transport:         backend.TransportWebSocket,
			ConnectTimeout:    backend.DefaultConnectTimeout,
			CompletionTimeout: backend.DefaultCompletionTimeout,
			SettleDelay:       backend.DefaultSettleDelay,
			RequestTimeout:    backend.DefaultRequestTimeout,
		},
		Workflows: Workflows{
			Dir:                DefaultWorkflowDir,
			Default:            DefaultWorkflow,
			Reference:          DefaultReferenceWorkflow,
			ReferenceImageMode: true,
		},
		Storage: Storage{
			ProjectsPath: DefaultProjectsPath,
		},
		Styles: StyleCatalog{},
	}
}
