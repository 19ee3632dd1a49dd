package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/genflow/internal/artifact"
	"github.com/vk/genflow/internal/backend"
	"github.com/vk/genflow/internal/config"
	"github.com/vk/genflow/internal/contentstore"
	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/orchestrator"
	"github.com/vk/genflow/internal/workflow"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	service *config.Config

	ctx    context.Context
	cancel context.CancelFunc

	client     *backend.Client
	templates  *workflow.Loader
	content    contentstore.FS
	manager    *orchestrator.Manager
	httpServer *http.Server
}

// NewApp builds an App from cfg: it configures logging, loads the service
// configuration and creates the backend client and task manager.
func NewApp(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))
	logger.Debug("Logger configured successfully.")

	service, err := config.Load(ctx, cfg.ConfigPaths...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	client, err := backend.New(service.Backend.ClientConfig())
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	logger.Debug("Backend client created.", "url", service.Backend.URL, "transport", service.Backend.Transport, "session_id", client.SessionID())

	sink, err := newSink(service.Storage)
	if err != nil {
		cancel()
		client.Close()
		return nil, err
	}

	templates := workflow.NewLoader(service.Workflows.Dir, service.Workflows.Default)
	manager, err := orchestrator.NewManager(ctx, orchestrator.Options{
		Templates:         templates,
		Backend:           client,
		Sink:              sink,
		ReferenceImages:   service.Workflows.ReferenceImageMode,
		ReferenceWorkflow: service.Workflows.Reference,
	})
	if err != nil {
		cancel()
		client.Close()
		return nil, err
	}

	return &App{
		outW:      outW,
		logger:    logger,
		config:    cfg,
		service:   service,
		ctx:       ctx,
		cancel:    cancel,
		client:    client,
		templates: templates,
		content:   contentstore.FS{Root: service.Storage.ProjectsPath},
		manager:   manager,
	}, nil
}

// newSink stores artifacts on disk and, when an upload url is configured,
// in object storage as well.
func newSink(storage config.Storage) (artifact.Sink, error) {
	if storage.UploadURL == "" {
		return artifact.FileSink{}, nil
	}
	upload, err := artifact.NewUploadSink(storage.UploadURL, storage.ProjectsPath, nil)
	if err != nil {
		return nil, err
	}
	return artifact.Multi{artifact.FileSink{}, upload}, nil
}

// Manager returns the application's task manager. This is primarily for testing.
func (a *App) Manager() *orchestrator.Manager {
	return a.manager
}

// Close stops background workers and releases connections.
func (a *App) Close() error {
	healthErr := a.closeHealthCheckServer()
	a.cancel()
	return errors.Join(healthErr, a.client.Close())
}
