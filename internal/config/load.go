package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/vk/genflow/internal/backend"
	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/fsutil"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes the top-level blocks of one configuration file.
type fileRoot struct {
	Backend   *backendBlock   `hcl:"backend,block"`
	Workflows *workflowsBlock `hcl:"workflows,block"`
	Storage   *storageBlock   `hcl:"storage,block"`
	Styles    []*styleBlock   `hcl:"style,block"`
	Remain    hcl.Body        `hcl:",remain"`
}

type backendBlock struct {
	URL                string `hcl:"url,optional"`
	Transport          string `hcl:"transport,optional"`
	ConnectTimeout     string `hcl:"connect_timeout,optional"`
	CompletionTimeout  string `hcl:"completion_timeout,optional"`
	SettleDelay        string `hcl:"settle_delay,optional"`
	RequestTimeout     string `hcl:"request_timeout,optional"`
	InsecureSkipVerify bool   `hcl:"insecure_skip_verify,optional"`
}

type workflowsBlock struct {
	Dir       string `hcl:"dir,optional"`
	Default   string `hcl:"default,optional"`
	Reference string `hcl:"reference,optional"`
	// An expression so that an absent attribute can be told from false.
	ReferenceImageMode hcl.Expression `hcl:"reference_image_mode,optional"`
}

type storageBlock struct {
	ProjectsPath string `hcl:"projects_path,optional"`
	UploadURL    string `hcl:"upload_url,optional"`
}

type styleBlock struct {
	Name           string         `hcl:"name,label"`
	Prompt         hcl.Expression `hcl:"prompt"`
	NegativePrompt string         `hcl:"negative_prompt,optional"`
}

// envContext exposes the process environment to configuration files as the
// `env` object, e.g. `url = env.GENFLOW_BACKEND_URL`.
func envContext() *hcl.EvalContext {
	vars := make(map[string]cty.Value)
	for _, e := range os.Environ() {
		name, value, ok := strings.Cut(e, "=")
		if ok && hclsyntax.ValidIdentifier(name) {
			vars[name] = cty.StringVal(value)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(vars)},
	}
}

// Load reads every .hcl file found under paths, in order, on top of the
// defaults. Paths that do not exist are skipped.
func Load(ctx context.Context, paths ...string) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	cfg := Default()

	var files []string
	for _, p := range paths {
		found, err := fsutil.FindFilesByExtension(p, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("error accessing config path %s: %w", p, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		logger.Warn("No configuration files found, using defaults.", "paths", paths)
		return cfg, nil
	}

	parser := hclparse.NewParser()
	evalCtx := envContext()
	for _, file := range files {
		logger.Debug("Loading configuration file.", "path", file)
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}
		if err := cfg.merge(evalCtx, filepath.Dir(file), &root); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("Configuration loaded.", "files", len(files), "styles", len(cfg.Styles), "backend", cfg.Backend.URL)
	return cfg, nil
}

func (c *Config) merge(evalCtx *hcl.EvalContext, baseDir string, root *fileRoot) error {
	if b := root.Backend; b != nil {
		if err := c.mergeBackend(b); err != nil {
			return err
		}
	}

	if w := root.Workflows; w != nil {
		if w.Dir != "" {
			c.Workflows.Dir = resolvePath(baseDir, w.Dir)
		}
		setString(&c.Workflows.Default, w.Default)
		setString(&c.Workflows.Reference, w.Reference)
		if w.ReferenceImageMode != nil {
			v, diags := w.ReferenceImageMode.Value(evalCtx)
			if diags.HasErrors() {
				return fmt.Errorf("invalid reference_image_mode: %w", diags)
			}
			if !v.IsNull() {
				if !v.Type().Equals(cty.Bool) {
					return fmt.Errorf("%w: reference_image_mode must be a bool", ErrInvalidConfig)
				}
				c.Workflows.ReferenceImageMode = v.True()
			}
		}
	}

	if s := root.Storage; s != nil {
		if s.ProjectsPath != "" {
			c.Storage.ProjectsPath = resolvePath(baseDir, s.ProjectsPath)
		}
		setString(&c.Storage.UploadURL, s.UploadURL)
	}

	for _, s := range root.Styles {
		if _, exists := c.Styles[s.Name]; exists {
			return fmt.Errorf("%w: style %q is declared more than once", ErrInvalidConfig, s.Name)
		}
		c.Styles[s.Name] = &Style{Name: s.Name, prompt: s.Prompt, NegativePrompt: s.NegativePrompt}
	}
	return nil
}

func (c *Config) mergeBackend(b *backendBlock) error {
	setString(&c.Backend.URL, b.URL)
	if b.Transport != "" {
		switch t := backend.Transport(b.Transport); t {
		case backend.TransportWebSocket, backend.TransportSocketIO:
			c.Backend.Transport = t
		default:
			return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, b.Transport)
		}
	}
	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", b.ConnectTimeout, &c.Backend.ConnectTimeout},
		{"completion_timeout", b.CompletionTimeout, &c.Backend.CompletionTimeout},
		{"settle_delay", b.SettleDelay, &c.Backend.SettleDelay},
		{"request_timeout", b.RequestTimeout, &c.Backend.RequestTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.dst = v
	}
	if b.InsecureSkipVerify {
		c.Backend.InsecureSkipVerify = true
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
