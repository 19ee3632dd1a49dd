package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/genflow/internal/app"
)

// HarnessResult holds the outcomes of an application run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	// Root is the temporary directory the run's files were written to.
	Root string
}

// ServiceConfig returns an HCL configuration pointing at svc, with templates
// under <root>/workflow and projects under <root>/projects.
func ServiceConfig(svc *FakeService, extra string) string {
	return fmt.Sprintf(`
backend {
  url                = %q
  connect_timeout    = "2s"
  completion_timeout = "5s"
  settle_delay       = "1ms"
}

workflows {
  dir       = "workflow"
  default   = "default_workflow.json"
  reference = "reference.json"
}

storage {
  projects_path = "projects"
}
%s`, svc.URL, extra)
}

// RunApp writes files under a temporary root, points cfg at the root's
// genflow.hcl and runs the application to completion.
func RunApp(ctx context.Context, t *testing.T, files map[string]string, cfg app.Config) *HarnessResult {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg.ConfigPaths = []string{filepath.Join(root, "genflow.hcl")}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	logBuffer := &SafeBuffer{}
	result := &HarnessResult{Root: root}

	appConfig, err := app.NewConfig(cfg)
	if err != nil {
		result.Err = err
		return result
	}
	testApp, err := app.NewApp(logBuffer, appConfig)
	if err != nil {
		result.Err = err
		result.LogOutput = logBuffer.String()
		return result
	}
	t.Cleanup(func() { testApp.Close() })

	result.App = testApp
	result.Err = testApp.Run(ctx)
	result.LogOutput = logBuffer.String()

	if os.Getenv("GENFLOW_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), result.LogOutput)
	}
	return result
}
