// Package artifact stores the images a job produces.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/genflow/internal/ctxlog"
)

// DefaultName is used when an Artifact carries no name.
const DefaultName = "image.png"

// Artifact is one output file destined for an item directory.
type Artifact struct {
	Dir  string
	Name string
	Data []byte
}

func (a Artifact) name() string {
	if a.Name == "" {
		return DefaultName
	}
	return a.Name
}

// Sink persists artifacts and reports where they ended up.
type Sink interface {
	Save(ctx context.Context, a Artifact) (string, error)
}

// FileSink writes artifacts to the local filesystem.
type FileSink struct{}

// Save writes a.Data to <Dir>/<Name>, creating Dir when needed.
func (FileSink) Save(ctx context.Context, a Artifact) (string, error) {
	if a.Dir == "" {
		return "", errors.New("artifact has no target directory")
	}
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory '%s': %w", a.Dir, err)
	}
	path := filepath.Join(a.Dir, a.name())
	if err := os.WriteFile(path, a.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact '%s': %w", path, err)
	}
	ctxlog.FromContext(ctx).Debug("Artifact written.", "path", path, "size", len(a.Data))
	return path, nil
}

// Multi saves every artifact to all of its sinks.
type Multi []Sink

// Save returns the location reported by the first sink that succeeded, and
// every failure joined.
func (m Multi) Save(ctx context.Context, a Artifact) (string, error) {
	var (
		location string
		errs     []error
	)
	for _, s := range m {
		loc, err := s.Save(ctx, a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if location == "" {
			location = loc
		}
	}
	return location, errors.Join(errs...)
}
