package workflow

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/fsutil"
)

const templateExt = ".json"

// Loader resolves graph templates by name from a template directory.
type Loader struct {
	dir         string
	defaultName string
}

// NewLoader creates a loader for dir. defaultName is used when Load is called
// with an empty name.
func NewLoader(dir, defaultName string) *Loader {
	return &Loader{dir: dir, defaultName: defaultName}
}

// Dir returns the template directory.
func (l *Loader) Dir() string {
	return l.dir
}

// Load reads and parses the named template. The name is tried as a file in
// the template directory, then as a literal path, then in the template
// directory with the .json extension appended.
func (l *Loader) Load(ctx context.Context, name string) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	if name == "" {
		name = l.defaultName
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no template name given", ErrNotFound)
	}

	path, ok := l.resolve(ctx, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	logger.Debug("Loading workflow template.", "name", name, "path", path)

	g, err := readTemplate(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("Workflow template loaded.", "name", name, "nodes", g.Len())
	return g, nil
}

func readTemplate(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}
	return g, nil
}

func (l *Loader) resolve(ctx context.Context, name string) (string, bool) {
	logger := ctxlog.FromContext(ctx)
	candidates := []string{filepath.Join(l.dir, name), name}
	if !strings.HasSuffix(name, templateExt) {
		candidates = append(candidates, filepath.Join(l.dir, name+templateExt))
	}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true
		}
		logger.Debug("Workflow template candidate not found.", "path", candidate)
	}
	return "", false
}

// TemplateInfo describes a template file.
type TemplateInfo struct {
	Name     string
	Path     string
	Size     int64
	Modified time.Time
}

// NodeSummary is the per-node view returned by Describe.
type NodeSummary struct {
	Type   string
	Title  string
	Inputs map[string]InputValue
}

// TemplateDetail is a template together with a summary of its nodes.
type TemplateDetail struct {
	TemplateInfo
	Nodes map[string]NodeSummary
	Graph *Graph
}

// List returns the templates at the top level of the template directory
// sorted by name. Subdirectories are not searched.
func (l *Loader) List(ctx context.Context) ([]TemplateInfo, error) {
	paths, err := fsutil.ListFilesByExtension(l.dir, templateExt)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates in %s: %w", l.dir, err)
	}

	infos := make([]TemplateInfo, 0, len(paths))
	for _, path := range paths {
		info, err := l.stat(path)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Skipping unreadable template.", "path", path, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Describe loads the named template and summarizes its nodes.
func (l *Loader) Describe(ctx context.Context, name string) (*TemplateDetail, error) {
	if name == "" {
		name = l.defaultName
	}
	path, ok := l.resolve(ctx, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	info, err := l.stat(path)
	if err != nil {
		return nil, err
	}
	g, err := readTemplate(path)
	if err != nil {
		return nil, err
	}

	detail := &TemplateDetail{
		TemplateInfo: info,
		Nodes:        make(map[string]NodeSummary, g.Len()),
		Graph:        g,
	}
	for _, n := range g.Nodes() {
		detail.Nodes[n.ID] = NodeSummary{Type: n.Type, Title: n.Title, Inputs: n.clone().Inputs}
	}
	return detail, nil
}

func (l *Loader) stat(path string) (TemplateInfo, error) {
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TemplateInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return TemplateInfo{}, err
	}
	name := filepath.Base(path)
	if rel, err := filepath.Rel(l.dir, path); err == nil && !strings.HasPrefix(rel, "..") {
		name = filepath.ToSlash(rel)
	}
	return TemplateInfo{Name: name, Path: path, Size: st.Size(), Modified: st.ModTime()}, nil
}
