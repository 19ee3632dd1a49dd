package orchestrator

import (
	"fmt"
	"strings"

	"github.com/vk/genflow/internal/workflow"
)

// Params are the graph parameters shared by every item of a batch.
type Params struct {
	// Width and Height override the template's latent size; zero keeps it.
	Width  int
	Height int
	// NegativePrompt is injected into negative text encoders when set.
	NegativePrompt string
}

// BatchRequest describes a batch of images to generate from one template.
type BatchRequest struct {
	// Workflow names the template; empty selects the loader's default.
	Workflow string
	Prompts  []string
	// OutputDirs, when set, holds one artifact directory per prompt.
	OutputDirs []string
	// References, when set, holds one reference image set per prompt.
	References []workflow.ReferenceImageSet
	Params     Params
}

// Validate checks that per-item slices line up with the prompts.
func (r BatchRequest) Validate() error {
	if len(r.Prompts) == 0 {
		return &ValidationError{Field: "prompts", Msg: "at least one prompt is required"}
	}
	for i, p := range r.Prompts {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Field: "prompts", Msg: fmt.Sprintf("prompt %d is empty", i+1)}
		}
	}
	if len(r.OutputDirs) > 0 && len(r.OutputDirs) != len(r.Prompts) {
		return &ValidationError{
			Field: "output_dirs",
			Msg:   fmt.Sprintf("got %d directories for %d prompts", len(r.OutputDirs), len(r.Prompts)),
		}
	}
	if len(r.References) > 0 && len(r.References) != len(r.Prompts) {
		return &ValidationError{
			Field: "references",
			Msg:   fmt.Sprintf("got %d reference sets for %d prompts", len(r.References), len(r.Prompts)),
		}
	}
	if r.Params.Width < 0 || r.Params.Height < 0 {
		return &ValidationError{Field: "params", Msg: "dimensions must not be negative"}
	}
	return nil
}

// hasReferences reports whether any item carries a reference image.
func (r BatchRequest) hasReferences() bool {
	for _, ref := range r.References {
		if !ref.Empty() {
			return true
		}
	}
	return false
}

func (r BatchRequest) outputDir(i int) string {
	if i < len(r.OutputDirs) {
		return r.OutputDirs[i]
	}
	return ""
}
