// Package contentstore maps project content (items, characters, scenes) to
// filesystem locations.
package contentstore

import (
	"path/filepath"

	"github.com/vk/genflow/internal/workflow"
)

// Resolver locates item output directories and reference images.
type Resolver interface {
	ItemDir(project, chapter, item string) string
	CharacterImage(project, name string) string
	SceneImage(project, name string) string
}

const (
	characterDir   = "Character"
	sceneDir       = "Scene"
	referenceImage = "image.png"
)

// FS resolves content under a projects root directory.
type FS struct {
	Root string
}

var _ Resolver = FS{}

// ItemDir returns <root>/<project>/<chapter>/<item>. Empty chapter segments
// are skipped.
func (fs FS) ItemDir(project, chapter, item string) string {
	if project == "" || item == "" {
		return ""
	}
	return filepath.Join(fs.Root, project, chapter, item)
}

// CharacterImage returns the reference image of a named character.
func (fs FS) CharacterImage(project, name string) string {
	return fs.image(project, characterDir, name)
}

// SceneImage returns the reference image of a named scene.
func (fs FS) SceneImage(project, name string) string {
	return fs.image(project, sceneDir, name)
}

func (fs FS) image(project, kind, name string) string {
	if project == "" || name == "" {
		return ""
	}
	return filepath.Join(fs.Root, project, kind, name, referenceImage)
}

// References builds the reference image set for one item from character and
// scene names. Any name may be empty.
func References(r Resolver, project, char1, char2, scene string) workflow.ReferenceImageSet {
	return workflow.ReferenceImageSet{
		Primary:    r.CharacterImage(project, char1),
		Secondary:  r.CharacterImage(project, char2),
		Background: r.SceneImage(project, scene),
	}
}
