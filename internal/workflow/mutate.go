package workflow

import "strings"

// Input names written by the mutators.
const (
	inputText      = "text"
	inputClipL     = "clip_l"
	inputT5XXL     = "t5xxl"
	inputNoiseSeed = "noise_seed"
	inputSeed      = "seed"
	inputWidth     = "width"
	inputHeight    = "height"
	inputImage     = "image"
	negativeMarker = "negative"
	referenceSlots = 3
)

// referenceRoles maps a loader-title marker to a slot of ReferenceImageSet.
// Order matters: a title may carry more than one marker.
var referenceRoles = []struct {
	marker string
	slot   int
}{
	{"one", 0},
	{"two", 1},
	{"three", 2},
}

func isNegative(n *Node) bool {
	return strings.Contains(strings.ToLower(n.Title), negativeMarker)
}

// SetText writes prompt into every text encoder, except encoders titled as
// negative conditioning, which receive negative only when it is non-empty so
// the template's own negative text survives. It returns the number of nodes
// updated.
func SetText(g *Graph, prompt, negative string) int {
	updated := 0
	for _, n := range g.Nodes() {
		var fields []string
		switch n.Kind() {
		case KindTextEncode:
			fields = []string{inputText}
		case KindTextEncodeFlux:
			fields = []string{inputClipL, inputT5XXL}
		default:
			continue
		}

		text := prompt
		if isNegative(n) {
			if negative == "" {
				continue
			}
			text = negative
		}
		for _, field := range fields {
			n.Set(field, String(text))
		}
		updated++
	}
	return updated
}

// SetSeed injects seed into the first random-noise or sampler node. A graph
// is assumed to have one canonical seed source; later candidates are left
// alone. It reports whether a seed node was found.
func SetSeed(g *Graph, seed int64) bool {
	for _, n := range g.Nodes() {
		switch n.Kind() {
		case KindRandomNoise:
			n.Set(inputNoiseSeed, Int(seed))
			return true
		case KindSampler:
			n.Set(inputSeed, Int(seed))
			return true
		}
	}
	return false
}

// SetDimensions updates the size of every latent-image node. Zero values keep
// the template's value. It returns the number of nodes updated.
func SetDimensions(g *Graph, width, height int) int {
	if width <= 0 && height <= 0 {
		return 0
	}
	updated := 0
	for _, n := range g.Nodes() {
		if n.Kind() != KindEmptyLatent {
			continue
		}
		if width > 0 {
			n.Set(inputWidth, Int(int64(width)))
		}
		if height > 0 {
			n.Set(inputHeight, Int(int64(height)))
		}
		updated++
	}
	return updated
}

// ReferenceImageSet holds the optional reference images of one batch item.
// An empty path means there is no image for that role.
type ReferenceImageSet struct {
	Primary    string
	Secondary  string
	Background string
}

// Empty reports whether no reference image is set.
func (r ReferenceImageSet) Empty() bool {
	return r.Primary == "" && r.Secondary == "" && r.Background == ""
}

// Normalize promotes the background into the secondary slot when only the
// background is set, so that a two-image template can serve both cases.
func (r ReferenceImageSet) Normalize() ReferenceImageSet {
	if r.Secondary == "" && r.Background != "" {
		return ReferenceImageSet{Primary: r.Primary, Secondary: r.Background}
	}
	return r
}

// Paths returns the slots in loader-role order.
func (r ReferenceImageSet) Paths() [referenceSlots]string {
	return [referenceSlots]string{r.Primary, r.Secondary, r.Background}
}

// WireReferenceImages points every image loader at the reference image its
// title selects and deletes the loaders whose image is missing, together with
// everything that cannot run without them. It returns the ids that were
// removed.
func WireReferenceImages(g *Graph, refs ReferenceImageSet) []string {
	paths := refs.Normalize().Paths()

	var doomed []string
	for _, n := range g.Nodes() {
		if n.Kind() != KindImageLoader {
			continue
		}
		title := strings.ToLower(n.Title)
		for _, role := range referenceRoles {
			if !strings.Contains(title, role.marker) {
				continue
			}
			if role.slot < len(paths) && paths[role.slot] != "" {
				n.Set(inputImage, String(paths[role.slot]))
			} else {
				doomed = append(doomed, n.ID)
			}
		}
	}

	if len(doomed) == 0 {
		return nil
	}
	return DeleteNodes(g, doomed...)
}
