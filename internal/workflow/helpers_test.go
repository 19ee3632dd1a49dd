package workflow

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// kontextTemplate is a multi-reference-image template in the backend editor's
// export format (class_type and _meta.title).
const kontextTemplate = `{
  "1":  {"class_type": "UNETLoader", "inputs": {"unet_name": "flux1-kontext.safetensors"}},
  "2":  {"class_type": "DualCLIPLoader", "inputs": {"clip_name1": "clip_l.safetensors"}},
  "3":  {"class_type": "VAELoader", "inputs": {"vae_name": "ae.safetensors"}},
  "10": {"class_type": "JDC_ImageLoader", "_meta": {"title": "Image One"}, "inputs": {"image": "placeholder.png"}},
  "11": {"class_type": "JDC_ImageLoader", "_meta": {"title": "Image Two"}, "inputs": {"image": "placeholder.png"}},
  "12": {"class_type": "JDC_ImageLoader", "_meta": {"title": "Image Three"}, "inputs": {"image": "placeholder.png"}},
  "20": {"class_type": "ImageStitch", "inputs": {"image1": ["10", 0], "image2": ["11", 0], "direction": "right"}},
  "21": {"class_type": "ImageStitch", "inputs": {"image1": ["20", 0], "image2": ["12", 0], "direction": "down"}},
  "22": {"class_type": "FluxKontextImageScale", "inputs": {"image": ["21", 0]}},
  "23": {"class_type": "VAEEncode", "inputs": {"pixels": ["22", 0], "vae": ["3", 0]}},
  "30": {"class_type": "CLIPTextEncode", "_meta": {"title": "Positive Prompt"}, "inputs": {"clip": ["2", 0], "text": ""}},
  "31": {"class_type": "ReferenceLatent", "inputs": {"conditioning": ["30", 0], "latent": ["23", 0]}},
  "32": {"class_type": "FluxGuidance", "inputs": {"conditioning": ["31", 0], "guidance": 2.5}},
  "33": {"class_type": "ConditioningZeroOut", "_meta": {"title": "Negative"}, "inputs": {"conditioning": ["30", 0]}},
  "40": {"class_type": "EmptyLatentImage", "inputs": {"width": 512, "height": 768, "batch_size": 1}},
  "50": {"class_type": "KSampler", "inputs": {"model": ["1", 0], "positive": ["32", 0], "negative": ["33", 0], "latent_image": ["40", 0], "seed": 0, "steps": 20}},
  "60": {"class_type": "VAEDecode", "inputs": {"samples": ["50", 0], "vae": ["3", 0]}},
  "70": {"class_type": "SaveImage", "inputs": {"images": ["60", 0], "filename_prefix": "genflow"}}
}`

func mustParse(t *testing.T, doc string) *Graph {
	t.Helper()
	g, err := Parse([]byte(doc))
	require.NoError(t, err)
	return g
}

func mustNode(t *testing.T, g *Graph, id string) *Node {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok, "node %s missing", id)
	return n
}

func inputString(t *testing.T, g *Graph, id, input string) string {
	t.Helper()
	v, ok := mustNode(t, g, id).Input(input)
	require.True(t, ok, "input %s.%s missing", id, input)
	s, ok := v.AsString()
	require.True(t, ok, "input %s.%s is not a string: %s", id, input, v)
	return s
}

func inputInt(t *testing.T, g *Graph, id, input string) int64 {
	t.Helper()
	v, ok := mustNode(t, g, id).Input(input)
	require.True(t, ok, "input %s.%s missing", id, input)
	n, ok := v.AsInt()
	require.True(t, ok, "input %s.%s is not an integer: %s", id, input, v)
	return n
}

func inputRef(t *testing.T, g *Graph, id, input string) Reference {
	t.Helper()
	v, ok := mustNode(t, g, id).Input(input)
	require.True(t, ok, "input %s.%s missing", id, input)
	ref, ok := v.Reference()
	require.True(t, ok, "input %s.%s is not a reference: %s", id, input, v)
	return ref
}

// graphDiff compares graphs structurally; InputValue is compared with its
// Equal method.
func graphDiff(want, got *Graph) string {
	return cmp.Diff(want, got, cmp.AllowUnexported(Graph{}))
}
