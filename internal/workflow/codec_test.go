package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EditorExportFormat(t *testing.T) {
	g := mustParse(t, kontextTemplate)

	assert.Equal(t, 18, g.Len())
	loader := mustNode(t, g, "11")
	assert.Equal(t, "JDC_ImageLoader", loader.Type)
	assert.Equal(t, "Image Two", loader.Title)
	assert.Equal(t, KindImageLoader, loader.Kind())

	assert.Equal(t, Reference{Node: "10", Slot: 0}, inputRef(t, g, "20", "image1"))
	assert.Equal(t, "right", inputString(t, g, "20", "direction"))
	assert.Equal(t, int64(768), inputInt(t, g, "40", "height"))
	assert.Empty(t, g.DanglingReferences())
}

func TestParse_TemplateFormat(t *testing.T) {
	g := mustParse(t, `{
		"a": {"operation_type": "CLIPTextEncode", "title": "negative", "inputs": {"text": "blurry", "clip": [7, 1]}},
		"7": {"operation_type": "CheckpointLoader", "inputs": {"weights": [1, 2, 3], "fp16": true, "extra": null}}
	}`)

	a := mustNode(t, g, "a")
	assert.Equal(t, "negative", a.Title)
	assert.Equal(t, Reference{Node: "7", Slot: 1}, inputRef(t, g, "a", "clip"))

	weights, ok := mustNode(t, g, "7").Input("weights")
	require.True(t, ok)
	assert.False(t, weights.IsRef(), "a three-element array is a literal")

	extra, ok := mustNode(t, g, "7").Input("extra")
	require.True(t, ok)
	assert.True(t, extra.Literal().IsNull())
	assert.Equal(t, []string{"7", "a"}, g.IDs())
}

func TestParse_RejectsNonGraphDocuments(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{name: "array", doc: `[1, 2]`},
		{name: "string", doc: `"graph"`},
		{name: "null", doc: `null`},
		{name: "node is not an object", doc: `{"1": 5}`},
		{name: "malformed", doc: `{"1": {`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidGraph)
		})
	}
}

func TestGraph_MarshalUsesTemplateFormat(t *testing.T) {
	g := New(
		NewNode("1", "CLIPTextEncode", "Positive").Set("text", String("a cat")).Set("clip", Ref("2", 0)),
		NewNode("2", "DualCLIPLoader", "").Set("strength", Int(3)),
	)

	data, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"1": {"operation_type": "CLIPTextEncode", "title": "Positive", "inputs": {"text": "a cat", "clip": ["2", 0]}},
		"2": {"operation_type": "DualCLIPLoader", "inputs": {"strength": 3}}
	}`, string(data))

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Empty(t, graphDiff(g, back))
}

func TestGraph_CloneIsIndependent(t *testing.T) {
	template := mustParse(t, kontextTemplate)
	clone := template.Clone()

	SetText(clone, "a lighthouse", "")
	DeleteNodes(clone, "10")

	assert.Equal(t, "", inputString(t, template, "30", "text"))
	_, ok := template.Node("10")
	assert.True(t, ok, "deleting from a clone must not touch the template")
	assert.NotEmpty(t, graphDiff(template, clone))
}

func TestGraph_Validate(t *testing.T) {
	g := New(NewNode("1", "VAEDecode", "").Set("samples", Ref("9", 0)))

	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDanglingReference)
	assert.Equal(t, []Dangling{{Node: "1", Input: "samples", Target: Reference{Node: "9"}}}, g.DanglingReferences())
}
