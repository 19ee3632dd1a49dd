package workflow

// Kind classifies the operation types the engine knows how to parameterize or
// prune. Operation types outside this set map to KindUnknown and are left
// untouched by every mutator.
type Kind int

const (
	KindUnknown Kind = iota
	KindTextEncode
	KindTextEncodeFlux
	KindRandomNoise
	KindSampler
	KindEmptyLatent
	KindImageLoader
	KindVAEDecode
	KindVAEEncode
	KindImageStitch
	KindReferenceLatent
	KindFluxGuidance
	KindConditioningZeroOut
	KindFluxKontextImageScale
	KindPreviewImage
	KindSaveImage
	kindCount
)

var kindNames = [kindCount]string{
	KindUnknown:               "unknown",
	KindTextEncode:            "text_encode",
	KindTextEncodeFlux:        "text_encode_flux",
	KindRandomNoise:           "random_noise",
	KindSampler:               "sampler",
	KindEmptyLatent:           "empty_latent",
	KindImageLoader:           "image_loader",
	KindVAEDecode:             "vae_decode",
	KindVAEEncode:             "vae_encode",
	KindImageStitch:           "image_stitch",
	KindReferenceLatent:       "reference_latent",
	KindFluxGuidance:          "flux_guidance",
	KindConditioningZeroOut:   "conditioning_zero_out",
	KindFluxKontextImageScale: "flux_kontext_image_scale",
	KindPreviewImage:          "preview_image",
	KindSaveImage:             "save_image",
}

func (k Kind) String() string {
	if k < 0 || k >= kindCount {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// operationKinds maps backend operation types onto kinds.
var operationKinds = map[string]Kind{
	"CLIPTextEncode":        KindTextEncode,
	"CLIPTextEncodeFlux":    KindTextEncodeFlux,
	"RandomNoise":           KindRandomNoise,
	"KSampler":              KindSampler,
	"EmptyLatentImage":      KindEmptyLatent,
	"JDC_ImageLoader":       KindImageLoader,
	"LoadImage":             KindImageLoader,
	"VAEDecode":             KindVAEDecode,
	"VAEEncode":             KindVAEEncode,
	"ImageStitch":           KindImageStitch,
	"ReferenceLatent":       KindReferenceLatent,
	"FluxGuidance":          KindFluxGuidance,
	"ConditioningZeroOut":   KindConditioningZeroOut,
	"FluxKontextImageScale": KindFluxKontextImageScale,
	"PreviewImage":          KindPreviewImage,
	"SaveImage":             KindSaveImage,
}

// KindOf classifies an operation type.
func KindOf(operationType string) Kind {
	if k, ok := operationKinds[operationType]; ok {
		return k
	}
	return KindUnknown
}

// requiredInputs lists, per kind, the inputs without which a node cannot run.
// Read-only after package initialization.
var requiredInputs = [kindCount][]string{
	KindSampler:               {"model", "positive", "negative", "latent_image"},
	KindVAEDecode:             {"samples", "vae"},
	KindVAEEncode:             {"pixels", "vae"},
	KindImageStitch:           {"image1"},
	KindReferenceLatent:       {"conditioning", "latent"},
	KindFluxGuidance:          {"conditioning"},
	KindConditioningZeroOut:   {"conditioning"},
	KindFluxKontextImageScale: {"image"},
	KindPreviewImage:          {"images"},
	KindSaveImage:             {"images"},
}

// RequiredInputs returns the names of the inputs the kind cannot run without.
// The returned slice must not be modified.
func (k Kind) RequiredInputs() []string {
	if k < 0 || k >= kindCount {
		return nil
	}
	return requiredInputs[k]
}

// Requires reports whether input is mandatory for nodes of this kind.
func (k Kind) Requires(input string) bool {
	for _, name := range k.RequiredInputs() {
		if name == input {
			return true
		}
	}
	return false
}
