// Package config loads the service configuration from HCL files.
//
// A configuration is assembled from one or more .hcl files. Each file may
// carry a backend, workflows and storage block and any number of style
// blocks. Attributes set in a later file override those of earlier files,
// while styles accumulate and must be uniquely named. Relative paths are
// resolved against the directory of the file that declares them.
//
// Style prompts are HCL expressions evaluated with the user's prompt bound to
// the variable `prompt`:
//
//	style "sai-anime" {
//	  prompt          = "anime artwork, ${prompt}, vibrant"
//	  negative_prompt = "photo, deformed"
//	}
package config
