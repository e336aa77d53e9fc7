package ocifs

import (
	"encoding/json"
	"fmt"
)

// sniffManifestMediaType inspects data's JSON per spec.md §4.C: prefer
// an explicit "mediaType" field; otherwise infer from the presence of
// "manifests" (a list/index) or "config"+"layers" (a single-platform
// image), defaulting to the OCI media types since we have no other
// signal to prefer Docker's.
func sniffManifestMediaType(data []byte) (string, error) {
	var probe struct {
		MediaType string          `json:"mediaType"`
		Manifests json.RawMessage `json:"manifests"`
		Config    json.RawMessage `json:"config"`
		Layers    json.RawMessage `json:"layers"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("cannot parse manifest JSON: %v", err)
	}
	if probe.MediaType != "" {
		return probe.MediaType, nil
	}
	if probe.Manifests != nil {
		return mediaTypeOCIImageIndex, nil
	}
	if probe.Config != nil && probe.Layers != nil {
		return mediaTypeOCIImageManifest, nil
	}
	return "", fmt.Errorf("cannot determine manifest media type: no mediaType field and no recognizable shape")
}

const (
	mediaTypeOCIImageManifest = "application/vnd.oci.image.manifest.v1+json"
	mediaTypeOCIImageIndex    = "application/vnd.oci.image.index.v1+json"
)
