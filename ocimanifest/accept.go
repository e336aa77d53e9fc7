// Package ocimanifest implements Accept-header content negotiation and
// platform resolution for the manifest-get endpoint: choosing which
// media type to report for a stored manifest, and, when the stored
// manifest is an index and the client didn't ask for one, picking the
// single image manifest matching the client's platform.
//
// There's no equivalent of this in the teacher package: ociserver
// always returns the stored bytes and stored media type verbatim.
package ocimanifest

import (
	"strconv"
	"strings"
)

// Known manifest media types and their Docker/OCI equivalents, per the
// distillation of the service's original Rust manifest-negotiation
// code.
const (
	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	MediaTypeOCIManifest        = "application/vnd.oci.image.manifest.v1+json"
	MediaTypeOCIIndex           = "application/vnd.oci.image.index.v1+json"
)

// mediaRange is one comma-separated entry of an Accept header.
type mediaRange struct {
	value string
	q     float64
}

// parseAccept splits an Accept header into its media ranges, ordered
// by descending q-value. Unparsable q values default to 1.0, matching
// common server behavior of treating a malformed parameter as absent
// rather than rejecting the whole request.
func parseAccept(header string) []mediaRange {
	var ranges []mediaRange
	for _, part := range strings.Split(header, ",") {
		sections := strings.Split(strings.TrimSpace(part), ";")
		value := strings.ToLower(strings.TrimSpace(sections[0]))
		if value == "" {
			continue
		}
		q := 1.0
		for _, s := range sections[1:] {
			s = strings.TrimSpace(s)
			if v, ok := strings.CutPrefix(s, "q="); ok {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					q = f
				}
			}
		}
		ranges = append(ranges, mediaRange{value: value, q: q})
	}
	// Stable sort preserves the header's own ordering between equal
	// q-values, matching clients' expectation that earlier entries
	// are preferred.
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && ranges[j].q > ranges[j-1].q; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
	return ranges
}

// equivalentMediaTypes reports whether requested and candidate name
// the same manifest shape under Docker's and OCI's distinct media
// type vocabularies.
func equivalentMediaTypes(requested, candidate string) bool {
	switch {
	case requested == MediaTypeDockerManifest && candidate == MediaTypeOCIManifest,
		requested == MediaTypeOCIManifest && candidate == MediaTypeDockerManifest,
		requested == MediaTypeDockerManifestList && candidate == MediaTypeOCIIndex,
		requested == MediaTypeOCIIndex && candidate == MediaTypeDockerManifestList:
		return true
	}
	return false
}

func mediaMatch(rangeValue, candidate string) bool {
	if rangeValue == "*/*" {
		return true
	}
	if strings.EqualFold(rangeValue, candidate) {
		return true
	}
	if equivalentMediaTypes(rangeValue, candidate) {
		return true
	}
	if prefix, ok := strings.CutSuffix(rangeValue, "/*"); ok {
		return len(candidate) >= len(prefix) && strings.EqualFold(candidate[:len(prefix)], prefix)
	}
	return false
}

// negotiateMediaType returns the first of available that matches the
// highest-q range in accept. An empty accept header accepts the first
// available media type unconditionally, matching the behavior of a
// client that sent no Accept header at all.
func negotiateMediaType(accept string, available []string) (string, bool) {
	if accept == "" {
		if len(available) == 0 {
			return "", false
		}
		return available[0], true
	}
	for _, r := range parseAccept(accept) {
		for _, candidate := range available {
			if mediaMatch(r.value, candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func isIndexMediaType(mediaType string) bool {
	return mediaType == MediaTypeDockerManifestList || mediaType == MediaTypeOCIIndex
}

// acceptRequestsIndex reports whether accept names an index/manifest-list
// media type among its ranges.
func acceptRequestsIndex(accept string) bool {
	if accept == "" {
		return false
	}
	for _, r := range parseAccept(accept) {
		if mediaMatch(r.value, MediaTypeDockerManifestList) || mediaMatch(r.value, MediaTypeOCIIndex) {
			return true
		}
	}
	return false
}
