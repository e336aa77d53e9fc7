package ocimanifest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/warehouse-labs/registry"
)

// Platform identifies a manifest index entry's target platform.
type Platform struct {
	OS           string
	Architecture string
	Variant      string
}

// defaultPlatform is used when the client sends no platform header,
// matching the original service's linux/amd64 default.
var defaultPlatform = Platform{OS: "linux", Architecture: "amd64"}

// PlatformHeaderNames are the request headers checked, in order, for
// a client-specified platform. A Docker daemon populates
// "Docker-Platform"; older clients and curl-based tooling use
// "X-Docker-Platform".
var PlatformHeaderNames = []string{"Docker-Platform", "X-Docker-Platform"}

// ParsePlatform parses a "<os>/<architecture>[/<variant>]" header
// value. It returns false if value doesn't have that shape.
func ParsePlatform(value string) (Platform, bool) {
	parts := strings.Split(value, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Platform{}, false
	}
	os := strings.TrimSpace(parts[0])
	arch := strings.TrimSpace(parts[1])
	if os == "" || arch == "" {
		return Platform{}, false
	}
	p := Platform{OS: os, Architecture: arch}
	if len(parts) == 3 {
		p.Variant = strings.TrimSpace(parts[2])
	}
	return p, true
}

// PlatformFromHeader returns the platform named by whichever of
// PlatformHeaderNames is set and parses successfully in h, or
// defaultPlatform if none is.
func PlatformFromHeader(h http.Header) Platform {
	for _, name := range PlatformHeaderNames {
		if v := h.Get(name); v != "" {
			if p, ok := ParsePlatform(v); ok {
				return p
			}
		}
	}
	return defaultPlatform
}

func (p Platform) matches(d indexDescriptor) bool {
	if d.Platform == nil {
		return false
	}
	if d.Platform.OS != p.OS || d.Platform.Architecture != p.Architecture {
		return false
	}
	if p.Variant == "" {
		return true
	}
	return d.Platform.Variant == p.Variant
}

type indexDescriptor struct {
	Digest    string         `json:"digest"`
	MediaType string         `json:"mediaType"`
	Platform  *indexPlatform `json:"platform"`
}

type indexPlatform struct {
	OS           string `json:"os"`
	Architecture string `json:"architecture"`
	Variant      string `json:"variant"`
}

type manifestIndexProbe struct {
	Manifests []indexDescriptor `json:"manifests"`
}

// Resolved is the result of Negotiate: the bytes to serve, their media
// type, and the digest to report in Docker-Content-Digest (which, for
// an index resolved down to a single image manifest, is the digest of
// that image manifest, not the index's).
type Resolved struct {
	Data      []byte
	MediaType string
	Digest    ociregistry.Digest
}

// Negotiate chooses what to serve for a GET on a stored manifest,
// following the resolution order used by the original manifest-get
// handler: if the stored content is an index and the client's Accept
// header asks for one, return it unmodified; if the stored content is
// an index and the client didn't ask for one, resolve to the single
// image manifest matching the client's platform; otherwise negotiate
// the stored media type itself against Accept, including the
// Docker/OCI equivalence classes.
//
// lookupManifest is called to load a referenced image manifest's
// bytes and media type when resolving a platform-specific entry out
// of an index; it's expected to wrap ocifs/ocimem's GetManifest.
func Negotiate(
	storedData []byte,
	storedMediaType string,
	storedDigest ociregistry.Digest,
	accept string,
	platform Platform,
	lookupManifest func(dig ociregistry.Digest) ([]byte, string, error),
) (Resolved, error) {
	if isIndexMediaType(storedMediaType) && !acceptRequestsIndex(accept) {
		var idx manifestIndexProbe
		if err := json.Unmarshal(storedData, &idx); err != nil {
			return Resolved{}, fmt.Errorf("cannot parse manifest index: %v", err)
		}
		var chosen *indexDescriptor
		for i := range idx.Manifests {
			if platform.matches(idx.Manifests[i]) {
				chosen = &idx.Manifests[i]
				break
			}
		}
		if chosen == nil {
			return Resolved{}, fmt.Errorf("%w: no manifest found for requested platform", ociregistry.ErrManifestUnknown)
		}
		dig := ociregistry.Digest(chosen.Digest)
		if err := dig.Validate(); err != nil {
			return Resolved{}, fmt.Errorf("%w: invalid digest %q in manifest index", ociregistry.ErrManifestInvalid, chosen.Digest)
		}
		data, mt, err := lookupManifest(dig)
		if err != nil {
			return Resolved{}, err
		}
		return Resolved{Data: data, MediaType: mt, Digest: dig}, nil
	}

	chosen, ok := negotiateMediaType(accept, []string{storedMediaType})
	if !ok {
		return Resolved{}, fmt.Errorf("%w: requested media type is not supported", ociregistry.ErrUnsupported)
	}
	return Resolved{
		Data:      storedData,
		MediaType: chosen,
		Digest:    storedDigest,
	}, nil
}
