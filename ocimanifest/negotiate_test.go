package ocimanifest

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehouse-labs/registry"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    Platform
		wantOk  bool
	}{
		{name: "OSArch", value: "linux/amd64", want: Platform{OS: "linux", Architecture: "amd64"}, wantOk: true},
		{name: "WithVariant", value: "linux/arm/v7", want: Platform{OS: "linux", Architecture: "arm", Variant: "v7"}, wantOk: true},
		{name: "MissingArch", value: "linux", wantOk: false},
		{name: "TooManyParts", value: "linux/arm/v7/extra", wantOk: false},
		{name: "EmptyOS", value: "/amd64", wantOk: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParsePlatform(tc.value)
			assert.Equal(t, tc.wantOk, ok)
			if tc.wantOk {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestPlatformFromHeaderDefaultsWhenAbsent(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, defaultPlatform, PlatformFromHeader(h))
}

func TestPlatformFromHeaderPrefersDockerPlatform(t *testing.T) {
	h := http.Header{}
	h.Set("Docker-Platform", "linux/arm64")
	h.Set("X-Docker-Platform", "windows/amd64")
	assert.Equal(t, Platform{OS: "linux", Architecture: "arm64"}, PlatformFromHeader(h))
}

func TestPlatformFromHeaderFallsBackToLegacyHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Docker-Platform", "windows/amd64")
	assert.Equal(t, Platform{OS: "windows", Architecture: "amd64"}, PlatformFromHeader(h))
}

func TestNegotiateDirectMediaType(t *testing.T) {
	data := []byte(`{"mediaType":"application/vnd.oci.image.manifest.v1+json"}`)
	resolved, err := Negotiate(data, MediaTypeOCIManifest, "sha256:abc", "application/vnd.oci.image.manifest.v1+json", defaultPlatform, nil)
	require.NoError(t, err)
	assert.Equal(t, data, resolved.Data)
	assert.Equal(t, MediaTypeOCIManifest, resolved.MediaType)
	assert.Equal(t, ociregistry.Digest("sha256:abc"), resolved.Digest)
}

func TestNegotiateRejectsUnsupportedAccept(t *testing.T) {
	data := []byte(`{}`)
	_, err := Negotiate(data, MediaTypeOCIManifest, "sha256:abc", "application/vnd.other+json", defaultPlatform, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ociregistry.ErrUnsupported)
}

func TestNegotiateIndexReturnedVerbatimWhenRequested(t *testing.T) {
	idx := manifestIndexProbe{Manifests: []indexDescriptor{
		{Digest: "sha256:" + digestHexOf("child"), MediaType: MediaTypeOCIManifest, Platform: &indexPlatform{OS: "linux", Architecture: "amd64"}},
	}}
	data, err := json.Marshal(idx)
	require.NoError(t, err)

	resolved, err := Negotiate(data, MediaTypeOCIIndex, "sha256:idx", MediaTypeOCIIndex, defaultPlatform, nil)
	require.NoError(t, err)
	assert.Equal(t, data, resolved.Data)
	assert.Equal(t, MediaTypeOCIIndex, resolved.MediaType)
}

func TestNegotiateIndexResolvesToMatchingPlatform(t *testing.T) {
	childDigest := "sha256:" + digestHexOf("child-manifest")
	idx := manifestIndexProbe{Manifests: []indexDescriptor{
		{Digest: "sha256:" + digestHexOf("other"), MediaType: MediaTypeOCIManifest, Platform: &indexPlatform{OS: "windows", Architecture: "amd64"}},
		{Digest: childDigest, MediaType: MediaTypeOCIManifest, Platform: &indexPlatform{OS: "linux", Architecture: "amd64"}},
	}}
	data, err := json.Marshal(idx)
	require.NoError(t, err)

	childData := []byte(`{"mediaType":"application/vnd.oci.image.manifest.v1+json"}`)
	lookup := func(dig ociregistry.Digest) ([]byte, string, error) {
		assert.Equal(t, ociregistry.Digest(childDigest), dig)
		return childData, MediaTypeOCIManifest, nil
	}

	resolved, err := Negotiate(data, MediaTypeOCIIndex, "sha256:idx", "", defaultPlatform, lookup)
	require.NoError(t, err)
	assert.Equal(t, childData, resolved.Data)
	assert.Equal(t, ociregistry.Digest(childDigest), resolved.Digest)
}

func TestNegotiateIndexNoMatchingPlatform(t *testing.T) {
	idx := manifestIndexProbe{Manifests: []indexDescriptor{
		{Digest: "sha256:" + digestHexOf("other"), MediaType: MediaTypeOCIManifest, Platform: &indexPlatform{OS: "windows", Architecture: "amd64"}},
	}}
	data, err := json.Marshal(idx)
	require.NoError(t, err)

	_, err = Negotiate(data, MediaTypeOCIIndex, "sha256:idx", "", defaultPlatform, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ociregistry.ErrManifestUnknown)
}

func TestNegotiateMediaTypeEquivalence(t *testing.T) {
	chosen, ok := negotiateMediaType(MediaTypeDockerManifest, []string{MediaTypeOCIManifest})
	assert.True(t, ok)
	assert.Equal(t, MediaTypeOCIManifest, chosen)
}

func TestAcceptRequestsIndex(t *testing.T) {
	assert.True(t, acceptRequestsIndex(MediaTypeOCIIndex))
	assert.True(t, acceptRequestsIndex(MediaTypeDockerManifestList))
	assert.False(t, acceptRequestsIndex(MediaTypeOCIManifest))
	assert.False(t, acceptRequestsIndex(""))
}

func digestHexOf(s string) string {
	// a stable, deterministic placeholder hex string derived from s's
	// length, good enough for table data that's never actually hashed
	const hex = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	n := len(s) % len(hex)
	return hex[n:] + hex[:n]
}
