// Package ocifs provides a filesystem-backed implementation of
// ociregistry.Interface, storing blobs and manifests content-addressed
// under sha256 and tag pointers per repository, matching the on-disk
// layout described in the registry service specification.
//
// Unlike ocimem, all state survives process restart: nothing is held
// in memory beyond a mutex guarding upload bookkeeping.
package ocifs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/opencontainers/go-digest"

	"github.com/warehouse-labs/registry"
)

var _ ociregistry.Interface = (*Registry)(nil)

// reserved top-level directory names that are never treated as
// repository names when walking the root for the catalog listing.
var reservedTopLevel = map[string]bool{
	"blobs":     true,
	"manifests": true,
}

// Registry implements ociregistry.Interface against a directory tree
// rooted at Root. The layout is:
//
//	<root>/blobs/sha256/<hex>
//	<root>/manifests/sha256/<hex>
//	<root>/<repo>/tags/<tag>
//	<root>/<repo>/_uploads/<uuid>
type Registry struct {
	*ociregistry.Funcs
	root string
	cfg  Config

	// mu guards only the upload bookkeeping map; blob/manifest/tag
	// commits rely on filesystem atomicity, not this mutex.
	mu      sync.Mutex
	uploads map[string]*fsUploader
}

// Config holds configuration for the registry. It mirrors
// [ocimem.Config] so the two backends can be configured identically.
type Config struct {
	// ImmutableTags specifies that tags in the registry cannot be
	// changed: pushing a tag that already exists with a different
	// digest or media type is rejected, and deleting a directly
	// tagged blob or manifest is rejected.
	ImmutableTags bool
}

// NewRegistry is like NewRegistryWithConfig(root, nil).
func NewRegistry(root string) (*Registry, error) {
	return NewRegistryWithConfig(root, nil)
}

// NewRegistryWithConfig returns a Registry rooted at root, creating
// the top-level blobs and manifests directories if they don't already
// exist. If cfg is nil, it's treated the same as a pointer to the zero
// Config value.
func NewRegistryWithConfig(root string, cfg0 *Config) (*Registry, error) {
	for _, dir := range []string{
		filepath.Join(root, "blobs", "sha256"),
		filepath.Join(root, "manifests", "sha256"),
	} {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return nil, fmt.Errorf("cannot create %q: %v", dir, err)
		}
	}
	var cfg Config
	if cfg0 != nil {
		cfg = *cfg0
	}
	return &Registry{
		root:    root,
		cfg:     cfg,
		uploads: make(map[string]*fsUploader),
	}, nil
}

func digestHex(dig ociregistry.Digest) (string, error) {
	parts := strings.SplitN(string(dig), ":", 2)
	if len(parts) != 2 || parts[0] != "sha256" {
		return "", fmt.Errorf("%w: unsupported digest algorithm in %q", ociregistry.ErrDigestInvalid, dig)
	}
	return parts[1], nil
}

func (r *Registry) blobPath(dig ociregistry.Digest) (string, error) {
	hex, err := digestHex(dig)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.root, "blobs", "sha256", hex), nil
}

func (r *Registry) manifestPath(dig ociregistry.Digest) (string, error) {
	hex, err := digestHex(dig)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.root, "manifests", "sha256", hex), nil
}

func (r *Registry) repoDir(repoName string) string {
	return filepath.Join(r.root, repoName)
}

func (r *Registry) tagsDir(repoName string) string {
	return filepath.Join(r.repoDir(repoName), "tags")
}

func (r *Registry) tagPath(repoName, tag string) string {
	return filepath.Join(r.tagsDir(repoName), tag)
}

func (r *Registry) uploadsDir(repoName string) string {
	return filepath.Join(r.repoDir(repoName), "_uploads")
}

func (r *Registry) uploadPath(repoName, id string) string {
	return filepath.Join(r.uploadsDir(repoName), id)
}

// makeRepo validates repoName and ensures its tags directory
// exists.
func (r *Registry) makeRepo(repoName string) error {
	if !ociregistry.IsValidRepoName(repoName) {
		return ociregistry.ErrNameInvalid
	}
	if err := os.MkdirAll(r.tagsDir(repoName), 0o777); err != nil {
		return fmt.Errorf("cannot create repository %q: %v", repoName, err)
	}
	return nil
}

func (r *Registry) checkRepoExists(repoName string) error {
	if !ociregistry.IsValidRepoName(repoName) {
		return ociregistry.ErrNameInvalid
	}
	if _, err := os.Stat(r.tagsDir(repoName)); err != nil {
		return ociregistry.ErrNameUnknown
	}
	return nil
}

// CheckDescriptor checks that the given descriptor matches the given
// data or, if data is nil, that the descriptor looks sane. It mirrors
// ocimem.CheckDescriptor so the two backends reject the same malformed
// input.
func CheckDescriptor(desc ociregistry.Descriptor, data []byte) error {
	if err := desc.Digest.Validate(); err != nil {
		return fmt.Errorf("invalid digest: %v", err)
	}
	if data != nil {
		if digest.FromBytes(data) != desc.Digest {
			return fmt.Errorf("digest mismatch")
		}
		if desc.Size != int64(len(data)) {
			return fmt.Errorf("size mismatch")
		}
	}
	if desc.MediaType == "" {
		return fmt.Errorf("no media type in descriptor")
	}
	return nil
}
