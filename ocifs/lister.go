package ocifs

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/warehouse-labs/registry"
)

// Repositories lists the immediate subdirectories of the root that
// contain a tags/ child, skipping the reserved top-level names. Only
// the top level is examined: repositories whose names contain a slash
// are not listed.
func (r *Registry) Repositories(_ context.Context, startAfter string) iter.Seq2[string, error] {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return ociregistry.ErrorSeq[string](err)
	}
	var repos []string
	for _, e := range entries {
		if !e.IsDir() || reservedTopLevel[e.Name()] {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.root, e.Name(), "tags")); err != nil {
			continue
		}
		if strings.Compare(startAfter, e.Name()) < 0 {
			repos = append(repos, e.Name())
		}
	}
	slices.Sort(repos)
	return ociregistry.SliceSeq(repos)
}

func (r *Registry) Tags(_ context.Context, repoName string, startAfter string) iter.Seq2[string, error] {
	if err := r.checkRepoExists(repoName); err != nil {
		return ociregistry.ErrorSeq[string](err)
	}
	entries, err := os.ReadDir(r.tagsDir(repoName))
	if err != nil {
		return ociregistry.ErrorSeq[string](err)
	}
	var tags []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if startAfter == "" || ociregistry.CompareTags(startAfter, e.Name()) < 0 {
			tags = append(tags, e.Name())
		}
	}
	slices.SortFunc(tags, ociregistry.CompareTags)
	return ociregistry.SliceSeq(tags)
}

// Referrers scans every stored manifest in the repository for ones
// whose subject is dig, matching artifactType if given. Unlike
// ocimem, there's no in-memory index to consult, so this walks the
// repository's tags as roots is not sufficient (referrers need not be
// tagged); it scans the global manifest store instead, which is
// acceptable for this service's scale (component G's GC walk already
// pays this cost).
func (r *Registry) Referrers(_ context.Context, repoName string, dig ociregistry.Digest, artifactType string) iter.Seq2[ociregistry.Descriptor, error] {
	if err := r.checkRepoExists(repoName); err != nil {
		return ociregistry.ErrorSeq[ociregistry.Descriptor](err)
	}
	manifestsDir := filepath.Join(r.root, "manifests", "sha256")
	entries, err := os.ReadDir(manifestsDir)
	if err != nil {
		return ociregistry.ErrorSeq[ociregistry.Descriptor](err)
	}
	var referrers []ociregistry.Descriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		candidate := ociregistry.Digest("sha256:" + e.Name())
		data, err := os.ReadFile(filepath.Join(manifestsDir, e.Name()))
		if err != nil {
			continue
		}
		mt, err := sniffManifestMediaType(data)
		if err != nil {
			continue
		}
		info, err := getManifestInfo(mt, data)
		if err != nil || info.subject != dig {
			continue
		}
		if artifactType != "" && info.artifactType != artifactType {
			continue
		}
		referrers = append(referrers, ociregistry.Descriptor{
			Digest:       candidate,
			Size:         int64(len(data)),
			MediaType:    mt,
			ArtifactType: info.artifactType,
			Annotations:  info.annotations,
		})
	}
	slices.SortFunc(referrers, func(a, b ociregistry.Descriptor) int {
		return strings.Compare(string(a.Digest), string(b.Digest))
	})
	return ociregistry.SliceSeq(referrers)
}
