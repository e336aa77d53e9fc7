package ocifs

import (
	"context"
	"fmt"
	"os"

	"github.com/warehouse-labs/registry"
)

var (
	errCannotDeleteTag            = fmt.Errorf("%w: tag deletion not permitted", ociregistry.ErrDenied)
	errCannotDeleteTaggedBlob     = fmt.Errorf("%w: deletion of tagged blob not permitted", ociregistry.ErrDenied)
	errCannotDeleteTaggedManifest = fmt.Errorf("%w: deletion of tagged manifest not permitted", ociregistry.ErrDenied)
)

func (r *Registry) DeleteBlob(ctx context.Context, repoName string, dig ociregistry.Digest) error {
	if _, err := r.ResolveBlob(ctx, repoName, dig); err != nil {
		return err
	}
	if r.cfg.ImmutableTags {
		ok, err := r.refersTo(repoName, dig)
		if err != nil {
			return err
		}
		if ok {
			return errCannotDeleteTaggedBlob
		}
	}
	path, err := r.blobPath(dig)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DeleteManifest removes the manifest file and, per spec.md §4.C,
// unlinks any tag pointers in the repository whose content equals the
// deleted digest.
func (r *Registry) DeleteManifest(ctx context.Context, repoName string, dig ociregistry.Digest) error {
	if _, err := r.ResolveManifest(ctx, repoName, dig); err != nil {
		return err
	}
	if r.cfg.ImmutableTags {
		ok, err := r.refersTo(repoName, dig)
		if err != nil {
			return err
		}
		if ok {
			return errCannotDeleteTaggedManifest
		}
	}
	path, err := r.manifestPath(dig)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	entries, err := os.ReadDir(r.tagsDir(repoName))
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		tagPath := r.tagPath(repoName, e.Name())
		data, err := os.ReadFile(tagPath)
		if err != nil {
			continue
		}
		if ociregistry.Digest(data) == dig {
			os.Remove(tagPath)
		}
	}
	return nil
}

func (r *Registry) DeleteTag(ctx context.Context, repoName string, tagName string) error {
	if err := r.checkRepoExists(repoName); err != nil {
		return err
	}
	path := r.tagPath(repoName, tagName)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: tag does not exist", ociregistry.ErrManifestUnknown)
		}
		return err
	}
	if r.cfg.ImmutableTags {
		return errCannotDeleteTag
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ociregistry.ErrManifestUnknown
		}
		return err
	}
	return nil
}

// refersTo reports whether target is reachable, directly or
// transitively through manifest/subject references, from any tag in
// repoName. It mirrors ocimem's in-memory refersTo, walking the
// on-disk manifest store instead of a map.
func (r *Registry) refersTo(repoName string, target ociregistry.Digest) (bool, error) {
	entries, err := os.ReadDir(r.tagsDir(repoName))
	if err != nil {
		return false, nil
	}
	visited := make(map[ociregistry.Digest]bool)
	var walk func(d ociregistry.Digest) bool
	walk = func(d ociregistry.Digest) bool {
		if d == target {
			return true
		}
		if visited[d] {
			return false
		}
		visited[d] = true
		path, err := r.manifestPath(d)
		if err != nil {
			return false
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		mt, err := sniffManifestMediaType(data)
		if err != nil {
			return false
		}
		info, err := getManifestInfo(mt, data)
		if err != nil {
			return false
		}
		found := false
		info.descriptors(func(di descInfo) bool {
			if di.kind != kindManifest && di.kind != kindSubjectManifest {
				return true
			}
			if walk(di.desc.Digest) {
				found = true
				return false
			}
			return true
		})
		return found
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(r.tagPath(repoName, e.Name()))
		if err != nil {
			continue
		}
		if walk(ociregistry.Digest(data)) {
			return true, nil
		}
	}
	return false, nil
}
