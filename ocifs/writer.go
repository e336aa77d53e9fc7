package ocifs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/warehouse-labs/registry"
	"github.com/warehouse-labs/registry/ociref"
)

func (r *Registry) PushBlob(ctx context.Context, repoName string, desc ociregistry.Descriptor, content io.Reader) (ociregistry.Descriptor, error) {
	if err := r.makeRepo(repoName); err != nil {
		return ociregistry.Descriptor{}, err
	}
	w, err := r.newUploader(repoName, "", 0)
	if err != nil {
		return ociregistry.Descriptor{}, err
	}
	defer w.Cancel()
	n, err := io.Copy(w, content)
	if err != nil {
		return ociregistry.Descriptor{}, fmt.Errorf("cannot read content: %v", err)
	}
	if desc.Size != 0 && n != desc.Size {
		return ociregistry.Descriptor{}, fmt.Errorf("%w: size mismatch", ociregistry.ErrSizeInvalid)
	}
	return w.Commit(desc.Digest)
}

func (r *Registry) PushBlobChunked(ctx context.Context, repoName string, chunkSize int) (ociregistry.BlobWriter, error) {
	return r.PushBlobChunkedResume(ctx, repoName, "", 0, chunkSize)
}

func (r *Registry) PushBlobChunkedResume(ctx context.Context, repoName, id string, offset int64, chunkSize int) (ociregistry.BlobWriter, error) {
	if err := r.makeRepo(repoName); err != nil {
		return nil, err
	}
	r.mu.Lock()
	u := r.uploads[repoName+"/"+id]
	r.mu.Unlock()
	if u != nil {
		return u, nil
	}
	if id != "" {
		// Resuming an upload whose bookkeeping entry was lost (e.g.
		// process restart): reopen the file at its current size.
		if _, err := os.Stat(r.uploadPath(repoName, id)); err != nil {
			return nil, fmt.Errorf("%w: upload %q not found", ociregistry.ErrBlobUploadUnknown, id)
		}
	}
	return r.newUploader(repoName, id, offset)
}

func (r *Registry) MountBlob(ctx context.Context, fromRepo, toRepo string, dig ociregistry.Digest) (ociregistry.Descriptor, error) {
	if err := r.makeRepo(toRepo); err != nil {
		return ociregistry.Descriptor{}, err
	}
	desc, err := r.ResolveBlob(ctx, fromRepo, dig)
	if err != nil {
		return ociregistry.Descriptor{}, err
	}
	// Blobs are stored once, globally, content-addressed: mounting
	// only needs to confirm the blob already exists for fromRepo.
	return desc, nil
}

func (r *Registry) PushManifest(ctx context.Context, repoName string, tag string, data []byte, mediaType string) (ociregistry.Descriptor, error) {
	if err := r.makeRepo(repoName); err != nil {
		return ociregistry.Descriptor{}, err
	}
	if tag != "" && !ociref.IsValidTag(tag) {
		return ociregistry.Descriptor{}, fmt.Errorf("%w: invalid tag", ociregistry.ErrNameInvalid)
	}
	data = append([]byte(nil), data...)
	dig := digest.FromBytes(data)
	desc := ociregistry.Descriptor{
		Digest:    dig,
		MediaType: mediaType,
		Size:      int64(len(data)),
	}
	if err := CheckDescriptor(desc, data); err != nil {
		return ociregistry.Descriptor{}, fmt.Errorf("invalid descriptor: %v", err)
	}
	// Per the Open Question decision in SPEC_FULL.md: PushManifest does
	// not verify that referenced blobs/manifests already exist.
	if tag != "" && r.cfg.ImmutableTags {
		if existing, err := r.ResolveTag(ctx, repoName, tag); err == nil {
			if existing.Digest != dig {
				return ociregistry.Descriptor{}, fmt.Errorf("%w: cannot overwrite tag", ociregistry.ErrDenied)
			}
			if existing.MediaType != mediaType {
				return ociregistry.Descriptor{}, fmt.Errorf("%w: mismatched media type", ociregistry.ErrDenied)
			}
		}
	}
	path, err := r.manifestPath(dig)
	if err != nil {
		return ociregistry.Descriptor{}, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return ociregistry.Descriptor{}, fmt.Errorf("cannot store manifest: %v", err)
	}
	if tag != "" {
		if err := writeFileAtomic(r.tagPath(repoName, tag), []byte(dig)); err != nil {
			return ociregistry.Descriptor{}, fmt.Errorf("cannot write tag: %v", err)
		}
	}
	return desc, nil
}

// writeFileAtomic writes data to path by writing to a temporary file
// in the same directory and renaming it into place, so concurrent
// readers never observe a partially written file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
