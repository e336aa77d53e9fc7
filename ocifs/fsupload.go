package ocifs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/warehouse-labs/registry"
)

// fsUploader implements ociregistry.BlobWriter by appending to an
// *os.File under <root>/<repo>/_uploads/<uuid>, the filesystem
// analogue of ocimem.Buffer.
type fsUploader struct {
	r        *Registry
	repoName string
	id       string

	mu               sync.Mutex
	f                *os.File
	size             int64
	checkStartOffset int64 // -1 once checked
	commitErr        error
}

// newUploader opens (creating if necessary) the upload file for id in
// repoName. Writes append at the file's current size; the file is not
// truncated. If offset is non-negative, the first Write fails unless
// the file's current size equals offset.
func (r *Registry) newUploader(repoName, id string, offset int64) (*fsUploader, error) {
	if id == "" {
		id = uuid.NewString()
	}
	path := r.uploadPath(repoName, id)
	if err := os.MkdirAll(r.uploadsDir(repoName), 0o777); err != nil {
		return nil, fmt.Errorf("cannot create uploads directory: %v", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("cannot open upload %q: %v", id, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	u := &fsUploader{
		r:                r,
		repoName:         repoName,
		id:               id,
		f:                f,
		size:             fi.Size(),
		checkStartOffset: offset,
	}
	r.mu.Lock()
	r.uploads[repoName+"/"+id] = u
	r.mu.Unlock()
	return u, nil
}

func (u *fsUploader) ID() string { return u.id }

func (u *fsUploader) ChunkSize() int {
	return 8 * 1024 * 1024
}

func (u *fsUploader) Size() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.size
}

func (u *fsUploader) Write(data []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if offset := u.checkStartOffset; offset >= 0 {
		if u.size != offset {
			return 0, fmt.Errorf("invalid offset %d in resumed upload (actual offset %d): %w", offset, u.size, ociregistry.ErrRangeInvalid)
		}
		u.checkStartOffset = -1
	}
	n, err := u.f.WriteAt(data, u.size)
	u.size += int64(n)
	return n, err
}

func (u *fsUploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.f.Close()
}

func (u *fsUploader) Cancel() error {
	u.mu.Lock()
	path := u.f.Name()
	u.f.Close()
	u.commitErr = fmt.Errorf("upload canceled")
	u.mu.Unlock()

	u.r.mu.Lock()
	delete(u.r.uploads, u.repoName+"/"+u.id)
	u.r.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Commit implements the upload-completion protocol from spec.md §4.B
// steps 3-6: fsync, re-read and hash the whole buffer, compare to the
// claimed digest, then atomically rename into the blob store.
func (u *fsUploader) Commit(dig ociregistry.Digest) (ociregistry.Descriptor, error) {
	u.mu.Lock()
	if u.commitErr != nil {
		err := u.commitErr
		u.mu.Unlock()
		return ociregistry.Descriptor{}, err
	}
	if err := u.f.Sync(); err != nil {
		u.mu.Unlock()
		return ociregistry.Descriptor{}, fmt.Errorf("cannot sync upload: %v", err)
	}
	verifier := dig.Verifier()
	if _, err := u.f.Seek(0, 0); err != nil {
		u.mu.Unlock()
		return ociregistry.Descriptor{}, err
	}
	size, err := io.Copy(verifier, u.f)
	if err != nil {
		u.mu.Unlock()
		return ociregistry.Descriptor{}, fmt.Errorf("cannot read upload: %v", err)
	}
	if !verifier.Verified() {
		u.mu.Unlock()
		return ociregistry.Descriptor{}, fmt.Errorf("digest mismatch (computed hash for %s does not match): %w", dig, ociregistry.ErrDigestInvalid)
	}
	path := u.f.Name()
	u.f.Close()
	u.mu.Unlock()

	u.r.mu.Lock()
	delete(u.r.uploads, u.repoName+"/"+u.id)
	u.r.mu.Unlock()

	blobPath, err := u.r.blobPath(dig)
	if err != nil {
		return ociregistry.Descriptor{}, err
	}
	if err := os.MkdirAll(filepath.Dir(blobPath), 0o777); err != nil {
		return ociregistry.Descriptor{}, fmt.Errorf("cannot create blob directory: %v", err)
	}
	if err := os.Rename(path, blobPath); err != nil {
		if !os.IsExist(err) {
			if _, statErr := os.Stat(blobPath); statErr != nil {
				return ociregistry.Descriptor{}, fmt.Errorf("cannot commit blob: %v", err)
			}
		}
		// Lost the race against a concurrent commit of the same
		// digest: the target already exists, so drop our copy.
		os.Remove(path)
	}
	return ociregistry.Descriptor{
		MediaType: "application/octet-stream",
		Size:      size,
		Digest:    dig,
	}, nil
}
