package ocifs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/warehouse-labs/registry"
)

// fileReader implements ociregistry.BlobReader over an *os.File,
// optionally restricted to a byte range via io.SectionReader.
type fileReader struct {
	io.Reader
	f    *os.File
	desc ociregistry.Descriptor
}

func (r *fileReader) Close() error            { return r.f.Close() }
func (r *fileReader) Descriptor() ociregistry.Descriptor { return r.desc }

func (r *Registry) GetBlob(ctx context.Context, repoName string, dig ociregistry.Digest) (ociregistry.BlobReader, error) {
	return r.GetBlobRange(ctx, repoName, dig, 0, -1)
}

func (r *Registry) GetBlobRange(ctx context.Context, repoName string, dig ociregistry.Digest, o0, o1 int64) (ociregistry.BlobReader, error) {
	desc, f, err := r.openBlob(repoName, dig)
	if err != nil {
		return nil, err
	}
	if o1 < 0 {
		// No explicit end: read to the end of the blob.
		o1 = desc.Size
	}
	// A range whose end reaches past the blob's actual size is
	// rejected outright (416), never silently clamped down to size.
	if o0 < 0 || o0 > o1 || o1 > desc.Size {
		f.Close()
		return nil, fmt.Errorf("%w: invalid range [%d, %d]; have [0, %d]", ociregistry.ErrRangeInvalid, o0, o1, desc.Size)
	}
	return &fileReader{
		Reader: io.NewSectionReader(f, o0, o1-o0),
		f:      f,
		desc:   desc,
	}, nil
}

func (r *Registry) openBlob(repoName string, dig ociregistry.Digest) (ociregistry.Descriptor, *os.File, error) {
	if err := r.checkRepoExists(repoName); err != nil {
		return ociregistry.Descriptor{}, nil, err
	}
	path, err := r.blobPath(dig)
	if err != nil {
		return ociregistry.Descriptor{}, nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ociregistry.Descriptor{}, nil, ociregistry.ErrBlobUnknown
		}
		return ociregistry.Descriptor{}, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return ociregistry.Descriptor{}, nil, err
	}
	desc := ociregistry.Descriptor{
		Digest:    dig,
		Size:      fi.Size(),
		MediaType: "application/octet-stream",
	}
	return desc, f, nil
}

func (r *Registry) GetManifest(ctx context.Context, repoName string, dig ociregistry.Digest) (ociregistry.BlobReader, error) {
	if err := r.checkRepoExists(repoName); err != nil {
		return nil, err
	}
	path, err := r.manifestPath(dig)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ociregistry.ErrManifestUnknown
		}
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.Close()
	mt, err := sniffManifestMediaType(data)
	if err != nil {
		return nil, fmt.Errorf("stored manifest %s is not valid: %v", dig, err)
	}
	return newBytesReader(data, ociregistry.Descriptor{
		Digest:    dig,
		Size:      int64(len(data)),
		MediaType: mt,
	}), nil
}

func (r *Registry) GetTag(ctx context.Context, repoName string, tagName string) (ociregistry.BlobReader, error) {
	desc, err := r.ResolveTag(ctx, repoName, tagName)
	if err != nil {
		return nil, err
	}
	return r.GetManifest(ctx, repoName, desc.Digest)
}

func (r *Registry) ResolveTag(ctx context.Context, repoName string, tagName string) (ociregistry.Descriptor, error) {
	if err := r.checkRepoExists(repoName); err != nil {
		return ociregistry.Descriptor{}, err
	}
	data, err := os.ReadFile(r.tagPath(repoName, tagName))
	if err != nil {
		if os.IsNotExist(err) {
			return ociregistry.Descriptor{}, ociregistry.ErrManifestUnknown
		}
		return ociregistry.Descriptor{}, err
	}
	return r.ResolveManifest(ctx, repoName, ociregistry.Digest(data))
}

func (r *Registry) ResolveBlob(ctx context.Context, repoName string, dig ociregistry.Digest) (ociregistry.Descriptor, error) {
	desc, f, err := r.openBlob(repoName, dig)
	if err != nil {
		return ociregistry.Descriptor{}, err
	}
	f.Close()
	return desc, nil
}

func (r *Registry) ResolveManifest(ctx context.Context, repoName string, dig ociregistry.Digest) (ociregistry.Descriptor, error) {
	if err := r.checkRepoExists(repoName); err != nil {
		return ociregistry.Descriptor{}, err
	}
	path, err := r.manifestPath(dig)
	if err != nil {
		return ociregistry.Descriptor{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ociregistry.Descriptor{}, ociregistry.ErrManifestUnknown
		}
		return ociregistry.Descriptor{}, err
	}
	mt, err := sniffManifestMediaType(data)
	if err != nil {
		return ociregistry.Descriptor{}, fmt.Errorf("stored manifest %s is not valid: %v", dig, err)
	}
	return ociregistry.Descriptor{
		Digest:    dig,
		Size:      int64(len(data)),
		MediaType: mt,
	}, nil
}

// newBytesReader returns a BlobReader over in-memory data, used for
// manifests which we read fully to sniff their media type anyway.
func newBytesReader(data []byte, desc ociregistry.Descriptor) ociregistry.BlobReader {
	r := bytes.NewReader(data)
	return &bytesReadCloser{Reader: r, desc: desc}
}

type bytesReadCloser struct {
	*bytes.Reader
	desc ociregistry.Descriptor
}

func (b *bytesReadCloser) Close() error                       { return nil }
func (b *bytesReadCloser) Descriptor() ociregistry.Descriptor { return b.desc }
