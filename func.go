package ociregistry

import (
	"context"
	"fmt"
	"io"
)

// Funcs implements Interface by calling its member functions: there's one field
// for every corresponding method of [Interface].
//
// When a function is nil, the corresponding method will return
// an [ErrUnsupported] error. For nil functions that return an iterator,
// the corresponding method will return an iterator that returns no items and
// yields ErrUnsupported.
//
// If Funcs is nil itself, all methods will behave as if the corresponding field was nil,
// so (*ociregistry.Funcs)(nil) is a useful placeholder to implement Interface.
//
// Implementations embed a *Funcs value to get the private method implemented
// and to pick up ErrUnsupported defaults for any method they don't define
// themselves; this means it's possible to add members to Interface in the
// future without breaking compatibility.
type Funcs struct {
	GetBlob_               func(ctx context.Context, repo string, digest Digest) (BlobReader, error)
	GetBlobRange_           func(ctx context.Context, repo string, digest Digest, o0, o1 int64) (BlobReader, error)
	GetManifest_            func(ctx context.Context, repo string, digest Digest) (BlobReader, error)
	GetTag_                 func(ctx context.Context, repo string, tagName string) (BlobReader, error)
	ResolveBlob_            func(ctx context.Context, repo string, digest Digest) (Descriptor, error)
	ResolveManifest_        func(ctx context.Context, repo string, digest Digest) (Descriptor, error)
	ResolveTag_             func(ctx context.Context, repo string, tagName string) (Descriptor, error)
	PushBlob_               func(ctx context.Context, repo string, desc Descriptor, r io.Reader) (Descriptor, error)
	PushBlobChunked_        func(ctx context.Context, repo string, chunkSize int) (BlobWriter, error)
	PushBlobChunkedResume_  func(ctx context.Context, repo string, id string, offset int64, chunkSize int) (BlobWriter, error)
	MountBlob_              func(ctx context.Context, fromRepo, toRepo string, digest Digest) (Descriptor, error)
	PushManifest_           func(ctx context.Context, repo string, tag string, contents []byte, mediaType string) (Descriptor, error)
	DeleteBlob_             func(ctx context.Context, repo string, digest Digest) error
	DeleteManifest_         func(ctx context.Context, repo string, digest Digest) error
	DeleteTag_              func(ctx context.Context, repo string, name string) error
	Repositories_           func(ctx context.Context, startAfter string) Iter[string]
	Tags_                   func(ctx context.Context, repo string, startAfter string) Iter[string]
	Referrers_              func(ctx context.Context, repo string, digest Digest, artifactType string) Iter[Descriptor]
}

// This blesses Funcs as a canonical (partial) Interface implementation.
func (*Funcs) private() {}

func (f *Funcs) GetBlob(ctx context.Context, repo string, digest Digest) (BlobReader, error) {
	if f != nil && f.GetBlob_ != nil {
		return f.GetBlob_(ctx, repo, digest)
	}
	return nil, fmt.Errorf("GetBlob: %w", ErrUnsupported)
}

func (f *Funcs) GetBlobRange(ctx context.Context, repo string, digest Digest, o0, o1 int64) (BlobReader, error) {
	if f != nil && f.GetBlobRange_ != nil {
		return f.GetBlobRange_(ctx, repo, digest, o0, o1)
	}
	return nil, fmt.Errorf("GetBlobRange: %w", ErrUnsupported)
}

func (f *Funcs) GetManifest(ctx context.Context, repo string, digest Digest) (BlobReader, error) {
	if f != nil && f.GetManifest_ != nil {
		return f.GetManifest_(ctx, repo, digest)
	}
	return nil, fmt.Errorf("GetManifest: %w", ErrUnsupported)
}

func (f *Funcs) GetTag(ctx context.Context, repo string, tagName string) (BlobReader, error) {
	if f != nil && f.GetTag_ != nil {
		return f.GetTag_(ctx, repo, tagName)
	}
	return nil, fmt.Errorf("GetTag: %w", ErrUnsupported)
}

func (f *Funcs) ResolveBlob(ctx context.Context, repo string, digest Digest) (Descriptor, error) {
	if f != nil && f.ResolveBlob_ != nil {
		return f.ResolveBlob_(ctx, repo, digest)
	}
	return Descriptor{}, fmt.Errorf("ResolveBlob: %w", ErrUnsupported)
}

func (f *Funcs) ResolveManifest(ctx context.Context, repo string, digest Digest) (Descriptor, error) {
	if f != nil && f.ResolveManifest_ != nil {
		return f.ResolveManifest_(ctx, repo, digest)
	}
	return Descriptor{}, fmt.Errorf("ResolveManifest: %w", ErrUnsupported)
}

func (f *Funcs) ResolveTag(ctx context.Context, repo string, tagName string) (Descriptor, error) {
	if f != nil && f.ResolveTag_ != nil {
		return f.ResolveTag_(ctx, repo, tagName)
	}
	return Descriptor{}, fmt.Errorf("ResolveTag: %w", ErrUnsupported)
}

func (f *Funcs) PushBlob(ctx context.Context, repo string, desc Descriptor, r io.Reader) (Descriptor, error) {
	if f != nil && f.PushBlob_ != nil {
		return f.PushBlob_(ctx, repo, desc, r)
	}
	return Descriptor{}, fmt.Errorf("PushBlob: %w", ErrUnsupported)
}

func (f *Funcs) PushBlobChunked(ctx context.Context, repo string, chunkSize int) (BlobWriter, error) {
	if f != nil && f.PushBlobChunked_ != nil {
		return f.PushBlobChunked_(ctx, repo, chunkSize)
	}
	return nil, fmt.Errorf("PushBlobChunked: %w", ErrUnsupported)
}

func (f *Funcs) PushBlobChunkedResume(ctx context.Context, repo string, id string, offset int64, chunkSize int) (BlobWriter, error) {
	if f != nil && f.PushBlobChunkedResume_ != nil {
		return f.PushBlobChunkedResume_(ctx, repo, id, offset, chunkSize)
	}
	return nil, fmt.Errorf("PushBlobChunkedResume: %w", ErrUnsupported)
}

func (f *Funcs) MountBlob(ctx context.Context, fromRepo, toRepo string, digest Digest) (Descriptor, error) {
	if f != nil && f.MountBlob_ != nil {
		return f.MountBlob_(ctx, fromRepo, toRepo, digest)
	}
	return Descriptor{}, fmt.Errorf("MountBlob: %w", ErrUnsupported)
}

func (f *Funcs) PushManifest(ctx context.Context, repo string, tag string, contents []byte, mediaType string) (Descriptor, error) {
	if f != nil && f.PushManifest_ != nil {
		return f.PushManifest_(ctx, repo, tag, contents, mediaType)
	}
	return Descriptor{}, fmt.Errorf("PushManifest: %w", ErrUnsupported)
}

func (f *Funcs) DeleteBlob(ctx context.Context, repo string, digest Digest) error {
	if f != nil && f.DeleteBlob_ != nil {
		return f.DeleteBlob_(ctx, repo, digest)
	}
	return fmt.Errorf("DeleteBlob: %w", ErrUnsupported)
}

func (f *Funcs) DeleteManifest(ctx context.Context, repo string, digest Digest) error {
	if f != nil && f.DeleteManifest_ != nil {
		return f.DeleteManifest_(ctx, repo, digest)
	}
	return fmt.Errorf("DeleteManifest: %w", ErrUnsupported)
}

func (f *Funcs) DeleteTag(ctx context.Context, repo string, name string) error {
	if f != nil && f.DeleteTag_ != nil {
		return f.DeleteTag_(ctx, repo, name)
	}
	return fmt.Errorf("DeleteTag: %w", ErrUnsupported)
}

func (f *Funcs) Repositories(ctx context.Context, startAfter string) Iter[string] {
	if f != nil && f.Repositories_ != nil {
		return f.Repositories_(ctx, startAfter)
	}
	return ErrorSeq[string](fmt.Errorf("Repositories: %w", ErrUnsupported))
}

func (f *Funcs) Tags(ctx context.Context, repo string, startAfter string) Iter[string] {
	if f != nil && f.Tags_ != nil {
		return f.Tags_(ctx, repo, startAfter)
	}
	return ErrorSeq[string](fmt.Errorf("Tags: %w", ErrUnsupported))
}

func (f *Funcs) Referrers(ctx context.Context, repo string, digest Digest, artifactType string) Iter[Descriptor] {
	if f != nil && f.Referrers_ != nil {
		return f.Referrers_(ctx, repo, digest, artifactType)
	}
	return ErrorSeq[Descriptor](fmt.Errorf("Referrers: %w", ErrUnsupported))
}
