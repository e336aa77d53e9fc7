// Copyright 2018 Google LLC All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ociserver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/warehouse-labs/registry"
	"github.com/warehouse-labs/registry/internal/ocirequest"
	"github.com/warehouse-labs/registry/ocimanifest"
)

func (r *registry) handleBlobHead(ctx context.Context, resp http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	desc, err := r.backend.ResolveBlob(ctx, rreq.Repo, ociregistry.Digest(rreq.Digest))
	if err != nil {
		return err
	}
	resp.Header().Set("Content-Length", fmt.Sprint(desc.Size))
	resp.Header().Set("Docker-Content-Digest", string(desc.Digest))
	// TODO this is true in theory, but what if the backend doesn't support GetBlobRange ?
	resp.Header().Set("Accept-Ranges", "bytes")
	resp.WriteHeader(http.StatusOK)
	return nil
}

func (r *registry) handleBlobGet(ctx context.Context, resp http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	if r.opts.LocationsForDescriptor != nil {
		// We need to find information on the blob before we can determine
		// what to pass back, so resolve the blob first so we don't
		// stimulate the backend to start sending the whole stream
		// only to abandon it.
		desc, err := r.backend.ResolveBlob(ctx, rreq.Repo, ociregistry.Digest(rreq.Digest))
		if err != nil {
			// TODO this might not be the best response because ResolveBlob is
			// often implemented with a HEAD request that can't return an error
			// body. So it might be better to fall through to the usual GetBlob request,
			// although that would mean that every error makes two calls :(
			return err
		}
		locs, err := r.opts.LocationsForDescriptor(false, desc)
		if err != nil {
			return err
		}
		if len(locs) > 0 {
			// TODO choose randomly from the set of locations?
			// TODO make it possible to turn off this behaviour?
			http.Redirect(resp, req, locs[0], http.StatusTemporaryRedirect)
			return nil
		}
	}
	ranges, err := parseRange(req.Header.Get("Range"))
	if err != nil {
		return withHTTPCode(http.StatusRequestedRangeNotSatisfiable, err)
	}
	switch len(ranges) {
	case 0:
		blob, err := r.backend.GetBlob(ctx, rreq.Repo, ociregistry.Digest(rreq.Digest))
		if err != nil {
			return err
		}
		defer blob.Close()
		desc := blob.Descriptor()
		resp.Header().Set("Content-Type", desc.MediaType)
		resp.Header().Set("Content-Length", fmt.Sprint(desc.Size))
		resp.Header().Set("Docker-Content-Digest", rreq.Digest)
		resp.WriteHeader(http.StatusOK)

		io.Copy(resp, blob)
		return nil
	case 1:
		rng := ranges[0]
		// Backends differ on a range whose end reaches past the blob's
		// actual size: ocifs rejects it with ErrRangeInvalid (416),
		// while ocimem clamps it to the size, so the end used for the
		// response headers is clamped to the size too. rng.end is -1
		// for an open-ended "bytes=N-" range, matching GetBlobRange's
		// own to-end-of-blob sentinel.
		blob, err := r.backend.GetBlobRange(ctx, rreq.Repo, ociregistry.Digest(rreq.Digest), rng.start, rng.end)
		if err != nil {
			// TODO fall back to using GetBlob if err is ErrUnsupported?
			return err
		}
		defer blob.Close()
		desc := blob.Descriptor()
		end := rng.end
		if end < 0 || end > desc.Size {
			end = desc.Size
		}
		resp.Header().Set("Content-Type", desc.MediaType)
		resp.Header().Set("Content-Length", fmt.Sprint(end-rng.start))
		resp.Header().Set("Docker-Content-Digest", rreq.Digest)
		resp.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, end-1, desc.Size))
		resp.WriteHeader(http.StatusPartialContent)

		io.Copy(resp, blob)
		return nil

	default:
		return withHTTPCode(http.StatusRequestedRangeNotSatisfiable, fmt.Errorf("only a single range is supported"))
	}
}

func (r *registry) handleManifestGet(ctx context.Context, resp http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	// TODO we could do a redirect here too if we thought it was worthwhile.
	var mr ociregistry.BlobReader
	var err error
	if rreq.Tag != "" {
		mr, err = r.backend.GetTag(ctx, rreq.Repo, rreq.Tag)
	} else {
		mr, err = r.backend.GetManifest(ctx, rreq.Repo, ociregistry.Digest(rreq.Digest))
	}
	if err != nil {
		return err
	}
	defer mr.Close()
	desc := mr.Descriptor()
	data, err := io.ReadAll(mr)
	if err != nil {
		return err
	}
	resolved, err := ocimanifest.Negotiate(
		data,
		desc.MediaType,
		desc.Digest,
		req.Header.Get("Accept"),
		ocimanifest.PlatformFromHeader(req.Header),
		func(dig ociregistry.Digest) ([]byte, string, error) {
			sub, err := r.backend.GetManifest(ctx, rreq.Repo, dig)
			if err != nil {
				return nil, "", err
			}
			defer sub.Close()
			subData, err := io.ReadAll(sub)
			if err != nil {
				return nil, "", err
			}
			return subData, sub.Descriptor().MediaType, nil
		},
	)
	if err != nil {
		return err
	}
	resp.Header().Set("Docker-Content-Digest", string(resolved.Digest))
	resp.Header().Set("Content-Type", resolved.MediaType)
	resp.Header().Set("Content-Length", fmt.Sprint(len(resolved.Data)))
	resp.WriteHeader(http.StatusOK)
	resp.Write(resolved.Data)
	return nil
}

func (r *registry) handleManifestHead(ctx context.Context, resp http.ResponseWriter, req *http.Request, rreq *ocirequest.Request) error {
	var desc ociregistry.Descriptor
	var err error
	if rreq.Tag != "" {
		desc, err = r.backend.ResolveTag(ctx, rreq.Repo, rreq.Tag)
	} else {
		desc, err = r.backend.ResolveManifest(ctx, rreq.Repo, ociregistry.Digest(rreq.Digest))
	}
	if err != nil {
		return err
	}
	resp.Header().Set("Docker-Content-Digest", string(desc.Digest))
	resp.Header().Set("Content-Type", desc.MediaType)
	resp.Header().Set("Content-Length", fmt.Sprint(desc.Size))
	resp.WriteHeader(http.StatusOK)
	return nil
}

// byteRange is an HTTP byte range with an exclusive end, as used by
// Interface.GetBlobRange.
type byteRange struct {
	start, end int64
}

// parseRange parses the value of a Range header, supporting a single
// "bytes=start-end" or open-ended "bytes=start-" range; an empty
// header yields no ranges. A suffix range ("bytes=-500") or multiple
// ranges are rejected so the caller reports 416 rather than guess at
// intent.
func parseRange(h string) ([]byteRange, error) {
	if h == "" {
		return nil, nil
	}
	rest, ok := strings.CutPrefix(h, "bytes=")
	if !ok {
		return nil, fmt.Errorf("unsupported range unit in %q", h)
	}
	if strings.Contains(rest, ",") {
		return nil, fmt.Errorf("multiple ranges are not supported")
	}
	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return nil, fmt.Errorf("invalid range %q", rest)
	}
	startStr, endStr := rest[:dash], rest[dash+1:]
	if startStr == "" {
		return nil, fmt.Errorf("unsupported range %q: suffix ranges are not supported", rest)
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("invalid range start %q", startStr)
	}
	if endStr == "" {
		// Open-ended range: read to the end of the blob, matching
		// GetBlobRange's own sentinel for "no explicit end".
		return []byteRange{{start: start, end: -1}}, nil
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < start {
		return nil, fmt.Errorf("invalid range end %q", endStr)
	}
	// end is inclusive on the wire; GetBlobRange's end is exclusive.
	return []byteRange{{start: start, end: end + 1}}, nil
}
