package ocifs

import (
	"cmp"
	"encoding/json"
	"fmt"
	"iter"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/warehouse-labs/registry"
)

type refKind int

const (
	kindSubjectManifest refKind = iota
	kindBlob
	kindManifest
)

type descInfo struct {
	name string
	kind refKind
	desc ociregistry.Descriptor
}

// manifestInfo describes the references a stored manifest makes to
// other content, used by Referrers and the garbage collector's
// transitive walk.
type manifestInfo struct {
	descriptors  descIter
	subject      ociregistry.Digest
	artifactType string
	annotations  map[string]string
}

type descIter = iter.Seq[descInfo]

var manifestInfoByMediaType = map[string]func(data []byte) (manifestInfo, error){
	mediaTypeOCIImageManifest: manifestInfoForType(imageInfo),
	mediaTypeOCIImageIndex:    manifestInfoForType(indexInfo),
	"application/vnd.docker.distribution.manifest.v2+json":      manifestInfoForType(imageInfo),
	"application/vnd.docker.distribution.manifest.list.v2+json": manifestInfoForType(indexInfo),
}

// getManifestInfo returns information on the manifest described by
// the given media type and data.
func getManifestInfo(mediaType string, data []byte) (manifestInfo, error) {
	getInfo := manifestInfoByMediaType[mediaType]
	if getInfo == nil {
		return manifestInfo{
			descriptors: func(func(descInfo) bool) {},
		}, nil
	}
	return getInfo(data)
}

func manifestInfoForType[T any](getInfo func(T) manifestInfo) func(data []byte) (manifestInfo, error) {
	return func(data []byte) (manifestInfo, error) {
		var x T
		if err := json.Unmarshal(data, &x); err != nil {
			return manifestInfo{}, fmt.Errorf("cannot unmarshal into %T: %v", &x, err)
		}
		return getInfo(x), nil
	}
}

func imageInfo(m ociregistry.Manifest) manifestInfo {
	var info manifestInfo
	info.descriptors = func(yield func(descInfo) bool) {
		for i, layer := range m.Layers {
			if !yield(descInfo{
				name: fmt.Sprintf("layers[%d]", i),
				desc: layer,
				kind: kindBlob,
			}) {
				return
			}
		}
		if !yield(descInfo{
			name: "config",
			desc: m.Config,
			kind: kindBlob,
		}) {
			return
		}
		if m.Subject != nil {
			if !yield(descInfo{
				name: "subject",
				kind: kindSubjectManifest,
				desc: *m.Subject,
			}) {
				return
			}
		}
	}
	info.artifactType = cmp.Or(m.ArtifactType, m.Config.MediaType)
	info.annotations = m.Annotations
	if m.Subject != nil {
		info.subject = m.Subject.Digest
	}
	return info
}

func indexInfo(m ocispec.Index) manifestInfo {
	var info manifestInfo
	info.descriptors = func(yield func(descInfo) bool) {
		for i, manifest := range m.Manifests {
			if !yield(descInfo{
				name: fmt.Sprintf("manifests[%d]", i),
				kind: kindManifest,
				desc: manifest,
			}) {
				return
			}
		}
		if m.Subject != nil {
			if !yield(descInfo{
				name: "subject",
				kind: kindSubjectManifest,
				desc: *m.Subject,
			}) {
				return
			}
		}
	}
	info.artifactType = m.ArtifactType
	info.annotations = m.Annotations
	if m.Subject != nil {
		info.subject = m.Subject.Digest
	}
	return info
}
