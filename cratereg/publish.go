package cratereg

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/warehouse-labs/registry/internal/caterr"
)

// publishMetadata is the JSON metadata segment of the cargo publish
// binary payload. Fields cargo sends that the index doesn't need
// (description, homepage, categories, ...) are intentionally not
// declared here; json.Unmarshal ignores them.
type publishMetadata struct {
	Name        string              `json:"name"`
	Vers        string              `json:"vers"`
	Deps        []publishDep        `json:"deps"`
	Features    map[string][]string `json:"features"`
	Features2   map[string][]string `json:"features2,omitempty"`
	Links       *string             `json:"links,omitempty"`
	RustVersion *string             `json:"rust_version,omitempty"`
}

type publishDep struct {
	Name                string   `json:"name"`
	VersionReq          string   `json:"version_req"`
	Features            []string `json:"features"`
	Optional            bool     `json:"optional"`
	DefaultFeatures     bool     `json:"default_features"`
	Target              *string  `json:"target,omitempty"`
	Kind                string   `json:"kind"`
	Registry            *string  `json:"registry,omitempty"`
	ExplicitNameInToml  *string  `json:"explicit_name_in_toml,omitempty"`
}

// indexRecord is one line of a crate's sparse index file.
type indexRecord struct {
	Name        string              `json:"name"`
	Vers        string              `json:"vers"`
	Deps        []indexDep          `json:"deps"`
	Cksum       string              `json:"cksum"`
	Features    map[string][]string `json:"features"`
	Features2   map[string][]string `json:"features2,omitempty"`
	Yanked      bool                `json:"yanked"`
	Links       *string             `json:"links,omitempty"`
	RustVersion *string             `json:"rust_version,omitempty"`
	V           int                 `json:"v"`
}

type indexDep struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target,omitempty"`
	Kind            string   `json:"kind"`
	Registry        *string  `json:"registry,omitempty"`
	Package         *string  `json:"package,omitempty"`
}

type publishWarnings struct {
	InvalidCategories []string `json:"invalid_categories"`
	InvalidBadges     []string `json:"invalid_badges"`
	Other             []string `json:"other"`
}

type publishResponse struct {
	Warnings publishWarnings `json:"warnings"`
}

// parsePublishBody splits the cargo publish wire format
// (u32LE json_len | json bytes | u32LE crate_len | crate bytes) into
// its metadata and tarball segments.
//
// All offsets are computed in uint64 before ever being compared
// against len(body) or used to slice it, so a crafted length field
// near the uint32 range's edge is caught as a truncation error rather
// than wrapping around and producing an invalid (or panicking) slice
// expression.
func parsePublishBody(body []byte) (publishMetadata, []byte, error) {
	var meta publishMetadata
	bodyLen := uint64(len(body))
	if bodyLen < 4 {
		return meta, nil, fmt.Errorf("payload too short")
	}
	jsonLen := uint64(binary.LittleEndian.Uint32(body[:4]))
	jsonStart := uint64(4)
	jsonEnd := jsonStart + jsonLen
	if jsonEnd+4 > bodyLen {
		return meta, nil, fmt.Errorf("payload truncated (metadata)")
	}
	jsonBytes := body[jsonStart:jsonEnd]
	if err := json.Unmarshal(jsonBytes, &meta); err != nil {
		return meta, nil, fmt.Errorf("invalid metadata JSON: %v", err)
	}
	crateLen := uint64(binary.LittleEndian.Uint32(body[jsonEnd : jsonEnd+4]))
	crateStart := jsonEnd + 4
	crateEndVal := crateStart + crateLen
	if crateEndVal > bodyLen {
		return meta, nil, fmt.Errorf("payload truncated (crate tarball)")
	}
	return meta, body[crateStart:crateEndVal], nil
}

// HandlePublish implements PUT /api/v1/crates/new, per §4.F.
func (r *Registry) HandlePublish(resp http.ResponseWriter, req *http.Request) {
	body, err := readAllLimited(req)
	if err != nil {
		caterr.BadRequest(resp, err.Error())
		return
	}
	meta, crateBytes, err := parsePublishBody(body)
	if err != nil {
		caterr.BadRequest(resp, err.Error())
		return
	}

	if !ValidateCrateName(meta.Name) {
		caterr.Unprocessable(resp, "invalid crate name")
		return
	}
	if !ValidateVersion(meta.Vers) {
		caterr.Unprocessable(resp, "invalid version string")
		return
	}

	cratePath := r.cratePath(meta.Name, meta.Vers)
	if cratePath == "" {
		caterr.Unprocessable(resp, "invalid crate name or version")
		return
	}
	if _, err := os.Stat(cratePath); err == nil {
		caterr.Conflict(resp, "this version has already been published")
		return
	}

	if err := writeFileAtomic(cratePath, crateBytes); err != nil {
		caterr.Internal(resp, "failed to write crate file")
		return
	}

	sum := sha256.Sum256(crateBytes)
	cksum := fmt.Sprintf("%x", sum)

	deps := make([]indexDep, len(meta.Deps))
	for i, d := range meta.Deps {
		pkg := d.ExplicitNameInToml
		if pkg != nil && *pkg == d.Name {
			pkg = nil
		}
		deps[i] = indexDep{
			Name:            d.Name,
			Req:             d.VersionReq,
			Features:        d.Features,
			Optional:        d.Optional,
			DefaultFeatures: d.DefaultFeatures,
			Target:          d.Target,
			Kind:            d.Kind,
			Registry:        d.Registry,
			Package:         pkg,
		}
	}
	record := indexRecord{
		Name:        meta.Name,
		Vers:        meta.Vers,
		Deps:        deps,
		Cksum:       cksum,
		Features:    meta.Features,
		Features2:   meta.Features2,
		Yanked:      false,
		Links:       meta.Links,
		RustVersion: meta.RustVersion,
		V:           1,
	}
	line, err := json.Marshal(record)
	if err != nil {
		caterr.Internal(resp, "failed to serialize index record")
		return
	}

	indexPath := r.indexPath(meta.Name)
	if indexPath == "" {
		caterr.Internal(resp, "failed to resolve index path")
		return
	}
	if err := appendIndexLine(indexPath, line); err != nil {
		caterr.Internal(resp, "failed to write index entry")
		return
	}

	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(publishResponse{})
}

// appendIndexLine appends line, newline-terminated, to the index file
// at path, creating the file and its parent directories as needed.
func appendIndexLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// writeFileAtomic writes data to path by writing to a temporary file
// in the same directory and renaming it into place, so a concurrent
// reader never observes a partially written tarball. It mirrors
// ocifs's writer of the same name, applied to crate tarballs instead
// of blobs/manifests.
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
