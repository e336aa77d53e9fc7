// Package cratereg implements the Cargo sparse-index crate registry
// described in §4.F: publish, yank/unyank, owners, search, download,
// and the sparse index itself. It shares nothing at the storage layer
// with the Docker side (ocifs/ocimem) beyond living under the same
// registry root, matching the original's separate crates/ subtree.
package cratereg

import (
	"path/filepath"
	"strings"
)

// Registry serves the crate registry's HTTP surface out of a root
// directory laid out as:
//
//	<root>/<crate>/<version>/<crate>-<version>.crate
//	<root>/<crate>/owners.json
//	<root>/index/<prefix>/<crate>
type Registry struct {
	root string

	// BaseURL is reported in config.json as both the download-URL base
	// and the API base; it corresponds to REGISTRY_BASE_URL.
	BaseURL string
}

// NewRegistry returns a Registry rooted at root.
func NewRegistry(root string, baseURL string) *Registry {
	return &Registry{root: root, BaseURL: strings.TrimRight(baseURL, "/")}
}

// cratePath returns the on-disk path of a crate's tarball, or "" if
// name or version fails validation.
func (r *Registry) cratePath(name, version string) string {
	if !ValidateCrateName(name) || !ValidateVersion(version) {
		return ""
	}
	return filepath.Join(r.root, name, version, name+"-"+version+".crate")
}

// crateDir returns the per-crate directory (parent of owners.json and
// every version subdirectory).
func (r *Registry) crateDir(name string) string {
	return filepath.Join(r.root, name)
}

// ownersPath returns the on-disk path of a crate's owners.json.
func (r *Registry) ownersPath(name string) string {
	return filepath.Join(r.crateDir(name), "owners.json")
}

// indexPath returns the on-disk path of a crate's sparse-index file,
// or "" if name fails validation.
func (r *Registry) indexPath(name string) string {
	if !ValidateCrateName(name) {
		return ""
	}
	return filepath.Join(r.root, "index", IndexPrefix(name), name)
}

// IndexPrefix computes the crates.io sparse-index directory prefix for
// a lowercase crate name:
//
//	1 char  -> "1"
//	2 chars -> "2"
//	3 chars -> "3/<first char>"
//	4+      -> "<first two>/<next two>"
func IndexPrefix(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3/" + lower[:1]
	default:
		return lower[:2] + "/" + lower[2:4]
	}
}

// ValidateCrateName reports whether name is non-empty, at most 64
// bytes, and restricted to ASCII alphanumerics, '-' and '_'.
func ValidateCrateName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if !isAlphaNum(b) && b != '-' && b != '_' {
			return false
		}
	}
	return true
}

// ValidateVersion reports whether version is non-empty, at most 64
// bytes, and restricted to ASCII alphanumerics, '.', '-' and '+'.
func ValidateVersion(version string) bool {
	if version == "" || len(version) > 64 {
		return false
	}
	for i := 0; i < len(version); i++ {
		b := version[i]
		if !isAlphaNum(b) && b != '.' && b != '-' && b != '+' {
			return false
		}
	}
	return true
}

func isAlphaNum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
