package ociref

import (
	"regexp"

	"github.com/warehouse-labs/registry"
)

var (
	repoNamePattern = regexp.MustCompile(`^` + repoName + `$`)
	tagPattern      = regexp.MustCompile(`^` + tag + `$`)
	digestPattern   = regexp.MustCompile(`^[a-z0-9]+(?:[.+_-][a-z0-9]+)*:[a-zA-Z0-9=_-]+$`)
)

// IsValidRepository reports whether name is a valid repository name
// as defined by the distribution spec: one or more slash-separated
// path components, each starting with an alphanumeric character.
func IsValidRepository(name string) bool {
	if len(name) == 0 || len(name) > 255 {
		return false
	}
	return repoNamePattern.MatchString(name)
}

// IsValidTag reports whether tag is a valid tag name.
func IsValidTag(tagName string) bool {
	if len(tagName) == 0 || len(tagName) > 127 {
		return false
	}
	return tagPattern.MatchString(tagName)
}

// IsValidDigest reports whether d is a well-formed digest string
// of the form "algorithm:encoded", e.g. "sha256:<64 hex characters>".
func IsValidDigest(d string) bool {
	if !digestPattern.MatchString(d) {
		return false
	}
	return ociregistry.Digest(d).Validate() == nil
}
