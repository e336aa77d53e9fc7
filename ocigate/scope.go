package ocigate

import (
	"net/http"
	"strings"

	"github.com/warehouse-labs/registry/ociauth"
)

// requiredGrant is the (resourceType, resource, action) triple a
// request must be granted in the bearer token's scope.
type requiredGrant struct {
	resourceType string
	resource     string
	action       string
}

// requestGrant derives the requiredGrant for req per §4.E step 3:
// GET/HEAD map to "pull", the mutating methods map to "push", and the
// repository name is the path substring before the first of
// "/blobs/", "/manifests/", or "/tags/list". Admin endpoints
// (/admin/gc/...) require the fixed "registry:admin:gc" grant instead,
// a grammar reserved for operator tokens and never satisfied by a
// repository-scoped one. Routes with neither shape (the catalog, and
// anything outside /v2/ and /admin/) report scoped=false: they carry
// no scope check at all.
func requestGrant(req *http.Request) (g requiredGrant, scoped bool) {
	if rest, ok := strings.CutPrefix(req.URL.Path, "/admin/gc/"); ok && rest != "" {
		return requiredGrant{resourceType: "registry", resource: "admin", action: "gc"}, true
	}

	path, ok := strings.CutPrefix(req.URL.Path, "/v2/")
	if !ok {
		return requiredGrant{}, false
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" || path == "_catalog" {
		return requiredGrant{}, false
	}
	best := -1
	for _, marker := range []string{"/blobs/", "/manifests/", "/tags/list"} {
		if i := strings.Index(path, marker); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return requiredGrant{}, false
	}
	action := "push"
	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		action = "pull"
	}
	return requiredGrant{resourceType: "repository", resource: path[:best], action: action}, true
}

// grants reports whether scopeStr, in the wire format ParseScope
// accepts, grants g: an entry matches when its resource type and name
// are g's (or "*"/"*") and its action is g's action (or "*").
func grants(scopeStr string, g requiredGrant) bool {
	scope := ociauth.ParseScope(scopeStr)
	if scope.IsUnlimited() {
		return true
	}
	granted := false
	scope.Iter()(func(e ociauth.ResourceScope) bool {
		if e.ResourceType != g.resourceType {
			return true
		}
		if e.Resource != g.resource && e.Resource != "*" {
			return true
		}
		if e.Action != g.action && e.Action != "*" {
			return true
		}
		granted = true
		return false
	})
	return granted
}
