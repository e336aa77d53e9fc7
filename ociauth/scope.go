package ociauth

import (
	"sort"
	"strings"
)

// ResourceScope represents a single scope entry as described by the
// [token authentication specification]: a resource type, an optional
// resource name, and an action to perform on that resource.
//
// [token authentication specification]: https://docs.docker.com/registry/spec/auth/scope/
type ResourceScope struct {
	ResourceType string
	Resource     string
	Action       string
}

// Compare provides an ordering over ResourceScope values, used to
// keep a Scope's entries in a canonical order.
func (r ResourceScope) Compare(other ResourceScope) int {
	if c := strings.Compare(r.ResourceType, other.ResourceType); c != 0 {
		return c
	}
	if c := strings.Compare(r.Resource, other.Resource); c != 0 {
		return c
	}
	return strings.Compare(r.Action, other.Action)
}

func (r ResourceScope) String() string {
	switch {
	case r.ResourceType == "":
		return ""
	case r.Resource == "":
		return r.ResourceType
	case r.Action == "":
		return r.ResourceType + ":" + r.Resource
	default:
		return r.ResourceType + ":" + r.Resource + ":" + r.Action
	}
}

// CatalogScope is the scope that grants access to the registry's
// catalog listing endpoint.
var CatalogScope = ResourceScope{
	ResourceType: "registry",
	Resource:     "catalog",
	Action:       "*",
}

// Scope represents a set of [ResourceScope] entries, as found in the
// scope parameter of a token request or in a WWW-Authenticate
// challenge header.
//
// The zero value holds an empty scope. Scope values are immutable:
// all operations that would change a Scope's contents return a new
// value.
type Scope struct {
	// unlimited is true when the scope represents "*", granting
	// access to everything. No other fields are meaningful in
	// that case.
	unlimited bool

	// str holds the original string representation, preserved
	// across round trips when the set of entries is unchanged by
	// an operation (for example, a no-op Union).
	str string

	// entries holds the canonically-sorted, de-duplicated set of
	// scope entries. It is filled in eagerly by ParseScope and
	// NewScope, and is nil only for an empty scope.
	entries []ResourceScope
}

// NewScope returns a Scope holding exactly the given entries, which
// need not be sorted or de-duplicated.
func NewScope(entries ...ResourceScope) Scope {
	s := Scope{entries: canonicalEntries(entries)}
	s.str = joinEntries(s.entries)
	return s
}

// UnlimitedScope returns the scope that holds every possible
// permission, as represented by the wire value "*".
func UnlimitedScope() Scope {
	return Scope{unlimited: true, str: "*"}
}

// IsUnlimited reports whether s is the unlimited scope.
func (s Scope) IsUnlimited() bool {
	return s.unlimited
}

// ParseScope parses a space-separated scope string such as that
// found in a token request's scope parameter or a WWW-Authenticate
// challenge's scope parameter.
//
// Each space-separated field is either a bare scope name (for
// unrecognized scope kinds) or of the form
// "resourcetype:resource:actions", where actions is a
// comma-separated list of actions; ParseScope expands that into one
// ResourceScope per action.
func ParseScope(s string) Scope {
	if s == "*" {
		return UnlimitedScope()
	}
	fields := strings.Fields(s)
	var entries []ResourceScope
	for _, f := range fields {
		parts := strings.SplitN(f, ":", 3)
		switch len(parts) {
		case 1:
			entries = append(entries, ResourceScope{ResourceType: parts[0]})
		case 3:
			for _, action := range strings.Split(parts[2], ",") {
				entries = append(entries, ResourceScope{
					ResourceType: parts[0],
					Resource:     parts[1],
					Action:       action,
				})
			}
		default:
			// A resource type with a resource but no actions
			// (shouldn't happen in practice, but keep the entry
			// rather than silently dropping it).
			entries = append(entries, ResourceScope{ResourceType: parts[0], Resource: parts[1]})
		}
	}
	scope := Scope{entries: canonicalEntries(entries)}
	scope.str = s
	return scope
}

// Canonical returns s with its wire string in canonical form: scopes
// sorted by resource type, then resource, then action, with actions
// for the same resource type and resource merged into a single
// comma-separated entry.
func (s Scope) Canonical() Scope {
	if s.unlimited {
		return s
	}
	return Scope{entries: s.entries, str: joinEntries(s.entries)}
}

// String returns the wire representation of s. A parsed scope keeps
// the original string it was parsed from; a scope built by NewScope,
// or by a Union that changes the set of entries, uses the canonical
// form.
func (s Scope) String() string {
	return s.str
}

// Equal reports whether s and s1 hold exactly the same set of
// entries.
func (s Scope) Equal(s1 Scope) bool {
	if s.unlimited || s1.unlimited {
		return s.unlimited == s1.unlimited
	}
	if len(s.entries) != len(s1.entries) {
		return false
	}
	for i, e := range s.entries {
		if e != s1.entries[i] {
			return false
		}
	}
	return true
}

// Len returns the number of entries held by s. It panics if s is the
// unlimited scope, which conceptually holds an unbounded number of
// entries.
func (s Scope) Len() int {
	if s.unlimited {
		panic("Len called on unlimited scope")
	}
	return len(s.entries)
}

// Iter returns an iterator (in the pre-range-over-func style used
// throughout this package's tests) over s's entries in canonical
// order.
func (s Scope) Iter() func(func(ResourceScope) bool) {
	return func(yield func(ResourceScope) bool) {
		for _, e := range s.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Holds reports whether s grants the given resource scope.
func (s Scope) Holds(r ResourceScope) bool {
	if s.unlimited {
		return true
	}
	for _, e := range s.entries {
		if e == r {
			return true
		}
	}
	return false
}

// Contains reports whether s grants every entry held by s1.
func (s Scope) Contains(s1 Scope) bool {
	if s1.unlimited {
		return s.unlimited
	}
	if s.unlimited {
		return true
	}
	for _, e := range s1.entries {
		if !s.Holds(e) {
			return false
		}
	}
	return true
}

// Union returns the scope that holds every entry held by either s or
// s1. If the result is equal to s or s1, its original string form is
// preserved.
func (s Scope) Union(s1 Scope) Scope {
	if s.unlimited || s1.unlimited {
		return UnlimitedScope()
	}
	if len(s1.entries) == 0 {
		return s
	}
	if len(s.entries) == 0 {
		return s1
	}
	merged := append(append([]ResourceScope{}, s.entries...), s1.entries...)
	entries := canonicalEntries(merged)
	u := Scope{entries: entries}
	switch {
	case sameEntries(entries, s.entries):
		u.str = s.str
	case sameEntries(entries, s1.entries):
		u.str = s1.str
	default:
		u.str = joinEntries(entries)
	}
	return u
}

func sameEntries(a, b []ResourceScope) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// canonicalEntries sorts entries, merges actions for entries sharing
// the same resource type and resource, and removes duplicates.
func canonicalEntries(entries []ResourceScope) []ResourceScope {
	if len(entries) == 0 {
		return nil
	}
	sorted := append([]ResourceScope{}, entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Compare(sorted[j]) < 0
	})
	result := sorted[:0:0]
	for _, e := range sorted {
		if n := len(result); n > 0 && result[n-1] == e {
			continue
		}
		result = append(result, e)
	}
	return result
}

// joinEntries renders entries (assumed already canonical) into the
// grouped wire form, merging consecutive actions for the same
// resource type and resource into a single comma-separated field.
func joinEntries(entries []ResourceScope) string {
	var fields []string
	for i := 0; i < len(entries); {
		e := entries[i]
		if e.Resource == "" {
			fields = append(fields, e.ResourceType)
			i++
			continue
		}
		j := i + 1
		var actions []string
		if e.Action != "" {
			actions = append(actions, e.Action)
		}
		for j < len(entries) && entries[j].ResourceType == e.ResourceType && entries[j].Resource == e.Resource {
			if entries[j].Action != "" {
				actions = append(actions, entries[j].Action)
			}
			j++
		}
		if len(actions) == 0 {
			fields = append(fields, e.ResourceType+":"+e.Resource)
		} else {
			fields = append(fields, e.ResourceType+":"+e.Resource+":"+strings.Join(actions, ","))
		}
		i = j
	}
	return strings.Join(fields, " ")
}
