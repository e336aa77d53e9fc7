package cratereg

import (
	"encoding/json"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/warehouse-labs/registry/internal/caterr"
)

type searchCrate struct {
	Name       string  `json:"name"`
	MaxVersion string  `json:"max_version"`
	Description *string `json:"description,omitempty"`
}

type searchMeta struct {
	Total int `json:"total"`
}

type searchResponse struct {
	Crates []searchCrate `json:"crates"`
	Meta   searchMeta    `json:"meta"`
}

// HandleSearch implements GET /api/v1/crates?q=...&per_page=...&page=...
func (r *Registry) HandleSearch(resp http.ResponseWriter, req *http.Request) {
	q := strings.ToLower(strings.TrimSpace(req.URL.Query().Get("q")))
	if q == "" {
		caterr.BadRequest(resp, "search query must not be empty")
		return
	}
	perPage := clampInt(parseIntDefault(req.URL.Query().Get("per_page"), 10), 1, 100)
	page := max(parseIntDefault(req.URL.Query().Get("page"), 1), 1)

	entries, err := os.ReadDir(r.root)
	if err != nil {
		entries = nil
	}
	var matches []searchCrate
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "index" {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.Contains(name, q) {
			continue
		}
		version := r.findMaxVersion(name)
		if version == "" {
			continue
		}
		matches = append(matches, searchCrate{Name: name, MaxVersion: version})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })

	total := len(matches)
	offset := (page - 1) * perPage
	if offset > total {
		offset = total
	}
	end := offset + perPage
	if end > total {
		end = total
	}

	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(searchResponse{
		Crates: matches[offset:end],
		Meta:   searchMeta{Total: total},
	})
}

// findMaxVersion returns the lexicographically-by-semver greatest
// version subdirectory under the crate's directory, falling back to
// plain string comparison for anything semver can't parse.
func (r *Registry) findMaxVersion(name string) string {
	entries, err := os.ReadDir(r.crateDir(name))
	if err != nil {
		return ""
	}
	var best string
	var bestVer *semver.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		v := e.Name()
		if sv, err := semver.NewVersion(v); err == nil {
			if bestVer == nil || sv.GreaterThan(bestVer) {
				bestVer, best = sv, v
			}
			continue
		}
		if bestVer == nil && v > best {
			best = v
		}
	}
	return best
}

func parseIntDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func clampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
