package cratereg

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

type indexConfig struct {
	DL           string `json:"dl"`
	API          string `json:"api"`
	AuthRequired bool   `json:"auth-required,omitempty"`
}

// HandleIndexConfig implements GET /index/config.json.
func (r *Registry) HandleIndexConfig(resp http.ResponseWriter, req *http.Request) {
	cfg := indexConfig{
		DL:  r.BaseURL + "/api/v1/crates/{crate}/{version}/download",
		API: r.BaseURL,
	}
	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(cfg)
}

// HandleCrateIndex implements GET /index/{prefix}/{name}: it serves the
// crate's newline-delimited JSON index file with an ETag derived from
// the file's sha256, honoring If-None-Match for conditional GETs. path
// is the full "{prefix}/{name}" suffix cargo requests.
func (r *Registry) HandleCrateIndex(resp http.ResponseWriter, req *http.Request, path string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		http.NotFound(resp, req)
		return
	}
	prefix, name := path[:i], strings.ToLower(path[i+1:])

	// The prefix the client sent must match what we'd compute
	// ourselves; this prevents path traversal via a crafted prefix.
	if !ValidateCrateName(name) || prefix != IndexPrefix(name) {
		http.NotFound(resp, req)
		return
	}

	indexPath := r.indexPath(name)
	if indexPath == "" {
		http.NotFound(resp, req)
		return
	}
	data, err := os.ReadFile(indexPath)
	if err != nil {
		data = nil
	}

	sum := sha256.Sum256(data)
	etag := fmt.Sprintf("%q", fmt.Sprintf("%x", sum))

	if inm := req.Header.Get("If-None-Match"); inm != "" && inm == etag {
		resp.Header().Set("ETag", etag)
		resp.WriteHeader(http.StatusNotModified)
		return
	}

	resp.Header().Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header().Set("ETag", etag)
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Write(data)
}
