package cratereg

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/warehouse-labs/registry/internal/caterr"
)

// MaxBodyBytes bounds the size of the request body HandlePublish will
// read, corresponding to MAX_REQUEST_BODY_BYTES. The owners handlers
// decode their request bodies without this limit.
var MaxBodyBytes int64 = 64 << 20

func readAllLimited(req *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(req.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read request body: %v", err)
	}
	if int64(len(data)) > MaxBodyBytes {
		return nil, fmt.Errorf("request body too large")
	}
	return data, nil
}

// Handler returns an http.Handler serving the full crate registry
// surface: publish, download, yank/unyank, owners, search under
// /api/v1/crates, and the sparse index under /index.
func (r *Registry) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT /api/v1/crates/new", r.HandlePublish)
	mux.HandleFunc("GET /api/v1/crates", r.HandleSearch)
	mux.HandleFunc("GET /api/v1/crates/{name}/{version}/download", func(resp http.ResponseWriter, req *http.Request) {
		r.HandleDownload(resp, req, req.PathValue("name"), req.PathValue("version"))
	})
	mux.HandleFunc("DELETE /api/v1/crates/{name}/{version}/yank", func(resp http.ResponseWriter, req *http.Request) {
		r.HandleYank(resp, req, req.PathValue("name"), req.PathValue("version"))
	})
	mux.HandleFunc("PUT /api/v1/crates/{name}/{version}/unyank", func(resp http.ResponseWriter, req *http.Request) {
		r.HandleUnyank(resp, req, req.PathValue("name"), req.PathValue("version"))
	})
	mux.HandleFunc("GET /api/v1/crates/{name}/owners", func(resp http.ResponseWriter, req *http.Request) {
		r.HandleListOwners(resp, req, req.PathValue("name"))
	})
	mux.HandleFunc("PUT /api/v1/crates/{name}/owners", func(resp http.ResponseWriter, req *http.Request) {
		r.HandleAddOwners(resp, req, req.PathValue("name"))
	})
	mux.HandleFunc("DELETE /api/v1/crates/{name}/owners", func(resp http.ResponseWriter, req *http.Request) {
		r.HandleRemoveOwners(resp, req, req.PathValue("name"))
	})

	mux.HandleFunc("GET /index/config.json", r.HandleIndexConfig)
	mux.HandleFunc("GET /index/", func(resp http.ResponseWriter, req *http.Request) {
		path := strings.TrimPrefix(req.URL.Path, "/index/")
		if path == "" {
			caterr.NotFound(resp, "crate not found")
			return
		}
		r.HandleCrateIndex(resp, req, path)
	})

	return mux
}
