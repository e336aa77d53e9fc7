package cratereg

import (
	"net/http"
	"os"

	"github.com/warehouse-labs/registry/internal/caterr"
)

// HandleDownload implements GET /api/v1/crates/{name}/{version}/download:
// it streams the stored .crate tarball verbatim, the same way the
// Docker side streams blobs straight off disk.
func (r *Registry) HandleDownload(resp http.ResponseWriter, req *http.Request, name, version string) {
	if !ValidateCrateName(name) || !ValidateVersion(version) {
		caterr.NotFound(resp, "crate or version not found")
		return
	}
	path := r.cratePath(name, version)
	if path == "" {
		caterr.NotFound(resp, "crate or version not found")
		return
	}
	if _, err := os.Stat(path); err != nil {
		caterr.NotFound(resp, "crate or version not found")
		return
	}
	resp.Header().Set("Content-Type", "application/octet-stream")
	http.ServeFile(resp, req, path)
}
