package ocigc

import (
	"encoding/json"
	"net/http"
)

// Handler serves the privileged GC endpoints described in §4.F/§4.G:
// POST /admin/gc/docker and POST /admin/gc/crates. Scope enforcement
// (the "registry:admin:gc" grant) is the Gatekeeper's job, not this
// handler's — Handler assumes it's only reachable once that check has
// already passed.
type Handler struct {
	DockerRoot string
	CratesRoot string
}

// Routes registers the GC endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /admin/gc/docker", h.handleDockerGC)
	mux.HandleFunc("POST /admin/gc/crates", h.handleCratesGC)
}

func (h *Handler) handleDockerGC(resp http.ResponseWriter, req *http.Request) {
	report, err := DockerGC(req.Context(), h.DockerRoot)
	if err != nil {
		http.Error(resp, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(resp, report)
}

func (h *Handler) handleCratesGC(resp http.ResponseWriter, req *http.Request) {
	report, err := CratesGC(h.CratesRoot)
	if err != nil {
		http.Error(resp, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(resp, report)
}

func writeJSON(resp http.ResponseWriter, v any) {
	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(v)
}
