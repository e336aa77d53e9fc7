package cratereg

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/warehouse-labs/registry/internal/caterr"
)

type okResponse struct {
	OK bool `json:"ok"`
}

// HandleYank implements DELETE /api/v1/crates/{name}/{version}/yank.
func (r *Registry) HandleYank(resp http.ResponseWriter, req *http.Request, name, version string) {
	r.handleYankUnyank(resp, name, version, true)
}

// HandleUnyank implements PUT /api/v1/crates/{name}/{version}/unyank.
func (r *Registry) HandleUnyank(resp http.ResponseWriter, req *http.Request, name, version string) {
	r.handleYankUnyank(resp, name, version, false)
}

func (r *Registry) handleYankUnyank(resp http.ResponseWriter, name, version string, yanked bool) {
	if !ValidateCrateName(name) || !ValidateVersion(version) {
		caterr.NotFound(resp, "crate or version not found")
		return
	}
	cratePath := r.cratePath(name, version)
	if cratePath == "" {
		caterr.NotFound(resp, "crate or version not found")
		return
	}
	if _, err := os.Stat(cratePath); err != nil {
		caterr.NotFound(resp, "crate or version not found")
		return
	}

	found, err := r.setYanked(name, version, yanked)
	if err != nil {
		caterr.Internal(resp, err.Error())
		return
	}
	if !found {
		caterr.NotFound(resp, "crate or version not found")
		return
	}

	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(okResponse{OK: true})
}

// setYanked rewrites the crate's index file so that the line whose
// "vers" equals version has its "yanked" field set to yankedValue,
// preserving line order and any malformed lines verbatim. It reports
// (false, nil) when the index file doesn't exist or contains no
// matching version.
func (r *Registry) setYanked(name, version string, yankedValue bool) (bool, error) {
	indexPath := r.indexPath(name)
	if indexPath == "" {
		return false, nil
	}
	content, err := os.ReadFile(indexPath)
	if err != nil {
		return false, nil
	}

	lines := strings.Split(strings.TrimRight(string(content), "\n"), "\n")
	found := false
	newLines := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			newLines = append(newLines, "")
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
			// Preserve malformed lines as-is.
			newLines = append(newLines, line)
			continue
		}
		if v, ok := record["vers"].(string); ok && v == version {
			found = true
			record["yanked"] = yankedValue
		}
		out, err := json.Marshal(record)
		if err != nil {
			return false, err
		}
		newLines = append(newLines, string(out))
	}

	if !found {
		return false, nil
	}

	newContent := strings.Join(newLines, "\n") + "\n"
	if err := writeFileAtomic(indexPath, []byte(newContent)); err != nil {
		return false, err
	}
	return true, nil
}
