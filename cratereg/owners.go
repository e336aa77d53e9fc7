package cratereg

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/warehouse-labs/registry/internal/caterr"
)

// Owner is one entry of a crate's owners.json.
type Owner struct {
	ID    uint64  `json:"id"`
	Login string  `json:"login"`
	Name  *string `json:"name,omitempty"`
}

type ownersRequest struct {
	Users []string `json:"users"`
}

type ownersResponse struct {
	Users []Owner `json:"users"`
}

func (r *Registry) loadOwners(name string) []Owner {
	data, err := os.ReadFile(r.ownersPath(name))
	if err != nil {
		return nil
	}
	var owners []Owner
	if err := json.Unmarshal(data, &owners); err != nil {
		return nil
	}
	return owners
}

func (r *Registry) saveOwners(name string, owners []Owner) error {
	data, err := json.MarshalIndent(owners, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(r.ownersPath(name), data)
}

func (r *Registry) crateExists(name string) bool {
	fi, err := os.Stat(r.crateDir(name))
	return err == nil && fi.IsDir()
}

// HandleListOwners implements GET /api/v1/crates/{name}/owners.
func (r *Registry) HandleListOwners(resp http.ResponseWriter, req *http.Request, name string) {
	name = strings.ToLower(name)
	if !ValidateCrateName(name) || !r.crateExists(name) {
		caterr.NotFound(resp, "crate not found")
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(ownersResponse{Users: r.loadOwners(name)})
}

// HandleAddOwners implements PUT /api/v1/crates/{name}/owners.
func (r *Registry) HandleAddOwners(resp http.ResponseWriter, req *http.Request, name string) {
	name = strings.ToLower(name)
	if !ValidateCrateName(name) || !r.crateExists(name) {
		caterr.NotFound(resp, "crate not found")
		return
	}
	var body ownersRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		caterr.BadRequest(resp, "invalid request body")
		return
	}
	if len(body.Users) == 0 {
		caterr.BadRequest(resp, "users list must not be empty")
		return
	}

	owners := r.loadOwners(name)
	var nextID uint64
	for _, o := range owners {
		if o.ID >= nextID {
			nextID = o.ID + 1
		}
	}
	for _, login := range body.Users {
		login = strings.TrimSpace(login)
		if login == "" {
			continue
		}
		dup := false
		for _, o := range owners {
			if strings.EqualFold(o.Login, login) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		owners = append(owners, Owner{ID: nextID, Login: login})
		nextID++
	}

	if err := r.saveOwners(name, owners); err != nil {
		caterr.Internal(resp, "failed to save owners")
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(okResponse{OK: true})
}

// HandleRemoveOwners implements DELETE /api/v1/crates/{name}/owners.
func (r *Registry) HandleRemoveOwners(resp http.ResponseWriter, req *http.Request, name string) {
	name = strings.ToLower(name)
	if !ValidateCrateName(name) || !r.crateExists(name) {
		caterr.NotFound(resp, "crate not found")
		return
	}
	var body ownersRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		caterr.BadRequest(resp, "invalid request body")
		return
	}
	if len(body.Users) == 0 {
		caterr.BadRequest(resp, "users list must not be empty")
		return
	}

	remove := make(map[string]bool, len(body.Users))
	for _, u := range body.Users {
		remove[strings.ToLower(strings.TrimSpace(u))] = true
	}

	owners := r.loadOwners(name)
	kept := owners[:0]
	for _, o := range owners {
		if !remove[strings.ToLower(o.Login)] {
			kept = append(kept, o)
		}
	}

	if err := r.saveOwners(name, kept); err != nil {
		caterr.Internal(resp, "failed to save owners")
		return
	}
	resp.Header().Set("Content-Type", "application/json")
	json.NewEncoder(resp).Encode(okResponse{OK: true})
}
