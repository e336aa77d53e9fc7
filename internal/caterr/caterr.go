// Package caterr implements the crates.io-style JSON error envelope used
// by the crate registry's API endpoints: {"errors":[{"detail":"..."}]}.
// It's the crate-side counterpart to ociregistry.WireErrors, which uses
// the Docker Distribution error shape instead.
package caterr

import (
	"encoding/json"
	"net/http"
)

type wireError struct {
	Detail string `json:"detail"`
}

type wireErrors struct {
	Errors []wireError `json:"errors"`
}

// Write writes status and detail to resp as a crates.io error envelope.
func Write(resp http.ResponseWriter, status int, detail string) {
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(status)
	data, err := json.Marshal(wireErrors{Errors: []wireError{{Detail: detail}}})
	if err != nil {
		return
	}
	resp.Write(data)
}

// NotFound writes a 404 envelope with detail.
func NotFound(resp http.ResponseWriter, detail string) {
	Write(resp, http.StatusNotFound, detail)
}

// BadRequest writes a 400 envelope with detail.
func BadRequest(resp http.ResponseWriter, detail string) {
	Write(resp, http.StatusBadRequest, detail)
}

// Internal writes a 500 envelope with detail.
func Internal(resp http.ResponseWriter, detail string) {
	Write(resp, http.StatusInternalServerError, detail)
}

// Conflict writes a 409 envelope with detail.
func Conflict(resp http.ResponseWriter, detail string) {
	Write(resp, http.StatusConflict, detail)
}

// Unprocessable writes a 422 envelope with detail.
func Unprocessable(resp http.ResponseWriter, detail string) {
	Write(resp, http.StatusUnprocessableEntity, detail)
}
