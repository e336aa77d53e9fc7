package ocigate

import (
	"encoding/json"
	"net/http"

	"github.com/warehouse-labs/registry"
)

func writeEnvelope(resp http.ResponseWriter, status int, code, message string) {
	resp.Header().Set("Content-Type", "application/json")
	resp.WriteHeader(status)
	data, _ := json.Marshal(ociregistry.WireErrors{
		Errors: []ociregistry.WireError{{
			Code_:   code,
			Message: message,
		}},
	})
	resp.Write(data)
}

func writeUnauthorized(resp http.ResponseWriter, err error) {
	writeEnvelope(resp, http.StatusUnauthorized, ociregistry.ErrUnauthorized.Code(), err.Error())
}

func writeDenied(resp http.ResponseWriter, status int, message string) {
	writeEnvelope(resp, status, ociregistry.ErrDenied.Code(), message)
}
