package ociauth

import (
	"encoding/json"
	"net/http"
)

// CredentialChecker validates a username/password pair (from HTTP
// Basic auth on the token endpoint) and returns the subject to embed
// in the minted token.
type CredentialChecker func(user, pass string) (subject string, ok bool)

// TokenHandlerConfig configures NewTokenHandler.
type TokenHandlerConfig struct {
	// Authority mints the tokens this handler issues.
	Authority *Authority

	// CheckCredentials validates HTTP Basic credentials. Ignored
	// (and Basic auth not required) when AuthDisabled is true.
	CheckCredentials CredentialChecker

	// AuthDisabled, when true, skips credential validation
	// entirely and issues tokens for AnonymousSubject.
	AuthDisabled bool

	// AnonymousSubject is the subject claim used when AuthDisabled
	// is true.
	AnonymousSubject string
}

// NewTokenHandler returns the GET /token handler described by §4.E:
// it validates the service parameter against the Authority's
// configured service, validates HTTP Basic credentials (unless auth
// is disabled), and mints a token scoped to the requested scope
// parameter.
func NewTokenHandler(cfg TokenHandlerConfig) http.HandlerFunc {
	return func(resp http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		service := q.Get("service")
		if service != cfg.Authority.service {
			http.Error(resp, "service does not match this registry", http.StatusBadRequest)
			return
		}

		subject := cfg.AnonymousSubject
		if !cfg.AuthDisabled {
			user, pass, ok := req.BasicAuth()
			if !ok {
				resp.Header().Set("WWW-Authenticate", `Basic realm="Warehouse Registry"`)
				http.Error(resp, "authentication required", http.StatusUnauthorized)
				return
			}
			s, ok := cfg.CheckCredentials(user, pass)
			if !ok {
				resp.Header().Set("WWW-Authenticate", `Basic realm="Warehouse Registry"`)
				http.Error(resp, "invalid credentials", http.StatusUnauthorized)
				return
			}
			subject = s
		}

		scope := ParseScope(q.Get("scope"))
		token, err := cfg.Authority.IssueToken(subject, scope)
		if err != nil {
			http.Error(resp, "cannot issue token", http.StatusInternalServerError)
			return
		}

		resp.Header().Set("Content-Type", "application/json")
		json.NewEncoder(resp).Encode(struct {
			Token       string `json:"token"`
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}{
			Token:       token,
			AccessToken: token,
			ExpiresIn:   int(TokenTTL.Seconds()),
		})
	}
}
