package ociauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is how long a minted token remains valid, per §4.E of the
// token authority specification: 10 minutes after issue.
const TokenTTL = 10 * time.Minute

// Claims are the token claims minted by Authority.IssueToken and
// checked by Authority.VerifyToken.
type Claims struct {
	jwt.RegisteredClaims

	// Service is the token's audience: the registry service name
	// that requested it, checked against the configured service
	// name on every gated request.
	Service string `json:"service"`

	// Scope is the token's scope grant, in the same wire format
	// ParseScope accepts.
	Scope string `json:"scope"`
}

// Authority mints and verifies bearer tokens for a single configured
// service, using a symmetric signing secret set once at startup.
type Authority struct {
	secret  []byte
	service string
}

// NewAuthority returns an Authority that signs and verifies tokens
// for the given service name using secret as the HMAC key.
func NewAuthority(secret []byte, service string) *Authority {
	return &Authority{secret: secret, service: service}
}

// IssueToken mints a signed token for subject holding scope, valid
// for TokenTTL from now.
func (a *Authority) IssueToken(subject string, scope Scope) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		Service: a.service,
		Scope:   scope.String(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(a.secret)
}

// VerifyToken decodes and verifies tokenString's signature and
// expiry, and checks that its service claim matches the Authority's
// configured service. It returns the token's claims on success.
func (a *Authority) VerifyToken(tokenString string) (Claims, error) {
	var claims Claims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("invalid token: %v", err)
	}
	if !tok.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}
	if claims.Service != a.service {
		return Claims{}, fmt.Errorf("token issued for a different service")
	}
	return claims, nil
}
