package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes understood by the ledger API.
const (
	ScopeRead        = "ledger:read"
	ScopeWrite       = "ledger:write"
	ScopeAdmin       = "ledger:admin"
	ScopeWithdrawals = "withdrawals:write"
)

// Claims are the access token claims. The subject is the acting user or
// service and is recorded as created_by on every posting.
type Claims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

type principalKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	Actor  string
	Scopes map[string]struct{}
}

func (p *Principal) Has(scope string) bool {
	_, ok := p.Scopes[scope]
	return ok
}

func NewPrincipal(actor string, scopes ...string) *Principal {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		set[s] = struct{}{}
	}
	return &Principal{Actor: actor, Scopes: set}
}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

type JWTValidator struct {
	KeySet *KeySet
	Issuer string
}

func (v *JWTValidator) Validate(tokenString string) (*Claims, error) {
	if v.KeySet == nil || v.KeySet.PublicKey() == nil {
		return nil, errors.New("missing keyset")
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.KeySet.PublicKey(), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Principal validates a bearer header value and returns the caller.
func (v *JWTValidator) Principal(authorization string) (*Principal, error) {
	if v == nil {
		return nil, errors.New("no validator configured")
	}
	if len(authorization) < len("Bearer ") || !strings.EqualFold(authorization[:len("Bearer ")], "bearer ") {
		return nil, errors.New("missing bearer token")
	}
	claims, err := v.Validate(strings.TrimSpace(authorization[len("Bearer "):]))
	if err != nil {
		return nil, err
	}
	return NewPrincipal(claims.Subject, claims.Scopes...), nil
}

type ErrorFunc func(w http.ResponseWriter, r *http.Request, status int, message string)

func Authenticate(v *JWTValidator, onError ErrorFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := v.Principal(r.Header.Get("Authorization"))
			if err != nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func RequireScopes(onError ErrorFunc, required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			for _, s := range required {
				if !p.Has(s) {
					onError(w, r, http.StatusForbidden, "forbidden")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
