// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type principalKey struct{}

// RoleAdmin may act on behalf of any user
const RoleAdmin = "admin"

// Claims is the token payload issued by the identity service
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
}

// Principal is the caller a verified token identifies
type Principal struct {
	Subject string
	Role    string
}

// CanActFor reports whether the principal may read or settle for userID
func (p *Principal) CanActFor(userID string) bool {
	return p.Role == RoleAdmin || strings.EqualFold(p.Subject, userID)
}

// Verifier checks HS256 bearer tokens issued by the identity service
type Verifier struct {
	parser *jwt.Parser
	secret []byte
}

func NewVerifier(secret string, issuer string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Verifier{
		parser: jwt.NewParser(opts...),
		secret: []byte(secret),
	}
}

// Verify parses the token and returns the principal it names
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(
		tokenString,
		claims,
		func(*jwt.Token) (any, error) {
			return v.secret, nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("invalid token: missing subject")
	}
	return &Principal{
		Subject: claims.Subject,
		Role:    strings.ToLower(claims.Role),
	}, nil
}

// Middleware rejects requests without a valid bearer token
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeUnauthorized(w, "missing bearer token")
			return
		}
		principal, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			writeUnauthorized(w, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the verified caller, if any
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(*Principal)
	return principal, ok
}

// authorizeUser checks that the caller may act for userID and answers 403
// otherwise. It always passes when bearer auth is disabled
func (s *Server) authorizeUser(
	w http.ResponseWriter,
	r *http.Request,
	userID string,
) bool {
	if s.auth == nil {
		return true
	}
	principal, ok := PrincipalFromContext(r.Context())
	if ok && principal.CanActFor(userID) {
		return true
	}
	s.logger.Debug(
		"request forbidden",
		"method", r.Method,
		"path", r.URL.Path,
		"user_id", userID,
	)
	writeJSON(w, http.StatusForbidden, ErrorResponse{
		Error: ErrorBody{
			Class:   "FORBIDDEN",
			Code:    "FORBIDDEN",
			Message: "token subject may not act for this user",
		},
	})
	return false
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="herdledger"`)
	writeJSON(w, http.StatusUnauthorized, ErrorResponse{
		Error: ErrorBody{
			Class:   "UNAUTHORIZED",
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
}
