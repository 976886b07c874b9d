// SPDX-FileCopyrightText: Copyright 2026 The agentmux Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/agentmux/agentmux/pkg/config"
	"github.com/agentmux/agentmux/pkg/errors"
)

// Authenticator validates the credential a consumer presents during the
// WebSocket handshake. Implementations return an auth-typed error on
// rejection; the transport turns that into a structured error frame.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// NewAuthenticator builds the authenticator for the configured mode.
func NewAuthenticator(cfg config.Auth) (Authenticator, error) {
	switch cfg.Mode {
	case "", "none":
		return allowAll{}, nil
	case "token":
		if cfg.Token == "" {
			return nil, fmt.Errorf("auth mode token requires auth.token")
		}
		return &staticToken{token: []byte(cfg.Token)}, nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("auth mode jwt requires auth.jwt_secret")
		}
		return &hmacJWT{secret: []byte(cfg.JWTSecret)}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// credential extracts the presented token. Browsers cannot set headers on a
// WebSocket handshake, so the token query parameter is the primary carrier;
// a bearer Authorization header works for clients that can send one.
func credential(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// allowAll admits every connection. This is the default for local
// single-user deployments.
type allowAll struct{}

func (allowAll) Authenticate(*http.Request) error { return nil }

// staticToken compares the presented token against a shared secret.
type staticToken struct {
	token []byte
}

func (a *staticToken) Authenticate(r *http.Request) error {
	presented := credential(r)
	if presented == "" {
		return errors.NewAuthError("missing token", nil)
	}
	if subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
		return errors.NewAuthError("invalid token", nil)
	}
	return nil
}

// hmacJWT validates an HS256-signed bearer token.
type hmacJWT struct {
	secret []byte
}

func (a *hmacJWT) Authenticate(r *http.Request) error {
	presented := credential(r)
	if presented == "" {
		return errors.NewAuthError("missing token", nil)
	}
	_, err := jwt.ParseWithClaims(presented, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return errors.NewAuthError("invalid token", err)
	}
	return nil
}
