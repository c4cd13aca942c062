package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nickyhof/viewdb/core"
)

const authTypeJWT = "JWT"

// AuthConfig turns on JWT authentication. Tokens must be HMAC signed with
// JWTSecret; Issuer and Audience are only checked when set.
type AuthConfig struct {
	Enabled    bool
	JWTSecret  string
	Issuer     string
	Audience   string
	NameClaim  string // defaults to "name"
	EmailClaim string // defaults to "email"
}

func (c *AuthConfig) claimNames() (name, email string) {
	name, email = c.NameClaim, c.EmailClaim
	if name == "" {
		name = "name"
	}
	if email == "" {
		email = "email"
	}
	return name, email
}

func (c *AuthConfig) signingKey(token *jwt.Token) (any, error) {
	if c.JWTSecret == "" {
		return nil, errors.New("no JWT secret configured")
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return []byte(c.JWTSecret), nil
}

// verifyToken checks a JWT and returns the identity whose commits the
// connection will author, plus the token expiry (zero when absent).
func (c *AuthConfig) verifyToken(raw string) (core.Identity, time.Time, error) {
	token, err := jwt.Parse(raw, c.signingKey, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return core.Identity{}, time.Time{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !token.Valid || !ok {
		return core.Identity{}, time.Time{}, errors.New("invalid token")
	}

	if c.Issuer != "" {
		if issuer, _ := claims.GetIssuer(); issuer != c.Issuer {
			return core.Identity{}, time.Time{}, fmt.Errorf("invalid issuer: expected %s, got %s", c.Issuer, issuer)
		}
	}
	if c.Audience != "" {
		if audiences, _ := claims.GetAudience(); !slices.Contains(audiences, c.Audience) {
			return core.Identity{}, time.Time{}, fmt.Errorf("invalid audience: expected %s", c.Audience)
		}
	}

	nameClaim, emailClaim := c.claimNames()
	identity := core.Identity{}
	identity.Name, _ = claims[nameClaim].(string)
	identity.Email, _ = claims[emailClaim].(string)
	if identity.Name == "" && identity.Email == "" {
		return core.Identity{}, time.Time{}, fmt.Errorf("token missing identity claims (%s or %s)", nameClaim, emailClaim)
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return identity, expiresAt, nil
}

// ConnectionState is the authentication state of one client connection.
type ConnectionState struct {
	identity      *core.Identity
	authenticated bool
	tokenExpiry   time.Time
}

// IsAuthenticated reports whether the connection holds an unexpired token.
func (cs *ConnectionState) IsAuthenticated() bool {
	return cs.authenticated
}

// Identity returns the authenticated identity, or nil.
func (cs *ConnectionState) Identity() *core.Identity {
	return cs.identity
}

func (cs *ConnectionState) authenticate(identity core.Identity, expiresAt time.Time) {
	cs.identity = &identity
	cs.authenticated = true
	cs.tokenExpiry = expiresAt
}

// expire drops the authentication once the token has lapsed.
func (cs *ConnectionState) expire(now time.Time) bool {
	if !cs.authenticated || cs.tokenExpiry.IsZero() || !now.After(cs.tokenExpiry) {
		return false
	}
	cs.authenticated = false
	return true
}

// parseAuthCommand splits "AUTH <type> <credentials>".
func parseAuthCommand(line string) (authType, token string, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "AUTH") {
		return "", "", errors.New("not an AUTH command")
	}
	if len(fields) < 3 {
		return "", "", errors.New("invalid AUTH command: expected AUTH <type> <credentials>")
	}

	authType = strings.ToUpper(fields[1])
	if authType != authTypeJWT {
		return "", "", fmt.Errorf("unsupported auth type: %s", authType)
	}
	return authType, fields[2], nil
}

func authFailure(err error) Response {
	return Response{Success: false, Type: "auth", Error: err.Error()}
}

func (s *Server) handleAuth(line string, state *ConnectionState) Response {
	if s.authConfig == nil {
		return authFailure(errors.New("authentication not configured"))
	}
	_, token, err := parseAuthCommand(line)
	if err != nil {
		return authFailure(err)
	}
	identity, expiresAt, err := s.authConfig.verifyToken(token)
	if err != nil {
		return authFailure(err)
	}
	state.authenticate(identity, expiresAt)

	ar := AuthResponse{Authenticated: true, Identity: identity.String()}
	if !expiresAt.IsZero() {
		ar.ExpiresIn = int(time.Until(expiresAt).Seconds())
	}
	data, err := json.Marshal(ar)
	if err != nil {
		return authFailure(err)
	}
	return Response{Success: true, Type: "auth", Result: data}
}
