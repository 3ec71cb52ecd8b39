package auth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

const (
	bearerPrefix     = "Bearer "
	tokenQueryParam  = "token"
	userIDHeader     = "X-User-ID"
	userIDQueryParam = "userId"
)

var (
	ErrMissingHandshakeToken = errors.New("auth: handshake token required")
	ErrMissingHandshakeUser  = errors.New("auth: handshake user id required")
	ErrInvalidHandshakeUser  = errors.New("auth: handshake user id must be a positive integer")
)

// Handshake holds the credentials a socket client presents before upgrade.
type Handshake struct {
	Token  string
	UserID int64
}

// BearerToken returns the token from an Authorization header, or "" when absent.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// ExtractHandshake reads the token and claimed user id from headers, falling
// back to query parameters for browser clients that cannot set headers.
func ExtractHandshake(r *http.Request) (Handshake, error) {
	if r == nil {
		return Handshake{}, ErrMissingHandshakeToken
	}
	token := BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get(tokenQueryParam))
	}
	if token == "" {
		return Handshake{}, ErrMissingHandshakeToken
	}

	rawUserID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if rawUserID == "" {
		rawUserID = strings.TrimSpace(r.URL.Query().Get(userIDQueryParam))
	}
	if rawUserID == "" {
		return Handshake{}, ErrMissingHandshakeUser
	}
	userID, err := strconv.ParseInt(rawUserID, 10, 64)
	if err != nil || userID <= 0 {
		return Handshake{}, ErrInvalidHandshakeUser
	}
	return Handshake{Token: token, UserID: userID}, nil
}
