// Package credential prepares the bearer credential for the socket handshake and
// inspects JWT claims without verifying them.
package credential

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/jwt/v5"
	"github.com/tidwall/gjson"
)

const bearerScheme = "bearer "

// ErrEmpty is returned for a blank credential.
var ErrEmpty = errors.New("empty credential")

// Strip removes a leading case-insensitive "Bearer " scheme label. The socket
// handshake expects the raw token.
func Strip(token string) string {
	token = strings.TrimSpace(token)
	if strings.EqualFold(token, strings.TrimSpace(bearerScheme)) {
		return ""
	}
	if len(token) >= len(bearerScheme) && strings.EqualFold(token[:len(bearerScheme)], bearerScheme) {
		return strings.TrimSpace(token[len(bearerScheme):])
	}
	return token
}

// Claims are the parts of a token interesting to the client.
type Claims struct {
	Subject   string
	UserID    int64
	HasUserID bool
	ExpiresAt time.Time
	Algorithm string
	Raw       []byte
}

// Expired reports whether the token has an expiration in the past.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Inspect parses a JWT without signature verification. userIDClaim is a gjson
// path of the claim holding the numeric user id, "sub" is used when empty.
func Inspect(token string, userIDClaim string) (Claims, error) {
	token = Strip(token)
	if token == "" {
		return Claims{}, ErrEmpty
	}
	parsed, err := jwt.ParseNoVerify([]byte(token))
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	registered := jwt.RegisteredClaims{}
	if err := parsed.DecodeClaims(&registered); err != nil {
		return Claims{}, fmt.Errorf("decode claims: %w", err)
	}
	claims := Claims{
		Subject:   registered.Subject,
		Algorithm: string(parsed.Header().Algorithm),
		Raw:       parsed.Claims(),
	}
	if registered.ExpiresAt != nil {
		claims.ExpiresAt = registered.ExpiresAt.Time
	}
	if userIDClaim == "" {
		userIDClaim = "sub"
	}
	if res := gjson.GetBytes(parsed.Claims(), userIDClaim); res.Exists() {
		switch res.Type {
		case gjson.Number:
			claims.UserID, claims.HasUserID = res.Int(), true
		case gjson.String:
			if id, err := strconv.ParseInt(res.Str, 10, 64); err == nil {
				claims.UserID, claims.HasUserID = id, true
			}
		}
	}
	return claims, nil
}
