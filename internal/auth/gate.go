package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a verified session token says about its bearer.
type Identity struct {
	UserID   string
	Username string
}

// Gate verifies session tokens. Token issuance lives elsewhere.
type Gate interface {
	Verify(token string) (Identity, error)
}

// JWTGate accepts HS256 tokens carrying uid and name claims.
type JWTGate struct {
	secret []byte
}

func NewJWTGate(secret string) *JWTGate {
	return &JWTGate{secret: []byte(secret)}
}

func (g *JWTGate) Verify(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	var id Identity
	switch uid := claims["uid"].(type) {
	case string:
		id.UserID = uid
	case float64:
		id.UserID = strconv.FormatInt(int64(uid), 10)
	}
	id.Username, _ = claims["name"].(string)
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("%w: missing uid", ErrInvalidToken)
	}
	if id.Username == "" {
		id.Username = id.UserID
	}
	return id, nil
}

// Sign issues a token for id. Used by tests and local tooling.
func (g *JWTGate) Sign(id Identity, ttl time.Duration) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":  id.UserID,
		"name": id.Username,
		"exp":  time.Now().Add(ttl).Unix(),
	}).SignedString(g.secret)
}
