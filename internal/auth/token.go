package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds how long an issued session token remains usable.
const DefaultTokenTTL = 24 * time.Hour

// ErrSigningFailure indicates a missing or unusable signing secret. This is
// a configuration fault; callers should treat it as fatal, not per-request.
var ErrSigningFailure = errors.New("failed to sign token")

// ErrInvalidToken covers every verification failure: bad signature,
// malformed structure, unexpected signing method, or expiry.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the session token payload: the identity of the record the
// holder authenticated against.
type Claims struct {
	jwt.RegisteredClaims
	Email        string `json:"email"`
	Name         string `json:"name"`
	VersionStamp string `json:"version_stamp"`
}

// Identity is the verified identity context carried through a request.
type Identity struct {
	Email        string
	Name         string
	VersionStamp string
}

// Codec issues and verifies signed, time-bounded session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec constructs a Codec. An empty secret is tolerated here so the
// server can surface it as a startup error; IssueToken will refuse to sign.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// IssueToken signs a session token for the given identity.
func (c *Codec) IssueToken(identity Identity) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrSigningFailure
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Email:        identity.Email,
		Name:         identity.Name,
		VersionStamp: identity.VersionStamp,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", ErrSigningFailure
	}
	return signed, nil
}

// VerifyToken validates signature, structure, and expiry, returning the
// embedded identity. No claim is usable unless verification succeeds.
func (c *Codec) VerifyToken(tokenString string) (Identity, error) {
	claims := Claims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Email == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{
		Email:        claims.Email,
		Name:         claims.Name,
		VersionStamp: claims.VersionStamp,
	}, nil
}
