package jwtinfra

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/notify-relay/internal/config"
)

// ErrInvalidToken wraps every verification failure.
var ErrInvalidToken = errors.New("invalid token")

// Clock skew tolerated on exp/iat/nbf.
const leeway = 30 * time.Second

// Claims identifies the caller. Tokens minted elsewhere may carry only the
// standard sub claim; Verify copies it into UserID.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Provider verifies RS256 bearer tokens and, when it holds the private key,
// mints them for tests and tooling.
type Provider struct {
	verifyKey *rsa.PublicKey
	signKey   *rsa.PrivateKey
	ttl       time.Duration
	parser    *jwt.Parser
}

// NewProvider needs the public key. A missing private key file leaves the
// provider verify-only.
func NewProvider(cfg *config.Config) (*Provider, error) {
	verifyKey, err := readKey(cfg.JWTPublicKeyPath, jwt.ParseRSAPublicKeyFromPEM)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	p := &Provider{
		verifyKey: verifyKey,
		ttl:       cfg.JWTExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithLeeway(leeway),
			jwt.WithIssuedAt(),
		),
	}

	signKey, err := readKey(cfg.JWTPrivateKeyPath, jwt.ParseRSAPrivateKeyFromPEM)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("private key: %w", err)
	default:
		p.signKey = signKey
	}
	return p, nil
}

func readKey[K any](path string, parse func([]byte) (K, error)) (K, error) {
	var zero K
	raw, err := os.ReadFile(path)
	if err != nil {
		return zero, err
	}
	key, err := parse(raw)
	if err != nil {
		return zero, fmt.Errorf("parse %s: %w", path, err)
	}
	return key, nil
}

// Sign mints a token for userID valid for the configured expiry.
func (p *Provider) Sign(userID, role string) (string, error) {
	if p.signKey == nil {
		return "", errors.New("provider is verify-only")
	}
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(p.signKey)
}

// Verify checks signature, algorithm and time claims, and requires a user.
func (p *Provider) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := p.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.verifyKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no user", ErrInvalidToken)
	}
	return claims, nil
}
