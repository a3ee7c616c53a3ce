package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fathima-sithara/marketplace-chat/internal/config"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

// Validator resolves bearer tokens issued by the account service to user ids.
type Validator struct {
	alg    string
	pubKey *rsa.PublicKey
	secret []byte
}

func NewValidator(cfg config.JWTConfig) (*Validator, error) {
	switch cfg.Alg {
	case "RS256":
		b, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read pubkey: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(b)
		if err != nil {
			return nil, fmt.Errorf("parse pubkey: %w", err)
		}
		return NewRSAValidator(key), nil
	case "HS256":
		if cfg.Secret == "" {
			return nil, errors.New("hs256 secret required")
		}
		return NewHMACValidator([]byte(cfg.Secret)), nil
	}
	return nil, fmt.Errorf("unsupported alg %q", cfg.Alg)
}

func NewRSAValidator(key *rsa.PublicKey) *Validator {
	return &Validator{alg: jwt.SigningMethodRS256.Alg(), pubKey: key}
}

func NewHMACValidator(secret []byte) *Validator {
	return &Validator{alg: jwt.SigningMethodHS256.Alg(), secret: secret}
}

// Validate returns the user id carried in the sub (or user_id) claim.
func (v *Validator) Validate(token string) (string, error) {
	if token == "" {
		return "", ErrMissingToken
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{v.alg}), jwt.WithExpirationRequired())
	tok, err := parser.Parse(token, func(*jwt.Token) (interface{}, error) {
		if v.pubKey != nil {
			return v.pubKey, nil
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		sub, _ = claims["user_id"].(string)
	}
	if sub == "" {
		return "", fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return sub, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
