package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/clothesfashion/backend-checkout/internal/common"
)

// Verifier validates signed access tokens and extracts the shopper identity
// used by checkout sessions.
type Verifier struct {
	Secret    []byte
	Issuer    string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// NewVerifier constructs an HS256 verifier for the shared storefront secret.
func NewVerifier(secret, issuer string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: secret must not be empty")
	}
	return &Verifier{
		Secret:    []byte(secret),
		Issuer:    issuer,
		ClockSkew: 30 * time.Second,
		Algorithm: jwa.HS256,
	}, nil
}

// Verify parses and validates the raw token and returns the shopper profile
// carried in its claims.
func (v *Verifier) Verify(raw string) (common.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.User{}, errors.New("auth: empty token")
	}

	options := []jwt.ParseOption{
		jwt.WithKey(v.Algorithm, v.Secret),
		jwt.WithValidate(true),
	}
	if v.ClockSkew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.ClockSkew))
	}
	if v.Issuer != "" {
		options = append(options, jwt.WithIssuer(v.Issuer))
	}

	tok, err := jwt.Parse([]byte(raw), options...)
	if err != nil {
		return common.User{}, fmt.Errorf("auth: parse token: %w", err)
	}

	user := common.User{
		ID:       tok.Subject(),
		Username: stringClaim(tok, "username"),
		Email:    stringClaim(tok, "email"),
		FullName: stringClaim(tok, "full_name"),
	}
	if user.ID == "" {
		return common.User{}, errors.New("auth: token missing subject")
	}
	if user.Username == "" {
		user.Username = user.ID
	}
	return user, nil
}

func stringClaim(tok jwt.Token, name string) string {
	raw, ok := tok.Get(name)
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
