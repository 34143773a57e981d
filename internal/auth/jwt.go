// Package auth adapts bearer tokens issued by the identity service into a
// request-scoped scheduling.Identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telehealth-scheduling/internal/scheduling"
)

var ErrUnauthorized = errors.New("unauthorized")

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier validates HS256 tokens. The subject claim carries the user id.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret []byte, issuer string) *Verifier {
	return &Verifier{secret: secret, issuer: issuer}
}

func (v *Verifier) Verify(raw string) (scheduling.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return scheduling.Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return scheduling.Identity{}, fmt.Errorf("%w: subject is not a user id", ErrUnauthorized)
	}

	role := scheduling.Role(claims.Role)
	switch role {
	case scheduling.RolePatient, scheduling.RoleDoctor, scheduling.RoleAdmin:
	default:
		return scheduling.Identity{}, fmt.Errorf("%w: unknown role %q", ErrUnauthorized, claims.Role)
	}

	return scheduling.Identity{UserID: userID, Role: role}, nil
}

// IssueToken signs a token for id. The identity service owns issuance in
// production; this is used by the seeder, the simulator and tests.
func IssueToken(secret []byte, issuer string, id scheduling.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(id.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
