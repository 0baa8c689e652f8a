// Package token issues and validates the HMAC access tokens that carry an
// actor's identity, roles, and department.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
)

// Claims represents the JWT claims for courier access tokens.
type Claims struct {
	ActorID    string   `json:"actor_id"`
	Roles      []string `json:"roles"`
	Department string   `json:"department"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewService(signingKey string, issuer string, audience string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

func (s *Service) GenerateAccessToken(actor domain.Actor, expiresIn time.Duration) (string, error) {
	roles := make([]string, 0, len(actor.Roles))
	for _, r := range actor.Roles {
		roles = append(roles, string(r))
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		ActorID:    actor.ID.String(),
		Roles:      roles,
		Department: string(actor.Department),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

// ValidateToken parses and verifies a token and rebuilds the actor it names.
func (s *Service) ValidateToken(tokenString string) (domain.Actor, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	actorID, err := domain.ParseActorID(claims.ActorID)
	if err != nil {
		return domain.Actor{}, dErrors.New(dErrors.CodeUnauthorized, "invalid actor_id claim")
	}

	roles := make([]domain.Role, 0, len(claims.Roles))
	for _, r := range claims.Roles {
		roles = append(roles, domain.Role(r))
	}

	return domain.Actor{
		ID:         actorID,
		Roles:      roles,
		Department: domain.Department(claims.Department),
	}, nil
}
