package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/guidepath/guidepath/pkg/config"
)

var ErrInvalidToken = errors.New("invalid token")

const defaultTTL = 12 * time.Hour

// RoleAdmin may publish workflow definitions.
const RoleAdmin = "admin"

// ActorClaims identify the user acting on executions. The subject is the actor id.
type ActorClaims struct {
	jwt.RegisteredClaims
	Name  string `json:"name,omitempty"`
	Roles string `json:"roles,omitempty"`
}

func (c *ActorClaims) ActorID() string {
	return c.Subject
}

func (c *ActorClaims) HasRole(required string) bool {
	for _, role := range strings.Split(c.Roles, ",") {
		if strings.TrimSpace(role) == required {
			return true
		}
	}
	return false
}

type TokenManager struct {
	signingKey []byte
	ttl        time.Duration
	issuer     string
}

func NewTokenManager(cfg config.AuthConfig) *TokenManager {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &TokenManager{signingKey: []byte(cfg.JWTSecret), ttl: ttl, issuer: cfg.Issuer}
}

func (m *TokenManager) Generate(actorID, name string, roles ...string) (string, error) {
	if strings.TrimSpace(actorID) == "" {
		return "", errors.New("actor id is required")
	}
	now := time.Now()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   actorID,
			Issuer:    m.issuer,
		},
		Name:  name,
		Roles: strings.Join(roles, ","),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *TokenManager) Validate(tokenString string) (*ActorClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &ActorClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
