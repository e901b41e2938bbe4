package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/moogar0880/problems"

	"github.com/guidepath/guidepath/pkg/auth"
	"github.com/guidepath/guidepath/pkg/logging"
)

const (
	actorKey  = "actor_id"
	claimsKey = "actor_claims"

	ProblemMediaType = "application/problem+json"
)

// Auth requires a bearer actor token. The token subject becomes the actor for every transition the
// request performs.
func Auth(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := c.GetHeader("Authorization")
		if authorization == "" {
			unauthorized(c, "missing authorization")
			return
		}
		parts := strings.SplitN(authorization, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "invalid authorization")
			return
		}
		token := strings.TrimSpace(parts[1])
		if token == "" {
			unauthorized(c, "empty token")
			return
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			unauthorized(c, "invalid token")
			return
		}

		c.Set(actorKey, claims.ActorID())
		c.Set(claimsKey, claims)
		c.Request = c.Request.WithContext(logging.WithActor(c.Request.Context(), claims.ActorID()))
		c.Next()
	}
}

// Actor returns the authenticated actor id.
func Actor(c *gin.Context) string {
	return c.GetString(actorKey)
}

func Claims(c *gin.Context) *auth.ActorClaims {
	if v, ok := c.Get(claimsKey); ok {
		claims, _ := v.(*auth.ActorClaims)
		return claims
	}
	return nil
}

// RequireRole rejects actors whose token does not carry role. It must run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil || !claims.HasRole(role) {
			abortProblem(c, http.StatusForbidden, "forbidden", "requires role "+role)
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, detail string) {
	abortProblem(c, http.StatusUnauthorized, "unauthorized", detail)
}

func abortProblem(c *gin.Context, status int, kind, detail string) {
	problem := problems.NewStatusProblem(status).
		WithInstance(c.Request.URL.Path).
		WithType(kind).
		WithDetail(detail)
	c.Header("Content-Type", ProblemMediaType)
	c.AbortWithStatusJSON(status, problem)
}
