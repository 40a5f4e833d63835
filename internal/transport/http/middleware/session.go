package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gopherai-assistant/internal/transport/http/response"
)

const ContextUserIDKey = "user_id"

type TokenResolver interface {
	Resolve(token string) (string, error)
}

// AuthSession resolves the bearer session token to a user id. The token may
// also come from the "token" query parameter, which EventSource clients need.
func AuthSession(resolver TokenResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		switch {
		case authHeader != "":
			const prefix = "Bearer "
			if !strings.HasPrefix(authHeader, prefix) {
				response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid authorization scheme")
				c.Abort()
				return
			}
			token = strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		case c.Query("token") != "":
			token = c.Query("token")
		default:
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		userID, err := resolver.Resolve(token)
		if err != nil || userID == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	userID, ok := v.(string)
	return userID, ok && userID != ""
}
