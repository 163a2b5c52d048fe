package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/cloudbrowser/models"
)

// Auth returns API-key authentication middleware. Keys are accepted from
// either an `X-API-Key` header or `Authorization: Bearer <key>`. An empty
// key list disables the check (open access).
func Auth(apiKeys []string) gin.HandlerFunc {
	if len(apiKeys) == 0 {
		return func(c *gin.Context) { c.Next() }
	}

	keySet := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keySet[k] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		key := apiKeyFrom(c)
		if _, valid := keySet[key]; key == "" || !valid {
			msg := "invalid API key"
			if key == "" {
				msg = "missing API key: provide X-API-Key or Authorization: Bearer <key>"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.FetchResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeUnauthorized,
					Message: msg,
				},
			})
			return
		}

		c.Set("api_key", key)
		c.Next()
	}
}

func apiKeyFrom(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
