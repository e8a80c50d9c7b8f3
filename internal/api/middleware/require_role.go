package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/rehearse/internal/utils"
)

func RequireRole(allowed ...string) gin.HandlerFunc {
	allow := map[string]struct{}{}
	for _, a := range allowed {
		a = strings.TrimSpace(strings.ToLower(a))
		if a != "" {
			allow[a] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		v, ok := c.Get("role")
		role, _ := v.(string)
		role = strings.ToLower(strings.TrimSpace(role))

		if _, allowed := allow[role]; !ok || !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{Code: utils.CodeForbidden, Message: "forbidden"})
			return
		}

		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc { return RequireRole("admin") }
