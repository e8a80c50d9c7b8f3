package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/rehearse/config"
	"github.com/yoockh/rehearse/internal/utils"
)

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

type supabaseClaims struct {
	jwt.RegisteredClaims
	Role         string         `json:"role"`         // usually "authenticated" / "anon"
	AppMetadata  map[string]any `json:"app_metadata"` // put {"role":"admin"} here
	UserMetadata map[string]any `json:"user_metadata"`
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Code: utils.CodeUnauthorized, Message: msg})
}

// bearerToken reads the Authorization header, falling back to ?token= so
// audio elements and websocket clients can authenticate.
func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

func JWTAuth(cfg config.Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.JWTSecret == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apiError{
				Code:    utils.CodeInternal,
				Message: "SUPABASE_JWT_SECRET is not set",
			})
			return
		}

		raw := bearerToken(c)
		if raw == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		claims := &supabaseClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			return []byte(cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || tok == nil || !tok.Valid {
			unauthorized(c, "invalid token")
			return
		}

		if cfg.JWTIssuer != "" && claims.Issuer != cfg.JWTIssuer {
			unauthorized(c, "invalid token issuer")
			return
		}
		if cfg.JWTAudience != "" {
			valid := false
			for _, aud := range claims.Audience {
				if aud == cfg.JWTAudience {
					valid = true
					break
				}
			}
			if !valid {
				unauthorized(c, "invalid token audience")
				return
			}
		}

		userID := claims.Subject
		if userID == "" {
			unauthorized(c, "missing subject")
			return
		}

		appRole := "user"
		if v, ok := claims.AppMetadata["role"].(string); ok && v != "" {
			appRole = v
		}

		c.Set("user_id", userID)
		c.Set("role", appRole)
		c.Next()
	}
}
