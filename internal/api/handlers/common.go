package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/rehearse/internal/utils"
)

type APIError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

func writeError(c *gin.Context, err error) {
	status := utils.HTTPStatus(err)

	var ae *utils.AppError
	if errors.As(err, &ae) {
		if status >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		c.JSON(status, APIError{
			Code:    ae.Code,
			Message: ae.Message,
		})
		return
	}

	_ = c.Error(err)
	c.JSON(status, APIError{
		Code:    utils.CodeInternal,
		Message: http.StatusText(status),
	})
}

func requireUserID(c *gin.Context) (string, bool) {
	if v, ok := c.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
	}

	writeError(c, utils.E(utils.CodeUnauthorized, "Auth", "unauthorized", nil))
	return "", false
}

// queryInt reads a positive integer query parameter, falling back to def
// when it is absent or malformed and capping it at max.
func queryInt(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, max)
}
