package middleware

import (
	"net/http"

	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		default:
			c.Error(apperrors.New(apperrors.ErrReadOnly, apperrors.CodeReadOnly, "read-only mode enabled", nil))
			c.Abort()
			return
		}
	}
}
