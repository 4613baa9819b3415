package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAdminKey       = "X-Admin-Key"
	HeaderAdminSecretKey = "X-Admin-Secret"
)

// AdminMiddleware 管理接口的第二道门：除了调用方要有 admin 能力，还要带管理密钥。
// 配置了 admin_secret_key 时两个头都要对。
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			c.Error(apperrors.New(apperrors.ErrAuthorization, apperrors.CodeMissingCapability, "admin key not configured", nil))
			c.Abort()
			return
		}
		if !secretEqual(c.GetHeader(HeaderAdminKey), cfg.Auth.AdminKey) {
			c.Error(apperrors.New(apperrors.ErrUnauthenticated, apperrors.CodeInvalidAPIKey, "invalid admin key", nil))
			c.Abort()
			return
		}
		if cfg.Auth.AdminSecretKey != "" && !secretEqual(c.GetHeader(HeaderAdminSecretKey), cfg.Auth.AdminSecretKey) {
			c.Error(apperrors.New(apperrors.ErrUnauthenticated, apperrors.CodeInvalidAPIKey, "invalid admin secret", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func secretEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
