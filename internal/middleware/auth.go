package middleware

import (
	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	HeaderAPIKey    = "X-Api-Key"
	ContextActorKey = "actor"
)

// AuthMiddleware 把 API key 映射到调用方。这里只识别身份，能力检查在引擎里做。
func AuthMiddleware(cfg *config.Config, registry *service.ActorRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		if apiKey == "" {
			if cfg != nil && !cfg.Auth.RequireAPIKey {
				if actor := registry.DefaultActor(); actor != nil {
					c.Set(ContextActorKey, actor)
					c.Next()
					return
				}
			}
			c.Error(apperrors.New(apperrors.ErrUnauthenticated, apperrors.CodeInvalidAPIKey, "missing API key", nil))
			c.Abort()
			return
		}

		actor, ok := registry.ByAPIKey(apiKey)
		if !ok {
			c.Error(apperrors.New(apperrors.ErrUnauthenticated, apperrors.CodeInvalidAPIKey, "invalid API key", nil))
			c.Abort()
			return
		}

		c.Set(ContextActorKey, actor)
		c.Next()
	}
}
