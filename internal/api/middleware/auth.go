package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/tailor-checkout/internal/service"
	"github.com/d60-Lab/tailor-checkout/pkg/response"
)

// ContextOperator gin context 中的运维账号
const ContextOperator = "operator"

// TokenValidator 由 service.AuthService 实现
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// JWTAuth Bearer token 校验
func JWTAuth(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == "" || token == header {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		sub, err := v.ValidateToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, service.ErrTokenExpired) {
				msg = "token expired"
			}
			response.Unauthorized(c, msg)
			c.Abort()
			return
		}
		c.Set(ContextOperator, sub)
		c.Next()
	}
}
