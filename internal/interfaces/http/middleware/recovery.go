// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"kahani-story-api/internal/interfaces/http/dto"
	"kahani-story-api/pkg/errors"
	"kahani-story-api/pkg/logger"
)

// Recovery panic 恢复；SSE 等已写出响应头的请求只中断连接
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			logger.Error(c.Request.Context(), "panic recovered",
				fmt.Errorf("%v", rec),
				"stack", string(debug.Stack()),
				"route", c.FullPath(),
				"method", c.Request.Method,
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			dto.AbortWithAppError(c, errors.ErrInternalError)
		}()

		c.Next()
	}
}
