package apperrors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Abort records err on the gin context and stops the handler chain. The
// response body is written by ErrorMiddleware.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorMiddleware renders the last error attached to the context. Outside of
// production the wrapped cause is included to ease debugging.
func ErrorMiddleware(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := From(c.Errors.Last().Err)
		if appErr.Kind == KindInternal || appErr.Kind == KindUpstream {
			zap.L().Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.String("kind", string(appErr.Kind)),
				zap.Error(appErr),
			)
		}

		body := gin.H{
			"error": appErr.Message,
			"code":  appErr.Kind,
		}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		if env != "production" && appErr.Err != nil {
			body["cause"] = appErr.Err.Error()
		}
		c.JSON(appErr.Status(), body)
	}
}

// Recovery converts panics into a 500 in the standard error shape. Stack
// traces are only exposed outside of production.
func Recovery(env string) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		stack := string(debug.Stack())
		zap.L().Error("panic recovered",
			zap.Any("panic", recovered),
			zap.String("path", c.Request.URL.Path),
			zap.String("stack", stack),
		)

		body := gin.H{
			"error": "Internal server error",
			"code":  KindInternal,
		}
		if env != "production" {
			body["cause"] = fmt.Sprint(recovered)
			body["stack"] = stack
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}
