package middleware

import (
	"net/http"

	"storefront/apperrors"

	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies at maxBytes. Declared oversize bodies are
// rejected up front; undeclared ones fail with 413 when the handler reads
// past the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			apperrors.Abort(c, apperrors.New(apperrors.KindTooLarge, "Request body too large", nil))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
