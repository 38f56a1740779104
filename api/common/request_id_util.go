package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxRequestIDLength = 32

// RequestIDInCtxAndLogger takes the request id from headerName, or makes one
// up, and attaches it to the request context and its logger. The id is only
// used for logging; it is never written back to the client.
func RequestIDInCtxAndLogger(headerName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := ""
		if headerName != "" {
			rid = c.Request.Header.Get(headerName)
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		if len(rid) > maxRequestIDLength {
			rid = rid[:maxRequestIDLength]
		}
		ctx := WithRequestID(c.Request.Context(), rid)
		// We set the rid in the common logger so it is always logged when the common logger is used
		ctx, _ = LoggerWithFields(ctx, logrus.Fields{RequestIDContextKey: rid})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
