// This is middleware we're using for the entire server.

package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/fnproject/httpecho/api/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// panicWrap logs a panic and drops the connection. There is no error page:
// net/http closes the connection quietly on http.ErrAbortHandler.
func panicWrap(c *gin.Context) {
	defer func(c *gin.Context) {
		if rec := recover(); rec != nil {
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("httpecho: %v", rec)
			}
			common.Logger(c.Request.Context()).WithError(err).WithFields(logrus.Fields{"stack": string(debug.Stack())}).Error("handler panic")
			panic(http.ErrAbortHandler)
		}
	}(c)
	c.Next()
}

func (s *Server) metricsWrap(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.metrics.observe(c, start)
}
