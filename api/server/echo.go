package server

import (
	"net/http"
	"time"

	"github.com/fnproject/httpecho/api/common"
	"github.com/fnproject/httpecho/api/echo"
	"github.com/gin-gonic/gin"
)

const bodyBytesKey = "echo_body_bytes"

// handleEcho answers every request with a 200 describing the request itself.
func (s *Server) handleEcho(c *gin.Context) {
	start := time.Now()
	log := common.Logger(c.Request.Context())

	snap, err := echo.Capture(c.Request)
	if err != nil {
		// the peer is gone, nobody is left to answer
		log.WithError(err).Info("Dropping request")
		panic(http.ErrAbortHandler)
	}
	log.WithField("request", snap).Debug("Echoing request")

	contentType := echo.Negotiate(c.GetHeader("Accept"))
	body, err := echo.Render(contentType, snap, s.cfg.Terse)
	if err != nil {
		log.WithError(err).Error("Cannot render request")
		panic(http.ErrAbortHandler)
	}

	c.Set(bodyBytesKey, len(snap.Body))
	c.Data(http.StatusOK, contentType, body)

	log.Infof("%s %s %d - - %dms", snap.Method, snap.URL, c.Writer.Status(), time.Since(start).Milliseconds())
}
