package daemon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ginLogger logs every request through logrus, tagged with the curtain it
// addressed. Event streams are logged once the subscriber disconnects.
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// handlers may rewrite the path
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		fields := logrus.Fields{
			"statusCode": status,
			"latency":    elapsed.Milliseconds(),
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": max(c.Writer.Size(), 0),
			"client":     c.ClientIP(),
		}
		if name := c.Param("name"); name != "" {
			fields["device"] = name
		}
		entry := logger.WithFields(fields)

		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			entry.Error(errs.String())
			return
		}

		if c.FullPath() == "/events" {
			entry.Debugf("event subscriber left after %s", elapsed.Round(time.Second))
			return
		}

		msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, status, elapsed.Milliseconds())
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		case c.Request.Method == http.MethodGet:
			// status is polled by the CLI and legacy clients
			entry.Trace(msg)
		default:
			entry.Debug(msg)
		}
	}
}
