// Realtime stream over plain HTTP.
//
//   - GET /stream  (NDJSON by default, Server-Sent Events on Accept: text/event-stream)
//
// Each line or event is one notifier.Event. The first frame is connected,
// then subscribed (or error); heartbeats follow at the relay interval. A
// client that stops reading gets a final error frame and is disconnected.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/http/middleware"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/services"
)

const (
	contentTypeNDJSON = "application/x-ndjson"
	contentTypeSSE    = "text/event-stream"
)

// Stream godoc
// @ID          stream
// @Summary     Subscribe to changes
// @Description Long-lived response carrying message, seen and presence events scoped to the caller.
// @Description Browsers that cannot set headers may pass the session token as ?token=.
// @Tags        Realtime
// @Produce     application/x-ndjson
// @Produce     text/event-stream
// @Security    BearerAuth
// @Param       token  query  string  false  "Session token (alternative to the Authorization header)"
// @Success     200  {object}  notifier.Event  "One event per line"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Realtime disabled or unavailable"
// @Router      /stream [get]
func (h *Handlers) Stream(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	if h.relay == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "realtime stream is disabled")
		return
	}
	ch, err := h.relay.Open(c.Request.Context(), h.subject(sess))
	if err != nil {
		failErr(c, services.TransportError("Stream", err))
		return
	}
	defer ch.Close()

	sse := strings.Contains(c.GetHeader("Accept"), contentTypeSSE)
	if sse {
		c.Header("Content-Type", contentTypeSSE)
	} else {
		c.Header("Content-Type", contentTypeNDJSON)
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// The server's WriteTimeout would otherwise cut the stream.
	rc := http.NewResponseController(c.Writer)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		middleware.LoggerFrom(c).Debug().Err(err).Msg("clear write deadline")
	}
	c.Status(http.StatusOK)
	c.Writer.Flush()

	lg := middleware.LoggerFrom(c)
	lg.Debug().Str("profile_id", sess.ProfileID).Bool("sse", sse).Msg("stream opened")

	c.Stream(func(w io.Writer) bool {
		ev, open := <-ch.Events()
		if !open {
			if errors.Is(ch.Err(), notifier.ErrSlowConsumer) {
				lg.Warn().Str("profile_id", sess.ProfileID).Msg("stream closed: slow consumer")
				ev = notifier.Event{Type: notifier.EventError, At: time.Now().UTC(), Error: notifier.ErrSlowConsumer.Error()}
				_ = writeFrame(c, w, sse, ev)
			}
			return false
		}
		return writeFrame(c, w, sse, ev) == nil
	})
}

func writeFrame(c *gin.Context, w io.Writer, sse bool, ev notifier.Event) error {
	if sse {
		c.SSEvent("message", ev)
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
