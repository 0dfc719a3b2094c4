package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tbourn/smsbridge-chat/internal/http/middleware"
	"github.com/tbourn/smsbridge-chat/internal/notifier"
	"github.com/tbourn/smsbridge-chat/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Clients never send payloads; anything larger than a control frame is abuse.
	maxInboundMessage = 1024
)

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin allows same-host requests, requests without an Origin
// (non-browser clients), and any configured origin.
func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// WebSocket godoc
// @ID          websocket
// @Summary     Subscribe to changes over WebSocket
// @Description Same frames as /stream, one JSON text message per event. Pass the session token as ?token=.
// @Tags        Realtime
// @Security    BearerAuth
// @Param       token  query  string  false  "Session token"
// @Success     101  "Switching protocols"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Realtime disabled or unavailable"
// @Router      /ws [get]
func (h *Handlers) WebSocket(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	if h.relay == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "realtime stream is disabled")
		return
	}

	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade failed")
		c.Abort()
		return
	}

	ch, err := h.relay.Open(c.Request.Context(), h.subject(sess))
	if err != nil {
		err = services.TransportError("WebSocket", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, services.Reason(err)),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	lg := middleware.LoggerFrom(c).With().Str("profile_id", sess.ProfileID).Logger()
	lg.Debug().Msg("websocket opened")

	go wsReadPump(conn, ch)
	wsWritePump(conn, ch, &lg)
}

// wsReadPump drains inbound frames so pongs and close are processed. Any
// read error ends the channel, which ends the write pump.
func wsReadPump(conn *websocket.Conn, ch *notifier.Channel) {
	defer ch.Close()
	conn.SetReadLimit(maxInboundMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func wsWritePump(conn *websocket.Conn, ch *notifier.Channel, lg *zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ch.Close()
		_ = conn.Close()
	}()
	for {
		select {
		case ev, open := <-ch.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				code, reason := websocket.CloseNormalClosure, ""
				if errors.Is(ch.Err(), notifier.ErrSlowConsumer) {
					lg.Warn().Msg("websocket closed: slow consumer")
					final := notifier.Event{Type: notifier.EventError, At: time.Now().UTC(), Error: notifier.ErrSlowConsumer.Error()}
					if b, err := json.Marshal(final); err == nil {
						_ = conn.WriteMessage(websocket.TextMessage, b)
					}
					code, reason = websocket.ClosePolicyViolation, notifier.ErrSlowConsumer.Error()
				}
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
				return
			}
			b, err := json.Marshal(ev)
			if err != nil {
				lg.Error().Err(err).Msg("encode event")
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
