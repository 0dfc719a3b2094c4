// Presence HTTP handlers.
//
//   - POST /presence  (replace the caller's liveness row)
//   - GET  /presence  (fresh online ids and who is typing to the caller)
//
// Clients heartbeat POST /presence every few seconds while visible. A row
// older than the freshness window reads as offline regardless of its flag.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/services"
)

// PresenceRequest is the caller's full desired state.
type PresenceRequest struct {
	IsOnline  bool   `json:"is_online" example:"true"`
	IsTyping  bool   `json:"is_typing" example:"false"`
	TypingFor string `json:"typing_for,omitempty" example:"5b7c1e0a-2f7d-4f43-9a7e-0c2d8c1b9f10"`
	// At orders concurrent updates; defaults to the server clock.
	At *time.Time `json:"at,omitempty"`
}

// PresenceUpdateResponse reports whether the write won.
type PresenceUpdateResponse struct {
	Applied bool `json:"applied"`
}

// PresenceResponse lists fresh liveness relevant to the caller.
type PresenceResponse struct {
	Online []string `json:"online"`
	Typing []string `json:"typing"`
}

// PostPresence godoc
// @ID          postPresence
// @Summary     Heartbeat presence
// @Description Replaces the caller's presence row. Updates older than the stored one are ignored (applied=false).
// @Tags        Presence
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.PresenceRequest  true  "Presence state"
// @Success     200   {object}  handlers.PresenceUpdateResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Router      /presence [post]
func (h *Handlers) PostPresence(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	var req PresenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid presence payload")
		return
	}

	u := services.PresenceUpdate{
		ProfileID: sess.ProfileID,
		IsOnline:  req.IsOnline,
		IsTyping:  req.IsTyping,
		TypingFor: strings.TrimSpace(req.TypingFor),
	}
	// A user only ever types to the admin.
	if u.IsTyping && u.TypingFor == "" && !sess.IsAdmin {
		u.TypingFor = h.opts.AdminProfileID
	}
	if req.At != nil {
		u.At = *req.At
	}

	applied, err := h.presence.Upsert(c.Request.Context(), u)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, PresenceUpdateResponse{Applied: applied})
}

// ListPresence godoc
// @ID          listPresence
// @Summary     Read presence
// @Description Fresh online profile ids, and the profiles currently typing toward the caller.
// @Tags        Presence
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.PresenceResponse
// @Router      /presence [get]
func (h *Handlers) ListPresence(c *gin.Context) {
	ctx := c.Request.Context()
	sess, found := session(c)
	if !found {
		return
	}
	online, err := h.presence.ListOnline(ctx)
	if err != nil {
		failErr(c, err)
		return
	}
	typing, err := h.presence.Typing(ctx, sess.ProfileID)
	if err != nil {
		failErr(c, err)
		return
	}
	if online == nil {
		online = []string{}
	}
	if typing == nil {
		typing = []string{}
	}
	ok(c, http.StatusOK, PresenceResponse{Online: online, Typing: typing})
}
