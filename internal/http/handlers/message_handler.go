// Message HTTP handlers.
//
// This file exposes REST endpoints for conversations:
//   - GET  /messages        (one conversation, ETag-aware)
//   - POST /messages        (internal send as the session's role)
//   - POST /messages/sms    (admin only: text the user, then save)
//   - POST /messages/seen   (mark the other party's messages seen)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (line endings, blank-line runs)
//   - delegate to MessageService and the Dispatcher
//   - implement conditional responses (ETag) and idempotency semantics
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// send exists for (profile, key), the handler returns that stored message
// with `Idempotency-Replayed: true` instead of appending a second copy.
package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/http/middleware"
	"github.com/tbourn/smsbridge-chat/internal/repo"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for an internal send.
//
// ProfileID names the conversation. Users may omit it (their own is
// implied); the admin must set it.
type PostMessageRequest struct {
	ProfileID string `json:"profile_id" example:"5b7c1e0a-2f7d-4f43-9a7e-0c2d8c1b9f10"`
	Content   string `json:"content" binding:"required" example:"Hello, how can I help?"`
}

// PostMessageResponse wraps the stored message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// PostSMSRequest is the admin's SMS send.
type PostSMSRequest struct {
	ProfileID string `json:"profile_id" binding:"required" example:"5b7c1e0a-2f7d-4f43-9a7e-0c2d8c1b9f10"`
	Content   string `json:"content" binding:"required" example:"Your order is ready"`
}

// ListMessagesResponse is one conversation in the requested order.
type ListMessagesResponse struct {
	ProfileID   string           `json:"profile_id"`
	Messages    []domain.Message `json:"messages"`
	UnreadCount int              `json:"unread_count"`
}

// MarkSeenRequest lists the messages the caller has read.
type MarkSeenRequest struct {
	MessageIDs []string `json:"message_ids" binding:"required,min=1"`
}

// MarkSeenResponse reports how many markers were written.
type MarkSeenResponse struct {
	Updated int `json:"updated"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text: CRLF/CR become LF, long newline
// runs collapse to a paragraph break, surrounding whitespace is trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// conversationFor resolves which conversation a read targets. Users read
// their own; naming someone else's is forbidden. The admin must name one.
func conversationFor(c *gin.Context, sess domain.Session) (string, bool) {
	pid := strings.TrimSpace(c.Query("profile_id"))
	if sess.IsAdmin {
		if pid == "" {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "profile_id is required")
			return "", false
		}
		return pid, true
	}
	if pid != "" && pid != sess.ProfileID {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "users can only read their own conversation")
		return "", false
	}
	return sess.ProfileID, true
}

// conversationETag changes whenever a message is appended or marked seen.
func conversationETag(pid string, st repo.ConversationStats, order string) string {
	var latest, latestSeen int64
	if st.LatestAt != nil {
		latest = st.LatestAt.UnixNano()
	}
	if st.LatestSeen != nil {
		latestSeen = st.LatestSeen.UnixNano()
	}
	return fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d:%s"`, pid, st.Count, st.Seen, latest, latestSeen, order)
}

//
// Handlers
//

// ListMessages godoc
// @ID          listMessages
// @Summary     Read a conversation
// @Description Returns every message of one conversation ordered by creation time, with the caller's unread count.
// @Description Honors If-None-Match with the weak ETag from a previous response.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       profile_id  query  string  false "Conversation (required for the admin)"  format(uuid)
// @Param       order       query  string  false "Sort order"  Enums(asc, desc) default(asc)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  "Not modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Not your conversation"
// @Failure     404  {object} handlers.ErrorResponse "Profile not found"
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	sess, found := session(c)
	if !found {
		return
	}
	pid, valid := conversationFor(c, sess)
	if !valid {
		return
	}
	order := strings.ToLower(c.DefaultQuery("order", "asc"))
	if order != "asc" && order != "desc" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "order must be asc or desc")
		return
	}

	c.Header("Cache-Control", "private, no-cache")

	// ETag pre-check (best effort).
	if st, err := h.msgSvc.Stats(ctx, pid); err == nil {
		etag := conversationETag(pid, st, order)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	msgs, err := h.msgSvc.List(ctx, pid, order == "desc")
	if err != nil {
		failErr(c, err)
		return
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		ProfileID:   pid,
		Messages:    msgs,
		UnreadCount: domain.UnreadCount(msgs, sess.Role()),
	})
}

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message
// @Description Stores a message as the caller's role. Users write to their own conversation; the admin names one.
// @Description Supports idempotency via the Idempotency-Key header (same key, same stored message).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.PostMessageResponse  "Stored message"
// @Success     200  {object}  handlers.PostMessageResponse  "Replayed message"
// @Failure     400  {object}  handlers.ErrorResponse        "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse        "Not your conversation"
// @Failure     404  {object}  handlers.ErrorResponse        "Profile not found"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	sess, found := session(c)
	if !found {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil {
		prev, err := h.idem.Replay(ctx, sess.ProfileID, idemKey)
		if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		} else if prev != nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, PostMessageResponse{Message: prev})
			return
		}
	}

	m, err := h.dispatch.SendInternal(ctx, sess, req.ProfileID, content)
	if err != nil {
		failErr(c, err)
		return
	}

	// Idempotency (store path), best effort.
	if idemKey != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, sess.ProfileID, idemKey, m.ID, http.StatusCreated); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record failed")
		}
	}

	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// PostSMS godoc
// @ID          postSMS
// @Summary     Text a user
// @Description Sends content to the user's phone through the SMS gateway and stores it with the outcome prefix.
// @Description A gateway failure is reported in the body, not as an error. An identical resend inside the suppression window is rejected.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.PostSMSRequest  true  "SMS payload"
//
// @Success     201  {object}  services.SMSOutcome
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Failure     429  {object}  handlers.ErrorResponse  "Duplicate suppressed"
// @Router      /messages/sms [post]
func (h *Handlers) PostSMS(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	var req PostSMSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "profile_id and content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	out, err := h.dispatch.SendWithSMSFallback(c.Request.Context(), sess, req.ProfileID, content)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, out)
}

// MarkSeen godoc
// @ID          markSeen
// @Summary     Mark messages seen
// @Description Records that the caller read the listed messages. Only the other party's unseen messages change; repeating is a no-op.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       body  body  handlers.MarkSeenRequest  true  "Message ids"
//
// @Success     200  {object}  handlers.MarkSeenResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /messages/seen [post]
func (h *Handlers) MarkSeen(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	var req MarkSeenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message_ids required")
		return
	}

	scope := sess.ProfileID
	if sess.IsAdmin {
		scope = ""
	}
	n, err := h.msgSvc.MarkSeen(c.Request.Context(), req.MessageIDs, sess.Role(), scope)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, MarkSeenResponse{Updated: n})
}
