package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/domain"
)

// ConversationsResponse is the admin's full snapshot.
type ConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations"`
	TotalUnread   int                   `json:"total_unread"`
}

// Conversations godoc
// @ID          adminConversations
// @Summary     All conversations
// @Description Every user with their full conversation, the admin's unread count and fresh presence flags. Newest profiles first.
// @Tags        Admin
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ConversationsResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Admin only"
// @Router      /admin/conversations [get]
func (h *Handlers) Conversations(c *gin.Context) {
	convs, err := h.msgSvc.AdminSnapshot(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	total := 0
	for _, cv := range convs {
		total += cv.UnreadCount
	}
	ok(c, http.StatusOK, ConversationsResponse{Conversations: convs, TotalUnread: total})
}
