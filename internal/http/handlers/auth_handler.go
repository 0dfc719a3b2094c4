// Session HTTP handlers.
//
//   - POST /auth/register  (create or reuse a profile, returns a token)
//   - POST /auth/login     (phone lookup, returns a token and is_admin)
//   - GET  /auth/me        (the current session)
//
// Identity is the phone number alone. The token is an HS256 JWT; clients
// send it as a bearer header or, for streams, as the token query parameter.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/services"
)

// RegisterRequest creates a profile.
type RegisterRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required" example:"+250781111111"`
	Name        string `json:"name" example:"Alice"`
}

// LoginRequest looks a profile up by phone number.
type LoginRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required" example:"+250781111111"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Token          string          `json:"token"`
	Profile        *domain.Profile `json:"profile"`
	Session        domain.Session  `json:"session"`
	IsAdmin        bool            `json:"is_admin"`
	AdminProfileID string          `json:"admin_profile_id,omitempty"`
}

// MeResponse describes the current session and how to sync.
type MeResponse struct {
	Session        domain.Session `json:"session"`
	AdminProfileID string         `json:"admin_profile_id,omitempty"`
	PollIntervalMS int64          `json:"poll_interval_ms" example:"1000"`
	StreamEnabled  bool           `json:"stream_enabled"`
}

// Register godoc
// @ID          register
// @Summary     Register a phone number
// @Description Creates a profile for the phone number (or reuses the existing one) and returns a session token.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.RegisterRequest  true  "Phone number and optional display name"
// @Success     201   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid phone number"
// @Failure     500   {object}  handlers.ErrorResponse  "Internal error"
// @Router      /auth/register [post]
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone_number required")
		return
	}
	login, err := h.sessions.Register(c.Request.Context(), req.PhoneNumber, req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, h.authResponse(login))
}

// Login godoc
// @ID          login
// @Summary     Log in with a phone number
// @Description Looks the phone number up. The admin is the profile whose number matches the configured admin phone.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.LoginRequest  true  "Phone number"
// @Success     200   {object}  handlers.AuthResponse
// @Failure     400   {object}  handlers.ErrorResponse  "Invalid phone number"
// @Failure     404   {object}  handlers.ErrorResponse  "No account for this phone number"
// @Router      /auth/login [post]
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone_number required")
		return
	}
	login, err := h.sessions.Login(c.Request.Context(), req.PhoneNumber)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, h.authResponse(login))
}

// Me godoc
// @ID          me
// @Summary     Current session
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.MeResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/me [get]
func (h *Handlers) Me(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	ok(c, http.StatusOK, MeResponse{
		Session:        sess,
		AdminProfileID: h.opts.AdminProfileID,
		PollIntervalMS: h.opts.PollInterval.Milliseconds(),
		StreamEnabled:  h.relay != nil,
	})
}

func (h *Handlers) authResponse(l *services.Login) AuthResponse {
	return AuthResponse{
		Token:          l.Token,
		Profile:        l.Profile,
		Session:        l.Session,
		IsAdmin:        l.Session.IsAdmin,
		AdminProfileID: h.opts.AdminProfileID,
	}
}
