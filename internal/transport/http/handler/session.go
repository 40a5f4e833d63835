package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gopherai-assistant/internal/app"
	"gopherai-assistant/internal/transport/http/response"
)

type SessionHandler struct {
	sessions *app.SessionService
}

type BeginSessionRequest struct {
	CustomToken string `json:"custom_token" binding:"max=4096"`
}

func NewSessionHandler(sessions *app.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Begin opens an anonymous session, or a named one when a custom token is given.
func (h *SessionHandler) Begin(c *gin.Context) {
	var req BeginSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.sessions.Begin(c.Request.Context(), app.BeginInput{CustomToken: req.CustomToken})
	if err != nil {
		if errors.Is(err, app.ErrSessionFailed) {
			response.Error(c, http.StatusUnauthorized, response.CodeSessionFailed, app.MsgSessionFailed)
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "internal server error")
		return
	}
	response.OK(c, result)
}
