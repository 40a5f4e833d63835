package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"gopherai-assistant/internal/ai"
	"gopherai-assistant/internal/app"
	"gopherai-assistant/internal/model"
	"gopherai-assistant/internal/pkg/pdfextract"
	"gopherai-assistant/internal/prompt"
	"gopherai-assistant/internal/store"
	"gopherai-assistant/internal/transport/http/middleware"
	"gopherai-assistant/internal/transport/http/response"
)

type AssistantRegistry interface {
	Get(userID string) (*app.Assistant, error)
	AppID() string
}

type HistorySource interface {
	Snapshot(ctx context.Context, partition model.Partition) ([]model.Record, error)
	Subscribe(ctx context.Context, partition model.Partition, onChange func([]model.Record), onError func(error)) (*store.Subscription, error)
}

type AssistantHandler struct {
	assistants AssistantRegistry
	history    HistorySource
	pdf        pdfextract.Options
	pageLimit  int
	keepAlive  time.Duration
}

type SelectModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type SubmitRequest struct {
	Mode string `json:"mode"`
	Text string `json:"text" binding:"max=100000"`
}

type FeedbackRequest struct {
	Helpful *bool `json:"helpful" binding:"required"`
}

// StateView is the JSON shape of an assistant's state.
type StateView struct {
	Phase           string               `json:"phase"`
	UserID          string               `json:"user_id"`
	Mode            string               `json:"mode"`
	Input           string               `json:"input"`
	Response        string               `json:"response"`
	Label           string               `json:"label"`
	Error           string               `json:"error,omitempty"`
	InFlight        bool                 `json:"in_flight"`
	Feedback        string               `json:"feedback,omitempty"`
	CanSubmit       bool                 `json:"can_submit"`
	CanGiveFeedback bool                 `json:"can_give_feedback"`
	History         []model.HistoryEntry `json:"history"`
}

func newStateView(s app.State) StateView {
	return StateView{
		Phase:           string(s.Phase),
		UserID:          s.UserID,
		Mode:            string(s.Mode),
		Input:           s.Input,
		Response:        s.Response,
		Label:           s.Label,
		Error:           s.Error,
		InFlight:        s.InFlight,
		Feedback:        string(s.Feedback),
		CanSubmit:       s.CanSubmit(),
		CanGiveFeedback: s.CanGiveFeedback(),
		History:         model.BuildHistory(s.History),
	}
}

// NewAssistantHandler builds the handler; pageLimit caps the entries of the
// History page and zero lists every entry.
func NewAssistantHandler(assistants AssistantRegistry, history HistorySource, pdf pdfextract.Options, pageLimit int) *AssistantHandler {
	return &AssistantHandler{
		assistants: assistants,
		history:    history,
		pdf:        pdf,
		pageLimit:  pageLimit,
		keepAlive:  15 * time.Second,
	}
}

func (h *AssistantHandler) Modes(c *gin.Context) {
	response.OK(c, prompt.Modes())
}

func (h *AssistantHandler) State(c *gin.Context) {
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}
	response.OK(c, newStateView(assistant.State()))
}

func (h *AssistantHandler) SelectMode(c *gin.Context) {
	var req SelectModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}
	state, err := assistant.SelectMode(prompt.Mode(req.Mode))
	if err != nil {
		writeAssistantError(c, err, state)
		return
	}
	response.OK(c, newStateView(state))
}

func (h *AssistantHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}
	state, err := assistant.Submit(c.Request.Context(), prompt.Mode(req.Mode), req.Text)
	if err != nil {
		writeAssistantError(c, err, state)
		return
	}
	response.OK(c, newStateView(state))
}

// SummarizePDF extracts the text of an uploaded PDF and submits it in
// summarize mode.
func (h *AssistantHandler) SummarizePDF(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	if h.pdf.MaxBytes > 0 && file.Size > h.pdf.MaxBytes {
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, pdfextract.ErrTooLarge.Error())
		return
	}
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "cannot read uploaded file")
		return
	}
	defer f.Close()

	text, err := pdfextract.ExtractText(f, h.pdf)
	if err != nil {
		switch {
		case errors.Is(err, pdfextract.ErrTooLarge):
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, err.Error())
		case errors.Is(err, pdfextract.ErrEmptyDocument):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file is not a readable pdf")
		}
		return
	}

	state, err := assistant.Submit(c.Request.Context(), prompt.ModeSummarize, text)
	if err != nil {
		writeAssistantError(c, err, state)
		return
	}
	response.OK(c, newStateView(state))
}

func (h *AssistantHandler) Feedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	assistant, ok := h.assistant(c)
	if !ok {
		return
	}
	state, err := assistant.Feedback(c.Request.Context(), *req.Helpful)
	if err != nil {
		writeAssistantError(c, err, state)
		return
	}
	response.OK(c, newStateView(state))
}

func (h *AssistantHandler) History(c *gin.Context) {
	partition, ok := h.partition(c)
	if !ok {
		return
	}
	records, err := h.history.Snapshot(c.Request.Context(), partition)
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, app.MsgHistoryFailed)
		return
	}
	entries := model.BuildHistory(records)
	if h.pageLimit > 0 && len(entries) > h.pageLimit {
		entries = entries[:h.pageLimit]
	}
	response.OK(c, gin.H{"history": entries})
}

// HistoryStream pushes the full history as a server-sent event on connect
// and after every change until the client goes away.
func (h *AssistantHandler) HistoryStream(c *gin.Context) {
	partition, ok := h.partition(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	updates := make(chan []model.Record, 1)
	failures := make(chan error, 1)
	sub, err := h.history.Subscribe(ctx, partition,
		func(records []model.Record) { offerLatest(updates, records) },
		func(err error) {
			select {
			case failures <- err:
			default:
			}
		},
	)
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, app.MsgHistoryFailed)
		return
	}
	defer sub.Cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case records := <-updates:
			c.SSEvent("history", gin.H{"history": model.BuildHistory(records)})
		case <-failures:
			c.SSEvent("error", gin.H{"message": app.MsgHistoryFailed})
		case <-ticker.C:
			c.SSEvent("ping", time.Now().Unix())
		}
		return true
	})
}

// offerLatest replaces any undelivered snapshot with records.
func offerLatest(ch chan []model.Record, records []model.Record) {
	for {
		select {
		case ch <- records:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (h *AssistantHandler) partition(c *gin.Context) (model.Partition, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return model.Partition{}, false
	}
	return model.Partition{AppID: h.assistants.AppID(), UserID: userID}, true
}

func (h *AssistantHandler) assistant(c *gin.Context) (*app.Assistant, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return nil, false
	}
	assistant, err := h.assistants.Get(userID)
	if err != nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, app.MsgSessionFailed)
		return nil, false
	}
	return assistant, true
}

func writeAssistantError(c *gin.Context, err error, state app.State) {
	view := newStateView(state)
	message := state.Error
	if message == "" {
		message = err.Error()
	}

	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.ErrorWithData(c, http.StatusBadRequest, response.CodeBadRequest, message, view)
	case errors.Is(err, app.ErrSubmissionInFlight):
		response.ErrorWithData(c, http.StatusConflict, response.CodeInFlight, err.Error(), view)
	case errors.Is(err, app.ErrFeedbackNotAllowed):
		response.ErrorWithData(c, http.StatusConflict, response.CodeFeedbackNotAllowed, err.Error(), view)
	case errors.Is(err, ai.ErrNoValidResponse):
		response.ErrorWithData(c, http.StatusBadGateway, response.CodeNoValidResponse, message, view)
	case errors.Is(err, store.ErrHistoryNotSaved):
		response.ErrorWithData(c, http.StatusServiceUnavailable, response.CodeHistoryNotSaved, message, view)
	case errors.Is(err, app.ErrAssistantClosed), errors.Is(err, app.ErrSessionFailed):
		response.Error(c, http.StatusServiceUnavailable, response.CodeServiceUnavailable, app.MsgSessionFailed)
	default:
		response.ErrorWithData(c, http.StatusBadGateway, response.CodeProviderError, message, view)
	}
}
