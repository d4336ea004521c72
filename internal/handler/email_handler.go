package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mqcontracts "intellinbox/contracts/mq"
	"intellinbox/internal/model"
	"intellinbox/internal/repository"
)

// EmailHandler serves the email CRUD and re-analysis endpoints.
type EmailHandler struct {
	emails    *repository.EmailRepository
	analyses  *repository.AnalysisRepository
	publisher JobPublisher
	logger    *zap.Logger
}

func NewEmailHandler(
	emails *repository.EmailRepository,
	analyses *repository.AnalysisRepository,
	publisher JobPublisher,
	logger *zap.Logger,
) *EmailHandler {
	return &EmailHandler{
		emails:    emails,
		analyses:  analyses,
		publisher: publisher,
		logger:    logger,
	}
}

// List handles GET /emails?skip=&limit=, newest first.
func (h *EmailHandler) List(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	emails, err := h.emails.List(c.Request.Context(), skip, limit)
	if err != nil {
		h.logger.Error("Failed to list emails", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list emails"})
		return
	}
	if emails == nil {
		emails = []model.Email{}
	}
	c.JSON(http.StatusOK, emails)
}

// Get handles GET /emails/:id.
func (h *EmailHandler) Get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	email, err := h.emails.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

type createEmailRequest struct {
	Sender  string `json:"sender" binding:"required"`
	Subject string `json:"subject"`
	Body    string `json:"body" binding:"required"`
}

// Create handles POST /emails: manual insert plus one analysis job.
func (h *EmailHandler) Create(c *gin.Context) {
	var req createEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	email := &model.Email{
		Sender:  req.Sender,
		Subject: req.Subject,
		Body:    req.Body,
		Status:  model.StatusPending,
	}
	id, err := h.emails.Create(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("Failed to create email", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create email"})
		return
	}

	if err := h.publisher.Publish(mqcontracts.RouteAnalyzeEmail, mqcontracts.AnalyzeEmailPayload{
		EmailID: id,
	}); err != nil {
		h.logger.Error("Failed to enqueue analysis job",
			zap.Int("email_id", id),
			zap.Error(err),
		)
	}

	created, err := h.emails.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// Reanalyze handles PATCH /emails/:id/analysis: discard the prior
// analysis, force the status to processing and enqueue a fresh job.
func (h *EmailHandler) Reanalyze(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	current, err := h.emails.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	if !model.CanTransition(current.Status, model.StatusProcessing) {
		c.JSON(http.StatusConflict, gin.H{"error": "analysis already in progress"})
		return
	}

	if err := h.emails.UpdateStatus(c.Request.Context(), id, model.StatusProcessing); err != nil {
		h.respondLookupError(c, err)
		return
	}
	if err := h.analyses.DeleteByEmailID(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to discard prior analysis",
			zap.Int("email_id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset analysis"})
		return
	}

	if err := h.publisher.Publish(mqcontracts.RouteAnalyzeEmail, mqcontracts.AnalyzeEmailPayload{
		EmailID: id,
	}); err != nil {
		h.logger.Error("Failed to enqueue analysis job",
			zap.Int("email_id", id),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue analysis"})
		return
	}

	email, err := h.emails.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

// Delete handles DELETE /emails/:id. The analysis cascades.
func (h *EmailHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.emails.Delete(c.Request.Context(), id); err != nil {
		h.respondLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (h *EmailHandler) pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *EmailHandler) respondLookupError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	h.logger.Error("Email lookup failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
