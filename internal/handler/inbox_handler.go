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
	"intellinbox/pkg/crypto"
)

// InboxHandler serves the monitored-inbox endpoints.
type InboxHandler struct {
	inboxes         *repository.InboxRepository
	emails          *repository.EmailRepository
	publisher       JobPublisher
	cipher          *crypto.Cipher
	defaultSyncDays int
	logger          *zap.Logger
}

// JobPublisher dispatches asynchronous jobs from the API side.
type JobPublisher interface {
	Publish(routingKey string, payload any) error
}

func NewInboxHandler(
	inboxes *repository.InboxRepository,
	emails *repository.EmailRepository,
	publisher JobPublisher,
	cipher *crypto.Cipher,
	defaultSyncDays int,
	logger *zap.Logger,
) *InboxHandler {
	return &InboxHandler{
		inboxes:         inboxes,
		emails:          emails,
		publisher:       publisher,
		cipher:          cipher,
		defaultSyncDays: defaultSyncDays,
		logger:          logger,
	}
}

type createInboxRequest struct {
	EmailAddress string `json:"email_address" binding:"required,email"`
	IMAPServer   string `json:"imap_server" binding:"required"`
	Password     string `json:"password" binding:"required"`
	IsActive     *bool  `json:"is_active"`
}

// Create handles POST /inboxes: register a monitored inbox and enqueue
// its initial historical sync.
func (h *InboxHandler) Create(c *gin.Context) {
	var req createInboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	encrypted, err := h.cipher.Encrypt(req.Password)
	if err != nil {
		h.logger.Error("Failed to encrypt credential", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store credential"})
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	inbox := &model.Inbox{
		EmailAddress: req.EmailAddress,
		IMAPServer:   req.IMAPServer,
		Password:     encrypted,
		IsActive:     isActive,
	}
	id, err := h.inboxes.Create(c.Request.Context(), inbox)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email address already being monitored"})
			return
		}
		h.logger.Error("Failed to create inbox", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create inbox"})
		return
	}
	inbox.ID = id

	syncDays := h.defaultSyncDays
	if v := c.Query("sync_days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			syncDays = d
		}
	}

	if err := h.publisher.Publish(mqcontracts.RouteSetupInbox, mqcontracts.SetupInboxPayload{
		InboxID:  id,
		SyncDays: syncDays,
	}); err != nil {
		h.logger.Error("Failed to enqueue setup job",
			zap.Int("inbox_id", id),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, inbox)
}

// List handles GET /inboxes.
func (h *InboxHandler) List(c *gin.Context) {
	inboxes, err := h.inboxes.ListAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list inboxes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list inboxes"})
		return
	}
	if inboxes == nil {
		inboxes = []model.Inbox{}
	}
	c.JSON(http.StatusOK, inboxes)
}

// TriggerSync handles POST /inboxes/:id/sync.
func (h *InboxHandler) TriggerSync(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if _, err := h.inboxes.FindByID(c.Request.Context(), id); err != nil {
		h.respondLookupError(c, err, "inbox")
		return
	}

	if err := h.publisher.Publish(mqcontracts.RouteSyncInbox, mqcontracts.SyncInboxPayload{
		InboxID: id,
	}); err != nil {
		h.logger.Error("Failed to enqueue sync job", zap.Int("inbox_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue sync"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sync started in background"})
}

// SyncAll handles POST /inboxes/syncall: enqueue a sync for every
// active inbox.
func (h *InboxHandler) SyncAll(c *gin.Context) {
	inboxes, err := h.inboxes.ListActive(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list active inboxes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list inboxes"})
		return
	}

	dispatched := 0
	for _, inbox := range inboxes {
		if err := h.publisher.Publish(mqcontracts.RouteSyncInbox, mqcontracts.SyncInboxPayload{
			InboxID: inbox.ID,
		}); err != nil {
			h.logger.Error("Failed to enqueue sync job",
				zap.Int("inbox_id", inbox.ID),
				zap.Error(err),
			)
			continue
		}
		dispatched++
	}

	c.JSON(http.StatusOK, gin.H{"message": "sync jobs dispatched", "count": dispatched})
}

// Reset handles POST /inboxes/:id/reset: drop all owned emails and
// analyses, then re-run the historical sync.
func (h *InboxHandler) Reset(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if _, err := h.inboxes.FindByID(c.Request.Context(), id); err != nil {
		h.respondLookupError(c, err, "inbox")
		return
	}

	deleted, err := h.emails.DeleteByInbox(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to flush inbox", zap.Int("inbox_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset inbox"})
		return
	}

	syncDays := h.defaultSyncDays
	if v := c.Query("sync_days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 {
			syncDays = d
		}
	}

	if err := h.publisher.Publish(mqcontracts.RouteSetupInbox, mqcontracts.SetupInboxPayload{
		InboxID:  id,
		SyncDays: syncDays,
	}); err != nil {
		h.logger.Error("Failed to enqueue setup job", zap.Int("inbox_id", id), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "reset started in background",
		"deleted_emails": deleted,
	})
}

type updateStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// UpdateStatus handles PATCH /inboxes/:id/status.
func (h *InboxHandler) UpdateStatus(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.inboxes.UpdateActive(c.Request.Context(), id, *req.IsActive); err != nil {
		h.respondLookupError(c, err, "inbox")
		return
	}

	inbox, err := h.inboxes.FindByID(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err, "inbox")
		return
	}
	c.JSON(http.StatusOK, inbox)
}

// Delete handles DELETE /inboxes/:id. Owned emails and analyses cascade.
func (h *InboxHandler) Delete(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	if err := h.inboxes.Delete(c.Request.Context(), id); err != nil {
		h.respondLookupError(c, err, "inbox")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "inbox and associated data deleted"})
}

func (h *InboxHandler) pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func (h *InboxHandler) respondLookupError(c *gin.Context, err error, kind string) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": kind + " not found"})
		return
	}
	h.logger.Error("Lookup failed", zap.String("kind", kind), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
