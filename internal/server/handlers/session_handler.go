package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// InventoryService is the inventory session use-case surface used by the
// HTTP layer.
type InventoryService interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.InventorySession, error)
	GetSession(ctx context.Context, id string) (*models.InventorySession, error)
	ListSessions(ctx context.Context) ([]models.InventorySession, error)
	DeleteSession(ctx context.Context, id string) error
	Start(ctx context.Context, id string) (*models.InventorySession, error)
	Pause(ctx context.Context, id string) (*models.InventorySession, error)
	Complete(ctx context.Context, id string) (*models.InventorySession, error)
	Cancel(ctx context.Context, id string) (*models.InventorySession, error)
	ListExpectedAssets(ctx context.Context, id string, filter models.ExpectedAssetFilter) (*models.ExpectedAssetPage, error)
	SyncExpected(ctx context.Context, id string, limit int) (*models.SyncBatch, error)
	UploadResults(ctx context.Context, id string, includePhotos bool) (*models.TransmissionReceipt, error)
	RegisterReading(ctx context.Context, id string, req models.RegisterReadingRequest) (*models.Reading, bool, error)
	ListReadings(ctx context.Context, id string) ([]models.Reading, error)
	Statistics(ctx context.Context, id string) (*models.Statistics, error)
}

// SessionHandler serves the inventory session endpoints.
type SessionHandler struct {
	svc    InventoryService
	logger *zap.Logger
}

// NewSessionHandler constructs the HTTP handler adapter.
func NewSessionHandler(svc InventoryService, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{svc: svc, logger: logger}
}

// Create opens a new session in draft.
func (h *SessionHandler) Create(c *gin.Context) {
	var req models.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	session, err := h.svc.CreateSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.svc.ListSessions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": sessions})
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.svc.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Delete removes a session without readings. Privileged callers only.
func (h *SessionHandler) Delete(c *gin.Context) {
	if !callerFrom(c).Privileged {
		c.JSON(http.StatusForbidden, gin.H{"error": models.CodeForbidden, "message": "admin role required"})
		return
	}
	if err := h.svc.DeleteSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) Start(c *gin.Context)    { h.transition(c, h.svc.Start) }
func (h *SessionHandler) Pause(c *gin.Context)    { h.transition(c, h.svc.Pause) }
func (h *SessionHandler) Complete(c *gin.Context) { h.transition(c, h.svc.Complete) }
func (h *SessionHandler) Cancel(c *gin.Context)   { h.transition(c, h.svc.Cancel) }

func (h *SessionHandler) transition(c *gin.Context, op func(context.Context, string) (*models.InventorySession, error)) {
	session, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Expected lists the expected assets of a session, paginated.
func (h *SessionHandler) Expected(c *gin.Context) {
	filter := models.ExpectedAssetFilter{Search: c.Query("search")}

	var err error
	if filter.Skip, err = queryInt(c, "skip"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		respondError(c, h.logger, err)
		return
	}
	if raw := c.Query("verified"); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, h.logger, &models.ValidationError{Field: "verified", Message: "must be a boolean"})
			return
		}
		filter.Verified = &verified
	}

	page, err := h.svc.ListExpectedAssets(c.Request.Context(), c.Param("id"), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SyncExpected pulls the expected asset list from the registry.
func (h *SessionHandler) SyncExpected(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	batch, err := h.svc.SyncExpected(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// UploadResults pushes the reconciliation of a completed session.
func (h *SessionHandler) UploadResults(c *gin.Context) {
	includePhotos := false
	if raw := c.Query("include_photos"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(c, h.logger, &models.ValidationError{Field: "include_photos", Message: "must be a boolean"})
			return
		}
		includePhotos = v
	}

	receipt, err := h.svc.UploadResults(c.Request.Context(), c.Param("id"), includePhotos)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// RegisterReading records a reading; a replay of an already registered
// identifier answers 200 with the existing reading.
func (h *SessionHandler) RegisterReading(c *gin.Context) {
	var req models.RegisterReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	reading, created, err := h.svc.RegisterReading(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, reading)
}

func (h *SessionHandler) Readings(c *gin.Context) {
	readings, err := h.svc.ListReadings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": readings})
}

func (h *SessionHandler) Statistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, &models.ValidationError{Field: key, Message: "must be a non-negative integer"}
	}
	return v, nil
}
