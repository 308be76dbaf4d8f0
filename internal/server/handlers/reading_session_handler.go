package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/fieldinventory/internal/domain/models"
)

// ReadingSessionService is the device reading session use-case surface.
type ReadingSessionService interface {
	Create(ctx context.Context, caller models.Caller, req models.CreateReadingSessionRequest) (*models.DeviceReadingSession, error)
	Get(ctx context.Context, id string) (*models.DeviceReadingSession, error)
	Active(ctx context.Context, caller models.Caller) (*models.DeviceReadingSession, error)
	Readings(ctx context.Context, id string) (*models.ReadingsSnapshot, error)
	RecordReading(ctx context.Context, caller models.Caller, req models.DeviceReadingRequest) (*models.SessionReading, error)
	Complete(ctx context.Context, caller models.Caller, id string) (*models.DeviceReadingSession, error)
	Cancel(ctx context.Context, caller models.Caller, id string) (*models.DeviceReadingSession, error)
}

// ReadingSessionHandler serves the device reading session endpoints.
type ReadingSessionHandler struct {
	svc        ReadingSessionService
	linkScheme string
	logger     *zap.Logger
	now        func() time.Time
}

// NewReadingSessionHandler constructs the HTTP handler adapter. linkScheme is
// the URI scheme of the companion app deep link.
func NewReadingSessionHandler(svc ReadingSessionService, linkScheme string, logger *zap.Logger) *ReadingSessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadingSessionHandler{svc: svc, linkScheme: linkScheme, logger: logger, now: time.Now}
}

func (h *ReadingSessionHandler) present(s *models.DeviceReadingSession) models.DeviceReadingSessionView {
	return models.DeviceReadingSessionView{
		DeviceReadingSession: *s,
		ExpiresAt:            s.ExpiresAt(),
		RemainingSeconds:     int(s.Remaining(h.now()) / time.Second),
		DeepLink:             models.DeviceLink(h.linkScheme, s.ReadingType, s.ID),
	}
}

// Create starts a device session for the caller.
func (h *ReadingSessionHandler) Create(c *gin.Context) {
	var req models.CreateReadingSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	session, err := h.svc.Create(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, h.present(session))
}

func (h *ReadingSessionHandler) Active(c *gin.Context) {
	session, err := h.svc.Active(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.present(session))
}

func (h *ReadingSessionHandler) Get(c *gin.Context) {
	session, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.present(session))
}

// Readings returns the full current reading set; pollers replace their
// local list with it.
func (h *ReadingSessionHandler) Readings(c *gin.Context) {
	snapshot, err := h.svc.Readings(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// RecordReading attributes a companion app read to the caller's active
// session.
func (h *ReadingSessionHandler) RecordReading(c *gin.Context) {
	var req models.DeviceReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, h.logger, err)
		return
	}

	reading, err := h.svc.RecordReading(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, reading)
}

func (h *ReadingSessionHandler) Complete(c *gin.Context) {
	h.finish(c, h.svc.Complete)
}

func (h *ReadingSessionHandler) Cancel(c *gin.Context) {
	h.finish(c, h.svc.Cancel)
}

func (h *ReadingSessionHandler) finish(c *gin.Context, op func(context.Context, models.Caller, string) (*models.DeviceReadingSession, error)) {
	session, err := op(c.Request.Context(), callerFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, h.present(session))
}
