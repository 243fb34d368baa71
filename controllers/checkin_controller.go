package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/middleware"
	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/services"
	"github.com/cppla/lifesignal/store"
	"github.com/cppla/lifesignal/utils"
)

// TestTrigger sends an on-demand check-in.
type TestTrigger interface {
	TriggerTest(ctx context.Context, actorID, personID string, channel models.Channel) (*services.TestResult, error)
}

// HistoryStore reads a person's past check-ins.
type HistoryStore interface {
	GetPerson(ctx context.Context, id string) (*models.MonitoredPerson, error)
	ListCheckins(ctx context.Context, personID string, limit int) ([]models.Checkin, error)
}

// CheckinController serves the owner-facing check-in endpoints.
type CheckinController struct {
	trigger TestTrigger
	history HistoryStore
	logger  *zap.Logger
}

// NewCheckinController creates a new CheckinController instance.
func NewCheckinController(trigger TestTrigger, history HistoryStore, logger *zap.Logger) *CheckinController {
	return &CheckinController{trigger: trigger, history: history, logger: logger}
}

type testCheckinRequest struct {
	PersonID string `json:"person_id" binding:"required"`
	Channel  string `json:"channel" binding:"omitempty,oneof=sms voice both"`
}

// SendTest sends an immediate test check-in to a person the caller owns.
func (c *CheckinController) SendTest(ctx *gin.Context) {
	var req testCheckinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, "person_id is required and channel must be sms, voice or both")
		return
	}

	res, err := c.trigger.TriggerTest(ctx.Request.Context(), middleware.UserID(ctx), req.PersonID, models.Channel(req.Channel))
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	utils.Success(ctx, res)
}

// History lists recent check-ins with delivery attempts for a person the caller owns.
func (c *CheckinController) History(ctx *gin.Context) {
	personID := ctx.Param("id")
	p, err := c.history.GetPerson(ctx.Request.Context(), personID)
	if errors.Is(err, store.ErrNotFound) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "person not found")
		return
	}
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	if p.OwnerUserID != middleware.UserID(ctx) {
		utils.Error(ctx, http.StatusForbidden, utils.CodeForbidden, "forbidden")
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "30"))
	rows, err := c.history.ListCheckins(ctx.Request.Context(), personID, limit)
	if err != nil {
		c.writeError(ctx, err)
		return
	}
	utils.Success(ctx, gin.H{"person_id": personID, "checkins": rows})
}

func (c *CheckinController) writeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "person not found")
	case errors.Is(err, services.ErrForbidden):
		utils.Error(ctx, http.StatusForbidden, utils.CodeForbidden, "forbidden")
	case errors.Is(err, services.ErrNoPhone),
		errors.Is(err, services.ErrInvalidChannel),
		errors.Is(err, services.ErrMessagingDisabled):
		utils.Error(ctx, http.StatusBadRequest, utils.CodeBadRequest, err.Error())
	case errors.Is(err, services.ErrAlreadyCheckedIn):
		utils.Error(ctx, http.StatusConflict, utils.CodeConflict, err.Error())
	case errors.Is(err, gateway.ErrNotConfigured):
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeNotConfigured, err.Error())
	default:
		c.logger.Error("check-in request failed", zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeInternal, "internal error")
	}
}
