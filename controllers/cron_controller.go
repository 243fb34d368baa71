package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/services"
	"github.com/cppla/lifesignal/utils"
)

// TickRunner is a batch job driven by the external trigger.
type TickRunner interface {
	RunTick(ctx context.Context) (*services.TickReport, error)
}

// CronController exposes the scheduler and escalation ticks over HTTP.
type CronController struct {
	checkins    TickRunner
	escalations TickRunner
	lease       *services.TickLease
	logger      *zap.Logger
}

// NewCronController creates a controller; lease may be nil.
func NewCronController(checkins, escalations TickRunner, lease *services.TickLease, logger *zap.Logger) *CronController {
	return &CronController{checkins: checkins, escalations: escalations, lease: lease, logger: logger}
}

// RunCheckins runs one scheduler tick.
func (c *CronController) RunCheckins(ctx *gin.Context) {
	c.run(ctx, "checkins", c.checkins)
}

// RunEscalations runs one escalation tick.
func (c *CronController) RunEscalations(ctx *gin.Context) {
	c.run(ctx, "escalations", c.escalations)
}

func (c *CronController) run(ctx *gin.Context, job string, runner TickRunner) {
	release, ok := c.lease.Acquire(ctx.Request.Context(), job)
	if !ok {
		c.logger.Info("tick skipped, previous run still active", zap.String("job", job))
		utils.Error(ctx, http.StatusServiceUnavailable, utils.CodeTickBusy, services.ErrTickInProgress.Error())
		return
	}
	defer release()

	report, err := runner.RunTick(ctx.Request.Context())
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfigured) {
			utils.Error(ctx, http.StatusInternalServerError, utils.CodeNotConfigured, err.Error())
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, utils.CodeTickFailed, "tick failed")
		return
	}
	utils.Success(ctx, report)
}
