package controllers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/lifesignal/config"
	"github.com/cppla/lifesignal/utils"
)

// HealthController reports which pieces of configuration are present.
type HealthController struct {
	db  *gorm.DB
	cfg config.AppConfig
}

func NewHealthController(db *gorm.DB, cfg config.AppConfig) *HealthController {
	return &HealthController{db: db, cfg: cfg}
}

// Health never echoes configuration values, only whether they are set.
func (h *HealthController) Health(ctx *gin.Context) {
	dbOK := false
	if h.db != nil {
		if sqlDB, err := h.db.DB(); err == nil {
			pctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			dbOK = sqlDB.PingContext(pctx) == nil
			cancel()
		}
	}

	utils.Success(ctx, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"config": gin.H{
			"database":           dbOK,
			"cron_secret_token":  h.cfg.CronSecretToken != "",
			"twilio_account_sid": h.cfg.TwilioAccountSID != "",
			"twilio_auth_token":  h.cfg.TwilioAuthToken != "",
			"twilio_from_number": h.cfg.TwilioFromNumber != "",
			"app_base_url":       h.cfg.AppBaseURL != "",
			"smtp":               h.cfg.SMTPHost != "",
			"redis":              h.cfg.RedisHost != "",
		},
	})
}
