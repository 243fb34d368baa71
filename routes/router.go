package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/lifesignal/config"
	"github.com/cppla/lifesignal/controllers"
	"github.com/cppla/lifesignal/middleware"
	"github.com/cppla/lifesignal/utils"
)

// Handlers bundles the controllers mounted by SetupRouter.
type Handlers struct {
	Cron     *controllers.CronController
	Twilio   *controllers.TwilioController
	Checkins *controllers.CheckinController
	Health   *controllers.HealthController
	// Metrics serves the Prometheus exposition; nil leaves /metrics unmounted.
	Metrics http.Handler
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, logger *zap.Logger, h Handlers) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Request logs go to their own rolling file
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		logger.Warn("gin logger unavailable, using default recovery", zap.Error(err))
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.CronTokenHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	if corsCfg.AllowAllOrigins || len(corsCfg.AllowOrigins) > 0 {
		r.Use(cors.New(corsCfg))
	}

	r.GET("/api/health", h.Health.Health)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}

	cron := r.Group("/api/cron")
	cron.Use(middleware.CronAuth(cfg.CronSecretToken))
	cron.GET("/run-checkins", h.Cron.RunCheckins)
	cron.POST("/run-checkins", h.Cron.RunCheckins)
	cron.GET("/run-escalations", h.Cron.RunEscalations)
	cron.POST("/run-escalations", h.Cron.RunEscalations)

	// Webhooks arrive from a handful of provider IPs, so they are authenticated by
	// signature and never share a per-IP bucket.
	twilio := r.Group("/api/twilio")
	twilio.Use(middleware.TwilioSignature(cfg.TwilioValidateSignature, cfg.TwilioAuthToken, cfg.AppBaseURL, logger))
	twilio.POST("/sms", h.Twilio.SMS)
	twilio.POST("/voice", h.Twilio.Voice)

	protected := r.Group("/api/v1")
	protected.Use(middleware.AuthRequired(cfg.JWTSecret), middleware.RateLimit(cfg.RateLimitPerMinute))
	protected.POST("/checkins/test", h.Checkins.SendTest)
	protected.GET("/persons/:id/checkins", h.Checkins.History)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, utils.CodeNotFound, "route not found")
	})

	return r
}
