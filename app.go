package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/lifesignal/config"
	"github.com/cppla/lifesignal/gateway"
	"github.com/cppla/lifesignal/models"
	"github.com/cppla/lifesignal/services"
	"github.com/cppla/lifesignal/store"
	"github.com/cppla/lifesignal/utils"
)

// app is the wired check-in core shared by the serve and tick commands.
type app struct {
	cfg      config.AppConfig
	logger   *zap.Logger
	db       *gorm.DB
	store    *store.GormStore
	redis    *redis.Client
	registry *prometheus.Registry

	scheduler   *services.Scheduler
	collector   *services.Collector
	escalations *services.EscalationRunner
	lease       *services.TickLease
}

func newApp(cfg config.AppConfig, logger *zap.Logger) (*app, error) {
	db, err := config.InitDatabase(cfg, models.All()...)
	if err != nil {
		return nil, err
	}
	st := store.New(db)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := services.NewMetrics(reg)

	// a typed nil *redis.Client must not reach the interface
	rc := utils.NewRedis(cfg, logger)
	var universal redis.UniversalClient
	if rc != nil {
		universal = rc
	}

	gw := gateway.NewTwilioGateway(gateway.TwilioConfig{
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
		BaseURL:    cfg.TwilioAPIBaseURL,
		Timeout:    cfg.ProviderTimeout(),
	}, logger.Named("twilio"))

	var mailer gateway.EmailSender
	if cfg.SMTPHost != "" {
		mailer = gateway.NewMailer(gateway.MailerConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseTLS:   cfg.SMTPTLS,
			Timeout:  cfg.ProviderTimeout(),
		})
	}

	oracle := services.NewCachedOracle(
		services.NewSubscriptionOracle(st),
		utils.NewCache(universal, "lifesignal:", logger),
		time.Duration(cfg.EligibilityCacheSec)*time.Second,
		logger,
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    st,
		redis:    rc,
		registry: reg,
		scheduler: services.NewScheduler(services.SchedulerConfig{
			Window:           cfg.CheckinWindow(),
			VoiceCallbackURL: cfg.VoiceCallbackURL(),
			FromNumber:       cfg.TwilioFromNumber,
		}, st, gw, oracle, metrics, logger.Named("scheduler")),
		collector: services.NewCollector(st, metrics, logger.Named("collector"), nil),
		escalations: services.NewEscalationRunner(services.EscalationConfig{
			Lookback:        cfg.EscalationLookback(),
			ClaimStaleAfter: time.Duration(cfg.EscalationClaimStaleMins) * time.Minute,
			BatchLimit:      cfg.EscalationBatchLimit,
		}, st, gw, mailer, metrics, logger.Named("escalation")),
		lease: services.NewTickLease(universal, time.Duration(cfg.TickLeaseSec)*time.Second, logger),
	}, nil
}

func (a *app) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
