package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aegis-secops/aegis/internal/api/handler"
	"github.com/aegis-secops/aegis/internal/defense"
	"github.com/aegis-secops/aegis/internal/effector"
	"github.com/aegis-secops/aegis/internal/engine"
	"github.com/aegis-secops/aegis/internal/health"
	"github.com/aegis-secops/aegis/internal/ingest"
	"github.com/aegis-secops/aegis/internal/ledger"
	"github.com/aegis-secops/aegis/internal/notify"
	"github.com/aegis-secops/aegis/internal/plan"
	"github.com/aegis-secops/aegis/internal/scoring"
	"github.com/aegis-secops/aegis/internal/triage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("aegisd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("aegisd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("auth.token_secret", "")
	viper.SetDefault("database.url", "")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("scoring.decay_rate", 0.05)
	viper.SetDefault("scoring.min_decay", 0.1)
	viper.SetDefault("severity.medium", 10.0)
	viper.SetDefault("severity.high", 15.0)
	viper.SetDefault("severity.critical", 20.0)
	viper.SetDefault("history.max_entries", 1000)
	viper.SetDefault("effectors.firewall_webhook", "")
	viper.SetDefault("effectors.waf_webhook", "")
	viper.SetDefault("effectors.security_gateway_webhook", "")
	viper.SetDefault("effectors.email_security_webhook", "")
	viper.SetDefault("effectors.timeout", "10s")
	viper.SetDefault("notify.smtp_host", "")
	viper.SetDefault("notify.smtp_port", 587)
	viper.SetDefault("notify.smtp_username", "")
	viper.SetDefault("notify.smtp_password", "")
	viper.SetDefault("notify.from_address", "alerts@aegis.local")
	viper.SetDefault("notify.recipients", []string{})
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("notify.webhook_secret", "")
	viper.SetDefault("notify.min_severity", "medium")
	viper.SetDefault("kafka.brokers", []string{})
	viper.SetDefault("kafka.topic", "threats")
	viper.SetDefault("kafka.group", "aegisd")
	viper.SetDefault("health.check_interval", "5m")
	viper.SetDefault("health.probe_timeout", "10s")
	viper.SetDefault("health.fail_threshold", 3)
	viper.SetDefault("defense.rule_sweep_interval", "1h")
	viper.SetDefault("defense.rule_max_age", "24h")

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	// ── Persistent store (optional) ──────────────────────────────────────────
	var store ledger.Store
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(context.Background()); err != nil {
			logger.Warn("postgres unreachable, running with in-memory history only", zap.Error(err))
		} else {
			store = ledger.NewPostgresStore(db, logger)
			logger.Info("connected to postgres")
		}
	} else {
		logger.Warn("no database configured, mitigation history is in-memory only")
	}

	// ── Redis (optional shared blocked-IP set) ───────────────────────────────
	var redisClient *redis.Client
	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			logger.Warn("invalid redis url, shared blocked-IP set disabled", zap.Error(err))
		} else {
			redisClient = redis.NewClient(opt)
			if err := redisClient.Ping(context.Background()).Err(); err != nil {
				logger.Warn("redis unreachable, shared blocked-IP set disabled", zap.Error(err))
				redisClient = nil
			} else {
				logger.Info("connected to redis")
				defer redisClient.Close()
			}
		}
	}

	// ── Effectors + defense guard ────────────────────────────────────────────
	effectorTimeout := viper.GetDuration("effectors.timeout")
	endpoints := effector.Endpoints{
		Firewall:        viper.GetString("effectors.firewall_webhook"),
		WAF:             viper.GetString("effectors.waf_webhook"),
		SecurityGateway: viper.GetString("effectors.security_gateway_webhook"),
		EmailSecurity:   viper.GetString("effectors.email_security_webhook"),
	}

	var fw defense.FirewallCaller
	if endpoints.Firewall != "" {
		fw = effector.NewFirewallWebhook(endpoints.Firewall, effectorTimeout, logger)
		logger.Info("firewall effector configured", zap.String("url", endpoints.Firewall))
	} else {
		logger.Info("firewall effector not configured, blocks are local bookkeeping only")
	}
	guard := defense.NewGuard(fw, redisClient, logger)

	// ── Notifier ─────────────────────────────────────────────────────────────
	var mailer notify.EmailSender
	if smtpHost := viper.GetString("notify.smtp_host"); smtpHost != "" {
		mailer = notify.NewSMTPSender(
			smtpHost,
			viper.GetInt("notify.smtp_port"),
			viper.GetString("notify.smtp_username"),
			viper.GetString("notify.smtp_password"),
			viper.GetString("notify.from_address"),
		)
		logger.Info("SMTP alert sender configured", zap.String("host", smtpHost))
	} else {
		mailer = notify.NewNoopSender(logger)
		logger.Info("alert email sender: noop (set notify.smtp_host to enable SMTP)")
	}

	var alertWebhook *notify.WebhookAlerter
	if whURL := viper.GetString("notify.webhook_url"); whURL != "" {
		alertWebhook = notify.NewWebhookAlerter(whURL, viper.GetString("notify.webhook_secret"), logger)
		logger.Info("alert webhook configured", zap.String("url", whURL))
	}

	notifier := notify.NewNotifier(mailer, alertWebhook, viper.GetStringSlice("notify.recipients"), logger)
	notifier.SetMinSeverity(scoring.Severity(viper.GetString("notify.min_severity")))
	notifier.SetMetricsRecorder(handler.RecordAlert)

	// ── Engine ───────────────────────────────────────────────────────────────
	exec := effector.NewExecutor(effector.Config{
		Endpoints: endpoints,
		Timeout:   effectorTimeout,
	}, guard, notifier, logger)

	led := ledger.NewLedger(store, logger)
	led.SetMaxHistory(viper.GetInt("history.max_entries"))
	led.SetMetricsRecorder(handler.RecordLedgerPersist)

	thresholds := scoring.Thresholds{
		Medium:   viper.GetFloat64("severity.medium"),
		High:     viper.GetFloat64("severity.high"),
		Critical: viper.GetFloat64("severity.critical"),
	}

	eng := engine.New(plan.NewPlanner(), thresholds, exec, led, logger)
	eng.SetActionMetricsRecorder(func(kind plan.ActionKind, status plan.Status) {
		handler.RecordAction(string(kind), string(status))
	})
	eng.SetRunMetricsRecorder(func(sev scoring.Severity) {
		handler.RecordMitigationRun(string(sev))
	})

	hub := handler.NewStreamHub(logger)
	eng.SetCompletionFunc(hub.Broadcast)

	scorer := scoring.NewScorer(scoring.Config{
		DecayRate: viper.GetFloat64("scoring.decay_rate"),
		MinDecay:  viper.GetFloat64("scoring.min_decay"),
	})

	// ── Effector health probing ──────────────────────────────────────────────
	healthTargets := []health.Target{
		{Name: "firewall", URL: endpoints.Firewall},
		{Name: "waf", URL: endpoints.WAF},
		{Name: "security_gateway", URL: endpoints.SecurityGateway},
		{Name: "email_security", URL: endpoints.EmailSecurity},
	}
	checker := health.New(healthTargets, health.Config{
		CheckInterval: viper.GetDuration("health.check_interval"),
		ProbeTimeout:  viper.GetDuration("health.probe_timeout"),
		FailThreshold: viper.GetInt("health.fail_threshold"),
	}, logger)
	checker.SetDegradedFunc(func(ctx context.Context, target health.Target, failCount int) {
		notifier.SendWebhookAlert(ctx, "effector unreachable: "+target.Name, 0, "high")
	})

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2))
	}

	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	var auth gin.HandlerFunc
	if secret := viper.GetString("auth.token_secret"); secret != "" {
		auth = handler.RequireToken(secret)
		logger.Info("bearer-token auth enabled on mutating routes")
	} else {
		logger.Warn("auth.token_secret not set — mutating routes are unauthenticated")
	}

	v1 := router.Group("/api/v1")
	handler.NewMitigationHandler(eng, auth, logger).Register(v1)
	handler.NewDefenseHandler(guard).Register(v1)
	handler.NewRiskHandler(scorer, thresholds).Register(v1)
	handler.NewTriageHandler(triage.NewRuleBasedAnalyzer(), checker).Register(v1)
	hub.Register(v1)

	// ── Background tasks ─────────────────────────────────────────────────────
	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()

	go checker.Start(ingestCtx)

	// Periodic sweep flagging firewall rules that have outlived their
	// configured age, so emergency measures get reviewed and retired.
	go func() {
		sweep := time.NewTicker(viper.GetDuration("defense.rule_sweep_interval"))
		defer sweep.Stop()
		maxAge := viper.GetDuration("defense.rule_max_age")
		for {
			select {
			case <-sweep.C:
				for _, rule := range guard.StaleRules(maxAge) {
					logger.Warn("firewall rule exceeds maximum age, review for removal",
						zap.String("rule", rule.Name),
						zap.Time("applied_at", rule.AppliedAt),
						zap.Duration("max_age", maxAge),
					)
				}
			case <-ingestCtx.Done():
				return
			}
		}
	}()

	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		consumer := ingest.NewConsumer(ingest.Config{
			Brokers: brokers,
			Topic:   viper.GetString("kafka.topic"),
			GroupID: viper.GetString("kafka.group"),
		}, eng, logger)
		defer consumer.Close() //nolint:errcheck

		go func() {
			if err := consumer.Run(ingestCtx); err != nil {
				logger.Error("kafka consumer stopped", zap.Error(err))
			}
		}()
		logger.Info("kafka threat ingestion enabled",
			zap.Strings("brokers", brokers),
			zap.String("topic", viper.GetString("kafka.topic")),
		)
	}

	// ── Serve ────────────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("aegisd listening", zap.Int("port", httpPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down aegisd...")

	stopIngest()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("aegisd stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
