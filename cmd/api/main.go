package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mindprint/internal/auth"
	"mindprint/internal/backend"
	"mindprint/internal/db"
	"mindprint/internal/mailer"
	"mindprint/internal/orchestrator"
	"mindprint/internal/payments"
	"mindprint/internal/polling"
	"mindprint/internal/ratelimiter"
	"mindprint/internal/store"
	"mindprint/internal/track"
)

var version = "1.0.0"

// NewLogger creates a zap logger writing colored console output to stdout.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), zapcore.InfoLevel)

	return zap.New(core).Sugar(), nil
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if val, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		fmt.Println("Invalid", key, "- defaulting to", fallback)
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		fmt.Println("Invalid", key, "- defaulting to", fallback)
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		fmt.Println("Invalid", key, "- defaulting to", fallback)
	}
	return fallback
}

// @title			Mindprint Payments API
// @description	Checkout orchestration for the Mindprint assessment platform.

// @BasePath					/v1
// @securityDefinitions.apikey	ApiKeyAuth
// @in							header
// @name						Authorization

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(envInt("DB_MAX_CONNS", 25)),
			maxIdleTime: os.Getenv("DB_MAX_IDLE_TIME"),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				exp:    time.Hour * 24 * 3,
				iss:    "Mindprint",
			},
		},
		payment: paymentConfig{
			backendURL:        os.Getenv("PAYMENTS_BACKEND_URL"),
			razorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
			razorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
			paypalClientID:    os.Getenv("PAYPAL_CLIENT_ID"),
			paypalSecret:      os.Getenv("PAYPAL_SECRET"),
			paypalAPIBase:     os.Getenv("PAYPAL_API_BASE"),
			checkoutWait:      envDuration("CHECKOUT_WAIT", 5*time.Minute),
			receiptSalt:       os.Getenv("RECEIPT_SALT"),
			supportEmail:      os.Getenv("SUPPORT_EMAIL"),
			analyticsURL:      os.Getenv("ANALYTICS_URL"),
			affiliateURL:      os.Getenv("AFFILIATE_URL"),
			affiliateKey:      os.Getenv("AFFILIATE_API_KEY"),
		},
		polling: pollingConfig{
			interval:    envDuration("POLLING_INTERVAL", 5*time.Second),
			maxDuration: envDuration("POLLING_MAX_DURATION", 5*time.Minute),
		},
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      envInt("SMTP_PORT", 587),
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: os.Getenv("SMTP_FROM_EMAIL"),
		},
		rateLimiter: ratelimiter.Config{
			RequestsPerTimeFrame: envInt("RATELIMITER_REQUESTS_COUNT", 20),
			TimeFrame:            envDuration("RATELIMITER_TIMEFRAME", time.Minute),
			Enabled:              envBool("RATE_LIMITER_ENABLED", true),
		},
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	pool, err := db.New(cfg.db.addr, cfg.db.maxConns, cfg.db.maxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	storage := store.NewStorage(pool)

	backendClient := backend.NewClient(cfg.payment.backendURL, logger)

	sessions := payments.NewSessionRegistry()

	razorpay := payments.NewRazorpayAdapter(
		cfg.payment.razorpayKeyID,
		cfg.payment.razorpayKeySecret,
		backendClient,
		sessions,
		cfg.payment.checkoutWait,
		logger,
	)

	paypal, err := payments.NewPayPalAdapter(
		cfg.payment.paypalClientID,
		cfg.payment.paypalSecret,
		cfg.payment.paypalAPIBase,
		backendClient,
		sessions,
		cfg.payment.checkoutWait,
		logger,
	)
	if err != nil {
		logger.Fatal(err)
	}

	manager := payments.NewManager(razorpay, paypal)

	smtp, err := mailer.NewSMTPClient(
		cfg.mail.host,
		cfg.mail.port,
		cfg.mail.username,
		cfg.mail.password,
		cfg.mail.fromEmail,
	)
	if err != nil {
		logger.Fatal(err)
	}

	receipts, err := orchestrator.NewReceiptGenerator(cfg.payment.receiptSalt)
	if err != nil {
		logger.Fatal(err)
	}

	orch := orchestrator.New(
		manager,
		backendClient,
		storage,
		track.NewAnalyticsClient(cfg.payment.analyticsURL),
		track.NewAffiliateClient(cfg.payment.affiliateURL, cfg.payment.affiliateKey),
		receipts,
		smtp,
		cfg.payment.supportEmail,
		logger,
	)

	monitor := polling.NewMonitor(backendClient, cfg.polling.interval, cfg.polling.maxDuration, logger)

	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.iss,
		cfg.auth.token.iss,
		cfg.auth.token.exp,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		storage:       storage,
		backend:       backendClient,
		sessions:      sessions,
		orchestrator:  orch,
		monitor:       monitor,
		mailer:        smtp,
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
	}

	expvar.NewString("version").Set(version)
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
