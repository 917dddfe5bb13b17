package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"mindprint/docs"
	"mindprint/internal/auth"
	"mindprint/internal/backend"
	"mindprint/internal/mailer"
	"mindprint/internal/orchestrator"
	"mindprint/internal/payments"
	"mindprint/internal/polling"
	"mindprint/internal/ratelimiter"
	"mindprint/internal/store"
)

type application struct {
	config        config
	logger        *zap.SugaredLogger
	storage       store.Storage
	backend       *backend.Client
	sessions      *payments.SessionRegistry
	orchestrator  *orchestrator.Orchestrator
	monitor       *polling.Monitor
	mailer        mailer.Client
	authenticator auth.Authenticator
	rateLimiter   *ratelimiter.FixedWindowRateLimiter
}

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	db          dbConfig
	auth        authConfig
	payment     paymentConfig
	polling     pollingConfig
	mail        mailConfig
	rateLimiter ratelimiter.Config
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	exp    time.Duration
	iss    string
}

type basicConfig struct {
	user string
	pass string
}

type paymentConfig struct {
	backendURL        string
	razorpayKeyID     string
	razorpayKeySecret string
	paypalClientID    string
	paypalSecret      string
	paypalAPIBase     string
	checkoutWait      time.Duration
	receiptSalt       string
	supportEmail      string
	analyticsURL      string
	affiliateURL      string
	affiliateKey      string
}

type pollingConfig struct {
	interval    time.Duration
	maxDuration time.Duration
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{app.config.frontendURL},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		r.With(middleware.Timeout(10 * time.Second)).Group(func(r chi.Router) {
			r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
			r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

			docsURL := fmt.Sprintf("%s/swagger/doc.json", app.config.addr)
			r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL(docsURL)))
		})

		r.Route("/payments", func(r chi.Router) {
			// Provider redirects land here without our auth header; the
			// payment session id is the correlation key.
			r.With(middleware.Timeout(30 * time.Second)).Group(func(r chi.Router) {
				r.Get("/razorpay/return", app.razorpayReturnHandler)
				r.Get("/paypal/return", app.paypalReturnHandler)
				r.Get("/paypal/cancel", app.paypalCancelHandler)
			})

			r.Group(func(r chi.Router) {
				r.Use(app.AuthTokenMiddleware)

				r.With(middleware.Timeout(10 * time.Second)).Group(func(r chi.Router) {
					r.Get("/pricing", app.pricingHandler)
					r.Get("/status", app.statusHandler)
					r.Post("/context", app.storeContextHandler)
					r.Get("/context", app.getContextHandler)
					r.Delete("/context", app.clearContextHandler)
				})

				// The checkout request stays open until the provider UI
				// settles, so it gets its own long timeout.
				r.With(
					middleware.Timeout(app.config.payment.checkoutWait+30*time.Second),
					app.RateLimiterMiddleware,
				).Post("/checkout", app.checkoutHandler)

				r.Get("/status/stream", app.statusStreamHandler)
			})
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	docs.SwaggerInfo.Version = version
	docs.SwaggerInfo.Host = app.config.apiURL
	docs.SwaggerInfo.BasePath = "/v1"

	srv := &http.Server{
		Addr:    app.config.addr,
		Handler: mux,
		// Write timeout must cover the long-poll checkout route.
		WriteTimeout: app.config.payment.checkoutWait + time.Minute,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
