package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/meetwindow/meetwindow/libs/config"
	"github.com/meetwindow/meetwindow/libs/db"
	"github.com/meetwindow/meetwindow/libs/httpx"
	"github.com/meetwindow/meetwindow/libs/kafkax"
	otelx "github.com/meetwindow/meetwindow/libs/otel"
	"github.com/meetwindow/meetwindow/libs/runtime"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/email"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/googlecal"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/handlers"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/outbox"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/schedule"
	"github.com/meetwindow/meetwindow/services/scheduling-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduling-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	settings, err := schedule.FromEnv()
	if err != nil {
		logger.Error("schedule config invalid", "err", err)
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	bookingsRepo := storage.NewBookingsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	calendar := googlecal.New(googlecal.Config{
		ClientID:     config.String("GOOGLE_OAUTH_CLIENT_ID", ""),
		ClientSecret: config.String("GOOGLE_OAUTH_SECRET", ""),
		RefreshToken: config.String("GOOGLE_OAUTH_REFRESH", ""),
		CalendarIDs:  splitList(config.String("CALENDARS_TO_CHECK", "primary")),
	})

	var mailSender email.Sender
	if host := config.String("SMTP_HOST", ""); host != "" {
		mailSender = email.NewSMTPSender(host, config.String("SMTP_PORT", "25"), config.String("SMTP_FROM", ""))
	} else {
		logger.Warn("SMTP_HOST not set; outgoing mail disabled")
		mailSender = email.NewNoopSender()
	}

	secret, err := config.RequiredString("APPROVAL_LINK_SECRET")
	if err != nil {
		panic(err)
	}
	baseURL := strings.TrimRight(config.String("PUBLIC_BASE_URL", "http://localhost:"+port), "/")
	links := handlers.Links{
		Secret:    secret,
		BaseURL:   baseURL,
		BookedURL: config.String("BOOKED_PAGE_URL", baseURL+"/booked"),
	}
	owner := handlers.Owner{
		Name:  config.String("OWNER_NAME", "me"),
		Email: config.String("OWNER_EMAIL", ""),
		Phone: config.String("OWNER_PHONE", ""),
	}
	if owner.Email == "" {
		logger.Warn("OWNER_EMAIL not set; approval mail has no recipient")
	}

	availabilityHandler := handlers.NewAvailabilityHandler(calendar, bookingsRepo, settings, logger, nil)
	bookingHandler := handlers.NewBookingHandler(bookingsRepo, outboxRepo, calendar, mailSender, settings, owner, links, logger, nil)

	// The public request endpoint is the abuse target; everything else is
	// read-only or signature-gated.
	requestLimit, err := config.Int("REQUEST_RATE_LIMIT_PER_MINUTE", 5)
	if err != nil {
		panic(err)
	}
	var limit httpx.Middleware
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limit = httpx.NewRedisRateLimiter(rdb, requestLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limit = httpx.NewRateLimiter(requestLimit, time.Minute).Middleware()
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	)
	mux.HandleFunc("/api/v1/availability", availabilityHandler.Get)
	mux.Handle("/api/v1/request", httpx.Chain(http.HandlerFunc(bookingHandler.Request), limit))
	mux.HandleFunc("/api/v1/confirm", bookingHandler.Confirm)

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ALLOWED_ORIGINS", "")),
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}),
		httpx.WithBodyLimit(64<<10),
		httpx.WithTimeout(30*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
