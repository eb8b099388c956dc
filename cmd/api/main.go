package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/popup-offer/internal/common"
	"github.com/noah-isme/popup-offer/internal/config"
	"github.com/noah-isme/popup-offer/internal/health"
	"github.com/noah-isme/popup-offer/internal/obs"
	"github.com/noah-isme/popup-offer/internal/payment"
	"github.com/noah-isme/popup-offer/internal/popup"
	"github.com/noah-isme/popup-offer/internal/ratelimit"
	"github.com/noah-isme/popup-offer/internal/resilience"
	"github.com/noah-isme/popup-offer/internal/security"
	"github.com/noah-isme/popup-offer/internal/site"
)

func main() {
	bootLogger := obs.NewLogger("json", "info")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loadCtx, cancelLoad := context.WithTimeout(ctx, 10*time.Second)
	cfg, err := config.LoadWith(loadCtx, config.FetchSecret, bootLogger)
	cancelLoad()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsEnabled := cfg.Obs.MetricsEnabled
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Error().Err(err).Msg("register breaker metrics")
	}

	tracingEnabled := cfg.Obs.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:    cfg.Obs.ServiceName,
			ServiceVersion: cfg.Obs.ServiceVersion,
			Endpoint:       cfg.Obs.OTLPEndpoint,
			Exporter:       cfg.Obs.TracingExporter,
			SamplingRatio:  cfg.Obs.SamplingRatio,
			Environment:    cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	redisClient := connectRedis(ctx, cfg, metricsEnabled, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	gateway := payment.NewGateway(payment.GatewayOptions{
		Provider: newProvider(cfg, logger),
		Mock:     cfg.Stripe.Mock,
		Logger:   logger,
	})
	logger.Info().Str("mode", gateway.Mode()).Msg("payment gateway ready")

	content := popup.Content{
		Title:           cfg.Offer.Title,
		Description:     cfg.Offer.Description,
		PriceDisplay:    cfg.Offer.Price,
		DiscountDisplay: cfg.Offer.Discount,
		ImageURL:        cfg.Offer.ImageURL,
		AmountCents:     cfg.Offer.AmountCents,
	}
	if err := content.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid offer content")
	}

	var limiter ratelimit.Allower = ratelimit.NewMemoryLimiter("popup")
	probes := map[string]health.Probe{}
	if redisClient != nil {
		limiter = ratelimit.RedisLimiter{Client: redisClient, Prefix: "popup:ratelimit:"}
		probes["redis"] = health.RedisProbe(redisClient)
	}

	deps := routerDeps{
		Logger:  logger,
		Tracing: tracingEnabled,
		Headers: security.Headers{
			Enable:                cfg.SecurityHeaders,
			EnableHSTS:            cfg.AppEnv == "production",
			HSTSIncludeSubdomains: true,
			ContentSecurityPolicy: security.StripeCSP,
		},
		CORSOrigins: cfg.CORSAllowedOrigins,
		BodyLimit:   cfg.BodyLimitBytes,
		Site: &site.Handler{
			Config: popup.Config{
				CookieName:         cfg.Popup.CookieName,
				CookieDurationDays: cfg.Popup.CookieDays,
				Delay:              cfg.Popup.Delay,
				CookiesEnabled:     cfg.Popup.CookiesEnabled,
			},
			Content: content,
			Cookies: popup.CookieOptions{
				Domain:   cfg.CookieDomain,
				Secure:   cfg.CookieSecure,
				SameSite: cfg.CookieSameSite,
			},
			PublishableKey: cfg.Stripe.PublishableKey,
			Mock:           gateway.Mode() == "mock",
			Logger:         logger,
		},
		Payment: &payment.Handler{Gateway: gateway, PublishableKey: cfg.Stripe.PublishableKey},
		Health:  health.Handler{Probes: probes},
		RateLimit: ratelimit.Handler{
			Limiter: limiter,
			Key:     ratelimit.ClientIP,
			Rule:    ratelimit.Rule{Window: cfg.RateLimit.Window, Max: cfg.RateLimit.Max},
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		},
		Idem:         common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL, Prefix: "popup:idem:"},
		PprofEnabled: cfg.Obs.PprofEnabled,
		PprofUser:    cfg.Obs.PprofUser,
		PprofPass:    cfg.Obs.PprofPass,
	}
	if metricsEnabled {
		deps.HTTPMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
		deps.MetricsHandler = promhttp.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func connectRedis(ctx context.Context, cfg *config.Config, metricsEnabled bool, logger zerolog.Logger) *redis.Client {
	if cfg.RedisURL == "" {
		logger.Info().Msg("REDIS_URL not set; using in-process rate limiting without idempotency locks")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func newProvider(cfg *config.Config, logger zerolog.Logger) payment.Provider {
	if cfg.Stripe.SecretKey == "" {
		return nil
	}
	breaker := resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("stripe").WithLogger(logger)
	provider, err := payment.NewStripe(payment.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		BaseURL:   cfg.Stripe.APIBaseURL,
		Timeout:   cfg.Stripe.Timeout,
		Breaker:   breaker,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stripe")
	}
	return provider
}
