package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"code_auth/internal/auth"
	"code_auth/internal/config"
	forgotpassword "code_auth/internal/http_server/handlers/forgot_password"
	"code_auth/internal/http_server/handlers/login"
	"code_auth/internal/http_server/handlers/logout"
	"code_auth/internal/http_server/handlers/refresh"
	resetpassword "code_auth/internal/http_server/handlers/reset_password"
	sendcode "code_auth/internal/http_server/handlers/send_code"
	sendverificationemail "code_auth/internal/http_server/handlers/send_verification_email"
	verifycode "code_auth/internal/http_server/handlers/verify_code"
	verifyemail "code_auth/internal/http_server/handlers/verify_email"
	"code_auth/internal/http_server/middleware/authn"
	"code_auth/internal/lib/identity"
	"code_auth/internal/lib/jwt"
	"code_auth/internal/lib/logger/sl"
	"code_auth/internal/lib/verification"
	rateLimit "code_auth/internal/middleware/ratelimit"
	"code_auth/internal/rabbitmq"
	"code_auth/internal/storage/memory"
	"code_auth/internal/storage/mongo"
	"code_auth/internal/storage/postgres"
	"code_auth/internal/storage/redis"
	"code_auth/internal/tokens"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type store interface {
	auth.UserSaver
	auth.UserProvider
	tokens.Store
}

// expiredCleaner is implemented by stores without native token expiry.
type expiredCleaner interface {
	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info("starting auth service",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to open storage", sl.Err(err))
		os.Exit(1)
	}
	defer closeStore()

	guard, err := redis.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Error("failed to connect redis", sl.Err(err))
		os.Exit(1)
	}
	defer guard.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.EmailQueue, cfg.RabbitMQ.SMSQueue)
	if err != nil {
		log.Error("failed to connect rabbitmq", sl.Err(err))
		os.Exit(1)
	}
	defer msgBroker.Close()

	codes, err := verification.NewGenerator(cfg.Verification.CodeGenerator, cfg.Verification.CodeLength)
	if err != nil {
		log.Error("failed to init code generator", sl.Err(err))
		os.Exit(1)
	}

	if cfg.Verification.CodeGenerator == verification.GeneratorRounded {
		log.Warn("rounded verification codes are enabled, they have very few possible values")
	}

	validate := validator.New()
	if err := identity.RegisterMobile(validate); err != nil {
		log.Error("failed to register validators", sl.Err(err))
		os.Exit(1)
	}

	signer := jwt.New(cfg.Tokens.Secret, cfg.Tokens.Issuer, time.Now)
	tokenService := tokens.New(log, signer, st, guard, cfg.Verification.MaxAttempts, time.Now)

	authService := auth.New(
		log,
		st,
		st,
		tokenService,
		msgBroker,
		identity.NewClassifier(validate),
		codes,
		auth.TTLs{
			Access:        cfg.Tokens.AccessTTL,
			Refresh:       cfg.Tokens.RefreshTTL,
			ResetPassword: cfg.Tokens.ResetPasswordTTL,
			VerifyEmail:   cfg.Tokens.VerifyEmailTTL,
			Temporary:     cfg.Tokens.TemporaryTTL,
		},
		auth.Links{
			ResetPassword: cfg.HTTPServer.ResetPasswordURL,
			VerifyEmail:   strings.TrimSuffix(cfg.HTTPServer.PublicURL, "/") + "/auth/verify-email",
		},
	)

	if cleaner, ok := st.(expiredCleaner); ok {
		go runCleanup(ctx, log, cleaner, cfg.Storage.CleanupEvery)
	}

	router := setupRouter(log, validate, authService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", sl.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", sl.Err(err))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.DriverMemory:
		return memory.New(), func() {}, nil
	default:
		m, err := mongo.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil
	}
}

// * runCleanup периодически удаляет истекшие токены
func runCleanup(ctx context.Context, log *slog.Logger, cleaner expiredCleaner, every time.Duration) {
	log = log.With(slog.String("op", "main.runCleanup"))

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cleaner.DeleteExpiredTokens(ctx)
			if err != nil {
				log.Error("failed to delete expired tokens", sl.Err(err))
				continue
			}

			if n > 0 {
				log.Info("expired tokens deleted", slog.Int64("count", n))
			}
		}
	}
}

func setupRouter(log *slog.Logger, validate *validator.Validate, authService *auth.Auth) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.SendCode()).Post("/send-verification-code",
			sendcode.New(log, validate, authService),
		)
		r.With(rateLimit.VerifyCode()).Post("/verify-code",
			verifycode.New(log, validate, authService),
		)
		r.With(rateLimit.Login()).Post("/login",
			login.New(log, validate, authService),
		)
		r.With(rateLimit.Logout()).Post("/logout",
			logout.New(log, validate, authService),
		)
		r.With(rateLimit.Refresh()).Post("/refresh-tokens",
			refresh.New(log, validate, authService),
		)
		r.With(rateLimit.ForgotPassword()).Post("/forgot-password",
			forgotpassword.New(log, validate, authService),
		)
		r.With(rateLimit.ResetPassword()).Post("/reset-password",
			resetpassword.New(log, validate, authService),
		)
		r.With(rateLimit.SendVerificationEmail(), authn.New(log, authService)).Post("/send-verification-email",
			sendverificationemail.New(log, authService),
		)
		// GET serves the link from the email as is
		r.With(rateLimit.VerifyEmail()).Get("/verify-email",
			verifyemail.New(log, authService),
		)
		r.With(rateLimit.VerifyEmail()).Post("/verify-email",
			verifyemail.New(log, authService),
		)
	})

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
