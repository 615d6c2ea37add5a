package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"code_auth/internal/config"
	"code_auth/internal/lib/logger/sl"
	"code_auth/internal/mailsender"
	"code_auth/internal/rabbitmq"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	log.Info("Starting mail_sender", slog.String("env", cfg.Env))

	startConsumers(ctx, cfg, log)
}

func startConsumers(ctx context.Context, cfg *config.Config, log *slog.Logger) {
	r, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.EmailQueue, cfg.RabbitMQ.SMSQueue)
	if err != nil {
		log.Error("failed to init rabbitmq", sl.Err(err))
		return
	}
	defer r.Close()

	mailer := &mailsender.Mailer{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	}

	consumers := map[string]rabbitmq.Handler{
		cfg.RabbitMQ.EmailQueue: mailsender.NewHandler(log.With(slog.String("channel", "email")), mailer),
		cfg.RabbitMQ.SMSQueue:   mailsender.NewHandler(log.With(slog.String("channel", "sms")), &mailsender.SMSLogger{Log: log}),
	}

	var wg sync.WaitGroup

	for queue, handler := range consumers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := r.StartReading(ctx, queue, handler); err != nil {
				log.Error("consumer stopped", slog.String("queue", queue), sl.Err(err))
			}
		}()
	}

	log.Info("consumers successfully started")

	wg.Wait()

	log.Info("service gracefully stopped")
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
