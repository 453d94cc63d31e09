package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/storefront/identity-api/internal/api"
	"github.com/storefront/identity-api/internal/core/domain"
	"github.com/storefront/identity-api/internal/infrastructure/config"
	mongodb "github.com/storefront/identity-api/internal/infrastructure/db/mongo"
	redisdb "github.com/storefront/identity-api/internal/infrastructure/db/redis"
	"github.com/storefront/identity-api/internal/infrastructure/email"
	"github.com/storefront/identity-api/internal/infrastructure/queue"
	"github.com/storefront/identity-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.Load()

	log := logger.Init(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.Env == "development",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, db, err := mongodb.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("mongodb connection failed")
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("mongodb disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, cfg.Redis.Addr, cfg.Redis.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection failed")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("redis close failed")
		}
	}()

	store := mongodb.NewCredentialStore(db, redisdb.NewTokenStore(rdb))
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensuring identity indexes failed")
	}
	if err := store.EnsureRoles(ctx, domain.DefaultRoles...); err != nil {
		log.Fatal().Err(err).Msg("provisioning default roles failed")
	}

	sender := email.NewSMTPNotifier(email.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	})
	mailer := queue.NewMailer(cfg.Mail.Workers, sender, log)
	mailer.Start(ctx)

	e, err := api.NewRouter(db, rdb, store, mailer, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("router construction failed")
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("identity api listening")
		if err := e.Start(":" + cfg.Port); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	mailer.Stop()
}
