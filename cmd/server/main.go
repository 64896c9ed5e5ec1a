package main

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/config"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/db"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/handler"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/middleware"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/repository"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/router"
	"github.com/sosialistaflokkurinn/ekklesia-elections/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	middleware.InitLogger(cfg.LogLevel, "elections-api")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer pool.Close()

	handler.InitMetrics(pool)

	cache := service.NewCacheService(cfg.RedisURL)
	defer cache.Close()

	electionRepo := repository.NewElectionRepo(pool)
	ballotRepo := repository.NewBallotRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)
	roleRepo := repository.NewRoleRepo(pool)

	lifecycleSvc := service.NewLifecycleService(electionRepo, ballotRepo, cache, cfg.VotingWindow)
	ballotSvc := service.NewBallotService(electionRepo, ballotRepo)
	tallySvc := service.NewTallyService(electionRepo, ballotRepo, cache)
	authzSvc := service.NewAuthzService(roleRepo, auditRepo)

	auditWorker := service.NewAuditWorker(auditRepo, cfg.AuditPurgeInterval, cfg.AuditRetention)
	go auditWorker.Start(ctx)
	defer auditWorker.Stop()

	app := fiber.New(fiber.Config{
		AppName:      "Ekklesia Elections API",
		ServerHeader: "ekklesia",
	})

	verifier := middleware.NewClaimsVerifier(cfg.ClaimsSecret)
	router.Setup(app, &router.Handlers{
		Election: handler.NewElectionHandler(lifecycleSvc, electionRepo),
		Vote:     handler.NewVoteHandler(ballotSvc),
		Results:  handler.NewResultsHandler(tallySvc, auditRepo),
		Health:   handler.NewHealthHandler(pool, cache.Client()),
	}, verifier, authzSvc, cfg.CORSOrigins)

	log.Info().
		Str("port", cfg.Port).
		Str("env", cfg.Environment).
		Msg("elections backend starting")
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
