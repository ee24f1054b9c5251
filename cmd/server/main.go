package main

import (
	"flag"
	"os"

	"skillup/internal/auth"
	"skillup/internal/config"
	"skillup/internal/handler"
	"skillup/internal/logger"
	"skillup/internal/repo"
	"skillup/internal/service"

	"github.com/joho/godotenv"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	flag.Parse()

	// .env is optional; real env vars win over it
	_ = godotenv.Load()

	cfg := config.Load(*configFile)
	logger.Init("skillup-server", cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("config.invalid", "err", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Error("auth.secret.missing")
		os.Exit(1)
	}

	db, err := cfg.OpenGormDB()
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	stores := repo.New(db)
	rules := cfg.Rules()
	oracle := service.NewOracleClient(cfg.Oracle.BaseURL, cfg.Oracle.Token, cfg.OracleTimeout(), cfg.Oracle.MaxRetries)

	boardSvc := service.NewScoreboardService(stores, rules)
	medalSvc := service.NewMedalService(stores)
	completionSvc := service.NewCompletionService(stores, medalSvc, boardSvc)
	planSvc := service.NewPlanService(stores, oracle, rules, completionSvc)

	r := handler.NewRouter(auth.NewJWTGate(cfg.Auth.JWTSecret), handler.Handlers{
		Plans: handler.NewPlanHandler(planSvc),
		Tasks: handler.NewTaskHandler(completionSvc, planSvc),
		Board: handler.NewBoardHandler(boardSvc, medalSvc),
	}, cfg.Server.CORSOrigins)

	logger.Info("server starting", "addr", cfg.Addr(), "oracle", cfg.Oracle.BaseURL)
	if err := r.Run(cfg.Addr()); err != nil {
		logger.Error("server failed", "err", err)
	}
}
