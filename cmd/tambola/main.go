// Package main runs the tambola lobby server: WebSocket acceptor, room
// registry, discovery broadcaster, and draw schedulers in one process.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tambola/internal/config"
	"github.com/cory-johannsen/tambola/internal/frontend/websocket"
	"github.com/cory-johannsen/tambola/internal/game/discovery"
	"github.com/cory-johannsen/tambola/internal/game/grace"
	"github.com/cory-johannsen/tambola/internal/game/lobby"
	"github.com/cory-johannsen/tambola/internal/game/room"
	"github.com/cory-johannsen/tambola/internal/game/rules"
	"github.com/cory-johannsen/tambola/internal/observability"
	"github.com/cory-johannsen/tambola/internal/random"
	"github.com/cory-johannsen/tambola/internal/server"
	"github.com/cory-johannsen/tambola/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	rulesPath := flag.String("rules", "", "path to ticket rules YAML file (overrides lobby.rules_file)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if *rulesPath == "" {
		*rulesPath = cfg.Lobby.RulesFile
	}
	gameRules, err := rules.LoadOrDefault(*rulesPath)
	if err != nil {
		logger.Fatal("loading rules", zap.Error(err))
	}
	logger.Info("rules loaded",
		zap.String("path", *rulesPath),
		zap.Int("min_value", gameRules.MinValue),
		zap.Int("max_value", gameRules.MaxValue),
		zap.Int("rows", gameRules.Rows),
		zap.Int("columns", gameRules.Columns),
	)

	src := random.NewCryptoSource()
	conns := transport.NewTable()
	svc := lobby.NewService(
		room.NewRegistry(src, cfg.Lobby.MaxPlayers),
		conns,
		discovery.New(conns, logger.Named("discovery")),
		grace.NewRegistry(),
		gameRules,
		src,
		lobby.Options{
			GracePeriod:  cfg.Lobby.GracePeriod,
			DrawInterval: cfg.Lobby.DrawInterval,
		},
		logger.Named("lobby"),
	)
	acceptor := websocket.NewAcceptor(cfg.Server, svc, logger.Named("websocket"))

	lifecycle := server.NewLifecycle(logger)

	lifecycle.Add("lobby", &server.FuncService{
		StartFn: func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		},
		StopFn: svc.Shutdown,
	})

	lifecycle.Add("websocket", &server.FuncService{
		StartFn: func(context.Context) error {
			return acceptor.ListenAndServe()
		},
		StopFn: acceptor.Stop,
	})

	logger.Info("server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("path", cfg.Server.Path),
		zap.Int("max_players", cfg.Lobby.MaxPlayers),
		zap.Duration("grace_period", cfg.Lobby.GracePeriod),
		zap.Duration("draw_interval", cfg.Lobby.DrawInterval),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
