// Package main runs the Dungeon Master table server.
// It wires configuration, the session snapshot, the campaign journal, the
// narration and image gateways, and the TCP acceptor.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonmaster/internal/campaign"
	"github.com/cory-johannsen/dungeonmaster/internal/config"
	"github.com/cory-johannsen/dungeonmaster/internal/game/dice"
	"github.com/cory-johannsen/dungeonmaster/internal/game/session"
	"github.com/cory-johannsen/dungeonmaster/internal/gameserver"
	"github.com/cory-johannsen/dungeonmaster/internal/gateway"
	"github.com/cory-johannsen/dungeonmaster/internal/observability"
	"github.com/cory-johannsen/dungeonmaster/internal/scripting"
	"github.com/cory-johannsen/dungeonmaster/internal/server"
	"github.com/cory-johannsen/dungeonmaster/internal/storage/snapshot"
	"github.com/cory-johannsen/dungeonmaster/internal/transport"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "dmserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	camp := campaign.Default()
	if cfg.Campaign.ContentFile != "" {
		camp, err = campaign.Load(cfg.Campaign.ContentFile)
		if err != nil {
			logger.Fatal("loading campaign", zap.Error(err))
		}
	}
	logger.Info("campaign loaded", zap.String("campaign", camp.ID), zap.String("title", camp.Title))

	// A corrupt snapshot stops the server rather than silently starting over.
	store := snapshot.NewStore(afero.NewOsFs(), cfg.Session.SnapshotPath, cfg.Session.MapPath, logger.Named("snapshot"))
	st, err := store.LoadOrNew()
	if err != nil {
		logger.Fatal("restoring session", zap.String("path", cfg.Session.SnapshotPath), zap.Error(err))
	}
	logger.Info("session restored",
		zap.Int("players", len(st.Players)),
		zap.Int("log_entries", len(st.Log)),
		zap.Bool("started", st.Started),
	)
	sessions := session.NewManager(st)

	ctx := context.Background()
	jrnl, err := openJournal(ctx, cfg.Journal, logger)
	if err != nil {
		logger.Fatal("opening journal", zap.String("driver", cfg.Journal.Driver), zap.Error(err))
	}

	narrator, err := gateway.NewNarrator(cfg.Narration, camp.StaticResponses)
	if err != nil {
		logger.Fatal("building narrator", zap.Error(err))
	}
	imager, err := gateway.NewImager(cfg.Images)
	if err != nil {
		logger.Fatal("building imager", zap.Error(err))
	}
	guard := gateway.NewGuard(narrator, imager, gateway.GuardConfig{
		Fallback:         cfg.Narration.Fallback,
		NarrationTimeout: cfg.Narration.Timeout,
		ImageTimeout:     cfg.Images.Timeout,
	}, logger.Named("gateway"))
	logger.Info("gateways ready",
		zap.String("narration", cfg.Narration.Provider),
		zap.String("images", cfg.Images.Provider),
	)

	roller := dice.NewLoggedRoller(dice.NewCryptoSource(), logger.Named("dice"))
	lc := server.NewLifecycle(logger)

	deps := gameserver.Deps{
		Sessions: sessions,
		Store:    store,
		Story:    guard,
		Journal:  jrnl,
		Campaign: camp,
		Roller:   roller,
		Logger:   logger.Named("gameserver"),
	}
	if cfg.Scripting.LootScript != "" {
		scripts := scripting.NewManager(roller, logger.Named("scripting"))
		if err := scripts.Load(cfg.Scripting.LootScript, cfg.Scripting.InstructionLimit); err != nil {
			logger.Fatal("loading loot script", zap.String("path", cfg.Scripting.LootScript), zap.Error(err))
		}
		deps.Scripts = scripts
		lc.OnShutdown("scripting", func() error {
			scripts.Close()
			return nil
		})
	}

	srv := gameserver.NewServer(gameserver.Config{
		MaxFrameBytes: cfg.Server.MaxFrameBytes,
		MapEveryTurn:  cfg.Images.MapEveryTurn,
	}, deps)
	acceptor := transport.NewAcceptor(cfg.Server, srv, logger.Named("transport"))

	lc.Add("acceptor", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})
	lc.OnShutdown("journal", jrnl.Close)
	lc.OnShutdown("snapshot", func() error {
		return sessions.Do(store.Save)
	})

	logger.Info("dmserver ready",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := lc.Run(ctx); err != nil {
		logger.Fatal("dmserver stopped", zap.Error(err))
	}
}
