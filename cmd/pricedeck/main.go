package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"pricedeck/internal/application/port"
	"pricedeck/internal/application/route"
	"pricedeck/internal/application/store"
	"pricedeck/internal/application/usecase/ticker"
	"pricedeck/internal/domain"
	"pricedeck/internal/infrastructure/config"
	"pricedeck/internal/infrastructure/feed"
	"pricedeck/internal/infrastructure/fx"
	"pricedeck/internal/infrastructure/logger"
	"pricedeck/internal/infrastructure/storage/composite"
	"pricedeck/internal/infrastructure/storage/postgres"
	redisrepo "pricedeck/internal/infrastructure/storage/redis"
	"pricedeck/internal/infrastructure/storage/sqlite"
	"pricedeck/internal/interfaces/console"

	// Feed adapters self-register from init().
	_ "pricedeck/internal/infrastructure/feed/alltick"
	_ "pricedeck/internal/infrastructure/feed/binance"
	_ "pricedeck/internal/infrastructure/feed/bybit"
	_ "pricedeck/internal/infrastructure/feed/coinbase"
	_ "pricedeck/internal/infrastructure/feed/okx"
	_ "pricedeck/internal/infrastructure/feed/pyth"
	_ "pricedeck/internal/infrastructure/feed/pythlazer"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "", "path to config.toml (optional)")
	symbolFlag := flag.String("symbol", "", "instrument to stream, e.g. BTCUSDT")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
		}
	} else {
		cfg = config.Default()
	}

	symbol, err := domain.ParseSymbol(cfg.App.DefaultSymbol)
	if err != nil {
		log.Fatal().Err(err).Msg("bad default symbol")
	}
	if *symbolFlag != "" {
		symbol, err = domain.ParseSymbol(*symbolFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("bad -symbol flag")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := buildRepo(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("storage init failed")
	}

	converter := fx.New(cfg.UnitRate.URL, cfg.UnitRateRefresh())
	agg := store.New(cfg.App.Retention)
	router := route.New(feed.Catalog(cfg.Enabled))
	launcher := feed.NewLauncher(feed.Config{
		URLOverrides:   cfg.URLOverrides(),
		Tokens:         cfg.Tokens(),
		Rate:           converter,
		CoalesceWindow: cfg.CoalesceWindow(),
		ReconnectMin:   cfg.ReconnectMin(),
		ReconnectMax:   cfg.ReconnectMax(),
	})

	svc, err := ticker.NewService(ticker.ServiceDeps{
		Store:    agg,
		Router:   router,
		Launcher: launcher,
		Repo:     repo,
		Creds:    route.Credentials(cfg.Tokens()),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("service init failed")
	}
	defer svc.Close()

	board := console.NewBoard(os.Stdout)
	cancelUpdates := svc.Subscribe(board.OnUpdate)
	defer cancelUpdates()
	cancelStatus := svc.SubscribeStatus(board.OnStatus)
	defer cancelStatus()

	if err := svc.Select(ctx, symbol); err != nil {
		log.Fatal().Err(err).Str("symbol", string(symbol)).Msg("select failed")
	}

	log.Info().
		Str("symbol", string(symbol)).
		Int("sources", len(svc.Active())).
		Str("storage", cfg.Storage.Driver).
		Msg("pricedeck started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return converter.Run(gctx) })
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Error().Err(err).Msg("background worker exited")
	}
}

func buildRepo(cfg *config.Config) (port.Repository, error) {
	open := func(driver string) (port.Repository, error) {
		switch driver {
		case "sqlite":
			return sqlite.New(cfg.Storage.SQLitePath)
		case "postgres":
			return postgres.New(cfg.Storage.PostgresDSN)
		case "redis":
			rdb := redis.NewClient(&redis.Options{Addr: cfg.Storage.RedisAddr})
			ttl := time.Duration(cfg.Storage.RedisTTLSec) * time.Second
			return redisrepo.New(rdb, cfg.Storage.RedisPrefix, ttl), nil
		default:
			return nil, nil
		}
	}

	switch cfg.Storage.Driver {
	case "none":
		return ticker.NewNoopRepo(), nil
	case "composite":
		var repos []port.Repository
		for _, driver := range []string{"sqlite", "postgres", "redis"} {
			switch driver {
			case "sqlite":
				if cfg.Storage.SQLitePath == "" {
					continue
				}
			case "postgres":
				if cfg.Storage.PostgresDSN == "" {
					continue
				}
			case "redis":
				if cfg.Storage.RedisAddr == "" {
					continue
				}
			}
			r, err := open(driver)
			if err != nil {
				return nil, err
			}
			repos = append(repos, r)
		}
		return composite.New(repos...), nil
	default:
		return open(cfg.Storage.Driver)
	}
}
