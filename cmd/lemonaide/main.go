// Command lemonaide runs the marketplace chat-widget runtime: the HTTP and
// WebSocket surface the embedded widget and its host page talk to.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lemonshq/lemonaide/pkg/bubble"
	"github.com/lemonshq/lemonaide/pkg/bus"
	"github.com/lemonshq/lemonaide/pkg/config"
	"github.com/lemonshq/lemonaide/pkg/logging"
	"github.com/lemonshq/lemonaide/pkg/search"
	"github.com/lemonshq/lemonaide/pkg/server"
	"github.com/lemonshq/lemonaide/pkg/storage"
	"github.com/lemonshq/lemonaide/pkg/widget"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "explicit config file path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("lemonaide", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "lemonaide:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromPath(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, "runtime")
	if err != nil {
		logger = logging.Discard()
	}
	logger.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))

	db, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	store := bubble.NewClient(cfg.Store.BaseURL, cfg.Store.Token,
		bubble.WithLogger(logger),
		bubble.WithRateLimit(cfg.Store.RequestsPerSec),
	)
	resolver := bubble.NewResolver(store, db, cfg.Slugs.Overrides, cfg.Slugs.Candidates, logger)
	searcher := search.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey, logger)

	var mb bus.MessageBus
	if cfg.Bridge.NATSURL != "" {
		natsBus, err := bus.NewNATSBus(bus.Config{
			URL:  cfg.Bridge.NATSURL,
			Name: cfg.Bridge.Name,
		})
		if err != nil {
			return fmt.Errorf("connecting bridge bus: %w", err)
		}
		mb = natsBus
	} else {
		mb = bus.NewMemoryBus()
	}
	defer mb.Close()

	manager := widget.NewManager(func(id string) (*widget.Widget, error) {
		widgetLogger, err := logging.NewLogger(cfg.Logging.Dir, id)
		if err != nil {
			widgetLogger = logger
		} else {
			widgetLogger.SetMinLevel(logging.ParseLevel(cfg.Logging.Level))
		}
		return widget.New(widget.Options{
			WidgetID:         id,
			Store:            store,
			Slugs:            resolver,
			Search:           searcher,
			Bus:              mb,
			Storage:          db,
			Logger:           widgetLogger,
			UseToon:          true,
			OperationTimeout: cfg.Store.RequestTimeout,
		})
	})
	defer manager.Close()

	srv := server.New(cfg.Server.Bind, manager, mb, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info(logging.CategoryServer, "started", "", map[string]any{
		"version": version,
		"bind":    cfg.Server.Bind,
	})
	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
