package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/johbar/mrz-reader-service/internal/cache"
	mrznats "github.com/johbar/mrz-reader-service/internal/cache/nats"
	"github.com/johbar/mrz-reader-service/internal/config"
	"github.com/johbar/mrz-reader-service/internal/readerpool"
	"github.com/johbar/mrz-reader-service/internal/server"
	"github.com/johbar/mrz-reader-service/pkg/tesswrap"
	"github.com/nats-io/nats.go"
)

var logger *slog.Logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{}))

func main() {
	conf, err := config.NewMrzConfigFromEnv()
	if err != nil {
		logger.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args
	// one shot mode: don't start a server, just process the files provided on the command line
	if len(args) > 1 {
		if err := runOnce(ctx, conf, args[1:]); err != nil {
			logger.Error("Processing failed", "err", err)
			os.Exit(1)
		}
		return
	}

	logger = conf.NewLogger()
	if os.Getenv("GOMEMLIMIT") != "" {
		logger.Info("GOMEMLIMIT", "Bytes", debug.SetMemoryLimit(-1), "MBytes", debug.SetMemoryLimit(-1)/1024/1024)
	}
	buildinfo, _ := debug.ReadBuildInfo()
	logger.Debug("Info", "buildinfo", buildinfo)
	if !tesswrap.Initialized {
		logger.Error("Fatal: Tesseract is not available in this build or environment")
		os.Exit(1)
	}

	pool, err := readerpool.New(ctx, conf.PoolSize, conf.ReaderOptions(logger))
	if err != nil {
		logger.Error("Fatal: Could not start Tesseract", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("Tesseract started", "version", tesswrap.Version, "readers", conf.PoolSize, "languages", conf.TesseractLangs)

	nc, err := mrznats.Connect(*conf, logger)
	if err != nil {
		logger.Error("NATS not available", "err", err)
		if conf.FailWithoutJetstream {
			os.Exit(1)
		}
	}
	if nc != nil {
		defer nc.Drain()
	}

	svc := server.New(conf, pool, initCache(conf, nc), logger)
	if nc != nil {
		if _, err := svc.RegisterNatsService(nc); err != nil {
			logger.Error("Registering NATS micro service failed", "err", err)
		} else {
			logger.Info("NATS micro service registered")
		}
	}

	if conf.NoHttp {
		if nc == nil {
			logger.Error("Fatal: NATS not connected and HTTP disabled.")
			os.Exit(1)
		}
		logger.Info("Service started with no HTTP endpoints. Waiting for interrupt.")
		<-ctx.Done()
		return
	}
	serveHttp(ctx, conf, svc)
}

func runOnce(ctx context.Context, conf *config.MrzConfig, files []string) error {
	if !tesswrap.Initialized {
		return errors.New("Tesseract is not available")
	}
	// one reader is enough for files processed one after another
	pool, err := readerpool.New(ctx, 1, conf.ReaderOptions(logger))
	if err != nil {
		return err
	}
	defer pool.Close()
	return server.New(conf, pool, nil, logger).PrintResult(ctx, os.Stdout, files)
}

func initCache(conf *config.MrzConfig, nc *nats.Conn) cache.Cache {
	if conf.NoCache || nc == nil {
		logger.Info("Recognition results are not cached")
		return &cache.NopCache{}
	}
	c, err := cache.New(*conf, logger, nc)
	if err != nil {
		logger.Error("Object store not available", "bucket", conf.Bucket, "err", err)
		if conf.FailWithoutJetstream {
			os.Exit(1)
		}
		return &cache.NopCache{}
	}
	return c
}

func serveHttp(ctx context.Context, conf *config.MrzConfig, svc *server.Service) {
	srv := &http.Server{Addr: conf.SrvAddr, Handler: svc.Router()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.OcrTimeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "err", err)
		}
	}()
	logger.Info("Service started", "address", srv.Addr)
	defer logger.Info("HTTP Server stopped.")
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		// Error starting or closing listener:
		logger.Error("Webserver failed", "err", err)
	}
}
