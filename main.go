package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/jawher/mow.cli"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/bilbercode/framecast/internal/catalog"
	"github.com/bilbercode/framecast/internal/config"
	"github.com/bilbercode/framecast/internal/rtsp"
	"github.com/bilbercode/framecast/internal/stream"
)

const (
	appName = "framecast"
	appDesc = "frame by frame streaming server and player"
)

func main() {

	app := cli.App(appName, appDesc)

	configFile := app.String(cli.StringOpt{
		Name:   "c config",
		Desc:   "YAML configuration file",
		EnvVar: "FRAMECAST_CONFIG",
		Value:  "",
	})

	var logLevelSet, logFileSet, metricsSet bool
	logLevel := app.String(cli.StringOpt{
		Name:      "log-level",
		Desc:      "log level",
		EnvVar:    "FRAMECAST_LOG_LEVEL",
		Value:     "info",
		SetByUser: &logLevelSet,
	})
	logFile := app.String(cli.StringOpt{
		Name:      "log-file",
		Desc:      "also write logs to this file, rotated daily",
		EnvVar:    "FRAMECAST_LOG_FILE",
		Value:     "",
		SetByUser: &logFileSet,
	})
	metricsAddr := app.String(cli.StringOpt{
		Name:      "metrics",
		Desc:      "address to serve prometheus metrics on",
		EnvVar:    "FRAMECAST_METRICS",
		Value:     "",
		SetByUser: &metricsSet,
	})

	load := func() *config.Config {
		cfg, err := config.Load(*configFile)
		if err != nil {
			log.WithError(err).Panic("failed to load configuration")
		}
		if logLevelSet {
			cfg.Logging.Level = *logLevel
		}
		if logFileSet {
			cfg.Logging.File = *logFile
		}
		if metricsSet {
			cfg.Metrics.Addr = *metricsAddr
		}
		if err := cfg.Validate(); err != nil {
			log.WithError(err).Panic("invalid configuration")
		}
		setupLogger(cfg)
		return cfg
	}

	app.Command("serve", "stream resources to players", func(cmd *cli.Cmd) {
		var addrSet, mediaSet, intervalSet bool
		addr := cmd.String(cli.StringOpt{
			Name:      "addr",
			Desc:      "control channel listen address",
			EnvVar:    "FRAMECAST_ADDR",
			Value:     ":8554",
			SetByUser: &addrSet,
		})
		media := cmd.String(cli.StringOpt{
			Name:      "media",
			Desc:      "folder holding one directory per resource",
			EnvVar:    "FRAMECAST_MEDIA",
			Value:     "media",
			SetByUser: &mediaSet,
		})
		interval := cmd.String(cli.StringOpt{
			Name:      "interval",
			Desc:      "time between frames",
			EnvVar:    "FRAMECAST_INTERVAL",
			Value:     stream.DefaultFrameInterval.String(),
			SetByUser: &intervalSet,
		})

		cmd.Action = func() {
			cfg := load()
			if addrSet {
				cfg.Server.Addr = *addr
			}
			if mediaSet {
				cfg.Server.Media = *media
			}
			if intervalSet {
				d, err := time.ParseDuration(*interval)
				if err != nil {
					log.WithError(err).Panic("invalid frame interval")
				}
				cfg.Server.FrameInterval = d
			}

			if err := serve(cfg); err != nil {
				log.WithError(err).Panic("stopped")
			}
		}
	})

	app.Command("play", "play a resource without a display", func(cmd *cli.Cmd) {
		var serverSet, cacheSet bool
		server := cmd.String(cli.StringOpt{
			Name:      "s server",
			Desc:      "server control address",
			EnvVar:    "FRAMECAST_SERVER",
			Value:     "127.0.0.1:8554",
			SetByUser: &serverSet,
		})
		cache := cmd.String(cli.StringOpt{
			Name:      "cache",
			Desc:      "folder the current frame is written to",
			EnvVar:    "FRAMECAST_CACHE",
			Value:     "cache",
			SetByUser: &cacheSet,
		})
		resource := cmd.String(cli.StringOpt{
			Name:  "r resource",
			Desc:  "resource to play, the first listed when empty",
			Value: "",
		})
		from := cmd.Float64(cli.Float64Opt{
			Name:  "from",
			Desc:  "fraction of the resource to start at",
			Value: 0,
		})
		subtitles := cmd.Bool(cli.BoolOpt{
			Name:  "subtitles",
			Desc:  "request subtitle cues",
			Value: false,
		})

		cmd.Action = func() {
			cfg := load()
			if serverSet {
				cfg.Client.Server = *server
			}
			if cacheSet {
				cfg.Client.Cache = *cache
			}

			err := play(cfg, playOptions{resource: *resource, from: *from, subtitles: *subtitles})
			if err != nil {
				log.WithError(err).Panic("stopped")
			}
		}
	})

	err := app.Run(os.Args)
	if err != nil {
		log.WithError(err).Panic("failed to execute application")
	}
}

func setupLogger(cfg *config.Config) {
	log.SetLevel(cfg.LogLevel())
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	file := cfg.Logging.File
	if file == "" {
		return
	}
	writer, err := rotatelogs.New(
		file+".%Y%m%d",
		rotatelogs.WithLinkName(file),
		rotatelogs.WithMaxAge(14*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		log.WithError(err).Panic("failed to create log file")
	}
	log.SetOutput(io.MultiWriter(os.Stdout, writer))
}

func serve(cfg *config.Config) error {
	library, err := catalog.Open(cfg.Server.Media, cfg.Server.CacheSize)
	if err != nil {
		return err
	}
	names, err := library.List()
	if err != nil {
		return err
	}
	log.Infof("serving %d resources from %s", len(names), cfg.Server.Media)

	server := rtsp.NewServer(library, rtsp.NewRegistry(), rtsp.ServerConfig{
		Ports:        cfg.Server.Ports,
		BindAttempts: cfg.Server.BindAttempts,
		Sender: stream.SenderConfig{
			Interval:   cfg.Server.FrameInterval,
			MaxPayload: cfg.Server.MaxPayload,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return server.Start(ctx, cfg.Server.Addr)
	})

	if cfg.Metrics.Addr != "" {
		group.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.Addr)
		})
	}

	return group.Wait()
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Infof("metrics listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("metrics endpoint failed: %w", err)
}
