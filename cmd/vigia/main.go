package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/vigia/internal/api"
	"github.com/saturnino-fabrica-de-software/vigia/internal/config"
	"github.com/saturnino-fabrica-de-software/vigia/internal/detect"
	"github.com/saturnino-fabrica-de-software/vigia/internal/dispatch"
	"github.com/saturnino-fabrica-de-software/vigia/internal/index"
	"github.com/saturnino-fabrica-de-software/vigia/internal/match"
	"github.com/saturnino-fabrica-de-software/vigia/internal/pipeline"
	"github.com/saturnino-fabrica-de-software/vigia/internal/source"
	"github.com/saturnino-fabrica-de-software/vigia/internal/store"
	"github.com/saturnino-fabrica-de-software/vigia/internal/track"
)

// sourceFlag collects repeatable "id=location" flags.
type sourceFlag []sourceSpec

type sourceSpec struct {
	id       string
	location string
}

func (f *sourceFlag) String() string {
	var parts []string
	for _, s := range *f {
		parts = append(parts, s.id+"="+s.location)
	}
	return strings.Join(parts, ",")
}

func (f *sourceFlag) Set(value string) error {
	id, location, found := strings.Cut(value, "=")
	if !found {
		location = value
		id = fmt.Sprintf("source-%d", len(*f))
	}
	if location == "" {
		return fmt.Errorf("empty source location")
	}
	*f = append(*f, sourceSpec{id: id, location: location})
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		rtspFlags  sourceFlag
		videoFlags sourceFlag
		imageFlags sourceFlag
	)
	flag.Var(&rtspFlags, "rtsp", "RTSP stream to watch, as id=url (repeatable)")
	flag.Var(&videoFlags, "video", "video file to process, as id=path (repeatable)")
	flag.Var(&imageFlags, "image", "single image to process, as id=path (repeatable)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting vigia",
		slog.String("environment", cfg.Environment),
		slog.String("backend", cfg.WatchlistBackend),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchlist, err := store.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open watchlist store: %w", err)
	}
	defer func() { _ = watchlist.Close() }()

	idx := index.NewFlat(cfg.EmbeddingSize)
	rebuilder := index.NewRebuilder(watchlist, idx, logger, cfg.RebuildDebounce, cfg.WatchlistRefresh)
	if err := rebuilder.Rebuild(ctx); err != nil {
		// Store down at boot: start degraded with an empty index rather
		// than refuse to watch sources.
		logger.Warn("initial index build failed, starting degraded", "error", err)
	}
	logger.Info("similarity index ready", slog.Int("rows", idx.Size()))

	detector := detect.NewClient(detect.Config{
		BaseURL: cfg.DetectorURL,
		Timeout: cfg.DetectorTimeout,
	})
	matcher := match.NewMatcher(idx, cfg.SimilarityThreshold)

	dispatcher := dispatch.NewDispatcher(dispatch.Options{
		EventLogPath:  cfg.EventLogPath,
		WebhookURL:    cfg.WebhookURL,
		WebhookSecret: cfg.WebhookSecret,
		RingSize:      cfg.RecentEvents,
	}, logger)

	pipe := pipeline.New(pipeline.Options{
		Workers:         cfg.Workers,
		FrameBufferSize: cfg.FrameBufferSize,
		EmbeddingSize:   cfg.EmbeddingSize,
		DetectorTimeout: cfg.DetectorTimeout,
		Tracker: track.Options{
			IoUThreshold:      cfg.BoundingBoxIoU,
			MaxFrameGap:       cfg.MaxFrameGap,
			InactivityTimeout: cfg.TrackInactivityTimeout,
		},
	}, detector, matcher, dispatcher, logger)

	sources := buildSources(cfg, logger, rtspFlags, videoFlags, imageFlags)
	if len(sources) == 0 {
		return fmt.Errorf("no sources configured, pass -rtsp, -video or -image")
	}

	router := api.NewRouter(logger, api.NewHandler(pipe, dispatcher, watchlist, rebuilder))
	router.Setup()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rebuilder.Run(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		logger.Info("status server listening", slog.String("addr", addr))
		return router.Listen(addr)
	})
	g.Go(func() error {
		defer stop()
		return pipe.Run(gctx, sources)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		return router.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("stopped")
	return nil
}

func buildSources(cfg *config.Config, logger *slog.Logger, rtsp, video, image sourceFlag) []source.Source {
	var sources []source.Source

	dialer := &source.FFmpegDialer{
		SampleFPS:   cfg.SampleRateFPS,
		ReadTimeout: 15 * time.Second,
	}
	for _, s := range rtsp {
		sources = append(sources, source.NewRTSP(s.id, s.location, dialer, logger, cfg.ReconnectMaxDelay))
	}
	for _, s := range video {
		sources = append(sources, source.NewVideo(s.id, s.location, cfg.SampleRateFPS))
	}
	for _, s := range image {
		sources = append(sources, source.NewImage(s.id, s.location))
	}
	return sources
}
