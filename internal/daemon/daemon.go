// Package daemon runs docpress in serve mode: builds arrive through the
// queue API, layouts are kept in sync with their repository, and metrics are
// exposed for scraping.
package daemon

import (
	"context"
	"fmt"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docpress/internal/assets"
	"git.home.luguber.info/inful/docpress/internal/build"
	"git.home.luguber.info/inful/docpress/internal/config"
	"git.home.luguber.info/inful/docpress/internal/events"
	"git.home.luguber.info/inful/docpress/internal/layouts"
	"git.home.luguber.info/inful/docpress/internal/metrics"
	"git.home.luguber.info/inful/docpress/internal/queue"
	"git.home.luguber.info/inful/docpress/internal/store"
	"git.home.luguber.info/inful/docpress/internal/typeset"
)

// Daemon owns the long-running components of serve mode.
type Daemon struct {
	cfg     *config.Config
	store   store.Store
	bundles *layouts.Bundles
	queue   *queue.Queue

	scheduler *Scheduler
	watcher   *LayoutsWatcher

	recorder      metrics.Recorder
	metricsServer *metrics.Server
	publisher     *events.Publisher
}

// New assembles a daemon from configuration. The store is owned by the caller
// and stays open after Stop.
func New(cfg *config.Config, st store.Store) (*Daemon, error) {
	d := &Daemon{
		cfg:      cfg,
		store:    st,
		bundles:  layouts.NewBundles(cfg.LayoutsDir),
		recorder: metrics.NoopRecorder{},
	}

	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		d.recorder = metrics.NewPrometheusRecorder(reg)
		d.metricsServer = metrics.NewServer(cfg.Metrics.Listen, reg)
	}

	if cfg.Events.NATSURL != "" {
		pub, err := events.Connect(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return nil, fmt.Errorf("connect event publisher: %w", err)
		}
		d.publisher = pub
	}

	resolver := assets.NewHMACSigner(cfg.Assets.BaseURL, cfg.Assets.SigningSecret, cfg.Assets.URLTTLDuration())
	renderer := &typeset.PandocRenderer{
		Binary:  cfg.Renderer.Binary,
		Engine:  cfg.Renderer.Engine,
		Timeout: cfg.Renderer.TimeoutDuration(),
	}
	pipeline := typeset.NewPipeline(cfg.UploadsDir, d.bundles, resolver, renderer, d.recorder)
	service := build.NewService(st, pipeline, d.publisher, d.recorder)

	d.queue = queue.New(cfg.Queue.MaxSize, cfg.Queue.Workers, service)
	d.queue.SetRecorder(d.recorder)

	sched, err := NewScheduler(d)
	if err != nil {
		return nil, err
	}
	d.scheduler = sched

	watcher, err := NewLayoutsWatcher(d.bundles)
	if err != nil {
		return nil, fmt.Errorf("create layouts watcher: %w", err)
	}
	d.watcher = watcher

	return d, nil
}

// Queue exposes the build queue for enqueueing and inspection.
func (d *Daemon) Queue() *queue.Queue { return d.queue }

// Start launches all components. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	slog.Info("Starting daemon",
		"uploads_dir", d.cfg.UploadsDir,
		"layouts_dir", d.cfg.LayoutsDir,
		"workers", d.cfg.Queue.Workers,
	)

	d.queue.Start(ctx)
	if err := d.scheduler.Start(ctx); err != nil {
		return err
	}
	if err := d.watcher.Start(ctx); err != nil {
		return err
	}
	if d.metricsServer != nil {
		d.metricsServer.Start()
	}
	return nil
}

// Stop shuts components down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) {
	slog.Info("Stopping daemon")

	if d.metricsServer != nil {
		if err := d.metricsServer.Stop(ctx); err != nil {
			slog.Error("Metrics server shutdown failed", "error", err)
		}
	}
	if err := d.watcher.Stop(); err != nil {
		slog.Error("Layouts watcher shutdown failed", "error", err)
	}
	if err := d.scheduler.Stop(); err != nil {
		slog.Error("Scheduler shutdown failed", "error", err)
	}
	d.queue.Stop(ctx)
	d.publisher.Close()
}
