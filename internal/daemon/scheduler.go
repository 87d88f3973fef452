package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	// sweepInterval is how often leftover working directories are checked.
	sweepInterval = 6 * time.Hour
	// sweepMinAge protects freshly created directories whose instance row may
	// not be committed yet.
	sweepMinAge = 24 * time.Hour
)

// Scheduler wraps gocron for the daemon's periodic tasks: layout re-sync and
// the stale working-directory sweep.
type Scheduler struct {
	scheduler gocron.Scheduler
	daemon    *Daemon
}

// NewScheduler creates the scheduler with its jobs registered but not started.
func NewScheduler(d *Daemon) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{scheduler: gs, daemon: d}

	if interval := d.cfg.Layouts.SyncIntervalDuration(); interval > 0 && d.cfg.Layouts.RepoURL != "" {
		_, err := gs.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.syncLayouts),
			gocron.WithName("layout-sync"),
		)
		if err != nil {
			return nil, fmt.Errorf("schedule layout sync: %w", err)
		}
	}

	_, err = gs.NewJob(
		gocron.DurationJob(sweepInterval),
		gocron.NewTask(s.sweepWorkDirs),
		gocron.WithName("workdir-sweep"),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule workdir sweep: %w", err)
	}

	return s, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start(_ context.Context) error {
	slog.Info("Starting scheduler")
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for running tasks.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) syncLayouts() {
	changed, err := s.daemon.bundles.Sync(s.daemon.cfg.Layouts.RepoURL, s.daemon.cfg.Layouts.Branch)
	if err != nil {
		slog.Error("Scheduled layout sync failed", "error", err)
		return
	}
	if changed {
		slog.Info("Scheduled layout sync pulled updates")
	}
}

// sweepWorkDirs removes working directories that no longer belong to any
// instance. Directories younger than sweepMinAge are always kept.
func (s *Scheduler) sweepWorkDirs() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	codes, err := s.daemon.store.ListInstanceCodes(ctx)
	if err != nil {
		slog.Error("Workdir sweep aborted", "error", err)
		return
	}
	known := make(map[string]bool, len(codes))
	for _, c := range codes {
		known[c] = true
	}

	contentsDir := filepath.Join(s.daemon.cfg.UploadsDir, "contents")
	entries, err := os.ReadDir(contentsDir)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		slog.Error("Workdir sweep aborted", "dir", contentsDir, "error", err)
		return
	}

	cutoff := time.Now().Add(-sweepMinAge)
	for _, e := range entries {
		if !e.IsDir() || known[e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		dir := filepath.Join(contentsDir, e.Name())
		if err := os.RemoveAll(dir); err != nil {
			slog.Error("Failed to remove stale working directory", "dir", dir, "error", err)
			continue
		}
		slog.Info("Removed stale working directory", "dir", dir)
	}
}
