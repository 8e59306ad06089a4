// Package daemon is the composition root: it assembles the object
// graph, persistence, registry, poller, sideband executor, dispatcher,
// and transports into one running process, and owns the startup
// (recovery/restoration) and shutdown (quiesce, final checkpoint)
// sequences. Everything is wired in one place and torn down in
// reverse, with errgroup fanning in the long-running loops.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ccmux/ccmux/internal/arbiter"
	"github.com/ccmux/ccmux/internal/auditlog"
	"github.com/ccmux/ccmux/internal/checkpoint"
	"github.com/ccmux/ccmux/internal/config"
	"github.com/ccmux/ccmux/internal/graph"
	"github.com/ccmux/ccmux/internal/handlers"
	"github.com/ccmux/ccmux/internal/id"
	"github.com/ccmux/ccmux/internal/logging"
	"github.com/ccmux/ccmux/internal/poller"
	"github.com/ccmux/ccmux/internal/ptyio"
	"github.com/ccmux/ccmux/internal/recovery"
	"github.com/ccmux/ccmux/internal/registry"
	"github.com/ccmux/ccmux/internal/sideband"
	"github.com/ccmux/ccmux/internal/status"
	"github.com/ccmux/ccmux/internal/transport"
	"github.com/ccmux/ccmux/internal/wal"
)

// paths derives the on-disk layout from the state dir.
type paths struct {
	lockFile      string
	walPath       string
	checkpointDir string
	panesDir      string
	auditDB       string
}

func layout(stateDir string) paths {
	return paths{
		lockFile:      filepath.Join(stateDir, ".lock"),
		walPath:       filepath.Join(stateDir, "wal", "wal.log"),
		checkpointDir: filepath.Join(stateDir, "checkpoints"),
		panesDir:      filepath.Join(stateDir, "panes"),
		auditDB:       filepath.Join(stateDir, "audit.db"),
	}
}

func ensureDirs(p paths, stateDir string) error {
	for _, dir := range []string{stateDir, filepath.Dir(p.walPath), p.checkpointDir, p.panesDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("daemon: mkdir %s: %w", dir, err)
		}
	}
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled (or a fatal
// startup error), then performs the orderly shutdown sequence: stop
// accepting, drain PTY pollers, write a final checkpoint, fsync the
// WAL, release the lock-file. configPath, when non-empty, is watched
// for edits and the runtime-tunable settings (arbitration TTL, sideband
// spawn limit) are applied live; the rest require a restart.
func Run(ctx context.Context, cfg config.Config, configPath string) error {
	p := layout(cfg.StateDir)
	if err := ensureDirs(p, cfg.StateDir); err != nil {
		return err
	}

	logger, err := logging.Setup(cfg.StateDir)
	if err != nil {
		return err
	}
	defer logger.Close()

	lock, acquired, err := recovery.Acquire(p.lockFile)
	if err != nil {
		return err
	}
	defer lock.Release()

	if !acquired.CleanShutdown {
		logger.Warn("unclean shutdown detected, recovering", "prior_pid", acquired.PriorPID)
	}

	state, err := recovery.Recover(recovery.Paths{
		CheckpointDir: p.checkpointDir,
		WALPath:       p.walPath,
	}, acquired.CleanShutdown, logger.Logger)
	if err != nil {
		return fmt.Errorf("daemon: recovery: %w", err)
	}
	for _, warning := range state.Warnings {
		logger.Warn("recovery: " + warning)
	}

	w, err := wal.Open(p.walPath, wal.Options{
		GroupCommitWindow: time.Duration(cfg.WAL.GroupCommitWindowMs) * time.Millisecond,
		PersistPaneOutput: cfg.WAL.PersistPaneOutput,
		Clock:             id.Wall,
	})
	if err != nil {
		return fmt.Errorf("daemon: open wal: %w", err)
	}

	ckpt, err := checkpoint.New(checkpoint.Options{
		Dir:       p.checkpointDir,
		Retention: cfg.Checkpoint.Retention,
		Clock:     id.Wall,
	})
	if err != nil {
		return fmt.Errorf("daemon: checkpoint store: %w", err)
	}

	audit, err := auditlog.Open(p.auditDB, logger.Logger)
	if err != nil {
		// The audit index is derived state; losing it degrades nothing.
		logger.Warn("audit log unavailable", "error", err)
		audit = nil
	}
	defer audit.Close()

	g := graph.New(id.Wall)
	reg := registry.New(logger.Logger)
	arb := arbiter.New(time.Duration(cfg.Arbitration.TTLMs)*time.Millisecond, id.Wall)

	poll := poller.New(g, reg, poller.Options{
		WAL:               w,
		PersistPaneOutput: cfg.WAL.PersistPaneOutput,
		IsolationRoot:     p.panesDir,
		Log:               logger.Logger,
	})
	exec := sideband.NewExecutor(g, poll, reg, sideband.Options{
		IsolationRoot:      p.panesDir,
		MaxPanesPerSession: cfg.Sideband.MaxPanesPerSession,
		Audit:              audit,
		WAL:                w,
		Log:                logger.Logger,
	})
	poll.SetExecutor(exec)

	// Restoration: rebuild the graph from recovered state and respawn
	// PTYs for every pane that warrants one.
	results := recovery.Restore(g, state, p.panesDir, ptyio.Spawn)
	restored, failed := 0, 0
	for _, res := range results {
		switch {
		case res.Err != nil:
			failed++
			logger.Warn("restore: pane respawn failed", "pane_id", res.PaneID, "error", res.Err)
		case res.Handle != nil:
			if session, _, _, err := g.FindPane(res.PaneID); err == nil {
				poll.Track(res.PaneID, session.ID, res.Handle)
				restored++
			}
		}
	}
	if restored > 0 || failed > 0 {
		logger.Info("restoration complete", "respawned", restored, "failed", failed, "wal_replayed", state.WALReplayedCount)
	}

	disp := handlers.New(handlers.Dependencies{
		Graph:         g,
		Registry:      reg,
		Arbiter:       arb,
		WAL:           w,
		PTY:           poll,
		Audit:         audit,
		IsolationRoot: p.panesDir,
		Clock:         id.Wall,
		Log:           logger.Logger,
	})

	srv, err := transport.Listen(cfg.SocketPath, reg, disp, logger.Logger)
	if err != nil {
		return err
	}

	var statusSrv *status.Server
	if cfg.StatusAddr != "" {
		statusSrv = status.New(g, reg, audit, logger.Logger)
		if err := statusSrv.Start(cfg.StatusAddr); err != nil {
			logger.Warn("status surface unavailable", "error", err)
			statusSrv = nil
		} else {
			logger.Info("status surface listening", "addr", statusSrv.Addr())
		}
	}

	if configPath != "" {
		watcher, werr := config.WatchFile(configPath, cfg.StateDir, func(next config.Config) {
			arb.SetTTL(time.Duration(next.Arbitration.TTLMs) * time.Millisecond)
			exec.SetMaxPanesPerSession(next.Sideband.MaxPanesPerSession)
			logger.Info("config reloaded",
				"arbitration_ttl_ms", next.Arbitration.TTLMs,
				"max_panes_per_session", next.Sideband.MaxPanesPerSession)
		})
		if werr != nil {
			logger.Warn("config watch unavailable", "error", werr)
		} else {
			defer watcher.Close()
		}
	}

	logger.Info("daemon ready", "socket", cfg.SocketPath, "sessions", len(state.Sessions))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Serve(gctx) })
	group.Go(func() error {
		checkpointLoop(gctx, g, w, ckpt, time.Duration(cfg.Checkpoint.IntervalSeconds)*time.Second, logger)
		return nil
	})
	runErr := group.Wait()

	// Shutdown sequence: quiesce the handler surface, drain
	// pollers (each marks its pane Exited), final checkpoint, WAL flush,
	// then the deferred lock.Release marks the shutdown clean.
	srv.Shutdown()
	if statusSrv != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		statusSrv.Stop(stopCtx)
		cancel()
	}
	poll.Shutdown()
	writeCheckpoint(g, w, ckpt, logger)
	if err := w.Shutdown(); err != nil {
		logger.Error("wal shutdown failed", "error", err)
	}
	logger.Info("daemon stopped")
	return runErr
}

// checkpointLoop periodically snapshots the graph so startup replay
// stays bounded.
func checkpointLoop(ctx context.Context, g *graph.Graph, w *wal.WAL, ckpt *checkpoint.Store, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			writeCheckpoint(g, w, ckpt, logger)
		case <-ctx.Done():
			return
		}
	}
}

func writeCheckpoint(g *graph.Graph, w *wal.WAL, ckpt *checkpoint.Store, logger *logging.Logger) {
	// Sequence is read before the snapshot: anything appended in between
	// is both captured here and replayed after the marker, which the
	// reducer tolerates (creations are idempotent by ID).
	seq := w.Sequence()
	path, err := ckpt.Write(seq, g.Snapshot(false))
	if err != nil {
		logger.Error("checkpoint write failed", "error", err)
		return
	}
	if _, err := w.Append(wal.CheckpointMarker, wal.CheckpointMarkerPayload{Sequence: seq, CheckpointPath: path}); err != nil {
		logger.Error("checkpoint marker append failed", "error", err)
	}
}
