package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/agent"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/config"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/lockfile"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/orchestrator"
	"github.com/jana-rasakanthan-axomic/atelier-sub000/internal/report"
)

// runLogger writes "[timestamp] message" lines to a rotating log file.
type runLogger struct {
	mu    sync.Mutex
	w     io.Writer
	actor string
}

func (l *runLogger) log(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	_, _ = fmt.Fprintf(l.w, "[%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05"), l.actor, msg)
}

// Write lets the logger collect warnings printed by shared helpers.
func (l *runLogger) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		l.log("%s", line)
	}
	return len(p), nil
}

func setupRunLogger(rs config.RunSettings) (io.Closer, *runLogger) {
	path := rs.LogPath
	if path == "" {
		path = loc.LogPath()
	}
	_ = os.MkdirAll(filepath.Dir(path), 0o750)
	f := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rs.LogMaxSizeMB,
		MaxBackups: rs.LogMaxBackups,
		MaxAge:     rs.LogMaxAgeDays,
		Compress:   true,
	}
	return f, &runLogger{w: f, actor: actor}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Build, check pull requests and report, once or continuously",
	Long: `Run one cycle of build (when build.command is set), pr-check (refreshing
pull request status when pr.status-command is set) and status.

With --continuous the cycle repeats whenever the store changes and at least
every --interval until interrupted. Progress goes to a rotating log file
(run.log, default .claude/workstreams/logs/run.log).`,
	Args: exactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		continuous, _ := cmd.Flags().GetBool("continuous")
		rs := config.GetRunSettings()
		if cmd.Flags().Changed("interval") {
			rs.Interval, _ = cmd.Flags().GetDuration("interval")
		}
		if rs.Interval <= 0 {
			return usageError(fmt.Errorf("interval must be positive, got %s", rs.Interval))
		}

		lock, err := lockfile.TryLock(filepath.Join(loc.Dir, "run.lock"))
		if errors.Is(err, lockfile.ErrLocked) {
			return errors.New("another 'ws run' is already active for this workspace")
		}
		if err != nil {
			return err
		}
		defer func() { _ = lock.Unlock() }()

		logF, logger := setupRunLogger(rs)
		defer func() { _ = logF.Close() }()
		logger.log("run started (continuous: %v, interval: %s, store: %s)", continuous, rs.Interval, loc.StorePath)

		ctx := cmd.Context()
		if !continuous {
			return runCycle(ctx, cmd, rs, logger)
		}
		return runLoop(ctx, cmd, rs, logger)
	},
}

func runLoop(ctx context.Context, cmd *cobra.Command, rs config.RunSettings, logger *runLogger) error {
	watchCtx, cancel := context.WithCancel(ctx)
	watcher := newStoreWatcher(loc.StorePath, rs.Interval)
	watcher.Start(watchCtx)
	defer func() {
		cancel()
		_ = watcher.Close()
	}()
	if watcher.IsPolling() {
		logger.log("file watching unavailable, polling every %s", rs.Interval)
	}

	ticker := time.NewTicker(rs.Interval)
	defer ticker.Stop()
	for {
		if err := runCycle(ctx, cmd, rs, logger); err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.log("cycle failed: %v", err)
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
			continue
		case <-watcher.Events():
			logger.log("store changed")
			continue
		}
		break
	}
	logger.log("run stopped: %v", context.Cause(ctx))
	return nil
}

// runCycle does one build, pr-check and status pass.
func runCycle(ctx context.Context, cmd *cobra.Command, rs config.RunSettings, logger *runLogger) error {
	bs := config.GetBuildSettings()
	builder, err := newBuilder(bs)
	switch {
	case errors.Is(err, agent.ErrNotConfigured):
		logger.log("build skipped: %v", err)
	case err != nil:
		return err
	default:
		orch := orchestrator.New(store, builder, nil, orchestratorOptions(bs, logger.log))
		summary, err := orch.Run(ctx, scope)
		logger.log("build: %d completed, %d retried, %d failed, %d escalated in %d rounds",
			len(summary.Completed), len(summary.Retried), len(summary.Failed), len(summary.Escalated), summary.Iterations)
		if err != nil {
			return err
		}
	}

	res, err := prCheck(ctx, rs.StatusCommand != "", logger)
	if err != nil {
		return err
	}
	for _, id := range res.Requeued {
		logger.log("requeued %s", id)
	}
	for _, r := range res.Reports {
		if !r.Ready {
			logger.log("%s waiting on %d unmerged pull requests", r.TicketID, len(r.Blockers))
		}
	}

	doc, err := snapshot(ctx)
	if err != nil {
		return err
	}
	r := report.Build(doc, scope)
	logger.log("status: %s", r.SummaryLine())
	if len(res.Escalated) > 0 {
		logger.log("escalated: %s", strings.Join(res.Escalated, ", "))
	}
	if jsonOutput {
		return r.WriteJSON(cmd.OutOrStdout())
	}
	r.Render(cmd.OutOrStdout())
	return nil
}

func init() {
	runCmd.Flags().Bool("continuous", false, "Repeat until interrupted")
	runCmd.Flags().Duration("interval", 5*time.Minute, "Maximum time between cycles (default from run.interval)")
	rootCmd.AddCommand(runCmd)
}
