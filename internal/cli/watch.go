package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/roach88/animflow/internal/engine"
	"github.com/roach88/animflow/internal/loader"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Composition string
	Debounce    time.Duration
	Stdin       bool // read frame commands from stdin; EOF stops the command
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <snapshot>",
		Short: "Re-evaluate a composition whenever its snapshot changes",
		Long: `Evaluate a composition and keep it live: every save of the snapshot
document reloads it and re-evaluates, printing the new values.

With --stdin, lines of the form "frame <n>" move the playhead and
"reload" forces a reload; end of input stops the command.

Examples:
  animflow watch scene.yaml
  animflow watch ./scene --composition main
  printf 'frame 10\nframe 20\n' | animflow watch scene.yaml --stdin --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Composition, "composition", "", "composition id (default: the only composition)")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 100*time.Millisecond, "wait this long after the last file event before reloading")
	cmd.Flags().BoolVar(&opts.Stdin, "stdin", false, "read frame commands from stdin")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, formatter.GetErrWriter())

	snap, err := loadSnapshot(formatter, path)
	if err != nil {
		return err
	}
	compID, err := requireComposition(formatter, snap, opts.Composition)
	if err != nil {
		return err
	}

	m := engine.New(compID, snap, engine.WithLogger(logger))
	defer m.Dispose()

	// current is only touched on the host goroutine once Run starts.
	current := snap
	show := func(m *engine.Manager) {
		writeWatchResult(formatter, collectValues(m, current, nil))
	}
	host := engine.NewHost(m,
		engine.WithHostLogger(logger),
		engine.WithAfterApply(func(n engine.Notification, m *engine.Manager) {
			if n.Kind == engine.NotifyStructure {
				current = n.Snapshot
			}
			show(m)
		}),
	)
	show(m)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reload := func() {
		next, err := loader.Load(path)
		if err != nil {
			logger.Error("reload failed; keeping previous snapshot", "path", path, "error", err)
			return
		}
		host.Notify(engine.Notification{Kind: engine.NotifyStructure, Snapshot: next})
	}

	w, err := watchSnapshot(ctx, path, opts.Debounce, logger, reload)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to watch snapshot", err)
	}
	defer w.Close()

	if opts.Stdin {
		go func() {
			readCommands(cmd.InOrStdin(), host, reload, logger)
			host.Stop()
		}()
	} else {
		fmt.Fprintf(formatter.GetErrWriter(), "Watching %s. Press Ctrl-C to stop.\n", path)
	}

	if err := host.Run(ctx); err != nil && err != context.Canceled {
		return WrapExitError(ExitFailure, "watch error", err)
	}
	return nil
}

// readCommands turns stdin lines into notifications until EOF.
func readCommands(r io.Reader, host *engine.Host, reload func(), logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch {
		case fields[0] == "frame" && len(fields) == 2:
			frame, err := strconv.Atoi(fields[1])
			if err != nil {
				logger.Warn("bad frame command", "line", scanner.Text())
				continue
			}
			host.Notify(engine.Notification{Kind: engine.NotifyFrame, FrameIndex: frame})
		case fields[0] == "reload" && len(fields) == 1:
			reload()
		default:
			logger.Warn("unknown command", "line", scanner.Text())
		}
	}
}

// snapshotWatcher reloads a snapshot after its file (or, for a CUE package
// directory, any .cue file in it) settles.
type snapshotWatcher struct {
	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	done    chan struct{}
}

func watchSnapshot(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, reload func()) (*snapshotWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops a
	// watch on the file itself.
	dir, match := filepath.Dir(abs), func(name string) bool { return name == abs }
	if info.IsDir() {
		dir, match = abs, func(name string) bool { return filepath.Ext(name) == ".cue" }
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	sw := &snapshotWatcher{watcher: watcher, done: make(chan struct{})}
	go sw.loop(ctx, match, debounce, logger, reload)
	return sw, nil
}

func (sw *snapshotWatcher) loop(ctx context.Context, match func(string) bool, debounce time.Duration, logger *slog.Logger, reload func()) {
	defer close(sw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			name, _ := filepath.Abs(event.Name)
			if !match(name) {
				continue
			}
			logger.Debug("snapshot changed", "file", name, "op", event.Op.String())
			sw.schedule(debounce, reload)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

func (sw *snapshotWatcher) schedule(debounce time.Duration, reload func()) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(debounce, reload)
}

// Close stops the watcher and any pending reload.
func (sw *snapshotWatcher) Close() error {
	sw.mu.Lock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.mu.Unlock()
	err := sw.watcher.Close()
	<-sw.done
	return err
}

func writeWatchResult(formatter *OutputFormatter, result *EvalResult) {
	if formatter.JSON() {
		// One compact object per evaluation.
		_ = json.NewEncoder(formatter.Writer).Encode(result)
		return
	}
	writeEvalText(formatter.Writer, result)
	fmt.Fprintln(formatter.Writer)
}

