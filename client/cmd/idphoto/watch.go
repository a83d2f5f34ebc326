package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"idPhoto/client/apperrors"
	"idPhoto/client/obs"
	"idPhoto/client/service"
)

const settleDelay = 500 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var (
		opts   renderOptions
		outDir string
	)

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Process each photo dropped into a directory",
		Long: `Watch a directory and process every new image written into it.

Only one photo is processed at a time. Images that arrive while another is
in flight are skipped, not queued; drop them again once the current one is done.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			dir := args[0]

			if err := a.remote(ctx); err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.cfg.OutputDir
			}
			orch, err := a.newOrchestrator(out, "", opts)
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to create watcher: %w", err)
			}
			defer watcher.Close()

			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}

			if a.cfg.MetricsAddr != "" {
				go func() {
					if err := obs.Serve(ctx, a.cfg.MetricsAddr, a.logger); err != nil {
						a.logger.Warn("Metrics server stopped", zap.Error(err))
					}
				}()
			}

			fmt.Fprintln(out, formatInfo("Watching "+dir))
			fmt.Fprintln(out, formatMuted("Press Ctrl+C to stop"))

			dz := newDropZone(orch, a.clock, out, outDir, a.logger)
			defer dz.wait()
			return dz.run(ctx, watcher.Events, watcher.Errors)
		},
	}

	addRenderFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.preset, "preset", 0, "Server removal preset ID")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default IDPHOTO_OUTPUT_DIR)")
	return cmd
}

// dropZone turns file events into submissions. Events for one file are
// debounced so a file still being copied is read only once it settles.
type dropZone struct {
	orch   *service.Orchestrator
	clock  clockwork.Clock
	out    io.Writer
	outDir string
	logger *zap.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[string]scheduled
	wg      sync.WaitGroup
}

type scheduled struct {
	id    uint64
	timer clockwork.Timer
}

func newDropZone(orch *service.Orchestrator, clock clockwork.Clock, out io.Writer, outDir string, logger *zap.Logger) *dropZone {
	return &dropZone{
		orch:    orch,
		clock:   clock,
		out:     out,
		outDir:  outDir,
		logger:  logger,
		pending: make(map[string]scheduled),
	}
}

func (d *dropZone) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !d.accepts(event) {
				continue
			}
			d.schedule(ctx, event.Name)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			d.logger.Warn("Watcher error", zap.Error(err))

		case <-ctx.Done():
			d.mu.Lock()
			for name, p := range d.pending {
				if p.timer.Stop() {
					d.wg.Done()
				}
				delete(d.pending, name)
			}
			d.mu.Unlock()
			fmt.Fprintln(d.out, formatMuted("Watcher stopped"))
			return nil
		}
	}
}

func (d *dropZone) accepts(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return false
	}
	// Our own output may land in the watched directory.
	if strings.HasPrefix(base, "idphoto_") {
		return false
	}
	return isImagePath(base)
}

func (d *dropZone) schedule(ctx context.Context, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pending[name]; ok && p.timer.Stop() {
		d.wg.Done()
	}

	d.seq++
	id := d.seq
	d.wg.Add(1)
	d.pending[name] = scheduled{id: id, timer: d.clock.AfterFunc(settleDelay, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if p, ok := d.pending[name]; ok && p.id == id {
			delete(d.pending, name)
		}
		d.mu.Unlock()
		d.process(ctx, name)
	})}
}

func (d *dropZone) process(ctx context.Context, name string) {
	base := filepath.Base(name)
	fmt.Fprintln(d.out, formatInfo("New photo: "+base))

	path, err := processFile(ctx, d.orch, name, d.outDir)
	switch {
	case errors.Is(err, service.ErrBusy):
		fmt.Fprintln(d.out, formatWarning("Busy, skipped "+base))
	case err != nil:
		d.logger.Warn("Drop-zone photo failed", zap.String("file", name), zap.Error(err))
		fmt.Fprintln(d.out, formatError(base+": "+apperrors.UserMessage(err)))
	default:
		fmt.Fprintln(d.out, formatSuccess("Saved "+path))
	}
}

// wait blocks until every scheduled submission has finished.
func (d *dropZone) wait() {
	d.wg.Wait()
}
