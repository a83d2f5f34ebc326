package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"idPhoto/client/pool"
	"idPhoto/client/service"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		opts    renderOptions
		outDir  string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Process every photo in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			files, err := listImages(args[0])
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintln(out, formatWarning("No images found in "+args[0]))
				return nil
			}

			if err := a.remote(ctx); err != nil {
				return err
			}
			if outDir == "" {
				outDir = a.cfg.OutputDir
			}
			if workers <= 0 {
				workers = a.cfg.WorkerCount
			}

			fmt.Fprintln(out, formatInfo(fmt.Sprintf("Processing %d images with %d workers", len(files), workers)))

			var saved atomic.Int32
			wp := pool.NewWorkerPool(workers, a.logger)
			for _, path := range files {
				wp.Submit(ctx, func(ctx context.Context) error {
					orch, err := a.newOrchestrator(out, filepath.Base(path), opts)
					if err != nil {
						return err
					}
					if _, err := processFile(ctx, orch, path, outDir); err != nil {
						a.logger.Warn("Batch item failed", zap.String("file", path), zap.Error(err))
						return fmt.Errorf("%s: %w", filepath.Base(path), err)
					}
					saved.Add(1)
					return nil
				})
			}

			errs := wp.Wait()
			for _, err := range errs {
				fmt.Fprintln(out, formatError(err.Error()))
			}
			fmt.Fprintln(out, formatSuccess(fmt.Sprintf("%d of %d images saved to %s", saved.Load(), len(files), outDir)))

			if len(errs) > 0 {
				return fmt.Errorf("%d of %d images failed", len(errs), len(files))
			}
			return nil
		},
	}

	addRenderFlags(cmd, &opts)
	cmd.Flags().IntVar(&opts.preset, "preset", 0, "Server removal preset ID")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (default IDPHOTO_OUTPUT_DIR)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Parallel uploads (default WORKER_COUNT)")
	return cmd
}

// processFile runs one submission and saves the composite before the
// session is released. Output names never overwrite, so each file gets its
// own name.
func processFile(ctx context.Context, orch *service.Orchestrator, path, outDir string) (string, error) {
	file, closer, err := service.OpenFile(path)
	if err != nil {
		return "", err
	}
	defer closer.Close()

	return orch.SubmitAndSave(ctx, file, outDir)
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isImagePath(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
