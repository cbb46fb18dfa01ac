package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/api"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/config"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/export"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/journal"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/playback"
)

func newPreviewCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <outputFile>",
		Short: "Serve a compiled montage and the run journal on localhost",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &usageError{fmt.Errorf("expected <outputFile>, got %d argument(s)", len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, f, args[0])
		},
	}
	cmd.Flags().StringVar(&f.journal, "journal", "", "SQLite run journal to expose under /runs")
	cmd.Flags().IntVar(&f.port, "port", 0, "port to listen on (127.0.0.1 only)")
	return cmd
}

func runPreview(cmd *cobra.Command, f *rootFlags, outputPath string) error {
	startTime := time.Now()

	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		if err := cfg.Apply(config.Overrides{PreviewPort: &f.port}); err != nil {
			return &usageError{err}
		}
	}
	if _, err := os.Stat(outputPath); err != nil {
		return &usageError{fmt.Errorf("montage not found: %s", outputPath)}
	}

	logger := newLogger(cfg, os.Stderr)

	var repo journal.Repository
	if cfg.JournalIsFile() {
		db, err := journal.Open(cfg.JournalDSN(), logger)
		if err != nil {
			return fmt.Errorf("failed to open run journal: %w", err)
		}
		defer db.Close()
		repo = journal.NewRepository(db.Conn())
	}

	exec := media.NewSubprocess(logger, false)
	doctor := media.NewCachedDoctor(media.NewDoctor(exec, cfg.FFmpegPath(), cfg.FFprobePath(), cfg.YTDLPPath()), logger)
	probeCtx, probeCancel := context.WithTimeout(context.Background(), doctorTimeout)
	if _, err := doctor.Refresh(probeCtx); err != nil {
		logger.Warn("initial tool probe failed", "error", err)
	}
	probeCancel()

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.PreviewPort(),
		OutputPath:     outputPath,
		PlaybackServer: playback.NewServer(logger),
		Repository:     repo,
		Doctor:         doctor,
		Logger:         logging.WithComponent(logger, "preview"),
		StartTime:      startTime,
		Version:        config.Version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	w := cmd.OutOrStdout()
	base := "http://" + server.Addr()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Montage:  %s/montage\n", base)
	if _, err := os.Stat(export.EDLPath(outputPath)); err == nil {
		fmt.Fprintf(w, "  EDL:      %s/montage.edl\n", base)
	}
	if repo != nil {
		fmt.Fprintf(w, "  Runs:     %s/runs\n", base)
	}
	fmt.Fprintln(w, "  Press Ctrl+C to stop.")
	fmt.Fprintln(w)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("preview shutdown: %w", err)
	}
	return nil
}
