package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/config"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/journal"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/runner"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/textunit"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/youtube"
)

type rootFlags struct {
	configFile  string
	audioFile   string
	mode        string
	workers     int
	quota       int
	noFallback  bool
	journal     string
	port        int
	setupAPIKey bool
	debugPaths  bool
}

func newRootCmd() *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "ghostvid <textPath> <outputFile>",
		Short: "Illustrate text with YouTube clips that say it",
		Long: `ghostvid cuts a text into sentences (or keywords), finds YouTube videos whose
captions contain each one, and concatenates the matching moments into a single
montage. Text nobody has said on camera becomes a short black placeholder.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.setupAPIKey {
				return runSetup(cmd, f)
			}
			if len(args) != 2 {
				return &usageError{fmt.Errorf("expected <textPath> <outputFile>, got %d argument(s)", len(args))}
			}
			return runMontage(cmd, f, args[0], args[1])
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})

	flags := cmd.Flags()
	flags.StringVar(&f.audioFile, "audioFile", "", "narration track that replaces the montage audio and sets its length")
	flags.StringVar(&f.mode, "mode", "", "unit mode: sentence or keyword")
	flags.IntVar(&f.workers, "workers", 0, "units resolved in parallel")
	flags.IntVar(&f.quota, "quota", 0, "API quota units this run may spend")
	flags.BoolVar(&f.noFallback, "no-word-fallback", false, "do not retry unmatched sentences word by word")
	flags.StringVar(&f.journal, "journal", "", "SQLite file that keeps the run journal")
	flags.BoolVar(&f.setupAPIKey, "setupApiKey", false, "print API key setup guidance and tool status, then exit")
	flags.BoolVar(&f.debugPaths, "debug-paths", false, "log full file paths")
	cmd.PersistentFlags().StringVar(&f.configFile, "config", "", "YAML configuration overlay")

	cmd.AddCommand(newDoctorCmd(&f))
	cmd.AddCommand(newPreviewCmd(&f))
	return cmd
}

// loadConfig reads configuration and layers the flags the user actually set.
func loadConfig(cmd *cobra.Command, f *rootFlags) (*config.EnvConfig, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, &usageError{err}
	}

	var o config.Overrides
	flags := cmd.Flags()
	if flags.Changed("mode") {
		o.Mode = &f.mode
	}
	if flags.Changed("workers") {
		o.Workers = &f.workers
	}
	if flags.Changed("quota") {
		o.QuotaLimit = &f.quota
	}
	if flags.Changed("no-word-fallback") {
		wf := !f.noFallback
		o.WordFallback = &wf
	}
	if flags.Changed("journal") {
		o.Journal = &f.journal
	}
	if err := cfg.Apply(o); err != nil {
		return nil, &usageError{err}
	}
	return cfg, nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	return logging.New(w, cfg.LogLevel(), cfg.LogFormat())
}

func runMontage(cmd *cobra.Command, f rootFlags, textPath, outputPath string) error {
	cfg, err := loadConfig(cmd, &f)
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	mode, err := textunit.ParseMode(cfg.Mode())
	if err != nil {
		return &usageError{err}
	}

	logger := newLogger(cfg, os.Stderr)
	logger.Info("starting ghostvid", "version", config.Version, "data_dir", logging.SanitizePath(cfg.DataDir()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := journal.Open(cfg.JournalDSN(), logger)
	if err != nil {
		return fmt.Errorf("failed to open run journal: %w", err)
	}
	defer db.Close()

	exec := media.NewSubprocess(logger, f.debugPaths)
	codec := media.NewFFmpeg(exec, cfg.FFmpegPath(), cfg.FFprobePath(), logger)
	limiter := youtube.NewLimiter(cfg.APIRPS())

	r := runner.New(runner.Deps{
		Codec: codec,
		Searcher: youtube.NewSearchClient(youtube.SearchConfig{
			APIKey:   cfg.APIKey(),
			Language: cfg.Language(),
			Limiter:  limiter,
			Logger:   logger,
		}),
		Transcripts: youtube.NewTranscriptClient(youtube.TranscriptConfig{
			Languages: []string{cfg.Language()},
			Limiter:   limiter,
			Logger:    logger,
		}),
		Fetcher:    youtube.NewDownloader(exec, cfg.YTDLPPath(), logger),
		Repository: journal.NewRepository(db.Conn()),
	}, runner.Options{
		Mode:         mode,
		Workers:      cfg.Workers(),
		QuotaLimit:   cfg.QuotaLimit(),
		MaxResults:   cfg.MaxResults(),
		WordFallback: cfg.WordFallback(),
		ScratchDir:   cfg.ScratchDir(),
		ClipsDir:     cfg.ClipsDir(),
	}, logger)

	report, err := r.Run(ctx, runner.Request{TextPath: textPath, OutputPath: outputPath, AudioPath: f.audioFile})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("run interrupted")
		}
		return err
	}

	printReport(cmd.OutOrStdout(), report, outputPath, cfg.JournalIsFile())
	return nil
}

func printReport(w io.Writer, r *runner.Report, outputPath string, journaled bool) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Montage:   %s\n", outputPath)
	if r.EDLPath != "" {
		fmt.Fprintf(w, "  EDL:       %s\n", r.EDLPath)
	}
	fmt.Fprintf(w, "  Units:     %d matched, %d placeholder\n", r.Matched, r.Fallback)
	fmt.Fprintf(w, "  Duration:  %.1fs (target %.1fs)\n", r.OutputSeconds, r.Verdict.Target)
	fmt.Fprintf(w, "  Quota:     %d / %d units\n", r.QuotaUsed, r.QuotaLimit)
	fmt.Fprintf(w, "  Elapsed:   %s\n", r.Elapsed.Round(time.Millisecond))
	if journaled {
		fmt.Fprintf(w, "  Run ID:    %s\n", r.RunID)
	}
	if r.AllFallback() {
		fmt.Fprintln(w, "  Warning:   no footage matched; every unit is a placeholder")
	}
	fmt.Fprintln(w)
}
