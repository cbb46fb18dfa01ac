package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/config"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/logging"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/media"
	"github.com/genaforvena/ghost-writers-ghost-video-editor/internal/quota"
)

const doctorTimeout = 15 * time.Second

func newDoctorCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that ffmpeg, ffprobe and yt-dlp are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			caps, err := probeTools(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			printTools(cmd.OutOrStdout(), caps)
			if !caps.Ready() {
				return errors.New("required tools are missing")
			}
			return nil
		},
	}
}

// runSetup prints API key guidance. It never requires the key itself.
func runSetup(cmd *cobra.Command, f rootFlags) error {
	cfg, err := loadConfig(cmd, &f)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "ghostvid searches YouTube through the YouTube Data API v3.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  1. Open https://console.cloud.google.com/ and create (or pick) a project.")
	fmt.Fprintln(w, "  2. Enable \"YouTube Data API v3\" under APIs & Services > Library.")
	fmt.Fprintln(w, "  3. Create an API key under APIs & Services > Credentials.")
	fmt.Fprintf(w, "  4. Export it:  export %s=<your key>\n", config.EnvAPIKey)
	fmt.Fprintln(w, "     or put the same line without 'export' in a .env file next to where you run ghostvid.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Each search costs %d quota units, a transcript %d; a run may spend %d (--quota).\n",
		quota.CostSearch, quota.CostTranscript, cfg.QuotaLimit())
	fmt.Fprintln(w)

	if key := cfg.APIKey(); key != "" {
		fmt.Fprintf(w, "API key:  found (%s)\n", logging.SanitizeKey(key))
	} else {
		fmt.Fprintln(w, "API key:  not set")
	}

	caps, err := probeTools(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	printTools(w, caps)
	return nil
}

func probeTools(ctx context.Context, cfg config.Config) (*media.Capabilities, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	exec := media.NewSubprocess(logging.Discard(), false)
	doctor := media.NewDoctor(exec, cfg.FFmpegPath(), cfg.FFprobePath(), cfg.YTDLPPath())
	return doctor.Check(ctx)
}

func printTools(w io.Writer, caps *media.Capabilities) {
	names := make([]string, 0, len(caps.Tools))
	for name := range caps.Tools {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "Tools:")
	for _, name := range names {
		info := caps.Tools[name]
		if info.Available {
			fmt.Fprintf(w, "  %-8s ok       %s\n", name, info.Version)
		} else {
			fmt.Fprintf(w, "  %-8s missing  %s\n", name, info.Error)
		}
	}
}
