package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rhythmnet/beatsync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run <server> [songPath...]",
	Short: "Sync against a content server",
	Long: "Connect to a content server, fetch the given song bundles into the " +
		"local cache, and keep the session open until interrupted. The score " +
		"record is uploaded during the disconnect handshake.",
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runCovers  []string
	runScores  bool
	runTimeout time.Duration
)

func init() {
	runCmd.Flags().StringSliceVar(&runCovers, "cover", nil, "album cover path to fetch (repeatable)")
	runCmd.Flags().BoolVar(&runScores, "scores", false, "send UploadScores once all fetches complete")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 5*time.Minute, "overall deadline for outstanding fetches (0 waits indefinitely)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	s := beatsync.New(
		beatsync.WithCacheDir(getCacheDir()),
		beatsync.WithLogger(logger),
		beatsync.WithAckTimeout(viper.GetDuration("ack_timeout")),
		beatsync.WithReadTimeout(viper.GetDuration("read_timeout")),
	)

	pending := len(args) - 1 + len(runCovers)
	done := make(chan struct{})
	s.OnSignal(func(sig beatsync.Signal) {
		switch sig.Kind {
		case beatsync.DownloadComplete:
			fmt.Fprintf(os.Stderr, "song ready: %s\n", sig.ID)
		case beatsync.AlbumCoverComplete:
			fmt.Fprintf(os.Stderr, "cover ready: %s\n", sig.ID)
		}
		pending--
		if pending == 0 {
			close(done)
		}
	})

	if err := s.Start(args[0]); err != nil {
		return err
	}

	for _, path := range args[1:] {
		if err := s.RequestDownload(path); err != nil {
			return err
		}
	}
	for _, path := range runCovers {
		if err := s.RequestAlbumCover(path); err != nil {
			return err
		}
	}

	// drain signals at a fixed cadence until everything requested landed,
	// the session dies, the overall deadline expires, or the process is
	// interrupted (the session's own shutdown hook runs Stop on
	// SIGINT/SIGTERM). An item dropped by per-item recovery never completes,
	// so the deadline is what gets the command unstuck.
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	var expired <-chan time.Time
	if runTimeout > 0 {
		timer := time.NewTimer(runTimeout)
		defer timer.Stop()
		expired = timer.C
	}
	if pending > 0 {
	wait:
		for {
			select {
			case <-s.Done():
				break wait
			case <-done:
				break wait
			case <-expired:
				s.Stop()
				return fmt.Errorf("timed out with %d fetches outstanding", pending)
			case <-tick.C:
				s.CheckForSignals()
				if err := s.Err(); err != nil {
					return err
				}
			}
		}
	}

	if runScores {
		if err := s.WriteScores(); err != nil {
			return err
		}
	}

	return s.Stop()
}
