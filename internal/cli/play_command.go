package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"auralis.click/internal/tracking"
)

// statsInterval is how often a live session writes its counters
const statsInterval = 5 * time.Second

type playFlags struct {
	scene    sceneOptions
	seconds  float64
	tickRate float64
	volume   float64
	backend  string
}

// newPlayCommand creates the play command
func newPlayCommand() *cobra.Command {
	var flags playFlags

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a scene on the audio device",
		Long: `Play a scene live on the default audio device.

Playback runs until --seconds elapse or the process is interrupted.
The backend is chosen from --backend, the output_backend config value or
AURALIS_OUTPUT; "auto" prefers malgo and falls back to oto (oto first under WSL).

Examples:
  auralis play --source rain.wav@2,0,1
  auralis play --source engine.wav@0,0,4 --orbit 0.1 --reverb hall.wav
  auralis play --ambient forest.ogg --seconds 30 --volume 0.5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, flags)
		},
	}

	addSceneFlags(cmd, &flags.scene)
	cmd.Flags().Float64Var(&flags.seconds, "seconds", 0, "Stop after this many seconds (0 = until interrupted)")
	cmd.Flags().Float64Var(&flags.tickRate, "tick-rate", 60, "Scene updates per second")
	cmd.Flags().Float64Var(&flags.volume, "volume", 1, "Output volume (0.0 to 1.0)")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "Output backend (auto, malgo, oto)")

	return cmd
}

func runPlay(cmd *cobra.Command, flags playFlags) error {
	slog.Debug("running play command", "seconds", flags.seconds, "backend", flags.backend)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if flags.seconds < 0 || math.IsNaN(flags.seconds) || math.IsInf(flags.seconds, 0) {
		return fmt.Errorf("--seconds must not be negative, got %v", flags.seconds)
	}
	if !(flags.tickRate > 0) {
		return fmt.Errorf("--tick-rate must be positive, got %v", flags.tickRate)
	}
	if !(flags.volume >= 0 && flags.volume <= 1) {
		return fmt.Errorf("--volume must be between 0.0 and 1.0, got %v", flags.volume)
	}

	cfg := cli.config
	backendType := flags.backend
	if backendType == "" {
		backendType = cfg.OutputBackend
	}
	if !cli.factory().IsValidBackendType(backendType) {
		return fmt.Errorf("unknown backend %q, supported: %v", backendType, cli.factory().GetSupportedBackends())
	}
	if flags.scene.HRTFPath == "" {
		flags.scene.HRTFPath = cfg.HRTFPath
	}

	backend, err := cli.factory().CreateBackend(backendType)
	if err != nil {
		return fmt.Errorf("failed to open audio output: %w", err)
	}
	defer backend.Close()

	rec := cli.startRecorder(tracking.SessionInfo{
		Mode:       "play",
		Backend:    backend.Name(),
		SampleRate: cfg.Engine.SampleRate,
		BlockSize:  cfg.Engine.BlockSize,
		HRTFSource: hrtfSource(flags.scene.HRTFPath),
	})
	if rec != nil {
		defer rec.End()
	}

	sc, err := buildScene(cli.assets, cli.configManager, cfg, flags.scene, rec)
	if err != nil {
		return err
	}
	defer sc.Close()

	if err := backend.SetVolume(float32(flags.volume)); err != nil {
		return err
	}

	// publish the initial scene before the device pulls its first block
	sc.Tick(0)
	if err := backend.Start(sc.eng); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if flags.seconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(flags.seconds*float64(time.Second)))
		defer cancel()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Playing on %s at %d Hz, press Ctrl+C to stop\n", backend.Name(), sc.eng.SampleRate())

	simulate(ctx, sc, time.Duration(float64(time.Second)/flags.tickRate), func() {
		if rec != nil {
			rec.RecordStats(tracking.StatsFromEngine(sc.eng.Stats()))
		}
	})

	if err := backend.Stop(); err != nil {
		slog.Warn("failed to stop backend", "error", err)
	}

	stats := sc.eng.Stats()
	if rec != nil {
		rec.RecordStats(tracking.StatsFromEngine(stats))
	}
	slog.Info("playback finished",
		"blocks", stats.Blocks,
		"overruns", stats.Overruns,
		"skipped_swaps", stats.SkippedSwaps,
		"max_block_time", stats.MaxBlockTime)
	return nil
}

// simulate ticks the scene at the engine's current audio frame until ctx is
// done, calling flush every statsInterval
func simulate(ctx context.Context, sc *scene, period time.Duration, flush func()) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	lastFlush := time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("simulation loop stopped", "reason", context.Cause(ctx))
			return
		case now := <-ticker.C:
			sc.Tick(sc.eng.Frame())
			if now.Sub(lastFlush) >= statsInterval {
				flush()
				lastFlush = now
			}
		}
	}
}
