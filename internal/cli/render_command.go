package cli

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/spf13/cobra"

	"auralis.click/internal/output"
	"auralis.click/internal/tracking"
)

// renderFlags hold the options of the render command
type renderFlags struct {
	scene     sceneOptions
	out       string
	seconds   float64
	tickRate  float64
	precision int
}

// addSceneFlags registers the flags shared by render and play
func addSceneFlags(cmd *cobra.Command, opts *sceneOptions) {
	cmd.Flags().StringArrayVar(&opts.Sources, "source", nil, "Positioned sound as path@x,y,z (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Ambients, "ambient", nil, "Ambient bed as path[@x,y,z[:radius]] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Reverbs, "reverb", nil, "Reverb impulse response as path[@x,y,z[:radius]] (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Packs, "pack", nil, "Asset pack manifest mapping names to files (repeatable)")
	cmd.Flags().Float64Var(&opts.Orbit, "orbit", 0, "Rotate sources around the listener at this many revolutions per second")
	cmd.Flags().BoolVar(&opts.Loop, "loop", true, "Loop sources")
	cmd.Flags().StringVar(&opts.HRTFPath, "hrtf", "", "Directory holding hrtf.json (default: config hrtf_path or built-in head model)")
}

// newRenderCommand creates the render command
func newRenderCommand() *cobra.Command {
	var flags renderFlags

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a scene to a WAV file",
		Long: `Render a scene offline to a stereo WAV file.

Sources are placed relative to a listener at the origin facing +Z with +Y up.
Asset names are looked up in asset packs first (asset_packs in the config,
then --pack), then as paths relative to the working directory, the configured
asset_paths and the XDG data directories.

Examples:
  auralis render --source rain.wav@2,0,1 --out out.wav
  auralis render --source bird.ogg@0,3,5 --ambient forest.mp3 --reverb hall.wav --seconds 10
  auralis render --source engine.wav@0,0,4 --orbit 0.25 --out orbit.wav
  auralis render --pack forest.json --source owl@-3,2,4 --ambient wind`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, flags)
		},
	}

	addSceneFlags(cmd, &flags.scene)
	cmd.Flags().StringVarP(&flags.out, "out", "o", "out.wav", "Output WAV file")
	cmd.Flags().Float64Var(&flags.seconds, "seconds", 5, "Length of the render in seconds")
	cmd.Flags().Float64Var(&flags.tickRate, "tick-rate", 60, "Scene updates per second")
	cmd.Flags().IntVar(&flags.precision, "precision", 2, "WAV sample width in bytes (2 or 3)")

	return cmd
}

func runRender(cmd *cobra.Command, flags renderFlags) error {
	slog.Debug("running render command", "out", flags.out, "seconds", flags.seconds)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	if !(flags.seconds > 0) || math.IsInf(flags.seconds, 0) {
		return fmt.Errorf("--seconds must be positive, got %v", flags.seconds)
	}
	if !(flags.tickRate > 0) {
		return fmt.Errorf("--tick-rate must be positive, got %v", flags.tickRate)
	}
	if flags.precision != 2 && flags.precision != 3 {
		return fmt.Errorf("--precision must be 2 or 3, got %d", flags.precision)
	}
	if flags.scene.HRTFPath == "" {
		flags.scene.HRTFPath = cli.config.HRTFPath
	}

	cfg := cli.config
	rec := cli.startRecorder(tracking.SessionInfo{
		Mode:       "render",
		Backend:    "wav",
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

	rate := sc.eng.SampleRate()
	frames := int64(math.Round(flags.seconds * float64(rate)))
	tickFrames := max(1, int(math.Round(float64(rate)/flags.tickRate)))

	f, err := cli.fs.Create(flags.out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", flags.out, err)
	}
	defer f.Close()

	progress := cli.newProgress(cmd.ErrOrStderr(), frames)
	start := time.Now()

	err = output.RenderToWAV(f, sc.eng, output.OfflineOptions{
		Frames:     frames,
		TickFrames: tickFrames,
		OnTick: func(frame int64) {
			sc.Tick(frame)
			progress.Update(frame)
		},
		Precision: flags.precision,
	})
	progress.Done()
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", flags.out, err)
	}

	stats := sc.eng.Stats()
	if rec != nil {
		rec.RecordStats(tracking.StatsFromEngine(stats))
	}

	elapsed := time.Since(start)
	slog.Info("render finished",
		"out", flags.out,
		"frames", frames,
		"elapsed", elapsed,
		"blocks", stats.Blocks,
		"max_block_time", stats.MaxBlockTime)

	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %.2fs to %s (%d Hz, %s)\n",
		float64(frames)/float64(rate), flags.out, rate, elapsed.Round(time.Millisecond))
	return nil
}
