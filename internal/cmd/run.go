package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dimctl/internal/config"
	"dimctl/internal/ddc"
	"dimctl/internal/engine"
	"dimctl/internal/ipc"
	"dimctl/internal/logger"
	"dimctl/internal/pid"
	"dimctl/internal/sensor"
	"dimctl/internal/telemetry"
)

func init() {
	runCmd.Flags().Bool("debug", false, "enable debug logging")
	runCmd.Flags().Bool("verbose", false, "enable verbose logging")
	runCmd.Flags().String("log-level", config.DefaultLogLevel, "log level (debug, info, warning, error)")
	runCmd.Flags().Int("interval", config.DefaultPollInterval, "seconds between sensor polls")
	runCmd.Flags().Bool("telemetry", false, "record state transitions to the telemetry database")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the brightness daemon",
	Long: `Run the daemon in the foreground. It polls user idle time and media
playback once per interval, dims connected displays after the idle
timeout, and serves manual overrides on the control socket.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	if err := config.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := pid.Write(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("pid file cleanup failed")
		}
	}()

	collector, err := telemetry.NewService(telemetry.Config{
		Enabled: cfg.Telemetry,
		DBPath:  cfg.TelemetryDB,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := collector.Close(); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	driver := ddc.NewDriver(
		ddc.NewMultiTransport(ddc.NewDDCUtilTransport(), ddc.NewBacklightTransport()),
		ddc.DefaultConfig(),
	)
	eng := engine.New(cfg, driver, buildPoller(cfg), collector)
	server := ipc.NewServer(socketPath(cfg), eng)

	config.Watch(func(next *config.Config) {
		eng.Reconfigure(next)
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return server.Serve(ctx) })

	logger.Info().Int("interval", cfg.PollInterval).Msg("daemon started")
	err = g.Wait()
	logger.Info().Msg("Exiting...")

	return err
}

// buildPoller wires whatever sensors the session offers. A missing bus
// or sound server downgrades the poller instead of failing startup.
func buildPoller(cfg *config.Config) *sensor.Poller {
	var idle sensor.IdleSource
	idle, err := sensor.NewDBusIdleSource()
	if err != nil {
		logger.Warn().Err(err).Msg("idle sensor unavailable, displays will not auto-dim")
		idle = sensor.AlwaysActiveIdle{}
	}

	var media []sensor.MediaSource
	if src, err := sensor.NewMPRISMediaSource(cfg.IgnoredMediaPlayers); err != nil {
		logger.Warn().Err(err).Msg("mpris media sensor unavailable")
	} else {
		media = append(media, src)
	}
	if src, err := sensor.NewPulseMediaSource(cfg.IgnoredMediaPlayers); err != nil {
		logger.Warn().Err(err).Msg("pulseaudio media sensor unavailable")
	} else {
		media = append(media, src)
	}

	return sensor.NewPoller(idle, media...)
}

func socketPath(cfg *config.Config) string {
	if cfg.Socket != "" {
		return cfg.Socket
	}

	return config.DefaultSocketPath()
}
