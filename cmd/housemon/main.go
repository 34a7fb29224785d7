package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"codeberg.org/mutker/housemon/internal/config"
	"codeberg.org/mutker/housemon/internal/consumer"
	"codeberg.org/mutker/housemon/internal/errors"
	"codeberg.org/mutker/housemon/internal/history"
	"codeberg.org/mutker/housemon/internal/logger"
	"codeberg.org/mutker/housemon/internal/notify"
	"codeberg.org/mutker/housemon/internal/pid"
	"codeberg.org/mutker/housemon/internal/poller"
	"codeberg.org/mutker/housemon/internal/publish"
	"codeberg.org/mutker/housemon/internal/record"
	"codeberg.org/mutker/housemon/internal/report"
	"codeberg.org/mutker/housemon/internal/sensor"
	"codeberg.org/mutker/housemon/internal/shutdown"
	"codeberg.org/mutker/housemon/internal/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	if cfg.WriteConfig != "" {
		if err := config.WriteExample(cfg.WriteConfig); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			return 1
		}
		fmt.Printf("Example configuration written to %s\n", cfg.WriteConfig)
		return 0
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	if err := logger.Init(cfg.Level(), logger.IsService(), cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}
	defer logger.Close()

	logger.Debug().Str("config_file", cfg.ConfigFile).Msg("Config loaded")

	if cfg.RenderOnce {
		if err := report.New(cfg.ReportConfig()).RenderFile(cfg.File); err != nil {
			logError(err, "Failed to render report")
			return 1
		}
		logger.Info().Str("file", cfg.File).Msg("Report rendered")
		return 0
	}

	if err := monitor(cfg); err != nil {
		logError(err, "Monitor stopped with error")
		return 1
	}

	logger.Info().Msg("Exiting...")
	return 0
}

// monitor runs the poll loop and its consumers until shutdown.
func monitor(cfg *config.Config) error {
	errFactory := errors.New()

	pidPath := pid.Path(cfg.File)
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Warn().Err(err).Str("path", pidPath).Msg("Failed to remove PID file")
		}
	}()

	source, err := sensor.New(cfg.SensorConfig())
	if err != nil {
		return err
	}
	defer source.Close()

	window, err := history.NewWindow(cfg.Delay)
	if err != nil {
		return err
	}

	store, err := record.Open(cfg.File)
	if err != nil {
		return err
	}
	if rotated := store.Rotated(); rotated != "" {
		logger.Info().Str("path", rotated).Msg("Previous record file rotated")
	}

	stop := shutdown.New()
	notifier := notify.New()
	go handleSignals(stop)

	loop, err := poller.New(cfg.PollerConfig(), poller.Deps{
		Source:   source,
		Store:    store,
		Window:   window,
		Shutdown: stop,
		Notifier: notifier,
	})
	if err != nil {
		return err
	}

	handlers, closeHandlers := buildHandlers(cfg)
	defer closeHandlers()

	logger.Info().
		Str("sensor", source.Name()).
		Str("file", store.Path()).
		Int("consumers", len(handlers)).
		Msg("Starting monitor")

	g, ctx := errgroup.WithContext(context.Background())

	runners := make([]*consumer.Runner, 0, len(handlers))
	for _, h := range handlers {
		runners = append(runners, consumer.New(store.Path(), h, notifier, stop))
	}

	g.Go(func() error {
		defer stop.Set()
		if err := loop.Run(); err != nil {
			return errFactory.Wrap(errors.ErrPollLoop, err)
		}
		// The cycle limit was reached: let every consumer see the last
		// records before the flag stops them.
		if !stop.IsSet() {
			for _, r := range runners {
				r.Drain(ctx)
			}
		}
		return nil
	})

	for _, r := range runners {
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	return g.Wait()
}

// buildHandlers constructs the enabled downstream consumers. Optional
// outputs that fail to start are logged and left out.
func buildHandlers(cfg *config.Config) ([]consumer.Handler, func()) {
	var (
		handlers []consumer.Handler
		closers  []func() error
	)

	if cfg.Report.Enabled {
		handlers = append(handlers, report.New(cfg.ReportConfig()))
	}

	if cfg.Telemetry.Enabled {
		mirror, err := telemetry.NewService(cfg.TelemetryConfig())
		if err != nil {
			logError(err, "Telemetry disabled")
		} else {
			handlers = append(handlers, mirror)
			closers = append(closers, mirror.Close)
		}
	}

	if cfg.MQTT.Enabled {
		publisher, err := publish.New(cfg.PublishConfig())
		if err != nil {
			logError(err, "MQTT publishing disabled")
		} else {
			handlers = append(handlers, publisher)
			closers = append(closers, publisher.Close)
		}
	}

	return handlers, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close consumer")
			}
		}
	}
}

func handleSignals(stop *shutdown.Controller) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal.")
		stop.Set()
	case <-stop.Done():
	}
}

func logError(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
