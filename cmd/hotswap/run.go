package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zapio"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/wippyai/hotswap/config"
	"github.com/wippyai/hotswap/engine"
	"github.com/wippyai/hotswap/host"
	"github.com/wippyai/hotswap/loader"
	"github.com/wippyai/hotswap/telemetry"
	"github.com/wippyai/hotswap/ui"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "load the unit, render it and reload on every rebuild",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "artifact directory"},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "unit name"},
			&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Usage: "build profile subdirectory (debug, release)"},
			&cli.DurationFlag{Name: "poll", Usage: "artifact poll interval"},
			&cli.DurationFlag{Name: "call-timeout", Usage: "bound on each update/view call (0 disables)"},
			&cli.StringFlag{Name: "cache-dir", Usage: "persist compiled units here"},
			&cli.StringFlag{Name: "otlp-endpoint", Usage: "export traces to this OTLP/HTTP URL"},
			&cli.BoolFlag{Name: "interpreter", Usage: "use the wazero interpreter instead of the compiler"},
			&cli.BoolFlag{Name: "headless", Usage: "log views instead of drawing a terminal UI"},
		},
		Action: run,
	}
}

// loadConfig layers defaults, file, environment and the flags set on c.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.IsSet("dir") {
		cfg.Dir = c.String("dir")
	}
	if c.IsSet("name") {
		cfg.Name = c.String("name")
	}
	if c.IsSet("profile") {
		cfg.Profile = c.String("profile")
	}
	if c.IsSet("poll") {
		cfg.PollInterval = c.Duration("poll")
	}
	if c.IsSet("call-timeout") {
		cfg.CallTimeout = c.Duration("call-timeout")
	}
	if c.IsSet("cache-dir") {
		cfg.CacheDir = c.String("cache-dir")
	}
	if c.IsSet("otlp-endpoint") {
		cfg.TraceEndpoint = c.String("otlp-endpoint")
	}
	if c.IsSet("interpreter") {
		cfg.Interpreter = c.Bool("interpreter")
	}
	if c.IsSet("headless") {
		cfg.Headless = c.Bool("headless")
	}
	return cfg, cfg.Validate()
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	interactive := !cfg.Headless &&
		term.IsTerminal(int(os.Stdout.Fd())) &&
		term.IsTerminal(int(os.Stdin.Fd()))

	logger, err := config.NewLogger(cfg, interactive)
	if err != nil {
		return err
	}
	defer logger.Sync()
	engine.SetLogger(logger.Named("engine"))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.TraceEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.WithoutCancel(ctx))

	guest := logger.Named("guest")
	stdout := &zapio.Writer{Log: guest, Level: zapcore.InfoLevel}
	stderr := &zapio.Writer{Log: guest, Level: zapcore.WarnLevel}
	defer stdout.Close()
	defer stderr.Close()

	ecfg := cfg.EngineConfig()
	ecfg.Stdout, ecfg.Stderr = stdout, stderr
	eng, err := engine.New(ctx, ecfg)
	if err != nil {
		return err
	}
	defer eng.Close(context.WithoutCancel(ctx))

	loc := cfg.Location()
	ld := loader.New(eng, loc, cfg.LoaderOptions(logger.Named("loader")))
	logger.Info("starting",
		zap.String("artifact", loc.Path()),
		zap.Duration("poll", cfg.PollInterval),
		zap.Bool("tui", interactive))

	if !interactive {
		rt := host.New(ld, host.NewLogRenderer(logger), cfg.HostOptions(logger.Named("host")))
		return rt.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tui := ui.New(ctx, ui.Options{Path: loc.Path(), AltScreen: true})
	rt := host.New(ld, tui, cfg.HostOptions(logger.Named("host")))
	tui.Bind(rt)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer tui.Quit()
		return rt.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run()
	})
	return g.Wait()
}
