// Package main provides the player daemon entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiconnect "github.com/osa030/mpcore/internal/api/connect"
	"github.com/osa030/mpcore/internal/app/cdn"
	"github.com/osa030/mpcore/internal/app/player"
	"github.com/osa030/mpcore/internal/app/session/preload"
	"github.com/osa030/mpcore/internal/infra/config"
	"github.com/osa030/mpcore/internal/infra/logger"
	"github.com/osa030/mpcore/internal/pipeline/sim"
)

var (
	app        = kingpin.New("mpcd", "media player control daemon")
	configPath = app.Flag("config", "Path to config file").Default("config/mpcd.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: from config)").String()
	noReports  = app.Flag("no-reports", "Do not log player report events").Bool()

	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
	versionCmd     = app.Command("version", "Print the version and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the daemon (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if command == versionCmd.FullCommand() {
		fmt.Println(player.Version)
		return
	}

	// Bootstrap logger until the config is loaded
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if _, err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Printf("config ok: addr=%s log=%s/%s max_preload=%d auto_switch=%t\n",
			cfg.Server.Addr, cfg.Log.Output, cfg.Log.Level, cfg.Preload.MaxSessions, cfg.CDN.AutoSwitch)
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Daemon error: %v", err)
		os.Exit(1)
	}
}

// runtimeConfig builds the player runtime settings from the file config and flags.
func runtimeConfig(cfg *config.Config) player.RuntimeConfig {
	logCfg := logger.Config{
		Output:    cfg.Log.Output,
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		Dir:       cfg.Log.Dir,
		MaxSizeKB: cfg.Log.MaxSizeKB,
	}
	// Override with command-line flags if specified
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logfile != "" {
		logCfg.Output = "file"
		logCfg.File = *logfile
	}

	return player.RuntimeConfig{
		Log: logCfg,
		Player: player.Config{
			PositionInterval: cfg.Player.PositionInterval,
			Volume:           cfg.Player.Volume,
			LoopCount:        cfg.Player.LoopCount,
			Preload:          preload.Config{MaxSessions: cfg.Preload.MaxSessions},
			CDN: cdn.Config{
				AutoSwitch:     cfg.CDN.AutoSwitch,
				SwitchInterval: cfg.CDN.SwitchInterval,
				WarnAhead:      cfg.CDN.WarnAhead,
				Grace:          cfg.CDN.Grace,
			},
		},
	}
}

// engineConfig builds the simulated media engine settings.
func engineConfig(cfg *config.Config) sim.Config {
	out := sim.Config{
		OpenDelay:      cfg.Pipeline.OpenDelay,
		SeekDelay:      cfg.Pipeline.SeekDelay,
		SwitchDelay:    cfg.Pipeline.SwitchDelay,
		Duration:       cfg.Pipeline.Duration,
		AutoEOF:        cfg.Pipeline.AutoEOF,
		FrameInterval:  cfg.Pipeline.FrameInterval,
		BufferInterval: cfg.Pipeline.BufferInterval,
	}
	if cfg.Pipeline.Live {
		out.Duration = 0
	}
	if cfg.Pipeline.SnapshotDir != "" {
		out.Fs = afero.NewBasePathFs(afero.NewOsFs(), cfg.Pipeline.SnapshotDir)
	}
	return out
}

// run executes the main daemon logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	runtime, err := player.NewRuntime(runtimeConfig(cfg), sim.New(engineConfig(cfg)))
	if err != nil {
		return fmt.Errorf("failed to create player runtime: %w", err)
	}

	playerService := apiconnect.NewPlayerService(runtime, !*noReports)

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(apiconnect.NewRouter(playerService, cfg.Admin.Token), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)
	serverStartedCh := make(chan struct{})

	go func() {
		zlog.Info().Msgf("Starting daemon: addr=%s version=%s", cfg.Server.Addr, player.Version)
		// Signal that we're about to start listening
		close(serverStartedCh)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for server to start listening
	<-serverStartedCh
	// Give the server a moment to fully initialize
	time.Sleep(100 * time.Millisecond)

	// Execute startup hook if configured (after server is running)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// End subscription streams first so Shutdown does not wait on them
	playerService.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	if err := runtime.Close(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to release players: %v", err)
	}

	zlog.Info().Msg("Daemon stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return serveErr
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
