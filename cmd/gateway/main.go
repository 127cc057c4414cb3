package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"

	"github.com/eugenenazirov/portal/internal/application"
	"github.com/eugenenazirov/portal/internal/config"
	"github.com/eugenenazirov/portal/internal/lifecycle"
)

func main() {
	kingpinApp := kingpin.New("portal-gateway", "Portal gateway - forwards /api/:path* to the backend and serves the frontend")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a .env file (default: ./.env if present)").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the gateway").String()
	backendURL := kingpinApp.Flag("backend-url", "Backend URL that /api requests are rewritten onto").String()
	staticDir := kingpinApp.Flag("static-dir", "Directory of frontend assets served for non-API paths").String()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.GatewayOverrides{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
	}
	if *port != "" {
		overrides.Port = port
	}
	if *backendURL != "" {
		overrides.BackendURL = backendURL
	}
	if *staticDir != "" {
		overrides.StaticDir = staticDir
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, loadErr := config.LoadGateway(overrides)

	logger, err := lifecycle.NewLogger(cfg.Environment)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() {
		_ = logger.Sync()
	}()

	if loadErr != nil {
		lifecycle.Fail(logger, "failed to load configuration", loadErr)
		return
	}

	app, err := application.NewGateway(cfg, logger)
	if err != nil {
		lifecycle.Fail(logger, "failed to initialize gateway", err)
		return
	}

	if err := app.Start(); err != nil {
		lifecycle.Fail(logger, "failed to start server", err)
		return
	}

	lifecycle.WaitAndShutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}
