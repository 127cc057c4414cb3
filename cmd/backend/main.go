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
	kingpinApp := kingpin.New("portal-backend", "Portal backend - cookie sessions behind a credentialed CORS policy")
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	envFile := kingpinApp.Flag("env-file", "Path to a .env file (default: ./.env if present)").String()
	port := kingpinApp.Flag("port", "HTTP port exposed by the service").String()
	frontendURL := kingpinApp.Flag("frontend-url", "Origin allowed to make credentialed requests").String()
	lenient := kingpinApp.Flag("lenient", "Default missing required settings instead of failing").Bool()
	insecureCookies := kingpinApp.Flag("insecure-cookies", "Send the session cookie over plain HTTP").Bool()
	rateLimitRPSFlag := kingpinApp.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := kingpinApp.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	kingpin.MustParse(kingpinApp.Parse(os.Args[1:]))

	overrides := &config.CLIOverrides{
		ConfigFile:      *configFile,
		EnvFile:         *envFile,
		Lenient:         *lenient,
		InsecureCookies: *insecureCookies,
	}
	if *port != "" {
		overrides.Port = port
	}
	if *frontendURL != "" {
		overrides.FrontendURL = frontendURL
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, loadErr := config.Load(overrides)

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

	app, err := application.New(cfg, logger)
	if err != nil {
		lifecycle.Fail(logger, "failed to initialize application", err)
		return
	}

	if err := app.Start(); err != nil {
		lifecycle.Fail(logger, "failed to start server", err)
		return
	}

	lifecycle.WaitAndShutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
}
