package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/crypto"
	"github.com/michal-majer/s4kit/internal/ratelimit"
	"github.com/michal-majer/s4kit/internal/sap"
	"github.com/michal-majer/s4kit/internal/securelog"
	"github.com/michal-majer/s4kit/internal/server"
	"github.com/michal-majer/s4kit/internal/service"
	"github.com/michal-majer/s4kit/internal/telemetry"
)

const banner = `
 ___ _ _  _  _____ _____
/ __| | || |/ / _ \_   _|
\__ \_  _| ' <| | | || |
|___/ |_||_|\_\_|_/ |_|
`

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the S4Kit proxy server",
		Long:  "Start the HTTP server that mediates API-key requests to the configured SAP OData services.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(host, port, dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging, ephemeral encryption key)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(host string, port int, dev bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg := loadYAML()

	// Set up logger
	logLevel := slog.LevelInfo
	if dev || cfg.Logging.Level == "debug" {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)

	// 1. Config store (SQLite)
	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("init config store: %w", err)
	}
	defer store.Close()
	logger.Info("config store initialized", "path", resolveDataDir())

	// 2. Credential encryptor
	enc, err := newEncryptor(cfg)
	if err != nil {
		if !dev {
			return err
		}
		// Dev mode: ephemeral key. Credentials sealed under it are lost on
		// restart.
		hexKey, kerr := crypto.GenerateKey()
		if kerr != nil {
			return fmt.Errorf("generate ephemeral key: %w", kerr)
		}
		enc, err = crypto.NewEncryptor(hexKey)
		if err != nil {
			return err
		}
		logger.Warn("no encryption key configured, using ephemeral dev key")
	}

	// 3. Secure log store
	logs, err := securelog.Open(cfg.SecureLog.Driver, cfg.SecureLog.DSN)
	if err != nil {
		return fmt.Errorf("init secure log: %w", err)
	}
	defer logs.Close()
	logger.Info("secure log initialized", "driver", cfg.SecureLog.Driver)

	// 4. Rate limiter: shared Redis counters when configured, otherwise
	// in-process windows (single-node only).
	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		limiter = ratelimit.NewRedisLimiter(client)
		logger.Info("rate limiter using redis", "addr", cfg.Redis.Addr)
	} else {
		limiter = ratelimit.NewMemoryLimiter()
		logger.Info("rate limiter using in-process counters")
	}

	// 5. Outbound SAP plumbing
	tokenTimeout := parseDuration(cfg.Proxy.TokenTimeout, 10*time.Second)
	requestTimeout := parseDuration(cfg.Proxy.RequestTimeout, 30*time.Second)
	tokens := sap.NewTokenCache(tokenTimeout)
	forward := sap.NewForwarder(requestTimeout, tokens, logger)

	// 6. Auth service
	jwtSecret := cfg.Auth.JWTSecret
	if v := viper.GetString("auth.jwt_secret"); v != "" {
		jwtSecret = v
	}
	if jwtSecret == "" {
		if !dev {
			return fmt.Errorf("no JWT secret configured: set S4KIT_AUTH_JWT_SECRET or auth.jwt_secret")
		}
		jwtSecret = "s4kit-dev-secret-change-me"
		logger.Warn("no JWT secret configured, using dev default")
	}
	authSvc := service.NewAuthService(store, jwtSecret)

	// 7. First-run check
	hasAdmin, err := store.HasAnyAdmin(context.Background())
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no admin account found - run: s4kit admin create")
	}

	// 8. Telemetry
	tracker := telemetry.New(context.Background(), store, telemetryProps(store))
	tracker.Start()
	defer tracker.Shutdown()

	// 9. Build and start HTTP server
	srvCfg := server.Config{
		Host:            host,
		Port:            port,
		ShutdownTimeout: parseDuration(cfg.Server.ShutdownTimeout, 30*time.Second),
		CORSOrigins:     cfg.Server.CORS.Origins,
		APIKeyHeader:    cfg.Auth.APIKeyHeader,
		AdminRatePerMin: 120,
		ExternalBaseURL: fmt.Sprintf("http://%s:%d", host, port),
	}
	if srvCfg.APIKeyHeader == "" {
		srvCfg.APIKeyHeader = "X-API-Key"
	}
	deps := server.Deps{
		Store:    store,
		Logs:     logs,
		AuthSvc:  authSvc,
		Perms:    service.NewPermissionService(store),
		Limiter:  limiter,
		Resolver: sap.NewResolver(enc),
		Forward:  forward,
		Enc:      enc,
	}
	srv := server.New(srvCfg, deps, logger)

	fmt.Printf("→ S4Kit %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", host, port)
	fmt.Printf("→ OpenAPI:  http://%s:%d/openapi.json\n", host, port)
	fmt.Printf("→ Health:   http://%s:%d/healthz\n", host, port)
	fmt.Println()
	telemetry.PrintNotice()

	return srv.ListenAndServe()
}

// telemetryProps gathers aggregate counts for the heartbeat. Only counts
// leave the process, never names, URLs, or credentials.
func telemetryProps(store *config.Store) telemetry.PropertiesFunc {
	return func() telemetry.Properties {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		props := telemetry.Properties{
			Version:   appVersion,
			GoVersion: runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
		}
		systems, err := store.ListSystems(ctx)
		if err != nil {
			return props
		}
		props.Systems = len(systems)
		for _, sys := range systems {
			instances, err := store.ListInstances(ctx, sys.ID)
			if err != nil {
				continue
			}
			props.Instances += len(instances)
			for _, inst := range instances {
				bindings, err := store.ListInstanceServices(ctx, inst.ID)
				if err != nil {
					continue
				}
				props.InstanceServices += len(bindings)
			}
		}
		if apiKeys, err := store.ListAPIKeys(ctx); err == nil {
			props.APIKeys = len(apiKeys)
		}
		if admins, err := store.ListAdmins(ctx); err == nil {
			props.Admins = len(admins)
		}
		return props
	}
}
