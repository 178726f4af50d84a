package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/backoffice/internal/server"
)

const banner = `
 ___          _          __  __ _
| _ ) __ _ __| |__ ___  / _|/ _(_)__ ___
| _ \/ _' / _| / // _ \|  _|  _| / _/ -_)
|___/\__,_\__|_\_\\___/|_| |_| |_\__\___|
`

func newServeCmd() *cobra.Command {
	var (
		port        int
		host        string
		dev         bool
		noRateLimit bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the administrator API server",
		Long:  "Start the HTTP server that exposes the administrator management API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev, noRateLimit)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (debug logging)")
	cmd.Flags().BoolVar(&noRateLimit, "no-rate-limit", false, "Disable API and login rate limits")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev, noRateLimit bool) error {
	fmt.Print(banner)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, dev)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	logger.Info("store initialized", "driver", store.Driver())

	svc, err := newServices(cfg, store, logger)
	if err != nil {
		store.Close()
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is not set; using the development secret (set BACKOFFICE_AUTH_JWT_SECRET)")
	}

	hasAdmin, err := store.HasAnyAdmin(context.Background())
	if err != nil {
		logger.Warn("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		logger.Warn("no administrator found - run: backoffice admin bootstrap --email you@example.com")
	}

	shutdown, err := cfg.ShutdownTimeout()
	if err != nil {
		store.Close()
		return err
	}
	srvCfg := server.Config{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ShutdownTimeout:    shutdown,
		CORSOrigins:        cfg.Server.CORS.Origins,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		LoginLimitPerMin:   cfg.Server.LoginLimitPerMin,
		Version:            versionString(),
	}
	if noRateLimit {
		srvCfg.RateLimitPerMinute = 0
		srvCfg.LoginLimitPerMin = 0
	}

	srv := server.New(srvCfg, store, svc, logger)

	fmt.Printf("→ Backoffice %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", srvCfg.Host, srvCfg.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", srvCfg.Host, srvCfg.Port)
	fmt.Println()

	return srv.ListenAndServe()
}
