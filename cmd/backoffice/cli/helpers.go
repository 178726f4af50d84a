package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/server"
	"github.com/faucetdb/backoffice/internal/service"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// devJWTSecret signs sessions when no secret is configured. serve warns
// loudly when it is in use.
const devJWTSecret = "backoffice-dev-secret-change-me"

// resolveDataDir returns the data directory from --data-dir flag,
// BACKOFFICE_DATA_DIR env var, database.data_dir, or ~/.backoffice as
// fallback.
func resolveDataDir(cfg *config.YAMLConfig) string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("BACKOFFICE_DATA_DIR"); envDir != "" {
		return envDir
	}
	if cfg != nil && cfg.Database.DataDir != "" {
		return cfg.Database.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".backoffice")
}

// loadConfig reads the config file viper located (if any) and overlays
// BACKOFFICE_* environment variables on top of it.
func loadConfig() (*config.YAMLConfig, error) {
	cfg := config.DefaultYAMLConfig()
	if path := viper.ConfigFileUsed(); path != "" {
		loaded, err := config.LoadYAMLConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	overlay := map[string]*string{
		"auth.jwt_secret":         &cfg.Auth.JWTSecret,
		"auth.jwt_expiry":         &cfg.Auth.JWTExpiry,
		"database.driver":         &cfg.Database.Driver,
		"database.dsn":            &cfg.Database.DSN,
		"logging.level":           &cfg.Logging.Level,
		"logging.format":          &cfg.Logging.Format,
		"server.host":             &cfg.Server.Host,
		"mcp.transport":           &cfg.MCP.Transport,
		"server.shutdown_timeout": &cfg.Server.ShutdownTimeout,
	}
	for key, dst := range overlay {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
	if p := viper.GetInt("server.port"); p > 0 {
		cfg.Server.Port = p
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the administrator store described by cfg. SQLite without
// a DSN lives under the data directory.
func openStore(cfg *config.YAMLConfig) (*config.Store, error) {
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.DSN == "" {
		return config.NewStore(resolveDataDir(cfg))
	}
	return config.Open(cfg.Database.Driver, cfg.Database.DSN)
}

// newLogger builds the process logger. dev forces debug level.
func newLogger(cfg *config.YAMLConfig, dev bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if dev {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Logging.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newServices wires the identity provider and application services onto
// store.
func newServices(cfg *config.YAMLConfig, store *config.Store, logger *slog.Logger) (server.Services, error) {
	expiry, err := cfg.JWTExpiry()
	if err != nil {
		return server.Services{}, err
	}
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = devJWTSecret
	}

	idp := identity.NewStoreProvider(store)
	return server.Services{
		Auth:     service.NewAuthService(store, idp, secret, expiry, logger),
		Admins:   service.NewAdminService(store, idp, logger),
		Settings: service.NewSettingsService(store, logger),
	}, nil
}

// promptPassword reads a password from the terminal without echo. When
// confirm is set the password is asked for twice.
func promptPassword(confirm bool) (string, error) {
	fmt.Print("Password: ")
	pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Println()

	if confirm {
		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()
		if string(pwBytes) != string(confirmBytes) {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return string(pwBytes), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
