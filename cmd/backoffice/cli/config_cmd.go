package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/faucetdb/backoffice/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage backoffice configuration",
		Long:  "Initialize a default configuration file or display the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default backoffice.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config file")
	cmd.Flags().StringVarP(&path, "output", "o", "backoffice.yaml", "Path of the file to write")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n", path)
	fmt.Fprintln(out, "Set auth.jwt_secret (or BACKOFFICE_AUTH_JWT_SECRET), then run 'backoffice admin bootstrap'.")
	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	var showSecrets bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, showSecrets)
		},
	}

	cmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print the JWT secret and database DSN unmasked")

	return cmd
}

func runConfigShow(cmd *cobra.Command, showSecrets bool) error {
	out := cmd.OutOrStdout()

	if configFile := viper.ConfigFileUsed(); configFile != "" {
		fmt.Fprintf(out, "# Config file: %s\n", configFile)
	} else {
		fmt.Fprintln(out, "# Config file: (none found, using defaults)")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !showSecrets {
		cfg.Auth.JWTSecret = mask(cfg.Auth.JWTSecret)
		cfg.Database.DSN = mask(cfg.Database.DSN)
	}
	if cfg.Database.Driver == config.DriverSQLite && cfg.Database.DataDir == "" {
		cfg.Database.DataDir = resolveDataDir(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprint(out, string(data))

	// BACKOFFICE_* variables present in the environment.
	var envKeys []string
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "BACKOFFICE_") {
			envKeys = append(envKeys, key)
		}
	}
	if len(envKeys) > 0 {
		sort.Strings(envKeys)
		fmt.Fprintln(out, "# Environment overrides:")
		for _, k := range envKeys {
			fmt.Fprintf(out, "#   %s\n", k)
		}
	}
	return nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
