package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/backoffice/internal/config"
	"github.com/faucetdb/backoffice/internal/model"
	"github.com/faucetdb/backoffice/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrators",
		Long: `Bootstrap, list, create and delete administrators.

create and delete act on behalf of an existing administrator (--as) and are
subject to the same role checks as the HTTP API.`,
	}

	cmd.AddCommand(newAdminBootstrapCmd())
	cmd.AddCommand(newAdminListCmd())
	cmd.AddCommand(newAdminCreateCmd())
	cmd.AddCommand(newAdminDeleteCmd())

	return cmd
}

// withAdminService opens the configured store and runs fn with an
// AdminService bound to it. CLI output stays quiet: only warnings are logged.
func withAdminService(fn func(ctx context.Context, admins *service.AdminService) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Logging.Level = "warn"
	logger := newLogger(cfg, false)

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	svc, err := newServices(cfg, store, logger)
	if err != nil {
		return err
	}
	return fn(context.Background(), svc.Admins)
}

// ---------- admin bootstrap ----------

func newAdminBootstrapCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the first super_admin",
		Long:  "Create the first super_admin. Refuses once any administrator exists.",
		Example: `  backoffice admin bootstrap --email owner@example.com
  backoffice admin bootstrap --email owner@example.com --password secret123`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := promptPassword(true)
				if err != nil {
					return err
				}
				password = pw
			}
			return withAdminService(func(ctx context.Context, admins *service.AdminService) error {
				admin, err := admins.Bootstrap(ctx, email, password, name)
				if errors.Is(err, service.ErrAlreadyBootstrapped) {
					return fmt.Errorf("an administrator already exists; use 'backoffice admin create --as <email>'")
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created super_admin %q (id %d)\n", admin.Email, admin.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.MarkFlagRequired("email")

	return cmd
}

// ---------- admin list ----------

func newAdminListCmd() *cobra.Command {
	var (
		as         string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all administrators",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdminService(func(ctx context.Context, admins *service.AdminService) error {
				actor, err := admins.ResolveActorByEmail(ctx, as)
				if err != nil {
					return fmt.Errorf("resolve --as %q: %w", as, err)
				}
				list, err := admins.List(ctx, actor)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd.OutOrStdout(), list)
				}
				printAdmins(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Email of the administrator performing the listing (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagRequired("as")

	return cmd
}

func printAdmins(w io.Writer, admins []model.Admin) {
	if len(admins) == 0 {
		fmt.Fprintln(w, "No administrators. Use 'backoffice admin bootstrap' to create one.")
		return
	}

	fmt.Fprintf(w, "%-6s %-30s %-24s %-12s %-5s %s\n", "ID", "EMAIL", "NAME", "ROLE", "LEVEL", "CREATED")
	fmt.Fprintf(w, "%-6s %-30s %-24s %-12s %-5s %s\n", "--", "-----", "----", "----", "-----", "-------")
	for _, a := range admins {
		fmt.Fprintf(w, "%-6d %-30s %-24s %-12s %-5d %s\n",
			a.ID, a.Email, a.Name, a.Role, a.RoleLevel(), a.CreatedAt.Format(time.DateOnly))
	}
}

// ---------- admin create ----------

func newAdminCreateCmd() *cobra.Command {
	var (
		as       string
		email    string
		password string
		name     string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator",
		Example: `  backoffice admin create --as owner@example.com --email ops@example.com --role moderator
  backoffice admin create --as owner@example.com --email lead@example.com  # role defaults to admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				pw, err := promptPassword(true)
				if err != nil {
					return err
				}
				password = pw
			}
			return withAdminService(func(ctx context.Context, admins *service.AdminService) error {
				actor, err := admins.ResolveActorByEmail(ctx, as)
				if err != nil {
					return fmt.Errorf("resolve --as %q: %w", as, err)
				}
				admin, err := admins.Create(ctx, actor, service.CreateRequest{
					Email:    email,
					Password: password,
					Name:     name,
					Role:     role,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (id %d)\n", admin.Role, admin.Email, admin.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Email of the administrator performing the creation (required)")
	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "Role: super_admin, admin or moderator (default admin)")
	cmd.MarkFlagRequired("as")
	cmd.MarkFlagRequired("email")

	return cmd
}

// ---------- admin delete ----------

func newAdminDeleteCmd() *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an administrator and its identity",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid administrator id %q", args[0])
			}
			return withAdminService(func(ctx context.Context, admins *service.AdminService) error {
				actor, err := admins.ResolveActorByEmail(ctx, as)
				if err != nil {
					return fmt.Errorf("resolve --as %q: %w", as, err)
				}
				err = admins.Delete(ctx, actor, id)
				if errors.Is(err, config.ErrNotFound) {
					return fmt.Errorf("administrator %d not found", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted administrator %d\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "Email of the administrator performing the deletion (required)")
	cmd.MarkFlagRequired("as")

	return cmd
}
