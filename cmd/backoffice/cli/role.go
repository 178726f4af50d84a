package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/faucetdb/backoffice/internal/permission"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect administrator roles",
		Long:  "Show the administrator roles and the fixed table of what each role may do to each other role.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleMatrixCmd())

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List roles with their rank and assignable roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

type roleRow struct {
	Role       permission.Role   `json:"role"`
	Rank       int               `json:"rank"`
	Assignable []permission.Role `json:"assignable_roles"`
}

func runRoleList(w io.Writer, jsonOutput bool) error {
	roles := permission.Roles()
	rows := make([]roleRow, len(roles))
	for i, r := range roles {
		rows[i] = roleRow{Role: r, Rank: permission.Rank(r), Assignable: permission.AssignableRoles(r)}
	}

	if jsonOutput {
		return printJSON(w, rows)
	}

	fmt.Fprintf(w, "%-12s %-5s %s\n", "ROLE", "RANK", "CAN ASSIGN")
	fmt.Fprintf(w, "%-12s %-5s %s\n", "----", "----", "----------")
	for _, r := range rows {
		fmt.Fprintf(w, "%-12s %-5d %s\n", r.Role, r.Rank, joinRoles(r.Assignable))
	}
	return nil
}

// ---------- role matrix ----------

func newRoleMatrixCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "matrix",
		Short: "Print the actor/target permission table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleMatrix(cmd.OutOrStdout(), jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleMatrix(w io.Writer, jsonOutput bool) error {
	grants := permission.Matrix()
	if jsonOutput {
		return printJSON(w, grants)
	}

	fmt.Fprintf(w, "%-12s %-12s %s\n", "ACTOR", "TARGET", "ACTIONS")
	fmt.Fprintf(w, "%-12s %-12s %s\n", "-----", "------", "-------")
	for _, g := range grants {
		actions := make([]string, len(g.Actions))
		for i, a := range g.Actions {
			actions[i] = string(a)
		}
		list := strings.Join(actions, ",")
		if list == "" {
			list = "-"
		}
		fmt.Fprintf(w, "%-12s %-12s %s\n", g.Actor, g.Target, list)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "All roles may view the administrator list. Nobody may modify their own record.")
	return nil
}

func joinRoles(roles []permission.Role) string {
	if len(roles) == 0 {
		return "-"
	}
	s := make([]string, len(roles))
	for i, r := range roles {
		s[i] = string(r)
	}
	return strings.Join(s, ",")
}
