package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/faucetdb/backoffice/internal/permission"
	"github.com/faucetdb/backoffice/internal/server/middleware"
	"github.com/faucetdb/backoffice/internal/service"
)

const actorEmailDescription = "Email of the administrator the query runs as. " +
	"Required over stdio; ignored over HTTP, where the bearer token identifies the caller."

// registerTools registers all backoffice MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Role hierarchy -----

	srv.AddTool(
		mcp.NewTool("backoffice_list_roles",
			mcp.WithDescription(
				"List the administrator roles (super_admin, admin, moderator) with their "+
					"rank, highest first.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListRoles,
	)

	srv.AddTool(
		mcp.NewTool("backoffice_assignable_roles",
			mcp.WithDescription(
				"List the roles an administrator holding actor_role may grant when creating "+
					"or updating another administrator. Empty for moderators.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("actor_role",
				mcp.Required(),
				mcp.Description("Role of the acting administrator"),
			),
		),
		s.handleAssignableRoles,
	)

	srv.AddTool(
		mcp.NewTool("backoffice_check_permission",
			mcp.WithDescription(
				"Check whether an administrator with actor_role may perform action on an "+
					"administrator with target_role. Pass actor_identity and target_identity "+
					"to also apply the rule that nobody may edit or delete their own record.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("actor_role",
				mcp.Required(),
				mcp.Description("Role of the acting administrator"),
			),
			mcp.WithString("target_role",
				mcp.Required(),
				mcp.Description("Role of the administrator being acted on"),
			),
			mcp.WithString("action",
				mcp.Required(),
				mcp.Description("One of: create, edit, delete, view"),
				mcp.Enum("create", "edit", "delete", "view"),
			),
			mcp.WithString("actor_identity",
				mcp.Description("Identity ID of the actor (optional)"),
			),
			mcp.WithString("target_identity",
				mcp.Description("Identity ID of the target (optional)"),
			),
		),
		s.handleCheckPermission,
	)

	// ----- Administrator population -----

	srv.AddTool(
		mcp.NewTool("backoffice_list_admins",
			mcp.WithDescription(
				"List administrators, newest first. Each entry includes role and role_level. "+
					"Over HTTP the query runs as the administrator owning the bearer token.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("actor_email",
				mcp.Description(actorEmailDescription),
			),
		),
		s.handleListAdmins,
	)

	srv.AddTool(
		mcp.NewTool("backoffice_admin_stats",
			mcp.WithDescription(
				"Count administrators in total, created in the last 30 days, and per role.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("actor_email",
				mcp.Description(actorEmailDescription),
			),
		),
		s.handleAdminStats,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

type roleInfo struct {
	Role permission.Role `json:"role"`
	Rank int             `json:"rank"`
}

func roleInfos(roles []permission.Role) []roleInfo {
	out := make([]roleInfo, len(roles))
	for i, r := range roles {
		out[i] = roleInfo{Role: r, Rank: permission.Rank(r)}
	}
	return out
}

func (s *MCPServer) handleListRoles(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(roleInfos(permission.Roles()))
}

func (s *MCPServer) handleAssignableRoles(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	raw, err := requireString(request, "actor_role")
	if err != nil {
		return toolError("%v", err)
	}
	role, _ := permission.ParseRole(raw)
	return successJSON(roleInfos(permission.AssignableRoles(role)))
}

// handleCheckPermission answers a single authority question. Unrecognized
// roles are answered with allowed=false rather than a tool error.
func (s *MCPServer) handleCheckPermission(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	actorRaw, err := requireString(request, "actor_role")
	if err != nil {
		return toolError("%v", err)
	}
	targetRaw, err := requireString(request, "target_role")
	if err != nil {
		return toolError("%v", err)
	}
	actionRaw, err := requireString(request, "action")
	if err != nil {
		return toolError("%v", err)
	}

	action, ok := permission.ParseAction(actionRaw)
	if !ok {
		return toolError("unknown action %q: use create, edit, delete or view", actionRaw)
	}
	actorRole, _ := permission.ParseRole(actorRaw)
	targetRole, _ := permission.ParseRole(targetRaw)

	result := struct {
		ActorRole  string `json:"actor_role"`
		TargetRole string `json:"target_role"`
		Action     string `json:"action"`
		Allowed    bool   `json:"allowed"`
		Reason     string `json:"reason"`
	}{
		ActorRole:  actorRaw,
		TargetRole: targetRaw,
		Action:     string(action),
	}

	if action == permission.ActionView || action == permission.ActionCreate {
		result.Allowed = permission.CanPerform(actorRole, targetRole, action)
		result.Reason = string(permission.ReasonAllowed)
		if !result.Allowed {
			result.Reason = string(permission.ReasonRole)
		}
		return successJSON(result)
	}

	d := permission.CanModify(
		permission.Subject{IdentityID: optionalString(request, "actor_identity"), Role: actorRole},
		permission.Subject{IdentityID: optionalString(request, "target_identity"), Role: targetRole},
		action,
	)
	result.Allowed = d.Allowed
	result.Reason = string(d.Reason)
	return successJSON(result)
}

func (s *MCPServer) handleListAdmins(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	actor, res := s.resolveActor(ctx, request)
	if res != nil {
		return res, nil
	}

	admins, err := s.admins.List(ctx, actor)
	if err != nil {
		return toolError("Failed to list admins: %v", err)
	}

	type adminInfo struct {
		ID        int64           `json:"id"`
		Email     string          `json:"email"`
		Name      string          `json:"name,omitempty"`
		Role      permission.Role `json:"role"`
		RoleLevel int             `json:"role_level"`
		CreatedAt string          `json:"created_at"`
	}
	items := make([]adminInfo, len(admins))
	for i := range admins {
		a := &admins[i]
		items[i] = adminInfo{
			ID:        a.ID,
			Email:     a.Email,
			Name:      a.Name,
			Role:      a.Role,
			RoleLevel: a.RoleLevel(),
			CreatedAt: a.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}
	return successJSON(items)
}

func (s *MCPServer) handleAdminStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	actor, res := s.resolveActor(ctx, request)
	if res != nil {
		return res, nil
	}

	stats, err := s.admins.Stats(ctx, actor)
	if err != nil {
		return toolError("Failed to compute stats: %v", err)
	}
	return successJSON(stats)
}

// resolveActor returns the administrator a tool call runs as. Over HTTP
// that is the actor authenticated from the bearer token and actor_email is
// ignored. Over stdio, where the operator launching the process is trusted,
// the actor_email argument names it. On failure it returns the tool error
// result to send back.
func (s *MCPServer) resolveActor(ctx context.Context, request mcp.CallToolRequest) (service.Actor, *mcp.CallToolResult) {
	if actor, ok := middleware.GetActor(ctx); ok {
		return actor, nil
	}
	if overHTTP(ctx) {
		res, _ := toolError("authentication required")
		return service.Actor{}, res
	}

	email, err := requireString(request, "actor_email")
	if err != nil {
		res, _ := toolError("%v", err)
		return service.Actor{}, res
	}
	actor, err := s.admins.ResolveActorByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, service.ErrAuthorizationDenied) {
			res, _ := toolError("%s is not an administrator", email)
			return service.Actor{}, res
		}
		res, _ := toolError("Failed to resolve administrator: %v", err)
		return service.Actor{}, res
	}
	return actor, nil
}
