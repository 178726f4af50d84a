package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/backoffice/internal/permission"
)

const (
	errorRef    = "#/components/schemas/ErrorResponse"
	adminRef    = "#/components/schemas/Admin"
	roleRef     = "#/components/schemas/Role"
	statsRef    = "#/components/schemas/AdminStats"
	settingRef  = "#/components/schemas/Setting"
	sessionRef  = "#/components/schemas/Session"
	capsRef     = "#/components/schemas/Capabilities"
	roleInfoRef = "#/components/schemas/RoleInfo"
)

// GenerateDocument builds the OpenAPI 3.1 document for the backoffice admin
// API. version is the server build version.
func GenerateDocument(baseURL, version string) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Backoffice Admin API",
			Description: "Administrator management with a three-tier role hierarchy (super_admin, admin, moderator).",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
		Tags: openapi3.Tags{
			{Name: "session", Description: "Login and logout"},
			{Name: "admins", Description: "Administrator management"},
			{Name: "roles", Description: "Role hierarchy introspection"},
			{Name: "settings", Description: "Platform settings"},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = componentSchemas()
	components.SecuritySchemes = openapi3.SecuritySchemes{
		"bearerAuth": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
			},
		},
	}
	doc.Components = &components
	doc.Security = openapi3.SecurityRequirements{{"bearerAuth": {}}}
	doc.Paths = openapi3.NewPaths()

	addSessionPaths(doc)
	addRolePaths(doc)
	addAdminPaths(doc)
	addSettingsPaths(doc)

	return doc
}

// ─── Paths ─────────────────────────────────────────────────────────────────

func addSessionPaths(doc *openapi3.T) {
	login := &openapi3.Operation{
		Tags:        []string{"session"},
		Summary:     "Log in",
		OperationID: "login",
		Security:    &openapi3.SecurityRequirements{},
		RequestBody: jsonBody("Credentials", objectSchema(map[string]*openapi3.Schema{
			"email":    openapi3.NewStringSchema().WithFormat("email"),
			"password": openapi3.NewStringSchema().WithMinLength(1),
		}, "email", "password")),
		Responses: newResponses(http.StatusOK, "Session issued", openapi3.NewSchemaRef(sessionRef, nil)),
	}
	logout := &openapi3.Operation{
		Tags:        []string{"session"},
		Summary:     "Log out",
		OperationID: "logout",
		Responses:   newResponses(http.StatusOK, "Session ended", successSchema()),
	}
	doc.AddOperation("/api/v1/session", http.MethodPost, login)
	doc.AddOperation("/api/v1/session", http.MethodDelete, logout)

	me := &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Current administrator",
		Description: "The caller's administrator record and the operations its role allows.",
		OperationID: "me",
		Responses: newResponses(http.StatusOK, "Caller", &openapi3.SchemaRef{Value: objectSchema(map[string]*openapi3.Schema{
			"admin":        nil,
			"capabilities": nil,
		})}),
	}
	meSchema := me.Responses.Value("200").Value.Content.Get("application/json").Schema.Value
	meSchema.Properties["admin"] = openapi3.NewSchemaRef(adminRef, nil)
	meSchema.Properties["capabilities"] = openapi3.NewSchemaRef(capsRef, nil)
	doc.AddOperation("/api/v1/me", http.MethodGet, me)

	doc.AddOperation("/api/v1/me", http.MethodPut, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Update own profile",
		Description: "Changes the caller's display name. Role is not writable here.",
		OperationID: "updateMe",
		RequestBody: jsonBody("Profile", objectSchema(map[string]*openapi3.Schema{
			"name": openapi3.NewStringSchema(),
		}, "name")),
		Responses: newResponses(http.StatusOK, "Updated", openapi3.NewSchemaRef(adminRef, nil)),
	})
	doc.AddOperation("/api/v1/me/password", http.MethodPut, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Change own password",
		Description: "Verifies current_password, requires new_password to equal confirm_password, then stores a new bcrypt hash.",
		OperationID: "changePassword",
		RequestBody: jsonBody("Password change", objectSchema(map[string]*openapi3.Schema{
			"current_password": openapi3.NewStringSchema().WithMinLength(1),
			"new_password":     openapi3.NewStringSchema().WithMinLength(8),
			"confirm_password": openapi3.NewStringSchema().WithMinLength(8),
		}, "current_password", "new_password", "confirm_password")),
		Responses: newResponses(http.StatusOK, "Changed", successSchema()),
	})
}

func addRolePaths(doc *openapi3.T) {
	doc.AddOperation("/api/v1/roles", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"roles"},
		Summary:     "List roles",
		Description: "All administrator roles with their rank, highest first.",
		OperationID: "listRoles",
		Responses:   newResponses(http.StatusOK, "Roles", listSchema(roleInfoRef)),
	})
	doc.AddOperation("/api/v1/roles/assignable", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"roles"},
		Summary:     "Assignable roles",
		Description: "Roles the caller may grant. Empty for moderators.",
		OperationID: "assignableRoles",
		Responses:   newResponses(http.StatusOK, "Roles", listSchema(roleInfoRef)),
	})
}

func addAdminPaths(doc *openapi3.T) {
	doc.AddOperation("/api/v1/admins", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "List administrators",
		OperationID: "listAdmins",
		Responses:   newResponses(http.StatusOK, "Administrators, newest first", listSchema(adminRef)),
	})
	doc.AddOperation("/api/v1/admins", http.MethodPost, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Create administrator",
		Description: "Provisions an identity and an administrator record. The role defaults to admin.",
		OperationID: "createAdmin",
		RequestBody: jsonBody("New administrator", objectSchema(map[string]*openapi3.Schema{
			"email":    openapi3.NewStringSchema().WithFormat("email"),
			"password": openapi3.NewStringSchema().WithMinLength(8),
			"name":     openapi3.NewStringSchema(),
			"role":     nil,
		}, "email", "password")),
		Responses: newResponses(http.StatusCreated, "Created", openapi3.NewSchemaRef(adminRef, nil)),
	})
	createBody := doc.Paths.Find("/api/v1/admins").Post.RequestBody.Value.Content.Get("application/json").Schema.Value
	createBody.Properties["role"] = openapi3.NewSchemaRef(roleRef, nil)

	doc.AddOperation("/api/v1/admins/stats", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Administrator statistics",
		OperationID: "adminStats",
		Responses:   newResponses(http.StatusOK, "Counts", openapi3.NewSchemaRef(statsRef, nil)),
	})

	idParam := &openapi3.ParameterRef{
		Value: openapi3.NewPathParameter("adminId").WithSchema(openapi3.NewInt64Schema()),
	}
	item := "/api/v1/admins/{adminId}"
	doc.AddOperation(item, http.MethodGet, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Get administrator",
		OperationID: "getAdmin",
		Parameters:  openapi3.Parameters{idParam},
		Responses:   newResponses(http.StatusOK, "Administrator", openapi3.NewSchemaRef(adminRef, nil)),
	})
	doc.AddOperation(item, http.MethodPut, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Update administrator",
		Description: "Changes role and/or display name. Administrators cannot modify their own record.",
		OperationID: "updateAdmin",
		Parameters:  openapi3.Parameters{idParam},
		RequestBody: jsonBody("Fields to change", objectSchema(map[string]*openapi3.Schema{
			"name": openapi3.NewStringSchema(),
			"role": nil,
		})),
		Responses: newResponses(http.StatusOK, "Updated", openapi3.NewSchemaRef(adminRef, nil)),
	})
	updateBody := doc.Paths.Find(item).Put.RequestBody.Value.Content.Get("application/json").Schema.Value
	updateBody.Properties["role"] = openapi3.NewSchemaRef(roleRef, nil)

	doc.AddOperation(item, http.MethodDelete, &openapi3.Operation{
		Tags:        []string{"admins"},
		Summary:     "Delete administrator",
		Description: "Removes the record and then the identity. Administrators cannot delete themselves.",
		OperationID: "deleteAdmin",
		Parameters:  openapi3.Parameters{idParam},
		Responses:   newResponses(http.StatusOK, "Deleted", successSchema()),
	})
}

func addSettingsPaths(doc *openapi3.T) {
	doc.AddOperation("/api/v1/settings", http.MethodGet, &openapi3.Operation{
		Tags:        []string{"settings"},
		Summary:     "List settings",
		OperationID: "listSettings",
		Parameters: openapi3.Parameters{
			{Value: openapi3.NewQueryParameter("category").WithSchema(openapi3.NewStringSchema())},
		},
		Responses: newResponses(http.StatusOK, "Settings", listSchema(settingRef)),
	})
	doc.AddOperation("/api/v1/settings", http.MethodPut, &openapi3.Operation{
		Tags:        []string{"settings"},
		Summary:     "Update settings",
		Description: "Writes each key of the object as a JSON value. Requires super_admin.",
		OperationID: "updateSettings",
		RequestBody: jsonBody("Key/value pairs", openapi3.NewObjectSchema().WithAnyAdditionalProperties()),
		Responses:   newResponses(http.StatusOK, "Saved", successSchema()),
	})
}

// ─── Schemas ───────────────────────────────────────────────────────────────

func componentSchemas() openapi3.Schemas {
	roleEnum := make([]interface{}, 0, 3)
	for _, r := range permission.Roles() {
		roleEnum = append(roleEnum, string(r))
	}
	role := openapi3.NewStringSchema()
	role.Enum = roleEnum
	role.Description = "Administrator role, highest first."

	admin := objectSchema(map[string]*openapi3.Schema{
		"id":         openapi3.NewInt64Schema(),
		"user_id":    openapi3.NewStringSchema(),
		"email":      openapi3.NewStringSchema().WithFormat("email"),
		"name":       openapi3.NewStringSchema(),
		"role_level": openapi3.NewIntegerSchema().WithMin(1).WithMax(3),
		"created_at": openapi3.NewDateTimeSchema(),
		"updated_at": openapi3.NewDateTimeSchema(),
	}, "id", "user_id", "role", "role_level")
	admin.Properties["role"] = openapi3.NewSchemaRef(roleRef, nil)
	admin.Properties["role_level"].Value.Description = "Rank of role: super_admin=3, admin=2, moderator=1. Computed."

	roleInfo := objectSchema(map[string]*openapi3.Schema{
		"rank": openapi3.NewIntegerSchema(),
	}, "role", "rank")
	roleInfo.Properties["role"] = openapi3.NewSchemaRef(roleRef, nil)

	caps := objectSchema(map[string]*openapi3.Schema{
		"can_view":         openapi3.NewBoolSchema(),
		"can_create":       openapi3.NewBoolSchema(),
		"assignable_roles": openapi3.NewArraySchema(),
	})
	caps.Properties["assignable_roles"].Value.Items = openapi3.NewSchemaRef(roleRef, nil)

	stats := objectSchema(map[string]*openapi3.Schema{
		"total_admins":  openapi3.NewIntegerSchema(),
		"recent_admins": openapi3.NewIntegerSchema(),
		"super_admins":  openapi3.NewIntegerSchema(),
		"admins":        openapi3.NewIntegerSchema(),
		"moderators":    openapi3.NewIntegerSchema(),
	})

	setting := objectSchema(map[string]*openapi3.Schema{
		"key":         openapi3.NewStringSchema(),
		"value":       {},
		"category":    openapi3.NewStringSchema(),
		"description": openapi3.NewStringSchema(),
		"updated_at":  openapi3.NewDateTimeSchema(),
	}, "key", "value")

	session := objectSchema(map[string]*openapi3.Schema{
		"access_token": openapi3.NewStringSchema(),
		"token_type":   openapi3.NewStringSchema(),
		"expires_at":   openapi3.NewDateTimeSchema(),
		"email":        openapi3.NewStringSchema(),
	}, "access_token", "token_type", "expires_at")

	errDetail := objectSchema(map[string]*openapi3.Schema{
		"code":    openapi3.NewInt32Schema(),
		"message": openapi3.NewStringSchema(),
		"context": openapi3.NewObjectSchema(),
	}, "code", "message")

	return openapi3.Schemas{
		"Role":          openapi3.NewSchemaRef("", role),
		"RoleInfo":      openapi3.NewSchemaRef("", roleInfo),
		"Admin":         openapi3.NewSchemaRef("", admin),
		"AdminStats":    openapi3.NewSchemaRef("", stats),
		"Capabilities":  openapi3.NewSchemaRef("", caps),
		"Setting":       openapi3.NewSchemaRef("", setting),
		"Session":       openapi3.NewSchemaRef("", session),
		"ErrorResponse": openapi3.NewSchemaRef("", objectSchema(map[string]*openapi3.Schema{"error": errDetail}, "error")),
	}
}

// objectSchema builds an object schema from property schemas. A nil property
// is left as an empty placeholder for the caller to fill with a $ref.
func objectSchema(props map[string]*openapi3.Schema, required ...string) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	s.Properties = openapi3.Schemas{}
	for name, p := range props {
		if p == nil {
			s.Properties[name] = &openapi3.SchemaRef{}
			continue
		}
		s.Properties[name] = openapi3.NewSchemaRef("", p)
	}
	s.Required = required
	return s
}

func listSchema(itemRef string) *openapi3.SchemaRef {
	items := openapi3.NewArraySchema()
	items.Items = openapi3.NewSchemaRef(itemRef, nil)
	return openapi3.NewSchemaRef("", objectSchema(map[string]*openapi3.Schema{
		"resource": items,
		"meta": objectSchema(map[string]*openapi3.Schema{
			"count": openapi3.NewIntegerSchema(),
		}),
	}, "resource"))
}

func successSchema() *openapi3.SchemaRef {
	return openapi3.NewSchemaRef("", objectSchema(map[string]*openapi3.Schema{
		"success": openapi3.NewBoolSchema(),
	}))
}

func jsonBody(description string, schema *openapi3.Schema) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithDescription(description).
			WithRequired(true).
			WithJSONSchema(schema),
	}
}

// newResponses builds a Responses map with a success response and the
// standard error responses of the admin API.
func newResponses(status int, description string, schema *openapi3.SchemaRef) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{
		Value: openapi3.NewResponse().
			WithDescription(description).
			WithContent(openapi3.NewContentWithJSONSchemaRef(schema)),
	})

	errSchema := openapi3.NewSchemaRef(errorRef, nil)
	for _, e := range []struct {
		code int
		desc string
	}{
		{http.StatusBadRequest, "Bad request"},
		{http.StatusUnauthorized, "Unauthorized"},
		{http.StatusForbidden, "Role does not permit this operation"},
		{http.StatusNotFound, "Not found"},
		{http.StatusConflict, "Conflict"},
		{http.StatusInternalServerError, "Internal server error"},
	} {
		responses.Set(strconv.Itoa(e.code), &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription(e.desc).
				WithContent(openapi3.NewContentWithJSONSchemaRef(errSchema)),
		})
	}
	return responses
}
