package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/faucetdb/backoffice/internal/identity"
	"github.com/faucetdb/backoffice/internal/permission"
	"github.com/faucetdb/backoffice/internal/service"
)

const listAdminsCall = `{"jsonrpc":"2.0","id":1,"method":"tools/call",` +
	`"params":{"name":"backoffice_list_admins","arguments":{"actor_email":"owner@example.com"}}}`

// newHTTPTestEnv serves the MCP HTTP handler from an httptest server and
// returns it together with the auth service that mints its tokens.
func newHTTPTestEnv(t *testing.T) (*httptest.Server, *service.AuthService, *MCPServer) {
	t.Helper()
	s, store := newTestServer(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := service.NewAuthService(store, identity.NewStoreProvider(store), "mcp-test-secret", time.Hour, logger)

	seedAdmin(t, store, "owner@example.com", permission.RoleSuperAdmin)
	seedAdmin(t, store, "secret-ops@example.com", permission.RoleModerator)

	ts := httptest.NewServer(s.HTTPHandler(auth))
	t.Cleanup(ts.Close)
	return ts, auth, s
}

func postMCP(t *testing.T, url, token, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest("POST", url+"/mcp", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /mcp: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(data)
}

func TestHTTPHandler_RequiresToken(t *testing.T) {
	ts, _, _ := newHTTPTestEnv(t)

	tests := []struct {
		name  string
		token string
	}{
		{"no token", ""},
		{"garbage token", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postMCP(t, ts.URL, tt.token, listAdminsCall)
			if status != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", status)
			}
			if strings.Contains(body, "secret-ops") {
				t.Errorf("administrator list leaked without credentials: %s", body)
			}
		})
	}
}

func TestHTTPHandler_NonAdminIdentityForbidden(t *testing.T) {
	ts, auth, _ := newHTTPTestEnv(t)

	token, _, err := auth.IssueJWT(context.Background(), "identity-without-admin-record", "x@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueJWT: %v", err)
	}
	status, body := postMCP(t, ts.URL, token, listAdminsCall)
	if status != http.StatusForbidden {
		t.Errorf("status = %d, want 403", status)
	}
	if strings.Contains(body, "secret-ops") {
		t.Errorf("administrator list leaked to a non-administrator: %s", body)
	}
}

func TestHTTPHandler_ToolRunsAsTokenOwner(t *testing.T) {
	ts, auth, _ := newHTTPTestEnv(t)

	sess, err := auth.Login(context.Background(), "secret-ops@example.com", "password123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	status, body := postMCP(t, ts.URL, sess.Token, listAdminsCall)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", status, body)
	}

	var resp struct {
		Result struct {
			IsError bool `json:"isError"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"result"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v; body = %s", err, body)
	}
	if resp.Result.IsError || len(resp.Result.Content) == 0 {
		t.Fatalf("tool result = %+v", resp.Result)
	}
	if !strings.Contains(resp.Result.Content[0].Text, "owner@example.com") {
		t.Errorf("expected the administrator list, got %s", resp.Result.Content[0].Text)
	}
}

func TestResolveActor_HTTPWithoutActor(t *testing.T) {
	s, store := newTestServer(t)
	seedAdmin(t, store, "owner@example.com", permission.RoleSuperAdmin)

	// A context marked as HTTP but carrying no authenticated actor must not
	// fall back to the caller-supplied email.
	ctx := context.WithValue(context.Background(), httpTransportKey{}, true)
	res, err := s.handleListAdmins(ctx, callRequest(map[string]any{"actor_email": "owner@example.com"}))
	if err != nil {
		t.Fatalf("handleListAdmins: %v", err)
	}
	if !res.IsError {
		t.Errorf("expected tool error, got %s", resultText(t, res))
	}
}
