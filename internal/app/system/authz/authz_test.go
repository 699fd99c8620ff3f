package authz_test

import (
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/boardhub/internal/app/system/auth"
	"github.com/dalemusser/boardhub/internal/app/system/authz"
)

func TestUserCtx_NoUser(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)

	role, name, id, ok := authz.UserCtx(req)
	if ok {
		t.Fatal("expected ok=false without a user")
	}
	if role != "visitor" || name != "" || id != "" {
		t.Errorf("unexpected values: %q %q %q", role, name, id)
	}
}

func TestUserCtx_LowercasesRole(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{ID: "u1", Name: "Grace", Role: "ADMIN"})

	role, name, id, ok := authz.UserCtx(req)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if role != "admin" || name != "Grace" || id != "u1" {
		t.Errorf("unexpected values: %q %q %q", role, name, id)
	}
}

func TestUserCtx_EmptyIDFailsClosed(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	req = auth.WithTestUser(req, &auth.SessionUser{ID: " ", Role: "admin"})

	if _, _, _, ok := authz.UserCtx(req); ok {
		t.Error("expected ok=false for an empty user id")
	}
	if authz.IsAdmin(req) {
		t.Error("expected IsAdmin=false for an empty user id")
	}
}

func TestRoleChecks(t *testing.T) {
	tests := []struct {
		role      string
		wantAdmin bool
		wantVote  bool
	}{
		{role: "admin", wantAdmin: true, wantVote: true},
		{role: "board_member", wantAdmin: false, wantVote: true},
		{role: "staff", wantAdmin: false, wantVote: false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req = auth.WithTestUser(req, &auth.SessionUser{ID: "u1", Role: tt.role})

			if got := authz.IsAdmin(req); got != tt.wantAdmin {
				t.Errorf("IsAdmin: got %v, want %v", got, tt.wantAdmin)
			}
			if got := authz.CanVote(req); got != tt.wantVote {
				t.Errorf("CanVote: got %v, want %v", got, tt.wantVote)
			}
			if got := authz.HasAnyRole(req, authz.VoterRoles...); got != tt.wantVote {
				t.Errorf("HasAnyRole(voters): got %v, want %v", got, tt.wantVote)
			}
		})
	}
}
