package tests

import (
	"context"
	"net/http"
	"testing"

	. "github.com/campushq/backend/apps/api/echo"
	"github.com/campushq/backend/core/user"
)

func TestUserAPI_login(t *testing.T) {
	ta := setup(t)
	ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})

	deactivated := ta.createUser(t, "gone001", "gone@campus.test", "Secr3t!pwd", []string{user.RoleStudent})
	inactive := false
	if _, err := ta.usrRepo.UpdateUser(context.Background(), user.User{ID: deactivated.ID}, &inactive); err != nil {
		t.Fatalf("deactivating user: %v", err)
	}

	tests := []httpTest{
		{
			name: "Unknown user", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, LoginRequest{Username: "nobody", Password: "Secr3t!pwd"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Wrong password", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, LoginRequest{Username: "alice01", Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "Deactivated account", method: http.MethodPost, path: "/v1/users/login",
			body:     marchallObj(t, LoginRequest{Username: "gone001", Password: "Secr3t!pwd"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			ta.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("Login by username", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: "alice01", Password: "Secr3t!pwd"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var res LoginResponse
		unmarchallObj(t, rec, &res)
		if res.Token == "" {
			t.Error("login returned an empty token")
		}
	})

	t.Run("Login by email", func(t *testing.T) {
		body := marchallObj(t, LoginRequest{Username: "Alice@campus.test", Password: "Secr3t!pwd"})
		req, rec := newRequest(http.MethodPost, "/v1/users/login", body)
		ta.app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
	})
}

func TestUserAPI_me(t *testing.T) {
	ta := setup(t)
	alice := ta.createUser(t, "alice01", "alice@campus.test", "Secr3t!pwd", []string{user.RoleStudent})

	t.Run("Me", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, alice))
		ta.app.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; body = %s", rec.Code, rec.Body.String())
		}
		var got user.User
		unmarchallObj(t, rec, &got)
		if got.ID != alice.ID || got.Username != "alice01" {
			t.Errorf("me = %+v", got)
		}
	})

	t.Run("Me without token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users/me")
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		}, rec)
	})

	t.Run("Listing users requires admin", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users", getToken(t, alice))
		ta.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		}, rec)
	})
}
