package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/furnique/furnique-backend/pkg/auth"
	"github.com/furnique/furnique-backend/pkg/config"
	"github.com/furnique/furnique-backend/pkg/enums"
)

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsActor(t *testing.T) {
	cfg := testJWT()
	customerID := uuid.New()
	token := mintTestToken(t, cfg, customerID, enums.ActorRoleCustomer)

	var captured struct {
		user  string
		role  string
		actor auth.Actor
	}
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.user = UserIDFromContext(r.Context())
		captured.role = RoleFromContext(r.Context())
		captured.actor, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.user != customerID.String() {
		t.Fatalf("expected user %s got %s", customerID, captured.user)
	}
	if captured.role != string(enums.ActorRoleCustomer) {
		t.Fatalf("expected role customer got %s", captured.role)
	}
	if captured.actor.ID != customerID {
		t.Fatalf("actor id mismatch: %s", captured.actor.ID)
	}
}

func TestRequireStaffRejectsCustomers(t *testing.T) {
	cfg := testJWT()
	chain := func(token string) int {
		handler := Auth(cfg, nil)(RequireStaff(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := chain(mintTestToken(t, cfg, uuid.New(), enums.ActorRoleCustomer)); code != http.StatusForbidden {
		t.Fatalf("customer: expected 403 got %d", code)
	}
	if code := chain(mintTestToken(t, cfg, uuid.New(), enums.ActorRoleStaff)); code != http.StatusOK {
		t.Fatalf("staff: expected 200 got %d", code)
	}
	if code := chain(mintTestToken(t, cfg, uuid.New(), enums.ActorRoleAdmin)); code != http.StatusOK {
		t.Fatalf("admin: expected 200 got %d", code)
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, subject uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		SubjectID: subject,
		Role:      role,
		JTI:       uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
