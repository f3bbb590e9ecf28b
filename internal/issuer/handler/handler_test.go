package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"attesto/internal/issuer/policy"
	"attesto/internal/issuer/service"
	"attesto/internal/issuer/store"
	principalmw "attesto/pkg/platform/middleware/principal"
	"attesto/pkg/platform/middleware/requesttime"
)

type stubVerifier struct{}

func (stubVerifier) ValidateToken(token string) (*principalmw.Claims, error) {
	return &principalmw.Claims{Principal: token, JTI: "test-jti"}, nil
}

func newIssuerRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	allow, err := policy.NewAllowlist([]string{"did:example:admin"})
	if err != nil {
		t.Fatalf("failed to build allowlist policy: %v", err)
	}
	svc := service.New(store.NewInMemory(), allow)
	h := New(svc, logger)

	r := chi.NewRouter()
	r.Use(requesttime.Middleware)
	h.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(principalmw.RequirePrincipal(stubVerifier{}, logger))
		h.RegisterProtected(r)
	})
	return r
}

func authorizeIssuer(t *testing.T, router http.Handler, caller, issuer string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"issuer": issuer})
	req := httptest.NewRequest(http.MethodPost, "/issuers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+caller)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuthorizeIssuerViaHandler(t *testing.T) {
	router := newIssuerRouter(t)

	rec := authorizeIssuer(t, router, "did:example:admin", "did:example:university")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 authorizing issuer, got %d: %s", rec.Code, rec.Body.String())
	}

	var grant struct {
		Issuer       string `json:"issuer"`
		AuthorizedBy string `json:"authorized_by"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&grant); err != nil {
		t.Fatalf("failed to decode grant response: %v", err)
	}
	if grant.Issuer != "did:example:university" || grant.AuthorizedBy != "did:example:admin" {
		t.Fatalf("unexpected grant response: %+v", grant)
	}

	// Idempotent repeat also answers 200
	rec = authorizeIssuer(t, router, "did:example:admin", "did:example:university")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat authorization, got %d", rec.Code)
	}
}

func TestAuthorizeIssuerDeniedByPolicy(t *testing.T) {
	router := newIssuerRouter(t)

	rec := authorizeIssuer(t, router, "did:example:intruder", "did:example:university")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for caller outside the allowlist, got %d", rec.Code)
	}
}

func TestAuthorizeIssuerRequiresAuthentication(t *testing.T) {
	router := newIssuerRouter(t)

	body, _ := json.Marshal(map[string]string{"issuer": "did:example:university"})
	req := httptest.NewRequest(http.MethodPost, "/issuers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without bearer token, got %d", rec.Code)
	}
}

func TestAuthorizedCheckViaHandler(t *testing.T) {
	router := newIssuerRouter(t)

	check := func(t *testing.T) bool {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/issuers/did:example:university", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for authorization check, got %d", rec.Code)
		}
		var status struct {
			Authorized bool `json:"authorized"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
			t.Fatalf("failed to decode authorized response: %v", err)
		}
		return status.Authorized
	}

	if check(t) {
		t.Fatalf("expected unauthorized before any grant")
	}
	if rec := authorizeIssuer(t, router, "did:example:admin", "did:example:university"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 authorizing issuer, got %d", rec.Code)
	}
	if !check(t) {
		t.Fatalf("expected authorized after grant")
	}
}

func TestListIssuersViaHandler(t *testing.T) {
	router := newIssuerRouter(t)

	for _, issuer := range []string{"did:example:a", "did:example:b"} {
		if rec := authorizeIssuer(t, router, "did:example:admin", issuer); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 authorizing %s, got %d", issuer, rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/issuers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing issuers, got %d", rec.Code)
	}

	var list struct {
		Issuers []struct {
			Issuer string `json:"issuer"`
		} `json:"issuers"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if list.Count != 2 || len(list.Issuers) != 2 {
		t.Fatalf("expected 2 issuers, got %+v", list)
	}
	if list.Issuers[0].Issuer != "did:example:a" || list.Issuers[1].Issuer != "did:example:b" {
		t.Fatalf("unexpected issuer order: %+v", list.Issuers)
	}
}

func TestAuthorizeIssuerRejectsMissingIssuer(t *testing.T) {
	router := newIssuerRouter(t)

	body, _ := json.Marshal(map[string]string{})
	req := httptest.NewRequest(http.MethodPost, "/issuers", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer did:example:admin")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing issuer, got %d", rec.Code)
	}
}
