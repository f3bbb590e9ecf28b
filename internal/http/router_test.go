package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	credentialhandler "attesto/internal/credential/handler"
	credentialsvc "attesto/internal/credential/service"
	credstore "attesto/internal/credential/store"
	identityhandler "attesto/internal/identity/handler"
	identitysvc "attesto/internal/identity/service"
	identitystore "attesto/internal/identity/store"
	issuerhandler "attesto/internal/issuer/handler"
	"attesto/internal/issuer/policy"
	issuersvc "attesto/internal/issuer/service"
	issuerstore "attesto/internal/issuer/store"
	jwttoken "attesto/internal/jwt_token"
	"attesto/internal/ratelimit"
	id "attesto/pkg/domain"
)

const testSigningKey = "router-test-signing-key-0123456789abcdef"

// newRegistry assembles the whole route tree on in-memory stores, with real
// JWT authentication, exactly as cmd/server wires it.
func newRegistry(t *testing.T, opts ...Option) (http.Handler, *jwttoken.JWTService) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	identities := identitysvc.New(identitystore.NewInMemory())
	issuers := issuersvc.New(issuerstore.NewInMemory(), policy.NewOpen(logger))
	credentials := credentialsvc.New(credstore.NewInMemory(), identities, issuers)

	jwtService := jwttoken.NewJWTService(testSigningKey, "attesto", "attesto-api")
	router := New(Handlers{
		Identity:   identityhandler.New(identities, logger),
		Issuer:     issuerhandler.New(issuers, logger),
		Credential: credentialhandler.New(credentials, logger),
	}, jwttoken.NewJWTServiceAdapter(jwtService), logger, opts...)

	return router, jwtService
}

func bearerFor(t *testing.T, jwtService *jwttoken.JWTService, principal string) string {
	t.Helper()
	token, err := jwtService.GenerateAccessToken(id.Principal(principal), time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token for %s: %v", principal, err)
	}
	return "Bearer " + token
}

func doJSON(t *testing.T, router http.Handler, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	router, _ := newRegistry(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("expected 200 ok from /healthz, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /metrics, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition output from /metrics")
	}
}

func TestReadyReflectsDependencyHealth(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	router, _ := newRegistry(t, WithReadyCheck("postgres", healthy))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /readyz with healthy checks, got %d", rec.Code)
	}

	broken := func(context.Context) error { return errors.New("connection refused") }
	router, _ = newRegistry(t, WithReadyCheck("postgres", broken))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from /readyz with failing check, got %d", rec.Code)
	}
}

func TestMutationsRequireValidToken(t *testing.T) {
	router, _ := newRegistry(t)

	rec := doJSON(t, router, http.MethodPost, "/identities", "", map[string]string{"public_key": "z6MkAlice"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/identities", "Bearer not-a-jwt", map[string]string{"public_key": "z6MkAlice"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with malformed token, got %d", rec.Code)
	}
}

// TestCredentialLifecycleAcrossModules drives the registry the way clients
// do: register the subject, authorize the issuer, issue, verify, revoke,
// verify again.
func TestCredentialLifecycleAcrossModules(t *testing.T) {
	router, jwtService := newRegistry(t)

	alice := bearerFor(t, jwtService, "did:example:alice")
	university := bearerFor(t, jwtService, "did:example:university")
	admin := bearerFor(t, jwtService, "did:example:admin")

	rec := doJSON(t, router, http.MethodPost, "/identities", alice, map[string]string{"public_key": "z6MkAlice"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 registering subject, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/issuers", admin, map[string]string{"issuer": "did:example:university"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 authorizing issuer, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/credentials", university, map[string]any{
		"subject":         "did:example:alice",
		"credential_type": "degree",
		"credential_data": "sha256:transcript",
		"expires_at":      time.Now().Add(24 * time.Hour).UTC(),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 issuing credential, got %d: %s", rec.Code, rec.Body.String())
	}
	var issued struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&issued); err != nil {
		t.Fatalf("failed to decode issue response: %v", err)
	}

	rec = doJSON(t, router, http.MethodGet, "/credentials/"+issued.ID+"/verify", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verifying credential, got %d", rec.Code)
	}
	var verdict struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&verdict); err != nil {
		t.Fatalf("failed to decode verification response: %v", err)
	}
	if !verdict.Valid {
		t.Fatalf("expected valid credential, got %+v", verdict)
	}

	rec = doJSON(t, router, http.MethodPost, "/credentials/"+issued.ID+"/revoke", university, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 revoking credential, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/credentials/"+issued.ID+"/verify", "", nil)
	if err := json.NewDecoder(rec.Body).Decode(&verdict); err != nil {
		t.Fatalf("failed to decode verification response: %v", err)
	}
	if verdict.Valid || verdict.Reason != "revoked" {
		t.Fatalf("expected revoked verdict, got %+v", verdict)
	}

	// The subject's credential index survives revocation
	rec = doJSON(t, router, http.MethodGet, "/identities/did:example:alice/credentials", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing subject credentials, got %d", rec.Code)
	}
	var listed struct {
		CredentialIDs []string `json:"credential_ids"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("failed to decode subject credentials: %v", err)
	}
	if len(listed.CredentialIDs) != 1 || listed.CredentialIDs[0] != issued.ID {
		t.Fatalf("expected index [%s], got %+v", issued.ID, listed.CredentialIDs)
	}
}

func TestRateLimitCoversPublicRoutesOnly(t *testing.T) {
	limiter := ratelimit.New(ratelimit.NewInMemoryStore(), 1, time.Minute)
	router, _ := newRegistry(t, WithRateLimit(limiter.Limit))

	rec := doJSON(t, router, http.MethodGet, "/issuers", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first read admitted, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/issuers", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second read throttled, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode throttle body: %v", err)
	}
	if body["error"] != "rate_limit_exceeded" {
		t.Fatalf("expected rate_limit_exceeded, got %q", body["error"])
	}

	// Health probes must never be throttled.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected /healthz unthrottled, got %d", rec.Code)
	}

	// Mutations answer with their own errors, not the limiter's.
	rec = doJSON(t, router, http.MethodPost, "/identities", "", map[string]string{"public_key": "z6MkAlice"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 from protected route, got %d", rec.Code)
	}
}

func TestRequestIDPropagation(t *testing.T) {
	router, _ := newRegistry(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-me-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "trace-me-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id on response")
	}
}
