// Package test holds black-box acceptance tests that drive the assembled
// registry over HTTP, the way external clients do.
package test

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"
	"time"

	credentialhandler "attesto/internal/credential/handler"
	credentialsvc "attesto/internal/credential/service"
	credstore "attesto/internal/credential/store"
	httpapi "attesto/internal/http"
	identityhandler "attesto/internal/identity/handler"
	identitysvc "attesto/internal/identity/service"
	identitystore "attesto/internal/identity/store"
	issuerhandler "attesto/internal/issuer/handler"
	"attesto/internal/issuer/policy"
	issuersvc "attesto/internal/issuer/service"
	issuerstore "attesto/internal/issuer/store"
	jwttoken "attesto/internal/jwt_token"
	id "attesto/pkg/domain"
	"attesto/pkg/testutil"
)

const acceptanceSigningKey = "acceptance-signing-key-0123456789abcdef"

type registry struct {
	router http.Handler
	jwt    *jwttoken.JWTService
}

func newRegistry(t *testing.T) *registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	identities := identitysvc.New(identitystore.NewInMemory())
	issuers := issuersvc.New(issuerstore.NewInMemory(), policy.NewOpen(logger))
	credentials := credentialsvc.New(credstore.NewInMemory(), identities, issuers)

	jwtService := jwttoken.NewJWTService(acceptanceSigningKey, "attesto", "attesto-api")
	router := httpapi.New(httpapi.Handlers{
		Identity:   identityhandler.New(identities, logger),
		Issuer:     issuerhandler.New(issuers, logger),
		Credential: credentialhandler.New(credentials, logger),
	}, jwttoken.NewJWTServiceAdapter(jwtService), logger)

	return &registry{router: router, jwt: jwtService}
}

func (r *registry) tokenFor(t *testing.T, principal string) string {
	t.Helper()
	token, err := r.jwt.GenerateAccessToken(id.Principal(principal), time.Hour)
	if err != nil {
		t.Fatalf("failed to mint token for %s: %v", principal, err)
	}
	return token
}

func TestCredentialRegistryAcceptance(t *testing.T) {
	testutil.Given(t, "a registry with an active subject and an authorized issuer", func(t *testing.T) {
		reg := newRegistry(t)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/identities", map[string]string{"public_key": "z6MkAlice"})
		rr := testutil.DoRequest(reg.router, testutil.WithBearer(req, reg.tokenFor(t, "did:example:alice")))
		testutil.AssertStatus(t, rr, http.StatusCreated)

		req = testutil.NewJSONRequest(t, http.MethodPost, "/issuers", map[string]string{"issuer": "did:example:university"})
		rr = testutil.DoRequest(reg.router, testutil.WithBearer(req, reg.tokenFor(t, "did:example:admin")))
		testutil.AssertStatus(t, rr, http.StatusOK)

		var credentialID string

		testutil.When(t, "the issuer presents a credential for the subject", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials", map[string]any{
				"subject":         "did:example:alice",
				"credential_type": "degree",
				"credential_data": "sha256:transcript",
				"expires_at":      time.Now().Add(24 * time.Hour).UTC(),
			})
			rr := testutil.DoRequest(reg.router, testutil.WithBearer(req, reg.tokenFor(t, "did:example:university")))

			testutil.Then(t, "the registry records it under a deterministic id", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusCreated)
				issued := testutil.UnmarshalResponse[struct {
					ID     string `json:"id"`
					Issuer string `json:"issuer"`
				}](t, rr)
				if len(issued.ID) != id.CredentialIDLength {
					t.Fatalf("expected %d-char credential id, got %q", id.CredentialIDLength, issued.ID)
				}
				if issued.Issuer != "did:example:university" {
					t.Fatalf("expected issuer recorded, got %q", issued.Issuer)
				}
				credentialID = issued.ID
			})
		})

		testutil.When(t, "anyone verifies the credential by id", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodGet, "/credentials/"+credentialID+"/verify", nil)
			rr := testutil.DoRequest(reg.router, req)

			testutil.Then(t, "the verdict is valid without any authentication", func(t *testing.T) {
				testutil.AssertStatus(t, rr, http.StatusOK)
				verdict := testutil.UnmarshalResponse[struct {
					Valid   bool   `json:"valid"`
					Subject string `json:"subject"`
				}](t, rr)
				if !verdict.Valid {
					t.Fatalf("expected valid verdict, got %+v", verdict)
				}
				if verdict.Subject != "did:example:alice" {
					t.Fatalf("expected subject in verdict, got %q", verdict.Subject)
				}
			})
		})

		testutil.When(t, "the issuer revokes the credential", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials/"+credentialID+"/revoke", nil)
			rr := testutil.DoRequest(reg.router, testutil.WithBearer(req, reg.tokenFor(t, "did:example:university")))
			testutil.AssertStatus(t, rr, http.StatusOK)

			testutil.Then(t, "verification reports the revocation", func(t *testing.T) {
				req := testutil.NewJSONRequest(t, http.MethodGet, "/credentials/"+credentialID+"/verify", nil)
				rr := testutil.DoRequest(reg.router, req)
				testutil.AssertStatus(t, rr, http.StatusOK)
				verdict := testutil.UnmarshalResponse[struct {
					Valid  bool   `json:"valid"`
					Reason string `json:"reason"`
				}](t, rr)
				if verdict.Valid || verdict.Reason != "revoked" {
					t.Fatalf("expected revoked verdict, got %+v", verdict)
				}
			})
		})

		testutil.When(t, "an unauthenticated client attempts to issue", func(t *testing.T) {
			req := testutil.NewJSONRequest(t, http.MethodPost, "/credentials", map[string]any{
				"subject":         "did:example:alice",
				"credential_type": "degree",
				"credential_data": "sha256:transcript",
				"expires_at":      time.Now().Add(24 * time.Hour).UTC(),
			})
			rr := testutil.DoRequest(reg.router, req)

			testutil.Then(t, "the registry refuses before touching any state", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthenticated")
			})
		})
	})
}
