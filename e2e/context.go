// Package e2e drives a running registry over HTTP the way external clients
// do. The suite is a separate module on purpose: it must only ever touch the
// public surface, so nothing in here can reach into the registry's internals.
//
// Point it at an instance with ATTESTO_BASE_URL (default http://localhost:8080).
// The suite mints its own bearer tokens with ATTESTO_JWT_SIGNING_KEY, standing
// in for the identity provider that fronts real deployments; the key must
// match the server's JWT_SIGNING_KEY.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultBaseURL    = "http://localhost:8080"
	defaultSigningKey = "dev-secret-key-change-in-production"

	tokenIssuer   = "attesto"
	tokenAudience = "attesto-api"
)

// TestContext carries state between the steps of a scenario: who is
// authenticated, the last response, and ids captured along the way.
type TestContext struct {
	baseURL    string
	signingKey []byte
	client     *http.Client

	// principals maps scenario names like "alice" to unique DIDs so
	// scenarios stay re-runnable against a long-lived server.
	principals map[string]string
	runID      string

	accessToken  string
	credentialID string

	lastStatus int
	lastBody   []byte
	lastJSON   map[string]interface{}
}

func NewTestContext() *TestContext {
	tc := &TestContext{
		baseURL:    envOr("ATTESTO_BASE_URL", defaultBaseURL),
		signingKey: []byte(envOr("ATTESTO_JWT_SIGNING_KEY", defaultSigningKey)),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	tc.Reset()
	return tc
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Reset clears scenario state so scenarios stay independent of each other.
func (tc *TestContext) Reset() {
	tc.principals = make(map[string]string)
	tc.runID = strings.Split(uuid.NewString(), "-")[0]
	tc.accessToken = ""
	tc.credentialID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastJSON = nil
}

// ServerAvailable reports whether a registry answers on the base URL.
func (tc *TestContext) ServerAvailable() bool {
	resp, err := tc.client.Get(tc.baseURL + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (tc *TestContext) BaseURL() string {
	return tc.baseURL
}

// PrincipalFor returns the DID standing behind a scenario name, assigning a
// fresh one on first use.
func (tc *TestContext) PrincipalFor(name string) string {
	if did, ok := tc.principals[name]; ok {
		return did
	}
	did := fmt.Sprintf("did:example:%s-%s", name, tc.runID)
	tc.principals[name] = did
	return did
}

// AuthenticateAs mints an access token for the named scenario principal.
func (tc *TestContext) AuthenticateAs(name string) error {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   tc.PrincipalFor(name),
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{tokenAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		ID:        uuid.NewString(),
	})

	signed, err := token.SignedString(tc.signingKey)
	if err != nil {
		return fmt.Errorf("sign access token: %w", err)
	}
	tc.accessToken = signed
	return nil
}

func (tc *TestContext) ClearAuthentication() {
	tc.accessToken = ""
}

func (tc *TestContext) GetAccessToken() string {
	return tc.accessToken
}

func (tc *TestContext) SetCredentialID(id string) {
	tc.credentialID = id
}

func (tc *TestContext) GetCredentialID() string {
	return tc.credentialID
}

// POST sends a JSON body, attaching the current access token if one is set.
func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.send(http.MethodPost, path, body)
}

// PUT sends a JSON body, attaching the current access token if one is set.
func (tc *TestContext) PUT(path string, body interface{}) error {
	return tc.send(http.MethodPut, path, body)
}

// GET fetches a path with the given extra headers.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.do(req)
}

func (tc *TestContext) send(method, path string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}

	req, err := http.NewRequest(method, tc.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tc.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.accessToken)
	}
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	tc.lastStatus = resp.StatusCode
	tc.lastBody = raw
	tc.lastJSON = nil
	if len(raw) > 0 {
		var decoded map[string]interface{}
		if err := json.Unmarshal(raw, &decoded); err == nil {
			tc.lastJSON = decoded
		}
	}
	return nil
}

func (tc *TestContext) StatusCode() int {
	return tc.lastStatus
}

// GetResponseField returns a top-level field of the last JSON response.
func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	if tc.lastJSON == nil {
		return nil, fmt.Errorf("last response was not a JSON object: %s", tc.lastBody)
	}
	value, ok := tc.lastJSON[field]
	if !ok {
		return nil, fmt.Errorf("response has no field %q: %s", field, tc.lastBody)
	}
	return value, nil
}

// ResponseContains reports whether the last JSON response has the field.
func (tc *TestContext) ResponseContains(field string) bool {
	if tc.lastJSON == nil {
		return false
	}
	_, ok := tc.lastJSON[field]
	return ok
}
