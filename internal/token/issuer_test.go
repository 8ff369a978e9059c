package token

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshcall/controlplane/internal/auth"
	"github.com/meshcall/controlplane/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret: "test-secret-at-least-32-bytes-long!",
		},
		Credentials: config.CredentialsConfig{
			APIKey:    "key",
			APISecret: "secret",
			ExpiresIn: time.Hour,
		},
	}
}

func TestNewIssuer_NilWithoutJWTSecret(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, NewIssuer(cfg))
}

func TestNewIssuer_BuildsFromConfig(t *testing.T) {
	iss := NewIssuer(testConfig())
	require.NotNil(t, iss)
}

func doTokenRequest(t *testing.T, iss *Issuer, body Request, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/token", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	iss.Handler(c)
	return w
}

func TestHandler_RejectsMissingAPIKey(t *testing.T) {
	iss := NewIssuer(testConfig())
	w := doTokenRequest(t, iss, Request{Identity: "alice"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_RejectsWrongAPISecret(t *testing.T) {
	iss := NewIssuer(testConfig())
	w := doTokenRequest(t, iss, Request{Identity: "alice"}, map[string]string{
		"X-Api-Key":    "key",
		"X-Api-Secret": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_RejectsMissingIdentity(t *testing.T) {
	iss := NewIssuer(testConfig())
	w := doTokenRequest(t, iss, Request{}, map[string]string{
		"X-Api-Key":    "key",
		"X-Api-Secret": "secret",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_MintsValidToken(t *testing.T) {
	cfg := testConfig()
	iss := NewIssuer(cfg)

	w := doTokenRequest(t, iss, Request{
		Identity:    "alice",
		DisplayName: "Alice",
		Room:        "room-1",
	}, map[string]string{
		"X-Api-Key":    "key",
		"X-Api-Secret": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	validator := auth.NewHMACValidator([]byte(cfg.Auth.JWTSecret), "")
	cred, err := validator.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Identity)
	assert.Equal(t, "Alice", cred.DisplayName)
	assert.True(t, cred.Grants.RoomJoin)
	assert.True(t, cred.Grants.CanPublish)
	assert.Equal(t, "room-1", cred.Grants.Room)
}

func TestHandler_NoAPIKeyConfiguredSkipsAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Credentials.APIKey = ""
	cfg.Credentials.APISecret = ""
	iss := NewIssuer(cfg)

	w := doTokenRequest(t, iss, Request{Identity: "bob"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandler_HonorsExplicitGrants(t *testing.T) {
	cfg := testConfig()
	iss := NewIssuer(cfg)

	w := doTokenRequest(t, iss, Request{
		Identity: "carol",
		Grants:   &auth.Grants{RoomJoin: true, CanSubscribe: true},
	}, map[string]string{
		"X-Api-Key":    "key",
		"X-Api-Secret": "secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	validator := auth.NewHMACValidator([]byte(cfg.Auth.JWTSecret), "")
	cred, err := validator.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.True(t, cred.Grants.CanSubscribe)
	assert.False(t, cred.Grants.CanPublish)
}
