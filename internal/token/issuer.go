// Package token implements the wire-level POST /api/token endpoint (spec
// §6): mint a short-lived credential a client then presents as its
// signaling bearer token. The credential issuer's internals are out of
// scope (spec §1); this is the minimal HMAC-signing counterpart to
// auth.HMACValidator that satisfies the documented request/response
// shape.
package token

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/meshcall/controlplane/internal/auth"
	"github.com/meshcall/controlplane/internal/config"
)

// Request is the POST /api/token body.
type Request struct {
	Identity    string            `json:"identity" binding:"required"`
	DisplayName string            `json:"displayName"`
	Room        string            `json:"room"`
	Metadata    map[string]string `json:"metadata"`
	Grants      *auth.Grants      `json:"grants"`
}

// Response is the POST /api/token reply.
type Response struct {
	Token string `json:"token"`
}

// Issuer mints bearer tokens gated on the API key/secret pair
// config.CredentialsConfig carries, signed with the same HMAC secret
// auth.HMACValidator verifies against.
type Issuer struct {
	apiKey    string
	apiSecret string
	jwtSecret []byte
	expiresIn time.Duration
}

// NewIssuer constructs an Issuer from the credentials and auth blocks of
// a validated Config. jwtSecret should match the control plane's own
// HMAC validator secret so tokens it mints are accepted on the
// signaling path; in JWKS deployment mode there is no issuer to mint
// against and NewIssuer returns nil.
func NewIssuer(cfg *config.Config) *Issuer {
	if cfg.Auth.JWTSecret == "" {
		return nil
	}
	return &Issuer{
		apiKey:    cfg.Credentials.APIKey,
		apiSecret: cfg.Credentials.APISecret,
		jwtSecret: []byte(cfg.Auth.JWTSecret),
		expiresIn: cfg.Credentials.ExpiresIn,
	}
}

// Handler serves POST /api/token: callers authenticate with the
// X-Api-Key/X-Api-Secret headers (matching the configured API key pair)
// and receive a signed credential for the requested identity/grants.
func (iss *Issuer) Handler(c *gin.Context) {
	if iss.apiKey != "" && (c.GetHeader("X-Api-Key") != iss.apiKey || c.GetHeader("X-Api-Secret") != iss.apiSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid api key/secret"})
		return
	}

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	grants := auth.Grants{RoomJoin: true, CanPublish: true, CanSubscribe: true, CanPublishData: true}
	if req.Grants != nil {
		grants = *req.Grants
	}
	if req.Room != "" {
		grants.Room = req.Room
	}

	expiresIn := iss.expiresIn
	if expiresIn <= 0 {
		expiresIn = 6 * time.Hour
	}

	claims := &auth.CustomClaims{
		Identity:    req.Identity,
		DisplayName: req.DisplayName,
		Metadata:    req.Metadata,
		Grants:      grants,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Identity,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(iss.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}

	c.JSON(http.StatusOK, Response{Token: signed})
}
