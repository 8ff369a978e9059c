// Package auth implements the credential validator (component A, spec
// §4.1): verify a bearer token's signature and validity window, then
// extract the identity/displayName/metadata/grants claims every joinRoom
// intent carries.
//
// Grounded on internal/v1/auth/validator.go's Validator (JWKS cache via
// lestrrat-go/jwx/v2, golang-jwt/jwt/v5 parse-with-claims, constant-time
// signature comparison inherited from the jwt library) and MockValidator
// (dev-mode stand-in). Extended with a shared-secret HMAC path for the
// deployment mode that has no JWKS issuer to poll, and CustomClaims gains
// the Grants object spec §4.1 requires (roomJoin/canPublish/canSubscribe/
// canPublishData plus an optional room-name restriction) in place of a
// bare Scope string.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/meshcall/controlplane/internal/apperror"
)

// Grants carries the capability booleans and optional room restriction a
// validated credential authorizes (spec §4.1).
type Grants struct {
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
	Room           string `json:"room,omitempty"`
}

// Credential is the identity and grants extracted from a validated token.
type Credential struct {
	Identity    string
	DisplayName string
	Metadata    map[string]string
	Grants      Grants
}

// CustomClaims is the JWT claim shape the validators parse. It embeds
// jwt.RegisteredClaims for nbf/exp/iss checking and carries the spec §4.1
// fields directly rather than a bare Scope string.
type CustomClaims struct {
	Identity    string            `json:"identity"`
	DisplayName string            `json:"displayName,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Grants      Grants            `json:"grants"`
	jwt.RegisteredClaims
}

func (c *CustomClaims) toCredential() *Credential {
	return &Credential{
		Identity:    c.Identity,
		DisplayName: c.DisplayName,
		Metadata:    c.Metadata,
		Grants:      c.Grants,
	}
}

// Validator verifies a bearer token string and extracts its Credential.
// Malformed, expired/not-yet-valid, and signature-mismatched tokens all
// surface as apperror.Unauthorized (spec §4.1's three failure modes) —
// callers must not distinguish between them, closing the timing side
// channel the spec calls out.
type Validator interface {
	ValidateToken(tokenString string) (*Credential, error)
}

// HMACValidator validates tokens signed with a pre-shared secret —
// the deployment mode config.Auth.JWTSecret selects when no JWKS issuer is
// configured.
type HMACValidator struct {
	secret []byte
	issuer string
}

// NewHMACValidator constructs an HMACValidator. issuer may be empty to
// skip issuer checking.
func NewHMACValidator(secret []byte, issuer string) *HMACValidator {
	return &HMACValidator{secret: secret, issuer: issuer}
}

func (v *HMACValidator) ValidateToken(tokenString string) (*Credential, error) {
	opts := []jwt.ParserOption{}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, apperror.Wrap(apperror.Unauthorized, "token validation failed", err)
	}
	if !token.Valid {
		return nil, apperror.New(apperror.Unauthorized, "token is invalid")
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, apperror.New(apperror.Unauthorized, "failed to extract claims")
	}
	return claims.toCredential(), nil
}

// JWKSValidator validates tokens against keys fetched from a rotating
// JWKS endpoint, for the asymmetric-key deployment mode (spec §4.1's
// "configured issuer-key-id" path) — grounded verbatim on
// internal/v1/auth/validator.go's NewValidator.
type JWKSValidator struct {
	keyFunc  jwt.Keyfunc
	issuer   string
	audience string
}

// NewJWKSValidator registers domain's JWKS endpoint with a refreshing
// cache and confirms initial connectivity by fetching keys once.
func NewJWKSValidator(ctx context.Context, domain, audience string, regOpts ...jwk.RegisterOption) (*JWKSValidator, error) {
	issuerURL, err := url.Parse("https://" + domain + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse issuer URL: %w", err)
	}
	jwksURL := issuerURL.JoinPath(".well-known/jwks.json").String()

	cache := jwk.NewCache(ctx)
	opts := append([]jwk.RegisterOption{jwk.WithRefreshInterval(time.Hour)}, regOpts...)
	if err := cache.Register(jwksURL, opts...); err != nil {
		return nil, fmt.Errorf("failed to register JWKS URL in cache: %w", err)
	}
	if _, err := cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("failed to fetch initial JWKS: %w", err)
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, errors.New("kid header not found")
		}
		keys, err := cache.Get(ctx, jwksURL)
		if err != nil {
			return nil, fmt.Errorf("failed to get keys from cache: %w", err)
		}
		key, found := keys.LookupKeyID(kid)
		if !found {
			return nil, fmt.Errorf("key with kid %s not found", kid)
		}
		var pubKey interface{}
		if err := key.Raw(&pubKey); err != nil {
			return nil, fmt.Errorf("failed to get raw public key: %w", err)
		}
		return pubKey, nil
	}

	return &JWKSValidator{keyFunc: keyFunc, issuer: issuerURL.String(), audience: audience}, nil
}

func (v *JWKSValidator) ValidateToken(tokenString string) (*Credential, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, v.keyFunc,
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, apperror.Wrap(apperror.Unauthorized, "token validation failed", err)
	}
	if !token.Valid {
		return nil, apperror.New(apperror.Unauthorized, "token is invalid")
	}
	claims, ok := token.Claims.(*CustomClaims)
	if !ok {
		return nil, apperror.New(apperror.Unauthorized, "failed to extract claims")
	}
	return claims.toCredential(), nil
}

// MockValidator is a development-only Validator that accepts any token,
// extracting identity/displayName from an unsigned JWT payload when
// present and granting full permissions — grounded verbatim on
// internal/v1/auth/validator.go's MockValidator, extended to populate
// Grants instead of a bare Scope.
type MockValidator struct{}

func (m *MockValidator) ValidateToken(tokenString string) (*Credential, error) {
	identity, displayName := "dev-user-123", "Dev User"

	parts := strings.Split(tokenString, ".")
	if len(parts) == 3 {
		if payload, err := base64.RawURLEncoding.DecodeString(parts[1]); err == nil {
			var claims map[string]interface{}
			if json.Unmarshal(payload, &claims) == nil {
				if sub, ok := claims["sub"].(string); ok && sub != "" {
					identity = sub
				}
				if n, ok := claims["name"].(string); ok && n != "" {
					displayName = n
				}
			}
		}
	}

	return &Credential{
		Identity:    identity,
		DisplayName: displayName,
		Grants: Grants{
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}, nil
}
