package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Identity is who is calling, as asserted by a verified token
type Identity struct {
	Subject string
	Email   string
}

type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's Authorization header
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}
	return parts[1], nil
}

// OIDCVerifier checks tokens against an OpenID Connect issuer
type OIDCVerifier struct {
	verifier   *oidc.IDTokenVerifier
	emailClaim string
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID, emailClaim string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("create OIDC provider for %s: %w", issuer, err)
	}
	cfg := &oidc.Config{ClientID: clientID}
	if clientID == "" {
		cfg.SkipClientIDCheck = true
	}
	return &OIDCVerifier{verifier: provider.Verifier(cfg), emailClaim: emailClaim}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	var claims map[string]interface{}
	if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return identityFromClaims(claims, v.emailClaim)
}

// HMACVerifier checks HS256 tokens signed with a shared secret. Used for
// self-hosted deployments without an identity provider.
type HMACVerifier struct {
	secret     []byte
	emailClaim string
}

func NewHMACVerifier(secret, emailClaim string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret), emailClaim: emailClaim}
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (Identity, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	return identityFromClaims(claims, v.emailClaim)
}

// IssueHMACToken signs a vendor token, used by tests and local tooling
func IssueHMACToken(secret string, claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func identityFromClaims(claims map[string]interface{}, emailClaim string) (Identity, error) {
	if emailClaim == "" {
		emailClaim = "email"
	}
	sub, _ := claims["sub"].(string)
	email, _ := claims[emailClaim].(string)
	if email == "" {
		return Identity{}, fmt.Errorf("claim %q not found in token", emailClaim)
	}
	return Identity{Subject: sub, Email: strings.ToLower(email)}, nil
}
