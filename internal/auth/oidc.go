package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Provider names accepted by the auth.provider setting. Azure AD is
// ordinary OIDC with a derivable issuer and a couple of claim-shape
// differences handled below; "none" disables bearer auth entirely.
const (
	ProviderAzureAD = "azure_ad"
	ProviderOIDC    = "oidc"
	ProviderNone    = "none"
)

// OIDCClaims are the JWT claims consulted during authentication. Role
// and TenantSlug are the custom claims this platform issues; Roles and
// DirectoryTenant are the shapes Azure AD produces instead (app roles
// as an array, the directory id as tid).
type OIDCClaims struct {
	Subject           string   `json:"sub"`
	Email             string   `json:"email"`
	PreferredUsername string   `json:"preferred_username"`
	TenantSlug        string   `json:"tenant_slug"`
	Role              string   `json:"role"`
	Roles             []string `json:"roles"`
	DirectoryTenant   string   `json:"tid"`
}

// OIDCAuthenticator validates bearer JWTs against one upstream identity
// provider and normalizes their claims.
type OIDCAuthenticator struct {
	verifier *oidc.IDTokenVerifier

	// directoryTenant, when set (azure_ad), must match the token's tid
	// claim; a valid Microsoft token from some other directory is still
	// rejected.
	directoryTenant string
}

// NewOIDCAuthenticator performs OIDC discovery and builds a verifier.
// For azure_ad the issuer is derived from the directory tenant when no
// explicit discovery URL is configured. Discovery makes a network call
// to fetch the provider's signing keys; key refresh on kid mismatch is
// handled inside the verifier.
func NewOIDCAuthenticator(ctx context.Context, providerName, issuerURL, directoryTenant, clientID string) (*OIDCAuthenticator, error) {
	if providerName == ProviderAzureAD && issuerURL == "" {
		if directoryTenant == "" {
			return nil, fmt.Errorf("auth.provider azure_ad requires auth.tenant_id or an explicit discovery URL")
		}
		issuerURL = fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", directoryTenant)
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering OIDC provider %s: %w", issuerURL, err)
	}

	a := &OIDCAuthenticator{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}
	if providerName == ProviderAzureAD {
		a.directoryTenant = directoryTenant
	}
	return a, nil
}

// Authenticate validates a Bearer token and returns normalized claims:
// directory pinned, role resolved from either claim shape, email
// backfilled from preferred_username when the provider omits it.
func (a *OIDCAuthenticator) Authenticate(ctx context.Context, bearerToken string) (*OIDCClaims, error) {
	token := strings.TrimSpace(bearerToken)
	if after, ok := strings.CutPrefix(token, "Bearer "); ok {
		token = after
	} else if after, ok := strings.CutPrefix(token, "bearer "); ok {
		token = after
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("empty bearer token")
	}

	idToken, err := a.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("verifying token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("extracting claims: %w", err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	if a.directoryTenant != "" && claims.DirectoryTenant != a.directoryTenant {
		return nil, fmt.Errorf("token issued by directory %q, expected %q", claims.DirectoryTenant, a.directoryTenant)
	}
	if claims.TenantSlug == "" {
		return nil, fmt.Errorf("token missing tenant_slug claim")
	}

	claims.Role = resolveRole(claims.Role, claims.Roles)
	if claims.Email == "" {
		claims.Email = claims.PreferredUsername
	}
	return &claims, nil
}

// resolveRole picks the effective role: the scalar claim when valid,
// otherwise the most privileged valid entry of the Azure app-roles
// array, otherwise the least privileged default.
func resolveRole(role string, roles []string) string {
	if IsValidRole(role) {
		return role
	}
	best := ""
	for _, r := range roles {
		if IsValidRole(r) && roleLevel[r] > roleLevel[best] {
			best = r
		}
	}
	if best != "" {
		return best
	}
	return RoleReadonly
}
