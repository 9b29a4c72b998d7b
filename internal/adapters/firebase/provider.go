// Package firebase verifies Firebase ID tokens and manages account custom
// claims through the Identity Toolkit API.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

const (
	// SecureTokenJWKS publishes the keys that sign Firebase ID tokens.
	SecureTokenJWKS = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	issuerPrefix = "https://securetoken.google.com/"
	pageSize     = 500
)

// reservedClaims are set by Firebase itself and never treated as custom claims.
var reservedClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "auth_time": {}, "user_id": {}, "sub": {}, "iat": {}, "exp": {},
	"email": {}, "email_verified": {}, "firebase": {}, "name": {}, "picture": {},
	"phone_number": {}, "nonce": {},
}

// Config holds configuration for the Firebase provider.
type Config struct {
	ProjectID       string
	CredentialsFile string
	HTTPClient      *http.Client // Optional, defaults to a client with a 30s timeout

	// KeySet overrides the remote Google key set. Tests use a static set.
	KeySet gooidc.KeySet
	// ClientOptions are appended to the Identity Toolkit client options.
	ClientOptions []option.ClientOption
	// Now overrides the verifier clock.
	Now func() time.Time
	// Logger receives warnings about account records that cannot be read.
	Logger *slog.Logger
}

// Provider implements ports.IdentityProvider on top of Firebase Authentication.
type Provider struct {
	projectID string
	verifier  *gooidc.IDTokenVerifier
	accounts  *identitytoolkit.RelyingpartyService
	logger    *slog.Logger
}

// NewProvider creates a Firebase provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project ID is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	keySet := cfg.KeySet
	if keySet == nil {
		keyCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		keySet = gooidc.NewRemoteKeySet(keyCtx, SecureTokenJWKS)
	}
	verifier := gooidc.NewVerifier(issuerPrefix+cfg.ProjectID, keySet, &gooidc.Config{
		ClientID: cfg.ProjectID,
		Now:      cfg.Now,
	})

	opts := []option.ClientOption{option.WithScopes(identitytoolkit.CloudPlatformScope)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, cfg.ClientOptions...)
	svc, err := identitytoolkit.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("identity toolkit client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		projectID: cfg.ProjectID,
		verifier:  verifier,
		accounts:  svc.Relyingparty,
		logger:    logger,
	}, nil
}

type tokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// VerifyToken checks signature, issuer, audience and expiry of a Firebase ID token.
func (p *Provider) VerifyToken(ctx context.Context, token string) (domainauth.Identity, error) {
	idTok, err := p.verifier.Verify(ctx, token)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id token: %w", err)
	}
	if idTok.Subject == "" {
		return domainauth.Identity{}, errors.New("verify id token: empty subject")
	}

	var std tokenClaims
	if claimsErr := idTok.Claims(&std); claimsErr != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id token claims: %w", claimsErr)
	}
	var all map[string]any
	if claimsErr := idTok.Claims(&all); claimsErr != nil {
		return domainauth.Identity{}, fmt.Errorf("parse id token claims: %w", claimsErr)
	}

	return domainauth.Identity{
		UID:           idTok.Subject,
		Email:         std.Email,
		EmailVerified: std.EmailVerified,
		Claims:        customClaims(all),
		ExpiresAt:     idTok.Expiry,
	}, nil
}

// ListAccounts pages through every account in the project.
func (p *Provider) ListAccounts(ctx context.Context, visit func(domainauth.Account) bool) error {
	pageToken := ""
	for {
		resp, err := p.accounts.DownloadAccount(&identitytoolkit.IdentitytoolkitRelyingpartyDownloadAccountRequest{
			MaxResults:      pageSize,
			NextPageToken:   pageToken,
			TargetProjectId: p.projectID,
		}).Context(ctx).Do()
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "list accounts")
		}
		for _, u := range resp.Users {
			if u == nil {
				continue
			}
			acc, convErr := toAccount(u)
			if convErr != nil {
				// The account is listed without custom claims, which ranks it
				// below admin.
				p.logger.WarnContext(ctx, "unreadable custom claims on account", "user_id", u.LocalId, "error", convErr)
				acc.CustomClaims = nil
			}
			if !visit(acc) {
				return nil
			}
		}
		if resp.NextPageToken == "" || len(resp.Users) == 0 {
			return nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetAccount fetches a single account by UID.
func (p *Provider) GetAccount(ctx context.Context, uid string) (domainauth.Account, error) {
	resp, err := p.accounts.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		LocalId: []string{uid},
	}).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return domainauth.Account{}, apperrors.Wrap(err, apperrors.ErrCodeNotFound, "account not found")
		}
		return domainauth.Account{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "get account")
	}
	if len(resp.Users) == 0 {
		return domainauth.Account{}, apperrors.NotFound("account not found")
	}
	return toAccount(resp.Users[0])
}

// SetCustomClaims replaces the account's custom claims.
func (p *Provider) SetCustomClaims(ctx context.Context, uid string, claims domainauth.Claims) error {
	if claims == nil {
		claims = domainauth.Claims{}
	}
	encoded, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode custom claims: %w", err)
	}
	_, err = p.accounts.SetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		LocalId:          uid,
		CustomAttributes: string(encoded),
	}).Context(ctx).Do()
	if err != nil {
		if isNotFound(err) {
			return apperrors.Wrap(err, apperrors.ErrCodeNotFound, "account not found")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "set custom claims")
	}
	return nil
}

func toAccount(u *identitytoolkit.UserInfo) (domainauth.Account, error) {
	if u == nil {
		return domainauth.Account{}, errors.New("nil account record")
	}
	acc := domainauth.Account{
		UID:      u.LocalId,
		Email:    u.Email,
		Disabled: u.Disabled,
	}
	if attrs := strings.TrimSpace(u.CustomAttributes); attrs != "" {
		var claims domainauth.Claims
		if err := json.Unmarshal([]byte(attrs), &claims); err != nil {
			return acc, fmt.Errorf("decode custom claims for %s: %w", u.LocalId, err)
		}
		acc.CustomClaims = claims
	}
	return acc, nil
}

func customClaims(all map[string]any) domainauth.Claims {
	out := domainauth.Claims{}
	for k, v := range all {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		out[k] = v
	}
	return out
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code == http.StatusNotFound || strings.Contains(gerr.Message, "USER_NOT_FOUND")
}
