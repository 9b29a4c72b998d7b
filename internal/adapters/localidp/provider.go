// Package localidp is a Redis-backed identity provider for local development
// and the admin CLI. It issues HS256 ID tokens that carry the account's
// custom claims as of issuance, the same way hosted providers do.
package localidp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	apperrors "github.com/target/cqrs-monitor/internal/errors"
)

// Config controls the local provider.
type Config struct {
	SigningKey string
	Issuer     string
	TokenTTL   time.Duration // default 1h when zero
	KeyPrefix  string        // default "localidp:" when empty
	Now        func() time.Time
}

// Provider implements ports.IdentityProvider against Redis hashes.
type Provider struct {
	client   redis.UniversalClient
	key      []byte
	issuer   string
	tokenTTL time.Duration
	prefix   string
	now      func() time.Time
}

// NewProvider constructs a local provider from Config.
func NewProvider(client redis.UniversalClient, cfg Config) (*Provider, error) {
	if client == nil {
		return nil, errors.New("local idp: redis client is required")
	}
	if len(cfg.SigningKey) < 16 {
		return nil, errors.New("local idp: signing key must be at least 16 bytes")
	}
	if cfg.Issuer == "" {
		return nil, errors.New("local idp: issuer is required")
	}
	ttl := cfg.TokenTTL
	if ttl == 0 {
		ttl = time.Hour
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "localidp:"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		client:   client,
		key:      []byte(cfg.SigningKey),
		issuer:   cfg.Issuer,
		tokenTTL: ttl,
		prefix:   prefix,
		now:      now,
	}, nil
}

func (p *Provider) accountKey(uid string) string { return p.prefix + "account:" + uid }
func (p *Provider) emailKey(email string) string { return p.prefix + "email:" + strings.ToLower(email) }
func (p *Provider) indexKey() string { return p.prefix + "accounts" }

type idClaims struct {
	Email         string            `json:"email,omitempty"`
	EmailVerified bool              `json:"email_verified"`
	Custom        domainauth.Claims `json:"claims,omitempty"`
	jwt.RegisteredClaims
}

// CreateAccount registers a new account. Emails are unique, case-insensitively.
func (p *Provider) CreateAccount(ctx context.Context, email string) (domainauth.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return domainauth.Account{}, apperrors.ValidationField("email", "a valid email is required")
	}

	uid := uuid.NewString()
	claimed, err := p.client.SetNX(ctx, p.emailKey(email), uid, 0).Result()
	if err != nil {
		return domainauth.Account{}, fmt.Errorf("redis reserve email: %w", err)
	}
	if !claimed {
		return domainauth.Account{}, apperrors.Conflict("an account with this email already exists")
	}

	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, p.accountKey(uid), map[string]any{
		"uid":      uid,
		"email":    email,
		"disabled": "0",
		"claims":   "{}",
	})
	pipe.SAdd(ctx, p.indexKey(), uid)
	if _, err := pipe.Exec(ctx); err != nil {
		return domainauth.Account{}, fmt.Errorf("redis create account: %w", err)
	}
	return domainauth.Account{UID: uid, Email: email, CustomClaims: domainauth.Claims{}}, nil
}

// FindByEmail returns the account registered under email.
func (p *Provider) FindByEmail(ctx context.Context, email string) (domainauth.Account, error) {
	uid, err := p.client.Get(ctx, p.emailKey(strings.TrimSpace(email))).Result()
	if errors.Is(err, redis.Nil) {
		return domainauth.Account{}, apperrors.NotFound("account not found")
	}
	if err != nil {
		return domainauth.Account{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "lookup account")
	}
	return p.GetAccount(ctx, uid)
}

// SetDisabled enables or disables sign-in for an account.
func (p *Provider) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	if _, err := p.GetAccount(ctx, uid); err != nil {
		return err
	}
	v := "0"
	if disabled {
		v = "1"
	}
	return p.client.HSet(ctx, p.accountKey(uid), "disabled", v).Err()
}

// IssueToken mints an ID token for uid carrying its current custom claims.
func (p *Provider) IssueToken(ctx context.Context, uid string) (string, time.Time, error) {
	acc, err := p.GetAccount(ctx, uid)
	if err != nil {
		return "", time.Time{}, err
	}
	if acc.Disabled {
		return "", time.Time{}, apperrors.Forbidden("account is disabled")
	}

	now := p.now()
	exp := now.Add(p.tokenTTL)
	claims := idClaims{
		Email:         acc.Email,
		EmailVerified: true,
		Custom:        acc.CustomClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   acc.UID,
			Audience:  jwt.ClaimStrings{p.issuer},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// VerifyToken validates a token minted by IssueToken.
func (p *Provider) VerifyToken(ctx context.Context, token string) (domainauth.Identity, error) {
	var claims idClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id token: %w", err)
	}

	acc, err := p.GetAccount(ctx, claims.Subject)
	if err != nil {
		return domainauth.Identity{}, fmt.Errorf("verify id token: %w", err)
	}
	if acc.Disabled {
		return domainauth.Identity{}, errors.New("verify id token: account is disabled")
	}

	custom := claims.Custom
	if custom == nil {
		custom = domainauth.Claims{}
	}
	return domainauth.Identity{
		UID:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Claims:        custom,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

// ListAccounts visits accounts in UID order.
func (p *Provider) ListAccounts(ctx context.Context, visit func(domainauth.Account) bool) error {
	uids, err := p.client.SMembers(ctx, p.indexKey()).Result()
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "list accounts")
	}
	slices.Sort(uids)
	for _, uid := range uids {
		acc, getErr := p.GetAccount(ctx, uid)
		if apperrors.IsNotFound(getErr) {
			continue
		}
		if getErr != nil {
			return getErr
		}
		if !visit(acc) {
			return nil
		}
	}
	return nil
}

// GetAccount fetches a single account by UID.
func (p *Provider) GetAccount(ctx context.Context, uid string) (domainauth.Account, error) {
	if uid == "" {
		return domainauth.Account{}, apperrors.NotFound("account not found")
	}
	fields, err := p.client.HGetAll(ctx, p.accountKey(uid)).Result()
	if err != nil {
		return domainauth.Account{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "get account")
	}
	if len(fields) == 0 {
		return domainauth.Account{}, apperrors.NotFound("account not found")
	}

	disabled, _ := strconv.ParseBool(fields["disabled"])
	acc := domainauth.Account{
		UID:          fields["uid"],
		Email:        fields["email"],
		Disabled:     disabled,
		CustomClaims: domainauth.Claims{},
	}
	if raw := fields["claims"]; raw != "" {
		if jsonErr := json.Unmarshal([]byte(raw), &acc.CustomClaims); jsonErr != nil {
			return domainauth.Account{}, apperrors.Wrap(jsonErr, apperrors.ErrCodeInternal, "decode custom claims")
		}
	}
	return acc, nil
}

// SetCustomClaims replaces the account's custom claims.
func (p *Provider) SetCustomClaims(ctx context.Context, uid string, claims domainauth.Claims) error {
	if _, err := p.GetAccount(ctx, uid); err != nil {
		return err
	}
	if claims == nil {
		claims = domainauth.Claims{}
	}
	encoded, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode custom claims: %w", err)
	}
	if err := p.client.HSet(ctx, p.accountKey(uid), "claims", string(encoded)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "set custom claims")
	}
	return nil
}
