package config

import (
	"fmt"
	"strings"
	"time"
)

// IdentityMode selects the identity provider backing sessions and claims.
type IdentityMode string

const (
	// IdentityModeFirebase verifies Firebase ID tokens and manages custom claims
	// through the Identity Toolkit API.
	IdentityModeFirebase IdentityMode = "firebase"
	// IdentityModeLocal uses the Redis-backed development provider.
	IdentityModeLocal IdentityMode = "local"
)

// UnmarshalText implements encoding.TextUnmarshaler for IdentityMode.
func (m *IdentityMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "firebase", "local":
		*m = IdentityMode(v)
		return nil
	default:
		return fmt.Errorf("invalid IdentityMode: %q (valid options: firebase, local)", v)
	}
}

// FirebaseConfig contains Firebase project settings.
type FirebaseConfig struct {
	ProjectID string `env:"PROJECT_ID"`
	// CredentialsFile is a service account JSON used for account listing and
	// custom claims. Empty means application default credentials.
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

// LocalIdPConfig controls the Redis-backed development identity provider.
type LocalIdPConfig struct {
	SigningKey string        `env:"SIGNING_KEY" envDefault:"cqrs-monitor-dev-signing-key"`
	Issuer     string        `env:"ISSUER"      envDefault:"cqrs-monitor-local"`
	TokenTTL   time.Duration `env:"TOKEN_TTL"   envDefault:"1h"`
	KeyPrefix  string        `env:"KEY_PREFIX"  envDefault:"localidp:"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode IdentityMode `env:"AUTH_IDENTITY_MODE" envDefault:"local"`

	// InitialAdminEmail is the only account allowed to claim the first admin
	// role in production.
	InitialAdminEmail string `env:"AUTH_INITIAL_ADMIN_EMAIL"`

	// SessionTTL caps the lifetime of a server-side session.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"1h"`

	// SessionPrefix namespaces session keys in Redis.
	SessionPrefix string `env:"AUTH_SESSION_PREFIX" envDefault:"session:"`

	Firebase FirebaseConfig `envPrefix:"FIREBASE_"`
	Local    LocalIdPConfig `envPrefix:"LOCAL_IDP_"`
}

// Sanitize normalises auth configuration values.
func (a *AuthConfig) Sanitize() {
	a.InitialAdminEmail = strings.TrimSpace(a.InitialAdminEmail)
	a.Firebase.ProjectID = strings.TrimSpace(a.Firebase.ProjectID)
	if a.SessionTTL < time.Minute {
		a.SessionTTL = time.Minute
	}
	if a.Local.TokenTTL < time.Minute {
		a.Local.TokenTTL = time.Minute
	}
	if a.Mode == "" {
		a.Mode = IdentityModeLocal
	}
}

// Problems lists configuration gaps that make bootstrap or token verification
// impossible. Startup does not fail on them; the affected endpoints report
// misconfigured instead.
func (a *AuthConfig) Problems(env Environment) []string {
	var out []string
	if env == EnvProduction && a.InitialAdminEmail == "" {
		out = append(out, "AUTH_INITIAL_ADMIN_EMAIL is required in production")
	}
	if a.Mode == IdentityModeFirebase && a.Firebase.ProjectID == "" {
		out = append(out, "FIREBASE_PROJECT_ID is required for firebase identity mode")
	}
	if env == EnvProduction && a.Mode == IdentityModeLocal {
		out = append(out, "local identity mode should not be used in production")
	}
	return out
}
