package credentials

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atim-assistant/atim/internal/github"
	"github.com/atim-assistant/atim/internal/types"
)

// Identity is a usable credential for one call. Callers discard it after use.
type Identity struct {
	Token     string
	ExpiresAt time.Time // zero for static tokens
	Kind      types.CredentialTier
}

// Strategy produces a token for one credential tier.
type Strategy interface {
	Tier() types.CredentialTier
	// Configured reports whether the strategy has everything it needs to try.
	Configured() bool
	Token(ctx context.Context) (*Identity, error)
}

// StaticToken serves a pre-issued token (bot or user tier).
type StaticToken struct {
	tier  types.CredentialTier
	token string
}

// NewStaticToken creates a strategy for a fixed token.
func NewStaticToken(tier types.CredentialTier, token string) *StaticToken {
	return &StaticToken{tier: tier, token: token}
}

func (s *StaticToken) Tier() types.CredentialTier { return s.tier }

func (s *StaticToken) Configured() bool { return s.token != "" }

func (s *StaticToken) Token(ctx context.Context) (*Identity, error) {
	if s.token == "" {
		return nil, types.ErrNoCredentialAvailable
	}
	return &Identity{Token: s.token, Kind: s.tier}, nil
}

// TokenExchanger trades a signed app assertion for an installation token.
type TokenExchanger interface {
	CreateInstallationToken(ctx context.Context, assertion, installationID string) (*github.InstallationToken, error)
}

const (
	// assertions are backdated to tolerate clock drift with the platform
	clockSkew = 60 * time.Second
	// the platform refuses assertions living longer than ten minutes
	assertionLifetime = 10 * time.Minute
	// cached installation tokens are refreshed this long before expiry
	refreshMargin = 5 * time.Minute
)

// Installation mints short-lived installation tokens from a signed RS256
// assertion. Tokens are cached until shortly before they expire.
type Installation struct {
	appID          string
	installationID string
	key            *rsa.PrivateKey
	exchanger      TokenExchanger
	now            func() time.Time

	mu     sync.Mutex
	cached *Identity
}

// NewInstallation creates an installation strategy. key may be nil, in which
// case the strategy reports itself as not configured.
func NewInstallation(appID, installationID string, key *rsa.PrivateKey, exchanger TokenExchanger) *Installation {
	return &Installation{
		appID:          appID,
		installationID: installationID,
		key:            key,
		exchanger:      exchanger,
		now:            time.Now,
	}
}

func (s *Installation) Tier() types.CredentialTier { return types.TierInstallation }

func (s *Installation) Configured() bool {
	return s.appID != "" && s.installationID != "" && s.key != nil && s.exchanger != nil
}

// Token returns a cached installation token or exchanges a fresh assertion.
// A rejected exchange is retried once with a newly signed assertion.
func (s *Installation) Token(ctx context.Context) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Add(refreshMargin).Before(s.cached.ExpiresAt) {
		id := *s.cached
		return &id, nil
	}
	s.cached = nil

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		assertion, err := s.SignAssertion()
		if err != nil {
			return nil, err
		}

		tok, err := s.exchanger.CreateInstallationToken(ctx, assertion, s.installationID)
		if err == nil {
			id := &Identity{Token: tok.Token, ExpiresAt: tok.ExpiresAt, Kind: types.TierInstallation}
			s.cached = id
			out := *id
			return &out, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}
	}

	return nil, fmt.Errorf("%w: %w", types.ErrAssertionRejected, lastErr)
}

// SignAssertion builds the RS256 app assertion.
func (s *Installation) SignAssertion() (string, error) {
	if s.key == nil {
		return "", fmt.Errorf("signing assertion: no private key")
	}
	issuedAt := s.now().Add(-clockSkew)
	claims := jwt.RegisteredClaims{
		Issuer:    s.appID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(assertionLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing assertion: %w", err)
	}
	return signed, nil
}
