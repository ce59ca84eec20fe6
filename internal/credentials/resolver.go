package credentials

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atim-assistant/atim/internal/config"
	"github.com/atim-assistant/atim/internal/events"
	"github.com/atim-assistant/atim/internal/types"
)

// Scope is the access a caller needs.
type Scope string

const (
	ScopeRead  Scope = "read"
	ScopeWrite Scope = "write"
)

// Resolver tries strategies in priority order. The first configured
// strategy decides the outcome: if it fails, its error is returned rather
// than falling through to a lower tier.
type Resolver struct {
	strategies []Strategy
	recorder   events.Recorder
	logger     *slog.Logger
}

// NewResolver creates a resolver over strategies, highest priority first.
func NewResolver(strategies []Strategy, recorder events.Recorder, logger *slog.Logger) *Resolver {
	if recorder == nil {
		recorder = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{strategies: strategies, recorder: recorder, logger: logger}
}

// FromConfig builds the installation > bot > user chain.
func FromConfig(cfg config.Config, exchanger TokenExchanger, recorder events.Recorder, logger *slog.Logger) (*Resolver, error) {
	installation := NewInstallation(cfg.App.ID, cfg.App.InstallationID, nil, exchanger)
	if cfg.App.Configured() {
		pemBytes, err := cfg.App.PrivateKey()
		if err != nil {
			return nil, &types.TierError{Tier: types.TierInstallation, Err: err}
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, &types.TierError{Tier: types.TierInstallation, Err: fmt.Errorf("parsing private key: %w", err)}
		}
		installation.key = key
	}

	return NewResolver([]Strategy{
		installation,
		NewStaticToken(types.TierBot, cfg.BotToken),
		NewStaticToken(types.TierUser, cfg.UserToken),
	}, recorder, logger), nil
}

// Resolve returns the highest-priority usable identity.
func (r *Resolver) Resolve(ctx context.Context, scope Scope) (*Identity, error) {
	for _, s := range r.strategies {
		if !s.Configured() {
			continue
		}

		id, err := s.Token(ctx)
		if err != nil {
			r.recorder.Record(ctx, events.NewEvent(events.EventTypeCredentialFailed, "", events.SeverityError,
				fmt.Sprintf("%s credential failed", s.Tier()),
				map[string]interface{}{"tier": string(s.Tier()), "scope": string(scope), "error": err.Error()}))
			return nil, &types.TierError{Tier: s.Tier(), Err: err}
		}

		r.logger.Debug("credential resolved", "tier", id.Kind, "scope", scope)
		r.recorder.Record(ctx, events.NewEvent(events.EventTypeCredentialResolved, "", events.SeverityInfo,
			fmt.Sprintf("using %s credential for %s", id.Kind, scope),
			map[string]interface{}{"tier": string(id.Kind), "scope": string(scope)}))
		return id, nil
	}

	return nil, &types.TierError{Tier: types.TierNone, Err: types.ErrNoCredentialAvailable}
}

// TierStatus describes one tier for diagnostics.
type TierStatus struct {
	Tier       types.CredentialTier
	Configured bool
}

// Describe lists every tier in priority order and whether it is configured.
// The first configured tier is the one Resolve will use.
func (r *Resolver) Describe() []TierStatus {
	out := make([]TierStatus, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, TierStatus{Tier: s.Tier(), Configured: s.Configured()})
	}
	return out
}

// Active returns the tier Resolve would try, or TierNone.
func (r *Resolver) Active() types.CredentialTier {
	for _, s := range r.strategies {
		if s.Configured() {
			return s.Tier()
		}
	}
	return types.TierNone
}
