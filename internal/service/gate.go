package service

import (
	"context"
	"errors"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"go.uber.org/zap"
)

// PreferenceGate decides whether a channel may be used for a recipient.
// Absence of a preference record and any lookup failure both allow delivery:
// the gate fails open so an evaluation error never drops an escalation.
type PreferenceGate struct {
	prefs  repository.PreferenceRepository
	logger *zap.Logger
}

func NewPreferenceGate(prefs repository.PreferenceRepository, logger *zap.Logger) *PreferenceGate {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PreferenceGate{
		prefs:  prefs,
		logger: logger,
	}
}

func (g *PreferenceGate) MayDeliver(
	ctx context.Context,
	recipientID string,
	kind domain.RecipientKind,
	category domain.Category,
	channel domain.Channel,
	level domain.Threshold,
) bool {
	if g == nil || g.prefs == nil {
		return true
	}

	pref, err := g.prefs.Get(ctx, recipientID, kind)
	if errors.Is(err, domain.ErrNotFound) {
		return true
	}
	if err != nil {
		g.logger.Warn("preference lookup failed, failing open",
			zap.String("recipientId", recipientID),
			zap.String("channel", channel.String()),
			zap.Error(err),
		)
		return true
	}
	if pref == nil {
		return true
	}

	if !pref.Toggles.AnyEnabled() {
		return false
	}

	if override, ok := pref.Categories[category]; ok {
		if !override.Toggles.Allows(channel) {
			return false
		}
		if levelToggles, ok := override.Levels[level]; ok && !levelToggles.Allows(channel) {
			return false
		}
		return true
	}

	return pref.Toggles.Allows(channel)
}
