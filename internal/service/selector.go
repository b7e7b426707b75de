package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/repository"
	"github.com/kursadbilgin/escalation-engine/internal/sla"
	"go.uber.org/zap"
)

// defaultBatchLimit bounds worst-case tick latency.
const defaultBatchLimit = 500

// Candidate is one item whose threshold has been crossed this tick.
type Candidate struct {
	Item         domain.TrackableItem
	Threshold    domain.Threshold
	Anchor       Anchor
	Policy       sla.PolicyEntry
	HoursElapsed float64

	// StartingNow marks the one-shot "event is starting" signal for
	// scheduled items; it is not an escalation.
	StartingNow bool
}

// CandidateSelector scans unresolved items and picks crossed thresholds,
// most severe first.
type CandidateSelector struct {
	items    repository.ItemRepository
	catalog  *sla.Catalog
	resolver *AnchorResolver
	logger   *zap.Logger
	limit    int
}

func NewCandidateSelector(
	items repository.ItemRepository,
	catalog *sla.Catalog,
	resolver *AnchorResolver,
	limit int,
	logger *zap.Logger,
) (*CandidateSelector, error) {
	if items == nil {
		return nil, fmt.Errorf("item repository is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("policy catalog is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("anchor resolver is required")
	}
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CandidateSelector{
		items:    items,
		catalog:  catalog,
		resolver: resolver,
		logger:   logger,
		limit:    limit,
	}, nil
}

// Select returns this tick's candidates and the number of items scanned.
func (s *CandidateSelector) Select(ctx context.Context, now time.Time) ([]Candidate, int, error) {
	items, err := s.items.ListUnresolvedCandidates(ctx, s.limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list unresolved items: %w", err)
	}

	candidates := make([]Candidate, 0, len(items))
	for i := range items {
		item := items[i]
		if item.Resolved {
			continue
		}

		anchor, ok := s.resolver.Resolve(&item)
		if !ok {
			s.logger.Debug("anchor unresolvable, item treated as not yet due",
				zap.String("itemId", item.ID),
				zap.String("category", item.Category.String()),
			)
			continue
		}

		policy := s.catalog.Lookup(item.Category)

		if anchor.Strategy == AnchorScheduled && StartingNow(&item, anchor, now) {
			candidates = append(candidates, Candidate{
				Item:        item,
				Anchor:      anchor,
				Policy:      policy,
				StartingNow: true,
			})
		}

		if item.State.Capped() {
			continue
		}

		if anchor.Strategy == AnchorDue {
			if now.Before(anchor.At) {
				continue
			}
			candidates = append(candidates, Candidate{
				Item:         item,
				Threshold:    domain.ThresholdOverdue,
				Anchor:       anchor,
				Policy:       policy,
				HoursElapsed: now.Sub(anchor.At).Hours(),
			})
			continue
		}

		elapsed := now.Sub(anchor.At)
		for _, threshold := range domain.ThresholdsBySeverity {
			if elapsed < policy.DurationFor(threshold) {
				continue
			}
			if item.State.ReminderSent(threshold) {
				// A more severe crossing already fired; lower ones are stale.
				break
			}
			candidates = append(candidates, Candidate{
				Item:         item,
				Threshold:    threshold,
				Anchor:       anchor,
				Policy:       policy,
				HoursElapsed: elapsed.Hours(),
			})
			break
		}
	}

	return candidates, len(items), nil
}
