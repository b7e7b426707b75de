package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
	"github.com/kursadbilgin/escalation-engine/internal/sla"
	"go.uber.org/zap"
)

func testSelector(t *testing.T, items *fakeItemRepo) *CandidateSelector {
	t.Helper()

	selector, err := NewCandidateSelector(
		items,
		sla.DefaultCatalog(),
		NewAnchorResolver("Europe/Paris", zap.NewNop()),
		0,
		zap.NewNop(),
	)
	if err != nil {
		t.Fatalf("NewCandidateSelector() error = %v", err)
	}
	return selector
}

func contactItem(createdAt time.Time, state domain.EngineState) domain.TrackableItem {
	return domain.TrackableItem{
		ID:            "item-1",
		RecipientID:   "user-1",
		RecipientKind: domain.RecipientStaff,
		Category:      domain.CategoryContactMessage,
		Status:        domain.ItemStatusUnread,
		Priority:      domain.PriorityHigh,
		Payload: map[string]any{
			domain.PayloadName:  "Jean Martin",
			domain.PayloadEmail: "jean@example.com",
		},
		State:     state,
		CreatedAt: createdAt,
	}
}

func TestSelect_MostSevereCrossedThresholdWins(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	item := contactItem(t0, domain.EngineState{})
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	// 130h past creation crosses all three boundaries; only critical fires.
	candidates, scanned, err := selector.Select(context.Background(), t0.Add(130*time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if scanned != 1 {
		t.Fatalf("scanned = %d, want 1", scanned)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if candidates[0].Threshold != domain.ThresholdCritical {
		t.Fatalf("threshold = %q, want critical", candidates[0].Threshold)
	}
}

func TestSelect_FiredThresholdNeverRefires(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	item := contactItem(t0, domain.EngineState{
		EscalationLevel: 1,
		RemindersSent:   map[domain.Threshold]bool{domain.ThresholdTarget: true},
	})
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	// Still inside the acceptable window; target already fired.
	candidates, _, err := selector.Select(context.Background(), t0.Add(30*time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestSelect_StaleLowerThresholdSuppressedAfterSevereFire(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	// Critical already fired; acceptable and target crossings are stale and
	// must never fire afterwards.
	item := contactItem(t0, domain.EngineState{
		EscalationLevel: 1,
		RemindersSent:   map[domain.Threshold]bool{domain.ThresholdCritical: true},
	})
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	candidates, _, err := selector.Select(context.Background(), t0.Add(150*time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestSelect_CappedItemIsInert(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	item := contactItem(t0, domain.EngineState{EscalationLevel: domain.MaxEscalationLevel})
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	candidates, _, err := selector.Select(context.Background(), t0.Add(500*time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestSelect_ResolvedItemIsInert(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	item := contactItem(t0, domain.EngineState{})
	item.Resolved = true
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	candidates, _, err := selector.Select(context.Background(), t0.Add(500*time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestSelect_DueAnchoredSingleCrossing(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	item := domain.TrackableItem{
		ID:            "item-due",
		RecipientID:   "user-1",
		RecipientKind: domain.RecipientClient,
		Category:      domain.CategoryPaymentRequest,
		Status:        domain.ItemStatusActive,
		Priority:      domain.PriorityHigh,
		Payload:       map[string]any{payloadAmount: float64(150)},
		State:         domain.EngineState{DueAt: &due},
		CreatedAt:     due.Add(-48 * time.Hour),
	}
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	before, _, err := selector.Select(context.Background(), due.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(before) != 0 {
		t.Fatalf("candidates before due = %d, want 0", len(before))
	}

	after, _, err := selector.Select(context.Background(), due.Add(time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(after) != 1 {
		t.Fatalf("candidates after due = %d, want 1", len(after))
	}
	if after[0].Threshold != domain.ThresholdOverdue {
		t.Fatalf("threshold = %q, want overdue", after[0].Threshold)
	}
}

func TestSelect_ScheduledStartingNowOneShot(t *testing.T) {
	t.Parallel()

	item := *testScheduledItem("2024-07-15", "10:00", "Europe/Paris")
	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	})

	// 10:00 CEST is 08:00 UTC.
	now := time.Date(2024, 7, 15, 8, 2, 0, 0, time.UTC)
	candidates, _, err := selector.Select(context.Background(), now)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}
	if !candidates[0].StartingNow {
		t.Fatal("StartingNow = false, want true")
	}

	// After the flag is set the signal never repeats.
	notified := item
	notified.State = domain.EngineState{StartingNotified: true}
	selector = testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{notified}, nil
		},
	})
	candidates, _, err = selector.Select(context.Background(), now)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(candidates))
	}
}

func TestSelect_RepositoryErrorPropagates(t *testing.T) {
	t.Parallel()

	selector := testSelector(t, &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return nil, errors.New("connection refused")
		},
	})

	if _, _, err := selector.Select(context.Background(), time.Now()); err == nil {
		t.Fatal("Select() error = nil, want error")
	}
}

// TestSelect_ContactMessageLifecycle walks one contact item through every
// scheduled evaluation: target at 25h, acceptable at 49h, critical at 121h,
// then nothing more once the level cap is reached.
func TestSelect_ContactMessageLifecycle(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	item := contactItem(t0, domain.EngineState{})

	repo := &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	}
	selector := testSelector(t, repo)

	steps := []struct {
		elapsed time.Duration
		want    domain.Threshold
		fires   bool
	}{
		{25 * time.Hour, domain.ThresholdTarget, true},
		{49 * time.Hour, domain.ThresholdAcceptable, true},
		{121 * time.Hour, domain.ThresholdCritical, true},
		{200 * time.Hour, "", false},
	}

	for _, step := range steps {
		now := t0.Add(step.elapsed)
		candidates, _, err := selector.Select(context.Background(), now)
		if err != nil {
			t.Fatalf("Select(+%v) error = %v", step.elapsed, err)
		}

		if !step.fires {
			if len(candidates) != 0 {
				t.Fatalf("Select(+%v) candidates = %d, want 0", step.elapsed, len(candidates))
			}
			continue
		}

		if len(candidates) != 1 {
			t.Fatalf("Select(+%v) candidates = %d, want 1", step.elapsed, len(candidates))
		}
		cand := candidates[0]
		if cand.Threshold != step.want {
			t.Fatalf("Select(+%v) threshold = %q, want %q", step.elapsed, cand.Threshold, step.want)
		}

		item.State = NextState(cand, now)
	}

	if item.State.EscalationLevel != domain.MaxEscalationLevel {
		t.Fatalf("final level = %d, want %d", item.State.EscalationLevel, domain.MaxEscalationLevel)
	}
	if item.State.LastEscalationAt == nil {
		t.Fatal("LastEscalationAt = nil after fires")
	}
}

// TestSelect_RollingDueWindow verifies that an overdue fire reopens the window
// from the fire time, not the original deadline.
func TestSelect_RollingDueWindow(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)
	item := domain.TrackableItem{
		ID:            "item-due",
		RecipientID:   "user-1",
		RecipientKind: domain.RecipientClient,
		Category:      domain.CategoryDefault,
		Status:        domain.ItemStatusActive,
		Priority:      domain.PriorityMedium,
		Title:         "Pending task",
		State:         domain.EngineState{DueAt: &due},
		CreatedAt:     due.Add(-24 * time.Hour),
	}

	repo := &fakeItemRepo{
		listFn: func(ctx context.Context, limit int) ([]domain.TrackableItem, error) {
			return []domain.TrackableItem{item}, nil
		},
	}
	selector := testSelector(t, repo)

	fireTime := due.Add(3 * time.Hour)
	candidates, _, err := selector.Select(context.Background(), fireTime)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}

	item.State = NextState(candidates[0], fireTime)

	wantDue := fireTime.Add(time.Duration(DefaultSLAHours) * time.Hour)
	if item.State.DueAt == nil || !item.State.DueAt.Equal(wantDue) {
		t.Fatalf("DueAt = %v, want %v", item.State.DueAt, wantDue)
	}

	// Inside the reopened window nothing fires.
	quiet, _, err := selector.Select(context.Background(), fireTime.Add(12*time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(quiet) != 0 {
		t.Fatalf("candidates inside reopened window = %d, want 0", len(quiet))
	}

	// Past it the next crossing fires.
	again, _, err := selector.Select(context.Background(), wantDue.Add(time.Hour))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("candidates past reopened window = %d, want 1", len(again))
	}
}
