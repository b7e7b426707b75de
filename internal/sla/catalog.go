// Package sla holds the static policy catalog mapping categories to their
// escalation deadlines.
package sla

import (
	"fmt"
	"time"

	"github.com/kursadbilgin/escalation-engine/internal/domain"
)

// PolicyEntry is one immutable SLA policy. TargetHours < AcceptableHours <
// CriticalHours holds for every entry.
type PolicyEntry struct {
	TargetHours     int
	AcceptableHours int
	CriticalHours   int
	DefaultPriority domain.Priority
}

// HoursFor returns the hour boundary for a graded threshold.
func (e PolicyEntry) HoursFor(t domain.Threshold) int {
	switch t {
	case domain.ThresholdTarget:
		return e.TargetHours
	case domain.ThresholdAcceptable:
		return e.AcceptableHours
	case domain.ThresholdCritical:
		return e.CriticalHours
	}
	return 0
}

// DurationFor returns the boundary for a graded threshold as a duration.
func (e PolicyEntry) DurationFor(t domain.Threshold) time.Duration {
	return time.Duration(e.HoursFor(t)) * time.Hour
}

// Catalog is a read-only lookup from category to policy. Unknown categories
// resolve to the required default entry, so lookups never fail.
type Catalog struct {
	entries map[domain.Category]PolicyEntry
}

func NewCatalog(entries map[domain.Category]PolicyEntry) (*Catalog, error) {
	fallback, ok := entries[domain.CategoryDefault]
	if !ok {
		return nil, fmt.Errorf("catalog requires a %q entry", domain.CategoryDefault)
	}
	if err := validateEntry(domain.CategoryDefault, fallback); err != nil {
		return nil, err
	}

	copied := make(map[domain.Category]PolicyEntry, len(entries))
	for category, entry := range entries {
		if err := validateEntry(category, entry); err != nil {
			return nil, err
		}
		copied[category] = entry
	}

	return &Catalog{entries: copied}, nil
}

func validateEntry(category domain.Category, entry PolicyEntry) error {
	if entry.TargetHours <= 0 {
		return fmt.Errorf("category %q: target hours must be positive", category)
	}
	if entry.TargetHours >= entry.AcceptableHours || entry.AcceptableHours >= entry.CriticalHours {
		return fmt.Errorf("category %q: thresholds must satisfy target < acceptable < critical", category)
	}
	if !entry.DefaultPriority.IsValid() {
		return fmt.Errorf("category %q: invalid default priority %q", category, entry.DefaultPriority)
	}
	return nil
}

// Lookup resolves a category to its policy, falling back to default.
func (c *Catalog) Lookup(category domain.Category) PolicyEntry {
	if entry, ok := c.entries[category]; ok {
		return entry
	}
	return c.entries[domain.CategoryDefault]
}

// DefaultCatalog returns the production policy table.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(map[domain.Category]PolicyEntry{
		domain.CategoryContactMessage:       {TargetHours: 24, AcceptableHours: 48, CriticalHours: 120, DefaultPriority: domain.PriorityHigh},
		domain.CategoryAdminActionRequired:  {TargetHours: 12, AcceptableHours: 24, CriticalHours: 48, DefaultPriority: domain.PriorityHigh},
		domain.CategoryDocumentValidation:   {TargetHours: 24, AcceptableHours: 72, CriticalHours: 168, DefaultPriority: domain.PriorityMedium},
		domain.CategoryExpertAssignment:     {TargetHours: 24, AcceptableHours: 48, CriticalHours: 96, DefaultPriority: domain.PriorityHigh},
		domain.CategoryAppointmentScheduled: {TargetHours: 24, AcceptableHours: 48, CriticalHours: 72, DefaultPriority: domain.PriorityMedium},
		domain.CategoryPaymentRequest:       {TargetHours: 48, AcceptableHours: 96, CriticalHours: 240, DefaultPriority: domain.PriorityHigh},
		domain.CategorySignatureRequest:     {TargetHours: 24, AcceptableHours: 72, CriticalHours: 168, DefaultPriority: domain.PriorityHigh},
		domain.CategoryDefault:              {TargetHours: 48, AcceptableHours: 96, CriticalHours: 168, DefaultPriority: domain.PriorityMedium},
	})
	if err != nil {
		// The table above is compile-time constant; a failure here is a bug.
		panic(err)
	}
	return catalog
}
