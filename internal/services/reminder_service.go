// Package services – ReminderService
//
// This file implements the background escalation sweep over stale
// complaints. Inactivity is measured from last_activity_at; the sweep
// escalates through four tiers and records each reminder so a tier fires at
// most once per complaint. It is designed to run from a cron schedule but
// is callable directly for tests and manual runs.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

// sweepBatch caps the complaints examined per run.
const sweepBatch = 200

// escalationTiers, ordered by severity ascending. A tier is due once the
// complaint's inactivity reaches After and no reminder of that type exists.
var escalationTiers = []struct {
	Type  string
	After time.Duration
}{
	{"first", 24 * time.Hour},
	{"second", 72 * time.Hour},
	{"third", 7 * 24 * time.Hour},
	{"final", 14 * 24 * time.Hour},
}

// ReminderService runs the stale-complaint escalation sweep.
type ReminderService struct {
	DB       *gorm.DB
	Notifier Notifier
}

// NewReminderService constructs a ReminderService.
func NewReminderService(db *gorm.DB, n Notifier) *ReminderService {
	return &ReminderService{DB: db, Notifier: n}
}

// SweepResult summarizes one escalation run.
type SweepResult struct {
	Examined  int `json:"examined"`
	Escalated int `json:"escalated"`
}

// Sweep examines stale complaints and fires the highest due, not yet sent
// escalation tier for each. Per-complaint failures are logged and do not
// stop the run.
func (s *ReminderService) Sweep(ctx context.Context) (*SweepResult, error) {
	tr := otel.Tracer("services/ReminderService")
	ctx, span := tr.Start(ctx, "Sweep")
	defer span.End()

	cutoff := time.Now().UTC().Add(-escalationTiers[0].After)
	stale, err := repo.ListStaleComplaints(ctx, s.DB, cutoff, sweepBatch)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Examined: len(stale)}
	for i := range stale {
		// Refetch with assignment rows so staff notification can reach the
		// assigned officers, not just the coordinator.
		c, err := repo.GetComplaint(ctx, s.DB, stale[i].ID)
		if err != nil {
			c = &stale[i]
		}
		if err := s.escalate(ctx, c); err != nil {
			log.Warn().Err(err).
				Str("complaint_id", stale[i].ID).
				Msg("reminder escalation failed")
			continue
		}
		res.Escalated++
	}
	span.SetAttributes(
		attribute.Int("sweep.examined", res.Examined),
		attribute.Int("sweep.escalated", res.Escalated),
	)
	log.Info().
		Int("examined", res.Examined).
		Int("escalated", res.Escalated).
		Msg("reminder sweep finished")
	return res, nil
}

// escalate fires the highest due tier for one complaint, if any tier is
// both due and unsent. Already covered complaints are skipped silently.
func (s *ReminderService) escalate(ctx context.Context, c *domain.Complaint) error {
	inactive := time.Since(c.LastActivityAt)

	due := ""
	for _, tier := range escalationTiers {
		if inactive >= tier.After {
			due = tier.Type
		}
	}
	if due == "" {
		return nil
	}
	sent, err := repo.CountRemindersOfTypes(ctx, s.DB, c.ID, []string{due})
	if err != nil {
		return err
	}
	if sent > 0 {
		return nil
	}
	if _, err := repo.CreateReminder(ctx, s.DB, c.ID, due); err != nil {
		return err
	}

	days := int(inactive.Hours() / 24)
	msg := fmt.Sprintf("Complaint %q has seen no activity for %d day(s).", c.Title, days)
	if days == 0 {
		msg = fmt.Sprintf("Complaint %q has seen no activity for over 24 hours.", c.Title)
	}

	priority := PriorityInfo
	if due == "third" || due == "final" {
		priority = PriorityWarning
	}
	s.notifyStaff(ctx, c, due, msg, priority)
	auditQuiet(ctx, s.DB, c.ID, "reminder_escalated", "", map[string]string{"tier": due})
	return nil
}

// notifyStaff nudges everyone responsible for the complaint: assigned
// officers, assigning admins, and the triage coordinator, each at most once.
func (s *ReminderService) notifyStaff(ctx context.Context, c *domain.Complaint, tier, msg, priority string) {
	title := "Stale complaint reminder"
	if tier == "final" {
		title = "Final reminder: stale complaint"
	}

	notified := map[string]struct{}{}
	send := func(userID, link string) {
		if userID == "" {
			return
		}
		if _, done := notified[userID]; done {
			return
		}
		notified[userID] = struct{}{}
		notifyQuiet(ctx, s.Notifier, userID, "stale_reminder", title, msg,
			NotifyOptions{Priority: priority, Link: link, Metadata: map[string]string{"tier": tier}})
	}

	for _, a := range c.Assignments {
		if a.Status == domain.AssignmentCancelled || a.Status == domain.AssignmentCompleted {
			continue
		}
		if a.AssignedTo != nil {
			send(*a.AssignedTo, "/tasks/"+a.ID)
		}
		send(a.AssignedBy, "/complaints/"+c.ID)
	}
	if c.CoordinatorID != nil {
		send(*c.CoordinatorID, "/coordinator/review/"+c.ID)
	}
}
