package services

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

func backdateActivity(t *testing.T, db *gorm.DB, complaintID string, age time.Duration) {
	t.Helper()
	err := db.Model(&domain.Complaint{}).
		Where("id = ?", complaintID).
		Update("last_activity_at", time.Now().UTC().Add(-age)).Error
	if err != nil {
		t.Fatalf("backdate activity: %v", err)
	}
}

func reminderTypes(t *testing.T, db *gorm.DB, complaintID string) []string {
	t.Helper()
	var rows []domain.ComplaintReminder
	if err := db.Where("complaint_id = ?", complaintID).Order("reminded_at asc").Find(&rows).Error; err != nil {
		t.Fatalf("list reminders: %v", err)
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ReminderType)
	}
	return out
}

func TestSweep_EscalatesHighestDueTierOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewReminderService(db, &StoreNotifier{DB: db})

	officer := "officer-1"
	c := seedNewComplaint(t, db, func(c *domain.Complaint) {
		coord := "coord-1"
		c.CoordinatorID = &coord
	})
	seedOfficerTask(t, db, c.ID, officer, domain.AssignmentInProgress)
	backdateActivity(t, db, c.ID, 25*time.Hour)

	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Examined != 1 || res.Escalated != 1 {
		t.Fatalf("result: %+v", res)
	}
	if got := reminderTypes(t, db, c.ID); len(got) != 1 || got[0] != "first" {
		t.Fatalf("tiers fired: %v", got)
	}

	// Everyone responsible hears once: officer, assigner, coordinator.
	for _, uid := range []string{officer, "coord-1"} {
		if rows := notificationsFor(t, db, uid); len(rows) != 1 || rows[0].Type != "stale_reminder" {
			t.Fatalf("notifications for %s: %+v", uid, rows)
		}
	}

	// A second run finds the tier already covered and fires nothing new.
	if _, err := svc.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if got := reminderTypes(t, db, c.ID); len(got) != 1 {
		t.Fatalf("tier fired twice: %v", got)
	}
}

func TestSweep_SkipsToHighestDueTier(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewReminderService(db, &StoreNotifier{DB: db})

	c := seedNewComplaint(t, db, nil)
	// Four days idle: past first (24h) and second (72h), short of third (7d).
	backdateActivity(t, db, c.ID, 4*24*time.Hour)

	if _, err := svc.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got := reminderTypes(t, db, c.ID); len(got) != 1 || got[0] != "second" {
		t.Fatalf("expected only the highest due tier, got %v", got)
	}
}

func TestSweep_FinalTierWarns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewReminderService(db, &StoreNotifier{DB: db})

	c := seedNewComplaint(t, db, func(c *domain.Complaint) {
		coord := "coord-1"
		c.CoordinatorID = &coord
	})
	backdateActivity(t, db, c.ID, 15*24*time.Hour)

	if _, err := svc.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if got := reminderTypes(t, db, c.ID); len(got) != 1 || got[0] != "final" {
		t.Fatalf("tiers fired: %v", got)
	}
	rows := notificationsFor(t, db, "coord-1")
	if len(rows) != 1 || rows[0].Priority != PriorityWarning {
		t.Fatalf("final tier notification: %+v", rows)
	}
	if rows[0].Title != "Final reminder: stale complaint" {
		t.Fatalf("final title: %q", rows[0].Title)
	}
}

func TestSweep_IgnoresTerminalAndFreshComplaints(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewReminderService(db, &StoreNotifier{DB: db})

	fresh := seedNewComplaint(t, db, nil)

	closed := seedNewComplaint(t, db, nil)
	if err := repo.UpdateComplaintFields(ctx, db, closed.ID, map[string]any{
		"workflow_status": domain.WorkflowCancelled,
		"status":          domain.DeriveStatus(domain.WorkflowCancelled),
	}); err != nil {
		t.Fatalf("close: %v", err)
	}
	backdateActivity(t, db, closed.ID, 30*24*time.Hour)

	res, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Examined != 0 {
		t.Fatalf("examined: %+v", res)
	}
	if got := reminderTypes(t, db, fresh.ID); len(got) != 0 {
		t.Fatalf("fresh complaint reminded: %v", got)
	}
	if got := reminderTypes(t, db, closed.ID); len(got) != 0 {
		t.Fatalf("terminal complaint reminded: %v", got)
	}
}
