package services

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedDepartment(t *testing.T, db *gorm.DB, code, name string) {
	t.Helper()
	d := &domain.Department{ID: uuid.NewString(), Code: code, Name: name, IsActive: true}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("seed department %s: %v", code, err)
	}
}

func seedUser(t *testing.T, db *gorm.DB, id, role, dept string) {
	t.Helper()
	md := map[string]string{}
	if role != "" {
		md["role"] = role
	}
	if dept != "" {
		md["department"] = dept
	}
	u := &domain.User{ID: id, Email: id + "@example.test", Name: id, Metadata: md, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
}

func notificationsFor(t *testing.T, db *gorm.DB, userID string) []domain.Notification {
	t.Helper()
	rows, _, err := repo.ListNotificationsPage(context.Background(), db, userID, 0, 50)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return rows
}

func validInput() CreateComplaintInput {
	return CreateComplaintInput{
		Title:        "Broken streetlight on Main St",
		Description:  "The streetlight has been dark for three nights now",
		LocationText: "Main Street corner 5th Avenue",
		Category:     "Lighting",
	}
}

func TestCreate_ValidationCollectsEveryViolation(t *testing.T) {
	db := newTestDB(t)
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	lat := 200.0
	_, err := svc.Create(context.Background(), "citizen-1", CreateComplaintInput{
		Title:        "hi",
		Description:  "short",
		LocationText: "x",
		Latitude:     &lat,
	}, nil)
	ve, ok := AsValidation(err)
	if !ok {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// title, description, location, latitude range, lat/lon pairing
	if len(ve.Violations) != 5 {
		t.Fatalf("violations: got %d (%v) want 5", len(ve.Violations), ve.Violations)
	}
}

func TestCreate_RunsSideEffectChain(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedDepartment(t, db, "ELC", "Electrical")
	seedUser(t, db, "coord-1", "coordinator", "ELC")
	seedUser(t, db, "admin-1", "lgu_admin", "ELC")
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	in := validInput()
	in.Departments = []string{"elc"}
	out, err := svc.Create(ctx, "citizen-1", in, []EvidenceInput{
		{FileName: "photo.jpg", ContentType: "image/jpeg", SizeBytes: 1024},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.WorkflowStatus != domain.WorkflowNew || out.Status != "pending review" {
		t.Fatalf("new complaint status: workflow=%q status=%q", out.WorkflowStatus, out.Status)
	}
	if out.Departments.Primary() != "ELC" {
		t.Fatalf("departments: %v", out.Departments)
	}
	if out.CoordinatorID == nil || *out.CoordinatorID != "coord-1" {
		t.Fatalf("coordinator pick: %v", out.CoordinatorID)
	}
	if len(out.Assignments) != 1 || out.Assignments[0].Status != domain.AssignmentPending ||
		out.Assignments[0].DepartmentID != "ELC" {
		t.Fatalf("department fan-out: %+v", out.Assignments)
	}

	ev, err := repo.ListEvidence(ctx, db, out.ID)
	if err != nil || len(ev) != 1 || ev[0].FileName != "photo.jpg" {
		t.Fatalf("evidence registration: %+v err %v", ev, err)
	}
	if got := notificationsFor(t, db, "citizen-1"); len(got) != 1 || got[0].Type != "complaint_submitted" {
		t.Fatalf("citizen notification: %+v", got)
	}
	if got := notificationsFor(t, db, "admin-1"); len(got) != 1 || got[0].Type != "complaint_routed" {
		t.Fatalf("admin notification: %+v", got)
	}
	trail, err := repo.ListAudit(ctx, db, out.ID)
	if err != nil || len(trail) == 0 || trail[0].Action != "created" {
		t.Fatalf("audit trail: %+v err %v", trail, err)
	}
}

func TestCreate_SupplementsRoutingFromText(t *testing.T) {
	db := newTestDB(t)
	seedDepartment(t, db, "ENG", "Engineering")
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	out, err := svc.Create(context.Background(), "citizen-1", CreateComplaintInput{
		Title:        "Huge pothole near the bridge",
		Description:  "Deep pothole damaged the pavement by the school",
		LocationText: "Elm Road by the school",
		Category:     "roads",
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Departments.Primary() != "ENG" {
		t.Fatalf("routing not supplemented: %v", out.Departments)
	}
}

func TestUpdateStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	out, err := svc.Create(ctx, "citizen-1", validInput(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.UpdateStatus(ctx, out.ID, "bogus", "", "coord-1"); err == nil {
		t.Fatal("unknown status must be rejected")
	}
	if _, err := svc.UpdateStatus(ctx, out.ID, domain.WorkflowNew, "", "coord-1"); err == nil {
		t.Fatal("transition back to new must be rejected")
	}

	got, err := svc.UpdateStatus(ctx, out.ID, domain.WorkflowInProgress, "crew dispatched", "coord-1")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if got.WorkflowStatus != domain.WorkflowInProgress || got.Status != "in progress" {
		t.Fatalf("status after update: workflow=%q status=%q", got.WorkflowStatus, got.Status)
	}
	if got.ResolutionNotes != "crew dispatched" {
		t.Fatalf("notes: %q", got.ResolutionNotes)
	}
	if rows := notificationsFor(t, db, "citizen-1"); len(rows) < 2 {
		t.Fatalf("citizen must be told about the change, got %d notifications", len(rows))
	}
}

func TestCancel(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	out, err := svc.Create(ctx, "citizen-1", validInput(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Cancel(ctx, out.ID, "someone-else", "not mine"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign cancel: got %v want ErrForbidden", err)
	}

	got, err := svc.Cancel(ctx, out.ID, "citizen-1", "fixed itself")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.WorkflowStatus != domain.WorkflowCancelled || got.CancellationReason != "fixed itself" {
		t.Fatalf("after cancel: %+v", got)
	}
	if got.CancelledBy == nil || *got.CancelledBy != "citizen-1" || got.CancelledAt == nil {
		t.Fatalf("cancel stamps missing: by=%v at=%v", got.CancelledBy, got.CancelledAt)
	}

	if _, err := svc.Cancel(ctx, out.ID, "citizen-1", "again"); err == nil {
		t.Fatal("cancelling a cancelled complaint must conflict")
	} else if _, ok := AsConflict(err); !ok {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestSendReminder_Cooldown(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	out, err := svc.Create(ctx, "citizen-1", validInput(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A reminder 23h ago is still inside the 24h cool-down.
	prior := &domain.ComplaintReminder{
		ID:           uuid.NewString(),
		ComplaintID:  out.ID,
		ReminderType: "manual",
		RemindedAt:   time.Now().UTC().Add(-23 * time.Hour),
	}
	if err := db.Create(prior).Error; err != nil {
		t.Fatalf("seed reminder: %v", err)
	}

	_, err = svc.SendReminder(ctx, out.ID, "citizen-1")
	ce, ok := AsConflict(err)
	if !ok {
		t.Fatalf("expected ConflictError inside cool-down, got %v", err)
	}
	if !strings.Contains(ce.Reason, "1 more hour") {
		t.Fatalf("cool-down message: %q", ce.Reason)
	}

	// Push the prior reminder outside the window and retry.
	if err := db.Model(prior).Update("reminded_at", time.Now().UTC().Add(-25*time.Hour)).Error; err != nil {
		t.Fatalf("backdate reminder: %v", err)
	}
	rem, err := svc.SendReminder(ctx, out.ID, "citizen-1")
	if err != nil {
		t.Fatalf("SendReminder after cool-down: %v", err)
	}
	if rem.ReminderType != "manual" {
		t.Fatalf("reminder type: %q", rem.ReminderType)
	}

	if _, err := svc.SendReminder(ctx, out.ID, "someone-else"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign reminder: got %v want ErrForbidden", err)
	}
}

func TestConfirmResolution_Loop(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	out, err := svc.Create(ctx, "citizen-1", validInput(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.ConfirmResolution(ctx, out.ID, "citizen-1", true, ""); err == nil {
		t.Fatal("confirming before completion must conflict")
	}

	if _, err := svc.UpdateStatus(ctx, out.ID, domain.WorkflowCompleted, "", "officer-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Citizen rejects: the complaint reopens.
	got, err := svc.ConfirmResolution(ctx, out.ID, "citizen-1", false, "still broken")
	if err != nil {
		t.Fatalf("reject resolution: %v", err)
	}
	if got.WorkflowStatus != domain.WorkflowInProgress || got.ConfirmedByCitizen {
		t.Fatalf("after rejection: workflow=%q confirmed=%v", got.WorkflowStatus, got.ConfirmedByCitizen)
	}

	// Second round: complete again, citizen confirms.
	if _, err := svc.UpdateStatus(ctx, out.ID, domain.WorkflowCompleted, "", "officer-1"); err != nil {
		t.Fatalf("re-complete: %v", err)
	}
	got, err = svc.ConfirmResolution(ctx, out.ID, "citizen-1", true, "thanks")
	if err != nil {
		t.Fatalf("confirm resolution: %v", err)
	}
	if !got.ConfirmedByCitizen || got.CitizenConfirmationDate == nil || got.CitizenFeedback != "thanks" {
		t.Fatalf("confirmation stamps: %+v", got)
	}
}

func TestMarkAsFalseComplaint(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	out, err := svc.Create(ctx, "citizen-1", validInput(), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.MarkAsFalseComplaint(ctx, out.ID, "coord-1", "  "); err == nil {
		t.Fatal("blank reason must be rejected")
	}

	res, err := svc.MarkAsFalseComplaint(ctx, out.ID, "coord-1", "spam report")
	if err != nil || !res.Success {
		t.Fatalf("first mark: %+v err %v", res, err)
	}
	got, err := svc.Get(ctx, out.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.WorkflowStatus != domain.WorkflowRejectedFalse || !got.IsFalseComplaint || got.Status != "rejected" {
		t.Fatalf("after mark: %+v", got)
	}

	// Re-marking is a soft failure, not an error.
	res, err = svc.MarkAsFalseComplaint(ctx, out.ID, "coord-2", "again")
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if res.Success {
		t.Fatal("second mark must report failure")
	}
	if got, _ := svc.Get(ctx, out.ID); got.FalseComplaintReason != "spam report" {
		t.Fatalf("first reason must survive: %q", got.FalseComplaintReason)
	}
}

func TestListPage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	svc := NewComplaintService(db, &StoreNotifier{DB: db})

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, "citizen-1", validInput(), nil); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, total, err := svc.ListPage(ctx, repo.ComplaintFilter{SubmittedBy: "citizen-1"}, 1, 2)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("page 1: total=%d items=%d", total, len(items))
	}
	items, total, err = svc.ListPage(ctx, repo.ComplaintFilter{SubmittedBy: "citizen-1"}, 2, 2)
	if err != nil || total != 3 || len(items) != 1 {
		t.Fatalf("page 2: total=%d items=%d err=%v", total, len(items), err)
	}
	_, total, err = svc.ListPage(ctx, repo.ComplaintFilter{SubmittedBy: "nobody"}, 1, 2)
	if err != nil || total != 0 {
		t.Fatalf("empty filter: total=%d err=%v", total, err)
	}
}
