// Package services – notification dispatch.
//
// The workflow core only declares what notification to fire and to whom;
// delivery is fire-and-forget. Every call site goes through notifyQuiet,
// which logs failures and never propagates them, so a dead notifier can
// degrade the experience but never block a complaint mutation.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/repo"
)

// NotifyOptions carries the optional envelope fields of a notification.
type NotifyOptions struct {
	Priority string
	Link     string
	Metadata map[string]string
}

// Notification priorities.
const (
	PriorityInfo    = "info"
	PrioritySuccess = "success"
	PriorityWarning = "warning"
)

// Notifier is the declared notification collaborator contract:
// notify(userId, type, title, message, {priority, link, metadata}).
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, userID, ntype, title, message string, opts NotifyOptions) error
}

// StoreNotifier persists notifications and optionally shadows them to email
// via SendGrid. Email delivery is itself best-effort: a failed or
// unconfigured mail client never fails Notify.
type StoreNotifier struct {
	DB *gorm.DB

	// SendGridKey and FromEmail enable the email shadow when both are set.
	SendGridKey string
	FromEmail   string
}

// Notify persists the notification row and, when configured, shadows it to
// the recipient's email address.
func (n *StoreNotifier) Notify(ctx context.Context, userID, ntype, title, message string, opts NotifyOptions) error {
	rec := &domain.Notification{
		UserID:   userID,
		Type:     ntype,
		Title:    title,
		Message:  message,
		Priority: opts.Priority,
		Link:     opts.Link,
		Metadata: opts.Metadata,
	}
	if rec.Priority == "" {
		rec.Priority = PriorityInfo
	}
	if err := repo.CreateNotification(ctx, n.DB, rec); err != nil {
		return err
	}
	n.shadowEmail(ctx, userID, title, message)
	return nil
}

// shadowEmail sends a plain-text copy of the notification to the user's
// directory email. Missing configuration, missing user, or transport errors
// are logged and swallowed.
func (n *StoreNotifier) shadowEmail(ctx context.Context, userID, subject, body string) {
	if n.SendGridKey == "" || n.FromEmail == "" {
		return
	}
	u, err := repo.GetUser(ctx, n.DB, userID)
	if err != nil || u.Email == "" {
		return
	}
	from := mail.NewEmail("CitizenLink", n.FromEmail)
	to := mail.NewEmail(u.Name, u.Email)
	msg := mail.NewSingleEmail(from, subject, to, body, body)
	client := sendgrid.NewSendClient(n.SendGridKey)
	if _, err := client.Send(msg); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("email shadow failed")
	}
}

// notifyQuiet is the single failure boundary for fire-and-forget dispatch.
func notifyQuiet(ctx context.Context, n Notifier, userID, ntype, title, message string, opts NotifyOptions) {
	if n == nil || userID == "" {
		return
	}
	if err := n.Notify(ctx, userID, ntype, title, message, opts); err != nil {
		log.Warn().Err(err).
			Str("user_id", userID).
			Str("type", ntype).
			Msg("notification dispatch failed")
	}
}

// auditQuiet appends an audit entry, logging instead of propagating failure.
func auditQuiet(ctx context.Context, db *gorm.DB, complaintID, action, actorID string, detail map[string]string) {
	if err := repo.AppendAudit(ctx, db, complaintID, action, actorID, detail); err != nil {
		log.Warn().Err(err).
			Str("complaint_id", complaintID).
			Str("action", action).
			Msg("audit append failed")
	}
}
