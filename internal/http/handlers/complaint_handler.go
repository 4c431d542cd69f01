// Complaint HTTP handlers (citizen surface).
//
// This file exposes REST endpoints for the complaint lifecycle:
//   - POST   /complaints                     (submit)
//   - GET    /complaints                     (list own, paginated)
//   - GET    /complaints/{id}                (detail)
//   - PATCH  /complaints/{id}/status         (workflow transition)
//   - POST   /complaints/{id}/cancel         (citizen withdrawal)
//   - POST   /complaints/{id}/remind         (manual reminder, 24h cool-down)
//   - POST   /complaints/{id}/confirm        (confirm or reopen a resolution)
//   - GET    /complaints/{id}/audit          (audit trail)
//   - GET    /complaints/{id}/evidence       (evidence metadata)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/citizenlink/citizenlink-api/internal/domain"
	"github.com/citizenlink/citizenlink-api/internal/http/middleware"
	"github.com/citizenlink/citizenlink-api/internal/repo"
	"github.com/citizenlink/citizenlink-api/internal/services"
	"github.com/citizenlink/citizenlink-api/internal/utils"
)

//
// Service contracts (context-aware)
//

// ComplaintWorkflow defines complaint lifecycle operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type ComplaintWorkflow interface {
	// Create validates and persists a complaint with its evidence metadata.
	Create(ctx context.Context, citizenID string, in services.CreateComplaintInput, evidence []services.EvidenceInput) (*domain.Complaint, error)
	// Get returns a complaint with assignments.
	Get(ctx context.Context, complaintID string) (*domain.Complaint, error)
	// ListPage returns a filtered page of complaints and the total count.
	ListPage(ctx context.Context, f repo.ComplaintFilter, page, pageSize int) ([]domain.Complaint, int64, error)
	// UpdateStatus persists a workflow transition.
	UpdateStatus(ctx context.Context, complaintID string, newStatus domain.WorkflowStatus, notes, actingUserID string) (*domain.Complaint, error)
	// Cancel lets the submitting citizen withdraw an active complaint.
	Cancel(ctx context.Context, complaintID, citizenID, reason string) (*domain.Complaint, error)
	// SendReminder records a citizen-triggered reminder under the cool-down.
	SendReminder(ctx context.Context, complaintID, citizenID string) (*domain.ComplaintReminder, error)
	// ConfirmResolution closes or reopens a completed complaint.
	ConfirmResolution(ctx context.Context, complaintID, citizenID string, confirmed bool, feedback string) (*domain.Complaint, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for complaints, coordinator triage, officer
// tasks, and the supporting read surfaces. It depends on abstract service
// interfaces to keep transport concerns separate from business logic; DB is
// only used for simple read-side lookups (audit, evidence, notifications,
// departments).
type Handlers struct {
	complaintSvc   ComplaintWorkflow
	coordinatorSvc CoordinatorWorkflow
	officerSvc     OfficerWorkflow
	db             *gorm.DB
	idemTTL        time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(cs ComplaintWorkflow, coord CoordinatorWorkflow, off OfficerWorkflow, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{complaintSvc: cs, coordinatorSvc: coord, officerSvc: off, db: db, idemTTL: idemTTL}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// CreateComplaintRequest is the JSON payload for submitting a complaint.
type CreateComplaintRequest struct {
	Title        string   `json:"title" binding:"required" example:"Broken streetlight on Main St"`
	Description  string   `json:"description" binding:"required" example:"The streetlight at Main St and 5th has been out for a week."`
	LocationText string   `json:"location" binding:"required" example:"Main St corner 5th Ave"`
	Latitude     *float64 `json:"latitude,omitempty" example:"14.5995"`
	Longitude    *float64 `json:"longitude,omitempty" example:"120.9842"`
	Category     string   `json:"category" example:"infrastructure"`
	Subcategory  string   `json:"subcategory" example:"streetlight"`
	// Departments optionally pre-routes the complaint; the first entry is
	// treated as primary. Accepts an array or a JSON-encoded array string.
	Departments any               `json:"department_r,omitempty" swaggertype:"array,string"`
	Evidence    []EvidenceRequest `json:"evidence,omitempty"`
}

// EvidenceRequest registers metadata for one already-uploaded file.
type EvidenceRequest struct {
	FileName    string `json:"file_name" binding:"required" example:"photo.jpg"`
	ContentType string `json:"content_type" example:"image/jpeg"`
	SizeBytes   int64  `json:"size_bytes" example:"204800"`
	StoragePath string `json:"storage_path" example:"uploads/2026/08/photo.jpg"`
}

// UpdateStatusRequest is the JSON payload for a workflow transition.
type UpdateStatusRequest struct {
	WorkflowStatus string `json:"workflow_status" binding:"required" example:"in_progress"`
	Notes          string `json:"notes,omitempty"`
}

// CancelComplaintRequest is the JSON payload for a citizen withdrawal.
type CancelComplaintRequest struct {
	Reason string `json:"reason" example:"issue fixed itself"`
}

// ConfirmResolutionRequest is the citizen's verdict on a completed complaint.
type ConfirmResolutionRequest struct {
	Confirmed bool   `json:"confirmed"`
	Feedback  string `json:"feedback,omitempty" example:"fixed, thank you"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListComplaintsResponse wraps a page of complaints and pagination info.
type ListComplaintsResponse struct {
	Complaints []domain.Complaint `json:"complaints"`
	Pagination Pagination         `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// complaintID validates the :id path param as a UUID.
func complaintID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "complaint id must be a UUID")
		return "", false
	}
	return id, true
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// CreateComplaint godoc
// @ID          createComplaint
// @Summary     Submit a new complaint
// @Description Validates and stores a complaint for the current user, fans out department routing, and returns the created resource.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)" example(citizen1)
// @Param       Idempotency-Key  header  string  false "Safe-retry key"
// @Param       body             body    handlers.CreateComplaintRequest true "Complaint payload"
//
// @Success     201  {object}  domain.Complaint
// @Failure     400  {object}  handlers.ErrorResponse "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /complaints [post]
func (h *Handlers) CreateComplaint(c *gin.Context) {
	var req CreateComplaintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Replay: serve the previously created complaint for a seen key.
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey {
		if rec, err := repo.GetIdempotency(c.Request.Context(), h.db, userID(c), idemKey, time.Now().UTC()); err == nil {
			if prior, err := h.complaintSvc.Get(c.Request.Context(), rec.ComplaintID); err == nil {
				ok(c, http.StatusOK, prior)
				return
			}
		}
	}

	ev := make([]services.EvidenceInput, 0, len(req.Evidence))
	for _, e := range req.Evidence {
		ev = append(ev, services.EvidenceInput{
			FileName:    e.FileName,
			ContentType: e.ContentType,
			SizeBytes:   e.SizeBytes,
			StoragePath: e.StoragePath,
		})
	}

	out, err := h.complaintSvc.Create(c.Request.Context(), userID(c), services.CreateComplaintInput{
		Title:        req.Title,
		Description:  req.Description,
		LocationText: req.LocationText,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		Category:     req.Category,
		Subcategory:  req.Subcategory,
		Departments:  req.Departments,
	}, ev)
	if err != nil {
		failFromErr(c, err)
		return
	}

	if hasKey {
		// Best effort; a racing duplicate insert only means another request
		// already recorded this key.
		_, _ = repo.CreateIdempotency(c.Request.Context(), h.db, userID(c), idemKey, out.ID, http.StatusCreated, h.idemTTL)
	}
	ok(c, http.StatusCreated, out)
}

// ListComplaints godoc
// @ID          listComplaints
// @Summary     List own complaints (paginated)
// @Description Returns a page of the current user's complaints, newest first. Optional workflow_status and category filters.
// @Tags        Complaints
// @Produce     json
//
// @Param       X-User-ID        header string false "User ID (demo header)" example(citizen1)
// @Param       workflow_status  query  string false "Filter by workflow status" example(in_progress)
// @Param       category         query  string false "Filter by category" example(infrastructure)
// @Param       page             query  int    false "Page number" minimum(1) default(1)
// @Param       page_size        query  int    false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200 {object} handlers.ListComplaintsResponse
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /complaints [get]
func (h *Handlers) ListComplaints(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.ComplaintFilter{
		SubmittedBy:    userID(c),
		WorkflowStatus: domain.WorkflowStatus(c.Query("workflow_status")),
		Category:       strings.ToLower(c.Query("category")),
	}
	items, total, err := h.complaintSvc.ListPage(c.Request.Context(), f, page, pageSize)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListComplaintsResponse{
		Complaints: items,
		Pagination: paginate(page, pageSize, total),
	})
}

// GetComplaint godoc
// @ID          getComplaint
// @Summary     Get one complaint
// @Description Returns the complaint with its assignment rows.
// @Tags        Complaints
// @Produce     json
//
// @Param       id  path  string  true  "Complaint ID (UUID)" format(uuid)
//
// @Success     200 {object} domain.Complaint
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /complaints/{id} [get]
func (h *Handlers) GetComplaint(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	out, err := h.complaintSvc.Get(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// UpdateComplaintStatus godoc
// @ID          updateComplaintStatus
// @Summary     Transition a complaint's workflow status
// @Description Applies a workflow transition with optional notes; "new" cannot be re-entered.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Complaint ID (UUID)" format(uuid)
// @Param       body  body  handlers.UpdateStatusRequest true "Transition payload"
//
// @Success     200 {object} domain.Complaint
// @Failure     400 {object} handlers.ErrorResponse "Invalid status"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Router      /complaints/{id}/status [patch]
func (h *Handlers) UpdateComplaintStatus(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.complaintSvc.UpdateStatus(c.Request.Context(), id,
		domain.WorkflowStatus(req.WorkflowStatus), req.Notes, userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CancelComplaint godoc
// @ID          cancelComplaint
// @Summary     Withdraw an active complaint
// @Description Lets the submitting citizen cancel a complaint still in new, assigned, or in_progress.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(citizen1)
// @Param       id        path   string true  "Complaint ID (UUID)" format(uuid)
// @Param       body      body   handlers.CancelComplaintRequest false "Cancellation reason"
//
// @Success     200 {object} domain.Complaint
// @Failure     403 {object} handlers.ErrorResponse "Not the submitter"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "No longer cancellable"
// @Router      /complaints/{id}/cancel [post]
func (h *Handlers) CancelComplaint(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req CancelComplaintRequest
	_ = c.ShouldBindJSON(&req)
	out, err := h.complaintSvc.Cancel(c.Request.Context(), id, userID(c), req.Reason)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// RemindComplaint godoc
// @ID          remindComplaint
// @Summary     Send a manual reminder
// @Description Records a citizen-triggered reminder and nudges assigned staff. At most one reminder per 24 hours per complaint.
// @Tags        Complaints
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(citizen1)
// @Param       id        path   string true  "Complaint ID (UUID)" format(uuid)
//
// @Success     201 {object} domain.ComplaintReminder
// @Failure     403 {object} handlers.ErrorResponse "Not the submitter"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "Cool-down active or terminal state"
// @Router      /complaints/{id}/remind [post]
func (h *Handlers) RemindComplaint(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	rem, err := h.complaintSvc.SendReminder(c.Request.Context(), id, userID(c))
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusCreated, rem)
}

// ConfirmResolution godoc
// @ID          confirmResolution
// @Summary     Confirm or reopen a resolution
// @Description The submitting citizen confirms a completed complaint, or rejects the resolution to reopen it as in_progress.
// @Tags        Complaints
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID header string false "User ID (demo header)" example(citizen1)
// @Param       id        path   string true  "Complaint ID (UUID)" format(uuid)
// @Param       body      body   handlers.ConfirmResolutionRequest true "Verdict"
//
// @Success     200 {object} domain.Complaint
// @Failure     403 {object} handlers.ErrorResponse "Not the submitter"
// @Failure     404 {object} handlers.ErrorResponse "Complaint not found"
// @Failure     409 {object} handlers.ErrorResponse "Complaint not completed"
// @Router      /complaints/{id}/confirm [post]
func (h *Handlers) ConfirmResolution(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	var req ConfirmResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	out, err := h.complaintSvc.ConfirmResolution(c.Request.Context(), id, userID(c), req.Confirmed, req.Feedback)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// GetComplaintAudit godoc
// @ID          getComplaintAudit
// @Summary     Get the audit trail
// @Description Returns the append-only audit entries for a complaint, oldest first.
// @Tags        Complaints
// @Produce     json
//
// @Param       id  path  string  true  "Complaint ID (UUID)" format(uuid)
//
// @Success     200 {array}  domain.AuditEntry
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /complaints/{id}/audit [get]
func (h *Handlers) GetComplaintAudit(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	entries, err := repo.ListAudit(c.Request.Context(), h.db, id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, entries)
}

// GetComplaintEvidence godoc
// @ID          getComplaintEvidence
// @Summary     List evidence metadata
// @Description Returns the evidence rows registered with a complaint.
// @Tags        Complaints
// @Produce     json
//
// @Param       id  path  string  true  "Complaint ID (UUID)" format(uuid)
//
// @Success     200 {array}  domain.Evidence
// @Failure     500 {object} handlers.ErrorResponse "Internal error"
// @Router      /complaints/{id}/evidence [get]
func (h *Handlers) GetComplaintEvidence(c *gin.Context) {
	id, okID := complaintID(c)
	if !okID {
		return
	}
	rows, err := repo.ListEvidence(c.Request.Context(), h.db, id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, rows)
}
