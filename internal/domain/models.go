// Package domain defines the persistence models for complaints, assignments,
// similarity results, departments, reminders, and the supporting audit and
// notification records. These types are mapped with GORM and form the core
// data layer of the CitizenLink application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Complaint is the central entity: a citizen-submitted issue report tracked
// through triage, assignment, and resolution.
//
// Routing note: Departments is the authoritative ordered list of department
// codes. The first element is the de-facto primary department and the
// remainder are secondary; no separate primary/secondary columns exist, the
// split is always derived (see PrimaryDepartment / SecondaryDepartments).
//
// Status note: WorkflowStatus is the authoritative lifecycle state. The
// display Status column is derived from it via DeriveStatus on every write
// path and must never be set independently.
type Complaint struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	SubmittedBy string `json:"submitted_by" gorm:"type:varchar(64);not null;index:idx_citizen_complaints"`

	Title        string   `json:"title"         gorm:"type:varchar(255);not null"`
	Description  string   `json:"description"   gorm:"type:text;not null"`
	LocationText string   `json:"location_text" gorm:"type:varchar(255)"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Category     string   `json:"category"    gorm:"type:varchar(64);index"`
	Subcategory  string   `json:"subcategory" gorm:"type:varchar(64)"`

	// Departments holds ordered department codes; element 0 is primary.
	Departments DepartmentList `json:"department_r" gorm:"type:text;serializer:json"`

	// CoordinatorID is the triage coordinator picked at creation, when one
	// was available for the primary department.
	CoordinatorID *string `json:"coordinator_id,omitempty" gorm:"type:varchar(64)"`

	WorkflowStatus WorkflowStatus `json:"workflow_status" gorm:"type:varchar(32);not null;index"`
	Status         string         `json:"status"          gorm:"type:varchar(32);not null"`

	IsDuplicate       bool    `json:"is_duplicate"`
	MasterComplaintID *string `json:"master_complaint_id,omitempty" gorm:"type:char(36)"`

	IsFalseComplaint     bool       `json:"is_false_complaint"`
	FalseComplaintReason string     `json:"false_complaint_reason,omitempty" gorm:"type:text"`
	FalseMarkedBy        *string    `json:"false_marked_by,omitempty" gorm:"type:varchar(64)"`
	FalseMarkedAt        *time.Time `json:"false_marked_at,omitempty"`

	ConfirmedByCitizen      bool       `json:"confirmed_by_citizen"`
	CitizenConfirmationDate *time.Time `json:"citizen_confirmation_date,omitempty"`
	CitizenFeedback         string     `json:"citizen_feedback,omitempty" gorm:"type:text"`
	ResolvedBy              *string    `json:"resolved_by,omitempty" gorm:"type:varchar(64)"`
	ResolvedAt              *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes         string     `json:"resolution_notes,omitempty" gorm:"type:text"`

	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancelledBy        *string    `json:"cancelled_by,omitempty" gorm:"type:varchar(64)"`
	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"type:text"`

	SubmittedAt    time.Time      `json:"submitted_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	LastActivityAt time.Time      `json:"last_activity_at" gorm:"index"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Assignments is loaded on demand; complaints are never physically
	// deleted, terminal states are completed / cancelled / rejected_false.
	Assignments []ComplaintAssignment `json:"assignments,omitempty" gorm:"foreignKey:ComplaintID;references:ID"`
}

// TableName returns the database table name for Complaint.
func (Complaint) TableName() string { return "complaints" }

// ComplaintAssignment is one row per (complaint, officer) pairing within an
// assignment batch. Department-level assignments carry a nil AssignedTo until
// an officer claims or is given the task. Rows are never deleted, only
// status-transitioned; concurrent officers on the same complaint share an
// AssignmentGroupID.
type ComplaintAssignment struct {
	ID           string `json:"id"            gorm:"type:char(36);primaryKey"`
	ComplaintID  string `json:"complaint_id"  gorm:"type:char(36);not null;index:idx_assign_complaint"`
	DepartmentID string `json:"department_id" gorm:"type:varchar(16);not null;index"`

	AssignedTo *string `json:"assigned_to,omitempty" gorm:"type:varchar(64);index"`
	AssignedBy string  `json:"assigned_by" gorm:"type:varchar(64);not null"`

	Status   AssignmentStatus `json:"status"   gorm:"type:varchar(16);not null;index"`
	Priority string           `json:"priority" gorm:"type:varchar(16)"`
	Deadline *time.Time       `json:"deadline,omitempty"`

	AssignmentType    string `json:"assignment_type"     gorm:"type:varchar(8)"`
	AssignmentGroupID string `json:"assignment_group_id" gorm:"type:char(36);index"`
	OfficerOrder      int    `json:"officer_order"`

	Notes       string     `json:"notes,omitempty" gorm:"type:text"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ComplaintAssignment.
func (ComplaintAssignment) TableName() string { return "complaint_assignments" }

// SimilarityFactors is the per-pass score breakdown attached to a similarity
// edge. Missing passes are zero, not omitted, so the merge arithmetic stays
// visible in stored rows.
type SimilarityFactors struct {
	TextScore     float64 `json:"text_score"`
	LocationScore float64 `json:"location_score"`
	TemporalScore float64 `json:"temporal_score"`
	DistanceKM    float64 `json:"distance_km,omitempty"`
	SameStreet    bool    `json:"same_street,omitempty"`
	DaysApart     float64 `json:"days_apart,omitempty"`
}

// ComplaintSimilarity is a directed edge produced by duplicate detection:
// subject complaint → candidate. Pairs are stored per subject and keyed on
// (complaint_id, similar_complaint_id); re-running detection upserts.
type ComplaintSimilarity struct {
	ID                 string            `json:"id"                   gorm:"type:char(36);primaryKey"`
	ComplaintID        string            `json:"complaint_id"         gorm:"type:char(36);not null;uniqueIndex:ux_similarity_pair,priority:1"`
	SimilarComplaintID string            `json:"similar_complaint_id" gorm:"type:char(36);not null;uniqueIndex:ux_similarity_pair,priority:2"`
	SimilarityScore    float64           `json:"similarity_score"     gorm:"not null"`
	Confidence         string            `json:"confidence"           gorm:"type:varchar(16)"`
	Factors            SimilarityFactors `json:"similarity_factors"   gorm:"type:text;serializer:json"`

	// CoordinatorDecision is empty until a coordinator rules on the pair;
	// allowed values: unique, related, duplicate.
	CoordinatorDecision string    `json:"coordinator_decision,omitempty" gorm:"type:varchar(16);index"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName returns the database table name for ComplaintSimilarity.
func (ComplaintSimilarity) TableName() string { return "complaint_similarities" }

// Department is a municipal unit complaints can be routed to, identified by
// a stable short code (e.g. "ENG", "WST").
type Department struct {
	ID        string    `json:"id"   gorm:"type:char(36);primaryKey"`
	Code      string    `json:"code" gorm:"type:varchar(16);not null;uniqueIndex"`
	Name      string    `json:"name" gorm:"type:varchar(128);not null"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Department.
func (Department) TableName() string { return "departments" }

// ComplaintReminder records one nudge sent for a complaint. Manual reminders
// are citizen-triggered and gated by a 24h cool-down; first/second/third/
// final are produced by the escalation sweep at 24h/72h/7d/14d of inactivity.
type ComplaintReminder struct {
	ID           string    `json:"id"            gorm:"type:char(36);primaryKey"`
	ComplaintID  string    `json:"complaint_id"  gorm:"type:char(36);not null;index"`
	ReminderType string    `json:"reminder_type" gorm:"type:varchar(16);not null"`
	RemindedAt   time.Time `json:"reminded_at"   gorm:"not null;index"`
}

// TableName returns the database table name for ComplaintReminder.
func (ComplaintReminder) TableName() string { return "complaint_reminders" }

// Evidence is attach-only metadata for files submitted with a complaint.
// Blob transport lives outside the core; only the registration row is kept.
type Evidence struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ComplaintID string    `json:"complaint_id" gorm:"type:char(36);not null;index"`
	FileName    string    `json:"file_name"    gorm:"type:varchar(255);not null"`
	ContentType string    `json:"content_type" gorm:"type:varchar(128)"`
	SizeBytes   int64     `json:"size_bytes"`
	StoragePath string    `json:"storage_path" gorm:"type:varchar(512)"`
	UploadedBy  string    `json:"uploaded_by"  gorm:"type:varchar(64)"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Evidence.
func (Evidence) TableName() string { return "complaint_evidence" }

// Notification is a persisted fire-and-forget message to a user. Delivery
// beyond the store (e.g. email shadow) is best-effort and never blocks the
// workflow that produced it.
type Notification struct {
	ID       string            `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID   string            `json:"user_id" gorm:"type:varchar(64);not null;index:idx_user_notifications"`
	Type     string            `json:"type"    gorm:"type:varchar(32);not null"`
	Title    string            `json:"title"   gorm:"type:varchar(255);not null"`
	Message  string            `json:"message" gorm:"type:text"`
	Priority string            `json:"priority" gorm:"type:varchar(16)"`
	Link     string            `json:"link,omitempty" gorm:"type:varchar(255)"`
	Metadata map[string]string `json:"metadata,omitempty" gorm:"type:text;serializer:json"`

	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at" gorm:"index:idx_user_notifications"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// AuditEntry is an append-only trail record for complaint mutations.
type AuditEntry struct {
	ID          string            `json:"id"           gorm:"type:char(36);primaryKey"`
	ComplaintID string            `json:"complaint_id" gorm:"type:char(36);not null;index"`
	Action      string            `json:"action"       gorm:"type:varchar(64);not null"`
	ActorID     string            `json:"actor_id"     gorm:"type:varchar(64)"`
	Detail      map[string]string `json:"detail,omitempty" gorm:"type:text;serializer:json"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TableName returns the database table name for AuditEntry.
func (AuditEntry) TableName() string { return "complaint_audit" }

// User is a row from the identity directory collaborator. Role and
// department tagging arrive as opaque metadata; use ResolveActorContext to
// read them with a fixed precedence instead of poking at the map.
type User struct {
	ID        string            `json:"id"    gorm:"type:varchar(64);primaryKey"`
	Email     string            `json:"email" gorm:"type:varchar(255);uniqueIndex"`
	Name      string            `json:"name"  gorm:"type:varchar(128)"`
	Metadata  map[string]string `json:"metadata" gorm:"type:text;serializer:json"`
	IsActive  bool              `json:"is_active" gorm:"not null"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Idempotency represents a recorded result of a previously processed
// submission, keyed by (user_id, key). It enables safe retries for complaint
// creation by returning the originally produced complaint without
// re-executing side effects.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_key,priority:2"`
	ComplaintID string    `gorm:"type:TEXT NOT NULL"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
