// Workflow status machinery and department-routing helpers.
//
// WorkflowStatus is the single authoritative lifecycle field of a complaint;
// the legacy display status is always derived from it via DeriveStatus and is
// never independently settable. Likewise the ordered department code list is
// the single source of routing truth: primary/secondary are views over it.
package domain

import (
	"encoding/json"
	"strings"
)

// WorkflowStatus is the authoritative lifecycle state of a complaint.
type WorkflowStatus string

// Complaint workflow states. RejectedFalse is a terminal-equivalent state a
// complaint enters when a coordinator flags it as a false report.
const (
	WorkflowNew             WorkflowStatus = "new"
	WorkflowAssigned        WorkflowStatus = "assigned"
	WorkflowInProgress      WorkflowStatus = "in_progress"
	WorkflowPendingApproval WorkflowStatus = "pending_approval"
	WorkflowCompleted       WorkflowStatus = "completed"
	WorkflowCancelled       WorkflowStatus = "cancelled"
	WorkflowRejectedFalse   WorkflowStatus = "rejected_false"
)

// AssignmentStatus is the per-row state of a complaint assignment.
type AssignmentStatus string

// Assignment states.
const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

// statusDisplay is the fixed workflow → display mapping. Adding a workflow
// state requires a row here; DeriveStatus falls back to the raw value for
// unknown states so older rows still render.
var statusDisplay = map[WorkflowStatus]string{
	WorkflowNew:             "pending review",
	WorkflowAssigned:        "assigned",
	WorkflowInProgress:      "in progress",
	WorkflowPendingApproval: "pending confirmation",
	WorkflowCompleted:       "resolved",
	WorkflowCancelled:       "cancelled",
	WorkflowRejectedFalse:   "rejected",
}

// DeriveStatus maps a workflow status to its display status.
func DeriveStatus(ws WorkflowStatus) string {
	if s, ok := statusDisplay[ws]; ok {
		return s
	}
	return string(ws)
}

// IsValidWorkflowStatus reports whether ws is a known workflow state.
func IsValidWorkflowStatus(ws WorkflowStatus) bool {
	_, ok := statusDisplay[ws]
	return ok
}

// IsTerminal reports whether ws is a state no further work flows from.
func (ws WorkflowStatus) IsTerminal() bool {
	switch ws {
	case WorkflowCompleted, WorkflowCancelled, WorkflowRejectedFalse:
		return true
	}
	return false
}

// ApplyWorkflowStatus sets the workflow state and keeps the derived display
// status in lockstep. All mutation paths must go through this instead of
// assigning the fields directly.
func (c *Complaint) ApplyWorkflowStatus(ws WorkflowStatus) {
	c.WorkflowStatus = ws
	c.Status = DeriveStatus(ws)
}

// DepartmentList is the ordered department-code routing list stored on a
// complaint. Element 0 is the primary department.
type DepartmentList []string

// Primary returns the primary department code, or "" when unrouted.
func (d DepartmentList) Primary() string {
	if len(d) == 0 {
		return ""
	}
	return d[0]
}

// Secondary returns the non-primary department codes (possibly empty).
func (d DepartmentList) Secondary() []string {
	if len(d) <= 1 {
		return []string{}
	}
	out := make([]string, len(d)-1)
	copy(out, d[1:])
	return out
}

// Contains reports whether code is present in the list.
func (d DepartmentList) Contains(code string) bool {
	for _, c := range d {
		if c == code {
			return true
		}
	}
	return false
}

// JSON renders the list in the stored column encoding. Map-based partial
// updates write column values as-is, skipping the field serializer, so any
// direct write of the departments column must go through this.
func (d DepartmentList) JSON() string {
	b, _ := json.Marshal([]string(d))
	return string(b)
}

// NormalizeDepartments coerces client-supplied routing input into a unique,
// ordered DepartmentList. Accepted shapes: []string / []any, a JSON-encoded
// array string, or a single scalar code. Unknown or garbled input degrades
// to an empty list rather than failing the whole request.
func NormalizeDepartments(v any) DepartmentList {
	switch t := v.(type) {
	case nil:
		return DepartmentList{}
	case DepartmentList:
		return dedupeCodes(t)
	case []string:
		return dedupeCodes(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return dedupeCodes(out)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return DepartmentList{}
		}
		if strings.HasPrefix(s, "[") {
			var arr []string
			if err := json.Unmarshal([]byte(s), &arr); err != nil {
				return DepartmentList{}
			}
			return dedupeCodes(arr)
		}
		return dedupeCodes([]string{s})
	default:
		return DepartmentList{}
	}
}

// dedupeCodes trims, uppercases, and de-duplicates codes preserving order.
func dedupeCodes(in []string) DepartmentList {
	seen := make(map[string]struct{}, len(in))
	out := make(DepartmentList, 0, len(in))
	for _, c := range in {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
