// Package types defines core data structures for the ws ticket scheduler.
package types

import (
	"fmt"
	"sort"
	"time"
)

// Ticket is the unit of work tracked by the scheduler.
// Fields are organized into logical groups for maintainability.
type Ticket struct {
	// ===== Core Identification =====
	ID string `json:"id"`

	// ===== Content (from the source document) =====
	Summary  string   `json:"summary,omitempty"`
	Area     string   `json:"area,omitempty"`
	Priority Priority `json:"priority,omitempty"`

	// ===== Grouping =====
	Workstream string `json:"workstream"`

	// ===== Graph (phase and blocks are derived, never authored) =====
	Phase     int      `json:"phase"`
	BlockedBy []string `json:"blocked_by"`
	Blocks    []string `json:"blocks"`

	// ===== Lifecycle =====
	Plan  PlanState  `json:"plan"`
	Build BuildState `json:"build"`
	PR    PRState    `json:"pr"`
}

// PlanState tracks the external planning operation for a ticket.
type PlanState struct {
	Status     PlanStatus `json:"status"`
	ApprovedAt *time.Time `json:"approved_at"`
	Artifact   string     `json:"artifact,omitempty"` // Reference to the produced plan (usually a file path)
}

// BuildState tracks the external build operation for a ticket.
type BuildState struct {
	Status     BuildStatus `json:"status"`
	Branch     *string     `json:"branch"`
	RetryCount int         `json:"retry_count"`
	LastError  string      `json:"last_error,omitempty"`
}

// PRState tracks the pull request produced for a ticket.
type PRState struct {
	URL    *string  `json:"url"`
	Status PRStatus `json:"status"`
}

// NewTicket returns a ticket in its initial lifecycle state.
func NewTicket(id string) *Ticket {
	t := &Ticket{ID: id}
	t.SetDefaults()
	return t
}

// SetDefaults fills lifecycle fields omitted by a source document or an older store.
func (t *Ticket) SetDefaults() {
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Plan.Status == "" {
		t.Plan.Status = PlanPending
	}
	if t.Build.Status == "" {
		t.Build.Status = BuildPending
	}
	if t.PR.Status == "" {
		t.PR.Status = PRNone
	}
	if t.BlockedBy == nil {
		t.BlockedBy = []string{}
	}
	if t.Blocks == nil {
		t.Blocks = []string{}
	}
}

// Validate checks that the ticket's enum fields hold known values.
func (t *Ticket) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", t.Priority)
	}
	if !t.Plan.Status.IsValid() {
		return fmt.Errorf("invalid plan status: %s", t.Plan.Status)
	}
	if !t.Build.Status.IsValid() {
		return fmt.Errorf("invalid build status: %s", t.Build.Status)
	}
	if !t.PR.Status.IsValid() {
		return fmt.Errorf("invalid pr status: %s", t.PR.Status)
	}
	if t.Build.RetryCount < 0 {
		return fmt.Errorf("retry_count cannot be negative")
	}
	for _, dep := range t.BlockedBy {
		if dep == t.ID {
			return fmt.Errorf("ticket %s cannot depend on itself", t.ID)
		}
	}
	return nil
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	c := *t
	c.BlockedBy = append([]string{}, t.BlockedBy...)
	c.Blocks = append([]string{}, t.Blocks...)
	if t.Plan.ApprovedAt != nil {
		at := *t.Plan.ApprovedAt
		c.Plan.ApprovedAt = &at
	}
	if t.Build.Branch != nil {
		b := *t.Build.Branch
		c.Build.Branch = &b
	}
	if t.PR.URL != nil {
		u := *t.PR.URL
		c.PR.URL = &u
	}
	return &c
}

// HasPredecessor reports whether id appears in the ticket's blocked_by set.
func (t *Ticket) HasPredecessor(id string) bool {
	for _, dep := range t.BlockedBy {
		if dep == id {
			return true
		}
	}
	return false
}

// BranchName returns the build branch or "" when none was recorded.
func (t *Ticket) BranchName() string {
	if t.Build.Branch == nil {
		return ""
	}
	return *t.Build.Branch
}

// PRURL returns the pull request URL or "" when none was recorded.
func (t *Ticket) PRURL() string {
	if t.PR.URL == nil {
		return ""
	}
	return *t.PR.URL
}

// Priority is an informational ordering hint carried from the source document.
type Priority string

// Priority constants
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// IsValid checks if the priority value is valid
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// PlanStatus represents the state of a ticket's plan.
type PlanStatus string

// Plan status constants
const (
	PlanPending    PlanStatus = "pending"
	PlanInProgress PlanStatus = "in_progress" // Plan produced or being produced, awaiting approval
	PlanApproved   PlanStatus = "approved"
)

// IsValid checks if the plan status value is valid
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanPending, PlanInProgress, PlanApproved:
		return true
	}
	return false
}

// BuildStatus represents the state of a ticket's build.
type BuildStatus string

// Build status constants
const (
	BuildPending    BuildStatus = "pending"
	BuildInProgress BuildStatus = "in_progress"
	BuildCompleted  BuildStatus = "completed"
	BuildFailed     BuildStatus = "failed"
	BuildEscalated  BuildStatus = "escalated" // Retry cap exceeded; needs an operator
)

// IsValid checks if the build status value is valid
func (s BuildStatus) IsValid() bool {
	switch s {
	case BuildPending, BuildInProgress, BuildCompleted, BuildFailed, BuildEscalated:
		return true
	}
	return false
}

// IsTerminal reports whether the ticket is retired in this status.
func (s BuildStatus) IsTerminal() bool {
	return s == BuildCompleted || s == BuildEscalated
}

// PRStatus represents the state of a ticket's pull request.
type PRStatus string

// PR status constants
const (
	PRNone   PRStatus = "none"
	PROpen   PRStatus = "open"
	PRMerged PRStatus = "merged"
	PRClosed PRStatus = "closed"
)

// IsValid checks if the pr status value is valid
func (s PRStatus) IsValid() bool {
	switch s {
	case PRNone, PROpen, PRMerged, PRClosed:
		return true
	}
	return false
}

// SortTickets orders tickets by phase, then id. This is the canonical
// presentation and scheduling order.
func SortTickets(tickets []*Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if tickets[i].Phase != tickets[j].Phase {
			return tickets[i].Phase < tickets[j].Phase
		}
		return tickets[i].ID < tickets[j].ID
	})
}
