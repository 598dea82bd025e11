package oversight

import (
	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// Priority is an oversight request's urgency, which determines its default
// timeout.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// DefaultTimeoutSeconds returns the reference timeout for p: Low=7d,
// Normal=24h, High=1h, Critical=5m.
func (p Priority) DefaultTimeoutSeconds() int64 {
	switch p {
	case PriorityLow:
		return 604800
	case PriorityHigh:
		return 3600
	case PriorityCritical:
		return 300
	default: // PriorityNormal
		return 86400
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// OversightRequest is a request for human oversight of an agent action.
type OversightRequest struct {
	ID                uuid.UUID
	OrganizationID    common.OrganizationId
	AgentID           common.AgentId
	Action            ActionType
	Description       string
	Context           map[string]any
	Status            RequestStatus
	Priority          Priority
	CreatedAt         common.Timestamp
	UpdatedAt         common.Timestamp
	TimeoutSeconds    int64
	ExpiresAt         common.Timestamp
	AssignedReviewers []common.UserId
	Metadata          map[string]string
}

// NewOversightRequest creates a Pending request with priority's default
// timeout.
func NewOversightRequest(org common.OrganizationId, agent common.AgentId, action ActionType, description string, priority Priority) *OversightRequest {
	now := common.Now()
	timeout := priority.DefaultTimeoutSeconds()
	return &OversightRequest{
		ID: uuid.Must(uuid.NewV7()), OrganizationID: org, AgentID: agent,
		Action: action, Description: description, Status: RequestPending,
		Priority: priority, CreatedAt: now, UpdatedAt: now,
		TimeoutSeconds: timeout, ExpiresAt: common.FromMillis(now.AsMillis() + timeout*1000),
	}
}

// WithTimeout overrides the priority-derived timeout.
func (r *OversightRequest) WithTimeout(seconds int64) *OversightRequest {
	r.TimeoutSeconds = seconds
	r.ExpiresAt = common.FromMillis(r.CreatedAt.AsMillis() + seconds*1000)
	return r
}

// AddReviewer assigns reviewer to the request if not already assigned.
func (r *OversightRequest) AddReviewer(reviewer common.UserId) {
	for _, existing := range r.AssignedReviewers {
		if existing == reviewer {
			return
		}
	}
	r.AssignedReviewers = append(r.AssignedReviewers, reviewer)
}

// IsExpired reports whether now is past the request's ExpiresAt.
func (r *OversightRequest) IsExpired(now common.Timestamp) bool {
	return r.ExpiresAt.IsBefore(now)
}

// IsPending reports whether the request is still awaiting a decision.
func (r *OversightRequest) IsPending() bool {
	return r.Status == RequestPending || r.Status == RequestInReview || r.Status == RequestEscalated
}
