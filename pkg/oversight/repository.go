package oversight

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// RequestRepository persists OversightRequests.
type RequestRepository interface {
	Store(ctx context.Context, r *OversightRequest) error
	Get(ctx context.Context, id uuid.UUID) (*OversightRequest, error)
	ListPendingForReviewer(ctx context.Context, reviewer common.UserId) ([]*OversightRequest, error)
	ListExpired(ctx context.Context, asOf common.Timestamp) ([]*OversightRequest, error)
}

// ApprovalRepository persists Approvals, scoped by request.
type ApprovalRepository interface {
	Store(ctx context.Context, a Approval) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Approval, error)
}

// StateTransitionRepository persists the append-only StateTransition log.
type StateTransitionRepository interface {
	Append(ctx context.Context, t StateTransition) error
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]StateTransition, error)
}

// QuorumConfigRepository resolves the QuorumConfig to apply for a request,
// e.g. by organization policy. The module ships only a static default;
// per-organization overrides are an external collaborator's concern.
type QuorumConfigRepository interface {
	ConfigFor(ctx context.Context, org common.OrganizationId) (QuorumConfig, error)
}

// InMemoryRequestRepository is the reference RequestRepository.
type InMemoryRequestRepository struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*OversightRequest
}

// NewInMemoryRequestRepository creates an empty repository.
func NewInMemoryRequestRepository() *InMemoryRequestRepository {
	return &InMemoryRequestRepository{requests: make(map[uuid.UUID]*OversightRequest)}
}

func (r *InMemoryRequestRepository) Store(ctx context.Context, req *OversightRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *InMemoryRequestRepository) Get(ctx context.Context, id uuid.UUID) (*OversightRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (r *InMemoryRequestRepository) ListPendingForReviewer(ctx context.Context, reviewer common.UserId) ([]*OversightRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OversightRequest
	for _, req := range r.requests {
		if !req.IsPending() {
			continue
		}
		for _, rv := range req.AssignedReviewers {
			if rv == reviewer {
				cp := *req
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (r *InMemoryRequestRepository) ListExpired(ctx context.Context, asOf common.Timestamp) ([]*OversightRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*OversightRequest
	for _, req := range r.requests {
		if req.IsPending() && req.IsExpired(asOf) {
			cp := *req
			out = append(out, &cp)
		}
	}
	return out, nil
}

// InMemoryApprovalRepository is the reference ApprovalRepository.
type InMemoryApprovalRepository struct {
	mu        sync.Mutex
	approvals map[uuid.UUID][]Approval
}

// NewInMemoryApprovalRepository creates an empty repository.
func NewInMemoryApprovalRepository() *InMemoryApprovalRepository {
	return &InMemoryApprovalRepository{approvals: make(map[uuid.UUID][]Approval)}
}

func (r *InMemoryApprovalRepository) Store(ctx context.Context, a Approval) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.approvals[a.RequestID] = append(r.approvals[a.RequestID], a)
	return nil
}

func (r *InMemoryApprovalRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]Approval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Approval, len(r.approvals[requestID]))
	copy(out, r.approvals[requestID])
	return out, nil
}

// InMemoryStateTransitionRepository is the reference StateTransitionRepository.
type InMemoryStateTransitionRepository struct {
	mu          sync.Mutex
	transitions map[uuid.UUID][]StateTransition
}

// NewInMemoryStateTransitionRepository creates an empty repository.
func NewInMemoryStateTransitionRepository() *InMemoryStateTransitionRepository {
	return &InMemoryStateTransitionRepository{transitions: make(map[uuid.UUID][]StateTransition)}
}

func (r *InMemoryStateTransitionRepository) Append(ctx context.Context, t StateTransition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions[t.RequestID] = append(r.transitions[t.RequestID], t)
	return nil
}

func (r *InMemoryStateTransitionRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]StateTransition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateTransition, len(r.transitions[requestID]))
	copy(out, r.transitions[requestID])
	return out, nil
}

// StaticQuorumConfigRepository returns the same QuorumConfig for every
// organization. It's the reference QuorumConfigRepository.
type StaticQuorumConfigRepository struct {
	config QuorumConfig
}

// NewStaticQuorumConfigRepository builds a repository always returning config.
func NewStaticQuorumConfigRepository(config QuorumConfig) *StaticQuorumConfigRepository {
	return &StaticQuorumConfigRepository{config: config}
}

func (r *StaticQuorumConfigRepository) ConfigFor(ctx context.Context, org common.OrganizationId) (QuorumConfig, error) {
	if err := ctx.Err(); err != nil {
		return QuorumConfig{}, err
	}
	return r.config, nil
}
