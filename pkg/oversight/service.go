package oversight

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
	"github.com/creto-systems/enablement/pkg/metering"
)

// CheckResultKind tags the concrete variant of a CheckResult.
type CheckResultKind string

const (
	CheckAllowed          CheckResultKind = "allowed"
	CheckRequiresApproval CheckResultKind = "requires_approval"
	CheckDenied           CheckResultKind = "denied"
)

// CheckResult is the outcome of Service.CheckAction.
type CheckResult struct {
	Kind      CheckResultKind
	RequestID uuid.UUID // set when Kind == CheckRequiresApproval
	Reason    string
}

// ReviewerDirectory resolves a policy trigger's suggested reviewer role
// names (PolicyDecision.SuggestedReviewers) into the concrete users
// currently holding that role within an organization. The module ships
// only a static in-memory reference; binding roles to real org membership
// is an external collaborator's concern.
type ReviewerDirectory interface {
	ResolveRole(ctx context.Context, org common.OrganizationId, role string) ([]common.UserId, error)
}

// StaticReviewerDirectory maps role names to a fixed set of users,
// identical for every organization. It's the reference ReviewerDirectory.
type StaticReviewerDirectory struct {
	byRole map[string][]common.UserId
}

// NewStaticReviewerDirectory builds a directory from a role-name to
// user-list mapping.
func NewStaticReviewerDirectory(byRole map[string][]common.UserId) *StaticReviewerDirectory {
	return &StaticReviewerDirectory{byRole: byRole}
}

func (d *StaticReviewerDirectory) ResolveRole(ctx context.Context, _ common.OrganizationId, role string) ([]common.UserId, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.byRole[role], nil
}

// Service is the Oversight Core facade: check_action, submit_approval, and
// get_request, wired over a PolicyEngine, QuorumConfigRepository, and the
// three request/approval/transition repositories.
type Service struct {
	logger      *slog.Logger
	policy      *PolicyEngine
	requests    RequestRepository
	approvals   ApprovalRepository
	transitions StateTransitionRepository
	quorumCfg   QuorumConfigRepository
	directory   ReviewerDirectory // optional; nil skips reviewer assignment
	metering    *metering.Service // optional; nil skips audit-event emission
	machines    map[uuid.UUID]*StateMachine
}

// NewService wires a Service from its collaborators. logger defaults to
// slog.Default() when nil.
func NewService(logger *slog.Logger, policy *PolicyEngine, requests RequestRepository, approvals ApprovalRepository, transitions StateTransitionRepository, quorumCfg QuorumConfigRepository) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger: logger, policy: policy, requests: requests, approvals: approvals,
		transitions: transitions, quorumCfg: quorumCfg, machines: make(map[uuid.UUID]*StateMachine),
	}
}

// WithReviewerDirectory attaches a ReviewerDirectory used to resolve
// policy-suggested reviewer roles into assigned users. Returns s for
// chaining.
func (s *Service) WithReviewerDirectory(directory ReviewerDirectory) *Service {
	s.directory = directory
	return s
}

// WithMetering attaches a metering.Service used to record an audit event
// each time an oversight request is created. Returns s for chaining.
func (s *Service) WithMetering(m *metering.Service) *Service {
	s.metering = m
	return s
}

// CheckAction evaluates action's policy triggers. If none match, the
// action is Allowed. If one matches, a Pending OversightRequest is created
// and persisted, its policy-suggested reviewers are resolved and assigned,
// a metering audit event is recorded, and the result carries the
// request's ID for submit_approval calls.
func (s *Service) CheckAction(ctx context.Context, org common.OrganizationId, agent common.AgentId, action ActionType, description string, pctx PolicyContext, priority Priority) (*CheckResult, error) {
	decision := s.policy.Evaluate(action, pctx)

	switch decision.Kind {
	case DecisionAllow:
		return &CheckResult{Kind: CheckAllowed}, nil
	case DecisionDeny:
		return &CheckResult{Kind: CheckDenied, Reason: decision.Reason}, nil
	}

	request := NewOversightRequest(org, agent, action, description, priority)
	s.assignSuggestedReviewers(ctx, request, decision.SuggestedReviewers)

	if err := s.requests.Store(ctx, request); err != nil {
		return nil, err
	}
	s.machines[request.ID] = NewStateMachine(request.ID)

	s.recordRequestCreated(ctx, request)

	s.logger.Info("oversight: request created", "request_id", request.ID, "reason", decision.Reason)
	return &CheckResult{Kind: CheckRequiresApproval, RequestID: request.ID, Reason: decision.Reason}, nil
}

// assignSuggestedReviewers resolves each role in roles via the configured
// directory and assigns the resulting users to request. A missing
// directory or a resolution error is logged and otherwise ignored:
// reviewer assignment is advisory, never a reason to fail CheckAction.
func (s *Service) assignSuggestedReviewers(ctx context.Context, request *OversightRequest, roles []string) {
	if s.directory == nil {
		return
	}
	for _, role := range roles {
		users, err := s.directory.ResolveRole(ctx, request.OrganizationID, role)
		if err != nil {
			s.logger.Warn("oversight: reviewer role resolution failed", "role", role, "error", err)
			continue
		}
		for _, u := range users {
			request.AddReviewer(u)
		}
	}
}

// recordRequestCreated emits a metering audit event for request's
// creation, if a metering collaborator is configured. Failure to record
// is logged and otherwise ignored: audit logging never blocks oversight.
func (s *Service) recordRequestCreated(ctx context.Context, request *OversightRequest) {
	if s.metering == nil {
		return
	}
	event := metering.UsageEvent{
		ID:              uuid.Must(uuid.NewV7()),
		OrganizationID:  request.OrganizationID,
		AgentID:         request.AgentID,
		EventType:       metering.EventOversightRequest,
		MetricCode:      "oversight_requests",
		Quantity:        1,
		Timestamp:       request.CreatedAt,
		DelegationDepth: 0,
	}
	if err := s.metering.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("oversight: failed to record metering event", "request_id", request.ID, "error", err)
	}
}

// SubmitApprovalResult is the outcome of SubmitApproval.
type SubmitApprovalResult struct {
	RequestID uuid.UUID
	NewStatus RequestStatus
	Quorum    QuorumResult
}

// SubmitApproval records reviewer's decision on requestID, recomputes
// quorum over the full approval set, and transitions the request's state
// machine accordingly: Approved/Rejected on a quorum verdict, Escalated on
// an escalation vote, InReview while still Pending.
func (s *Service) SubmitApproval(ctx context.Context, requestID uuid.UUID, reviewer common.UserId, decision ApprovalDecision, reason string) (*SubmitApprovalResult, error) {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request == nil {
		return nil, common.New(common.CodeInvalidStateTransition, "oversight request %s not found", requestID)
	}

	machine, ok := s.machines[requestID]
	if !ok {
		machine = FromState(requestID, request.Status)
		s.machines[requestID] = machine
	}
	if machine.IsTerminal() {
		return nil, common.InvalidStateTransition(string(machine.Current()), "any")
	}

	approval := NewApproval(requestID, reviewer, decision).WithReason(reason)
	if err := s.approvals.Store(ctx, approval); err != nil {
		return nil, err
	}

	approvals, err := s.approvals.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	config, err := s.quorumCfg.ConfigFor(ctx, request.OrganizationID)
	if err != nil {
		return nil, err
	}
	quorum := NewQuorumCalculator(config).Evaluate(approvals)

	var to RequestStatus
	switch quorum.Kind {
	case QuorumApproved:
		to = RequestApproved
	case QuorumRejected:
		to = RequestRejected
	case QuorumEscalated:
		to = RequestEscalated
	default:
		to = RequestInReview
	}

	// Re-entering InReview from InReview is a no-op, not a transition.
	if to == RequestInReview && machine.Current() == RequestInReview {
		return &SubmitApprovalResult{RequestID: requestID, NewStatus: to, Quorum: quorum}, nil
	}
	// Re-entering Escalated from Escalated is likewise a no-op.
	if to == RequestEscalated && machine.Current() == RequestEscalated {
		return &SubmitApprovalResult{RequestID: requestID, NewStatus: to, Quorum: quorum}, nil
	}

	transition, err := machine.Transition(to, UserActor(reviewer), reason)
	if err != nil {
		return nil, err
	}
	if err := s.transitions.Append(ctx, *transition); err != nil {
		return nil, err
	}

	request.Status = to
	request.UpdatedAt = common.Now()
	if err := s.requests.Store(ctx, request); err != nil {
		return nil, err
	}

	s.logger.Info("oversight: approval submitted", "request_id", requestID, "new_status", to, "quorum", quorum.Kind)
	return &SubmitApprovalResult{RequestID: requestID, NewStatus: to, Quorum: quorum}, nil
}

// GetRequest loads an OversightRequest by ID.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*OversightRequest, error) {
	return s.requests.Get(ctx, id)
}

// ListPendingForReviewer lists requests awaiting reviewer's decision.
func (s *Service) ListPendingForReviewer(ctx context.Context, reviewer common.UserId) ([]*OversightRequest, error) {
	return s.requests.ListPendingForReviewer(ctx, reviewer)
}

// Cancel transitions requestID to Cancelled.
func (s *Service) Cancel(ctx context.Context, requestID uuid.UUID, actor Actor, reason string) error {
	request, err := s.requests.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if request == nil {
		return common.New(common.CodeInvalidStateTransition, "oversight request %s not found", requestID)
	}
	machine, ok := s.machines[requestID]
	if !ok {
		machine = FromState(requestID, request.Status)
		s.machines[requestID] = machine
	}
	transition, err := machine.Transition(RequestCancelled, actor, reason)
	if err != nil {
		return err
	}
	if err := s.transitions.Append(ctx, *transition); err != nil {
		return err
	}
	request.Status = RequestCancelled
	request.UpdatedAt = common.Now()
	return s.requests.Store(ctx, request)
}

// TimeoutSweeper transitions expired Pending/InReview/Escalated requests
// to TimedOut via the System actor, honoring each request's priority-
// derived deadline.
type TimeoutSweeper struct {
	service *Service
}

// NewTimeoutSweeper builds a sweeper over service.
func NewTimeoutSweeper(service *Service) *TimeoutSweeper {
	return &TimeoutSweeper{service: service}
}

// Sweep transitions every expired request to TimedOut, returning the
// requests it swept. Intended to run on a periodic timer.
func (sw *TimeoutSweeper) Sweep(ctx context.Context, asOf common.Timestamp) ([]*OversightRequest, error) {
	expired, err := sw.service.requests.ListExpired(ctx, asOf)
	if err != nil {
		return nil, err
	}

	var swept []*OversightRequest
	for _, request := range expired {
		machine, ok := sw.service.machines[request.ID]
		if !ok {
			machine = FromState(request.ID, request.Status)
			sw.service.machines[request.ID] = machine
		}
		transition, err := machine.Transition(RequestTimedOut, SystemActor(), "timeout deadline exceeded")
		if err != nil {
			continue
		}
		if err := sw.service.transitions.Append(ctx, *transition); err != nil {
			continue
		}
		request.Status = RequestTimedOut
		request.UpdatedAt = asOf
		if err := sw.service.requests.Store(ctx, request); err != nil {
			continue
		}
		swept = append(swept, request)
	}
	return swept, nil
}
