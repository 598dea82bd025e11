package oversight

import "github.com/creto-systems/enablement/pkg/common"

// PolicyContext carries the ambient signals policy triggers evaluate
// against, beyond the action itself.
type PolicyContext struct {
	QuotaUsageFraction float64 // 0.0-1.0
	TimeOfDayHour       int     // 0-23, in the organization's configured timezone
	DelegationDepth     uint8
}

// PolicyDecisionKind tags the concrete type behind a PolicyDecision.
type PolicyDecisionKind string

const (
	DecisionAllow            PolicyDecisionKind = "allow"
	DecisionRequiresOversight PolicyDecisionKind = "requires_oversight"
	DecisionDeny             PolicyDecisionKind = "deny"
)

// PolicyDecision is the outcome of evaluating an action's PolicyTriggers.
type PolicyDecision struct {
	Kind                PolicyDecisionKind
	Reason              string
	SuggestedReviewers  []string // role names; user-ID resolution is external
}

func (d PolicyDecision) IsAllowed() bool           { return d.Kind == DecisionAllow }
func (d PolicyDecision) RequiresOversight() bool    { return d.Kind == DecisionRequiresOversight }
func (d PolicyDecision) IsDenied() bool             { return d.Kind == DecisionDeny }

// PolicyTrigger is one rule in the pluggable, declaration-ordered trigger
// set. Match returns whether action (given ctx) falls under this trigger,
// and the human-readable reason to attach to the resulting
// OversightRequest. The set is closed by convention (the five variants the
// specification names) rather than by a sealed interface, so deployments
// can register additional triggers without modifying this package.
type PolicyTrigger interface {
	Match(action ActionType, ctx PolicyContext) (bool, string)
	SuggestedReviewers() []string
}

// AmountThreshold matches Transaction actions at or above a minor-unit
// threshold, optionally restricted to one currency.
type AmountThreshold struct {
	ThresholdMinor int64
	Currency       *common.Currency
	Reviewers      []string
}

func (a AmountThreshold) Match(action ActionType, _ PolicyContext) (bool, string) {
	tx, ok := action.(TransactionAction)
	if !ok {
		return false, ""
	}
	if a.Currency != nil && tx.Amount.Currency != *a.Currency {
		return false, ""
	}
	if tx.Amount.Amount < a.ThresholdMinor {
		return false, ""
	}
	return true, "transaction amount meets or exceeds approval threshold"
}

func (a AmountThreshold) SuggestedReviewers() []string { return a.Reviewers }

// DataSensitivity matches DataAccess actions whose scope is in Scopes.
type DataSensitivity struct {
	Scopes    []string
	Reviewers []string
}

func (d DataSensitivity) Match(action ActionType, _ PolicyContext) (bool, string) {
	access, ok := action.(DataAccessAction)
	if !ok {
		return false, ""
	}
	for _, s := range d.Scopes {
		if s == access.Scope {
			return true, "data access scope requires approval"
		}
	}
	return false, ""
}

func (d DataSensitivity) SuggestedReviewers() []string { return d.Reviewers }

// RiskLevelTrigger matches CodeExecution actions whose risk level is in
// Levels.
type RiskLevelTrigger struct {
	Levels    []string
	Reviewers []string
}

func (r RiskLevelTrigger) Match(action ActionType, _ PolicyContext) (bool, string) {
	exec, ok := action.(CodeExecutionAction)
	if !ok {
		return false, ""
	}
	for _, level := range r.Levels {
		if level == exec.RiskLevel {
			return true, "code execution risk level requires approval"
		}
	}
	return false, ""
}

func (r RiskLevelTrigger) SuggestedReviewers() []string { return r.Reviewers }

// QuotaUsageTrigger matches any action once the acting agent's quota usage
// fraction meets or exceeds Threshold. Unlike the other triggers it isn't
// action-type-specific: it reflects context, not the action's shape.
type QuotaUsageTrigger struct {
	Threshold float64
	Reviewers []string
}

func (q QuotaUsageTrigger) Match(_ ActionType, ctx PolicyContext) (bool, string) {
	if ctx.QuotaUsageFraction >= q.Threshold {
		return true, "quota usage threshold requires approval"
	}
	return false, ""
}

func (q QuotaUsageTrigger) SuggestedReviewers() []string { return q.Reviewers }

// TimeWindowTrigger matches any action occurring within [StartHour,
// EndHour). EndHour < StartHour means the window crosses midnight.
type TimeWindowTrigger struct {
	StartHour int
	EndHour   int
	Reviewers []string
}

func (w TimeWindowTrigger) Match(_ ActionType, ctx PolicyContext) (bool, string) {
	h := ctx.TimeOfDayHour
	var inWindow bool
	if w.EndHour < w.StartHour {
		inWindow = h >= w.StartHour || h < w.EndHour
	} else {
		inWindow = h >= w.StartHour && h < w.EndHour
	}
	if inWindow {
		return true, "action occurs within a restricted time window"
	}
	return false, ""
}

func (w TimeWindowTrigger) SuggestedReviewers() []string { return w.Reviewers }

// PolicyEngine evaluates a deployment's ordered PolicyTrigger set against
// an action, short-circuiting on the first match. It holds no Cedar-style
// plugin runtime: triggers are compiled, typed Go values, matching the
// specification's explicit preference for a closed trigger taxonomy over
// an open policy-expression language.
type PolicyEngine struct {
	triggers []PolicyTrigger
}

// NewPolicyEngine builds an engine evaluating triggers in the given order.
func NewPolicyEngine(triggers ...PolicyTrigger) *PolicyEngine {
	return &PolicyEngine{triggers: triggers}
}

// Evaluate returns Allow unless some trigger matches, in which case it
// returns RequiresOversight carrying that trigger's reason and reviewers.
func (e *PolicyEngine) Evaluate(action ActionType, ctx PolicyContext) PolicyDecision {
	for _, trigger := range e.triggers {
		if matched, reason := trigger.Match(action, ctx); matched {
			return PolicyDecision{Kind: DecisionRequiresOversight, Reason: reason, SuggestedReviewers: trigger.SuggestedReviewers()}
		}
	}
	return PolicyDecision{Kind: DecisionAllow}
}
