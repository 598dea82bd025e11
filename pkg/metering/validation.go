package metering

import "github.com/creto-systems/enablement/pkg/common"

// ValidationConfig bounds the fields EventValidator enforces beyond the
// event's own Validate method.
type ValidationConfig struct {
	MaxQuantity      int64 // 0 means unbounded
	AllowedTypes     []UsageEventType
	MaxDelegationDepth uint8
}

// DefaultValidationConfig returns permissive defaults: no quantity cap, any
// event type, delegation depth capped at the DelegationChain default of 3.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{MaxDelegationDepth: 3}
}

// ValidationError names which event in a batch failed and why.
type ValidationError struct {
	Index int
	Err   error
}

// BatchValidationResult partitions a validated batch into events that
// passed and the errors for those that didn't.
type BatchValidationResult struct {
	Valid  []UsageEvent
	Errors []ValidationError
}

// EventValidator enforces ValidationConfig on top of UsageEvent.Validate.
type EventValidator struct {
	config ValidationConfig
}

// NewEventValidator builds a validator with config.
func NewEventValidator(config ValidationConfig) *EventValidator {
	return &EventValidator{config: config}
}

// Validate checks a single event against both its own invariants and the
// validator's configured bounds.
func (v *EventValidator) Validate(e UsageEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if v.config.MaxQuantity > 0 && e.Quantity > v.config.MaxQuantity {
		return common.New(common.CodeInvalidUsageEvent, "quantity %d exceeds max %d", e.Quantity, v.config.MaxQuantity)
	}
	if v.config.MaxDelegationDepth > 0 && e.DelegationDepth > v.config.MaxDelegationDepth {
		return common.New(common.CodeInvalidUsageEvent, "delegation depth %d exceeds max %d", e.DelegationDepth, v.config.MaxDelegationDepth)
	}
	if len(v.config.AllowedTypes) > 0 {
		allowed := false
		for _, t := range v.config.AllowedTypes {
			if t == e.EventType {
				allowed = true
				break
			}
		}
		if !allowed {
			return common.New(common.CodeInvalidUsageEvent, "event type %q is not allowed", e.EventType)
		}
	}
	return nil
}

// ValidateBatch validates every event independently, partitioning the
// result rather than failing the whole batch on the first bad event.
func (v *EventValidator) ValidateBatch(events []UsageEvent) BatchValidationResult {
	result := BatchValidationResult{}
	for i, e := range events {
		if err := v.Validate(e); err != nil {
			result.Errors = append(result.Errors, ValidationError{Index: i, Err: err})
			continue
		}
		result.Valid = append(result.Valid, e)
	}
	return result
}
