// Package oversight implements the Oversight Core: policy-triggered
// approval requests, a strict request state machine, pluggable quorum
// calculation, and an append-only transition log.
package oversight

import "github.com/creto-systems/enablement/pkg/common"

// ActionKind tags the concrete type behind an ActionType.
type ActionKind string

const (
	ActionTransaction    ActionKind = "transaction"
	ActionDataAccess     ActionKind = "data_access"
	ActionExternalAPI    ActionKind = "external_api"
	ActionCodeExecution  ActionKind = "code_execution"
	ActionCommunication  ActionKind = "communication"
	ActionCustom         ActionKind = "custom"
)

// ActionType is the closed set of action variants an agent can submit for
// oversight. It is a sealed interface: Kind identifies which concrete
// struct implements it, the way a Rust tagged enum would.
type ActionType interface {
	Kind() ActionKind
}

// TransactionAction is a financial transfer.
type TransactionAction struct {
	Amount common.Money
}

func (TransactionAction) Kind() ActionKind { return ActionTransaction }

// DataAccessAction is a request to read data of some type/scope.
type DataAccessAction struct {
	DataType string
	Scope    string
}

func (DataAccessAction) Kind() ActionKind { return ActionDataAccess }

// ExternalAPIAction is a call to a service outside the organization's
// boundary.
type ExternalAPIAction struct {
	Service   string
	Operation string
}

func (ExternalAPIAction) Kind() ActionKind { return ActionExternalAPI }

// CodeExecutionAction runs code in some runtime at some risk level.
type CodeExecutionAction struct {
	Runtime   string
	RiskLevel string
}

func (CodeExecutionAction) Kind() ActionKind { return ActionCodeExecution }

// CommunicationAction sends a message to a human.
type CommunicationAction struct {
	RecipientType string
	Category      string
}

func (CommunicationAction) Kind() ActionKind { return ActionCommunication }

// CustomAction is an escape hatch for action types the closed taxonomy
// doesn't name.
type CustomAction struct {
	TypeID string
}

func (CustomAction) Kind() ActionKind { return ActionCustom }
