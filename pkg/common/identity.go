package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// AgentId uniquely and opaquely identifies an autonomous agent. Values are
// time-ordered (backed by a UUIDv7) so that two IDs minted in sequence sort
// in mint order.
type AgentId struct{ id uuid.UUID }

// NewAgentId mints a new time-ordered agent identifier.
func NewAgentId() AgentId { return AgentId{id: uuid.Must(uuid.NewV7())} }

// AgentIdFromUUID wraps an existing UUID as an AgentId.
func AgentIdFromUUID(u uuid.UUID) AgentId { return AgentId{id: u} }

// ParseAgentId parses either a bare UUID or a "agent:"-prefixed UUID.
func ParseAgentId(s string) (AgentId, error) {
	u, err := parsePrefixed(s, "agent:")
	if err != nil {
		return AgentId{}, Wrap(CodeValidationFailed, err, "invalid agent id %q", s)
	}
	return AgentId{id: u}, nil
}

func (a AgentId) UUID() uuid.UUID  { return a.id }
func (a AgentId) String() string   { return "agent:" + a.id.String() }
func (a AgentId) IsZero() bool     { return a.id == uuid.Nil }

// MarshalJSON encodes the id as its "agent:"-prefixed string form.
func (a AgentId) MarshalJSON() ([]byte, error) { return json.Marshal(a.String()) }

// UnmarshalJSON accepts either a bare UUID or a "agent:"-prefixed string.
func (a *AgentId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAgentId(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UserId uniquely and opaquely identifies a human principal.
type UserId struct{ id uuid.UUID }

func NewUserId() UserId                    { return UserId{id: uuid.Must(uuid.NewV7())} }
func UserIdFromUUID(u uuid.UUID) UserId    { return UserId{id: u} }

func ParseUserId(s string) (UserId, error) {
	u, err := parsePrefixed(s, "user:")
	if err != nil {
		return UserId{}, Wrap(CodeValidationFailed, err, "invalid user id %q", s)
	}
	return UserId{id: u}, nil
}

func (u UserId) UUID() uuid.UUID { return u.id }
func (u UserId) String() string  { return "user:" + u.id.String() }
func (u UserId) IsZero() bool    { return u.id == uuid.Nil }

// MarshalJSON encodes the id as its "user:"-prefixed string form.
func (u UserId) MarshalJSON() ([]byte, error) { return json.Marshal(u.String()) }

// UnmarshalJSON accepts either a bare UUID or a "user:"-prefixed string.
func (u *UserId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseUserId(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// OrganizationId uniquely and opaquely identifies a tenant organization.
type OrganizationId struct{ id uuid.UUID }

func NewOrganizationId() OrganizationId                 { return OrganizationId{id: uuid.Must(uuid.NewV7())} }
func OrganizationIdFromUUID(u uuid.UUID) OrganizationId { return OrganizationId{id: u} }

func ParseOrganizationId(s string) (OrganizationId, error) {
	u, err := parsePrefixed(s, "org:")
	if err != nil {
		return OrganizationId{}, Wrap(CodeValidationFailed, err, "invalid organization id %q", s)
	}
	return OrganizationId{id: u}, nil
}

func (o OrganizationId) UUID() uuid.UUID { return o.id }
func (o OrganizationId) String() string  { return "org:" + o.id.String() }
func (o OrganizationId) IsZero() bool    { return o.id == uuid.Nil }

// MarshalJSON encodes the id as its "org:"-prefixed string form.
func (o OrganizationId) MarshalJSON() ([]byte, error) { return json.Marshal(o.String()) }

// UnmarshalJSON accepts either a bare UUID or a "org:"-prefixed string.
func (o *OrganizationId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOrganizationId(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func parsePrefixed(s, prefix string) (uuid.UUID, error) {
	bare := strings.TrimPrefix(s, prefix)
	u, err := uuid.Parse(bare)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w", err)
	}
	return u, nil
}

// DelegationChain tracks the path of agent-to-agent delegation rooted at a
// human user, bounded to prevent unbounded delegation depth.
type DelegationChain struct {
	Root     UserId
	Agents   []AgentId
	MaxDepth uint8
}

// NewDelegationChain creates a chain rooted at user with the default max
// depth of 3, matching the original implementation's default.
func NewDelegationChain(root UserId) *DelegationChain {
	return &DelegationChain{Root: root, MaxDepth: 3}
}

// Delegate appends agent to the chain, failing once MaxDepth is reached.
func (c *DelegationChain) Delegate(agent AgentId) error {
	if uint8(len(c.Agents)) >= c.MaxDepth {
		return New(CodeValidationFailed, "delegation depth %d exceeds max %d", len(c.Agents)+1, c.MaxDepth)
	}
	c.Agents = append(c.Agents, agent)
	return nil
}

// Depth returns the current delegation depth.
func (c *DelegationChain) Depth() int { return len(c.Agents) }

// Leaf returns the most recently delegated agent, if any.
func (c *DelegationChain) Leaf() (AgentId, bool) {
	if len(c.Agents) == 0 {
		return AgentId{}, false
	}
	return c.Agents[len(c.Agents)-1], true
}
