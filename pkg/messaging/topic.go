package messaging

import (
	"sync"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// TopicId identifies a pub/sub topic.
type TopicId = uuid.UUID

// SubscriptionId identifies a subscription on a topic.
type SubscriptionId = uuid.UUID

// TopicPolicy constrains who may publish and subscribe to a topic.
type TopicPolicy struct {
	PublishersOnly []common.AgentId // empty means unrestricted
}

// CanPublish reports whether agent may publish per this policy.
func (p TopicPolicy) CanPublish(agent common.AgentId) bool {
	if len(p.PublishersOnly) == 0 {
		return true
	}
	for _, a := range p.PublishersOnly {
		if a == agent {
			return true
		}
	}
	return false
}

// TopicConfig configures a Topic.
type TopicConfig struct {
	MaxSubscribers int // 0 means unbounded
}

// SubscriptionFilter restricts which envelopes a subscription receives.
// An empty ContentTypes list matches any content type; an empty Tags list
// matches any tag set. When both are non-empty, an envelope must match the
// content type AND at least one tag.
type SubscriptionFilter struct {
	ContentTypes []ContentType
	Tags         []string
}

func (f SubscriptionFilter) matches(env *Envelope, tags []string) bool {
	if len(f.ContentTypes) > 0 {
		found := false
		for _, ct := range f.ContentTypes {
			if ct == env.Header.ContentType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 {
		found := false
		for _, want := range f.Tags {
			for _, have := range tags {
				if want == have {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Subscription is one subscriber's registration on a Topic.
type Subscription struct {
	ID         SubscriptionId
	Subscriber common.AgentId
	Filter     SubscriptionFilter
	inbox      chan *Envelope
}

// Deliveries returns the channel of envelopes matching this subscription.
func (s *Subscription) Deliveries() <-chan *Envelope { return s.inbox }

// Topic is a named pub/sub channel: publishers call Publish, subscribers
// receive matching envelopes on their Subscription's inbox.
type Topic struct {
	ID     TopicId
	Owner  common.AgentId
	Policy TopicPolicy
	Config TopicConfig

	mu            sync.RWMutex
	subscriptions map[SubscriptionId]*Subscription
}

// NewTopic creates a topic owned by owner.
func NewTopic(owner common.AgentId, policy TopicPolicy, config TopicConfig) *Topic {
	return &Topic{
		ID: uuid.Must(uuid.NewV7()), Owner: owner, Policy: policy, Config: config,
		subscriptions: make(map[SubscriptionId]*Subscription),
	}
}

// Subscribe registers subscriber with filter and returns the subscription.
// Inbox capacity is bounded to avoid an unbounded buildup from a stalled
// subscriber; Publish drops (does not block) if the inbox is full.
func (t *Topic) Subscribe(subscriber common.AgentId, filter SubscriptionFilter) (*Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Config.MaxSubscribers > 0 && len(t.subscriptions) >= t.Config.MaxSubscribers {
		return nil, common.New(common.CodeLimitExceeded, "topic subscriber limit reached: %d", t.Config.MaxSubscribers)
	}
	sub := &Subscription{
		ID: uuid.Must(uuid.NewV7()), Subscriber: subscriber, Filter: filter,
		inbox: make(chan *Envelope, 64),
	}
	t.subscriptions[sub.ID] = sub
	return sub, nil
}

// Unsubscribe removes a subscription.
func (t *Topic) Unsubscribe(id SubscriptionId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub, ok := t.subscriptions[id]; ok {
		close(sub.inbox)
		delete(t.subscriptions, id)
	}
}

// Publish delivers env to every subscription whose filter matches, provided
// publisher is allowed to publish per the topic's policy.
func (t *Topic) Publish(publisher common.AgentId, env *Envelope, tags []string) error {
	if !t.Policy.CanPublish(publisher) {
		return common.New(common.CodeAuthorizationDenied, "agent %s is not permitted to publish on this topic", publisher)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, sub := range t.subscriptions {
		if !sub.Filter.matches(env, tags) {
			continue
		}
		select {
		case sub.inbox <- env:
		default:
		}
	}
	return nil
}

// SubscriberCount returns the number of active subscriptions.
func (t *Topic) SubscriberCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subscriptions)
}

// TopicManager owns the set of topics in a process.
type TopicManager struct {
	mu     sync.RWMutex
	topics map[TopicId]*Topic
}

// NewTopicManager creates an empty topic manager.
func NewTopicManager() *TopicManager {
	return &TopicManager{topics: make(map[TopicId]*Topic)}
}

// CreateTopic creates and registers a new topic.
func (m *TopicManager) CreateTopic(owner common.AgentId, policy TopicPolicy, config TopicConfig) *Topic {
	t := NewTopic(owner, policy, config)
	m.mu.Lock()
	m.topics[t.ID] = t
	m.mu.Unlock()
	return t
}

// GetTopic looks up a topic by ID.
func (m *TopicManager) GetTopic(id TopicId) (*Topic, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.topics[id]
	if !ok {
		return nil, common.New(common.CodeChannelNotFound, "topic %s not found", id)
	}
	return t, nil
}

// DeleteTopic removes a topic and closes every subscription on it.
func (m *TopicManager) DeleteTopic(id TopicId) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.topics[id]; ok {
		t.mu.Lock()
		for _, sub := range t.subscriptions {
			close(sub.inbox)
		}
		t.mu.Unlock()
		delete(m.topics, id)
	}
}
