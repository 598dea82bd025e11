package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creto-systems/enablement/pkg/common"
)

func TestTopicPublishMatchesContentTypeFilter(t *testing.T) {
	owner := common.NewAgentId()
	topic := NewTopic(owner, TopicPolicy{}, TopicConfig{})

	sub, err := topic.Subscribe(common.NewAgentId(), SubscriptionFilter{ContentTypes: []ContentType{ContentStatus}})
	require.NoError(t, err)

	textEnv := NewEnvelope(owner, common.NewAgentId(), MessageHeader{}, []byte("x")).WithContentType(ContentText)
	require.NoError(t, topic.Publish(owner, textEnv, nil))
	assert.Empty(t, sub.inbox)

	statusEnv := NewEnvelope(owner, common.NewAgentId(), MessageHeader{}, []byte("x")).WithContentType(ContentStatus)
	require.NoError(t, topic.Publish(owner, statusEnv, nil))
	select {
	case got := <-sub.Deliveries():
		assert.Equal(t, statusEnv.ID, got.ID)
	default:
		t.Fatal("expected a delivery matching the content-type filter")
	}
}

func TestTopicPublishDeniedForNonPublisher(t *testing.T) {
	owner := common.NewAgentId()
	outsider := common.NewAgentId()
	topic := NewTopic(owner, TopicPolicy{PublishersOnly: []common.AgentId{owner}}, TopicConfig{})

	env := NewEnvelope(outsider, common.NewAgentId(), MessageHeader{}, []byte("x"))
	err := topic.Publish(outsider, env, nil)
	require.Error(t, err)
}

func TestTopicSubscriberLimitEnforced(t *testing.T) {
	owner := common.NewAgentId()
	topic := NewTopic(owner, TopicPolicy{}, TopicConfig{MaxSubscribers: 1})

	_, err := topic.Subscribe(common.NewAgentId(), SubscriptionFilter{})
	require.NoError(t, err)

	_, err = topic.Subscribe(common.NewAgentId(), SubscriptionFilter{})
	require.Error(t, err)
}
