package messaging

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/creto-systems/enablement/pkg/common"
)

// ChannelType classifies a Channel's transport.
type ChannelType string

const (
	ChannelDirect       ChannelType = "direct"
	ChannelQueue        ChannelType = "queue"
	ChannelPubSub       ChannelType = "pub_sub"
	ChannelStoreForward ChannelType = "store_forward"
	ChannelWebhook      ChannelType = "webhook"
)

// RetryPolicy controls retry attempts and exponential backoff for a
// Channel's send path.
type RetryPolicy struct {
	MaxAttempts      int
	InitialBackoffMs int64
	MaxBackoffMs     int64
	Multiplier       float64
}

// DefaultRetryPolicy returns the standard retry policy: 3 attempts,
// 100ms initial backoff doubling up to a 10s ceiling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoffMs: 100, MaxBackoffMs: 10000, Multiplier: 2.0}
}

// BackoffMs computes the delay before retry attempt n (1-indexed).
// attempt 0 always backs off 0ms; otherwise
// backoff(n) = min(initial * multiplier^(n-1), max).
func (p RetryPolicy) BackoffMs(attempt int) int64 {
	if attempt <= 0 {
		return 0
	}
	backoff := float64(p.InitialBackoffMs) * math.Pow(p.Multiplier, float64(attempt-1))
	if backoff > float64(p.MaxBackoffMs) {
		return p.MaxBackoffMs
	}
	return int64(backoff)
}

// ChannelConfig configures a Channel.
type ChannelConfig struct {
	ChannelType  ChannelType
	URL          string
	Retry        RetryPolicy
	TimeoutMs    int64
	MaxBatchSize int
}

// DefaultChannelConfig returns sane defaults: 30s timeout, batches of 100.
func DefaultChannelConfig(ct ChannelType) ChannelConfig {
	return ChannelConfig{ChannelType: ct, Retry: DefaultRetryPolicy(), TimeoutMs: 30000, MaxBatchSize: 100}
}

// Channel delivers envelopes to a transport. Implementations may be direct
// connections, message queues, pub/sub topics, store-and-forward relays, or
// webhooks.
type Channel interface {
	ChannelType() ChannelType
	Send(ctx context.Context, env *Envelope) error
	SendBatch(ctx context.Context, batch *EnvelopeBatch) error
	Receive(ctx context.Context, recipient common.AgentId) ([]*Envelope, error)
	Acknowledge(ctx context.Context, ids []uuid.UUID) error
	IsConnected() bool
}

// InMemoryChannel is an in-process FIFO channel, primarily for tests and
// single-process composition: Send appends, Receive filters by recipient,
// Acknowledge removes by envelope ID.
type InMemoryChannel struct {
	mu       sync.RWMutex
	pending  []*Envelope
	connected bool
}

// NewInMemoryChannel creates a connected in-memory channel.
func NewInMemoryChannel() *InMemoryChannel {
	return &InMemoryChannel{connected: true}
}

func (c *InMemoryChannel) ChannelType() ChannelType { return ChannelDirect }

func (c *InMemoryChannel) Send(ctx context.Context, env *Envelope) error {
	if !c.connected {
		return common.New(common.CodeChannel, "channel is not connected")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, env)
	return nil
}

func (c *InMemoryChannel) SendBatch(ctx context.Context, batch *EnvelopeBatch) error {
	for _, env := range batch.Envelopes {
		if err := c.Send(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

func (c *InMemoryChannel) Receive(ctx context.Context, recipient common.AgentId) ([]*Envelope, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Envelope
	for _, env := range c.pending {
		if env.Header.RecipientID == recipient {
			out = append(out, env)
		}
	}
	return out, nil
}

func (c *InMemoryChannel) Acknowledge(ctx context.Context, ids []uuid.UUID) error {
	ackSet := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		ackSet[id] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.pending[:0]
	for _, env := range c.pending {
		if _, acked := ackSet[env.ID]; !acked {
			remaining = append(remaining, env)
		}
	}
	c.pending = remaining
	return nil
}

func (c *InMemoryChannel) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetConnected toggles connectivity, useful for exercising retry paths in
// tests.
func (c *InMemoryChannel) SetConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

// ChannelRouter holds multiple channels and routes sends to a configured
// default. Per-agent routing is not yet implemented — every Send goes to
// the default channel regardless of recipient, matching the upstream
// reference this was adapted from.
type ChannelRouter struct {
	Channels       []Channel
	DefaultChannel int
}

// NewChannelRouter creates a router over channels, defaulting route 0.
func NewChannelRouter(channels []Channel) *ChannelRouter {
	return &ChannelRouter{Channels: channels, DefaultChannel: 0}
}

// Route returns the channel an envelope should be sent on.
func (r *ChannelRouter) Route(env *Envelope) (Channel, error) {
	if r.DefaultChannel < 0 || r.DefaultChannel >= len(r.Channels) {
		return nil, common.New(common.CodeChannelNotFound, "no default channel configured")
	}
	return r.Channels[r.DefaultChannel], nil
}

// SendWithRetry sends env on ch, retrying per policy on failure.
func SendWithRetry(ctx context.Context, ch Channel, env *Envelope, policy RetryPolicy) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(policy.BackoffMs(attempt)) * time.Millisecond):
			}
		}
		if err := ch.Send(ctx, env); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return common.Wrap(common.CodeMessageDeliveryFailed, lastErr, "send failed after %d attempts", policy.MaxAttempts)
}
