package domain

import (
	"context"
)

// EventBus carries asynchronous scoring requests and decision events.
// Go channels back the Community tier, NATS the Pro tier.
// Every call is scoped to a tenant.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, tenantID string, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	Subscribe(ctx context.Context, tenantID string, topic string, handler MessageHandler) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is the envelope of every bus event.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenantId"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	Unsubscribe() error
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `json:"type" mapstructure:"type" validate:"oneof=channel nats"`

	// Channel settings (Community tier)
	ChannelBufferSize int `json:"channelBufferSize" mapstructure:"channelbuffersize"`

	// NATS settings (Pro tier)
	NATSUrl           string `json:"natsUrl" mapstructure:"natsurl"`
	NATSToken         string `json:"natsToken" mapstructure:"natstoken"`
	NATSMaxReconnects int    `json:"natsMaxReconnects" mapstructure:"natsmaxreconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait" mapstructure:"natsreconnectwait"` // seconds
}

// Topics of the asynchronous scoring pipeline. On NATS a topic becomes the
// subject quantra.<tenant>.<topic>.
const (
	TopicTransactionIngested = "transaction.ingested"
	TopicDecision            = "decision"
	TopicAlert               = "alert"
)

// GlobalTenant is the subscription scope that receives every tenant's messages
// on buses without subject wildcards.
const GlobalTenant = "_global"
