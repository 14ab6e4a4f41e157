// Package messaging provides a NATS client wrapper for chatguard. Besides
// HTTP, other services can ask for a moderation decision over request/reply
// on moderation.check, and every blocked message is announced on
// moderation.flagged.<severity> for dashboards and downstream enforcement.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bookstage/chatguard/internal/moderation"
)

// NATS subjects used by chatguard.
const (
	SubjectModerationCheck = "moderation.check"
	SubjectFlagged         = "moderation.flagged" // + .<severity>

	// QueueModerators load-balances moderation.check across replicas.
	QueueModerators = "chatguard"
)

// Moderator decides on a single message.
type Moderator interface {
	Moderate(ctx context.Context, req moderation.Request) (moderation.Result, error)
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

var _ moderation.EventPublisher = (*NATSClient)(nil)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "chatguard",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// QueueSubscribe registers a queue-group handler for the given subject and
// stores the subscription internally for later cleanup.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// ServeModerationCheck answers moderation.check requests with m. Each request
// gets its own timeout; a zero timeout means none.
func (c *NATSClient) ServeModerationCheck(m Moderator, timeout time.Duration) error {
	return c.QueueSubscribe(SubjectModerationCheck, QueueModerators, func(msg *nats.Msg) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		reply := HandleModerationCheck(ctx, m, msg.Data)
		if msg.Reply == "" {
			log.Printf("[nats] moderation.check without reply subject, dropping result")
			return
		}
		if err := msg.Respond(reply); err != nil {
			log.Printf("[nats] respond moderation.check: %v", err)
		}
	})
}

// checkError is the reply body for a failed moderation.check.
type checkError struct {
	Error string `json:"error"`
}

// HandleModerationCheck decodes a Request from data, moderates it and returns
// the encoded reply: the Result on success or {"error": ...} otherwise.
func HandleModerationCheck(ctx context.Context, m Moderator, data []byte) []byte {
	var req moderation.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return encodeReply(checkError{Error: "invalid JSON body"})
	}

	result, err := m.Moderate(ctx, req)
	if err != nil {
		return encodeReply(checkError{Error: err.Error()})
	}
	return encodeReply(result)
}

func encodeReply(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[nats] marshal reply: %v", err)
		return []byte(`{"error":"internal error"}`)
	}
	return data
}

// PublishFlagged announces a blocked message on moderation.flagged.<severity>.
func (c *NATSClient) PublishFlagged(evt moderation.FlaggedEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("nats: marshal flagged event: %w", err)
	}
	return c.Publish(FlaggedSubject(evt.Severity), data)
}

// FlaggedSubject returns the subject flagged events of the given severity are
// published on.
func FlaggedSubject(severity moderation.Severity) string {
	return SubjectFlagged + "." + string(severity)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", subject, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}
