// Package kafka publishes audit events to per-category Kafka topics.
// Kafka is the source of truth for the audit trail; downstream consumers
// own retention and querying.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "enroll/pkg/platform/audit"
	"enroll/pkg/platform/sentinel"
)

// Store implements audit.Store by producing to Kafka. Events are keyed by
// flow ID so one flow's trail stays ordered within a partition.
type Store struct {
	client      *kgo.Client
	topicPrefix string
}

// payload is the JSON structure written to Kafka.
type payload struct {
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
	FlowID    string `json:"flow_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// New connects to the brokers and ensures the three category topics exist.
func New(ctx context.Context, brokers []string, topicPrefix string) (*Store, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	s := &Store{client: client, topicPrefix: topicPrefix}
	if err := s.ensureTopics(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureTopics(ctx context.Context) error {
	adm := kadm.NewClient(s.client)
	topics := []string{
		s.topic(audit.CategoryCompliance),
		s.topic(audit.CategorySecurity),
		s.topic(audit.CategoryOperations),
	}

	responses, err := adm.CreateTopics(ctx, 3, 1, nil, topics...)
	if err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	for _, resp := range responses.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

func (s *Store) topic(category audit.EventCategory) string {
	return s.topicPrefix + "." + string(category)
}

// Append produces the event to its category topic synchronously. Audit
// writes sit off the request path (behind the async publisher), so the
// produce latency is acceptable in exchange for a delivery guarantee.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	p := payload{
		Category:  string(event.Category),
		Timestamp: event.Timestamp.Format(time.RFC3339Nano),
		FlowID:    event.FlowID,
		Email:     event.Email,
		Channel:   event.Channel,
		Action:    event.Action,
		Reason:    event.Reason,
		RequestID: event.RequestID,
		ClientIP:  event.ClientIP,
		UserAgent: event.UserAgent,
	}
	if !event.UserID.IsZero() {
		p.UserID = event.UserID.String()
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic(event.Category),
		Key:   []byte(event.FlowID),
		Value: raw,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// ListByFlow is not served from Kafka; query the downstream store instead.
func (s *Store) ListByFlow(context.Context, string) ([]audit.Event, error) {
	return nil, fmt.Errorf("audit trail queries are served downstream: %w", sentinel.ErrUnavailable)
}

// Close flushes outstanding produces and releases the client.
func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Flush(ctx)
	s.client.Close()
}
