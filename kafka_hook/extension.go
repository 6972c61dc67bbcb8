// Package kafkahook publishes paywall payment events to a Kafka topic so
// downstream services (mailers, analytics, the blog itself) can react to
// recorded orders without polling the ledger.
package kafkahook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	skafka "github.com/segmentio/kafka-go"

	"github.com/xraph/paywall/account"
	"github.com/xraph/paywall/id"
	"github.com/xraph/paywall/plugin"
	"github.com/xraph/paywall/provider"
	"github.com/xraph/paywall/types"
)

// Event types.
const (
	EventOrderRecorded   = "order.recorded"
	EventPaymentRejected = "payment.rejected"
	EventAccountCreated  = "account.created"
)

// DefaultTopic receives every event unless another topic is configured.
const DefaultTopic = "paywall.events"

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnShutdown          = (*Extension)(nil)
	_ plugin.OnAccountCreated    = (*Extension)(nil)
	_ plugin.OnPaymentReconciled = (*Extension)(nil)
	_ plugin.OnPaymentRejected   = (*Extension)(nil)
)

// Writer is the subset of kafka.Writer the extension needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...skafka.Message) error
	Close() error
}

// Event is the JSON message body.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	AccountID  string          `json:"account_id,omitempty"`
	Gateway    account.Gateway `json:"gateway,omitempty"`
	ExternalID string          `json:"external_id,omitempty"`
	Product    string          `json:"product,omitempty"`
	Amount     *types.Money    `json:"amount,omitempty"`
	Quota      int64           `json:"post_quota_total,omitempty"`
	ProAccess  bool            `json:"has_pro_access,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// Extension publishes payment lifecycle events.
type Extension struct {
	writer Writer
	logger *slog.Logger
}

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extension) { e.logger = l }
}

// New creates an Extension writing through w.
func New(w Writer, opts ...Option) *Extension {
	e := &Extension{writer: w, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewWriter builds a kafka writer for a comma-separated broker list.
func NewWriter(brokers, topic string) *skafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	return &skafka.Writer{
		Addr:                   skafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &skafka.Hash{},
		AllowAutoTopicCreation: true,
	}
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "kafka-hook" }

// OnShutdown implements plugin.OnShutdown.
func (e *Extension) OnShutdown(_ context.Context) error {
	return e.writer.Close()
}

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return e.publish(ctx, &Event{
		Type:      EventAccountCreated,
		AccountID: a.ID.String(),
		Quota:     a.PostQuotaTotal,
	})
}

// OnPaymentReconciled implements plugin.OnPaymentReconciled.
func (e *Extension) OnPaymentReconciled(ctx context.Context, o *provider.Outcome, a *account.Account) error {
	amount := o.Amount
	return e.publish(ctx, &Event{
		Type:       EventOrderRecorded,
		AccountID:  a.ID.String(),
		Gateway:    o.Provider,
		ExternalID: o.ExternalID,
		Product:    string(o.Correlation.Product),
		Amount:     &amount,
		Quota:      a.PostQuotaTotal,
		ProAccess:  a.HasProAccess,
	})
}

// OnPaymentRejected implements plugin.OnPaymentRejected.
func (e *Extension) OnPaymentRejected(ctx context.Context, o *provider.Outcome, reason error) error {
	amount := o.Amount
	ev := &Event{
		Type:       EventPaymentRejected,
		AccountID:  o.SubjectAccountID,
		Gateway:    o.Provider,
		ExternalID: o.ExternalID,
		Product:    string(o.Correlation.Product),
		Amount:     &amount,
	}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	return e.publish(ctx, ev)
}

func (e *Extension) publish(ctx context.Context, ev *Event) error {
	ev.ID = id.NewEventID().String()
	ev.OccurredAt = time.Now().UTC()

	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("kafka_hook: marshal event: %w", err)
	}

	// Keying by account keeps one account's events ordered on a partition.
	key := ev.AccountID
	if key == "" {
		key = ev.ExternalID
	}
	msg := skafka.Message{
		Key:   []byte(key),
		Value: b,
		Headers: []skafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	}
	if err := e.writer.WriteMessages(ctx, msg); err != nil {
		e.logger.Warn("kafka_hook: write failed",
			"type", ev.Type,
			"external_id", ev.ExternalID,
			"error", err,
		)
		return err
	}
	return nil
}
