package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/boostgrid/backend/internal/models"
)

// Exchange is the topic exchange all engagement events go through.
const Exchange = "engagement_events"

// Routing keys.
const (
	KeyOrderCreated        = "order.created"
	KeyWithdrawalRequested = "withdrawal.requested"
	KeyTaskCompleted       = "task.completed"
)

// Producer publishes engagement events to RabbitMQ. A nil *Producer is
// valid and drops events, so the broker stays optional in dev setups.
type Producer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewProducer(amqpURL string) (*Producer, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := channel.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}
	return &Producer{conn: conn, channel: channel}, nil
}

type orderCreatedEvent struct {
	OrderID   string    `json:"order_id"`
	AccountID string    `json:"account_id"`
	Platform  string    `json:"platform"`
	Service   string    `json:"service"`
	Quantity  int       `json:"quantity"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Producer) PublishOrderCreated(ctx context.Context, o *models.Order) error {
	return p.publish(ctx, KeyOrderCreated, orderCreatedEvent{
		OrderID:   o.ID.String(),
		AccountID: o.AccountID.String(),
		Platform:  o.Platform,
		Service:   string(o.Service),
		Quantity:  o.Quantity,
		Amount:    o.Amount.String(),
		CreatedAt: o.CreatedAt,
	})
}

type withdrawalRequestedEvent struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Amount        string `json:"amount"`
	Method        string `json:"method"`
}

func (p *Producer) PublishWithdrawalRequested(ctx context.Context, txn *models.Transaction) error {
	return p.publish(ctx, KeyWithdrawalRequested, withdrawalRequestedEvent{
		TransactionID: txn.ID.String(),
		AccountID:     txn.AccountID.String(),
		Amount:        txn.Amount.String(),
		Method:        txn.Method,
	})
}

type taskCompletedEvent struct {
	ExecutionID string `json:"execution_id"`
	TaskID      string `json:"task_id"`
	ExecutorID  string `json:"executor_id"`
	TaskType    string `json:"task_type"`
	Earnings    string `json:"earnings"`
}

func (p *Producer) PublishTaskCompleted(ctx context.Context, e *models.TaskExecution, t *models.Task) error {
	return p.publish(ctx, KeyTaskCompleted, taskCompletedEvent{
		ExecutionID: e.ID.String(),
		TaskID:      e.TaskID.String(),
		ExecutorID:  e.ExecutorID.String(),
		TaskType:    string(t.Type),
		Earnings:    e.Earnings.String(),
	})
}

func (p *Producer) publish(ctx context.Context, routingKey string, body any) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, Exchange, routingKey, false, false, amqp091.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

func (p *Producer) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
