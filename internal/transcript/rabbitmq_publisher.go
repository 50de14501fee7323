package transcript

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "MultiModel-Chat/internal/errors"
)

// RabbitMQConfig 描述事件队列的连接参数。
type RabbitMQConfig struct {
	URL     string
	Queue   string
	Durable bool
}

// RabbitMQPublisher 将对话结束事件投递到 RabbitMQ 队列。
type RabbitMQPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewRabbitMQPublisher 建立连接并声明队列。
func NewRabbitMQPublisher(cfg RabbitMQConfig) (*RabbitMQPublisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "multichat.conversations"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "创建 RabbitMQ channel 失败")
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, xerrors.Wrap(xerrors.CodePublishFailure, err, "声明 RabbitMQ 队列失败")
	}
	return &RabbitMQPublisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish 发送 conversation.completed 事件。
func (p *RabbitMQPublisher) Publish(ctx context.Context, record Record) error {
	if p == nil || p.ch == nil {
		return xerrors.New(xerrors.CodePublishFailure, "RabbitMQ 发布器未初始化")
	}
	msg, err := buildPublishing(record, time.Now())
	if err != nil {
		return err
	}
	// amqp.Channel 不支持并发发布。
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "RabbitMQ 发布事件失败")
	}
	return nil
}

func buildPublishing(record Record, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return amqp.Publishing{}, xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化事件失败")
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    record.ID,
		Type:         EventConversationCompleted,
		Timestamp:    now,
		Body:         body,
	}, nil
}

// Close 关闭 channel 与连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
