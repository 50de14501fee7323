// Package transcript archives finished conversation runs and announces them to
// downstream consumers. Archived records are history only: a running
// conversation never reads them back.
package transcript

import (
	"context"

	xerrors "MultiModel-Chat/internal/errors"
	"MultiModel-Chat/internal/llm"
)

// maxRecent 是内存索引保留的最近记录数。
const maxRecent = 512

// Record 描述一次已结束的多模型对话。
type Record struct {
	ID           string        `json:"id"`
	Endpoints    []string      `json:"endpoints"`
	Messages     []llm.Message `json:"messages"`
	Responses    []llm.Message `json:"responses"`
	AutoContinue bool          `json:"auto_continue"`
	MaxTurns     int           `json:"max_turns"`
	Turns        int           `json:"turns"`
	StopReason   string        `json:"stop_reason"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    int64         `json:"created_at"`
	DurationMS   int64         `json:"duration_ms"`
}

// Store 抽象对话记录的持久化接口。
type Store interface {
	Save(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// ListLatest 按创建时间倒序返回最多 limit 条记录。
	ListLatest(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Publisher 在对话结束后对外广播事件。
type Publisher interface {
	Publish(ctx context.Context, record Record) error
	Close() error
}

// EventConversationCompleted 是对话结束事件的类型名。
const EventConversationCompleted = "conversation.completed"

// ErrRecordNotFound 表示指定的对话记录不存在。
var ErrRecordNotFound = xerrors.New(xerrors.CodeNotFound, "conversation not found")

// NoopPublisher 丢弃所有事件。
type NoopPublisher struct{}

// Publish 实现 Publisher。
func (NoopPublisher) Publish(context.Context, Record) error { return nil }

// Close 实现 Publisher。
func (NoopPublisher) Close() error { return nil }

func cloneRecord(record Record) Record {
	clone := record
	clone.Endpoints = append([]string(nil), record.Endpoints...)
	clone.Messages = append([]llm.Message(nil), record.Messages...)
	clone.Responses = append([]llm.Message(nil), record.Responses...)
	return clone
}

var (
	_ Store     = (*MemoryStore)(nil)
	_ Store     = (*FileStore)(nil)
	_ Store     = (*MySQLStore)(nil)
	_ Store     = (*RedisStore)(nil)
	_ Publisher = NoopPublisher{}
	_ Publisher = (*RabbitMQPublisher)(nil)
)
