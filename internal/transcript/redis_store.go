package transcript

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "MultiModel-Chat/internal/errors"
)

// RedisConfig 描述 Redis 存储的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Prefix    string
	TTL       time.Duration
	MaxRecent int
}

// RedisStore 将对话记录保存为 Redis 字符串，并用 list 维护最近记录的 ID。
type RedisStore struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	maxRecent int
}

// NewRedisStore 创建 Redis 存储并检查连通性。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return NewRedisStoreWithClient(client, cfg), nil
}

// NewRedisStoreWithClient 使用已有客户端创建存储。
func NewRedisStoreWithClient(client *redis.Client, cfg RedisConfig) *RedisStore {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "multichat:conversations"
	}
	recent := cfg.MaxRecent
	if recent <= 0 {
		recent = maxRecent
	}
	return &RedisStore{client: client, prefix: prefix, ttl: cfg.TTL, maxRecent: recent}
}

func (s *RedisStore) recordKey(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisStore) recentKey() string {
	return s.prefix + ":recent"
}

// Save 写入记录并把 ID 推入最近列表。
func (s *RedisStore) Save(ctx context.Context, record Record) error {
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "对话 ID 不能为空")
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化对话记录失败")
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.ID), encoded, s.ttl)
	pipe.LRem(ctx, s.recentKey(), 0, record.ID)
	pipe.LPush(ctx, s.recentKey(), record.ID)
	pipe.LTrim(ctx, s.recentKey(), 0, int64(s.maxRecent-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 失败")
	}
	return nil
}

// Get 读取指定 ID 的记录。
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if stdErrors.Is(err, redis.Nil) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 失败")
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
	}
	return &record, nil
}

// ListLatest 按最近列表的顺序返回记录，已过期的记录会被跳过。
func (s *RedisStore) ListLatest(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > s.maxRecent {
		limit = s.maxRecent
	}
	ids, err := s.client.LRange(ctx, s.recentKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取最近对话列表失败")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "批量读取对话记录失败")
	}
	records := make([]Record, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
		}
		records = append(records, record)
	}
	return records, nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
