package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	xerrors "MultiModel-Chat/internal/errors"
)

const fileStoreName = "conversations.log"

// FileStore 以 JSON Lines 追加写入对话记录，并在内存中保留最近记录的索引。
// 日志超过 MaxSizeMB 后按序号轮转，最多保留 MaxBackups 份历史文件。
type FileStore struct {
	mu     sync.Mutex
	writer *rotatingWriter
	index  *MemoryStore
}

// FileStoreConfig 描述文件存储的位置与轮转策略。
type FileStoreConfig struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
}

// NewFileStore 创建文件存储并从现有日志恢复最近的记录。
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	path := filepath.Join(dir, fileStoreName)
	store := &FileStore{
		writer: newRotatingWriter(path, cfg.MaxSizeMB, cfg.MaxBackups),
		index:  NewMemoryStore(),
	}
	if err := store.loadFromDisk(path); err != nil {
		return nil, err
	}
	return store, nil
}

// Save 以追加写的方式记录一次对话。
func (s *FileStore) Save(ctx context.Context, record Record) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化对话记录失败")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话日志失败")
	}
	return s.index.Save(ctx, record)
}

// Get 实现 Store 接口。
func (s *FileStore) Get(ctx context.Context, id string) (*Record, error) {
	return s.index.Get(ctx, id)
}

// ListLatest 实现 Store 接口。
func (s *FileStore) ListLatest(ctx context.Context, limit int) ([]Record, error) {
	return s.index.ListLatest(ctx, limit)
}

// Close 关闭底层文件。
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

func (s *FileStore) loadFromDisk(path string) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取对话日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	ctx := context.Background()
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil || record.ID == "" {
			continue
		}
		_ = s.index.Save(ctx, record)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, fmt.Errorf("scan %s: %w", path, err), "解析对话日志失败")
	}
	return nil
}
