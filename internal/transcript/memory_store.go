package transcript

import (
	"context"
	"strings"
	"sync"

	xerrors "MultiModel-Chat/internal/errors"
)

// MemoryStore 以内存方式保存最近的对话记录，进程重启后丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int)}
}

// Save 实现 Store 接口。新记录排在最前，超出容量时淘汰最旧的记录。
func (m *MemoryStore) Save(_ context.Context, record Record) error {
	if strings.TrimSpace(record.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "对话 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(cloneRecord(record))
	return nil
}

func (m *MemoryStore) insertLocked(record Record) {
	if idx, ok := m.byID[record.ID]; ok {
		m.records = append(m.records[:idx], m.records[idx+1:]...)
	}
	m.records = append([]Record{record}, m.records...)
	if len(m.records) > maxRecent {
		m.records = m.records[:maxRecent]
	}
	m.reindexLocked()
}

func (m *MemoryStore) reindexLocked() {
	m.byID = make(map[string]int, len(m.records))
	for idx, record := range m.records {
		m.byID[record.ID] = idx
	}
}

// Get 返回指定 ID 的记录。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byID[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := cloneRecord(m.records[idx])
	return &clone, nil
}

// ListLatest 返回最近的记录，按时间倒序排列。
func (m *MemoryStore) ListLatest(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}
	results := make([]Record, 0, limit)
	for _, record := range m.records[:limit] {
		results = append(results, cloneRecord(record))
	}
	return results, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }
