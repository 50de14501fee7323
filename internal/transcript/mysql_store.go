package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "MultiModel-Chat/internal/errors"
)

// MySQLConfig 描述 MySQL 连接池参数。
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLStore 使用 MySQL 的 conversation_runs 表保存对话记录。
type MySQLStore struct {
	db *sql.DB
}

const selectRunColumns = `SELECT id, endpoints, messages, responses, auto_continue, max_turns, turns, stop_reason, error, created_at, duration_ms
        FROM conversation_runs`

// NewMySQLStore 创建连接池并初始化数据表。
func NewMySQLStore(ctx context.Context, cfg MySQLConfig) (*MySQLStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	if err := runMigrations(ctx, db, nil); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 conversation_runs 表失败")
	}
	return &MySQLStore{db: db}, nil
}

// NewMySQLStoreWithDB 基于已有连接创建存储，不执行迁移。
func NewMySQLStoreWithDB(db *sql.DB) *MySQLStore {
	return &MySQLStore{db: db}
}

// Save 将对话记录写入 MySQL。
func (s *MySQLStore) Save(ctx context.Context, record Record) error {
	endpoints, messages, responses, err := encodeColumns(record)
	if err != nil {
		return err
	}
	const stmt = `INSERT INTO conversation_runs
        (id, endpoints, messages, responses, auto_continue, max_turns, turns, stop_reason, error, created_at, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		endpoints,
		messages,
		responses,
		record.AutoContinue,
		record.MaxTurns,
		record.Turns,
		record.StopReason,
		record.Error,
		record.CreatedAt,
		record.DurationMS,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 MySQL 失败")
	}
	return nil
}

// Get 查询单条对话记录。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRunColumns+` WHERE id = ?`, id)
	record, err := scanRecord(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	return record, nil
}

// ListLatest 查询最近的若干条对话记录。
func (s *MySQLStore) ListLatest(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, selectRunColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话记录失败")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话记录失败")
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对话记录失败")
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record                         Record
		endpoints, messages, responses string
		errText                        sql.NullString
	)
	if err := row.Scan(
		&record.ID,
		&endpoints,
		&messages,
		&responses,
		&record.AutoContinue,
		&record.MaxTurns,
		&record.Turns,
		&record.StopReason,
		&errText,
		&record.CreatedAt,
		&record.DurationMS,
	); err != nil {
		return nil, err
	}
	record.Error = errText.String
	if err := json.Unmarshal([]byte(endpoints), &record.Endpoints); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(messages), &record.Messages); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(responses), &record.Responses); err != nil {
		return nil, err
	}
	return &record, nil
}

func encodeColumns(record Record) (string, string, string, error) {
	endpoints, err := json.Marshal(nonNil(record.Endpoints))
	if err != nil {
		return "", "", "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化端点列表失败")
	}
	messages, err := json.Marshal(record.Messages)
	if err != nil {
		return "", "", "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化消息失败")
	}
	responses, err := json.Marshal(record.Responses)
	if err != nil {
		return "", "", "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化回复失败")
	}
	return string(endpoints), string(messages), string(responses), nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
