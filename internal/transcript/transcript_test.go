package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "MultiModel-Chat/internal/errors"
	"MultiModel-Chat/internal/llm"
)

func sampleRecord(id string, createdAt int64) Record {
	return Record{
		ID:        id,
		Endpoints: []string{"Model A", "Model B"},
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
		Responses: []llm.Message{
			{Role: llm.RoleAssistant, Name: "Model A", Content: "hello"},
			{Role: llm.RoleAssistant, Name: "Model B_Error", Content: "Error: boom"},
		},
		MaxTurns:   5,
		Turns:      1,
		StopReason: "no_continuation",
		CreatedAt:  createdAt,
		DurationMS: 12,
	}
}

func TestMemoryStoreOrdersNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("r1", 1)))
	require.NoError(t, store.Save(ctx, sampleRecord("r2", 2)))
	require.NoError(t, store.Save(ctx, sampleRecord("r1", 3)))

	records, err := store.ListLatest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r1", records[0].ID)
	assert.Equal(t, int64(3), records[0].CreatedAt)

	limited, err := store.ListLatest(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = store.Get(ctx, "missing")
	assert.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))

	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(store.Save(ctx, Record{})))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleRecord("r1", 1)))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	got.Responses[0].Content = "mutated"

	again, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.Responses[0].Content)
}

func TestMemoryStoreCapsRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < maxRecent+10; i++ {
		require.NoError(t, store.Save(ctx, sampleRecord(fmt.Sprintf("r%d", i), int64(i))))
	}
	records, err := store.ListLatest(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, maxRecent)
	_, err = store.Get(ctx, "r0")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestFileStoreReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewFileStore(FileStoreConfig{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, sampleRecord("r1", 1)))
	require.NoError(t, store.Save(ctx, sampleRecord("r2", 2)))
	require.NoError(t, store.Close())

	reopened, err := NewFileStore(FileStoreConfig{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.ListLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[0].ID)

	got, err := reopened.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Model A", "Model B"}, got.Endpoints)
}

func TestRotatingWriterKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.log")
	w := newRotatingWriter(path, 1, 2)
	w.maxSize = 16

	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte("0123456789\n"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	for _, name := range []string{path, path + ".1", path + ".2"} {
		_, err := os.Stat(name)
		assert.NoError(t, err, name)
	}
	_, err := os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

var runColumns = []string{"id", "endpoints", "messages", "responses", "auto_continue", "max_turns", "turns", "stop_reason", "error", "created_at", "duration_ms"}

func TestMySQLStoreSaveAndGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewMySQLStoreWithDB(db)
	defer store.Close()
	ctx := context.Background()

	record := sampleRecord("r1", 100)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversation_runs")).
		WithArgs("r1", `["Model A","Model B"]`, sqlmock.AnyArg(), sqlmock.AnyArg(), false, 5, 1, "no_continuation", "", int64(100), int64(12)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	require.NoError(t, store.Save(ctx, record))

	messages, _ := json.Marshal(record.Messages)
	responses, _ := json.Marshal(record.Responses)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ?")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("r1", `["Model A","Model B"]`, string(messages), string(responses), false, 5, 1, "no_continuation", nil, int64(100), int64(12)))

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, record.Responses, got.Responses)
	assert.Equal(t, "", got.Error)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = ?")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runColumns))
	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreListLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := NewMySQLStoreWithDB(db)
	defer store.Close()

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT ?")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(runColumns).
			AddRow("r2", `["Model A"]`, `[]`, `[]`, true, 3, 3, "max_turns_reached", nil, int64(2), int64(1)).
			AddRow("r1", `["Model A"]`, `[]`, `[]`, false, 5, 1, "all_endpoints_failed", "All endpoints failed to respond", int64(1), int64(1)))

	records, err := store.ListLatest(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r2", records[0].ID)
	assert.True(t, records[0].AutoContinue)
	assert.Equal(t, "All endpoints failed to respond", records[1].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := NewRedisStoreWithClient(client, RedisConfig{MaxRecent: 2, TTL: time.Hour})
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, sampleRecord("r1", 1)))
	require.NoError(t, store.Save(ctx, sampleRecord("r2", 2)))
	require.NoError(t, store.Save(ctx, sampleRecord("r3", 3)))

	records, err := store.ListLatest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "r3", records[0].ID)
	assert.Equal(t, "r2", records[1].ID)

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Model A", got.Responses[0].Name)
	assert.True(t, server.TTL("multichat:conversations:r1") > 0)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestBuildPublishing(t *testing.T) {
	now := time.Unix(1700000000, 0)
	msg, err := buildPublishing(sampleRecord("r1", 1), now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "r1", msg.MessageId)
	assert.Equal(t, EventConversationCompleted, msg.Type)
	assert.Equal(t, now, msg.Timestamp)

	var decoded Record
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, "no_continuation", decoded.StopReason)
}

func TestRabbitMQPublisherRequiresURL(t *testing.T) {
	_, err := NewRabbitMQPublisher(RabbitMQConfig{})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	var nilPublisher *RabbitMQPublisher
	assert.Error(t, nilPublisher.Publish(context.Background(), Record{}))
}
