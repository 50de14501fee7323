package transcript

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	files, err := loadMigrationFiles(nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(files), 2)
	assert.Equal(t, "0001", files[0].version)
	assert.Equal(t, "0002", files[1].version)
	assert.Len(t, files[0].statements, 2)
	assert.Contains(t, files[0].statements[0], "CREATE TABLE IF NOT EXISTS conversation_runs")
}

func TestRunMigrationsSkipsApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	files := fstest.MapFS{
		"0001_init.sql":  {Data: []byte("CREATE TABLE a (id INT);")},
		"0002_more.sql":  {Data: []byte("ALTER TABLE a ADD b INT; CREATE INDEX i ON a (b);")},
		"README.md":      {Data: []byte("ignored")},
		"0003_empty.sql": {Data: []byte("  ;  ")},
	}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE a ADD b INT")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX i ON a (b)")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).
		WithArgs("0002", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, runMigrations(context.Background(), db, files))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseMigrationVersion(t *testing.T) {
	assert.Equal(t, "0007", parseMigrationVersion("0007_add_index.sql"))
	assert.Equal(t, "0008", parseMigrationVersion("0008.sql"))
	assert.Equal(t, []string{"a", "b"}, splitSQLStatements(" a ;\n b; ;"))
}
