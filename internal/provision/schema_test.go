package provision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/SunSc05/siyuantao-backend-sub001/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, opts Options) (*Orchestrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	o := New(config.DatabaseConfig{User: "siyuantao", DBName: "siyuantao"}, opts, discardLogger())
	o.target = db
	return o, mock
}

func TestSplitBatches(t *testing.T) {
	content := "CREATE TABLE a (id int);\n--;;\nCREATE TABLE b (id int);\n--;;\n\n"

	batches := splitBatches(content)

	require.Len(t, batches, 2)
	assert.Equal(t, "CREATE TABLE a (id int);", batches[0])
	assert.Equal(t, "CREATE TABLE b (id int);", batches[1])
}

func TestSplitBatchesNoSeparator(t *testing.T) {
	batches := splitBatches("SELECT 1;\nSELECT 2;")
	require.Len(t, batches, 1)
	assert.Equal(t, "SELECT 1;\nSELECT 2;", batches[0])
}

func TestSplitBatchesSeparatorMustBeAlone(t *testing.T) {
	// The token only separates when it is the whole line.
	batches := splitBatches("SELECT '--;; not a separator';")
	require.Len(t, batches, 1)
}

func TestSplitBatchesDropsEmpty(t *testing.T) {
	assert.Empty(t, splitBatches("--;;\n\n--;;\n"))
}

func TestStatementSnippet(t *testing.T) {
	assert.Equal(t, "CREATE TABLE x (id int)", statementSnippet("CREATE TABLE x\n  (id int)"))

	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	snippet := statementSnippet(string(long))
	assert.Len(t, snippet, 123)
}

func writeSchemaFile(t *testing.T, dir, category, name, content string) {
	t.Helper()
	catDir := filepath.Join(dir, category)
	require.NoError(t, os.MkdirAll(catDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(catDir, name), []byte(content), 0o644))
}

func TestDeploySchemaCommitsEachBatch(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "tables", "001_users.sql",
		"CREATE TABLE users (id int)\n--;;\nCREATE INDEX users_idx ON users (id)\n")

	o, mock := newTestOrchestrator(t, Options{SchemaDir: dir})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users (id int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX users_idx ON users (id)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, o.deploySchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploySchemaLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "tables", "002_b.sql", "CREATE TABLE b (id int)\n")
	writeSchemaFile(t, dir, "tables", "001_a.sql", "CREATE TABLE a (id int)\n")

	o, mock := newTestOrchestrator(t, Options{SchemaDir: dir})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a (id int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE b (id int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, o.deploySchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploySchemaSkipsKnownBadBatch(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "procedures", skippedBatchFile,
		"CREATE FUNCTION good() RETURNS int\n--;;\nCREATE FUNCTION bad() RETURNS int\n--;;\nCREATE FUNCTION after() RETURNS int\n")

	o, mock := newTestOrchestrator(t, Options{SchemaDir: dir})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE FUNCTION good() RETURNS int").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	// batch 1 is skipped entirely: no Begin for it
	mock.ExpectBegin()
	mock.ExpectExec("CREATE FUNCTION after() RETURNS int").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, o.deploySchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploySchemaAbortsOnBatchFailure(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "tables", "001_users.sql",
		"CREATE TABLE users (id int)\n--;;\nCREATE TABLE more (id int)\n")

	o, mock := newTestOrchestrator(t, Options{SchemaDir: dir})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users (id int)").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()

	err := o.deploySchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_users.sql batch 0")
}

func TestDeploySchemaContinueOnError(t *testing.T) {
	dir := t.TempDir()
	writeSchemaFile(t, dir, "tables", "001_users.sql",
		"CREATE TABLE users (id int)\n--;;\nCREATE TABLE more (id int)\n")

	o, mock := newTestOrchestrator(t, Options{SchemaDir: dir, ContinueOnError: true})

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users (id int)").WillReturnError(errors.New("syntax error"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE more (id int)").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, o.deploySchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeploySchemaMissingCategoryIsSkipped(t *testing.T) {
	o, _ := newTestOrchestrator(t, Options{SchemaDir: t.TempDir()})
	require.NoError(t, o.deploySchema(context.Background()))
}

func TestEnsurePrivilegesSuperuserSkips(t *testing.T) {
	o, mock := newTestOrchestrator(t, Options{})

	mock.ExpectQuery("SELECT rolsuper FROM pg_roles WHERE rolname = current_user").
		WillReturnRows(sqlmock.NewRows([]string{"rolsuper"}).AddRow(true))

	require.NoError(t, o.ensurePrivileges(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsurePrivilegesGrantsMissing(t *testing.T) {
	o, mock := newTestOrchestrator(t, Options{})

	mock.ExpectQuery("SELECT rolsuper FROM pg_roles WHERE rolname = current_user").
		WillReturnRows(sqlmock.NewRows([]string{"rolsuper"}).AddRow(false))
	mock.ExpectQuery("SELECT has_database_privilege(current_user, $1, 'CREATE')").
		WithArgs("siyuantao").
		WillReturnRows(sqlmock.NewRows([]string{"has_database_privilege"}).AddRow(false))
	mock.ExpectExec(`GRANT ALL PRIVILEGES ON DATABASE "siyuantao" TO "siyuantao"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT has_schema_privilege(current_user, 'public', 'CREATE')").
		WillReturnRows(sqlmock.NewRows([]string{"has_schema_privilege"}).AddRow(true))

	require.NoError(t, o.ensurePrivileges(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
