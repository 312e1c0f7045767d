package dal

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"user_id", "username", "email", "password_hash", "status", "credit",
	"is_staff", "is_super_admin", "is_verified", "major", "phone_number",
	"avatar_url", "joined_at",
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func userRow(id uuid.UUID, username, email string) *sqlmock.Rows {
	return sqlmock.NewRows(userColumns).AddRow(
		id.String(), username, email, "hash", "Active", int64(100),
		false, false, false, nil, nil, nil, time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC),
	)
}

func TestGetUserByID_Found(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM sp_get_user_by_id\(\$1\)`).
		WithArgs(id).
		WillReturnRows(userRow(id, "alice", "a@x.com"))

	user, err := GetUserByID(context.Background(), db, id)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "a@x.com", user.Email)
	assert.Equal(t, 100, user.Credit)
	assert.False(t, user.JoinedAt.IsZero())
}

func TestGetUserByID_AbsenceIsNotAnError(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM sp_get_user_by_id\(\$1\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userColumns))

	user, err := GetUserByID(context.Background(), db, id)
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestGetUserByID_DriverError(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM sp_get_user_by_id\(\$1\)`).
		WithArgs(id).
		WillReturnError(errors.New("connection refused"))

	_, err := GetUserByID(context.Background(), db, id)
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindDAL, e.Kind)
	assert.Contains(t, err.Error(), "sp_get_user_by_id")
}

func TestGetUserByUsername_Found(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM sp_get_user_by_username\(\$1\)`).
		WithArgs("alice").
		WillReturnRows(userRow(id, "alice", "a@x.com"))

	user, err := GetUserByUsername(context.Background(), db, "alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
}

func TestCreateUser_ReturnsServerAssignedFields(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM sp_create_user\(\$1, \$2, \$3\)`).
		WithArgs("alice", "a@x.com", "h1").
		WillReturnRows(userRow(id, "alice", "a@x.com"))

	user, err := CreateUser(context.Background(), db, "alice", "a@x.com", "h1")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.False(t, user.JoinedAt.IsZero())
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT \* FROM sp_create_user\(\$1, \$2, \$3\)`).
		WithArgs("alice", "b@x.com", "h2").
		WillReturnError(&pq.Error{
			Code:       "23505",
			Message:    `duplicate key value violates unique constraint "users_username_key"`,
			Constraint: "users_username_key",
		})

	_, err := CreateUser(context.Background(), db, "alice", "b@x.com", "h2")
	require.True(t, IsIntegrity(err))
	assert.Equal(t, "Username already exists.", err.Error())
}

func TestCreateUser_NoRowIsDALError(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(`SELECT \* FROM sp_create_user\(\$1, \$2, \$3\)`).
		WithArgs("alice", "a@x.com", "h1").
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := CreateUser(context.Background(), db, "alice", "a@x.com", "h1")
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindDAL, e.Kind)
	assert.False(t, IsNotFound(err))
}

func TestUpdateUser_PartialFieldsPassNil(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()
	username := "alice2"

	mock.ExpectQuery(`SELECT \* FROM sp_update_user\(\$1, \$2, \$3, \$4\)`).
		WithArgs(id, username, nil, nil).
		WillReturnRows(userRow(id, "alice2", "a@x.com"))

	user, err := UpdateUser(context.Background(), db, id, UserUpdate{Username: &username})
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)
	// untouched fields come back from the stored row
	assert.Equal(t, "a@x.com", user.Email)
}

func TestUpdateUser_MissingIsNotFound(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()
	email := "new@x.com"

	mock.ExpectQuery(`SELECT \* FROM sp_update_user\(\$1, \$2, \$3, \$4\)`).
		WithArgs(id, nil, email, nil).
		WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := UpdateUser(context.Background(), db, id, UserUpdate{Email: &email})
	require.True(t, IsNotFound(err))
}

func TestDeleteUser_ReturnsAffectedCount(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT sp_delete_user\(\$1\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"sp_delete_user"}).AddRow(int64(1)))

	affected, err := DeleteUser(context.Background(), db, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)
}

func TestDeleteUser_ZeroRowsIsNotFound(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT sp_delete_user\(\$1\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"sp_delete_user"}).AddRow(int64(0)))

	_, err := DeleteUser(context.Background(), db, id)
	require.True(t, IsNotFound(err))
}

func TestSetUserAvatar(t *testing.T) {
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT sp_set_user_avatar\(\$1, \$2\)`).
		WithArgs(id, "http://cdn/avatars/x").
		WillReturnRows(sqlmock.NewRows([]string{"sp_set_user_avatar"}).AddRow(int64(1)))

	require.NoError(t, SetUserAvatar(context.Background(), db, id, "http://cdn/avatars/x"))
}

func TestOperationsNeverCommit(t *testing.T) {
	// Mutations run against a caller-owned transaction; the DAL must not
	// commit it.
	db, mock := newMock(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT sp_delete_user\(\$1\)`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"sp_delete_user"}).AddRow(int64(1)))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)

	_, err = DeleteUser(context.Background(), tx, id)
	require.NoError(t, err)

	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}
