package dal

import (
	"context"
	"fmt"
	"time"

	"github.com/SunSc05/siyuantao-backend-sub001/types"
	"github.com/google/uuid"
)

// Stored procedures backing the user entity. Parameters are positional and
// the order is part of the contract.
const (
	procGetUserByID       = "sp_get_user_by_id"
	procGetUserByUsername = "sp_get_user_by_username"
	procCreateUser        = "sp_create_user"
	procUpdateUser        = "sp_update_user"
	procDeleteUser        = "sp_delete_user"
	procSetUserAvatar     = "sp_set_user_avatar"
)

// GetUserByID looks a user up by identifier. Absence is a valid non-error
// result at this layer: the return is (nil, nil) when no row exists, and the
// service layer decides whether that becomes a not-found error.
func GetUserByID(ctx context.Context, q DBTX, id uuid.UUID) (*types.User, error) {
	row, err := queryProc(ctx, q, procGetUserByID, id)
	if err != nil {
		return nil, classify(err)
	}
	if row == nil {
		return nil, nil
	}
	return userFromRow(row)
}

// GetUserByUsername looks a user up by username, with the same absence
// semantics as GetUserByID.
func GetUserByUsername(ctx context.Context, q DBTX, username string) (*types.User, error) {
	row, err := queryProc(ctx, q, procGetUserByUsername, username)
	if err != nil {
		return nil, classify(err)
	}
	if row == nil {
		return nil, nil
	}
	return userFromRow(row)
}

// CreateUser inserts a new user and returns the full row, including the
// server-assigned identifier and join timestamp. Duplicate username or email
// surfaces as an integrity error naming the attribute; a creation call that
// yields no row is a generic DAL failure because creation must always
// produce one.
func CreateUser(ctx context.Context, q DBTX, username, email, passwordHash string) (*types.User, error) {
	row, err := queryProc(ctx, q, procCreateUser, username, email, passwordHash)
	if err != nil {
		return nil, classify(err)
	}
	if row == nil {
		return nil, Errorf("user creation returned no row")
	}
	return userFromRow(row)
}

// UserUpdate carries the optional fields of an update. A nil field leaves
// the stored value untouched; it is never nulled out.
type UserUpdate struct {
	Username     *string
	Email        *string
	PasswordHash *string
}

// UpdateUser applies a partial update and returns the full updated row.
// Zero rows returned means the identifier matched nothing and is reported as
// not found, never as silent success.
func UpdateUser(ctx context.Context, q DBTX, id uuid.UUID, upd UserUpdate) (*types.User, error) {
	row, err := queryProc(ctx, q, procUpdateUser, id, upd.Username, upd.Email, upd.PasswordHash)
	if err != nil {
		return nil, classify(err)
	}
	if row == nil {
		return nil, NotFoundf("user %s not found", id)
	}
	return userFromRow(row)
}

// DeleteUser hard-deletes a user and returns the affected count (1 on
// success). Zero rows affected is reported as not found.
func DeleteUser(ctx context.Context, q DBTX, id uuid.UUID) (int64, error) {
	affected, err := execProc(ctx, q, procDeleteUser, id)
	if err != nil {
		return 0, classify(err)
	}
	if affected == 0 {
		return 0, NotFoundf("user %s not found", id)
	}
	return affected, nil
}

// SetUserAvatar stores the avatar object URL for a user.
func SetUserAvatar(ctx context.Context, q DBTX, id uuid.UUID, avatarURL string) error {
	affected, err := execProc(ctx, q, procSetUserAvatar, id, avatarURL)
	if err != nil {
		return classify(err)
	}
	if affected == 0 {
		return NotFoundf("user %s not found", id)
	}
	return nil
}

// userFromRow decodes a procedure result row into a User. Column names
// follow the users table.
func userFromRow(row Row) (*types.User, error) {
	id, err := rowUUID(row, "user_id")
	if err != nil {
		return nil, Errorf("decode user row: %v", err)
	}
	joined, err := rowTime(row, "joined_at")
	if err != nil {
		return nil, Errorf("decode user row: %v", err)
	}

	return &types.User{
		ID:           id,
		Username:     rowString(row, "username"),
		Email:        rowString(row, "email"),
		PasswordHash: rowString(row, "password_hash"),
		Status:       rowString(row, "status"),
		Credit:       int(rowInt(row, "credit")),
		IsStaff:      rowBool(row, "is_staff"),
		IsSuperAdmin: rowBool(row, "is_super_admin"),
		IsVerified:   rowBool(row, "is_verified"),
		Major:        rowString(row, "major"),
		Phone:        rowString(row, "phone_number"),
		AvatarURL:    rowString(row, "avatar_url"),
		JoinedAt:     joined,
	}, nil
}

// The row accessors tolerate the value shapes lib/pq produces for an untyped
// scan: strings arrive as []byte or string, NULL as nil.

func rowString(row Row, col string) string {
	switch v := row[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func rowInt(row Row, col string) int64 {
	switch v := row[col].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	default:
		return 0
	}
}

func rowBool(row Row, col string) bool {
	v, _ := row[col].(bool)
	return v
}

func rowTime(row Row, col string) (time.Time, error) {
	switch v := row[col].(type) {
	case time.Time:
		return v, nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}

func rowUUID(row Row, col string) (uuid.UUID, error) {
	switch v := row[col].(type) {
	case string:
		return uuid.Parse(v)
	case []byte:
		return uuid.ParseBytes(v)
	default:
		return uuid.Nil, fmt.Errorf("column %s: unexpected type %T", col, v)
	}
}
