package services

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/SunSc05/siyuantao-backend-sub001/internal/dal"
	"github.com/SunSc05/siyuantao-backend-sub001/internal/mq"
	"github.com/SunSc05/siyuantao-backend-sub001/internal/storage"
	"github.com/SunSc05/siyuantao-backend-sub001/types"
	"github.com/google/uuid"
)

// UserService encapsulates user use-cases. It owns transaction scope for
// mutations: each mutating call runs in its own transaction, committed only
// when every step succeeded. The DAL itself never commits.
type UserService struct {
	db      *sql.DB
	events  *mq.Publisher    // nil when event publishing is disabled
	avatars *storage.Storage // nil when avatar uploads are disabled
	log     *slog.Logger
}

// NewUserService constructs a UserService. events and avatars may be nil.
func NewUserService(db *sql.DB, events *mq.Publisher, avatars *storage.Storage) *UserService {
	return &UserService{
		db:      db,
		events:  events,
		avatars: avatars,
		log:     slog.Default(),
	}
}

// GetByID returns the user or a not-found error. The DAL treats absence as a
// valid non-error result; the decision that absence means "not found" is
// made here, at the boundary that knows what the caller asked for.
func (s *UserService) GetByID(ctx context.Context, id uuid.UUID) (*types.User, error) {
	user, err := dal.GetUserByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, dal.NotFoundf("user %s not found", id)
	}
	return user, nil
}

// GetByUsername returns the user or a not-found error.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*types.User, error) {
	user, err := dal.GetUserByUsername(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, dal.NotFoundf("user %q not found", username)
	}
	return user, nil
}

// Create inserts a new user and publishes a user.created event.
func (s *UserService) Create(ctx context.Context, username, email, passwordHash string) (*types.User, error) {
	var user *types.User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		user, err = dal.CreateUser(ctx, tx, username, email, passwordHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, types.UserEventCreated, user)
	return user, nil
}

// Update applies a partial update; nil fields keep their stored values.
func (s *UserService) Update(ctx context.Context, id uuid.UUID, upd dal.UserUpdate) (*types.User, error) {
	var user *types.User
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		user, err = dal.UpdateUser(ctx, tx, id, upd)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, types.UserEventUpdated, user)
	return user, nil
}

// Delete hard-deletes a user and publishes a user.deleted event.
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := dal.DeleteUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, types.UserEventDeleted, &types.User{ID: id})
	return nil
}

// UploadAvatar stores the avatar object and records its URL on the user.
func (s *UserService) UploadAvatar(ctx context.Context, id uuid.UUID, r io.Reader, size int64, contentType string) (string, error) {
	if s.avatars == nil {
		return "", errors.New("avatar storage is not configured")
	}

	if _, err := s.GetByID(ctx, id); err != nil {
		return "", err
	}

	key := storage.AvatarKey(id.String())
	if err := s.avatars.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}

	url := s.avatars.URL(key)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return dal.SetUserAvatar(ctx, tx, id, url)
	})
	if err != nil {
		return "", err
	}
	return url, nil
}

// inTx runs fn inside a transaction, committing on success and rolling back
// on failure.
func (s *UserService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// publish sends a user event when a broker is configured. Event delivery is
// best-effort; a broker outage never fails the user operation.
func (s *UserService) publish(ctx context.Context, kind string, user *types.User) {
	if s.events == nil {
		return
	}
	event := types.UserEvent{
		Kind:       kind,
		UserID:     user.ID,
		Username:   user.Username,
		Email:      user.Email,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.PublishUserEvent(ctx, event); err != nil {
		s.log.Warn("failed to publish user event", "kind", kind, "user_id", user.ID, "error", err)
	}
}
