package provision

import (
	"context"
	"fmt"

	"github.com/SunSc05/siyuantao-backend-sub001/internal/dal"
	"golang.org/x/crypto/bcrypt"
)

// seedAccount is one fixed admin account inserted during bootstrap.
type seedAccount struct {
	Username string
	Email    string
}

// seedAccounts is the fixed list of staff accounts every fresh deployment
// starts with. All of them share seedDefaultPassword, which operators are
// expected to rotate after first login.
var seedAccounts = []seedAccount{
	{Username: "admin", Email: "admin@siyuantao.edu.cn"},
	{Username: "moderator", Email: "moderator@siyuantao.edu.cn"},
	{Username: "support", Email: "support@siyuantao.edu.cn"},
}

const (
	seedDefaultPassword = "SiyuanTao@2025"

	// superAdminEmail designates the one seed account that receives the
	// super-admin flag.
	superAdminEmail = "admin@siyuantao.edu.cn"
)

// seedAdmins clears the user table and inserts the fixed admin accounts.
// The wipe is intentional: bootstrap produces a clean, known user set.
// Each account commits on its own and a failed insert rolls back and moves
// on, so a mid-list failure never loses accounts that already made it in.
func (o *Orchestrator) seedAdmins(ctx context.Context) error {
	if _, err := o.target.ExecContext(ctx, "DELETE FROM users"); err != nil {
		return fmt.Errorf("clear users table: %w", err)
	}
	o.log.Info("cleared users table for seeding")

	hash, err := bcrypt.GenerateFromPassword([]byte(seedDefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	for _, acct := range seedAccounts {
		if err := o.seedOne(ctx, acct, string(hash)); err != nil {
			o.log.Error("seed account failed, continuing",
				"username", acct.Username, "error", err)
			continue
		}
	}
	return nil
}

func (o *Orchestrator) seedOne(ctx context.Context, acct seedAccount, passwordHash string) error {
	tx, err := o.target.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	// Idempotence guard against an accidental double-run: never insert
	// over an existing username or email.
	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)",
		acct.Username, acct.Email).Scan(&exists)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("check existing account: %w", err)
	}
	if exists {
		_ = tx.Rollback()
		o.log.Info("seed account already present", "username", acct.Username)
		return nil
	}

	user, err := dal.CreateUser(ctx, tx, acct.Username, acct.Email, passwordHash)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET is_staff = TRUE, is_super_admin = $2 WHERE user_id = $1",
		user.ID, acct.Email == superAdminEmail)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("flag account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	o.log.Info("seeded account",
		"username", acct.Username, "super_admin", acct.Email == superAdminEmail)
	return nil
}
