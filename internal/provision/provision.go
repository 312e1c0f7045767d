// Package provision bootstraps the database for the user subsystem: it
// ensures the target database exists, that the connecting role can use it,
// deploys tables, stored procedures and triggers from SQL files, and seeds
// the fixed admin accounts. Every phase is an idempotent check-then-act step
// committed on its own, so a restart after a partial failure picks up where
// the previous run stopped instead of redoing completed work.
//
// The orchestrator is sequential and non-reentrant; running two instances
// against the same target may race on the existence checks.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/SunSc05/siyuantao-backend-sub001/config"
	"github.com/SunSc05/siyuantao-backend-sub001/internal/db"
	"github.com/lib/pq"
)

// Options controls a provisioning run.
type Options struct {
	// DBName overrides the configured target database name.
	DBName string

	// DropExisting drops and recreates the target database first.
	DropExisting bool

	// ContinueOnError logs and skips failed schema batches instead of
	// aborting the deployment.
	ContinueOnError bool

	// SchemaDir is the directory holding the tables/, procedures/ and
	// triggers/ categories. Defaults to "sql".
	SchemaDir string
}

// Phase is one step of the bootstrap. Phases run strictly in order and each
// commits its own work.
type Phase struct {
	ID   string
	Name string
	Run  func(ctx context.Context) error
}

// Orchestrator drives the provisioning phases.
type Orchestrator struct {
	cfg  config.DatabaseConfig
	opts Options
	log  *slog.Logger

	// target is the connection to the target database, opened once the
	// database phase has made sure it exists.
	target *sql.DB
}

// New builds an orchestrator for the given configuration.
func New(cfg config.DatabaseConfig, opts Options, log *slog.Logger) *Orchestrator {
	if opts.DBName == "" {
		opts.DBName = cfg.DBName
	}
	if opts.SchemaDir == "" {
		opts.SchemaDir = "sql"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{cfg: cfg, opts: opts, log: log}
}

// Phases returns the bootstrap state machine in execution order.
func (o *Orchestrator) Phases() []Phase {
	return []Phase{
		{ID: "database", Name: "ensure target database exists", Run: o.ensureDatabase},
		{ID: "privileges", Name: "ensure role privileges on target", Run: o.ensurePrivileges},
		{ID: "schema", Name: "deploy tables, procedures and triggers", Run: o.deploySchema},
		{ID: "seed", Name: "seed admin accounts", Run: o.seedAdmins},
	}
}

// Run executes all phases in order. The first failing phase aborts the run;
// phases that tolerate partial failure handle it internally.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer func() {
		if o.target != nil {
			_ = o.target.Close()
		}
	}()

	for _, phase := range o.Phases() {
		o.log.Info("phase starting", "phase", phase.ID, "name", phase.Name)
		if err := phase.Run(ctx); err != nil {
			o.log.Error("phase failed", "phase", phase.ID, "error", err)
			return fmt.Errorf("phase %s: %w", phase.ID, err)
		}
		o.log.Info("phase complete", "phase", phase.ID)
	}
	return nil
}

// ensureDatabase connects to the admin maintenance database, drops the
// target first when requested, and creates it only if absent. It finishes by
// opening the connection the remaining phases use.
func (o *Orchestrator) ensureDatabase(ctx context.Context) error {
	admin, err := db.OpenDatabase(ctx, o.cfg, o.cfg.AdminDB)
	if err != nil {
		return fmt.Errorf("connect to admin database %q: %w", o.cfg.AdminDB, err)
	}
	defer admin.Close()

	name := o.opts.DBName
	quoted := pq.QuoteIdentifier(name)

	if o.opts.DropExisting {
		o.log.Warn("dropping existing database", "database", name)
		if _, err := admin.ExecContext(ctx, "DROP DATABASE IF EXISTS "+quoted); err != nil {
			return fmt.Errorf("drop database %q: %w", name, err)
		}
	}

	var exists bool
	err = admin.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check database %q: %w", name, err)
	}

	if exists {
		o.log.Info("database already exists", "database", name)
	} else {
		// CREATE DATABASE cannot be parameterized or run inside a
		// transaction; the name is quoted as an identifier instead.
		if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+quoted); err != nil {
			return fmt.Errorf("create database %q: %w", name, err)
		}
		o.log.Info("database created", "database", name)
	}

	o.target, err = db.OpenDatabase(ctx, o.cfg, name)
	if err != nil {
		return fmt.Errorf("connect to target database %q: %w", name, err)
	}
	return nil
}

// ensurePrivileges makes sure the connecting role can work inside the target
// database. Superusers skip the phase entirely; for everyone else the missing
// privileges are granted one by one. Re-granting a privilege the role already
// holds is a no-op, so the phase is safe to re-run.
func (o *Orchestrator) ensurePrivileges(ctx context.Context) error {
	var super bool
	err := o.target.QueryRowContext(ctx,
		"SELECT rolsuper FROM pg_roles WHERE rolname = current_user").Scan(&super)
	if err != nil {
		return fmt.Errorf("check role: %w", err)
	}
	if super {
		o.log.Info("connecting role is a superuser, skipping privilege grants", "role", o.cfg.User)
		return nil
	}

	role := pq.QuoteIdentifier(o.cfg.User)

	var canCreate bool
	err = o.target.QueryRowContext(ctx,
		"SELECT has_database_privilege(current_user, $1, 'CREATE')", o.opts.DBName).Scan(&canCreate)
	if err != nil {
		return fmt.Errorf("check database privilege: %w", err)
	}
	if !canCreate {
		grant := fmt.Sprintf("GRANT ALL PRIVILEGES ON DATABASE %s TO %s",
			pq.QuoteIdentifier(o.opts.DBName), role)
		if _, err := o.target.ExecContext(ctx, grant); err != nil {
			return fmt.Errorf("grant database privileges: %w", err)
		}
		o.log.Info("granted database privileges", "role", o.cfg.User, "database", o.opts.DBName)
	}

	var canUseSchema bool
	err = o.target.QueryRowContext(ctx,
		"SELECT has_schema_privilege(current_user, 'public', 'CREATE')").Scan(&canUseSchema)
	if err != nil {
		return fmt.Errorf("check schema privilege: %w", err)
	}
	if !canUseSchema {
		if _, err := o.target.ExecContext(ctx, "GRANT ALL ON SCHEMA public TO "+role); err != nil {
			return fmt.Errorf("grant schema privileges: %w", err)
		}
		o.log.Info("granted schema privileges", "role", o.cfg.User)
	}

	return nil
}
