package provision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// batchSeparator is the literal token dividing a schema file into
// independently executable batches. It must appear alone on its own line.
const batchSeparator = "--;;"

// schemaCategories are applied in this order; files within a category run in
// lexical filename order.
var schemaCategories = []string{"tables", "procedures", "triggers"}

// The second batch of 002_sp_admin_report.sql fails on the server with an
// unresolved plan-cache error, so it is skipped unconditionally. The skip is
// deliberately scoped to this exact file and index and must not be
// generalized.
const (
	skippedBatchFile  = "002_sp_admin_report.sql"
	skippedBatchIndex = 1
)

// deploySchema applies every schema file category by category, batch by
// batch. Each batch commits in its own transaction, so a failed run resumes
// without replaying completed batches (all definitions use IF NOT EXISTS /
// CREATE OR REPLACE and re-apply cleanly).
func (o *Orchestrator) deploySchema(ctx context.Context) error {
	for _, category := range schemaCategories {
		dir := filepath.Join(o.opts.SchemaDir, category)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				o.log.Warn("schema category directory missing, skipping", "dir", dir)
				continue
			}
			return fmt.Errorf("read schema directory %s: %w", dir, err)
		}

		var files []string
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				files = append(files, entry.Name())
			}
		}
		sort.Strings(files)

		o.log.Info("deploying schema category", "category", category, "files", len(files))
		for _, name := range files {
			if err := o.executeSQLFile(ctx, filepath.Join(dir, name), name); err != nil {
				return err
			}
		}
	}
	return nil
}

// executeSQLFile splits one schema file into batches and executes each in
// its own committed transaction. A batch failure aborts the deployment
// unless ContinueOnError is set, in which case it is logged and skipped.
func (o *Orchestrator) executeSQLFile(ctx context.Context, path, name string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema file %s: %w", path, err)
	}

	batches := splitBatches(string(content))
	o.log.Info("executing schema file", "file", name, "batches", len(batches))

	for i, batch := range batches {
		if name == skippedBatchFile && i == skippedBatchIndex {
			o.log.Warn("skipping known-bad batch",
				"file", name, "batch", i, "statement", statementSnippet(batch))
			continue
		}

		if err := o.executeBatch(ctx, batch); err != nil {
			o.log.Error("batch failed",
				"file", name, "batch", i, "statement", statementSnippet(batch), "error", err)
			if o.opts.ContinueOnError {
				continue
			}
			return fmt.Errorf("file %s batch %d: %w", name, i, err)
		}
		o.log.Debug("batch committed", "file", name, "batch", i)
	}
	return nil
}

func (o *Orchestrator) executeBatch(ctx context.Context, batch string) error {
	tx, err := o.target.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, batch); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// splitBatches cuts a schema file on the batch separator. Lines holding only
// the separator token are boundaries; empty batches are dropped.
func splitBatches(content string) []string {
	var batches []string
	var current strings.Builder

	flush := func() {
		if batch := strings.TrimSpace(current.String()); batch != "" {
			batches = append(batches, batch)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == batchSeparator {
			flush()
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
	}
	flush()

	return batches
}

// statementSnippet shortens a batch for log output.
func statementSnippet(batch string) string {
	snippet := strings.Join(strings.Fields(batch), " ")
	if len(snippet) > 120 {
		snippet = snippet[:120] + "..."
	}
	return snippet
}
