// Package ledger records every finalized output file in a local SQLite
// database so runs can be listed and files looked up by CID.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
)

// Entry is one recorded artifact.
type Entry struct {
	Path            string `json:"path"`
	Kind            string `json:"kind"`
	RunID           string `json:"runId"`
	CID             string `json:"cid"`
	SHA256          string `json:"sha256"`
	Signed          bool   `json:"signed"`
	PublicKey       string `json:"publicKey,omitempty"`
	Provider        string `json:"provider,omitempty"`
	Model           string `json:"model,omitempty"`
	Scorer          string `json:"scorer,omitempty"`
	Records         int    `json:"records"`
	Failed          int    `json:"failed"`
	CreatedAtUnixMs int64  `json:"createdAtUnixMs"`
}

// Ledger is an orchestration.Sink backed by SQLite.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" || p == "." {
		return nil, errors.New("missing ledger path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// Several units finalize concurrently; one connection serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS artifacts (
  path TEXT PRIMARY KEY,
  kind TEXT NOT NULL,
  run_id TEXT NOT NULL,
  cid TEXT NOT NULL,
  sha256 TEXT NOT NULL,
  signed INTEGER NOT NULL DEFAULT 0,
  public_key TEXT NOT NULL DEFAULT '',
  provider TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  scorer TEXT NOT NULL DEFAULT '',
  records INTEGER NOT NULL DEFAULT 0,
  failed INTEGER NOT NULL DEFAULT 0,
  created_at_unix_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);
CREATE INDEX IF NOT EXISTS idx_artifacts_cid ON artifacts(cid);
`)
	if err != nil {
		return fmt.Errorf("initializing ledger schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Name implements orchestration.Sink.
func (l *Ledger) Name() string { return "ledger" }

// Publish records a. Re-finalizing a path replaces its entry.
func (l *Ledger) Publish(ctx context.Context, a orchestration.Artifact) error {
	if a.Sidecar == nil {
		return fmt.Errorf("artifact %s has no sidecar", a.Path)
	}
	path, err := filepath.Abs(a.Path)
	if err != nil {
		return err
	}
	signed := 0
	if a.Sidecar.Signed() {
		signed = 1
	}
	_, err = l.db.ExecContext(ctx, `
INSERT INTO artifacts(path, kind, run_id, cid, sha256, signed, public_key, provider, model, scorer, records, failed, created_at_unix_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
  kind=excluded.kind,
  run_id=excluded.run_id,
  cid=excluded.cid,
  sha256=excluded.sha256,
  signed=excluded.signed,
  public_key=excluded.public_key,
  provider=excluded.provider,
  model=excluded.model,
  scorer=excluded.scorer,
  records=excluded.records,
  failed=excluded.failed,
  created_at_unix_ms=excluded.created_at_unix_ms
`, path, a.Kind, a.RunID, a.Sidecar.CID, a.Sidecar.SHA256, signed, a.Sidecar.PublicKey,
		a.Provider, a.Model, a.Scorer, a.Records, a.Failed, a.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("recording %s: %w", a.Path, err)
	}
	return nil
}

const selectEntries = `
SELECT path, kind, run_id, cid, sha256, signed, public_key, provider, model, scorer, records, failed, created_at_unix_ms
FROM artifacts`

// List returns entries of runID, or of every run when runID is empty,
// oldest first.
func (l *Ledger) List(ctx context.Context, runID string) ([]Entry, error) {
	query := selectEntries
	var args []any
	if id := strings.TrimSpace(runID); id != "" {
		query += " WHERE run_id = ?"
		args = append(args, id)
	}
	query += " ORDER BY created_at_unix_ms ASC, path ASC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// LookupCID returns the entries whose file has the given CID.
func (l *Ledger) LookupCID(ctx context.Context, cid string) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, selectEntries+" WHERE cid = ? ORDER BY created_at_unix_ms ASC", strings.TrimSpace(cid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (*Entry, error) {
	var e Entry
	var signed int
	if err := rows.Scan(
		&e.Path,
		&e.Kind,
		&e.RunID,
		&e.CID,
		&e.SHA256,
		&signed,
		&e.PublicKey,
		&e.Provider,
		&e.Model,
		&e.Scorer,
		&e.Records,
		&e.Failed,
		&e.CreatedAtUnixMs,
	); err != nil {
		return nil, err
	}
	e.Signed = signed != 0
	return &e, nil
}
