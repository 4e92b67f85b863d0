package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/sagaflow/lra-coordinator/pkg/storage/postgres"
)

// Postgres is a Store backed by a single table, one row per (type, uid),
// built on the shared pkg/storage/postgres.BaseStore transaction helpers.
// Move is a single UPDATE inside a transaction, which gives the same
// "never observable under neither type" guarantee the file/memory backends
// get from rename/map-swap, without needing two physical tables.
type Postgres struct {
	base *postgres.BaseStore
}

// NewPostgres wraps an already-open *sql.DB. Schema ownership (creating the
// lra_records table) lives in the golang-migrate migrations under
// internal/lra/store/migrations, run separately at startup.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{base: postgres.NewBaseStore(db, "lra_records")}
}

func (p *Postgres) Write(ctx context.Context, typ RecordType, uid string, body []byte) error {
	q := p.base.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO lra_records (uid, type_name, body)
		VALUES ($1, $2, $3)
		ON CONFLICT (uid, type_name) DO UPDATE SET body = EXCLUDED.body
	`, uid, string(typ), body)
	if err != nil {
		return fmt.Errorf("store: write %s/%s: %w", typ, uid, err)
	}
	return nil
}

func (p *Postgres) Read(ctx context.Context, typ RecordType, uid string) ([]byte, error) {
	q := p.base.Querier(ctx)
	var body []byte
	err := q.QueryRowContext(ctx, `
		SELECT body FROM lra_records WHERE uid = $1 AND type_name = $2
	`, uid, string(typ)).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s/%s: %w", typ, uid, err)
	}
	return body, nil
}

func (p *Postgres) Remove(ctx context.Context, typ RecordType, uid string) error {
	q := p.base.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		DELETE FROM lra_records WHERE uid = $1 AND type_name = $2
	`, uid, string(typ))
	if err != nil {
		return fmt.Errorf("store: remove %s/%s: %w", typ, uid, err)
	}
	return nil
}

func (p *Postgres) List(ctx context.Context, typ RecordType) ([]string, error) {
	q := p.base.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT uid FROM lra_records WHERE type_name = $1
	`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", typ, err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("store: scan list %s: %w", typ, err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

func (p *Postgres) Move(ctx context.Context, fromType, toType RecordType, uid string) error {
	txCtx, err := p.base.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("store: move %s/%s: %w", fromType, uid, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = p.base.RollbackTx(txCtx)
		}
	}()

	res, err := p.base.Querier(txCtx).ExecContext(txCtx, `
		UPDATE lra_records SET type_name = $1 WHERE type_name = $2 AND uid = $3
	`, string(toType), string(fromType), uid)
	if err != nil {
		return fmt.Errorf("store: move %s/%s -> %s: %w", fromType, uid, toType, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if err := p.base.CommitTx(txCtx); err != nil {
		return fmt.Errorf("store: move %s/%s -> %s: commit: %w", fromType, uid, toType, err)
	}
	committed = true
	return nil
}
