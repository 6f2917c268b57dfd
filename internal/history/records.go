package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/types"
)

// Begin inserts a running record for a cycle that just started
func (d *DB) Begin(ctx context.Context, id string, startedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO cycles (id, started_at, status) VALUES (?, ?, ?)
	`, id, startedAt.UnixMilli(), string(types.CycleStatusRunning))
	return err
}

// Upsert writes rec, replacing any row with the same id
func (d *DB) Upsert(ctx context.Context, rec Record) error {
	failed, err := json.Marshal(rec.FailedFiles)
	if err != nil {
		return err
	}
	if len(rec.FailedFiles) == 0 {
		failed = nil
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO cycles (
			id, started_at, finished_at, status, archive_path, files, bytes, failed_files, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			started_at=excluded.started_at,
			finished_at=excluded.finished_at,
			status=excluded.status,
			archive_path=excluded.archive_path,
			files=excluded.files,
			bytes=excluded.bytes,
			failed_files=excluded.failed_files,
			error=excluded.error
	`, rec.ID, rec.StartedAt.UnixMilli(), nullableMillis(rec.FinishedAt), string(rec.Status),
		nullableString(rec.ArchivePath), rec.Files, rec.Bytes, nullableString(string(failed)), nullableString(rec.Error))
	return err
}

// Get returns the record with the given id, or nil if there is none
func (d *DB) Get(ctx context.Context, id string) (*Record, error) {
	row := d.db.QueryRowContext(ctx, selectSQL+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (d *DB) List(ctx context.Context, limit int) (records []Record, err error) {
	query := selectSQL + ` ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Latest returns the newest record with one of the given statuses (any
// status when none are given), or nil
func (d *DB) Latest(ctx context.Context, statuses ...types.CycleStatus) (*Record, error) {
	query := selectSQL
	args := []any{}
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT 1`

	rec, err := scanRecord(d.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Prune deletes all but the newest keep records
func (d *DB) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM cycles WHERE id NOT IN (
			SELECT id FROM cycles ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const selectSQL = `
	SELECT id, started_at, finished_at, status, archive_path, files, bytes, failed_files, error
	FROM cycles`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec         Record
		startedAt   int64
		finishedAt  sql.NullInt64
		status      string
		archivePath sql.NullString
		failed      sql.NullString
		errMsg      sql.NullString
	)
	if err := row.Scan(&rec.ID, &startedAt, &finishedAt, &status, &archivePath, &rec.Files, &rec.Bytes, &failed, &errMsg); err != nil {
		return nil, err
	}

	rec.StartedAt = time.UnixMilli(startedAt).UTC()
	if finishedAt.Valid {
		rec.FinishedAt = time.UnixMilli(finishedAt.Int64).UTC()
	}
	rec.Status = types.CycleStatus(status)
	rec.ArchivePath = archivePath.String
	rec.Error = errMsg.String
	if failed.String != "" {
		_ = json.Unmarshal([]byte(failed.String), &rec.FailedFiles)
	}
	return &rec, nil
}

func nullableMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
