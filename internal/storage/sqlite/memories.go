package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type MemoriesRepo struct {
	db *sql.DB
}

func NewMemoriesRepo(db *sql.DB) *MemoriesRepo {
	return &MemoriesRepo{db: db}
}

const memoryColumns = `id, content, embedding, type, source, importance, created_at, access_count, last_accessed`

// Upsert replaces every column of an existing row, access stats included.
func (r *MemoriesRepo) Upsert(ctx context.Context, rec core.MemoryRecord) error {
	vecBlob, err := serializeVector(rec.Embedding)
	if err != nil {
		return err
	}

	query := `INSERT INTO memories (` + memoryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			type = excluded.type,
			source = excluded.source,
			importance = excluded.importance,
			created_at = excluded.created_at,
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Content, vecBlob, string(rec.Type), rec.Source, rec.Importance,
		rec.CreatedAt.UnixNano(), rec.AccessCount, rec.LastAccessed.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert memory: %w", err)
	}
	return nil
}

func (r *MemoriesRepo) Get(ctx context.Context, id string) (core.MemoryRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemoryRecord{}, fmt.Errorf("memory %s: %w", id, core.ErrNotFound)
	}
	return rec, err
}

// List returns every memory, newest first.
func (r *MemoriesRepo) List(ctx context.Context) ([]core.MemoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+memoryColumns+` FROM memories ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer rows.Close()

	var records []core.MemoryRecord
	for rows.Next() {
		rec, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Debug().Int("count", len(records)).Msg("loaded memories")
	return records, nil
}

// Touch bumps access_count and last_accessed for each id in one transaction.
func (r *MemoriesRepo) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare touch: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, at.UnixNano(), id); err != nil {
			return fmt.Errorf("failed to touch memory %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (r *MemoriesRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *MemoriesRepo) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM memories WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	removed := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("failed to delete memory %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		removed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *MemoriesRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMemory(row rowScanner) (core.MemoryRecord, error) {
	var (
		rec                 core.MemoryRecord
		vecBlob             []byte
		memType             string
		createdAt, lastSeen int64
	)

	err := row.Scan(&rec.ID, &rec.Content, &vecBlob, &memType, &rec.Source, &rec.Importance,
		&createdAt, &rec.AccessCount, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan memory: %w", err)
	}

	rec.Embedding, err = deserializeVector(vecBlob)
	if err != nil {
		return rec, err
	}
	rec.Type = core.MemoryType(memType)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.LastAccessed = time.Unix(0, lastSeen).UTC()
	return rec, nil
}
