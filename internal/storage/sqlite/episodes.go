package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

type EpisodesRepo struct {
	db *sql.DB
}

func NewEpisodesRepo(db *sql.DB) *EpisodesRepo {
	return &EpisodesRepo{db: db}
}

const episodeColumns = `id, session_id, summary, user_goal, turns, started_at, ended_at, outcome, tools_used, topics, lessons`

func (r *EpisodesRepo) Insert(ctx context.Context, ep core.Episode) error {
	turns, err := marshalList(ep.Turns)
	if err != nil {
		return err
	}
	tools, err := marshalList(ep.ToolsUsed)
	if err != nil {
		return err
	}
	topics, err := marshalList(ep.Topics)
	if err != nil {
		return err
	}
	lessons, err := marshalList(ep.Lessons)
	if err != nil {
		return err
	}

	query := `INSERT INTO episodes (` + episodeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		ep.ID, ep.SessionID, ep.Summary, ep.UserGoal, turns,
		ep.StartedAt.UnixNano(), ep.EndedAt.UnixNano(), string(ep.Outcome),
		tools, topics, lessons,
	)
	if err != nil {
		return fmt.Errorf("failed to insert episode: %w", err)
	}
	return nil
}

func (r *EpisodesRepo) Get(ctx context.Context, id string) (core.Episode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Episode{}, fmt.Errorf("episode %s: %w", id, core.ErrNotFound)
	}
	return ep, err
}

// List returns every episode, most recently ended first.
func (r *EpisodesRepo) List(ctx context.Context) ([]core.Episode, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+episodeColumns+` FROM episodes ORDER BY ended_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	var episodes []core.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	log.FromCtx(ctx).Debug().Int("count", len(episodes)).Msg("loaded episodes")
	return episodes, nil
}

func (r *EpisodesRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *EpisodesRepo) DeleteEndedBefore(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM episodes WHERE ended_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune episodes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanEpisode(row rowScanner) (core.Episode, error) {
	var (
		ep                            core.Episode
		turns, tools, topics, lessons string
		outcome                       string
		startedAt, endedAt            int64
	)

	err := row.Scan(&ep.ID, &ep.SessionID, &ep.Summary, &ep.UserGoal, &turns,
		&startedAt, &endedAt, &outcome, &tools, &topics, &lessons)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ep, err
		}
		return ep, fmt.Errorf("failed to scan episode: %w", err)
	}

	if err := unmarshalList(turns, &ep.Turns); err != nil {
		return ep, err
	}
	if err := unmarshalList(tools, &ep.ToolsUsed); err != nil {
		return ep, err
	}
	if err := unmarshalList(topics, &ep.Topics); err != nil {
		return ep, err
	}
	if err := unmarshalList(lessons, &ep.Lessons); err != nil {
		return ep, err
	}

	ep.Outcome = core.Outcome(outcome)
	ep.StartedAt = time.Unix(0, startedAt).UTC()
	ep.EndedAt = time.Unix(0, endedAt).UTC()
	return ep, nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		return "[]", nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(data), nil
}

func unmarshalList[T any](data string, dst *[]T) error {
	if data == "" || data == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return nil
}
