package core

import (
	"context"
	"time"
)

type MemoryRepository interface {
	Upsert(ctx context.Context, rec MemoryRecord) error
	Get(ctx context.Context, id string) (MemoryRecord, error)
	List(ctx context.Context) ([]MemoryRecord, error)
	Touch(ctx context.Context, ids []string, at time.Time) error
	Delete(ctx context.Context, id string) (bool, error)
	DeleteMany(ctx context.Context, ids []string) (int, error)
	Count(ctx context.Context) (int, error)
}

type EpisodeRepository interface {
	Insert(ctx context.Context, ep Episode) error
	Get(ctx context.Context, id string) (Episode, error)
	List(ctx context.Context) ([]Episode, error)
	Delete(ctx context.Context, id string) (bool, error)
	DeleteEndedBefore(ctx context.Context, before time.Time) (int, error)
}
