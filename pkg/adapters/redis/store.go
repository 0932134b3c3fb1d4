package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/fetpipe/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.RunStore using Redis.
// A run header is stored as JSON under <prefix><id>; its stage records are appended to the
// list <prefix><id>:stages. Runs are indexed in the sorted set <prefix>index.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for runs.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for runs.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "fetpipe:run:",
		ttl:    0, // No expiration by default
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(runID string) string {
	return s.prefix + runID
}

func (s *Store) stagesKey(runID string) string {
	return s.prefix + runID + ":stages"
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Begin stores the run header and indexes it.
func (s *Store) Begin(ctx context.Context, run *domain.Run) error {
	header := *run
	header.Stages = nil
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	// Score = Now + TTL, far in the future when runs never expire.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(run.ID), data, s.ttl)
	pipe.Del(ctx, s.stagesKey(run.ID))
	for _, rec := range run.Stages {
		if err := s.push(ctx, pipe, rec); err != nil {
			return err
		}
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: run.ID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run to redis: %w", err)
	}
	return nil
}

// Record appends a stage record to its run.
func (s *Store) Record(ctx context.Context, rec domain.StageRecord) error {
	n, err := s.client.Exists(ctx, s.key(rec.RunID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check run in redis: %w", err)
	}
	if n == 0 {
		return domain.ErrRunNotFound
	}

	pipe := s.client.TxPipeline()
	if err := s.push(ctx, pipe, rec); err != nil {
		return err
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record stage in redis: %w", err)
	}
	return nil
}

func (s *Store) push(ctx context.Context, pipe backend.Pipeliner, rec domain.StageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal stage record: %w", err)
	}
	pipe.RPush(ctx, s.stagesKey(rec.RunID), data)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.stagesKey(rec.RunID), s.ttl)
	}
	return nil
}

// Load retrieves a run and its stage records.
func (s *Store) Load(ctx context.Context, runID string) (*domain.Run, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run from redis: %w", err)
	}

	var run domain.Run
	if err := json.Unmarshal([]byte(val), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	records, err := s.client.LRange(ctx, s.stagesKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get stage records from redis: %w", err)
	}
	for _, r := range records {
		var rec domain.StageRecord
		if err := json.Unmarshal([]byte(r), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stage record: %w", err)
		}
		run.Stages = append(run.Stages, rec)
	}
	return &run, nil
}

// Delete removes the run and its records.
func (s *Store) Delete(ctx context.Context, runID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(runID), s.stagesKey(runID))
	pipe.ZRem(ctx, s.indexKey(), runID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the indexed runs, lazily pruning expired entries.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired runs: %w", err)
	}

	runs, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
