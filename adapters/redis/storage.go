package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"rankkit/core"
	"rankkit/leaderboard"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"RANKKIT_REDIS_ADDR"`
	Password     string        `json:"password" env:"RANKKIT_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"RANKKIT_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"RANKKIT_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"RANKKIT_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"RANKKIT_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"RANKKIT_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"RANKKIT_REDIS_WRITE_TIMEOUT"`
	KeyPrefix    string        `json:"key_prefix" env:"RANKKIT_REDIS_KEY_PREFIX"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		KeyPrefix:    "lb:",
	}
}

// Backend hands out per-board stores sharing one Redis client.
// Data structure:
// - {prefix}{board} -> sorted set, member = entrant name, score = entrant score
type Backend struct {
	client redis.UniversalClient
	prefix string
}

// New creates a Redis backend with the provided configuration
func New(config Config) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Backend{client: client, prefix: config.KeyPrefix}, nil
}

// NewWithClient creates a Backend using an existing Redis client (useful for testing)
func NewWithClient(client redis.UniversalClient, prefix string) *Backend {
	return &Backend{client: client, prefix: prefix}
}

// Close closes the Redis connection
func (b *Backend) Close() error {
	return b.client.Close()
}

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Open loads the read scripts and returns the store of board.
func (b *Backend) Open(ctx context.Context, board string, polarity core.Polarity) (leaderboard.Store, error) {
	if err := LoadScripts(ctx, b.client); err != nil {
		return nil, err
	}
	return NewStore(b.client, boardKey(b.prefix, board), polarity), nil
}

// boardKey generates the Redis key for a board's sorted set
func boardKey(prefix, board string) string {
	return prefix + board
}

// Store is one leaderboard kept in a Redis sorted set.
type Store struct {
	client   redis.UniversalClient
	key      string
	polarity core.Polarity
}

// NewStore returns the store kept under key.
func NewStore(client redis.UniversalClient, key string, polarity core.Polarity) *Store {
	return &Store{client: client, key: key, polarity: polarity}
}

func (s *Store) Polarity() core.Polarity { return s.polarity }

// Key returns the sorted set key.
func (s *Store) Key() string { return s.key }

// Upsert sets the member's score (ZADD).
func (s *Store) Upsert(ctx context.Context, name string, score float64) error {
	if err := s.client.ZAdd(ctx, s.key, redis.Z{Score: score, Member: name}).Err(); err != nil {
		return fmt.Errorf("failed to set score: %w", err)
	}
	return nil
}

// Adjust increments the member's score (ZINCRBY) and returns the new value.
func (s *Store) Adjust(ctx context.Context, name string, delta float64) (float64, error) {
	next, err := s.client.ZIncrBy(ctx, s.key, delta, name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to modify score: %w", err)
	}
	return next, nil
}

func (s *Store) Remove(ctx context.Context, name string) error {
	if err := s.client.ZRem(ctx, s.key, name).Err(); err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear board: %w", err)
	}
	return nil
}

func (s *Store) Card(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (s *Store) CountBetter(ctx context.Context, score float64) (int64, error) {
	n, err := countBetterScript.Run(ctx, s.client, []string{s.key}, formatScore(score), s.polarity.String()).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to count better entries: %w", err)
	}
	return n, nil
}

func (s *Store) Position(ctx context.Context, name string) (int64, bool, error) {
	pos, err := positionScript.Run(ctx, s.client, []string{s.key}, name, s.polarity.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get position: %w", err)
	}
	return pos, true, nil
}

func (s *Store) ScoreOf(ctx context.Context, name string) (float64, int64, bool, error) {
	res, err := scoreRankScript.Run(ctx, s.client, []string{s.key}, name, s.polarity.String()).Slice()
	if errors.Is(err, redis.Nil) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to get score and rank: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, false, fmt.Errorf("unexpected score and rank reply %v: %w", res, core.ErrMalformedRange)
	}
	raw, ok := res[0].(string)
	if !ok {
		return 0, 0, false, errors.New("unexpected score type from Redis script")
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to parse score %q: %w", raw, err)
	}
	better, ok := res[1].(int64)
	if !ok {
		return 0, 0, false, errors.New("unexpected rank type from Redis script")
	}
	return score, better, true, nil
}

func (s *Store) Range(ctx context.Context, start, end int64) ([]core.Entry, error) {
	if end < start {
		return []core.Entry{}, nil
	}
	flat, err := rangeScript.Run(ctx, s.client, []string{s.key}, start, end, s.polarity.String()).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to get range: %w", err)
	}
	return decodePairs(flat)
}

// RangeWithTotal runs ZCARD and the range script in one MULTI/EXEC block so
// the total and the window come from the same instant.
func (s *Store) RangeWithTotal(ctx context.Context, start, end int64) (int64, []core.Entry, error) {
	if end < start {
		n, err := s.Card(ctx)
		return n, []core.Entry{}, err
	}
	var card *redis.IntCmd
	var rng *redis.Cmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = pipe.ZCard(ctx, s.key)
		rng = rangeScript.Eval(ctx, pipe, []string{s.key}, start, end, s.polarity.String())
		return nil
	})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to get range and total: %w", err)
	}
	flat, err := rng.StringSlice()
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read range reply: %w", err)
	}
	entries, err := decodePairs(flat)
	if err != nil {
		return 0, nil, err
	}
	return card.Val(), entries, nil
}

// decodePairs turns {name, score, name, score, ...} into entries.
func decodePairs(flat []string) ([]core.Entry, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("odd-length reply of %d items: %w", len(flat), core.ErrMalformedRange)
	}
	out := make([]core.Entry, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		score, err := strconv.ParseFloat(flat[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("score %q of %q: %w", flat[i+1], flat[i], core.ErrMalformedRange)
		}
		out = append(out, core.Entry{Name: flat[i], Score: score})
	}
	return out, nil
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

var _ leaderboard.Store = (*Store)(nil)
var _ leaderboard.Opener = (*Backend)(nil)
