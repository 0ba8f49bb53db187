// Package sqlx stores leaderboards in a relational table through jmoiron/sqlx.
// PostgreSQL and MySQL are supported.
package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rankkit/core"
	"rankkit/leaderboard"
)

// Driver names a supported SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration
type Config struct {
	Driver          Driver        `json:"driver" env:"RANKKIT_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"RANKKIT_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"RANKKIT_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"RANKKIT_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"RANKKIT_SQL_CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `json:"auto_migrate" env:"RANKKIT_SQL_AUTO_MIGRATE"`
}

// DefaultConfig returns defaults for the given driver
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		AutoMigrate:     true,
	}
}

// Validate checks the driver and, when set, the DSN syntax.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if strings.HasPrefix(c.DSN, "postgres://") || strings.HasPrefix(c.DSN, "postgresql://") {
			if _, err := pq.ParseURL(c.DSN); err != nil {
				return fmt.Errorf("invalid postgres dsn: %w", err)
			}
		}
	case DriverMySQL:
		if c.DSN != "" {
			if _, err := mysql.ParseDSN(c.DSN); err != nil {
				return fmt.Errorf("invalid mysql dsn: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported sql driver %q", c.Driver)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection pool sizes cannot be negative")
	}
	return nil
}

// Backend hands out per-board stores over one connection pool.
// Data structure:
// - leaderboard_entries(board, name, score), primary key (board, name)
type Backend struct {
	db     *sqlx.DB
	driver Driver
}

// New opens and pings the database, creating the schema when AutoMigrate is set.
func New(ctx context.Context, config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	db, err := sqlx.Open(string(config.Driver), config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	b := NewWithDB(db, config.Driver)
	if config.AutoMigrate {
		if err := b.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return b, nil
}

// NewWithDB wraps an existing handle (useful for testing)
func NewWithDB(db *sqlx.DB, driver Driver) *Backend {
	return &Backend{db: db, driver: driver}
}

// Close closes the pool.
func (b *Backend) Close() error { return b.db.Close() }

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error { return b.db.PingContext(ctx) }

// Migrate creates the entries table and its score index if missing.
func (b *Backend) Migrate(ctx context.Context) error {
	var stmts []string
	switch b.driver {
	case DriverMySQL:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS leaderboard_entries (
				board VARCHAR(191) NOT NULL,
				name VARCHAR(191) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin NOT NULL,
				score DOUBLE NOT NULL,
				PRIMARY KEY (board, name),
				INDEX leaderboard_entries_score (board, score)
			)`,
		}
	default:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS leaderboard_entries (
				board TEXT NOT NULL,
				name TEXT NOT NULL,
				score DOUBLE PRECISION NOT NULL,
				PRIMARY KEY (board, name)
			)`,
			`CREATE INDEX IF NOT EXISTS leaderboard_entries_score ON leaderboard_entries (board, score)`,
		}
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schema: %w", err)
		}
	}
	return nil
}

// Open returns the store of board. No round trip is made.
func (b *Backend) Open(_ context.Context, board string, polarity core.Polarity) (leaderboard.Store, error) {
	return b.Board(board, polarity), nil
}

// Board returns the typed store of board.
func (b *Backend) Board(board string, polarity core.Polarity) *Store {
	return &Store{db: b.db, driver: b.driver, board: board, polarity: polarity}
}

// Store is one leaderboard's rows in leaderboard_entries.
type Store struct {
	db       *sqlx.DB
	driver   Driver
	board    string
	polarity core.Polarity
}

func (s *Store) Polarity() core.Polarity { return s.polarity }

// better is the comparison an entry needs to outrank a score.
func (s *Store) better() string {
	if s.polarity == core.Ascending {
		return "<"
	}
	return ">"
}

func (s *Store) order() string {
	if s.polarity == core.Ascending {
		return "score ASC, name ASC"
	}
	return "score DESC, name ASC"
}

func (s *Store) Upsert(ctx context.Context, name string, score float64) error {
	q := `INSERT INTO leaderboard_entries (board, name, score) VALUES (?, ?, ?)
		ON CONFLICT (board, name) DO UPDATE SET score = EXCLUDED.score`
	if s.driver == DriverMySQL {
		q = `INSERT INTO leaderboard_entries (board, name, score) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE score = VALUES(score)`
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), s.board, name, score); err != nil {
		return fmt.Errorf("failed to set score: %w", err)
	}
	return nil
}

// Adjust adds delta in a single upsert so concurrent first writes to an absent
// name cannot collide. MySQL has no RETURNING, so the new score is read back
// inside the same transaction.
func (s *Store) Adjust(ctx context.Context, name string, delta float64) (float64, error) {
	if s.driver != DriverMySQL {
		var next float64
		err := s.db.GetContext(ctx, &next, s.db.Rebind(`INSERT INTO leaderboard_entries (board, name, score) VALUES (?, ?, ?)
			ON CONFLICT (board, name) DO UPDATE SET score = leaderboard_entries.score + EXCLUDED.score
			RETURNING score`), s.board, name, delta)
		if err != nil {
			return 0, fmt.Errorf("failed to modify score: %w", err)
		}
		return next, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO leaderboard_entries (board, name, score) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE score = score + VALUES(score)`, s.board, name, delta)
	if err != nil {
		return 0, fmt.Errorf("failed to modify score: %w", err)
	}
	var next float64
	err = tx.GetContext(ctx, &next, `SELECT score FROM leaderboard_entries WHERE board = ? AND name = ?`, s.board, name)
	if err != nil {
		return 0, fmt.Errorf("failed to read modified score: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return next, nil
}

func (s *Store) Remove(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM leaderboard_entries WHERE board = ? AND name = ?`), s.board, name)
	if err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM leaderboard_entries WHERE board = ?`), s.board)
	if err != nil {
		return fmt.Errorf("failed to clear board: %w", err)
	}
	return nil
}

func (s *Store) Card(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n,
		s.db.Rebind(`SELECT COUNT(*) FROM leaderboard_entries WHERE board = ?`), s.board); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

func (s *Store) CountBetter(ctx context.Context, score float64) (int64, error) {
	var n int64
	q := fmt.Sprintf(`SELECT COUNT(*) FROM leaderboard_entries WHERE board = ? AND score %s ?`, s.better())
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(q), s.board, score); err != nil {
		return 0, fmt.Errorf("failed to count better entries: %w", err)
	}
	return n, nil
}

// Position counts the rows ordered ahead of name, ties broken by name.
func (s *Store) Position(ctx context.Context, name string) (int64, bool, error) {
	q := fmt.Sprintf(`SELECT (SELECT COUNT(*) FROM leaderboard_entries o
			WHERE o.board = e.board AND (o.score %[1]s e.score OR (o.score = e.score AND o.name < e.name))) AS pos
		FROM leaderboard_entries e WHERE e.board = ? AND e.name = ?`, s.better())
	var pos int64
	err := s.db.GetContext(ctx, &pos, s.db.Rebind(q), s.board, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get position: %w", err)
	}
	return pos, true, nil
}

type scoreRow struct {
	Score  float64 `db:"score"`
	Better int64   `db:"better"`
}

func (s *Store) ScoreOf(ctx context.Context, name string) (float64, int64, bool, error) {
	q := fmt.Sprintf(`SELECT e.score AS score, (SELECT COUNT(*) FROM leaderboard_entries o
			WHERE o.board = e.board AND o.score %s e.score) AS better
		FROM leaderboard_entries e WHERE e.board = ? AND e.name = ?`, s.better())
	var row scoreRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(q), s.board, name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to get score and rank: %w", err)
	}
	return row.Score, row.Better, true, nil
}

type entryRow struct {
	Name  string  `db:"name"`
	Score float64 `db:"score"`
}

func (s *Store) Range(ctx context.Context, start, end int64) ([]core.Entry, error) {
	return s.rangeOf(ctx, s.db, start, end)
}

// RangeWithTotal reads the count and the window in one read-only
// repeatable-read transaction.
func (s *Store) RangeWithTotal(ctx context.Context, start, end int64) (int64, []core.Entry, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	if err := tx.GetContext(ctx, &total,
		tx.Rebind(`SELECT COUNT(*) FROM leaderboard_entries WHERE board = ?`), s.board); err != nil {
		return 0, nil, fmt.Errorf("failed to count entries: %w", err)
	}
	entries, err := s.rangeOf(ctx, tx, start, end)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit: %w", err)
	}
	return total, entries, nil
}

type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

func (s *Store) rangeOf(ctx context.Context, q queryer, start, end int64) ([]core.Entry, error) {
	if start < 0 {
		start = 0
	}
	if end < start {
		return []core.Entry{}, nil
	}
	var rows []entryRow
	query := fmt.Sprintf(`SELECT name, score FROM leaderboard_entries WHERE board = ? ORDER BY %s LIMIT ? OFFSET ?`, s.order())
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), s.board, end-start+1, start); err != nil {
		return nil, fmt.Errorf("failed to get range: %w", err)
	}
	out := make([]core.Entry, len(rows))
	for i, r := range rows {
		out[i] = core.Entry{Name: r.Name, Score: r.Score}
	}
	return out, nil
}

var _ leaderboard.Store = (*Store)(nil)
var _ leaderboard.Opener = (*Backend)(nil)
