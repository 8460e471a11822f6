// Package failures journals errors raised by tasks on the execution side.
package failures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oriys/tasklet/internal/bridge"
	"github.com/oriys/tasklet/internal/logging"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500

	recordTimeout = 5 * time.Second
)

// Failure is one journaled error.
type Failure struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Exception    string    `json:"exception"`
	ExceptionFQN string    `json:"exception_fqn"`
	Message      string    `json:"message"`
	Args         []any     `json:"args"`
	At           time.Time `json:"at"`
}

// NewFailure describes err as raised by the task at address.
func NewFailure(address string, err error) Failure {
	d := bridge.Describe(err)
	return Failure{
		ID:           uuid.New().String(),
		Address:      address,
		Exception:    d.Exception,
		ExceptionFQN: d.ExceptionFQN,
		Message:      d.ExceptionStr,
		Args:         d.ExceptionArgs,
		At:           time.Now().UTC(),
	}
}

// dbExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSink writes failures to the task_failures table.
type PostgresSink struct {
	pool *pgxpool.Pool
	db   dbExecer
}

func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &PostgresSink{pool: pool, db: pool}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresSink) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_failures (
			id TEXT PRIMARY KEY,
			address TEXT NOT NULL,
			exception TEXT NOT NULL,
			exception_fqn TEXT NOT NULL,
			message TEXT NOT NULL,
			args JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_failures_address ON task_failures (address, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Record inserts f.
func (s *PostgresSink) Record(ctx context.Context, f Failure) error {
	args := f.Args
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		// Args came from an arbitrary error; keep the row, lose the args.
		data = []byte("[]")
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO task_failures (id, address, exception, exception_fqn, message, args, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, f.ID, f.Address, f.Exception, f.ExceptionFQN, f.Message, data, f.At)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// List returns the newest failures, optionally filtered by address.
func (s *PostgresSink) List(ctx context.Context, address string, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, address, exception, exception_fqn, message, args, created_at
		FROM task_failures
		WHERE ($1 = '' OR address = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var (
			f    Failure
			data []byte
		)
		if err := rows.Scan(&f.ID, &f.Address, &f.Exception, &f.ExceptionFQN, &f.Message, &data, &f.At); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		if err := json.Unmarshal(data, &f.Args); err != nil {
			return nil, fmt.Errorf("decode failure args: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	return out, nil
}

// Handler returns an exception handler for the router. Journal errors are
// logged and never reach the task's caller.
func (s *PostgresSink) Handler() func(ctx context.Context, address string, err error) {
	return func(ctx context.Context, address string, err error) {
		if err == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		if rerr := s.Record(ctx, NewFailure(address, err)); rerr != nil {
			if errors.Is(rerr, context.DeadlineExceeded) {
				logging.OpContext(ctx).Warn("failure journal timed out", "address", address)
				return
			}
			logging.OpContext(ctx).Error("failure journal write failed", "address", address, "error", rerr)
		}
	}
}
