package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	pgport "github.com/athebyme/gomarket-platform/channel-sync/internal/infrastructure/postgres"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/tx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ pgport.Port = (*Storage)(nil)

// Storage реализация хранилища сервиса синхронизации для PostgreSQL
type Storage struct {
	pool      *pgxpool.Pool
	txManager tx.TxManager
	logger    interfaces.LoggerPort
	now       func() time.Time
}

// NewPostgresStorage создает пул соединений и хранилище
func NewPostgresStorage(ctx context.Context, connectionString string, logger interfaces.LoggerPort) (*Storage, error) {
	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewPostgresStorageWithPool(ctx, pool, logger)
}

// NewPostgresStorageWithPool создает хранилище поверх готового пула
func NewPostgresStorageWithPool(ctx context.Context, pool *pgxpool.Pool, logger interfaces.LoggerPort) (*Storage, error) {
	if pool == nil {
		return nil, errors.New("pool is nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Storage{
		pool:      pool,
		txManager: tx.NewTxManager(pool, logger),
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Pool возвращает пул соединений
func (r *Storage) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping проверяет соединение с БД
func (r *Storage) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close закрывает соединение с БД
func (r *Storage) Close() error {
	r.pool.Close()
	return nil
}

type executor interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// getExecutor возвращает исполнителя запросов (транзакцию или пул)
func (r *Storage) getExecutor(ctx context.Context) executor {
	if t, ok := tx.GetTxFromContext(ctx); ok {
		return t
	}
	return r.pool
}

// BeginTx начинает новую транзакцию. Транзакция кладется в контекст под ключом менеджера транзакций,
// поэтому все методы хранилища с этим контекстом выполняются в ней.
func (r *Storage) BeginTx(ctx context.Context) (context.Context, error) {
	t, err := r.pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return context.WithValue(ctx, tx.GetKey(), t), nil
}

// CommitTx фиксирует транзакцию
func (r *Storage) CommitTx(ctx context.Context) error {
	t, ok := tx.GetTxFromContext(ctx)
	if !ok {
		return errors.New("no transaction in context")
	}
	return t.Commit(ctx)
}

// RollbackTx откатывает транзакцию
func (r *Storage) RollbackTx(ctx context.Context) error {
	t, ok := tx.GetTxFromContext(ctx)
	if !ok {
		return errors.New("no transaction in context")
	}
	return t.Rollback(ctx)
}

// whereBuilder собирает условия WHERE с позиционными параметрами
type whereBuilder struct {
	conditions []string
	args       []interface{}
}

func (w *whereBuilder) add(condition string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conditions = append(w.conditions, strings.ReplaceAll(condition, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *whereBuilder) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conditions, " AND ")
}

func (w *whereBuilder) next() string {
	return fmt.Sprintf("$%d", len(w.args)+1)
}
