package tx

import (
	"context"
	"fmt"

	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKey ключ транзакции в контексте
type txKeyType struct{}

var txKey = txKeyType{}

// TxManager управляет жизненным циклом транзакций БД.
type TxManager interface {
	// Do выполняет fn внутри транзакции. Ошибка fn откатывает транзакцию, nil фиксирует ее.
	// Контекст fn содержит транзакцию. Если транзакция уже есть в ctx, fn выполняется в ней.
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// Beginner начинает транзакции; *pgxpool.Pool удовлетворяет интерфейсу
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type pgxTxManager struct {
	db     Beginner
	logger interfaces.LoggerPort
}

var _ Beginner = (*pgxpool.Pool)(nil)

// NewTxManager создает новый менеджер транзакций. logger может быть nil.
func NewTxManager(db Beginner, logger interfaces.LoggerPort) TxManager {
	return &pgxTxManager{db: db, logger: logger}
}

// Do реализует метод интерфейса TxManager.
func (m *pgxTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := GetTxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tx.Begin failed: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	// Откат после Commit ничего не делает; нужен на случай паники в fn
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err = fn(txCtx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && m.logger != nil {
			m.logger.ErrorWithContext(ctx, "Ошибка отката транзакции",
				"error", rollbackErr.Error(),
				"original_error", err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx.Commit failed: %w", err)
	}
	return nil
}

// GetTxFromContext извлекает транзакцию из контекста.
func GetTxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// GetKey ключ, под которым хранилища кладут транзакцию в контекст
func GetKey() interface{} {
	return txKey
}
