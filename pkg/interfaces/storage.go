package interfaces

import (
	"context"
)

// StoragePort определяет интерфейс для работы с постоянным хранилищем данных
type StoragePort interface {
	// BeginTx начинает новую транзакцию
	BeginTx(ctx context.Context) (context.Context, error)

	// CommitTx фиксирует транзакцию
	CommitTx(ctx context.Context) error

	// RollbackTx откатывает транзакцию
	RollbackTx(ctx context.Context) error

	// Ping проверяет соединение с хранилищем
	Ping(ctx context.Context) error

	// Close закрывает соединение с хранилищем
	Close() error
}
