package postgres

import (
	"github.com/athebyme/gomarket-platform/channel-sync/pkg/interfaces"
)

// Port полное хранилище сервиса синхронизации
type Port interface {
	AccountRepository
	TokenRepository
	ListingRepository
	SyncJobRepository

	interfaces.StoragePort
}
