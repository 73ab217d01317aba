package service

import (
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/policy"
	"github.com/arturkryukov/artsore/offline-pages/internal/query"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/metadata"
)

// MetadataStore — асинхронное хранилище метаданных.
// Колбэки выполняются в последовательности владельца модели.
type MetadataStore interface {
	Initialize(cb func(ok bool))
	GetOfflinePages(cb func(metadata.LoadStatus, []model.OfflinePageItem))
	AddOfflinePage(page model.OfflinePageItem, cb func(metadata.ItemActionStatus))
	UpdateOfflinePages(pages []model.OfflinePageItem, cb func(*metadata.UpdateResult))
	RemoveOfflinePages(ids []int64, cb func(*metadata.UpdateResult))
	Reset(cb func(ok bool))
	State() metadata.StoreState
}

// ArchiveManager — файловые операции каталога архивов.
// Колбэки выполняются в последовательности владельца модели.
type ArchiveManager interface {
	Dir() string
	EnsureArchivesDirCreated(cb func(error))
	DeleteMultipleArchives(paths []string, cb func(ok bool))
	GetAllArchives(cb func(map[string]struct{}))
	GetStorageStats(cb func(archive.StorageStats))
}

// PolicyController — политики namespace.
type PolicyController interface {
	query.PolicyController
	GetPolicy(namespace string) policy.ClientPolicy
	GetNamespacesByLifetime(t policy.LifetimeType) []string
}

// Observer получает уведомления модели в её последовательности.
type Observer interface {
	OfflinePageModelLoaded(m *Model)
	OfflinePageAdded(m *Model, page model.OfflinePageItem)
	OfflinePageDeleted(m *Model, offlineID int64, clientID model.ClientID)
}
