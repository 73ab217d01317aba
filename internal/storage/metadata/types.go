// Пакет metadata — SQL-хранилище метаданных offline-страниц.
//
// Хранилище работает поверх SQLite (modernc.org/sqlite). Все обращения
// к соединению выполняются в собственной фоновой последовательности,
// результаты доставляются колбэками в последовательность владельца.
// Синхронное ядро (ReadAllPages, InsertPage, UpdatePages, RemovePages,
// EnsureCurrentSchema) доступно напрямую для тестов и утилит.
package metadata

import (
	"errors"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
)

// ErrStoreNotLoaded — операция над незагруженным хранилищем.
var ErrStoreNotLoaded = errors.New("хранилище метаданных не загружено")

// StoreState — состояние хранилища.
type StoreState int

const (
	// StateNotLoaded — хранилище не открыто (начальное состояние и после Reset)
	StateNotLoaded StoreState = iota
	// StateLoaded — хранилище открыто, схема актуальна
	StateLoaded
	// StateFailedLoading — ошибка открытия или миграции схемы
	StateFailedLoading
	// StateFailedReset — ошибка сброса хранилища
	StateFailedReset
)

func (s StoreState) String() string {
	switch s {
	case StateNotLoaded:
		return "not_loaded"
	case StateLoaded:
		return "loaded"
	case StateFailedLoading:
		return "failed_loading"
	case StateFailedReset:
		return "failed_reset"
	default:
		return "unknown"
	}
}

// ItemActionStatus — результат операции над одной записью.
type ItemActionStatus int

const (
	StatusSuccess ItemActionStatus = iota
	StatusAlreadyExists
	StatusNotFound
	StatusStoreError
)

func (s ItemActionStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAlreadyExists:
		return "already_exists"
	case StatusNotFound:
		return "not_found"
	case StatusStoreError:
		return "store_error"
	default:
		return "unknown"
	}
}

// LoadStatus — результат чтения всех записей.
type LoadStatus int

const (
	// LoadSucceeded — записи прочитаны
	LoadSucceeded LoadStatus = iota
	// LoadSucceededNewStore — записей нет, файл БД создан при текущей инициализации
	LoadSucceededNewStore
	// StoreInitFailed — хранилище не загружено
	StoreInitFailed
	// StoreLoadFailed — ошибка SQL при чтении
	StoreLoadFailed
)

func (s LoadStatus) String() string {
	switch s {
	case LoadSucceeded:
		return "succeeded"
	case LoadSucceededNewStore:
		return "succeeded_new_store"
	case StoreInitFailed:
		return "init_failed"
	case StoreLoadFailed:
		return "load_failed"
	default:
		return "unknown"
	}
}

// ItemStatus — статус операции для конкретного offline id.
type ItemStatus struct {
	OfflineID int64
	Status    ItemActionStatus
}

// UpdateResult — результат пакетного обновления или удаления.
// UpdatedItems содержит только записи со статусом StatusSuccess.
type UpdateResult struct {
	StoreState   StoreState
	ItemStatuses []ItemStatus
	UpdatedItems []model.OfflinePageItem
}

// newFailedResult — все элементы со статусом StatusStoreError.
func newFailedResult(state StoreState, ids []int64) *UpdateResult {
	r := &UpdateResult{StoreState: state}
	for _, id := range ids {
		r.ItemStatuses = append(r.ItemStatuses, ItemStatus{OfflineID: id, Status: StatusStoreError})
	}
	return r
}

// CountStatus возвращает количество элементов со статусом st.
func (r *UpdateResult) CountStatus(st ItemActionStatus) int {
	n := 0
	for _, s := range r.ItemStatuses {
		if s.Status == st {
			n++
		}
	}
	return n
}
