// storage_manager.go — фоновая очистка места, занятого архивами.
//
// Очистка выполняет две задачи:
//  1. Удаляет страницы, истёкшие более RemoveAfterExpired назад
//  2. Помечает истёкшими страницы временных namespace сверх лимита,
//     старше срока жизни политики и, при нехватке места, самые старые
//
// Запускается как горутина с периодическим тикером (OP_CLEAR_STORAGE_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/policy"
	"github.com/arturkryukov/artsore/offline-pages/internal/query"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
)

// Prometheus метрики очистки
var (
	clearStorageRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_clear_storage_runs_total",
		Help: "Количество запусков очистки по итогам",
	}, []string{"result"})

	clearStoragePagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_clear_storage_pages_total",
		Help: "Количество страниц, обработанных очисткой",
	}, []string{"action"})
)

// ClearStorageResult — итог очистки.
type ClearStorageResult int

const (
	ClearSuccess ClearStorageResult = iota
	ClearUnnecessary
	ClearExpireFailure
	ClearDeleteFailure
	ClearExpireAndDeleteFailures
)

func (r ClearStorageResult) String() string {
	switch r {
	case ClearSuccess:
		return "success"
	case ClearUnnecessary:
		return "unnecessary"
	case ClearExpireFailure:
		return "expire_failure"
	case ClearDeleteFailure:
		return "delete_failure"
	case ClearExpireAndDeleteFailures:
		return "expire_and_delete_failures"
	default:
		return "unknown"
	}
}

// StorageConfig — пороги очистки.
type StorageConfig struct {
	// OfflinePageLimit — доля тома, при превышении которой очистка обязательна
	OfflinePageLimit float64
	// ClearThreshold — доля тома, до которой сокращаются оставленные страницы
	ClearThreshold float64
	// ClearInterval — очистка выполняется не реже этого интервала
	ClearInterval time.Duration
	// RemoveAfterExpired — истёкшие страницы удаляются спустя этот срок
	RemoveAfterExpired time.Duration
}

// DefaultStorageConfig — пороги по умолчанию.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		OfflinePageLimit:   0.3,
		ClearThreshold:     0.1,
		ClearInterval:      30 * time.Minute,
		RemoveAfterExpired: 10 * 24 * time.Hour,
	}
}

// PageClearer — операции модели, используемые очисткой.
type PageClearer interface {
	GetPagesMatchingQuery(q *query.Query, cb func([]model.OfflinePageItem))
	ExpirePages(ids []int64, expirationTime time.Time, cb func(ok bool))
	DeletePagesByOfflineID(ids []int64, cb func(DeletePageResult))
}

// StorageStatsProvider — источник сведений о месте на диске.
type StorageStatsProvider interface {
	GetStorageStats(cb func(archive.StorageStats))
}

// StorageManager — очистка места, занятого архивами.
type StorageManager struct {
	pages    PageClearer
	stats    StorageStatsProvider
	policies PolicyController
	cfg      StorageConfig
	now      func() time.Time
	logger   *slog.Logger

	mu            sync.Mutex // защита от параллельного запуска
	inProcess     bool
	lastClearTime time.Time
	cancel        context.CancelFunc
}

// NewStorageManager создаёт менеджер очистки. now == nil — time.Now.
func NewStorageManager(
	pages PageClearer,
	stats StorageStatsProvider,
	policies PolicyController,
	cfg StorageConfig,
	now func() time.Time,
	logger *slog.Logger,
) *StorageManager {
	if now == nil {
		now = time.Now
	}
	return &StorageManager{
		pages:    pages,
		stats:    stats,
		policies: policies,
		cfg:      cfg,
		now:      now,
		logger:   logger.With(slog.String("component", "storage_manager")),
	}
}

// Start запускает периодическую очистку.
func (sm *StorageManager) Start(ctx context.Context, interval time.Duration) {
	smCtx, cancel := context.WithCancel(ctx)
	sm.cancel = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-smCtx.Done():
				return
			case <-ticker.C:
				sm.ClearPagesIfNeeded(nil)
			}
		}
	}()

	sm.logger.Info("Очистка хранилища запущена", slog.String("interval", interval.String()))
}

// Stop останавливает периодическую очистку.
func (sm *StorageManager) Stop() {
	if sm.cancel != nil {
		sm.cancel()
	}
	sm.logger.Info("Очистка хранилища остановлена")
}

// IsInProgress возвращает true, если очистка выполняется.
func (sm *StorageManager) IsInProgress() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.inProcess
}

// RunOnce выполняет очистку и ждёт её завершения.
// skipped == true, если очистка уже выполнялась.
func (sm *StorageManager) RunOnce() (cleared int, result ClearStorageResult, skipped bool) {
	done := make(chan struct{})
	started := sm.clearPagesIfNeeded(func(n int, r ClearStorageResult) {
		cleared, result = n, r
		close(done)
	})
	if !started {
		return 0, ClearUnnecessary, true
	}
	<-done
	return cleared, result, false
}

// ClearPagesIfNeeded запускает очистку, если она нужна.
// cb получает количество страниц, помеченных истёкшими, и итог.
func (sm *StorageManager) ClearPagesIfNeeded(cb func(cleared int, result ClearStorageResult)) {
	sm.clearPagesIfNeeded(cb)
}

func (sm *StorageManager) clearPagesIfNeeded(cb func(int, ClearStorageResult)) bool {
	sm.mu.Lock()
	if sm.inProcess {
		sm.mu.Unlock()
		sm.logger.Warn("Очистка хранилища уже выполняется, пропуск")
		return false
	}
	sm.inProcess = true
	sm.mu.Unlock()

	clearTime := sm.now()
	finish := func(cleared int, result ClearStorageResult) {
		sm.mu.Lock()
		sm.inProcess = false
		if result != ClearUnnecessary {
			sm.lastClearTime = clearTime
		}
		sm.mu.Unlock()

		clearStorageRunsTotal.WithLabelValues(result.String()).Inc()
		sm.logger.Info("Очистка хранилища завершена",
			slog.Int("expired", cleared),
			slog.String("result", result.String()),
		)
		if cb != nil {
			cb(cleared, result)
		}
	}

	q := query.NewBuilder().AllowExpiredPages(true).Build(sm.policies)
	sm.pages.GetPagesMatchingQuery(q, func(pages []model.OfflinePageItem) {
		sm.stats.GetStorageStats(func(stats archive.StorageStats) {
			if !sm.shouldClearPages(stats, clearTime) {
				finish(0, ClearUnnecessary)
				return
			}

			toExpire, toRemove := sm.pageIDsToClear(pages, stats, clearTime)
			clearStoragePagesTotal.WithLabelValues("expire").Add(float64(len(toExpire)))
			clearStoragePagesTotal.WithLabelValues("remove").Add(float64(len(toRemove)))

			sm.pages.ExpirePages(toExpire, clearTime, func(expireOK bool) {
				sm.pages.DeletePagesByOfflineID(toRemove, func(r DeletePageResult) {
					deleteOK := r == DeleteSuccess
					switch {
					case expireOK && deleteOK:
						finish(len(toExpire), ClearSuccess)
					case !expireOK && !deleteOK:
						finish(len(toExpire), ClearExpireAndDeleteFailures)
					case !expireOK:
						finish(len(toExpire), ClearExpireFailure)
					default:
						finish(len(toExpire), ClearDeleteFailure)
					}
				})
			})
		})
	})
	return true
}

func (sm *StorageManager) shouldClearPages(stats archive.StorageStats, clearTime time.Time) bool {
	total := stats.TotalArchivesSize
	if total == 0 {
		return false
	}
	if float64(total) >= float64(total+stats.FreeDiskSpace)*sm.cfg.OfflinePageLimit {
		return true
	}

	sm.mu.Lock()
	last := sm.lastClearTime
	sm.mu.Unlock()
	if last.IsZero() {
		return true
	}
	return clearTime.Sub(last) > sm.cfg.ClearInterval
}

// pageIDsToClear делит страницы на помечаемые истёкшими и удаляемые.
func (sm *StorageManager) pageIDsToClear(pages []model.OfflinePageItem, stats archive.StorageStats,
	clearTime time.Time) (toExpire, toRemove []int64) {
	temporary := make(map[string]bool)
	for _, ns := range sm.policies.GetNamespacesByLifetime(policy.Temporary) {
		temporary[ns] = true
	}

	byNamespace := make(map[string][]model.OfflinePageItem)
	for _, p := range pages {
		if p.IsExpired() {
			if clearTime.Sub(p.ExpirationTime) >= sm.cfg.RemoveAfterExpired {
				toRemove = append(toRemove, p.OfflineID)
			}
			continue
		}
		ns := p.ClientID.Namespace
		// Неизвестные namespace получают временную политику по умолчанию
		if temporary[ns] || sm.policies.GetPolicy(ns).Namespace == policy.DefaultNamespace {
			byNamespace[ns] = append(byNamespace[ns], p)
		}
	}

	var (
		kept     []model.OfflinePageItem
		keptSize int64
	)
	namespaces := make([]string, 0, len(byNamespace))
	for ns := range byNamespace {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		group := byNamespace[ns]
		lifetime := sm.policies.GetPolicy(ns).Lifetime
		sort.Slice(group, func(i, j int) bool {
			return group[i].LastAccessTime.After(group[j].LastAccessTime)
		})

		keptInNamespace := 0
		for _, p := range group {
			overLimit := lifetime.PageLimit != policy.Unlimited && keptInNamespace >= lifetime.PageLimit
			tooOld := clearTime.Sub(p.LastAccessTime) >= lifetime.ExpirationPeriod
			if overLimit || tooOld {
				toExpire = append(toExpire, p.OfflineID)
				continue
			}
			kept = append(kept, p)
			keptSize += p.FileSize
			keptInNamespace++
		}
	}

	spaceToRelease := keptSize - int64(float64(stats.FreeDiskSpace+stats.TotalArchivesSize)*sm.cfg.ClearThreshold)
	if spaceToRelease > 0 {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].LastAccessTime.Before(kept[j].LastAccessTime)
		})
		var released int64
		for _, p := range kept {
			if released >= spaceToRelease {
				break
			}
			toExpire = append(toExpire, p.OfflineID)
			released += p.FileSize
		}
	}
	return toExpire, toRemove
}
