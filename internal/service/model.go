// model.go — модель offline-страниц: in-memory кэш метаданных поверх
// асинхронного хранилища.
//
// Все изменения состояния выполняются в последовательности владельца
// (owner). Публичные методы можно вызывать из любой горутины: они ставят
// задачу в owner, колбэки тоже выполняются в owner. До завершения
// загрузки операции откладываются и выполняются в порядке вызова.
package service

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/policy"
	"github.com/arturkryukov/artsore/offline-pages/internal/query"
	"github.com/arturkryukov/artsore/offline-pages/internal/sequence"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/metadata"
)

// Prometheus метрики модели
var (
	savePageResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_save_page_results_total",
		Help: "Количество сохранений страниц по итогам",
	}, []string{"result"})

	deletePageResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_delete_page_results_total",
		Help: "Количество операций удаления страниц по итогам",
	}, []string{"result"})

	pagesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "op_pages_expired_total",
		Help: "Количество страниц, помеченных истёкшими",
	})

	// PagesCached — текущее количество страниц в кэше модели.
	PagesCached = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "op_pages_cached",
		Help: "Количество страниц в in-memory кэше",
	})
)

// ModelConfig — параметры модели.
type ModelConfig struct {
	// ConsistencyCheckDelay — задержка проверки согласованности после загрузки,
	// отрицательное значение отключает проверку
	ConsistencyCheckDelay time.Duration
	// MaxArchiveSize — максимальный размер архива, 0 без ограничения
	MaxArchiveSize int64
	// Now — источник времени, по умолчанию time.Now
	Now func() time.Time
}

// SavePageParams — параметры сохранения страницы.
type SavePageParams struct {
	URL      string
	ClientID model.ClientID
	// ProposedOfflineID — offline id, предложенный вызывающим; 0 — сгенерировать
	ProposedOfflineID int64
	// OriginalURL — адрес до редиректов
	OriginalURL string
}

// Model — модель offline-страниц.
type Model struct {
	owner    *sequence.Runner
	store    MetadataStore
	archives ArchiveManager
	policies PolicyController
	cfg      ModelConfig
	logger   *slog.Logger

	isLoaded atomic.Bool

	timerMu          sync.Mutex
	consistencyTimer *time.Timer
	closed           bool

	// Поля ниже доступны только из owner.
	pages            map[int64]model.OfflinePageItem
	loaded           bool
	delayedTasks     []func()
	pendingArchivers map[int64]archive.Archiver
	savesInFlight    int
	observers        []Observer
}

// NewModel создаёт модель. Для загрузки вызовите Start.
func NewModel(
	owner *sequence.Runner,
	store MetadataStore,
	archives ArchiveManager,
	policies PolicyController,
	cfg ModelConfig,
	logger *slog.Logger,
) *Model {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Model{
		owner:            owner,
		store:            store,
		archives:         archives,
		policies:         policies,
		cfg:              cfg,
		logger:           logger.With(slog.String("component", "offline_page_model")),
		pages:            make(map[int64]model.OfflinePageItem),
		pendingArchivers: make(map[int64]archive.Archiver),
	}
}

// PolicyController возвращает контроллер политик модели.
func (m *Model) PolicyController() PolicyController {
	return m.policies
}

// IsLoaded сообщает, завершена ли загрузка кэша.
func (m *Model) IsLoaded() bool {
	return m.isLoaded.Load()
}

// StoreState возвращает состояние хранилища метаданных.
func (m *Model) StoreState() metadata.StoreState {
	return m.store.State()
}

// Start запускает загрузку: каталог архивов → хранилище → кэш.
func (m *Model) Start() {
	m.owner.Post(func() {
		m.logger.Info("Загрузка модели offline-страниц")
		m.archives.EnsureArchivesDirCreated(func(err error) {
			if err != nil {
				m.logger.Error("Каталог архивов недоступен", slog.String("error", err.Error()))
			}
			m.initializeStore(true)
		})
	})
}

// Close останавливает отложенную проверку согласованности.
func (m *Model) Close() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	m.closed = true
	if m.consistencyTimer != nil {
		m.consistencyTimer.Stop()
	}
}

// initializeStore открывает хранилище и читает записи. При ошибке
// хранилище один раз сбрасывается и открывается заново.
func (m *Model) initializeStore(canRetry bool) {
	retry := func(reason string) bool {
		if !canRetry {
			return false
		}
		m.logger.Warn("Ошибка загрузки хранилища, сброс и повторная попытка",
			slog.String("reason", reason),
		)
		m.store.Reset(func(ok bool) {
			if !ok {
				m.logger.Error("Ошибка сброса хранилища метаданных")
			}
			m.initializeStore(false)
		})
		return true
	}

	m.store.Initialize(func(ok bool) {
		if !ok {
			if !retry("initialize") {
				m.finishLoad(nil)
			}
			return
		}
		m.store.GetOfflinePages(func(status metadata.LoadStatus, pages []model.OfflinePageItem) {
			if status == metadata.StoreInitFailed || status == metadata.StoreLoadFailed {
				if !retry(status.String()) {
					m.finishLoad(nil)
				}
				return
			}
			m.finishLoad(pages)
		})
	})
}

// finishLoad заполняет кэш, выполняет отложенные задачи и уведомляет
// наблюдателей. Модель считается загруженной и при ошибке хранилища:
// операции в этом случае завершаются ошибкой хранилища.
func (m *Model) finishLoad(pages []model.OfflinePageItem) {
	m.pages = make(map[int64]model.OfflinePageItem, len(pages))
	for _, p := range pages {
		m.pages[p.OfflineID] = p
	}
	m.updatePagesGauge()
	m.loaded = true
	m.isLoaded.Store(true)

	m.logger.Info("Модель offline-страниц загружена",
		slog.Int("pages", len(m.pages)),
		slog.String("store_state", m.store.State().String()),
	)

	tasks := m.delayedTasks
	m.delayedTasks = nil
	for _, task := range tasks {
		task()
	}

	for _, o := range m.observers {
		o.OfflinePageModelLoaded(m)
	}

	if m.cfg.ConsistencyCheckDelay >= 0 {
		m.scheduleConsistencyCheck(m.cfg.ConsistencyCheckDelay)
	}
}

func (m *Model) scheduleConsistencyCheck(delay time.Duration) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	if m.closed {
		return
	}
	if m.consistencyTimer != nil {
		m.consistencyTimer.Stop()
	}
	m.consistencyTimer = time.AfterFunc(delay, func() {
		m.owner.Post(func() { m.checkMetadataConsistency(nil) })
	})
}

// post ставит задачу в owner с откладыванием до загрузки.
func (m *Model) post(task func()) {
	m.owner.Post(func() { m.runWhenLoaded(task) })
}

func (m *Model) runWhenLoaded(task func()) {
	if !m.loaded {
		m.delayedTasks = append(m.delayedTasks, task)
		return
	}
	task()
}

func (m *Model) updatePagesGauge() {
	PagesCached.Set(float64(len(m.pages)))
}

// AddObserver подписывает наблюдателя.
func (m *Model) AddObserver(o Observer) {
	m.owner.Post(func() { m.observers = append(m.observers, o) })
}

// RemoveObserver отписывает наблюдателя.
func (m *Model) RemoveObserver(o Observer) {
	m.owner.Post(func() {
		for i, existing := range m.observers {
			if existing == o {
				m.observers = append(m.observers[:i], m.observers[i+1:]...)
				return
			}
		}
	})
}

// --- Сохранение ---

// canSaveURL — архивируются только http и https страницы.
func canSaveURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// generateOfflineID возвращает случайный положительный 63-битный id,
// не занятый в кэше.
func (m *Model) generateOfflineID() int64 {
	for {
		id := rand.Int64N(math.MaxInt64) + 1
		if _, exists := m.pages[id]; !exists {
			if _, pending := m.pendingArchivers[id]; !pending {
				return id
			}
		}
	}
}

// SavePage создаёт архив страницы и сохраняет её метаданные.
func (m *Model) SavePage(params SavePageParams, archiver archive.Archiver, cb func(SavePageResult, int64)) {
	m.post(func() { m.savePage(params, archiver, cb) })
}

func (m *Model) savePage(params SavePageParams, archiver archive.Archiver, cb func(SavePageResult, int64)) {
	if !canSaveURL(params.URL) {
		m.informSavePageDone(cb, SaveSkipped, params, 0)
		return
	}
	if archiver == nil {
		m.informSavePageDone(cb, SaveContentUnavailable, params, 0)
		return
	}

	offlineID := params.ProposedOfflineID
	if offlineID <= 0 {
		offlineID = m.generateOfflineID()
	} else if m.offlineIDTaken(offlineID) {
		m.informSavePageDone(cb, SaveAlreadyExists, params, offlineID)
		return
	}
	m.pendingArchivers[offlineID] = archiver
	m.savesInFlight++

	archiver.CreateArchive(m.archives.Dir(), archive.CreateParams{MaxSize: m.cfg.MaxArchiveSize},
		func(result archive.Result, pageURL, filePath, title string, fileSize int64) {
			m.owner.Post(func() {
				m.onCreateArchiveDone(params, offlineID, archiver, result, pageURL, filePath, title, fileSize, cb)
			})
		})
}

// offlineIDTaken сообщает, занят ли id сохранённой страницей или
// ожидающим архиватором.
func (m *Model) offlineIDTaken(offlineID int64) bool {
	if _, ok := m.pages[offlineID]; ok {
		return true
	}
	_, ok := m.pendingArchivers[offlineID]
	return ok
}

// CancelSave отменяет ожидание архива: поздний колбэк архиватора
// завершится итогом SaveCancelled без изменения состояния.
func (m *Model) CancelSave(offlineID int64) {
	m.owner.Post(func() {
		if _, ok := m.pendingArchivers[offlineID]; ok {
			delete(m.pendingArchivers, offlineID)
			m.savesInFlight--
			m.logger.Info("Сохранение страницы отменено", slog.Int64("offline_id", offlineID))
		}
	})
}

func (m *Model) onCreateArchiveDone(
	params SavePageParams,
	offlineID int64,
	archiver archive.Archiver,
	result archive.Result,
	pageURL, filePath, title string,
	fileSize int64,
	cb func(SavePageResult, int64),
) {
	// После отмены id может занять новое сохранение со своим архиватором
	if pending, ok := m.pendingArchivers[offlineID]; !ok || pending != archiver {
		if result == archive.SuccessfullyCreated && filePath != "" {
			m.archives.DeleteMultipleArchives([]string{filePath}, func(bool) {})
		}
		m.informSavePageDone(cb, SaveCancelled, params, offlineID)
		return
	}
	delete(m.pendingArchivers, offlineID)

	if result != archive.SuccessfullyCreated {
		m.savesInFlight--
		saveResult := toSavePageResult(result)
		if saveResult == SaveArchiveCreationFailed {
			m.scheduleConsistencyCheck(0)
		}
		m.informSavePageDone(cb, saveResult, params, offlineID)
		return
	}

	if pageURL != params.URL {
		m.savesInFlight--
		m.logger.Warn("URL архива не совпадает с запрошенным",
			slog.String("requested", params.URL),
			slog.String("archived", pageURL),
		)
		m.scheduleConsistencyCheck(0)
		m.informSavePageDone(cb, SaveArchiveCreationFailed, params, offlineID)
		return
	}

	page := model.NewOfflinePageItem(pageURL, offlineID, params.ClientID, filePath, fileSize, m.cfg.Now())
	page.Title = title
	if page.Title == "" {
		page.Title = pageURL
	}
	if params.OriginalURL != pageURL {
		page.OriginalURL = params.OriginalURL
	}

	m.store.AddOfflinePage(page, func(status metadata.ItemActionStatus) {
		m.savesInFlight--
		m.onAddPageDone(page, params, status, cb)
	})
}

func (m *Model) onAddPageDone(page model.OfflinePageItem, params SavePageParams,
	status metadata.ItemActionStatus, cb func(SavePageResult, int64)) {
	if status != metadata.StatusSuccess {
		// Запись не сохранена: архив без метаданных не нужен
		m.archives.DeleteMultipleArchives([]string{page.FilePath}, func(ok bool) {
			if !ok {
				m.logger.Warn("Не удалось удалить архив несохранённой страницы",
					slog.String("file_path", page.FilePath))
			}
		})
		result := SaveStoreFailure
		if status == metadata.StatusAlreadyExists {
			result = SaveAlreadyExists
		}
		m.informSavePageDone(cb, result, params, page.OfflineID)
		return
	}

	m.pages[page.OfflineID] = page
	m.updatePagesGauge()
	for _, o := range m.observers {
		o.OfflinePageAdded(m, page)
	}
	m.informSavePageDone(cb, SaveSuccess, params, page.OfflineID)

	m.removeDuplicatePages(page)
}

func (m *Model) informSavePageDone(cb func(SavePageResult, int64), result SavePageResult,
	params SavePageParams, offlineID int64) {
	savePageResults.WithLabelValues(result.String()).Inc()
	level := slog.LevelInfo
	if result != SaveSuccess {
		level = slog.LevelWarn
	}
	m.logger.Log(context.Background(), level, "Сохранение страницы завершено",
		slog.String("url", params.URL),
		slog.String("namespace", params.ClientID.Namespace),
		slog.Int64("offline_id", offlineID),
		slog.String("result", result.String()),
	)
	if cb != nil {
		cb(result, offlineID)
	}
}

// removeDuplicatePages удаляет страницы того же URL и namespace сверх
// лимита политики, начиная с давно не открывавшихся.
func (m *Model) removeDuplicatePages(saved model.OfflinePageItem) {
	limit := m.policies.GetPolicy(saved.ClientID.Namespace).PagesAllowedPerURL
	if limit == policy.Unlimited {
		return
	}

	var same []model.OfflinePageItem
	for _, p := range m.pages {
		if p.URL == saved.URL && p.ClientID.Namespace == saved.ClientID.Namespace && !p.IsExpired() {
			same = append(same, p)
		}
	}
	if len(same) <= limit {
		return
	}

	sort.Slice(same, func(i, j int) bool {
		if !same[i].LastAccessTime.Equal(same[j].LastAccessTime) {
			return same[i].LastAccessTime.Before(same[j].LastAccessTime)
		}
		return same[i].OfflineID < same[j].OfflineID
	})

	var ids []int64
	for _, p := range same[:len(same)-limit] {
		ids = append(ids, p.OfflineID)
	}
	m.logger.Info("Удаление дубликатов страницы",
		slog.String("url", saved.URL),
		slog.Int("count", len(ids)),
	)
	m.deletePagesByOfflineID(ids, nil)
}

// --- Доступ ---

// MarkPageAccessed обновляет время последнего доступа и счётчик.
// Неизвестные и истёкшие страницы игнорируются.
func (m *Model) MarkPageAccessed(offlineID int64) {
	m.post(func() {
		page, ok := m.pages[offlineID]
		if !ok || page.IsExpired() {
			return
		}
		page.LastAccessTime = m.cfg.Now()
		page.AccessCount++

		m.store.UpdateOfflinePages([]model.OfflinePageItem{page}, func(r *metadata.UpdateResult) {
			for _, updated := range r.UpdatedItems {
				m.pages[updated.OfflineID] = updated
			}
		})
	})
}

// --- Удаление ---

// DeletePagesByOfflineID удаляет архивы, затем записи метаданных.
func (m *Model) DeletePagesByOfflineID(ids []int64, cb func(DeletePageResult)) {
	ids = append([]int64(nil), ids...)
	m.post(func() { m.deletePagesByOfflineID(ids, cb) })
}

// DeletePagesByClientIDs удаляет все страницы указанных клиентов.
func (m *Model) DeletePagesByClientIDs(clientIDs []model.ClientID, cb func(DeletePageResult)) {
	clientIDs = append([]model.ClientID(nil), clientIDs...)
	m.post(func() {
		wanted := make(map[model.ClientID]struct{}, len(clientIDs))
		for _, c := range clientIDs {
			wanted[c] = struct{}{}
		}
		var ids []int64
		for id, p := range m.pages {
			if _, ok := wanted[p.ClientID]; ok {
				ids = append(ids, id)
			}
		}
		m.deletePagesByOfflineID(ids, cb)
	})
}

// DeleteCachedPagesByURLPredicate удаляет страницы namespace,
// очищаемых при сбросе кэша, URL которых удовлетворяет pred.
func (m *Model) DeleteCachedPagesByURLPredicate(pred func(string) bool, cb func(DeletePageResult)) {
	m.post(func() {
		var ids []int64
		for id, p := range m.pages {
			if m.policies.IsRemovedOnCacheReset(p.ClientID.Namespace) && pred(p.URL) {
				ids = append(ids, id)
			}
		}
		m.deletePagesByOfflineID(ids, cb)
	})
}

func (m *Model) deletePagesByOfflineID(ids []int64, cb func(DeletePageResult)) {
	done := func(r DeletePageResult) {
		deletePageResults.WithLabelValues(r.String()).Inc()
		if cb != nil {
			cb(r)
		}
	}

	if m.store.State() != metadata.StateLoaded {
		done(DeleteStoreFailure)
		return
	}

	var (
		found []int64
		paths []string
	)
	for _, id := range ids {
		if p, ok := m.pages[id]; ok {
			found = append(found, id)
			paths = append(paths, p.FilePath)
		}
	}
	if len(found) == 0 {
		done(DeleteSuccess)
		return
	}

	m.archives.DeleteMultipleArchives(paths, func(ok bool) {
		if !ok {
			m.logger.Error("Ошибка удаления архивов, метаданные не изменены",
				slog.Int("count", len(paths)),
			)
			done(DeleteDeviceFailure)
			return
		}
		m.store.RemoveOfflinePages(found, func(r *metadata.UpdateResult) {
			done(m.onRemoveDone(r))
		})
	})
}

func (m *Model) onRemoveDone(r *metadata.UpdateResult) DeletePageResult {
	for _, removed := range r.UpdatedItems {
		delete(m.pages, removed.OfflineID)
		for _, o := range m.observers {
			o.OfflinePageDeleted(m, removed.OfflineID, removed.ClientID)
		}
	}
	m.updatePagesGauge()

	if r.StoreState != metadata.StateLoaded || r.CountStatus(metadata.StatusStoreError) > 0 {
		return DeleteStoreFailure
	}
	return DeleteSuccess
}

// --- Истечение ---

// ExpirePages помечает страницы истёкшими и удаляет их архивы.
// cb получает итог удаления файлов.
func (m *Model) ExpirePages(ids []int64, expirationTime time.Time, cb func(ok bool)) {
	ids = append([]int64(nil), ids...)
	m.post(func() { m.expirePages(ids, expirationTime, cb) })
}

func (m *Model) expirePages(ids []int64, expirationTime time.Time, cb func(ok bool)) {
	var (
		items []model.OfflinePageItem
		paths []string
	)
	for _, id := range ids {
		p, ok := m.pages[id]
		if !ok {
			continue
		}
		p.ExpirationTime = expirationTime
		items = append(items, p)
		paths = append(paths, p.FilePath)
	}
	if len(items) == 0 {
		if cb != nil {
			cb(true)
		}
		return
	}

	m.store.UpdateOfflinePages(items, func(r *metadata.UpdateResult) {
		for _, updated := range r.UpdatedItems {
			m.pages[updated.OfflineID] = updated
		}
		pagesExpiredTotal.Add(float64(len(r.UpdatedItems)))
		m.logger.Info("Страницы помечены истёкшими",
			slog.Int("requested", len(items)),
			slog.Int("expired", len(r.UpdatedItems)),
		)

		m.archives.DeleteMultipleArchives(paths, func(ok bool) {
			if cb != nil {
				cb(ok)
			}
		})
	})
}

// --- Согласованность ---

// CheckMetadataConsistency помечает истёкшими страницы без архива
// и удаляет архивы без метаданных.
func (m *Model) CheckMetadataConsistency(cb func(ConsistencyResult)) {
	m.post(func() { m.checkMetadataConsistency(cb) })
}

func (m *Model) checkMetadataConsistency(cb func(ConsistencyResult)) {
	if !m.loaded {
		m.delayedTasks = append(m.delayedTasks, func() { m.checkMetadataConsistency(cb) })
		return
	}

	m.archives.GetAllArchives(func(files map[string]struct{}) {
		known := make(map[string]struct{}, len(m.pages))
		var missing []int64
		for id, p := range m.pages {
			known[p.FilePath] = struct{}{}
			if p.IsExpired() {
				continue
			}
			if _, ok := files[p.FilePath]; !ok {
				missing = append(missing, id)
			}
		}

		var orphans []string
		// Архивы сохраняемых сейчас страниц ещё не имеют записи
		if m.savesInFlight == 0 {
			for path := range files {
				if _, ok := known[path]; !ok {
					orphans = append(orphans, path)
				}
			}
		}

		result := ConsistencyResult{ExpiredPages: len(missing), DeletedArchives: len(orphans), OK: true}
		finish := func() {
			m.logger.Info("Проверка согласованности завершена",
				slog.Int("expired_pages", result.ExpiredPages),
				slog.Int("deleted_archives", result.DeletedArchives),
				slog.Bool("ok", result.OK),
			)
			if cb != nil {
				cb(result)
			}
		}

		deleteOrphans := func() {
			if len(orphans) == 0 {
				finish()
				return
			}
			m.archives.DeleteMultipleArchives(orphans, func(ok bool) {
				result.OK = result.OK && ok
				finish()
			})
		}

		if len(missing) == 0 {
			deleteOrphans()
			return
		}
		m.expirePages(missing, m.cfg.Now(), func(ok bool) {
			result.OK = ok
			deleteOrphans()
		})
	})
}

// --- Очистка ---

// ClearAll удаляет все страницы и пересоздаёт хранилище.
func (m *Model) ClearAll(cb func(ok bool)) {
	m.post(func() {
		ids := make([]int64, 0, len(m.pages))
		for id := range m.pages {
			ids = append(ids, id)
		}
		m.deletePagesByOfflineID(ids, func(DeletePageResult) {
			m.store.Reset(func(bool) {
				m.store.Initialize(func(bool) {
					m.store.GetOfflinePages(func(status metadata.LoadStatus, pages []model.OfflinePageItem) {
						m.pages = make(map[int64]model.OfflinePageItem, len(pages))
						for _, p := range pages {
							m.pages[p.OfflineID] = p
						}
						m.updatePagesGauge()
						ok := status == metadata.LoadSucceeded || status == metadata.LoadSucceededNewStore
						m.logger.Info("Все страницы удалены", slog.Bool("ok", ok))
						if cb != nil {
							cb(ok)
						}
					})
				})
			})
		})
	})
}

// --- Чтение ---

// sortedPages возвращает подходящие страницы в порядке создания.
func (m *Model) sortedPages(match func(model.OfflinePageItem) bool) []model.OfflinePageItem {
	var out []model.OfflinePageItem
	for _, p := range m.pages {
		if match(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreationTime.Equal(out[j].CreationTime) {
			return out[i].CreationTime.Before(out[j].CreationTime)
		}
		return out[i].OfflineID < out[j].OfflineID
	})
	return out
}

// GetPagesMatchingQuery возвращает страницы, удовлетворяющие запросу.
func (m *Model) GetPagesMatchingQuery(q *query.Query, cb func([]model.OfflinePageItem)) {
	m.post(func() { cb(m.sortedPages(q.Matches)) })
}

// GetAllPages возвращает все неистёкшие страницы.
func (m *Model) GetAllPages(cb func([]model.OfflinePageItem)) {
	m.post(func() {
		cb(m.sortedPages(func(p model.OfflinePageItem) bool { return !p.IsExpired() }))
	})
}

// GetPageByOfflineID возвращает страницу или nil.
func (m *Model) GetPageByOfflineID(offlineID int64, cb func(*model.OfflinePageItem)) {
	m.post(func() {
		p, ok := m.pages[offlineID]
		if !ok || p.IsExpired() {
			cb(nil)
			return
		}
		cb(&p)
	})
}

// GetPagesByClientIDs возвращает неистёкшие страницы клиентов.
func (m *Model) GetPagesByClientIDs(clientIDs []model.ClientID, cb func([]model.OfflinePageItem)) {
	q := query.NewBuilder().SetClientIDs(query.IncludeMatching, clientIDs).Build(m.policies)
	m.post(func() { cb(m.sortedPages(q.Matches)) })
}

// GetPagesByURL возвращает неистёкшие страницы с адресом pageURL.
func (m *Model) GetPagesByURL(pageURL string, mode URLSearchMode, cb func([]model.OfflinePageItem)) {
	m.post(func() {
		cb(m.sortedPages(func(p model.OfflinePageItem) bool {
			if p.IsExpired() {
				return false
			}
			if p.URL == pageURL {
				return true
			}
			return mode == SearchByAllURLs && p.OriginalURL != "" && p.OriginalURL == pageURL
		}))
	})
}

// GetOfflineIDsForClientID возвращает offline id страниц клиента.
func (m *Model) GetOfflineIDsForClientID(clientID model.ClientID, cb func([]int64)) {
	m.post(func() {
		pages := m.sortedPages(func(p model.OfflinePageItem) bool {
			return p.ClientID == clientID && !p.IsExpired()
		})
		ids := make([]int64, len(pages))
		for i, p := range pages {
			ids[i] = p.OfflineID
		}
		cb(ids)
	})
}
