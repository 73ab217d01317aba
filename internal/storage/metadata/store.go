package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/sequence"

	// Драйвер SQLite без cgo
	_ "modernc.org/sqlite"
)

// DatabaseFileName — имя файла БД в каталоге хранилища.
const DatabaseFileName = "OfflinePages.db"

// Prometheus метрики хранилища.
var (
	storeOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_store_operations_total",
		Help: "Количество операций хранилища метаданных по статусам",
	}, []string{"operation", "status"})

	storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "op_store_operation_duration_seconds",
		Help:    "Длительность операций хранилища метаданных",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)

// Store — асинхронное хранилище метаданных. Соединение с БД
// используется только из фоновой последовательности хранилища,
// колбэки выполняются в последовательности владельца.
type Store struct {
	owner  *sequence.Runner
	bg     *sequence.Runner
	dbPath string // пустая строка — БД в памяти
	logger *slog.Logger

	mu    sync.Mutex
	state StoreState

	// Доступны только из bg.
	db          *sql.DB
	createdFile bool
}

// New создаёт хранилище. dbDir — каталог файла БД; пустая строка
// означает БД в памяти. Для открытия вызовите Initialize.
func New(owner *sequence.Runner, dbDir string, logger *slog.Logger) *Store {
	s := &Store{
		owner:  owner,
		logger: logger.With(slog.String("component", "metadata_store")),
		state:  StateNotLoaded,
	}
	if dbDir != "" {
		s.dbPath = filepath.Join(dbDir, DatabaseFileName)
	}
	s.bg = sequence.New("metadata_store", logger)
	return s
}

// State возвращает текущее состояние хранилища.
func (s *Store) State() StoreState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) setState(st StoreState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// reply доставляет колбэк в последовательность владельца.
func (s *Store) reply(fn func()) {
	if !s.owner.Post(fn) {
		s.logger.Warn("Последовательность владельца остановлена, колбэк отброшен")
	}
}

// post ставит задачу в фоновую последовательность. Если она уже
// остановлена, вызывается fallback.
func (s *Store) post(task func(), fallback func()) {
	if !s.bg.Post(task) {
		s.reply(fallback)
	}
}

func observe(operation string, start time.Time) {
	storeOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Initialize открывает БД и приводит схему к актуальной.
// Повторный вызов для загруженного хранилища сразу сообщает успех.
func (s *Store) Initialize(cb func(ok bool)) {
	s.post(func() {
		if s.State() == StateLoaded {
			s.reply(func() { cb(true) })
			return
		}
		ok := s.initialize()
		s.reply(func() { cb(ok) })
	}, func() { cb(false) })
}

func (s *Store) initialize() bool {
	start := time.Now()
	defer observe("initialize", start)

	if err := s.open(context.Background()); err != nil {
		s.logger.Error("Ошибка инициализации хранилища метаданных",
			slog.String("path", s.dbPath),
			slog.String("error", err.Error()),
		)
		s.closeDB()
		s.setState(StateFailedLoading)
		storeOperations.WithLabelValues("initialize", "error").Inc()
		return false
	}

	s.setState(StateLoaded)
	storeOperations.WithLabelValues("initialize", "success").Inc()
	s.logger.Info("Хранилище метаданных открыто",
		slog.String("path", s.dbPath),
		slog.Bool("new_store", s.createdFile),
	)
	return true
}

func (s *Store) open(ctx context.Context) error {
	dsn := ":memory:"
	s.createdFile = true
	if s.dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(s.dbPath), 0o755); err != nil {
			return fmt.Errorf("ошибка создания каталога БД: %w", err)
		}
		_, err := os.Stat(s.dbPath)
		s.createdFile = errors.Is(err, os.ErrNotExist)
		dsn = s.dbPath
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("ошибка открытия БД: %w", err)
	}
	// Одно соединение: БД в памяти живёт, пока живо соединение,
	// а файловая БД открыта в эксклюзивном режиме.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	s.db = db

	for _, pragma := range []string{
		"PRAGMA page_size = 4096",
		"PRAGMA cache_size = 500",
		"PRAGMA locking_mode = EXCLUSIVE",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if err := EnsureCurrentSchema(ctx, db); err != nil {
		return err
	}
	return nil
}

func (s *Store) closeDB() {
	if s.db == nil {
		return
	}
	if err := s.db.Close(); err != nil {
		s.logger.Warn("Ошибка закрытия БД", slog.String("error", err.Error()))
	}
	s.db = nil
}

// GetOfflinePages читает все записи.
func (s *Store) GetOfflinePages(cb func(LoadStatus, []model.OfflinePageItem)) {
	s.post(func() {
		if s.State() != StateLoaded || s.db == nil {
			storeOperations.WithLabelValues("get_all", "not_loaded").Inc()
			s.reply(func() { cb(StoreInitFailed, nil) })
			return
		}

		start := time.Now()
		pages, err := ReadAllPages(context.Background(), s.db)
		observe("get_all", start)
		if err != nil {
			s.logger.Error("Ошибка чтения метаданных", slog.String("error", err.Error()))
			storeOperations.WithLabelValues("get_all", "error").Inc()
			s.reply(func() { cb(StoreLoadFailed, nil) })
			return
		}

		status := LoadSucceeded
		if len(pages) == 0 && s.createdFile {
			status = LoadSucceededNewStore
		}
		storeOperations.WithLabelValues("get_all", "success").Inc()
		s.reply(func() { cb(status, pages) })
	}, func() { cb(StoreInitFailed, nil) })
}

// AddOfflinePage добавляет запись без перезаписи существующей.
func (s *Store) AddOfflinePage(page model.OfflinePageItem, cb func(ItemActionStatus)) {
	s.post(func() {
		if s.State() != StateLoaded || s.db == nil {
			storeOperations.WithLabelValues("add", StatusStoreError.String()).Inc()
			s.reply(func() { cb(StatusStoreError) })
			return
		}

		start := time.Now()
		status, err := InsertPage(context.Background(), s.db, page)
		observe("add", start)
		if err != nil {
			s.logger.Error("Ошибка добавления страницы",
				slog.Int64("offline_id", page.OfflineID),
				slog.String("error", err.Error()),
			)
		}
		storeOperations.WithLabelValues("add", status.String()).Inc()
		s.reply(func() { cb(status) })
	}, func() { cb(StatusStoreError) })
}

// UpdateOfflinePages обновляет записи в одной транзакции.
func (s *Store) UpdateOfflinePages(pages []model.OfflinePageItem, cb func(*UpdateResult)) {
	ids := make([]int64, len(pages))
	for i, p := range pages {
		ids[i] = p.OfflineID
	}

	s.post(func() {
		state := s.State()
		if state != StateLoaded || s.db == nil {
			result := newFailedResult(state, ids)
			s.reply(func() { cb(result) })
			return
		}

		start := time.Now()
		result, err := UpdatePages(context.Background(), s.db, pages)
		observe("update", start)
		if err != nil {
			s.logger.Error("Ошибка обновления страниц",
				slog.Int("count", len(pages)),
				slog.String("error", err.Error()),
			)
		}
		countStatuses("update", result)
		s.reply(func() { cb(result) })
	}, func() { cb(newFailedResult(StateNotLoaded, ids)) })
}

// RemoveOfflinePages удаляет записи в одной транзакции. Пустой список
// сразу завершается успехом без обращения к БД.
func (s *Store) RemoveOfflinePages(ids []int64, cb func(*UpdateResult)) {
	if len(ids) == 0 {
		state := s.State()
		s.reply(func() { cb(&UpdateResult{StoreState: state}) })
		return
	}
	ids = append([]int64(nil), ids...)

	s.post(func() {
		state := s.State()
		if state != StateLoaded || s.db == nil {
			result := newFailedResult(state, ids)
			s.reply(func() { cb(result) })
			return
		}

		start := time.Now()
		result, err := RemovePages(context.Background(), s.db, ids)
		observe("remove", start)
		if err != nil {
			s.logger.Error("Ошибка удаления страниц",
				slog.Int("count", len(ids)),
				slog.String("error", err.Error()),
			)
		}
		countStatuses("remove", result)
		s.reply(func() { cb(result) })
	}, func() { cb(newFailedResult(StateNotLoaded, ids)) })
}

func countStatuses(operation string, r *UpdateResult) {
	for _, st := range r.ItemStatuses {
		storeOperations.WithLabelValues(operation, st.Status.String()).Inc()
	}
}

// Reset удаляет таблицу, закрывает соединение и удаляет файл БД.
// После успешного сброса хранилище в состоянии StateNotLoaded
// и может быть снова инициализировано.
func (s *Store) Reset(cb func(ok bool)) {
	s.post(func() {
		ok := s.reset()
		s.reply(func() { cb(ok) })
	}, func() { cb(false) })
}

func (s *Store) reset() bool {
	var resetErr error
	if s.db != nil {
		if _, err := s.db.ExecContext(context.Background(), `DROP TABLE IF EXISTS `+TableName); err != nil {
			s.logger.Warn("Ошибка удаления таблицы при сбросе", slog.String("error", err.Error()))
		}
		if err := s.db.Close(); err != nil {
			resetErr = fmt.Errorf("ошибка закрытия БД: %w", err)
		}
		s.db = nil
	}

	if s.dbPath != "" && resetErr == nil {
		for _, path := range []string{s.dbPath, s.dbPath + "-journal", s.dbPath + "-wal", s.dbPath + "-shm"} {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				resetErr = fmt.Errorf("ошибка удаления %s: %w", path, err)
				break
			}
		}
	}

	if resetErr != nil {
		s.logger.Error("Ошибка сброса хранилища метаданных", slog.String("error", resetErr.Error()))
		s.setState(StateFailedReset)
		storeOperations.WithLabelValues("reset", "error").Inc()
		return false
	}

	s.setState(StateNotLoaded)
	storeOperations.WithLabelValues("reset", "success").Inc()
	s.logger.Info("Хранилище метаданных сброшено", slog.String("path", s.dbPath))
	return true
}

// Close закрывает соединение и останавливает фоновую последовательность.
// Уже поставленные операции выполняются до закрытия.
func (s *Store) Close() {
	s.bg.Post(func() {
		s.closeDB()
		s.setState(StateNotLoaded)
	})
	s.bg.Stop()
}
