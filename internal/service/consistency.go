// consistency.go — сервис фоновой проверки согласованности метаданных
// и файлов архивов.
//
// Проверка обнаруживает:
//   - страницы без файла архива: помечаются истёкшими, метаданные сохраняются
//   - файлы архивов без метаданных: удаляются с диска
//
// Запускается как горутина с периодическим тикером (OP_CONSISTENCY_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики проверки согласованности
var (
	consistencyRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "op_consistency_runs_total",
		Help: "Общее количество проверок согласованности",
	})

	consistencyIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "op_consistency_issues_total",
		Help: "Количество проблем, исправленных проверкой согласованности",
	}, []string{"type"})

	consistencyDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "op_consistency_duration_seconds",
		Help:    "Длительность проверки согласованности в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ConsistencyChecker — модель, умеющая проверять согласованность.
type ConsistencyChecker interface {
	CheckMetadataConsistency(cb func(ConsistencyResult))
}

// ConsistencyService — периодическая проверка согласованности.
type ConsistencyService struct {
	model    ConsistencyChecker
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
}

// NewConsistencyService создаёт сервис проверки согласованности.
func NewConsistencyService(model ConsistencyChecker, interval time.Duration, logger *slog.Logger) *ConsistencyService {
	return &ConsistencyService{
		model:    model,
		interval: interval,
		logger:   logger.With(slog.String("component", "consistency")),
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (cs *ConsistencyService) Start(ctx context.Context) {
	csCtx, cancel := context.WithCancel(ctx)
	cs.cancel = cancel

	go cs.run(csCtx)

	cs.logger.Info("Проверка согласованности запущена",
		slog.String("interval", cs.interval.String()),
	)
}

// Stop останавливает фоновую проверку.
func (cs *ConsistencyService) Stop() {
	if cs.cancel != nil {
		cs.cancel()
	}
	cs.logger.Info("Проверка согласованности остановлена")
}

// IsInProgress возвращает true, если проверка выполняется.
func (cs *ConsistencyService) IsInProgress() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.inProcess
}

func (cs *ConsistencyService) run(ctx context.Context) {
	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.RunOnce()
		}
	}
}

// RunOnce выполняет одну проверку и ждёт её завершения.
// Если проверка уже выполняется, возвращает nil, true.
// Нельзя вызывать из последовательности владельца модели.
func (cs *ConsistencyService) RunOnce() (*ConsistencyResult, bool) {
	cs.mu.Lock()
	if cs.inProcess {
		cs.mu.Unlock()
		cs.logger.Warn("Проверка согласованности уже выполняется, пропуск")
		return nil, true
	}
	cs.inProcess = true
	cs.mu.Unlock()

	defer func() {
		cs.mu.Lock()
		cs.inProcess = false
		cs.mu.Unlock()
	}()

	startedAt := time.Now()
	done := make(chan ConsistencyResult, 1)
	cs.model.CheckMetadataConsistency(func(r ConsistencyResult) { done <- r })
	result := <-done
	duration := time.Since(startedAt)

	consistencyRunsTotal.Inc()
	consistencyDurationSeconds.Observe(duration.Seconds())
	consistencyIssuesTotal.WithLabelValues("missing_archive").Add(float64(result.ExpiredPages))
	consistencyIssuesTotal.WithLabelValues("orphaned_archive").Add(float64(result.DeletedArchives))

	cs.logger.Info("Проверка согласованности выполнена",
		slog.Int("expired_pages", result.ExpiredPages),
		slog.Int("deleted_archives", result.DeletedArchives),
		slog.Bool("ok", result.OK),
		slog.Duration("duration", duration),
	)
	return &result, false
}
