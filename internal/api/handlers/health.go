// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/arturkryukov/artsore/offline-pages/internal/config"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/metadata"
)

const (
	statusOK       = "ok"
	statusFail     = "fail"
	statusDegraded = "degraded"
	serviceName    = "offline-pages"
)

// ModelReadiness — состояние модели для readiness probe.
type ModelReadiness interface {
	IsLoaded() bool
	StoreState() metadata.StoreState
}

// DependencyHealth — состояние внешних зависимостей (dephealth).
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler реализует /health/live и /health/ready.
type HealthHandler struct {
	version     string
	model       ModelReadiness
	archivesDir string
	deps        DependencyHealth
}

// NewHealthHandler создаёт обработчик health endpoints.
// deps может быть nil, если внешние зависимости не мониторятся.
func NewHealthHandler(m ModelReadiness, archivesDir string, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{
		version:     config.Version,
		model:       m,
		archivesDir: archivesDir,
		deps:        deps,
	}
}

// HealthLive обрабатывает GET /health/live. Зависимости не проверяются.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    statusOK,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	})
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: модель загружена, хранилище метаданных открыто,
// директория архивов доступна на запись. Недоступные внешние
// зависимости переводят статус в degraded.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	overallStatus := statusOK
	httpStatus := http.StatusOK
	fail := func() {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	modelCheck := h.checkModel()
	if modelCheck["status"] != statusOK {
		fail()
	}

	archivesCheck := h.checkArchivesDir()
	if archivesCheck["status"] != statusOK {
		fail()
	}

	checks := map[string]any{
		"model":    modelCheck,
		"archives": archivesCheck,
	}

	if h.deps != nil {
		health := h.deps.Health()
		depsStatus := statusOK
		for _, ok := range health {
			if !ok {
				depsStatus = statusFail
				if overallStatus != statusFail {
					overallStatus = statusDegraded
				}
			}
		}
		checks["dependencies"] = map[string]any{
			"status": depsStatus,
			"items":  health,
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks":    checks,
	})
}

func (h *HealthHandler) checkModel() map[string]any {
	if !h.model.IsLoaded() {
		return map[string]any{
			"status":  statusFail,
			"message": "Модель ещё загружается",
		}
	}
	state := h.model.StoreState()
	if state != metadata.StateLoaded {
		return map[string]any{
			"status":      statusFail,
			"message":     "Хранилище метаданных недоступно",
			"store_state": state.String(),
		}
	}
	return map[string]any{
		"status":      statusOK,
		"store_state": state.String(),
	}
}

// checkArchivesDir проверяет доступность директории архивов на запись.
func (h *HealthHandler) checkArchivesDir() map[string]any {
	testFile := filepath.Join(h.archivesDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория архивов недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": statusOK,
	}
}
