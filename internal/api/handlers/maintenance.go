// maintenance.go — обработчики POST /api/v1/maintenance/*.
package handlers

import (
	"net/http"

	apierrors "github.com/arturkryukov/artsore/offline-pages/internal/api/errors"
	"github.com/arturkryukov/artsore/offline-pages/internal/service"
)

// ConsistencyRunner — синхронный запуск проверки согласованности.
type ConsistencyRunner interface {
	// RunOnce возвращает результат и флаг "уже выполняется".
	RunOnce() (*service.ConsistencyResult, bool)
}

// StorageClearer — синхронный запуск очистки хранилища.
type StorageClearer interface {
	RunOnce() (cleared int, result service.ClearStorageResult, skipped bool)
}

// ClearStorageResponse — ответ POST /api/v1/maintenance/clear-storage.
type ClearStorageResponse struct {
	ExpiredPages int    `json:"expired_pages"`
	Result       string `json:"result"`
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	consistency ConsistencyRunner
	clearer     StorageClearer
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(consistency ConsistencyRunner, clearer StorageClearer) *MaintenanceHandler {
	return &MaintenanceHandler{consistency: consistency, clearer: clearer}
}

// ConsistencyCheck обрабатывает POST /api/v1/maintenance/consistency-check.
// Если проверка уже выполняется — 409 OPERATION_IN_PROGRESS.
func (h *MaintenanceHandler) ConsistencyCheck(w http.ResponseWriter, _ *http.Request) {
	result, inProgress := h.consistency.RunOnce()
	if inProgress {
		apierrors.OperationInProgress(w, "Проверка согласованности уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ClearStorage обрабатывает POST /api/v1/maintenance/clear-storage.
func (h *MaintenanceHandler) ClearStorage(w http.ResponseWriter, _ *http.Request) {
	cleared, result, skipped := h.clearer.RunOnce()
	if skipped {
		apierrors.OperationInProgress(w, "Очистка хранилища уже выполняется")
		return
	}
	writeJSON(w, http.StatusOK, ClearStorageResponse{ExpiredPages: cleared, Result: result.String()})
}
