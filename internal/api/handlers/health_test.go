package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/arturkryukov/artsore/offline-pages/internal/service"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/metadata"
)

type fakeReadiness struct {
	loaded bool
	state  metadata.StoreState
}

func (f fakeReadiness) IsLoaded() bool                  { return f.loaded }
func (f fakeReadiness) StoreState() metadata.StoreState { return f.state }

type fakeDeps map[string]bool

func (f fakeDeps) Health() map[string]bool { return f }

func readyStatus(t *testing.T, h *HealthHandler) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	return rec.Code, body.Status
}

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(fakeReadiness{}, t.TempDir(), nil)
	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != statusOK || body["service"] != serviceName {
		t.Errorf("неожиданный ответ: %v", body)
	}
}

func TestHealthReady(t *testing.T) {
	loaded := fakeReadiness{loaded: true, state: metadata.StateLoaded}
	tests := []struct {
		name       string
		model      fakeReadiness
		dir        string
		deps       DependencyHealth
		wantCode   int
		wantStatus string
	}{
		{"готов", loaded, "", nil, http.StatusOK, statusOK},
		{"модель загружается", fakeReadiness{}, "", nil, http.StatusServiceUnavailable, statusFail},
		{"хранилище недоступно", fakeReadiness{loaded: true, state: metadata.StateFailedReset}, "", nil,
			http.StatusServiceUnavailable, statusFail},
		{"нет каталога архивов", loaded, "missing", nil, http.StatusServiceUnavailable, statusFail},
		{"JWKS недоступен", loaded, "", fakeDeps{"jwks:auth": false}, http.StatusOK, statusDegraded},
		{"JWKS доступен", loaded, "", fakeDeps{"jwks:auth": true}, http.StatusOK, statusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.dir != "" {
				dir = filepath.Join(dir, tt.dir)
			}
			code, status := readyStatus(t, NewHealthHandler(tt.model, dir, tt.deps))
			if code != tt.wantCode || status != tt.wantStatus {
				t.Errorf("ожидалось %d/%s, получено %d/%s", tt.wantCode, tt.wantStatus, code, status)
			}
		})
	}
}

type fakeConsistency struct {
	result     *service.ConsistencyResult
	inProgress bool
}

func (f fakeConsistency) RunOnce() (*service.ConsistencyResult, bool) { return f.result, f.inProgress }

type fakeStorageClearer struct {
	cleared int
	result  service.ClearStorageResult
	skipped bool
}

func (f fakeStorageClearer) RunOnce() (int, service.ClearStorageResult, bool) {
	return f.cleared, f.result, f.skipped
}

func TestMaintenance(t *testing.T) {
	h := NewMaintenanceHandler(
		fakeConsistency{result: &service.ConsistencyResult{}},
		fakeStorageClearer{cleared: 3, result: service.ClearSuccess},
	)

	rec := httptest.NewRecorder()
	h.ConsistencyCheck(rec, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/consistency-check", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("consistency-check: ожидался 200, получен %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ClearStorage(rec, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/clear-storage", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear-storage: ожидался 200, получен %d", rec.Code)
	}
	var resp ClearStorageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ExpiredPages != 3 || resp.Result != service.ClearSuccess.String() {
		t.Errorf("неожиданный ответ: %+v", resp)
	}

	busy := NewMaintenanceHandler(fakeConsistency{inProgress: true}, fakeStorageClearer{skipped: true})
	for path, fn := range map[string]http.HandlerFunc{
		"consistency-check": busy.ConsistencyCheck,
		"clear-storage":     busy.ClearStorage,
	} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodPost, "/api/v1/maintenance/"+path, nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("%s: ожидался 409, получен %d", path, rec.Code)
		}
	}
}
