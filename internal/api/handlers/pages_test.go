package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/artsore/offline-pages/internal/api/errors"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/policy"
	"github.com/arturkryukov/artsore/offline-pages/internal/sequence"
	"github.com/arturkryukov/artsore/offline-pages/internal/service"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/metadata"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newPagesRouter собирает модель на in-memory хранилище и роутер
// с handlers страниц.
func newPagesRouter(t *testing.T, maxArchiveSize int64) (http.Handler, *service.Model) {
	t.Helper()
	owner := sequence.New("owner", testLogger())
	store := metadata.New(owner, "", testLogger())
	archives := archive.NewManager(t.TempDir(), owner, testLogger())
	m := service.NewModel(owner, store, archives, policy.NewController(),
		service.ModelConfig{ConsistencyCheckDelay: -1, MaxArchiveSize: maxArchiveSize}, testLogger())
	m.Start()
	t.Cleanup(func() {
		m.Close()
		store.Close()
		archives.Close()
		owner.Stop()
	})

	h := NewPagesHandler(m, maxArchiveSize, testLogger())
	r := chi.NewRouter()
	r.Get("/api/v1/pages", h.ListPages)
	r.Post("/api/v1/pages", h.SavePage)
	r.Get("/api/v1/pages/{offlineID}", h.GetPage)
	r.Post("/api/v1/pages/{offlineID}/access", h.MarkAccessed)
	r.Delete("/api/v1/pages/{offlineID}", h.DeletePage)
	return r, m
}

// saveForm — поля multipart-формы сохранения; archive == nil — без файла.
type saveForm struct {
	url       string
	namespace string
	clientID  string
	offlineID string
	title     string
	archive   []byte
}

func saveRequest(t *testing.T, f saveForm) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := map[string]string{
		"url":        f.url,
		"namespace":  f.namespace,
		"client_id":  f.clientID,
		"offline_id": f.offlineID,
		"title":      f.title,
	}
	for k, v := range fields {
		if v != "" {
			_ = mw.WriteField(k, v)
		}
	}
	if f.archive != nil {
		fw, err := mw.CreateFormFile("archive", "page.mhtml")
		if err != nil {
			t.Fatal(err)
		}
		_, _ = fw.Write(f.archive)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pages", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не является JSON-ошибкой: %s", rec.Body.String())
	}
	return resp.Error.Code
}

func savePage(t *testing.T, h http.Handler, f saveForm) model.OfflinePageItem {
	t.Helper()
	rec := serve(h, saveRequest(t, f))
	if rec.Code != http.StatusCreated {
		t.Fatalf("сохранение: ожидался 201, получен %d: %s", rec.Code, rec.Body.String())
	}
	var page model.OfflinePageItem
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	return page
}

func listPages(t *testing.T, h http.Handler, rawQuery string) PageListResponse {
	t.Helper()
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/pages?"+rawQuery, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("список: ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	var resp PageListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestPages_SaveAndGet(t *testing.T) {
	h, _ := newPagesRouter(t, 1<<20)

	saved := savePage(t, h, saveForm{
		url:       "https://example.com/article",
		namespace: policy.DownloadNamespace,
		clientID:  "d-1",
		title:     "Статья",
		archive:   []byte("<html>snapshot</html>"),
	})
	if saved.OfflineID <= 0 {
		t.Fatalf("ожидался положительный offline_id, получен %d", saved.OfflineID)
	}
	if saved.Title != "Статья" || saved.FileSize != int64(len("<html>snapshot</html>")) {
		t.Errorf("неожиданная страница: %+v", saved)
	}
	if _, err := os.Stat(saved.FilePath); err != nil {
		t.Errorf("файл архива не создан: %v", err)
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/pages/%d", saved.OfflineID), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	var got model.OfflinePageItem
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/article" || got.ClientID != (model.ClientID{Namespace: "download", ID: "d-1"}) {
		t.Errorf("неожиданная страница: %+v", got)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/pages/999", nil))
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != apierrors.CodeNotFound {
		t.Errorf("неизвестный id: ожидался 404 NOT_FOUND, получен %d", rec.Code)
	}
	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/pages/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный id: ожидался 400, получен %d", rec.Code)
	}
}

func TestPages_SaveErrors(t *testing.T) {
	h, _ := newPagesRouter(t, 64)

	savePage(t, h, saveForm{
		url: "https://example.com/a", namespace: "download", clientID: "1",
		offlineID: "42", archive: []byte("first"),
	})

	tests := []struct {
		name       string
		form       saveForm
		wantStatus int
		wantCode   string
	}{
		{
			name:       "нет url",
			form:       saveForm{namespace: "download", clientID: "1", archive: []byte("x")},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationError,
		},
		{
			name:       "нет client_id",
			form:       saveForm{url: "https://example.com", namespace: "download", archive: []byte("x")},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationError,
		},
		{
			name:       "нет архива",
			form:       saveForm{url: "https://example.com", namespace: "download", clientID: "1"},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationError,
		},
		{
			name: "некорректный offline_id",
			form: saveForm{url: "https://example.com", namespace: "download", clientID: "1",
				offlineID: "-3", archive: []byte("x")},
			wantStatus: http.StatusBadRequest,
			wantCode:   apierrors.CodeValidationError,
		},
		{
			name: "архив больше лимита",
			form: saveForm{url: "https://example.com", namespace: "download", clientID: "1",
				archive: bytes.Repeat([]byte("a"), 128)},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   apierrors.CodeFileTooLarge,
		},
		{
			name:       "неподдерживаемая схема",
			form:       saveForm{url: "ftp://example.com/file", namespace: "download", clientID: "1", archive: []byte("x")},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierrors.CodeSkipped,
		},
		{
			name:       "пустой архив",
			form:       saveForm{url: "https://example.com/empty", namespace: "download", clientID: "1", archive: []byte{}},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   apierrors.CodeContentUnavailable,
		},
		{
			name: "offline_id занят",
			form: saveForm{url: "https://example.com/b", namespace: "download", clientID: "2",
				offlineID: "42", archive: []byte("second")},
			wantStatus: http.StatusConflict,
			wantCode:   apierrors.CodeAlreadyExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, saveRequest(t, tt.form))
			if rec.Code != tt.wantStatus {
				t.Fatalf("ожидался %d, получен %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("ожидался код %s, получен %s", tt.wantCode, code)
			}
		})
	}

	if resp := listPages(t, h, ""); resp.Total != 1 {
		t.Errorf("после ошибок должна остаться одна страница, получено %d", resp.Total)
	}
}

func TestPages_List(t *testing.T) {
	h, _ := newPagesRouter(t, 1<<20)

	first := savePage(t, h, saveForm{url: "https://example.com/1", namespace: "download", clientID: "1", archive: []byte("one")})
	savePage(t, h, saveForm{url: "https://example.com/2", namespace: "download", clientID: "2", archive: []byte("two")})
	savePage(t, h, saveForm{url: "https://example.com/3", namespace: "bookmark", clientID: "3", archive: []byte("three")})

	if resp := listPages(t, h, ""); resp.Total != 3 || len(resp.Items) != 3 || resp.HasMore {
		t.Errorf("все страницы: total=%d items=%d has_more=%v", resp.Total, len(resp.Items), resp.HasMore)
	}

	resp := listPages(t, h, "limit=2&offset=0")
	if resp.Total != 3 || len(resp.Items) != 2 || !resp.HasMore {
		t.Errorf("пагинация: total=%d items=%d has_more=%v", resp.Total, len(resp.Items), resp.HasMore)
	}
	if resp := listPages(t, h, "limit=2&offset=5"); len(resp.Items) != 0 || resp.HasMore {
		t.Errorf("offset за концом: items=%d has_more=%v", len(resp.Items), resp.HasMore)
	}

	if resp := listPages(t, h, "download=include"); resp.Total != 2 {
		t.Errorf("download=include: ожидалось 2, получено %d", resp.Total)
	}
	if resp := listPages(t, h, "cache_reset=include"); resp.Total != 1 || resp.Items[0].ClientID.Namespace != "bookmark" {
		t.Errorf("cache_reset=include: ожидалась страница bookmark, получено %+v", resp.Items)
	}
	if resp := listPages(t, h, "client_id=download:1,download:2&exclude_client_id=true"); resp.Total != 1 {
		t.Errorf("exclude_client_id: ожидалось 1, получено %d", resp.Total)
	}
	if resp := listPages(t, h, fmt.Sprintf("offline_id=%d", first.OfflineID)); resp.Total != 1 || resp.Items[0].OfflineID != first.OfflineID {
		t.Errorf("offline_id: получено %+v", resp.Items)
	}
	if resp := listPages(t, h, "url=https://example.com/2"); resp.Total != 1 {
		t.Errorf("url: ожидалось 1, получено %d", resp.Total)
	}

	bad := []string{
		"limit=0",
		"limit=5000",
		"offset=-1",
		"offline_id=abc",
		"client_id=nonamespace",
		"download=maybe",
		"allow_expired=sometimes",
		"url=https://example.com/2&exclude_url=perhaps",
	}
	for _, q := range bad {
		rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/pages?"+q, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: ожидался 400, получен %d", q, rec.Code)
		}
	}
}

func TestPages_MarkAccessed(t *testing.T) {
	h, _ := newPagesRouter(t, 1<<20)
	saved := savePage(t, h, saveForm{url: "https://example.com/read", namespace: "download", clientID: "1", archive: []byte("page")})

	path := fmt.Sprintf("/api/v1/pages/%d", saved.OfflineID)
	rec := serve(h, httptest.NewRequest(http.MethodPost, path+"/access", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("ожидался 204, получен %d", rec.Code)
	}

	// Обновление применяется асинхронно в последовательности модели
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = serve(h, httptest.NewRequest(http.MethodGet, path, nil))
		var got model.OfflinePageItem
		_ = json.Unmarshal(rec.Body.Bytes(), &got)
		if got.AccessCount == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("access_count не увеличился: %+v", got)
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec = serve(h, httptest.NewRequest(http.MethodPost, "/api/v1/pages/12345/access", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("неизвестный id: ожидался 404, получен %d", rec.Code)
	}
}

func TestPages_Delete(t *testing.T) {
	h, m := newPagesRouter(t, 1<<20)
	saved := savePage(t, h, saveForm{url: "https://example.com/gone", namespace: "download", clientID: "1", archive: []byte("page")})
	expired := savePage(t, h, saveForm{url: "https://example.com/old", namespace: "download", clientID: "2", archive: []byte("old")})

	done := make(chan bool, 1)
	m.ExpirePages([]int64{expired.OfflineID}, time.Now().Add(time.Hour), func(ok bool) { done <- ok })
	select {
	case ok := <-done:
		if !ok {
			t.Fatal("страница не помечена истёкшей")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("таймаут ExpirePages")
	}

	for _, id := range []int64{saved.OfflineID, expired.OfflineID} {
		path := fmt.Sprintf("/api/v1/pages/%d", id)
		rec := serve(h, httptest.NewRequest(http.MethodDelete, path, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("удаление %d: ожидался 204, получен %d: %s", id, rec.Code, rec.Body.String())
		}
		rec = serve(h, httptest.NewRequest(http.MethodDelete, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("повторное удаление %d: ожидался 404, получен %d", id, rec.Code)
		}
	}

	if _, err := os.Stat(saved.FilePath); !os.IsNotExist(err) {
		t.Errorf("файл архива должен быть удалён, err=%v", err)
	}
	if resp := listPages(t, h, "allow_expired=true"); resp.Total != 0 {
		t.Errorf("после удаления ожидалось 0 страниц, получено %d", resp.Total)
	}

	rec := serve(h, httptest.NewRequest(http.MethodDelete, "/api/v1/pages/0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("id 0: ожидался 400, получен %d", rec.Code)
	}
}
