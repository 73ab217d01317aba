package metadata

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/sequence"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// newTestStore создаёт хранилище с последовательностью владельца.
func newTestStore(t *testing.T, dir string) (*Store, *sequence.Runner) {
	t.Helper()
	owner := sequence.New("owner", testLogger())
	s := New(owner, dir, testLogger())
	t.Cleanup(func() {
		s.Close()
		owner.Stop()
	})
	return s, owner
}

// await ждёт значение из канала колбэка.
func await[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("таймаут ожидания колбэка")
		var zero T
		return zero
	}
}

func initialize(t *testing.T, s *Store) bool {
	t.Helper()
	ch := make(chan bool, 1)
	s.Initialize(func(ok bool) { ch <- ok })
	return await(t, ch)
}

type loadResult struct {
	status LoadStatus
	pages  []model.OfflinePageItem
}

func getAll(t *testing.T, s *Store) loadResult {
	t.Helper()
	ch := make(chan loadResult, 1)
	s.GetOfflinePages(func(st LoadStatus, pages []model.OfflinePageItem) { ch <- loadResult{st, pages} })
	return await(t, ch)
}

func add(t *testing.T, s *Store, p model.OfflinePageItem) ItemActionStatus {
	t.Helper()
	ch := make(chan ItemActionStatus, 1)
	s.AddOfflinePage(p, func(st ItemActionStatus) { ch <- st })
	return await(t, ch)
}

func remove(t *testing.T, s *Store, ids []int64) *UpdateResult {
	t.Helper()
	ch := make(chan *UpdateResult, 1)
	s.RemoveOfflinePages(ids, func(r *UpdateResult) { ch <- r })
	return await(t, ch)
}

// TestStore_RoundTripAcrossReopen проверяет сохранность записей после переоткрытия.
func TestStore_RoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	page := testPage(7, "https://a.test/", "download")
	page.OriginalURL = "https://short.test/"
	page.ExpirationTime = page.CreationTime.Add(time.Hour)

	owner := sequence.New("owner", testLogger())
	defer owner.Stop()

	s := New(owner, dir, testLogger())
	if !initialize(t, s) {
		t.Fatal("Initialize не удался")
	}
	if r := getAll(t, s); r.status != LoadSucceededNewStore {
		t.Errorf("ожидался LoadSucceededNewStore, получен %s", r.status)
	}
	if st := add(t, s, page); st != StatusSuccess {
		t.Fatalf("AddOfflinePage: %s", st)
	}
	s.Close()

	reopened := New(owner, dir, testLogger())
	defer reopened.Close()
	if !initialize(t, reopened) {
		t.Fatal("Initialize после переоткрытия не удался")
	}
	r := getAll(t, reopened)
	if r.status != LoadSucceeded {
		t.Errorf("ожидался LoadSucceeded, получен %s", r.status)
	}
	if len(r.pages) != 1 || !r.pages[0].Equal(page) {
		t.Errorf("запись не совпадает после переоткрытия:\n got %+v\nwant %+v", r.pages, page)
	}
}

// TestStore_OperationsBeforeInitialize проверяет поведение незагруженного хранилища.
func TestStore_OperationsBeforeInitialize(t *testing.T) {
	s, _ := newTestStore(t, "")

	if r := getAll(t, s); r.status != StoreInitFailed || r.pages != nil {
		t.Errorf("GetOfflinePages: %s, %v", r.status, r.pages)
	}
	if st := add(t, s, testPage(1, "https://a.test/", "bookmark")); st != StatusStoreError {
		t.Errorf("AddOfflinePage: %s", st)
	}
	r := remove(t, s, []int64{1, 2})
	if r.StoreState != StateNotLoaded || r.CountStatus(StatusStoreError) != 2 {
		t.Errorf("RemoveOfflinePages: %+v", r)
	}

	ch := make(chan *UpdateResult, 1)
	s.UpdateOfflinePages([]model.OfflinePageItem{testPage(1, "https://a.test/", "bookmark")},
		func(r *UpdateResult) { ch <- r })
	if u := await(t, ch); u.StoreState != StateNotLoaded || u.CountStatus(StatusStoreError) != 1 {
		t.Errorf("UpdateOfflinePages: %+v", u)
	}
}

// TestStore_RemoveEmpty проверяет немедленный успех для пустого списка.
func TestStore_RemoveEmpty(t *testing.T) {
	s, _ := newTestStore(t, "")
	if !initialize(t, s) {
		t.Fatal("Initialize не удался")
	}
	r := remove(t, s, nil)
	if len(r.ItemStatuses) != 0 || r.StoreState != StateLoaded {
		t.Errorf("ожидался пустой успешный результат: %+v", r)
	}
}

// TestStore_AddRemove проверяет сценарий: добавление, повтор, пакетное удаление.
func TestStore_AddRemove(t *testing.T) {
	s, _ := newTestStore(t, "")
	if !initialize(t, s) {
		t.Fatal("Initialize не удался")
	}

	page := testPage(42, "https://a.test/", "bookmark")
	if st := add(t, s, page); st != StatusSuccess {
		t.Fatalf("первое добавление: %s", st)
	}
	if st := add(t, s, page); st != StatusAlreadyExists {
		t.Fatalf("повторное добавление: %s", st)
	}

	r := remove(t, s, []int64{42, 43})
	if r.ItemStatuses[0].Status != StatusSuccess || r.ItemStatuses[1].Status != StatusNotFound {
		t.Errorf("статусы удаления: %+v", r.ItemStatuses)
	}
	if len(r.UpdatedItems) != 1 || !r.UpdatedItems[0].Equal(page) {
		t.Errorf("удалённые записи: %+v", r.UpdatedItems)
	}
}

// TestStore_Reset проверяет сброс и повторную инициализацию.
func TestStore_Reset(t *testing.T) {
	dir := t.TempDir()
	s, _ := newTestStore(t, dir)
	if !initialize(t, s) {
		t.Fatal("Initialize не удался")
	}
	add(t, s, testPage(1, "https://a.test/", "bookmark"))

	ch := make(chan bool, 1)
	s.Reset(func(ok bool) { ch <- ok })
	if !await(t, ch) {
		t.Fatal("Reset не удался")
	}
	if s.State() != StateNotLoaded {
		t.Errorf("после Reset ожидалось состояние not_loaded, получено %s", s.State())
	}
	if _, err := os.Stat(filepath.Join(dir, DatabaseFileName)); !os.IsNotExist(err) {
		t.Error("файл БД должен быть удалён")
	}

	if !initialize(t, s) {
		t.Fatal("Initialize после Reset не удался")
	}
	r := getAll(t, s)
	if r.status != LoadSucceededNewStore || len(r.pages) != 0 {
		t.Errorf("после сброса ожидалось пустое новое хранилище: %s, %d", r.status, len(r.pages))
	}
}

// TestStore_InitializeFailure проверяет состояние при ошибке открытия.
func TestStore_InitializeFailure(t *testing.T) {
	dir := t.TempDir()
	// Каталог на месте файла БД не даёт открыть базу
	if err := os.Mkdir(filepath.Join(dir, DatabaseFileName), 0o755); err != nil {
		t.Fatal(err)
	}
	s, _ := newTestStore(t, dir)

	if initialize(t, s) {
		t.Fatal("ожидалась ошибка Initialize")
	}
	if s.State() != StateFailedLoading {
		t.Errorf("ожидалось состояние failed_loading, получено %s", s.State())
	}
}

// TestStore_CallbacksOnOwner проверяет, что колбэки выполняются в последовательности владельца.
func TestStore_CallbacksOnOwner(t *testing.T) {
	s, owner := newTestStore(t, "")

	marker := make(chan struct{})
	blocked := make(chan struct{})
	// Блокируем владельца: колбэк не может выполниться, пока он занят
	owner.Post(func() {
		close(blocked)
		<-marker
	})
	<-blocked

	done := make(chan bool, 1)
	s.Initialize(func(ok bool) { done <- ok })

	select {
	case <-done:
		t.Fatal("колбэк выполнен вне последовательности владельца")
	case <-time.After(100 * time.Millisecond):
	}
	close(marker)
	if !await(t, done) {
		t.Error("Initialize не удался")
	}
}
