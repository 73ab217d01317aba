package service

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/policy"
	"github.com/arturkryukov/artsore/offline-pages/internal/query"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
)

var clearNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeClearer — синхронная модель для тестов очистки.
type fakeClearer struct {
	mu        sync.Mutex
	pages     []model.OfflinePageItem
	expired   []int64
	removed   []int64
	expireOK  bool
	deleteRes DeletePageResult
	hold      bool
	held      func()
}

func newFakeClearer(pages ...model.OfflinePageItem) *fakeClearer {
	return &fakeClearer{pages: pages, expireOK: true, deleteRes: DeleteSuccess}
}

func (f *fakeClearer) GetPagesMatchingQuery(q *query.Query, cb func([]model.OfflinePageItem)) {
	f.mu.Lock()
	var out []model.OfflinePageItem
	for _, p := range f.pages {
		if q.Matches(p) {
			out = append(out, p)
		}
	}
	if f.hold {
		f.held = func() { cb(out) }
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	cb(out)
}

func (f *fakeClearer) ExpirePages(ids []int64, _ time.Time, cb func(bool)) {
	f.mu.Lock()
	f.expired = append(f.expired, ids...)
	ok := f.expireOK
	f.mu.Unlock()
	cb(ok)
}

func (f *fakeClearer) DeletePagesByOfflineID(ids []int64, cb func(DeletePageResult)) {
	f.mu.Lock()
	f.removed = append(f.removed, ids...)
	r := f.deleteRes
	f.mu.Unlock()
	cb(r)
}

type fakeStats struct {
	stats archive.StorageStats
}

func (f *fakeStats) GetStorageStats(cb func(archive.StorageStats)) {
	cb(f.stats)
}

func clearPage(id int64, ns string, lastAccess time.Duration, size int64) model.OfflinePageItem {
	created := clearNow.Add(-lastAccess - time.Hour)
	p := model.NewOfflinePageItem("https://example.com/", id, model.ClientID{Namespace: ns, ID: "c"},
		"/archives/page.mhtml", size, created)
	p.LastAccessTime = clearNow.Add(-lastAccess)
	return p
}

func expiredPage(id int64, expiredAgo time.Duration) model.OfflinePageItem {
	p := clearPage(id, policy.DownloadNamespace, 30*24*time.Hour, 10)
	p.ExpirationTime = clearNow.Add(-expiredAgo)
	return p
}

// plentyOfSpace — статистика, при которой очистка нужна только по интервалу.
var plentyOfSpace = archive.StorageStats{FreeDiskSpace: 1 << 30, TotalArchivesSize: 1000}

func newTestStorageManager(clearer *fakeClearer, stats archive.StorageStats, now *time.Time,
	extra ...policy.ClientPolicy) *StorageManager {
	return NewStorageManager(clearer, &fakeStats{stats: stats}, policy.NewController(extra...),
		DefaultStorageConfig(), func() time.Time { return *now }, testLogger())
}

func sortedIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func TestStorageManager_NothingStored(t *testing.T) {
	now := clearNow
	sm := newTestStorageManager(newFakeClearer(), archive.StorageStats{FreeDiskSpace: 100}, &now)

	cleared, result, skipped := sm.RunOnce()
	if skipped || result != ClearUnnecessary || cleared != 0 {
		t.Errorf("пустое хранилище: cleared=%d result=%s skipped=%v", cleared, result, skipped)
	}
}

func TestStorageManager_ExpiresAndRemoves(t *testing.T) {
	clearer := newFakeClearer(
		clearPage(1, policy.BookmarkNamespace, time.Hour, 10),
		clearPage(2, policy.BookmarkNamespace, 8*24*time.Hour, 10),
		clearPage(3, policy.LastNNamespace, 3*24*time.Hour, 10),
		clearPage(4, policy.DownloadNamespace, 100*24*time.Hour, 10),
		clearPage(5, "unknown_namespace", 2*24*time.Hour, 10),
		expiredPage(6, 11*24*time.Hour),
		expiredPage(7, 24*time.Hour),
	)
	now := clearNow
	sm := newTestStorageManager(clearer, plentyOfSpace, &now)

	cleared, result, skipped := sm.RunOnce()
	if skipped || result != ClearSuccess {
		t.Fatalf("очистка: result=%s skipped=%v", result, skipped)
	}
	if cleared != 3 {
		t.Errorf("ожидалось 3 истёкших страницы, получено %d", cleared)
	}
	if got := sortedIDs(clearer.expired); !slices.Equal(got, []int64{2, 3, 5}) {
		t.Errorf("истёкшие страницы: %v", got)
	}
	if !slices.Equal(clearer.removed, []int64{6}) {
		t.Errorf("удалённые страницы: %v", clearer.removed)
	}
}

func TestStorageManager_PageLimit(t *testing.T) {
	limited := policy.ClientPolicy{
		Namespace: "limited",
		Lifetime: policy.LifetimePolicy{
			Type:             policy.Temporary,
			ExpirationPeriod: 30 * 24 * time.Hour,
			PageLimit:        2,
		},
		PagesAllowedPerURL: policy.Unlimited,
	}
	clearer := newFakeClearer(
		clearPage(1, "limited", 3*time.Hour, 10),
		clearPage(2, "limited", time.Hour, 10),
		clearPage(3, "limited", 2*time.Hour, 10),
	)
	now := clearNow
	sm := newTestStorageManager(clearer, plentyOfSpace, &now, limited)

	if _, result, _ := sm.RunOnce(); result != ClearSuccess {
		t.Fatalf("очистка: %s", result)
	}
	if !slices.Equal(clearer.expired, []int64{1}) {
		t.Errorf("сверх лимита должна истечь давно открытая страница 1, получено %v", clearer.expired)
	}
}

func TestStorageManager_SpacePressure(t *testing.T) {
	clearer := newFakeClearer(
		clearPage(1, policy.LastNNamespace, 5*time.Hour, 100),
		clearPage(2, policy.LastNNamespace, 4*time.Hour, 100),
		clearPage(3, policy.LastNNamespace, 3*time.Hour, 100),
		clearPage(4, policy.LastNNamespace, 2*time.Hour, 100),
		clearPage(5, policy.LastNNamespace, time.Hour, 100),
	)
	// Лимит: 900 >= 1900*0.3; порог: 1900*0.1 = 190, освободить 500-190 = 310
	stats := archive.StorageStats{FreeDiskSpace: 1000, TotalArchivesSize: 900}
	now := clearNow
	sm := newTestStorageManager(clearer, stats, &now)

	cleared, result, _ := sm.RunOnce()
	if result != ClearSuccess || cleared != 4 {
		t.Fatalf("очистка: cleared=%d result=%s", cleared, result)
	}
	if !slices.Equal(clearer.expired, []int64{1, 2, 3, 4}) {
		t.Errorf("должны истечь самые старые страницы: %v", clearer.expired)
	}
}

func TestStorageManager_Interval(t *testing.T) {
	clearer := newFakeClearer(clearPage(1, policy.BookmarkNamespace, time.Hour, 10))
	now := clearNow
	sm := newTestStorageManager(clearer, plentyOfSpace, &now)

	if _, result, _ := sm.RunOnce(); result != ClearSuccess {
		t.Fatalf("первая очистка: %s", result)
	}

	now = clearNow.Add(10 * time.Minute)
	if _, result, _ := sm.RunOnce(); result != ClearUnnecessary {
		t.Errorf("очистка внутри интервала: %s", result)
	}

	now = clearNow.Add(31 * time.Minute)
	if _, result, _ := sm.RunOnce(); result != ClearSuccess {
		t.Errorf("очистка после интервала: %s", result)
	}
}

func TestStorageManager_Failures(t *testing.T) {
	tests := []struct {
		name      string
		expireOK  bool
		deleteRes DeletePageResult
		want      ClearStorageResult
	}{
		{"expire", false, DeleteSuccess, ClearExpireFailure},
		{"delete", true, DeleteDeviceFailure, ClearDeleteFailure},
		{"both", false, DeleteStoreFailure, ClearExpireAndDeleteFailures},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearer := newFakeClearer(clearPage(1, policy.BookmarkNamespace, 8*24*time.Hour, 10))
			clearer.expireOK = tt.expireOK
			clearer.deleteRes = tt.deleteRes
			now := clearNow
			sm := newTestStorageManager(clearer, plentyOfSpace, &now)

			if _, result, _ := sm.RunOnce(); result != tt.want {
				t.Errorf("результат %s, ожидался %s", result, tt.want)
			}
		})
	}
}

func TestStorageManager_SkipWhenInProgress(t *testing.T) {
	clearer := newFakeClearer(clearPage(1, policy.BookmarkNamespace, time.Hour, 10))
	clearer.hold = true
	now := clearNow
	sm := newTestStorageManager(clearer, plentyOfSpace, &now)

	done := make(chan ClearStorageResult, 1)
	sm.ClearPagesIfNeeded(func(_ int, r ClearStorageResult) { done <- r })
	if !sm.IsInProgress() {
		t.Fatal("очистка должна выполняться")
	}
	if _, _, skipped := sm.RunOnce(); !skipped {
		t.Error("параллельная очистка должна пропускаться")
	}

	clearer.mu.Lock()
	release := clearer.held
	clearer.mu.Unlock()
	release()

	if r := wait(t, done); r != ClearSuccess {
		t.Errorf("результат: %s", r)
	}
	if sm.IsInProgress() {
		t.Error("очистка должна завершиться")
	}
}

// TestStorageManager_WithModel проверяет очистку поверх модели.
func TestStorageManager_WithModel(t *testing.T) {
	env := newTestEnv(t, "", "")
	env.model.Start()
	out := env.saveURL(t, policy.LastNNamespace, "https://a.test/")

	// Все страницы старше срока жизни last_n
	now := time.Now().Add(3 * 24 * time.Hour)
	sm := NewStorageManager(env.model, env.archives, env.model.PolicyController(),
		DefaultStorageConfig(), func() time.Time { return now }, testLogger())

	done := make(chan int, 1)
	go func() {
		cleared, _, _ := sm.RunOnce()
		done <- cleared
	}()
	if cleared := wait(t, done); cleared != 1 {
		t.Errorf("ожидалась 1 истёкшая страница, получено %d", cleared)
	}
	if env.page(t, out.id) != nil {
		t.Error("страница должна быть истёкшей")
	}
}
