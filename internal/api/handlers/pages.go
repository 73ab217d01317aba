// pages.go — HTTP handlers страниц: список по запросу, получение,
// сохранение архива, отметка доступа, удаление.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/arturkryukov/artsore/offline-pages/internal/api/errors"
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
	"github.com/arturkryukov/artsore/offline-pages/internal/query"
	"github.com/arturkryukov/artsore/offline-pages/internal/service"
	"github.com/arturkryukov/artsore/offline-pages/internal/storage/archive"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
	// multipartMemory — часть multipart-формы, хранимая в памяти
	multipartMemory = 8 << 20
)

// PagesModel — операции модели, используемые handlers.
type PagesModel interface {
	PolicyController() service.PolicyController
	SavePage(params service.SavePageParams, archiver archive.Archiver, cb func(service.SavePageResult, int64))
	GetPagesMatchingQuery(q *query.Query, cb func([]model.OfflinePageItem))
	GetPageByOfflineID(offlineID int64, cb func(*model.OfflinePageItem))
	MarkPageAccessed(offlineID int64)
	DeletePagesByOfflineID(ids []int64, cb func(service.DeletePageResult))
}

// PagesHandler — обработчик endpoints страниц.
type PagesHandler struct {
	model          PagesModel
	maxArchiveSize int64
	logger         *slog.Logger
}

// NewPagesHandler создаёт обработчик страниц.
func NewPagesHandler(m PagesModel, maxArchiveSize int64, logger *slog.Logger) *PagesHandler {
	return &PagesHandler{
		model:          m,
		maxArchiveSize: maxArchiveSize,
		logger:         logger.With(slog.String("component", "pages_handler")),
	}
}

// PageListResponse — ответ GET /api/v1/pages.
type PageListResponse struct {
	Items   []model.OfflinePageItem `json:"items"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
	HasMore bool                    `json:"has_more"`
}

// await ждёт колбэк модели или отмену запроса.
func await[T any](ctx context.Context, start func(cb func(T))) (T, error) {
	ch := make(chan T, 1)
	start(func(v T) { ch <- v })
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListPages обрабатывает GET /api/v1/pages.
func (h *PagesHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	limit, offset, err := parsePagination(params)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	b, err := buildQuery(params)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}
	q := b.Build(h.model.PolicyController())

	pages, err := await(r.Context(), func(cb func([]model.OfflinePageItem)) {
		h.model.GetPagesMatchingQuery(q, cb)
	})
	if err != nil {
		apierrors.StoreUnavailable(w, "Запрос отменён до ответа модели")
		return
	}

	total := len(pages)
	start := min(offset, total)
	end := min(start+limit, total)
	items := pages[start:end]
	if items == nil {
		items = []model.OfflinePageItem{}
	}

	writeJSON(w, http.StatusOK, PageListResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
	})
}

func parsePagination(params url.Values) (limit, offset int, err error) {
	limit, offset = defaultLimit, 0
	if v := params.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxLimit {
			return 0, 0, fmt.Errorf("параметр limit должен быть от 1 до %d", maxLimit)
		}
	}
	if v := params.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("параметр offset не может быть отрицательным")
		}
	}
	return limit, offset, nil
}

// buildQuery переводит параметры запроса в query.Builder.
// Списочные параметры повторяются или разделяются запятой; флаги
// exclude_* инвертируют соответствующий список.
func buildQuery(params url.Values) (*query.Builder, error) {
	b := query.NewBuilder()

	if raw := listParam(params, "offline_id"); len(raw) > 0 {
		ids := make([]int64, 0, len(raw))
		for _, s := range raw {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("некорректный offline_id: %q", s)
			}
			ids = append(ids, id)
		}
		req, err := listRequirement(params, "exclude_offline_id")
		if err != nil {
			return nil, err
		}
		b.SetOfflinePageIDs(req, ids)
	}

	if urls := listParam(params, "url"); len(urls) > 0 {
		req, err := listRequirement(params, "exclude_url")
		if err != nil {
			return nil, err
		}
		b.SetURLs(req, urls)
	}

	if raw := listParam(params, "client_id"); len(raw) > 0 {
		ids := make([]model.ClientID, 0, len(raw))
		for _, s := range raw {
			id, err := model.ParseClientID(s)
			if err != nil {
				return nil, fmt.Errorf("некорректный client_id %q: ожидается namespace:id", s)
			}
			ids = append(ids, id)
		}
		req, err := listRequirement(params, "exclude_client_id")
		if err != nil {
			return nil, err
		}
		b.SetClientIDs(req, ids)
	}

	features := []struct {
		name  string
		apply func(query.Requirement) *query.Builder
	}{
		{"download", b.RequireSupportedByDownload},
		{"recent", b.RequireShownAsRecentlyVisitedSite},
		{"original_tab", b.RequireRestrictedToOriginalTab},
		{"cache_reset", b.RequireRemovedOnCacheReset},
	}
	for _, f := range features {
		v := params.Get(f.name)
		switch v {
		case "":
		case "include":
			f.apply(query.IncludeMatching)
		case "exclude":
			f.apply(query.ExcludeMatching)
		default:
			return nil, fmt.Errorf("параметр %s: допустимые значения include, exclude", f.name)
		}
	}

	if v := params.Get("allow_expired"); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("параметр allow_expired: ожидается true или false")
		}
		b.AllowExpiredPages(allow)
	}
	return b, nil
}

func listParam(params url.Values, name string) []string {
	var out []string
	for _, v := range params[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func listRequirement(params url.Values, flag string) (query.Requirement, error) {
	v := params.Get(flag)
	if v == "" {
		return query.IncludeMatching, nil
	}
	exclude, err := strconv.ParseBool(v)
	if err != nil {
		return query.Unset, fmt.Errorf("параметр %s: ожидается true или false", flag)
	}
	if exclude {
		return query.ExcludeMatching, nil
	}
	return query.IncludeMatching, nil
}

func offlineIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "offlineID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный offline id: %q", raw)
	}
	return id, nil
}

// GetPage обрабатывает GET /api/v1/pages/{offlineID}.
func (h *PagesHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	id, err := offlineIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page, err := await(r.Context(), func(cb func(*model.OfflinePageItem)) {
		h.model.GetPageByOfflineID(id, cb)
	})
	if err != nil {
		apierrors.StoreUnavailable(w, "Запрос отменён до ответа модели")
		return
	}
	if page == nil {
		apierrors.NotFound(w, fmt.Sprintf("Страница %d не найдена", id))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// SavePage обрабатывает POST /api/v1/pages.
// Multipart form: url (обязательно), namespace и client_id (обязательно),
// archive (файл снимка, обязательно), original_url, title, offline_id.
func (h *PagesHandler) SavePage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxArchiveSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	pageURL := r.FormValue("url")
	if pageURL == "" {
		apierrors.ValidationError(w, "Поле 'url' обязательно")
		return
	}
	clientID := model.ClientID{Namespace: r.FormValue("namespace"), ID: r.FormValue("client_id")}
	if clientID.Namespace == "" || clientID.ID == "" {
		apierrors.ValidationError(w, "Поля 'namespace' и 'client_id' обязательны")
		return
	}

	var proposed int64
	if v := r.FormValue("offline_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			apierrors.ValidationError(w, fmt.Sprintf("некорректный offline_id: %q", v))
			return
		}
		proposed = id
	}

	file, header, err := r.FormFile("archive")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'archive' обязательно")
		return
	}
	defer file.Close()

	if header.Size > h.maxArchiveSize {
		apierrors.FileTooLarge(w, fmt.Sprintf("Архив %d байт превышает лимит %d байт", header.Size, h.maxArchiveSize))
		return
	}

	archiver := &archive.StreamArchiver{
		Ctx:   r.Context(),
		URL:   pageURL,
		Title: r.FormValue("title"),
		Body:  file,
	}
	params := service.SavePageParams{
		URL:               pageURL,
		ClientID:          clientID,
		ProposedOfflineID: proposed,
		OriginalURL:       r.FormValue("original_url"),
	}

	type saveOutcome struct {
		result service.SavePageResult
		id     int64
	}
	out, err := await(r.Context(), func(cb func(saveOutcome)) {
		h.model.SavePage(params, archiver, func(res service.SavePageResult, id int64) { cb(saveOutcome{res, id}) })
	})
	if err != nil {
		apierrors.WriteError(w, http.StatusServiceUnavailable, apierrors.CodeCancelled, "Сохранение прервано")
		return
	}

	if out.result != service.SaveSuccess {
		h.writeSaveError(w, out.result)
		return
	}

	page, err := await(r.Context(), func(cb func(*model.OfflinePageItem)) {
		h.model.GetPageByOfflineID(out.id, cb)
	})
	if err != nil || page == nil {
		writeJSON(w, http.StatusCreated, map[string]int64{"offline_id": out.id})
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

func (h *PagesHandler) writeSaveError(w http.ResponseWriter, result service.SavePageResult) {
	msg := "Страница не сохранена: " + result.String()
	switch result {
	case service.SaveSkipped:
		apierrors.Unprocessable(w, apierrors.CodeSkipped, msg)
	case service.SaveContentUnavailable:
		apierrors.Unprocessable(w, apierrors.CodeContentUnavailable, msg)
	case service.SaveArchiveCreationFailed, service.SaveSecurityCertificateError:
		apierrors.Unprocessable(w, apierrors.CodeArchiveFailed, msg)
	case service.SaveDeviceFull:
		apierrors.StorageFull(w, msg)
	case service.SaveAlreadyExists:
		apierrors.AlreadyExists(w, msg)
	case service.SaveCancelled:
		apierrors.WriteError(w, http.StatusConflict, apierrors.CodeCancelled, msg)
	case service.SaveStoreFailure:
		apierrors.StoreUnavailable(w, msg)
	default:
		apierrors.InternalError(w, msg)
	}
}

// MarkAccessed обрабатывает POST /api/v1/pages/{offlineID}/access.
func (h *PagesHandler) MarkAccessed(w http.ResponseWriter, r *http.Request) {
	id, err := offlineIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	page, err := await(r.Context(), func(cb func(*model.OfflinePageItem)) {
		h.model.GetPageByOfflineID(id, cb)
	})
	if err != nil {
		apierrors.StoreUnavailable(w, "Запрос отменён до ответа модели")
		return
	}
	if page == nil {
		apierrors.NotFound(w, fmt.Sprintf("Страница %d не найдена", id))
		return
	}

	h.model.MarkPageAccessed(id)
	w.WriteHeader(http.StatusNoContent)
}

// DeletePage обрабатывает DELETE /api/v1/pages/{offlineID}.
// Истёкшие страницы тоже удаляются.
func (h *PagesHandler) DeletePage(w http.ResponseWriter, r *http.Request) {
	id, err := offlineIDParam(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	q := query.NewBuilder().
		SetOfflinePageIDs(query.IncludeMatching, []int64{id}).
		AllowExpiredPages(true).
		Build(h.model.PolicyController())
	found, err := await(r.Context(), func(cb func([]model.OfflinePageItem)) {
		h.model.GetPagesMatchingQuery(q, cb)
	})
	if err != nil {
		apierrors.StoreUnavailable(w, "Запрос отменён до ответа модели")
		return
	}
	if len(found) == 0 {
		apierrors.NotFound(w, fmt.Sprintf("Страница %d не найдена", id))
		return
	}

	result, err := await(r.Context(), func(cb func(service.DeletePageResult)) {
		h.model.DeletePagesByOfflineID([]int64{id}, cb)
	})
	if err != nil {
		apierrors.StoreUnavailable(w, "Запрос отменён до ответа модели")
		return
	}

	switch result {
	case service.DeleteSuccess:
		w.WriteHeader(http.StatusNoContent)
	case service.DeleteDeviceFailure:
		apierrors.WriteError(w, http.StatusInternalServerError, apierrors.CodeDeviceFailure,
			"Ошибка удаления файла архива")
	default:
		apierrors.StoreUnavailable(w, "Ошибка хранилища метаданных")
	}
}
