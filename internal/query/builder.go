package query

import (
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
)

// Builder накапливает ограничения. Каждый сеттер заменяет предыдущее
// значение того же ограничения. Не потокобезопасен.
type Builder struct {
	offlineIDs   []int64
	offlineIDReq Requirement
	urls         []string
	urlReq       Requirement
	clientIDs    []model.ClientID
	clientIDReq  Requirement

	supportedByDownload    Requirement
	shownAsRecentlyVisited Requirement
	restrictedToOrigTab    Requirement
	removedOnCacheReset    Requirement

	allowExpired bool
}

// NewBuilder создаёт пустой Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetOfflinePageIDs ограничивает результат списком offline id
// (IncludeMatching) или исключает их (ExcludeMatching).
func (b *Builder) SetOfflinePageIDs(req Requirement, ids []int64) *Builder {
	b.offlineIDReq = req
	b.offlineIDs = append([]int64(nil), ids...)
	return b
}

// SetClientIDs ограничивает результат списком client id.
func (b *Builder) SetClientIDs(req Requirement, ids []model.ClientID) *Builder {
	b.clientIDReq = req
	b.clientIDs = append([]model.ClientID(nil), ids...)
	return b
}

// SetURLs ограничивает результат списком URL. Сравнивается итоговый URL страницы.
func (b *Builder) SetURLs(req Requirement, urls []string) *Builder {
	b.urlReq = req
	b.urls = append([]string(nil), urls...)
	return b
}

// RequireSupportedByDownload отбирает namespace по признаку SupportedByDownload.
func (b *Builder) RequireSupportedByDownload(req Requirement) *Builder {
	b.supportedByDownload = req
	return b
}

// RequireShownAsRecentlyVisitedSite отбирает namespace по признаку
// ShownAsRecentlyVisited.
func (b *Builder) RequireShownAsRecentlyVisitedSite(req Requirement) *Builder {
	b.shownAsRecentlyVisited = req
	return b
}

// RequireRestrictedToOriginalTab отбирает namespace по признаку
// RestrictedToOriginalTab.
func (b *Builder) RequireRestrictedToOriginalTab(req Requirement) *Builder {
	b.restrictedToOrigTab = req
	return b
}

// RequireRemovedOnCacheReset отбирает namespace по признаку RemovedOnCacheReset.
func (b *Builder) RequireRemovedOnCacheReset(req Requirement) *Builder {
	b.removedOnCacheReset = req
	return b
}

// AllowExpiredPages разрешает истёкшие страницы в результате.
func (b *Builder) AllowExpiredPages(allow bool) *Builder {
	b.allowExpired = allow
	return b
}

// Build разрешает политики namespace через controller и возвращает Query.
// Builder сбрасывается: следующий Build учитывает только новые сеттеры.
func (b *Builder) Build(controller PolicyController) *Query {
	q := &Query{
		offlineIDs:   newConstraint(b.offlineIDReq, b.offlineIDs),
		urls:         newConstraint(b.urlReq, b.urls),
		clientIDs:    newConstraint(b.clientIDReq, b.clientIDs),
		allowExpired: b.allowExpired,
	}

	policies := []struct {
		req  Requirement
		pred func(string) bool
	}{
		{b.supportedByDownload, controller.IsSupportedByDownload},
		{b.shownAsRecentlyVisited, controller.IsShownAsRecentlyVisitedSite},
		{b.restrictedToOrigTab, controller.IsRestrictedToOriginalTab},
		{b.removedOnCacheReset, controller.IsRemovedOnCacheReset},
	}

	var allowed map[string]struct{}
	for _, p := range policies {
		if p.req == Unset {
			continue
		}
		if allowed == nil {
			allowed = make(map[string]struct{})
			for _, ns := range controller.GetAllNamespaces() {
				allowed[ns] = struct{}{}
			}
		}
		want := p.req == IncludeMatching
		for ns := range allowed {
			if p.pred(ns) != want {
				delete(allowed, ns)
			}
		}
	}
	q.namespaces = allowed

	*b = Builder{}
	return q
}
