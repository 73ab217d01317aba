// Пакет query — декларативные фильтры страниц.
//
// Builder собирает ограничения, Build разрешает политики namespace
// один раз и возвращает неизменяемый Query. Query.Matches проверяет
// страницу конъюнкцией всех ограничений.
package query

import (
	"github.com/arturkryukov/artsore/offline-pages/internal/domain/model"
)

// Requirement — характер ограничения.
type Requirement int

const (
	// Unset — ограничение не задано
	Unset Requirement = iota
	// IncludeMatching — подходят только значения из множества
	IncludeMatching
	// ExcludeMatching — подходят только значения вне множества
	ExcludeMatching
)

func (r Requirement) String() string {
	switch r {
	case IncludeMatching:
		return "include"
	case ExcludeMatching:
		return "exclude"
	default:
		return "unset"
	}
}

// Constraint — ограничение по множеству значений.
type Constraint[T comparable] struct {
	Requirement Requirement
	set         map[T]struct{}
}

func newConstraint[T comparable](req Requirement, values []T) Constraint[T] {
	c := Constraint[T]{Requirement: req}
	if req == Unset {
		return c
	}
	c.set = make(map[T]struct{}, len(values))
	for _, v := range values {
		c.set[v] = struct{}{}
	}
	return c
}

// Matches проверяет значение. Unset подходит всегда.
func (c Constraint[T]) Matches(v T) bool {
	switch c.Requirement {
	case IncludeMatching:
		_, ok := c.set[v]
		return ok
	case ExcludeMatching:
		_, ok := c.set[v]
		return !ok
	default:
		return true
	}
}

// Values возвращает значения множества в произвольном порядке.
func (c Constraint[T]) Values() []T {
	out := make([]T, 0, len(c.set))
	for v := range c.set {
		out = append(out, v)
	}
	return out
}

// Len возвращает размер множества.
func (c Constraint[T]) Len() int {
	return len(c.set)
}

// PolicyController — сведения о политиках, нужные для разрешения запроса.
type PolicyController interface {
	GetAllNamespaces() []string
	IsSupportedByDownload(namespace string) bool
	IsShownAsRecentlyVisitedSite(namespace string) bool
	IsRestrictedToOriginalTab(namespace string) bool
	IsRemovedOnCacheReset(namespace string) bool
}

// Query — разрешённый запрос. Не меняется после Build.
type Query struct {
	offlineIDs   Constraint[int64]
	urls         Constraint[string]
	clientIDs    Constraint[model.ClientID]
	namespaces   map[string]struct{} // nil — без ограничения
	allowExpired bool
}

// Matches проверяет страницу всеми ограничениями.
func (q *Query) Matches(p model.OfflinePageItem) bool {
	if !q.allowExpired && p.IsExpired() {
		return false
	}
	if !q.offlineIDs.Matches(p.OfflineID) {
		return false
	}
	if !q.urls.Matches(p.URL) {
		return false
	}
	if q.namespaces != nil {
		if _, ok := q.namespaces[p.ClientID.Namespace]; !ok {
			return false
		}
	}
	return q.clientIDs.Matches(p.ClientID)
}

// RestrictedToNamespaces возвращает множество допустимых namespace.
// ok == false означает отсутствие ограничения; пустое множество
// при ok == true не пропускает ни одной страницы.
func (q *Query) RestrictedToNamespaces() (namespaces map[string]struct{}, ok bool) {
	if q.namespaces == nil {
		return nil, false
	}
	out := make(map[string]struct{}, len(q.namespaces))
	for ns := range q.namespaces {
		out[ns] = struct{}{}
	}
	return out, true
}

// OfflineIDs возвращает ограничение по offline id.
func (q *Query) OfflineIDs() Constraint[int64] { return q.offlineIDs }

// URLs возвращает ограничение по URL.
func (q *Query) URLs() Constraint[string] { return q.urls }

// ClientIDs возвращает ограничение по client id.
func (q *Query) ClientIDs() Constraint[model.ClientID] { return q.clientIDs }

// AllowsExpired сообщает, попадают ли истёкшие страницы в результат.
func (q *Query) AllowsExpired() bool { return q.allowExpired }
