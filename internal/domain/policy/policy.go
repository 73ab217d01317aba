// Пакет policy — политики хранения страниц по пространствам имён клиентов.
//
// Controller отвечает на вопросы "поддерживается ли namespace загрузками",
// "показывать ли как недавно посещённый сайт" и т.п. Встроенный набор
// можно расширить или переопределить YAML-файлом.
package policy

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Встроенные пространства имён.
const (
	BookmarkNamespace       = "bookmark"
	LastNNamespace          = "last_n"
	AsyncNamespace          = "async_loading"
	CCTNamespace            = "custom_tabs"
	DownloadNamespace       = "download"
	NTPSuggestionsNamespace = "ntp_suggestions"
	DefaultNamespace        = "default"
)

// Unlimited — отсутствие ограничения на количество страниц.
const Unlimited = -1

// LifetimeType — тип времени жизни страниц namespace.
type LifetimeType string

const (
	// Temporary — страницы удаляются по сроку и при нехватке места
	Temporary LifetimeType = "temporary"
	// Persistent — страницы удаляются только пользователем
	Persistent LifetimeType = "persistent"
)

// LifetimePolicy — ограничения времени жизни.
type LifetimePolicy struct {
	Type LifetimeType `yaml:"type" json:"type"`
	// ExpirationPeriod — срок жизни для Temporary, 0 для Persistent
	ExpirationPeriod time.Duration `yaml:"expiration_period" json:"expiration_period"`
	// PageLimit — максимум страниц в namespace, Unlimited без ограничения
	PageLimit int `yaml:"page_limit" json:"page_limit"`
}

// Features — признаки namespace, используемые фильтрами запросов.
type Features struct {
	SupportedByDownload     bool `yaml:"supported_by_download" json:"supported_by_download"`
	ShownAsRecentlyVisited  bool `yaml:"shown_as_recently_visited" json:"shown_as_recently_visited"`
	RestrictedToOriginalTab bool `yaml:"restricted_to_original_tab" json:"restricted_to_original_tab"`
	RemovedOnCacheReset     bool `yaml:"removed_on_cache_reset" json:"removed_on_cache_reset"`
}

// ClientPolicy — полная политика namespace.
type ClientPolicy struct {
	Namespace string         `yaml:"namespace" json:"namespace"`
	Lifetime  LifetimePolicy `yaml:"lifetime" json:"lifetime"`
	// PagesAllowedPerURL — максимум страниц одного URL в namespace
	PagesAllowedPerURL int      `yaml:"pages_allowed_per_url" json:"pages_allowed_per_url"`
	Features           Features `yaml:"features" json:"features"`
}

// Controller — набор политик. После создания только читается,
// поэтому безопасен для конкурентного использования.
type Controller struct {
	policies   map[string]ClientPolicy
	namespaces []string
	fallback   ClientPolicy
}

func temporary(ns string, period time.Duration, perURL int, f Features) ClientPolicy {
	return ClientPolicy{
		Namespace:          ns,
		Lifetime:           LifetimePolicy{Type: Temporary, ExpirationPeriod: period, PageLimit: Unlimited},
		PagesAllowedPerURL: perURL,
		Features:           f,
	}
}

func persistent(ns string, f Features) ClientPolicy {
	return ClientPolicy{
		Namespace:          ns,
		Lifetime:           LifetimePolicy{Type: Persistent, PageLimit: Unlimited},
		PagesAllowedPerURL: Unlimited,
		Features:           f,
	}
}

const day = 24 * time.Hour

// builtin возвращает встроенные политики.
func builtin() []ClientPolicy {
	return []ClientPolicy{
		temporary(BookmarkNamespace, 7*day, 1, Features{RemovedOnCacheReset: true}),
		temporary(LastNNamespace, 2*day, 1, Features{
			ShownAsRecentlyVisited:  true,
			RestrictedToOriginalTab: true,
			RemovedOnCacheReset:     true,
		}),
		persistent(AsyncNamespace, Features{SupportedByDownload: true}),
		temporary(CCTNamespace, 2*day, 1, Features{RemovedOnCacheReset: true}),
		persistent(DownloadNamespace, Features{SupportedByDownload: true}),
		persistent(NTPSuggestionsNamespace, Features{SupportedByDownload: true}),
	}
}

// NewController создаёт контроллер со встроенными политиками
// и дополнительными политиками extra (переопределяют встроенные).
func NewController(extra ...ClientPolicy) *Controller {
	c := &Controller{
		policies: make(map[string]ClientPolicy),
		fallback: temporary(DefaultNamespace, day, 1, Features{RemovedOnCacheReset: true}),
	}
	for _, p := range builtin() {
		c.policies[p.Namespace] = p
	}
	for _, p := range extra {
		c.policies[p.Namespace] = p
	}
	for ns := range c.policies {
		c.namespaces = append(c.namespaces, ns)
	}
	sort.Strings(c.namespaces)
	return c
}

// policyFile — формат YAML-файла политик.
type policyFile struct {
	Policies []ClientPolicy `yaml:"policies"`
}

// LoadFile создаёт контроллер со встроенными политиками,
// дополненными политиками из YAML-файла path.
func LoadFile(path string) (*Controller, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла политик %s: %w", path, err)
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("ошибка разбора файла политик %s: %w", path, err)
	}
	for i, p := range pf.Policies {
		if p.Namespace == "" {
			return nil, fmt.Errorf("политика #%d: не задан namespace", i)
		}
		lt := &pf.Policies[i].Lifetime
		switch lt.Type {
		case Temporary, Persistent:
		case "":
			lt.Type = Temporary
		default:
			return nil, fmt.Errorf("политика %s: недопустимый тип времени жизни %q", p.Namespace, lt.Type)
		}
		if lt.ExpirationPeriod < 0 {
			return nil, fmt.Errorf("политика %s: отрицательный expiration_period", p.Namespace)
		}
		// Временная политика без срока жизни получает срок политики по умолчанию
		if lt.Type == Temporary && lt.ExpirationPeriod == 0 {
			lt.ExpirationPeriod = day
		}
		if p.PagesAllowedPerURL == 0 {
			pf.Policies[i].PagesAllowedPerURL = Unlimited
		}
		if lt.PageLimit == 0 {
			lt.PageLimit = Unlimited
		}
	}
	return NewController(pf.Policies...), nil
}

// GetAllNamespaces возвращает все известные namespace в отсортированном порядке.
func (c *Controller) GetAllNamespaces() []string {
	out := make([]string, len(c.namespaces))
	copy(out, c.namespaces)
	return out
}

// GetPolicy возвращает политику namespace или политику по умолчанию.
func (c *Controller) GetPolicy(namespace string) ClientPolicy {
	if p, ok := c.policies[namespace]; ok {
		return p
	}
	return c.fallback
}

// GetNamespacesByLifetime возвращает namespace с типом времени жизни t.
func (c *Controller) GetNamespacesByLifetime(t LifetimeType) []string {
	var out []string
	for _, ns := range c.namespaces {
		if c.policies[ns].Lifetime.Type == t {
			out = append(out, ns)
		}
	}
	return out
}

// IsSupportedByDownload сообщает, показываются ли страницы namespace как загрузки.
func (c *Controller) IsSupportedByDownload(namespace string) bool {
	return c.GetPolicy(namespace).Features.SupportedByDownload
}

// IsShownAsRecentlyVisitedSite сообщает, показываются ли страницы namespace
// среди недавно посещённых сайтов.
func (c *Controller) IsShownAsRecentlyVisitedSite(namespace string) bool {
	return c.GetPolicy(namespace).Features.ShownAsRecentlyVisited
}

// IsRestrictedToOriginalTab сообщает, открываются ли страницы namespace
// только во вкладке, где были сохранены.
func (c *Controller) IsRestrictedToOriginalTab(namespace string) bool {
	return c.GetPolicy(namespace).Features.RestrictedToOriginalTab
}

// IsRemovedOnCacheReset сообщает, удаляются ли страницы namespace
// при очистке кэша.
func (c *Controller) IsRemovedOnCacheReset(namespace string) bool {
	return c.GetPolicy(namespace).Features.RemovedOnCacheReset
}
