// Пакет model — доменные модели offline-страниц.
// OfflinePageItem — запись метаданных сохранённой страницы, единая
// для SQL-хранилища, in-memory кэша и ответов API.
package model

import (
	"fmt"
	"strings"
	"time"
)

// ClientID — идентификатор клиента, сохранившего страницу.
// Пространство имён (namespace) определяет политику хранения.
type ClientID struct {
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// Less задаёт порядок: сначала namespace, затем id.
func (c ClientID) Less(other ClientID) bool {
	if c.Namespace != other.Namespace {
		return c.Namespace < other.Namespace
	}
	return c.ID < other.ID
}

// String возвращает представление "namespace:id".
func (c ClientID) String() string {
	return c.Namespace + ":" + c.ID
}

// ParseClientID разбирает строку вида "namespace:id".
// id может содержать двоеточия, namespace — нет.
func ParseClientID(s string) (ClientID, error) {
	ns, id, ok := strings.Cut(s, ":")
	if !ok || ns == "" {
		return ClientID{}, fmt.Errorf("некорректный client id %q, ожидается namespace:id", s)
	}
	return ClientID{Namespace: ns, ID: id}, nil
}

// OfflinePageItem — метаданные сохранённой offline-страницы.
type OfflinePageItem struct {
	// OfflineID — случайный положительный 63-битный идентификатор, первичный ключ
	OfflineID int64 `json:"offline_id"`

	// URL — итоговый адрес страницы (после редиректов)
	URL string `json:"url"`

	// OriginalURL — адрес до редиректов. Пустой, если совпадает с URL
	OriginalURL string `json:"original_url,omitempty"`

	ClientID ClientID `json:"client_id"`

	// FilePath — абсолютный путь к файлу архива
	FilePath string `json:"file_path"`

	// FileSize — размер архива в байтах
	FileSize int64 `json:"file_size"`

	Title string `json:"title"`

	CreationTime   time.Time `json:"creation_time"`
	LastAccessTime time.Time `json:"last_access_time"`

	// ExpirationTime — момент, когда страница помечена истёкшей.
	// Нулевое значение — страница не истекла.
	ExpirationTime time.Time `json:"expiration_time,omitzero"`

	AccessCount int `json:"access_count"`
}

// NewOfflinePageItem создаёт запись, время последнего доступа
// совпадает со временем создания.
func NewOfflinePageItem(url string, offlineID int64, clientID ClientID,
	filePath string, fileSize int64, creationTime time.Time) OfflinePageItem {
	return OfflinePageItem{
		OfflineID:      offlineID,
		URL:            url,
		ClientID:       clientID,
		FilePath:       filePath,
		FileSize:       fileSize,
		CreationTime:   creationTime,
		LastAccessTime: creationTime,
	}
}

// IsExpired сообщает, помечена ли страница истёкшей.
func (p OfflinePageItem) IsExpired() bool {
	return p.CreationTime.Before(p.ExpirationTime)
}

// Equal сравнивает записи поле за полем. Время сравнивается
// с точностью хранения (микросекунды).
func (p OfflinePageItem) Equal(other OfflinePageItem) bool {
	return p.OfflineID == other.OfflineID &&
		p.URL == other.URL &&
		p.OriginalURL == other.OriginalURL &&
		p.ClientID == other.ClientID &&
		p.FilePath == other.FilePath &&
		p.FileSize == other.FileSize &&
		p.Title == other.Title &&
		sameMicro(p.CreationTime, other.CreationTime) &&
		sameMicro(p.LastAccessTime, other.LastAccessTime) &&
		sameMicro(p.ExpirationTime, other.ExpirationTime) &&
		p.AccessCount == other.AccessCount
}

func sameMicro(a, b time.Time) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() == b.IsZero()
	}
	return a.UnixMicro() == b.UnixMicro()
}
