package model

import (
	"testing"
	"time"
)

// TestIsExpired проверяет признак истечения страницы.
func TestIsExpired(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page := NewOfflinePageItem("https://example.com", 1, ClientID{"bookmark", "1"}, "/a.mhtml", 10, created)

	if page.IsExpired() {
		t.Error("новая страница не должна быть истёкшей")
	}
	if !page.LastAccessTime.Equal(created) {
		t.Error("LastAccessTime должен совпадать с CreationTime")
	}

	page.ExpirationTime = created.Add(time.Hour)
	if !page.IsExpired() {
		t.Error("страница с ExpirationTime после CreationTime должна быть истёкшей")
	}

	page.ExpirationTime = created.Add(-time.Hour)
	if page.IsExpired() {
		t.Error("ExpirationTime раньше CreationTime не означает истечения")
	}
}

// TestClientID_Less проверяет порядок: namespace, затем id.
func TestClientID_Less(t *testing.T) {
	tests := []struct {
		a, b ClientID
		want bool
	}{
		{ClientID{"a", "2"}, ClientID{"b", "1"}, true},
		{ClientID{"b", "1"}, ClientID{"a", "2"}, false},
		{ClientID{"a", "1"}, ClientID{"a", "2"}, true},
		{ClientID{"a", "1"}, ClientID{"a", "1"}, false},
	}
	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Errorf("%v.Less(%v) = %v, ожидалось %v", tt.a, tt.b, got, tt.want)
		}
	}
}

// TestParseClientID проверяет разбор "namespace:id".
func TestParseClientID(t *testing.T) {
	c, err := ParseClientID("download:abc:def")
	if err != nil {
		t.Fatalf("ParseClientID: %v", err)
	}
	if c.Namespace != "download" || c.ID != "abc:def" {
		t.Errorf("получено %+v", c)
	}
	if c.String() != "download:abc:def" {
		t.Errorf("String() = %q", c.String())
	}

	for _, bad := range []string{"", "noseparator", ":id"} {
		if _, err := ParseClientID(bad); err == nil {
			t.Errorf("ожидалась ошибка для %q", bad)
		}
	}
}

// TestEqual_MicrosecondPrecision проверяет сравнение с точностью хранения.
func TestEqual_MicrosecondPrecision(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 1500, time.UTC)
	a := NewOfflinePageItem("https://example.com", 1, ClientID{"bookmark", "1"}, "/a.mhtml", 10, created)
	b := a
	b.CreationTime = created.Truncate(time.Microsecond)
	b.LastAccessTime = b.CreationTime

	if !a.Equal(b) {
		t.Error("записи должны совпадать с точностью до микросекунды")
	}
	b.AccessCount = 1
	if a.Equal(b) {
		t.Error("записи с разным AccessCount не должны совпадать")
	}
}
