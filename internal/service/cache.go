// cache.go — LRU-кэш текстового содержимого ревизий с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cachedContent — содержимое ревизии; text == nil для бинарных ревизий.
type cachedContent struct {
	text *string
}

// ContentCache — кэш содержимого ревизий по id.
// Ревизии неизменяемы, поэтому записи не устаревают; TTL ограничивает память.
type ContentCache struct {
	cache *expirable.LRU[string, cachedContent]
}

// NewContentCache создаёт кэш с максимальным размером и TTL.
func NewContentCache(maxSize int, ttl time.Duration) *ContentCache {
	return &ContentCache{cache: expirable.NewLRU[string, cachedContent](maxSize, nil, ttl)}
}

// Get возвращает содержимое из кэша. Второй результат — признак попадания.
func (c *ContentCache) Get(revisionID string) (*string, bool) {
	val, ok := c.cache.Get(revisionID)
	if ok {
		contentCacheHitsTotal.Inc()
		return val.text, true
	}
	contentCacheMissesTotal.Inc()
	return nil, false
}

// Set сохраняет содержимое ревизии.
func (c *ContentCache) Set(revisionID string, text *string) {
	c.cache.Add(revisionID, cachedContent{text: text})
}

// Delete удаляет запись (при удалении программы).
func (c *ContentCache) Delete(revisionID string) {
	c.cache.Remove(revisionID)
}

// Len — текущее количество записей.
func (c *ContentCache) Len() int {
	return c.cache.Len()
}
