package service

import (
	"testing"
	"time"
)

func TestContentCache(t *testing.T) {
	c := NewContentCache(2, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("пустой кэш не должен возвращать значение")
	}

	text := "G0 X0"
	c.Set("a", &text)
	c.Set("bin", nil)

	got, ok := c.Get("a")
	if !ok || got == nil || *got != text {
		t.Errorf("Get(a) = %v, %v", got, ok)
	}
	got, ok = c.Get("bin")
	if !ok || got != nil {
		t.Errorf("бинарная ревизия кэшируется как nil: %v, %v", got, ok)
	}

	c.Set("c", &text)
	if c.Len() != 2 {
		t.Errorf("размер %d, ожидалось 2", c.Len())
	}

	c.Delete("c")
	if _, ok := c.Get("c"); ok {
		t.Error("запись не удалена")
	}
}

func TestContentCache_TTL(t *testing.T) {
	c := NewContentCache(10, 20*time.Millisecond)
	text := "M30"
	c.Set("a", &text)

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("запись должна истечь по TTL")
	}
}
