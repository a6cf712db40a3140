package cache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestInMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewInMemoryCache[string, int](time.Minute).WithClock(func() time.Time { return now })
	defer c.Stop()

	c.Set("a", 1, 0)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get got=%v ok=%v", v, ok)
	}

	now = now.Add(61 * time.Second)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("entry should have expired")
	}
	c.cleanup()
	if c.Size() != 0 {
		t.Fatalf("cleanup should drop expired entries, size=%d", c.Size())
	}
}

func TestPriceCacheCaseInsensitive(t *testing.T) {
	pc := NewPriceCache(time.Minute)
	defer pc.Stop()

	pc.Set("btceur", PricePoint{Price: decimal.NewFromInt(42000), At: time.Now()})
	p, ok := pc.Get("BTCEUR")
	if !ok || !p.Price.Equal(decimal.NewFromInt(42000)) {
		t.Fatalf("PriceCache got=%v ok=%v", p.Price, ok)
	}
}
